package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"CfdLedger/internal/persistence"
)

// OpenSQLite returns a migrated in-memory database that is closed when the
// test ends.
func OpenSQLite(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := persistence.Open(ctx, persistence.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := persistence.NewMigrator(db, persistence.DialectSQLite,
		persistence.EmbeddedMigrations(persistence.DialectSQLite), zerolog.Nop())
	_, err = m.Up(ctx)
	require.NoError(t, err)
	return db
}

// StartPostgres runs a throwaway Postgres container with the schema applied.
// The test is skipped when no container runtime is reachable or when
// running with -short.
func StartPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("cfdledger_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := persistence.Open(ctx, persistence.DialectPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := persistence.NewMigrator(db, persistence.DialectPostgres,
		persistence.EmbeddedMigrations(persistence.DialectPostgres), zerolog.Nop())
	_, err = m.Up(ctx)
	require.NoError(t, err)
	return db
}

// StartNATS returns the URL of a JetStream-enabled NATS server. It uses
// TEST_NATS_URL when set, otherwise a throwaway container.
func StartNATS(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("TEST_NATS_URL"); url != "" {
		return url
	}
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start nats container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)
	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}
