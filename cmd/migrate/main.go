package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"CfdLedger/internal/observability"
	"CfdLedger/internal/persistence"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-driver sqlite|postgres] [-dsn DSN] <up|down|status>")
	fmt.Fprintln(os.Stderr, "  up     - apply all pending migrations")
	fmt.Fprintln(os.Stderr, "  down   - roll back the last migration")
	fmt.Fprintln(os.Stderr, "  status - list migrations and when they were applied")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Environment:")
	fmt.Fprintln(os.Stderr, "  CFD_STORAGE_DRIVER - default for -driver (sqlite)")
	fmt.Fprintln(os.Stderr, "  CFD_STORAGE_DSN    - default for -dsn (cfdledger.db)")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	driver := flag.String("driver", envOr("CFD_STORAGE_DRIVER", "sqlite"), "storage driver")
	dsn := flag.String("dsn", envOr("CFD_STORAGE_DSN", "cfdledger.db"), "storage DSN")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	log := observability.NewLogger("migrate")

	dialect, err := persistence.ParseDialect(*driver)
	if err != nil {
		log.Fatal().Err(err).Msg("bad driver")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := persistence.Open(ctx, dialect, *dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	migrator := persistence.NewMigrator(db, dialect, persistence.EmbeddedMigrations(dialect), log)

	switch flag.Arg(0) {
	case "up":
		n, err := migrator.Up(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("migrate up")
		}
		log.Info().Int("applied", n).Msg("migrations up to date")

	case "down":
		rolled, err := migrator.Down(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("migrate down")
		}
		if rolled {
			log.Info().Msg("last migration rolled back")
		} else {
			log.Info().Msg("nothing to roll back")
		}

	case "status":
		statuses, err := migrator.Status(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("migrate status")
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Version", "File", "Applied", "Applied At")
		for _, st := range statuses {
			appliedAt := "-"
			if st.Applied {
				appliedAt = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			_ = table.Append(st.Version, st.Filename, fmt.Sprint(st.Applied), appliedAt)
		}
		_ = table.Render()

	default:
		usage()
		os.Exit(2)
	}
}
