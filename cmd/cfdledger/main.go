package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"CfdLedger/internal/config"
	"CfdLedger/internal/core"
	"CfdLedger/internal/governance"
	"CfdLedger/internal/ingestion"
	"CfdLedger/internal/observability"
	"CfdLedger/internal/persistence"
	"CfdLedger/internal/projection"
	"CfdLedger/internal/query"
	"CfdLedger/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("CFD_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := observability.NewLoggerWithLevel(cfg.Service.Name, observability.ParseLogLevel(cfg.Service.LogLevel))

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("cfdledger exited")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().Str("driver", cfg.Storage.Driver).Msg("CfdLedger starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Storage ---
	dialect := cfg.Dialect()
	db, err := persistence.Open(ctx, dialect, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if dialect == persistence.DialectPostgres {
		db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
	}

	migrator := persistence.NewMigrator(db, dialect, persistence.EmbeddedMigrations(dialect), log.With().Str("component", "migrate").Logger())
	applied, err := migrator.Up(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Int("applied", applied).Msg("migrations up to date")

	// --- Observability ---
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	healthChecker := observability.NewHealthChecker()

	// --- Deterministic core ---
	// The persist channel blocks (backpressure); the projection channel drops.
	persistChan := make(chan core.CoreOutput, cfg.Core.PersistChanSize)
	projectionChan := make(chan core.CoreOutput, cfg.Core.ProjectionChanSize)

	coreCfg := cfg.CoreConfig()
	coreCfg.Handlers = governance.LoggingHandlers(log.With().Str("component", "governance").Logger())
	clock := core.NewWallClock(cfg.Core.GenesisTime)
	coreLog := log.With().Str("component", "core").Logger()
	deterministicCore := core.NewDeterministicCore(coreCfg, core.Deps{
		Clock:          clock,
		PersistChan:    persistChan,
		ProjectionChan: projectionChan,
		DBChecker:      persistence.NewIdempotencyStore(db, dialect),
		Metrics:        metrics,
		Logger:         &coreLog,
	})

	// --- Recovery: snapshot + replay ---
	snapMgr := persistence.NewSnapshotManager(db, dialect)
	recovery := &persistence.Recovery{
		Snapshots: snapMgr,
		WarmKeys:  coreCfg.IdempotencyCapacity,
		Metrics:   metrics,
		Log:       log.With().Str("component", "recovery").Logger(),
	}
	res, err := recovery.Run(ctx, deterministicCore)
	if err != nil {
		return fmt.Errorf("recovery: %w", err)
	}
	clock.AtLeast(res.Height)

	// --- Workers ---
	var workers sync.WaitGroup
	errChan := make(chan error, 8)

	persistWorker := persistence.NewPersistenceWorker(db, dialect, deterministicCore.Codec(), persistChan,
		cfg.Persistence.BatchSize, cfg.Persistence.FlushInterval, metrics,
		log.With().Str("component", "persistence").Logger())
	persistWorker.SetLastPersisted(res.Sequence)
	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		// Stops when persistChan is closed after the core has stopped.
		if err := persistWorker.Run(context.Background()); err != nil {
			log.Error().Err(err).Msg("persistence worker")
		}
	}()

	snapshotter := persistence.NewSnapshotter(deterministicCore, snapMgr, persistWorker.LastPersisted, coreCfg,
		cfg.Snapshot.Interval, cfg.Snapshot.Keep, metrics, log.With().Str("component", "snapshot").Logger())
	workers.Add(1)
	go func() {
		defer workers.Done()
		snapshotter.Run(ctx, cfg.Snapshot.CheckEvery)
	}()

	fanout := projection.NewFanout(projectionChan, metrics)

	var sink *projection.ClickHouseSink
	if cfg.ClickHouse.DSN != "" {
		sink, err = projection.NewClickHouseSink(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		defer sink.Close()
		if err := sink.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
		healthChecker.AddCheck("clickhouse", sink.Ping)
		chWorker := projection.NewProjectionWorker("clickhouse", sink, fanout.Subscribe("clickhouse", cfg.ClickHouse.BatchSize*4),
			cfg.ClickHouse.BatchSize, cfg.ClickHouse.FlushInterval, metrics, log.With().Str("component", "clickhouse").Logger())
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := chWorker.Run(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("clickhouse projection")
			}
		}()
	}

	hub := server.NewStreamHub(fanout.Subscribe("stream", 1024), metrics, log.With().Str("component", "stream").Logger())
	workers.Add(1)
	go func() {
		defer workers.Done()
		hub.Run(context.Background())
	}()

	// --- NATS ---
	ingest := ingestion.NewIngestService(deterministicCore, metrics, log.With().Str("component", "ingest").Logger())
	var (
		nc         *nats.Conn
		subscriber *ingestion.NATSSubscriber
	)
	if cfg.NATS.URL != "" {
		var js jetstream.JetStream
		nc, js, err = ingestion.ConnectNATS(cfg.NATS.URL, log.With().Str("component", "nats").Logger())
		if err != nil {
			return err
		}
		defer nc.Close()
		if err := ingestion.EnsureStreams(ctx, js, cfg.NATS.MaxAge); err != nil {
			return fmt.Errorf("ensure NATS streams: %w", err)
		}
		healthChecker.AddCheck("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		})

		publisher := ingestion.NewOutboundPublisher(js, fanout.Subscribe("nats", 4096), metrics,
			log.With().Str("component", "publisher").Logger())
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := publisher.Run(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("outbound publisher")
			}
		}()

		subscriber = ingestion.NewNATSSubscriber(js, ingest, ingestion.SubscriberConfig{
			ConsumerName: cfg.NATS.Consumer,
			AckWait:      cfg.NATS.AckWait,
			MaxDeliver:   cfg.NATS.MaxDeliver,
		}, log.With().Str("component", "subscriber").Logger())
	}

	fanoutDone := make(chan struct{})
	go func() {
		defer close(fanoutDone)
		// Stops when projectionChan is closed and closes every subscriber.
		fanout.Run(context.Background())
	}()

	// --- Core loop ---
	coreDone := make(chan struct{})
	go func() {
		defer close(coreDone)
		deterministicCore.Run(ctx)
	}()

	if subscriber != nil {
		if err := subscriber.Subscribe(ctx); err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
	}

	// --- Servers ---
	healthChecker.AddCheck("database", db.PingContext)
	healthChecker.ReportSequence(deterministicCore.GetSequence)

	grpcServer := server.NewGRPCServer(cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, &server.ServerDeps{
		Query:         query.NewQueryService(deterministicCore, db, dialect),
		Ingest:        ingest,
		Stream:        hub,
		Snapshots:     snapshotter,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Log:           log.With().Str("component", "server").Logger(),
		RateLimit:     cfg.Server.RateLimit,
		RateBurst:     cfg.Server.RateBurst,
	})
	go func() { errChan <- grpcServer.StartGRPC(ctx) }()
	go func() { errChan <- grpcServer.StartHTTPGateway(ctx) }()
	go func() { errChan <- serveMetrics(ctx, cfg.Server.MetricsAddr, log) }()

	healthChecker.SetReady(true)
	grpcServer.SetServing(true)
	log.Info().
		Int64("sequence", res.Sequence).
		Str("grpc", cfg.Server.GRPCAddr).
		Str("http", cfg.Server.HTTPAddr).
		Str("metrics", cfg.Server.MetricsAddr).
		Msg("CfdLedger ready")

	// --- Wait for shutdown ---
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		if err != nil {
			log.Error().Err(err).Msg("server failed, shutting down")
		}
	}

	// --- Graceful shutdown ---
	// Stop intake, stop the core, then drain every consumer of its output
	// before the final snapshot.
	healthChecker.SetReady(false)
	grpcServer.SetServing(false)
	if subscriber != nil {
		subscriber.Stop()
	}
	cancel()
	<-coreDone

	close(persistChan)
	<-persistDone
	close(projectionChan)
	<-fanoutDone
	workers.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if seq, err := snapshotter.FinalSnapshot(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("final snapshot failed")
	} else {
		log.Info().Int64("seq", seq).Msg("final snapshot saved")
	}

	log.Info().Int64("last_persisted", persistWorker.LastPersisted()).Msg("CfdLedger shutdown complete")
	return nil
}

func serveMetrics(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = srv.Shutdown(shutCtx)
	}()
	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
