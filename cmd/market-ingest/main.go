package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahmethakanbesel/market-ingest/internal/config"
	"github.com/ahmethakanbesel/market-ingest/internal/job"
	"github.com/ahmethakanbesel/market-ingest/internal/market"
	"github.com/ahmethakanbesel/market-ingest/internal/observability"
	"github.com/ahmethakanbesel/market-ingest/internal/pipeline"
	"github.com/ahmethakanbesel/market-ingest/internal/platform/postgres"
	"github.com/ahmethakanbesel/market-ingest/internal/platform/sqlite"
	jobrepo "github.com/ahmethakanbesel/market-ingest/internal/repository/job"
	marketrepo "github.com/ahmethakanbesel/market-ingest/internal/repository/market"
	"github.com/ahmethakanbesel/market-ingest/internal/server"
	"github.com/ahmethakanbesel/market-ingest/internal/source"
)

func main() {
	if err := run(); err != nil {
		slog.Error("market-ingest stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg))

	// Root context: cancelled on SIGINT/SIGTERM so the scheduler and
	// in-flight requests stop promptly.
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(rootCtx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	metrics := observability.NewMetrics("market_ingest", nil)

	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return err
	}
	registry, err := source.Build(sources, source.Hooks{OnDrift: metrics.RecordDrift})
	if err != nil {
		return err
	}
	slog.Info("sources registered", "sources", registry.Names())

	tracker := job.NewTracker(st.jobs)
	p := pipeline.New(registry, tracker, st.records,
		pipeline.WithMetrics(metrics),
		pipeline.WithRunTimeout(cfg.RunTimeout),
	)
	scheduler := pipeline.NewScheduler(p, cfg.IngestInterval, pipeline.WithRunOnStart(cfg.RunOnStart))

	srv := server.New(rootCtx, cfg.Port, server.Deps{
		Records:    market.NewService(st.records),
		Jobs:       job.NewService(st.jobs, job.WithInProgress(tracker.InProgress)),
		Sources:    registry,
		Trigger:    scheduler,
		Ping:       st.ping,
		Metrics:    metrics,
		RateLimit:  cfg.RateLimit,
		RateWindow: cfg.RateWindow,
	})

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		scheduler.Run(ctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		// Then drain connections with a deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("server stopped")
	return err
}

type store struct {
	records market.Repository
	jobs    job.Repository
	ping    func(ctx context.Context) error
	close   func()
}

func openStore(ctx context.Context, cfg config.Config) (*store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		slog.Info("store opened", "driver", cfg.DBDriver)
		return &store{
			records: marketrepo.NewPostgresRepository(pool),
			jobs:    jobrepo.NewPostgresRepository(pool),
			ping:    pool.Ping,
			close:   pool.Close,
		}, nil
	default:
		db, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		slog.Info("store opened", "driver", cfg.DBDriver, "path", cfg.DBPath)
		return &store{
			records: marketrepo.NewRepository(db.DB),
			jobs:    jobrepo.NewRepository(db.DB),
			ping:    db.Ping,
			close:   func() { _ = db.Close() },
		}, nil
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
