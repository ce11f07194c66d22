// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search and lookup events from Kafka, aggregates them in memory
// (query volume, latency percentiles, cache hit rate, top and zero-result
// queries, missed ids), snapshots the aggregate to PostgreSQL, and exposes
// GET /api/v1/analytics for dashboards.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/pydash/methodref/internal/analytics"
	"github.com/pydash/methodref/internal/analytics/aggregator"
	"github.com/pydash/methodref/pkg/config"
	"github.com/pydash/methodref/pkg/health"
	"github.com/pydash/methodref/pkg/kafka"
	"github.com/pydash/methodref/pkg/logger"
	"github.com/pydash/methodref/pkg/middleware"
	"github.com/pydash/methodref/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator(analytics.WithMaxTrackedKeys(cfg.Analytics.MaxTrackedKeys))
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		st := consumer.Stats()
		status := health.StatusUp
		if st.Failed > st.Processed {
			status = health.StatusDegraded
		}
		return health.ComponentHealth{
			Status:  status,
			Message: fmt.Sprintf("processed %d, failed %d, lag %d", st.Processed, st.Failed, st.Lag),
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)
		return consumer.Start(gctx)
	})

	var snapshots aggregator.Lister
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "snapshots disabled"}
		})
	} else {
		defer db.Close()
		store := aggregator.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create analytics schema", "error", err)
			os.Exit(1)
		}
		if latest, err := store.Latest(ctx); err != nil {
			slog.Warn("could not read latest snapshot", "error", err)
		} else if latest != nil {
			slog.Info("previous snapshot found",
				"id", latest.ID,
				"captured_at", latest.CapturedAt,
				"total_searches", latest.Stats.TotalSearches,
			)
		}
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			res := health.PingCheck(db.Ping, health.StatusDegraded)(ctx)
			if res.Status == health.StatusUp {
				st := db.Stats()
				res.Message = fmt.Sprintf("pool: %d open, %d in use, %d waits", st.OpenConnections, st.InUse, st.WaitCount)
			}
			return res
		})
		snapshots = store
		g.Go(func() error {
			return store.Run(gctx, agg, cfg.Analytics.SnapshotInterval, cfg.Analytics.SnapshotRetention)
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	if snapshots != nil {
		mux.HandleFunc("GET /api/v1/analytics/snapshots", aggregator.SnapshotsHandler(snapshots))
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("/debug/loglevel", logger.LevelHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.CORS(middleware.DefaultCORSConfig())),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		checker.Drain()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
