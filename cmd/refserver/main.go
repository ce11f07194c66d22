// Command refserver serves the method reference catalog over HTTP: category
// and method lookups plus ranked search for the learning dashboard.
//
// Usage:
//
//	go run ./cmd/refserver [-config configs/development.yaml]
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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pydash/methodref/internal/analytics"
	"github.com/pydash/methodref/internal/catalog"
	"github.com/pydash/methodref/internal/searcher/cache"
	"github.com/pydash/methodref/internal/searcher/executor"
	"github.com/pydash/methodref/internal/searcher/handler"
	"github.com/pydash/methodref/internal/searcher/suggest"
	"github.com/pydash/methodref/pkg/config"
	"github.com/pydash/methodref/pkg/kafka"
	"github.com/pydash/methodref/pkg/logger"
	"github.com/pydash/methodref/pkg/metrics"
	"github.com/pydash/methodref/pkg/middleware"
	"github.com/pydash/methodref/pkg/ratelimit"
	pkgredis "github.com/pydash/methodref/pkg/redis"
	"github.com/pydash/methodref/pkg/resilience"
	"github.com/pydash/methodref/pkg/tracing"
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
	slog.Info("starting method reference service",
		"port", cfg.Server.Port,
		"catalog_source", cfg.Catalog.Source,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("method reference service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()

	bootCtx, boot := tracing.Start(ctx, "startup")
	bootLog := slog.Default().With("component", "startup")

	_, span := tracing.Start(bootCtx, "load_catalog")
	span.SetAttr("source", cfg.Catalog.Source)
	cat, err := loadCatalog(ctx, cfg)
	if err != nil {
		span.Fail(err)
		boot.Fail(err)
		boot.Log(bootLog)
		return fmt.Errorf("loading catalog: %w", err)
	}
	span.SetAttr("categories", cat.Len())
	span.SetAttr("entries", cat.EntryCount())
	span.End()
	m.CatalogCategories.Set(float64(cat.Len()))
	m.CatalogEntries.Set(float64(cat.EntryCount()))

	_, span = tracing.Start(bootCtx, "build_index")
	exec := executor.New(cat)
	var suggester *suggest.Suggester
	if cfg.Suggest.Enabled {
		suggester = suggest.New(cat, cfg.Suggest)
		span.SetAttr("vocabulary", suggester.VocabularySize())
	}
	span.End()

	_, span = tracing.Start(bootCtx, "connect_cache")
	redisClient, queryCache := connectCache(ctx, cfg, m)
	span.SetAttr("enabled", queryCache != nil)
	span.End()
	if redisClient != nil {
		defer redisClient.Close()
	}

	boot.End()
	boot.Log(bootLog)

	g, gctx := errgroup.WithContext(ctx)

	aggregator := analytics.NewAggregator(analytics.WithMaxTrackedKeys(cfg.Analytics.MaxTrackedKeys))
	trackers := []analytics.Tracker{aggregator}
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, cfg.Analytics, m.AnalyticsDropped.Inc)
		collector.Start(gctx)
		defer collector.Close()
		trackers = append(trackers, collector)
		slog.Info("analytics publishing enabled", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	h := handler.New(handler.Deps{
		Catalog:   cat,
		Executor:  exec,
		Suggester: suggester,
		Cache:     queryCache,
		Tracker:   analytics.Fanout(trackers...),
		Metrics:   m,
	}, cfg.Search)

	checker := newChecker(cat, redisClient, cfg.Redis.Enabled)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.CORS(corsConfig(cfg.Server)),
	}
	if cfg.RateLimit.Enabled {
		trusted, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
		if err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
		limiter := ratelimit.New(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)
		defer limiter.Stop()
		mws = append(mws, middleware.RateLimit(limiter, trusted...))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.RequestTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Metrics.Enabled {
		ops := metrics.NewServer(cfg.Metrics.Port)
		ops.Handle("GET /health/live", checker.LiveHandler())
		ops.Handle("GET /health/ready", checker.ReadyHandler())
		ops.Handle("/debug/loglevel", logger.LevelHandler())
		g.Go(func() error { return ops.Run(gctx) })
	}

	g.Go(func() error {
		slog.Info("method reference service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		checker.Drain()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// connectCache returns nil values when redis is disabled or unreachable;
// search then runs uncached.
func connectCache(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*pkgredis.Client, *cache.QueryCache) {
	if !cfg.Redis.Enabled {
		slog.Info("search cache disabled by config")
		return nil, nil
	}
	client, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
		return nil, nil
	}
	breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		OnStateChange: func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	m.CircuitBreakerState.WithLabelValues(breaker.Name()).Set(float64(resilience.StateClosed))
	slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	return client, cache.New(client, cfg.Redis.CacheTTL, breaker)
}

func corsConfig(s config.ServerConfig) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	if len(s.AllowOrigins) > 0 {
		c.AllowOrigins = s.AllowOrigins
	}
	return c
}
