package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/openwebindex/platform/internal/domainstats"
	"github.com/openwebindex/platform/internal/hashtable"
	"github.com/openwebindex/platform/internal/index"
	"github.com/openwebindex/platform/internal/searcher"
	"github.com/openwebindex/platform/internal/urlstore"
	"github.com/openwebindex/platform/pkg/config"
	"github.com/openwebindex/platform/pkg/health"
	"github.com/openwebindex/platform/pkg/logger"
	"github.com/openwebindex/platform/pkg/metrics"
	"github.com/openwebindex/platform/pkg/postgres"
	pkgredis "github.com/openwebindex/platform/pkg/redis"
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
	slog.Info("starting search service",
		"port", cfg.Server.Port, "shards", cfg.Index.NumShards)

	m := metrics.New()

	levels, err := openLevels(cfg.Index, m)
	if err != nil {
		slog.Error("failed to open index levels", "error", err)
		os.Exit(1)
	}
	urlTable, err := hashtable.New(cfg.Index, "urls")
	if err != nil {
		slog.Error("failed to open url table", "error", err)
		os.Exit(1)
	}

	var store *urlstore.Store
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		store = urlstore.New(redisClient)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var stats *domainstats.Store
	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, centrality boost disabled", "error", err)
	} else {
		defer pgClient.Close()
		stats, err = domainstats.New(ctx, pgClient)
		if err != nil {
			slog.Warn("domain stats unavailable", "error", err)
			stats = nil
		}
	}

	executor := searcher.NewExecutor(cfg.Search, levels, urlTable, store, stats, m)
	cached := searcher.NewCachedSearcher(executor, redisClient, cfg.Redis.CacheTTL, m)
	apiHandler := searcher.NewHandler(cached, m)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if levels.Words.NumShards() > 0 {
			return health.ComponentHealth{
				Status:  health.StatusUp,
				Message: fmt.Sprintf("%d shards active", levels.Words.NumShards()),
			}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "no shards"}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	apiHandler.Register(mux)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func openLevels(cfg config.IndexConfig, m *metrics.Metrics) (searcher.Levels, error) {
	domains, err := index.NewIndex[index.DomainRecord](cfg, index.LevelDomain.String(), m)
	if err != nil {
		return searcher.Levels{}, err
	}
	urls, err := index.NewIndex[index.URLRecord](cfg, index.LevelURL.String(), m)
	if err != nil {
		return searcher.Levels{}, err
	}
	words, err := index.NewIndex[index.CountedRecord](cfg, index.LevelWord.String(), m)
	if err != nil {
		return searcher.Levels{}, err
	}
	links, err := index.NewIndex[index.DomainRecord](cfg, index.LevelLink.String(), m)
	if err != nil {
		return searcher.Levels{}, err
	}
	urlLinks, err := index.NewIndex[index.URLRecord](cfg, index.LevelURLLink.String(), m)
	if err != nil {
		return searcher.Levels{}, err
	}
	return searcher.Levels{
		Domains:  domains,
		URLs:     urls,
		Words:    words,
		Links:    links,
		URLLinks: urlLinks,
	}, nil
}
