package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openwebindex/platform/internal/algorithm"
	"github.com/openwebindex/platform/internal/domainstats"
	"github.com/openwebindex/platform/internal/hashtable"
	"github.com/openwebindex/platform/internal/index"
	"github.com/openwebindex/platform/pkg/config"
	"github.com/openwebindex/platform/pkg/logger"
	"github.com/openwebindex/platform/pkg/metrics"
	"github.com/openwebindex/platform/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	threads := flag.Int("threads", 0, "worker threads, defaults to the merge thread count")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New()

	workers := *threads
	if workers <= 0 {
		workers = cfg.Index.MergeThreads
	}
	slog.Info("starting centrality computation", "threads", workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	links, err := index.NewIndex[index.DomainRecord](cfg.Index, index.LevelLink.String(), m)
	if err != nil {
		slog.Error("failed to open link level", "error", err)
		os.Exit(1)
	}
	defer links.Close()

	start := time.Now()
	graph := algorithm.NewGraph(func(yield func(source, target uint64)) {
		err := links.ForEach(func(target uint64, records []index.DomainRecord, total uint64) error {
			for _, r := range records {
				yield(r.Value, target)
			}
			return nil
		})
		if err != nil {
			slog.Error("failed to read link graph", "error", err)
			os.Exit(1)
		}
	})
	slog.Info("link graph loaded",
		"nodes", len(graph.Nodes), "load_duration", time.Since(start))

	if len(graph.Nodes) == 0 {
		slog.Info("link graph empty, nothing to compute")
		return
	}

	centrality, err := algorithm.HarmonicCentrality(ctx, graph, workers, m)
	if err != nil {
		slog.Error("centrality computation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("centrality computed", "domains", len(centrality), "duration", time.Since(start))

	domainTable, err := hashtable.New(cfg.Index, "domains")
	if err != nil {
		slog.Error("failed to open domain table", "error", err)
		os.Exit(1)
	}

	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer pgClient.Close()

	stats, err := domainstats.New(ctx, pgClient)
	if err != nil {
		slog.Error("failed to prepare domain stats", "error", err)
		os.Exit(1)
	}

	err = stats.UpsertCentrality(ctx, centrality, func(hash uint64) string {
		host, err := domainTable.Find(hash)
		if err != nil {
			return ""
		}
		return host
	})
	if err != nil {
		slog.Error("failed to store centrality", "error", err)
		os.Exit(1)
	}
	slog.Info("centrality stored", "domains", len(centrality), "total_duration", time.Since(start))
}
