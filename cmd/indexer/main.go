package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/openwebindex/platform/internal/indexer"
	"github.com/openwebindex/platform/internal/indexer/consumer"
	"github.com/openwebindex/platform/internal/urlstore"
	"github.com/openwebindex/platform/pkg/config"
	"github.com/openwebindex/platform/pkg/logger"
	"github.com/openwebindex/platform/pkg/metrics"
	"github.com/openwebindex/platform/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	batch := flag.String("batch", "", "comma-separated batch files to index once instead of consuming from kafka")
	linkBatch := flag.Bool("links", false, "treat -batch files as link batches")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service",
		"shards", cfg.Index.NumShards,
		"mounts", cfg.Index.NumMounts,
		"ingest_threads", cfg.Index.IngestThreads,
	)

	m := metrics.New()
	shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownMetrics(ctx)
	}()

	var store *urlstore.Store
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, url metadata stays in memory", "error", err)
	} else {
		defer redisClient.Close()
		store = urlstore.New(redisClient)
	}

	ix, err := indexer.New(*cfg, store, m)
	if err != nil {
		slog.Error("failed to create indexer", "error", err)
		os.Exit(1)
	}
	defer ix.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *batch != "" {
		files := strings.Split(*batch, ",")
		if *linkBatch {
			err = ix.IndexLinkBatch(ctx, files)
		} else {
			err = ix.IndexBatch(ctx, files)
		}
		if err != nil {
			slog.Error("batch indexing failed", "error", err)
			os.Exit(1)
		}
		slog.Info("batch indexing finished", "files", len(files))
		return
	}

	batchConsumer := consumer.New(cfg.Kafka, ix)
	defer batchConsumer.Close()

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.BatchReady,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := batchConsumer.Run(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}
	slog.Info("indexer service stopped")
}
