// Package consumer receives batch-ready notifications from Kafka and drives
// the indexing runner, publishing a completion event per batch.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/openwebindex/platform/internal/indexer"
	"github.com/openwebindex/platform/internal/ingestion"
	"github.com/openwebindex/platform/pkg/config"
	"github.com/openwebindex/platform/pkg/kafka"
	"github.com/openwebindex/platform/pkg/logger"
)

// Consumer bridges the batch-ready topic to the indexer.
type Consumer struct {
	ix       *indexer.Indexer
	consumer *kafka.Consumer
	producer *kafka.Producer
	log      *slog.Logger
}

// New subscribes to the batch-ready topic. The producer publishes
// completion events and may be nil when no completion topic is configured.
func New(cfg config.KafkaConfig, ix *indexer.Indexer) *Consumer {
	c := &Consumer{
		ix:  ix,
		log: logger.WithComponent("batch-consumer"),
	}
	c.consumer = kafka.NewConsumer(cfg, cfg.Topics.BatchReady, c.handle)
	if cfg.Topics.IndexComplete != "" {
		c.producer = kafka.NewProducer(cfg, cfg.Topics.IndexComplete)
	}
	return c
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// Close releases the Kafka clients.
func (c *Consumer) Close() error {
	if c.producer != nil {
		c.producer.Close()
	}
	return c.consumer.Close()
}

func (c *Consumer) handle(ctx context.Context, key, value []byte) error {
	notice, err := kafka.DecodeJSON[ingestion.BatchNotice](value)
	if err != nil {
		// A malformed notice will never become valid; drop it so the
		// partition keeps moving.
		c.log.Error("dropping malformed batch notice", "key", string(key), "error", err)
		return nil
	}
	log := c.log.With("batch_id", notice.BatchID, "kind", notice.Kind, "files", len(notice.Files))
	log.Info("batch notice received")

	start := time.Now()
	switch notice.Kind {
	case ingestion.BatchKindLinks:
		err = c.ix.IndexLinkBatch(ctx, notice.Files)
	default:
		err = c.ix.IndexBatch(ctx, notice.Files)
	}
	if err != nil {
		log.Error("batch indexing failed", "error", err)
		return err
	}
	log.Info("batch indexed", "duration", time.Since(start))

	if c.producer != nil {
		event := kafka.Event{
			Key: notice.BatchID,
			Value: ingestion.BatchComplete{
				BatchID:    notice.BatchID,
				Kind:       notice.Kind,
				Files:      len(notice.Files),
				DurationMS: time.Since(start).Milliseconds(),
			},
		}
		if err := c.producer.Publish(ctx, event); err != nil {
			log.Warn("completion event not published", "error", err)
		}
	}
	return nil
}
