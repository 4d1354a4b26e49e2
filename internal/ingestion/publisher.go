// Package ingestion defines the batch notification contract and the
// submission-side publisher that announces new TSV batches to the indexer.
package ingestion

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openwebindex/platform/pkg/config"
	"github.com/openwebindex/platform/pkg/kafka"
	"github.com/openwebindex/platform/pkg/logger"
)

// Batch kinds accepted by the indexer.
const (
	BatchKindText  = "text"
	BatchKindLinks = "links"
)

// BatchNotice announces a set of batch files ready for indexing.
type BatchNotice struct {
	BatchID string   `json:"batch_id"`
	Kind    string   `json:"kind"`
	Files   []string `json:"files"`
}

// BatchComplete reports a finished batch on the completion topic.
type BatchComplete struct {
	BatchID    string `json:"batch_id"`
	Kind       string `json:"kind"`
	Files      int    `json:"files"`
	DurationMS int64  `json:"duration_ms"`
}

// Publisher announces batches on the batch-ready topic.
type Publisher struct {
	producer *kafka.Producer
	log      *slog.Logger
}

// NewPublisher creates a publisher for the configured batch-ready topic.
func NewPublisher(cfg config.KafkaConfig) *Publisher {
	return &Publisher{
		producer: kafka.NewProducer(cfg, cfg.Topics.BatchReady),
		log:      logger.WithComponent("batch-publisher"),
	}
}

// Announce publishes one batch notice and returns its generated identifier.
func (p *Publisher) Announce(ctx context.Context, kind string, files []string) (string, error) {
	notice := BatchNotice{
		BatchID: uuid.NewString(),
		Kind:    kind,
		Files:   files,
	}
	event := kafka.Event{Key: notice.BatchID, Value: notice}
	if err := p.producer.Publish(ctx, event); err != nil {
		return "", err
	}
	p.log.Info("batch announced",
		"batch_id", notice.BatchID, "kind", kind, "files", len(files))
	return notice.BatchID, nil
}

// Close flushes and closes the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
