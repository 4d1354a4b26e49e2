package indexer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openwebindex/platform/pkg/logger"
)

// mergeTarget is the slice of the index facade the merger drives.
type mergeTarget interface {
	DBName() string
	MergeIfNeeded(ctx context.Context) error
}

// Merger runs in the background during ingestion and folds oversized spill
// files into their page files so the spill never grows unbounded. Pause
// stops merging while leaving appends untouched; Stop ends the loop.
type Merger struct {
	interval time.Duration
	targets  []mergeTarget
	log      *slog.Logger

	paused atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMerger builds a merger over the given levels.
func NewMerger(interval time.Duration, targets ...mergeTarget) *Merger {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Merger{
		interval: interval,
		targets:  targets,
		log:      logger.WithComponent("merger"),
	}
}

// Start launches the merge loop. Calling Start on a running merger is a
// no-op.
func (m *Merger) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
	m.log.Info("background merger started", "interval", m.interval)
}

func (m *Merger) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if m.paused.Load() {
			continue
		}
		for _, target := range m.targets {
			if err := target.MergeIfNeeded(ctx); err != nil {
				m.log.Error("background merge failed",
					"level", target.DBName(), "error", err)
			}
		}
	}
}

// Pause suspends merging until Resume. Appends continue; the final merge
// pass picks up whatever accumulated.
func (m *Merger) Pause() { m.paused.Store(true) }

// Resume re-enables merging after Pause.
func (m *Merger) Resume() { m.paused.Store(false) }

// Stop ends the merge loop and waits for the current pass to finish.
func (m *Merger) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.log.Info("background merger stopped")
}
