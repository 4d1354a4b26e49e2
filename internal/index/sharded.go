package index

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/openwebindex/platform/pkg/config"
	apperrors "github.com/openwebindex/platform/pkg/errors"
	"github.com/openwebindex/platform/pkg/logger"
	"github.com/openwebindex/platform/pkg/metrics"
)

// Index is the sharded facade over one index level. Keys are routed to
// shards by key mod NumShards; each shard owns a builder for writes and a
// reader for lookups. All methods are safe for concurrent use.
type Index[R Record[R]] struct {
	cfg    config.IndexConfig
	dbName string
	log    *slog.Logger
	m      *metrics.Metrics

	shards []*shardState[R]
}

type shardState[R Record[R]] struct {
	mu      sync.Mutex
	builder *Builder[R]
	reader  *Shard[R]
}

// NewIndex creates the facade and the shard directories on every mount.
func NewIndex[R Record[R]](cfg config.IndexConfig, dbName string, m *metrics.Metrics) (*Index[R], error) {
	if err := createDirectories(cfg, dbName); err != nil {
		return nil, err
	}
	log := logger.WithComponent("index").With("db", dbName)
	idx := &Index[R]{
		cfg:    cfg,
		dbName: dbName,
		log:    log,
		m:      m,
		shards: make([]*shardState[R], cfg.NumShards),
	}
	for i := range idx.shards {
		idx.shards[i] = &shardState[R]{
			builder: NewBuilder[R](cfg, dbName, i, log),
			reader:  NewShard[R](cfg, dbName, i),
		}
	}
	if m != nil {
		m.ActiveShards.Add(float64(cfg.NumShards))
	}
	return idx, nil
}

// DBName returns the index level name.
func (idx *Index[R]) DBName() string { return idx.dbName }

// NumShards returns the shard count.
func (idx *Index[R]) NumShards() int { return idx.cfg.NumShards }

// NewShardBuilder returns a builder private to the caller for one shard.
// Ingestion workers buffer into their own builders and hand them to
// AppendBuilder so spill writes stay serialized per shard.
func (idx *Index[R]) NewShardBuilder(shardID int) *Builder[R] {
	return NewBuilder[R](idx.cfg, idx.dbName, shardID, idx.log)
}

// AppendBuilder flushes a worker-owned builder's buffer to its shard's spill
// files under the shard lock.
func (idx *Index[R]) AppendBuilder(b *Builder[R]) error {
	state := idx.shards[b.ShardID()]
	state.mu.Lock()
	written, err := b.Append()
	state.mu.Unlock()
	if idx.m != nil {
		if err != nil {
			idx.m.ShardAppendsTotal.WithLabelValues("error").Inc()
		} else {
			idx.m.ShardAppendsTotal.WithLabelValues("ok").Inc()
			idx.m.SpillBytesTotal.Add(float64(written))
		}
	}
	return err
}

// Add buffers one record in the facade's own builder for the key's shard and
// flushes to the spill files when the buffer fills.
func (idx *Index[R]) Add(key uint64, record R) error {
	state := idx.shards[ShardID(key, idx.cfg.NumShards)]
	state.mu.Lock()
	defer state.mu.Unlock()
	state.builder.Add(key, record)
	if state.builder.NeedsAppend() {
		if _, err := state.builder.Append(); err != nil {
			return err
		}
	}
	return nil
}

// Flush appends every shard's buffered records to the spill files.
func (idx *Index[R]) Flush() error {
	var result *multierror.Error
	for _, state := range idx.shards {
		state.mu.Lock()
		_, err := state.builder.Append()
		state.mu.Unlock()
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Find returns the posting list for key from the shard that owns it.
func (idx *Index[R]) Find(key uint64) (Result[R], error) {
	start := time.Now()
	state := idx.shards[ShardID(key, idx.cfg.NumShards)]
	result, err := state.reader.Find(key)
	if idx.m != nil {
		idx.m.PostingReadsTotal.Inc()
		idx.m.PostingReadLatency.Observe(time.Since(start).Seconds())
	}
	return result, err
}

// Merge flushes buffers and merges every shard, MergeThreads shards at a
// time. Shard failures do not stop the remaining shards; all errors are
// collected and returned together.
func (idx *Index[R]) Merge(ctx context.Context) error {
	return idx.merge(ctx, false)
}

// MergeIfNeeded merges only the shards whose spill files have grown past the
// configured limit.
func (idx *Index[R]) MergeIfNeeded(ctx context.Context) error {
	return idx.merge(ctx, true)
}

func (idx *Index[R]) merge(ctx context.Context, onlyOversized bool) error {
	threads := idx.cfg.MergeThreads
	if threads <= 0 {
		threads = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	var mu sync.Mutex
	var result *multierror.Error

	for _, state := range idx.shards {
		state := state
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := idx.mergeShard(state, onlyOversized); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (idx *Index[R]) mergeShard(state *shardState[R], onlyOversized bool) error {
	state.mu.Lock()
	defer state.mu.Unlock()

	if _, err := state.builder.Append(); err != nil {
		return err
	}
	if onlyOversized {
		size, err := state.builder.CacheSize()
		if err != nil {
			return err
		}
		if size < idx.cfg.MaxCacheFileSize {
			return nil
		}
	}

	start := time.Now()
	err := state.builder.Merge()
	if idx.m != nil {
		idx.m.MergeDuration.Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			idx.m.ShardMergesTotal.WithLabelValues("ok").Inc()
		case apperrors.IsCorrupt(err):
			idx.m.ShardMergesTotal.WithLabelValues("corrupt").Inc()
		default:
			idx.m.ShardMergesTotal.WithLabelValues("error").Inc()
		}
	}
	if err != nil {
		return err
	}
	state.reader.Reopen()

	if idx.m != nil {
		if estimate, err := state.builder.UniqueValueEstimate(); err == nil {
			idx.m.UniqueKeysEstimate.
				WithLabelValues(shardLabel(state.builder.ShardID())).
				Set(float64(estimate))
		}
	}
	return nil
}

// Rewrite applies transform to every posting list in every shard,
// MergeThreads shards at a time. Readers are reopened as each shard is
// rewritten.
func (idx *Index[R]) Rewrite(ctx context.Context, transform func(key uint64, records []R) []R) error {
	threads := idx.cfg.MergeThreads
	if threads <= 0 {
		threads = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	var mu sync.Mutex
	var result *multierror.Error

	for _, state := range idx.shards {
		state := state
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			state.mu.Lock()
			err := state.builder.Rewrite(transform)
			if err == nil {
				state.reader.Reopen()
			}
			state.mu.Unlock()
			if err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// TruncateCaches discards buffered and spilled records in every shard
// without touching the page files.
func (idx *Index[R]) TruncateCaches() error {
	var result *multierror.Error
	for _, state := range idx.shards {
		state.mu.Lock()
		err := state.builder.TruncateCache()
		state.mu.Unlock()
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Truncate removes all on-disk and buffered state for every shard.
func (idx *Index[R]) Truncate() error {
	var result *multierror.Error
	for _, state := range idx.shards {
		state.mu.Lock()
		err := state.builder.Truncate()
		state.reader.Reopen()
		state.mu.Unlock()
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Close releases every shard reader's file handles.
func (idx *Index[R]) Close() {
	for _, state := range idx.shards {
		state.reader.Close()
	}
	if idx.m != nil {
		idx.m.ActiveShards.Sub(float64(idx.cfg.NumShards))
	}
}

// UniqueKeyCount sums the exact per-shard unique key counts.
func (idx *Index[R]) UniqueKeyCount() (uint64, error) {
	var total uint64
	for _, state := range idx.shards {
		count, err := state.builder.UniqueKeyCount()
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

// ForEach streams every posting list in the index through fn, shard by
// shard. fn must not retain the records slice. Iteration stops on the first
// error.
func (idx *Index[R]) ForEach(fn func(key uint64, records []R, total uint64) error) error {
	for shardID := 0; shardID < idx.cfg.NumShards; shardID++ {
		paths := newShardPaths(idx.cfg, idx.dbName, shardID)
		f, err := os.Open(paths.data())
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return apperrors.Newf(apperrors.ErrShardIO, "opening page file for shard %d: %v", shardID, err)
		}
		err = idx.forEachPage(f, fn)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index[R]) forEachPage(f *os.File, fn func(uint64, []R, uint64) error) error {
	reader := bufio.NewReaderSize(f, idx.cfg.BufferLen)
	var records []R
	for {
		header, err := readPageHeader(reader, idx.cfg.MaxNumKeys)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if apperrors.IsCorrupt(err) {
				return err
			}
			return nil
		}
		payload := make([]byte, header.dataSize())
		if _, err := io.ReadFull(reader, payload); err != nil {
			return nil
		}
		for i, key := range header.keys {
			start := header.offsets[i]
			end := start + header.lengths[i]
			if end > uint64(len(payload)) {
				return apperrors.Newf(apperrors.ErrCorruptShard,
					"page payload overrun for key %d", key)
			}
			records = decodeRecords(payload[start:end], records[:0])
			if err := fn(key, records, header.totals[i]); err != nil {
				return err
			}
		}
	}
}

// CommonKeys scans every shard's page file and returns the keys whose
// pre-truncation posting count meets threshold. Used to build the common
// word list that query planning deprioritizes.
func (idx *Index[R]) CommonKeys(threshold uint64) (map[uint64]uint64, error) {
	common := make(map[uint64]uint64)
	for shardID := 0; shardID < idx.cfg.NumShards; shardID++ {
		paths := newShardPaths(idx.cfg, idx.dbName, shardID)
		if err := idx.scanKeys(paths.data(), threshold, common); err != nil {
			return nil, err
		}
	}
	return common, nil
}

func (idx *Index[R]) scanKeys(path string, threshold uint64, out map[uint64]uint64) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperrors.Newf(apperrors.ErrShardIO, "opening page file %s: %v", path, err)
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, idx.cfg.BufferLen)
	for {
		header, err := readPageHeader(reader, idx.cfg.MaxNumKeys)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if apperrors.IsCorrupt(err) {
				return err
			}
			return nil
		}
		for i, key := range header.keys {
			if header.totals[i] >= threshold {
				out[key] = header.totals[i]
			}
		}
		if _, err := io.CopyN(io.Discard, reader, int64(header.dataSize())); err != nil {
			return nil
		}
	}
}

func shardLabel(shardID int) string {
	return strconv.Itoa(shardID)
}
