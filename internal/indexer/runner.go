package indexer

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/openwebindex/platform/internal/index"
)

// IndexBatch runs the full ingestion pass over a set of TSV batch files:
// leftover spill is discarded, the files are indexed by a bounded worker
// pool with the background merger running, every level is merged, the hash
// tables are sorted, and the optimize pass rewrites word scores. A failed
// file aborts the batch after in-flight files finish.
func (ix *Indexer) IndexBatch(ctx context.Context, locations []string) error {
	start := time.Now()
	ix.log.Info("batch starting", "files", len(locations))

	if err := ix.truncateCaches(); err != nil {
		return err
	}

	merger := NewMerger(ix.cfg.Index.MergeInterval, ix.domains, ix.urls, ix.words, ix.links, ix.urlLinks)
	merger.Start(ctx)

	err := ix.runWorkers(ctx, locations, func(w *worker, location string) error {
		return w.processFile(ctx, location)
	})
	merger.Stop()
	if err != nil {
		return err
	}

	if err := ix.mergeAll(ctx); err != nil {
		return err
	}
	if err := ix.sortTables(); err != nil {
		return err
	}
	if ix.urlStore != nil {
		if err := ix.meta.flush(ctx, ix.urlStore); err != nil {
			return err
		}
	}
	if err := ix.Optimize(ctx); err != nil {
		return err
	}

	ix.log.Info("batch finished",
		"files", len(locations), "duration", time.Since(start))
	return nil
}

// IndexLinkBatch ingests link batch files into the domain link level.
func (ix *Indexer) IndexLinkBatch(ctx context.Context, locations []string) error {
	start := time.Now()
	ix.log.Info("link batch starting", "files", len(locations))

	merger := NewMerger(ix.cfg.Index.MergeInterval, ix.links, ix.urlLinks)
	merger.Start(ctx)
	err := ix.runWorkers(ctx, locations, func(w *worker, location string) error {
		return w.processLinkFile(ctx, location)
	})
	merger.Stop()
	if err != nil {
		return err
	}

	if err := ix.links.Merge(ctx); err != nil {
		return err
	}
	if err := ix.urlLinks.Merge(ctx); err != nil {
		return err
	}
	if err := ix.domainTable.Sort(); err != nil {
		return err
	}

	ix.log.Info("link batch finished",
		"files", len(locations), "duration", time.Since(start))
	return nil
}

func (ix *Indexer) runWorkers(ctx context.Context, locations []string, fn func(*worker, string) error) error {
	threads := ix.cfg.Index.IngestThreads
	if threads <= 0 {
		threads = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	for i, location := range locations {
		i, location := i, location
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return fn(newWorker(ix, i), location)
		})
	}
	return g.Wait()
}

func (ix *Indexer) mergeAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ix.domains.Merge(ctx) })
	g.Go(func() error { return ix.urls.Merge(ctx) })
	g.Go(func() error { return ix.words.Merge(ctx) })
	g.Go(func() error { return ix.links.Merge(ctx) })
	g.Go(func() error { return ix.urlLinks.Merge(ctx) })
	return g.Wait()
}

func (ix *Indexer) sortTables() error {
	if err := ix.urlTable.Sort(); err != nil {
		return err
	}
	return ix.domainTable.Sort()
}

func (ix *Indexer) truncateCaches() error {
	var result *multierror.Error
	for _, err := range []error{
		ix.domains.TruncateCaches(),
		ix.urls.TruncateCaches(),
		ix.words.TruncateCaches(),
		ix.links.TruncateCaches(),
		ix.urlLinks.TruncateCaches(),
	} {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Optimize rewrites the word level so scores become occurrence frequency,
// count over document size, and refreshes the persisted common-word set
// from the domain level's pre-truncation totals.
func (ix *Indexer) Optimize(ctx context.Context) error {
	err := ix.words.Rewrite(ctx, func(key uint64, records []index.CountedRecord) []index.CountedRecord {
		for i, record := range records {
			size := ix.meta.docSize(record.Value)
			if size == 0 && ix.urlStore != nil {
				stored, err := ix.urlStore.DocSize(ctx, record.Value)
				if err == nil {
					size = stored
				}
			}
			if size == 0 {
				continue
			}
			records[i] = record.WithScore(float32(record.Count) / float32(size))
		}
		return records
	})
	if err != nil {
		return err
	}

	threshold := ix.cfg.Index.CommonWordThreshold
	if threshold == 0 {
		threshold = 100
	}
	common, err := ix.domains.CommonKeys(threshold)
	if err != nil {
		return err
	}
	keys := make([]uint64, 0, len(common))
	for key := range common {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	ix.log.Info("common word set refreshed", "words", len(keys), "threshold", threshold)

	if ix.urlStore != nil {
		return ix.urlStore.PutCommonWords(ctx, keys)
	}
	return nil
}

// Truncate clears every level and hash table, dropping all indexed data.
func (ix *Indexer) Truncate() error {
	var result *multierror.Error
	for _, err := range []error{
		ix.domains.Truncate(),
		ix.urls.Truncate(),
		ix.words.Truncate(),
		ix.links.Truncate(),
		ix.urlLinks.Truncate(),
		ix.urlTable.Truncate(),
		ix.domainTable.Truncate(),
	} {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
