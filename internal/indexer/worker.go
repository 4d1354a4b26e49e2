package indexer

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openwebindex/platform/internal/index"
	"github.com/openwebindex/platform/internal/indexer/tokenizer"
)

// columnWeights scores tokens by which TSV column they came from: title
// text outranks headings, which outrank body and link text.
var columnWeights = [4]float32{10, 3, 2, 1}

// urlTermWeight scores terms taken from the URL itself, on par with link
// text.
const urlTermWeight float32 = 1

// worker indexes batch files for one ingestion goroutine. It owns private
// per-shard builders for every level; buffers drain to the shared spill
// files through the facade, which serializes appends per shard.
type worker struct {
	ix  *Indexer
	log *slog.Logger

	domains  *shardedBuilders[index.DomainRecord]
	urls     *shardedBuilders[index.URLRecord]
	words    *shardedBuilders[index.CountedRecord]
	links    *shardedBuilders[index.DomainRecord]
	urlLinks *shardedBuilders[index.URLRecord]
}

func newWorker(ix *Indexer, id int) *worker {
	return &worker{
		ix:       ix,
		log:      ix.log.With("worker", id),
		domains:  newShardedBuilders(ix.domains),
		urls:     newShardedBuilders(ix.urls),
		words:    newShardedBuilders(ix.words),
		links:    newShardedBuilders(ix.links),
		urlLinks: newShardedBuilders(ix.urlLinks),
	}
}

// shardedBuilders lazily creates one worker-private builder per shard and
// hands full buffers to the facade.
type shardedBuilders[R index.Record[R]] struct {
	idx      *index.Index[R]
	builders []*index.Builder[R]
}

func newShardedBuilders[R index.Record[R]](idx *index.Index[R]) *shardedBuilders[R] {
	return &shardedBuilders[R]{
		idx:      idx,
		builders: make([]*index.Builder[R], idx.NumShards()),
	}
}

func (s *shardedBuilders[R]) add(key uint64, record R) error {
	shardID := index.ShardID(key, s.idx.NumShards())
	b := s.builders[shardID]
	if b == nil {
		b = s.idx.NewShardBuilder(shardID)
		s.builders[shardID] = b
	}
	b.Add(key, record)
	if b.NeedsAppend() {
		return s.idx.AppendBuilder(b)
	}
	return nil
}

func (s *shardedBuilders[R]) flush() error {
	for _, b := range s.builders {
		if b == nil || b.BufferedLen() == 0 {
			continue
		}
		if err := s.idx.AppendBuilder(b); err != nil {
			return err
		}
	}
	return nil
}

// processFile fetches one TSV batch file and indexes every row. Rows are
// `url \t title \t h1 \t body \t link_text`; malformed rows are skipped and
// counted, they never fail the file.
func (w *worker) processFile(ctx context.Context, location string) error {
	reader, err := w.ix.fetcher.Fetch(ctx, location)
	if err != nil {
		w.countFile("failed")
		return err
	}
	defer reader.Close()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var indexed, skipped int
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			w.countFile("failed")
			return ctx.Err()
		default:
		}
		if err := w.indexLine(scanner.Text()); err != nil {
			skipped++
			continue
		}
		indexed++
		if w.ix.m != nil {
			w.ix.m.DocsIndexedTotal.Inc()
		}
	}
	if err := scanner.Err(); err != nil {
		w.countFile("failed")
		return fmt.Errorf("scanning %s: %w", location, err)
	}
	if err := w.flush(); err != nil {
		w.countFile("failed")
		return err
	}

	w.countFile("ok")
	w.log.Info("batch file indexed",
		"location", location, "rows", indexed, "skipped", skipped)
	return nil
}

func (w *worker) indexLine(line string) error {
	if line == "" {
		return fmt.Errorf("empty row")
	}
	fields := strings.Split(line, "\t")
	parsed, err := parseURL(fields[0])
	if err != nil {
		return err
	}
	columns := fields[1:]
	if len(columns) > len(columnWeights) {
		columns = columns[:len(columnWeights)]
	}

	var docSize uint64
	for _, token := range tokenizer.TokenizeURL(parsed.raw) {
		docSize++
		if err := w.addTerm(parsed, token.Term, urlTermWeight); err != nil {
			return err
		}
	}
	for col, text := range columns {
		weight := columnWeights[col]
		for _, token := range tokenizer.Tokenize(text) {
			docSize++
			if err := w.addTerm(parsed, token.Term, weight); err != nil {
				return err
			}
		}
	}

	if err := w.ix.urlTable.Add(parsed.urlHash, parsed.raw); err != nil {
		return err
	}
	if err := w.ix.domainTable.Add(parsed.domainHash, parsed.host); err != nil {
		return err
	}
	w.ix.meta.put(parsed.urlHash, parsed.domainHash, docSize)
	return nil
}

// addTerm posts one term into the three text levels under the same weight.
func (w *worker) addTerm(parsed parsedURL, term string, weight float32) error {
	termHash := index.HashString(term)
	if err := w.domains.add(termHash, index.DomainRecord{Value: parsed.domainHash, Score: weight}); err != nil {
		return err
	}
	if err := w.urls.add(termHash, index.URLRecord{Value: parsed.urlHash, Score: weight}); err != nil {
		return err
	}
	return w.words.add(termHash, index.CountedRecord{Value: parsed.urlHash, Count: 1, Score: weight})
}

// processLinkFile indexes one link batch file. Rows are
// `source_url \t target_url`; each row adds one edge to the domain link
// graph, keyed by the target domain.
func (w *worker) processLinkFile(ctx context.Context, location string) error {
	reader, err := w.ix.fetcher.Fetch(ctx, location)
	if err != nil {
		w.countFile("failed")
		return err
	}
	defer reader.Close()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var indexed, skipped int
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			w.countFile("failed")
			return ctx.Err()
		default:
		}
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 2 {
			skipped++
			continue
		}
		source, err := parseURL(fields[0])
		if err != nil {
			skipped++
			continue
		}
		target, err := parseURL(fields[1])
		if err != nil {
			skipped++
			continue
		}
		// Self-links carry no centrality signal.
		if source.domainHash == target.domainHash {
			skipped++
			continue
		}
		// Postings live under the target so a lookup answers "who links
		// here" and Total counts inbound links.
		err = w.links.add(target.domainHash, index.DomainRecord{Value: source.domainHash, Score: 1})
		if err != nil {
			w.countFile("failed")
			return err
		}
		err = w.urlLinks.add(target.urlHash, index.URLRecord{Value: source.domainHash, Score: 1})
		if err != nil {
			w.countFile("failed")
			return err
		}
		if err := w.ix.domainTable.Add(target.domainHash, target.host); err != nil {
			w.countFile("failed")
			return err
		}
		indexed++
	}
	if err := scanner.Err(); err != nil {
		w.countFile("failed")
		return fmt.Errorf("scanning %s: %w", location, err)
	}
	if err := w.links.flush(); err != nil {
		w.countFile("failed")
		return err
	}
	if err := w.urlLinks.flush(); err != nil {
		w.countFile("failed")
		return err
	}

	w.countFile("ok")
	w.log.Info("link batch file indexed",
		"location", location, "edges", indexed, "skipped", skipped)
	return nil
}

func (w *worker) flush() error {
	if err := w.domains.flush(); err != nil {
		return err
	}
	if err := w.urls.flush(); err != nil {
		return err
	}
	if err := w.words.flush(); err != nil {
		return err
	}
	if err := w.links.flush(); err != nil {
		return err
	}
	return w.urlLinks.flush()
}

func (w *worker) countFile(status string) {
	if w.ix.m != nil {
		w.ix.m.FilesIngestedTotal.WithLabelValues(status).Inc()
	}
}
