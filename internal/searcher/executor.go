package searcher

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openwebindex/platform/internal/domainstats"
	"github.com/openwebindex/platform/internal/hashtable"
	"github.com/openwebindex/platform/internal/index"
	"github.com/openwebindex/platform/internal/urlstore"
	"github.com/openwebindex/platform/pkg/config"
	apperrors "github.com/openwebindex/platform/pkg/errors"
	"github.com/openwebindex/platform/pkg/logger"
	"github.com/openwebindex/platform/pkg/metrics"
	"github.com/openwebindex/platform/pkg/resilience"
)

// Levels bundles the read side of every index level the executor consults.
type Levels struct {
	Domains  *index.Index[index.DomainRecord]
	URLs     *index.Index[index.URLRecord]
	Words    *index.Index[index.CountedRecord]
	Links    *index.Index[index.DomainRecord]
	URLLinks *index.Index[index.URLRecord]
}

// Executor answers queries from the index levels, enriched with link counts
// and harmonic centrality.
type Executor struct {
	cfg      config.SearchConfig
	levels   Levels
	urlTable *hashtable.Store
	urlStore *urlstore.Store
	stats    *domainstats.Store
	breaker  *resilience.CircuitBreaker
	log      *slog.Logger
	m        *metrics.Metrics

	commonMu     sync.RWMutex
	commonWords  map[uint64]struct{}
	commonLoaded time.Time
}

// NewExecutor wires an executor. urlStore and stats may be nil; the common
// word filter and centrality boost are then skipped.
func NewExecutor(cfg config.SearchConfig, levels Levels, urlTable *hashtable.Store,
	urlStore *urlstore.Store, stats *domainstats.Store, m *metrics.Metrics) *Executor {
	return &Executor{
		cfg:      cfg,
		levels:   levels,
		urlTable: urlTable,
		urlStore: urlStore,
		stats:    stats,
		breaker:  resilience.NewCircuitBreaker("domain-stats", resilience.CircuitBreakerConfig{}),
		log:      logger.WithComponent("searcher"),
		m:        m,
	}
}

// ResultItem is one ranked hit.
type ResultItem struct {
	URL            string  `json:"url"`
	URLHash        uint64  `json:"url_hash"`
	DomainHash     uint64  `json:"domain_hash"`
	Score          float64 `json:"score"`
	NumURLLinks    uint64  `json:"num_url_links"`
	NumDomainLinks uint64  `json:"num_domain_links"`
	Harmonic       float64 `json:"harmonic"`
}

// SearchResult is a complete query answer.
type SearchResult struct {
	Query   string       `json:"query"`
	Terms   []string     `json:"terms"`
	Total   int          `json:"total"`
	Results []ResultItem `json:"results"`
}

// termHit is one URL's accumulated evidence across query terms.
type termHit struct {
	score float64
	terms int
}

// Search parses, looks up, intersects, and ranks. All query terms must
// match a URL for it to rank (conjunctive semantics); the posting score sums
// across terms.
func (e *Executor) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	if limit <= 0 || limit > e.cfg.MaxResults {
		limit = e.cfg.DefaultLimit
	}
	terms := parseQuery(query, e.loadCommonWords(ctx))
	result := &SearchResult{Query: query, Results: []ResultItem{}}
	for _, t := range terms {
		result.Terms = append(result.Terms, t.term)
	}
	if len(terms) == 0 {
		return result, nil
	}

	lists, err := e.findAll(ctx, terms)
	if err != nil {
		return nil, err
	}

	hits := make(map[uint64]*termHit)
	for _, list := range lists {
		for _, record := range list.Records {
			hit := hits[record.Value]
			if hit == nil {
				hit = &termHit{}
				hits[record.Value] = hit
			}
			hit.score += float64(record.Score)
			hit.terms++
		}
	}

	var matched []uint64
	for urlHash, hit := range hits {
		if hit.terms == len(terms) {
			matched = append(matched, urlHash)
		}
	}
	result.Total = len(matched)
	if len(matched) == 0 {
		return result, nil
	}

	items, err := e.rank(ctx, matched, hits, limit)
	if err != nil {
		return nil, err
	}
	result.Results = items
	return result, nil
}

// findAll fetches the word-level posting list of every term, one goroutine
// per term with a per-shard timeout.
func (e *Executor) findAll(ctx context.Context, terms []queryTerm) ([]index.Result[index.CountedRecord], error) {
	lists := make([]index.Result[index.CountedRecord], len(terms))
	g, ctx := errgroup.WithContext(ctx)
	for i, t := range terms {
		i, t := i, t
		g.Go(func() error {
			err := resilience.WithTimeout(ctx, e.cfg.TimeoutPerShard, "term lookup", func(context.Context) error {
				list, err := e.levels.Words.Find(t.hash)
				lists[i] = list
				return err
			})
			if errors.Is(err, context.DeadlineExceeded) {
				return apperrors.Newf(apperrors.ErrTimeout, "term lookup timed out: %s", t.term)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

// rank scores the matched URLs, applies link and centrality corrections,
// resolves URL strings, and returns the top limit items.
func (e *Executor) rank(ctx context.Context, matched []uint64, hits map[uint64]*termHit, limit int) ([]ResultItem, error) {
	items := make([]ResultItem, 0, len(matched))
	domainSet := make(map[uint64]struct{})
	for _, urlHash := range matched {
		item := ResultItem{URLHash: urlHash, Score: hits[urlHash].score}
		if e.urlStore != nil {
			domainHash, err := e.urlStore.DomainOf(ctx, urlHash)
			if err == nil {
				item.DomainHash = domainHash
				domainSet[domainHash] = struct{}{}
			}
		}
		if urlLinks, err := e.levels.URLLinks.Find(urlHash); err == nil {
			item.NumURLLinks = urlLinks.Total
		}
		if item.DomainHash != 0 {
			if domLinks, err := e.levels.Links.Find(item.DomainHash); err == nil {
				item.NumDomainLinks = domLinks.Total
			}
		}
		items = append(items, item)
	}

	var centrality map[uint64]float64
	if e.stats != nil && len(domainSet) > 0 {
		domains := make([]uint64, 0, len(domainSet))
		for d := range domainSet {
			domains = append(domains, d)
		}
		err := e.breaker.Execute(func() error {
			var berr error
			centrality, berr = e.stats.HarmonicBatch(ctx, domains)
			return berr
		})
		if err != nil {
			// Rank without the boost rather than failing the query.
			e.log.Warn("centrality unavailable", "error", err)
		}
	}

	for i := range items {
		item := &items[i]
		item.Harmonic = centrality[item.DomainHash]
		item.Score += 0.2*math.Log1p(float64(item.NumURLLinks)) +
			0.1*math.Log1p(float64(item.NumDomainLinks)) +
			0.5*item.Harmonic
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].URLHash < items[j].URLHash
	})
	if len(items) > limit {
		items = items[:limit]
	}

	for i := range items {
		url, err := e.urlTable.Find(items[i].URLHash)
		if err == nil {
			items[i].URL = url
		}
	}
	return items, nil
}

// loadCommonWords returns the cached common-word set, refreshing it from
// the URL store at most once a minute.
func (e *Executor) loadCommonWords(ctx context.Context) map[uint64]struct{} {
	if e.urlStore == nil {
		return nil
	}
	e.commonMu.RLock()
	words, loaded := e.commonWords, e.commonLoaded
	e.commonMu.RUnlock()
	if words != nil && time.Since(loaded) < time.Minute {
		return words
	}

	fresh, err := e.urlStore.CommonWords(ctx)
	if err != nil {
		e.log.Warn("common word set unavailable", "error", err)
		return words
	}
	e.commonMu.Lock()
	e.commonWords = fresh
	e.commonLoaded = time.Now()
	e.commonMu.Unlock()
	return fresh
}
