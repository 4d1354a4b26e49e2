package searcher

import (
	"context"
	"math"
	"testing"

	"github.com/openwebindex/platform/internal/hashtable"
	"github.com/openwebindex/platform/internal/index"
	"github.com/openwebindex/platform/pkg/config"
)

func testLevels(t *testing.T, cfg config.IndexConfig) Levels {
	t.Helper()
	domains, err := index.NewIndex[index.DomainRecord](cfg, "domain", nil)
	if err != nil {
		t.Fatal(err)
	}
	urls, err := index.NewIndex[index.URLRecord](cfg, "url", nil)
	if err != nil {
		t.Fatal(err)
	}
	words, err := index.NewIndex[index.CountedRecord](cfg, "word", nil)
	if err != nil {
		t.Fatal(err)
	}
	links, err := index.NewIndex[index.DomainRecord](cfg, "link", nil)
	if err != nil {
		t.Fatal(err)
	}
	urlLinks, err := index.NewIndex[index.URLRecord](cfg, "url_link", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		domains.Close()
		urls.Close()
		words.Close()
		links.Close()
		urlLinks.Close()
	})
	return Levels{Domains: domains, URLs: urls, Words: words, Links: links, URLLinks: urlLinks}
}

func testExecutor(t *testing.T) (*Executor, Levels) {
	t.Helper()
	cfg := config.DefaultIndexConfig()
	cfg.MountPrefix = t.TempDir()
	cfg.NumShards = 4
	cfg.NumMounts = 1
	cfg.HashTableSize = 16
	cfg.HashTableShards = 4
	cfg.MergeThreads = 2

	levels := testLevels(t, cfg)

	alpha := index.HashString("alpha")
	beta := index.HashString("beta")
	for _, add := range []struct {
		key    uint64
		record index.CountedRecord
	}{
		{alpha, index.CountedRecord{Value: 101, Count: 1, Score: 0.6}},
		{alpha, index.CountedRecord{Value: 202, Count: 1, Score: 0.4}},
		{beta, index.CountedRecord{Value: 101, Count: 1, Score: 0.5}},
	} {
		if err := levels.Words.Add(add.key, add.record); err != nil {
			t.Fatal(err)
		}
	}
	if err := levels.Words.Merge(context.Background()); err != nil {
		t.Fatal(err)
	}

	urlTable, err := hashtable.New(cfg, "urls")
	if err != nil {
		t.Fatal(err)
	}
	if err := urlTable.Add(101, "https://example.com/1"); err != nil {
		t.Fatal(err)
	}
	if err := urlTable.Add(202, "https://example.com/2"); err != nil {
		t.Fatal(err)
	}
	if err := urlTable.Sort(); err != nil {
		t.Fatal(err)
	}

	searchCfg := config.SearchConfig{MaxResults: 100, DefaultLimit: 10}
	return NewExecutor(searchCfg, levels, urlTable, nil, nil, nil), levels
}

func TestSearchConjunctive(t *testing.T) {
	executor, _ := testExecutor(t)

	result, err := executor.Search(context.Background(), "alpha beta", 10)
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 {
		t.Fatalf("total = %d, want 1 (both terms must match)", result.Total)
	}
	if len(result.Results) != 1 {
		t.Fatalf("got %d results", len(result.Results))
	}
	hit := result.Results[0]
	if hit.URLHash != 101 {
		t.Fatalf("matched url hash %d, want 101", hit.URLHash)
	}
	if hit.URL != "https://example.com/1" {
		t.Fatalf("resolved url %q", hit.URL)
	}
	if math.Abs(hit.Score-1.1) > 0.001 {
		t.Fatalf("score = %f, want summed 1.1", hit.Score)
	}
}

func TestSearchSingleTermRanksByScore(t *testing.T) {
	executor, _ := testExecutor(t)

	result, err := executor.Search(context.Background(), "alpha", 10)
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 2 {
		t.Fatalf("total = %d, want 2", result.Total)
	}
	if result.Results[0].URLHash != 101 || result.Results[1].URLHash != 202 {
		t.Fatalf("ranking order: %+v", result.Results)
	}
}

func TestSearchNoMatch(t *testing.T) {
	executor, _ := testExecutor(t)

	result, err := executor.Search(context.Background(), "gamma", 10)
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 0 || len(result.Results) != 0 {
		t.Fatalf("unexpected matches: %+v", result)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	executor, _ := testExecutor(t)

	result, err := executor.Search(context.Background(), "   ", 10)
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 0 || len(result.Results) != 0 {
		t.Fatalf("empty query matched: %+v", result)
	}
}

func TestSearchLimitClamp(t *testing.T) {
	executor, _ := testExecutor(t)

	result, err := executor.Search(context.Background(), "alpha", 1)
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 2 {
		t.Fatalf("total = %d, want 2 even when limited", result.Total)
	}
	if len(result.Results) != 1 {
		t.Fatalf("limit 1 returned %d results", len(result.Results))
	}
}

func TestCachedSearcherWithoutRedis(t *testing.T) {
	executor, _ := testExecutor(t)
	cached := NewCachedSearcher(executor, nil, 0, nil)

	result, fromCache, err := cached.Search(context.Background(), "alpha beta", 10)
	if err != nil {
		t.Fatal(err)
	}
	if fromCache {
		t.Fatal("result reported as cached without a cache")
	}
	if result.Total != 1 {
		t.Fatalf("total = %d, want 1", result.Total)
	}
	if err := cached.Invalidate(context.Background()); err != nil {
		t.Fatalf("invalidate without a cache: %v", err)
	}
}

func TestParseQueryDeduplicates(t *testing.T) {
	terms := parseQuery("alpha alpha beta", nil)
	if len(terms) != 2 {
		t.Fatalf("got %d terms, want 2", len(terms))
	}
}

func TestParseQueryDropsCommonInMixedQuery(t *testing.T) {
	common := map[uint64]struct{}{
		index.HashString("alpha"): {},
	}
	terms := parseQuery("alpha beta", common)
	if len(terms) != 1 || terms[0].term != "beta" {
		t.Fatalf("mixed query terms = %+v, want only beta", terms)
	}
}

func TestParseQueryKeepsAllCommon(t *testing.T) {
	common := map[uint64]struct{}{
		index.HashString("alpha"): {},
		index.HashString("beta"):  {},
	}
	terms := parseQuery("alpha beta", common)
	if len(terms) != 2 {
		t.Fatalf("all-common query terms = %+v, want both kept", terms)
	}
}

func TestParseQueryEmpty(t *testing.T) {
	if terms := parseQuery("", nil); len(terms) != 0 {
		t.Fatalf("empty query produced %+v", terms)
	}
	// Stop words and single characters never survive tokenization.
	if terms := parseQuery("the a of", nil); len(terms) != 0 {
		t.Fatalf("stop-word query produced %+v", terms)
	}
}
