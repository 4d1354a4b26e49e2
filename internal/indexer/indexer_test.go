package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openwebindex/platform/internal/index"
	"github.com/openwebindex/platform/internal/indexer/tokenizer"
	"github.com/openwebindex/platform/pkg/config"
)

func testIndexer(t *testing.T) *Indexer {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Index.MountPrefix = t.TempDir()
	cfg.Index.NumShards = 4
	cfg.Index.NumMounts = 1
	cfg.Index.HashTableSize = 16
	cfg.Index.HashTableShards = 4
	cfg.Index.IngestThreads = 2
	cfg.Index.MergeThreads = 2
	cfg.Index.MaxBufferedRecords = 8
	cfg.Index.MergeInterval = 10 * time.Millisecond

	ix, err := New(*cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ix.Close)
	return ix
}

func writeBatchFile(t *testing.T, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data := ""
	for _, line := range lines {
		data += line + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func termHash(t *testing.T, word string) uint64 {
	t.Helper()
	tokens := tokenizer.Tokenize(word)
	if len(tokens) != 1 {
		t.Fatalf("%q tokenized to %d tokens", word, len(tokens))
	}
	return index.HashString(tokens[0].Term)
}

func TestParseURL(t *testing.T) {
	parsed, err := parseURL("https://WWW.Example.COM/Path?q=1#frag")
	if err != nil {
		t.Fatal(err)
	}
	if parsed.host != "example.com" {
		t.Fatalf("host = %q, want example.com", parsed.host)
	}
	if parsed.domainHash != index.HashString("example.com") {
		t.Fatal("domain hash does not match normalized host")
	}
	if parsed.urlHash != index.HashString(parsed.raw) {
		t.Fatal("url hash does not match normalized url")
	}

	for _, raw := range []string{"", "no-scheme.com/page", "https://", ":::"} {
		if _, err := parseURL(raw); err == nil {
			t.Fatalf("parseURL(%q) accepted", raw)
		}
	}
}

func TestURLMetadata(t *testing.T) {
	m := newURLMetadata()
	m.put(1, 100, 5)
	m.put(1, 100, 3)
	m.put(2, 200, 7)

	if got := m.docSize(1); got != 8 {
		t.Fatalf("accumulated doc size = %d, want 8", got)
	}
	if got := m.docSize(2); got != 7 {
		t.Fatalf("doc size = %d, want 7", got)
	}
	if got := m.docSize(99); got != 0 {
		t.Fatalf("unknown url doc size = %d, want 0", got)
	}
}

func TestIndexBatch(t *testing.T) {
	ix := testIndexer(t)
	ctx := context.Background()

	file := writeBatchFile(t, "batch.tsv", []string{
		"https://www.example.com/go\tGo Concurrency\tGoroutines\tchannels select goroutines\tlink",
		"https://other.org/py\tPython Basics\tSyntax\tindentation lists\tlink",
		"not a url\tbroken row",
	})
	if err := ix.IndexBatch(ctx, []string{file}); err != nil {
		t.Fatal(err)
	}

	parsed, err := parseURL("https://www.example.com/go")
	if err != nil {
		t.Fatal(err)
	}

	words, err := ix.Words().Find(termHash(t, "goroutines"))
	if err != nil {
		t.Fatal(err)
	}
	if len(words.Records) != 1 {
		t.Fatalf("goroutines posting has %d records, want 1", len(words.Records))
	}
	record := words.Records[0]
	if record.Value != parsed.urlHash {
		t.Fatalf("posting value = %d, want url hash %d", record.Value, parsed.urlHash)
	}
	// The heading and the body each mention the term once.
	if record.Count != 2 {
		t.Fatalf("posting count = %d, want 2", record.Count)
	}
	// The optimize pass rewrote the score to count over document size.
	if record.Score <= 0 || record.Score > 1 {
		t.Fatalf("optimized score = %f, want a frequency in (0, 1]", record.Score)
	}

	domains, err := ix.Domains().Find(termHash(t, "goroutines"))
	if err != nil {
		t.Fatal(err)
	}
	if len(domains.Records) != 1 || domains.Records[0].Value != parsed.domainHash {
		t.Fatalf("domain posting = %+v, want domain %d", domains.Records, parsed.domainHash)
	}

	url, err := ix.URLTable().Find(parsed.urlHash)
	if err != nil {
		t.Fatal(err)
	}
	if url != parsed.raw {
		t.Fatalf("url table resolved %q, want %q", url, parsed.raw)
	}
	host, err := ix.DomainTable().Find(parsed.domainHash)
	if err != nil {
		t.Fatal(err)
	}
	if host != "example.com" {
		t.Fatalf("domain table resolved %q", host)
	}

	// The term from the second document must not match the first.
	py, err := ix.Words().Find(termHash(t, "indentation"))
	if err != nil {
		t.Fatal(err)
	}
	if len(py.Records) != 1 || py.Records[0].Value == parsed.urlHash {
		t.Fatalf("second document posting = %+v", py.Records)
	}
}

func TestIndexLinkBatch(t *testing.T) {
	ix := testIndexer(t)
	ctx := context.Background()

	file := writeBatchFile(t, "links.tsv", []string{
		"https://a.com/x\thttps://b.com/y",
		"https://b.com/1\thttps://b.com/2",
		"https://c.com/z\thttps://b.com/y",
		"garbage line",
	})
	if err := ix.IndexLinkBatch(ctx, []string{file}); err != nil {
		t.Fatal(err)
	}

	target := index.HashString("b.com")
	links, err := ix.Links().Find(target)
	if err != nil {
		t.Fatal(err)
	}
	// Two external sources; the b.com self-link is dropped.
	if links.Total != 2 {
		t.Fatalf("inbound link total = %d, want 2", links.Total)
	}
	sources := map[uint64]bool{}
	for _, r := range links.Records {
		sources[r.Value] = true
	}
	if !sources[index.HashString("a.com")] || !sources[index.HashString("c.com")] {
		t.Fatalf("link sources = %v", sources)
	}

	targetURL, err := parseURL("https://b.com/y")
	if err != nil {
		t.Fatal(err)
	}
	urlLinks, err := ix.URLLinks().Find(targetURL.urlHash)
	if err != nil {
		t.Fatal(err)
	}
	if urlLinks.Total != 2 {
		t.Fatalf("inbound url link total = %d, want 2", urlLinks.Total)
	}

	host, err := ix.DomainTable().Find(target)
	if err != nil {
		t.Fatal(err)
	}
	if host != "b.com" {
		t.Fatalf("domain table resolved %q", host)
	}
}

func TestTruncateClearsEverything(t *testing.T) {
	ix := testIndexer(t)
	ctx := context.Background()

	file := writeBatchFile(t, "batch.tsv", []string{
		"https://example.com/a\tHello World\t\tgreetings\t",
	})
	if err := ix.IndexBatch(ctx, []string{file}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Truncate(); err != nil {
		t.Fatal(err)
	}

	result, err := ix.Words().Find(termHash(t, "greetings"))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Records) != 0 {
		t.Fatalf("found %d records after truncate", len(result.Records))
	}
}
