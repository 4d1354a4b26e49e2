package index

import (
	"context"
	"log/slog"
	"testing"

	"github.com/openwebindex/platform/pkg/config"
)

func testConfig(t *testing.T) config.IndexConfig {
	t.Helper()
	cfg := config.DefaultIndexConfig()
	cfg.MountPrefix = t.TempDir()
	cfg.NumShards = 4
	cfg.NumMounts = 1
	cfg.HashTableSize = 8
	cfg.MaxResultsPerSection = 4
	cfg.MaxSections = 2
	cfg.IngestThreads = 2
	cfg.MergeThreads = 2
	cfg.BufferLen = 1 << 16
	cfg.MaxBufferedRecords = 1000
	return cfg
}

func TestDomainRecordRoundTrip(t *testing.T) {
	in := DomainRecord{Value: 0xdeadbeef, Score: 3.5}
	buf := in.AppendTo(nil)
	if len(buf) != in.ByteSize() {
		t.Fatalf("serialized %d bytes, want %d", len(buf), in.ByteSize())
	}
	out := DomainRecord{}.ReadFrom(buf)
	if out != in {
		t.Fatalf("round trip gave %+v, want %+v", out, in)
	}
}

func TestCountedRecordRoundTrip(t *testing.T) {
	in := CountedRecord{Value: 42, Count: 7, Score: 0.25}
	buf := in.AppendTo(nil)
	if len(buf) != in.ByteSize() {
		t.Fatalf("serialized %d bytes, want %d", len(buf), in.ByteSize())
	}
	out := CountedRecord{}.ReadFrom(buf)
	if out != in {
		t.Fatalf("round trip gave %+v, want %+v", out, in)
	}
}

func TestCountedRecordCombine(t *testing.T) {
	a := CountedRecord{Value: 1, Count: 2, Score: 1.5}
	b := CountedRecord{Value: 1, Count: 3, Score: 0.5}
	c := a.Combine(b)
	if c.Count != 5 || c.Score != 2.0 || c.Value != 1 {
		t.Fatalf("combine gave %+v", c)
	}
}

func TestShardRouting(t *testing.T) {
	for _, numShards := range []int{1, 4, 1024} {
		for _, key := range []uint64{0, 1, 12345, 1 << 63} {
			id := ShardID(key, numShards)
			if id < 0 || id >= numShards {
				t.Fatalf("key %d routed to shard %d of %d", key, id, numShards)
			}
			if id != int(key%uint64(numShards)) {
				t.Fatalf("key %d routed to shard %d, want %d", key, id, key%uint64(numShards))
			}
		}
	}
}

func TestAddMergeFind(t *testing.T) {
	idx, err := NewIndex[DomainRecord](testConfig(t), "domain", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	key := uint64(7)
	for _, r := range []DomainRecord{
		{Value: 1, Score: 2},
		{Value: 2, Score: 1},
		{Value: 1, Score: 3},
	} {
		if err := idx.Add(key, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.Merge(context.Background()); err != nil {
		t.Fatal(err)
	}

	result, err := idx.Find(key)
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 2 {
		t.Fatalf("total = %d, want 2", result.Total)
	}
	if len(result.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(result.Records))
	}
	if result.Records[0].Value != 1 || result.Records[0].Score != 5 {
		t.Fatalf("first record = %+v, want value 1 score 5", result.Records[0])
	}
	if result.Records[1].Value != 2 || result.Records[1].Score != 1 {
		t.Fatalf("second record = %+v, want value 2 score 1", result.Records[1])
	}
}

func TestFindUnknownKey(t *testing.T) {
	idx, err := NewIndex[DomainRecord](testConfig(t), "domain", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	result, err := idx.Find(99)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Records) != 0 || result.Total != 0 {
		t.Fatalf("unknown key returned %+v", result)
	}

	if err := idx.Add(7, DomainRecord{Value: 1, Score: 1}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Merge(context.Background()); err != nil {
		t.Fatal(err)
	}
	result, err = idx.Find(11) // same shard as 7, different key
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Records) != 0 {
		t.Fatalf("unindexed key returned %d records", len(result.Records))
	}
}

func TestMergeAccumulatesAcrossGenerations(t *testing.T) {
	idx, err := NewIndex[CountedRecord](testConfig(t), "word", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	if err := idx.Add(3, CountedRecord{Value: 10, Count: 1, Score: 1}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Merge(ctx); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(3, CountedRecord{Value: 10, Count: 2, Score: 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(3, CountedRecord{Value: 11, Count: 1, Score: 1}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Merge(ctx); err != nil {
		t.Fatal(err)
	}

	result, err := idx.Find(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Records) != 2 || result.Total != 2 {
		t.Fatalf("got %d records total %d, want 2/2", len(result.Records), result.Total)
	}
	if result.Records[0].Value != 10 || result.Records[0].Count != 3 || result.Records[0].Score != 1.5 {
		t.Fatalf("merged record = %+v", result.Records[0])
	}
}

func TestMergeIdempotent(t *testing.T) {
	idx, err := NewIndex[DomainRecord](testConfig(t), "domain", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	if err := idx.Add(5, DomainRecord{Value: 1, Score: 2}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Merge(ctx); err != nil {
		t.Fatal(err)
	}
	// A second merge with empty spill must not change the stored postings.
	if err := idx.Merge(ctx); err != nil {
		t.Fatal(err)
	}

	result, err := idx.Find(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Records) != 1 || result.Records[0].Score != 2 {
		t.Fatalf("postings changed after no-op merge: %+v", result)
	}
}

func TestTruncationKeepsTopScores(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxResultsPerSection = 2
	cfg.MaxSections = 2

	idx, err := NewIndex[DomainRecord](cfg, "domain", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	key := uint64(9)
	for i := 1; i <= 6; i++ {
		if err := idx.Add(key, DomainRecord{Value: uint64(i), Score: float32(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.Merge(context.Background()); err != nil {
		t.Fatal(err)
	}

	result, err := idx.Find(key)
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 6 {
		t.Fatalf("total = %d, want pre-truncation 6", result.Total)
	}
	if len(result.Records) != 4 {
		t.Fatalf("got %d records, want capped 4", len(result.Records))
	}
	// Top scores survive, arranged as value-ascending sections.
	wantValues := []uint64{5, 6, 3, 4}
	for i, want := range wantValues {
		if result.Records[i].Value != want {
			t.Fatalf("record %d has value %d, want %d (all: %+v)",
				i, result.Records[i].Value, want, result.Records)
		}
	}
}

func TestZeroHashTableSingle(t *testing.T) {
	cfg := testConfig(t)
	cfg.HashTableSize = 0

	idx, err := NewIndex[URLRecord](cfg, "url", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	keys := []uint64{4, 8, 16, 200}
	for _, key := range keys {
		if err := idx.Add(key, URLRecord{Value: key * 10, Score: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.Merge(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, key := range keys {
		result, err := idx.Find(key)
		if err != nil {
			t.Fatal(err)
		}
		if len(result.Records) != 1 || result.Records[0].Value != key*10 {
			t.Fatalf("key %d: got %+v", key, result)
		}
	}
	if result, err := idx.Find(12); err != nil || len(result.Records) != 0 {
		t.Fatalf("absent key: result %+v err %v", result, err)
	}
}

func TestRewrite(t *testing.T) {
	idx, err := NewIndex[CountedRecord](testConfig(t), "word", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	if err := idx.Add(1, CountedRecord{Value: 10, Count: 4, Score: 4}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(2, CountedRecord{Value: 20, Count: 1, Score: 1}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Merge(ctx); err != nil {
		t.Fatal(err)
	}

	err = idx.Rewrite(ctx, func(key uint64, records []CountedRecord) []CountedRecord {
		if key == 2 {
			return nil
		}
		for i, r := range records {
			records[i] = r.WithScore(float32(r.Count) / 8)
		}
		return records
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := idx.Find(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Records) != 1 || result.Records[0].Score != 0.5 {
		t.Fatalf("rewritten record = %+v, want score 0.5", result.Records)
	}
	if result.Total != 1 {
		t.Fatalf("total = %d, want preserved 1", result.Total)
	}

	dropped, err := idx.Find(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(dropped.Records) != 0 {
		t.Fatalf("dropped key still has %d records", len(dropped.Records))
	}
}

func TestTruncateRemovesData(t *testing.T) {
	idx, err := NewIndex[DomainRecord](testConfig(t), "domain", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	if err := idx.Add(5, DomainRecord{Value: 1, Score: 1}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Merge(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := idx.Truncate(); err != nil {
		t.Fatal(err)
	}
	result, err := idx.Find(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Records) != 0 {
		t.Fatalf("found %d records after truncate", len(result.Records))
	}
}

func TestForEachAndCommonKeys(t *testing.T) {
	idx, err := NewIndex[DomainRecord](testConfig(t), "domain", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	for i := 0; i < 4; i++ {
		if err := idx.Add(100, DomainRecord{Value: uint64(i), Score: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.Add(101, DomainRecord{Value: 1, Score: 1}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Merge(context.Background()); err != nil {
		t.Fatal(err)
	}

	seen := make(map[uint64]uint64)
	err = idx.ForEach(func(key uint64, records []DomainRecord, total uint64) error {
		seen[key] = total
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[100] != 4 || seen[101] != 1 {
		t.Fatalf("foreach saw %v", seen)
	}

	common, err := idx.CommonKeys(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(common) != 1 || common[100] != 4 {
		t.Fatalf("common keys = %v, want only 100", common)
	}
}

func TestUniqueKeyCount(t *testing.T) {
	idx, err := NewIndex[DomainRecord](testConfig(t), "domain", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	keys := []uint64{1, 2, 3, 4, 5, 6, 7}
	for _, key := range keys {
		if err := idx.Add(key, DomainRecord{Value: key, Score: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.Merge(context.Background()); err != nil {
		t.Fatal(err)
	}

	count, err := idx.UniqueKeyCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != uint64(len(keys)) {
		t.Fatalf("unique key count = %d, want %d", count, len(keys))
	}
}

func TestBuilderAppendClearsBuffer(t *testing.T) {
	cfg := testConfig(t)
	if err := createDirectories(cfg, "domain"); err != nil {
		t.Fatal(err)
	}
	b := NewBuilder[DomainRecord](cfg, "domain", 0, slog.Default())

	b.Add(4, DomainRecord{Value: 1, Score: 1})
	b.Add(8, DomainRecord{Value: 2, Score: 1})
	if b.BufferedLen() != 2 {
		t.Fatalf("buffered %d, want 2", b.BufferedLen())
	}
	written, err := b.Append()
	if err != nil {
		t.Fatal(err)
	}
	if written != 2*12 {
		t.Fatalf("appended %d bytes, want 24", written)
	}
	if b.BufferedLen() != 0 {
		t.Fatalf("buffer not cleared, %d left", b.BufferedLen())
	}
	size, err := b.CacheSize()
	if err != nil {
		t.Fatal(err)
	}
	if size != 24 {
		t.Fatalf("spill size = %d, want 24", size)
	}
}
