package hashtable

import (
	"errors"
	"strings"
	"testing"

	"github.com/openwebindex/platform/pkg/config"
	apperrors "github.com/openwebindex/platform/pkg/errors"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.DefaultIndexConfig()
	cfg.MountPrefix = t.TempDir()
	cfg.NumMounts = 1
	cfg.HashTableShards = 4
	cfg.MergeThreads = 2
	s, err := New(cfg, "urls")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAddSortFind(t *testing.T) {
	s := testStore(t)
	entries := map[uint64]string{
		1:    "https://example.com/a",
		2:    "https://example.com/b",
		17:   "https://other.org/page",
		4096: "https://third.net/",
	}
	for key, value := range entries {
		if err := s.Add(key, value); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Sort(); err != nil {
		t.Fatal(err)
	}
	for key, want := range entries {
		got, err := s.Find(key)
		if err != nil {
			t.Fatalf("find %d: %v", key, err)
		}
		if got != want {
			t.Fatalf("find %d = %q, want %q", key, got, want)
		}
	}
}

func TestLastWriteWins(t *testing.T) {
	s := testStore(t)
	if err := s.Add(7, "https://old.example.com"); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(7, "https://new.example.com"); err != nil {
		t.Fatal(err)
	}
	if err := s.Sort(); err != nil {
		t.Fatal(err)
	}
	got, err := s.Find(7)
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://new.example.com" {
		t.Fatalf("find after duplicate adds = %q", got)
	}
}

func TestFindMissing(t *testing.T) {
	s := testStore(t)
	if _, err := s.Find(123); !errors.Is(err, apperrors.ErrKeyNotFound) {
		t.Fatalf("find on empty store: %v", err)
	}

	if err := s.Add(1, "https://example.com"); err != nil {
		t.Fatal(err)
	}
	if err := s.Sort(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Find(999); !errors.Is(err, apperrors.ErrKeyNotFound) {
		t.Fatalf("find for absent key: %v", err)
	}
}

func TestOversizedValueTruncated(t *testing.T) {
	s := testStore(t)
	huge := strings.Repeat("x", maxValueLen+100)
	if err := s.Add(5, huge); err != nil {
		t.Fatal(err)
	}
	if err := s.Sort(); err != nil {
		t.Fatal(err)
	}
	got, err := s.Find(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != maxValueLen {
		t.Fatalf("stored value has %d bytes, want cap %d", len(got), maxValueLen)
	}
}

func TestTruncate(t *testing.T) {
	s := testStore(t)
	if err := s.Add(1, "https://example.com"); err != nil {
		t.Fatal(err)
	}
	if err := s.Sort(); err != nil {
		t.Fatal(err)
	}
	if err := s.Truncate(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Find(1); !errors.Is(err, apperrors.ErrKeyNotFound) {
		t.Fatalf("find after truncate: %v", err)
	}
}
