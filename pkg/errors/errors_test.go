package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewfWrapsSentinel(t *testing.T) {
	err := Newf(ErrShardIO, "shard %d unreadable", 3)
	if !errors.Is(err, ErrShardIO) {
		t.Fatal("wrapped error lost its sentinel")
	}
	if errors.Is(err, ErrCorruptShard) {
		t.Fatal("wrapped error matches the wrong sentinel")
	}
	want := "shard io failure: shard 3 unreadable"
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
}

func TestIsCorrupt(t *testing.T) {
	if !IsCorrupt(Newf(ErrCorruptShard, "bad page")) {
		t.Fatal("direct corruption error not detected")
	}
	wrapped := fmt.Errorf("merging shard: %w", New(ErrCorruptShard, "bad page"))
	if !IsCorrupt(wrapped) {
		t.Fatal("nested corruption error not detected")
	}
	if IsCorrupt(Newf(ErrShardIO, "disk gone")) {
		t.Fatal("io error misreported as corruption")
	}
	if IsCorrupt(nil) {
		t.Fatal("nil misreported as corruption")
	}
}
