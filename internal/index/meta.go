package index

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/openwebindex/platform/pkg/hyperloglog"
)

// shardMeta is the per-shard sidecar persisted after every merge: the exact
// unique key count observed so far and the HyperLogLog sketch of distinct
// record values, so restarts keep their cardinality estimates.
type shardMeta struct {
	uniqueKeys uint64
	values     *hyperloglog.HyperLogLog
}

func newShardMeta() *shardMeta {
	return &shardMeta{values: hyperloglog.New()}
}

// load reads the sidecar from path. A missing file yields a fresh meta.
func loadShardMeta(path string) (*shardMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newShardMeta(), nil
		}
		return nil, fmt.Errorf("reading shard meta %s: %w", path, err)
	}
	if len(data) != 8+hyperloglog.NumRegisters {
		return nil, fmt.Errorf("shard meta %s has %d bytes, want %d", path, len(data), 8+hyperloglog.NumRegisters)
	}
	meta := newShardMeta()
	meta.uniqueKeys = binary.LittleEndian.Uint64(data[:8])
	if err := meta.values.SetRegisters(data[8:]); err != nil {
		return nil, fmt.Errorf("shard meta %s: %w", path, err)
	}
	return meta, nil
}

// save writes the sidecar atomically via a temp file rename.
func (m *shardMeta) save(path string) error {
	buf := make([]byte, 0, 8+hyperloglog.NumRegisters)
	buf = binary.LittleEndian.AppendUint64(buf, m.uniqueKeys)
	buf = append(buf, m.values.Registers()...)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return fmt.Errorf("writing shard meta %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming shard meta %s: %w", path, err)
	}
	return nil
}
