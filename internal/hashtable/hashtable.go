// Package hashtable implements a sharded on-disk key to string store used to
// resolve record values (URL and domain hashes) back to their original
// strings. Writes append to per-shard spill files; a sort pass rewrites each
// shard sorted by key with a fixed-width position index so lookups can
// binary-search without loading the shard.
package hashtable

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/openwebindex/platform/pkg/config"
	apperrors "github.com/openwebindex/platform/pkg/errors"
	"github.com/openwebindex/platform/pkg/logger"
)

// maxValueLen bounds one stored string; larger values are truncated on Add.
const maxValueLen = 16 * 1024

// posEntrySize is one position-index entry: u64 key, u64 offset.
const posEntrySize = 16

// Store is a sharded key to string table. Add is safe for concurrent use.
type Store struct {
	cfg    config.IndexConfig
	name   string
	log    *slog.Logger
	shards []*tableShard
}

type tableShard struct {
	mu sync.Mutex
	id int
}

// New creates the store directories on every mount and returns the store.
func New(cfg config.IndexConfig, name string) (*Store, error) {
	shardCount := cfg.HashTableShards
	if shardCount <= 0 {
		shardCount = 16
	}
	mounts := cfg.NumMounts
	if mounts <= 0 {
		mounts = 1
	}
	for i := 0; i < mounts; i++ {
		dir := filepath.Join(cfg.MountPrefix, fmt.Sprintf("%d", i), "hash_table", name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating hash table directory %s: %w", dir, err)
		}
	}
	s := &Store{
		cfg:    cfg,
		name:   name,
		log:    logger.WithComponent("hashtable").With("table", name),
		shards: make([]*tableShard, shardCount),
	}
	for i := range s.shards {
		s.shards[i] = &tableShard{id: i}
	}
	return s, nil
}

func (s *Store) shardFor(key uint64) *tableShard {
	return s.shards[key%uint64(len(s.shards))]
}

func (s *Store) dataPath(shardID int) string {
	mounts := s.cfg.NumMounts
	if mounts <= 0 {
		mounts = 1
	}
	return filepath.Join(s.cfg.MountPrefix, fmt.Sprintf("%d", shardID%mounts),
		"hash_table", s.name, fmt.Sprintf("%d.ht", shardID))
}

func (s *Store) posPath(shardID int) string {
	return s.dataPath(shardID) + ".pos"
}

// Add appends one key value pair to the key's shard. Values longer than the
// cap are truncated.
func (s *Store) Add(key uint64, value string) error {
	if len(value) > maxValueLen {
		value = value[:maxValueLen]
	}
	record := make([]byte, 0, 12+len(value))
	record = binary.LittleEndian.AppendUint64(record, key)
	record = binary.LittleEndian.AppendUint32(record, uint32(len(value)))
	record = append(record, value...)

	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	f, err := os.OpenFile(s.dataPath(shard.id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "opening hash table shard %d: %v", shard.id, err)
	}
	defer f.Close()
	if _, err := f.Write(record); err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "appending to hash table shard %d: %v", shard.id, err)
	}
	return nil
}

// Sort rewrites every shard sorted by key with duplicates removed (the last
// write wins) and rebuilds the position index, shards in parallel.
func (s *Store) Sort() error {
	g := new(errgroup.Group)
	threads := s.cfg.MergeThreads
	if threads <= 0 {
		threads = 1
	}
	g.SetLimit(threads)

	var mu sync.Mutex
	var result *multierror.Error
	for _, shard := range s.shards {
		shard := shard
		g.Go(func() error {
			if err := s.sortShard(shard); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return result.ErrorOrNil()
}

type tableEntry struct {
	key   uint64
	value string
}

func (s *Store) sortShard(shard *tableShard) error {
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entries, err := s.readShard(shard.id)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	// Stable sort keeps append order within a key so the last write wins
	// during the dedup sweep below.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	deduped := entries[:0]
	for _, entry := range entries {
		if n := len(deduped); n > 0 && deduped[n-1].key == entry.key {
			deduped[n-1] = entry
			continue
		}
		deduped = append(deduped, entry)
	}

	dataTmp := s.dataPath(shard.id) + ".tmp"
	posTmp := s.posPath(shard.id) + ".tmp"
	dataFile, err := os.OpenFile(dataTmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "creating sorted hash table shard %d: %v", shard.id, err)
	}
	defer dataFile.Close()
	posFile, err := os.OpenFile(posTmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "creating hash table index %d: %v", shard.id, err)
	}
	defer posFile.Close()

	dataWriter := bufio.NewWriter(dataFile)
	posWriter := bufio.NewWriter(posFile)
	var offset uint64
	for _, entry := range deduped {
		var pos [posEntrySize]byte
		binary.LittleEndian.PutUint64(pos[0:8], entry.key)
		binary.LittleEndian.PutUint64(pos[8:16], offset)
		if _, err := posWriter.Write(pos[:]); err != nil {
			return apperrors.Newf(apperrors.ErrShardIO, "writing hash table index %d: %v", shard.id, err)
		}

		record := make([]byte, 0, 12+len(entry.value))
		record = binary.LittleEndian.AppendUint64(record, entry.key)
		record = binary.LittleEndian.AppendUint32(record, uint32(len(entry.value)))
		record = append(record, entry.value...)
		if _, err := dataWriter.Write(record); err != nil {
			return apperrors.Newf(apperrors.ErrShardIO, "writing sorted hash table shard %d: %v", shard.id, err)
		}
		offset += uint64(len(record))
	}
	if err := dataWriter.Flush(); err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "flushing hash table shard %d: %v", shard.id, err)
	}
	if err := posWriter.Flush(); err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "flushing hash table index %d: %v", shard.id, err)
	}

	if err := os.Rename(dataTmp, s.dataPath(shard.id)); err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "installing hash table shard %d: %v", shard.id, err)
	}
	if err := os.Rename(posTmp, s.posPath(shard.id)); err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "installing hash table index %d: %v", shard.id, err)
	}
	return nil
}

func (s *Store) readShard(shardID int) ([]tableEntry, error) {
	f, err := os.Open(s.dataPath(shardID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Newf(apperrors.ErrShardIO, "opening hash table shard %d: %v", shardID, err)
	}
	defer f.Close()

	var entries []tableEntry
	reader := bufio.NewReader(f)
	for {
		var head [12]byte
		if _, err := io.ReadFull(reader, head[:]); err != nil {
			if err == io.EOF {
				return entries, nil
			}
			// A torn append leaves a partial record at the tail; keep
			// what decoded cleanly.
			s.log.Warn("hash table shard ends mid-record", "shard", shardID)
			return entries, nil
		}
		key := binary.LittleEndian.Uint64(head[0:8])
		length := binary.LittleEndian.Uint32(head[8:12])
		if length > maxValueLen {
			s.log.Warn("hash table record oversized, stopping scan",
				"shard", shardID, "length", length)
			return entries, nil
		}
		value := make([]byte, length)
		if _, err := io.ReadFull(reader, value); err != nil {
			s.log.Warn("hash table shard ends mid-record", "shard", shardID)
			return entries, nil
		}
		entries = append(entries, tableEntry{key: key, value: string(value)})
	}
}

// Find binary-searches the sorted shard for key. Returns ErrKeyNotFound when
// the key is absent or the shard was never sorted.
func (s *Store) Find(key uint64) (string, error) {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	posFile, err := os.Open(s.posPath(shard.id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.Newf(apperrors.ErrKeyNotFound, "hash table key %d not found", key)
		}
		return "", apperrors.Newf(apperrors.ErrShardIO, "opening hash table index %d: %v", shard.id, err)
	}
	defer posFile.Close()

	info, err := posFile.Stat()
	if err != nil {
		return "", apperrors.Newf(apperrors.ErrShardIO, "stat hash table index %d: %v", shard.id, err)
	}
	count := int(info.Size() / posEntrySize)

	var offset uint64
	found := false
	lo, hi := 0, count
	for lo < hi {
		mid := (lo + hi) / 2
		var entry [posEntrySize]byte
		if _, err := posFile.ReadAt(entry[:], int64(mid*posEntrySize)); err != nil {
			return "", apperrors.Newf(apperrors.ErrShardIO, "reading hash table index %d: %v", shard.id, err)
		}
		entryKey := binary.LittleEndian.Uint64(entry[0:8])
		switch {
		case entryKey == key:
			offset = binary.LittleEndian.Uint64(entry[8:16])
			found = true
			lo = hi
		case entryKey < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	if !found {
		return "", apperrors.Newf(apperrors.ErrKeyNotFound, "hash table key %d not found", key)
	}

	dataFile, err := os.Open(s.dataPath(shard.id))
	if err != nil {
		return "", apperrors.Newf(apperrors.ErrShardIO, "opening hash table shard %d: %v", shard.id, err)
	}
	defer dataFile.Close()

	var head [12]byte
	if _, err := dataFile.ReadAt(head[:], int64(offset)); err != nil {
		return "", apperrors.Newf(apperrors.ErrShardIO, "reading hash table shard %d: %v", shard.id, err)
	}
	length := binary.LittleEndian.Uint32(head[8:12])
	if length > maxValueLen {
		return "", apperrors.Newf(apperrors.ErrCorruptShard,
			"hash table shard %d record at %d declares %d bytes", shard.id, offset, length)
	}
	value := make([]byte, length)
	if _, err := dataFile.ReadAt(value, int64(offset)+12); err != nil {
		return "", apperrors.Newf(apperrors.ErrShardIO, "reading hash table shard %d: %v", shard.id, err)
	}
	return string(value), nil
}

// Truncate removes every shard's data and index files.
func (s *Store) Truncate() error {
	var result *multierror.Error
	for _, shard := range s.shards {
		shard.mu.Lock()
		for _, path := range []string{s.dataPath(shard.id), s.posPath(shard.id)} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				result = multierror.Append(result, err)
			}
		}
		shard.mu.Unlock()
	}
	return result.ErrorOrNil()
}
