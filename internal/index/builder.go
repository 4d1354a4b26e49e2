package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/openwebindex/platform/pkg/config"
	apperrors "github.com/openwebindex/platform/pkg/errors"
)

// Builder accumulates records for one shard and periodically folds them into
// the shard's on-disk page file. Records first land in an in-memory buffer
// (Add), are appended to the shard's spill files (Append), and are finally
// combined with the existing page file into a new sorted, truncated page file
// (Merge). Add and Append are not safe for concurrent use; the sharded facade
// serializes spill appends with a per-shard mutex.
type Builder[R Record[R]] struct {
	cfg     config.IndexConfig
	dbName  string
	shardID int
	paths   shardPaths
	log     *slog.Logger

	bufferKeys    []uint64
	bufferRecords []R
}

// NewBuilder returns a builder for one shard. It does not touch the disk.
func NewBuilder[R Record[R]](cfg config.IndexConfig, dbName string, shardID int, log *slog.Logger) *Builder[R] {
	return &Builder[R]{
		cfg:     cfg,
		dbName:  dbName,
		shardID: shardID,
		paths:   newShardPaths(cfg, dbName, shardID),
		log:     log,
	}
}

// ShardID returns the shard this builder writes to.
func (b *Builder[R]) ShardID() int { return b.shardID }

// Add buffers one record in memory.
func (b *Builder[R]) Add(key uint64, record R) {
	b.bufferKeys = append(b.bufferKeys, key)
	b.bufferRecords = append(b.bufferRecords, record)
}

// BufferedLen returns the number of records waiting in memory.
func (b *Builder[R]) BufferedLen() int {
	return len(b.bufferRecords)
}

// NeedsAppend reports whether the in-memory buffer has reached the configured
// flush threshold.
func (b *Builder[R]) NeedsAppend() bool {
	return len(b.bufferRecords) >= b.cfg.MaxBufferedRecords
}

// Append flushes the in-memory buffer to the shard's spill files: records to
// the .cache file and, in the same order, one 8-byte key per record to the
// .cache.keys file. The buffer is cleared on success. Returns the number of
// payload bytes appended.
func (b *Builder[R]) Append() (int64, error) {
	if len(b.bufferRecords) == 0 {
		return 0, nil
	}

	cacheFile, err := os.OpenFile(b.paths.cache(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrShardIO, "opening spill file for shard %d: %v", b.shardID, err)
	}
	defer cacheFile.Close()

	keyFile, err := os.OpenFile(b.paths.cacheKeys(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrShardIO, "opening spill key file for shard %d: %v", b.shardID, err)
	}
	defer keyFile.Close()

	var zero R
	recordSize := zero.ByteSize()
	payload := make([]byte, 0, len(b.bufferRecords)*recordSize)
	for _, record := range b.bufferRecords {
		payload = record.AppendTo(payload)
	}
	keys := make([]byte, 0, len(b.bufferKeys)*8)
	for _, key := range b.bufferKeys {
		keys = binary.LittleEndian.AppendUint64(keys, key)
	}

	if _, err := cacheFile.Write(payload); err != nil {
		return 0, apperrors.Newf(apperrors.ErrShardIO, "appending spill for shard %d: %v", b.shardID, err)
	}
	if _, err := keyFile.Write(keys); err != nil {
		return 0, apperrors.Newf(apperrors.ErrShardIO, "appending spill keys for shard %d: %v", b.shardID, err)
	}

	b.bufferKeys = b.bufferKeys[:0]
	b.bufferRecords = b.bufferRecords[:0]
	return int64(len(payload)), nil
}

// CacheSize returns the current size of the spill file in bytes. A missing
// file counts as zero.
func (b *Builder[R]) CacheSize() (int64, error) {
	info, err := os.Stat(b.paths.cache())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat spill file for shard %d: %w", b.shardID, err)
	}
	return info.Size(), nil
}

// Merge folds the spill files and the existing page file into a fresh page
// file. The result is written to temporary files and renamed into place, so a
// crash mid-merge leaves the previous generation readable. On success the
// spill files are truncated and the .meta sidecar is updated.
func (b *Builder[R]) Merge() error {
	if err := createDirectories(b.cfg, b.dbName); err != nil {
		return err
	}

	postings := make(map[uint64][]R)
	if err := b.readDataToCache(postings, nil); err != nil {
		return err
	}
	if err := b.readAppendCache(postings); err != nil {
		return err
	}

	meta, err := loadShardMeta(b.paths.meta())
	if err != nil {
		b.log.Warn("shard meta unreadable, resetting", "shard", b.shardID, "error", err)
		meta = newShardMeta()
	}

	totals := make(map[uint64]uint64, len(postings))
	for key, records := range postings {
		// Count values before truncation so the sketch keeps seeing records
		// the size cap drops.
		for _, record := range records {
			meta.values.Insert(record.RecordValue())
		}
		normalized, total := b.normalizeRecords(records)
		postings[key] = normalized
		totals[key] = total
	}
	meta.uniqueKeys = uint64(len(postings))

	if err := b.writeShard(postings, totals); err != nil {
		return err
	}
	if err := meta.save(b.paths.meta()); err != nil {
		return err
	}
	return b.TruncateCache()
}

// Rewrite loads the shard's page file, applies transform to every posting
// list, and writes the shard back in place. Rewritten lists are stored
// ordered by score descending. Pre-truncation totals are preserved; a
// transform returning an empty slice drops the key. The spill files are not
// touched.
func (b *Builder[R]) Rewrite(transform func(key uint64, records []R) []R) error {
	postings := make(map[uint64][]R)
	totals := make(map[uint64]uint64)
	if err := b.readDataToCache(postings, totals); err != nil {
		return err
	}
	if len(postings) == 0 {
		return nil
	}

	for key, records := range postings {
		replaced := transform(key, records)
		if len(replaced) == 0 {
			delete(postings, key)
			delete(totals, key)
			continue
		}
		sort.SliceStable(replaced, func(i, j int) bool {
			return replaced[i].RecordScore() > replaced[j].RecordScore()
		})
		postings[key] = replaced
	}

	meta, err := loadShardMeta(b.paths.meta())
	if err != nil {
		meta = newShardMeta()
	}
	meta.uniqueKeys = uint64(len(postings))

	if err := b.writeShard(postings, totals); err != nil {
		return err
	}
	return meta.save(b.paths.meta())
}

// readDataToCache streams the existing page file into postings, and when
// totals is non-nil records each key's pre-truncation total. A short read
// mid-page means the previous merge was interrupted; the remainder of the
// file is ignored and the already decoded pages are kept.
func (b *Builder[R]) readDataToCache(postings map[uint64][]R, totals map[uint64]uint64) error {
	f, err := os.Open(b.paths.data())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperrors.Newf(apperrors.ErrShardIO, "opening page file for shard %d: %v", b.shardID, err)
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, b.cfg.BufferLen)
	for {
		header, err := readPageHeader(reader, b.cfg.MaxNumKeys)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if apperrors.IsCorrupt(err) {
				return err
			}
			b.log.Warn("page file stopped before end, ignoring remainder",
				"shard", b.shardID, "error", err)
			return nil
		}

		payload := make([]byte, header.dataSize())
		if _, err := io.ReadFull(reader, payload); err != nil {
			b.log.Warn("page file stopped before end, ignoring remainder",
				"shard", b.shardID, "error", err)
			return nil
		}
		for i, key := range header.keys {
			start := header.offsets[i]
			end := start + header.lengths[i]
			if end > uint64(len(payload)) {
				return apperrors.Newf(apperrors.ErrCorruptShard,
					"shard %d page payload overrun for key %d", b.shardID, key)
			}
			postings[key] = decodeRecords(payload[start:end], postings[key])
			if totals != nil {
				totals[key] = header.totals[i]
			}
		}
	}
}

// readAppendCache decodes the spill files into postings. The two files are
// parallel arrays: record i in .cache belongs to key i in .cache.keys.
func (b *Builder[R]) readAppendCache(postings map[uint64][]R) error {
	keyData, err := os.ReadFile(b.paths.cacheKeys())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperrors.Newf(apperrors.ErrShardIO, "reading spill keys for shard %d: %v", b.shardID, err)
	}
	recordData, err := os.ReadFile(b.paths.cache())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperrors.Newf(apperrors.ErrShardIO, "reading spill for shard %d: %v", b.shardID, err)
	}

	var zero R
	recordSize := zero.ByteSize()
	numKeys := len(keyData) / 8
	numRecords := len(recordData) / recordSize
	if numKeys != numRecords {
		b.log.Warn("spill files disagree, truncating to shorter",
			"shard", b.shardID, "keys", numKeys, "records", numRecords)
		if numRecords < numKeys {
			numKeys = numRecords
		}
	}
	for i := 0; i < numKeys; i++ {
		key := binary.LittleEndian.Uint64(keyData[i*8 : i*8+8])
		record := zero.ReadFrom(recordData[i*recordSize : (i+1)*recordSize])
		postings[key] = append(postings[key], record)
	}
	return nil
}

// normalizeRecords sorts by value, sums duplicates, and truncates oversized
// posting lists. The returned total is the post-coalesce count before any
// truncation. A truncated list keeps the top-scoring records, arranged as
// consecutive sections each re-sorted ascending by value so readers can cut
// off after any section and still binary-search within it.
func (b *Builder[R]) normalizeRecords(records []R) ([]R, uint64) {
	sort.Slice(records, func(i, j int) bool { return records[i].Less(records[j]) })

	out := records[:0]
	for _, record := range records {
		if n := len(out); n > 0 && out[n-1].Equal(record) {
			out[n-1] = out[n-1].Combine(record)
			continue
		}
		out = append(out, record)
	}
	total := uint64(len(out))

	maxResults := b.cfg.MaxResults()
	if maxResults > 0 && len(out) > maxResults {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].RecordScore() > out[j].RecordScore()
		})
		out = out[:maxResults]
		sectionSize := b.cfg.MaxResultsPerSection
		for start := 0; start < len(out); start += sectionSize {
			end := start + sectionSize
			if end > len(out) {
				end = len(out)
			}
			section := out[start:end]
			sort.Slice(section, func(i, j int) bool { return section[i].Less(section[j]) })
		}
	}
	return out, total
}

// writeShard emits the new page and key directory files. Pages group keys by
// their hash table position (key mod hashTableSize); with a zero-sized table
// all keys share a single page and the key slice inside it is sorted so
// readers can binary-search it.
func (b *Builder[R]) writeShard(postings map[uint64][]R, totals map[uint64]uint64) error {
	dataTmp := b.paths.data() + ".tmp"
	dataFile, err := os.OpenFile(dataTmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "creating page file for shard %d: %v", b.shardID, err)
	}
	defer dataFile.Close()

	keysTmp := b.paths.keys() + ".tmp"
	keysFile, err := os.OpenFile(keysTmp, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "creating key file for shard %d: %v", b.shardID, err)
	}
	defer keysFile.Close()

	directory := newKeyFile(keysTmp, int(b.cfg.HashTableSize))
	if err := directory.reset(keysFile); err != nil {
		return err
	}

	tableSize := b.cfg.HashTableSize
	pages := make(map[uint64][]uint64)
	for key := range postings {
		pos := uint64(0)
		if tableSize > 0 {
			pos = key % tableSize
		}
		pages[pos] = append(pages[pos], key)
	}
	positions := make([]uint64, 0, len(pages))
	for pos := range pages {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

	writer := bufio.NewWriterSize(dataFile, b.cfg.BufferLen)
	var offset uint64
	for _, pos := range positions {
		keys := pages[pos]
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		if tableSize > 0 {
			if err := directory.writeSlot(keysFile, pos, offset); err != nil {
				return err
			}
		}
		written, err := writePage(writer, keys, postings, totals)
		if err != nil {
			return apperrors.Newf(apperrors.ErrShardIO, "writing page for shard %d: %v", b.shardID, err)
		}
		offset += written
	}
	if err := writer.Flush(); err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "flushing page file for shard %d: %v", b.shardID, err)
	}

	if err := dataFile.Sync(); err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "syncing page file for shard %d: %v", b.shardID, err)
	}
	if err := keysFile.Sync(); err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "syncing key file for shard %d: %v", b.shardID, err)
	}
	if err := os.Rename(dataTmp, b.paths.data()); err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "installing page file for shard %d: %v", b.shardID, err)
	}
	if err := os.Rename(keysTmp, b.paths.keys()); err != nil {
		return apperrors.Newf(apperrors.ErrShardIO, "installing key file for shard %d: %v", b.shardID, err)
	}
	return nil
}

// TruncateCache discards the in-memory buffer and empties the spill files.
func (b *Builder[R]) TruncateCache() error {
	b.bufferKeys = b.bufferKeys[:0]
	b.bufferRecords = b.bufferRecords[:0]
	for _, path := range []string{b.paths.cache(), b.paths.cacheKeys()} {
		if err := os.Truncate(path, 0); err != nil && !os.IsNotExist(err) {
			return apperrors.Newf(apperrors.ErrShardIO, "truncating spill file %s: %v", path, err)
		}
	}
	return nil
}

// Truncate removes all on-disk state for the shard: page file, key
// directory, meta sidecar, and spill files. The in-memory buffer is cleared.
func (b *Builder[R]) Truncate() error {
	b.bufferKeys = b.bufferKeys[:0]
	b.bufferRecords = b.bufferRecords[:0]
	paths := []string{
		b.paths.data(), b.paths.keys(), b.paths.meta(),
		b.paths.cache(), b.paths.cacheKeys(),
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return apperrors.Newf(apperrors.ErrShardIO, "removing %s: %v", path, err)
		}
	}
	return nil
}

// Meta loads the shard's meta sidecar.
func (b *Builder[R]) Meta() (*shardMeta, error) {
	return loadShardMeta(b.paths.meta())
}

// UniqueKeyCount returns the exact unique key count recorded by the last
// merge.
func (b *Builder[R]) UniqueKeyCount() (uint64, error) {
	meta, err := loadShardMeta(b.paths.meta())
	if err != nil {
		return 0, err
	}
	return meta.uniqueKeys, nil
}

// UniqueValueEstimate returns the HyperLogLog estimate of distinct record
// values stored in this shard.
func (b *Builder[R]) UniqueValueEstimate() (uint64, error) {
	meta, err := loadShardMeta(b.paths.meta())
	if err != nil {
		return 0, err
	}
	return meta.values.Count(), nil
}
