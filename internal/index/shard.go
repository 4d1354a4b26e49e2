package index

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/openwebindex/platform/pkg/config"
	apperrors "github.com/openwebindex/platform/pkg/errors"
)

// Shard reads posting lists from one shard's page file. File handles are
// opened lazily on the first Find and kept open across calls; Reopen drops
// them so the next Find sees the files a merge just renamed into place. Find
// is safe for concurrent use.
type Shard[R Record[R]] struct {
	cfg     config.IndexConfig
	shardID int
	paths   shardPaths

	mu       sync.Mutex
	dataFile *os.File
	keysFile *os.File
	opened   bool
	empty    bool
}

// NewShard returns a reader for one shard. It does not touch the disk.
func NewShard[R Record[R]](cfg config.IndexConfig, dbName string, shardID int) *Shard[R] {
	return &Shard[R]{
		cfg:     cfg,
		shardID: shardID,
		paths:   newShardPaths(cfg, dbName, shardID),
	}
}

// ShardID returns the shard this reader serves.
func (s *Shard[R]) ShardID() int { return s.shardID }

// Result is one decoded posting list: the records stored for a key and the
// total number of postings that existed before truncation.
type Result[R Record[R]] struct {
	Records []R
	Total   uint64
}

// Find returns the posting list for key. A key that was never indexed, a
// missing page file, and an empty page file all yield an empty result, not an
// error.
func (s *Shard[R]) Find(key uint64) (Result[R], error) {
	dataFile, keysFile, err := s.files()
	if err != nil {
		return Result[R]{}, err
	}
	if dataFile == nil {
		return Result[R]{}, nil
	}

	pageOffset, ok, err := s.pageOffset(keysFile, key)
	if err != nil || !ok {
		return Result[R]{}, err
	}

	section := io.NewSectionReader(dataFile, int64(pageOffset), 1<<62)
	header, err := readPageHeader(section, s.cfg.MaxNumKeys)
	if err != nil {
		if err == io.EOF {
			return Result[R]{}, nil
		}
		return Result[R]{}, fmt.Errorf("shard %d: %w", s.shardID, err)
	}

	idx := sort.Search(len(header.keys), func(i int) bool { return header.keys[i] >= key })
	if idx == len(header.keys) || header.keys[idx] != key {
		return Result[R]{}, nil
	}

	headerSize := uint64(8 + len(header.keys)*32)
	payloadStart := pageOffset + headerSize + header.offsets[idx]
	length := header.lengths[idx]

	records, err := s.readPayload(dataFile, payloadStart, length)
	if err != nil {
		return Result[R]{}, err
	}
	return Result[R]{Records: records, Total: header.totals[idx]}, nil
}

// readPayload streams length bytes starting at off in chunks no larger than
// the configured buffer length and decodes them into records.
func (s *Shard[R]) readPayload(f *os.File, off, length uint64) ([]R, error) {
	var zero R
	records := make([]R, 0, length/uint64(zero.ByteSize()))

	bufferLen := uint64(s.cfg.BufferLen)
	if bufferLen == 0 {
		bufferLen = 64 * 1024
	}
	// Keep chunks record-aligned so decodeRecords never splits a record
	// across reads.
	recordSize := uint64(zero.ByteSize())
	bufferLen -= bufferLen % recordSize
	if bufferLen == 0 {
		bufferLen = recordSize
	}

	buf := make([]byte, bufferLen)
	var read uint64
	for read < length {
		chunk := length - read
		if chunk > bufferLen {
			chunk = bufferLen
		}
		if _, err := f.ReadAt(buf[:chunk], int64(off+read)); err != nil {
			return nil, apperrors.Newf(apperrors.ErrShardIO,
				"shard %d: reading posting payload: %v", s.shardID, err)
		}
		records = decodeRecords(buf[:chunk], records)
		read += chunk
	}
	return records, nil
}

// pageOffset resolves the page a key lives on. With a hash table directory
// the slot at key mod tableSize holds the offset; without one every key
// shares the page at offset zero.
func (s *Shard[R]) pageOffset(keysFile *os.File, key uint64) (uint64, bool, error) {
	tableSize := s.cfg.HashTableSize
	if tableSize == 0 {
		return 0, true, nil
	}
	if keysFile == nil {
		return 0, false, nil
	}
	directory := newKeyFile(s.paths.keys(), int(tableSize))
	offset, err := directory.readSlot(keysFile, key%tableSize)
	if err != nil {
		return 0, false, apperrors.Newf(apperrors.ErrShardIO,
			"shard %d: %v", s.shardID, err)
	}
	if offset == EmptySlot {
		return 0, false, nil
	}
	return offset, true, nil
}

// files opens the page and directory files once and caches the handles. A
// missing or empty page file marks the shard empty; Reopen resets that so new
// data becomes visible.
func (s *Shard[R]) files() (*os.File, *os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		if s.empty {
			return nil, nil, nil
		}
		return s.dataFile, s.keysFile, nil
	}

	dataFile, err := os.Open(s.paths.data())
	if err != nil {
		if os.IsNotExist(err) {
			s.opened = true
			s.empty = true
			return nil, nil, nil
		}
		return nil, nil, apperrors.Newf(apperrors.ErrShardIO,
			"shard %d: opening page file: %v", s.shardID, err)
	}
	info, err := dataFile.Stat()
	if err != nil {
		dataFile.Close()
		return nil, nil, apperrors.Newf(apperrors.ErrShardIO,
			"shard %d: stat page file: %v", s.shardID, err)
	}
	if info.Size() == 0 {
		dataFile.Close()
		s.opened = true
		s.empty = true
		return nil, nil, nil
	}

	var keysFile *os.File
	if s.cfg.HashTableSize > 0 {
		keysFile, err = os.Open(s.paths.keys())
		if err != nil {
			dataFile.Close()
			if os.IsNotExist(err) {
				s.opened = true
				s.empty = true
				return nil, nil, nil
			}
			return nil, nil, apperrors.Newf(apperrors.ErrShardIO,
				"shard %d: opening key file: %v", s.shardID, err)
		}
	}

	s.dataFile = dataFile
	s.keysFile = keysFile
	s.opened = true
	s.empty = false
	return s.dataFile, s.keysFile, nil
}

// Reopen closes any cached handles so the next Find opens the current files.
// Called after a merge replaces the shard's generation.
func (s *Shard[R]) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// Close releases the cached file handles.
func (s *Shard[R]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Shard[R]) closeLocked() {
	if s.dataFile != nil {
		s.dataFile.Close()
		s.dataFile = nil
	}
	if s.keysFile != nil {
		s.keysFile.Close()
		s.keysFile = nil
	}
	s.opened = false
	s.empty = false
}
