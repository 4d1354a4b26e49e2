package index

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// keyFile is the fixed-size slot directory that maps key mod hashTableSize to
// the byte offset of the page holding that key inside the .data file. A slot
// holding EmptySlot means no key hashing there has been indexed. When
// hashTableSize is zero the directory is unused and readers fall back to a
// single-page binary search.
type keyFile struct {
	path string
	size int
}

func newKeyFile(path string, hashTableSize int) keyFile {
	return keyFile{path: path, size: hashTableSize}
}

// reset truncates the directory and fills every slot with EmptySlot.
func (k keyFile) reset(f *os.File) error {
	if k.size == 0 {
		return nil
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating key file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding key file: %w", err)
	}
	const chunkSlots = 4096
	chunk := make([]byte, chunkSlots*8)
	for i := 0; i < chunkSlots; i++ {
		binary.LittleEndian.PutUint64(chunk[i*8:], EmptySlot)
	}
	remaining := k.size
	for remaining > 0 {
		n := remaining
		if n > chunkSlots {
			n = chunkSlots
		}
		if _, err := f.Write(chunk[:n*8]); err != nil {
			return fmt.Errorf("prefilling key file: %w", err)
		}
		remaining -= n
	}
	return nil
}

// writeSlot records that the page for hash table position pos starts at
// offset in the .data file.
func (k keyFile) writeSlot(f *os.File, pos uint64, offset uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], offset)
	if _, err := f.WriteAt(buf[:], int64(pos*8)); err != nil {
		return fmt.Errorf("writing key slot %d: %w", pos, err)
	}
	return nil
}

// readSlot returns the page offset stored for hash table position pos.
func (k keyFile) readSlot(f *os.File, pos uint64) (uint64, error) {
	var buf [8]byte
	if _, err := f.ReadAt(buf[:], int64(pos*8)); err != nil {
		return 0, fmt.Errorf("reading key slot %d: %w", pos, err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
