package index

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	apperrors "github.com/openwebindex/platform/pkg/errors"
)

// EmptySlot marks an unused slot in the .keys directory file.
const EmptySlot = math.MaxUint64

func floatBits(f float32) uint32 {
	return math.Float32bits(f)
}

func floatFromBits(u uint32) float32 {
	return math.Float32frombits(u)
}

// pageHeader is the decoded fixed part of one page in a .data file: the keys
// grouped on this page and, per key, the payload offset within the page's
// data block, the payload length in bytes, and the total result count
// before truncation.
type pageHeader struct {
	keys    []uint64
	offsets []uint64
	lengths []uint64
	totals  []uint64
}

// dataSize returns the total payload size declared by the header.
func (h *pageHeader) dataSize() uint64 {
	var size uint64
	for _, l := range h.lengths {
		size += l
	}
	return size
}

// readPageHeader decodes a page header from r. It returns io.EOF (untouched)
// when the stream ends exactly on a page boundary, and ErrCorruptShard when
// the declared key count exceeds maxKeys.
func readPageHeader(r io.Reader, maxKeys uint64) (*pageHeader, error) {
	var countBuf [8]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading page key count: %w", err)
	}
	numKeys := binary.LittleEndian.Uint64(countBuf[:])
	if numKeys > maxKeys {
		return nil, apperrors.Newf(apperrors.ErrCorruptShard,
			"page declares %d keys, maximum is %d", numKeys, maxKeys)
	}

	header := &pageHeader{
		keys:    make([]uint64, numKeys),
		offsets: make([]uint64, numKeys),
		lengths: make([]uint64, numKeys),
		totals:  make([]uint64, numKeys),
	}
	for _, dst := range [][]uint64{header.keys, header.offsets, header.lengths, header.totals} {
		if err := readUint64Slice(r, dst); err != nil {
			return nil, fmt.Errorf("reading page header arrays: %w", err)
		}
	}
	return header, nil
}

func readUint64Slice(r io.Reader, dst []uint64) error {
	buf := make([]byte, len(dst)*8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	return nil
}

// writePage emits one page: the header arrays followed by the concatenated
// payloads in key order. keys must already be sorted; postings and totals are
// looked up per key. It returns the number of bytes written.
func writePage[R Record[R]](w io.Writer, keys []uint64, postings map[uint64][]R, totals map[uint64]uint64) (uint64, error) {
	var zero R
	recordSize := uint64(zero.ByteSize())

	header := make([]byte, 0, 8+len(keys)*32)
	header = binary.LittleEndian.AppendUint64(header, uint64(len(keys)))
	for _, key := range keys {
		header = binary.LittleEndian.AppendUint64(header, key)
	}
	var pos uint64
	for _, key := range keys {
		header = binary.LittleEndian.AppendUint64(header, pos)
		pos += uint64(len(postings[key])) * recordSize
	}
	for _, key := range keys {
		header = binary.LittleEndian.AppendUint64(header, uint64(len(postings[key]))*recordSize)
	}
	for _, key := range keys {
		header = binary.LittleEndian.AppendUint64(header, totals[key])
	}
	if _, err := w.Write(header); err != nil {
		return 0, fmt.Errorf("writing page header: %w", err)
	}

	written := uint64(len(header))
	payload := make([]byte, 0, 64*1024)
	for _, key := range keys {
		payload = payload[:0]
		for _, record := range postings[key] {
			payload = record.AppendTo(payload)
		}
		if _, err := w.Write(payload); err != nil {
			return 0, fmt.Errorf("writing page payload: %w", err)
		}
		written += uint64(len(payload))
	}
	return written, nil
}

// decodeRecords parses every whole record in buf and appends them to dst.
func decodeRecords[R Record[R]](buf []byte, dst []R) []R {
	var zero R
	size := zero.ByteSize()
	for off := 0; off+size <= len(buf); off += size {
		dst = append(dst, zero.ReadFrom(buf[off:off+size]))
	}
	return dst
}
