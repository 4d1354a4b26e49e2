package index

import "encoding/binary"

// Record is the fixed-size payload stored in posting lists. Implementations
// are plain value types with a stable little-endian byte layout. The type
// parameter is the implementing type itself so that builders and readers can
// decode, combine, and order records without reflection.
type Record[R any] interface {
	// RecordValue returns the document identity (domain or URL hash).
	RecordValue() uint64
	// RecordScore returns the ranking score.
	RecordScore() float32
	// Less orders records by value; equal-value records compare equal.
	Less(other R) bool
	// Equal reports value equality.
	Equal(other R) bool
	// Combine sums the numeric fields of two records with equal values.
	Combine(other R) R
	// WithScore returns a copy with the score replaced.
	WithScore(score float32) R
	// ByteSize returns the fixed serialized size.
	ByteSize() int
	// AppendTo appends the little-endian serialization to b.
	AppendTo(b []byte) []byte
	// ReadFrom decodes a record from the first ByteSize bytes of b.
	ReadFrom(b []byte) R
}

// DomainRecord is a posting for the domain-level index: the domain hash and
// its accumulated score.
type DomainRecord struct {
	Value uint64
	Score float32
}

func (r DomainRecord) RecordValue() uint64 { return r.Value }

func (r DomainRecord) RecordScore() float32 { return r.Score }

func (r DomainRecord) Less(other DomainRecord) bool { return r.Value < other.Value }

func (r DomainRecord) Equal(other DomainRecord) bool { return r.Value == other.Value }

func (r DomainRecord) Combine(other DomainRecord) DomainRecord {
	r.Score += other.Score
	return r
}

func (r DomainRecord) WithScore(score float32) DomainRecord {
	r.Score = score
	return r
}

func (r DomainRecord) ByteSize() int { return 12 }

func (r DomainRecord) AppendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, r.Value)
	return binary.LittleEndian.AppendUint32(b, floatBits(r.Score))
}

func (r DomainRecord) ReadFrom(b []byte) DomainRecord {
	return DomainRecord{
		Value: binary.LittleEndian.Uint64(b[0:8]),
		Score: floatFromBits(binary.LittleEndian.Uint32(b[8:12])),
	}
}

// URLRecord is a posting for the URL-level index: the URL hash and its
// accumulated score.
type URLRecord struct {
	Value uint64
	Score float32
}

func (r URLRecord) RecordValue() uint64 { return r.Value }

func (r URLRecord) RecordScore() float32 { return r.Score }

func (r URLRecord) Less(other URLRecord) bool { return r.Value < other.Value }

func (r URLRecord) Equal(other URLRecord) bool { return r.Value == other.Value }

func (r URLRecord) Combine(other URLRecord) URLRecord {
	r.Score += other.Score
	return r
}

func (r URLRecord) WithScore(score float32) URLRecord {
	r.Score = score
	return r
}

func (r URLRecord) ByteSize() int { return 12 }

func (r URLRecord) AppendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, r.Value)
	return binary.LittleEndian.AppendUint32(b, floatBits(r.Score))
}

func (r URLRecord) ReadFrom(b []byte) URLRecord {
	return URLRecord{
		Value: binary.LittleEndian.Uint64(b[0:8]),
		Score: floatFromBits(binary.LittleEndian.Uint32(b[8:12])),
	}
}

// CountedRecord is a posting that additionally tracks an occurrence count,
// used by the word-frequency level where scores are normalized by document
// size after the merge pass.
type CountedRecord struct {
	Value uint64
	Count uint32
	Score float32
}

func (r CountedRecord) RecordValue() uint64 { return r.Value }

func (r CountedRecord) RecordScore() float32 { return r.Score }

func (r CountedRecord) Less(other CountedRecord) bool { return r.Value < other.Value }

func (r CountedRecord) Equal(other CountedRecord) bool { return r.Value == other.Value }

func (r CountedRecord) Combine(other CountedRecord) CountedRecord {
	r.Count += other.Count
	r.Score += other.Score
	return r
}

func (r CountedRecord) WithScore(score float32) CountedRecord {
	r.Score = score
	return r
}

func (r CountedRecord) ByteSize() int { return 16 }

func (r CountedRecord) AppendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, r.Value)
	b = binary.LittleEndian.AppendUint32(b, r.Count)
	return binary.LittleEndian.AppendUint32(b, floatBits(r.Score))
}

func (r CountedRecord) ReadFrom(b []byte) CountedRecord {
	return CountedRecord{
		Value: binary.LittleEndian.Uint64(b[0:8]),
		Count: binary.LittleEndian.Uint32(b[8:12]),
		Score: floatFromBits(binary.LittleEndian.Uint32(b[12:16])),
	}
}
