// Package errors defines the sentinel errors shared across the index core
// and an AppError wrapper that attaches context to them.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrShardIO      = errors.New("shard io failure")
	ErrCorruptShard = errors.New("corrupt shard")
	ErrAllocation   = errors.New("allocation failure")
	ErrDownload     = errors.New("download failure")
	ErrDecompress   = errors.New("decompress failure")
	ErrKeyNotFound  = errors.New("key not found")
	ErrStoreFull    = errors.New("store full")
	ErrInternal     = errors.New("internal error")
	ErrTimeout      = errors.New("operation timed out")
)

// AppError pairs a sentinel error with a human-readable message.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsCorrupt reports whether err is (or wraps) a shard corruption error.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptShard)
}
