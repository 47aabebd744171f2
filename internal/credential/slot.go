package credential

import (
	"context"
	"errors"
	"fmt"
)

// MaxPayload bounds how much a client will read from a single slot.
const MaxPayload = 4096

// ErrTooLarge is returned by ReadChunked when the slot exceeds MaxPayload.
var ErrTooLarge = errors.New("credential payload too large")

// Slot is the single readable value exposed by a broadcast.
type Slot struct {
	value []byte
}

// NewSlot copies value into a new slot.
func NewSlot(value []byte) *Slot {
	return &Slot{value: append([]byte(nil), value...)}
}

// Len returns the size of the value in bytes.
func (s *Slot) Len() int {
	return len(s.value)
}

// ReadAt returns the suffix of the value starting at offset. An offset at or
// past the end returns an empty slice, which signals end of data.
func (s *Slot) ReadAt(offset int) []byte {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.value) {
		return []byte{}
	}
	return append([]byte(nil), s.value[offset:]...)
}

// OffsetReader reads a remote slot starting at an offset. Implementations
// return at most one transport payload per call.
type OffsetReader interface {
	ReadAt(ctx context.Context, offset int) ([]byte, error)
}

// ReadChunked reassembles a slot by reading at increasing offsets until a read
// returns fewer than chunk bytes.
func ReadChunked(ctx context.Context, r OffsetReader, chunk int) ([]byte, error) {
	if chunk <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunk)
	}

	var buf []byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part, err := r.ReadAt(ctx, len(buf))
		if err != nil {
			return nil, fmt.Errorf("read at offset %d: %w", len(buf), err)
		}
		buf = append(buf, part...)
		if len(buf) > MaxPayload {
			return nil, ErrTooLarge
		}
		if len(part) < chunk {
			return buf, nil
		}
	}
}
