package pipeline

import (
	"fmt"

	"github.com/streamtag/streamtag/internal/domain/batch"
)

// FlushDecision tells the caller whether the buffer is ready to flush.
type FlushDecision int

// Flush decisions.
const (
	Continue FlushDecision = iota
	Flush
)

// Buffer accumulates write operations until a flush threshold fires. It owns
// no network state and is not safe for concurrent use: one filler drives it.
type Buffer struct {
	size     int
	maxBytes int
	ops      []batch.Operation
	bytes    int
}

// NewBuffer creates a buffer flushing every size operations. The threshold
// is fixed for the buffer's lifetime. maxBytes optionally adds a byte-size
// trigger; zero disables it.
func NewBuffer(size, maxBytes int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", size)
	}
	return &Buffer{
		size:     size,
		maxBytes: maxBytes,
		ops:      make([]batch.Operation, 0, size),
	}, nil
}

// Add appends an operation. The caller must not mutate op afterwards.
// Returns Flush once a threshold is reached; the caller then takes the
// accumulated batch via Drain.
func (b *Buffer) Add(op batch.Operation) FlushDecision {
	b.ops = append(b.ops, op)
	b.bytes += op.SizeBytes()
	if len(b.ops) >= b.size {
		return Flush
	}
	if b.maxBytes > 0 && b.bytes >= b.maxBytes {
		return Flush
	}
	return Continue
}

// Drain returns the accumulated batch and resets the buffer. Safe to call on
// an empty buffer: returns an empty batch.
func (b *Buffer) Drain() []batch.Operation {
	ops := b.ops
	b.ops = make([]batch.Operation, 0, b.size)
	b.bytes = 0
	return ops
}

// Len returns the number of buffered operations.
func (b *Buffer) Len() int { return len(b.ops) }
