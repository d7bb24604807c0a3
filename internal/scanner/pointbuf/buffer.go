// Package pointbuf owns the fixed-capacity point buffers of a scan channel
// and the overflow policy applied when a buffer fills up.
package pointbuf

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/scanner"
)

var (
	// ErrBufferFull is returned by Append when Len() == Cap().
	ErrBufferFull = errors.New("point buffer full")
	// ErrBufferRetired is returned by every mutation after Retire.
	ErrBufferRetired = errors.New("point buffer retired")
)

// Buffer is an ordered, bounded collection of scan points feeding one visual
// target. Points are stored in a ring so that evict-oldest is O(1); At(i)
// always returns points in arrival order.
type Buffer struct {
	id        string
	capacity  int
	points    []scanner.ScanPoint
	head      int // index of the oldest point in points
	size      int
	anchor    r3.Vec
	target    scanner.TargetHandle
	retired   bool
	createdAt time.Time
}

// New allocates an empty buffer. capacity must be positive.
func New(capacity int, anchor r3.Vec, target scanner.TargetHandle) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: buffer capacity must be positive, got %d", scanner.ErrInvalidConfig, capacity)
	}
	return &Buffer{
		id:        uuid.NewString(),
		capacity:  capacity,
		points:    make([]scanner.ScanPoint, capacity),
		anchor:    anchor,
		target:    target,
		createdAt: time.Now(),
	}, nil
}

func (b *Buffer) ID() string                   { return b.id }
func (b *Buffer) Len() int                     { return b.size }
func (b *Buffer) Cap() int                     { return b.capacity }
func (b *Buffer) Full() bool                   { return b.size == b.capacity }
func (b *Buffer) Anchor() r3.Vec               { return b.anchor }
func (b *Buffer) Target() scanner.TargetHandle { return b.target }
func (b *Buffer) Retired() bool                { return b.retired }
func (b *Buffer) CreatedAt() time.Time         { return b.createdAt }

// At returns the i-th point in arrival order. It panics if i is out of
// range, like a slice index.
func (b *Buffer) At(i int) scanner.ScanPoint {
	if i < 0 || i >= b.size {
		panic(fmt.Sprintf("pointbuf: index %d out of range [0,%d)", i, b.size))
	}
	return b.points[(b.head+i)%b.capacity]
}

// Points returns a copy of the buffer contents in arrival order.
func (b *Buffer) Points() []scanner.ScanPoint {
	out := make([]scanner.ScanPoint, b.size)
	for i := range out {
		out[i] = b.points[(b.head+i)%b.capacity]
	}
	return out
}

// Append adds p at the end of the buffer.
func (b *Buffer) Append(p scanner.ScanPoint) error {
	if b.retired {
		return ErrBufferRetired
	}
	if b.size == b.capacity {
		return ErrBufferFull
	}
	b.points[(b.head+b.size)%b.capacity] = p
	b.size++
	return nil
}

// EvictAppend drops the oldest point and appends p. On a buffer that is not
// yet full it behaves like Append.
func (b *Buffer) EvictAppend(p scanner.ScanPoint) error {
	if b.retired {
		return ErrBufferRetired
	}
	if b.size < b.capacity {
		return b.Append(p)
	}
	b.points[b.head] = p
	b.head = (b.head + 1) % b.capacity
	return nil
}

// Retire freezes the buffer. Retiring twice is a no-op.
func (b *Buffer) Retire() {
	b.retired = true
}
