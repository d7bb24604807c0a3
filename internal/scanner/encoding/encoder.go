// Package encoding packs a point buffer into the dense positional frame
// consumed by the visual-effect renderer.
//
// Slot convention: index 0 is a normal data slot. A slot holding a point is
// (x-ax, y-ay, z-az, ValidFlag); every slot past the last point is all zero.
package encoding

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/scanner"
)

// ValidFlag is the fourth component of a slot that holds a point.
const ValidFlag float32 = 1

// Layout describes how capacity maps to frame dimensions.
type Layout int

const (
	// LayoutGrid is a resolution x resolution square.
	LayoutGrid Layout = iota
	// LayoutStrip is a resolution x 1 strip.
	LayoutStrip
)

// ParseLayout maps a config string to a Layout.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "grid", "":
		return LayoutGrid, nil
	case "strip":
		return LayoutStrip, nil
	}
	return 0, fmt.Errorf("unknown frame layout %q", s)
}

func (l Layout) String() string {
	if l == LayoutStrip {
		return "strip"
	}
	return "grid"
}

// Dimensions returns the frame width and height for resolution.
func (l Layout) Dimensions(resolution int) (width, height int) {
	if l == LayoutStrip {
		return resolution, 1
	}
	return resolution, resolution
}

// AnchorMode selects which origin is subtracted from points.
type AnchorMode int

const (
	// AnchorFixed uses the anchor captured when the buffer was created.
	AnchorFixed AnchorMode = iota
	// AnchorLive asks the renderer for the target position at encode time.
	AnchorLive
)

// ParseAnchorMode maps a config string to an AnchorMode.
func ParseAnchorMode(s string) (AnchorMode, error) {
	switch s {
	case "fixed", "":
		return AnchorFixed, nil
	case "live":
		return AnchorLive, nil
	}
	return 0, fmt.Errorf("unknown anchor mode %q", s)
}

func (m AnchorMode) String() string {
	if m == AnchorLive {
		return "live"
	}
	return "fixed"
}

// Source is the read side of a point buffer.
type Source interface {
	Len() int
	Cap() int
	At(i int) scanner.ScanPoint
	Anchor() r3.Vec
	Target() scanner.TargetHandle
}

// Encode writes every slot of dst from src relative to anchor and returns
// dst resized to src.Cap(). Every slot is rewritten, so dst may hold stale
// data from a previous frame.
func Encode(src Source, anchor r3.Vec, dst []scanner.Record) []scanner.Record {
	n := src.Cap()
	if cap(dst) < n {
		dst = make([]scanner.Record, n)
	}
	dst = dst[:n]

	m := src.Len()
	for i := 0; i < m; i++ {
		p := src.At(i)
		dst[i] = scanner.Record{
			float32(p.X - anchor.X),
			float32(p.Y - anchor.Y),
			float32(p.Z - anchor.Z),
			ValidFlag,
		}
	}
	clear(dst[m:])
	return dst
}

// Decode converts the valid slots of a frame back into world points.
func Decode(records []scanner.Record, anchor r3.Vec) []scanner.ScanPoint {
	var out []scanner.ScanPoint
	for _, r := range records {
		if r[3] != ValidFlag {
			continue
		}
		out = append(out, r3.Vec{
			X: float64(r[0]) + anchor.X,
			Y: float64(r[1]) + anchor.Y,
			Z: float64(r[2]) + anchor.Z,
		})
	}
	return out
}

// CountValid returns the number of slots carrying a point.
func CountValid(records []scanner.Record) int {
	n := 0
	for _, r := range records {
		if r[3] == ValidFlag {
			n++
		}
	}
	return n
}

// Encoder owns the reusable record array of one channel.
type Encoder struct {
	layout  Layout
	mode    AnchorMode
	locator scanner.TargetLocator
	records []scanner.Record
	count   uint64
}

// NewEncoder returns an encoder. locator is required for AnchorLive.
func NewEncoder(layout Layout, mode AnchorMode, locator scanner.TargetLocator) (*Encoder, error) {
	if mode == AnchorLive && locator == nil {
		return nil, fmt.Errorf("%w: live anchor mode needs a renderer that reports target positions", scanner.ErrInvalidConfig)
	}
	return &Encoder{layout: layout, mode: mode, locator: locator}, nil
}

// Layout returns the configured layout.
func (e *Encoder) Layout() Layout { return e.layout }

// Count returns how many frames have been encoded.
func (e *Encoder) Count() uint64 { return e.count }

// Anchor resolves the origin to subtract for src.
func (e *Encoder) Anchor(src Source) r3.Vec {
	if e.mode == AnchorLive {
		if pos, ok := e.locator.TargetPosition(src.Target()); ok {
			return pos
		}
	}
	return src.Anchor()
}

// Frame re-encodes src in full. The returned records alias the encoder's
// internal array and are overwritten by the next call.
func (e *Encoder) Frame(src Source) scanner.Frame {
	e.records = Encode(src, e.Anchor(src), e.records)
	e.count++

	w, h := e.dimensions(src.Cap())
	return scanner.Frame{
		Target:  src.Target(),
		Records: e.records,
		Width:   w,
		Height:  h,
	}
}

// dimensions derives width and height from the capacity so that a grid
// buffer of resolution r (capacity r*r) is reported as r x r.
func (e *Encoder) dimensions(capacity int) (int, int) {
	if e.layout == LayoutStrip {
		return capacity, 1
	}
	side := isqrt(capacity)
	if side*side == capacity {
		return side, side
	}
	return capacity, 1
}

func isqrt(n int) int {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
