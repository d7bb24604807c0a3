package pointbuf

import (
	"fmt"

	"github.com/banshee-data/lidarscan/internal/scanner"
)

// Policy decides what happens when the active buffer is full.
type Policy int

const (
	// PolicyRotate retires the full buffer and installs a fresh one with a
	// new visual target.
	PolicyRotate Policy = iota
	// PolicyEvictOldest drops the oldest point to make room (ring mode).
	PolicyEvictOldest
)

func (p Policy) String() string {
	if p == PolicyEvictOldest {
		return "evict_oldest"
	}
	return "rotate"
}

// Outcome reports what Offer did with a point.
type Outcome int

const (
	OutcomeAppended Outcome = iota
	OutcomeEvicted
	OutcomeRotated
)

// RotateFunc allocates the replacement buffer during a rotation. It is the
// only place a new visual target is requested.
type RotateFunc func() (*Buffer, error)

// Lineage is the buffer history of one channel: the active buffer plus the
// append-only list of retired ones.
type Lineage struct {
	policy   Policy
	active   *Buffer
	retired  []*Buffer
	rotating bool
}

// NewLineage returns an inactive lineage; Activate must be called before
// points are offered.
func NewLineage(policy Policy) *Lineage {
	return &Lineage{policy: policy}
}

func (l *Lineage) Policy() Policy     { return l.policy }
func (l *Lineage) Active() *Buffer    { return l.active }
func (l *Lineage) Retired() []*Buffer { return l.retired }

// Activate installs the first buffer of the lineage.
func (l *Lineage) Activate(b *Buffer) error {
	if b == nil {
		return fmt.Errorf("activate: nil buffer")
	}
	if l.active != nil {
		return fmt.Errorf("activate: lineage already active")
	}
	l.active = b
	return nil
}

// Offer routes p into the active buffer according to the policy. In rotate
// mode the point that would overflow the buffer goes into the replacement
// buffer returned by rotate, never into the retired one.
func (l *Lineage) Offer(p scanner.ScanPoint, rotate RotateFunc) (Outcome, error) {
	if l.active == nil {
		return 0, scanner.ErrChannelInactive
	}
	if !l.active.Full() {
		return OutcomeAppended, l.active.Append(p)
	}
	if l.policy == PolicyEvictOldest {
		return OutcomeEvicted, l.active.EvictAppend(p)
	}

	if err := l.rotate(rotate); err != nil {
		return 0, err
	}
	return OutcomeRotated, l.active.Append(p)
}

func (l *Lineage) rotate(rotate RotateFunc) error {
	if l.rotating {
		return scanner.ErrRotationInProgress
	}
	l.rotating = true
	defer func() { l.rotating = false }()

	next, err := rotate()
	if err != nil {
		return fmt.Errorf("rotate buffer: %w", err)
	}
	if next == nil || next.Retired() || next.Len() != 0 {
		return fmt.Errorf("rotate buffer: replacement must be a fresh buffer")
	}

	old := l.active
	old.Retire()
	l.retired = append(l.retired, old)
	l.active = next
	return nil
}
