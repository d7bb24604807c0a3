package scanner

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"
)

// ScanPoint is a world-space hit position. It is a value type and never
// changes once recorded.
type ScanPoint = r3.Vec

// Category is an interned surface tag. Tags are resolved to categories once
// at configuration load; hits carry the category, never the tag string.
type Category uint16

// CategoryNone marks an untagged surface.
const CategoryNone Category = 0

// LayerMask selects which scene layers a ray may hit.
type LayerMask uint32

// AllLayers matches every layer.
const AllLayers = ^LayerMask(0)

// Has reports whether layer bit l is set in the mask.
func (m LayerMask) Has(l uint8) bool {
	return m&(1<<l) != 0
}

// Hit is the nearest intersection returned by a Raycaster.
type Hit struct {
	Point    ScanPoint
	Category Category
	Distance float64
}

// TargetHandle identifies a visual target owned by the renderer.
type TargetHandle string

// Record is one encoded slot of a published frame: offset x, y, z relative
// to the anchor, and the validity flag.
type Record [4]float32

// Frame is a fully encoded buffer ready for the renderer.
type Frame struct {
	Target  TargetHandle
	Records []Record
	Width   int
	Height  int
}

// Raycaster resolves a single ray against the scene. A miss returns false
// and is a normal outcome, not an error.
type Raycaster interface {
	Cast(origin, dir r3.Vec, maxDistance float64, mask LayerMask) (Hit, bool)
}

// Renderer is the downstream visual-effect system.
type Renderer interface {
	// CreateVisualTarget instantiates a new visual target from prefab at
	// spawn. It is called once per activation or rotation.
	CreateVisualTarget(prefab string, spawn r3.Vec) (TargetHandle, error)

	// Publish hands a full frame to the target. Implementations must copy
	// records if they keep them; the caller reuses the slice next tick.
	Publish(h TargetHandle, records []Record, width, height int) error
}

// TargetLocator reports the current world position of a visual target.
// Renderers implement it when targets can move after spawn.
type TargetLocator interface {
	TargetPosition(h TargetHandle) (r3.Vec, bool)
}

// Trigger is the scan input source polled once per tick.
type Trigger interface {
	IsHeld() bool
	WasPressedThisTick() bool
}

// TriggerState is a plain snapshot Trigger, handy for drivers and tests.
type TriggerState struct {
	Held    bool
	Pressed bool
}

func (t TriggerState) IsHeld() bool             { return t.Held }
func (t TriggerState) WasPressedThisTick() bool { return t.Pressed }

var (
	// ErrInvalidConfig is returned when a scanner or channel configuration
	// is rejected at load time.
	ErrInvalidConfig = errors.New("invalid scanner configuration")

	// ErrChannelInactive is returned when a point is offered to a channel
	// that was never activated.
	ErrChannelInactive = errors.New("channel not activated")

	// ErrRotationInProgress guards against a second rotation starting
	// before the previous one installed its new buffer.
	ErrRotationInProgress = errors.New("rotation already in progress")

	// ErrUnknownTag is returned when a tag name has not been interned.
	ErrUnknownTag = errors.New("unknown surface tag")
)
