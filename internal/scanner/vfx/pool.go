// Package vfx is an in-memory stand-in for the particle renderer. Every
// visual target keeps the last frame it was given, so the monitor and
// plotter can inspect what the engine would be drawing.
package vfx

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/monitoring"
	"github.com/banshee-data/lidarscan/internal/scanner"
	"github.com/banshee-data/lidarscan/internal/scanner/encoding"
)

// Target is one visual-effect instance.
type Target struct {
	Handle    scanner.TargetHandle
	Prefab    string
	Position  r3.Vec
	CreatedAt time.Time

	// Latest frame; Records is a private copy.
	Records []scanner.Record
	Width   int
	Height  int

	Publishes uint64
	Reinits   uint64 // publishes that changed the frame dimensions
}

// Valid returns the number of slots holding a point in the latest frame.
func (t *Target) Valid() int {
	return encoding.CountValid(t.Records)
}

// Pool implements scanner.Renderer and scanner.TargetLocator. It is safe for
// concurrent use.
type Pool struct {
	mu      sync.RWMutex
	targets map[scanner.TargetHandle]*Target
	order   []scanner.TargetHandle
	prefabs map[string]bool // nil allows any prefab
}

// NewPool returns an empty pool. When prefabs is non-empty only those
// prefab names can be instantiated.
func NewPool(prefabs ...string) *Pool {
	p := &Pool{targets: make(map[scanner.TargetHandle]*Target)}
	if len(prefabs) > 0 {
		p.prefabs = make(map[string]bool, len(prefabs))
		for _, name := range prefabs {
			p.prefabs[name] = true
		}
	}
	return p
}

// CreateVisualTarget instantiates prefab at spawn.
func (p *Pool) CreateVisualTarget(prefab string, spawn r3.Vec) (scanner.TargetHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.prefabs != nil && !p.prefabs[prefab] {
		return "", fmt.Errorf("unknown prefab %q", prefab)
	}
	h := scanner.TargetHandle("vfx_" + uuid.NewString())
	p.targets[h] = &Target{
		Handle:    h,
		Prefab:    prefab,
		Position:  spawn,
		CreatedAt: time.Now(),
	}
	p.order = append(p.order, h)
	monitoring.Logf("[VFX] created %s from prefab %q at (%.2f, %.2f, %.2f)", h, prefab, spawn.X, spawn.Y, spawn.Z)
	return h, nil
}

// Publish stores a copy of records as the target's current frame.
func (p *Pool) Publish(h scanner.TargetHandle, records []scanner.Record, width, height int) error {
	if width*height != len(records) {
		return fmt.Errorf("publish %s: %d records do not fill a %dx%d frame", h, len(records), width, height)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.targets[h]
	if !ok {
		return fmt.Errorf("publish: unknown target %s", h)
	}
	if t.Width != width || t.Height != height {
		t.Reinits++
		t.Width, t.Height = width, height
	}
	if cap(t.Records) < len(records) {
		t.Records = make([]scanner.Record, len(records))
	}
	t.Records = t.Records[:len(records)]
	copy(t.Records, records)
	t.Publishes++
	return nil
}

// TargetPosition reports where the target currently is.
func (p *Pool) TargetPosition(h scanner.TargetHandle) (r3.Vec, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.targets[h]
	if !ok {
		return r3.Vec{}, false
	}
	return t.Position, true
}

// Move relocates a target, as a game object parented to a moving container
// would.
func (p *Pool) Move(h scanner.TargetHandle, pos r3.Vec) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.targets[h]
	if ok {
		t.Position = pos
	}
	return ok
}

// Get returns a copy of the target.
func (p *Pool) Get(h scanner.TargetHandle) (Target, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.targets[h]
	if !ok {
		return Target{}, false
	}
	return t.clone(), true
}

// Len returns the number of targets ever created.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Snapshot copies every target in creation order.
func (p *Pool) Snapshot() []Target {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Target, 0, len(p.order))
	for _, h := range p.order {
		out = append(out, p.targets[h].clone())
	}
	return out
}

// Prefabs returns the distinct prefab names in use, sorted.
func (p *Pool) Prefabs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	seen := make(map[string]bool)
	var names []string
	for _, t := range p.targets {
		if !seen[t.Prefab] {
			seen[t.Prefab] = true
			names = append(names, t.Prefab)
		}
	}
	sort.Strings(names)
	return names
}

func (t *Target) clone() Target {
	c := *t
	c.Records = append([]scanner.Record(nil), t.Records...)
	return c
}
