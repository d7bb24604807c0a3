// Package control drives a scan session: it polls the trigger once per
// tick, samples rays, routes hits into channel buffers and publishes every
// channel's frame once the tick's points are in.
//
// A Controller is not safe for concurrent use. All mutation happens inside
// Tick on the caller's goroutine.
package control

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/monitoring"
	"github.com/banshee-data/lidarscan/internal/scanner"
	"github.com/banshee-data/lidarscan/internal/scanner/encoding"
	"github.com/banshee-data/lidarscan/internal/scanner/pointbuf"
	"github.com/banshee-data/lidarscan/internal/scanner/routing"
	"github.com/banshee-data/lidarscan/internal/scanner/sampling"
)

// State is the trigger-driven scan state.
type State int

const (
	StateIdle State = iota
	StateScanning
)

func (s State) String() string {
	if s == StateScanning {
		return "scanning"
	}
	return "idle"
}

// RetireSink receives each buffer after it has been retired and given its
// final publish.
type RetireSink interface {
	BufferRetired(channel string, b *pointbuf.Buffer) error
}

// Deps are the external collaborators of a Controller.
type Deps struct {
	Raycaster scanner.Raycaster
	Renderer  scanner.Renderer
	Rand      *rand.Rand        // defaults to a time-seeded source
	Tags      *routing.TagTable // defaults to a fresh table
	Sink      RetireSink        // optional
}

// ScanLine is the indicator from the scanner to the latest accepted hit.
type ScanLine struct {
	From, To r3.Vec
	Visible  bool
}

// TickStats summarises one Tick.
type TickStats struct {
	Samples   int
	Hits      int
	Misses    int
	Rejected  int
	Discarded int
	Appended  int
	Evicted   int
	Rotations int
	Published int
}

// Controller is the per-tick scan orchestrator.
type Controller struct {
	cfg      Config
	deps     Deps
	router   *routing.Router
	sampler  *sampling.Sampler
	channels []*Channel
	byName   map[string]*Channel

	origin r3.Vec
	aim    r3.Vec
	radius float64

	state   State
	started bool
	line    ScanLine
	ticks   uint64
}

// New validates cfg and wires the collaborators. Start must be called
// before the first Tick.
func New(cfg Config, deps Deps) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Raycaster == nil || deps.Renderer == nil {
		return nil, fmt.Errorf("%w: raycaster and renderer are required", scanner.ErrInvalidConfig)
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Tags == nil {
		deps.Tags = routing.NewTagTable()
	}

	var locator scanner.TargetLocator
	if cfg.AnchorMode == encoding.AnchorLive {
		l, ok := deps.Renderer.(scanner.TargetLocator)
		if !ok {
			return nil, fmt.Errorf("%w: live anchor mode needs a renderer that reports target positions", scanner.ErrInvalidConfig)
		}
		locator = l
	}

	rules := make([]routing.ChannelRule, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		rules[i] = routing.ChannelRule{Name: ch.Name, IncludedTags: ch.IncludedTags, RejectTag: ch.RejectTag}
	}
	router, err := routing.NewRouter(deps.Tags, rules, cfg.RejectTags)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:     cfg,
		deps:    deps,
		router:  router,
		sampler: sampling.New(deps.Raycaster, cfg.Shape, deps.Rand),
		byName:  make(map[string]*Channel, len(cfg.Channels)),
		radius:  clamp(cfg.Radius, cfg.MinRadius, cfg.MaxRadius),
		aim:     r3.Vec{Z: 1},
	}
	c.sampler.Workers = cfg.SampleWorkers

	for _, chCfg := range cfg.Channels {
		enc, err := encoding.NewEncoder(chCfg.Layout, cfg.AnchorMode, locator)
		if err != nil {
			return nil, err
		}
		ch := &Channel{
			cfg:     chCfg,
			lineage: pointbuf.NewLineage(chCfg.Policy),
			encoder: enc,
		}
		ch.rotate = func() (*pointbuf.Buffer, error) { return c.allocate(ch) }
		c.channels = append(c.channels, ch)
		c.byName[chCfg.Name] = ch
	}
	return c, nil
}

// Start activates every channel: one visual target and one empty buffer
// each, followed by an initial empty publish.
func (c *Controller) Start() error {
	if c.started {
		return fmt.Errorf("controller already started")
	}
	for _, ch := range c.channels {
		b, err := c.allocate(ch)
		if err != nil {
			return fmt.Errorf("activate channel %q: %w", ch.Name(), err)
		}
		if err := ch.lineage.Activate(b); err != nil {
			return fmt.Errorf("activate channel %q: %w", ch.Name(), err)
		}
		if err := c.publish(ch, b); err != nil {
			return err
		}
		monitoring.Logf("[Scanner] channel %q active: capacity=%d policy=%s target=%s",
			ch.Name(), ch.Capacity(), ch.lineage.Policy(), b.Target())
	}
	c.started = true
	return nil
}

// SetPose updates the scanner origin and the aim point rays are spread
// around.
func (c *Controller) SetPose(origin, aim r3.Vec) {
	c.origin = origin
	c.aim = aim
}

// AdjustRadius changes the sampling radius by scroll units per second,
// clamped to the configured bounds.
func (c *Controller) AdjustRadius(scroll float64, dt time.Duration) {
	if scroll == 0 {
		return
	}
	c.radius = clamp(c.radius+scroll*dt.Seconds(), c.cfg.MinRadius, c.cfg.MaxRadius)
}

// Radius returns the current sampling radius.
func (c *Controller) Radius() float64 { return c.radius }

// State returns the current scan state.
func (c *Controller) State() State { return c.state }

// ScanLine returns the latest hit indicator; it is cleared while idle.
func (c *Controller) ScanLine() ScanLine { return c.line }

// Ticks returns the number of scanning ticks processed.
func (c *Controller) Ticks() uint64 { return c.ticks }

// Channels returns the channels in configuration order.
func (c *Controller) Channels() []*Channel { return c.channels }

// Channel looks a channel up by name.
func (c *Controller) Channel(name string) (*Channel, bool) {
	ch, ok := c.byName[name]
	return ch, ok
}

// Tags returns the tag table the router resolved categories with.
func (c *Controller) Tags() *routing.TagTable { return c.router.Tags() }

// Tick runs one update. With the trigger released nothing is sampled,
// appended or published. While held, pointsPerTick rays are cast, every
// accepted hit is offered to its channels, and then each channel is
// encoded and published exactly once.
func (c *Controller) Tick(dt time.Duration, trig scanner.Trigger) (TickStats, error) {
	var st TickStats
	if !c.started {
		return st, fmt.Errorf("tick before start: %w", scanner.ErrChannelInactive)
	}

	if !trig.IsHeld() {
		if c.state == StateScanning {
			monitoring.Debugf("[Scanner] trigger released after %d ticks", c.ticks)
		}
		c.state = StateIdle
		c.line = ScanLine{}
		return st, nil
	}
	if c.state == StateIdle {
		monitoring.Debugf("[Scanner] scanning (pressed=%v radius=%.2f)", trig.WasPressedThisTick(), c.radius)
	}
	c.state = StateScanning
	c.ticks++

	samples, err := c.sampler.Sample(c.origin, c.aim, c.radius, c.cfg.CastRange, c.cfg.LayerMask, c.cfg.PointsPerTick)
	if err != nil {
		return st, fmt.Errorf("sample rays: %w", err)
	}
	if err := c.absorb(samples, &st); err != nil {
		return st, err
	}

	for _, ch := range c.channels {
		if err := c.flush(ch, &st); err != nil {
			return st, err
		}
	}
	monitoring.Debugf("[Scanner] tick %d dt=%s: %+v", c.ticks, dt, st)
	return st, nil
}

// absorb offers every hit of the tick to its channels, in issue order.
func (c *Controller) absorb(samples []sampling.Sample, st *TickStats) error {
	for _, s := range samples {
		st.Samples++
		if !s.OK {
			st.Misses++
			continue
		}
		st.Hits++

		routes, rejected := c.router.Route(s.Hit.Category)
		if rejected {
			st.Rejected++
			continue
		}
		if len(routes) == 0 {
			st.Discarded++
			continue
		}
		for _, idx := range routes {
			if err := c.offer(c.channels[idx], s.Hit.Point, st); err != nil {
				return err
			}
		}
		c.line = ScanLine{From: c.origin, To: s.Hit.Point, Visible: true}
	}
	return nil
}

func (c *Controller) offer(ch *Channel, p scanner.ScanPoint, st *TickStats) error {
	out, err := ch.lineage.Offer(p, ch.rotate)
	if err != nil {
		return fmt.Errorf("channel %q: %w", ch.Name(), err)
	}
	switch out {
	case pointbuf.OutcomeAppended:
		ch.appended++
		st.Appended++
	case pointbuf.OutcomeEvicted:
		ch.evicted++
		st.Evicted++
	case pointbuf.OutcomeRotated:
		retired := ch.lineage.Retired()
		old := retired[len(retired)-1]
		ch.pending = append(ch.pending, old)
		ch.rotations++
		ch.appended++
		st.Rotations++
		st.Appended++
		monitoring.Logf("[Scanner] channel %q rotated: retired %s (%d points), new target %s",
			ch.Name(), old.Target(), old.Len(), ch.Active().Target())
	}
	return nil
}

// flush gives buffers retired this tick their final frame, hands them to
// the sink, then publishes the active buffer.
func (c *Controller) flush(ch *Channel, st *TickStats) error {
	for _, b := range ch.pending {
		if err := c.publish(ch, b); err != nil {
			return err
		}
		st.Published++
		if c.deps.Sink != nil {
			if err := c.deps.Sink.BufferRetired(ch.Name(), b); err != nil {
				monitoring.Logf("[Scanner] failed to persist retired buffer %s: %v", b.ID(), err)
			}
		}
	}
	clear(ch.pending)
	ch.pending = ch.pending[:0]

	if err := c.publish(ch, ch.Active()); err != nil {
		return err
	}
	st.Published++
	return nil
}

func (c *Controller) publish(ch *Channel, b *pointbuf.Buffer) error {
	f := ch.encoder.Frame(b)
	if err := c.deps.Renderer.Publish(f.Target, f.Records, f.Width, f.Height); err != nil {
		return fmt.Errorf("publish channel %q: %w", ch.Name(), err)
	}
	return nil
}

// allocate creates a visual target at the spawn position and an empty
// buffer anchored there.
func (c *Controller) allocate(ch *Channel) (*pointbuf.Buffer, error) {
	spawn := c.origin
	if c.cfg.SpawnAt == SpawnAtContainer {
		spawn = c.cfg.ContainerPosition
	}
	h, err := c.deps.Renderer.CreateVisualTarget(ch.cfg.Prefab, spawn)
	if err != nil {
		return nil, fmt.Errorf("create visual target: %w", err)
	}
	return pointbuf.New(ch.Capacity(), spawn, h)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
