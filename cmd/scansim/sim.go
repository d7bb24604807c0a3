package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/config"
	"github.com/banshee-data/lidarscan/internal/scanner"
	"github.com/banshee-data/lidarscan/internal/scanner/control"
	"github.com/banshee-data/lidarscan/internal/scanner/plotter"
	"github.com/banshee-data/lidarscan/internal/scanner/routing"
	"github.com/banshee-data/lidarscan/internal/scanner/scene"
	"github.com/banshee-data/lidarscan/internal/scanner/storage/sqlite"
	"github.com/banshee-data/lidarscan/internal/scanner/vfx"
)

// eyeHeight is the scanner origin above the floor of the demo room.
const eyeHeight = 1.6

type options struct {
	seed         int64
	dbPath       string
	plotDir      string
	holdTicks    int
	releaseTicks int
	orbitPeriod  time.Duration
	orbitRadius  float64
}

// triggerScript holds the trigger for holdTicks, releases it for
// releaseTicks and repeats.
type triggerScript struct {
	hold, release int
}

func (s triggerScript) at(tick int) scanner.TriggerState {
	period := s.hold + s.release
	if s.release <= 0 || period <= 0 {
		return scanner.TriggerState{Held: true, Pressed: tick == 0}
	}
	phase := tick % period
	return scanner.TriggerState{Held: phase < s.hold, Pressed: phase == 0}
}

type simulation struct {
	opts    options
	ctrl    *control.Controller
	pool    *vfx.Pool
	trigger triggerScript
	elapsed time.Duration
	totals  control.TickStats

	db        *sql.DB
	sessions  *sqlite.SessionStore
	sink      *sqlite.Sink
	sessionID string
}

func newSimulation(cfg *config.ScannerConfig, o options) (*simulation, error) {
	resolved, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	tags := routing.NewTagTable()
	room := scene.Demo(tags)
	pool := vfx.NewPool()
	sim := &simulation{
		opts:    o,
		pool:    pool,
		trigger: triggerScript{hold: o.holdTicks, release: o.releaseTicks},
	}

	deps := control.Deps{
		Raycaster: room,
		Renderer:  pool,
		Rand:      rand.New(rand.NewSource(o.seed)),
		Tags:      tags,
	}
	if o.dbPath != "" {
		if err := sim.openStore(cfg, o); err != nil {
			return nil, err
		}
		deps.Sink = sim.sink
	}

	sim.ctrl, err = control.New(resolved, deps)
	if err != nil {
		sim.closeStore()
		return nil, err
	}
	sim.pose()
	if err := sim.ctrl.Start(); err != nil {
		sim.closeStore()
		return nil, err
	}
	return sim, nil
}

func (s *simulation) openStore(cfg *config.ScannerConfig, o options) error {
	db, err := sqlite.Open(o.dbPath)
	if err != nil {
		return err
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		db.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	sess := &sqlite.Session{ConfigJSON: cfgJSON, Seed: o.seed}
	s.sessions = sqlite.NewSessionStore(db)
	if err := s.sessions.InsertSession(sess); err != nil {
		db.Close()
		return err
	}
	s.db = db
	s.sessionID = sess.SessionID
	s.sink = sqlite.NewSink(sqlite.NewBufferStore(db), sess.SessionID)
	log.Printf("[Scansim] session %s stored in %s", sess.SessionID, o.dbPath)
	return nil
}

// pose orbits the aim point around the scanner, looking slightly down, and
// returns the orbit angle.
func (s *simulation) pose() float64 {
	angle := 0.0
	if s.opts.orbitPeriod > 0 {
		angle = 2 * math.Pi * s.elapsed.Seconds() / s.opts.orbitPeriod.Seconds()
	}
	origin := r3.Vec{Y: eyeHeight}
	aim := r3.Add(origin, r3.Vec{
		X: s.opts.orbitRadius * math.Cos(angle),
		Y: -1,
		Z: s.opts.orbitRadius * math.Sin(angle),
	})
	s.ctrl.SetPose(origin, aim)
	return angle
}

// step advances the simulation by one tick.
func (s *simulation) step(tick int, dt time.Duration) error {
	s.elapsed += dt
	angle := s.pose()
	// Breathe the radius three times per orbit.
	s.ctrl.AdjustRadius(math.Sin(3*angle), dt)

	st, err := s.ctrl.Tick(dt, s.trigger.at(tick))
	if err != nil {
		return fmt.Errorf("tick %d: %w", tick, err)
	}
	s.accumulate(st)
	return nil
}

func (s *simulation) accumulate(st control.TickStats) {
	s.totals.Samples += st.Samples
	s.totals.Hits += st.Hits
	s.totals.Misses += st.Misses
	s.totals.Rejected += st.Rejected
	s.totals.Discarded += st.Discarded
	s.totals.Appended += st.Appended
	s.totals.Evicted += st.Evicted
	s.totals.Rotations += st.Rotations
	s.totals.Published += st.Published
}

// finish records the session end, writes the plot and releases the store.
func (s *simulation) finish(ticks int) error {
	defer s.closeStore()

	for _, ch := range s.ctrl.Channels() {
		log.Printf("[Scansim] channel %q: active=%d/%d retired=%d appended=%d evicted=%d encodes=%d",
			ch.Name(), ch.Active().Len(), ch.Capacity(), len(ch.Retired()), ch.Appended(), ch.Evicted(), ch.Encodes())
	}
	log.Printf("[Scansim] %d ticks: %+v", ticks, s.totals)

	if s.sessions != nil {
		if err := s.sessions.EndSession(s.sessionID, int64(ticks), time.Now()); err != nil {
			return err
		}
		log.Printf("[Scansim] stored %d retired buffers", s.sink.Stored())
	}

	if s.opts.plotDir != "" {
		name := "scan.png"
		if s.sessionID != "" {
			name = fmt.Sprintf("scan_%s.png", s.sessionID)
		}
		path := filepath.Join(s.opts.plotDir, name)
		if err := plotter.WriteFramePNG(path, fmt.Sprintf("%d ticks", ticks), s.layers()...); err != nil {
			return err
		}
		log.Printf("[Scansim] wrote %s", path)
	}
	return nil
}

// layers returns the last frame of every visual target, anchored where the
// target is drawn.
func (s *simulation) layers() []plotter.Layer {
	var out []plotter.Layer
	for _, t := range s.pool.Snapshot() {
		out = append(out, plotter.Layer{Name: string(t.Handle), Records: t.Records, Anchor: t.Position})
	}
	return out
}

func (s *simulation) closeStore() {
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
}
