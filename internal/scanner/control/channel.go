package control

import (
	"github.com/banshee-data/lidarscan/internal/scanner/encoding"
	"github.com/banshee-data/lidarscan/internal/scanner/pointbuf"
)

// Channel is the owned state of one scan channel: its buffer lineage, its
// encoder and the per-session counters.
type Channel struct {
	cfg     ChannelConfig
	lineage *pointbuf.Lineage
	encoder *encoding.Encoder
	rotate  pointbuf.RotateFunc

	// buffers retired during the current tick, flushed after sampling
	pending []*pointbuf.Buffer

	appended  uint64
	evicted   uint64
	rotations uint64
}

// Name returns the configured channel name.
func (ch *Channel) Name() string { return ch.cfg.Name }

// Config returns the channel configuration.
func (ch *Channel) Config() ChannelConfig { return ch.cfg }

// Active returns the buffer currently accepting points, or nil before
// activation.
func (ch *Channel) Active() *pointbuf.Buffer { return ch.lineage.Active() }

// Retired returns every buffer this channel has retired, oldest first.
func (ch *Channel) Retired() []*pointbuf.Buffer { return ch.lineage.Retired() }

// Capacity is the point capacity of each buffer.
func (ch *Channel) Capacity() int { return ch.cfg.Capacity() }

// Appended counts points appended without eviction.
func (ch *Channel) Appended() uint64 { return ch.appended }

// Evicted counts points that replaced the oldest point in ring mode.
func (ch *Channel) Evicted() uint64 { return ch.evicted }

// Rotations counts buffer rotations.
func (ch *Channel) Rotations() uint64 { return ch.rotations }

// Encodes counts full-frame encodes. The active buffer is encoded once per
// scanning tick; a tick that rotates also encodes each buffer it retired
// once more for its final frame, so such a tick adds one encode per
// retired buffer on top of the active one.
func (ch *Channel) Encodes() uint64 { return ch.encoder.Count() }
