package sqlite

import (
	"sync"

	"github.com/banshee-data/lidarscan/internal/monitoring"
	"github.com/banshee-data/lidarscan/internal/scanner/control"
	"github.com/banshee-data/lidarscan/internal/scanner/pointbuf"
)

var _ control.RetireSink = (*Sink)(nil)

// Sink stores every buffer a controller retires under one session.
type Sink struct {
	store     *BufferStore
	sessionID string

	mu     sync.Mutex
	stored int
}

// NewSink returns a sink writing to store under sessionID.
func NewSink(store *BufferStore, sessionID string) *Sink {
	return &Sink{store: store, sessionID: sessionID}
}

// BufferRetired implements control.RetireSink.
func (s *Sink) BufferRetired(channel string, b *pointbuf.Buffer) error {
	rb, err := s.store.InsertRetired(s.sessionID, channel, b)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.stored++
	s.mu.Unlock()
	monitoring.Debugf("[Storage] stored buffer %s (%s, %d points)", rb.BufferID, channel, len(rb.Points))
	return nil
}

// Stored returns how many buffers have been written.
func (s *Sink) Stored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored
}
