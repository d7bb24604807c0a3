package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/scanner"
	"github.com/banshee-data/lidarscan/internal/scanner/encoding"
	"github.com/banshee-data/lidarscan/internal/scanner/pointbuf"
)

// RetiredBuffer is the stored form of a buffer that has been rotated out.
type RetiredBuffer struct {
	BufferID     string               `json:"buffer_id"`
	SessionID    string               `json:"session_id"`
	Channel      string               `json:"channel"`
	TargetHandle scanner.TargetHandle `json:"target_handle"`
	Capacity     int                  `json:"capacity"`
	Anchor       r3.Vec               `json:"anchor"`
	Points       []scanner.ScanPoint  `json:"points"`
	CreatedAt    int64                `json:"created_at_ns"`
	RetiredAt    int64                `json:"retired_at_ns"`
}

// Source adapts b for re-encoding with the encoding package.
func (b *RetiredBuffer) Source() encoding.Source { return storedSource{b} }

type storedSource struct{ b *RetiredBuffer }

func (s storedSource) Len() int                     { return len(s.b.Points) }
func (s storedSource) Cap() int                     { return s.b.Capacity }
func (s storedSource) At(i int) scanner.ScanPoint   { return s.b.Points[i] }
func (s storedSource) Anchor() r3.Vec               { return s.b.Anchor }
func (s storedSource) Target() scanner.TargetHandle { return s.b.TargetHandle }

// BufferStore persists retired buffers.
type BufferStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewBufferStore creates a new BufferStore.
func NewBufferStore(db *sql.DB) *BufferStore {
	return &BufferStore{db: db, now: time.Now}
}

// InsertRetired stores b under sessionID and channel. b must be retired.
func (s *BufferStore) InsertRetired(sessionID, channel string, b *pointbuf.Buffer) (*RetiredBuffer, error) {
	if !b.Retired() {
		return nil, fmt.Errorf("insert buffer %s: buffer is still active", b.ID())
	}
	rb := &RetiredBuffer{
		BufferID:     b.ID(),
		SessionID:    sessionID,
		Channel:      channel,
		TargetHandle: b.Target(),
		Capacity:     b.Cap(),
		Anchor:       b.Anchor(),
		Points:       b.Points(),
		CreatedAt:    b.CreatedAt().UnixNano(),
		RetiredAt:    s.now().UnixNano(),
	}
	pointsJSON, err := marshalPoints(rb.Points)
	if err != nil {
		return nil, fmt.Errorf("encode points: %w", err)
	}

	err = retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO scan_retired_buffers (
				buffer_id, session_id, channel, target_handle, capacity, point_count,
				anchor_x, anchor_y, anchor_z, points_json, created_at_ns, retired_at_ns
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rb.BufferID, rb.SessionID, rb.Channel, string(rb.TargetHandle), rb.Capacity, len(rb.Points),
			rb.Anchor.X, rb.Anchor.Y, rb.Anchor.Z, pointsJSON, rb.CreatedAt, rb.RetiredAt,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert buffer: %w", err)
	}
	return rb, nil
}

// Get returns a single retired buffer by ID.
func (s *BufferStore) Get(bufferID string) (*RetiredBuffer, error) {
	row := s.db.QueryRow(`
		SELECT buffer_id, session_id, channel, target_handle, capacity,
		       anchor_x, anchor_y, anchor_z, points_json, created_at_ns, retired_at_ns
		FROM scan_retired_buffers WHERE buffer_id = ?`, bufferID)
	rb, err := scanBuffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("buffer %s: %w", bufferID, ErrNotFound)
	}
	return rb, err
}

// ListByChannel returns the retired buffers of one channel in retirement
// order.
func (s *BufferStore) ListByChannel(sessionID, channel string) ([]*RetiredBuffer, error) {
	rows, err := s.db.Query(`
		SELECT buffer_id, session_id, channel, target_handle, capacity,
		       anchor_x, anchor_y, anchor_z, points_json, created_at_ns, retired_at_ns
		FROM scan_retired_buffers
		WHERE session_id = ? AND channel = ?
		ORDER BY retired_at_ns ASC, rowid ASC`, sessionID, channel)
	if err != nil {
		return nil, fmt.Errorf("query buffers: %w", err)
	}
	defer rows.Close()

	var out []*RetiredBuffer
	for rows.Next() {
		rb, err := scanBuffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rb)
	}
	return out, rows.Err()
}

// CountBySession returns how many buffers each channel of a session has
// retired.
func (s *BufferStore) CountBySession(sessionID string) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT channel, COUNT(*) FROM scan_retired_buffers
		WHERE session_id = ? GROUP BY channel`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count buffers: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ch string
		var n int
		if err := rows.Scan(&ch, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[ch] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuffer(row rowScanner) (*RetiredBuffer, error) {
	var (
		rb         RetiredBuffer
		handle     string
		pointsJSON string
	)
	err := row.Scan(&rb.BufferID, &rb.SessionID, &rb.Channel, &handle, &rb.Capacity,
		&rb.Anchor.X, &rb.Anchor.Y, &rb.Anchor.Z, &pointsJSON, &rb.CreatedAt, &rb.RetiredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan buffer: %w", err)
	}
	rb.TargetHandle = scanner.TargetHandle(handle)
	if rb.Points, err = unmarshalPoints(pointsJSON); err != nil {
		return nil, fmt.Errorf("decode points of %s: %w", rb.BufferID, err)
	}
	return &rb, nil
}

func marshalPoints(points []scanner.ScanPoint) (string, error) {
	triples := make([][3]float64, len(points))
	for i, p := range points {
		triples[i] = [3]float64{p.X, p.Y, p.Z}
	}
	data, err := json.Marshal(triples)
	return string(data), err
}

func unmarshalPoints(s string) ([]scanner.ScanPoint, error) {
	var triples [][3]float64
	if err := json.Unmarshal([]byte(s), &triples); err != nil {
		return nil, err
	}
	points := make([]scanner.ScanPoint, len(triples))
	for i, t := range triples {
		points[i] = r3.Vec{X: t[0], Y: t[1], Z: t[2]}
	}
	return points, nil
}
