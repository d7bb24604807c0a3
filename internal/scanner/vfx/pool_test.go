package vfx

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/monitoring"
	"github.com/banshee-data/lidarscan/internal/scanner"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestPool_CreateAndPublish(t *testing.T) {
	p := NewPool()
	h, err := p.CreateVisualTarget("Points", r3.Vec{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(h), "vfx_"))

	records := []scanner.Record{{1, 0, 0, 1}, {}, {}, {}}
	require.NoError(t, p.Publish(h, records, 2, 2))

	// The pool keeps its own copy.
	records[0] = scanner.Record{9, 9, 9, 1}

	got, ok := p.Get(h)
	require.True(t, ok)
	assert.Equal(t, scanner.Record{1, 0, 0, 1}, got.Records[0])
	assert.Equal(t, 1, got.Valid())
	assert.Equal(t, uint64(1), got.Publishes)
	assert.Equal(t, uint64(1), got.Reinits)
	assert.Equal(t, "Points", got.Prefab)

	require.NoError(t, p.Publish(h, records, 2, 2))
	got, _ = p.Get(h)
	assert.Equal(t, uint64(2), got.Publishes)
	assert.Equal(t, uint64(1), got.Reinits, "same dimensions do not reinitialise")
}

func TestPool_PublishErrors(t *testing.T) {
	p := NewPool()
	assert.Error(t, p.Publish("missing", make([]scanner.Record, 4), 2, 2))

	h, err := p.CreateVisualTarget("Points", r3.Vec{})
	require.NoError(t, err)
	assert.Error(t, p.Publish(h, make([]scanner.Record, 3), 2, 2))
}

func TestPool_PrefabAllowList(t *testing.T) {
	p := NewPool("Blue", "Red")
	_, err := p.CreateVisualTarget("Green", r3.Vec{})
	assert.Error(t, err)

	_, err = p.CreateVisualTarget("Red", r3.Vec{})
	require.NoError(t, err)
	_, err = p.CreateVisualTarget("Blue", r3.Vec{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Blue", "Red"}, p.Prefabs())
}

func TestPool_MoveAndLocate(t *testing.T) {
	p := NewPool()
	h, err := p.CreateVisualTarget("Points", r3.Vec{X: 1})
	require.NoError(t, err)

	pos, ok := p.TargetPosition(h)
	require.True(t, ok)
	assert.Equal(t, r3.Vec{X: 1}, pos)

	assert.True(t, p.Move(h, r3.Vec{Y: 4}))
	pos, _ = p.TargetPosition(h)
	assert.Equal(t, r3.Vec{Y: 4}, pos)

	assert.False(t, p.Move("nope", r3.Vec{}))
	_, ok = p.TargetPosition("nope")
	assert.False(t, ok)
}

func TestPool_SnapshotOrderAndConcurrency(t *testing.T) {
	p := NewPool()
	var handles []scanner.TargetHandle
	for i := 0; i < 3; i++ {
		h, err := p.CreateVisualTarget("Points", r3.Vec{X: float64(i)})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = p.Publish(handles[j%3], make([]scanner.Record, 1), 1, 1)
				_ = p.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := p.Snapshot()
	require.Len(t, snap, 3)
	var total uint64
	for i, tgt := range snap {
		assert.Equal(t, handles[i], tgt.Handle)
		total += tgt.Publishes
	}
	assert.Equal(t, uint64(400), total)
	assert.Equal(t, 3, p.Len())
}
