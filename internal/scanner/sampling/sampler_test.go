package sampling

import (
	"math"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/scanner"
)

// wallCaster reports a hit on the plane z = wallZ for every ray pointing
// toward it, and counts calls.
type wallCaster struct {
	wallZ float64
	calls atomic.Int64
}

func (w *wallCaster) Cast(origin, dir r3.Vec, maxDistance float64, mask scanner.LayerMask) (scanner.Hit, bool) {
	w.calls.Add(1)
	if dir.Z <= 0 {
		return scanner.Hit{}, false
	}
	t := (w.wallZ - origin.Z) / dir.Z
	if t < 0 || t > maxDistance {
		return scanner.Hit{}, false
	}
	return scanner.Hit{Point: r3.Add(origin, r3.Scale(t, dir)), Distance: t}, true
}

func TestParseShape(t *testing.T) {
	tests := []struct {
		in      string
		want    Shape
		wantErr bool
	}{
		{"ball", ShapeBall, false},
		{"sphere", ShapeBall, false},
		{"", ShapeBall, false},
		{"disk", ShapeDisk, false},
		{"circle", ShapeDisk, false},
		{"cone", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseShape(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseShape(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseShape(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOffset_DiskStaysInPlane(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	axis := r3.Unit(r3.Vec{X: 1, Y: 1, Z: 2})
	const radius = 3.0

	for i := 0; i < 2000; i++ {
		off := Offset(rng, ShapeDisk, radius, axis)
		if d := math.Abs(r3.Dot(off, axis)); d > 1e-9 {
			t.Fatalf("disk offset has axial component %g", d)
		}
		if n := r3.Norm(off); n > radius+1e-9 {
			t.Fatalf("disk offset norm %g exceeds radius %g", n, radius)
		}
	}
}

func TestOffset_BallIsVolumetric(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	axis := r3.Vec{Z: 1}
	const radius = 2.0

	maxAxial := 0.0
	for i := 0; i < 2000; i++ {
		off := Offset(rng, ShapeBall, radius, axis)
		if n := r3.Norm(off); n > radius+1e-9 {
			t.Fatalf("ball offset norm %g exceeds radius %g", n, radius)
		}
		maxAxial = math.Max(maxAxial, math.Abs(off.Z))
	}
	// A planar sampler would never leave the plane; the ball must.
	if maxAxial < radius/2 {
		t.Errorf("ball offsets never left the plane (max axial %g)", maxAxial)
	}
}

func TestOffset_ZeroRadius(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	if got := Offset(rng, ShapeBall, 0, r3.Vec{Z: 1}); got != (r3.Vec{}) {
		t.Errorf("zero radius offset = %v, want origin", got)
	}
}

func TestOffset_DiskMatchesWorldXYWhenAimingAlongZ(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 100; i++ {
		off := Offset(rng, ShapeDisk, 1, r3.Vec{Z: 1})
		if math.Abs(off.Z) > 1e-12 {
			t.Fatalf("expected z == 0 for +Z axis, got %g", off.Z)
		}
	}
}

func mustSample(t *testing.T, s *Sampler, origin, aim r3.Vec, radius, rangeM float64, n int) []Sample {
	t.Helper()
	samples, err := s.Sample(origin, aim, radius, rangeM, scanner.AllLayers, n)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	return samples
}

func TestSampler_OneCastPerSample(t *testing.T) {
	caster := &wallCaster{wallZ: 10}
	s := New(caster, ShapeDisk, rand.New(rand.NewSource(5)))

	samples := mustSample(t, s, r3.Vec{}, r3.Vec{Z: 5}, 1, 100, 64)
	if len(samples) != 64 {
		t.Fatalf("got %d samples, want 64", len(samples))
	}
	if got := caster.calls.Load(); got != 64 {
		t.Fatalf("caster called %d times, want 64", got)
	}
	for i, smp := range samples {
		if !smp.OK {
			t.Fatalf("sample %d missed the wall", i)
		}
		if math.Abs(r3.Norm(smp.Dir)-1) > 1e-9 {
			t.Fatalf("sample %d direction not normalised: %v", i, smp.Dir)
		}
		if math.Abs(smp.Hit.Point.Z-10) > 1e-9 {
			t.Fatalf("sample %d hit z = %g, want 10", i, smp.Hit.Point.Z)
		}
	}
}

func TestSampler_MissIsNotRetried(t *testing.T) {
	caster := &wallCaster{wallZ: 10}
	s := New(caster, ShapeBall, rand.New(rand.NewSource(6)))

	// Range too short to reach the wall: every sample misses once.
	samples := mustSample(t, s, r3.Vec{}, r3.Vec{Z: 5}, 1, 2, 20)
	for _, smp := range samples {
		if smp.OK {
			t.Fatal("expected a miss")
		}
	}
	if got := caster.calls.Load(); got != 20 {
		t.Errorf("caster called %d times, want 20", got)
	}
}

func TestSampler_WorkersPreserveIssueOrder(t *testing.T) {
	origin := r3.Vec{X: 1, Y: -1}
	aim := r3.Vec{X: 1, Y: -1, Z: 4}

	serial := New(&wallCaster{wallZ: 8}, ShapeBall, rand.New(rand.NewSource(42)))
	want := mustSample(t, serial, origin, aim, 2, 50, 200)

	parallel := New(&wallCaster{wallZ: 8}, ShapeBall, rand.New(rand.NewSource(42)))
	parallel.Workers = 8
	got, err := parallel.Sample(origin, aim, 2, 50, scanner.AllLayers, 200)
	if err != nil {
		t.Fatalf("parallel Sample: %v", err)
	}

	if parallel.Workers <= 1 || len(got) != 200 {
		t.Fatalf("workers=%d samples=%d", parallel.Workers, len(got))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parallel sampling diverged from serial (-want +got):\n%s", diff)
	}
}

func TestSampler_DegenerateAim(t *testing.T) {
	caster := &wallCaster{wallZ: 3}
	s := New(caster, ShapeDisk, rand.New(rand.NewSource(7)))

	samples := mustSample(t, s, r3.Vec{}, r3.Vec{}, 0, 10, 1)
	if samples[0].Dir != (r3.Vec{Z: 1}) {
		t.Errorf("degenerate aim direction = %v, want +Z", samples[0].Dir)
	}
}
