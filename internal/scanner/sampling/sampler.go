// Package sampling generates stochastic scan directions around an aim point
// and resolves each one with a single raycast.
package sampling

import (
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/scanner"
)

// Shape selects the distribution of sample targets around the aim point.
type Shape int

const (
	// ShapeBall draws targets uniformly inside a ball of the given radius.
	ShapeBall Shape = iota
	// ShapeDisk draws targets uniformly inside a disk orthogonal to the
	// view axis, at the depth of the aim point.
	ShapeDisk
)

// String returns the config name of the shape.
func (s Shape) String() string {
	switch s {
	case ShapeBall:
		return "ball"
	case ShapeDisk:
		return "disk"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// ParseShape maps a config string to a Shape.
func ParseShape(s string) (Shape, error) {
	switch s {
	case "ball", "sphere", "":
		return ShapeBall, nil
	case "disk", "circle":
		return ShapeDisk, nil
	}
	return 0, fmt.Errorf("unknown sample shape %q", s)
}

// Sample is the outcome of one stochastic ray.
type Sample struct {
	Target r3.Vec // random point the ray was aimed at
	Dir    r3.Vec // unit direction from origin to Target
	Hit    scanner.Hit
	OK     bool // false on a miss
}

// Sampler casts pointsPerTick rays per call against a Raycaster.
type Sampler struct {
	Caster scanner.Raycaster
	Shape  Shape

	// Workers > 1 runs the casts concurrently. Directions are still drawn
	// serially from Rand, so results are reproducible for a fixed seed and
	// always returned in issue order. Caster must be safe for concurrent
	// use when Workers > 1.
	Workers int

	rng *rand.Rand
}

// New returns a Sampler drawing from rng.
func New(caster scanner.Raycaster, shape Shape, rng *rand.Rand) *Sampler {
	return &Sampler{Caster: caster, Shape: shape, rng: rng}
}

// Sample draws n targets within radius of aim and casts one ray of length
// rangeM from origin toward each. The returned slice has exactly n entries
// in issue order; misses have OK == false. An error is only returned if a
// concurrent cast could not complete.
func (s *Sampler) Sample(origin, aim r3.Vec, radius, rangeM float64, mask scanner.LayerMask, n int) ([]Sample, error) {
	out := make([]Sample, n)
	axis := viewAxis(origin, aim)
	for i := range out {
		target := r3.Add(aim, Offset(s.rng, s.Shape, radius, axis))
		out[i].Target = target
		out[i].Dir = direction(origin, target, axis)
	}

	if s.Workers <= 1 {
		for i := range out {
			out[i].Hit, out[i].OK = s.Caster.Cast(origin, out[i].Dir, rangeM, mask)
		}
		return out, nil
	}

	var g errgroup.Group
	g.SetLimit(s.Workers)
	for i := range out {
		g.Go(func() error {
			out[i].Hit, out[i].OK = s.Caster.Cast(origin, out[i].Dir, rangeM, mask)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Offset draws a uniform random offset of at most radius. For ShapeDisk the
// offset is orthogonal to axis, which must be a unit vector.
func Offset(rng *rand.Rand, shape Shape, radius float64, axis r3.Vec) r3.Vec {
	if radius <= 0 {
		return r3.Vec{}
	}
	switch shape {
	case ShapeDisk:
		u, v := basis(axis)
		r := radius * math.Sqrt(rng.Float64())
		theta := 2 * math.Pi * rng.Float64()
		return r3.Add(r3.Scale(r*math.Cos(theta), u), r3.Scale(r*math.Sin(theta), v))
	default:
		dir := r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
		n := r3.Norm(dir)
		if n == 0 {
			return r3.Vec{}
		}
		r := radius * math.Cbrt(rng.Float64())
		return r3.Scale(r/n, dir)
	}
}

// viewAxis is the unit vector from origin to aim, +Z when they coincide.
func viewAxis(origin, aim r3.Vec) r3.Vec {
	d := r3.Sub(aim, origin)
	if r3.Norm2(d) == 0 {
		return r3.Vec{Z: 1}
	}
	return r3.Unit(d)
}

func direction(origin, target, fallback r3.Vec) r3.Vec {
	d := r3.Sub(target, origin)
	if r3.Norm2(d) == 0 {
		return fallback
	}
	return r3.Unit(d)
}

// basis returns two unit vectors spanning the plane orthogonal to axis.
func basis(axis r3.Vec) (r3.Vec, r3.Vec) {
	ref := r3.Vec{Y: 1}
	if math.Abs(r3.Dot(axis, ref)) > 0.99 {
		ref = r3.Vec{X: 1}
	}
	u := r3.Unit(r3.Cross(ref, axis))
	v := r3.Cross(axis, u)
	return u, v
}
