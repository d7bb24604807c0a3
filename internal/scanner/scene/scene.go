// Package scene is a small analytic raycaster used to drive the scanner
// without a game engine: spheres, planes and axis-aligned boxes, each with
// a surface category and a layer.
package scene

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/scanner"
)

const epsilon = 1e-9

// Shape is anything a ray can intersect. Intersect returns the smallest
// positive ray parameter t for a unit direction.
type Shape interface {
	Intersect(origin, dir r3.Vec) (t float64, ok bool)
}

// Sphere is a solid sphere.
type Sphere struct {
	Center r3.Vec
	Radius float64
}

func (s Sphere) Intersect(origin, dir r3.Vec) (float64, bool) {
	oc := r3.Sub(origin, s.Center)
	b := r3.Dot(oc, dir)
	c := r3.Dot(oc, oc) - s.Radius*s.Radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	if t := -b - sq; t > epsilon {
		return t, true
	}
	if t := -b + sq; t > epsilon {
		return t, true
	}
	return 0, false
}

// Plane is an infinite plane through Point with unit Normal. It is hit from
// both sides.
type Plane struct {
	Point  r3.Vec
	Normal r3.Vec
}

func (p Plane) Intersect(origin, dir r3.Vec) (float64, bool) {
	denom := r3.Dot(p.Normal, dir)
	if math.Abs(denom) < epsilon {
		return 0, false
	}
	t := r3.Dot(r3.Sub(p.Point, origin), p.Normal) / denom
	if t <= epsilon {
		return 0, false
	}
	return t, true
}

// Box is an axis-aligned box.
type Box struct {
	Min, Max r3.Vec
}

// Intersect uses the slab method.
func (b Box) Intersect(origin, dir r3.Vec) (float64, bool) {
	tmin, tmax := math.Inf(-1), math.Inf(1)
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}
	lo := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}
	for i := 0; i < 3; i++ {
		if math.Abs(d[i]) < epsilon {
			if o[i] < lo[i] || o[i] > hi[i] {
				return 0, false
			}
			continue
		}
		t1 := (lo[i] - o[i]) / d[i]
		t2 := (hi[i] - o[i]) / d[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	if tmin > epsilon {
		return tmin, true
	}
	if tmax > epsilon {
		return tmax, true
	}
	return 0, false
}

// Surface is a shape placed in the scene.
type Surface struct {
	Name     string
	Shape    Shape
	Category scanner.Category
	Layer    uint8
}

// Scene is an immutable list of surfaces. Cast is safe for concurrent use
// as long as Add is not called concurrently.
type Scene struct {
	surfaces []Surface
}

// New returns a scene holding surfaces.
func New(surfaces ...Surface) *Scene {
	return &Scene{surfaces: surfaces}
}

// Add places another surface in the scene.
func (s *Scene) Add(surface Surface) {
	s.surfaces = append(s.surfaces, surface)
}

// Surfaces returns the number of surfaces.
func (s *Scene) Surfaces() int { return len(s.surfaces) }

// Cast returns the nearest surface hit within maxDistance whose layer is in
// mask. dir must be a unit vector.
func (s *Scene) Cast(origin, dir r3.Vec, maxDistance float64, mask scanner.LayerMask) (scanner.Hit, bool) {
	best := math.Inf(1)
	var hit scanner.Hit
	found := false
	for _, sf := range s.surfaces {
		if !mask.Has(sf.Layer) {
			continue
		}
		t, ok := sf.Shape.Intersect(origin, dir)
		if !ok || t > maxDistance || t >= best {
			continue
		}
		best = t
		hit = scanner.Hit{
			Point:    r3.Add(origin, r3.Scale(t, dir)),
			Category: sf.Category,
			Distance: t,
		}
		found = true
	}
	return hit, found
}
