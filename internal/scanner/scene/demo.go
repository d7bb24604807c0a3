package scene

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/scanner"
)

// Tag names used by Demo.
const (
	TagGround      = "Ground"
	TagWall        = "Wall"
	TagProp        = "Prop"
	TagHazard      = "Hazard"
	TagPointReject = "PointReject"
)

// Interner resolves tag names to categories. routing.TagTable implements it.
type Interner interface {
	Intern(tag string) scanner.Category
}

// Demo builds a 20 x 20 m room centred on the origin: floor at y = 0,
// four walls, two pillars, a hazard sphere and a reject-tagged box standing
// where the player capsule would be.
func Demo(tags Interner) *Scene {
	ground := tags.Intern(TagGround)
	wall := tags.Intern(TagWall)
	prop := tags.Intern(TagProp)
	hazard := tags.Intern(TagHazard)
	reject := tags.Intern(TagPointReject)

	return New(
		Surface{Name: "floor", Shape: Plane{Point: r3.Vec{}, Normal: r3.Vec{Y: 1}}, Category: ground},
		Surface{Name: "north", Shape: Plane{Point: r3.Vec{Z: 10}, Normal: r3.Vec{Z: -1}}, Category: wall},
		Surface{Name: "south", Shape: Plane{Point: r3.Vec{Z: -10}, Normal: r3.Vec{Z: 1}}, Category: wall},
		Surface{Name: "east", Shape: Plane{Point: r3.Vec{X: 10}, Normal: r3.Vec{X: -1}}, Category: wall},
		Surface{Name: "west", Shape: Plane{Point: r3.Vec{X: -10}, Normal: r3.Vec{X: 1}}, Category: wall},
		Surface{Name: "pillar-a", Shape: Box{Min: r3.Vec{X: 2, Z: 4}, Max: r3.Vec{X: 3, Y: 3, Z: 5}}, Category: prop},
		Surface{Name: "pillar-b", Shape: Box{Min: r3.Vec{X: -4, Z: 6}, Max: r3.Vec{X: -3, Y: 3, Z: 7}}, Category: prop},
		Surface{Name: "orb", Shape: Sphere{Center: r3.Vec{X: 0, Y: 1, Z: 7}, Radius: 1}, Category: hazard},
		Surface{Name: "player", Shape: Box{Min: r3.Vec{X: -0.3, Z: -0.3}, Max: r3.Vec{X: 0.3, Y: 0.8, Z: 0.3}}, Category: reject, Layer: 1},
	)
}
