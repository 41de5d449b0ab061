package geometry

import (
	"math"

	"github.com/notargets/FVKernel/element"
	"gonum.org/v1/gonum/spatial/r3"
)

const locateTol = 1e-10

// LocateElement returns the elements containing p, in ascending order. A
// point on a shared face or corner is inside every element touching it.
func (gg *GridGeometry) LocateElement(p r3.Vec) []int {
	gg.assertDerived()

	var found []int
	for e, b := range gg.bounds {
		scale := math.Max(r3.Norm(r3.Sub(b.hi, b.lo)), 1)
		eps := locateTol * scale
		if p.X < b.lo.X-eps || p.X > b.hi.X+eps ||
			p.Y < b.lo.Y-eps || p.Y > b.hi.Y+eps ||
			p.Z < b.lo.Z-eps || p.Z > b.hi.Z+eps {
			continue
		}
		if gg.contains(e, p, eps) {
			found = append(found, e)
		}
	}
	return found
}

// contains tests p against the face half-spaces of a convex element, plus
// the distance to the element's line or plane on lower dimensional meshes
func (gg *GridGeometry) contains(e int, p r3.Vec, eps float64) bool {
	for _, is := range gg.mesh.Intersections(e) {
		if r3.Dot(r3.Sub(p, is.Center), is.UnitNormal) > eps {
			return false
		}
	}
	if !gg.IsLowerDimensional() {
		return true
	}

	ent := gg.mesh.Element(e)
	d := r3.Sub(p, ent.Corners[0])
	switch ent.Type.Dimension() {
	case element.D1:
		t := r3.Unit(r3.Sub(ent.Corners[1], ent.Corners[0]))
		return r3.Norm(r3.Sub(d, r3.Scale(r3.Dot(d, t), t))) <= eps
	case element.D2:
		n := r3.Unit(r3.Cross(r3.Sub(ent.Corners[1], ent.Corners[0]), r3.Sub(ent.Corners[2], ent.Corners[0])))
		return math.Abs(r3.Dot(d, n)) <= eps
	}
	return true
}
