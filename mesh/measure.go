package mesh

import (
	"math"

	"github.com/notargets/FVKernel/element"
	"gonum.org/v1/gonum/spatial/r3"
)

func centroid(points []r3.Vec) r3.Vec {
	var c r3.Vec
	for _, p := range points {
		c = r3.Add(c, p)
	}
	return r3.Scale(1/float64(len(points)), c)
}

func tetVolume(a, b, c, d r3.Vec) float64 {
	return math.Abs(r3.Dot(r3.Sub(b, a), r3.Cross(r3.Sub(c, a), r3.Sub(d, a)))) / 6
}

// hexTets splits a lexicographic hexahedron around its 0-7 diagonal
var hexTets = [6][4]int{
	{0, 1, 3, 7}, {0, 1, 5, 7}, {0, 4, 5, 7},
	{0, 2, 3, 7}, {0, 2, 6, 7}, {0, 4, 6, 7},
}

func cellVolume(g element.GeometryType, c []r3.Vec) float64 {
	switch g {
	case element.Line:
		return r3.Norm(r3.Sub(c[1], c[0]))
	case element.Tri:
		return 0.5 * r3.Norm(r3.Cross(r3.Sub(c[1], c[0]), r3.Sub(c[2], c[0])))
	case element.Rectangle:
		// Diagonals of the lexicographic quad are 0-3 and 1-2
		return 0.5 * r3.Norm(r3.Cross(r3.Sub(c[3], c[0]), r3.Sub(c[2], c[1])))
	case element.Tet:
		return tetVolume(c[0], c[1], c[2], c[3])
	case element.Hex:
		vol := 0.0
		for _, t := range hexTets {
			vol += tetVolume(c[t[0]], c[t[1]], c[t[2]], c[t[3]])
		}
		return vol
	}
	return 0
}

// faceMeasure returns the area and the unit normal pointing away from the
// cell center for a face given by its corners
func faceMeasure(corners []r3.Vec, faceCenter, cellCenter r3.Vec) (float64, r3.Vec) {
	d := r3.Sub(faceCenter, cellCenter)

	var area float64
	var n r3.Vec
	switch len(corners) {
	case 1:
		return 1, r3.Unit(d)
	case 2:
		edge := r3.Sub(corners[1], corners[0])
		area = r3.Norm(edge)
		t := r3.Scale(1/area, edge)
		return area, r3.Unit(r3.Sub(d, r3.Scale(r3.Dot(d, t), t)))
	case 3:
		n = r3.Cross(r3.Sub(corners[1], corners[0]), r3.Sub(corners[2], corners[0]))
	case 4:
		n = r3.Cross(r3.Sub(corners[3], corners[0]), r3.Sub(corners[2], corners[1]))
	}
	area = 0.5 * r3.Norm(n)
	n = r3.Unit(n)
	if r3.Dot(n, d) < 0 {
		n = r3.Scale(-1, n)
	}
	return area, n
}
