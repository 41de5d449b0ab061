package element

import "fmt"

// Dimensionality represents the topological dimension of an element
type Dimensionality uint8

const (
	D0 Dimensionality = iota // 0D elements (points)
	D1                       // 1D elements (lines, edges)
	D2                       // 2D elements (triangles, quadrilaterals)
	D3                       // 3D elements (tetrahedra, hexahedra, etc.)
)

// GeometryType identifies the shape of an element
type GeometryType uint8

const (
	// 3D element types
	Tet     GeometryType = iota // Tetrahedron
	Hex                         // Hexahedron
	Prism                       // Triangular prism
	Pyramid                     // Square-based pyramid

	// 2D element types
	Tri       // Triangle
	Rectangle // Rectangle/Quadrilateral

	// 1D element type
	Line // Line segment
)

func (g GeometryType) String() string {
	switch g {
	case Tet:
		return "Tet"
	case Hex:
		return "Hex"
	case Prism:
		return "Prism"
	case Pyramid:
		return "Pyramid"
	case Tri:
		return "Tri"
	case Rectangle:
		return "Rectangle"
	case Line:
		return "Line"
	}
	return fmt.Sprintf("GeometryType(%d)", uint8(g))
}

// Dimension returns the topological dimension of the shape
func (g GeometryType) Dimension() Dimensionality {
	switch g {
	case Line:
		return D1
	case Tri, Rectangle:
		return D2
	default:
		return D3
	}
}

// IsCube is true for the tensor-product shapes whose opposite faces are
// numbered f and f^1
func (g GeometryType) IsCube() bool {
	return g == Line || g == Rectangle || g == Hex
}

// OppositeFace returns the face across the element from face f of a cube
func OppositeFace(g GeometryType, f int) (int, error) {
	if !g.IsCube() {
		return -1, fmt.Errorf("no opposite face for %s elements", g)
	}
	return f ^ 1, nil
}
