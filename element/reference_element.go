package element

import "fmt"

// ElementProperties contains metadata describing an element type
type ElementProperties struct {
	Name       string       // Full descriptive name (e.g., "Linear Tetrahedron")
	ShortName  string       // Abbreviated name (e.g., "Tet1")
	Type       GeometryType // Element shape
	NVertices  int          // Number of corners
	NFaces     int          // Number of faces in each element
	NEdges     int          // Number of edges in each element
	Dimensions Dimensionality
}

// ReferenceGeometry defines the corner layout of the reference element [0,1]^d
// or the unit simplex. Numbering follows the lexicographic convention so that
// cube faces 2i and 2i+1 are opposite.
type ReferenceGeometry struct {
	Corners      [][]float64 // [corner][d] reference coordinates
	FaceVertices [][]int     // [face][local corner indices]
	Edges        [][2]int    // [edge] local corner pairs
}

var referenceTable = map[GeometryType]struct {
	props ElementProperties
	geom  ReferenceGeometry
}{
	Line: {
		ElementProperties{"Linear Line", "Line1", Line, 2, 2, 1, D1},
		ReferenceGeometry{
			Corners:      [][]float64{{0}, {1}},
			FaceVertices: [][]int{{0}, {1}},
			Edges:        [][2]int{{0, 1}},
		},
	},
	Tri: {
		ElementProperties{"Linear Triangle", "Tri1", Tri, 3, 3, 3, D2},
		ReferenceGeometry{
			Corners:      [][]float64{{0, 0}, {1, 0}, {0, 1}},
			FaceVertices: [][]int{{0, 1}, {0, 2}, {1, 2}},
			Edges:        [][2]int{{0, 1}, {0, 2}, {1, 2}},
		},
	},
	Rectangle: {
		ElementProperties{"Bilinear Quadrilateral", "Quad1", Rectangle, 4, 4, 4, D2},
		ReferenceGeometry{
			Corners:      [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}},
			FaceVertices: [][]int{{0, 2}, {1, 3}, {0, 1}, {2, 3}},
			Edges:        [][2]int{{0, 2}, {1, 3}, {0, 1}, {2, 3}},
		},
	},
	Tet: {
		ElementProperties{"Linear Tetrahedron", "Tet1", Tet, 4, 4, 6, D3},
		ReferenceGeometry{
			Corners:      [][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
			FaceVertices: [][]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}},
			Edges:        [][2]int{{0, 1}, {0, 2}, {1, 2}, {0, 3}, {1, 3}, {2, 3}},
		},
	},
	Hex: {
		ElementProperties{"Trilinear Hexahedron", "Hex1", Hex, 8, 6, 12, D3},
		ReferenceGeometry{
			Corners: [][]float64{
				{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
				{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
			},
			FaceVertices: [][]int{
				{0, 2, 4, 6}, {1, 3, 5, 7}, {0, 1, 4, 5},
				{2, 3, 6, 7}, {0, 1, 2, 3}, {4, 5, 6, 7},
			},
			Edges: [][2]int{
				{0, 4}, {1, 5}, {2, 6}, {3, 7},
				{0, 2}, {1, 3}, {0, 1}, {2, 3},
				{4, 6}, {5, 7}, {4, 5}, {6, 7},
			},
		},
	},
}

// GetProperties returns the metadata of an element type
func GetProperties(g GeometryType) (ElementProperties, error) {
	ref, ok := referenceTable[g]
	if !ok {
		return ElementProperties{}, fmt.Errorf("no reference element for %s", g)
	}
	return ref.props, nil
}

// GetReferenceGeometry returns the corner and face tables of an element type
func GetReferenceGeometry(g GeometryType) (ReferenceGeometry, error) {
	ref, ok := referenceTable[g]
	if !ok {
		return ReferenceGeometry{}, fmt.Errorf("no reference element for %s", g)
	}
	return ref.geom, nil
}
