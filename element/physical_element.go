package element

import "gonum.org/v1/gonum/spatial/r3"

// Entity describes one mesh element in physical space
type Entity struct {
	Index    int
	Type     GeometryType
	Center   r3.Vec
	Volume   float64  // Measure in the element's own dimension
	Corners  []r3.Vec // Corner coordinates in reference numbering
	Vertices []int    // Global vertex index of each corner
}

// Intersection describes one face of an element as seen from that element
type Intersection struct {
	IndexInInside  int    // Local face number in the inside element
	Face           int    // Global face index, shared by every element at the face
	Center         r3.Vec // Face barycenter
	Area           float64
	UnitNormal     r3.Vec // Points out of the inside element
	Boundary       bool
	BoundaryMarker int
	Neighbors      []int // Outside elements: none on the boundary, more than one at a branching junction
}

// MeshProperties summarizes a mesh
type MeshProperties struct {
	NumElements    int
	NumVertices    int
	NumFaces       int
	Dimension      Dimensionality // Topological dimension of the elements
	WorldDimension int            // Number of coordinates in use
}

// Mesh is the grid collaborator consumed by the discretization
type Mesh interface {
	GetMeshProperties() MeshProperties

	// Element returns the descriptor of element e
	Element(e int) Entity

	// Vertex returns the coordinates of vertex v
	Vertex(v int) r3.Vec

	// Intersections returns the faces of element e in local face order
	Intersections(e int) []Intersection

	// GetConnectivity returns face-neighbor tables
	GetConnectivity() ElementConnectivity

	String() string // Summary of key stats
}

// ElementConnectivity defines mesh topology and boundary markers
type ElementConnectivity struct {
	// Element-to-element connectivity
	EToE [][]int // [K][NFaces] Element k, face f connects to element EToE[k][f] (k itself on the boundary)
	EToF [][]int // [K][NFaces] Element k, face f connects to face EToF[k][f] of that neighbor

	// Boundary condition markers
	BCType [][]int // [K][NFaces] Boundary marker for each face (-1 for interior faces)
}
