package mesh

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/notargets/FVKernel/element"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// Cell is one element given by its type and global vertex indices in
// reference corner order
type Cell struct {
	Type  element.GeometryType
	Verts []int
}

// Mesh is an unstructured mesh with face matching by vertex sets. A face
// shared by more than two cells is a branching junction.
type Mesh struct {
	worldDim int
	dim      element.Dimensionality

	vertices      []r3.Vec
	cells         []Cell
	entities      []element.Entity
	intersections [][]element.Intersection
	numFaces      int
	conn          element.ElementConnectivity

	// Element to partition map, nil unless read from a partitioned mesh file
	EToP []int
}

type faceRef struct {
	elem, local int
}

// New builds a mesh from vertex coordinates and cells. worldDim is the
// number of coordinates in use (1, 2 or 3).
func New(worldDim int, vertices []r3.Vec, cells []Cell) (*Mesh, error) {
	if worldDim < 1 || worldDim > 3 {
		return nil, fmt.Errorf("invalid world dimension %d", worldDim)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("mesh has no cells")
	}

	m := &Mesh{
		worldDim: worldDim,
		vertices: vertices,
		cells:    cells,
	}

	if err := m.buildEntities(); err != nil {
		return nil, err
	}
	m.buildIntersections()

	return m, nil
}

func (m *Mesh) buildEntities() error {
	m.dim = m.cells[0].Type.Dimension()
	m.entities = make([]element.Entity, len(m.cells))

	for e, c := range m.cells {
		props, err := element.GetProperties(c.Type)
		if err != nil {
			return fmt.Errorf("cell %d: %w: %v", e, utils.ErrUnsupported, err)
		}
		if c.Type.Dimension() != m.dim {
			return fmt.Errorf("cell %d: %w: mixed dimensions %d and %d",
				e, utils.ErrUnsupported, c.Type.Dimension(), m.dim)
		}
		if int(m.dim) > m.worldDim {
			return fmt.Errorf("cell %d: dimension %d exceeds world dimension %d", e, m.dim, m.worldDim)
		}
		if len(c.Verts) != props.NVertices {
			return fmt.Errorf("cell %d: %s needs %d vertices, got %d",
				e, c.Type, props.NVertices, len(c.Verts))
		}

		corners := make([]r3.Vec, len(c.Verts))
		for i, v := range c.Verts {
			if v < 0 || v >= len(m.vertices) {
				return fmt.Errorf("cell %d: vertex %d out of range", e, v)
			}
			corners[i] = m.vertices[v]
		}

		volume := cellVolume(c.Type, corners)
		if volume <= 0 {
			return fmt.Errorf("cell %d: degenerate %s with volume %g", e, c.Type, volume)
		}

		m.entities[e] = element.Entity{
			Index:    e,
			Type:     c.Type,
			Center:   centroid(corners),
			Volume:   volume,
			Corners:  corners,
			Vertices: c.Verts,
		}
	}
	return nil
}

// faceKey builds a canonical face signature from sorted global vertices
func faceKey(verts []int) string {
	sorted := append([]int(nil), verts...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, "-")
}

func (m *Mesh) buildIntersections() {
	K := len(m.cells)
	faceMap := make(map[string][]faceRef)
	faceIndex := make(map[string]int)

	faceVerts := func(e, f int) []int {
		ref, _ := element.GetReferenceGeometry(m.cells[e].Type)
		local := ref.FaceVertices[f]
		v := make([]int, len(local))
		for i, l := range local {
			v[i] = m.cells[e].Verts[l]
		}
		return v
	}

	for e := 0; e < K; e++ {
		ref, _ := element.GetReferenceGeometry(m.cells[e].Type)
		for f := range ref.FaceVertices {
			key := faceKey(faceVerts(e, f))
			if _, found := faceIndex[key]; !found {
				faceIndex[key] = len(faceIndex)
			}
			faceMap[key] = append(faceMap[key], faceRef{e, f})
		}
	}
	m.numFaces = len(faceIndex)

	m.intersections = make([][]element.Intersection, K)
	m.conn = element.ElementConnectivity{
		EToE:   make([][]int, K),
		EToF:   make([][]int, K),
		BCType: make([][]int, K),
	}

	for e := 0; e < K; e++ {
		ref, _ := element.GetReferenceGeometry(m.cells[e].Type)
		nf := len(ref.FaceVertices)
		m.intersections[e] = make([]element.Intersection, nf)
		m.conn.EToE[e] = make([]int, nf)
		m.conn.EToF[e] = make([]int, nf)
		m.conn.BCType[e] = make([]int, nf)

		ent := m.entities[e]
		for f := 0; f < nf; f++ {
			verts := faceVerts(e, f)
			key := faceKey(verts)

			corners := make([]r3.Vec, len(verts))
			for i, v := range verts {
				corners[i] = m.vertices[v]
			}
			center := centroid(corners)
			area, normal := faceMeasure(corners, center, ent.Center)

			var neighbors []int
			m.conn.EToE[e][f] = e
			m.conn.EToF[e][f] = f
			m.conn.BCType[e][f] = -1
			for _, r := range faceMap[key] {
				if r.elem == e {
					continue
				}
				if len(neighbors) == 0 {
					m.conn.EToE[e][f] = r.elem
					m.conn.EToF[e][f] = r.local
				}
				neighbors = append(neighbors, r.elem)
			}
			sort.Ints(neighbors)

			boundary := len(neighbors) == 0
			if boundary {
				m.conn.BCType[e][f] = 0
			}

			m.intersections[e][f] = element.Intersection{
				IndexInInside: f,
				Face:          faceIndex[key],
				Center:        center,
				Area:          area,
				UnitNormal:    normal,
				Boundary:      boundary,
				Neighbors:     neighbors,
			}
		}
	}
}

// MarkBoundaries assigns a marker to every boundary face from its center and
// outward normal
func (m *Mesh) MarkBoundaries(marker func(center, normal r3.Vec) int) {
	for e := range m.intersections {
		for f := range m.intersections[e] {
			is := &m.intersections[e][f]
			if !is.Boundary {
				continue
			}
			is.BoundaryMarker = marker(is.Center, is.UnitNormal)
			m.conn.BCType[e][f] = is.BoundaryMarker
		}
	}
}

// MarkByNormal numbers boundary sides 1..6 as -x, +x, -y, +y, -z, +z from
// the dominant component of the outward normal
func MarkByNormal(_ r3.Vec, n r3.Vec) int {
	comps := [3]float64{n.X, n.Y, n.Z}
	axis := 0
	for d := 1; d < 3; d++ {
		if abs(comps[d]) > abs(comps[axis]) {
			axis = d
		}
	}
	if comps[axis] > 0 {
		return 2*axis + 2
	}
	return 2*axis + 1
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// GetMeshProperties returns summary counts
func (m *Mesh) GetMeshProperties() element.MeshProperties {
	return element.MeshProperties{
		NumElements:    len(m.cells),
		NumVertices:    len(m.vertices),
		NumFaces:       m.numFaces,
		Dimension:      m.dim,
		WorldDimension: m.worldDim,
	}
}

// Element returns the descriptor of element e
func (m *Mesh) Element(e int) element.Entity { return m.entities[e] }

// Vertex returns the coordinates of vertex v
func (m *Mesh) Vertex(v int) r3.Vec { return m.vertices[v] }

// Intersections returns the faces of element e in local face order
func (m *Mesh) Intersections(e int) []element.Intersection { return m.intersections[e] }

// GetConnectivity returns face-neighbor tables
func (m *Mesh) GetConnectivity() element.ElementConnectivity { return m.conn }

// Cells returns the cell list the mesh was built from
func (m *Mesh) Cells() []Cell { return m.cells }

// String returns a summary of the mesh
func (m *Mesh) String() string {
	var sb strings.Builder
	props := m.GetMeshProperties()

	counts := make(map[element.GeometryType]int)
	boundary, branching := 0, 0
	for e, c := range m.cells {
		counts[c.Type]++
		for _, is := range m.intersections[e] {
			if is.Boundary {
				boundary++
			}
			if len(is.Neighbors) > 1 {
				branching++
			}
		}
	}

	sb.WriteString("Unstructured Mesh Summary\n")
	sb.WriteString("=========================\n")
	sb.WriteString(fmt.Sprintf("Dimension: %d (world %d)\n", props.Dimension, props.WorldDimension))
	sb.WriteString(fmt.Sprintf("Elements: %d, Vertices: %d, Faces: %d\n",
		props.NumElements, props.NumVertices, props.NumFaces))
	for _, g := range []element.GeometryType{element.Line, element.Tri, element.Rectangle, element.Tet, element.Hex} {
		if counts[g] > 0 {
			sb.WriteString(fmt.Sprintf("  %-10s %d\n", g.String()+":", counts[g]))
		}
	}
	sb.WriteString(fmt.Sprintf("Boundary faces: %d\n", boundary))
	if branching > 0 {
		sb.WriteString(fmt.Sprintf("Branching face views: %d\n", branching))
	}
	if m.EToP != nil {
		sb.WriteString("Partitioned: yes\n")
	}
	return sb.String()
}
