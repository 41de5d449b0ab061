package mesh

import (
	"fmt"

	"github.com/notargets/FVKernel/element"
	"github.com/notargets/FVKernel/utils"
	gmesh "github.com/notargets/gocfd/DG3D/mesh"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
	gutils "github.com/notargets/gocfd/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// ReadGambit reads a volume mesh file (Gambit neutral or Gmsh) and builds
// the face-matched mesh
func ReadGambit(meshFile string) (*Mesh, error) {
	m, err := readers.ReadMeshFile(meshFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", meshFile, err)
	}
	return FromGocfd(m)
}

// gmshHex maps lexicographic hex corners to the counterclockwise corner order
// of the file formats
var gmshHex = []int{0, 1, 3, 2, 4, 5, 7, 6}

// FromGocfd converts a gocfd mesh of tetrahedra or hexahedra. Quadratic
// tets keep their corner nodes.
func FromGocfd(m *gmesh.Mesh) (*Mesh, error) {
	cells := make([]Cell, 0, m.NumElements)
	for i := 0; i < m.NumElements; i++ {
		elemType := m.ElementTypes[i]
		nodes := m.EtoV[i]
		switch elemType {
		case gutils.Tet, gutils.Tet10:
			if len(nodes) < 4 {
				return nil, fmt.Errorf("tetrahedral element %d has insufficient nodes", i)
			}
			cells = append(cells, Cell{Type: element.Tet, Verts: nodes[:4]})
		case gutils.Hex:
			if len(nodes) < 8 {
				return nil, fmt.Errorf("hexahedral element %d has insufficient nodes", i)
			}
			verts := make([]int, 8)
			for j, k := range gmshHex {
				verts[j] = nodes[k]
			}
			cells = append(cells, Cell{Type: element.Hex, Verts: verts})
		default:
			return nil, fmt.Errorf("element %d has type %v: %w", i, elemType, utils.ErrUnsupported)
		}
	}

	vertices := make([]r3.Vec, len(m.Vertices))
	for i, v := range m.Vertices {
		vertices[i] = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	}

	out, err := New(3, vertices, cells)
	if err != nil {
		return nil, err
	}
	out.MarkBoundaries(MarkByNormal)

	// Copy partition data if available
	if m.EToP != nil {
		out.EToP = make([]int, len(m.EToP))
		copy(out.EToP, m.EToP)
	}
	return out, nil
}
