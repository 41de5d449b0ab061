package mesh

import (
	"fmt"

	"github.com/notargets/FVKernel/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// NewLineMesh builds n equal cells on [x0, x1] in a 1-D world. Boundary
// markers are 1 on the left and 2 on the right.
func NewLineMesh(x0, x1 float64, n int) (*Mesh, error) {
	if n < 1 || x1 <= x0 {
		return nil, fmt.Errorf("invalid line mesh: [%g, %g] with %d cells", x0, x1, n)
	}
	xs := make([]float64, n+1)
	for i := range xs {
		xs[i] = x0 + (x1-x0)*float64(i)/float64(n)
	}
	return NewLineMeshFromCoordinates(xs)
}

// NewLineMeshFromCoordinates builds cells between consecutive coordinates
func NewLineMeshFromCoordinates(xs []float64) (*Mesh, error) {
	if len(xs) < 2 {
		return nil, fmt.Errorf("need at least two coordinates, got %d", len(xs))
	}
	vertices := make([]r3.Vec, len(xs))
	for i, x := range xs {
		vertices[i] = r3.Vec{X: x}
	}
	cells := make([]Cell, len(xs)-1)
	for i := range cells {
		cells[i] = Cell{Type: element.Line, Verts: []int{i, i + 1}}
	}
	m, err := New(1, vertices, cells)
	if err != nil {
		return nil, err
	}
	m.MarkBoundaries(MarkByNormal)
	return m, nil
}

// NewRectMesh builds nx*ny quadrilaterals on [x0,x1]x[y0,y1]. Boundary
// markers follow MarkByNormal.
func NewRectMesh(x0, y0, x1, y1 float64, nx, ny int) (*Mesh, error) {
	vertices, err := gridVertices2D(x0, y0, x1, y1, nx, ny)
	if err != nil {
		return nil, err
	}
	vid := func(i, j int) int { return j*(nx+1) + i }

	cells := make([]Cell, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			cells = append(cells, Cell{
				Type:  element.Rectangle,
				Verts: []int{vid(i, j), vid(i+1, j), vid(i, j+1), vid(i+1, j+1)},
			})
		}
	}
	m, err := New(2, vertices, cells)
	if err != nil {
		return nil, err
	}
	m.MarkBoundaries(MarkByNormal)
	return m, nil
}

// NewTriMesh builds the rectangle grid of NewRectMesh with every quad split
// into two triangles
func NewTriMesh(x0, y0, x1, y1 float64, nx, ny int) (*Mesh, error) {
	vertices, err := gridVertices2D(x0, y0, x1, y1, nx, ny)
	if err != nil {
		return nil, err
	}
	vid := func(i, j int) int { return j*(nx+1) + i }

	cells := make([]Cell, 0, 2*nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			cells = append(cells,
				Cell{Type: element.Tri, Verts: []int{vid(i, j), vid(i+1, j), vid(i, j+1)}},
				Cell{Type: element.Tri, Verts: []int{vid(i+1, j), vid(i+1, j+1), vid(i, j+1)}},
			)
		}
	}
	m, err := New(2, vertices, cells)
	if err != nil {
		return nil, err
	}
	m.MarkBoundaries(MarkByNormal)
	return m, nil
}

// NewHexMesh builds nx*ny*nz hexahedra on an axis aligned box
func NewHexMesh(lo, hi r3.Vec, nx, ny, nz int) (*Mesh, error) {
	if nx < 1 || ny < 1 || nz < 1 || hi.X <= lo.X || hi.Y <= lo.Y || hi.Z <= lo.Z {
		return nil, fmt.Errorf("invalid hex mesh: %v-%v with %dx%dx%d cells", lo, hi, nx, ny, nz)
	}
	vid := func(i, j, k int) int { return (k*(ny+1)+j)*(nx+1) + i }

	vertices := make([]r3.Vec, 0, (nx+1)*(ny+1)*(nz+1))
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				vertices = append(vertices, r3.Vec{
					X: lo.X + (hi.X-lo.X)*float64(i)/float64(nx),
					Y: lo.Y + (hi.Y-lo.Y)*float64(j)/float64(ny),
					Z: lo.Z + (hi.Z-lo.Z)*float64(k)/float64(nz),
				})
			}
		}
	}

	cells := make([]Cell, 0, nx*ny*nz)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				cells = append(cells, Cell{Type: element.Hex, Verts: []int{
					vid(i, j, k), vid(i+1, j, k), vid(i, j+1, k), vid(i+1, j+1, k),
					vid(i, j, k+1), vid(i+1, j, k+1), vid(i, j+1, k+1), vid(i+1, j+1, k+1),
				}})
			}
		}
	}
	m, err := New(3, vertices, cells)
	if err != nil {
		return nil, err
	}
	m.MarkBoundaries(MarkByNormal)
	return m, nil
}

// NewNetworkMesh builds a mesh of line segments embedded in a worldDim space.
// Points shared by more than two segments become branching junctions.
// Boundary markers are 1 + the vertex index of the dangling end.
func NewNetworkMesh(worldDim int, points []r3.Vec, segments [][2]int) (*Mesh, error) {
	cells := make([]Cell, len(segments))
	for i, s := range segments {
		cells[i] = Cell{Type: element.Line, Verts: []int{s[0], s[1]}}
	}
	m, err := New(worldDim, points, cells)
	if err != nil {
		return nil, err
	}
	for e, c := range m.cells {
		for f := range m.intersections[e] {
			is := &m.intersections[e][f]
			if is.Boundary {
				is.BoundaryMarker = c.Verts[f] + 1
				m.conn.BCType[e][f] = is.BoundaryMarker
			}
		}
	}
	return m, nil
}

func gridVertices2D(x0, y0, x1, y1 float64, nx, ny int) ([]r3.Vec, error) {
	if nx < 1 || ny < 1 || x1 <= x0 || y1 <= y0 {
		return nil, fmt.Errorf("invalid grid: [%g,%g]x[%g,%g] with %dx%d cells", x0, x1, y0, y1, nx, ny)
	}
	vertices := make([]r3.Vec, 0, (nx+1)*(ny+1))
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			vertices = append(vertices, r3.Vec{
				X: x0 + (x1-x0)*float64(i)/float64(nx),
				Y: y0 + (y1-y0)*float64(j)/float64(ny),
			})
		}
	}
	return vertices, nil
}
