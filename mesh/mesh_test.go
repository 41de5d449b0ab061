package mesh

import (
	"testing"

	"github.com/notargets/FVKernel/element"
	"github.com/notargets/FVKernel/utils"
	gmesh "github.com/notargets/gocfd/DG3D/mesh"
	gutils "github.com/notargets/gocfd/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const tol = 1e-12

func TestLineMesh(t *testing.T) {
	m, err := NewLineMesh(0, 1, 4)
	require.NoError(t, err)

	props := m.GetMeshProperties()
	assert.Equal(t, 4, props.NumElements)
	assert.Equal(t, 5, props.NumVertices)
	assert.Equal(t, 5, props.NumFaces)
	assert.Equal(t, element.D1, props.Dimension)
	assert.Equal(t, 1, props.WorldDimension)

	for e := 0; e < 4; e++ {
		ent := m.Element(e)
		assert.InDelta(t, 0.25, ent.Volume, tol)
		assert.InDelta(t, 0.125+0.25*float64(e), ent.Center.X, tol)

		is := m.Intersections(e)
		require.Len(t, is, 2)
		assert.InDelta(t, -1, is[0].UnitNormal.X, tol)
		assert.InDelta(t, 1, is[1].UnitNormal.X, tol)
		assert.InDelta(t, 1, is[0].Area, tol)
	}

	t.Run("Boundaries", func(t *testing.T) {
		left := m.Intersections(0)[0]
		right := m.Intersections(3)[1]
		assert.True(t, left.Boundary)
		assert.True(t, right.Boundary)
		assert.Equal(t, 1, left.BoundaryMarker)
		assert.Equal(t, 2, right.BoundaryMarker)
		assert.Empty(t, left.Neighbors)
	})

	t.Run("Neighbors", func(t *testing.T) {
		is := m.Intersections(1)
		assert.Equal(t, []int{0}, is[0].Neighbors)
		assert.Equal(t, []int{2}, is[1].Neighbors)
		assert.Equal(t, m.Intersections(0)[1].Face, is[0].Face)

		conn := m.GetConnectivity()
		assert.Equal(t, 0, conn.EToE[1][0])
		assert.Equal(t, 1, conn.EToF[1][0])
		assert.Equal(t, 0, conn.EToE[0][0], "boundary faces point at themselves")
		assert.Equal(t, -1, conn.BCType[1][0])
		assert.Equal(t, 2, conn.BCType[3][1])
	})
}

func TestRectMesh(t *testing.T) {
	m, err := NewRectMesh(0, 0, 2, 1, 2, 1)
	require.NoError(t, err)

	props := m.GetMeshProperties()
	assert.Equal(t, 2, props.NumElements)
	assert.Equal(t, 7, props.NumFaces)

	ent := m.Element(0)
	assert.InDelta(t, 1.0, ent.Volume, tol)
	assert.InDelta(t, 0.5, ent.Center.X, tol)
	assert.InDelta(t, 0.5, ent.Center.Y, tol)

	// Faces are numbered -x, +x, -y, +y so f and f^1 are opposite
	expected := []r3.Vec{{X: -1}, {X: 1}, {Y: -1}, {Y: 1}}
	for f, is := range m.Intersections(0) {
		assert.InDelta(t, expected[f].X, is.UnitNormal.X, tol, "face %d", f)
		assert.InDelta(t, expected[f].Y, is.UnitNormal.Y, tol, "face %d", f)
		assert.InDelta(t, 1.0, is.Area, tol)
		opp, err := element.OppositeFace(element.Rectangle, f)
		require.NoError(t, err)
		assert.InDelta(t, -1, r3.Dot(is.UnitNormal, m.Intersections(0)[opp].UnitNormal), tol)
	}

	assert.False(t, m.Intersections(0)[1].Boundary)
	assert.Equal(t, []int{1}, m.Intersections(0)[1].Neighbors)
	assert.Equal(t, 1, m.Intersections(0)[0].BoundaryMarker)
	assert.Equal(t, 4, m.Intersections(1)[3].BoundaryMarker)
}

func TestTriMesh(t *testing.T) {
	m, err := NewTriMesh(0, 0, 1, 1, 3, 2)
	require.NoError(t, err)

	total := 0.0
	boundaryLength := 0.0
	for e := 0; e < m.GetMeshProperties().NumElements; e++ {
		ent := m.Element(e)
		total += ent.Volume
		for _, is := range m.Intersections(e) {
			// Outward normals point away from the cell center
			assert.Greater(t, r3.Dot(is.UnitNormal, r3.Sub(is.Center, ent.Center)), 0.0)
			if is.Boundary {
				boundaryLength += is.Area
			}
		}
	}
	assert.InDelta(t, 1.0, total, tol)
	assert.InDelta(t, 4.0, boundaryLength, tol)
}

func TestHexMesh(t *testing.T) {
	m, err := NewHexMesh(r3.Vec{}, r3.Vec{X: 2, Y: 1, Z: 1}, 2, 1, 1)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.Element(0).Volume, tol)
	is := m.Intersections(0)
	require.Len(t, is, 6)
	assert.InDelta(t, 1.0, is[1].UnitNormal.X, tol)
	assert.InDelta(t, 1.0, is[5].UnitNormal.Z, tol)
	assert.InDelta(t, 1.0, is[4].Area, tol)
	assert.Equal(t, []int{1}, is[1].Neighbors)
	assert.Equal(t, 6, is[5].BoundaryMarker)
}

func TestNetworkMeshBranching(t *testing.T) {
	points := []r3.Vec{{X: 0}, {X: 1}, {X: 2}, {X: 1, Y: 1}}
	m, err := NewNetworkMesh(2, points, [][2]int{{0, 1}, {1, 2}, {1, 3}})
	require.NoError(t, err)

	props := m.GetMeshProperties()
	assert.Equal(t, element.D1, props.Dimension)
	assert.Equal(t, 2, props.WorldDimension)
	assert.Equal(t, 4, props.NumFaces)

	junction := m.Intersections(0)[1]
	assert.False(t, junction.Boundary)
	assert.Equal(t, []int{1, 2}, junction.Neighbors)
	assert.Equal(t, junction.Face, m.Intersections(2)[0].Face)

	// The vertical branch has its normal along y
	top := m.Intersections(2)[1]
	assert.True(t, top.Boundary)
	assert.InDelta(t, 1.0, top.UnitNormal.Y, tol)
	assert.Equal(t, 4, top.BoundaryMarker)

	assert.Contains(t, m.String(), "Branching face views: 3")
}

func TestNewErrors(t *testing.T) {
	t.Run("Unsupported", func(t *testing.T) {
		_, err := New(3, make([]r3.Vec, 6), []Cell{{Type: element.Prism, Verts: []int{0, 1, 2, 3, 4, 5}}})
		assert.ErrorIs(t, err, utils.ErrUnsupported)
	})
	t.Run("Degenerate", func(t *testing.T) {
		_, err := New(1, []r3.Vec{{}, {}}, []Cell{{Type: element.Line, Verts: []int{0, 1}}})
		assert.Error(t, err)
	})
	t.Run("VertexRange", func(t *testing.T) {
		_, err := New(1, []r3.Vec{{}, {X: 1}}, []Cell{{Type: element.Line, Verts: []int{0, 2}}})
		assert.Error(t, err)
	})
	t.Run("DimensionTooLarge", func(t *testing.T) {
		_, err := New(1, []r3.Vec{{}, {X: 1}, {Y: 1}}, []Cell{{Type: element.Tri, Verts: []int{0, 1, 2}}})
		assert.Error(t, err)
	})
	t.Run("InvalidLine", func(t *testing.T) {
		_, err := NewLineMesh(1, 0, 3)
		assert.Error(t, err)
	})
}

func TestFromGocfd(t *testing.T) {
	t.Run("Tets", func(t *testing.T) {
		g := gmesh.NewMesh()
		// Node ID 0 is padding in gocfd meshes
		for i, v := range [][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 1}} {
			g.AddNode(i+1, v)
		}
		require.NoError(t, g.AddElement(1, gutils.Tet, nil, []int{1, 2, 3, 4}))
		require.NoError(t, g.AddElement(2, gutils.Tet10, nil, []int{2, 3, 4, 5}))
		g.EToP = []int{0, 1}

		m, err := FromGocfd(g)
		require.NoError(t, err)
		props := m.GetMeshProperties()
		assert.Equal(t, 2, props.NumElements)
		assert.Equal(t, element.D3, props.Dimension)
		assert.InDelta(t, 1.0/6, m.Element(0).Volume, tol)
		assert.InDelta(t, 1.0/3, m.Element(1).Volume, tol)
		assert.Equal(t, []int{0, 1}, m.EToP)

		shared := 0
		for _, is := range m.Intersections(0) {
			if !is.Boundary {
				assert.Equal(t, []int{1}, is.Neighbors)
				shared++
			}
		}
		assert.Equal(t, 1, shared)
	})

	t.Run("Hex", func(t *testing.T) {
		g := gmesh.NewMesh()
		corners := [][]float64{
			{0, 0, 0}, {2, 0, 0}, {2, 1, 0}, {0, 1, 0},
			{0, 0, 1}, {2, 0, 1}, {2, 1, 1}, {0, 1, 1},
		}
		for i, v := range corners {
			g.AddNode(i+1, v)
		}
		require.NoError(t, g.AddElement(1, gutils.Hex, nil, []int{1, 2, 3, 4, 5, 6, 7, 8}))

		m, err := FromGocfd(g)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, m.Element(0).Volume, tol)
		assert.Equal(t, []int{0, 1, 3, 2, 4, 5, 7, 6}, m.Cells()[0].Verts)
		assert.Nil(t, m.EToP)
	})

	t.Run("Unsupported", func(t *testing.T) {
		g := gmesh.NewMesh()
		for i, v := range [][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}} {
			g.AddNode(i+1, v)
		}
		require.NoError(t, g.AddElement(1, gutils.Triangle, nil, []int{1, 2, 3}))
		_, err := FromGocfd(g)
		assert.ErrorIs(t, err, utils.ErrUnsupported)
	})
}
