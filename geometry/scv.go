package geometry

import (
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// SubControlVolume is the part of an element associated with one dof
type SubControlVolume struct {
	Index          int // Global scv index
	IndexInElement int
	ElementIndex   int
	DofIndex       int
	Center         r3.Vec
	Volume         float64
}

// SubControlVolumeFace is a face across which a flux is evaluated. The
// normal points from the inside scv to the outside scv(s).
type SubControlVolumeFace struct {
	Index             int // Global scvf index
	IndexInElement    int
	ElementIndex      int
	FaceIndex         int // Global mesh face, -1 for faces inside an element
	IntersectionIndex int // Local face number in the element, -1 for faces inside an element
	Center            r3.Vec
	UnitOuterNormal   r3.Vec
	Area              float64
	Boundary          bool
	BoundaryMarker    int

	// Inside scv first, then the outside scvs: none on the boundary, one on
	// conforming faces, several at a branching junction
	ScvIndices []int
}

// InsideScvIdx returns the global index of the inside scv
func (f *SubControlVolumeFace) InsideScvIdx() int { return f.ScvIndices[0] }

// OutsideScvIdx returns the global index of the i-th outside scv
func (f *SubControlVolumeFace) OutsideScvIdx(i int) int {
	utils.Assert(i >= 0 && i < f.NumOutsideScvs(), "scvf %d has no outside scv %d", f.Index, i)
	return f.ScvIndices[i+1]
}

// NumOutsideScvs returns how many scvs lie across the face
func (f *SubControlVolumeFace) NumOutsideScvs() int { return len(f.ScvIndices) - 1 }
