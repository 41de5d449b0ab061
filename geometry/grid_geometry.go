package geometry

import (
	"fmt"
	"math"
	"slices"

	"github.com/notargets/FVKernel/element"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// GridGeometry holds every scv and scvf of a mesh for one discretization
// method. Construction builds the primary entities; BuildDerivedIndices must
// be called before flux slots, stencils, flips or point location are used.
// After the build the geometry is read only.
type GridGeometry struct {
	method Method
	mesh   element.Mesh
	props  element.MeshProperties

	scvs         []SubControlVolume
	scvfs        []SubControlVolumeFace
	elementScvs  [][]int // [elem] global scv indices in local order
	elementScvfs [][]int // [elem] global scvf indices in local order
	numDofs      int

	// Derived indices
	derived      bool
	slots        []int   // [scvf] flux slot
	slotOwner    []int   // [slot] owning scvf
	slotElements [][]int // [slot] elements whose faces map to the slot
	flip         [][]int // [scvf][outside] scvf of the outside element at the same face
	stencils     [][]int // [elem] scvs whose state the element's fluxes read
	bounds       []bbox  // [elem] bounding box
}

type bbox struct {
	lo, hi r3.Vec
}

// New builds the grid geometry of a mesh for the given method
func New(m element.Mesh, method Method) (*GridGeometry, error) {
	gg := &GridGeometry{
		method: method,
		mesh:   m,
		props:  m.GetMeshProperties(),
	}

	switch method {
	case CCTpfa:
		gg.buildCellCentered()
	case CCMpfa:
		if gg.IsLowerDimensional() {
			return nil, fmt.Errorf("%w: %s on a %d-D mesh embedded in %d-D",
				utils.ErrUnsupported, method, gg.props.Dimension, gg.props.WorldDimension)
		}
		gg.buildCellCentered()
	case Box:
		if err := gg.buildBox(); err != nil {
			return nil, err
		}
	case Staggered:
		if err := gg.buildStaggered(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: no grid geometry for method %s", utils.ErrUnsupported, method)
	}

	return gg, nil
}

// NewWithIndices builds the grid geometry and its derived indices
func NewWithIndices(m element.Mesh, method Method) (*GridGeometry, error) {
	gg, err := New(m, method)
	if err != nil {
		return nil, err
	}
	if err := gg.BuildDerivedIndices(); err != nil {
		return nil, err
	}
	return gg, nil
}

func (gg *GridGeometry) buildCellCentered() {
	K := gg.props.NumElements
	gg.scvs = make([]SubControlVolume, K)
	gg.elementScvs = make([][]int, K)
	gg.elementScvfs = make([][]int, K)
	gg.numDofs = K

	for e := 0; e < K; e++ {
		ent := gg.mesh.Element(e)
		gg.scvs[e] = SubControlVolume{
			Index:          e,
			IndexInElement: 0,
			ElementIndex:   e,
			DofIndex:       e,
			Center:         ent.Center,
			Volume:         ent.Volume,
		}
		gg.elementScvs[e] = []int{e}

		for f, is := range gg.mesh.Intersections(e) {
			idx := len(gg.scvfs)
			scvIndices := make([]int, 0, 1+len(is.Neighbors))
			scvIndices = append(scvIndices, e)
			scvIndices = append(scvIndices, is.Neighbors...)

			gg.scvfs = append(gg.scvfs, SubControlVolumeFace{
				Index:             idx,
				IndexInElement:    len(gg.elementScvfs[e]),
				ElementIndex:      e,
				FaceIndex:         is.Face,
				IntersectionIndex: f,
				Center:            is.Center,
				UnitOuterNormal:   is.UnitNormal,
				Area:              is.Area,
				Boundary:          is.Boundary,
				BoundaryMarker:    is.BoundaryMarker,
				ScvIndices:        scvIndices,
			})
			gg.elementScvfs[e] = append(gg.elementScvfs[e], idx)
		}
	}
}

// BuildDerivedIndices builds flux slots, flips, stencils, dof connectivity
// and the element bounding boxes. Calling it again is a no-op.
func (gg *GridGeometry) BuildDerivedIndices() error {
	if gg.derived {
		return nil
	}

	if gg.method.IsCellCentered() {
		if err := gg.buildFlipMap(); err != nil {
			return err
		}
	}
	gg.buildFluxSlots()
	gg.buildStencils()
	gg.buildBounds()

	gg.derived = true
	return nil
}

func (gg *GridGeometry) buildFlipMap() error {
	type key struct{ elem, face int }
	byFace := make(map[key]int, len(gg.scvfs))
	for i := range gg.scvfs {
		s := &gg.scvfs[i]
		byFace[key{s.ElementIndex, s.FaceIndex}] = i
	}

	gg.flip = make([][]int, len(gg.scvfs))
	for i := range gg.scvfs {
		s := &gg.scvfs[i]
		n := s.NumOutsideScvs()
		if n == 0 {
			continue
		}
		gg.flip[i] = make([]int, n)
		for o := 0; o < n; o++ {
			outsideElem := gg.scvs[s.ScvIndices[o+1]].ElementIndex
			j, found := byFace[key{outsideElem, s.FaceIndex}]
			if !found {
				return fmt.Errorf("scvf %d: element %d has no face %d", i, outsideElem, s.FaceIndex)
			}
			gg.flip[i][o] = j
		}
	}
	return nil
}

func (gg *GridGeometry) buildFluxSlots() {
	gg.slots = make([]int, len(gg.scvfs))
	for i := range gg.slots {
		gg.slots[i] = -1
	}
	gg.slotOwner = gg.slotOwner[:0]
	gg.slotElements = gg.slotElements[:0]

	for i := range gg.scvfs {
		s := &gg.scvfs[i]

		// Conforming cell-centered twins share the slot of the lower element
		if gg.method.IsCellCentered() && s.NumOutsideScvs() == 1 {
			if twin := gg.flip[i][0]; gg.slots[twin] >= 0 {
				gg.slots[i] = gg.slots[twin]
				continue
			}
		}

		slot := len(gg.slotOwner)
		gg.slots[i] = slot
		gg.slotOwner = append(gg.slotOwner, i)

		elems := []int{s.ElementIndex}
		if gg.method.IsCellCentered() {
			for o := 0; o < s.NumOutsideScvs(); o++ {
				elems = append(elems, gg.scvs[s.ScvIndices[o+1]].ElementIndex)
			}
		}
		gg.slotElements = append(gg.slotElements, elems)
	}
}

func (gg *GridGeometry) buildStencils() {
	K := gg.props.NumElements
	gg.stencils = make([][]int, K)

	neighbors := func(e int) []int {
		var n []int
		for _, si := range gg.elementScvfs[e] {
			n = append(n, gg.scvfs[si].ScvIndices[1:]...)
		}
		return n
	}

	for e := 0; e < K; e++ {
		switch gg.method {
		case CCTpfa:
			gg.stencils[e] = uniqueSorted(append([]int{e}, neighbors(e)...))
		case CCMpfa:
			// Gradients of the face neighbors need their own neighbors
			first := neighbors(e)
			st := append([]int{e}, first...)
			for _, n := range first {
				st = append(st, neighbors(n)...)
			}
			gg.stencils[e] = uniqueSorted(st)
		default:
			gg.stencils[e] = append([]int(nil), gg.elementScvs[e]...)
		}
	}
}

func (gg *GridGeometry) buildBounds() {
	K := gg.props.NumElements
	gg.bounds = make([]bbox, K)
	for e := 0; e < K; e++ {
		ent := gg.mesh.Element(e)
		b := bbox{lo: ent.Corners[0], hi: ent.Corners[0]}
		for _, c := range ent.Corners[1:] {
			b.lo = r3.Vec{X: math.Min(b.lo.X, c.X), Y: math.Min(b.lo.Y, c.Y), Z: math.Min(b.lo.Z, c.Z)}
			b.hi = r3.Vec{X: math.Max(b.hi.X, c.X), Y: math.Max(b.hi.Y, c.Y), Z: math.Max(b.hi.Z, c.Z)}
		}
		gg.bounds[e] = b
	}
}

func uniqueSorted(v []int) []int {
	slices.Sort(v)
	return slices.Compact(v)
}

func (gg *GridGeometry) assertDerived() {
	utils.Assert(gg.derived, "grid geometry used before BuildDerivedIndices")
}

// Method returns the discretization method
func (gg *GridGeometry) Method() Method { return gg.method }

// Mesh returns the underlying mesh
func (gg *GridGeometry) Mesh() element.Mesh { return gg.mesh }

// NumElements returns the number of mesh elements
func (gg *GridGeometry) NumElements() int { return gg.props.NumElements }

// NumScv returns the number of scvs
func (gg *GridGeometry) NumScv() int { return len(gg.scvs) }

// NumScvf returns the number of scvfs
func (gg *GridGeometry) NumScvf() int { return len(gg.scvfs) }

// NumDofs returns the number of degrees of freedom
func (gg *GridGeometry) NumDofs() int { return gg.numDofs }

// IsLowerDimensional is true for surface and network meshes
func (gg *GridGeometry) IsLowerDimensional() bool {
	return int(gg.props.Dimension) < gg.props.WorldDimension
}

// Scv returns scv idx
func (gg *GridGeometry) Scv(idx int) *SubControlVolume { return &gg.scvs[idx] }

// Scvf returns scvf idx
func (gg *GridGeometry) Scvf(idx int) *SubControlVolumeFace { return &gg.scvfs[idx] }

// ElementScvs returns the scvs of element e in local order
func (gg *GridGeometry) ElementScvs(e int) []int { return gg.elementScvs[e] }

// ElementScvfs returns the scvfs of element e in local order
func (gg *GridGeometry) ElementScvfs(e int) []int { return gg.elementScvfs[e] }

// NumFluxSlots returns the number of distinct flux-cache slots
func (gg *GridGeometry) NumFluxSlots() int {
	gg.assertDerived()
	return len(gg.slotOwner)
}

// FluxSlot returns the flux-cache slot of an scvf
func (gg *GridGeometry) FluxSlot(scvfIdx int) int {
	gg.assertDerived()
	return gg.slots[scvfIdx]
}

// SlotOwner returns the scvf that owns a slot
func (gg *GridGeometry) SlotOwner(slot int) int {
	gg.assertDerived()
	return gg.slotOwner[slot]
}

// SlotElements returns, per slot, the elements whose faces map to it
func (gg *GridGeometry) SlotElements() [][]int {
	gg.assertDerived()
	return gg.slotElements
}

// IsSlotOwner is true when the scvf fills and evaluates its slot
func (gg *GridGeometry) IsSlotOwner(scvfIdx int) bool {
	gg.assertDerived()
	return gg.slotOwner[gg.slots[scvfIdx]] == scvfIdx
}

// FlipScvf returns the scvf of the i-th outside element at the same face
func (gg *GridGeometry) FlipScvf(scvfIdx, i int) int {
	gg.assertDerived()
	utils.Assert(gg.method.IsCellCentered(), "flip scvf requested for %s", gg.method)
	return gg.flip[scvfIdx][i]
}

// ElementStencil returns the scvs whose state the fluxes of element e read
func (gg *GridGeometry) ElementStencil(e int) []int {
	gg.assertDerived()
	return gg.stencils[e]
}

// LocalView returns an unbound element geometry
func (gg *GridGeometry) LocalView() *ElementGeometry {
	return &ElementGeometry{gg: gg}
}
