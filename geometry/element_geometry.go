package geometry

import (
	"iter"
	"slices"
	"sync/atomic"

	"github.com/notargets/FVKernel/element"
	"github.com/notargets/FVKernel/utils"
)

// BindMode records how much of the grid a local view can reach
type BindMode uint8

const (
	Unbound      BindMode = iota
	BoundElement          // Own scvs and scvfs only
	BoundStencil          // Own entities plus the flux stencil
	BoundScvf             // A single scvf and its adjacent scvs
)

func (m BindMode) String() string {
	switch m {
	case Unbound:
		return "unbound"
	case BoundElement:
		return "element"
	case BoundStencil:
		return "stencil"
	case BoundScvf:
		return "scvf"
	}
	return "unknown"
}

// bindGeneration hands out a distinct id to every bind of every local view
var bindGeneration atomic.Uint64

// ElementGeometry is the local view of the grid geometry restricted to one
// element. Local views are cheap and not safe for concurrent use; each
// worker holds its own.
type ElementGeometry struct {
	gg         *GridGeometry
	mode       BindMode
	elem       int
	generation uint64

	ownScvs  []int // Scvs iterated by Scvs()
	ownScvfs []int // Scvfs iterated by Scvfs()
	scvs     []int // Reachable scvs, sorted
	scvfs    []int // Reachable scvfs, sorted
}

// GridGeometry returns the grid geometry the view belongs to
func (fv *ElementGeometry) GridGeometry() *GridGeometry { return fv.gg }

// Bind binds the element and its full flux stencil
func (fv *ElementGeometry) Bind(e int) {
	gg := fv.gg
	gg.assertDerived()

	fv.reset(e, BoundStencil)
	fv.ownScvs = gg.elementScvs[e]
	fv.ownScvfs = gg.elementScvfs[e]
	fv.scvs = append(fv.scvs, gg.stencils[e]...)
	for _, si := range fv.ownScvfs {
		fv.addScvf(si)
	}
	fv.finish()
}

// BindElement binds only the element's own scvs and scvfs
func (fv *ElementGeometry) BindElement(e int) {
	gg := fv.gg
	fv.reset(e, BoundElement)
	fv.ownScvs = gg.elementScvs[e]
	fv.ownScvfs = gg.elementScvfs[e]
	fv.scvs = append(fv.scvs, fv.ownScvs...)
	fv.scvfs = append(fv.scvfs, fv.ownScvfs...)
	fv.finish()
}

// BindScvf binds one scvf of element e and the scvs it connects
func (fv *ElementGeometry) BindScvf(e, scvfIdx int) {
	gg := fv.gg
	gg.assertDerived()
	utils.Assert(gg.scvfs[scvfIdx].ElementIndex == e,
		"scvf %d belongs to element %d, not %d", scvfIdx, gg.scvfs[scvfIdx].ElementIndex, e)

	fv.reset(e, BoundScvf)
	fv.ownScvs = gg.elementScvs[e]
	fv.ownScvfs = []int{scvfIdx}
	fv.scvs = append(fv.scvs, fv.ownScvs...)
	fv.addScvf(scvfIdx)
	fv.finish()
}

func (fv *ElementGeometry) reset(e int, mode BindMode) {
	fv.mode = mode
	fv.elem = e
	fv.generation = bindGeneration.Add(1)
	fv.scvs = fv.scvs[:0]
	fv.scvfs = fv.scvfs[:0]
}

// addScvf makes an scvf, its scvs and its flipped twins reachable
func (fv *ElementGeometry) addScvf(si int) {
	gg := fv.gg
	s := &gg.scvfs[si]
	fv.scvfs = append(fv.scvfs, si)
	fv.scvs = append(fv.scvs, s.ScvIndices...)
	if gg.method.IsCellCentered() {
		fv.scvfs = append(fv.scvfs, gg.flip[si]...)
	}
}

func (fv *ElementGeometry) finish() {
	fv.scvs = uniqueSorted(fv.scvs)
	fv.scvfs = uniqueSorted(fv.scvfs)
}

// Mode returns the current bind mode
func (fv *ElementGeometry) Mode() BindMode { return fv.mode }

// Bound is true once any bind has been called
func (fv *ElementGeometry) Bound() bool { return fv.mode != Unbound }

// ElementIndex returns the bound element
func (fv *ElementGeometry) ElementIndex() int {
	utils.Assert(fv.Bound(), "element geometry is unbound")
	return fv.elem
}

// Element returns the bound element's descriptor
func (fv *ElementGeometry) Element() element.Entity {
	return fv.gg.mesh.Element(fv.ElementIndex())
}

// Generation identifies the current bind. Views bound alongside the
// geometry record it to detect mismatched use.
func (fv *ElementGeometry) Generation() uint64 { return fv.generation }

// Scvs iterates the element's own scvs
func (fv *ElementGeometry) Scvs() iter.Seq[*SubControlVolume] {
	utils.Assert(fv.Bound(), "element geometry is unbound")
	return func(yield func(*SubControlVolume) bool) {
		for _, i := range fv.ownScvs {
			if !yield(&fv.gg.scvs[i]) {
				return
			}
		}
	}
}

// Scvfs iterates the element's own scvfs, or the single bound scvf
func (fv *ElementGeometry) Scvfs() iter.Seq[*SubControlVolumeFace] {
	utils.Assert(fv.Bound(), "element geometry is unbound")
	return func(yield func(*SubControlVolumeFace) bool) {
		for _, i := range fv.ownScvfs {
			if !yield(&fv.gg.scvfs[i]) {
				return
			}
		}
	}
}

// NumScv returns the number of the element's own scvs
func (fv *ElementGeometry) NumScv() int { return len(fv.ownScvs) }

// NumScvf returns the number of scvfs iterated by Scvfs
func (fv *ElementGeometry) NumScvf() int { return len(fv.ownScvfs) }

// StencilScvs returns every scv reachable from the view
func (fv *ElementGeometry) StencilScvs() []int { return fv.scvs }

// Scv returns a reachable scv by global index
func (fv *ElementGeometry) Scv(idx int) *SubControlVolume {
	_, ok := slices.BinarySearch(fv.scvs, idx)
	utils.Assert(ok, "scv %d not reachable from %s view of element %d", idx, fv.mode, fv.elem)
	return &fv.gg.scvs[idx]
}

// Scvf returns a reachable scvf by global index
func (fv *ElementGeometry) Scvf(idx int) *SubControlVolumeFace {
	_, ok := slices.BinarySearch(fv.scvfs, idx)
	utils.Assert(ok, "scvf %d not reachable from %s view of element %d", idx, fv.mode, fv.elem)
	return &fv.gg.scvfs[idx]
}

// FlipScvf returns the twin of scvf idx seen from its i-th outside element
func (fv *ElementGeometry) FlipScvf(idx, i int) *SubControlVolumeFace {
	return fv.Scvf(fv.gg.FlipScvf(idx, i))
}

// HasBoundaryScvf is true when one of the element's own scvfs is on the
// boundary
func (fv *ElementGeometry) HasBoundaryScvf() bool {
	for _, i := range fv.gg.elementScvfs[fv.ElementIndex()] {
		if fv.gg.scvfs[i].Boundary {
			return true
		}
	}
	return false
}
