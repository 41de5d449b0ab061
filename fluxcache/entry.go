package fluxcache

import (
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/volvars"
	"gonum.org/v1/gonum/spatial/r3"
)

// Entry holds the precomputed flux coefficients of one face. Coefficients
// are expressed for the Owner scvf; a twin reading the entry multiplies by
// Orientation.
type Entry struct {
	Owner   int   // scvf the entry was filled for
	Stencil []int // dofs the face flux depends on, duplicate free

	Tij        float64   // Transmissibility including material parameters
	GeoTij     float64   // Purely geometric transmissibility (area over distance)
	OutsideTij []float64 // Geometric half transmissibility of each outside branch
	Weights    []float64 // Stencil weights, parallel to Stencil

	// Box: basis at the integration point of the face
	ShapeValues []float64
	ShapeGrads  []r3.Vec

	filled bool
}

// Filled reports whether the entry was written since the last reset
func (e *Entry) Filled() bool { return e.filled }

// Orientation is +1 for the owner scvf and -1 for its twin
func (e *Entry) Orientation(scvfIdx int) float64 {
	if scvfIdx == e.Owner {
		return 1
	}
	return -1
}

func (e *Entry) reset(owner int) {
	e.Owner = owner
	e.Stencil = e.Stencil[:0]
	e.Tij, e.GeoTij = 0, 0
	e.OutsideTij = e.OutsideTij[:0]
	e.Weights = e.Weights[:0]
	e.ShapeValues = e.ShapeValues[:0]
	e.ShapeGrads = e.ShapeGrads[:0]
	e.filled = false
}

// Filler computes the cache entry of a face. scvf may belong to a neighbor
// of the element fv is bound to (the twin at a branching junction).
type Filler interface {
	Fill(entry *Entry, fv *geometry.ElementGeometry, ev *volvars.ElementVolumeVariables,
		scvf *geometry.SubControlVolumeFace) error
}

// SolutionIndependent is implemented by fillers whose entries depend on
// geometry and fixed parameters only. Global sweeps of such fillers are
// skipped once the cache is valid.
type SolutionIndependent interface {
	SolutionIndependent() bool
}

// IsSolutionIndependent reports the capability of a filler
func IsSolutionIndependent(f Filler) bool {
	si, ok := f.(SolutionIndependent)
	return ok && si.SolutionIndependent()
}

// defaultStencil lists the dofs of the face's scvs
func defaultStencil(fv *geometry.ElementGeometry, scvf *geometry.SubControlVolumeFace) []int {
	st := make([]int, 0, len(scvf.ScvIndices))
	for _, s := range scvf.ScvIndices {
		st = append(st, fv.GridGeometry().Scv(s).DofIndex)
	}
	return st
}
