package residual

import (
	"fmt"
	"strings"

	"github.com/notargets/FVKernel/flux"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/volvars"
)

// BCKind classifies the boundary condition of one equation at a face
type BCKind uint8

const (
	Neumann   BCKind = iota // Prescribed flux per unit area
	Dirichlet               // Prescribed primary variable, enforced strongly
	Outflow                 // Flux from the interior state, no prescribed value
)

func (k BCKind) String() string {
	switch k {
	case Neumann:
		return "neumann"
	case Dirichlet:
		return "dirichlet"
	case Outflow:
		return "outflow"
	}
	return fmt.Sprintf("BCKind(%d)", uint8(k))
}

// ParseBCKind maps a configuration name to a kind
func ParseBCKind(name string) (BCKind, error) {
	for _, k := range []BCKind{Neumann, Dirichlet, Outflow} {
		if k.String() == strings.ToLower(name) {
			return k, nil
		}
	}
	return Neumann, fmt.Errorf("unknown boundary condition %q", name)
}

// BoundaryTypes holds one kind per equation. Kinds may differ between
// equations at the same face.
type BoundaryTypes []BCKind

// NewBoundaryTypes returns numEq equations set to Neumann
func NewBoundaryTypes(numEq int) BoundaryTypes {
	return make(BoundaryTypes, numEq)
}

// SetAll sets every equation to k
func (bt BoundaryTypes) SetAll(k BCKind) BoundaryTypes {
	for i := range bt {
		bt[i] = k
	}
	return bt
}

// Set sets equation eq to k
func (bt BoundaryTypes) Set(eq int, k BCKind) BoundaryTypes {
	bt[eq] = k
	return bt
}

// Is reports whether equation eq has kind k
func (bt BoundaryTypes) Is(eq int, k BCKind) bool { return bt[eq] == k }

// Has reports whether any equation has kind k
func (bt BoundaryTypes) Has(k BCKind) bool {
	for _, b := range bt {
		if b == k {
			return true
		}
	}
	return false
}

// Problem supplies boundary conditions and sources
type Problem interface {
	// BoundaryTypes classifies every equation at a boundary scvf
	BoundaryTypes(fv *geometry.ElementGeometry, scvf *geometry.SubControlVolumeFace) BoundaryTypes

	// Dirichlet returns the prescribed primary variables at a boundary scvf
	Dirichlet(fv *geometry.ElementGeometry, scvf *geometry.SubControlVolumeFace) []float64

	// Neumann returns the flux per unit area leaving the domain
	Neumann(ctx *flux.Context, scvf *geometry.SubControlVolumeFace) []float64

	// Source returns the volumetric source per unit volume of an scv
	Source(fv *geometry.ElementGeometry, vv volvars.VolumeVariables, scv *geometry.SubControlVolume) []float64
}

// Model supplies the balance equations
type Model interface {
	NumEq() int

	// Storage returns the conserved amount per unit volume
	Storage(vv volvars.VolumeVariables) []float64

	// Flux returns the flux of every equation across a face along its
	// normal, scaled by the area and not by the extrusion factor
	Flux(ctx *flux.Context, scvf *geometry.SubControlVolumeFace) ([]float64, error)
}

// OutflowModel is implemented by models with upwinded fluxes. OutflowFlux
// returns the flux across the boundary face scvf driven by the mirrored
// potential of the interior face opposite, upwinded across scvf itself.
// orient is -1 when the opposite face points away from the boundary and +1
// when it points towards it. Models without it get orient times the flux of
// the opposite face.
type OutflowModel interface {
	OutflowFlux(ctx *flux.Context, scvf, opposite *geometry.SubControlVolumeFace, orient float64) ([]float64, error)
}
