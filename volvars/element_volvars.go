package volvars

import (
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/mat"
)

// ElementVolumeVariables is the local view of the volume variables of one
// bound element. Entries come from the grid cache when it holds the current
// values of their dof, otherwise they are evaluated on bind into view-owned
// storage.
type ElementVolumeVariables struct {
	gvv        *GridVolumeVariables
	fv         *geometry.ElementGeometry
	generation uint64
	sol        *mat.Dense

	idx   []int // scv indices, parallel to vars
	vars  []VolumeVariables
	owned []VolumeVariables // storage reused across binds
}

// Bind evaluates the element's scvs and every scv in its flux stencil
func (ev *ElementVolumeVariables) Bind(fv *geometry.ElementGeometry, sol *mat.Dense) error {
	return ev.bind(fv, sol, fv.StencilScvs())
}

// BindElement evaluates only the element's own scvs
func (ev *ElementVolumeVariables) BindElement(fv *geometry.ElementGeometry, sol *mat.Dense) error {
	own := make([]int, 0, fv.NumScv())
	for scv := range fv.Scvs() {
		own = append(own, scv.Index)
	}
	return ev.bind(fv, sol, own)
}

func (ev *ElementVolumeVariables) bind(fv *geometry.ElementGeometry, sol *mat.Dense, scvs []int) error {
	utils.Assert(fv.Bound(), "volume variables bound to an unbound element geometry")

	ev.fv = fv
	ev.generation = fv.Generation()
	ev.sol = sol
	ev.idx = append(ev.idx[:0], scvs...)
	ev.vars = ev.vars[:0]

	for i, scvIdx := range ev.idx {
		scv := fv.Scv(scvIdx)
		if ev.gvv.Holds(scv.DofIndex, sol) {
			ev.vars = append(ev.vars, ev.gvv.vars[scvIdx])
			continue
		}
		if i >= len(ev.owned) {
			ev.owned = append(ev.owned, ev.gvv.factory())
		}
		if err := evaluate(ev.owned[i], scv, sol); err != nil {
			ev.fv = nil
			return err
		}
		ev.vars = append(ev.vars, ev.owned[i])
	}
	return nil
}

// At returns the volume variables of a bound scv
func (ev *ElementVolumeVariables) At(scvIdx int) VolumeVariables {
	utils.Assert(ev.fv != nil, "element volume variables are unbound")
	utils.Assert(ev.fv.Generation() == ev.generation,
		"element volume variables used after the element geometry was rebound")
	for i, s := range ev.idx {
		if s == scvIdx {
			return ev.vars[i]
		}
	}
	utils.Assert(false, "scv %d not bound in element %d", scvIdx, ev.fv.ElementIndex())
	return nil
}

// Geometry returns the element geometry the view was bound with
func (ev *ElementVolumeVariables) Geometry() *geometry.ElementGeometry { return ev.fv }

// Solution returns the solution the view was bound with
func (ev *ElementVolumeVariables) Solution() *mat.Dense { return ev.sol }

// GridVolumeVariables returns the grid-wide owner of the view
func (ev *ElementVolumeVariables) GridVolumeVariables() *GridVolumeVariables { return ev.gvv }
