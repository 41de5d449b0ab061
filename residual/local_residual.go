package residual

import (
	"fmt"

	"github.com/notargets/FVKernel/element"
	"github.com/notargets/FVKernel/flux"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/utils"
	"github.com/notargets/FVKernel/volvars"
	"gonum.org/v1/gonum/mat"
)

// State tracks a local residual through one evaluation
type State uint8

const (
	Unbound State = iota
	BoundElement
	FluxesEvaluated
	BoundaryEvaluated
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case BoundElement:
		return "bound"
	case FluxesEvaluated:
		return "fluxes evaluated"
	case BoundaryEvaluated:
		return "boundary evaluated"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Constraint overwrites one residual entry
type Constraint struct {
	Dof   int
	Eq    int
	Value float64
}

// LocalResidual accumulates the residual contributions of one element. Rows
// are dofs: the element's own dofs first, then outside dofs receiving the
// negated face fluxes of owned faces.
type LocalResidual struct {
	model   Model
	problem Problem
	numEq   int

	fv           *geometry.ElementGeometry
	generation   uint64
	fluxesDone   bool
	boundaryDone bool

	dofs        []int
	vals        []float64 // [row*numEq + eq]
	constraints []Constraint
}

// NewLocalResidual creates an unbound local residual
func NewLocalResidual(model Model, problem Problem) *LocalResidual {
	return &LocalResidual{model: model, problem: problem, numEq: model.NumEq()}
}

// Bind resets the residual for the element fv is bound to
func (lr *LocalResidual) Bind(fv *geometry.ElementGeometry) {
	utils.Assert(fv.Bound(), "local residual bound to an unbound element geometry")
	lr.fv = fv
	lr.generation = fv.Generation()
	lr.fluxesDone, lr.boundaryDone = false, false
	lr.dofs = lr.dofs[:0]
	lr.vals = lr.vals[:0]
	lr.constraints = lr.constraints[:0]
	for scv := range fv.Scvs() {
		lr.row(scv.DofIndex)
	}
}

// State returns the furthest stage reached since the last bind
func (lr *LocalResidual) State() State {
	switch {
	case lr.fv == nil:
		return Unbound
	case lr.boundaryDone:
		return BoundaryEvaluated
	case lr.fluxesDone:
		return FluxesEvaluated
	}
	return BoundElement
}

func (lr *LocalResidual) assertBound() {
	utils.Assert(lr.fv != nil, "local residual is unbound")
	utils.Assert(lr.fv.Generation() == lr.generation, "local residual used after the element geometry was rebound")
}

// row returns the row of a dof, appending it when missing
func (lr *LocalResidual) row(dof int) int {
	for i, d := range lr.dofs {
		if d == dof {
			return i
		}
	}
	lr.dofs = append(lr.dofs, dof)
	for eq := 0; eq < lr.numEq; eq++ {
		lr.vals = append(lr.vals, 0)
	}
	return len(lr.dofs) - 1
}

func (lr *LocalResidual) add(dof int, values []float64, scale float64) {
	r := lr.row(dof) * lr.numEq
	for eq := 0; eq < lr.numEq; eq++ {
		lr.vals[r+eq] += scale * values[eq]
	}
}

// EvalStorage adds (S(cur) - S(prev)) V / dt for every own scv. A nil prev
// marks a stationary problem and adds nothing.
func (lr *LocalResidual) EvalStorage(cur, prev *volvars.ElementVolumeVariables, dt float64) {
	lr.assertBound()
	if prev == nil {
		return
	}
	utils.Assert(dt > 0, "time step %g must be positive", dt)
	for scv := range lr.fv.Scvs() {
		vc, vp := cur.At(scv.Index), prev.At(scv.Index)
		sc, sp := lr.model.Storage(vc), lr.model.Storage(vp)
		scale := scv.Volume * vc.ExtrusionFactor() / dt
		r := lr.row(scv.DofIndex) * lr.numEq
		for eq := 0; eq < lr.numEq; eq++ {
			lr.vals[r+eq] += (sc[eq] - sp[eq]) * scale
		}
	}
}

// EvalSource subtracts the volumetric sources of every own scv
func (lr *LocalResidual) EvalSource(ev *volvars.ElementVolumeVariables) {
	lr.assertBound()
	for scv := range lr.fv.Scvs() {
		vv := ev.At(scv.Index)
		src := lr.problem.Source(lr.fv, vv, scv)
		lr.add(scv.DofIndex, src, -scv.Volume*vv.ExtrusionFactor())
	}
}

// EvalFluxes adds the interior face fluxes. With owned set, a conforming
// cell-centered face is evaluated only by its slot owner, which adds the
// flux to the inside dof and subtracts it from the outside dof. Without it
// every element evaluates its own side and updates only the inside dof.
// Box faces always scatter to both corners; branching faces update only the
// inside dof.
func (lr *LocalResidual) EvalFluxes(ctx *flux.Context, owned bool) error {
	lr.assertBound()
	utils.Assert(!lr.fluxesDone, "fluxes evaluated twice for element %d", lr.fv.ElementIndex())

	gg := lr.fv.GridGeometry()
	cc := gg.Method().IsCellCentered()
	for scvf := range lr.fv.Scvfs() {
		if scvf.Boundary {
			continue
		}

		scatter := false
		if scvf.NumOutsideScvs() == 1 {
			switch {
			case !cc:
				scatter = true
			case owned:
				if !gg.IsSlotOwner(scvf.Index) {
					continue
				}
				scatter = true
			}
		}

		f, err := lr.model.Flux(ctx, scvf)
		if err != nil {
			return &utils.AssemblyError{Element: scvf.ElementIndex, Scvf: scvf.Index, Err: err}
		}
		extrusion := faceExtrusion(ctx.VolVars, scvf)
		lr.add(gg.Scv(scvf.InsideScvIdx()).DofIndex, f, extrusion)
		if scatter {
			lr.add(gg.Scv(scvf.OutsideScvIdx(0)).DofIndex, f, -extrusion)
		}
	}
	lr.fluxesDone = true
	return nil
}

// faceExtrusion is the mean extrusion factor of the scvs adjacent to a face.
// Both sides of a conforming face then scale the flux alike, so what leaves
// one cell enters the other even when the extrusion jumps.
func faceExtrusion(ev *volvars.ElementVolumeVariables, scvf *geometry.SubControlVolumeFace) float64 {
	sum := 0.0
	for _, s := range scvf.ScvIndices {
		sum += ev.At(s).ExtrusionFactor()
	}
	return sum / float64(len(scvf.ScvIndices))
}

// EvalBoundary applies the boundary conditions of every own boundary face,
// equation by equation. Dirichlet entries are recorded as constraints and
// overwrite the residual when it is read.
func (lr *LocalResidual) EvalBoundary(ctx *flux.Context) error {
	lr.assertBound()
	utils.Assert(!lr.boundaryDone, "boundary evaluated twice for element %d", lr.fv.ElementIndex())
	if !lr.fv.HasBoundaryScvf() {
		lr.boundaryDone = true
		return nil
	}

	gg := lr.fv.GridGeometry()
	for scvf := range lr.fv.Scvfs() {
		if !scvf.Boundary {
			continue
		}
		bt := lr.problem.BoundaryTypes(lr.fv, scvf)
		utils.Assert(len(bt) == lr.numEq, "boundary types for %d equations, model has %d", len(bt), lr.numEq)

		inside := ctx.Inside(scvf)
		dof := gg.Scv(scvf.InsideScvIdx()).DofIndex
		extrusion := inside.ExtrusionFactor()

		if bt.Has(Neumann) {
			values := lr.problem.Neumann(ctx, scvf)
			lr.addMasked(dof, bt, Neumann, values, scvf.Area*extrusion)
		}
		if bt.Has(Outflow) {
			values, err := lr.outflow(ctx, scvf)
			if err != nil {
				return &utils.AssemblyError{Element: scvf.ElementIndex, Scvf: scvf.Index, Err: err}
			}
			lr.addMasked(dof, bt, Outflow, values, extrusion)
		}
		if bt.Has(Dirichlet) {
			values := lr.problem.Dirichlet(lr.fv, scvf)
			for eq, k := range bt {
				if k == Dirichlet {
					lr.constraints = append(lr.constraints, Constraint{
						Dof:   dof,
						Eq:    eq,
						Value: values[eq] - inside.PriVar(eq),
					})
				}
			}
		}
	}
	lr.boundaryDone = true
	return nil
}

func (lr *LocalResidual) addMasked(dof int, bt BoundaryTypes, k BCKind, values []float64, scale float64) {
	r := lr.row(dof) * lr.numEq
	for eq := range bt {
		if bt[eq] == k {
			lr.vals[r+eq] += scale * values[eq]
		}
	}
}

// outflow evaluates the flux law with the interior state only. Cell
// centered schemes mirror the potential of the face opposite the boundary
// face, which needs a tensor-product element. Staggered grids mirror the
// interior face of the boundary scv's axis.
func (lr *LocalResidual) outflow(ctx *flux.Context, scvf *geometry.SubControlVolumeFace) ([]float64, error) {
	gg := lr.fv.GridGeometry()
	switch {
	case gg.Method() == geometry.Staggered:
		return lr.staggeredOutflow(ctx, scvf)
	case !gg.Method().IsCellCentered():
		return lr.model.Flux(ctx, scvf)
	}

	ent := lr.fv.Element()
	opposite, err := element.OppositeFace(ent.Type, scvf.IntersectionIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: cell centered outflow: %v", utils.ErrUnsupported, err)
	}

	for s := range lr.fv.Scvfs() {
		if s.IntersectionIndex != opposite {
			continue
		}
		if s.Boundary || s.NumOutsideScvs() != 1 {
			return nil, fmt.Errorf("%w: outflow face %d has no interior face opposite", utils.ErrUnsupported, scvf.Index)
		}
		return lr.mirror(ctx, scvf, s, -1)
	}
	return nil, fmt.Errorf("%w: outflow face %d: opposite face %d is not bound", utils.ErrUnsupported, scvf.Index, opposite)
}

func (lr *LocalResidual) staggeredOutflow(ctx *flux.Context, scvf *geometry.SubControlVolumeFace) ([]float64, error) {
	scv := scvf.InsideScvIdx()
	for s := range lr.fv.Scvfs() {
		if s.Boundary {
			continue
		}
		switch scv {
		case s.InsideScvIdx():
			return lr.mirror(ctx, scvf, s, -1)
		case s.OutsideScvIdx(0):
			return lr.mirror(ctx, scvf, s, 1)
		}
	}
	return nil, fmt.Errorf("%w: outflow face %d has no interior face", utils.ErrUnsupported, scvf.Index)
}

// mirror returns the flux of the interior face opposite, oriented towards
// the boundary face
func (lr *LocalResidual) mirror(ctx *flux.Context, scvf, opposite *geometry.SubControlVolumeFace,
	orient float64) ([]float64, error) {
	if om, ok := lr.model.(OutflowModel); ok {
		return om.OutflowFlux(ctx, scvf, opposite, orient)
	}
	f, err := lr.model.Flux(ctx, opposite)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(f))
	for eq := range f {
		out[eq] = orient * f[eq]
	}
	return out, nil
}

// Dofs returns the dof of every residual row
func (lr *LocalResidual) Dofs() []int { return lr.dofs }

// Constraints returns the recorded Dirichlet constraints
func (lr *LocalResidual) Constraints() []Constraint { return lr.constraints }

// Residual returns the accumulated rows with the constraints applied
func (lr *LocalResidual) Residual() *mat.Dense {
	lr.assertBound()
	res := mat.NewDense(len(lr.dofs), lr.numEq, append([]float64(nil), lr.vals...))
	for _, c := range lr.constraints {
		res.Set(lr.row(c.Dof), c.Eq, c.Value)
	}
	return res
}

// AddTo adds the unconstrained rows to a global residual
func (lr *LocalResidual) AddTo(global *mat.Dense) {
	for i, dof := range lr.dofs {
		for eq := 0; eq < lr.numEq; eq++ {
			global.Set(dof, eq, global.At(dof, eq)+lr.vals[i*lr.numEq+eq])
		}
	}
}
