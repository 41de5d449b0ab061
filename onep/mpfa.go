package onep

import (
	"fmt"

	"github.com/notargets/FVKernel/flux"
	"github.com/notargets/FVKernel/fluxcache"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/utils"
	"github.com/notargets/FVKernel/volvars"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// maxCondition bounds the condition number of a least-squares gradient system
const maxCondition = 1e12

// MpfaDarcy is a multi-point Darcy law. Cell gradients are reconstructed by
// least squares over the face neighbors, the face gradient is their mean with
// the jump along the cell connection replaced by the two-point difference.
// The flux is linear in the stencil pressures, so the cache stores one weight
// per stencil dof.
type MpfaDarcy struct {
	params *Params
	dim    int
}

// NewMpfaDarcy creates the law for the dimension of the grid
func NewMpfaDarcy(gg *geometry.GridGeometry, params *Params) (*MpfaDarcy, error) {
	if params.Spatial.Gravity != (r3.Vec{}) {
		return nil, fmt.Errorf("%w: gravity with the multi-point law", utils.ErrUnsupported)
	}
	return &MpfaDarcy{params: params, dim: int(gg.Mesh().GetMeshProperties().Dimension)}, nil
}

func (l *MpfaDarcy) SolutionIndependent() bool { return true }

func component(v r3.Vec, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}

func fromComponents(c []float64) r3.Vec {
	var v r3.Vec
	for i, x := range c {
		switch i {
		case 0:
			v.X = x
		case 1:
			v.Y = x
		case 2:
			v.Z = x
		}
	}
	return v
}

// neighborWeight is the contribution of (p_dof - p_cell) to a cell gradient
type neighborWeight struct {
	dof int
	a   r3.Vec
}

// gradientWeights solves the normal equations sum d d^T g = sum d dp of
// element e
func (l *MpfaDarcy) gradientWeights(gg *geometry.GridGeometry, cell *geometry.SubControlVolume) ([]neighborWeight, error) {
	var nbs []*geometry.SubControlVolume
	var ds []r3.Vec
	for _, si := range gg.ElementScvfs(cell.ElementIndex) {
		s := gg.Scvf(si)
		if s.NumOutsideScvs() != 1 {
			continue
		}
		nb := gg.Scv(s.OutsideScvIdx(0))
		nbs = append(nbs, nb)
		ds = append(ds, r3.Sub(nb.Center, cell.Center))
	}

	M := mat.NewDense(l.dim, l.dim, nil)
	for _, d := range ds {
		for i := 0; i < l.dim; i++ {
			for j := 0; j < l.dim; j++ {
				M.Set(i, j, M.At(i, j)+component(d, i)*component(d, j))
			}
		}
	}
	var lu mat.LU
	lu.Factorize(M)
	if c := lu.Cond(); c > maxCondition {
		return nil, fmt.Errorf("%w: least-squares gradient of element %d has condition %g",
			utils.ErrNumericalProblem, cell.ElementIndex, c)
	}

	weights := make([]neighborWeight, len(nbs))
	rhs := mat.NewVecDense(l.dim, nil)
	var a mat.VecDense
	for k, d := range ds {
		for i := 0; i < l.dim; i++ {
			rhs.SetVec(i, component(d, i))
		}
		if err := lu.SolveVecTo(&a, false, rhs); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", utils.ErrNumericalProblem, cell.ElementIndex, err)
		}
		weights[k] = neighborWeight{dof: nbs[k].DofIndex, a: fromComponents(a.RawVector().Data)}
	}
	return weights, nil
}

func addWeight(entry *fluxcache.Entry, dof int, w float64) {
	for i, d := range entry.Stencil {
		if d == dof {
			entry.Weights[i] += w
			return
		}
	}
	entry.Stencil = append(entry.Stencil, dof)
	entry.Weights = append(entry.Weights, w)
}

// Fill stores the stencil weights of interior faces and the two-point
// coefficients of every face
func (l *MpfaDarcy) Fill(entry *fluxcache.Entry, fv *geometry.ElementGeometry, _ *volvars.ElementVolumeVariables,
	scvf *geometry.SubControlVolumeFace) error {
	gg := fv.GridGeometry()
	if err := fillTwoPoint(entry, gg, l.params.Spatial, scvf); err != nil {
		return err
	}
	if scvf.NumOutsideScvs() != 1 {
		return nil
	}

	in := gg.Scv(scvf.InsideScvIdx())
	out := gg.Scv(scvf.OutsideScvIdx(0))
	d := r3.Sub(out.Center, in.Center)
	dd := r3.Dot(d, d)
	n := scvf.UnitOuterNormal
	nd := r3.Dot(n, d)
	tangential := r3.Sub(n, r3.Scale(nd/dd, d))

	kIn := l.params.Spatial.PermeabilityAt(in.Center)
	kOut := l.params.Spatial.PermeabilityAt(out.Center)
	scale := -scvf.Area * 2 * kIn * kOut / (kIn + kOut)

	addWeight(entry, in.DofIndex, -scale*nd/dd)
	addWeight(entry, out.DofIndex, scale*nd/dd)
	for _, cell := range []*geometry.SubControlVolume{in, out} {
		weights, err := l.gradientWeights(gg, cell)
		if err != nil {
			return err
		}
		for _, w := range weights {
			c := 0.5 * scale * r3.Dot(w.a, tangential)
			addWeight(entry, w.dof, c)
			addWeight(entry, cell.DofIndex, -c)
		}
	}
	return nil
}

// Flux returns the volumetric flux times viscosity
func (l *MpfaDarcy) Flux(ctx *flux.Context, scvf *geometry.SubControlVolumeFace, _ int) (float64, error) {
	if scvf.NumOutsideScvs() != 1 {
		return 0, fmt.Errorf("%w: multi-point flux at scvf %d with %d outside scvs",
			utils.ErrUnsupported, scvf.Index, scvf.NumOutsideScvs())
	}
	entry := ctx.Entry(scvf)
	q := 0.0
	for i, dof := range entry.Stencil {
		q += entry.Weights[i] * ctx.VolVars.At(dof).PriVar(PressureIdx)
	}
	return entry.Orientation(scvf.Index) * q, nil
}
