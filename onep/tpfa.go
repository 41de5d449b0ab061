package onep

import (
	"fmt"
	"math"

	"github.com/notargets/FVKernel/flux"
	"github.com/notargets/FVKernel/fluxcache"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/utils"
	"github.com/notargets/FVKernel/volvars"
	"gonum.org/v1/gonum/spatial/r3"
)

// TpfaDarcy is the two-point Darcy law of cell centered grids. The cached
// transmissibility is the harmonic mean of the two half transmissibilities
// A K (n.d)/|d|^2. At a branching junction the face pressure is the
// transmissibility weighted mean of every branch.
type TpfaDarcy struct {
	params *Params
}

func NewTpfaDarcy(params *Params) *TpfaDarcy { return &TpfaDarcy{params: params} }

// SolutionIndependent marks the transmissibilities as geometry only
func (l *TpfaDarcy) SolutionIndependent() bool { return true }

// halfTransmissibility is the geometric part A (n.d)/|d|^2 between a cell
// center and the face
func halfTransmissibility(scvf *geometry.SubControlVolumeFace, center r3.Vec) float64 {
	d := r3.Sub(scvf.Center, center)
	return scvf.Area * math.Abs(r3.Dot(scvf.UnitOuterNormal, d)) / r3.Dot(d, d)
}

// series combines two half transmissibilities
func series(a, b float64) float64 { return a * b / (a + b) }

// fillTwoPoint stores Tij with permeability and GeoTij without. Branching
// faces keep the inside half and record the geometric half of every
// outside branch in OutsideTij.
func fillTwoPoint(entry *fluxcache.Entry, gg *geometry.GridGeometry, spatial SpatialParams,
	scvf *geometry.SubControlVolumeFace) error {
	in := gg.Scv(scvf.InsideScvIdx())
	gIn := halfTransmissibility(scvf, in.Center)
	kIn := spatial.PermeabilityAt(in.Center)

	if n := scvf.NumOutsideScvs(); n != 1 {
		entry.GeoTij, entry.Tij = gIn, kIn*gIn
		for i := 0; i < n; i++ {
			twin := gg.Scvf(gg.FlipScvf(scvf.Index, i))
			entry.OutsideTij = append(entry.OutsideTij,
				halfTransmissibility(twin, gg.Scv(twin.InsideScvIdx()).Center))
		}
	} else {
		out := gg.Scv(scvf.OutsideScvIdx(0))
		gOut := halfTransmissibility(scvf, out.Center)
		kOut := spatial.PermeabilityAt(out.Center)
		entry.GeoTij = series(gIn, gOut)
		entry.Tij = series(kIn*gIn, kOut*gOut)
	}

	if !(entry.Tij > 0) || math.IsInf(entry.Tij, 0) {
		return fmt.Errorf("%w: transmissibility %g at scvf %d", utils.ErrNumericalProblem, entry.Tij, scvf.Index)
	}
	return nil
}

func (l *TpfaDarcy) Fill(entry *fluxcache.Entry, fv *geometry.ElementGeometry, _ *volvars.ElementVolumeVariables,
	scvf *geometry.SubControlVolumeFace) error {
	return fillTwoPoint(entry, fv.GridGeometry(), l.params.Spatial, scvf)
}

// potential subtracts the hydrostatic part from the pressure
func (l *TpfaDarcy) potential(p, rho float64, x r3.Vec) float64 {
	return p - rho*r3.Dot(l.params.Spatial.Gravity, x)
}

// Flux returns the volumetric flux times viscosity
func (l *TpfaDarcy) Flux(ctx *flux.Context, scvf *geometry.SubControlVolumeFace, _ int) (float64, error) {
	gg := ctx.Geometry.GridGeometry()
	entry := ctx.Entry(scvf)
	in := stateOf(ctx.Inside(scvf))
	xIn := gg.Scv(scvf.InsideScvIdx()).Center

	n := scvf.NumOutsideScvs()
	switch n {
	case 0:
		return 0, fmt.Errorf("%w: two-point flux at boundary scvf %d has no outside state",
			utils.ErrUnsupported, scvf.Index)
	case 1:
		out := stateOf(ctx.Outside(scvf, 0))
		xOut := gg.Scv(scvf.OutsideScvIdx(0)).Center
		rho := 0.5 * (in.density + out.density)
		return entry.Tij * (l.potential(in.Pressure(), rho, xIn) - l.potential(out.Pressure(), rho, xOut)), nil
	}

	rho := in.density
	for i := 0; i < n; i++ {
		rho += stateOf(ctx.Outside(scvf, i)).density
	}
	rho /= float64(n + 1)

	own := l.potential(in.Pressure(), rho, xIn)
	num, den := entry.Tij*own, entry.Tij
	for i := 0; i < n; i++ {
		out := stateOf(ctx.Outside(scvf, i))
		t := out.permeability * entry.OutsideTij[i]
		num += t * l.potential(out.Pressure(), rho, gg.Scv(scvf.OutsideScvIdx(i)).Center)
		den += t
	}
	return entry.Tij * (own - num/den), nil
}
