package onep

import (
	"github.com/notargets/FVKernel/flux"
	"github.com/notargets/FVKernel/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// FickDiffusion is the diffusive tracer mass flux phi rho D grad x. It reads
// the geometric transmissibility of cell centered entries and the basis
// gradients of box entries.
type FickDiffusion struct {
	Coefficient float64
}

func (f FickDiffusion) Flux(ctx *flux.Context, scvf *geometry.SubControlVolumeFace) float64 {
	if f.Coefficient == 0 {
		return 0
	}
	entry := ctx.Entry(scvf)
	if len(entry.ShapeGrads) > 0 {
		_, gradX := interpolate(ctx, scvf, entry, (*VolumeVariables).Fraction)
		rho, _ := interpolate(ctx, scvf, entry, (*VolumeVariables).Density)
		phi, _ := interpolate(ctx, scvf, entry, (*VolumeVariables).Porosity)
		return -phi * rho * f.Coefficient * scvf.Area * r3.Dot(scvf.UnitOuterNormal, gradX)
	}

	in := stateOf(ctx.Inside(scvf))
	n := scvf.NumOutsideScvs()
	if n == 0 {
		return 0
	}

	rho, phi := in.density, in.Porosity()
	for i := 0; i < n; i++ {
		out := stateOf(ctx.Outside(scvf, i))
		rho += out.density
		phi += out.Porosity()
	}
	scale := phi / float64(n+1) * rho / float64(n+1) * f.Coefficient * entry.GeoTij
	if n == 1 {
		return scale * (in.Fraction() - stateOf(ctx.Outside(scvf, 0)).Fraction())
	}

	// Junction fraction weighted by the geometric half transmissibilities
	num, den := entry.GeoTij*in.Fraction(), entry.GeoTij
	for i := 0; i < n; i++ {
		num += entry.OutsideTij[i] * stateOf(ctx.Outside(scvf, i)).Fraction()
		den += entry.OutsideTij[i]
	}
	return scale * (in.Fraction() - num/den)
}
