package onep

import (
	"github.com/notargets/FVKernel/flux"
	"github.com/notargets/FVKernel/fluxcache"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/volvars"
	"gonum.org/v1/gonum/spatial/r3"
)

// BoxDarcy evaluates the Darcy flux of the vertex centered scheme with the
// element basis at the face integration point
type BoxDarcy struct {
	params *Params
}

func NewBoxDarcy(params *Params) *BoxDarcy { return &BoxDarcy{params: params} }

func (l *BoxDarcy) SolutionIndependent() bool { return true }

// Fill stores the basis values and gradients at the face center, in corner
// order of the element
func (l *BoxDarcy) Fill(entry *fluxcache.Entry, fv *geometry.ElementGeometry, _ *volvars.ElementVolumeVariables,
	scvf *geometry.SubControlVolumeFace) error {
	ent := fv.Element()
	values, grads, err := geometry.ShapeFunctions(ent, scvf.Center)
	if err != nil {
		return err
	}
	entry.ShapeValues = append(entry.ShapeValues, values...)
	entry.ShapeGrads = append(entry.ShapeGrads, grads...)
	entry.Stencil = append(entry.Stencil, ent.Vertices...)
	entry.Tij = l.params.Spatial.PermeabilityAt(scvf.Center) * scvf.Area
	entry.GeoTij = scvf.Area
	return nil
}

// interpolate returns the basis interpolation of fn and of its gradient
func interpolate(ctx *flux.Context, scvf *geometry.SubControlVolumeFace, entry *fluxcache.Entry,
	fn func(*VolumeVariables) float64) (float64, r3.Vec) {
	scvs := ctx.Geometry.GridGeometry().ElementScvs(scvf.ElementIndex)
	var value float64
	var grad r3.Vec
	for k, s := range scvs {
		x := fn(stateOf(ctx.VolVars.At(s)))
		value += entry.ShapeValues[k] * x
		grad = r3.Add(grad, r3.Scale(x, entry.ShapeGrads[k]))
	}
	return value, grad
}

// Flux returns -A K n.(grad p - rho g), the volumetric flux times viscosity
func (l *BoxDarcy) Flux(ctx *flux.Context, scvf *geometry.SubControlVolumeFace, _ int) (float64, error) {
	entry := ctx.Entry(scvf)
	_, gradP := interpolate(ctx, scvf, entry, (*VolumeVariables).Pressure)
	rho, _ := interpolate(ctx, scvf, entry, (*VolumeVariables).Density)
	drive := r3.Sub(gradP, r3.Scale(rho, l.params.Spatial.Gravity))
	return -entry.Tij * r3.Dot(scvf.UnitOuterNormal, drive), nil
}
