package flux

import (
	"github.com/notargets/FVKernel/fluxcache"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/volvars"
)

// Context bundles the local views of one bound element. All three must be
// bound to the same element geometry bind.
type Context struct {
	Geometry *geometry.ElementGeometry
	VolVars  *volvars.ElementVolumeVariables
	Cache    *fluxcache.ElementFluxVariablesCache
}

// Inside returns the volume variables of the inside scv of a face
func (c *Context) Inside(scvf *geometry.SubControlVolumeFace) volvars.VolumeVariables {
	return c.VolVars.At(scvf.InsideScvIdx())
}

// Outside returns the volume variables of the i-th outside scv of a face
func (c *Context) Outside(scvf *geometry.SubControlVolumeFace, i int) volvars.VolumeVariables {
	return c.VolVars.At(scvf.OutsideScvIdx(i))
}

// Entry returns the flux cache entry of a face
func (c *Context) Entry(scvf *geometry.SubControlVolumeFace) *fluxcache.Entry {
	return c.Cache.At(scvf.Index)
}

// Law is a pluggable flux approximation. Fill precomputes the face
// coefficients, Flux evaluates the flux of a phase across the face along its
// normal, scaled by the face area and without upwinded factors such as the
// mobility. A law that implements fluxcache.SolutionIndependent has its
// global sweeps skipped once filled.
type Law interface {
	fluxcache.Filler
	Flux(ctx *Context, scvf *geometry.SubControlVolumeFace, phase int) (float64, error)
}
