package onep

import (
	"github.com/notargets/FVKernel/fluxcache"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/volvars"
)

// StaggeredDarcy is the two-point Darcy law between the face dofs of a
// staggered grid. The interior scvf of an axis joins the two opposite faces
// through the element center, so the cached transmissibility is the series
// of the two half distances.
type StaggeredDarcy struct {
	TpfaDarcy
}

func NewStaggeredDarcy(params *Params) *StaggeredDarcy {
	return &StaggeredDarcy{TpfaDarcy{params: params}}
}

// Fill stores area times permeability on boundary faces, whose dof sits on
// the face itself
func (l *StaggeredDarcy) Fill(entry *fluxcache.Entry, fv *geometry.ElementGeometry, _ *volvars.ElementVolumeVariables,
	scvf *geometry.SubControlVolumeFace) error {
	if scvf.NumOutsideScvs() == 0 {
		entry.GeoTij = scvf.Area
		entry.Tij = l.params.Spatial.PermeabilityAt(scvf.Center) * scvf.Area
		return nil
	}
	return fillTwoPoint(entry, fv.GridGeometry(), l.params.Spatial, scvf)
}
