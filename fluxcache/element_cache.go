package fluxcache

import (
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/utils"
	"github.com/notargets/FVKernel/volvars"
)

// ElementFluxVariablesCache is the local view of the flux cache. With the
// global policy it forwards to the grid entries; with the local policy it
// fills its own entries on every bind.
type ElementFluxVariablesCache struct {
	gfc        *GridFluxVariablesCache
	fv         *geometry.ElementGeometry
	generation uint64

	scvfs   []int // local policy: filled scvfs, parallel to entries
	entries []Entry
}

// Bind prepares the entries of every scvf of the element. At branching
// faces the twins seen from the outside branches are filled too.
func (ec *ElementFluxVariablesCache) Bind(fv *geometry.ElementGeometry, ev *volvars.ElementVolumeVariables) error {
	return ec.bind(fv, ev, true)
}

// BindElement prepares the entries of the element's own scvfs
func (ec *ElementFluxVariablesCache) BindElement(fv *geometry.ElementGeometry, ev *volvars.ElementVolumeVariables) error {
	return ec.bind(fv, ev, false)
}

// BindScvf prepares the entry of the single scvf fv is bound to
func (ec *ElementFluxVariablesCache) BindScvf(fv *geometry.ElementGeometry, ev *volvars.ElementVolumeVariables) error {
	utils.Assert(fv.Mode() == geometry.BoundScvf, "BindScvf needs a geometry bound with BindScvf, got %s", fv.Mode())
	return ec.bind(fv, ev, true)
}

func (ec *ElementFluxVariablesCache) bind(fv *geometry.ElementGeometry, ev *volvars.ElementVolumeVariables, twins bool) error {
	utils.Assert(fv.Bound(), "flux cache bound to an unbound element geometry")
	ec.fv = nil
	ec.generation = fv.Generation()

	if ec.gfc.policy == Global {
		utils.Assert(ec.gfc.valid, "global flux cache bound before Update completed")
		ec.fv = fv
		return nil
	}

	ec.scvfs = ec.scvfs[:0]
	for scvf := range fv.Scvfs() {
		ec.scvfs = append(ec.scvfs, scvf.Index)
		if twins && scvf.NumOutsideScvs() > 1 {
			for i := 0; i < scvf.NumOutsideScvs(); i++ {
				ec.scvfs = append(ec.scvfs, fv.FlipScvf(scvf.Index, i).Index)
			}
		}
	}
	if cap(ec.entries) < len(ec.scvfs) {
		ec.entries = make([]Entry, len(ec.scvfs))
	}
	ec.entries = ec.entries[:len(ec.scvfs)]

	for i, scvfIdx := range ec.scvfs {
		if err := ec.gfc.fill(&ec.entries[i], scvfIdx, fv, ev); err != nil {
			return err
		}
	}
	cacheFillsTotal.WithLabelValues(Local.String()).Add(float64(len(ec.scvfs)))
	ec.fv = fv
	return nil
}

// At returns the entry of a bound scvf
func (ec *ElementFluxVariablesCache) At(scvfIdx int) *Entry {
	utils.Assert(ec.fv != nil, "element flux cache is unbound")
	utils.Assert(ec.fv.Generation() == ec.generation,
		"element flux cache used after the element geometry was rebound")

	if ec.gfc.policy == Global {
		ec.fv.Scvf(scvfIdx)
		return ec.gfc.At(scvfIdx)
	}
	for i, s := range ec.scvfs {
		if s == scvfIdx {
			return &ec.entries[i]
		}
	}
	utils.Assert(false, "scvf %d not bound in element flux cache", scvfIdx)
	return nil
}

// GridCache returns the grid-wide owner of the view
func (ec *ElementFluxVariablesCache) GridCache() *GridFluxVariablesCache { return ec.gfc }
