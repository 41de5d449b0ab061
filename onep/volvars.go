package onep

import (
	"fmt"
	"math"

	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/utils"
	"github.com/notargets/FVKernel/volvars"
)

// Primary variable and equation indices
const (
	PressureIdx = 0
	FractionIdx = 1
)

// VolumeVariables is the state of one scv
type VolumeVariables struct {
	params       *Params
	priVars      []float64
	density      float64
	permeability float64
}

// NewVolumeVariables is a volvars.Factory
func (p *Params) NewVolumeVariables() volvars.VolumeVariables {
	return &VolumeVariables{params: p}
}

// Update evaluates the density and the permeability of the scv
func (v *VolumeVariables) Update(priVars []float64, scv *geometry.SubControlVolume) error {
	if len(priVars) < v.params.NumEq() {
		return fmt.Errorf("scv %d: %d primary variables, model needs %d", scv.Index, len(priVars), v.params.NumEq())
	}
	v.priVars = append(v.priVars[:0], priVars...)
	v.density = v.params.Fluid.Density(priVars[PressureIdx])
	if math.IsNaN(v.density) || math.IsInf(v.density, 0) || v.density <= 0 {
		return fmt.Errorf("%w: density %g at pressure %g in scv %d",
			utils.ErrNumericalProblem, v.density, priVars[PressureIdx], scv.Index)
	}
	v.permeability = v.params.Spatial.PermeabilityAt(scv.Center)
	return nil
}

func (v *VolumeVariables) PriVar(eq int) float64 { return v.priVars[eq] }

func (v *VolumeVariables) ExtrusionFactor() float64 { return v.params.Spatial.Extrusion }

func (v *VolumeVariables) Pressure() float64 { return v.priVars[PressureIdx] }

func (v *VolumeVariables) Density() float64 { return v.density }

func (v *VolumeVariables) Viscosity() float64 { return v.params.Fluid.Viscosity }

func (v *VolumeVariables) Porosity() float64 { return v.params.Spatial.Porosity }

func (v *VolumeVariables) Permeability() float64 { return v.permeability }

// Fraction returns the tracer mass fraction, zero without tracer
func (v *VolumeVariables) Fraction() float64 {
	if !v.params.Tracer {
		return 0
	}
	return v.priVars[FractionIdx]
}

// stateOf reads the model's own volume variables back from the generic view
func stateOf(vv volvars.VolumeVariables) *VolumeVariables {
	v, ok := vv.(*VolumeVariables)
	utils.Assert(ok, "volume variables of type %T, expected single phase", vv)
	return v
}
