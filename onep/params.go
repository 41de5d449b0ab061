package onep

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Fluid is a slightly compressible liquid with constant viscosity
type Fluid struct {
	RefDensity      float64 // kg/m^3 at RefPressure
	RefPressure     float64 // Pa
	Compressibility float64 // 1/Pa
	Viscosity       float64 // Pa s
}

// Density returns rho0 exp(c (p - p0))
func (f Fluid) Density(p float64) float64 {
	return f.RefDensity * math.Exp(f.Compressibility*(p-f.RefPressure))
}

// SpatialParams are the solid matrix parameters
type SpatialParams struct {
	Permeability float64 // m^2, isotropic
	Porosity     float64
	Extrusion    float64 // Cross section of network pipes or thickness of 2-D slabs
	Gravity      r3.Vec

	// PermeabilityField overrides Permeability when set
	PermeabilityField func(x r3.Vec) float64
}

// PermeabilityAt returns the permeability at a position
func (s SpatialParams) PermeabilityAt(x r3.Vec) float64 {
	if s.PermeabilityField != nil {
		return s.PermeabilityField(x)
	}
	return s.Permeability
}

// Params bundles everything the single-phase model reads
type Params struct {
	Fluid   Fluid
	Spatial SpatialParams

	// Tracer adds a transported mass fraction as second equation
	Tracer    bool
	Diffusion float64 // Molecular diffusion coefficient of the tracer, m^2/s
}

// NumEq returns the number of balance equations
func (p *Params) NumEq() int {
	if p.Tracer {
		return 2
	}
	return 1
}

// Validate checks physical ranges
func (p *Params) Validate() error {
	var errs []error
	if !(p.Fluid.RefDensity > 0) {
		errs = append(errs, fmt.Errorf("reference density %g must be positive", p.Fluid.RefDensity))
	}
	if !(p.Fluid.Viscosity > 0) {
		errs = append(errs, fmt.Errorf("viscosity %g must be positive", p.Fluid.Viscosity))
	}
	if p.Fluid.Compressibility < 0 {
		errs = append(errs, fmt.Errorf("compressibility %g must not be negative", p.Fluid.Compressibility))
	}
	if p.Spatial.PermeabilityField == nil && !(p.Spatial.Permeability > 0) {
		errs = append(errs, fmt.Errorf("permeability %g must be positive", p.Spatial.Permeability))
	}
	if !(p.Spatial.Porosity > 0 && p.Spatial.Porosity <= 1) {
		errs = append(errs, fmt.Errorf("porosity %g outside (0, 1]", p.Spatial.Porosity))
	}
	if !(p.Spatial.Extrusion > 0) {
		errs = append(errs, fmt.Errorf("extrusion factor %g must be positive", p.Spatial.Extrusion))
	}
	if p.Diffusion < 0 {
		errs = append(errs, fmt.Errorf("diffusion coefficient %g must not be negative", p.Diffusion))
	}
	return errors.Join(errs...)
}

// Water returns liquid water at 20 C in a unit extrusion sand
func Water() *Params {
	return &Params{
		Fluid: Fluid{
			RefDensity:      998.2,
			RefPressure:     1e5,
			Compressibility: 4.5e-10,
			Viscosity:       1.002e-3,
		},
		Spatial: SpatialParams{
			Permeability: 1e-12,
			Porosity:     0.3,
			Extrusion:    1,
		},
		Diffusion: 1e-9,
	}
}
