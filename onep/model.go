package onep

import (
	"fmt"

	"github.com/notargets/FVKernel/flux"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/upwind"
	"github.com/notargets/FVKernel/utils"
	"github.com/notargets/FVKernel/volvars"
)

// NewLaw selects the Darcy law of a discretization method
func NewLaw(gg *geometry.GridGeometry, params *Params) (flux.Law, error) {
	switch gg.Method() {
	case geometry.CCTpfa:
		return NewTpfaDarcy(params), nil
	case geometry.CCMpfa:
		return NewMpfaDarcy(gg, params)
	case geometry.Box:
		return NewBoxDarcy(params), nil
	case geometry.Staggered:
		return NewStaggeredDarcy(params), nil
	}
	return nil, fmt.Errorf("%w: no Darcy law for %s", utils.ErrUnsupported, gg.Method())
}

// Model is the single-phase balance: mass, plus tracer mass when enabled
type Model struct {
	params *Params
	law    flux.Law
	scheme *upwind.Scheme
	fick   FickDiffusion
}

// NewModel validates the parameters and wires the law and upwind scheme
func NewModel(params *Params, law flux.Law, scheme *upwind.Scheme) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("single phase parameters: %w", err)
	}
	return &Model{
		params: params,
		law:    law,
		scheme: scheme,
		fick:   FickDiffusion{Coefficient: params.Diffusion},
	}, nil
}

// Law returns the Darcy law, which is also the flux cache filler
func (m *Model) Law() flux.Law { return m.law }

// Params returns the model parameters
func (m *Model) Params() *Params { return m.params }

func (m *Model) NumEq() int { return m.params.NumEq() }

// Storage returns phi rho and phi rho x
func (m *Model) Storage(vv volvars.VolumeVariables) []float64 {
	v := stateOf(vv)
	s := []float64{v.Porosity() * v.density}
	if m.params.Tracer {
		s = append(s, v.Porosity()*v.density*v.Fraction())
	}
	return s
}

// Mobility terms upwinded per phase
func massMobility(vv volvars.VolumeVariables) float64 {
	v := stateOf(vv)
	return v.density / v.Viscosity()
}

func tracerMobility(vv volvars.VolumeVariables) float64 {
	v := stateOf(vv)
	return v.density * v.Fraction() / v.Viscosity()
}

// Flux upwinds the Darcy flux with the mass mobility and, with a tracer,
// adds the advective and diffusive tracer fluxes
func (m *Model) Flux(ctx *flux.Context, scvf *geometry.SubControlVolumeFace) ([]float64, error) {
	const phase = 0
	q, err := m.law.Flux(ctx, scvf, phase)
	if err != nil {
		return nil, err
	}
	mass, err := m.scheme.Apply(ctx, scvf, q, massMobility, m.law, phase)
	if err != nil {
		return nil, err
	}
	if !m.params.Tracer {
		return []float64{mass}, nil
	}

	advective, err := m.scheme.Apply(ctx, scvf, q, tracerMobility, m.law, phase)
	if err != nil {
		return nil, err
	}
	return []float64{mass, advective + m.fick.Flux(ctx, scvf)}, nil
}

// OutflowFlux mirrors the Darcy flux and the tracer gradient of the opposite
// face onto the boundary face. Upwinding across the boundary face takes the
// inside state, so whatever leaves the domain carries the outlet scv's
// mobility and fraction.
func (m *Model) OutflowFlux(ctx *flux.Context, scvf, opposite *geometry.SubControlVolumeFace,
	orient float64) ([]float64, error) {
	const phase = 0
	q, err := m.law.Flux(ctx, opposite, phase)
	if err != nil {
		return nil, err
	}
	q *= orient
	mass, err := m.scheme.Apply(ctx, scvf, q, massMobility, m.law, phase)
	if err != nil {
		return nil, err
	}
	if !m.params.Tracer {
		return []float64{mass}, nil
	}

	advective, err := m.scheme.Apply(ctx, scvf, q, tracerMobility, m.law, phase)
	if err != nil {
		return nil, err
	}
	return []float64{mass, advective + orient*m.fick.Flux(ctx, opposite)}, nil
}
