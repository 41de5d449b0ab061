package onep

import (
	"fmt"

	"github.com/notargets/FVKernel/flux"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/residual"
	"github.com/notargets/FVKernel/volvars"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// boxTolerance widens segment boxes against round-off in face centers
const boxTolerance = 1e-10

// Region is an axis aligned box, bounds included
type Region struct {
	Min, Max r3.Vec
}

// Contains reports whether x lies in the box
func (b Region) Contains(x r3.Vec) bool {
	return x.X >= b.Min.X-boxTolerance && x.X <= b.Max.X+boxTolerance &&
		x.Y >= b.Min.Y-boxTolerance && x.Y <= b.Max.Y+boxTolerance &&
		x.Z >= b.Min.Z-boxTolerance && x.Z <= b.Max.Z+boxTolerance
}

// Segment assigns boundary conditions to the boundary faces it selects.
// Marker > 0 selects by boundary marker, a non-nil Region by face center,
// neither selects every boundary face.
type Segment struct {
	Name   string
	Marker int
	Region *Region
	Types  residual.BoundaryTypes

	// Values are the Dirichlet values or Neumann fluxes per equation
	Values []float64

	// Profile overrides Values with a position dependent function
	Profile func(x r3.Vec) []float64
}

func (s *Segment) selects(scvf *geometry.SubControlVolumeFace) bool {
	switch {
	case s.Marker > 0:
		return scvf.BoundaryMarker == s.Marker
	case s.Region != nil:
		return s.Region.Contains(scvf.Center)
	}
	return true
}

func (s *Segment) values(x r3.Vec) []float64 {
	if s.Profile != nil {
		return s.Profile(x)
	}
	return s.Values
}

// PointSource injects Rate per equation, in kg/s, at a position
type PointSource struct {
	Position r3.Vec
	Rate     []float64
}

// Problem is a configurable single-phase problem. Boundary faces take the
// first matching segment, unmatched faces are no-flow Neumann.
type Problem struct {
	numEq    int
	segments []Segment
	faceSeg  map[int]int       // boundary scvf -> segment
	sources  map[int][]float64 // element -> rate per unit volume before extrusion
	initial  []float64
}

// NewProblem resolves segments and point sources on a grid geometry
func NewProblem(gg *geometry.GridGeometry, numEq int, initial []float64, segments []Segment,
	sources []PointSource) (*Problem, error) {
	if len(initial) != numEq {
		return nil, fmt.Errorf("initial state has %d values, model has %d equations", len(initial), numEq)
	}
	for i, s := range segments {
		if len(s.Types) != numEq {
			return nil, fmt.Errorf("segment %d (%s): %d boundary types for %d equations", i, s.Name, len(s.Types), numEq)
		}
		if s.Profile == nil && len(s.Values) != numEq {
			return nil, fmt.Errorf("segment %d (%s): %d values for %d equations", i, s.Name, len(s.Values), numEq)
		}
	}

	p := &Problem{
		numEq:    numEq,
		segments: segments,
		faceSeg:  make(map[int]int),
		sources:  make(map[int][]float64),
		initial:  initial,
	}
	for i := 0; i < gg.NumScvf(); i++ {
		scvf := gg.Scvf(i)
		if !scvf.Boundary {
			continue
		}
		for k := range segments {
			if segments[k].selects(scvf) {
				p.faceSeg[i] = k
				break
			}
		}
	}

	for i, src := range sources {
		if len(src.Rate) != numEq {
			return nil, fmt.Errorf("point source %d: %d rates for %d equations", i, len(src.Rate), numEq)
		}
		elems := gg.LocateElement(src.Position)
		if len(elems) == 0 {
			return nil, fmt.Errorf("point source %d at %v lies outside the grid", i, src.Position)
		}
		for _, e := range elems {
			volume := gg.Mesh().Element(e).Volume
			acc, ok := p.sources[e]
			if !ok {
				acc = make([]float64, numEq)
				p.sources[e] = acc
			}
			for eq, rate := range src.Rate {
				acc[eq] += rate / (float64(len(elems)) * volume)
			}
		}
	}
	return p, nil
}

// Segment returns the segment of a boundary scvf
func (p *Problem) Segment(scvfIdx int) (*Segment, bool) {
	k, ok := p.faceSeg[scvfIdx]
	if !ok {
		return nil, false
	}
	return &p.segments[k], true
}

func (p *Problem) BoundaryTypes(_ *geometry.ElementGeometry, scvf *geometry.SubControlVolumeFace) residual.BoundaryTypes {
	if s, ok := p.Segment(scvf.Index); ok {
		return s.Types
	}
	return residual.NewBoundaryTypes(p.numEq)
}

func (p *Problem) Dirichlet(_ *geometry.ElementGeometry, scvf *geometry.SubControlVolumeFace) []float64 {
	if s, ok := p.Segment(scvf.Index); ok {
		return s.values(scvf.Center)
	}
	return p.initial
}

func (p *Problem) Neumann(_ *flux.Context, scvf *geometry.SubControlVolumeFace) []float64 {
	if s, ok := p.Segment(scvf.Index); ok {
		return s.values(scvf.Center)
	}
	return make([]float64, p.numEq)
}

// Source spreads the point sources of an element uniformly over its volume
func (p *Problem) Source(_ *geometry.ElementGeometry, vv volvars.VolumeVariables, scv *geometry.SubControlVolume) []float64 {
	q := make([]float64, p.numEq)
	if rate, ok := p.sources[scv.ElementIndex]; ok {
		for eq := range q {
			q[eq] = rate[eq] / vv.ExtrusionFactor()
		}
	}
	return q
}

// InitialSolution returns the uniform initial state, one row per dof
func (p *Problem) InitialSolution(gg *geometry.GridGeometry) *mat.Dense {
	sol := mat.NewDense(gg.NumDofs(), p.numEq, nil)
	for i := 0; i < gg.NumDofs(); i++ {
		sol.SetRow(i, p.initial)
	}
	return sol
}
