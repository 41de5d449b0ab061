package upwind

import (
	"fmt"
	"math"

	"github.com/notargets/FVKernel/flux"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/utils"
	"github.com/notargets/FVKernel/volvars"
)

// Term is the transported quantity, e.g. density over viscosity
type Term func(volvars.VolumeVariables) float64

// TwoSided weights the upstream and downstream values of a face with
// q >= 0 meaning flow from the inside to the outside
func TwoSided(q, w, fIn, fOut float64) float64 {
	if math.Signbit(q) {
		return q * (w*fOut + (1-w)*fIn)
	}
	return q * (w*fIn + (1-w)*fOut)
}

// Branch is one outside branch of a junction face
type Branch struct {
	Flux  float64 // Flux of the branch's own face, positive into the junction
	Value float64 // Transported quantity of the branch
}

// Branching upwinds a junction face. Outflow takes the inside value.
// Inflow takes the flux weighted mean of the inflowing branches, normalized
// by the total outflow of the junction, which is zero when nothing flows.
func Branching(q, fIn float64, branches []Branch) float64 {
	if !math.Signbit(q) {
		return q * fIn
	}

	sum := q
	term := 0.0
	for _, b := range branches {
		if !math.Signbit(b.Flux) {
			term += b.Value * b.Flux
		} else {
			sum += b.Flux
		}
	}
	if sum == 0 {
		return 0
	}
	return q * term / -sum
}

// Scheme applies upwinding for one discretization
type Scheme struct {
	weight   float64
	lowerDim bool
}

// NewScheme validates the weights. Only full upwinding is defined at
// branching faces.
func NewScheme(gg *geometry.GridGeometry, weight, branchingWeight float64) (*Scheme, error) {
	if weight < 0 || weight > 1 || math.IsNaN(weight) {
		return nil, fmt.Errorf("%w: upwind weight %g outside [0, 1]", utils.ErrUnsupported, weight)
	}
	if branchingWeight != 1 {
		return nil, fmt.Errorf("%w: branching upwind weight %g, only 1 is implemented",
			utils.ErrUnsupported, branchingWeight)
	}
	return &Scheme{weight: weight, lowerDim: gg.IsLowerDimensional()}, nil
}

// Weight returns the upwind weight of two-sided faces
func (s *Scheme) Weight() float64 { return s.weight }

// Apply returns q times the upwinded term at a face. law evaluates the
// branch fluxes at junctions.
func (s *Scheme) Apply(ctx *flux.Context, scvf *geometry.SubControlVolumeFace, q float64, fn Term,
	law flux.Law, phase int) (float64, error) {
	fIn := fn(ctx.Inside(scvf))

	switch n := scvf.NumOutsideScvs(); {
	case n == 0:
		return q * fIn, nil
	case n == 1:
		return TwoSided(q, s.weight, fIn, fn(ctx.Outside(scvf, 0))), nil
	case !s.lowerDim:
		return 0, fmt.Errorf("%w: scvf %d has %d outside scvs on a full dimensional grid",
			utils.ErrUnsupported, scvf.Index, n)
	}

	if !math.Signbit(q) {
		return q * fIn, nil
	}
	branches := make([]Branch, scvf.NumOutsideScvs())
	for i := range branches {
		twin := ctx.Geometry.FlipScvf(scvf.Index, i)
		qb, err := law.Flux(ctx, twin, phase)
		if err != nil {
			return 0, err
		}
		// A positive twin flux leaves the branch, i.e. enters the junction
		branches[i] = Branch{Flux: qb, Value: fn(ctx.Outside(scvf, i))}
	}
	return Branching(q, fIn, branches), nil
}
