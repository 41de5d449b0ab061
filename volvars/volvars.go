package volvars

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/utils"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// VolumeVariables holds the constitutive state of one scv
type VolumeVariables interface {
	// Update evaluates the state from the primary variables of the scv's dof
	Update(priVars []float64, scv *geometry.SubControlVolume) error

	// PriVar returns primary variable eq
	PriVar(eq int) float64

	// ExtrusionFactor scales areas and volumes, e.g. the cross section of a
	// pipe network or the thickness of a 2-D slab
	ExtrusionFactor() float64
}

// Factory creates an empty VolumeVariables
type Factory func() VolumeVariables

// GridVolumeVariables owns the volume variables of every scv when caching is
// enabled. Without caching it only remembers the current solution and local
// views evaluate on bind.
type GridVolumeVariables struct {
	gg      *geometry.GridGeometry
	factory Factory
	caching bool
	workers int
	logger  *slog.Logger

	sol      *mat.Dense
	snapshot *mat.Dense        // values vars were evaluated from
	vars     []VolumeVariables // [scv], nil without caching
}

// Option configures GridVolumeVariables
type Option func(*GridVolumeVariables)

// WithCaching enables the grid-wide cache
func WithCaching(enabled bool) Option {
	return func(g *GridVolumeVariables) { g.caching = enabled }
}

// WithWorkers bounds the number of goroutines used by Update
func WithWorkers(n int) Option {
	return func(g *GridVolumeVariables) { g.workers = n }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(g *GridVolumeVariables) { g.logger = l }
}

// NewGridVolumeVariables creates the grid-wide volume variables
func NewGridVolumeVariables(gg *geometry.GridGeometry, factory Factory, opts ...Option) *GridVolumeVariables {
	g := &GridVolumeVariables{
		gg:      gg,
		factory: factory,
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.workers < 1 {
		g.workers = 1
	}
	return g
}

// GridGeometry returns the geometry the variables live on
func (g *GridVolumeVariables) GridGeometry() *geometry.GridGeometry { return g.gg }

// Caching reports whether volume variables are stored grid wide
func (g *GridVolumeVariables) Caching() bool { return g.caching }

// Solution returns the solution of the last Update
func (g *GridVolumeVariables) Solution() *mat.Dense { return g.sol }

// Update makes sol the current solution and, with caching, evaluates every
// scv. sol has one row per dof and one column per equation.
func (g *GridVolumeVariables) Update(ctx context.Context, sol *mat.Dense) error {
	if r, _ := sol.Dims(); r != g.gg.NumDofs() {
		return fmt.Errorf("solution has %d rows, grid has %d dofs", r, g.gg.NumDofs())
	}
	g.sol = sol
	if !g.caching {
		return nil
	}
	g.snapshot = nil

	n := g.gg.NumScv()
	if g.vars == nil {
		g.vars = make([]VolumeVariables, n)
		for i := range g.vars {
			g.vars[i] = g.factory()
		}
	}

	chunk := (n + g.workers - 1) / g.workers
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		eg.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := evaluate(g.vars[i], g.gg.Scv(i), sol); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	g.snapshot = mat.DenseCopyOf(sol)

	g.logger.Debug("volume variables updated", "scvs", n, "workers", g.workers)
	return nil
}

// At returns the cached volume variables of an scv
func (g *GridVolumeVariables) At(scvIdx int) VolumeVariables {
	utils.Assert(g.caching && g.vars != nil, "grid volume variables read without caching or before Update")
	return g.vars[scvIdx]
}

// Holds reports whether the cached volume variables of dof were evaluated
// from the values sol holds now. A solution changed in place after Update
// fails the check for every dof it touched.
func (g *GridVolumeVariables) Holds(dof int, sol *mat.Dense) bool {
	if !g.caching || g.snapshot == nil {
		return false
	}
	_, c := sol.Dims()
	if _, sc := g.snapshot.Dims(); sc != c {
		return false
	}
	for eq := 0; eq < c; eq++ {
		if sol.At(dof, eq) != g.snapshot.At(dof, eq) {
			return false
		}
	}
	return true
}

// LocalView returns an unbound element view
func (g *GridVolumeVariables) LocalView() *ElementVolumeVariables {
	return &ElementVolumeVariables{gvv: g}
}

func evaluate(vv VolumeVariables, scv *geometry.SubControlVolume, sol *mat.Dense) error {
	if err := vv.Update(mat.Row(nil, scv.DofIndex, sol), scv); err != nil {
		return &utils.AssemblyError{Element: scv.ElementIndex, Scvf: -1,
			Err: fmt.Errorf("volume variables of scv %d: %w", scv.Index, err)}
	}
	return nil
}
