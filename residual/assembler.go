package residual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/notargets/FVKernel/flux"
	"github.com/notargets/FVKernel/fluxcache"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/utils"
	"github.com/notargets/FVKernel/volvars"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultEpsilon is the relative perturbation of numerical derivatives
const DefaultEpsilon = 1e-8

// Assembler evaluates the global residual element by element. Partitions of
// the flux cache layout are assembled concurrently into private buffers that
// are summed once all workers finish.
type Assembler struct {
	gg      *geometry.GridGeometry
	model   Model
	problem Problem
	gvv     *volvars.GridVolumeVariables
	cache   *fluxcache.GridFluxVariablesCache
	local   *fluxcache.GridFluxVariablesCache // local policy, for derivatives

	workers    int
	logger     *slog.Logger
	forceCache bool
}

// Option configures an Assembler
type Option func(*Assembler)

// WithWorkers bounds the number of partitions assembled concurrently
func WithWorkers(n int) Option {
	return func(a *Assembler) { a.workers = n }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// WithForcedCacheUpdate refills a solution independent flux cache on every
// assembly
func WithForcedCacheUpdate(force bool) Option {
	return func(a *Assembler) { a.forceCache = force }
}

// NewAssembler wires a model and problem to the grid variables
func NewAssembler(model Model, problem Problem, gvv *volvars.GridVolumeVariables,
	cache *fluxcache.GridFluxVariablesCache, opts ...Option) (*Assembler, error) {
	if gvv.GridGeometry() != cache.GridGeometry() {
		return nil, errors.New("volume variables and flux cache live on different grid geometries")
	}
	if model.NumEq() < 1 {
		return nil, fmt.Errorf("model has %d equations", model.NumEq())
	}
	local, err := fluxcache.New(cache.GridGeometry(), cache.Filler(), fluxcache.Local)
	if err != nil {
		return nil, err
	}
	a := &Assembler{
		gg:      cache.GridGeometry(),
		model:   model,
		problem: problem,
		gvv:     gvv,
		cache:   cache,
		local:   local,
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.workers < 1 {
		a.workers = 1
	}
	return a, nil
}

// GridGeometry returns the grid the assembler works on
func (a *Assembler) GridGeometry() *geometry.GridGeometry { return a.gg }

// Cache returns the grid flux cache
func (a *Assembler) Cache() *fluxcache.GridFluxVariablesCache { return a.cache }

// views are the per-worker local views
type views struct {
	fv   *geometry.ElementGeometry
	ev   *volvars.ElementVolumeVariables
	prev *volvars.ElementVolumeVariables
	ec   *fluxcache.ElementFluxVariablesCache
	lr   *LocalResidual
	ctx  flux.Context
}

func (a *Assembler) newViews(cache *fluxcache.GridFluxVariablesCache) *views {
	w := &views{
		fv:   a.gg.LocalView(),
		ev:   a.gvv.LocalView(),
		prev: a.gvv.LocalView(),
		ec:   cache.LocalView(),
		lr:   NewLocalResidual(a.model, a.problem),
	}
	w.ctx = flux.Context{Geometry: w.fv, VolVars: w.ev, Cache: w.ec}
	return w
}

func wrapElement(e int, err error) error {
	var ae *utils.AssemblyError
	if errors.As(err, &ae) {
		return err
	}
	return &utils.AssemblyError{Element: e, Scvf: -1, Err: err}
}

// evalElement binds every view to element e and runs all residual stages
func (a *Assembler) evalElement(w *views, e int, cur, prev *mat.Dense, dt float64, owned bool) error {
	w.fv.Bind(e)
	if err := w.ev.Bind(w.fv, cur); err != nil {
		return wrapElement(e, err)
	}
	var evPrev *volvars.ElementVolumeVariables
	if prev != nil {
		if err := w.prev.BindElement(w.fv, prev); err != nil {
			return wrapElement(e, err)
		}
		evPrev = w.prev
	}
	if err := w.ec.Bind(w.fv, w.ev); err != nil {
		return wrapElement(e, err)
	}

	w.lr.Bind(w.fv)
	w.lr.EvalStorage(w.ev, evPrev, dt)
	w.lr.EvalSource(w.ev)
	if err := w.lr.EvalFluxes(&w.ctx, owned); err != nil {
		return err
	}
	return w.lr.EvalBoundary(&w.ctx)
}

// AssembleResidual returns the global residual, one row per dof and one
// column per equation. A nil prev assembles a stationary residual. The
// volume variables and the flux cache are updated first; the cache update
// completes before any element is assembled.
func (a *Assembler) AssembleResidual(ctx context.Context, cur, prev *mat.Dense, dt float64) (*mat.Dense, error) {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "residual.AssembleResidual")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("elements", a.gg.NumElements()),
		attribute.Bool("transient", prev != nil),
		attribute.String("cache_policy", a.cache.Policy().String()),
	)

	start := time.Now()
	res, err := a.assemble(ctx, cur, prev, dt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result := "failed"
		if utils.IsNumericalProblem(err) {
			result = "numerical_problem"
		}
		assembliesTotal.WithLabelValues(result).Inc()
		a.logger.Warn("residual assembly failed", "run_id", runID, "error", err)
		return nil, err
	}

	elapsed := time.Since(start)
	assemblyDuration.Observe(elapsed.Seconds())
	assembliesTotal.WithLabelValues("ok").Inc()
	span.SetStatus(codes.Ok, "")
	a.logger.Debug("residual assembled", "run_id", runID, "dofs", a.gg.NumDofs(), "duration", elapsed)
	return res, nil
}

func (a *Assembler) assemble(ctx context.Context, cur, prev *mat.Dense, dt float64) (*mat.Dense, error) {
	numDofs, numEq := a.gg.NumDofs(), a.model.NumEq()
	if r, c := cur.Dims(); r != numDofs || c != numEq {
		return nil, fmt.Errorf("solution is %dx%d, expected %dx%d", r, c, numDofs, numEq)
	}
	if prev != nil {
		if r, c := prev.Dims(); r != numDofs || c != numEq {
			return nil, fmt.Errorf("previous solution is %dx%d, expected %dx%d", r, c, numDofs, numEq)
		}
		if !(dt > 0) {
			return nil, fmt.Errorf("time step %g must be positive", dt)
		}
	}

	if err := a.gvv.Update(ctx, cur); err != nil {
		return nil, err
	}
	if err := a.cache.Update(ctx, a.gvv, a.forceCache); err != nil {
		return nil, err
	}

	owned := a.cache.Policy() == fluxcache.Global
	parts := a.cache.Layout().Partitions
	buffers := make([]*mat.Dense, len(parts))
	constraints := make([][]Constraint, len(parts))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(a.workers)
	for p := range parts {
		elems := parts[p].Elements
		eg.Go(func() error {
			w := a.newViews(a.cache)
			buf := mat.NewDense(numDofs, numEq, nil)
			for _, e := range elems {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := a.evalElement(w, e, cur, prev, dt, owned); err != nil {
					return err
				}
				w.lr.AddTo(buf)
				constraints[p] = append(constraints[p], w.lr.Constraints()...)
			}
			elementsAssembled.Add(float64(len(elems)))
			buffers[p] = buf
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	res := mat.NewDense(numDofs, numEq, nil)
	data := res.RawMatrix().Data
	for _, buf := range buffers {
		floats.Add(data, buf.RawMatrix().Data)
	}
	for _, cs := range constraints {
		for _, c := range cs {
			res.Set(c.Dof, c.Eq, c.Value)
		}
	}
	return res, nil
}

// ElementResidual evaluates the complete residual of the dofs of element e
// with every face of the element evaluated from its own side. The flux
// cache entries are filled locally, so any solution may be passed.
func (a *Assembler) ElementResidual(e int, cur, prev *mat.Dense, dt float64) ([]int, *mat.Dense, error) {
	w := a.newViews(a.local)
	if err := a.evalElement(w, e, cur, prev, dt, false); err != nil {
		return nil, nil, err
	}
	return slices.Clone(w.lr.Dofs()), w.lr.Residual(), nil
}

// Derivative is the forward difference derivative of an element residual
// with respect to the primary variables of its stencil. Block row
// i*NumEq+eq belongs to Rows[i], column j*NumEq+pv to Cols[j].
type Derivative struct {
	Rows  []int
	Cols  []int
	NumEq int
	Block *mat.Dense
}

// LocalDerivative perturbs every primary variable of the stencil of element
// e by eps*(|x|+1) and differences the element residual. eps <= 0 selects
// DefaultEpsilon.
func (a *Assembler) LocalDerivative(e int, cur, prev *mat.Dense, dt, eps float64) (*Derivative, error) {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	numEq := a.model.NumEq()
	w := a.newViews(a.local)
	if err := a.evalElement(w, e, cur, prev, dt, false); err != nil {
		return nil, err
	}
	base := w.lr.Residual()
	rows := slices.Clone(w.lr.Dofs())

	var cols []int
	for _, s := range w.fv.StencilScvs() {
		cols = append(cols, a.gg.Scv(s).DofIndex)
	}
	slices.Sort(cols)
	cols = slices.Compact(cols)

	pert := mat.DenseCopyOf(cur)
	block := mat.NewDense(len(rows)*numEq, len(cols)*numEq, nil)
	for j, dof := range cols {
		for pv := 0; pv < numEq; pv++ {
			x := cur.At(dof, pv)
			h := eps * (math.Abs(x) + 1)
			pert.Set(dof, pv, x+h)
			if err := a.evalElement(w, e, pert, prev, dt, false); err != nil {
				return nil, err
			}
			pert.Set(dof, pv, x)

			r := w.lr.Residual()
			utils.Assert(slices.Equal(rows, w.lr.Dofs()), "element %d residual rows changed under perturbation", e)
			for i := range rows {
				for eq := 0; eq < numEq; eq++ {
					block.Set(i*numEq+eq, j*numEq+pv, (r.At(i, eq)-base.At(i, eq))/h)
				}
			}
		}
	}
	return &Derivative{Rows: rows, Cols: cols, NumEq: numEq, Block: block}, nil
}
