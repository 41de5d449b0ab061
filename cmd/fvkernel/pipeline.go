package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/fluxcache"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/mesh"
	"github.com/notargets/FVKernel/onep"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/residual"
	"github.com/notargets/FVKernel/upwind"
	"github.com/notargets/FVKernel/volvars"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// pipeline holds everything one assembly run needs, built once from a config
type pipeline struct {
	cfg     *config.Config
	mesh    *mesh.Mesh
	layout  *partitions.PartitionLayout
	gg      *geometry.GridGeometry
	problem *onep.Problem
	asm     *residual.Assembler
}

func newPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	m, err := cfg.BuildMesh()
	if err != nil {
		return nil, fmt.Errorf("mesh: %w", err)
	}
	layout, err := cfg.Layout(m)
	if err != nil {
		return nil, fmt.Errorf("partitions: %w", err)
	}
	method, err := cfg.Method()
	if err != nil {
		return nil, err
	}
	gg, err := geometry.NewWithIndices(m, method)
	if err != nil {
		return nil, fmt.Errorf("grid geometry: %w", err)
	}

	params := cfg.Params()
	law, err := onep.NewLaw(gg, params)
	if err != nil {
		return nil, err
	}
	scheme, err := upwind.NewScheme(gg, cfg.Upwind.Weight, cfg.Upwind.BranchingWeight)
	if err != nil {
		return nil, err
	}
	model, err := onep.NewModel(params, law, scheme)
	if err != nil {
		return nil, err
	}
	segments, err := cfg.Segments()
	if err != nil {
		return nil, err
	}
	problem, err := onep.NewProblem(gg, cfg.NumEq(), cfg.Initial, segments, cfg.PointSources())
	if err != nil {
		return nil, fmt.Errorf("problem: %w", err)
	}

	workers := cfg.Discretization.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	gvv := volvars.NewGridVolumeVariables(gg, params.NewVolumeVariables,
		volvars.WithCaching(cfg.Discretization.CacheVolumeVariables),
		volvars.WithWorkers(workers),
		volvars.WithLogger(logger))
	cache, err := fluxcache.New(gg, law, cfg.Policy(),
		fluxcache.WithLayout(layout),
		fluxcache.WithWorkers(workers),
		fluxcache.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("flux cache: %w", err)
	}
	asm, err := residual.NewAssembler(model, problem, gvv, cache,
		residual.WithWorkers(workers),
		residual.WithLogger(logger),
		residual.WithForcedCacheUpdate(cfg.Discretization.ForceCacheUpdate))
	if err != nil {
		return nil, err
	}

	logger.Info("pipeline ready",
		"method", method,
		"elements", gg.NumElements(),
		"dofs", gg.NumDofs(),
		"equations", cfg.NumEq(),
		"partitions", layout.NumPartitions,
		"interface_slots", cache.InterfaceSlots(),
		"cache", cfg.Policy())
	return &pipeline{cfg: cfg, mesh: m, layout: layout, gg: gg, problem: problem, asm: asm}, nil
}

// states returns the current solution and, for transient runs, the
// previous one
func (p *pipeline) states() (cur, prev *mat.Dense) {
	cur = p.problem.InitialSolution(p.gg)
	if p.cfg.Time.Dt <= 0 {
		return cur, nil
	}
	prev = mat.DenseCopyOf(cur)
	if p.cfg.Time.Previous != nil {
		for i := 0; i < p.gg.NumDofs(); i++ {
			prev.SetRow(i, p.cfg.Time.Previous)
		}
	}
	return cur, prev
}

// summary is the per-equation outcome of an assembly
type summary struct {
	Sum, Norm2, NormInf []float64
	Evaluations         int64
}

func (p *pipeline) assemble(ctx context.Context) (*mat.Dense, *summary, error) {
	cur, prev := p.states()
	res, err := p.asm.AssembleResidual(ctx, cur, prev, p.cfg.Time.Dt)
	if err != nil {
		return nil, nil, err
	}
	_, numEq := res.Dims()
	s := &summary{Evaluations: p.asm.Cache().Evaluations()}
	for eq := 0; eq < numEq; eq++ {
		col := mat.Col(nil, eq, res)
		s.Sum = append(s.Sum, floats.Sum(col))
		s.Norm2 = append(s.Norm2, floats.Norm(col, 2))
		s.NormInf = append(s.NormInf, floats.Norm(col, math.Inf(1)))
	}
	return res, s, nil
}
