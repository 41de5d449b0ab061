package residual

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/notargets/FVKernel/flux"
	"github.com/notargets/FVKernel/fluxcache"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/mesh"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/utils"
	"github.com/notargets/FVKernel/volvars"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// invariantPanic runs fn and reports whether it panicked with ErrInvariant
func invariantPanic(fn func()) (hit bool) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			hit = ok && errors.Is(err, utils.ErrInvariant)
		}
	}()
	fn()
	return false
}

type testVars struct {
	x    []float64
	extr float64
}

func (v *testVars) Update(pv []float64, _ *geometry.SubControlVolume) error {
	v.x = append(v.x[:0], pv...)
	return nil
}
func (v *testVars) PriVar(eq int) float64     { return v.x[eq] }
func (v *testVars) ExtrusionFactor() float64 { return v.extr }

// diffusion is a linear two-point model: every equation diffuses its own
// primary variable with the geometric transmissibility
type diffusion struct {
	numEq    int
	failScvf int
	fills    atomic.Int64
}

func newDiffusion(numEq int) *diffusion { return &diffusion{numEq: numEq, failScvf: -1} }

func (d *diffusion) Fill(entry *fluxcache.Entry, fv *geometry.ElementGeometry, _ *volvars.ElementVolumeVariables,
	scvf *geometry.SubControlVolumeFace) error {
	d.fills.Add(1)
	gg := fv.GridGeometry()
	in := gg.Scv(scvf.InsideScvIdx()).Center
	other := scvf.Center
	if !scvf.Boundary {
		other = gg.Scv(scvf.OutsideScvIdx(0)).Center
	}
	entry.GeoTij = scvf.Area / r3.Norm(r3.Sub(other, in))
	entry.Tij = entry.GeoTij
	return nil
}

func (d *diffusion) SolutionIndependent() bool { return true }

func (d *diffusion) NumEq() int { return d.numEq }

func (d *diffusion) Storage(vv volvars.VolumeVariables) []float64 {
	s := make([]float64, d.numEq)
	for eq := range s {
		s[eq] = vv.PriVar(eq)
	}
	return s
}

func (d *diffusion) Flux(ctx *flux.Context, scvf *geometry.SubControlVolumeFace) ([]float64, error) {
	if scvf.Index == d.failScvf {
		return nil, fmt.Errorf("%w: singular stencil", utils.ErrNumericalProblem)
	}
	f := make([]float64, d.numEq)
	if scvf.Boundary {
		return f, nil
	}
	t := ctx.Entry(scvf).GeoTij
	in, out := ctx.Inside(scvf), ctx.Outside(scvf, 0)
	for eq := range f {
		f[eq] = t * (in.PriVar(eq) - out.PriVar(eq))
	}
	return f, nil
}

// testProblem assigns boundary types by boundary marker
type testProblem struct {
	numEq     int
	types     map[int]BoundaryTypes
	dirichlet []float64
	neumann   []float64
	source    []float64
}

func (p *testProblem) BoundaryTypes(_ *geometry.ElementGeometry, scvf *geometry.SubControlVolumeFace) BoundaryTypes {
	if bt, ok := p.types[scvf.BoundaryMarker]; ok {
		return bt
	}
	return NewBoundaryTypes(p.numEq)
}

func (p *testProblem) Dirichlet(*geometry.ElementGeometry, *geometry.SubControlVolumeFace) []float64 {
	return p.dirichlet
}

func (p *testProblem) Neumann(*flux.Context, *geometry.SubControlVolumeFace) []float64 {
	return p.orZero(p.neumann)
}

func (p *testProblem) Source(*geometry.ElementGeometry, volvars.VolumeVariables, *geometry.SubControlVolume) []float64 {
	return p.orZero(p.source)
}

func (p *testProblem) orZero(v []float64) []float64 {
	if v == nil {
		return make([]float64, p.numEq)
	}
	return v
}

type setup struct {
	gg      *geometry.GridGeometry
	gvv     *volvars.GridVolumeVariables
	cache   *fluxcache.GridFluxVariablesCache
	asm     *Assembler
	model   *diffusion
	problem *testProblem
}

func newSetup(t *testing.T, m *mesh.Mesh, method geometry.Method, policy fluxcache.Policy, extr float64,
	problem *testProblem, opts ...fluxcache.Option) *setup {
	t.Helper()
	gg, err := geometry.NewWithIndices(m, method)
	require.NoError(t, err)
	gvv := volvars.NewGridVolumeVariables(gg, func() volvars.VolumeVariables { return &testVars{extr: extr} },
		volvars.WithCaching(true))
	model := newDiffusion(problem.numEq)
	cache, err := fluxcache.New(gg, model, policy, opts...)
	require.NoError(t, err)
	asm, err := NewAssembler(model, problem, gvv, cache, WithWorkers(2))
	require.NoError(t, err)
	return &setup{gg: gg, gvv: gvv, cache: cache, asm: asm, model: model, problem: problem}
}

// solution fills column eq of dof i with fn(i, eq)
func solution(rows, cols int, fn func(i, eq int) float64) *mat.Dense {
	s := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for eq := 0; eq < cols; eq++ {
			s.Set(i, eq, fn(i, eq))
		}
	}
	return s
}

func colSum(m *mat.Dense, c int) float64 {
	return floats.Sum(mat.Col(nil, c, m))
}

func TestBCKind(t *testing.T) {
	for _, k := range []BCKind{Neumann, Dirichlet, Outflow} {
		got, err := ParseBCKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseBCKind("robin")
	assert.Error(t, err)

	bt := NewBoundaryTypes(3).SetAll(Dirichlet).Set(1, Outflow)
	assert.True(t, bt.Is(0, Dirichlet))
	assert.True(t, bt.Has(Outflow))
	assert.False(t, bt.Has(Neumann))
}

func TestConservation(t *testing.T) {
	m, err := mesh.NewLineMesh(0, 1, 6)
	require.NoError(t, err)
	sol := solution(6, 2, func(i, eq int) float64 { return float64(i*i) + float64(eq) })

	pb := &partitions.PartitionBuilder{
		Mesh:       partitions.NewMeshConnectivity(m),
		Strategy:   partitions.Predefined,
		Predefined: []int{0, 1, 0, 1, 1, 0},
	}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)

	tests := []struct {
		name   string
		policy fluxcache.Policy
		opts   []fluxcache.Option
	}{
		{"Global", fluxcache.Global, nil},
		{"GlobalPartitioned", fluxcache.Global, []fluxcache.Option{fluxcache.WithLayout(layout), fluxcache.WithWorkers(2)}},
		{"Local", fluxcache.Local, nil},
		{"LocalPartitioned", fluxcache.Local, []fluxcache.Option{fluxcache.WithLayout(layout)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSetup(t, m, geometry.CCTpfa, tt.policy, 1, &testProblem{numEq: 2}, tt.opts...)
			res, err := s.asm.AssembleResidual(context.Background(), sol, nil, 0)
			require.NoError(t, err)

			// T = 6 between neighbors: R_i = sum_j T (p_i - p_j)
			for i := 0; i < 6; i++ {
				want := 0.0
				for _, j := range []int{i - 1, i + 1} {
					if j >= 0 && j < 6 {
						want += 6 * (sol.At(i, 0) - sol.At(j, 0))
					}
				}
				assert.InDelta(t, want, res.At(i, 0), 1e-10, "dof %d", i)
			}
			assert.InDelta(t, 0, colSum(res, 0), 1e-10)
			assert.InDelta(t, 0, colSum(res, 1), 1e-10)
		})
	}

	t.Run("Box", func(t *testing.T) {
		rect, err := mesh.NewRectMesh(0, 0, 1, 1, 3, 2)
		require.NoError(t, err)
		s := newSetup(t, rect, geometry.Box, fluxcache.Global, 1, &testProblem{numEq: 1})
		sol := solution(s.gg.NumDofs(), 1, func(i, _ int) float64 { return float64(i%5) * 1.5 })
		res, err := s.asm.AssembleResidual(context.Background(), sol, nil, 0)
		require.NoError(t, err)
		assert.InDelta(t, 0, colSum(res, 0), 1e-10)
		assert.Greater(t, floats.Norm(res.RawMatrix().Data, 2), 0.0)
	})

	t.Run("Staggered", func(t *testing.T) {
		rect, err := mesh.NewRectMesh(0, 0, 1, 1, 3, 2)
		require.NoError(t, err)
		s := newSetup(t, rect, geometry.Staggered, fluxcache.Global, 1, &testProblem{numEq: 1})
		require.Equal(t, 17, s.gg.NumDofs())
		sol := solution(s.gg.NumDofs(), 1, func(i, _ int) float64 { return float64(i%4) * 0.5 })
		res, err := s.asm.AssembleResidual(context.Background(), sol, nil, 0)
		require.NoError(t, err)
		assert.InDelta(t, 0, colSum(res, 0), 1e-10)
		assert.Greater(t, floats.Norm(res.RawMatrix().Data, 2), 0.0)
	})
}

func TestOwnedFaceAntisymmetry(t *testing.T) {
	m, err := mesh.NewLineMesh(0, 1, 3)
	require.NoError(t, err)
	s := newSetup(t, m, geometry.CCTpfa, fluxcache.Global, 1, &testProblem{numEq: 1})
	sol := solution(3, 1, func(i, _ int) float64 { return []float64{1, 4, 2}[i] })
	require.NoError(t, s.gvv.Update(context.Background(), sol))
	require.NoError(t, s.cache.Update(context.Background(), s.gvv, false))

	fv := s.gg.LocalView()
	ev := s.gvv.LocalView()
	ec := s.cache.LocalView()
	ctx := &flux.Context{Geometry: fv, VolVars: ev, Cache: ec}
	lr := NewLocalResidual(s.model, s.problem)

	// Element 1 owns its right face only
	fv.Bind(1)
	require.NoError(t, ev.Bind(fv, sol))
	require.NoError(t, ec.Bind(fv, ev))
	lr.Bind(fv)
	require.NoError(t, lr.EvalFluxes(ctx, true))
	assert.Equal(t, []int{1, 2}, lr.Dofs())
	r := lr.Residual()
	assert.InDelta(t, 3*(4-2.0), r.At(0, 0), 1e-12)
	assert.InDelta(t, -r.At(0, 0), r.At(1, 0), 1e-12)

	// Without ownership both faces are evaluated from the inside
	fv.Bind(1)
	require.NoError(t, ev.Bind(fv, sol))
	require.NoError(t, ec.Bind(fv, ev))
	lr.Bind(fv)
	require.NoError(t, lr.EvalFluxes(ctx, false))
	assert.Equal(t, []int{1}, lr.Dofs())
	assert.InDelta(t, 3*(4-1.0)+3*(4-2.0), lr.Residual().At(0, 0), 1e-12)
}

// twoCellProblem has Dirichlet on both equations at the left face and
// Neumann on equation 0 plus Outflow on equation 1 at the right face
func twoCellProblem() *testProblem {
	return &testProblem{
		numEq: 2,
		types: map[int]BoundaryTypes{
			1: NewBoundaryTypes(2).SetAll(Dirichlet),
			2: NewBoundaryTypes(2).Set(0, Neumann).Set(1, Outflow),
		},
		dirichlet: []float64{2e5, 0.5},
		neumann:   []float64{3e-4, 99},
	}
}

func TestBoundaryDispatch(t *testing.T) {
	m, err := mesh.NewLineMesh(0, 1, 2)
	require.NoError(t, err)
	const extr = 2.0
	s := newSetup(t, m, geometry.CCTpfa, fluxcache.Global, extr, twoCellProblem())
	sol := mat.NewDense(2, 2, []float64{
		1e5, 0.1,
		1.5e5, 0.2,
	})

	t.Run("Assembled", func(t *testing.T) {
		res, err := s.asm.AssembleResidual(context.Background(), sol, nil, 0)
		require.NoError(t, err)

		// Left dof is overwritten by prescribed minus current
		assert.Equal(t, 2e5-1e5, res.At(0, 0))
		assert.InDelta(t, 0.5-0.1, res.At(0, 1), 1e-15)

		// Interior flux with T = 2 plus the Neumann flux on equation 0 only
		interior := 2 * (1.5e5 - 1e5) * extr
		assert.InDelta(t, 3e-4*1*extr, res.At(1, 0)-interior, 1e-9)
		// Outflow mirrors the interior face: the two cancel on a uniform grid
		assert.InDelta(t, 0, res.At(1, 1), 1e-12)
	})

	t.Run("BoundaryOnly", func(t *testing.T) {
		require.NoError(t, s.gvv.Update(context.Background(), sol))
		fv := s.gg.LocalView()
		ev := s.gvv.LocalView()
		ec := s.cache.LocalView()
		ctx := &flux.Context{Geometry: fv, VolVars: ev, Cache: ec}
		lr := NewLocalResidual(s.model, s.problem)

		fv.Bind(1)
		require.NoError(t, ev.Bind(fv, sol))
		require.NoError(t, ec.Bind(fv, ev))
		lr.Bind(fv)
		require.NoError(t, lr.EvalBoundary(ctx))
		assert.Empty(t, lr.Constraints())
		r := lr.Residual()
		assert.InDelta(t, 3e-4*extr, r.At(0, 0), 1e-15)
		assert.InDelta(t, -2*(0.2-0.1)*extr, r.At(0, 1), 1e-12)

		fv.Bind(0)
		require.NoError(t, ev.Bind(fv, sol))
		require.NoError(t, ec.Bind(fv, ev))
		lr.Bind(fv)
		require.NoError(t, lr.EvalBoundary(ctx))
		require.Len(t, lr.Constraints(), 2)
		assert.Equal(t, Constraint{Dof: 0, Eq: 0, Value: 1e5}, lr.Constraints()[0])
		assert.Equal(t, 1e5, lr.Residual().At(0, 0))
	})
}

func TestOutflowMatchesTwoPointFlux(t *testing.T) {
	m, err := mesh.NewLineMesh(0, 1, 3)
	require.NoError(t, err)
	problem := &testProblem{
		numEq: 1,
		types: map[int]BoundaryTypes{2: NewBoundaryTypes(1).SetAll(Outflow)},
	}
	s := newSetup(t, m, geometry.CCTpfa, fluxcache.Local, 1, problem)
	p := []float64{1, 3, 7}
	sol := mat.NewDense(3, 1, p)

	fv := s.gg.LocalView()
	ev := s.gvv.LocalView()
	ec := s.cache.LocalView()
	ctx := &flux.Context{Geometry: fv, VolVars: ev, Cache: ec}
	lr := NewLocalResidual(s.model, s.problem)
	fv.Bind(2)
	require.NoError(t, ev.Bind(fv, sol))
	require.NoError(t, ec.Bind(fv, ev))
	lr.Bind(fv)
	require.NoError(t, lr.EvalBoundary(ctx))

	// Ghost value mirrored through the boundary face, T = area / h
	h := 1.0 / 3
	ghost := 2*p[2] - p[1]
	hand := (1 / h) * (p[2] - ghost)
	assert.InDelta(t, hand, lr.Residual().At(0, 0), 1e-12)
}

func TestOutflowNeedsCube(t *testing.T) {
	m, err := mesh.NewTriMesh(0, 0, 1, 1, 2, 2)
	require.NoError(t, err)
	problem := &testProblem{
		numEq: 1,
		types: map[int]BoundaryTypes{
			1: NewBoundaryTypes(1).SetAll(Outflow),
			2: NewBoundaryTypes(1).SetAll(Outflow),
			3: NewBoundaryTypes(1).SetAll(Outflow),
			4: NewBoundaryTypes(1).SetAll(Outflow),
		},
	}
	s := newSetup(t, m, geometry.CCTpfa, fluxcache.Global, 1, problem)
	sol := mat.NewDense(s.gg.NumDofs(), 1, nil)

	_, err = s.asm.AssembleResidual(context.Background(), sol, nil, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrUnsupported)
	var ae *utils.AssemblyError
	require.ErrorAs(t, err, &ae)
	assert.True(t, s.gg.Scvf(ae.Scvf).Boundary)
	assert.Equal(t, s.gg.Scvf(ae.Scvf).ElementIndex, ae.Element)
}

func TestStorageAndSource(t *testing.T) {
	m, err := mesh.NewLineMesh(0, 2, 1)
	require.NoError(t, err)
	const extr = 2.0

	t.Run("Storage", func(t *testing.T) {
		s := newSetup(t, m, geometry.CCTpfa, fluxcache.Global, extr, &testProblem{numEq: 1})
		cur := mat.NewDense(1, 1, []float64{3})
		prev := mat.NewDense(1, 1, []float64{1})
		res, err := s.asm.AssembleResidual(context.Background(), cur, prev, 0.5)
		require.NoError(t, err)
		assert.InDelta(t, (3-1)*2*extr/0.5, res.At(0, 0), 1e-12)

		_, err = s.asm.AssembleResidual(context.Background(), cur, prev, 0)
		assert.Error(t, err)
	})

	t.Run("Source", func(t *testing.T) {
		s := newSetup(t, m, geometry.CCTpfa, fluxcache.Global, extr, &testProblem{numEq: 1, source: []float64{5}})
		res, err := s.asm.AssembleResidual(context.Background(), mat.NewDense(1, 1, []float64{3}), nil, 0)
		require.NoError(t, err)
		assert.InDelta(t, -5*2*extr, res.At(0, 0), 1e-12)
	})
}

func TestAssemblerCacheReuse(t *testing.T) {
	m, err := mesh.NewLineMesh(0, 1, 8)
	require.NoError(t, err)
	s := newSetup(t, m, geometry.CCTpfa, fluxcache.Global, 1, &testProblem{numEq: 1})
	sol := solution(8, 1, func(i, _ int) float64 { return float64(i) })

	first, err := s.asm.AssembleResidual(context.Background(), sol, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(s.gg.NumFluxSlots()), s.cache.Evaluations())
	assert.Equal(t, int64(9), s.model.fills.Load(), "7 interior and 2 boundary faces")

	second, err := s.asm.AssembleResidual(context.Background(), sol, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(9), s.cache.Evaluations(), "solution independent entries are reused")
	assert.True(t, mat.Equal(first, second))
}

func TestElementResidualAndDerivative(t *testing.T) {
	m, err := mesh.NewLineMesh(0, 1, 3)
	require.NoError(t, err)
	s := newSetup(t, m, geometry.CCTpfa, fluxcache.Global, 1, &testProblem{numEq: 1})
	sol := mat.NewDense(3, 1, []float64{1, 4, 2})

	global, err := s.asm.AssembleResidual(context.Background(), sol, nil, 0)
	require.NoError(t, err)
	dofs, local, err := s.asm.ElementResidual(1, sol, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, dofs)
	assert.InDelta(t, global.At(1, 0), local.At(0, 0), 1e-12)

	d, err := s.asm.LocalDerivative(1, sol, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, d.Rows)
	assert.Equal(t, []int{0, 1, 2}, d.Cols)
	want := []float64{-3, 6, -3}
	for j, w := range want {
		assert.InDelta(t, w, d.Block.At(0, j), 1e-5, "column %d", j)
	}
	// The solution passed in is left untouched
	assert.Equal(t, []float64{1, 4, 2}, sol.RawMatrix().Data)
}

func TestElementResidualAfterInPlaceUpdate(t *testing.T) {
	m, err := mesh.NewLineMesh(0, 1, 3)
	require.NoError(t, err)
	s := newSetup(t, m, geometry.CCTpfa, fluxcache.Global, 1, &testProblem{numEq: 1})
	sol := mat.NewDense(3, 1, []float64{1, 2, 3})
	_, err = s.asm.AssembleResidual(context.Background(), sol, nil, 0)
	require.NoError(t, err)

	// A Newton update written into the assembled solution
	sol.Set(1, 0, 10)
	_, local, err := s.asm.ElementResidual(1, sol, nil, 0)
	require.NoError(t, err)
	assert.InDelta(t, 3*(10-1.0)+3*(10-3.0), local.At(0, 0), 1e-12)

	_, fresh, err := s.asm.ElementResidual(1, mat.DenseCopyOf(sol), nil, 0)
	require.NoError(t, err)
	assert.InDelta(t, fresh.At(0, 0), local.At(0, 0), 1e-12)

	d, err := s.asm.LocalDerivative(1, sol, nil, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 6, d.Block.At(0, 1), 1e-5)
}

func TestDirichletDerivative(t *testing.T) {
	m, err := mesh.NewLineMesh(0, 1, 2)
	require.NoError(t, err)
	s := newSetup(t, m, geometry.CCTpfa, fluxcache.Global, 1, twoCellProblem())
	sol := mat.NewDense(2, 2, []float64{1e5, 0.1, 1.5e5, 0.2})

	d, err := s.asm.LocalDerivative(0, sol, nil, 0, 1e-7)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, d.Cols)
	// Prescribed minus current: -1 on the own primary variable, 0 elsewhere
	assert.InDelta(t, -1, d.Block.At(0, 0), 1e-6)
	assert.InDelta(t, 0, d.Block.At(0, 2), 1e-6)
	assert.InDelta(t, -1, d.Block.At(1, 1), 1e-6)
}

func TestAssemblyErrors(t *testing.T) {
	m, err := mesh.NewLineMesh(0, 1, 4)
	require.NoError(t, err)

	t.Run("NumericalProblem", func(t *testing.T) {
		s := newSetup(t, m, geometry.CCTpfa, fluxcache.Global, 1, &testProblem{numEq: 1})
		s.model.failScvf = 3
		_, err := s.asm.AssembleResidual(context.Background(), mat.NewDense(4, 1, nil), nil, 0)
		require.Error(t, err)
		assert.True(t, utils.IsNumericalProblem(err))
		var ae *utils.AssemblyError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, 1, ae.Element)
		assert.Equal(t, 3, ae.Scvf)
	})

	t.Run("ShapeMismatch", func(t *testing.T) {
		s := newSetup(t, m, geometry.CCTpfa, fluxcache.Global, 1, &testProblem{numEq: 1})
		_, err := s.asm.AssembleResidual(context.Background(), mat.NewDense(3, 1, nil), nil, 0)
		assert.Error(t, err)
	})

	t.Run("DifferentGrids", func(t *testing.T) {
		a := newSetup(t, m, geometry.CCTpfa, fluxcache.Global, 1, &testProblem{numEq: 1})
		b := newSetup(t, m, geometry.CCTpfa, fluxcache.Global, 1, &testProblem{numEq: 1})
		_, err := NewAssembler(a.model, a.problem, a.gvv, b.cache)
		assert.Error(t, err)
	})
}

func TestLocalResidualStates(t *testing.T) {
	m, err := mesh.NewLineMesh(0, 1, 2)
	require.NoError(t, err)
	s := newSetup(t, m, geometry.CCTpfa, fluxcache.Local, 1, &testProblem{numEq: 1})
	sol := mat.NewDense(2, 1, []float64{1, 2})
	require.NoError(t, s.gvv.Update(context.Background(), sol))

	lr := NewLocalResidual(s.model, s.problem)
	assert.Equal(t, Unbound, lr.State())
	assert.True(t, invariantPanic(func() { lr.Residual() }))

	fv := s.gg.LocalView()
	ev := s.gvv.LocalView()
	ec := s.cache.LocalView()
	ctx := &flux.Context{Geometry: fv, VolVars: ev, Cache: ec}
	fv.Bind(0)
	require.NoError(t, ev.Bind(fv, sol))
	require.NoError(t, ec.Bind(fv, ev))

	lr.Bind(fv)
	assert.Equal(t, BoundElement, lr.State())
	require.NoError(t, lr.EvalFluxes(ctx, false))
	assert.Equal(t, FluxesEvaluated, lr.State())
	assert.True(t, invariantPanic(func() { _ = lr.EvalFluxes(ctx, false) }))
	require.NoError(t, lr.EvalBoundary(ctx))
	assert.Equal(t, BoundaryEvaluated, lr.State())

	t.Run("InteriorElement", func(t *testing.T) {
		line, err := mesh.NewLineMesh(0, 1, 3)
		require.NoError(t, err)
		dirichlet := NewBoundaryTypes(1).SetAll(Dirichlet)
		s := newSetup(t, line, geometry.CCTpfa, fluxcache.Local, 1, &testProblem{
			numEq:     1,
			types:     map[int]BoundaryTypes{1: dirichlet, 2: dirichlet},
			dirichlet: []float64{5},
		})
		sol := mat.NewDense(3, 1, []float64{1, 2, 3})
		require.NoError(t, s.gvv.Update(context.Background(), sol))

		fv := s.gg.LocalView()
		ev := s.gvv.LocalView()
		ec := s.cache.LocalView()
		ctx := &flux.Context{Geometry: fv, VolVars: ev, Cache: ec}
		fv.Bind(1)
		require.NoError(t, ev.Bind(fv, sol))
		require.NoError(t, ec.Bind(fv, ev))
		require.False(t, fv.HasBoundaryScvf())

		lr := NewLocalResidual(s.model, s.problem)
		lr.Bind(fv)
		require.NoError(t, lr.EvalBoundary(ctx))
		assert.Equal(t, BoundaryEvaluated, lr.State())
		assert.Empty(t, lr.Constraints())
		assert.Equal(t, 0.0, lr.Residual().At(0, 0))
		assert.True(t, invariantPanic(func() { _ = lr.EvalBoundary(ctx) }))
	})

	// Rebinding the geometry invalidates the residual until it is rebound
	fv.Bind(1)
	assert.True(t, invariantPanic(func() { lr.Residual() }))
	lr.Bind(fv)
	assert.Equal(t, BoundElement, lr.State())
}
