package volvars

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/mesh"
	"github.com/notargets/FVKernel/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var errNegative = errors.New("negative pressure")

type testVars struct {
	p     []float64
	calls *atomic.Int64
}

func (v *testVars) Update(priVars []float64, _ *geometry.SubControlVolume) error {
	v.calls.Add(1)
	if priVars[0] < 0 {
		return errNegative
	}
	v.p = append(v.p[:0], priVars...)
	return nil
}

func (v *testVars) PriVar(eq int) float64     { return v.p[eq] }
func (v *testVars) ExtrusionFactor() float64 { return 1 }

func setup(t *testing.T, caching bool) (*geometry.GridGeometry, *GridVolumeVariables, *atomic.Int64) {
	t.Helper()
	m, err := mesh.NewLineMesh(0, 1, 4)
	require.NoError(t, err)
	gg, err := geometry.NewWithIndices(m, geometry.CCTpfa)
	require.NoError(t, err)

	calls := &atomic.Int64{}
	gvv := NewGridVolumeVariables(gg, func() VolumeVariables { return &testVars{calls: calls} },
		WithCaching(caching), WithWorkers(2))
	return gg, gvv, calls
}

func solution(vals ...float64) *mat.Dense {
	return mat.NewDense(len(vals), 1, vals)
}

func TestGridVolumeVariablesCaching(t *testing.T) {
	gg, gvv, calls := setup(t, true)
	sol := solution(1, 2, 3, 4)
	require.NoError(t, gvv.Update(context.Background(), sol))
	assert.Equal(t, int64(4), calls.Load())
	assert.InDelta(t, 3.0, gvv.At(2).PriVar(0), 0)

	fv := gg.LocalView()
	fv.Bind(1)
	ev := gvv.LocalView()
	require.NoError(t, ev.Bind(fv, sol))
	assert.Equal(t, int64(4), calls.Load(), "the current solution is served from the cache")
	assert.InDelta(t, 1.0, ev.At(0).PriVar(0), 0)
	assert.InDelta(t, 3.0, ev.At(2).PriVar(0), 0)

	// Any other solution is evaluated locally
	prev := solution(5, 6, 7, 8)
	require.NoError(t, ev.Bind(fv, prev))
	assert.Equal(t, int64(7), calls.Load())
	assert.InDelta(t, 6.0, ev.At(1).PriVar(0), 0)
	assert.InDelta(t, 2.0, gvv.At(1).PriVar(0), 0)
}

func TestCachedVolumeVariablesInPlaceChange(t *testing.T) {
	gg, gvv, calls := setup(t, true)
	sol := solution(1, 2, 3, 4)
	require.NoError(t, gvv.Update(context.Background(), sol))
	assert.True(t, gvv.Holds(1, sol))
	assert.True(t, gvv.Holds(1, solution(1, 2, 3, 4)), "equal values in another matrix")

	sol.Set(1, 0, 10)
	assert.False(t, gvv.Holds(1, sol))
	assert.True(t, gvv.Holds(0, sol))

	fv := gg.LocalView()
	fv.Bind(1)
	ev := gvv.LocalView()
	require.NoError(t, ev.Bind(fv, sol))
	assert.Equal(t, int64(5), calls.Load(), "only the changed dof is evaluated again")
	assert.InDelta(t, 10.0, ev.At(1).PriVar(0), 0)
	assert.InDelta(t, 1.0, ev.At(0).PriVar(0), 0)
	assert.InDelta(t, 2.0, gvv.At(1).PriVar(0), 0)

	require.NoError(t, gvv.Update(context.Background(), sol))
	assert.True(t, gvv.Holds(1, sol))
}

func TestElementVolumeVariablesNoCaching(t *testing.T) {
	gg, gvv, calls := setup(t, false)
	sol := solution(1, 2, 3, 4)
	require.NoError(t, gvv.Update(context.Background(), sol))
	assert.Zero(t, calls.Load())
	assert.Panics(t, func() { gvv.At(0) })

	fv := gg.LocalView()
	fv.BindElement(3)
	ev := gvv.LocalView()
	require.NoError(t, ev.BindElement(fv, sol))
	assert.Equal(t, int64(1), calls.Load())
	assert.InDelta(t, 4.0, ev.At(3).PriVar(0), 0)
	assert.Same(t, fv, ev.Geometry())
	assert.Same(t, sol, ev.Solution())

	t.Run("Unreachable", func(t *testing.T) {
		assert.Panics(t, func() { ev.At(2) })
	})

	t.Run("StaleGeneration", func(t *testing.T) {
		fv.BindElement(2)
		assert.Panics(t, func() { ev.At(3) })
	})
}

func TestVolumeVariablesErrors(t *testing.T) {
	gg, gvv, _ := setup(t, true)

	err := gvv.Update(context.Background(), solution(1, 2))
	assert.Error(t, err)

	err = gvv.Update(context.Background(), solution(1, -2, 3, 4))
	require.Error(t, err)
	var ae *utils.AssemblyError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, ae.Element)
	assert.ErrorIs(t, err, errNegative)

	fv := gg.LocalView()
	fv.Bind(0)
	ev := gvv.LocalView()
	assert.ErrorIs(t, ev.Bind(fv, solution(1, -2, 3, 4)), errNegative)
	assert.Panics(t, func() { ev.At(0) })
}
