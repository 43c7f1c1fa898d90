package model

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1asingh/InferPy/runtime"
)

func TestAutoNaming(t *testing.T) {
	assert := assert.New(t)
	ResetNameCounter()

	b := NewBuilder()
	x, err := b.Normal(0.0, 1.0)
	require.NoError(t, err)
	y, err := b.Normal(0.0, 1.0)
	require.NoError(t, err)

	assert.Equal("randvar_0", x.Name())
	assert.Equal("randvar_1", y.Name())

	ResetNameCounter()
	b2 := NewBuilder()
	z, err := b2.Normal(0.0, 1.0)
	require.NoError(t, err)
	assert.Equal("randvar_0", z.Name())
}

func TestDuplicateNames(t *testing.T) {
	assert := assert.New(t)

	b := NewBuilder()
	_, err := b.Normal(0.0, 1.0, WithName("x"))
	require.NoError(t, err)

	// Duplicate within the variable namespace.
	_, err = b.Normal(0.0, 1.0, WithName("x"))
	assert.Error(err)
	assert.Contains(err.Error(), "Duplicate name")

	// Parameters share the namespace.
	_, err = b.Param("x", 0.0)
	assert.Error(err)

	_, err = b.Param("theta", 0.0)
	require.NoError(t, err)
	_, err = b.Normal(0.0, 1.0, WithName("theta"))
	assert.Error(err)

	// A different builder is a different namespace.
	b2 := NewBuilder()
	_, err = b2.Normal(0.0, 1.0, WithName("x"))
	assert.NoError(err)
}

func TestReplicateScopes(t *testing.T) {
	assert := assert.New(t)

	b := NewBuilder()
	assert.Equal(1, b.PlateSize())

	var inner, outer *RandomVariable
	err := b.Replicate(10, func(b *Builder) error {
		assert.Equal(10, b.PlateSize())
		var err error
		outer, err = b.Normal(0.0, 1.0, WithName("outer"))
		if err != nil {
			return err
		}
		return b.Replicate(20, func(b *Builder) error {
			assert.Equal(200, b.PlateSize())
			inner, err = b.Normal(0.0, 1.0, WithName("inner"))
			return err
		})
	})
	require.NoError(t, err)

	assert.Equal(1, b.PlateSize())
	assert.Equal(10, outer.Batch())
	assert.Equal(200, inner.Batch())
	assert.True(outer.IsPerBatch())
	assert.True(inner.IsPerBatch())

	// Outside any scope variables are not per-batch.
	plain, err := b.Normal(0.0, 1.0, WithName("plain"))
	require.NoError(t, err)
	assert.False(plain.IsPerBatch())
	assert.Equal(1, plain.Batch())

	assert.Error(b.Replicate(0, func(b *Builder) error { return nil }))
}

func TestVariableAsParameter(t *testing.T) {
	assert := assert.New(t)
	require.NoError(t, runtime.Seed(7))

	b := NewBuilder()
	mu, err := b.Normal(0.0, 1.0, WithName("mu"))
	require.NoError(t, err)
	x, err := b.Normal(mu, 0.001, WithName("x"))
	require.NoError(t, err)

	// x is realized from mu's realized sample, so they should be close.
	muVal, err := mu.Value().Tensor()
	require.NoError(t, err)
	xVal, err := x.Value().Tensor()
	require.NoError(t, err)
	muData := muVal.Value().([][]float64)
	xData := xVal.Value().([][]float64)
	assert.InDelta(muData[0][0], xData[0][0], 0.01)

	order, err := b.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal([]string{"mu", "x"}, order)
}

func TestOperatorDelegation(t *testing.T) {
	assert := assert.New(t)

	b := NewBuilder()
	x, err := b.Normal(0.0, 1.0, WithName("x"))
	require.NoError(t, err)

	// The operator result equals applying the op to the unwrapped value, and
	// it is a plain value, not a random variable.
	sum, err := x.Add(x)
	require.NoError(t, err)
	doubled, err := x.Unwrap().Mul(2.0)
	require.NoError(t, err)

	sumT, err := sum.Tensor()
	require.NoError(t, err)
	doubledT, err := doubled.Tensor()
	require.NoError(t, err)
	assert.InDelta(doubledT.Value().([][]float64)[0][0], sumT.Value().([][]float64)[0][0], 1e-12)
}

func TestSampleShape(t *testing.T) {
	assert := assert.New(t)

	b := NewBuilder()
	x, err := b.Normal([]float64{0, 0, 0}, 1.0, WithName("x"))
	require.NoError(t, err)

	s, err := x.Sample(5)
	require.NoError(t, err)
	assert.Equal([]int{5, 1, 3}, s.Shape().Dimensions)

	_, err = x.Sample(0)
	assert.Error(err)
}

func TestLogProbMatchesClosedForm(t *testing.T) {
	assert := assert.New(t)

	b := NewBuilder()
	x, err := b.Normal(0.0, 1.0, WithName("x"))
	require.NoError(t, err)

	lp, err := x.LogProb(5.0)
	require.NoError(t, err)
	lpT, err := lp.Tensor()
	require.NoError(t, err)

	want := -0.5*25 - 0.5*math.Log(2*math.Pi)
	assert.InDelta(want, lpT.Value().([][]float64)[0][0], 1e-10)

	// Unknown attributes fail naming both sides.
	_, err = x.Stat("entropy")
	assert.Error(err)
	assert.Contains(err.Error(), `"entropy"`)
	assert.Contains(err.Error(), `"Normal"`)

	mean, err := x.Stat("mean")
	require.NoError(t, err)
	meanT, err := mean.Tensor()
	require.NoError(t, err)
	assert.InDelta(0.0, meanT.Value().([][]float64)[0][0], 1e-12)
}

func TestModelExpandSubstitution(t *testing.T) {
	assert := assert.New(t)

	m, err := New(func(b *Builder) error {
		mu, err := b.Normal(0.0, 10.0, WithName("mu"))
		if err != nil {
			return err
		}
		return b.Replicate(3, func(b *Builder) error {
			_, err := b.Normal(mu, 1.0, WithName("x"))
			return err
		})
	})
	require.NoError(t, err)

	x, ok := m.Variable("x")
	require.True(t, ok)
	assert.Equal(3, x.Batch())
	assert.Equal(3, m.DeclaredPlateSize())

	state, err := runtime.NextRNGState()
	require.NoError(t, err)

	// Expand with mu pinned to 2.5 and the plate grown to 5: x must carry
	// batch 5 and mu must be realized at exactly the substituted value.
	out, err := graph.ExecOnce(runtime.Backend(), func(rng *graph.Node) *graph.Node {
		g := rng.Graph()
		exp, expErr := m.Expand(g, rng, ExpandOptions{
			Subst:     map[string]*graph.Node{"mu": graph.Const(g, 2.5)},
			PlateSize: 5,
		})
		require.NoError(t, expErr)

		mu, _ := exp.Variable("mu")
		assert.True(mu.IsObserved())
		x, _ := exp.Variable("x")
		assert.False(x.IsObserved())
		assert.Equal(5, x.Batch())

		return mu.Value().Node()
	}, state)
	require.NoError(t, err)
	assert.Equal(2.5, out.Value().([][]float64)[0][0])
}

func TestDeferredDeclaration(t *testing.T) {
	assert := assert.New(t)

	runtime.SetDefaultMode(runtime.Deferred)
	defer runtime.SetDefaultMode(runtime.Eager)

	b := NewBuilder()
	x, err := b.Normal(0.0, 1.0, WithName("x"))
	require.NoError(t, err)

	// Nothing is realized until the model is expanded into a graph.
	assert.Nil(x.Value())
	_, err = x.Add(1.0)
	assert.Error(err)
}

func TestRegistrationAfterFinalize(t *testing.T) {
	assert := assert.New(t)

	m, err := New(func(b *Builder) error {
		_, err := b.Normal(0.0, 1.0, WithName("x"))
		return err
	})
	require.NoError(t, err)

	_, err = m.prior.Normal(0.0, 1.0, WithName("y"))
	assert.Error(err)
	assert.Contains(err.Error(), "finalized")
}
