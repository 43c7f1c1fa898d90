package inference

import (
	"context"
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1asingh/InferPy/model"
	"github.com/1asingh/InferPy/runtime"
)

// hierarchical builds mu ~ Normal(0, priorScale) with n observations
// x ~ Normal(mu, 1) under a replicate scope.
func hierarchical(n int, priorScale float64) (*model.Model, error) {
	return model.New(func(b *model.Builder) error {
		mu, err := b.Normal(0.0, priorScale, model.WithName("mu"))
		if err != nil {
			return err
		}
		return b.Replicate(n, func(b *model.Builder) error {
			_, err := b.Normal(mu, 1.0, model.WithName("x"))
			return err
		})
	})
}

func TestForwardSampling(t *testing.T) {
	assert := assert.New(t)
	require.NoError(t, runtime.Seed(11))

	m, err := hierarchical(4, 1.0)
	require.NoError(t, err)

	draws, err := Sample(m, 3)
	require.NoError(t, err)
	require.Len(t, draws, 2)

	assert.Equal([]int{3, 1, 1}, draws["mu"].Shape().Dimensions)
	assert.Equal([]int{3, 4, 1}, draws["x"].Shape().Dimensions)

	_, err = Sample(m, 0)
	assert.Error(err)
}

func TestELBOLoss(t *testing.T) {
	assert := assert.New(t)

	p, err := hierarchical(4, 10.0)
	require.NoError(t, err)
	q, err := model.New(func(b *model.Builder) error {
		loc, err := b.Param("qloc", 0.0)
		if err != nil {
			return err
		}
		_, err = b.Normal(loc, 0.5, model.WithName("mu"))
		return err
	})
	require.NoError(t, err)

	data := map[string]*tensors.Tensor{
		"x": tensors.FromAnyValue([][]float64{{1.0}, {1.2}, {0.8}, {1.1}}),
	}

	state, err := runtime.NextRNGState()
	require.NoError(t, err)

	out, err := graph.ExecOnce(runtime.Backend(), func(rng *graph.Node) *graph.Node {
		loss, lossErr := BuildELBOLoss(rng.Graph(), rng, p, q, data, ELBOOptions{})
		require.NoError(t, lossErr)
		return loss
	}, state)
	require.NoError(t, err)

	loss := out.Value().(float64)
	assert.False(math.IsNaN(loss))
	assert.False(math.IsInf(loss, 0))

	// An observed name that is not a model variable fails immediately.
	bad := map[string]*tensors.Tensor{"nope": tensors.FromAnyValue(1.0)}
	state2, err := runtime.NextRNGState()
	require.NoError(t, err)
	_, err = graph.ExecOnce(runtime.Backend(), func(rng *graph.Node) *graph.Node {
		_, lossErr := BuildELBOLoss(rng.Graph(), rng, p, q, bad, ELBOOptions{})
		assert.Error(lossErr)
		assert.Contains(lossErr.Error(), "nope")
		return rng
	}, state2)
	require.NoError(t, err)
}

func TestPlateSizeInference(t *testing.T) {
	assert := assert.New(t)

	// Declared plate is 4 but the observations carry 7 rows: the expansion
	// must follow the data.
	p, err := hierarchical(4, 10.0)
	require.NoError(t, err)
	q, err := model.New(func(b *model.Builder) error {
		_, err := b.Normal(0.0, 1.0, model.WithName("mu"))
		return err
	})
	require.NoError(t, err)

	data := map[string]*tensors.Tensor{
		"x": tensors.FromAnyValue([][]float64{{1}, {2}, {3}, {4}, {5}, {6}, {7}}),
	}

	state, err := runtime.NextRNGState()
	require.NoError(t, err)
	_, err = graph.ExecOnce(runtime.Backend(), func(rng *graph.Node) *graph.Node {
		loss, lossErr := BuildELBOLoss(rng.Graph(), rng, p, q, data, ELBOOptions{})
		require.NoError(t, lossErr)
		return loss
	}, state)
	assert.NoError(err)
}

func TestConjugateNormalFit(t *testing.T) {
	assert := assert.New(t)
	require.NoError(t, runtime.Seed(3))

	observations := []float64{2.9, 3.1, 3.0, 2.8, 3.2}
	n := len(observations)

	p, err := hierarchical(n, 10.0)
	require.NoError(t, err)
	q, err := model.New(func(b *model.Builder) error {
		loc, err := b.Param("qloc", 0.0)
		if err != nil {
			return err
		}
		_, err = b.Normal(loc, 0.5, model.WithName("mu"))
		return err
	})
	require.NoError(t, err)

	rows := make([][]float64, n)
	var sum float64
	for i, x := range observations {
		rows[i] = []float64{x}
		sum += x
	}
	data := map[string]*tensors.Tensor{"x": tensors.FromAnyValue(rows)}

	vi := NewVI(p, q,
		WithLearningRate(0.02),
		WithSteps(3000),
		WithWindow(100),
		WithTolerance(1e-6))

	result, err := vi.Fit(context.Background(), data)
	require.NoError(t, err)
	require.NotEmpty(t, result.Losses)

	// Conjugate posterior mean for prior N(0, 10^2) and unit likelihood
	// noise.
	posteriorMean := sum / (1.0/100.0 + float64(n))

	params, err := vi.FittedParams()
	require.NoError(t, err)
	fitted, ok := params["qloc"]
	require.True(t, ok)
	assert.InDelta(posteriorMean, fitted.Value().(float64), 0.5)

	post, err := vi.Posterior("mu")
	require.NoError(t, err)
	loc, err := post.Stat("loc")
	require.NoError(t, err)
	locT, err := loc.Tensor()
	require.NoError(t, err)
	assert.InDelta(posteriorMean, locT.Value().([][]float64)[0][0], 0.5)
}

func TestFitCancellation(t *testing.T) {
	assert := assert.New(t)

	p, err := hierarchical(2, 10.0)
	require.NoError(t, err)
	q, err := model.New(func(b *model.Builder) error {
		loc, err := b.Param("qloc", 0.0)
		if err != nil {
			return err
		}
		_, err = b.Normal(loc, 1.0, model.WithName("mu"))
		return err
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := map[string]*tensors.Tensor{
		"x": tensors.FromAnyValue([][]float64{{1}, {2}}),
	}
	_, err = NewVI(p, q).Fit(ctx, data)
	assert.Error(err)
}

func TestPosteriorBeforeFit(t *testing.T) {
	assert := assert.New(t)

	p, err := hierarchical(2, 10.0)
	require.NoError(t, err)
	q, err := model.New(func(b *model.Builder) error {
		_, err := b.Normal(0.0, 1.0, model.WithName("mu"))
		return err
	})
	require.NoError(t, err)

	_, err = NewVI(p, q).Posterior("mu")
	assert.Error(err)
}
