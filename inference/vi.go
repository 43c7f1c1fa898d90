package inference

import (
	"context"
	"math"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mlcontext "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/1asingh/InferPy/buffer"
	"github.com/1asingh/InferPy/model"
	"github.com/1asingh/InferPy/runtime"
)

// VI fits an approximating model q to a generative model p by minimizing the
// negative ELBO with a gradient optimizer. The learnable parameters of q live
// in an engine context; one compiled step graph builds the loss and the
// optimizer update together.
type VI struct {
	p, q *model.Model

	optimizer    optimizers.Interface
	learningRate float64
	steps        int
	window       int
	tolerance    float64
	batchWeight  float64

	ctx *mlcontext.Context
}

// VIOption adjusts the fit configuration.
type VIOption func(*VI)

// WithOptimizer replaces the default SGD optimizer.
func WithOptimizer(opt optimizers.Interface) VIOption {
	return func(vi *VI) { vi.optimizer = opt }
}

// WithLearningRate sets the optimizer learning rate.
func WithLearningRate(lr float64) VIOption {
	return func(vi *VI) { vi.learningRate = lr }
}

// WithSteps sets the maximum number of optimization steps.
func WithSteps(n int) VIOption {
	return func(vi *VI) { vi.steps = n }
}

// WithWindow sets the size of the loss history window used for convergence.
func WithWindow(n int) VIOption {
	return func(vi *VI) { vi.window = n }
}

// WithTolerance sets the relative loss change below which the fit stops.
func WithTolerance(tol float64) VIOption {
	return func(vi *VI) { vi.tolerance = tol }
}

// WithBatchWeight re-weights per-batch log-prob sums in the loss.
func WithBatchWeight(w float64) VIOption {
	return func(vi *VI) { vi.batchWeight = w }
}

// NewVI prepares a variational fit of q against p.
func NewVI(p, q *model.Model, opts ...VIOption) *VI {
	vi := &VI{
		p:            p,
		q:            q,
		learningRate: 0.01,
		steps:        1000,
		window:       50,
		tolerance:    1e-5,
		batchWeight:  1,
	}
	for _, opt := range opts {
		opt(vi)
	}
	if vi.optimizer == nil {
		vi.optimizer = optimizers.StochasticGradientDescent().Done()
	}
	return vi
}

// FitResult reports the outcome of one fit.
type FitResult struct {
	Losses    []float64
	Steps     int
	FinalLoss float64
	Converged bool
}

// Fit runs the optimization loop until convergence, the step limit, or
// cancellation of goCtx.
func (vi *VI) Fit(goCtx context.Context, data map[string]*tensors.Tensor) (*FitResult, error) {
	vi.ctx = mlcontext.New()
	vi.ctx.SetParam(optimizers.ParamLearningRate, vi.learningRate)

	exec, err := mlcontext.NewExec(runtime.Backend(), vi.ctx,
		func(ctx *mlcontext.Context, rng *graph.Node) *graph.Node {
			g := rng.Graph()
			loss, lossErr := BuildELBOLoss(g, rng, vi.p, vi.q, data, ELBOOptions{
				BatchWeight: vi.batchWeight,
				Context:     ctx,
			})
			if lossErr != nil {
				panic(lossErr)
			}
			vi.optimizer.UpdateGraph(ctx, g, loss)
			return loss
		})
	if err != nil {
		return nil, errors.Wrap(err, "Could not compile the fit step")
	}
	defer exec.Finalize()

	history := buffer.NewCircularFloat(vi.window)
	result := &FitResult{Losses: make([]float64, 0, vi.steps)}

	for step := 0; step < vi.steps; step++ {
		select {
		case <-goCtx.Done():
			return nil, errors.Wrap(goCtx.Err(), "Fit canceled")
		default:
		}

		state, err := runtime.NextRNGState()
		if err != nil {
			return nil, err
		}
		lossT, err := exec.Exec1(state)
		if err != nil {
			return nil, errors.Wrapf(err, "Fit step %d failed", step)
		}

		loss := lossT.Value().(float64)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return nil, errors.Errorf("Fit diverged at step %d (loss %v)", step, loss)
		}

		result.Losses = append(result.Losses, loss)
		result.Steps = step + 1
		result.FinalLoss = loss
		_ = history.Add(loss)

		if klog.V(2).Enabled() && step%50 == 0 {
			klog.Infof("fit step %d: loss %.6f", step, loss)
		}

		if older, newer, ok := history.HalfMeans(); ok {
			rel := math.Abs(newer-older) / math.Max(math.Abs(older), 1e-12)
			if rel < vi.tolerance {
				result.Converged = true
				klog.V(1).Infof("fit converged after %d steps: loss %.6f", result.Steps, loss)
				return result, nil
			}
		}
	}

	klog.V(1).Infof("fit stopped at step limit %d: loss %.6f", vi.steps, result.FinalLoss)
	return result, nil
}

// Posterior rebuilds the named variable of the approximating model with the
// fitted parameter values. Only valid after Fit.
func (vi *VI) Posterior(name string) (*model.RandomVariable, error) {
	params, err := vi.FittedParams()
	if err != nil {
		return nil, err
	}

	b, err := vi.q.Materialize(params)
	if err != nil {
		return nil, errors.Wrap(err, "Could not rebuild the approximating model")
	}

	rv, ok := b.Variable(name)
	if !ok {
		return nil, errors.Errorf("No variable %q in the approximating model", name)
	}
	return rv, nil
}

// FittedParams returns the materialized values of the approximating model's
// learnable parameters. Only valid after Fit.
func (vi *VI) FittedParams() (map[string]*tensors.Tensor, error) {
	if vi.ctx == nil {
		return nil, errors.Errorf("Fit has not been run")
	}

	params := make(map[string]*tensors.Tensor, len(vi.q.Parameters()))
	for _, p := range vi.q.Parameters() {
		v := vi.ctx.InspectVariable(mlcontext.RootScope, p.Name())
		if v == nil {
			return nil, errors.Errorf("Parameter %q was never realized during the fit", p.Name())
		}
		t, err := v.Value()
		if err != nil {
			return nil, errors.Wrapf(err, "Could not read fitted parameter %q", p.Name())
		}
		params[p.Name()] = t
	}
	return params, nil
}
