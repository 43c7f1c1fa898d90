package distribution

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Exponential is the exponential distribution with the given rate.
type Exponential struct {
	base
	rate Param
}

// NewExponential builds an Exponential binding from its rate parameter.
func NewExponential(rate Param, cfg Config) (*Exponential, error) {
	cfg = cfg.withDefaults()

	dim, err := resolveDim(cfg.Dim, namedParam{"rate", rate})
	if err != nil {
		return nil, errors.Wrap(err, "Invalid Exponential parameters")
	}

	return &Exponential{
		base: base{kind: "Exponential", dtype: cfg.DType, batch: cfg.Batch, dim: dim},
		rate: rate,
	}, nil
}

// SampleGraph inverts the CDF over the engine's uniform RNG op:
// -log(1-u)/rate.
func (d *Exponential) SampleGraph(g *graph.Graph, rng *graph.Node, env Env) (newRng, sample *graph.Node, err error) {
	rate, err := d.resolveParam(g, env, "rate", d.rate)
	if err != nil {
		return nil, nil, err
	}

	err = exceptions.TryCatch[error](func() {
		var u *graph.Node
		newRng, u = graph.RandomUniform(rng, shapes.Make(d.dtype, d.batch, d.dim))
		sample = graph.Div(graph.Neg(graph.Log(graph.OneMinus(u))), rate)
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "Exponential sampling failed")
	}
	return newRng, sample, nil
}

// LogProbGraph is log(rate) - rate*v on the support and -Inf below zero.
func (d *Exponential) LogProbGraph(value *graph.Node, env Env) (lp *graph.Node, err error) {
	g := value.Graph()

	rate, err := d.resolveParam(g, env, "rate", d.rate)
	if err != nil {
		return nil, err
	}

	err = exceptions.TryCatch[error](func() {
		v := d.castValue(value)
		onSupport := graph.Sub(graph.Log(rate), graph.Mul(rate, v))
		lp = graph.Where(graph.GreaterOrEqual(v, graph.ZerosLike(v)),
			onSupport,
			graph.ConstAs(v, math.Inf(-1)))
	})
	if err != nil {
		return nil, errors.Wrap(err, "Exponential log-prob failed")
	}
	return lp, nil
}

// ProbGraph is Exp(LogProbGraph).
func (d *Exponential) ProbGraph(value *graph.Node, env Env) (*graph.Node, error) {
	lp, err := d.LogProbGraph(value, env)
	if err != nil {
		return nil, err
	}
	return graph.Exp(lp), nil
}

// Stat exposes rate, mean (1/rate) and variance (1/rate^2).
func (d *Exponential) Stat(name string) (StatFn, error) {
	rate := func(g *graph.Graph, env Env) (*graph.Node, error) {
		return d.resolveParam(g, env, "rate", d.rate)
	}

	switch name {
	case "rate":
		return rate, nil
	case "mean":
		return func(g *graph.Graph, env Env) (*graph.Node, error) {
			r, err := rate(g, env)
			if err != nil {
				return nil, err
			}
			return graph.Div(graph.OnesLike(r), r), nil
		}, nil
	case "variance":
		return func(g *graph.Graph, env Env) (*graph.Node, error) {
			r, err := rate(g, env)
			if err != nil {
				return nil, err
			}
			return graph.Div(graph.OnesLike(r), graph.Square(r)), nil
		}, nil
	default:
		return nil, d.statNotImplemented(name)
	}
}
