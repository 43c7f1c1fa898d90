package distribution

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Uniform is the continuous uniform distribution on [low, high).
type Uniform struct {
	base
	low  Param
	high Param
}

// NewUniform builds a Uniform binding from low and high parameters.
func NewUniform(low, high Param, cfg Config) (*Uniform, error) {
	cfg = cfg.withDefaults()

	dim, err := resolveDim(cfg.Dim,
		namedParam{"low", low},
		namedParam{"high", high})
	if err != nil {
		return nil, errors.Wrap(err, "Invalid Uniform parameters")
	}

	return &Uniform{
		base: base{kind: "Uniform", dtype: cfg.DType, batch: cfg.Batch, dim: dim},
		low:  low,
		high: high,
	}, nil
}

func (d *Uniform) bounds(g *graph.Graph, env Env) (low, high *graph.Node, err error) {
	low, err = d.resolveParam(g, env, "low", d.low)
	if err != nil {
		return nil, nil, err
	}
	high, err = d.resolveParam(g, env, "high", d.high)
	if err != nil {
		return nil, nil, err
	}
	return low, high, nil
}

// SampleGraph rescales the engine's [0,1) uniform RNG op to [low, high).
func (d *Uniform) SampleGraph(g *graph.Graph, rng *graph.Node, env Env) (newRng, sample *graph.Node, err error) {
	low, high, err := d.bounds(g, env)
	if err != nil {
		return nil, nil, err
	}

	err = exceptions.TryCatch[error](func() {
		var u *graph.Node
		newRng, u = graph.RandomUniform(rng, shapes.Make(d.dtype, d.batch, d.dim))
		sample = graph.Add(low, graph.Mul(graph.Sub(high, low), u))
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "Uniform sampling failed")
	}
	return newRng, sample, nil
}

// LogProbGraph is -log(high-low) inside the support and -Inf outside.
func (d *Uniform) LogProbGraph(value *graph.Node, env Env) (lp *graph.Node, err error) {
	g := value.Graph()

	low, high, err := d.bounds(g, env)
	if err != nil {
		return nil, err
	}

	err = exceptions.TryCatch[error](func() {
		v := d.castValue(value)
		inside := graph.LogicalAnd(graph.GreaterOrEqual(v, low), graph.LessThan(v, high))
		lp = graph.Where(inside,
			graph.Neg(graph.Log(graph.Sub(high, low))),
			graph.ConstAs(v, math.Inf(-1)))
	})
	if err != nil {
		return nil, errors.Wrap(err, "Uniform log-prob failed")
	}
	return lp, nil
}

// ProbGraph is Exp(LogProbGraph).
func (d *Uniform) ProbGraph(value *graph.Node, env Env) (*graph.Node, error) {
	lp, err := d.LogProbGraph(value, env)
	if err != nil {
		return nil, err
	}
	return graph.Exp(lp), nil
}

// Stat exposes low, high and mean.
func (d *Uniform) Stat(name string) (StatFn, error) {
	switch name {
	case "low":
		return func(g *graph.Graph, env Env) (*graph.Node, error) {
			return d.resolveParam(g, env, "low", d.low)
		}, nil
	case "high":
		return func(g *graph.Graph, env Env) (*graph.Node, error) {
			return d.resolveParam(g, env, "high", d.high)
		}, nil
	case "mean":
		return func(g *graph.Graph, env Env) (*graph.Node, error) {
			low, high, err := d.bounds(g, env)
			if err != nil {
				return nil, err
			}
			return graph.MulScalar(graph.Add(low, high), 0.5), nil
		}, nil
	default:
		return nil, d.statNotImplemented(name)
	}
}
