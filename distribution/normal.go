package distribution

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Normal is the Gaussian distribution with location loc and scale (stddev)
// scale. Each of the dim dimensions is independent; the batch axis replicates
// the whole event.
type Normal struct {
	base
	loc   Param
	scale Param
}

// NewNormal builds a Normal binding from loc and scale parameters. Parameters
// must be scalars or vectors; two vectors must agree on length, and an
// explicit Config.Dim must agree with both.
func NewNormal(loc, scale Param, cfg Config) (*Normal, error) {
	cfg = cfg.withDefaults()

	dim, err := resolveDim(cfg.Dim,
		namedParam{"loc", loc},
		namedParam{"scale", scale})
	if err != nil {
		return nil, errors.Wrap(err, "Invalid Normal parameters")
	}

	return &Normal{
		base:  base{kind: "Normal", dtype: cfg.DType, batch: cfg.Batch, dim: dim},
		loc:   loc,
		scale: scale,
	}, nil
}

// SampleGraph emits a reparameterized sample: loc + scale * eps with eps
// drawn from the engine's standard normal RNG op.
func (d *Normal) SampleGraph(g *graph.Graph, rng *graph.Node, env Env) (newRng, sample *graph.Node, err error) {
	loc, err := d.resolveParam(g, env, "loc", d.loc)
	if err != nil {
		return nil, nil, err
	}
	scale, err := d.resolveParam(g, env, "scale", d.scale)
	if err != nil {
		return nil, nil, err
	}

	err = exceptions.TryCatch[error](func() {
		var eps *graph.Node
		newRng, eps = graph.RandomNormal(rng, shapes.Make(d.dtype, d.batch, d.dim))
		sample = graph.Add(loc, graph.Mul(scale, eps))
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "Normal sampling failed")
	}
	return newRng, sample, nil
}

// LogProbGraph emits the Gaussian log-density of value, element-wise.
func (d *Normal) LogProbGraph(value *graph.Node, env Env) (lp *graph.Node, err error) {
	g := value.Graph()

	loc, err := d.resolveParam(g, env, "loc", d.loc)
	if err != nil {
		return nil, err
	}
	scale, err := d.resolveParam(g, env, "scale", d.scale)
	if err != nil {
		return nil, err
	}

	err = exceptions.TryCatch[error](func() {
		v := d.castValue(value)
		z := graph.Div(graph.Sub(v, loc), scale)
		lp = graph.Sub(
			graph.MulScalar(graph.Square(z), -0.5),
			graph.AddScalar(graph.Log(scale), 0.5*math.Log(2*math.Pi)))
	})
	if err != nil {
		return nil, errors.Wrap(err, "Normal log-prob failed")
	}
	return lp, nil
}

// ProbGraph is Exp(LogProbGraph).
func (d *Normal) ProbGraph(value *graph.Node, env Env) (*graph.Node, error) {
	lp, err := d.LogProbGraph(value, env)
	if err != nil {
		return nil, err
	}
	return graph.Exp(lp), nil
}

// Stat exposes loc, scale, mean, stddev and variance.
func (d *Normal) Stat(name string) (StatFn, error) {
	switch name {
	case "loc", "mean":
		return d.paramStat("loc", d.loc), nil
	case "scale", "stddev":
		return d.paramStat("scale", d.scale), nil
	case "variance":
		p := d.paramStat("scale", d.scale)
		return func(g *graph.Graph, env Env) (*graph.Node, error) {
			n, err := p(g, env)
			if err != nil {
				return nil, err
			}
			return graph.Square(n), nil
		}, nil
	default:
		return nil, d.statNotImplemented(name)
	}
}

func (d *Normal) paramStat(name string, p Param) StatFn {
	return func(g *graph.Graph, env Env) (*graph.Node, error) {
		return d.resolveParam(g, env, name, p)
	}
}
