package distribution

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Laplace is the double-exponential distribution with location loc and
// diversity scale.
type Laplace struct {
	base
	loc   Param
	scale Param
}

// NewLaplace builds a Laplace binding from loc and scale parameters.
func NewLaplace(loc, scale Param, cfg Config) (*Laplace, error) {
	cfg = cfg.withDefaults()

	dim, err := resolveDim(cfg.Dim,
		namedParam{"loc", loc},
		namedParam{"scale", scale})
	if err != nil {
		return nil, errors.Wrap(err, "Invalid Laplace parameters")
	}

	return &Laplace{
		base:  base{kind: "Laplace", dtype: cfg.DType, batch: cfg.Batch, dim: dim},
		loc:   loc,
		scale: scale,
	}, nil
}

func (d *Laplace) params(g *graph.Graph, env Env) (loc, scale *graph.Node, err error) {
	loc, err = d.resolveParam(g, env, "loc", d.loc)
	if err != nil {
		return nil, nil, err
	}
	scale, err = d.resolveParam(g, env, "scale", d.scale)
	if err != nil {
		return nil, nil, err
	}
	return loc, scale, nil
}

// SampleGraph inverts the CDF over a centered uniform:
// loc - scale*sign(s)*log(1-2|s|) with s = u - 0.5.
func (d *Laplace) SampleGraph(g *graph.Graph, rng *graph.Node, env Env) (newRng, sample *graph.Node, err error) {
	loc, scale, err := d.params(g, env)
	if err != nil {
		return nil, nil, err
	}

	err = exceptions.TryCatch[error](func() {
		var u *graph.Node
		newRng, u = graph.RandomUniform(rng, shapes.Make(d.dtype, d.batch, d.dim))
		s := graph.AddScalar(u, -0.5)
		mag := graph.Log(graph.OneMinus(graph.MulScalar(graph.Abs(s), 2)))
		sample = graph.Sub(loc, graph.Mul(scale, graph.Mul(graph.Sign(s), mag)))
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "Laplace sampling failed")
	}
	return newRng, sample, nil
}

// LogProbGraph is -|v-loc|/scale - log(2*scale).
func (d *Laplace) LogProbGraph(value *graph.Node, env Env) (lp *graph.Node, err error) {
	g := value.Graph()

	loc, scale, err := d.params(g, env)
	if err != nil {
		return nil, err
	}

	err = exceptions.TryCatch[error](func() {
		v := d.castValue(value)
		lp = graph.Sub(
			graph.Neg(graph.Div(graph.Abs(graph.Sub(v, loc)), scale)),
			graph.AddScalar(graph.Log(scale), math.Log(2)))
	})
	if err != nil {
		return nil, errors.Wrap(err, "Laplace log-prob failed")
	}
	return lp, nil
}

// ProbGraph is Exp(LogProbGraph).
func (d *Laplace) ProbGraph(value *graph.Node, env Env) (*graph.Node, error) {
	lp, err := d.LogProbGraph(value, env)
	if err != nil {
		return nil, err
	}
	return graph.Exp(lp), nil
}

// Stat exposes loc, scale, mean and variance (2*scale^2).
func (d *Laplace) Stat(name string) (StatFn, error) {
	switch name {
	case "loc", "mean":
		return func(g *graph.Graph, env Env) (*graph.Node, error) {
			return d.resolveParam(g, env, "loc", d.loc)
		}, nil
	case "scale":
		return func(g *graph.Graph, env Env) (*graph.Node, error) {
			return d.resolveParam(g, env, "scale", d.scale)
		}, nil
	case "variance":
		return func(g *graph.Graph, env Env) (*graph.Node, error) {
			s, err := d.resolveParam(g, env, "scale", d.scale)
			if err != nil {
				return nil, err
			}
			return graph.MulScalar(graph.Square(s), 2), nil
		}, nil
	default:
		return nil, d.statNotImplemented(name)
	}
}
