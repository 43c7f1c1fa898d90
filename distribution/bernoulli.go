package distribution

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Bernoulli is the 0/1 distribution with success probability probs. Samples
// are emitted in the distribution's dtype so they compose with arithmetic
// ops.
type Bernoulli struct {
	base
	probs Param
}

// NewBernoulli builds a Bernoulli binding from its probs parameter.
func NewBernoulli(probs Param, cfg Config) (*Bernoulli, error) {
	cfg = cfg.withDefaults()

	dim, err := resolveDim(cfg.Dim, namedParam{"probs", probs})
	if err != nil {
		return nil, errors.Wrap(err, "Invalid Bernoulli parameters")
	}

	return &Bernoulli{
		base:  base{kind: "Bernoulli", dtype: cfg.DType, batch: cfg.Batch, dim: dim},
		probs: probs,
	}, nil
}

// SampleGraph draws uniforms and thresholds them against probs.
func (d *Bernoulli) SampleGraph(g *graph.Graph, rng *graph.Node, env Env) (newRng, sample *graph.Node, err error) {
	probs, err := d.resolveParam(g, env, "probs", d.probs)
	if err != nil {
		return nil, nil, err
	}

	err = exceptions.TryCatch[error](func() {
		var u *graph.Node
		newRng, u = graph.RandomUniform(rng, shapes.Make(d.dtype, d.batch, d.dim))
		sample = graph.ConvertDType(graph.LessThan(u, probs), d.dtype)
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "Bernoulli sampling failed")
	}
	return newRng, sample, nil
}

// LogProbGraph emits v*log(p) + (1-v)*log(1-p).
func (d *Bernoulli) LogProbGraph(value *graph.Node, env Env) (lp *graph.Node, err error) {
	g := value.Graph()

	probs, err := d.resolveParam(g, env, "probs", d.probs)
	if err != nil {
		return nil, err
	}

	err = exceptions.TryCatch[error](func() {
		v := d.castValue(value)
		lp = graph.Add(
			graph.Mul(v, graph.Log(probs)),
			graph.Mul(graph.OneMinus(v), graph.Log(graph.OneMinus(probs))))
	})
	if err != nil {
		return nil, errors.Wrap(err, "Bernoulli log-prob failed")
	}
	return lp, nil
}

// ProbGraph is Exp(LogProbGraph).
func (d *Bernoulli) ProbGraph(value *graph.Node, env Env) (*graph.Node, error) {
	lp, err := d.LogProbGraph(value, env)
	if err != nil {
		return nil, err
	}
	return graph.Exp(lp), nil
}

// Stat exposes probs, mean and variance (p*(1-p)).
func (d *Bernoulli) Stat(name string) (StatFn, error) {
	probs := func(g *graph.Graph, env Env) (*graph.Node, error) {
		return d.resolveParam(g, env, "probs", d.probs)
	}

	switch name {
	case "probs", "mean":
		return probs, nil
	case "variance":
		return func(g *graph.Graph, env Env) (*graph.Node, error) {
			p, err := probs(g, env)
			if err != nil {
				return nil, err
			}
			return graph.Mul(p, graph.OneMinus(p)), nil
		}, nil
	default:
		return nil, d.statNotImplemented(name)
	}
}
