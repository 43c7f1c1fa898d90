package distribution

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// Categorical is the distribution over classes 0..K-1, parameterized by a
// length-K logits (or probs) vector. The event dimension is always 1: each
// draw is a single class index, emitted in the distribution's dtype.
type Categorical struct {
	base
	logits    Param
	fromProbs bool
	classes   int
}

// NewCategorical builds a Categorical binding from a logits vector of at
// least two classes.
func NewCategorical(logits Param, cfg Config) (*Categorical, error) {
	return newCategorical(logits, false, cfg)
}

// NewCategoricalProbs is NewCategorical for a probabilities vector; logits
// are derived as log(probs).
func NewCategoricalProbs(probs Param, cfg Config) (*Categorical, error) {
	return newCategorical(probs, true, cfg)
}

func newCategorical(param Param, fromProbs bool, cfg Config) (*Categorical, error) {
	cfg = cfg.withDefaults()

	if param.Rank() > 1 {
		return nil, errors.Errorf("Invalid Categorical parameters: logits cannot be a multidimensional array")
	}
	classes := param.Size()
	if classes < 2 {
		return nil, errors.Errorf("Invalid Categorical parameters: need at least 2 classes, got %d", classes)
	}
	if cfg.Dim > 1 {
		return nil, errors.Errorf("Invalid Categorical parameters: dim must be 1, got %d", cfg.Dim)
	}

	return &Categorical{
		base:      base{kind: "Categorical", dtype: cfg.DType, batch: cfg.Batch, dim: 1},
		logits:    param,
		fromProbs: fromProbs,
		classes:   classes,
	}, nil
}

// Classes returns the number of classes K.
func (d *Categorical) Classes() int { return d.classes }

// logitsNode resolves the parameter to a [batch, K] logits node.
func (d *Categorical) logitsNode(g *graph.Graph, env Env) (*graph.Node, error) {
	n, err := d.logits.Node(g, env)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not resolve parameter logits of %s", d.kind)
	}

	err = exceptions.TryCatch[error](func() {
		n = broadcastTo(n, d.dtype, d.batch, d.classes)
		if d.fromProbs {
			n = graph.Log(n)
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "Categorical logits failed")
	}
	return n, nil
}

// logSoftmax normalizes logits along the class axis in a numerically stable
// way.
func logSoftmax(logits *graph.Node) *graph.Node {
	m := graph.StopGradient(graph.ReduceAndKeep(logits, graph.ReduceMax, -1))
	shifted := graph.Sub(logits, m)
	lse := graph.Log(graph.ReduceAndKeep(graph.Exp(shifted), graph.ReduceSum, -1))
	return graph.Sub(shifted, lse)
}

// SampleGraph draws class indices with the Gumbel-max trick over the engine's
// uniform RNG op.
func (d *Categorical) SampleGraph(g *graph.Graph, rng *graph.Node, env Env) (newRng, sample *graph.Node, err error) {
	logits, err := d.logitsNode(g, env)
	if err != nil {
		return nil, nil, err
	}

	err = exceptions.TryCatch[error](func() {
		var u *graph.Node
		newRng, u = graph.RandomUniform(rng, shapes.Make(d.dtype, d.batch, d.classes))
		gumbel := graph.Neg(graph.Log(graph.Neg(graph.Log(u))))
		idx := graph.ArgMax(graph.Add(logits, gumbel), -1, dtypes.Int64)
		sample = graph.ExpandAxes(graph.ConvertDType(idx, d.dtype), -1)
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "Categorical sampling failed")
	}
	return newRng, sample, nil
}

// LogProbGraph gathers the normalized log-probability of the class index in
// value ([batch, 1]).
func (d *Categorical) LogProbGraph(value *graph.Node, env Env) (lp *graph.Node, err error) {
	g := value.Graph()

	logits, err := d.logitsNode(g, env)
	if err != nil {
		return nil, err
	}

	err = exceptions.TryCatch[error](func() {
		v := d.castValue(value)
		idx := graph.Squeeze(graph.ConvertDType(v, dtypes.Int64), -1)
		oneHot := graph.OneHot(idx, d.classes, d.dtype)
		lp = graph.ReduceAndKeep(graph.Mul(oneHot, logSoftmax(logits)), graph.ReduceSum, -1)
	})
	if err != nil {
		return nil, errors.Wrap(err, "Categorical log-prob failed")
	}
	return lp, nil
}

// ProbGraph is Exp(LogProbGraph).
func (d *Categorical) ProbGraph(value *graph.Node, env Env) (*graph.Node, error) {
	lp, err := d.LogProbGraph(value, env)
	if err != nil {
		return nil, err
	}
	return graph.Exp(lp), nil
}

// Stat exposes logits and probs.
func (d *Categorical) Stat(name string) (StatFn, error) {
	switch name {
	case "logits":
		return d.logitsNode, nil
	case "probs":
		return func(g *graph.Graph, env Env) (*graph.Node, error) {
			logits, err := d.logitsNode(g, env)
			if err != nil {
				return nil, err
			}
			return graph.Exp(logSoftmax(logits)), nil
		}, nil
	default:
		return nil, d.statNotImplemented(name)
	}
}
