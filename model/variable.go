package model

import (
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"

	"github.com/1asingh/InferPy/distribution"
	"github.com/1asingh/InferPy/runtime"
	"github.com/1asingh/InferPy/value"
)

// RandomVariable is one declared random variable: a named distribution
// binding plus its realized value. Declared eagerly it holds a materialized
// sample; during a model expansion it holds the symbolic node it was realized
// as (a sample, or the substituted observed value).
//
// Arithmetic on a random variable delegates to its realized value and returns
// a plain deterministic Value, not a new random variable: transforming a
// sample does not produce a new distribution.
type RandomVariable struct {
	b        *Builder
	name     string
	dist     distribution.Distribution
	perBatch bool
	observed bool
	realized *value.Value
}

// Name returns the variable name.
func (rv *RandomVariable) Name() string { return rv.name }

// Kind returns the distribution kind (Normal, Bernoulli, ...).
func (rv *RandomVariable) Kind() string { return rv.dist.Kind() }

// DType returns the variable's numeric type.
func (rv *RandomVariable) DType() dtypes.DType { return rv.dist.DType() }

// Batch returns the leading (replicate) dimension.
func (rv *RandomVariable) Batch() int { return rv.dist.Batch() }

// Dim returns the event dimension.
func (rv *RandomVariable) Dim() int { return rv.dist.Dim() }

// IsPerBatch reports whether the variable was declared inside a replicate
// scope.
func (rv *RandomVariable) IsPerBatch() bool { return rv.perBatch }

// IsObserved reports whether the variable was realized from a substituted
// observed value.
func (rv *RandomVariable) IsObserved() bool { return rv.observed }

// Dist returns the underlying distribution binding.
func (rv *RandomVariable) Dist() distribution.Distribution { return rv.dist }

// Value returns the realized value.
func (rv *RandomVariable) Value() *value.Value { return rv.realized }

// Unwrap makes the variable usable wherever a Value is expected.
func (rv *RandomVariable) Unwrap() *value.Value { return rv.realized }

// RefName and RefDim make the variable usable as a parameter of another
// distribution, resolved through the active expansion.
func (rv *RandomVariable) RefName() string { return rv.name }
func (rv *RandomVariable) RefDim() int     { return rv.dist.Dim() }

// env resolves references for standalone (non-expansion) evaluations.
func (rv *RandomVariable) env(g *graph.Graph) distribution.Env {
	if rv.b != nil && rv.b.exp != nil {
		return rv.b.exp
	}
	return &eagerEnv{b: rv.b, g: g}
}

// Sample draws n fresh samples, materialized as an [n, batch, dim] tensor.
func (rv *RandomVariable) Sample(n int) (*value.Value, error) {
	if n < 1 {
		return nil, errors.Errorf("Sample count must be >= 1, got %d", n)
	}

	state, err := runtime.NextRNGState()
	if err != nil {
		return nil, err
	}

	out, err := graph.ExecOnce(runtime.Backend(), func(rng *graph.Node) *graph.Node {
		g := rng.Graph()
		draws := make([]*graph.Node, n)
		for i := range draws {
			var sample *graph.Node
			var sampleErr error
			rng, sample, sampleErr = rv.dist.SampleGraph(g, rng, rv.env(g))
			if sampleErr != nil {
				panic(sampleErr)
			}
			draws[i] = sample
		}
		return graph.Stack(draws, 0)
	}, state)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not sample %q", rv.name)
	}
	return value.FromTensor(out), nil
}

// density evaluates a log-prob or prob subgraph at v: symbolically into the
// expansion's graph when one is active, symbolically when v is already a node
// of some graph, eagerly otherwise.
func (rv *RandomVariable) density(opName string, v any,
	build func(vn *graph.Node, env distribution.Env) (*graph.Node, error)) (*value.Value, error) {

	val, err := value.Lift(v)
	if err != nil {
		return nil, errors.Wrapf(err, "Bad value for %s of %q", opName, rv.name)
	}

	if rv.b != nil && rv.b.exp != nil {
		node, err := val.NodeInGraph(rv.b.exp.g)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad value for %s of %q", opName, rv.name)
		}
		out, err := build(node, rv.b.exp)
		if err != nil {
			return nil, errors.Wrapf(err, "Could not build %s of %q", opName, rv.name)
		}
		return value.FromNode(out), nil
	}

	if val.IsSymbolic() {
		node := val.Node()
		out, err := build(node, rv.env(node.Graph()))
		if err != nil {
			return nil, errors.Wrapf(err, "Could not build %s of %q", opName, rv.name)
		}
		return value.FromNode(out), nil
	}

	t, err := val.Tensor()
	if err != nil {
		return nil, err
	}
	out, err := graph.ExecOnce(runtime.Backend(), func(vn *graph.Node) *graph.Node {
		n, buildErr := build(vn, rv.env(vn.Graph()))
		if buildErr != nil {
			panic(buildErr)
		}
		return n
	}, t)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not evaluate %s of %q", opName, rv.name)
	}
	return value.FromTensor(out), nil
}

// LogProb evaluates the log-density at v.
func (rv *RandomVariable) LogProb(v any) (*value.Value, error) {
	return rv.density("LogProb", v, func(vn *graph.Node, env distribution.Env) (*graph.Node, error) {
		return rv.dist.LogProbGraph(vn, env)
	})
}

// Prob evaluates the density at v.
func (rv *RandomVariable) Prob(v any) (*value.Value, error) {
	return rv.density("Prob", v, func(vn *graph.Node, env distribution.Env) (*graph.Node, error) {
		return rv.dist.ProbGraph(vn, env)
	})
}

// Stat evaluates an enumerated statistic or parameter of the distribution
// (mean, variance, loc, ...). Unknown names fail naming the attribute and the
// distribution kind.
func (rv *RandomVariable) Stat(name string) (*value.Value, error) {
	fn, err := rv.dist.Stat(name)
	if err != nil {
		return nil, err
	}

	out, err := graph.ExecOnce(runtime.Backend(), func(g *graph.Graph) *graph.Node {
		n, statErr := fn(g, rv.env(g))
		if statErr != nil {
			panic(statErr)
		}
		return n
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Could not evaluate %s of %q", name, rv.name)
	}
	return value.FromTensor(out), nil
}

// Operator delegation. Each applies the engine op to the realized value.

func (rv *RandomVariable) Add(other any) (*value.Value, error)    { return rv.realized.Add(other) }
func (rv *RandomVariable) Sub(other any) (*value.Value, error)    { return rv.realized.Sub(other) }
func (rv *RandomVariable) Mul(other any) (*value.Value, error)    { return rv.realized.Mul(other) }
func (rv *RandomVariable) Div(other any) (*value.Value, error)    { return rv.realized.Div(other) }
func (rv *RandomVariable) FloorDiv(other any) (*value.Value, error) {
	return rv.realized.FloorDiv(other)
}
func (rv *RandomVariable) Mod(other any) (*value.Value, error)    { return rv.realized.Mod(other) }
func (rv *RandomVariable) Pow(other any) (*value.Value, error)    { return rv.realized.Pow(other) }
func (rv *RandomVariable) MatMul(other any) (*value.Value, error) { return rv.realized.MatMul(other) }
func (rv *RandomVariable) Eq(other any) (*value.Value, error)     { return rv.realized.Eq(other) }
func (rv *RandomVariable) Ne(other any) (*value.Value, error)     { return rv.realized.Ne(other) }
func (rv *RandomVariable) Lt(other any) (*value.Value, error)     { return rv.realized.Lt(other) }
func (rv *RandomVariable) Le(other any) (*value.Value, error)     { return rv.realized.Le(other) }
func (rv *RandomVariable) Gt(other any) (*value.Value, error)     { return rv.realized.Gt(other) }
func (rv *RandomVariable) Ge(other any) (*value.Value, error)     { return rv.realized.Ge(other) }
func (rv *RandomVariable) And(other any) (*value.Value, error)    { return rv.realized.And(other) }
func (rv *RandomVariable) Or(other any) (*value.Value, error)     { return rv.realized.Or(other) }
func (rv *RandomVariable) Xor(other any) (*value.Value, error)    { return rv.realized.Xor(other) }
func (rv *RandomVariable) Neg() (*value.Value, error)             { return rv.realized.Neg() }
func (rv *RandomVariable) Abs() (*value.Value, error)             { return rv.realized.Abs() }
func (rv *RandomVariable) Not() (*value.Value, error)             { return rv.realized.Not() }
func (rv *RandomVariable) Index(i int) (*value.Value, error)      { return rv.realized.Index(i) }
func (rv *RandomVariable) Sum() (*value.Value, error)             { return rv.realized.Sum() }
