// Package distribution binds the probability-distribution kinds this layer
// exposes (Normal, Bernoulli, Categorical, ...) to the engine's graph ops.
//
// A Distribution never executes anything itself: it only knows how to emit
// the sampling and log-probability subgraphs for its kind into a graph the
// caller owns. Sampling uses the engine's RNG primitives and log-probs are
// closed-form compositions of engine ops, so all numerical work stays in the
// engine.
package distribution

import (
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// Env resolves a random-variable name to its realized node while a model is
// being expanded. Parameters that reference other random variables are looked
// up here.
type Env interface {
	Realized(name string) (*graph.Node, bool)
}

// StatFn builds the node for an enumerated statistic or parameter of a
// distribution in the given graph.
type StatFn func(g *graph.Graph, env Env) (*graph.Node, error)

// Distribution is one bound probability distribution with a fixed
// (batch, dim) shape and dtype.
//
// SampleGraph emits a sampling subgraph: it consumes an RNG state node and
// returns the updated state plus a [batch, dim] sample. LogProbGraph and
// ProbGraph emit the density subgraph for a value node of compatible shape,
// cast to the distribution's dtype. Stat looks up an enumerated capability
// (mean, stddev, variance, or a parameter name); unknown names fail naming
// the attribute and the distribution kind.
type Distribution interface {
	Kind() string
	DType() dtypes.DType
	Batch() int
	Dim() int

	SampleGraph(g *graph.Graph, rng *graph.Node, env Env) (newRng, sample *graph.Node, err error)
	LogProbGraph(value *graph.Node, env Env) (*graph.Node, error)
	ProbGraph(value *graph.Node, env Env) (*graph.Node, error)
	Stat(name string) (StatFn, error)

	// Adapt casts a value node to the distribution's dtype and broadcasts it
	// to the full [batch, dim] event shape.
	Adapt(value *graph.Node) *graph.Node
}

// Config carries the shared construction arguments of every kind.
type Config struct {
	// Batch is the leading (replicate) dimension; 0 or 1 mean a single batch.
	Batch int
	// Dim is the explicit event dimension; 0 means derive it from the
	// parameter lengths.
	Dim int
	// DType defaults to Float64 when unset.
	DType dtypes.DType
}

func (c Config) withDefaults() Config {
	if c.Batch < 1 {
		c.Batch = 1
	}
	if c.DType == dtypes.InvalidDType {
		c.DType = dtypes.Float64
	}
	return c
}

// base holds the identity shared by all kinds.
type base struct {
	kind  string
	dtype dtypes.DType
	batch int
	dim   int
}

func (b *base) Kind() string        { return b.kind }
func (b *base) DType() dtypes.DType { return b.dtype }
func (b *base) Batch() int          { return b.batch }
func (b *base) Dim() int            { return b.dim }

func (b *base) statNotImplemented(name string) error {
	return errors.Errorf("Property or method %q not implemented in %q", name, b.kind)
}

// resolveDim applies the parameter consistency rules shared by the
// location-scale style kinds: parameters must be scalars or vectors, two
// multi-element parameters must agree on length, and an explicit dim must
// agree with every multi-element parameter. The resulting event dimension is
// the largest of all lengths (or the explicit dim).
func resolveDim(explicitDim int, params ...namedParam) (int, error) {
	for _, p := range params {
		if p.param.Rank() > 1 {
			return 0, errors.Errorf("Parameter %s cannot be a multidimensional array", p.name)
		}
	}

	for i, a := range params {
		for _, b := range params[i+1:] {
			la, lb := a.param.Size(), b.param.Size()
			if la > 1 && lb > 1 && la != lb {
				return 0, errors.Errorf(
					"Parameters %s and %s lengths must be equal or 1 (got %d and %d)",
					a.name, b.name, la, lb)
			}
		}
	}

	dim := 1
	if explicitDim > 0 {
		dim = explicitDim
	}
	for _, p := range params {
		l := p.param.Size()
		if explicitDim > 0 && l > 1 && l != explicitDim {
			return 0, errors.Errorf(
				"Parameter %s length %d is not consistent with dim %d", p.name, l, explicitDim)
		}
		if l > dim {
			dim = l
		}
	}

	return dim, nil
}

type namedParam struct {
	name  string
	param Param
}

// broadcastTo expands a resolved parameter node to the full [batch, dim]
// event shape, converting to the distribution dtype.
func broadcastTo(n *graph.Node, dtype dtypes.DType, batch, dim int) *graph.Node {
	if n.DType() != dtype {
		n = graph.ConvertDType(n, dtype)
	}

	switch n.Rank() {
	case 0:
		n = graph.InsertAxes(n, 0, 0)
	case 1:
		n = graph.InsertAxes(n, 0)
	}

	return graph.BroadcastToDims(n, batch, dim)
}

// resolveParam resolves and broadcasts one parameter for a distribution.
func (b *base) resolveParam(g *graph.Graph, env Env, name string, p Param) (*graph.Node, error) {
	n, err := p.Node(g, env)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not resolve parameter %s of %s", name, b.kind)
	}
	return broadcastTo(n, b.dtype, b.batch, b.dim), nil
}

// castValue converts a value node to the distribution's dtype and broadcasts
// scalars/vectors up to the [batch, dim] event shape.
func (b *base) castValue(value *graph.Node) *graph.Node {
	return broadcastTo(value, b.dtype, b.batch, b.dim)
}

// Adapt is castValue for callers outside the package; it panics on engine
// errors like the other graph ops, so wrap it in exceptions.TryCatch.
func (b *base) Adapt(value *graph.Node) *graph.Node {
	return b.castValue(value)
}
