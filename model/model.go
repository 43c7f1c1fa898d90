package model

import (
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mlcontext "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
)

// Definition declares a model's variables and parameters on a Builder. A
// definition must be deterministic in structure: every run must register the
// same names in the same order, so the model can be re-run for expansion.
type Definition func(b *Builder) error

// Model wraps a definition together with its eagerly-built prior context.
type Model struct {
	def   Definition
	prior *Builder
}

// New runs the definition once on a fresh eager context, validating it and
// realizing a prior sample of every variable.
func New(def Definition) (*Model, error) {
	b := NewBuilder()
	if err := def(b); err != nil {
		return nil, errors.Wrap(err, "Model definition failed")
	}
	b.finalized = true
	return &Model{def: def, prior: b}, nil
}

// Variables returns the declared random variables in registration order.
func (m *Model) Variables() []*RandomVariable { return m.prior.Variables() }

// Parameters returns the declared learnable parameters in registration order.
func (m *Model) Parameters() []*Parameter { return m.prior.Parameters() }

// Lookup returns the declared variable or parameter with the given name.
func (m *Model) Lookup(name string) (any, bool) { return m.prior.Lookup(name) }

// Variable returns a declared random variable by name.
func (m *Model) Variable(name string) (*RandomVariable, bool) { return m.prior.Variable(name) }

// TopologicalOrder returns the declared variable names in dependency order.
func (m *Model) TopologicalOrder() ([]string, error) { return m.prior.TopologicalOrder() }

// Expansion is the result of re-running a model definition symbolically into
// one graph: each variable realized as a node (a sample or a substituted
// observation) plus the RNG state after all sampling ops.
type Expansion struct {
	b *Builder

	// Rng is the RNG state node after the last sampling op; chain it into
	// further expansions of the same graph.
	Rng *graph.Node
}

// Variables returns the expanded variables in registration order.
func (e *Expansion) Variables() []*RandomVariable { return e.b.Variables() }

// Variable returns an expanded variable by name.
func (e *Expansion) Variable(name string) (*RandomVariable, bool) { return e.b.Variable(name) }

// Parameters returns the expanded parameters in registration order.
func (e *Expansion) Parameters() []*Parameter { return e.b.Parameters() }

// Realized implements distribution.Env over the expansion's realized nodes.
func (e *Expansion) Realized(name string) (*graph.Node, bool) {
	return e.b.exp.Realized(name)
}

// ExpandOptions control one Expand run.
type ExpandOptions struct {
	// Subst maps variable names to nodes that replace sampling: those
	// variables are realized as observed at the given value.
	Subst map[string]*graph.Node
	// PlateSize overrides the declared replicate sizes of per-batch
	// variables; 0 keeps the declared sizes.
	PlateSize int
	// Context, when set, realizes parameters as its trainable variables
	// instead of constants.
	Context *mlcontext.Context
}

// Expand re-runs the definition into graph g, starting sampling from the rng
// state node. Variables named in opts.Subst take the provided value; all
// others sample symbolically, in declaration order, with parameter references
// resolved against the values realized so far.
func (m *Model) Expand(g *graph.Graph, rng *graph.Node, opts ExpandOptions) (*Expansion, error) {
	plate := opts.PlateSize
	if plate <= 0 {
		plate = m.DeclaredPlateSize()
	}

	b := NewBuilder()
	b.exp = &expansion{
		g:         g,
		rng:       rng,
		subst:     opts.Subst,
		realized:  make(map[string]*graph.Node),
		mlctx:     opts.Context,
		plateSize: plate,
	}

	if err := m.def(b); err != nil {
		return nil, errors.Wrap(err, "Model expansion failed")
	}
	b.finalized = true

	return &Expansion{b: b, Rng: b.exp.rng}, nil
}

// DeclaredPlateSize is the largest batch dimension among per-batch variables
// of the declared model (1 when there are none).
func (m *Model) DeclaredPlateSize() int {
	size := 1
	for _, rv := range m.prior.Variables() {
		if rv.perBatch && rv.Batch() > size {
			size = rv.Batch()
		}
	}
	return size
}

// Materialize re-runs the definition eagerly with the given parameter values
// substituted for the declared initial values. It is how fitted posteriors
// are turned back into concrete variables.
func (m *Model) Materialize(params map[string]*tensors.Tensor) (*Builder, error) {
	b := NewBuilder()
	b.paramOverride = params
	if err := m.def(b); err != nil {
		return nil, errors.Wrap(err, "Model materialization failed")
	}
	b.finalized = true
	return b, nil
}
