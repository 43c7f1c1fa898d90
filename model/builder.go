// Package model is the declaration layer: random variables, learnable
// parameters and replicate (plate) scopes are registered on an explicit
// Builder, and a Model re-runs its definition to expand the same declarations
// symbolically into a caller-owned graph.
package model

import (
	"fmt"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mlcontext "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"

	"github.com/1asingh/InferPy/distribution"
	"github.com/1asingh/InferPy/runtime"
	"github.com/1asingh/InferPy/value"
)

var (
	autoNameMu sync.Mutex
	autoNameN  int
)

func nextAutoName() string {
	autoNameMu.Lock()
	defer autoNameMu.Unlock()
	n := fmt.Sprintf("randvar_%d", autoNameN)
	autoNameN++
	return n
}

// ResetNameCounter restarts auto-generated variable names at randvar_0.
// Intended for tests.
func ResetNameCounter() {
	autoNameMu.Lock()
	defer autoNameMu.Unlock()
	autoNameN = 0
}

// Builder is one model-building context. Variables and parameters register
// here as they are constructed; names must be unique across both namespaces.
// A Builder is single-goroutine and is finalized once its definition returns.
type Builder struct {
	vars       map[string]*RandomVariable
	params     map[string]*Parameter
	varOrder   []string
	paramOrder []string
	deps       map[string][]string
	plates     []int
	finalized  bool

	// exp is non-nil while a Model.Expand run owns this builder; it switches
	// registration from eager sampling to symbolic realization.
	exp *expansion

	// paramOverride substitutes initial parameter values, used to rebuild a
	// model from fitted parameters.
	paramOverride map[string]*tensors.Tensor
}

type expansion struct {
	g         *graph.Graph
	rng       *graph.Node
	subst     map[string]*graph.Node
	realized  map[string]*graph.Node
	mlctx     *mlcontext.Context
	plateSize int
}

// Realized implements distribution.Env over the variables realized so far in
// this expansion.
func (e *expansion) Realized(name string) (*graph.Node, bool) {
	n, ok := e.realized[name]
	return n, ok
}

// NewBuilder returns an empty model-building context.
func NewBuilder() *Builder {
	return &Builder{
		vars:   make(map[string]*RandomVariable),
		params: make(map[string]*Parameter),
		deps:   make(map[string][]string),
	}
}

// Option adjusts the construction of one random variable.
type Option func(*varOptions)

type varOptions struct {
	name  string
	dim   int
	dtype dtypes.DType
}

// WithName sets the variable name instead of the next randvar_N.
func WithName(name string) Option {
	return func(o *varOptions) { o.name = name }
}

// WithDim sets an explicit event dimension.
func WithDim(dim int) Option {
	return func(o *varOptions) { o.dim = dim }
}

// WithDType overrides the default Float64 dtype.
func WithDType(dt dtypes.DType) Option {
	return func(o *varOptions) { o.dtype = dt }
}

// PlateSize is the product of the replicate scopes currently open (1 outside
// any scope).
func (b *Builder) PlateSize() int {
	size := 1
	for _, p := range b.plates {
		size *= p
	}
	return size
}

// Replicate opens a replicate scope of the given size around fn. Variables
// declared inside get the scope product as their leading batch dimension and
// are flagged per-batch. Scopes nest and multiply.
func (b *Builder) Replicate(size int, fn func(b *Builder) error) error {
	if size < 1 {
		return errors.Errorf("Replicate size must be >= 1, got %d", size)
	}
	if b.finalized {
		return errors.Errorf("Cannot open a replicate scope on a finalized model context")
	}

	b.plates = append(b.plates, size)
	err := fn(b)
	b.plates = b.plates[:len(b.plates)-1]

	return err
}

// batchForNew is the leading dimension for a variable declared right now. An
// expansion overrides the declared plate product with its own size.
func (b *Builder) batchForNew() int {
	if len(b.plates) == 0 {
		return 1
	}
	if b.exp != nil {
		return b.exp.plateSize
	}
	return b.PlateSize()
}

// Lookup returns the registered variable or parameter with the given name.
func (b *Builder) Lookup(name string) (any, bool) {
	if rv, ok := b.vars[name]; ok {
		return rv, true
	}
	if p, ok := b.params[name]; ok {
		return p, true
	}
	return nil, false
}

// Variable returns a registered random variable by name.
func (b *Builder) Variable(name string) (*RandomVariable, bool) {
	rv, ok := b.vars[name]
	return rv, ok
}

// Variables returns all random variables in registration order.
func (b *Builder) Variables() []*RandomVariable {
	out := make([]*RandomVariable, 0, len(b.varOrder))
	for _, name := range b.varOrder {
		out = append(out, b.vars[name])
	}
	return out
}

// Parameters returns all learnable parameters in registration order.
func (b *Builder) Parameters() []*Parameter {
	out := make([]*Parameter, 0, len(b.paramOrder))
	for _, name := range b.paramOrder {
		out = append(out, b.params[name])
	}
	return out
}

// TopologicalOrder returns the variable names so that every variable comes
// after the variables its parameters reference.
func (b *Builder) TopologicalOrder() ([]string, error) {
	indegree := make(map[string]int, len(b.varOrder))
	children := make(map[string][]string, len(b.varOrder))
	for _, name := range b.varOrder {
		indegree[name] = 0
	}
	for _, name := range b.varOrder {
		for _, parent := range b.deps[name] {
			if _, ok := indegree[parent]; !ok {
				continue // parameter references don't order variables
			}
			indegree[name]++
			children[parent] = append(children[parent], name)
		}
	}

	var ready []string
	for _, name := range b.varOrder {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(b.varOrder))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, child := range children[name] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(order) != len(b.varOrder) {
		return nil, errors.Errorf(
			"Cyclic dependency among variables: ordered %d of %d", len(order), len(b.varOrder))
	}
	return order, nil
}

// checkName enforces name uniqueness across variables and parameters.
func (b *Builder) checkName(name string) error {
	if b.finalized {
		return errors.Errorf("Cannot register %q on a finalized model context", name)
	}
	if _, ok := b.vars[name]; ok {
		return errors.Errorf("Duplicate name %q in model context", name)
	}
	if _, ok := b.params[name]; ok {
		return errors.Errorf("Duplicate name %q in model context", name)
	}
	return nil
}

// register adds a new variable, records its dependencies, and realizes it:
// eagerly with a one-off engine run, or symbolically when an expansion is in
// progress.
func (b *Builder) register(rv *RandomVariable, parents []string) error {
	if err := b.checkName(rv.name); err != nil {
		return err
	}

	b.vars[rv.name] = rv
	b.varOrder = append(b.varOrder, rv.name)
	b.deps[rv.name] = parents

	var err error
	switch {
	case b.exp != nil:
		err = b.realizeSymbolic(rv)
	case runtime.DefaultMode() == runtime.Eager:
		err = b.realizeEager(rv)
	default:
		// Deferred mode: no realization until the model is expanded into a
		// graph. Operator delegation is unavailable until then.
	}
	if err != nil {
		return errors.Wrapf(err, "Could not realize variable %q", rv.name)
	}
	return nil
}

func (b *Builder) realizeEager(rv *RandomVariable) error {
	state, err := runtime.NextRNGState()
	if err != nil {
		return err
	}

	out, err := graph.ExecOnce(runtime.Backend(), func(rng *graph.Node) *graph.Node {
		_, sample, sampleErr := rv.dist.SampleGraph(rng.Graph(), rng, &eagerEnv{b: b, g: rng.Graph()})
		if sampleErr != nil {
			panic(sampleErr)
		}
		return sample
	}, state)
	if err != nil {
		return err
	}

	rv.realized = value.FromTensor(out)
	return nil
}

func (b *Builder) realizeSymbolic(rv *RandomVariable) error {
	e := b.exp

	if observed, ok := e.subst[rv.name]; ok {
		var adapted *graph.Node
		err := exceptions.TryCatch[error](func() {
			adapted = rv.dist.Adapt(observed)
		})
		if err != nil {
			return errors.Wrapf(err, "Observed value for %q does not fit shape [%d, %d]",
				rv.name, rv.dist.Batch(), rv.dist.Dim())
		}
		rv.observed = true
		rv.realized = value.FromNode(adapted)
		e.realized[rv.name] = adapted
		return nil
	}

	newRng, sample, err := rv.dist.SampleGraph(e.g, e.rng, e)
	if err != nil {
		return err
	}
	e.rng = newRng
	rv.realized = value.FromNode(sample)
	e.realized[rv.name] = sample
	return nil
}

// eagerEnv resolves variable references against the builder's eagerly
// realized values, emitting them as constants of the target graph.
type eagerEnv struct {
	b *Builder
	g *graph.Graph
}

func (e *eagerEnv) Realized(name string) (*graph.Node, bool) {
	rv, ok := e.b.vars[name]
	if !ok || rv.realized == nil || rv.realized.IsSymbolic() {
		return nil, false
	}
	t, err := rv.realized.Tensor()
	if err != nil {
		return nil, false
	}

	var n *graph.Node
	if exceptions.TryCatch[error](func() { n = graph.ConstTensor(e.g, t) }) != nil {
		return nil, false
	}
	return n, true
}

// coerce converts one construction argument into a distribution parameter and
// collects the names of any random variables it references.
func (b *Builder) coerce(arg any) (distribution.Param, []string, error) {
	p, err := distribution.AsParam(arg)
	if err != nil {
		return nil, nil, err
	}

	var refs []string
	collectRefs(arg, &refs)
	return p, refs, nil
}

func collectRefs(arg any, refs *[]string) {
	switch v := arg.(type) {
	case distribution.Reference:
		*refs = append(*refs, v.RefName())
	case []any:
		for _, e := range v {
			collectRefs(e, refs)
		}
	}
}

func (b *Builder) newVariable(build func(cfg distribution.Config) (distribution.Distribution, []string, error), opts []Option) (*RandomVariable, error) {
	var o varOptions
	for _, opt := range opts {
		opt(&o)
	}

	name := o.name
	if name == "" {
		name = nextAutoName()
	}
	if err := b.checkName(name); err != nil {
		return nil, err
	}

	cfg := distribution.Config{
		Batch: b.batchForNew(),
		Dim:   o.dim,
		DType: o.dtype,
	}
	d, parents, err := build(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not construct variable %q", name)
	}

	rv := &RandomVariable{
		b:        b,
		name:     name,
		dist:     d,
		perBatch: len(b.plates) > 0,
	}
	if err := b.register(rv, parents); err != nil {
		return nil, err
	}
	return rv, nil
}

// Normal declares a Normal(loc, scale) random variable.
func (b *Builder) Normal(loc, scale any, opts ...Option) (*RandomVariable, error) {
	return b.newVariable(func(cfg distribution.Config) (distribution.Distribution, []string, error) {
		locP, locRefs, err := b.coerce(loc)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Bad loc")
		}
		scaleP, scaleRefs, err := b.coerce(scale)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Bad scale")
		}
		d, err := distribution.NewNormal(locP, scaleP, cfg)
		return d, append(locRefs, scaleRefs...), err
	}, opts)
}

// Bernoulli declares a Bernoulli(probs) random variable.
func (b *Builder) Bernoulli(probs any, opts ...Option) (*RandomVariable, error) {
	return b.newVariable(func(cfg distribution.Config) (distribution.Distribution, []string, error) {
		p, refs, err := b.coerce(probs)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Bad probs")
		}
		d, err := distribution.NewBernoulli(p, cfg)
		return d, refs, err
	}, opts)
}

// Categorical declares a Categorical random variable over logits.
func (b *Builder) Categorical(logits any, opts ...Option) (*RandomVariable, error) {
	return b.newVariable(func(cfg distribution.Config) (distribution.Distribution, []string, error) {
		p, refs, err := b.coerce(logits)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Bad logits")
		}
		d, err := distribution.NewCategorical(p, cfg)
		return d, refs, err
	}, opts)
}

// CategoricalProbs declares a Categorical random variable over probabilities.
func (b *Builder) CategoricalProbs(probs any, opts ...Option) (*RandomVariable, error) {
	return b.newVariable(func(cfg distribution.Config) (distribution.Distribution, []string, error) {
		p, refs, err := b.coerce(probs)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Bad probs")
		}
		d, err := distribution.NewCategoricalProbs(p, cfg)
		return d, refs, err
	}, opts)
}

// Uniform declares a Uniform(low, high) random variable.
func (b *Builder) Uniform(low, high any, opts ...Option) (*RandomVariable, error) {
	return b.newVariable(func(cfg distribution.Config) (distribution.Distribution, []string, error) {
		lowP, lowRefs, err := b.coerce(low)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Bad low")
		}
		highP, highRefs, err := b.coerce(high)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Bad high")
		}
		d, err := distribution.NewUniform(lowP, highP, cfg)
		return d, append(lowRefs, highRefs...), err
	}, opts)
}

// Exponential declares an Exponential(rate) random variable.
func (b *Builder) Exponential(rate any, opts ...Option) (*RandomVariable, error) {
	return b.newVariable(func(cfg distribution.Config) (distribution.Distribution, []string, error) {
		p, refs, err := b.coerce(rate)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Bad rate")
		}
		d, err := distribution.NewExponential(p, cfg)
		return d, refs, err
	}, opts)
}

// Laplace declares a Laplace(loc, scale) random variable.
func (b *Builder) Laplace(loc, scale any, opts ...Option) (*RandomVariable, error) {
	return b.newVariable(func(cfg distribution.Config) (distribution.Distribution, []string, error) {
		locP, locRefs, err := b.coerce(loc)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Bad loc")
		}
		scaleP, scaleRefs, err := b.coerce(scale)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Bad scale")
		}
		d, err := distribution.NewLaplace(locP, scaleP, cfg)
		return d, append(locRefs, scaleRefs...), err
	}, opts)
}
