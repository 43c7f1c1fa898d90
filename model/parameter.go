package model

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"

	"github.com/1asingh/InferPy/value"
)

// Parameter is a named learnable quantity registered on a Builder. Outside an
// expansion it holds its initial (or overridden) value; inside an expansion
// backed by an engine context it resolves to that context's trainable
// variable, so optimizers can update it.
type Parameter struct {
	name string
	init *tensors.Tensor
	val  *value.Value
}

// Name returns the parameter name.
func (p *Parameter) Name() string { return p.name }

// Init returns the initial value the parameter was declared with.
func (p *Parameter) Init() *tensors.Tensor { return p.init }

// Unwrap exposes the parameter's current value, so it can be used directly in
// arithmetic and as a distribution parameter.
func (p *Parameter) Unwrap() *value.Value { return p.val }

// Param declares a learnable parameter with the given initial value. The name
// shares the uniqueness namespace with random variables.
func (b *Builder) Param(name string, init any) (*Parameter, error) {
	if err := b.checkName(name); err != nil {
		return nil, err
	}

	var t *tensors.Tensor
	err := exceptions.TryCatch[error](func() {
		if tt, ok := init.(*tensors.Tensor); ok {
			t = tt
		} else {
			t = tensors.FromAnyValue(init)
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Bad initial value for parameter %q", name)
	}
	if override, ok := b.paramOverride[name]; ok {
		t = override
	}

	p := &Parameter{name: name, init: t}
	if b.exp != nil {
		if err := b.realizeParamSymbolic(p); err != nil {
			return nil, err
		}
	} else {
		p.val = value.FromTensor(t)
	}

	b.params[name] = p
	b.paramOrder = append(b.paramOrder, name)
	return p, nil
}

func (b *Builder) realizeParamSymbolic(p *Parameter) error {
	e := b.exp

	var node *graph.Node
	err := exceptions.TryCatch[error](func() {
		if e.mlctx != nil {
			node = e.mlctx.VariableWithValue(p.name, p.init).ValueGraph(e.g)
		} else {
			node = graph.ConstTensor(e.g, p.init)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "Could not realize parameter %q", p.name)
	}

	p.val = value.FromNode(node)
	return nil
}
