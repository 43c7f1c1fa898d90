// Package value implements the deterministic result kind of this layer.
//
// Applying an operator to random variables does not create a new random
// variable: it creates a derived deterministic value in the engine's own
// representation. A Value is exactly that: either a tensor already
// materialized by the engine (eager) or a node in a computation graph still
// being built (symbolic). Which one you get depends on the evaluation mode in
// effect when the operation ran.
package value

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"

	"github.com/1asingh/InferPy/runtime"
)

// Value is a derived deterministic value: a materialized tensor or a symbolic
// graph node, never both.
type Value struct {
	tensor *tensors.Tensor
	node   *graph.Node
}

// Unwrapper is implemented by wrappers (random variables) whose realized
// value can stand in for a Value operand.
type Unwrapper interface {
	Unwrap() *Value
}

// FromTensor wraps a materialized engine tensor.
func FromTensor(t *tensors.Tensor) *Value {
	return &Value{tensor: t}
}

// FromNode wraps a symbolic node of a graph under construction.
func FromNode(n *graph.Node) *Value {
	return &Value{node: n}
}

// Const converts a Go scalar or (nested) slice into an eager Value via the
// engine's tensor conversion.
func Const(x any) (*Value, error) {
	var t *tensors.Tensor
	err := exceptions.TryCatch[error](func() {
		t = tensors.FromAnyValue(x)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Could not convert %T to a tensor", x)
	}
	return FromTensor(t), nil
}

// Lift coerces an operand into a Value: a Value is returned as is, a wrapper
// is unwrapped, engine tensors/nodes are wrapped directly, and anything else
// goes through Const.
func Lift(x any) (*Value, error) {
	switch v := x.(type) {
	case *Value:
		if v == nil {
			return nil, errors.Errorf("Nil value operand")
		}
		return v, nil
	case Unwrapper:
		u := v.Unwrap()
		if u == nil {
			return nil, errors.Errorf("Wrapped operand has no realized value")
		}
		return u, nil
	case *tensors.Tensor:
		return FromTensor(v), nil
	case *graph.Node:
		return FromNode(v), nil
	default:
		return Const(x)
	}
}

// IsSymbolic reports whether the value is a graph node rather than a
// materialized tensor.
func (v *Value) IsSymbolic() bool {
	return v.node != nil
}

// Node returns the symbolic node, or nil for a materialized value.
func (v *Value) Node() *graph.Node {
	return v.node
}

// Tensor returns the materialized tensor. It fails for symbolic values: a
// node mid-graph cannot be evaluated in isolation, only by executing the
// graph that owns it.
func (v *Value) Tensor() (*tensors.Tensor, error) {
	if v.tensor == nil {
		return nil, errors.Errorf("Value is symbolic (deferred); execute its graph to materialize it")
	}
	return v.tensor, nil
}

// Shape returns the engine shape of the value.
func (v *Value) Shape() shapes.Shape {
	if v.node != nil {
		return v.node.Shape()
	}
	return v.tensor.Shape()
}

// DType returns the numeric type of the value.
func (v *Value) DType() dtypes.DType {
	return v.Shape().DType
}

// NodeInGraph returns this value as a node of g: symbolic values must already
// belong to g, materialized ones are lifted in as constants.
func (v *Value) NodeInGraph(g *graph.Graph) (node *graph.Node, err error) {
	if v.node != nil {
		if v.node.Graph() != g {
			return nil, errors.Errorf("Symbolic value belongs to a different graph")
		}
		return v.node, nil
	}

	err = exceptions.TryCatch[error](func() {
		node = graph.ConstTensor(g, v.tensor)
	})
	if err != nil {
		return nil, errors.Wrap(err, "Could not lift tensor into graph")
	}
	return node, nil
}

// apply1 runs a unary engine op, eagerly or symbolically depending on the
// operand.
func apply1(opName string, fn func(x *graph.Node) *graph.Node, v *Value) (*Value, error) {
	if v == nil {
		return nil, errors.Errorf("No value to apply %s to", opName)
	}
	if v.IsSymbolic() {
		var node *graph.Node
		err := exceptions.TryCatch[error](func() {
			node = fn(v.node)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "Op %s failed", opName)
		}
		return FromNode(node), nil
	}

	t, err := graph.ExecOnce(runtime.Backend(), func(x *graph.Node) *graph.Node {
		return fn(x)
	}, v.tensor)
	if err != nil {
		return nil, errors.Wrapf(err, "Op %s failed", opName)
	}
	return FromTensor(t), nil
}

// apply2 runs a binary engine op. If either operand is symbolic the result is
// symbolic in that operand's graph; otherwise the op is executed immediately.
// The right operand is converted to the left's dtype when they disagree.
func apply2(opName string, fn func(x, y *graph.Node) *graph.Node, a, b *Value) (*Value, error) {
	cast := func(x, y *graph.Node) *graph.Node {
		if y.DType() != x.DType() {
			y = graph.ConvertDType(y, x.DType())
		}
		return fn(x, y)
	}

	if a.IsSymbolic() || b.IsSymbolic() {
		g := a.node
		if g == nil {
			g = b.node
		}

		var node *graph.Node
		err := exceptions.TryCatch[error](func() {
			x := mustNodeInGraph(a, g.Graph())
			y := mustNodeInGraph(b, g.Graph())
			node = cast(x, y)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "Op %s failed", opName)
		}
		return FromNode(node), nil
	}

	t, err := graph.ExecOnce(runtime.Backend(), func(x, y *graph.Node) *graph.Node {
		return cast(x, y)
	}, a.tensor, b.tensor)
	if err != nil {
		return nil, errors.Wrapf(err, "Op %s failed", opName)
	}
	return FromTensor(t), nil
}

// mustNodeInGraph is the panicking twin of NodeInGraph for use inside
// TryCatch sections.
func mustNodeInGraph(v *Value, g *graph.Graph) *graph.Node {
	n, err := v.NodeInGraph(g)
	if err != nil {
		panic(err)
	}
	return n
}
