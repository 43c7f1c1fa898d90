package distribution

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"

	"github.com/1asingh/InferPy/value"
)

// Param is one distribution parameter, resolvable into a node of whatever
// graph a distribution is being expanded in. Constants resolve to constant
// nodes, references resolve through the expansion Env, and ordered sequences
// are stacked into a single tensor.
type Param interface {
	// Node resolves the parameter in graph g.
	Node(g *graph.Graph, env Env) (*graph.Node, error)
	// Size is the number of elements (1 for scalars).
	Size() int
	// Rank is the number of axes (0 for scalars).
	Rank() int
}

// Reference is implemented by random variables so they can serve as
// parameters of other distributions; the actual value is resolved through the
// Env active at expansion time.
type Reference interface {
	RefName() string
	RefDim() int
}

// AsParam coerces a construction argument into a Param: numbers and slices
// become constants, random variables become references, derived values are
// used symbolically or as constants, and []any sequences are stacked
// (recursively).
func AsParam(x any) (Param, error) {
	switch v := x.(type) {
	case Param:
		return v, nil
	case Reference:
		return RefParam(v), nil
	case *value.Value:
		return ValueParam(v), nil
	case value.Unwrapper:
		return ValueParam(v.Unwrap()), nil
	case []any:
		elems := make([]Param, len(v))
		for i, e := range v {
			p, err := AsParam(e)
			if err != nil {
				return nil, errors.Wrapf(err, "Bad sequence element %d", i)
			}
			elems[i] = p
		}
		return ListParam(elems), nil
	default:
		var t *tensors.Tensor
		err := exceptions.TryCatch[error](func() {
			if tt, ok := x.(*tensors.Tensor); ok {
				t = tt
			} else {
				t = tensors.FromAnyValue(x)
			}
		})
		if err != nil {
			return nil, errors.Wrapf(err, "Cannot use %T as a distribution parameter", x)
		}
		return ConstParam(t), nil
	}
}

// ConstParam wraps a materialized tensor as a parameter.
func ConstParam(t *tensors.Tensor) Param {
	return constParam{t}
}

type constParam struct {
	t *tensors.Tensor
}

func (p constParam) Node(g *graph.Graph, _ Env) (node *graph.Node, err error) {
	err = exceptions.TryCatch[error](func() {
		node = graph.ConstTensor(g, p.t)
	})
	return
}

func (p constParam) Size() int { return p.t.Shape().Size() }
func (p constParam) Rank() int { return p.t.Shape().Rank() }

// ValueParam wraps a derived deterministic value as a parameter.
func ValueParam(v *value.Value) Param {
	return valueParam{v}
}

type valueParam struct {
	v *value.Value
}

func (p valueParam) Node(g *graph.Graph, _ Env) (*graph.Node, error) {
	return p.v.NodeInGraph(g)
}

func (p valueParam) Size() int { return p.v.Shape().Size() }
func (p valueParam) Rank() int { return p.v.Shape().Rank() }

// RefParam wraps a reference to another random variable; its realized value
// is looked up in the expansion Env.
func RefParam(r Reference) Param {
	return refParam{r}
}

type refParam struct {
	r Reference
}

func (p refParam) Node(_ *graph.Graph, env Env) (*graph.Node, error) {
	if env == nil {
		return nil, errors.Errorf("Unresolved reference to variable %q (no expansion in progress)", p.r.RefName())
	}
	n, ok := env.Realized(p.r.RefName())
	if !ok {
		return nil, errors.Errorf("Variable %q referenced before it was realized", p.r.RefName())
	}
	return n, nil
}

func (p refParam) Size() int { return p.r.RefDim() }
func (p refParam) Rank() int {
	if p.r.RefDim() > 1 {
		return 1
	}
	return 0
}

// ListParam stacks an ordered sequence of parameters into a single tensor
// along a new leading axis.
func ListParam(elems []Param) Param {
	return listParam{elems}
}

type listParam struct {
	elems []Param
}

func (p listParam) Node(g *graph.Graph, env Env) (node *graph.Node, err error) {
	nodes := make([]*graph.Node, len(p.elems))
	for i, e := range p.elems {
		n, err := e.Node(g, env)
		if err != nil {
			return nil, errors.Wrapf(err, "Could not resolve sequence element %d", i)
		}
		nodes[i] = n
	}

	err = exceptions.TryCatch[error](func() {
		for i, n := range nodes {
			// References carry a [batch, dim] event shape; collapse
			// single-element ones so scalars and variables can be mixed in
			// one sequence.
			if n.Shape().Size() == 1 && n.Rank() > 0 {
				n = graph.Reshape(n)
			}
			if n.DType() != nodes[0].DType() {
				n = graph.ConvertDType(n, nodes[0].DType())
			}
			nodes[i] = n
		}
		node = graph.Stack(nodes, 0)
	})
	if err != nil {
		return nil, errors.Wrap(err, "Could not stack parameter sequence")
	}
	return node, nil
}

func (p listParam) Size() int { return len(p.elems) }
func (p listParam) Rank() int { return 1 }
