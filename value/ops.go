package value

import (
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/pkg/errors"
)

// The operator surface. Each operator lifts its operand, delegates to the
// engine's corresponding op, and returns a deterministic Value rather than a
// new random variable.

func (v *Value) binary(opName string, other any, fn func(x, y *graph.Node) *graph.Node) (*Value, error) {
	if v == nil {
		return nil, errors.Errorf("No value to apply %s to", opName)
	}
	o, err := Lift(other)
	if err != nil {
		return nil, errors.Wrapf(err, "Bad operand for %s", opName)
	}
	return apply2(opName, fn, v, o)
}

// Add returns v + other.
func (v *Value) Add(other any) (*Value, error) {
	return v.binary("Add", other, graph.Add)
}

// Sub returns v - other.
func (v *Value) Sub(other any) (*Value, error) {
	return v.binary("Sub", other, graph.Sub)
}

// Mul returns v * other, element-wise.
func (v *Value) Mul(other any) (*Value, error) {
	return v.binary("Mul", other, graph.Mul)
}

// Div returns v / other, element-wise.
func (v *Value) Div(other any) (*Value, error) {
	return v.binary("Div", other, graph.Div)
}

// FloorDiv returns the floor of v / other.
func (v *Value) FloorDiv(other any) (*Value, error) {
	return v.binary("FloorDiv", other, func(x, y *graph.Node) *graph.Node {
		return graph.Floor(graph.Div(x, y))
	})
}

// Mod returns the element-wise remainder of v / other.
func (v *Value) Mod(other any) (*Value, error) {
	return v.binary("Mod", other, graph.Mod)
}

// Pow returns v raised to other, element-wise.
func (v *Value) Pow(other any) (*Value, error) {
	return v.binary("Pow", other, graph.Pow)
}

// MatMul returns the matrix product of v and other.
func (v *Value) MatMul(other any) (*Value, error) {
	return v.binary("MatMul", other, graph.MatMul)
}

// Eq returns the element-wise comparison v == other.
func (v *Value) Eq(other any) (*Value, error) {
	return v.binary("Eq", other, graph.Equal)
}

// Ne returns the element-wise comparison v != other.
func (v *Value) Ne(other any) (*Value, error) {
	return v.binary("Ne", other, graph.NotEqual)
}

// Lt returns the element-wise comparison v < other.
func (v *Value) Lt(other any) (*Value, error) {
	return v.binary("Lt", other, graph.LessThan)
}

// Le returns the element-wise comparison v <= other.
func (v *Value) Le(other any) (*Value, error) {
	return v.binary("Le", other, graph.LessOrEqual)
}

// Gt returns the element-wise comparison v > other.
func (v *Value) Gt(other any) (*Value, error) {
	return v.binary("Gt", other, graph.GreaterThan)
}

// Ge returns the element-wise comparison v >= other.
func (v *Value) Ge(other any) (*Value, error) {
	return v.binary("Ge", other, graph.GreaterOrEqual)
}

// And returns the element-wise logical conjunction of boolean values.
func (v *Value) And(other any) (*Value, error) {
	return v.binary("And", other, graph.LogicalAnd)
}

// Or returns the element-wise logical disjunction of boolean values.
func (v *Value) Or(other any) (*Value, error) {
	return v.binary("Or", other, graph.LogicalOr)
}

// Xor returns the element-wise exclusive-or of boolean values.
func (v *Value) Xor(other any) (*Value, error) {
	return v.binary("Xor", other, graph.LogicalXor)
}

// Neg returns -v.
func (v *Value) Neg() (*Value, error) {
	return apply1("Neg", graph.Neg, v)
}

// Abs returns |v|.
func (v *Value) Abs() (*Value, error) {
	return apply1("Abs", graph.Abs, v)
}

// Not returns the element-wise logical negation of a boolean value.
func (v *Value) Not() (*Value, error) {
	return apply1("Not", graph.LogicalNot, v)
}

// Index selects element i along the leading axis, dropping that axis.
func (v *Value) Index(i int) (*Value, error) {
	if v == nil {
		return nil, errors.Errorf("No value to index")
	}
	dims := v.Shape().Dimensions
	if len(dims) == 0 {
		return nil, errors.Errorf("Cannot index a scalar value")
	}
	if i < 0 || i >= dims[0] {
		return nil, errors.Errorf("Index %d out of range for leading dimension %d", i, dims[0])
	}

	return apply1("Index", func(x *graph.Node) *graph.Node {
		return graph.Squeeze(graph.SliceAxis(x, 0, graph.AxisElem(i)), 0)
	}, v)
}

// Sum reduces the value to a scalar sum over all elements.
func (v *Value) Sum() (*Value, error) {
	return apply1("Sum", graph.ReduceAllSum, v)
}
