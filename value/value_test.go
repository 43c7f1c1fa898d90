package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eagerData(t *testing.T, v *Value) any {
	tensor, err := v.Tensor()
	require.NoError(t, err)
	return tensor.Value()
}

func TestConstAndLift(t *testing.T) {
	assert := assert.New(t)

	v, err := Const([]float64{1, 2, 3})
	assert.NoError(err)
	assert.False(v.IsSymbolic())
	assert.Equal([]int{3}, v.Shape().Dimensions)

	// Lift is idempotent for values
	lv, err := Lift(v)
	assert.NoError(err)
	assert.Equal(v, lv)

	// and works on raw Go values
	sv, err := Lift(2.5)
	assert.NoError(err)
	assert.Equal(2.5, eagerData(t, sv))
}

func TestArithmeticOps(t *testing.T) {
	assert := assert.New(t)

	x, err := Const([]float64{1, 2, 3})
	assert.NoError(err)
	y, err := Const([]float64{3, 2, 1})
	assert.NoError(err)

	cases := []struct {
		name string
		op   func() (*Value, error)
		want []float64
	}{
		{"Add", func() (*Value, error) { return x.Add(y) }, []float64{4, 4, 4}},
		{"Sub", func() (*Value, error) { return x.Sub(y) }, []float64{-2, 0, 2}},
		{"Mul", func() (*Value, error) { return x.Mul(y) }, []float64{3, 4, 3}},
		{"Div", func() (*Value, error) { return x.Div(2.0) }, []float64{0.5, 1, 1.5}},
		{"Pow", func() (*Value, error) { return x.Pow(2.0) }, []float64{1, 4, 9}},
		{"FloorDiv", func() (*Value, error) { return x.FloorDiv(2.0) }, []float64{0, 1, 1}},
		{"Mod", func() (*Value, error) { return x.Mod(2.0) }, []float64{1, 0, 1}},
	}

	for _, c := range cases {
		got, err := c.op()
		assert.NoError(err, c.name)
		assert.Equal(c.want, eagerData(t, got), c.name)
	}
}

func TestUnaryOps(t *testing.T) {
	assert := assert.New(t)

	x, err := Const([]float64{-1, 2, -3})
	assert.NoError(err)

	neg, err := x.Neg()
	assert.NoError(err)
	assert.Equal([]float64{1, -2, 3}, eagerData(t, neg))

	abs, err := x.Abs()
	assert.NoError(err)
	assert.Equal([]float64{1, 2, 3}, eagerData(t, abs))

	sum, err := x.Sum()
	assert.NoError(err)
	assert.Equal(-2.0, eagerData(t, sum))
}

func TestComparisonsAndLogical(t *testing.T) {
	assert := assert.New(t)

	x, err := Const([]float64{1, 2, 3})
	assert.NoError(err)

	lt, err := x.Lt(2.0)
	assert.NoError(err)
	assert.Equal([]bool{true, false, false}, eagerData(t, lt))

	ge, err := x.Ge(2.0)
	assert.NoError(err)
	assert.Equal([]bool{false, true, true}, eagerData(t, ge))

	both, err := lt.Or(ge)
	assert.NoError(err)
	assert.Equal([]bool{true, true, true}, eagerData(t, both))

	neither, err := lt.And(ge)
	assert.NoError(err)
	assert.Equal([]bool{false, false, false}, eagerData(t, neither))

	not, err := lt.Not()
	assert.NoError(err)
	assert.Equal([]bool{false, true, true}, eagerData(t, not))
}

func TestMatMul(t *testing.T) {
	assert := assert.New(t)

	a, err := Const([][]float64{{1, 2}, {3, 4}})
	assert.NoError(err)
	b, err := Const([][]float64{{1, 0}, {0, 1}})
	assert.NoError(err)

	prod, err := a.MatMul(b)
	assert.NoError(err)
	assert.Equal([][]float64{{1, 2}, {3, 4}}, eagerData(t, prod))
}

func TestIndex(t *testing.T) {
	assert := assert.New(t)

	x, err := Const([]float64{10, 20, 30})
	assert.NoError(err)

	elem, err := x.Index(1)
	assert.NoError(err)
	assert.Equal(20.0, eagerData(t, elem))

	_, err = x.Index(3)
	assert.Error(err)

	scalar, err := Const(1.0)
	assert.NoError(err)
	_, err = scalar.Index(0)
	assert.Error(err)
}

func TestMixedDTypes(t *testing.T) {
	assert := assert.New(t)

	x, err := Const([]float64{1, 2, 3})
	assert.NoError(err)

	// int operand converted to the left operand's dtype
	sum, err := x.Add(1)
	assert.NoError(err)
	assert.Equal([]float64{2, 3, 4}, eagerData(t, sum))
}
