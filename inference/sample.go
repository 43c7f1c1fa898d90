package inference

import (
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"

	"github.com/1asingh/InferPy/model"
	"github.com/1asingh/InferPy/runtime"
)

// Sample draws n forward (ancestral) samples of every variable in m,
// expanding the model in declaration order so parents are realized before
// their children. The result maps each variable name to an
// [n, batch, dim] tensor.
func Sample(m *model.Model, n int) (map[string]*tensors.Tensor, error) {
	if n < 1 {
		return nil, errors.Errorf("Sample count must be >= 1, got %d", n)
	}

	names := make([]string, 0, len(m.Variables()))
	for _, rv := range m.Variables() {
		names = append(names, rv.Name())
	}

	state, err := runtime.NextRNGState()
	if err != nil {
		return nil, err
	}

	exec, err := graph.NewExec(runtime.Backend(), func(rng *graph.Node) []*graph.Node {
		g := rng.Graph()
		draws := make(map[string][]*graph.Node, len(names))

		for i := 0; i < n; i++ {
			exp, expErr := m.Expand(g, rng, model.ExpandOptions{})
			if expErr != nil {
				panic(expErr)
			}
			rng = exp.Rng
			for _, rv := range exp.Variables() {
				draws[rv.Name()] = append(draws[rv.Name()], rv.Value().Node())
			}
		}

		outs := make([]*graph.Node, 0, len(names))
		for _, name := range names {
			outs = append(outs, graph.Stack(draws[name], 0))
		}
		return outs
	})
	if err != nil {
		return nil, errors.Wrap(err, "Could not compile forward sampling")
	}
	defer exec.Finalize()

	results, err := exec.Exec(state)
	if err != nil {
		return nil, errors.Wrap(err, "Forward sampling failed")
	}

	out := make(map[string]*tensors.Tensor, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out, nil
}
