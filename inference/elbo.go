// Package inference turns declared models into losses and samples: ELBO
// assembly for variational fitting, the fitting loop itself, posterior
// extraction, and forward (ancestral) sampling.
package inference

import (
	"sort"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mlcontext "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/1asingh/InferPy/model"
)

// ELBOOptions control the loss assembly.
type ELBOOptions struct {
	// PlateSize is the explicit batch size; 0 infers it from the observed
	// data and the per-batch variables.
	PlateSize int
	// BatchWeight re-weights the log-prob sums of per-batch variables
	// (for mini-batch scaling); 0 means 1.
	BatchWeight float64
	// Context, when set, realizes the approximating model's parameters as
	// its trainable variables.
	Context *mlcontext.Context
}

// BuildELBOLoss emits the negative evidence lower bound for generative model
// p, approximating model q, and observed data into graph g. The result is the
// scalar loss an optimizer should minimize.
//
// q is expanded first, substituting any observed values; p is then expanded
// substituting q's realized variables merged with the observations. Energy is
// the weighted sum of p's log-probs at the realized values, entropy the
// negative sum of q's non-per-batch log-probs, and the loss -(energy +
// entropy).
func BuildELBOLoss(g *graph.Graph, rng *graph.Node, p, q *model.Model,
	data map[string]*tensors.Tensor, opts ELBOOptions) (*graph.Node, error) {

	names := maps.Keys(data)
	sort.Strings(names)

	for _, name := range names {
		if _, ok := p.Variable(name); !ok {
			return nil, errors.Errorf("Observed name %q is not a variable of the generative model", name)
		}
	}

	plate, err := inferPlateSize(p, data, names, opts.PlateSize)
	if err != nil {
		return nil, err
	}

	weight := opts.BatchWeight
	if weight == 0 {
		weight = 1
	}

	observed := make(map[string]*graph.Node, len(names))
	err = exceptions.TryCatch[error](func() {
		for _, name := range names {
			observed[name] = graph.ConstTensor(g, data[name])
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "Could not load observed data into the graph")
	}

	qExp, err := q.Expand(g, rng, model.ExpandOptions{
		Subst:     observed,
		PlateSize: plate,
		Context:   opts.Context,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Could not expand the approximating model")
	}

	// p sees q's realized variables, with observations taking precedence.
	pSubst := make(map[string]*graph.Node)
	for _, rv := range qExp.Variables() {
		pSubst[rv.Name()] = rv.Value().Node()
	}
	for name, node := range observed {
		pSubst[name] = node
	}

	pExp, err := p.Expand(g, qExp.Rng, model.ExpandOptions{
		Subst:     pSubst,
		PlateSize: plate,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Could not expand the generative model")
	}

	energy, err := weightedLogProbSum(g, pExp, weight, false)
	if err != nil {
		return nil, errors.Wrap(err, "Could not assemble the energy term")
	}
	qSum, err := weightedLogProbSum(g, qExp, weight, true)
	if err != nil {
		return nil, errors.Wrap(err, "Could not assemble the entropy term")
	}

	var loss *graph.Node
	err = exceptions.TryCatch[error](func() {
		entropy := graph.Neg(qSum)
		loss = graph.Neg(graph.Add(energy, entropy))
	})
	if err != nil {
		return nil, errors.Wrap(err, "Could not assemble the loss")
	}
	return loss, nil
}

// inferPlateSize derives the batch size from the observed tensors of
// per-batch variables, failing on disagreement.
func inferPlateSize(p *model.Model, data map[string]*tensors.Tensor, names []string, explicit int) (int, error) {
	if explicit > 0 {
		return explicit, nil
	}

	plate := 0
	for _, name := range names {
		rv, _ := p.Variable(name)
		if !rv.IsPerBatch() {
			continue
		}
		dims := data[name].Shape().Dimensions
		size := 1
		if len(dims) > 0 {
			size = dims[0]
		}
		if plate != 0 && size != plate {
			return 0, errors.Errorf(
				"Inconsistent batch sizes in observed data: %d vs %d for %q", plate, size, name)
		}
		plate = size
	}

	if plate == 0 {
		plate = p.DeclaredPlateSize()
	}
	return plate, nil
}

// weightedLogProbSum sums each expanded variable's log-prob at its realized
// value, applying the batch weight to per-batch variables. With skipPerBatch,
// per-batch variables are left out entirely (the entropy rule).
func weightedLogProbSum(g *graph.Graph, exp *model.Expansion, weight float64, skipPerBatch bool) (*graph.Node, error) {
	var total *graph.Node
	err := exceptions.TryCatch[error](func() {
		total = graph.Const(g, 0.0)
	})
	if err != nil {
		return nil, err
	}

	for _, rv := range exp.Variables() {
		if skipPerBatch && rv.IsPerBatch() {
			continue
		}

		lp, err := rv.Dist().LogProbGraph(rv.Value().Node(), exp)
		if err != nil {
			return nil, errors.Wrapf(err, "Could not build log-prob of %q", rv.Name())
		}

		err = exceptions.TryCatch[error](func() {
			s := graph.ConvertDType(graph.ReduceAllSum(lp), dtypes.Float64)
			if rv.IsPerBatch() {
				s = graph.MulScalar(s, weight)
			}
			total = graph.Add(total, s)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "Could not accumulate log-prob of %q", rv.Name())
		}
	}
	return total, nil
}
