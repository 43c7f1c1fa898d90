package cmd

import (
	"fmt"
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/1asingh/InferPy/inference"
	"github.com/1asingh/InferPy/model"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Forward-sample a built-in hierarchical model",
	Long: `Declares mu ~ Normal(0, 2) with ten observations x ~ Normal(mu, 1)
under a replicate plate, draws N forward samples of every variable, and
prints per-variable summaries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSample()
	},
}

func runSample() error {
	m := must.M1(model.New(func(b *model.Builder) error {
		mu, err := b.Normal(0.0, 2.0, model.WithName("mu"))
		if err != nil {
			return err
		}
		return b.Replicate(10, func(b *model.Builder) error {
			_, err := b.Normal(mu, 1.0, model.WithName("x"))
			return err
		})
	}))

	fmt.Printf("Drawing %d forward samples\n", sampleCount)
	draws, err := inference.Sample(m, sampleCount)
	if err != nil {
		return err
	}

	for _, rv := range m.Variables() {
		mean, stddev, err := summarize(draws[rv.Name()])
		if err != nil {
			return err
		}
		fmt.Printf("%-8s %-12s shape %v  mean %8.4f  stddev %8.4f\n",
			rv.Name(), rv.Kind(), draws[rv.Name()].Shape().Dimensions, mean, stddev)
	}
	return nil
}

func summarize(t *tensors.Tensor) (mean, stddev float64, err error) {
	var sum, sumSq float64
	var n int
	err = tensors.ConstFlatData[float64](t, func(flat []float64) {
		for _, v := range flat {
			sum += v
			sumSq += v * v
		}
		n = len(flat)
	})
	if err != nil {
		return 0, 0, errors.Wrap(err, "Could not read sampled data")
	}
	if n == 0 {
		return 0, 0, errors.New("Empty sample tensor")
	}

	mean = sum / float64(n)
	stddev = math.Sqrt(math.Max(sumSq/float64(n)-mean*mean, 0))
	return mean, stddev, nil
}
