package cmd

import (
	"context"
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/1asingh/InferPy/inference"
	"github.com/1asingh/InferPy/model"
)

const (
	fitTrueMean     = 3.0
	fitObservations = 50
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Variational fit of a conjugate-normal model",
	Long: `Generates synthetic data around a hidden mean, declares a generative
model with a latent mean and an approximating Normal model with a learnable
location, fits the latter by minimizing the negative ELBO, and prints the
recovered posterior.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFit(cmd.Context())
	},
}

// The demo models are static, so declaration failures are programmer errors.

func fitDataGenerator() *model.Model {
	return must.M1(model.New(func(b *model.Builder) error {
		return b.Replicate(fitObservations, func(b *model.Builder) error {
			_, err := b.Normal(fitTrueMean, 1.0, model.WithName("x"))
			return err
		})
	}))
}

func fitGenerativeModel() *model.Model {
	return must.M1(model.New(func(b *model.Builder) error {
		mu, err := b.Normal(0.0, 10.0, model.WithName("mu"))
		if err != nil {
			return err
		}
		return b.Replicate(fitObservations, func(b *model.Builder) error {
			_, err := b.Normal(mu, 1.0, model.WithName("x"))
			return err
		})
	}))
}

func fitApproximatingModel() *model.Model {
	return must.M1(model.New(func(b *model.Builder) error {
		loc, err := b.Param("qloc", 0.0)
		if err != nil {
			return err
		}
		_, err = b.Normal(loc, 0.5, model.WithName("mu"))
		return err
	}))
}

func runFit(ctx context.Context) error {
	draws, err := inference.Sample(fitDataGenerator(), 1)
	if err != nil {
		return errors.Wrap(err, "Could not generate synthetic data")
	}

	rows := make([][]float64, fitObservations)
	err = tensors.ConstFlatData[float64](draws["x"], func(flat []float64) {
		for i, v := range flat {
			rows[i] = []float64{v}
		}
	})
	if err != nil {
		return errors.Wrap(err, "Could not read synthetic data")
	}
	data := map[string]*tensors.Tensor{"x": tensors.FromAnyValue(rows)}

	fmt.Printf("Fitting with %d observations, lr %.4f, up to %d steps\n",
		fitObservations, learningRate, fitSteps)
	vi := inference.NewVI(fitGenerativeModel(), fitApproximatingModel(),
		inference.WithLearningRate(learningRate),
		inference.WithSteps(fitSteps))

	result, err := vi.Fit(ctx, data)
	if err != nil {
		return err
	}
	fmt.Printf("Done after %d steps (converged: %v), final loss %.4f\n",
		result.Steps, result.Converged, result.FinalLoss)

	post, err := vi.Posterior("mu")
	if err != nil {
		return err
	}
	loc, err := post.Stat("loc")
	if err != nil {
		return err
	}
	locT, err := loc.Tensor()
	if err != nil {
		return err
	}

	var fitted float64
	err = tensors.ConstFlatData[float64](locT, func(flat []float64) { fitted = flat[0] })
	if err != nil {
		return err
	}
	fmt.Printf("Posterior mean estimate %.4f (data generated around %.1f)\n", fitted, fitTrueMean)
	return nil
}
