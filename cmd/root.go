// Package cmd is the CLI surface: demo commands that declare small built-in
// models and run forward sampling or a variational fit against them.
package cmd

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/1asingh/InferPy/runtime"
)

var (
	randomSeed   int64
	verbosity    int
	sampleCount  int
	fitSteps     int
	learningRate float64
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "inferpy",
	Short: "Probabilistic modeling on a tensor engine",
	Long: `inferpy declares probabilistic models (random variables, replicate
plates, learnable parameters) and runs inference on them. All numerical work
is delegated to the gomlx engine.

  - sample: forward-sample a built-in hierarchical model
  - fit:    variational fit of a conjugate-normal model
`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		klog.InitFlags(nil)
		if err := flag.Set("v", strconv.Itoa(verbosity)); err != nil {
			return err
		}
		return runtime.Seed(randomSeed)
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	rootCmd.PersistentFlags().Int64VarP(&randomSeed, "seed", "r", 1, "Random seed to use")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 0, "Log verbosity (higher is chattier)")

	sampleCmd.Flags().IntVarP(&sampleCount, "count", "n", 500, "Number of forward samples to draw")
	fitCmd.Flags().IntVarP(&fitSteps, "steps", "s", 2000, "Maximum number of optimization steps")
	fitCmd.Flags().Float64VarP(&learningRate, "rate", "l", 0.02, "Optimizer learning rate")

	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(fitCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
