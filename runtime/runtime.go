// Package runtime owns the process-wide pieces of engine state this layer
// needs: the backend every materialization runs on, the default evaluation
// mode, and the seed stream that engine RNG states are created from.
//
// Everything numerical (sampling, log-probabilities, gradients) is delegated
// to the gomlx engine; this package only decides where and when those
// computations run.
package runtime

import (
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"

	_ "github.com/gomlx/gomlx/backends/simplego"

	"github.com/1asingh/InferPy/rand"
)

// Mode selects whether results of variable operations are materialized
// immediately by running the engine, or returned symbolically as graph nodes.
type Mode int

const (
	// Eager materializes results immediately with a one-off engine execution.
	Eager Mode = iota
	// Deferred keeps results symbolic; the caller owns graph execution.
	Deferred
)

func (m Mode) String() string {
	if m == Eager {
		return "eager"
	}
	return "deferred"
}

const defaultSeed = int64(1)

var (
	mu          sync.Mutex
	backend     backends.Backend
	defaultMode = Eager
	seeds       *rand.SeedStream
)

// Backend returns the process backend, creating the default one (pure-Go
// simplego, unless overridden via GOMLX_BACKEND) on first use.
func Backend() backends.Backend {
	mu.Lock()
	defer mu.Unlock()

	if backend == nil {
		backend = backends.MustNew()
	}
	return backend
}

// SetBackend replaces the process backend. Intended for tests and for hosts
// that construct their own engine backend.
func SetBackend(b backends.Backend) {
	mu.Lock()
	defer mu.Unlock()
	backend = b
}

// DefaultMode returns the process-wide evaluation mode. Individual calls may
// override it; see the model package.
func DefaultMode() Mode {
	mu.Lock()
	defer mu.Unlock()
	return defaultMode
}

// SetDefaultMode sets the process-wide evaluation mode.
func SetDefaultMode(m Mode) {
	mu.Lock()
	defer mu.Unlock()
	defaultMode = m
}

// Seed resets the seed stream. Calling it with the same value makes the
// sampling sequence reproducible.
func Seed(seed int64) error {
	s, err := rand.NewSeedStream(seed)
	if err != nil {
		return errors.Wrapf(err, "Could not seed runtime with %d", seed)
	}

	mu.Lock()
	defer mu.Unlock()
	seeds = s

	return nil
}

// NextSeed returns the next engine seed from the stream, initializing the
// stream with the default seed if Seed was never called.
func NextSeed() int64 {
	mu.Lock()
	if seeds == nil {
		s, err := rand.NewSeedStream(defaultSeed)
		if err != nil {
			mu.Unlock()
			panic(err) // channel alloc only: cannot happen
		}
		seeds = s
	}
	s := seeds
	mu.Unlock()

	return s.NextSeed()
}

// NextRNGState returns a fresh engine RNG state tensor derived from the seed
// stream. Each state is independent; the engine updates states functionally
// as sampling ops consume them.
func NextRNGState() (*tensors.Tensor, error) {
	var state *tensors.Tensor
	err := exceptions.TryCatch[error](func() {
		var e error
		state, e = graph.RNGStateFromSeed(NextSeed())
		if e != nil {
			panic(e)
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "Could not create engine RNG state")
	}
	return state, nil
}
