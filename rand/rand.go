package rand

import (
	"github.com/seehuhn/mt19937"
)

// A SeedStream uses a goroutine to pre-generate batches of pseudo-random
// int64's from a Mersenne twister. It is the only source of randomness this
// layer controls directly: actual sampling happens inside the computation
// engine, whose RNG states are created from seeds taken off this stream.
type SeedStream struct {
	ch chan int64
}

// NewSeedStream starts a new background PRNG based on the given seed.
func NewSeedStream(seed int64) (*SeedStream, error) {
	numChan := make(chan int64, 1024)

	go func() {
		r := mt19937.New()
		r.Seed(seed)
		for {
			numChan <- r.Int63()
		}
	}()

	s := &SeedStream{
		ch: numChan,
	}

	return s, nil
}

// Int63 provides the same interface as Go's math/rand, but with pre-generation.
func (s *SeedStream) Int63() int64 {
	return <-s.ch
}

// NextSeed returns the next seed for an engine RNG state. It never returns 0,
// so callers may reserve a zero seed to mean "unseeded".
func (s *SeedStream) NextSeed() int64 {
	for {
		v := s.Int63()
		if v != 0 {
			return v
		}
	}
}

// Int63n is a copy of the current Go code.
func (s *SeedStream) Int63n(n int64) int64 {
	if n <= 0 {
		panic("invalid argument to Int63n")
	}

	if n&(n-1) == 0 { // n is power of two, can mask
		return s.Int63() & (n - 1)
	}

	max := int64((1 << 63) - 1 - (1<<63)%uint64(n))
	v := s.Int63()
	for v > max {
		v = s.Int63()
	}

	return v % n
}

// Float64 returns a uniform value in [0, 1) over our own Int63, mirroring the
// math/rand implementation.
func (s *SeedStream) Float64() float64 {
	return float64(s.Int63n(1<<53)) / (1 << 53)
}
