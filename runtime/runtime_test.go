package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMode(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(Eager, DefaultMode())

	SetDefaultMode(Deferred)
	assert.Equal(Deferred, DefaultMode())
	SetDefaultMode(Eager)
	assert.Equal(Eager, DefaultMode())

	assert.Equal("eager", Eager.String())
	assert.Equal("deferred", Deferred.String())
}

func TestBackendSingleton(t *testing.T) {
	assert := assert.New(t)

	b := Backend()
	assert.NotNil(b)
	assert.Equal(b, Backend())
}

func TestSeeds(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(Seed(607742924))
	a := NextSeed()
	b := NextSeed()
	assert.NotEqual(a, b)

	// Re-seeding restarts the stream
	assert.NoError(Seed(607742924))
	assert.Equal(a, NextSeed())
	assert.Equal(b, NextSeed())

	state, err := NextRNGState()
	assert.NoError(err)
	assert.NotNil(state)
}
