package sampler

import (
	"errors"
	"math/rand/v2"
	"testing"

	"gotest.tools/v3/assert"
)

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestUniformFloatBounds(t *testing.T) {
	d, err := NewUniformFloat(1, 3)
	assert.NilError(t, err)

	r := newRand()
	for _, v := range DrawN(d, r, 500) {
		assert.Assert(t, v >= 1 && v <= 3, "draw %v out of bounds", v)
	}
}

func TestUniformFloatDegenerate(t *testing.T) {
	d, err := NewUniformFloat(2, 2)
	assert.NilError(t, err)
	assert.Equal(t, d.Draw(newRand()), 2.0)
}

func TestUniformIntIsIntegral(t *testing.T) {
	d, err := NewUniformInt(1, 4)
	assert.NilError(t, err)

	seen := map[float64]bool{}
	for _, v := range DrawN(d, newRand(), 1000) {
		assert.Assert(t, v >= 1 && v <= 4)
		assert.Equal(t, v, float64(int(v)))
		seen[v] = true
	}
	assert.Equal(t, len(seen), 4)
}

func TestTruncNormalBounds(t *testing.T) {
	d, err := NewTruncNormal(5, 2, 4, 6)
	assert.NilError(t, err)

	for _, v := range DrawN(d, newRand(), 500) {
		assert.Assert(t, v >= 4 && v <= 6, "draw %v out of bounds", v)
	}
}

func TestCustomDiscrete(t *testing.T) {
	d, err := NewCustomDiscrete([]float64{1, 7}, []float64{0, 1})
	assert.NilError(t, err)

	for _, v := range DrawN(d, newRand(), 50) {
		assert.Equal(t, v, 7.0)
	}
}

func TestDeterministicWithSeed(t *testing.T) {
	d, _ := NewUniformFloat(0, 10)
	a := DrawN(d, rand.New(rand.NewPCG(42, 7)), 10)
	b := DrawN(d, rand.New(rand.NewPCG(42, 7)), 10)
	assert.DeepEqual(t, a, b)
}

func TestInvalidParameters(t *testing.T) {
	_, err := NewUniformFloat(3, 1)
	assert.Assert(t, errors.Is(err, ErrInvalidParameter))

	_, err = NewTruncNormal(0, 0, -1, 1)
	assert.Assert(t, errors.Is(err, ErrInvalidParameter))

	_, err = NewCustomDiscrete([]float64{1, 2}, []float64{1})
	assert.Assert(t, errors.Is(err, ErrInvalidParameter))

	_, err = FromConfig(Config{Kind: "POISSON"})
	assert.Assert(t, errors.Is(err, ErrInvalidParameter))
}

func TestFromConfig(t *testing.T) {
	s, err := FromConfig(Config{Kind: UniformFloatKind, Min: 1, Max: 2})
	assert.NilError(t, err)
	assert.Equal(t, s.Kind(), UniformFloatKind)
}
