// Package sampler provides the probability distributions used to draw repair
// times, outage durations, EV state of charge and similar quantities.
package sampler

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInvalidParameter is returned when a distribution is constructed with
// parameters it cannot sample from.
var ErrInvalidParameter = errors.New("invalid distribution parameter")

// Kind names the distribution family of a Sampler
type Kind string

const (
	UniformFloatKind   Kind = "UNIFORM_FLOAT"
	UniformIntKind     Kind = "UNIFORM_INT"
	TruncNormalKind    Kind = "TRUNCNORMAL"
	CustomDiscreteKind Kind = "CUSTOM_DISCRETE"
)

// Sampler draws values from a distribution using the caller's source
type Sampler interface {
	Kind() Kind
	Draw(r *rand.Rand) float64
}

// DrawN draws n values from s
func DrawN(s Sampler, r *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Draw(r)
	}
	return out
}

// UniformFloat is a continuous uniform distribution on [Min, Max]
type UniformFloat struct {
	Min float64
	Max float64
}

// NewUniformFloat validates and returns a UniformFloat
func NewUniformFloat(min, max float64) (UniformFloat, error) {
	if min > max || math.IsNaN(min) || math.IsNaN(max) {
		return UniformFloat{}, fmt.Errorf("uniform float [%v, %v]: %w", min, max, ErrInvalidParameter)
	}
	return UniformFloat{Min: min, Max: max}, nil
}

func (d UniformFloat) Kind() Kind { return UniformFloatKind }

func (d UniformFloat) Draw(r *rand.Rand) float64 {
	u := distuv.Uniform{Min: d.Min, Max: d.Max, Src: r}
	return u.Rand()
}

// UniformInt is a discrete uniform distribution on the integers in [Min, Max]
type UniformInt struct {
	Min int
	Max int
}

// NewUniformInt validates and returns a UniformInt
func NewUniformInt(min, max int) (UniformInt, error) {
	if min > max {
		return UniformInt{}, fmt.Errorf("uniform int [%v, %v]: %w", min, max, ErrInvalidParameter)
	}
	return UniformInt{Min: min, Max: max}, nil
}

func (d UniformInt) Kind() Kind { return UniformIntKind }

func (d UniformInt) Draw(r *rand.Rand) float64 {
	u := distuv.Uniform{Min: float64(d.Min), Max: float64(d.Max + 1), Src: r}
	v := math.Floor(u.Rand())
	if v > float64(d.Max) {
		v = float64(d.Max)
	}
	return v
}

// TruncNormal is a normal distribution restricted to [Min, Max]
type TruncNormal struct {
	Loc   float64
	Scale float64
	Min   float64
	Max   float64
}

// NewTruncNormal validates and returns a TruncNormal
func NewTruncNormal(loc, scale, min, max float64) (TruncNormal, error) {
	if scale <= 0 || min > max {
		return TruncNormal{}, fmt.Errorf("truncated normal loc=%v scale=%v [%v, %v]: %w",
			loc, scale, min, max, ErrInvalidParameter)
	}
	return TruncNormal{Loc: loc, Scale: scale, Min: min, Max: max}, nil
}

func (d TruncNormal) Kind() Kind { return TruncNormalKind }

// Draw samples by inverting the normal CDF over the truncated interval.
func (d TruncNormal) Draw(r *rand.Rand) float64 {
	n := distuv.Normal{Mu: d.Loc, Sigma: d.Scale}
	lo, hi := n.CDF(d.Min), n.CDF(d.Max)
	if hi <= lo {
		return clamp(d.Loc, d.Min, d.Max)
	}
	u := distuv.Uniform{Min: lo, Max: hi, Src: r}
	p := u.Rand()
	if p <= 0 || p >= 1 {
		return clamp(d.Loc, d.Min, d.Max)
	}
	return clamp(n.Quantile(p), d.Min, d.Max)
}

// CustomDiscrete draws Xk[i] with probability proportional to Pk[i]
type CustomDiscrete struct {
	Xk []float64
	Pk []float64
}

// NewCustomDiscrete validates and returns a CustomDiscrete
func NewCustomDiscrete(xk, pk []float64) (CustomDiscrete, error) {
	if len(xk) == 0 || len(xk) != len(pk) {
		return CustomDiscrete{}, fmt.Errorf("custom discrete with %d values and %d weights: %w",
			len(xk), len(pk), ErrInvalidParameter)
	}
	sum := 0.0
	for _, p := range pk {
		if p < 0 || math.IsNaN(p) {
			return CustomDiscrete{}, fmt.Errorf("custom discrete weight %v: %w", p, ErrInvalidParameter)
		}
		sum += p
	}
	if sum <= 0 {
		return CustomDiscrete{}, fmt.Errorf("custom discrete weights sum to zero: %w", ErrInvalidParameter)
	}
	return CustomDiscrete{Xk: xk, Pk: pk}, nil
}

func (d CustomDiscrete) Kind() Kind { return CustomDiscreteKind }

func (d CustomDiscrete) Draw(r *rand.Rand) float64 {
	c := distuv.NewCategorical(d.Pk, r)
	return d.Xk[int(c.Rand())]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
