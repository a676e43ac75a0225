package scenario

import (
	"fmt"
	"strings"

	"github.com/ohowland/relsim/internal/pkg/sampler"
)

// SamplerDef describes a distribution in hours. Kind is one of
// UNIFORM_FLOAT, UNIFORM_INT, TRUNCNORMAL or CUSTOM_DISCRETE; a bare
// Value is a fixed time.
type SamplerDef struct {
	Kind  string    `yaml:"kind,omitempty"`
	Value *float64  `yaml:"value,omitempty"`
	Min   float64   `yaml:"min,omitempty"`
	Max   float64   `yaml:"max,omitempty"`
	Loc   float64   `yaml:"loc,omitempty"`
	Scale float64   `yaml:"scale,omitempty"`
	Xk    []float64 `yaml:"xk,omitempty"`
	Pk    []float64 `yaml:"pk,omitempty"`
}

func (d SamplerDef) sampler() (sampler.Sampler, error) {
	if d.Value != nil && d.Kind == "" {
		return sampler.NewUniformFloat(*d.Value, *d.Value)
	}
	switch sampler.Kind(strings.ToUpper(d.Kind)) {
	case sampler.UniformFloatKind:
		return sampler.NewUniformFloat(d.Min, d.Max)
	case sampler.UniformIntKind:
		return sampler.NewUniformInt(int(d.Min), int(d.Max))
	case sampler.TruncNormalKind:
		return sampler.NewTruncNormal(d.Loc, d.Scale, d.Min, d.Max)
	case sampler.CustomDiscreteKind:
		return sampler.NewCustomDiscrete(d.Xk, d.Pk)
	}
	return nil, fmt.Errorf("distribution %q: %w", d.Kind, sampler.ErrInvalidParameter)
}
