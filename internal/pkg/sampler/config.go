package sampler

import "fmt"

// Config is the serialized form of a Sampler, as found in scenario files
type Config struct {
	Kind  Kind      `yaml:"kind" json:"kind"`
	Min   float64   `yaml:"min" json:"min"`
	Max   float64   `yaml:"max" json:"max"`
	Loc   float64   `yaml:"loc" json:"loc"`
	Scale float64   `yaml:"scale" json:"scale"`
	Xk    []float64 `yaml:"xk" json:"xk"`
	Pk    []float64 `yaml:"pk" json:"pk"`
}

// FromConfig builds the Sampler described by c
func FromConfig(c Config) (Sampler, error) {
	switch c.Kind {
	case UniformFloatKind:
		return NewUniformFloat(c.Min, c.Max)
	case UniformIntKind:
		return NewUniformInt(int(c.Min), int(c.Max))
	case TruncNormalKind:
		return NewTruncNormal(c.Loc, c.Scale, c.Min, c.Max)
	case CustomDiscreteKind:
		return NewCustomDiscrete(c.Xk, c.Pk)
	}
	return nil, fmt.Errorf("sampler kind %q: %w", c.Kind, ErrInvalidParameter)
}
