package simtime

import (
	"math"
	"testing"

	"gotest.tools/v3/assert"
)

func TestConversions(t *testing.T) {
	assert.Equal(t, Hours(1).Seconds(), 3600.0)
	assert.Equal(t, New(1, Year).Hours(), 8760.0)
	assert.Equal(t, New(90, Minute).Hours(), 1.5)
	assert.Equal(t, New(2, Day).To(Hour), Hours(48))
}

func TestArithmetic(t *testing.T) {
	a := Hours(2)
	b := Minutes(30)

	assert.Equal(t, a.Add(b), Hours(2.5))
	assert.Equal(t, a.Sub(b), Hours(1.5))
	assert.Assert(t, b.Less(a))
	assert.Assert(t, Hours(-1).ClampZero().IsZero())
	assert.Equal(t, Max(b, a).Hours(), 2.0)
	assert.Equal(t, a.Div(b), 4.0)
}

func TestConvertYearlyFailRate(t *testing.T) {
	assert.Equal(t, ConvertYearlyFailRate(0, Hours(1)), 0.0)

	p := ConvertYearlyFailRate(8760, Hours(1))
	assert.Assert(t, math.Abs(p-(1-math.Exp(-1))) < 1e-12)

	small := ConvertYearlyFailRate(0.1, Hours(1))
	assert.Assert(t, small > 0 && small < 0.1/8760+1e-12)
}

func TestHourOfDay(t *testing.T) {
	assert.Equal(t, HourOfDay(0, Hours(0)), 0)
	assert.Equal(t, HourOfDay(20, Hours(8)), 4)
	assert.Equal(t, HourOfDay(12, Minutes(90)), 13)
}

func TestParseUnit(t *testing.T) {
	u, err := ParseUnit("hour")
	assert.NilError(t, err)
	assert.Equal(t, u, Hour)

	_, err = ParseUnit("fortnight")
	assert.ErrorContains(t, err, "unknown time unit")
}
