package simtime

import (
	"fmt"
	"math"
)

// Unit is a unit of simulated time
type Unit int

const (
	Second Unit = iota
	Minute
	Hour
	Day
	Year
)

var unitSeconds = map[Unit]float64{
	Second: 1,
	Minute: 60,
	Hour:   3600,
	Day:    86400,
	Year:   365 * 86400,
}

var unitNames = map[Unit]string{
	Second: "s",
	Minute: "min",
	Hour:   "h",
	Day:    "d",
	Year:   "y",
}

func (u Unit) String() string {
	if name, ok := unitNames[u]; ok {
		return name
	}
	return fmt.Sprintf("Unit(%d)", int(u))
}

// ParseUnit maps a unit name to a Unit
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "s", "second", "SECOND", "seconds":
		return Second, nil
	case "min", "minute", "MINUTE", "minutes":
		return Minute, nil
	case "h", "hour", "HOUR", "hours":
		return Hour, nil
	case "d", "day", "DAY", "days":
		return Day, nil
	case "y", "year", "YEAR", "years":
		return Year, nil
	}
	return Second, fmt.Errorf("unknown time unit %q", s)
}

// Time is a quantity of simulated time
type Time struct {
	Value float64
	Unit  Unit
}

// New returns a Time of value v in unit u
func New(v float64, u Unit) Time {
	return Time{Value: v, Unit: u}
}

// Hours is shorthand for New(v, Hour)
func Hours(v float64) Time {
	return Time{Value: v, Unit: Hour}
}

// Minutes is shorthand for New(v, Minute)
func Minutes(v float64) Time {
	return Time{Value: v, Unit: Minute}
}

// Seconds returns the canonical value in seconds
func (t Time) Seconds() float64 {
	return t.Value * unitSeconds[t.Unit]
}

func (t Time) Minutes() float64 { return t.In(Minute) }
func (t Time) Hours() float64 { return t.In(Hour) }
func (t Time) Days() float64 { return t.In(Day) }
func (t Time) Years() float64 { return t.In(Year) }

// In returns the value of t expressed in unit u
func (t Time) In(u Unit) float64 {
	if t.Unit == u {
		return t.Value
	}
	return t.Seconds() / unitSeconds[u]
}

// To converts t to unit u
func (t Time) To(u Unit) Time {
	return Time{Value: t.In(u), Unit: u}
}

// Add returns t+o in the unit of t
func (t Time) Add(o Time) Time {
	return Time{Value: t.Value + o.In(t.Unit), Unit: t.Unit}
}

// Sub returns t-o in the unit of t
func (t Time) Sub(o Time) Time {
	return Time{Value: t.Value - o.In(t.Unit), Unit: t.Unit}
}

// Scale returns t*k
func (t Time) Scale(k float64) Time {
	return Time{Value: t.Value * k, Unit: t.Unit}
}

// Div returns t/o as a plain ratio
func (t Time) Div(o Time) float64 {
	return t.Seconds() / o.Seconds()
}

func (t Time) Less(o Time) bool { return t.Seconds() < o.Seconds() }
func (t Time) LessEq(o Time) bool { return t.Seconds() <= o.Seconds() }
func (t Time) Equal(o Time) bool { return t.Seconds() == o.Seconds() }

// Positive reports whether t > 0
func (t Time) Positive() bool {
	return t.Value > 0
}

// IsZero reports whether t == 0
func (t Time) IsZero() bool {
	return t.Value == 0
}

// ClampZero returns t, or zero in the same unit when t is negative
func (t Time) ClampZero() Time {
	if t.Value < 0 {
		return Time{Value: 0, Unit: t.Unit}
	}
	return t
}

// Max returns the larger of a and b, in the unit of a
func Max(a, b Time) Time {
	if a.Less(b) {
		return b.To(a.Unit)
	}
	return a
}

func (t Time) String() string {
	return fmt.Sprintf("%g%s", t.Value, t.Unit)
}

// ConvertYearlyFailRate turns a rate per year into the probability of at
// least one failure during dt.
func ConvertYearlyFailRate(ratePerYear float64, dt Time) float64 {
	if ratePerYear <= 0 {
		return 0
	}
	return 1 - math.Exp(-ratePerYear*dt.Years())
}

// HourOfDay returns the wall-clock hour of the simulated instant curr
func HourOfDay(startHour int, curr Time) int {
	h := (startHour + int(math.Floor(curr.Hours()))) % 24
	if h < 0 {
		h += 24
	}
	return h
}
