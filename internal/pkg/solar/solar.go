// Package solar estimates clear-sky irradiance on a fixed PV array and turns
// it into hourly production profiles. Times are taken as local solar time.
package solar

import (
	"errors"
	"math"
	"time"
)

var ErrInvalidArray = errors.New("invalid pv array")

const (
	// SolarConstant is the extraterrestrial irradiance in W/m^2
	SolarConstant = 1353.0
	// StandardIrradiance is the irradiance at which an array gives its rating
	StandardIrradiance = 1000.0
)

// Array is a fixed array. Angles in radians, azimuth zero due south and
// positive towards west.
type Array struct {
	Tilt    float64
	Azimuth float64
}

// Site angles in radians, elevation in km
type Site struct {
	Latitude  float64
	Elevation float64
}

// Radiation in W/m^2
type Radiation struct {
	Direct  float64
	Diffuse float64
}

func Radians(deg float64) float64 { return deg * math.Pi / 180 }

// Irradiance on the plane of a at t
func Irradiance(a Array, s Site, t time.Time) float64 {
	rad := ClearSky(s, t)
	cos := cosIncidence(a, s, t)
	if cos <= 0 {
		return rad.Diffuse
	}
	return rad.Direct*cos + rad.Diffuse
}

// ClearSky is the beam and diffuse radiation at s, zero between sunset and
// sunrise
func ClearSky(s Site, t time.Time) Radiation {
	if !isDaytime(s, t) {
		return Radiation{}
	}
	h := 0.14 * s.Elevation
	direct := SolarConstant * ((1-h)*math.Pow(0.7, math.Pow(airMass(s, t), 0.678)) + h)
	return Radiation{Direct: direct, Diffuse: 0.1 * direct}
}

// cosIncidence of the beam on the array plane
func cosIncidence(a Array, s Site, t time.Time) float64 {
	d := declination(t)
	w := hourAngle(t)
	sd, cd := math.Sincos(d)
	sl, cl := math.Sincos(s.Latitude)
	sb, cb := math.Sincos(a.Tilt)
	sg, cg := math.Sincos(a.Azimuth)
	sw, cw := math.Sincos(w)
	return sd*sl*cb - sd*cl*sb*cg + cd*cl*cb*cw + cd*sl*sb*cg*cw + cd*sb*sg*sw
}

func airMass(s Site, t time.Time) float64 {
	return 1 / math.Sin(elevation(s, t))
}

// elevation of the sun above the horizon, never negative
func elevation(s Site, t time.Time) float64 {
	d := declination(t)
	e := math.Asin(math.Sin(d)*math.Sin(s.Latitude) + math.Cos(d)*math.Cos(s.Latitude)*math.Cos(hourAngle(t)))
	return math.Max(e, 0)
}

func hourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

func hourAngle(t time.Time) float64 {
	return Radians((hourOfDay(t) - 12) * 15)
}

// halfDay is the hours from solar noon to sunset, clamped for polar day and
// night
func halfDay(s Site, t time.Time) float64 {
	c := -math.Tan(declination(t)) * math.Tan(s.Latitude)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * 180 / math.Pi / 15
}

func isDaytime(s Site, t time.Time) bool {
	hd := halfDay(s, t)
	h := hourOfDay(t)
	return h > 12-hd && h < 12+hd && elevation(s, t) > 0
}

// Sunrise and Sunset on the day of t
func Sunrise(s Site, t time.Time) time.Time { return atHour(t, 12-halfDay(s, t)) }

func Sunset(s Site, t time.Time) time.Time { return atHour(t, 12+halfDay(s, t)) }

func atHour(t time.Time, h float64) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.Add(time.Duration(h * float64(time.Hour)))
}

func declination(t time.Time) float64 {
	return math.Asin(math.Sin((float64(t.YearDay())-81)*2*math.Pi/365.25) * math.Sin(0.40928))
}

// HourlyProfile is the output of an array rated pmax for hours hours from
// start, each hour taken at its midpoint. Output is capped at pmax.
func HourlyProfile(a Array, s Site, start time.Time, hours int, pmax float64) ([]float64, error) {
	if hours <= 0 || pmax <= 0 || math.IsNaN(pmax) {
		return nil, ErrInvalidArray
	}
	p := make([]float64, hours)
	for i := range p {
		t := start.Add(time.Duration(i)*time.Hour + 30*time.Minute)
		p[i] = pmax * math.Min(Irradiance(a, s, t)/StandardIrradiance, 1)
	}
	return p, nil
}
