package solar

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

// day 81 of a common year; the declination is zero
var equinox = time.Date(2023, time.March, 22, 0, 0, 0, 0, time.UTC)

func TestClearSkyAtZenith(t *testing.T) {
	s := Site{}
	noon := equinox.Add(12 * time.Hour)

	rad := ClearSky(s, noon)
	assert.Assert(t, rad.Direct > 947.09 && rad.Direct < 947.11, "direct %v", rad.Direct)
	assert.Assert(t, rad.Diffuse > 94.70 && rad.Diffuse < 94.72, "diffuse %v", rad.Diffuse)

	total := Irradiance(Array{}, s, noon)
	assert.Assert(t, total > 1041.80 && total < 1041.82, "total %v", total)
}

func TestNoIrradianceAtNight(t *testing.T) {
	s := Site{Latitude: Radians(60)}
	assert.Equal(t, Irradiance(Array{Tilt: Radians(30)}, s, equinox.Add(2*time.Hour)), 0.0)
	assert.Equal(t, ClearSky(s, equinox.Add(23*time.Hour)), Radiation{})
}

func TestSunriseBeforeSunset(t *testing.T) {
	s := Site{Latitude: Radians(42), Elevation: 1.5}
	summer := time.Date(2023, time.June, 21, 12, 0, 0, 0, time.UTC)

	assert.Assert(t, Sunrise(s, summer).Before(summer))
	assert.Assert(t, Sunset(s, summer).After(summer))
	// longer than 12 hours north of the equator in june
	assert.Assert(t, Sunset(s, summer).Sub(Sunrise(s, summer)) > 12*time.Hour)
}

func TestTiltFacesTheSun(t *testing.T) {
	s := Site{Latitude: Radians(60)}
	noon := equinox.Add(12 * time.Hour)

	flat := Irradiance(Array{}, s, noon)
	tilted := Irradiance(Array{Tilt: Radians(60)}, s, noon)
	north := Irradiance(Array{Tilt: Radians(60), Azimuth: Radians(180)}, s, noon)
	assert.Assert(t, tilted > flat)
	assert.Assert(t, north < flat)
}

func TestHourlyProfile(t *testing.T) {
	s := Site{Latitude: Radians(10)}
	p, err := HourlyProfile(Array{Tilt: Radians(10)}, s, equinox, 24, 0.5)
	assert.NilError(t, err)
	assert.Equal(t, len(p), 24)
	assert.Equal(t, p[0], 0.0)
	assert.Equal(t, p[23], 0.0)
	assert.Equal(t, p[11], 0.5)
	for _, v := range p {
		assert.Assert(t, v >= 0 && v <= 0.5)
	}

	_, err = HourlyProfile(Array{}, s, equinox, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidArray)
	_, err = HourlyProfile(Array{}, s, equinox, 24, 0)
	assert.ErrorIs(t, err, ErrInvalidArray)
}
