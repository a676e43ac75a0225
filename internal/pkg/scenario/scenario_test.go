package scenario

import (
	"path/filepath"
	"testing"

	"github.com/ohowland/relsim/internal/lib/testnet"
	"github.com/ohowland/relsim/internal/pkg/controller"
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/sampler"
	"gotest.tools/v3/assert"
)

func TestLoadBuildsFeeder(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "feeder.yaml"))
	assert.NilError(t, err)
	assert.Equal(t, sc.SRef, 1.0)

	ps, err := sc.Build()
	assert.NilError(t, err)
	assert.Equal(t, ps.Name(), "feeder")
	assert.Equal(t, len(ps.Buses()), 5)
	assert.Equal(t, len(ps.Lines()), 4)
	assert.Equal(t, len(ps.Switches()), 4)
	assert.Equal(t, len(ps.Batteries()), 1)
	assert.Equal(t, len(ps.Productions()), 1)
	assert.Equal(t, len(ps.EVParks()), 1)
	assert.Equal(t, len(ps.Sensors()), 1)
	assert.Equal(t, len(ps.IntelligentSwitches()), 1)
	assert.Equal(t, len(ps.ICTNetworks()), 1)

	mg := testnet.Network(ps, "mg")
	assert.Assert(t, mg != nil)
	assert.Equal(t, mg.Kind(), powersystem.MicrogridNetwork)
	assert.Equal(t, mg.Mode(), powersystem.Survival)
	assert.Assert(t, mg.Controller() != nil)
	assert.Equal(t, mg.Parent().Name(), "dist")
	assert.Assert(t, testnet.Network(ps, "dist").Controller() != nil)

	assert.Equal(t, testnet.Bus(ps, "B1").Config().Cost.B, 10.0)
	assert.Equal(t, testnet.Bus(ps, "M2").MaxLoad(), 0.06)
}

func TestBuildReturnsIndependentSystems(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "feeder.yaml"))
	assert.NilError(t, err)
	a, err := sc.Build()
	assert.NilError(t, err)
	b, err := sc.Build()
	assert.NilError(t, err)
	testnet.Line(a, "L2").Fail()
	assert.Assert(t, !testnet.Line(b, "L2").Failed())
}

func TestTestnetScenario(t *testing.T) {
	sc, err := Parse([]byte(`
name: ref
testnet:
  name: cineldi
  mode: FULL_SUPPORT
  repair_time: {value: 3}
`))
	assert.NilError(t, err)
	ps, err := sc.Build()
	assert.NilError(t, err)
	assert.Equal(t, ps.Name(), "cineldi")
	assert.Equal(t, testnet.Network(ps, "mg").Mode(), powersystem.FullSupport)

	sc.Testnet.Name = "nordic"
	_, err = sc.Build()
	assert.ErrorIs(t, err, ErrUnknownTestnet)
}

func TestManualMainControllerScenario(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "feeder.yaml"))
	assert.NilError(t, err)
	sc.Main.Manual = true
	sc.Main.ManualSectioningTime = 2

	ps, err := sc.Build()
	assert.NilError(t, err)
	main, ok := ps.MainController().(*controller.ManualMainController)
	assert.Assert(t, ok)
	assert.Equal(t, main.SectioningTime().Hours(), 2.0)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("name: x\nbusses: []\n"))
	assert.ErrorContains(t, err, "busses")
}

func TestBuildReportsUnknownReferences(t *testing.T) {
	sc, err := Parse([]byte(`
name: broken
buses:
  - {name: T, slack: true}
lines:
  - {name: L1, from: T, to: B9, r: 0.1, x: 0.1}
`))
	assert.NilError(t, err)
	_, err = sc.Build()
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.ErrorContains(t, err, "B9")
}

func TestSamplerDef(t *testing.T) {
	v := 5.0
	s, err := SamplerDef{Value: &v}.sampler()
	assert.NilError(t, err)
	assert.Equal(t, s, sampler.Sampler(sampler.UniformFloat{Min: 5, Max: 5}))

	s, err = SamplerDef{Kind: "truncnormal", Loc: 4, Scale: 1, Min: 1, Max: 8}.sampler()
	assert.NilError(t, err)
	assert.Equal(t, s.Kind(), sampler.TruncNormalKind)

	_, err = SamplerDef{Kind: "weibull"}.sampler()
	assert.ErrorIs(t, err, sampler.ErrInvalidParameter)

	_, err = SamplerDef{Kind: "UNIFORM_FLOAT", Min: 3, Max: 1}.sampler()
	assert.ErrorIs(t, err, sampler.ErrInvalidParameter)
}

func TestSolarProfile(t *testing.T) {
	p, q, err := SolarDef{Latitude: 60, Tilt: 40, Start: "2023-06-21", Hours: 48}.profile(0.2)
	assert.NilError(t, err)
	assert.Equal(t, len(p), 48)
	assert.Equal(t, len(q), 48)
	assert.Equal(t, p[0], 0.0)
	assert.Assert(t, p[12] > 0.1 && p[12] <= 0.2)
	assert.Assert(t, p[36] > 0.1 && p[36] <= 0.2)

	p, _, err = SolarDef{Latitude: 60}.profile(1)
	assert.NilError(t, err)
	assert.Equal(t, len(p), 8760)

	_, _, err = SolarDef{Start: "june"}.profile(1)
	assert.ErrorContains(t, err, "june")
}

func TestProductionWithTwoProfiles(t *testing.T) {
	sc, err := Parse([]byte(`
name: pv
buses:
  - {name: T, slack: true}
  - {name: B1}
productions:
  - name: PV1
    bus: B1
    p_max: 0.1
    profile: {p: [0.1], q: [0]}
    solar: {latitude: 60, tilt: 40}
`))
	assert.NilError(t, err)
	_, err = sc.Build()
	assert.ErrorIs(t, err, ErrConflictingProfile)
}
