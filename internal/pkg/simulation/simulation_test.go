package simulation

import (
	"fmt"
	"math"
	"testing"

	"github.com/ohowland/relsim/internal/lib/testnet"
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/sampler"
	"github.com/ohowland/relsim/internal/pkg/simtime"
	"github.com/ohowland/relsim/internal/pkg/table"
	"gotest.tools/v3/assert"
)

const seed = 2837314

var hour = simtime.Hours(1)

// failAt fails the named lines at the given increments
func failAt(at map[int]string) func(int, simtime.Time, *powersystem.PowerSystem) {
	return func(inc int, _ simtime.Time, ps *powersystem.PowerSystem) {
		if name, ok := at[inc]; ok {
			testnet.Line(ps, name).Fail()
		}
	}
}

// run steps ps for n hours with the given hooks
func run(t *testing.T, ps *powersystem.PowerSystem, n int, hooks Hooks, opts ...Option) Summary {
	t.Helper()
	opts = append(opts, WithHooks(hooks), WithSeed(seed))
	sim := New(nil, opts...)
	sum, err := sim.RunIteration(ps, 0, simtime.Hours(0), simtime.Hours(float64(n)), hour)
	assert.NilError(t, err)
	assert.Equal(t, sum.Ticks, n)
	return sum
}

func approx(t *testing.T, got, want float64, what string) {
	t.Helper()
	assert.Assert(t, math.Abs(got-want) < 1e-9, "%s: got %v want %v", what, got, want)
}

func near(t *testing.T, got, want float64, what string) {
	t.Helper()
	assert.Assert(t, math.Abs(got-want) < 1e-6, "%s: got %v want %v", what, got, want)
}

// lineLoss sums the active losses of the named lines in MW
func lineLoss(ps *powersystem.PowerSystem, names ...string) float64 {
	var loss float64
	for _, name := range names {
		loss += testnet.Line(ps, name).PLoss * ps.SRef()
	}
	return loss
}

func fixed(h float64) sampler.Sampler { return sampler.UniformFloat{Min: h, Max: h} }

func TestRunIterationRejectsEmptyWindow(t *testing.T) {
	ps, err := testnet.RBTS2(testnet.Options{})
	assert.NilError(t, err)
	_, err = New(nil).RunIteration(ps, 0, hour, hour, hour)
	assert.ErrorIs(t, err, ErrEmptyWindow)
}

func TestHealthySystemHasNoInterruptions(t *testing.T) {
	ps, err := testnet.CINELDI(testnet.Options{})
	assert.NilError(t, err)
	var ticks int
	sum := run(t, ps, 3, Hooks{AfterTick: func(inc int, _ simtime.Time, ps *powersystem.PowerSystem) {
		ticks++
		for _, b := range ps.Buses() {
			assert.Assert(t, b.Supplied(), b.Name())
			assert.Equal(t, b.PShed(), 0.0, b.Name())
			assert.Assert(t, b.Vomag <= 1+1e-12, b.Name())
		}
	}})
	assert.Equal(t, ticks, 3)
	assert.Equal(t, sum.System, Indices{})
	assert.Equal(t, sum.Anomalies, 0)
}

// Fault on the feeding line of the RBTS feeder: the whole feeder is out for
// the hour of manual sectioning and the lateral behind DL7 until L8 is
// repaired.
func TestManualSectioningOutageTimes(t *testing.T) {
	ps, err := testnet.RBTS2(testnet.Options{})
	assert.NilError(t, err)
	sum := run(t, ps, 6, Hooks{AfterFailures: failAt(map[int]string{0: "L8"})})

	var customers, cih, ens float64
	for _, name := range []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7", "B8", "B9", "B10", "B11"} {
		b := testnet.Bus(ps, name)
		want := 1.0
		if name == "B8" || name == "B9" || name == "B10" || name == "B11" {
			want = 4
		}
		assert.Equal(t, b.AccOutageTime().Hours(), want, name)
		assert.Equal(t, b.AccInterruptions(), 1.0, name)
		approx(t, b.AccPLoadShed(), b.Config().PLoad*want, name)
		customers += float64(b.NCustomers())
		cih += float64(b.NCustomers()) * want
		ens += b.Config().PLoad * want
	}
	approx(t, sum.System.SAIFI, 1, "SAIFI")
	approx(t, sum.System.SAIDI, cih/customers, "SAIDI")
	approx(t, sum.System.CAIDI, cih/customers, "CAIDI")
	approx(t, sum.System.ENS, ens, "ENS")
	assert.DeepEqual(t, sum.Networks["dist"], sum.System)
	assert.Assert(t, sum.System.InterruptionCost > 0)
}

func TestIslandedMicrogridIsServedByItsBattery(t *testing.T) {
	ps, err := testnet.CINELDI(testnet.Options{Mode: "FULL_SUPPORT"})
	assert.NilError(t, err)
	bat := testnet.Battery(ps, "BAT1")
	var socs []float64
	run(t, ps, 2, Hooks{
		AfterFailures: failAt(map[int]string{0: "L1"}),
		AfterTick: func(inc int, _ simtime.Time, ps *powersystem.PowerSystem) {
			socs = append(socs, bat.SOC())
			if inc > 0 {
				return
			}
			served := 0.0
			for _, name := range []string{"M1", "M2", "M3"} {
				b := testnet.Bus(ps, name)
				assert.Assert(t, b.Supplied(), name)
				assert.Equal(t, b.PShed(), 0.0, name)
				served += b.PServed()
			}
			near(t, bat.PInjection()+testnet.Bus(ps, "M3").PProd(), served+lineLoss(ps, "ML1", "ML2"), "island balance")
			for _, name := range []string{"B1", "B2", "B3", "B4", "B5", "B6"} {
				b := testnet.Bus(ps, name)
				assert.Assert(t, !b.Supplied(), name)
				assert.Equal(t, b.PShed(), b.PLoad(), name)
			}
		},
	})
	assert.Assert(t, socs[0] < 1)
	for _, soc := range socs {
		assert.Assert(t, soc >= bat.Config().SOCMin && soc <= bat.Config().SOCMax)
	}
}

// Every islanded sub-system generates its served load plus its line losses,
// and the shed load closes the gap to the demand.
func TestIslandEnergyConservation(t *testing.T) {
	ps, err := testnet.CINELDI(testnet.Options{Mode: "FULL_SUPPORT"})
	assert.NilError(t, err)
	// more than battery and generator can carry together
	err = testnet.Bus(ps, "M1").AddLoadData([]float64{0.4}, []float64{0.08}, powersystem.CostFunction{})
	assert.NilError(t, err)

	var energised, shedTicks int
	run(t, ps, 6, Hooks{
		AfterFailures: failAt(map[int]string{0: "L1"}),
		AfterTick: func(inc int, _ simtime.Time, ps *powersystem.PowerSystem) {
			for _, sub := range ps.FindSubSystems() {
				if sub.HasSlack() {
					continue
				}
				var gen, load, served, shed, loss float64
				for _, id := range sub.Buses {
					b := ps.Bus(id)
					gen += b.PProd() + b.PDER()
					load += b.PLoad()
					served += b.PServed()
					shed += b.PShed()
				}
				for _, id := range sub.Lines {
					loss += ps.Line(id).PLoss * ps.SRef()
				}
				near(t, gen, served+loss, fmt.Sprintf("generation tick %d", inc))
				near(t, gen+shed, load+loss, fmt.Sprintf("demand tick %d", inc))
				if gen > 0 {
					energised++
					assert.Assert(t, loss > 0, "tick %d", inc)
				}
				if gen > 0 && shed > 0 {
					shedTicks++
				}
			}
		},
	})
	assert.Assert(t, energised > 0)
	assert.Assert(t, shedTicks > 0)
}

// While the parent is out a SURVIVAL microgrid keeps its own load supplied
// for the survival window and reserves energy for the rest of it.
func TestSurvivalBatteryCarriesMicrogridThroughWindow(t *testing.T) {
	ps, err := testnet.IEEE33(testnet.Options{
		Mode:       "SURVIVAL",
		RepairTime: fixed(10),
	})
	assert.NilError(t, err)
	bat := testnet.Battery(ps, "BAT19")
	cfg := bat.Config()
	window := int(cfg.SurvivalTime.Hours())

	run(t, ps, 8, Hooks{
		AfterFailures: failAt(map[int]string{0: "L2"}),
		AfterTick: func(inc int, _ simtime.Time, ps *powersystem.PowerSystem) {
			assert.Assert(t, bat.SOC() >= cfg.SOCMin-1e-12 && bat.SOC() <= cfg.SOCMax+1e-12, "tick %d", inc)
			assert.Assert(t, bat.InSurvival(), "tick %d", inc)
			if inc < window-1 {
				assert.Assert(t, bat.SOCMinDynamic() > cfg.SOCMin, "tick %d", inc)
				assert.Assert(t, bat.SOC() >= bat.SOCMinDynamic(), "tick %d", inc)
			}
			if inc >= window {
				return
			}
			for _, name := range []string{"B19", "B20", "B21", "B22"} {
				assert.Equal(t, testnet.Bus(ps, name).PShed(), 0.0, "%s tick %d", name, inc)
			}
		},
	})
	for _, name := range []string{"B19", "B20", "B21", "B22"} {
		assert.Equal(t, testnet.Bus(ps, name).AccInterruptions(), 1.0, name)
		assert.Assert(t, testnet.Bus(ps, name).AccOutageTime().Hours() >= 1, name)
	}
}

// A transformer outage empties the park; the restoration draws a fresh set
// of cars keyed to the hour of day at restoration.
func TestEVParkDrawsWhenTransformerReturns(t *testing.T) {
	x := make([]float64, 24)
	y := make([]float64, 24)
	for h := range x {
		x[h], y[h] = float64(h), 2
	}
	startHour := 6
	y[(startHour+8)%24] = 7
	dist, err := table.New(x, y)
	assert.NilError(t, err)

	ps, err := testnet.RBTS2(testnet.Options{
		EVParks:         map[string]*table.Table{"B5": dist},
		TrafoOutageTime: simtime.Hours(8),
	})
	assert.NilError(t, err)
	park := testnet.EVPark(ps, "EV_B5")

	run(t, ps, 10, Hooks{
		AfterFailures: func(inc int, _ simtime.Time, ps *powersystem.PowerSystem) {
			if inc == 0 {
				testnet.Bus(ps, "B5").TrafoFail()
			}
		},
		AfterTick: func(inc int, _ simtime.Time, ps *powersystem.PowerSystem) {
			switch {
			case inc < 8:
				assert.Equal(t, park.NumCars(), 0, "tick %d", inc)
				assert.Equal(t, park.Draws(), 0, "tick %d", inc)
				assert.Equal(t, testnet.Bus(ps, "B5").PShed(), testnet.Bus(ps, "B5").PLoad())
			default:
				assert.Equal(t, park.NumCars(), 7, "tick %d", inc)
				assert.Equal(t, park.Draws(), 1, "tick %d", inc)
			}
		},
	}, WithStartHour(startHour))
	assert.Equal(t, testnet.Bus(ps, "B5").AccOutageTime().Hours(), 8.0)
}

func TestIterationsAreReproducible(t *testing.T) {
	build := func() *powersystem.PowerSystem {
		ps, err := testnet.RBTS2(testnet.Options{FailRate: 50})
		assert.NilError(t, err)
		return ps
	}
	a := run(t, build(), 200, Hooks{})
	b := run(t, build(), 200, Hooks{})
	assert.DeepEqual(t, a.System, b.System)
	assert.Assert(t, a.System.SAIFI > 0)
}
