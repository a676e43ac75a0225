package controller_test

import (
	"errors"
	"testing"

	"github.com/ohowland/relsim/internal/lib/testnet"
	"github.com/ohowland/relsim/internal/pkg/controller"
	"github.com/ohowland/relsim/internal/pkg/ict"
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/sampler"
	"github.com/ohowland/relsim/internal/pkg/simtime"
	"gotest.tools/v3/assert"
)

var hour = simtime.Hours(1)

// advance runs ticks from..to inclusive. hook runs after failures are sampled.
func advance(ps *powersystem.PowerSystem, from, to int, hook func(t int)) {
	for t := from; t <= to; t++ {
		ps.UpdateFailStatus(hour)
		if hook != nil {
			hook(t)
		}
		ps.RunControlLoop(simtime.Hours(float64(t)), hour)
	}
}

func failAt(ps *powersystem.PowerSystem, at map[int]string) func(int) {
	return func(t int) {
		if name, ok := at[t]; ok {
			testnet.Line(ps, name).Fail()
		}
	}
}

func assertConnected(t *testing.T, ps *powersystem.PowerSystem, want bool, lines ...string) {
	t.Helper()
	for _, name := range lines {
		assert.Equal(t, testnet.Line(ps, name).Connected(), want, name)
	}
}

func assertOpen(t *testing.T, ps *powersystem.PowerSystem, want bool, switches ...string) {
	t.Helper()
	for _, name := range switches {
		assert.Equal(t, testnet.Switch(ps, name).IsOpen(), want, name)
	}
}

func TestControllerRejectsWrongNetwork(t *testing.T) {
	ps, err := testnet.CINELDI(testnet.Options{})
	assert.NilError(t, err)

	_, err = controller.NewDistributionController(controller.Config{}, testnet.Network(ps, "mg"))
	assert.Assert(t, errors.Is(err, controller.ErrWrongNetwork))
	_, err = controller.NewMicrogridController(controller.Config{}, testnet.Network(ps, "dist"))
	assert.Assert(t, errors.Is(err, controller.ErrWrongNetwork))
	_, err = controller.NewDistributionController(controller.Config{}, testnet.Network(ps, "dist"))
	assert.Assert(t, errors.Is(err, controller.ErrHasController))
}

func TestFeederLineFaultIsolatesRootSection(t *testing.T) {
	ps, err := testnet.CINELDI(testnet.Options{Mode: powersystem.FullSupport.String()})
	assert.NilError(t, err)
	dc := testnet.Network(ps, "dist").Controller().(*controller.DistributionController)

	advance(ps, 0, 0, failAt(ps, map[int]string{0: "L1"}))
	assert.Assert(t, dc.Locating())
	assert.Equal(t, dc.SectioningTime().Hours(), 1.0)
	assertOpen(t, ps, true, "E1", "E2")

	advance(ps, 1, 1, nil)
	assertConnected(t, ps, false, "L1", "L7", "L6")
	assertConnected(t, ps, true, "L2", "L3", "L4", "L5", "ML1", "ML2")
	assertOpen(t, ps, true, "E1", "DL1", "E2", "DL6")
	assertOpen(t, ps, false, "DL2a", "DL2b", "DML1", "DML2")

	advance(ps, 2, 2, nil)
	assertConnected(t, ps, true, "L1", "L2", "L3", "L4", "L5", "L7", "L8", "ML1", "ML2")
	assertOpen(t, ps, false, "E1", "DL1", "E2")
	assert.Assert(t, !dc.Locating())
	assert.Equal(t, len(dc.FailedSections()), 0)
}

func TestLateralFaultEngagesBackupAndReclosesMicrogrid(t *testing.T) {
	ps, err := testnet.CINELDI(testnet.Options{})
	assert.NilError(t, err)

	advance(ps, 0, 1, failAt(ps, map[int]string{0: "L2"}))
	assertOpen(t, ps, true, "DL2a", "DL2b")
	assertOpen(t, ps, false, "DL1", "E1", "DL6", "E2")
	assertConnected(t, ps, false, "L2")
	assertConnected(t, ps, true, "L1", "L6", "L7", "L8")

	advance(ps, 2, 2, nil)
	assertConnected(t, ps, true, "L2", "L3")
	assertConnected(t, ps, false, "L6")
	assertOpen(t, ps, true, "DL6")
	assertOpen(t, ps, false, "DL2a", "DL2b", "E1", "E2")
}

// L2 fails at t=0 and L1 at t=1, both with a 2h repair. L2 is back at t=2
// while L1 is still out, and the feeder closes again at t=3.
func TestOverlappingFaultsRestoreInRepairOrder(t *testing.T) {
	ps, err := testnet.CINELDI(testnet.Options{Mode: powersystem.LimitedSupport.String()})
	assert.NilError(t, err)
	hook := failAt(ps, map[int]string{0: "L2", 1: "L1"})
	dc := testnet.Network(ps, "dist").Controller().(*controller.DistributionController)

	advance(ps, 0, 0, hook)
	assertOpen(t, ps, true, "E1", "E2")
	assertConnected(t, ps, false, "L6")

	advance(ps, 1, 1, hook)
	assert.Assert(t, testnet.Line(ps, "L1").Failed())
	assert.Assert(t, testnet.Line(ps, "L2").Failed())
	assertOpen(t, ps, true, "E1")
	assert.Equal(t, len(dc.FailedSections()), 2)
	assert.Equal(t, dc.SectioningTime().Hours(), 1.0)

	advance(ps, 2, 2, hook)
	assertConnected(t, ps, true, "L2")
	assertConnected(t, ps, false, "L1", "L7")
	assertOpen(t, ps, true, "E1", "DL1", "E2")

	for tick := 3; tick <= 4; tick++ {
		advance(ps, tick, tick, hook)
		assertConnected(t, ps, true, "L1", "L2", "L3", "L4", "L5", "L7", "L8", "ML1", "ML2")
		assertConnected(t, ps, false, "L6")
		assertOpen(t, ps, false, "E1", "E2", "DL1")
		assertOpen(t, ps, true, "DL6")
	}
	assert.Equal(t, len(dc.FailedSections()), 0)
}

func TestSurvivalMicrogridWaitsForParentRepair(t *testing.T) {
	ps, err := testnet.IEEE33(testnet.Options{
		Mode:       "SURVIVAL",
		RepairTime: sampler.UniformFloat{Min: 10, Max: 10},
	})
	assert.NilError(t, err)
	bat := testnet.Battery(ps, "BAT19")
	hook := failAt(ps, map[int]string{0: "L2"})

	advance(ps, 0, 0, hook)
	assert.Assert(t, bat.InSurvival())
	assertOpen(t, ps, true, "E1", "E2")

	advance(ps, 1, 5, hook)
	assertOpen(t, ps, false, "E1")
	assertOpen(t, ps, true, "E2")
	assert.Assert(t, bat.InSurvival())

	advance(ps, 6, 10, hook)
	assertOpen(t, ps, false, "E2")
	assert.Assert(t, !bat.InSurvival())
}

func TestLimitedSupportMicrogridReclosesOnceParentIsSupplied(t *testing.T) {
	ps, err := testnet.IEEE33(testnet.Options{
		RepairTime: sampler.UniformFloat{Min: 10, Max: 10},
	})
	assert.NilError(t, err)

	advance(ps, 0, 1, failAt(ps, map[int]string{0: "L2"}))
	assertOpen(t, ps, false, "E1", "E2")
	assert.Assert(t, !testnet.Battery(ps, "BAT19").InSurvival())
}

func TestSensedFaultIsRestoredWithinTick(t *testing.T) {
	for _, tc := range []struct {
		name       string
		ictFailed  bool
		wantE1Open bool
		wantD2Open bool
		wantTime   float64
	}{
		{name: "sensed", wantE1Open: false, wantD2Open: true, wantTime: 0},
		{name: "sensor unreachable", ictFailed: true, wantE1Open: true, wantD2Open: false, wantTime: 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ps, dc, link := sensedFeeder(t)

			advance(ps, 0, 0, func(int) {
				if tc.ictFailed {
					link.Fail()
				}
				testnet.Line(ps, "L2").Fail()
			})
			assertOpen(t, ps, tc.wantE1Open, "E1")
			assertOpen(t, ps, tc.wantD2Open, "D2")
			assert.Equal(t, dc.SectioningTime().Hours(), tc.wantTime)
		})
	}
}

// T -L1(E1, S1)- B1 -L2(D2@B1 intelligent, S2)- B2, with every device on
// the controller's ICT network.
func sensedFeeder(t *testing.T) (*powersystem.PowerSystem, *controller.DistributionController, *ict.Line) {
	t.Helper()
	main, err := controller.NewMainController(controller.MainConfig{})
	assert.NilError(t, err)
	ps, err := powersystem.New(powersystem.Config{Name: "sensed"}, main)
	assert.NilError(t, err)

	net := ps.NewICTNetwork("scada")
	ctrl := ict.NewNode("ctrl", 0, hour)
	n1 := ict.NewNode("s1", 0, hour)
	n2 := ict.NewNode("s2", 0, hour)
	nis := ict.NewNode("is2", 0, hour)
	for _, n := range []*ict.Node{ctrl, n1, n2, nis} {
		net.AddNode(n)
	}
	_, err = net.AddLine("ctrl-s1", ctrl, n1, 0, hour)
	assert.NilError(t, err)
	_, err = net.AddLine("ctrl-is2", ctrl, nis, 0, hour)
	assert.NilError(t, err)
	link, err := net.AddLine("ctrl-s2", ctrl, n2, 0, hour)
	assert.NilError(t, err)

	tb, _ := ps.NewBus(powersystem.BusConfig{Name: "T", IsSlack: true})
	b1, _ := ps.NewBus(powersystem.BusConfig{Name: "B1", PLoad: 0.1, NCustomers: 1})
	b2, _ := ps.NewBus(powersystem.BusConfig{Name: "B2", PLoad: 0.1, NCustomers: 1})
	repair := sampler.UniformFloat{Min: 2, Max: 2}
	l1, _ := ps.NewLine(powersystem.LineConfig{Name: "L1", R: 0.1, X: 0.1, RepairTime: repair}, tb, b1)
	l2, _ := ps.NewLine(powersystem.LineConfig{Name: "L2", R: 0.1, X: 0.1, RepairTime: repair}, b1, b2)
	_, err = ps.NewCircuitBreaker("E1", l1)
	assert.NilError(t, err)
	d2, err := ps.NewDisconnector("D2", l2, b1)
	assert.NilError(t, err)
	_, err = ps.NewIntelligentSwitch(powersystem.IntelligentSwitchConfig{Name: "IS2", ICTNode: nis}, d2)
	assert.NilError(t, err)
	_, err = ps.NewSensor(powersystem.SensorConfig{Name: "S1", ICTNode: n1}, l1)
	assert.NilError(t, err)
	_, err = ps.NewSensor(powersystem.SensorConfig{Name: "S2", ICTNode: n2}, l2)
	assert.NilError(t, err)

	trans, err := powersystem.NewTransmission(ps, tb)
	assert.NilError(t, err)
	dist, err := powersystem.NewDistribution(trans, l1)
	assert.NilError(t, err)
	assert.NilError(t, dist.AddBuses(b1, b2))
	assert.NilError(t, dist.AddLine(l2))
	dc, err := controller.NewDistributionController(controller.Config{
		ManualSectioningTime: hour,
		ICTNode:              ctrl,
		ICTNetwork:           net,
	}, dist)
	assert.NilError(t, err)
	assert.NilError(t, ps.CreateSections())
	ps.ResetStatus(false)
	return ps, dc, link
}

func TestMainControllerHardwareFailureGoesToRepair(t *testing.T) {
	main, err := controller.NewMainController(controller.MainConfig{
		ManualHardwareRepairTime: simtime.Hours(3),
	})
	assert.NilError(t, err)
	_, err = testnet.CINELDI(testnet.Options{Main: main})
	assert.NilError(t, err)

	main.Fail(controller.HardwareFail)
	assert.Equal(t, main.State(), controller.MainRepair)
	assert.Equal(t, main.RemainingRepairTime().Hours(), 3.0)

	main.UpdateFailStatus(hour)
	main.UpdateFailStatus(hour)
	assert.Equal(t, main.State(), controller.MainRepair)
	main.UpdateFailStatus(hour)
	assert.Equal(t, main.State(), controller.MainOK)
	assert.Equal(t, main.RemainingRepairTime().Hours(), 0.0)
}

func TestMainControllerSoftwareFailure(t *testing.T) {
	for _, tc := range []struct {
		name      string
		pFail     float64
		wantState controller.MainState
		wantTime  float64
	}{
		// 2h new signal spread to the open feeder, then 1h elapses and the
		// crew adds 1h.
		{name: "new signal restores", pFail: 0, wantState: controller.MainOK, wantTime: 2},
		{name: "crew sent", pFail: 1, wantState: controller.MainRepair, wantTime: 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			main, err := controller.NewMainController(controller.MainConfig{
				PFailRepairNewSignal:     tc.pFail,
				PFailRepairReboot:        tc.pFail,
				NewSignalTime:            simtime.Hours(2),
				RebootTime:               simtime.Hours(2),
				ManualSoftwareRepairTime: simtime.Hours(5),
			})
			assert.NilError(t, err)
			ps, err := testnet.CINELDI(testnet.Options{Main: main})
			assert.NilError(t, err)

			advance(ps, 0, 0, func(int) {
				testnet.Line(ps, "L2").Fail()
				main.Fail(controller.SoftwareFail)
			})
			dc := testnet.Network(ps, "dist").Controller().(*controller.DistributionController)
			assert.Equal(t, main.State(), tc.wantState)
			assert.Equal(t, dc.SectioningTime().Hours(), tc.wantTime)
		})
	}
}

func TestMainControllerRejectsInvalidConfig(t *testing.T) {
	_, err := controller.NewMainController(controller.MainConfig{HardwareFailRate: -1})
	assert.Assert(t, errors.Is(err, powersystem.ErrInvalidParameter))
	_, err = controller.NewMainController(controller.MainConfig{PFailRepairReboot: 1.5})
	assert.Assert(t, errors.Is(err, powersystem.ErrInvalidParameter))
}

func TestManualMainControllerSendsCrews(t *testing.T) {
	ps, err := testnet.RBTS2(testnet.Options{Main: controller.NewManualMainController("", simtime.Hours(0))})
	assert.NilError(t, err)
	hook := failAt(ps, map[int]string{0: "L8"})

	advance(ps, 0, 1, hook)
	assertOpen(t, ps, false, "E1", "DL4", "DL10")
	assertOpen(t, ps, true, "DL7")
	assertConnected(t, ps, false, "L7", "L8", "L9")
	assertConnected(t, ps, true, "L1", "L4", "L5", "L6", "L10", "L11")

	advance(ps, 2, 3, hook)
	assertOpen(t, ps, true, "DL7")

	advance(ps, 4, 4, hook)
	assertOpen(t, ps, false, "DL7")
	assertConnected(t, ps, true, "L7", "L8", "L9", "L10")
}

func TestManualMainControllerFixedSectioningTime(t *testing.T) {
	main := controller.NewManualMainController("", simtime.Hours(3))
	ps, err := testnet.RBTS2(testnet.Options{Main: main})
	assert.NilError(t, err)
	dc := testnet.Network(ps, "dist").Controller().(*controller.DistributionController)
	hook := failAt(ps, map[int]string{0: "L8"})

	advance(ps, 0, 0, hook)
	assert.Equal(t, dc.SectioningTime().Hours(), 3.0)
	advance(ps, 1, 2, hook)
	assertOpen(t, ps, true, "E1")
	assert.Assert(t, dc.Locating())

	advance(ps, 3, 3, hook)
	assertOpen(t, ps, false, "E1", "DL4", "DL10")
	assertOpen(t, ps, true, "DL7")
	assertConnected(t, ps, true, "L1", "L4", "L10")
	assertConnected(t, ps, false, "L7", "L8", "L9")
}
