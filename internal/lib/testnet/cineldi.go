package testnet

import (
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/simtime"
)

// CINELDI builds a small feeder with a backup line and a microgrid.
//
//	T -L1(E1, DL1@T)- B1 -L2(DL2a, DL2b)- B2 - B3 - B4 - B5
//	                  |                        |         :
//	                  L7 - B6 ...... L6(DL6@B6, backup) ..
//	                                           |
//	                                           L8(E2)- M1 -ML1(DML1)- M2 -ML2(DML2)- M3
//
// The microgrid holds a battery on M2 and a generator on M3. Lines repair
// in 2h unless opts says otherwise.
func CINELDI(opts Options) (*powersystem.PowerSystem, error) {
	opts, err := opts.withDefaults(2)
	if err != nil {
		return nil, err
	}
	mode, err := powersystem.ParseMicrogridMode(opts.Mode)
	if err != nil {
		return nil, err
	}
	g, err := newGrid(powersystem.Config{Name: "cineldi", SRef: 1, VRef: 22}, opts)
	if err != nil {
		return nil, err
	}
	buses := []busSpec{
		{name: "T", slack: true},
		{name: "B1", p: 0.2, q: 0.04, n: 20},
		{name: "B2", p: 0.3, q: 0.06, n: 40},
		{name: "B3", p: 0.2, q: 0.04, n: 20},
		{name: "B4", p: 0.25, q: 0.05, n: 30},
		{name: "B5", p: 0.15, q: 0.03, n: 15},
		{name: "B6", p: 0.1, q: 0.02, n: 10},
		{name: "M1", p: 0.05, q: 0.01, n: 5},
		{name: "M2", p: 0.05, q: 0.01, n: 5},
		{name: "M3", p: 0.05, q: 0.01, n: 5},
	}
	lines := []lineSpec{
		{name: "L1", from: "T", to: "B1", r: 0.3, x: 0.3, length: 1},
		{name: "L2", from: "B1", to: "B2", r: 0.3, x: 0.3, length: 1},
		{name: "L3", from: "B2", to: "B3", r: 0.3, x: 0.3, length: 1},
		{name: "L4", from: "B3", to: "B4", r: 0.3, x: 0.3, length: 1},
		{name: "L5", from: "B4", to: "B5", r: 0.3, x: 0.3, length: 1},
		{name: "L6", from: "B6", to: "B5", r: 0.3, x: 0.3, length: 1, backup: true},
		{name: "L7", from: "B1", to: "B6", r: 0.3, x: 0.3, length: 1},
		{name: "L8", from: "B3", to: "M1", r: 0.3, x: 0.3, length: 1},
		{name: "ML1", from: "M1", to: "M2", r: 0.3, x: 0.3, length: 0.5},
		{name: "ML2", from: "M2", to: "M3", r: 0.3, x: 0.3, length: 0.5},
	}
	switches := []switchSpec{
		{name: "E1", line: "L1"},
		{name: "DL1", line: "L1", bus: "T"},
		{name: "DL2a", line: "L2", bus: "B1"},
		{name: "DL2b", line: "L2", bus: "B2"},
		{name: "DL6", line: "L6", bus: "B6"},
		{name: "E2", line: "L8"},
		{name: "DML1", line: "ML1", bus: "M1"},
		{name: "DML2", line: "ML2", bus: "M2"},
	}
	if err := g.addBuses(buses); err != nil {
		return nil, err
	}
	if _, err := g.ps.NewBattery(powersystem.BatteryConfig{
		Name: "BAT1",
		StorageConfig: powersystem.StorageConfig{
			InjPMax:    0.3,
			InjQMax:    0.3,
			EMax:       1.2,
			SOCMin:     0.1,
			SOCMax:     1,
			Efficiency: 0.95,
		},
		SurvivalTime: simtime.Hours(4),
	}, g.buses["M2"]); err != nil {
		return nil, err
	}
	if _, err := g.ps.NewProduction(powersystem.ProductionConfig{
		Name: "PV1", PMax: 0.1, QMax: 0.05, P: 0.05,
	}, g.buses["M3"]); err != nil {
		return nil, err
	}
	if err := g.addLines(lines); err != nil {
		return nil, err
	}
	if err := g.addSwitches(switches); err != nil {
		return nil, err
	}

	trans, err := powersystem.NewTransmission(g.ps, g.buses["T"])
	if err != nil {
		return nil, err
	}
	dist, err := powersystem.NewDistribution(trans, g.lines["L1"])
	if err != nil {
		return nil, err
	}
	dist.SetName("dist")
	if err := g.attach(dist, names("B", 1, 6), []string{"L2", "L3", "L4", "L5", "L6", "L7"}); err != nil {
		return nil, err
	}
	mg, err := powersystem.NewMicrogrid(dist, g.lines["L8"], mode)
	if err != nil {
		return nil, err
	}
	mg.SetName("mg")
	if err := g.attach(mg, names("M", 1, 3), []string{"ML1", "ML2"}); err != nil {
		return nil, err
	}
	if err := g.controllers(dist); err != nil {
		return nil, err
	}
	return g.ps, nil
}
