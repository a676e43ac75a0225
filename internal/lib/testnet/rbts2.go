package testnet

import (
	"github.com/ohowland/relsim/internal/pkg/powersystem"
)

// RBTS2 builds feeder 1 of RBTS bus 2 behind a single slack bus T. The
// feeder branches at B3 into two laterals, each behind a disconnector, and
// the far end of the second lateral sits behind one more.
//
//	T -L1(E1)- B1 - B2 - B3 -L4(DL4)- B4 - B5 - B6 - B7
//	                     |
//	                     L7(DL7)- B8 - B9 - B10 -L10(DL10)- B11
//
// Lines repair in 4h unless opts says otherwise.
func RBTS2(opts Options) (*powersystem.PowerSystem, error) {
	opts, err := opts.withDefaults(4)
	if err != nil {
		return nil, err
	}
	g, err := newGrid(powersystem.Config{Name: "rbts2", SRef: 1, VRef: 11}, opts)
	if err != nil {
		return nil, err
	}
	buses := []busSpec{
		{name: "T", slack: true},
		{name: "B1"},
		{name: "B2", p: 0.535, q: 0.107, n: 210},
		{name: "B3"},
		{name: "B4", p: 0.535, q: 0.107, n: 210},
		{name: "B5", p: 0.535, q: 0.107, n: 200},
		{name: "B6", p: 0.566, q: 0.113, n: 1},
		{name: "B7", p: 0.566, q: 0.113, n: 1},
		{name: "B8", p: 0.454, q: 0.091, n: 10},
		{name: "B9", p: 0.454, q: 0.091, n: 10},
		{name: "B10", p: 0.5, q: 0.1, n: 200},
		{name: "B11", p: 0.5, q: 0.1, n: 200},
	}
	lines := []lineSpec{
		{name: "L1", from: "T", to: "B1", r: 0.4, x: 0.25, length: 0.75},
		{name: "L2", from: "B1", to: "B2", r: 0.4, x: 0.25, length: 0.6},
		{name: "L3", from: "B2", to: "B3", r: 0.4, x: 0.25, length: 0.8},
		{name: "L4", from: "B3", to: "B4", r: 0.4, x: 0.25, length: 0.75},
		{name: "L5", from: "B4", to: "B5", r: 0.4, x: 0.25, length: 0.6},
		{name: "L6", from: "B5", to: "B6", r: 0.4, x: 0.25, length: 0.8},
		{name: "L7", from: "B3", to: "B8", r: 0.4, x: 0.25, length: 0.75},
		{name: "L8", from: "B8", to: "B9", r: 0.4, x: 0.25, length: 0.6},
		{name: "L9", from: "B9", to: "B10", r: 0.4, x: 0.25, length: 0.8},
		{name: "L10", from: "B10", to: "B11", r: 0.4, x: 0.25, length: 0.75},
		{name: "L11", from: "B6", to: "B7", r: 0.4, x: 0.25, length: 0.6},
	}
	switches := []switchSpec{
		{name: "E1", line: "L1"},
		{name: "DL4", line: "L4", bus: "B3"},
		{name: "DL7", line: "L7", bus: "B3"},
		{name: "DL10", line: "L10", bus: "B10"},
	}
	if err := g.addBuses(buses); err != nil {
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
	if err := g.attach(dist, names("B", 1, 11), names("L", 2, 11)); err != nil {
		return nil, err
	}
	if err := g.controllers(dist); err != nil {
		return nil, err
	}
	return g.ps, nil
}
