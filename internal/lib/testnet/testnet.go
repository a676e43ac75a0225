// Package testnet builds the reference networks used by tests and by the
// built-in scenarios: an RBTS bus 2 feeder, a CINELDI-like feeder with a
// microgrid, and the IEEE 33 bus feeder with a microgrid lateral.
package testnet

import (
	"fmt"

	"github.com/ohowland/relsim/internal/pkg/controller"
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/sampler"
	"github.com/ohowland/relsim/internal/pkg/simtime"
	"github.com/ohowland/relsim/internal/pkg/table"
)

// Options tunes a reference network. Zero values select the fixture defaults.
type Options struct {
	Mode                 string // microgrid mode, LIMITED_SUPPORT when empty
	ManualSectioningTime simtime.Time
	RepairTime           sampler.Sampler
	FailRate             float64 // per km and year, applied to every line
	TrafoOutageTime      simtime.Time
	Main                 powersystem.MainController
	// EVParks maps a bus name to the expected number of cars by hour of day
	EVParks map[string]*table.Table
}

func (o Options) withDefaults(repair float64) (Options, error) {
	if o.Mode == "" {
		o.Mode = powersystem.LimitedSupport.String()
	}
	if o.ManualSectioningTime.IsZero() {
		o.ManualSectioningTime = simtime.Hours(1)
	}
	if o.RepairTime == nil {
		o.RepairTime = sampler.UniformFloat{Min: repair, Max: repair}
	}
	if o.Main == nil {
		m, err := controller.NewMainController(controller.MainConfig{})
		if err != nil {
			return o, err
		}
		o.Main = m
	}
	return o, nil
}

type busSpec struct {
	name  string
	p, q  float64 // MW, MVAr
	n     int
	slack bool
}

type lineSpec struct {
	name, from, to string
	r, x, length   float64
	backup         bool
}

// switchSpec places a disconnector at bus, or a circuit breaker when bus is empty
type switchSpec struct {
	name, line, bus string
}

// grid accumulates the components of a fixture by name
type grid struct {
	ps    *powersystem.PowerSystem
	opts  Options
	buses map[string]*powersystem.Bus
	lines map[string]*powersystem.Line
}

func newGrid(cfg powersystem.Config, opts Options) (*grid, error) {
	ps, err := powersystem.New(cfg, opts.Main)
	if err != nil {
		return nil, err
	}
	return &grid{
		ps:    ps,
		opts:  opts,
		buses: make(map[string]*powersystem.Bus),
		lines: make(map[string]*powersystem.Line),
	}, nil
}

func (g *grid) addBuses(specs []busSpec) error {
	for _, s := range specs {
		b, err := g.ps.NewBus(powersystem.BusConfig{
			Name:       s.name,
			NCustomers: s.n,
			PLoad:      s.p,
			QLoad:      s.q,
			IsSlack:    s.slack,
			OutageTime: g.opts.TrafoOutageTime,
			Cost:       powersystem.CostFunction{A: 1, B: 10},
		})
		if err != nil {
			return err
		}
		g.buses[s.name] = b
		if dist, ok := g.opts.EVParks[s.name]; ok {
			if _, err := g.ps.NewEVPark(powersystem.EVParkConfig{
				Name:          "EV_" + s.name,
				StorageConfig: carStorage,
				NumEVDist:     dist,
			}, b); err != nil {
				return err
			}
		}
	}
	return nil
}

var carStorage = powersystem.StorageConfig{
	InjPMax:    0.011,
	InjQMax:    0.011,
	EMax:       0.05,
	SOCMin:     0.2,
	SOCMax:     0.9,
	Efficiency: 0.95,
}

func (g *grid) addLines(specs []lineSpec) error {
	for _, s := range specs {
		from, to := g.buses[s.from], g.buses[s.to]
		if from == nil || to == nil {
			return fmt.Errorf("line %s: unknown bus: %w", s.name, powersystem.ErrInvalidParameter)
		}
		l, err := g.ps.NewLine(powersystem.LineConfig{
			Name:            s.name,
			R:               s.r,
			X:               s.x,
			Length:          s.length,
			FailRateDensity: g.opts.FailRate,
			RepairTime:      g.opts.RepairTime,
			IsBackup:        s.backup,
		}, from, to)
		if err != nil {
			return err
		}
		g.lines[s.name] = l
	}
	return nil
}

func (g *grid) addSwitches(specs []switchSpec) error {
	for _, s := range specs {
		l := g.lines[s.line]
		if l == nil {
			return fmt.Errorf("switch %s: unknown line %s: %w", s.name, s.line, powersystem.ErrInvalidParameter)
		}
		var err error
		if s.bus == "" {
			_, err = g.ps.NewCircuitBreaker(s.name, l)
		} else {
			_, err = g.ps.NewDisconnector(s.name, l, g.buses[s.bus])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *grid) attach(n *powersystem.Network, buses, lines []string) error {
	for _, name := range buses {
		if err := n.AddBus(g.buses[name]); err != nil {
			return err
		}
	}
	for _, name := range lines {
		if err := n.AddLine(g.lines[name]); err != nil {
			return err
		}
	}
	return nil
}

// controllers attaches a distribution controller to dist and a microgrid
// controller to every microgrid under it, then builds the sections.
func (g *grid) controllers(dist *powersystem.Network) error {
	cfg := controller.Config{ManualSectioningTime: g.opts.ManualSectioningTime}
	if _, err := controller.NewDistributionController(cfg, dist); err != nil {
		return err
	}
	for _, mg := range dist.Microgrids() {
		if _, err := controller.NewMicrogridController(cfg, mg); err != nil {
			return err
		}
	}
	if err := g.ps.CreateSections(); err != nil {
		return err
	}
	g.ps.ResetStatus(false)
	return nil
}

func names(prefix string, from, to int) []string {
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}

func lookup[T any](ps *powersystem.PowerSystem, name string) T {
	var zero T
	c, ok := ps.Component(name)
	if !ok {
		return zero
	}
	v, _ := c.(T)
	return v
}

// Bus returns the named bus or nil
func Bus(ps *powersystem.PowerSystem, name string) *powersystem.Bus {
	return lookup[*powersystem.Bus](ps, name)
}

// Line returns the named line or nil
func Line(ps *powersystem.PowerSystem, name string) *powersystem.Line {
	return lookup[*powersystem.Line](ps, name)
}

// Switch returns the named switch or nil
func Switch(ps *powersystem.PowerSystem, name string) *powersystem.Switch {
	return lookup[*powersystem.Switch](ps, name)
}

// Battery returns the named battery or nil
func Battery(ps *powersystem.PowerSystem, name string) *powersystem.Battery {
	return lookup[*powersystem.Battery](ps, name)
}

// EVPark returns the named EV park or nil
func EVPark(ps *powersystem.PowerSystem, name string) *powersystem.EVPark {
	return lookup[*powersystem.EVPark](ps, name)
}

// Network returns the first network named name or nil
func Network(ps *powersystem.PowerSystem, name string) *powersystem.Network {
	for _, n := range ps.Networks() {
		if n.Name() == name {
			return n
		}
	}
	return nil
}
