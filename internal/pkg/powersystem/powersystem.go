// Package powersystem holds the component arena of a radial distribution
// system: buses, lines, switches, devices, storage and the network tree.
package powersystem

import (
	"fmt"
	"math/rand/v2"

	"github.com/ohowland/relsim/internal/pkg/ict"
	"github.com/ohowland/relsim/internal/pkg/simtime"
)

// Config holds the system-wide base values
type Config struct {
	Name string
	SRef float64 // MVA
	VRef float64 // kV
}

// MainController is the root of the controller hierarchy
type MainController interface {
	Name() string
	Attach(ps *PowerSystem)
	UpdateFailStatus(dt simtime.Time)
	RunControlLoop(curr, dt simtime.Time)
	ResetStatus(save bool)
	UpdateHistory()
}

// PowerSystem owns every component of one simulated system. It is not safe
// for concurrent use; each replication worker builds its own.
type PowerSystem struct {
	cfg  Config
	main MainController
	rng  *rand.Rand

	names map[string]any

	buses       []*Bus
	lines       []*Line
	switches    []*Switch
	iswitches   []*IntelligentSwitch
	sensors     []*Sensor
	batteries   []*Battery
	evparks     []*EVPark
	productions []*Production
	sections    []*Section
	networks    []*Network

	transmission NetworkID
	ictNetworks  []*ict.Network
}

// New returns an empty system driven by main. A nil main leaves the
// networks without supervision.
func New(cfg Config, main MainController) (*PowerSystem, error) {
	if cfg.SRef == 0 {
		cfg.SRef = 1
	}
	if cfg.VRef == 0 {
		cfg.VRef = 1
	}
	if cfg.SRef < 0 || cfg.VRef < 0 {
		return nil, fmt.Errorf("power system %s base values: %w", cfg.Name, ErrInvalidParameter)
	}
	ps := &PowerSystem{
		cfg:          cfg,
		main:         main,
		rng:          rand.New(rand.NewPCG(0, 0)),
		names:        make(map[string]any),
		transmission: NoNetwork,
	}
	if main != nil {
		main.Attach(ps)
	}
	return ps, nil
}

func (ps *PowerSystem) Name() string { return ps.cfg.Name }
func (ps *PowerSystem) SRef() float64 { return ps.cfg.SRef }
func (ps *PowerSystem) VRef() float64 { return ps.cfg.VRef }
func (ps *PowerSystem) MainController() MainController { return ps.main }
func (ps *PowerSystem) Rand() *rand.Rand { return ps.rng }

// ZBase is the base impedance in ohm
func (ps *PowerSystem) ZBase() float64 {
	return ps.cfg.VRef * ps.cfg.VRef / ps.cfg.SRef
}

// Seed resets the replication generator from the run seed and the
// replication index.
func (ps *PowerSystem) Seed(seed, iteration uint64) {
	ps.rng = rand.New(rand.NewPCG(seed, iteration))
}

// reserveName claims a component name. The component is bound to it when
// its host joins a network.
func (ps *PowerSystem) reserveName(name string) error {
	if name == "" {
		return fmt.Errorf("empty component name: %w", ErrInvalidParameter)
	}
	if _, ok := ps.names[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrDuplicateName)
	}
	ps.names[name] = nil
	return nil
}

func (ps *PowerSystem) register(name string, c any) {
	ps.names[name] = c
}

// Component looks up a network-attached component by name
func (ps *PowerSystem) Component(name string) (any, bool) {
	c, ok := ps.names[name]
	if !ok || c == nil {
		return nil, false
	}
	return c, true
}

// Counts holds the number of components of each kind
type Counts struct {
	Buses, Lines, Switches, IntelligentSwitches, Sensors int
	Batteries, EVParks, Productions, Sections, Networks  int
}

func (ps *PowerSystem) Counts() Counts {
	return Counts{
		Buses:               len(ps.buses),
		Lines:               len(ps.lines),
		Switches:            len(ps.switches),
		IntelligentSwitches: len(ps.iswitches),
		Sensors:             len(ps.sensors),
		Batteries:           len(ps.batteries),
		EVParks:             len(ps.evparks),
		Productions:         len(ps.productions),
		Sections:            len(ps.sections),
		Networks:            len(ps.networks),
	}
}

// Handle lookups. They panic on out-of-range handles except the sentinel,
// which returns nil.

func (ps *PowerSystem) Bus(id BusID) *Bus {
	if id == NoBus {
		return nil
	}
	return ps.buses[id]
}

func (ps *PowerSystem) Line(id LineID) *Line {
	if id == NoLine {
		return nil
	}
	return ps.lines[id]
}

func (ps *PowerSystem) Switch(id SwitchID) *Switch {
	if id == NoSwitch {
		return nil
	}
	return ps.switches[id]
}

func (ps *PowerSystem) IntelligentSwitch(id ISwitchID) *IntelligentSwitch {
	if id == NoISwitch {
		return nil
	}
	return ps.iswitches[id]
}

func (ps *PowerSystem) Sensor(id SensorID) *Sensor {
	if id == NoSensor {
		return nil
	}
	return ps.sensors[id]
}

func (ps *PowerSystem) Battery(id BatteryID) *Battery {
	if id == NoBattery {
		return nil
	}
	return ps.batteries[id]
}

func (ps *PowerSystem) EVPark(id EVParkID) *EVPark {
	if id == NoEVPark {
		return nil
	}
	return ps.evparks[id]
}

func (ps *PowerSystem) Production(id ProductionID) *Production {
	if id == NoProduction {
		return nil
	}
	return ps.productions[id]
}

func (ps *PowerSystem) Section(id SectionID) *Section {
	if id == NoSection {
		return nil
	}
	return ps.sections[id]
}

func (ps *PowerSystem) Network(id NetworkID) *Network {
	if id == NoNetwork {
		return nil
	}
	return ps.networks[id]
}

func (ps *PowerSystem) Buses() []*Bus { return ps.buses }
func (ps *PowerSystem) Lines() []*Line { return ps.lines }
func (ps *PowerSystem) Switches() []*Switch { return ps.switches }
func (ps *PowerSystem) IntelligentSwitches() []*IntelligentSwitch { return ps.iswitches }
func (ps *PowerSystem) Sensors() []*Sensor { return ps.sensors }
func (ps *PowerSystem) Batteries() []*Battery { return ps.batteries }
func (ps *PowerSystem) EVParks() []*EVPark { return ps.evparks }
func (ps *PowerSystem) Productions() []*Production { return ps.productions }
func (ps *PowerSystem) Sections() []*Section { return ps.sections }
func (ps *PowerSystem) Networks() []*Network { return ps.networks }
func (ps *PowerSystem) ICTNetworks() []*ict.Network { return ps.ictNetworks }

// Transmission returns the transmission network, nil before it is created
func (ps *PowerSystem) Transmission() *Network {
	return ps.Network(ps.transmission)
}

// SlackBus is the reference bus of the transmission network
func (ps *PowerSystem) SlackBus() BusID {
	t := ps.Transmission()
	if t == nil {
		return NoBus
	}
	for _, id := range t.buses {
		if ps.buses[id].IsSlack() {
			return id
		}
	}
	return NoBus
}

// Distributions lists the distribution networks in registration order
func (ps *PowerSystem) Distributions() []*Network {
	return ps.networksOf(DistributionNetwork)
}

// Microgrids lists the microgrids in registration order
func (ps *PowerSystem) Microgrids() []*Network {
	return ps.networksOf(MicrogridNetwork)
}

func (ps *PowerSystem) networksOf(kind NetworkKind) []*Network {
	var out []*Network
	for _, n := range ps.networks {
		if n.kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// NewICTNetwork creates an ICT network sampled with the rest of the system
func (ps *PowerSystem) NewICTNetwork(name string) *ict.Network {
	if name == "" {
		name = fmt.Sprintf("ict%d", len(ps.ictNetworks)+1)
	}
	n := ict.NewNetwork(name)
	ps.ictNetworks = append(ps.ictNetworks, n)
	return n
}

// Prepare resamples load and production profiles to n increments
func (ps *PowerSystem) Prepare(n int) {
	for _, b := range ps.buses {
		b.prepare(n)
	}
	for _, p := range ps.productions {
		p.prepare(n)
	}
}

// CreateSections rebuilds the section tree of every distribution and microgrid
func (ps *PowerSystem) CreateSections() error {
	ps.sections = nil
	for _, n := range ps.networks {
		n.sections = nil
	}
	for _, l := range ps.lines {
		l.section = NoSection
	}
	for _, n := range ps.networks {
		if err := n.CreateSections(); err != nil {
			return err
		}
	}
	return nil
}

// SetLoadAndCost advances loads and productions to increment inc
func (ps *PowerSystem) SetLoadAndCost(inc int) {
	for _, b := range ps.buses {
		b.SetLoadAndCost(inc)
	}
	for _, p := range ps.productions {
		p.SetProd(inc)
	}
}

// GetSystemLoadBalance is the net demand of the attached buses in pu
func (ps *PowerSystem) GetSystemLoadBalance() (p, q float64) {
	for _, b := range ps.buses {
		if b.network == NoNetwork {
			continue
		}
		p += b.pload - b.pprod
		q += b.qload - b.qprod
	}
	return p / ps.cfg.SRef, q / ps.cfg.SRef
}

// UpdateFailStatus samples failures in a fixed order so that a seed fully
// determines a replication.
func (ps *PowerSystem) UpdateFailStatus(dt simtime.Time) {
	for _, b := range ps.buses {
		if b.network == NoNetwork || b.network == ps.transmission {
			continue
		}
		b.UpdateFailStatus(dt, ps.rng)
	}
	for _, l := range ps.lines {
		if l.network == NoNetwork || l.network == ps.transmission {
			continue
		}
		l.UpdateFailStatus(dt, ps.rng)
	}
	for _, s := range ps.sensors {
		if ps.lines[s.line].network == NoNetwork {
			continue
		}
		s.UpdateFailStatus(dt, ps.rng)
	}
	for _, s := range ps.iswitches {
		if ps.lines[ps.switches[s.disconnector].line].network == NoNetwork {
			continue
		}
		s.UpdateFailStatus(dt, ps.rng)
	}
	if ps.main != nil {
		ps.main.UpdateFailStatus(dt)
	}
	for _, n := range ps.ictNetworks {
		n.UpdateFailStatus(dt, ps.rng)
	}
}

// RunControlLoop runs one tick of the controller hierarchy
func (ps *PowerSystem) RunControlLoop(curr, dt simtime.Time) {
	if ps.main != nil {
		ps.main.RunControlLoop(curr, dt)
	}
}

// ResetStatus restores the as-built state of every component. Switches go
// before lines so that lines reconnect through closed switches.
func (ps *PowerSystem) ResetStatus(save bool) {
	for _, s := range ps.switches {
		s.ResetStatus(save)
	}
	for _, l := range ps.lines {
		l.ResetStatus(save)
	}
	for _, b := range ps.buses {
		b.ResetStatus(save)
	}
	for _, b := range ps.batteries {
		b.ResetStatus(save)
	}
	for _, p := range ps.evparks {
		p.ResetStatus(save)
	}
	for _, p := range ps.productions {
		p.ResetStatus(save)
	}
	for _, s := range ps.sensors {
		s.ResetStatus(save)
	}
	for _, s := range ps.iswitches {
		s.ResetStatus(save)
	}
	for _, s := range ps.sections {
		s.ResetStatus(save)
	}
	for _, n := range ps.networks {
		n.ResetStatus(save)
	}
	if ps.main != nil {
		ps.main.ResetStatus(save)
	}
	for _, n := range ps.ictNetworks {
		n.Reset()
	}
}

// UpdateHistory records the current tick for every component and network
func (ps *PowerSystem) UpdateHistory() {
	for _, b := range ps.buses {
		b.UpdateHistory()
	}
	for _, l := range ps.lines {
		l.UpdateHistory()
	}
	for _, s := range ps.switches {
		s.UpdateHistory()
	}
	for _, s := range ps.iswitches {
		s.UpdateHistory()
	}
	for _, s := range ps.sensors {
		s.UpdateHistory()
	}
	for _, b := range ps.batteries {
		b.UpdateHistory()
	}
	for _, p := range ps.evparks {
		p.UpdateHistory()
	}
	for _, p := range ps.productions {
		p.UpdateHistory()
	}
	for _, s := range ps.sections {
		s.UpdateHistory()
	}
	for _, n := range ps.networks {
		n.UpdateHistory()
	}
	if ps.main != nil {
		ps.main.UpdateHistory()
	}
}
