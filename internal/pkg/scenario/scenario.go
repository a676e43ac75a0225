// Package scenario reads a power system description from YAML and builds it
// through the powersystem and controller constructors. A scenario either
// lists its components or names one of the reference networks.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ohowland/relsim/internal/lib/testnet"
	"github.com/ohowland/relsim/internal/pkg/controller"
	"github.com/ohowland/relsim/internal/pkg/ict"
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/sampler"
	"github.com/ohowland/relsim/internal/pkg/simtime"
	"github.com/ohowland/relsim/internal/pkg/solar"
	"github.com/ohowland/relsim/internal/pkg/table"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownReference   = errors.New("unknown reference")
	ErrUnknownTestnet     = errors.New("unknown reference network")
	ErrUnnamedNetwork     = errors.New("network without a name")
	ErrConflictingProfile = errors.New("conflicting profiles")
)

// Scenario is the root of a scenario file. Times are in hours.
type Scenario struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	SRef        float64         `yaml:"s_ref"`
	VRef        float64         `yaml:"v_ref"`
	Testnet     *TestnetDef     `yaml:"testnet,omitempty"`
	Main        MainDef         `yaml:"main_controller"`
	Controllers ControllerDef   `yaml:"controllers"`
	Buses       []BusDef        `yaml:"buses"`
	Lines       []LineDef       `yaml:"lines"`
	Switches    []SwitchDef     `yaml:"switches"`
	Batteries   []BatteryDef    `yaml:"batteries,omitempty"`
	Productions []ProductionDef `yaml:"productions,omitempty"`
	EVParks     []EVParkDef     `yaml:"ev_parks,omitempty"`
	ICT         []ICTNetworkDef `yaml:"ict,omitempty"`
	Sensors     []SensorDef     `yaml:"sensors,omitempty"`
	ISwitches   []ISwitchDef    `yaml:"intelligent_switches,omitempty"`
	Networks    NetworksDef     `yaml:"networks"`
}

// TestnetDef selects a reference network: rbts2, cineldi or ieee33
type TestnetDef struct {
	Name                 string              `yaml:"name"`
	Mode                 string              `yaml:"mode,omitempty"`
	FailRate             float64             `yaml:"fail_rate,omitempty"`
	RepairTime           *SamplerDef         `yaml:"repair_time,omitempty"`
	ManualSectioningTime float64             `yaml:"manual_sectioning_time,omitempty"`
	TrafoOutageTime      float64             `yaml:"trafo_outage_time,omitempty"`
	EVParks              map[string]TableDef `yaml:"ev_parks,omitempty"`
}

// MainDef configures the main controller. Manual selects a controller that
// never fails and sends crews with a fixed sectioning time.
type MainDef struct {
	Name                     string  `yaml:"name,omitempty"`
	Manual                   bool    `yaml:"manual,omitempty"`
	ManualSectioningTime     float64 `yaml:"manual_sectioning_time,omitempty"`
	HardwareFailRate         float64 `yaml:"hardware_fail_rate"`
	SoftwareFailRate         float64 `yaml:"software_fail_rate"`
	PFailRepairNewSignal     float64 `yaml:"p_fail_repair_new_signal"`
	PFailRepairReboot        float64 `yaml:"p_fail_repair_reboot"`
	NewSignalTime            float64 `yaml:"new_signal_time"`
	RebootTime               float64 `yaml:"reboot_time"`
	ManualHardwareRepairTime float64 `yaml:"manual_hardware_repair_time"`
	ManualSoftwareRepairTime float64 `yaml:"manual_software_repair_time"`
}

type ControllerDef struct {
	ManualSectioningTime float64 `yaml:"manual_sectioning_time"`
}

type ProfileDef struct {
	P []float64 `yaml:"p"`
	Q []float64 `yaml:"q"`
}

type BusDef struct {
	Name       string                   `yaml:"name"`
	NCustomers int                      `yaml:"n_customers"`
	Coordinate [2]float64               `yaml:"coordinate,omitempty"`
	FailRate   float64                  `yaml:"fail_rate"`
	OutageTime float64                  `yaml:"outage_time"`
	ZIP        [3]float64               `yaml:"zip,omitempty"`
	PLoad      float64                  `yaml:"p_load"`
	QLoad      float64                  `yaml:"q_load"`
	Cost       powersystem.CostFunction `yaml:"cost"`
	Slack      bool                     `yaml:"slack,omitempty"`
	ILoss      bool                     `yaml:"i_loss,omitempty"`
	Profile    *ProfileDef              `yaml:"load_profile,omitempty"`
}

type LineDef struct {
	Name       string      `yaml:"name"`
	From       string      `yaml:"from"`
	To         string      `yaml:"to"`
	R          float64     `yaml:"r"`
	X          float64     `yaml:"x"`
	Length     float64     `yaml:"length"`
	Capacity   float64     `yaml:"capacity,omitempty"`
	FailRate   float64     `yaml:"fail_rate"`
	RepairTime *SamplerDef `yaml:"repair_time,omitempty"`
	Backup     bool        `yaml:"backup,omitempty"`
}

// SwitchDef is a disconnector next to Bus, or the line's circuit breaker
// when Bus is empty
type SwitchDef struct {
	Name string `yaml:"name"`
	Line string `yaml:"line"`
	Bus  string `yaml:"bus,omitempty"`
}

type StorageDef struct {
	InjPMax    float64 `yaml:"inj_p_max"`
	InjQMax    float64 `yaml:"inj_q_max"`
	InjMax     float64 `yaml:"inj_max,omitempty"`
	EMax       float64 `yaml:"e_max"`
	SOCMin     float64 `yaml:"soc_min"`
	SOCMax     float64 `yaml:"soc_max"`
	Efficiency float64 `yaml:"efficiency"`
}

func (s StorageDef) config() powersystem.StorageConfig {
	return powersystem.StorageConfig{
		InjPMax:    s.InjPMax,
		InjQMax:    s.InjQMax,
		InjMax:     s.InjMax,
		EMax:       s.EMax,
		SOCMin:     s.SOCMin,
		SOCMax:     s.SOCMax,
		Efficiency: s.Efficiency,
	}
}

type BatteryDef struct {
	Name         string     `yaml:"name"`
	Bus          string     `yaml:"bus"`
	Storage      StorageDef `yaml:",inline"`
	InitialSOC   float64    `yaml:"initial_soc,omitempty"`
	SurvivalTime float64    `yaml:"survival_time"`
}

type ProductionDef struct {
	Name    string      `yaml:"name"`
	Bus     string      `yaml:"bus"`
	PMax    float64     `yaml:"p_max"`
	QMax    float64     `yaml:"q_max"`
	P       float64     `yaml:"p"`
	Q       float64     `yaml:"q"`
	Profile *ProfileDef `yaml:"profile,omitempty"`
	Solar   *SolarDef   `yaml:"solar,omitempty"`
}

// SolarDef generates the profile of a PV unit rated p_max from a clear-sky
// model. Angles in degrees, elevation in km.
type SolarDef struct {
	Latitude  float64 `yaml:"latitude"`
	Elevation float64 `yaml:"elevation,omitempty"`
	Tilt      float64 `yaml:"tilt"`
	Azimuth   float64 `yaml:"azimuth,omitempty"`
	// Start is the first day, 2006-01-02; January 1st of 2023 when empty
	Start string `yaml:"start,omitempty"`
	Hours int    `yaml:"hours,omitempty"`
}

func (d SolarDef) profile(pmax float64) ([]float64, []float64, error) {
	start := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	if d.Start != "" {
		var err error
		if start, err = time.Parse(time.DateOnly, d.Start); err != nil {
			return nil, nil, err
		}
	}
	hours := d.Hours
	if hours == 0 {
		hours = 8760
	}
	p, err := solar.HourlyProfile(
		solar.Array{Tilt: solar.Radians(d.Tilt), Azimuth: solar.Radians(d.Azimuth)},
		solar.Site{Latitude: solar.Radians(d.Latitude), Elevation: d.Elevation},
		start, hours, pmax)
	if err != nil {
		return nil, nil, err
	}
	return p, make([]float64, hours), nil
}

// TableDef is a stepwise table of cars by hour of day
type TableDef struct {
	Hours []float64 `yaml:"hours"`
	Cars  []float64 `yaml:"cars"`
}

func (t TableDef) table() (*table.Table, error) {
	return table.New(t.Hours, t.Cars)
}

type EVParkDef struct {
	Name    string     `yaml:"name"`
	Bus     string     `yaml:"bus"`
	Storage StorageDef `yaml:",inline"`
	V2G     bool       `yaml:"v2g,omitempty"`
	Cars    TableDef   `yaml:"cars_by_hour"`
}

type ICTNodeDef struct {
	Name       string  `yaml:"name"`
	FailRate   float64 `yaml:"fail_rate"`
	RepairTime float64 `yaml:"repair_time"`
}

type ICTLineDef struct {
	Name       string  `yaml:"name"`
	A          string  `yaml:"a"`
	B          string  `yaml:"b"`
	FailRate   float64 `yaml:"fail_rate"`
	RepairTime float64 `yaml:"repair_time"`
}

type ICTNetworkDef struct {
	Name  string       `yaml:"name"`
	Nodes []ICTNodeDef `yaml:"nodes"`
	Lines []ICTLineDef `yaml:"lines"`
}

type SensorDef struct {
	Name                 string  `yaml:"name"`
	Line                 string  `yaml:"line"`
	FailRate             float64 `yaml:"fail_rate"`
	PFailRepairNewSignal float64 `yaml:"p_fail_repair_new_signal"`
	PFailRepairReboot    float64 `yaml:"p_fail_repair_reboot"`
	NewSignalTime        float64 `yaml:"new_signal_time"`
	RebootTime           float64 `yaml:"reboot_time"`
	ManualRepairTime     float64 `yaml:"manual_repair_time"`
	ICTNode              string  `yaml:"ict_node,omitempty"`
}

type ISwitchDef struct {
	Name             string  `yaml:"name"`
	Switch           string  `yaml:"switch"`
	FailRate         float64 `yaml:"fail_rate"`
	ManualRepairTime float64 `yaml:"manual_repair_time"`
	ICTNode          string  `yaml:"ict_node,omitempty"`
}

type NetworkDef struct {
	Name    string   `yaml:"name"`
	Parent  string   `yaml:"parent,omitempty"`
	Line    string   `yaml:"line"`
	Mode    string   `yaml:"mode,omitempty"`
	Buses   []string `yaml:"buses"`
	Lines   []string `yaml:"lines"`
	ICTNode string   `yaml:"ict_node,omitempty"`
	ICTNet  string   `yaml:"ict_network,omitempty"`
}

type NetworksDef struct {
	Slack         string       `yaml:"slack"`
	Distributions []NetworkDef `yaml:"distributions"`
	Microgrids    []NetworkDef `yaml:"microgrids,omitempty"`
}

// Load reads and parses a scenario file
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a scenario document. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if sc.SRef == 0 {
		sc.SRef = 1
	}
	return &sc, nil
}

func hours(h float64) simtime.Time { return simtime.Hours(h) }

// Build constructs a fresh power system. Every call returns an independent
// system, so Build can serve as a Monte-Carlo builder.
func (sc *Scenario) Build() (*powersystem.PowerSystem, error) {
	if sc.Testnet != nil {
		return sc.Testnet.build()
	}
	b, err := newBuilder(sc)
	if err != nil {
		return nil, err
	}
	steps := []func() error{
		b.buses, b.ders, b.lines, b.switches, b.ict, b.devices, b.networks, b.controllers,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
	}
	if err := b.ps.CreateSections(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	b.ps.ResetStatus(false)
	return b.ps, nil
}

func (t TestnetDef) build() (*powersystem.PowerSystem, error) {
	opts := testnet.Options{
		Mode:                 t.Mode,
		FailRate:             t.FailRate,
		ManualSectioningTime: hours(t.ManualSectioningTime),
		TrafoOutageTime:      hours(t.TrafoOutageTime),
	}
	if t.RepairTime != nil {
		s, err := t.RepairTime.sampler()
		if err != nil {
			return nil, err
		}
		opts.RepairTime = s
	}
	if len(t.EVParks) > 0 {
		opts.EVParks = make(map[string]*table.Table, len(t.EVParks))
		for bus, def := range t.EVParks {
			tab, err := def.table()
			if err != nil {
				return nil, fmt.Errorf("ev park at %s: %w", bus, err)
			}
			opts.EVParks[bus] = tab
		}
	}
	switch t.Name {
	case "rbts2", "RBTS2":
		return testnet.RBTS2(opts)
	case "cineldi", "CINELDI":
		return testnet.CINELDI(opts)
	case "ieee33", "IEEE33":
		return testnet.IEEE33(opts)
	}
	return nil, fmt.Errorf("%q: %w", t.Name, ErrUnknownTestnet)
}

// builder resolves names while the components are created
type builder struct {
	sc       *Scenario
	ps       *powersystem.PowerSystem
	buses    map[string]*powersystem.Bus
	lines    map[string]*powersystem.Line
	switches map[string]*powersystem.Switch
	nodes    map[string]*ict.Node
	ictNets  map[string]*ict.Network
	networks map[string]*powersystem.Network
}

func newBuilder(sc *Scenario) (*builder, error) {
	main, err := sc.Main.controller()
	if err != nil {
		return nil, err
	}
	ps, err := powersystem.New(powersystem.Config{Name: sc.Name, SRef: sc.SRef, VRef: sc.VRef}, main)
	if err != nil {
		return nil, err
	}
	return &builder{
		sc:       sc,
		ps:       ps,
		buses:    make(map[string]*powersystem.Bus),
		lines:    make(map[string]*powersystem.Line),
		switches: make(map[string]*powersystem.Switch),
		nodes:    make(map[string]*ict.Node),
		ictNets:  make(map[string]*ict.Network),
		networks: make(map[string]*powersystem.Network),
	}, nil
}

func (m MainDef) controller() (powersystem.MainController, error) {
	if m.Manual {
		return controller.NewManualMainController(m.Name, hours(m.ManualSectioningTime)), nil
	}
	return controller.NewMainController(controller.MainConfig{
		Name:                     m.Name,
		HardwareFailRate:         m.HardwareFailRate,
		SoftwareFailRate:         m.SoftwareFailRate,
		PFailRepairNewSignal:     m.PFailRepairNewSignal,
		PFailRepairReboot:        m.PFailRepairReboot,
		NewSignalTime:            hours(m.NewSignalTime),
		RebootTime:               hours(m.RebootTime),
		ManualHardwareRepairTime: hours(m.ManualHardwareRepairTime),
		ManualSoftwareRepairTime: hours(m.ManualSoftwareRepairTime),
	})
}

func resolve[T any](m map[string]T, kind, name string) (T, error) {
	v, ok := m[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", kind, name, ErrUnknownReference)
	}
	return v, nil
}

// optionalNode resolves an ICT node name; empty means none
func (b *builder) optionalNode(name string) (*ict.Node, error) {
	if name == "" {
		return nil, nil
	}
	return resolve(b.nodes, "ict node", name)
}

func (b *builder) buses() error {
	for _, d := range b.sc.Buses {
		bus, err := b.ps.NewBus(powersystem.BusConfig{
			Name:       d.Name,
			NCustomers: d.NCustomers,
			Coordinate: d.Coordinate,
			FailRate:   d.FailRate,
			OutageTime: hours(d.OutageTime),
			ZIP:        d.ZIP,
			PLoad:      d.PLoad,
			QLoad:      d.QLoad,
			Cost:       d.Cost,
			IsSlack:    d.Slack,
			ILoss:      d.ILoss,
		})
		if err != nil {
			return err
		}
		if d.Profile != nil {
			if err := bus.AddLoadData(d.Profile.P, d.Profile.Q, d.Cost); err != nil {
				return err
			}
		}
		b.buses[d.Name] = bus
	}
	return nil
}

func (b *builder) ders() error {
	for _, d := range b.sc.Batteries {
		bus, err := resolve(b.buses, "bus", d.Bus)
		if err != nil {
			return err
		}
		if _, err := b.ps.NewBattery(powersystem.BatteryConfig{
			Name:          d.Name,
			StorageConfig: d.Storage.config(),
			InitialSOC:    d.InitialSOC,
			SurvivalTime:  hours(d.SurvivalTime),
		}, bus); err != nil {
			return err
		}
	}
	for _, d := range b.sc.Productions {
		bus, err := resolve(b.buses, "bus", d.Bus)
		if err != nil {
			return err
		}
		p, err := b.ps.NewProduction(powersystem.ProductionConfig{
			Name: d.Name, PMax: d.PMax, QMax: d.QMax, P: d.P, Q: d.Q,
		}, bus)
		if err != nil {
			return err
		}
		switch {
		case d.Profile != nil && d.Solar != nil:
			return fmt.Errorf("production %s: both profile and solar: %w", d.Name, ErrConflictingProfile)
		case d.Profile != nil:
			if err := p.AddProdData(d.Profile.P, d.Profile.Q); err != nil {
				return err
			}
		case d.Solar != nil:
			pp, qq, err := d.Solar.profile(d.PMax)
			if err != nil {
				return fmt.Errorf("production %s: %w", d.Name, err)
			}
			if err := p.AddProdData(pp, qq); err != nil {
				return err
			}
		}
	}
	for _, d := range b.sc.EVParks {
		bus, err := resolve(b.buses, "bus", d.Bus)
		if err != nil {
			return err
		}
		dist, err := d.Cars.table()
		if err != nil {
			return fmt.Errorf("ev park %s: %w", d.Name, err)
		}
		if _, err := b.ps.NewEVPark(powersystem.EVParkConfig{
			Name:          d.Name,
			StorageConfig: d.Storage.config(),
			V2G:           d.V2G,
			NumEVDist:     dist,
		}, bus); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) lines() error {
	for _, d := range b.sc.Lines {
		from, err := resolve(b.buses, "bus", d.From)
		if err != nil {
			return err
		}
		to, err := resolve(b.buses, "bus", d.To)
		if err != nil {
			return err
		}
		var repair sampler.Sampler
		if d.RepairTime != nil {
			if repair, err = d.RepairTime.sampler(); err != nil {
				return fmt.Errorf("line %s: %w", d.Name, err)
			}
		}
		l, err := b.ps.NewLine(powersystem.LineConfig{
			Name:            d.Name,
			R:               d.R,
			X:               d.X,
			Length:          d.Length,
			Capacity:        d.Capacity,
			FailRateDensity: d.FailRate,
			RepairTime:      repair,
			IsBackup:        d.Backup,
		}, from, to)
		if err != nil {
			return err
		}
		b.lines[d.Name] = l
	}
	return nil
}

func (b *builder) switches() error {
	for _, d := range b.sc.Switches {
		l, err := resolve(b.lines, "line", d.Line)
		if err != nil {
			return err
		}
		var s *powersystem.Switch
		if d.Bus == "" {
			s, err = b.ps.NewCircuitBreaker(d.Name, l)
		} else {
			var bus *powersystem.Bus
			if bus, err = resolve(b.buses, "bus", d.Bus); err != nil {
				return err
			}
			s, err = b.ps.NewDisconnector(d.Name, l, bus)
		}
		if err != nil {
			return err
		}
		b.switches[d.Name] = s
	}
	return nil
}

func (b *builder) ict() error {
	for _, d := range b.sc.ICT {
		n := b.ps.NewICTNetwork(d.Name)
		b.ictNets[n.Name()] = n
		for _, nd := range d.Nodes {
			node := ict.NewNode(nd.Name, nd.FailRate, hours(nd.RepairTime))
			n.AddNode(node)
			b.nodes[nd.Name] = node
		}
		for _, ld := range d.Lines {
			a, err := resolve(b.nodes, "ict node", ld.A)
			if err != nil {
				return err
			}
			c, err := resolve(b.nodes, "ict node", ld.B)
			if err != nil {
				return err
			}
			if _, err := n.AddLine(ld.Name, a, c, ld.FailRate, hours(ld.RepairTime)); err != nil {
				return err
			}
		}
	}
	return nil
}

// devices creates sensors and intelligent switches. Both must exist before
// their line joins a network.
func (b *builder) devices() error {
	for _, d := range b.sc.Sensors {
		l, err := resolve(b.lines, "line", d.Line)
		if err != nil {
			return err
		}
		node, err := b.optionalNode(d.ICTNode)
		if err != nil {
			return err
		}
		if _, err := b.ps.NewSensor(powersystem.SensorConfig{
			Name:                 d.Name,
			FailRate:             d.FailRate,
			PFailRepairNewSignal: d.PFailRepairNewSignal,
			PFailRepairReboot:    d.PFailRepairReboot,
			NewSignalTime:        hours(d.NewSignalTime),
			RebootTime:           hours(d.RebootTime),
			ManualRepairTime:     hours(d.ManualRepairTime),
			ICTNode:              node,
		}, l); err != nil {
			return err
		}
	}
	for _, d := range b.sc.ISwitches {
		s, err := resolve(b.switches, "switch", d.Switch)
		if err != nil {
			return err
		}
		node, err := b.optionalNode(d.ICTNode)
		if err != nil {
			return err
		}
		if _, err := b.ps.NewIntelligentSwitch(powersystem.IntelligentSwitchConfig{
			Name:             d.Name,
			FailRate:         d.FailRate,
			ManualRepairTime: hours(d.ManualRepairTime),
			ICTNode:          node,
		}, s); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) attach(n *powersystem.Network, d NetworkDef) error {
	n.SetName(d.Name)
	b.networks[d.Name] = n
	for _, name := range d.Buses {
		bus, err := resolve(b.buses, "bus", name)
		if err != nil {
			return err
		}
		if err := n.AddBus(bus); err != nil {
			return err
		}
	}
	for _, name := range d.Lines {
		l, err := resolve(b.lines, "line", name)
		if err != nil {
			return err
		}
		if err := n.AddLine(l); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) networks() error {
	nets := b.sc.Networks
	slack, err := resolve(b.buses, "bus", nets.Slack)
	if err != nil {
		return err
	}
	trans, err := powersystem.NewTransmission(b.ps, slack)
	if err != nil {
		return err
	}
	for _, d := range nets.Distributions {
		if d.Name == "" {
			return ErrUnnamedNetwork
		}
		l, err := resolve(b.lines, "line", d.Line)
		if err != nil {
			return err
		}
		n, err := powersystem.NewDistribution(trans, l)
		if err != nil {
			return err
		}
		if err := b.attach(n, d); err != nil {
			return err
		}
	}
	for _, d := range nets.Microgrids {
		if d.Name == "" {
			return ErrUnnamedNetwork
		}
		parent, err := resolve(b.networks, "network", d.Parent)
		if err != nil {
			return err
		}
		l, err := resolve(b.lines, "line", d.Line)
		if err != nil {
			return err
		}
		mode, err := powersystem.ParseMicrogridMode(d.Mode)
		if err != nil {
			return err
		}
		n, err := powersystem.NewMicrogrid(parent, l, mode)
		if err != nil {
			return err
		}
		if err := b.attach(n, d); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) controllerConfig(d NetworkDef) (controller.Config, error) {
	cfg := controller.Config{ManualSectioningTime: hours(b.sc.Controllers.ManualSectioningTime)}
	var err error
	if cfg.ICTNode, err = b.optionalNode(d.ICTNode); err != nil {
		return cfg, err
	}
	if d.ICTNet != "" {
		if cfg.ICTNetwork, err = resolve(b.ictNets, "ict network", d.ICTNet); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (b *builder) controllers() error {
	for _, d := range b.sc.Networks.Distributions {
		cfg, err := b.controllerConfig(d)
		if err != nil {
			return err
		}
		if _, err := controller.NewDistributionController(cfg, b.networks[d.Name]); err != nil {
			return err
		}
	}
	for _, d := range b.sc.Networks.Microgrids {
		cfg, err := b.controllerConfig(d)
		if err != nil {
			return err
		}
		if _, err := controller.NewMicrogridController(cfg, b.networks[d.Name]); err != nil {
			return err
		}
	}
	return nil
}
