package powersystem

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/ohowland/relsim/internal/pkg/history"
	"github.com/ohowland/relsim/internal/pkg/sampler"
	"github.com/ohowland/relsim/internal/pkg/simtime"
)

// LineConfig holds the static parameters of a line. R and X are in ohm.
type LineConfig struct {
	Name            string
	R               float64
	X               float64
	Length          float64 // km
	Capacity        float64 // MVA, zero for unlimited
	FailRateDensity float64 // failures per km and year, per year when Length is zero
	RepairTime      sampler.Sampler
	IsBackup        bool
}

// Line is an impedance between two buses
type Line struct {
	id  LineID
	ps  *PowerSystem
	cfg LineConfig

	fbus, tbus BusID
	network    NetworkID
	section    SectionID

	breaker       SwitchID
	disconnectors []SwitchID
	sensor        SensorID

	rpu, xpu float64
	failRate float64

	connected bool
	failed    bool
	remaining simtime.Time

	// Written by the load flow, in pu.
	PFrom float64
	QFrom float64
	PTo   float64
	QTo   float64
	PLoss float64
	QLoss float64

	history *history.Log
}

// NewLine validates cfg and places a new line from fbus to tbus in the arena
func (ps *PowerSystem) NewLine(cfg LineConfig, fbus, tbus *Bus) (*Line, error) {
	if cfg.R < 0 || cfg.X < 0 || cfg.Length < 0 || cfg.FailRateDensity < 0 || cfg.Capacity < 0 {
		return nil, fmt.Errorf("line %s: %w", cfg.Name, ErrInvalidParameter)
	}
	if fbus == nil || tbus == nil || fbus == tbus {
		return nil, fmt.Errorf("line %s endpoints: %w", cfg.Name, ErrInvalidParameter)
	}
	if err := ps.reserveName(cfg.Name); err != nil {
		return nil, err
	}
	rate := cfg.FailRateDensity
	if cfg.Length > 0 {
		rate *= cfg.Length
	}
	zb := ps.ZBase()
	l := &Line{
		id:        LineID(len(ps.lines)),
		ps:        ps,
		cfg:       cfg,
		fbus:      fbus.id,
		tbus:      tbus.id,
		network:   NoNetwork,
		section:   NoSection,
		breaker:   NoSwitch,
		sensor:    NoSensor,
		rpu:       cfg.R / zb,
		xpu:       cfg.X / zb,
		failRate:  rate,
		connected: !cfg.IsBackup,
	}
	ps.lines = append(ps.lines, l)
	fbus.connectedLines = append(fbus.connectedLines, l.id)
	tbus.connectedLines = append(tbus.connectedLines, l.id)
	if l.connected {
		l.wire()
	}
	return l, nil
}

func (l *Line) ID() LineID { return l.id }
func (l *Line) Name() string { return l.cfg.Name }
func (l *Line) Config() LineConfig { return l.cfg }
func (l *Line) FBus() BusID { return l.fbus }
func (l *Line) TBus() BusID { return l.tbus }
func (l *Line) R() float64 { return l.rpu }
func (l *Line) X() float64 { return l.xpu }
func (l *Line) FailRate() float64 { return l.failRate }
func (l *Line) Network() NetworkID { return l.network }
func (l *Line) Section() SectionID { return l.section }
func (l *Line) CircuitBreaker() SwitchID { return l.breaker }
func (l *Line) Disconnectors() []SwitchID { return l.disconnectors }
func (l *Line) Sensor() SensorID { return l.sensor }
func (l *Line) IsBackup() bool { return l.cfg.IsBackup }
func (l *Line) Connected() bool { return l.connected }
func (l *Line) Failed() bool { return l.failed }
func (l *Line) RemainingOutageTime() simtime.Time { return l.remaining }
func (l *Line) History() *history.Log { return l.history }

// OtherEnd returns the bus opposite b
func (l *Line) OtherEnd(b BusID) BusID {
	if l.fbus == b {
		return l.tbus
	}
	return l.fbus
}

// HasDisconnectorAt reports whether a disconnector of the line sits at bus b
func (l *Line) HasDisconnectorAt(b BusID) bool {
	for _, id := range l.disconnectors {
		if l.ps.switches[id].bus == b {
			return true
		}
	}
	return false
}

// Loading is the sending-end apparent power relative to capacity
func (l *Line) Loading() float64 {
	if l.cfg.Capacity <= 0 {
		return 0
	}
	return math.Hypot(l.PFrom, l.QFrom) * l.ps.SRef() / l.cfg.Capacity
}

func (l *Line) switchesClosed() bool {
	if l.breaker != NoSwitch && l.ps.switches[l.breaker].isOpen {
		return false
	}
	for _, id := range l.disconnectors {
		if l.ps.switches[id].isOpen {
			return false
		}
	}
	return true
}

// Connect puts the line back in the wiring. It has no effect while the line
// is failed or any of its switches is open.
func (l *Line) Connect() {
	if l.connected || l.failed || !l.switchesClosed() {
		return
	}
	l.connected = true
	l.wire()
}

// Disconnect removes the line from the wiring
func (l *Line) Disconnect() {
	if !l.connected {
		return
	}
	l.connected = false
	l.unwire()
	l.PFrom, l.QFrom, l.PTo, l.QTo, l.PLoss, l.QLoss = 0, 0, 0, 0, 0, 0
}

// wire inserts the line into its end buses keeping line-id order
func (l *Line) wire() {
	f, t := l.ps.buses[l.fbus], l.ps.buses[l.tbus]
	i, found := slices.BinarySearch(f.fromLines, l.id)
	if !found {
		f.fromLines = slices.Insert(f.fromLines, i, l.id)
		f.nextBuses = slices.Insert(f.nextBuses, i, l.tbus)
	}
	t.toLine = l.id
}

func (l *Line) unwire() {
	f, t := l.ps.buses[l.fbus], l.ps.buses[l.tbus]
	if i, found := slices.BinarySearch(f.fromLines, l.id); found {
		f.fromLines = slices.Delete(f.fromLines, i, i+1)
		f.nextBuses = slices.Delete(f.nextBuses, i, i+1)
	}
	if t.toLine == l.id {
		t.toLine = NoLine
	}
}

// flip swaps the orientation of the line
func (l *Line) flip() {
	l.fbus, l.tbus = l.tbus, l.fbus
}

// Fail takes the line out of service, draws its repair time and trips the
// protection of its network.
func (l *Line) Fail() {
	wasConnected := l.connected
	l.failed = true
	l.remaining = simtime.Hours(0)
	if l.cfg.RepairTime != nil {
		l.remaining = simtime.Hours(l.cfg.RepairTime.Draw(l.ps.rng))
	}
	l.Disconnect()
	if !wasConnected {
		return
	}
	if l.breaker != NoSwitch {
		l.ps.switches[l.breaker].Open()
	}
	if n := l.ps.Network(l.network); n != nil {
		n.tripFeeder()
	}
}

// Repair returns the line to service. It stays disconnected until a
// controller reconnects it.
func (l *Line) Repair() {
	l.failed = false
	l.remaining = simtime.Hours(0)
}

// UpdateFailStatus ages a failed line or samples a new failure
func (l *Line) UpdateFailStatus(dt simtime.Time, r *rand.Rand) {
	if l.failed {
		l.remaining = l.remaining.Sub(dt)
		if !l.remaining.Positive() {
			l.Repair()
		}
		return
	}
	if l.failRate > 0 && r.Float64() < simtime.ConvertYearlyFailRate(l.failRate, dt) {
		l.Fail()
	}
}

// ResetStatus restores the as-built state
func (l *Line) ResetStatus(save bool) {
	l.failed = false
	l.remaining = simtime.Hours(0)
	l.PFrom, l.QFrom, l.PTo, l.QTo, l.PLoss, l.QLoss = 0, 0, 0, 0, 0, 0
	if l.cfg.IsBackup {
		l.Disconnect()
	} else {
		l.Connect()
	}
	l.history = nil
	if save {
		l.history = history.New()
	}
}

// UpdateHistory records the state of the current tick
func (l *Line) UpdateHistory() {
	if l.history == nil {
		return
	}
	h := l.history
	h.Record("p_from", l.PFrom)
	h.Record("q_from", l.QFrom)
	h.Record("p_to", l.PTo)
	h.Record("q_to", l.QTo)
	h.Record("ploss", l.PLoss)
	h.Record("qloss", l.QLoss)
	h.Record("line_loading", l.Loading())
	h.RecordBool("failed", l.failed)
	h.RecordBool("connected", l.connected)
	h.Record("remaining_outage_time", l.remaining.Hours())
}
