package powersystem

import (
	"fmt"

	"github.com/ohowland/relsim/internal/pkg/history"
)

// SwitchKind discriminates the switch variants
type SwitchKind int

const (
	CircuitBreaker SwitchKind = iota
	Disconnector
)

func (k SwitchKind) String() string {
	if k == CircuitBreaker {
		return "CircuitBreaker"
	}
	return "Disconnector"
}

// Switch is a circuit breaker or a disconnector owned by exactly one line
type Switch struct {
	id      SwitchID
	ps      *PowerSystem
	name    string
	kind    SwitchKind
	line    LineID
	bus     BusID
	isOpen  bool
	iswitch ISwitchID
	history *history.Log
}

// NewCircuitBreaker protects line. The line must not yet belong to a network.
func (ps *PowerSystem) NewCircuitBreaker(name string, line *Line) (*Switch, error) {
	if line.network != NoNetwork {
		return nil, fmt.Errorf("circuit breaker %s on line %s: %w", name, line.Name(), ErrAlreadyAttached)
	}
	if line.breaker != NoSwitch {
		return nil, fmt.Errorf("circuit breaker %s on line %s: %w", name, line.Name(), ErrAlreadyOwned)
	}
	s, err := ps.newSwitch(name, CircuitBreaker, line, NoBus)
	if err != nil {
		return nil, err
	}
	line.breaker = s.id
	return s, nil
}

// NewDisconnector places a disconnector on line at bus, which must be one of
// the line's ends.
func (ps *PowerSystem) NewDisconnector(name string, line *Line, bus *Bus) (*Switch, error) {
	if line.network != NoNetwork {
		return nil, fmt.Errorf("disconnector %s on line %s: %w", name, line.Name(), ErrAlreadyAttached)
	}
	if bus == nil || (bus.id != line.fbus && bus.id != line.tbus) {
		return nil, fmt.Errorf("disconnector %s on line %s: %w", name, line.Name(), ErrWrongBus)
	}
	s, err := ps.newSwitch(name, Disconnector, line, bus.id)
	if err != nil {
		return nil, err
	}
	line.disconnectors = append(line.disconnectors, s.id)
	if line.IsBackup() {
		s.isOpen = true
	}
	return s, nil
}

func (ps *PowerSystem) newSwitch(name string, kind SwitchKind, line *Line, bus BusID) (*Switch, error) {
	if err := ps.reserveName(name); err != nil {
		return nil, err
	}
	s := &Switch{
		id:      SwitchID(len(ps.switches)),
		ps:      ps,
		name:    name,
		kind:    kind,
		line:    line.id,
		bus:     bus,
		iswitch: NoISwitch,
	}
	ps.switches = append(ps.switches, s)
	return s, nil
}

func (s *Switch) ID() SwitchID { return s.id }
func (s *Switch) Name() string { return s.name }
func (s *Switch) Kind() SwitchKind { return s.kind }
func (s *Switch) Line() LineID { return s.line }
func (s *Switch) Bus() BusID { return s.bus }
func (s *Switch) IsOpen() bool { return s.isOpen }
func (s *Switch) IntelligentSwitch() ISwitchID { return s.iswitch }
func (s *Switch) History() *history.Log { return s.history }

// Open opens the switch and disconnects its line
func (s *Switch) Open() {
	s.isOpen = true
	s.ps.lines[s.line].Disconnect()
}

// Close closes the switch; the line reconnects when nothing else holds it open
func (s *Switch) Close() {
	s.isOpen = false
	s.ps.lines[s.line].Connect()
}

// ResetStatus closes the switch, except disconnectors of backup lines
func (s *Switch) ResetStatus(save bool) {
	s.isOpen = s.kind == Disconnector && s.ps.lines[s.line].IsBackup()
	s.history = nil
	if save {
		s.history = history.New()
	}
}

// UpdateHistory records the state of the current tick
func (s *Switch) UpdateHistory() {
	s.history.RecordBool("is_open", s.isOpen)
}
