package powersystem

import (
	"fmt"
	"math/rand/v2"

	"github.com/ohowland/relsim/internal/pkg/history"
	"github.com/ohowland/relsim/internal/pkg/ict"
	"github.com/ohowland/relsim/internal/pkg/simtime"
)

// DeviceState is the state of an intelligent switch or sensor
type DeviceState int

const (
	DeviceOK DeviceState = iota
	DeviceFailed
	DeviceRepair
)

func (s DeviceState) String() string {
	switch s {
	case DeviceOK:
		return "OK"
	case DeviceFailed:
		return "FAILED"
	}
	return "REPAIR"
}

// IntelligentSwitchConfig holds the static parameters of an intelligent switch
type IntelligentSwitchConfig struct {
	Name             string
	FailRate         float64 // per year
	ManualRepairTime simtime.Time
	ICTNode          *ict.Node
}

// IntelligentSwitch adds remote actuation to a disconnector
type IntelligentSwitch struct {
	id           ISwitchID
	ps           *PowerSystem
	cfg          IntelligentSwitchConfig
	disconnector SwitchID
	state        DeviceState
	remaining    simtime.Time
	history      *history.Log
}

// NewIntelligentSwitch wraps disconnector d
func (ps *PowerSystem) NewIntelligentSwitch(cfg IntelligentSwitchConfig, d *Switch) (*IntelligentSwitch, error) {
	if d == nil || d.kind != Disconnector {
		return nil, fmt.Errorf("intelligent switch %s needs a disconnector: %w", cfg.Name, ErrInvalidParameter)
	}
	if cfg.FailRate < 0 {
		return nil, fmt.Errorf("intelligent switch %s: %w", cfg.Name, ErrInvalidParameter)
	}
	if ps.lines[d.line].network != NoNetwork {
		return nil, fmt.Errorf("intelligent switch %s: %w", cfg.Name, ErrAlreadyAttached)
	}
	if d.iswitch != NoISwitch {
		return nil, fmt.Errorf("intelligent switch %s on %s: %w", cfg.Name, d.name, ErrAlreadyOwned)
	}
	if err := ps.reserveName(cfg.Name); err != nil {
		return nil, err
	}
	s := &IntelligentSwitch{
		id:           ISwitchID(len(ps.iswitches)),
		ps:           ps,
		cfg:          cfg,
		disconnector: d.id,
	}
	ps.iswitches = append(ps.iswitches, s)
	d.iswitch = s.id
	return s, nil
}

func (s *IntelligentSwitch) ID() ISwitchID { return s.id }
func (s *IntelligentSwitch) Name() string { return s.cfg.Name }
func (s *IntelligentSwitch) State() DeviceState { return s.state }
func (s *IntelligentSwitch) Disconnector() SwitchID { return s.disconnector }
func (s *IntelligentSwitch) ICTNode() *ict.Node { return s.cfg.ICTNode }
func (s *IntelligentSwitch) RemainingRepairTime() simtime.Time { return s.remaining }
func (s *IntelligentSwitch) History() *history.Log { return s.history }

// Fail puts the switch in FAILED until it is next needed
func (s *IntelligentSwitch) Fail() {
	s.state = DeviceFailed
}

// UpdateFailStatus samples a failure while OK and ages the repair timer
func (s *IntelligentSwitch) UpdateFailStatus(dt simtime.Time, r *rand.Rand) {
	switch s.state {
	case DeviceOK:
		if s.cfg.FailRate > 0 && r.Float64() < simtime.ConvertYearlyFailRate(s.cfg.FailRate, dt) {
			s.Fail()
		}
	case DeviceRepair:
		s.remaining = s.remaining.Sub(dt)
		if !s.remaining.Positive() {
			s.state = DeviceOK
			s.remaining = simtime.Hours(0)
		}
	}
}

// GetOpenTime is the time needed to open the switch. A failed switch sends a
// crew and enters REPAIR.
func (s *IntelligentSwitch) GetOpenTime(manualSectioningTime simtime.Time) simtime.Time {
	if s.state == DeviceFailed {
		s.startRepair()
		return manualSectioningTime
	}
	return simtime.Hours(0)
}

func (s *IntelligentSwitch) startRepair() {
	s.state = DeviceRepair
	s.remaining = s.cfg.ManualRepairTime
}

// Open opens the wrapped disconnector
func (s *IntelligentSwitch) Open() {
	s.ps.switches[s.disconnector].Open()
}

// Close closes the wrapped disconnector. A failed switch is closed by hand
// and enters REPAIR.
func (s *IntelligentSwitch) Close() {
	if s.state == DeviceFailed {
		s.startRepair()
	}
	s.ps.switches[s.disconnector].Close()
}

func (s *IntelligentSwitch) ResetStatus(save bool) {
	s.state = DeviceOK
	s.remaining = simtime.Hours(0)
	s.history = nil
	if save {
		s.history = history.New()
	}
}

func (s *IntelligentSwitch) UpdateHistory() {
	s.history.Record("state", float64(s.state))
	s.history.Record("remaining_repair_time", s.remaining.Hours())
}
