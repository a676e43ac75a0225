package controller

import (
	"fmt"

	"github.com/ohowland/relsim/internal/pkg/history"
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/simtime"
	"github.com/rs/zerolog/log"
)

// MainState is the health of the main controller
type MainState int

const (
	MainOK MainState = iota
	SoftwareFail
	HardwareFail
	MainRepair
)

func (s MainState) String() string {
	switch s {
	case MainOK:
		return "OK"
	case SoftwareFail:
		return "SOFTWARE_FAIL"
	case HardwareFail:
		return "HARDWARE_FAIL"
	}
	return "REPAIR"
}

// MainConfig holds the failure model of the main controller. The recovery
// probabilities are the chance that a step fails to restore the software.
type MainConfig struct {
	Name                     string
	HardwareFailRate         float64 // per year
	SoftwareFailRate         float64 // per year
	PFailRepairNewSignal     float64
	PFailRepairReboot        float64
	NewSignalTime            simtime.Time
	RebootTime               simtime.Time
	ManualHardwareRepairTime simtime.Time
	ManualSoftwareRepairTime simtime.Time
}

// MainController supervises every distribution controller. While it is
// under repair the distributions fall back to field crews.
type MainController struct {
	cfg       MainConfig
	ps        *powersystem.PowerSystem
	sm        *stateMachine
	remaining simtime.Time
	history   *history.Log
}

// NewMainController validates cfg and returns a controller in state OK
func NewMainController(cfg MainConfig) (*MainController, error) {
	if cfg.HardwareFailRate < 0 || cfg.SoftwareFailRate < 0 {
		return nil, fmt.Errorf("main controller %s fail rate: %w", cfg.Name, powersystem.ErrInvalidParameter)
	}
	if !probability(cfg.PFailRepairNewSignal) || !probability(cfg.PFailRepairReboot) {
		return nil, fmt.Errorf("main controller %s recovery probability: %w", cfg.Name, powersystem.ErrInvalidParameter)
	}
	if cfg.Name == "" {
		cfg.Name = "main_controller"
	}
	return &MainController{
		cfg:       cfg,
		sm:        &stateMachine{okState{}},
		remaining: simtime.Hours(0),
	}, nil
}

func probability(p float64) bool {
	return p >= 0 && p <= 1
}

func (m *MainController) Name() string { return m.cfg.Name }
func (m *MainController) State() MainState { return m.sm.currentState.id() }
func (m *MainController) RemainingRepairTime() simtime.Time { return m.remaining }
func (m *MainController) History() *history.Log { return m.history }

// Attach binds the controller to the system it supervises
func (m *MainController) Attach(ps *powersystem.PowerSystem) { m.ps = ps }

// Fail forces the controller into a failure state
func (m *MainController) Fail(s MainState) {
	switch s {
	case HardwareFail:
		m.sm.currentState = hardwareFailState{}.enter(m)
	case SoftwareFail:
		m.sm.currentState = softwareFailState{}
	}
}

// UpdateFailStatus samples hardware then software failures while OK and
// ages the repair timer while in REPAIR.
func (m *MainController) UpdateFailStatus(dt simtime.Time) {
	m.sm.currentState = m.sm.currentState.transition(m, dt)
}

// RunControlLoop runs the distributions under the current state
func (m *MainController) RunControlLoop(curr, dt simtime.Time) {
	m.sm.currentState = m.sm.currentState.action(m, curr, dt)
}

func (m *MainController) distributions() []*DistributionController {
	var out []*DistributionController
	for _, n := range m.ps.Distributions() {
		if dc, ok := n.Controller().(*DistributionController); ok {
			out = append(out, dc)
		}
	}
	return out
}

func (m *MainController) runChildren(curr, dt simtime.Time, manual bool) {
	for _, dc := range m.distributions() {
		if manual {
			dc.RunManualControlLoop(curr, dt)
			continue
		}
		dc.RunControlLoop(curr, dt)
	}
}

// spread hands a sectioning delay to every child whose feeder is open
func (m *MainController) spread(t simtime.Time) {
	for _, dc := range m.distributions() {
		if dc.network.FeederBreaker().IsOpen() {
			dc.SetParentSectioningTime(t)
		}
		for _, mc := range dc.Microgrids() {
			if mc.network.FeederBreaker().IsOpen() {
				mc.SetParentSectioningTime(t)
			}
		}
	}
}

func (m *MainController) ResetStatus(save bool) {
	m.sm.currentState = okState{}
	m.remaining = simtime.Hours(0)
	m.history = nil
	if save {
		m.history = history.New()
	}
	for _, dc := range m.distributions() {
		dc.ResetStatus(save)
	}
}

func (m *MainController) UpdateHistory() {
	m.history.Record("state", float64(m.State()))
	m.history.Record("remaining_repair_time", m.remaining.Hours())
	for _, dc := range m.distributions() {
		dc.UpdateHistory()
	}
}

type stateMachine struct {
	currentState state
}

type state interface {
	id() MainState
	transition(*MainController, simtime.Time) state
	action(*MainController, simtime.Time, simtime.Time) state
}

type okState struct{}

func (s okState) id() MainState { return MainOK }

func (s okState) transition(m *MainController, dt simtime.Time) state {
	r := m.ps.Rand()
	if m.cfg.HardwareFailRate > 0 && r.Float64() < simtime.ConvertYearlyFailRate(m.cfg.HardwareFailRate, dt) {
		log.Debug().Str("controller", m.cfg.Name).Msg("hardware failure")
		return hardwareFailState{}.enter(m)
	}
	if m.cfg.SoftwareFailRate > 0 && r.Float64() < simtime.ConvertYearlyFailRate(m.cfg.SoftwareFailRate, dt) {
		log.Debug().Str("controller", m.cfg.Name).Msg("software failure")
		return softwareFailState{}
	}
	return s
}

func (s okState) action(m *MainController, curr, dt simtime.Time) state {
	m.runChildren(curr, dt, false)
	return s
}

// hardwareFailState sends a crew at once
type hardwareFailState struct{}

func (s hardwareFailState) enter(m *MainController) state {
	m.remaining = m.cfg.ManualHardwareRepairTime
	return repairState{}
}

type softwareFailState struct{}

func (s softwareFailState) id() MainState { return SoftwareFail }

func (s softwareFailState) transition(m *MainController, dt simtime.Time) state { return s }

// action tries a new signal, then a reboot. The time spent delays every open
// feeder; if both attempts fail a crew is sent.
func (s softwareFailState) action(m *MainController, curr, dt simtime.Time) state {
	r := m.ps.Rand()
	spent := m.cfg.NewSignalTime
	var next state = okState{}
	if r.Float64() < m.cfg.PFailRepairNewSignal {
		spent = spent.Add(m.cfg.RebootTime)
		if r.Float64() < m.cfg.PFailRepairReboot {
			m.remaining = m.cfg.ManualSoftwareRepairTime
			next = repairState{}
		}
	}
	m.spread(spent)
	return next.action(m, curr, dt)
}

type repairState struct{}

func (s repairState) id() MainState { return MainRepair }

func (s repairState) transition(m *MainController, dt simtime.Time) state {
	m.remaining = m.remaining.Sub(dt)
	if m.remaining.Positive() {
		return s
	}
	m.remaining = simtime.Hours(0)
	return okState{}
}

func (s repairState) action(m *MainController, curr, dt simtime.Time) state {
	m.runChildren(curr, dt, true)
	return s
}
