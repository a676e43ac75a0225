package powersystem

import (
	"fmt"
	"math/rand/v2"

	"github.com/ohowland/relsim/internal/pkg/history"
	"github.com/ohowland/relsim/internal/pkg/ict"
	"github.com/ohowland/relsim/internal/pkg/simtime"
)

// SensorConfig holds the static parameters of a line sensor. The recovery
// probabilities are the chance that a step fails to bring the sensor back.
type SensorConfig struct {
	Name                 string
	FailRate             float64 // per year
	PFailRepairNewSignal float64
	PFailRepairReboot    float64
	NewSignalTime        simtime.Time
	RebootTime           simtime.Time
	ManualRepairTime     simtime.Time
	ICTNode              *ict.Node
}

// Sensor observes the fault state of one line
type Sensor struct {
	id        SensorID
	ps        *PowerSystem
	cfg       SensorConfig
	line      LineID
	state     DeviceState
	remaining simtime.Time
	history   *history.Log
}

// NewSensor attaches a sensor to line before the line joins a network
func (ps *PowerSystem) NewSensor(cfg SensorConfig, line *Line) (*Sensor, error) {
	if cfg.FailRate < 0 || !probability(cfg.PFailRepairNewSignal) || !probability(cfg.PFailRepairReboot) {
		return nil, fmt.Errorf("sensor %s: %w", cfg.Name, ErrInvalidParameter)
	}
	if line.network != NoNetwork {
		return nil, fmt.Errorf("sensor %s on line %s: %w", cfg.Name, line.Name(), ErrAlreadyAttached)
	}
	if line.sensor != NoSensor {
		return nil, fmt.Errorf("sensor %s on line %s: %w", cfg.Name, line.Name(), ErrAlreadyOwned)
	}
	if err := ps.reserveName(cfg.Name); err != nil {
		return nil, err
	}
	s := &Sensor{
		id:   SensorID(len(ps.sensors)),
		ps:   ps,
		cfg:  cfg,
		line: line.id,
	}
	ps.sensors = append(ps.sensors, s)
	line.sensor = s.id
	return s, nil
}

func probability(p float64) bool {
	return p >= 0 && p <= 1
}

func (s *Sensor) ID() SensorID { return s.id }
func (s *Sensor) Name() string { return s.cfg.Name }
func (s *Sensor) Line() LineID { return s.line }
func (s *Sensor) State() DeviceState { return s.state }
func (s *Sensor) ICTNode() *ict.Node { return s.cfg.ICTNode }
func (s *Sensor) RemainingRepairTime() simtime.Time { return s.remaining }
func (s *Sensor) History() *history.Log { return s.history }

func (s *Sensor) Fail() {
	s.state = DeviceFailed
}

// UpdateFailStatus samples a failure while OK and ages the repair timer
func (s *Sensor) UpdateFailStatus(dt simtime.Time, r *rand.Rand) {
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

// GetLineFailStatus returns the time spent deciding and the reported fault
// state of the line. A failed sensor first tries a new signal, then a reboot;
// if both fail it goes to REPAIR and the line is reported failed.
func (s *Sensor) GetLineFailStatus(dt simtime.Time) (simtime.Time, bool) {
	line := s.ps.lines[s.line]
	switch s.state {
	case DeviceOK:
		return simtime.Hours(0), line.failed
	case DeviceRepair:
		return simtime.Hours(0), true
	}

	r := s.ps.rng
	spent := s.cfg.NewSignalTime
	if r.Float64() >= s.cfg.PFailRepairNewSignal {
		s.state = DeviceOK
		return spent, line.failed
	}
	spent = spent.Add(s.cfg.RebootTime)
	if r.Float64() >= s.cfg.PFailRepairReboot {
		s.state = DeviceOK
		return spent, line.failed
	}
	s.state = DeviceRepair
	s.remaining = s.cfg.ManualRepairTime
	return spent, true
}

func (s *Sensor) ResetStatus(save bool) {
	s.state = DeviceOK
	s.remaining = simtime.Hours(0)
	s.history = nil
	if save {
		s.history = history.New()
	}
}

func (s *Sensor) UpdateHistory() {
	s.history.Record("state", float64(s.state))
	s.history.Record("remaining_repair_time", s.remaining.Hours())
}
