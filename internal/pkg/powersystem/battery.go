package powersystem

import (
	"fmt"
	"math"

	"github.com/ohowland/relsim/internal/pkg/history"
	"github.com/ohowland/relsim/internal/pkg/simtime"
)

// StorageConfig holds the electrical limits of a battery or an EV battery.
// Powers are in MW, energy in MWh.
type StorageConfig struct {
	InjPMax    float64
	InjQMax    float64
	InjMax     float64 // apparent power limit, zero for none
	EMax       float64
	SOCMin     float64
	SOCMax     float64
	Efficiency float64
}

func (c StorageConfig) validate() error {
	if c.InjPMax < 0 || c.InjQMax < 0 || c.InjMax < 0 || c.EMax <= 0 {
		return ErrInvalidParameter
	}
	if c.SOCMin < 0 || c.SOCMax > 1 || c.SOCMin > c.SOCMax {
		return ErrInvalidParameter
	}
	if c.Efficiency <= 0 || c.Efficiency > 1 {
		return ErrInvalidParameter
	}
	return nil
}

// storage integrates energy for the power-balance protocol
type storage struct {
	cfg    StorageConfig
	energy float64
}

func (s *storage) soc() float64 {
	return s.energy / s.cfg.EMax
}

// discharge delivers up to (p, q), bounded by the injection limits and by the
// energy above floor*EMax.
func (s *storage) discharge(p, q float64, dt simtime.Time, floor float64) (float64, float64) {
	h := dt.Hours()
	if h <= 0 {
		return 0, 0
	}
	pd := math.Min(math.Max(p, 0), s.cfg.InjPMax)
	qd := math.Min(math.Max(q, 0), s.cfg.InjQMax)
	if s.cfg.InjMax > 0 {
		if mag := math.Hypot(pd, qd); mag > s.cfg.InjMax {
			k := s.cfg.InjMax / mag
			pd, qd = pd*k, qd*k
		}
	}
	avail := s.energy - floor*s.cfg.EMax
	if avail <= 0 || pd+qd <= 0 {
		return 0, 0
	}
	dE := (pd + qd) * h / s.cfg.Efficiency
	if dE >= avail {
		k := avail / dE
		pd, qd = pd*k, qd*k
		s.energy = floor * s.cfg.EMax
		return pd, qd
	}
	s.energy -= dE
	return pd, qd
}

// charge absorbs up to p, bounded by InjPMax and SOCMax
func (s *storage) charge(p float64, dt simtime.Time) float64 {
	h := dt.Hours()
	if h <= 0 || p <= 0 {
		return 0
	}
	pc := math.Min(p, s.cfg.InjPMax)
	room := s.cfg.SOCMax*s.cfg.EMax - s.energy
	if room <= 0 {
		return 0
	}
	dE := s.cfg.Efficiency * pc * h
	if dE >= room {
		pc = room / (s.cfg.Efficiency * h)
		s.energy = s.cfg.SOCMax * s.cfg.EMax
		return pc
	}
	s.energy += dE
	return pc
}

// chargeDemand is the power needed to reach SOCMax within dt
func (s *storage) chargeDemand(dt simtime.Time) float64 {
	h := dt.Hours()
	if h <= 0 {
		return 0
	}
	room := s.cfg.SOCMax*s.cfg.EMax - s.energy
	if room <= 0 {
		return 0
	}
	return math.Min(s.cfg.InjPMax, room/(s.cfg.Efficiency*h))
}

// update runs the power-balance protocol on the residual (p, q) and returns
// what is left of it.
func (s *storage) update(p, q float64, dt simtime.Time, floor float64) (float64, float64) {
	switch {
	case p >= 0 && q >= 0:
		pd, qd := s.discharge(p, q, dt, floor)
		return p - pd, q - qd
	case p < 0 && q >= 0:
		pc := s.charge(-p, dt)
		_, qd := s.discharge(0, q, dt, floor)
		return p + pc, q - qd
	case p >= 0 && q < 0:
		pd, _ := s.discharge(p, 0, dt, floor)
		return p - pd, q
	default:
		pc := s.charge(-p, dt)
		return p + pc, q
	}
}

// BatteryState tells whether a battery took part in the last balance
type BatteryState int

const (
	BatteryInactive BatteryState = iota
	BatteryActive
)

// BatteryConfig holds the static parameters of a stationary battery
type BatteryConfig struct {
	Name string
	StorageConfig
	InitialSOC   float64 // zero means SOCMax
	SurvivalTime simtime.Time
}

// Battery is a bus-bound energy storage
type Battery struct {
	id  BatteryID
	ps  *PowerSystem
	cfg BatteryConfig
	bus BusID
	storage

	state             BatteryState
	survival          bool
	survivalLoad      float64
	survivalRemaining simtime.Time
	socMinDyn         float64
	pInj, qInj        float64

	history *history.Log
}

// NewBattery places a battery on bus before the bus joins a network
func (ps *PowerSystem) NewBattery(cfg BatteryConfig, bus *Bus) (*Battery, error) {
	if err := cfg.StorageConfig.validate(); err != nil {
		return nil, fmt.Errorf("battery %s: %w", cfg.Name, err)
	}
	if cfg.InitialSOC == 0 {
		cfg.InitialSOC = cfg.SOCMax
	}
	if cfg.InitialSOC < cfg.SOCMin || cfg.InitialSOC > cfg.SOCMax {
		return nil, fmt.Errorf("battery %s initial SOC %v: %w", cfg.Name, cfg.InitialSOC, ErrInvalidParameter)
	}
	if bus.network != NoNetwork {
		return nil, fmt.Errorf("battery %s on bus %s: %w", cfg.Name, bus.Name(), ErrAlreadyAttached)
	}
	if bus.battery != NoBattery {
		return nil, fmt.Errorf("battery %s on bus %s: %w", cfg.Name, bus.Name(), ErrAlreadyOwned)
	}
	if err := ps.reserveName(cfg.Name); err != nil {
		return nil, err
	}
	b := &Battery{
		id:        BatteryID(len(ps.batteries)),
		ps:        ps,
		cfg:       cfg,
		bus:       bus.id,
		storage:   storage{cfg: cfg.StorageConfig, energy: cfg.InitialSOC * cfg.EMax},
		socMinDyn: cfg.SOCMin,
	}
	ps.batteries = append(ps.batteries, b)
	bus.battery = b.id
	return b, nil
}

func (b *Battery) ID() BatteryID { return b.id }
func (b *Battery) Name() string { return b.cfg.Name }
func (b *Battery) Config() BatteryConfig { return b.cfg }
func (b *Battery) Bus() BusID { return b.bus }
func (b *Battery) State() BatteryState { return b.state }
func (b *Battery) Energy() float64 { return b.energy }
func (b *Battery) SOC() float64 { return b.soc() }
func (b *Battery) SOCMinDynamic() float64 { return b.socMinDyn }
func (b *Battery) InSurvival() bool { return b.survival }
func (b *Battery) PInjection() float64 { return b.pInj }
func (b *Battery) History() *history.Log { return b.history }

// SurvivalRemaining is what is left of the survival window
func (b *Battery) SurvivalRemaining() simtime.Time { return b.survivalRemaining }

// StartSurvival opens the survival window; load is the microgrid's peak own
// demand that the battery must be able to cover until the window closes.
func (b *Battery) StartSurvival(load float64) {
	if b.survival {
		return
	}
	b.survival = true
	b.survivalLoad = load
	b.survivalRemaining = b.cfg.SurvivalTime
}

// StopSurvival closes the survival window
func (b *Battery) StopSurvival() {
	b.survival = false
	b.survivalRemaining = simtime.Hours(0)
	b.socMinDyn = b.cfg.SOCMin
}

// floor is the SOC below which the battery refuses to discharge during the
// coming tick. While the survival window is open it reserves the energy for
// the part of the window after this tick.
func (b *Battery) floor(dt simtime.Time) float64 {
	b.socMinDyn = b.cfg.SOCMin
	if !b.survival || !b.survivalRemaining.Positive() {
		return b.socMinDyn
	}
	after := b.survivalRemaining.Sub(dt).ClampZero()
	reserve := b.survivalLoad * after.Hours() / b.cfg.Efficiency
	b.socMinDyn = math.Min(b.cfg.SOCMax, b.cfg.SOCMin+reserve/b.cfg.EMax)
	return b.socMinDyn
}

// Update runs the power-balance protocol on residual (p, q) and returns the
// remaining residual. Repeated calls within a tick share the injection limits.
func (b *Battery) Update(p, q float64, dt simtime.Time) (float64, float64) {
	b.state = BatteryActive
	op := headroom(p, b.pInj, b.cfg.InjPMax)
	oq := headroom(q, b.qInj, b.cfg.InjQMax)
	pr, qr := b.update(op, oq, dt, b.floor(dt))
	b.pInj += op - pr
	b.qInj += oq - qr
	return p - (op - pr), q - (oq - qr)
}

// headroom bounds the residual r offered to a storage that already injects
// inj this tick, so that |inj| stays within limit.
func headroom(r, inj, limit float64) float64 {
	if r > 0 {
		return math.Min(r, math.Max(limit-inj, 0))
	}
	return math.Max(r, -math.Max(limit+inj, 0))
}

// ChargeFromGrid charges toward SOCMax at up to InjPMax and returns the power drawn
func (b *Battery) ChargeFromGrid(dt simtime.Time) float64 {
	b.state = BatteryActive
	pc := b.charge(b.cfg.InjPMax, dt)
	b.pInj -= pc
	return pc
}

// BeginTick clears the per-tick injection
func (b *Battery) BeginTick() {
	b.state = BatteryInactive
	b.pInj, b.qInj = 0, 0
}

// EndTick ages the survival window
func (b *Battery) EndTick(dt simtime.Time) {
	if b.survival {
		b.survivalRemaining = b.survivalRemaining.Sub(dt).ClampZero()
	}
}

func (b *Battery) ResetStatus(save bool) {
	b.energy = b.cfg.InitialSOC * b.cfg.EMax
	b.state = BatteryInactive
	b.StopSurvival()
	b.survivalLoad = 0
	b.pInj, b.qInj = 0, 0
	b.history = nil
	if save {
		b.history = history.New()
	}
}

func (b *Battery) UpdateHistory() {
	if b.history == nil {
		return
	}
	b.history.Record("SOC", b.soc())
	b.history.Record("SOC_min", b.socMinDyn)
	b.history.Record("p", b.pInj)
	b.history.Record("q", b.qInj)
	b.history.Record("state", float64(b.state))
	b.history.Record("remaining_survival_time", b.survivalRemaining.Hours())
}
