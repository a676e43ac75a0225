package powersystem

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ohowland/relsim/internal/pkg/history"
	"github.com/ohowland/relsim/internal/pkg/simtime"
)

// CostFunction prices one interruption of duration d hours as A + B*d
type CostFunction struct {
	A float64 `yaml:"a" json:"a"`
	B float64 `yaml:"b" json:"b"`
}

// Cost of an interruption lasting d
func (c CostFunction) Cost(d simtime.Time) float64 {
	return c.A + c.B*d.Hours()
}

// BusConfig holds the static parameters of a bus. Loads are in MW and MVAr.
type BusConfig struct {
	Name       string
	NCustomers int
	Coordinate [2]float64
	FailRate   float64      // transformer failures per year
	OutageTime simtime.Time // transformer repair time
	ZIP        [3]float64   // zero value is read as constant power (0, 0, 1)
	PLoad      float64
	QLoad      float64
	Cost       CostFunction
	IsSlack    bool
	ILoss      bool // reactive power loss optimisation
}

// Sensitivities of bus voltage and network losses to bus injections
type Sensitivities struct {
	DVdP       float64
	DVdQ       float64
	DPlossdP   float64
	DPlossdQ   float64
	DQlossdP   float64
	DQlossdQ   float64
	DP2lossdP2 float64
	DP2lossdQ2 float64
	LossRatioP float64
	LossRatioQ float64
}

func initialSensitivities() Sensitivities {
	return Sensitivities{DP2lossdP2: 1, DP2lossdQ2: 1}
}

// Bus is a network node with customers and possibly a distribution transformer
type Bus struct {
	id  BusID
	ps  *PowerSystem
	cfg BusConfig

	network        NetworkID
	toLine         LineID
	fromLines      []LineID
	nextBuses      []BusID
	connectedLines []LineID

	battery    BatteryID
	evPark     EVParkID
	production ProductionID

	rawP, rawQ         []float64
	profileP, profileQ []float64

	// Written by the load flow.
	Vomag  float64
	Voang  float64
	Sens   Sensitivities
	PDown  float64
	QDown  float64
	QShift float64

	pload, qload float64
	pprod, qprod float64
	pDER, qDER   float64
	pShed, qShed float64
	supplied     bool

	trafoFailed     bool
	remainingOutage simtime.Time

	interrupted          bool
	currentOutage        simtime.Time
	interruptionFraction float64
	accPShed             float64
	accQShed             float64
	accOutage            simtime.Time
	accInterruptions     float64
	accCost              float64

	history *history.Log
}

// NewBus validates cfg and places a new bus in the arena
func (ps *PowerSystem) NewBus(cfg BusConfig) (*Bus, error) {
	if cfg.ZIP == [3]float64{} {
		cfg.ZIP = [3]float64{0, 0, 1}
	}
	if math.Abs(cfg.ZIP[0]+cfg.ZIP[1]+cfg.ZIP[2]-1) > 1e-9 {
		return nil, fmt.Errorf("bus %s ZIP %v does not sum to 1: %w", cfg.Name, cfg.ZIP, ErrInvalidParameter)
	}
	if cfg.NCustomers < 0 || cfg.FailRate < 0 || cfg.PLoad < 0 {
		return nil, fmt.Errorf("bus %s: %w", cfg.Name, ErrInvalidParameter)
	}
	if cfg.OutageTime.Value == 0 {
		cfg.OutageTime = simtime.Hours(0)
	}
	if err := ps.reserveName(cfg.Name); err != nil {
		return nil, err
	}
	b := &Bus{
		id:         BusID(len(ps.buses)),
		ps:         ps,
		cfg:        cfg,
		network:    NoNetwork,
		toLine:     NoLine,
		battery:    NoBattery,
		evPark:     NoEVPark,
		production: NoProduction,
		Vomag:      1,
		Sens:       initialSensitivities(),
		pload:      cfg.PLoad,
		qload:      cfg.QLoad,
	}
	ps.buses = append(ps.buses, b)
	return b, nil
}

func (b *Bus) ID() BusID { return b.id }
func (b *Bus) Name() string { return b.cfg.Name }
func (b *Bus) Config() BusConfig { return b.cfg }
func (b *Bus) NCustomers() int { return b.cfg.NCustomers }
func (b *Bus) IsSlack() bool { return b.cfg.IsSlack }
func (b *Bus) ZIP() [3]float64 { return b.cfg.ZIP }
func (b *Bus) ILoss() bool { return b.cfg.ILoss }
func (b *Bus) Network() NetworkID { return b.network }
func (b *Bus) ToLine() LineID { return b.toLine }
func (b *Bus) FromLines() []LineID { return b.fromLines }
func (b *Bus) NextBuses() []BusID { return b.nextBuses }

// ConnectedLines lists every line with an end at this bus, in creation order
func (b *Bus) ConnectedLines() []LineID { return b.connectedLines }

func (b *Bus) Battery() BatteryID { return b.battery }
func (b *Bus) EVPark() EVParkID { return b.evPark }
func (b *Bus) Production() ProductionID { return b.production }
func (b *Bus) History() *history.Log { return b.history }

// PLoad is the active demand of the current increment, in MW
func (b *Bus) PLoad() float64 { return b.pload }
func (b *Bus) QLoad() float64 { return b.qload }
func (b *Bus) PProd() float64 { return b.pprod }
func (b *Bus) QProd() float64 { return b.qprod }
func (b *Bus) PDER() float64 { return b.pDER }
func (b *Bus) QDER() float64 { return b.qDER }
func (b *Bus) PShed() float64 { return b.pShed }
func (b *Bus) QShed() float64 { return b.qShed }

// PServed is the active demand left after shedding
func (b *Bus) PServed() float64 { return b.pload - b.pShed }
func (b *Bus) QServed() float64 { return b.qload - b.qShed }

// NetP is the net active injection demanded from the network at this bus
func (b *Bus) NetP() float64 { return b.PServed() - b.pprod - b.pDER }
func (b *Bus) NetQ() float64 { return b.QServed() - b.qprod - b.qDER }

func (b *Bus) Supplied() bool { return b.supplied }
func (b *Bus) TrafoFailed() bool { return b.trafoFailed }
func (b *Bus) RemainingOutageTime() simtime.Time { return b.remainingOutage }

func (b *Bus) AccPLoadShed() float64 { return b.accPShed }
func (b *Bus) AccQLoadShed() float64 { return b.accQShed }
func (b *Bus) AccOutageTime() simtime.Time { return b.accOutage }
func (b *Bus) AccInterruptions() float64 { return b.accInterruptions }
func (b *Bus) AccInterruptionCost() float64 { return b.accCost }
func (b *Bus) InterruptionFraction() float64 { return b.interruptionFraction }

// AddLoadData attaches a load profile. The arrays are resampled to the
// increment count when the system is prepared.
func (b *Bus) AddLoadData(pload, qload []float64, cost CostFunction) error {
	if len(pload) == 0 || len(pload) != len(qload) {
		return fmt.Errorf("bus %s load profile of %d/%d points: %w", b.Name(), len(pload), len(qload), ErrInvalidParameter)
	}
	b.rawP = append([]float64(nil), pload...)
	b.rawQ = append([]float64(nil), qload...)
	b.cfg.Cost = cost
	return nil
}

func (b *Bus) prepare(n int) {
	if len(b.rawP) == 0 {
		b.profileP, b.profileQ = nil, nil
		return
	}
	b.profileP = resample(b.rawP, n)
	b.profileQ = resample(b.rawQ, n)
}

// SetLoadAndCost advances the bus to the load of increment inc
func (b *Bus) SetLoadAndCost(inc int) {
	if len(b.profileP) == 0 {
		b.pload, b.qload = b.cfg.PLoad, b.cfg.QLoad
		return
	}
	if inc >= len(b.profileP) {
		inc = len(b.profileP) - 1
	}
	if inc < 0 {
		inc = 0
	}
	b.pload, b.qload = b.profileP[inc], b.profileQ[inc]
}

// MaxLoad is the peak active demand over the load profile
func (b *Bus) MaxLoad() float64 {
	if len(b.rawP) == 0 {
		return b.cfg.PLoad
	}
	peak := 0.0
	for _, p := range b.rawP {
		peak = math.Max(peak, p)
	}
	return peak
}

// TrafoFail takes the distribution transformer out for the outage time
func (b *Bus) TrafoFail() {
	b.trafoFailed = true
	b.remainingOutage = b.cfg.OutageTime
}

// TrafoRepair restores the distribution transformer
func (b *Bus) TrafoRepair() {
	b.trafoFailed = false
	b.remainingOutage = simtime.Hours(0)
}

// UpdateFailStatus ages a failed transformer or samples a new failure
func (b *Bus) UpdateFailStatus(dt simtime.Time, r *rand.Rand) {
	if b.trafoFailed {
		b.remainingOutage = b.remainingOutage.Sub(dt)
		if !b.remainingOutage.Positive() {
			b.TrafoRepair()
		}
		return
	}
	if b.cfg.FailRate > 0 && r.Float64() < simtime.ConvertYearlyFailRate(b.cfg.FailRate, dt) {
		b.TrafoFail()
	}
}

// BeginTick clears the per-tick balance state
func (b *Bus) BeginTick() {
	b.pShed, b.qShed = 0, 0
	b.pDER, b.qDER = 0, 0
	b.supplied = false
	b.QShift = 0
	b.PDown, b.QDown = 0, 0
	if b.trafoFailed {
		b.pprod, b.qprod = 0, 0
	}
}

// SetProduction sets the local generation, zero while the transformer is out
func (b *Bus) SetProduction(p, q float64) {
	if b.trafoFailed {
		p, q = 0, 0
	}
	b.pprod, b.qprod = p, q
}

// AddDER adds battery or EV injection; negative values are charging
func (b *Bus) AddDER(p, q float64) {
	b.pDER += p
	b.qDER += q
}

// SetSupplied marks the bus energised for this tick
func (b *Bus) SetSupplied(v bool) {
	b.supplied = v
}

// Shed drops the remaining demand of the bus for this tick
func (b *Bus) Shed() (p, q float64) {
	p, q = b.pload-b.pShed, b.qload-b.qShed
	b.pShed, b.qShed = b.pload, b.qload
	return p, q
}

// ShedUpTo drops at most p of the remaining active demand and the matching
// share of the reactive demand.
func (b *Bus) ShedUpTo(p float64) (float64, float64) {
	rp, rq := b.pload-b.pShed, b.qload-b.qShed
	if p >= rp || rp <= 0 {
		return b.Shed()
	}
	if p <= 0 {
		return 0, 0
	}
	q := rq * p / rp
	b.pShed += p
	b.qShed += q
	return p, q
}

// RestoreUpTo serves again at most p of the shed active demand and the
// matching share of the shed reactive demand. A failed transformer keeps
// the bus shed.
func (b *Bus) RestoreUpTo(p float64) (float64, float64) {
	if b.trafoFailed || p <= 0 || b.pShed <= 0 {
		return 0, 0
	}
	if p >= b.pShed {
		p, q := b.pShed, b.qShed
		b.pShed, b.qShed = 0, 0
		return p, q
	}
	q := b.qShed * p / b.pShed
	b.pShed -= p
	b.qShed -= q
	return p, q
}

// EndTick integrates shed energy, outage time and interruptions over dt
func (b *Bus) EndTick(dt simtime.Time) {
	h := dt.Hours()
	b.accPShed += b.pShed * h
	b.accQShed += b.qShed * h

	out := !b.supplied || b.trafoFailed || b.pShed > 1e-12
	if !out {
		b.interruptionFraction = 0
		if b.interrupted {
			b.accCost += b.cfg.Cost.Cost(b.currentOutage)
			b.interrupted = false
			b.currentOutage = simtime.Hours(0)
		}
		return
	}
	if b.pload > 0 {
		b.interruptionFraction = b.pShed / b.pload
	} else {
		b.interruptionFraction = 1
	}
	b.accOutage = b.accOutage.Add(dt)
	b.currentOutage = b.currentOutage.Add(dt)
	if !b.interrupted {
		b.interrupted = true
		b.accInterruptions++
	}
}

// ResetStatus re-initialises the dynamic state for a new replication
func (b *Bus) ResetStatus(save bool) {
	b.Vomag, b.Voang = 1, 0
	b.Sens = initialSensitivities()
	b.PDown, b.QDown, b.QShift = 0, 0, 0
	b.pload, b.qload = b.cfg.PLoad, b.cfg.QLoad
	b.pprod, b.qprod = 0, 0
	b.pDER, b.qDER = 0, 0
	b.pShed, b.qShed = 0, 0
	b.supplied = false
	b.TrafoRepair()
	b.interrupted = false
	b.currentOutage = simtime.Hours(0)
	b.interruptionFraction = 0
	b.accPShed, b.accQShed = 0, 0
	b.accOutage = simtime.Hours(0)
	b.accInterruptions = 0
	b.accCost = 0
	b.history = nil
	if save {
		b.history = history.New()
	}
}

// UpdateHistory records the state of the current tick
func (b *Bus) UpdateHistory() {
	if b.history == nil {
		return
	}
	h := b.history
	h.Record("pload", b.pload)
	h.Record("qload", b.qload)
	h.Record("pprod", b.pprod)
	h.Record("qprod", b.qprod)
	h.Record("vomag", b.Vomag)
	h.Record("voang", b.Voang)
	h.Record("p_load_shed", b.pShed)
	h.Record("q_load_shed", b.qShed)
	h.RecordBool("trafo_failed", b.trafoFailed)
	h.Record("remaining_outage_time", b.remainingOutage.Hours())
	h.Record("acc_p_load_shed", b.accPShed)
	h.Record("acc_q_load_shed", b.accQShed)
	h.Record("acc_outage_time", b.accOutage.Hours())
	h.Record("acc_interruptions", b.accInterruptions)
	h.Record("interruption_fraction", b.interruptionFraction)
	h.Record("dPlossdP", b.Sens.DPlossdP)
	h.Record("dPlossdQ", b.Sens.DPlossdQ)
}

// resample linearly interpolates src onto n evenly spaced points
func resample(src []float64, n int) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if len(src) == 1 || n == 1 {
		for i := range out {
			out[i] = src[0]
		}
		return out
	}
	if len(src) == n {
		copy(out, src)
		return out
	}
	scale := float64(len(src)-1) / float64(n-1)
	for i := range out {
		x := float64(i) * scale
		lo := int(math.Floor(x))
		if lo >= len(src)-1 {
			out[i] = src[len(src)-1]
			continue
		}
		frac := x - float64(lo)
		out[i] = src[lo] + frac*(src[lo+1]-src[lo])
	}
	return out
}
