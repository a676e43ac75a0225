package powersystem

import (
	"fmt"
	"math"

	"github.com/ohowland/relsim/internal/pkg/history"
	"github.com/ohowland/relsim/internal/pkg/sampler"
	"github.com/ohowland/relsim/internal/pkg/simtime"
	"github.com/ohowland/relsim/internal/pkg/table"
)

// EVParkConfig holds the parameters of an EV park. StorageConfig applies to
// each car.
type EVParkConfig struct {
	Name string
	StorageConfig
	V2G       bool
	NumEVDist *table.Table // expected cars by hour of day
}

// EVPark is a bus-bound group of electric vehicles
type EVPark struct {
	id  EVParkID
	ps  *PowerSystem
	cfg EVParkConfig
	bus BusID

	cars         []*storage
	inFailure    bool
	trafoWasDown bool
	draws        int

	pDemand        float64
	pCharge        float64
	pInj           float64
	accInterrupted float64

	history *history.Log
}

// NewEVPark places an EV park on bus before the bus joins a network
func (ps *PowerSystem) NewEVPark(cfg EVParkConfig, bus *Bus) (*EVPark, error) {
	if err := cfg.StorageConfig.validate(); err != nil {
		return nil, fmt.Errorf("ev park %s: %w", cfg.Name, err)
	}
	if cfg.NumEVDist == nil {
		return nil, fmt.Errorf("ev park %s has no EV distribution: %w", cfg.Name, ErrInvalidParameter)
	}
	if bus.network != NoNetwork {
		return nil, fmt.Errorf("ev park %s on bus %s: %w", cfg.Name, bus.Name(), ErrAlreadyAttached)
	}
	if bus.evPark != NoEVPark {
		return nil, fmt.Errorf("ev park %s on bus %s: %w", cfg.Name, bus.Name(), ErrAlreadyOwned)
	}
	if err := ps.reserveName(cfg.Name); err != nil {
		return nil, err
	}
	p := &EVPark{
		id:  EVParkID(len(ps.evparks)),
		ps:  ps,
		cfg: cfg,
		bus: bus.id,
	}
	ps.evparks = append(ps.evparks, p)
	bus.evPark = p.id
	return p, nil
}

func (p *EVPark) ID() EVParkID { return p.id }
func (p *EVPark) Name() string { return p.cfg.Name }
func (p *EVPark) Bus() BusID { return p.bus }
func (p *EVPark) V2G() bool { return p.cfg.V2G }
func (p *EVPark) NumCars() int { return len(p.cars) }
func (p *EVPark) Draws() int { return p.draws }
func (p *EVPark) PDemand() float64 { return p.pDemand }
func (p *EVPark) PCharge() float64 { return p.pCharge }
func (p *EVPark) AccInterruptedCharging() float64 { return p.accInterrupted }
func (p *EVPark) History() *history.Log { return p.history }

// SOCs lists the state of charge of the cars present
func (p *EVPark) SOCs() []float64 {
	out := make([]float64, len(p.cars))
	for i, c := range p.cars {
		out[i] = c.soc()
	}
	return out
}

// Prepare decides which cars are present this tick. Cars are drawn when the
// park's island first loses the grid and when the bus transformer comes back.
// While the transformer is out no car is present.
func (p *EVPark) Prepare(hourOfDay int, islanded bool, dt simtime.Time) error {
	p.pDemand, p.pCharge, p.pInj = 0, 0, 0
	trafoDown := p.ps.buses[p.bus].trafoFailed
	if trafoDown {
		p.cars = nil
		p.trafoWasDown = true
		p.inFailure = islanded
		return nil
	}
	draw := (islanded && !p.inFailure) || p.trafoWasDown
	p.inFailure = islanded
	p.trafoWasDown = false
	if draw {
		if err := p.drawCars(hourOfDay); err != nil {
			return err
		}
	}
	for _, c := range p.cars {
		p.pDemand += c.chargeDemand(dt)
	}
	return nil
}

func (p *EVPark) drawCars(hourOfDay int) error {
	expected, err := p.cfg.NumEVDist.Value(float64(hourOfDay))
	if err != nil {
		return fmt.Errorf("ev park %s at hour %d: %w", p.Name(), hourOfDay, err)
	}
	n := int(math.Round(expected))
	if n < 0 {
		n = 0
	}
	socDist := sampler.UniformFloat{Min: p.cfg.SOCMin, Max: p.cfg.SOCMax}
	p.cars = make([]*storage, n)
	for i := range p.cars {
		soc := socDist.Draw(p.ps.rng)
		p.cars[i] = &storage{cfg: p.cfg.StorageConfig, energy: soc * p.cfg.EMax}
	}
	p.draws++
	return nil
}

// Update runs the power-balance protocol over the cars in order. Without V2G
// the cars only absorb surplus.
func (p *EVPark) Update(pRes, qRes float64, dt simtime.Time) (float64, float64) {
	for _, c := range p.cars {
		if p.cfg.V2G {
			np, nq := c.update(pRes, qRes, dt, p.cfg.SOCMin)
			if delta := pRes - np; delta < 0 {
				p.pCharge -= delta
			}
			p.pInj += pRes - np
			pRes, qRes = np, nq
			continue
		}
		if pRes < 0 {
			pc := c.charge(-pRes, dt)
			p.pCharge += pc
			p.pInj -= pc
			pRes += pc
		}
	}
	return pRes, qRes
}

// ChargeFromGrid charges every car at its demand and returns the power drawn
func (p *EVPark) ChargeFromGrid(dt simtime.Time) float64 {
	total := 0.0
	for _, c := range p.cars {
		total += c.charge(c.chargeDemand(dt), dt)
	}
	p.pCharge += total
	p.pInj -= total
	return total
}

// PInjection is the net power the cars delivered this tick
func (p *EVPark) PInjection() float64 { return p.pInj }

// EndTick accounts the charging demand that could not be met
func (p *EVPark) EndTick(dt simtime.Time) {
	if unmet := p.pDemand - p.pCharge; unmet > 0 {
		p.accInterrupted += unmet * dt.Hours()
	}
}

func (p *EVPark) ResetStatus(save bool) {
	p.cars = nil
	p.inFailure = false
	p.trafoWasDown = false
	p.draws = 0
	p.pDemand, p.pCharge, p.pInj = 0, 0, 0
	p.accInterrupted = 0
	p.history = nil
	if save {
		p.history = history.New()
	}
}

func (p *EVPark) UpdateHistory() {
	if p.history == nil {
		return
	}
	p.history.Record("num_cars", float64(len(p.cars)))
	p.history.Record("p_demand", p.pDemand)
	p.history.Record("p_charge", p.pCharge)
	p.history.Record("p", p.pInj)
	p.history.Record("acc_interrupted_charging", p.accInterrupted)
}
