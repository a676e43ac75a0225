package powersystem

import (
	"fmt"
	"math"

	"github.com/ohowland/relsim/internal/pkg/history"
)

// ProductionConfig holds the parameters of a generator. P and Q are used when
// no profile is attached.
type ProductionConfig struct {
	Name string
	PMax float64
	QMax float64
	P    float64
	Q    float64
}

// Production is a bus-bound generator following a profile
type Production struct {
	id  ProductionID
	ps  *PowerSystem
	cfg ProductionConfig
	bus BusID

	rawP, rawQ         []float64
	profileP, profileQ []float64

	pprod, qprod float64
	curtailed    float64

	history *history.Log
}

// NewProduction places a generator on bus before the bus joins a network
func (ps *PowerSystem) NewProduction(cfg ProductionConfig, bus *Bus) (*Production, error) {
	if cfg.PMax < 0 || cfg.QMax < 0 {
		return nil, fmt.Errorf("production %s: %w", cfg.Name, ErrInvalidParameter)
	}
	if bus.network != NoNetwork {
		return nil, fmt.Errorf("production %s on bus %s: %w", cfg.Name, bus.Name(), ErrAlreadyAttached)
	}
	if bus.production != NoProduction {
		return nil, fmt.Errorf("production %s on bus %s: %w", cfg.Name, bus.Name(), ErrAlreadyOwned)
	}
	if err := ps.reserveName(cfg.Name); err != nil {
		return nil, err
	}
	p := &Production{
		id:  ProductionID(len(ps.productions)),
		ps:  ps,
		cfg: cfg,
		bus: bus.id,
	}
	ps.productions = append(ps.productions, p)
	bus.production = p.id
	return p, nil
}

func (p *Production) ID() ProductionID { return p.id }
func (p *Production) Name() string { return p.cfg.Name }
func (p *Production) Bus() BusID { return p.bus }
func (p *Production) PProd() float64 { return p.pprod }
func (p *Production) QProd() float64 { return p.qprod }
func (p *Production) Curtailed() float64 { return p.curtailed }
func (p *Production) History() *history.Log { return p.history }

// AddProdData attaches a generation profile, resampled like load profiles
func (p *Production) AddProdData(pprod, qprod []float64) error {
	if len(pprod) == 0 || len(pprod) != len(qprod) {
		return fmt.Errorf("production %s profile of %d/%d points: %w", p.Name(), len(pprod), len(qprod), ErrInvalidParameter)
	}
	p.rawP = append([]float64(nil), pprod...)
	p.rawQ = append([]float64(nil), qprod...)
	return nil
}

func (p *Production) prepare(n int) {
	if len(p.rawP) == 0 {
		p.profileP, p.profileQ = nil, nil
		return
	}
	p.profileP = resample(p.rawP, n)
	p.profileQ = resample(p.rawQ, n)
}

// SetProd advances the generator to increment inc and writes its bus
func (p *Production) SetProd(inc int) {
	pv, qv := p.cfg.P, p.cfg.Q
	if len(p.profileP) > 0 {
		i := min(max(inc, 0), len(p.profileP)-1)
		pv, qv = p.profileP[i], p.profileQ[i]
	}
	if p.cfg.PMax > 0 {
		pv = math.Min(pv, p.cfg.PMax)
	}
	if p.cfg.QMax > 0 {
		qv = math.Min(qv, p.cfg.QMax)
	}
	b := p.ps.buses[p.bus]
	b.SetProduction(pv, qv)
	p.pprod, p.qprod = b.pprod, b.qprod
	p.curtailed = 0
}

// BeginTick follows the bus when its transformer failed after SetProd
func (p *Production) BeginTick() {
	b := p.ps.buses[p.bus]
	if b.trafoFailed {
		b.pprod, b.qprod = 0, 0
	}
	p.pprod, p.qprod = b.pprod, b.qprod
	p.curtailed = 0
}

// Curtail reduces the active output by up to surplus and returns the amount
func (p *Production) Curtail(surplus float64) float64 {
	cut := math.Min(surplus, p.pprod)
	if cut <= 0 {
		return 0
	}
	p.pprod -= cut
	p.curtailed += cut
	b := p.ps.buses[p.bus]
	b.pprod = p.pprod
	return cut
}

// Uncurtail gives back up to deficit of the curtailed output and returns the amount
func (p *Production) Uncurtail(deficit float64) float64 {
	back := math.Min(deficit, p.curtailed)
	if back <= 0 {
		return 0
	}
	p.pprod += back
	p.curtailed -= back
	p.ps.buses[p.bus].pprod = p.pprod
	return back
}

func (p *Production) ResetStatus(save bool) {
	p.pprod, p.qprod, p.curtailed = 0, 0, 0
	p.history = nil
	if save {
		p.history = history.New()
	}
}

func (p *Production) UpdateHistory() {
	if p.history == nil {
		return
	}
	p.history.Record("pprod", p.pprod)
	p.history.Record("qprod", p.qprod)
	p.history.Record("curtailed", p.curtailed)
}
