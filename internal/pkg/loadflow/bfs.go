// Package loadflow solves radial networks with a backward/forward sweep.
package loadflow

import (
	"math"

	"github.com/ohowland/relsim/internal/pkg/powersystem"
)

const (
	DefaultMaxIt       = 5
	DefaultPQCostRatio = 100
	minVoltage         = 1e-9
)

// Config of the sweep. Zero values select the defaults.
type Config struct {
	MaxIt       int     `mapstructure:"max_it" yaml:"max_it"`
	PQCostRatio float64 `mapstructure:"pq_cost_ratio" yaml:"pq_cost_ratio"`
}

func (c Config) withDefaults() Config {
	if c.MaxIt <= 0 {
		c.MaxIt = DefaultMaxIt
	}
	if c.PQCostRatio <= 0 {
		c.PQCostRatio = DefaultPQCostRatio
	}
	return c
}

// Result summarises one solve. Powers are in pu.
type Result struct {
	Iterations int
	Anomalies  int // forward steps that kept the previous voltage
	PInjection float64
	QInjection float64
	PLoss      float64
	QLoss      float64
}

// state is the per-solve scratch for one bus
type state struct {
	pLoad, qLoad float64
	pDown, qDown float64
}

// Run solves the tree rooted at root. The root is held at 1.0 pu and 0 rad.
// Bus voltages, sensitivities and line flows are written back to the system.
func Run(ps *powersystem.PowerSystem, root *powersystem.RadialNode, cfg Config) Result {
	cfg = cfg.withDefaults()
	sref := ps.SRef()
	scratch := make(map[powersystem.BusID]*state)
	root.Walk(func(n *powersystem.RadialNode) {
		b := ps.Bus(n.Bus)
		b.Sens = powersystem.Sensitivities{DP2lossdP2: 1, DP2lossdQ2: 1}
		b.QShift = 0
		scratch[n.Bus] = &state{}
	})
	rb := ps.Bus(root.Bus)
	rb.Vomag, rb.Voang = 1, 0

	var res Result
	for it := 0; it < cfg.MaxIt; it++ {
		res.Iterations++
		backward(ps, root, scratch, sref)
		res.Anomalies += forward(ps, root, scratch, cfg)
	}

	res.PInjection = scratch[root.Bus].pDown
	res.QInjection = scratch[root.Bus].qDown
	root.Walk(func(n *powersystem.RadialNode) {
		if l := ps.Line(n.Line); l != nil {
			res.PLoss += l.PLoss
			res.QLoss += l.QLoss
		}
	})
	return res
}

// zip scales a load by the voltage dependent ZIP model
func zip(load, v float64, coef [3]float64) float64 {
	return load * (coef[0]*v*v + coef[1]*v + coef[2])
}

// backward accumulates the load and losses downstream of every bus, leaves first
func backward(ps *powersystem.PowerSystem, root *powersystem.RadialNode, scratch map[powersystem.BusID]*state, sref float64) {
	root.PostOrder(func(n *powersystem.RadialNode) {
		b := ps.Bus(n.Bus)
		s := scratch[n.Bus]
		s.pLoad = zip(b.PServed(), b.Vomag, b.ZIP())/sref - (b.PProd()+b.PDER())/sref
		s.qLoad = zip(b.QServed(), b.Vomag, b.ZIP())/sref - (b.QProd()+b.QDER())/sref - b.QShift
		s.pDown, s.qDown = s.pLoad, s.qLoad
		for _, c := range n.Children {
			l := ps.Line(c.Line)
			s.pDown += l.PFrom
			s.qDown += l.QFrom
		}
		b.PDown, b.QDown = s.pDown, s.qDown

		l := ps.Line(n.Line)
		if l == nil {
			return
		}
		v2 := math.Max(b.Vomag*b.Vomag, minVoltage)
		flow := (s.pDown*s.pDown + s.qDown*s.qDown) / v2
		l.PTo, l.QTo = s.pDown, s.qDown
		l.PLoss, l.QLoss = l.R()*flow, l.X()*flow
		l.PFrom, l.QFrom = s.pDown+l.PLoss, s.qDown+l.QLoss
	})
}

// forward updates voltages, angles and sensitivities from the root down and
// returns the number of anomalies.
func forward(ps *powersystem.PowerSystem, root *powersystem.RadialNode, scratch map[powersystem.BusID]*state, cfg Config) int {
	anomalies := 0
	root.Walk(func(n *powersystem.RadialNode) {
		from := ps.Bus(n.Bus)
		for _, c := range n.Children {
			to := ps.Bus(c.Bus)
			l := ps.Line(c.Line)
			if !step(from, to, l) {
				anomalies++
			}
			sensitivities(from, to, l)
			optimise(to, cfg)
		}
	})
	return anomalies
}

// step applies the DistFlow voltage drop along l. It keeps the previous
// voltage of to and reports false when the drop cannot be evaluated.
func step(from, to *powersystem.Bus, l *powersystem.Line) bool {
	v := from.Vomag
	if v < minVoltage {
		return false
	}
	p, q, r, x := l.PFrom, l.QFrom, l.R(), l.X()
	disc := v*v - 2*(p*r+q*x) + (p*p+q*q)*(r*r+x*x)/(v*v)
	if disc < 0 || math.IsNaN(disc) {
		return false
	}
	to.Vomag = math.Sqrt(disc)
	re := v - (p*r+q*x)/v
	im := (q*r - p*x) / v
	to.Voang = from.Voang + math.Atan2(im, re)
	return true
}

// sensitivities accumulates the path sensitivities of to from those of from
func sensitivities(from, to *powersystem.Bus, l *powersystem.Line) {
	v := math.Max(from.Vomag, minVoltage)
	v2 := v * v
	p, q, r, x := l.PFrom, l.QFrom, l.R(), l.X()
	fs := from.Sens
	s := &to.Sens
	s.DVdP = fs.DVdP - r/v
	s.DVdQ = fs.DVdQ - x/v
	s.DPlossdP = fs.DPlossdP + 2*r*p/v2
	s.DPlossdQ = fs.DPlossdQ + 2*r*q/v2
	s.DQlossdP = fs.DQlossdP + 2*x*p/v2
	s.DQlossdQ = fs.DQlossdQ + 2*x*q/v2
	s.DP2lossdP2 = fs.DP2lossdP2 + 2*r/v2
	s.DP2lossdQ2 = fs.DP2lossdQ2 + 2*r/v2
	s.LossRatioP, s.LossRatioQ = 0, 0
	if l.PFrom != 0 {
		s.LossRatioP = l.PLoss / l.PFrom
	}
	if l.QFrom != 0 {
		s.LossRatioQ = l.QLoss / l.QFrom
	}
}

// optimise shifts reactive load at buses taking part in loss optimisation
// when the marginal loss reduction is worth its cost.
func optimise(b *powersystem.Bus, cfg Config) {
	s := &b.Sens
	if !b.ILoss() || math.Abs(s.DPlossdQ) < 1/cfg.PQCostRatio || s.DP2lossdQ2 == 0 {
		return
	}
	b.QShift += s.DPlossdQ / s.DP2lossdQ2
	s.DPlossdQ = 0
}

// Flat puts the buses of an unsupplied island at 1.0 pu and clears the flows
// of its lines.
func Flat(ps *powersystem.PowerSystem, buses []powersystem.BusID, lines []powersystem.LineID) {
	for _, id := range buses {
		b := ps.Bus(id)
		b.Vomag, b.Voang = 1, 0
		b.PDown, b.QDown, b.QShift = 0, 0, 0
	}
	for _, id := range lines {
		l := ps.Line(id)
		l.PFrom, l.QFrom, l.PTo, l.QTo, l.PLoss, l.QLoss = 0, 0, 0, 0, 0, 0
	}
}
