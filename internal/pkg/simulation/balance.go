package simulation

import (
	"fmt"
	"math"
	"slices"

	"github.com/ohowland/relsim/internal/pkg/loadflow"
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/simtime"
)

// eps is the power below which a residual counts as balanced, in MW
const eps = 1e-9

type tickResult struct {
	anomalies int
	islands   int
	shed      float64 // MW
	loss      float64 // pu
}

func (r *tickResult) add(o tickResult) {
	r.anomalies += o.anomalies
	r.islands += o.islands
	r.shed += o.shed
	r.loss += o.loss
}

// island gathers the components of one sub-system in registration order
type island struct {
	ps          *powersystem.PowerSystem
	sub         *powersystem.SubSystem
	batteries   []*powersystem.Battery
	evparks     []*powersystem.EVPark
	productions []*powersystem.Production
}

func newIsland(ps *powersystem.PowerSystem, sub *powersystem.SubSystem) *island {
	in := make(map[powersystem.BusID]bool, len(sub.Buses))
	for _, id := range sub.Buses {
		in[id] = true
	}
	isl := &island{ps: ps, sub: sub}
	for _, b := range ps.Batteries() {
		if in[b.Bus()] {
			isl.batteries = append(isl.batteries, b)
		}
	}
	for _, p := range ps.EVParks() {
		if in[p.Bus()] {
			isl.evparks = append(isl.evparks, p)
		}
	}
	for _, p := range ps.Productions() {
		if in[p.Bus()] {
			isl.productions = append(isl.productions, p)
		}
	}
	return isl
}

func (isl *island) buses() []*powersystem.Bus {
	out := make([]*powersystem.Bus, len(isl.sub.Buses))
	for i, id := range isl.sub.Buses {
		out[i] = isl.ps.Bus(id)
	}
	return out
}

func (isl *island) hasDER() bool {
	return len(isl.batteries)+len(isl.evparks)+len(isl.productions) > 0
}

// balance runs the DER balance, the load shedding and the load flow of every
// sub-system.
func (s *Simulation) balance(ps *powersystem.PowerSystem, subs []*powersystem.SubSystem, hour int, dt simtime.Time) (tickResult, error) {
	for _, b := range ps.Buses() {
		b.BeginTick()
	}
	for _, p := range ps.Productions() {
		p.BeginTick()
	}
	for _, b := range ps.Batteries() {
		b.BeginTick()
	}

	var res tickResult
	for _, sub := range subs {
		isl := newIsland(ps, sub)
		islanded := !sub.HasSlack()
		for _, p := range isl.evparks {
			if err := p.Prepare(hour, islanded, dt); err != nil {
				return res, err
			}
		}
		for _, b := range isl.buses() {
			if b.TrafoFailed() {
				p, _ := b.Shed()
				res.shed += p
			}
		}
		var r tickResult
		var err error
		if islanded {
			r, err = s.balanceIsland(isl, dt)
		} else {
			r, err = s.balanceGrid(isl, dt)
		}
		if err != nil {
			return res, err
		}
		res.add(r)
	}
	return res, nil
}

// balanceGrid lets the transmission grid cover the residual. Storage charges
// from the grid.
func (s *Simulation) balanceGrid(isl *island, dt simtime.Time) (tickResult, error) {
	ps := isl.ps
	for _, b := range isl.buses() {
		b.SetSupplied(true)
	}
	for _, b := range isl.batteries {
		pc := b.ChargeFromGrid(dt)
		ps.Bus(b.Bus()).AddDER(-pc, 0)
	}
	for _, p := range isl.evparks {
		pc := p.ChargeFromGrid(dt)
		ps.Bus(p.Bus()).AddDER(-pc, 0)
	}
	root, err := ps.ConfigureBFSLoadFlowSetup(isl.sub.Buses, isl.sub.Lines)
	if err != nil {
		return tickResult{}, fmt.Errorf("grid island: %w", err)
	}
	lf := loadflow.Run(ps, root, s.lf)
	return tickResult{anomalies: lf.Anomalies, loss: lf.PLoss}, nil
}

// balanceIsland serves the residual of an island from its batteries and EV
// parks and curtails what is left over. The load flow then prices the losses,
// and whatever the island still lacks is covered by storage, by released
// curtailment and finally by shedding furthest-first.
func (s *Simulation) balanceIsland(isl *island, dt simtime.Time) (tickResult, error) {
	ps := isl.ps
	res := tickResult{islands: 1}
	buses := isl.buses()
	if !isl.hasDER() {
		for _, b := range buses {
			p, _ := b.Shed()
			res.shed += p
		}
		loadflow.Flat(ps, isl.sub.Buses, isl.sub.Lines)
		return res, nil
	}

	var p, q float64
	for _, b := range buses {
		p += b.NetP()
		q += b.NetQ()
	}
	for _, bat := range isl.batteries {
		offP, offQ := p, q
		if limitedSupport(ps, bat) {
			offP, offQ = ownShare(buses, ps.Bus(bat.Bus()).Network(), p, q)
		}
		rp, rq := bat.Update(offP, offQ, dt)
		dp, dq := offP-rp, offQ-rq
		ps.Bus(bat.Bus()).AddDER(dp, dq)
		p, q = p-dp, q-dq
	}
	for _, ev := range isl.evparks {
		rp, rq := ev.Update(p, q, dt)
		ps.Bus(ev.Bus()).AddDER(p-rp, q-rq)
		p, q = rp, rq
	}
	curtail(isl, -p)

	root, err := ps.Orient(reference(isl), isl.sub.Buses, isl.sub.Lines)
	if err != nil {
		return res, fmt.Errorf("island: %w", err)
	}
	for _, b := range buses {
		b.SetSupplied(true)
	}
	order := shedOrder(ps, root)
	sref := ps.SRef()
	for round := 1; ; round++ {
		lf := loadflow.Run(ps, root, s.lf)
		res.anomalies = lf.Anomalies
		res.loss = lf.PLoss
		m, mq := lf.PInjection*sref, lf.QInjection*sref
		if math.Abs(m) <= balanceTol || round == maxRounds {
			break
		}
		if m > 0 {
			res.shed += cover(isl, buses, order, m, mq, dt)
		} else {
			res.shed -= absorb(isl, order, -m, dt)
		}
	}
	return res, nil
}

const (
	// balanceTol is the largest mismatch left at the island reference, in MW
	balanceTol = 1e-9
	// maxRounds bounds the load flows of one island per tick
	maxRounds = 50
)

// curtail cuts up to surplus from the productions in order
func curtail(isl *island, surplus float64) {
	for _, prod := range isl.productions {
		if surplus <= eps {
			return
		}
		surplus -= prod.Curtail(surplus)
	}
}

// cover meets a deficit reported by the load flow from storage, then from
// curtailed production, and sheds what remains. It returns the power shed.
// Limited-support batteries only help when the island is their own microgrid.
func cover(isl *island, buses, order []*powersystem.Bus, p, q float64, dt simtime.Time) float64 {
	ps := isl.ps
	for _, bat := range isl.batteries {
		if p <= eps {
			break
		}
		if limitedSupport(ps, bat) && !within(buses, ps.Bus(bat.Bus()).Network()) {
			continue
		}
		offQ := max(q, 0)
		rp, rq := bat.Update(p, offQ, dt)
		ps.Bus(bat.Bus()).AddDER(p-rp, offQ-rq)
		q -= offQ - rq
		p = rp
	}
	for _, prod := range isl.productions {
		if p <= eps {
			break
		}
		p -= prod.Uncurtail(p)
	}
	var shed float64
	for _, b := range order {
		if p <= eps {
			break
		}
		sp, _ := b.ShedUpTo(p)
		p -= sp
		shed += sp
	}
	return shed
}

// absorb takes up a surplus reported by the load flow by serving shed load
// again nearest-first, then by curtailing production and last by charging
// storage. It returns the load restored.
func absorb(isl *island, order []*powersystem.Bus, p float64, dt simtime.Time) float64 {
	var restored float64
	for i := len(order) - 1; i >= 0 && p > eps; i-- {
		rp, _ := order[i].RestoreUpTo(p)
		p -= rp
		restored += rp
	}
	for _, prod := range isl.productions {
		if p <= eps {
			break
		}
		p -= prod.Curtail(p)
	}
	for _, bat := range isl.batteries {
		if p <= eps {
			break
		}
		rp, _ := bat.Update(-p, 0, dt)
		isl.ps.Bus(bat.Bus()).AddDER(-p-rp, 0)
		p = -rp
	}
	return restored
}

// within reports whether every bus of the island belongs to network
func within(buses []*powersystem.Bus, network powersystem.NetworkID) bool {
	for _, b := range buses {
		if b.Network() != network {
			return false
		}
	}
	return true
}

// limitedSupport reports whether bat may only serve its own microgrid
func limitedSupport(ps *powersystem.PowerSystem, bat *powersystem.Battery) bool {
	n := ps.Network(ps.Bus(bat.Bus()).Network())
	return n != nil && n.Kind() == powersystem.MicrogridNetwork && n.Mode() == powersystem.LimitedSupport
}

// ownShare bounds a deficit to the net demand of the buses of network
func ownShare(buses []*powersystem.Bus, network powersystem.NetworkID, p, q float64) (float64, float64) {
	var ownP, ownQ float64
	for _, b := range buses {
		if b.Network() == network {
			ownP += b.NetP()
			ownQ += b.NetQ()
		}
	}
	if p > 0 {
		p = min(p, max(ownP, 0))
	}
	if q > 0 {
		q = min(q, max(ownQ, 0))
	}
	return p, q
}

// reference is the bus the island is solved from: the first injecting
// battery, then the first producing generator, then the lowest bus.
func reference(isl *island) powersystem.BusID {
	for _, b := range isl.batteries {
		if b.PInjection() > eps {
			return b.Bus()
		}
	}
	for _, p := range isl.productions {
		if p.PProd() > eps {
			return p.Bus()
		}
	}
	for _, p := range isl.evparks {
		if p.PInjection() > eps {
			return p.Bus()
		}
	}
	return isl.sub.Buses[0]
}

// shedOrder lists the buses of the tree furthest from the root first. Ties go
// to the higher bus id.
func shedOrder(ps *powersystem.PowerSystem, root *powersystem.RadialNode) []*powersystem.Bus {
	depth := root.Depth()
	ids := make([]powersystem.BusID, 0, len(depth))
	for id := range depth {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b powersystem.BusID) int {
		if depth[a] != depth[b] {
			return depth[b] - depth[a]
		}
		return int(b) - int(a)
	})
	out := make([]*powersystem.Bus, len(ids))
	for i, id := range ids {
		out[i] = ps.Bus(id)
	}
	return out
}
