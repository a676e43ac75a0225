package simulation

import (
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/simtime"
	"gonum.org/v1/gonum/stat"
)

// Indices are the reliability indices of a set of buses over one replication
type Indices struct {
	SAIFI                 float64 `json:"saifi" bson:"saifi"`
	SAIDI                 float64 `json:"saidi" bson:"saidi"` // h
	CAIDI                 float64 `json:"caidi" bson:"caidi"` // h
	ENS                   float64 `json:"ens" bson:"ens"`     // MWh
	EVInterruptedCharging float64 `json:"ev_interrupted_charging" bson:"ev_interrupted_charging"`
	InterruptionCost      float64 `json:"interruption_cost" bson:"interruption_cost"`
}

// BusSummary is the accounting of one bus over one replication
type BusSummary struct {
	Name             string  `json:"name" bson:"name"`
	Network          string  `json:"network" bson:"network"`
	Customers        int     `json:"customers" bson:"customers"`
	Interruptions    float64 `json:"acc_interruptions" bson:"acc_interruptions"`
	OutageTime       float64 `json:"acc_outage_time" bson:"acc_outage_time"`     // h
	PLoadShed        float64 `json:"acc_p_load_shed" bson:"acc_p_load_shed"`     // MWh
	QLoadShed        float64 `json:"acc_q_load_shed" bson:"acc_q_load_shed"`     // MVArh
	InterruptionCost float64 `json:"interruption_cost" bson:"interruption_cost"` // per customer
	AvgFailRate      float64 `json:"avg_fail_rate" bson:"avg_fail_rate"`         // per year
	AvgOutageTime    float64 `json:"avg_outage_time" bson:"avg_outage_time"`     // h per interruption
}

// Summary is the immutable result of one replication
type Summary struct {
	RunID     uuid.UUID          `json:"run_id" bson:"run_id"`
	Iteration int                `json:"iteration" bson:"iteration"`
	Seed      uint64             `json:"seed" bson:"seed"`
	Ticks     int                `json:"ticks" bson:"ticks"`
	Anomalies int                `json:"anomalies" bson:"anomalies"`
	Duration  time.Duration      `json:"duration" bson:"duration"`
	System    Indices            `json:"system" bson:"system"`
	Networks  map[string]Indices `json:"networks" bson:"networks"`
	Buses     []BusSummary       `json:"buses" bson:"buses"`
	Err       string             `json:"error,omitempty" bson:"error,omitempty"`
}

// Failed reports whether the replication was aborted
func (s Summary) Failed() bool { return s.Err != "" }

// collect reads the accumulated accounting of ps
func (s *Summary) collect(ps *powersystem.PowerSystem, span simtime.Time) {
	var all []*powersystem.Bus
	s.Networks = make(map[string]Indices)
	for _, n := range ps.Networks() {
		if n.Kind() == powersystem.TransmissionNetwork {
			continue
		}
		buses := n.Buses()
		all = append(all, buses...)
		s.Networks[n.Name()] = indicesOf(ps, buses)
	}
	s.System = indicesOf(ps, all)

	years := span.Years()
	s.Buses = make([]BusSummary, 0, len(all))
	for _, b := range all {
		bs := BusSummary{
			Name:             b.Name(),
			Network:          ps.Network(b.Network()).Name(),
			Customers:        b.NCustomers(),
			Interruptions:    b.AccInterruptions(),
			OutageTime:       b.AccOutageTime().Hours(),
			PLoadShed:        b.AccPLoadShed(),
			QLoadShed:        b.AccQLoadShed(),
			InterruptionCost: b.AccInterruptionCost(),
		}
		if years > 0 {
			bs.AvgFailRate = bs.Interruptions / years
		}
		if bs.Interruptions > 0 {
			bs.AvgOutageTime = bs.OutageTime / bs.Interruptions
		}
		s.Buses = append(s.Buses, bs)
	}
}

// indicesOf computes the customer weighted indices of buses
func indicesOf(ps *powersystem.PowerSystem, buses []*powersystem.Bus) Indices {
	var ix Indices
	customers := 0.0
	var ci, cih float64
	for _, b := range buses {
		n := float64(b.NCustomers())
		customers += n
		ci += n * b.AccInterruptions()
		cih += n * b.AccOutageTime().Hours()
		ix.ENS += b.AccPLoadShed()
		ix.InterruptionCost += float64(b.NCustomers()) * b.AccInterruptionCost()
		if p := ps.EVPark(b.EVPark()); p != nil {
			ix.EVInterruptedCharging += p.AccInterruptedCharging()
		}
	}
	if customers > 0 {
		ix.SAIFI = ci / customers
		ix.SAIDI = cih / customers
	}
	if ix.SAIFI > 0 {
		ix.CAIDI = ix.SAIDI / ix.SAIFI
	}
	return ix
}

// indexNames orders the fields of Indices for tables and aggregation
var indexNames = []string{"SAIFI", "SAIDI", "CAIDI", "ENS", "EV_interrupted_charging", "interruption_cost"}

func (ix Indices) values() []float64 {
	return []float64{ix.SAIFI, ix.SAIDI, ix.CAIDI, ix.ENS, ix.EVInterruptedCharging, ix.InterruptionCost}
}

func indicesFrom(v []float64) Indices {
	return Indices{
		SAIFI:                 v[0],
		SAIDI:                 v[1],
		CAIDI:                 v[2],
		ENS:                   v[3],
		EVInterruptedCharging: v[4],
		InterruptionCost:      v[5],
	}
}

// aggregate reduces every field of xs with f
func aggregate(xs []Indices, f func(x, weights []float64) float64) Indices {
	if len(xs) == 0 {
		return Indices{}
	}
	out := make([]float64, len(indexNames))
	col := make([]float64, len(xs))
	for i := range out {
		for j, x := range xs {
			col[j] = x.values()[i]
		}
		out[i] = f(col, nil)
	}
	return indicesFrom(out)
}

// Mean averages indices field by field
func Mean(xs []Indices) Indices { return aggregate(xs, stat.Mean) }

// StdDev is the sample standard deviation of indices field by field
func StdDev(xs []Indices) Indices {
	if len(xs) < 2 {
		return Indices{}
	}
	return aggregate(xs, stat.StdDev)
}
