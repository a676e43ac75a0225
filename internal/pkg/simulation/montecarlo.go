package simulation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/ohowland/relsim/internal/pkg/database/csvdb"
	"github.com/ohowland/relsim/internal/pkg/history"
	"github.com/ohowland/relsim/internal/pkg/msg"
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/simtime"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// MonteCarloDir is the directory below SaveDir holding the replication tables
const MonteCarloDir = "monte_carlo"

var ErrNoIterations = errors.New("no iterations requested")

// MonteCarloOptions selects the replications of a run. Start, Stop and
// TimeStep are in TimeUnit.
type MonteCarloOptions struct {
	Iterations     int
	Start          float64
	Stop           float64
	TimeStep       float64
	TimeUnit       simtime.Unit
	SaveIterations []int
	SaveDir        string
	SaveFlag       bool
	NProcs         int
	Debug          bool
	RandomSeed     uint64
	StartHour      int
	// Progress is called after every replication from the worker that ran it
	Progress func(Progress)
}

// Progress reports a finished replication
type Progress struct {
	RunID     uuid.UUID `json:"run_id" bson:"run_id"`
	Iteration int       `json:"iteration" bson:"iteration"`
	Done      int       `json:"done" bson:"done"`
	Total     int       `json:"total" bson:"total"`
	Failed    bool      `json:"failed" bson:"failed"`
}

// MonteCarloResult aggregates every replication of a run
type MonteCarloResult struct {
	RunID     uuid.UUID          `json:"run_id" bson:"run_id"`
	System    string             `json:"system" bson:"system"`
	Summaries []Summary          `json:"summaries" bson:"summaries"`
	Failed    int                `json:"failed" bson:"failed"`
	Mean      Indices            `json:"mean" bson:"mean"`
	StdDev    Indices            `json:"std_dev" bson:"std_dev"`
	Networks  map[string]Indices `json:"networks" bson:"networks"`
	Buses     []BusSummary       `json:"buses" bson:"buses"`
}

func (o MonteCarloOptions) window() (window, error) {
	if o.Iterations <= 0 {
		return window{}, ErrNoIterations
	}
	w := window{
		start:     simtime.New(o.Start, o.TimeUnit),
		stop:      simtime.New(o.Stop, o.TimeUnit),
		step:      simtime.New(o.TimeStep, o.TimeUnit),
		seed:      o.RandomSeed,
		startHour: o.StartHour,
	}
	if !w.step.Positive() || w.increments() <= 0 {
		return w, fmt.Errorf("%v to %v by %v: %w", w.start, w.stop, w.step, ErrEmptyWindow)
	}
	return w, nil
}

func (o MonteCarloOptions) saves(iteration int) bool {
	return o.SaveFlag && slices.Contains(o.SaveIterations, iteration)
}

// RunMonteCarlo runs opts.Iterations replications on up to NProcs workers.
// Each worker builds its own system. A failed replication is recorded in its
// summary and only ends the run when Debug is set. Cancelling ctx stops the
// run between replications.
func (s *Simulation) RunMonteCarlo(ctx context.Context, opts MonteCarloOptions) (*MonteCarloResult, error) {
	if s.build == nil {
		return nil, ErrNoBuilder
	}
	w, err := opts.window()
	if err != nil {
		return nil, err
	}
	nprocs := opts.NProcs
	if nprocs <= 0 {
		nprocs = runtime.NumCPU()
	}
	nprocs = min(nprocs, opts.Iterations)

	var store *csvdb.Store
	if opts.SaveDir != "" {
		if store, err = csvdb.New(opts.SaveDir); err != nil {
			return nil, err
		}
	}

	res := &MonteCarloResult{
		RunID:     uuid.New(),
		Summaries: make([]Summary, opts.Iterations),
	}
	logger := s.log.With().Str("run", res.RunID.String()).Logger()
	logger.Info().Int("iterations", opts.Iterations).Int("workers", nprocs).Msg("monte carlo started")

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for it := 0; it < opts.Iterations; it++ {
			select {
			case jobs <- it:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var mux sync.Mutex
	done := 0
	for range nprocs {
		g.Go(func() error {
			ps, err := s.build()
			if err != nil {
				return fmt.Errorf("build power system: %w", err)
			}
			mux.Lock()
			res.System = ps.Name()
			mux.Unlock()
			for it := range jobs {
				rw := w
				rw.save = opts.saves(it)
				sum, err := s.runIteration(ps, it, rw)
				sum.RunID = res.RunID
				if err == nil && rw.save && store != nil {
					err = writeHistories(store, ps, it, rw, opts.TimeUnit)
				}
				if err != nil {
					sum.Err = err.Error()
					logger.Warn().Err(err).Int("iteration", it).Msg("replication failed")
					if opts.Debug {
						return err
					}
				}

				mux.Lock()
				res.Summaries[it] = sum
				done++
				p := Progress{RunID: res.RunID, Iteration: it, Done: done, Total: opts.Iterations, Failed: sum.Failed()}
				mux.Unlock()

				s.metrics.observeReplication(ps.Name(), sum)
				if s.publisher != nil {
					s.publisher.Publish(msg.Summary, sum)
					s.publisher.Publish(msg.Progress, p)
				}
				if opts.Progress != nil {
					opts.Progress(p)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.aggregate()
	s.metrics.setMeanSAIFI(res.System, res.Mean.SAIFI)
	if store != nil {
		if err := writeMonteCarlo(store, res); err != nil {
			return nil, err
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(msg.Status, res)
	}
	logger.Info().
		Int("failed", res.Failed).
		Float64("saifi", res.Mean.SAIFI).
		Float64("saidi", res.Mean.SAIDI).
		Float64("ens", res.Mean.ENS).
		Msg("monte carlo finished")
	return res, nil
}

// aggregate averages the indices and the bus accounting over the successful
// replications.
func (r *MonteCarloResult) aggregate() {
	var system []Indices
	networks := map[string][]Indices{}
	busValues := map[string][][]float64{}
	var busOrder []BusSummary
	for _, s := range r.Summaries {
		if s.Failed() {
			r.Failed++
			continue
		}
		system = append(system, s.System)
		for name, ix := range s.Networks {
			networks[name] = append(networks[name], ix)
		}
		if busOrder == nil {
			busOrder = s.Buses
		}
		for _, b := range s.Buses {
			busValues[b.Name] = append(busValues[b.Name], busFields(b))
		}
	}
	r.Mean = Mean(system)
	r.StdDev = StdDev(system)
	r.Networks = make(map[string]Indices, len(networks))
	for name, xs := range networks {
		r.Networks[name] = Mean(xs)
	}
	r.Buses = make([]BusSummary, 0, len(busOrder))
	for _, b := range busOrder {
		rows := busValues[b.Name]
		mean := make([]float64, len(rows[0]))
		col := make([]float64, len(rows))
		for j := range mean {
			for i, row := range rows {
				col[i] = row[j]
			}
			mean[j] = stat.Mean(col, nil)
		}
		r.Buses = append(r.Buses, busFromFields(b, mean))
	}
}

// busAttributes names the per-bus aggregate tables
var busAttributes = []string{
	"acc_interruptions", "acc_outage_time", "acc_p_load_shed", "acc_q_load_shed",
	"interruption_cost", "avg_fail_rate", "avg_outage_time",
}

func busFields(b BusSummary) []float64 {
	return []float64{b.Interruptions, b.OutageTime, b.PLoadShed, b.QLoadShed, b.InterruptionCost, b.AvgFailRate, b.AvgOutageTime}
}

func busFromFields(b BusSummary, v []float64) BusSummary {
	b.Interruptions, b.OutageTime, b.PLoadShed, b.QLoadShed = v[0], v[1], v[2], v[3]
	b.InterruptionCost, b.AvgFailRate, b.AvgOutageTime = v[4], v[5], v[6]
	return b
}

// historyGroups collects the history owners of ps by component kind
func historyGroups(ps *powersystem.PowerSystem) map[string][]history.Owner {
	groups := map[string][]history.Owner{}
	add := func(kind string, o history.Owner) {
		if o.History() != nil {
			groups[kind] = append(groups[kind], o)
		}
	}
	for _, c := range ps.Buses() {
		add("bus", c)
	}
	for _, c := range ps.Lines() {
		add("line", c)
	}
	for _, c := range ps.Switches() {
		add("switch", c)
	}
	for _, c := range ps.IntelligentSwitches() {
		add("intelligent_switch", c)
	}
	for _, c := range ps.Sensors() {
		add("sensor", c)
	}
	for _, c := range ps.Batteries() {
		add("battery", c)
	}
	for _, c := range ps.EVParks() {
		add("ev_park", c)
	}
	for _, c := range ps.Productions() {
		add("production", c)
	}
	for _, c := range ps.Sections() {
		add("section", c)
	}
	for _, n := range ps.Networks() {
		add("network", n)
		if c, ok := n.Controller().(history.Owner); ok {
			add("controller", c)
		}
	}
	if c, ok := ps.MainController().(history.Owner); ok {
		add("controller", c)
	}
	return groups
}

func writeHistories(store *csvdb.Store, ps *powersystem.PowerSystem, iteration int, w window, unit simtime.Unit) error {
	n := w.increments()
	index := make([]float64, n)
	for i := range index {
		index[i] = w.start.Add(w.step.Scale(float64(i))).In(unit)
	}
	return store.WriteHistories(strconv.Itoa(iteration), index, historyGroups(ps))
}

// writeMonteCarlo writes one table per index with a column per network plus
// the system, and one table per bus attribute with a column per bus. Rows
// are replications; failed ones are left out.
func writeMonteCarlo(store *csvdb.Store, r *MonteCarloResult) error {
	var names []string
	for name := range r.Networks {
		names = append(names, name)
	}
	slices.Sort(names)
	header := append([]string{"system"}, names...)

	var index []float64
	var ok []Summary
	for _, s := range r.Summaries {
		if !s.Failed() {
			index = append(index, float64(s.Iteration))
			ok = append(ok, s)
		}
	}
	for k, attr := range indexNames {
		rows := make([][]float64, len(ok))
		for i, s := range ok {
			row := []float64{s.System.values()[k]}
			for _, name := range names {
				row = append(row, s.Networks[name].values()[k])
			}
			rows[i] = row
		}
		if err := store.WriteTable(MonteCarloDir, attr, header, index, rows); err != nil {
			return err
		}
	}

	busHeader := make([]string, len(r.Buses))
	for i, b := range r.Buses {
		busHeader[i] = b.Name
	}
	for k, attr := range busAttributes {
		rows := make([][]float64, len(ok))
		for i, s := range ok {
			row := make([]float64, len(s.Buses))
			for j, b := range s.Buses {
				row[j] = busFields(b)[k]
			}
			rows[i] = row
		}
		if err := store.WriteTable(filepath.Join(MonteCarloDir, "bus"), attr, busHeader, index, rows); err != nil {
			return err
		}
	}
	return nil
}
