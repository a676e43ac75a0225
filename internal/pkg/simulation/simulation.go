// Package simulation steps a power system through sequential time and runs
// Monte-Carlo sets of replications over it.
package simulation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/relsim/internal/pkg/loadflow"
	"github.com/ohowland/relsim/internal/pkg/msg"
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/simtime"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyWindow = errors.New("simulation window holds no increment")
	ErrNoBuilder   = errors.New("no power system builder")
)

// Builder returns a freshly built system. Each worker calls it once and owns
// the result.
type Builder func() (*powersystem.PowerSystem, error)

// Hooks are called at fixed points of every tick. AfterFailures runs between
// failure sampling and the controllers, AfterTick once the tick is recorded.
type Hooks struct {
	AfterFailures func(inc int, curr simtime.Time, ps *powersystem.PowerSystem)
	AfterTick     func(inc int, curr simtime.Time, ps *powersystem.PowerSystem)
}

// Simulation runs replications of the systems produced by its builder
type Simulation struct {
	pid       uuid.UUID
	build     Builder
	hooks     Hooks
	lf        loadflow.Config
	seed      uint64
	startHour int
	save      bool
	publisher *msg.PubSub
	metrics   *Metrics
	log       zerolog.Logger
}

// Option configures a Simulation
type Option func(*Simulation)

func WithHooks(h Hooks) Option { return func(s *Simulation) { s.hooks = h } }

func WithLoadFlow(cfg loadflow.Config) Option { return func(s *Simulation) { s.lf = cfg } }

// WithSeed sets the run seed used by RunIteration
func WithSeed(seed uint64) Option { return func(s *Simulation) { s.seed = seed } }

// WithStartHour sets the wall-clock hour of simulated time zero
func WithStartHour(h int) Option { return func(s *Simulation) { s.startHour = h } }

// WithHistory makes RunIteration record per-tick histories
func WithHistory(save bool) Option { return func(s *Simulation) { s.save = save } }

// WithPublisher publishes replication summaries and progress on p
func WithPublisher(p *msg.PubSub) Option { return func(s *Simulation) { s.publisher = p } }

func WithMetrics(m *Metrics) Option { return func(s *Simulation) { s.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(s *Simulation) { s.log = l } }

// New returns a Simulation over the systems produced by build
func New(build Builder, opts ...Option) *Simulation {
	s := &Simulation{
		pid:   uuid.New(),
		build: build,
		log:   log.With().Str("component", "simulation").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Simulation) PID() uuid.UUID { return s.pid }

// window is one replication's time grid and bookkeeping
type window struct {
	start, stop, step simtime.Time
	seed              uint64
	startHour         int
	save              bool
}

func (w window) increments() int {
	n := w.stop.Sub(w.start).Div(w.step)
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return int(math.Round(n))
}

// RunIteration runs replication iteration of ps from start to stop
func (s *Simulation) RunIteration(ps *powersystem.PowerSystem, iteration int, start, stop, step simtime.Time) (Summary, error) {
	return s.runIteration(ps, iteration, window{
		start:     start,
		stop:      stop,
		step:      step,
		seed:      s.seed,
		startHour: s.startHour,
		save:      s.save,
	})
}

func (s *Simulation) runIteration(ps *powersystem.PowerSystem, iteration int, w window) (Summary, error) {
	began := time.Now()
	sum := Summary{Iteration: iteration, Seed: w.seed}
	n := w.increments()
	if n <= 0 || !w.step.Positive() {
		return sum, fmt.Errorf("%v to %v by %v: %w", w.start, w.stop, w.step, ErrEmptyWindow)
	}
	ps.ResetStatus(w.save)
	ps.Seed(w.seed, uint64(iteration))
	ps.Prepare(n)

	logger := s.log.With().Int("iteration", iteration).Logger()
	for inc := 0; inc < n; inc++ {
		curr := w.start.Add(w.step.Scale(float64(inc)))
		tickStart := time.Now()
		res, err := s.tick(ps, inc, curr, w)
		if err != nil {
			return sum, fmt.Errorf("iteration %d tick %d: %w", iteration, inc, err)
		}
		if res.anomalies > 0 {
			logger.Debug().Int("tick", inc).Int("anomalies", res.anomalies).Msg("load flow kept previous voltage")
			sum.Anomalies += res.anomalies
		}
		sum.Ticks++
		s.metrics.observeTick(time.Since(tickStart))
	}
	sum.Duration = time.Since(began)
	sum.collect(ps, w.stop.Sub(w.start))
	return sum, nil
}

// tick runs one increment in the fixed order: load, failures, controllers,
// islands, DER balance and shedding, load flow, accounting, history.
func (s *Simulation) tick(ps *powersystem.PowerSystem, inc int, curr simtime.Time, w window) (tickResult, error) {
	dt := w.step
	ps.SetLoadAndCost(inc)
	ps.UpdateFailStatus(dt)
	if s.hooks.AfterFailures != nil {
		s.hooks.AfterFailures(inc, curr, ps)
	}
	ps.RunControlLoop(curr, dt)

	subs := ps.FindSubSystems()
	res, err := s.balance(ps, subs, simtime.HourOfDay(w.startHour, curr), dt)
	if err != nil {
		return res, err
	}
	for _, b := range ps.Buses() {
		b.EndTick(dt)
	}
	for _, b := range ps.Batteries() {
		b.EndTick(dt)
	}
	for _, p := range ps.EVParks() {
		p.EndTick(dt)
	}
	ps.UpdateHistory()
	if s.hooks.AfterTick != nil {
		s.hooks.AfterTick(inc, curr, ps)
	}
	return res, nil
}
