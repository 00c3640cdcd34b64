// Package sim implements the agent-based epidemic model: agents carrying a
// health state machine, mixing locations, and the Country that advances
// them through discrete cycles.
package sim

import (
	"context"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/epiflow/epiflow/internal/model"
	"github.com/epiflow/epiflow/pkg/defaults/metrics"
	"github.com/epiflow/epiflow/pkg/errors"
	"github.com/epiflow/epiflow/pkg/interfaces"
	"github.com/epiflow/epiflow/pkg/logging"
	"github.com/epiflow/epiflow/pkg/random"
)

// Observer is notified after every aggregate snapshot, including the one
// taken before the first cycle. An error aborts the run.
type Observer interface {
	OnCycle(ctx context.Context, cycle uint32, counts model.HealthCounts) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, cycle uint32, counts model.HealthCounts) error

// OnCycle calls f.
func (f ObserverFunc) OnCycle(ctx context.Context, cycle uint32, counts model.HealthCounts) error {
	return f(ctx, cycle, counts)
}

// Option configures a Country.
type Option func(*Country)

// WithSeed seeds the country's random source. Zero seeds from the clock.
func WithSeed(seed uint64) Option {
	return func(c *Country) {
		c.source = random.NewSource(seed)
		c.rng = c.source
	}
}

// WithRandom replaces the random source. A source that cannot be forked
// forces sequential phases.
func WithRandom(r random.Random) Option {
	return func(c *Country) {
		c.rng = r
		c.source, _ = r.(*random.Source)
	}
}

// WithWorkers runs each phase on up to n goroutines. n <= 1 is sequential.
func WithWorkers(n int) Option {
	return func(c *Country) {
		c.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Country) {
		c.logger = logging.OrDiscard(l)
	}
}

// WithMetrics sets the metrics exporter.
func WithMetrics(m interfaces.MetricsExporter) Option {
	return func(c *Country) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracer sets the tracer used for run and cycle spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Country) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(c *Country) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// Country owns the population, the locations and the clock, and runs the
// phased cycle loop.
type Country struct {
	params Params
	clock  *Clock

	rng     random.Random
	source  *random.Source
	workers int

	locations []*Location
	agents    []*Agent
	living    *roaring.Bitmap
	history   []model.HealthCounts

	agentCycles uint64
	started     bool
	ran         bool

	logger    *log.Logger
	metrics   interfaces.MetricsExporter
	tracer    trace.Tracer
	observers []Observer
}

// NewCountry creates an empty country. Populate it with AddLocation and
// AddAgent before running.
func NewCountry(params Params, opts ...Option) *Country {
	src := random.NewSource(0)
	c := &Country{
		params:  params,
		clock:   NewClock(),
		rng:     src,
		source:  src,
		workers: 1,
		living:  roaring.New(),
		logger:  logging.Discard(),
		metrics: metrics.NewNoopMetrics(),
		tracer:  otel.Tracer("github.com/epiflow/epiflow/pkg/sim"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddLocation creates a location of the given kind.
func (c *Country) AddLocation(kind Kind, visitProb float64) *Location {
	l := NewLocation(len(c.locations), kind, visitProb)
	c.locations = append(c.locations, l)
	return l
}

// AddAgent creates a healthy agent living in home and visiting others.
func (c *Country) AddAgent(home *Location, others ...*Location) (*Agent, error) {
	if c.started {
		return nil, errors.New(errors.CodeInvalidTopology, "cannot add agents after the run started")
	}
	if home == nil {
		return nil, errors.New(errors.CodeInvalidTopology, "agent needs a home")
	}
	if home.kind != Household {
		return nil, errors.New(errors.CodeInvalidTopology, "home must be a household").
			WithContext("location", home.Name())
	}
	for _, l := range append([]*Location{home}, others...) {
		if l != nil && !c.owns(l) {
			return nil, errors.New(errors.CodeInvalidTopology, "location belongs to another country").
				WithContext("location", l.Name())
		}
	}

	a := newAgent(len(c.agents), c.clock.Current(), home, others...)
	c.agents = append(c.agents, a)
	c.living.Add(uint32(a.id))
	return a, nil
}

func (c *Country) owns(l *Location) bool {
	return l.id >= 0 && l.id < len(c.locations) && c.locations[l.id] == l
}

// Infect marks an agent infected before the first cycle.
func (c *Country) Infect(a *Agent) error {
	if c.started {
		return errors.New(errors.CodeInvalidTopology, "cannot seed infections after the run started")
	}
	if a == nil || a.id < 0 || a.id >= len(c.agents) || c.agents[a.id] != a {
		return errors.New(errors.CodeInvalidTopology, "agent belongs to another country")
	}
	a.infect()
	return nil
}

// Params returns the model parameters.
func (c *Country) Params() Params { return c.params }

// Clock returns the country's clock.
func (c *Country) Clock() *Clock { return c.clock }

// Cycle returns the current cycle.
func (c *Country) Cycle() uint32 { return c.clock.Current() }

// Population returns the number of agents, dead ones included.
func (c *Country) Population() int { return len(c.agents) }

// Living returns the number of agents still alive.
func (c *Country) Living() int { return int(c.living.GetCardinality()) }

// Agents returns the population in id order.
func (c *Country) Agents() []*Agent { return c.agents }

// Locations returns the locations in creation order.
func (c *Country) Locations() []*Location { return c.locations }

// Seed returns the seed of the forkable source, or 0 for a custom source.
func (c *Country) Seed() uint64 {
	if c.source == nil {
		return 0
	}
	return c.source.Seed()
}

// History returns the aggregate snapshots taken so far.
func (c *Country) History() []model.HealthCounts {
	out := make([]model.HealthCounts, len(c.history))
	copy(out, c.history)
	return out
}

// Counts returns a fresh census of the whole population.
func (c *Country) Counts() model.HealthCounts {
	var counts model.HealthCounts
	for _, a := range c.agents {
		counts.Add(a.Health())
	}
	return counts
}

// Terminated reports whether the run is over: no infected agents remain
// or the cycle cap was reached.
func (c *Country) Terminated() bool {
	if !c.started {
		return false
	}
	last := c.history[len(c.history)-1]
	return last[model.Infected] == 0 || int(c.clock.Current()) >= c.params.MaxCycles
}

// Result summarizes a finished run.
type Result struct {
	Cycles     int
	Population int
	Final      model.HealthCounts
	History    []model.HealthCounts

	PeakInfected int
	PeakCycle    int

	Duration             time.Duration
	CyclesPerSecond      float64
	AgentCyclesPerSecond float64
}

// Run advances the country until it terminates. The context is checked
// between cycles; on cancellation the partial result is returned along
// with a ContextCanceled error.
func (c *Country) Run(ctx context.Context) (*Result, error) {
	if c.ran {
		return nil, errors.New(errors.CodeInvalidTopology, "country has already run")
	}
	c.ran = true

	ctx, span := c.tracer.Start(ctx, "sim.run", trace.WithAttributes(
		attribute.Int("population", len(c.agents)),
		attribute.Int("locations", len(c.locations)),
		attribute.Int("max_cycles", c.params.MaxCycles),
		attribute.Int("workers", c.workers),
	))
	defer span.End()

	c.logger.Info("simulation started",
		"population", len(c.agents),
		"locations", len(c.locations),
		"max_cycles", c.params.MaxCycles,
		"workers", c.effectiveWorkers(),
		"seed", c.Seed(),
	)

	start := time.Now()
	var runErr error
	if !c.started {
		runErr = c.begin(ctx)
	}
	for runErr == nil && !c.Terminated() {
		if err := ctx.Err(); err != nil {
			runErr = errors.ContextCanceled("run", err)
			break
		}
		if err := c.cycle(ctx); err != nil {
			runErr = err
		}
	}
	res := c.result(time.Since(start))

	span.SetAttributes(
		attribute.Int("cycles", res.Cycles),
		attribute.Int("dead", res.Final[model.Dead]),
	)
	if runErr != nil {
		span.RecordError(runErr)
		c.logger.Warn("simulation stopped", "cycle", res.Cycles, "err", runErr)
	} else {
		c.logger.Info("simulation finished",
			"cycles", res.Cycles,
			"final", res.Final.String(),
			"duration", res.Duration.Round(time.Millisecond),
			"cycles_per_sec", int(res.CyclesPerSecond),
		)
	}
	c.metrics.Gauge(interfaces.MetricSimCyclesPerSecond, res.CyclesPerSecond, nil)
	c.metrics.Gauge(interfaces.MetricSimAgentThroughput, res.AgentCyclesPerSecond, nil)
	_ = c.metrics.Flush()

	return res, runErr
}

// Step runs a single cycle unless the country has terminated. The first
// call also takes the initial snapshot. It reports whether a cycle ran.
func (c *Country) Step(ctx context.Context) (bool, error) {
	if !c.started {
		if err := c.begin(ctx); err != nil {
			return false, err
		}
	}
	if c.Terminated() {
		return false, nil
	}
	if err := c.cycle(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// begin takes the initial aggregate snapshot.
func (c *Country) begin(ctx context.Context) error {
	c.started = true
	return c.snapshot(ctx)
}

func (c *Country) snapshot(ctx context.Context) error {
	counts := c.Counts()
	c.history = append(c.history, counts)

	cycle := c.clock.Current()
	for _, h := range model.AllHealthStatuses {
		c.metrics.Gauge(interfaces.MetricSimAgentsByHealth, float64(counts[h]), map[string]string{
			interfaces.TagHealth: h.String(),
		})
	}
	c.logger.Debug("cycle", "n", cycle, "counts", counts.String())

	for _, o := range c.observers {
		if err := o.OnCycle(ctx, cycle, counts); err != nil {
			return errors.Wrap(err, errors.CodeSinkFailed, "observer failed").
				WithContext("cycle", cycle)
		}
	}
	return nil
}

func (c *Country) result(d time.Duration) *Result {
	res := &Result{
		Cycles:     int(c.clock.Current()),
		Population: len(c.agents),
		History:    c.History(),
		Duration:   d,
	}
	if n := len(c.history); n > 0 {
		res.Final = c.history[n-1]
	} else {
		res.Final = c.Counts()
	}
	for i, h := range c.history {
		if h[model.Infected] > res.PeakInfected {
			res.PeakInfected = h[model.Infected]
			res.PeakCycle = i
		}
	}
	if secs := d.Seconds(); secs > 0 {
		res.CyclesPerSecond = float64(res.Cycles) / secs
		res.AgentCyclesPerSecond = float64(c.agentCycles) / secs
	}
	return res
}
