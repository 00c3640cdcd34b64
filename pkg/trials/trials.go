// Package trials runs many independent simulations of one scenario and
// aggregates their outcomes.
package trials

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/epiflow/epiflow/internal/model"
	"github.com/epiflow/epiflow/pkg/defaults/metrics"
	"github.com/epiflow/epiflow/pkg/errors"
	"github.com/epiflow/epiflow/pkg/interfaces"
	"github.com/epiflow/epiflow/pkg/logging"
	"github.com/epiflow/epiflow/pkg/random"
	"github.com/epiflow/epiflow/pkg/sim"
	"github.com/epiflow/epiflow/pkg/topology"
	"github.com/epiflow/epiflow/pkg/tui"
	"github.com/epiflow/epiflow/pkg/writer"
)

// Config describes a batch of trials.
type Config struct {
	// Trials is the number of runs.
	Trials int

	// Parallel bounds the number of concurrent runs. Zero means one.
	Parallel int

	// Seed is the base seed; trial i uses Seed+i. Zero picks a random base.
	Seed uint64

	// Workers is passed to each country.
	Workers int

	Params   sim.Params
	Topology topology.Config
}

// Trial is the outcome of one run.
type Trial struct {
	Index     int
	Seed      uint64
	MaxCycles int
	Layout    topology.Summary
	Result    *sim.Result
	Duration  time.Duration
}

// Report aggregates a batch.
type Report struct {
	Trials   []Trial
	Duration time.Duration
}

// Runner executes trials.
type Runner struct {
	cfg     Config
	logger  *log.Logger
	metrics interfaces.MetricsExporter
}

// NewRunner creates a runner. A nil logger or metrics exporter discards output.
func NewRunner(cfg Config, logger *log.Logger, m interfaces.MetricsExporter) *Runner {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &Runner{cfg: cfg, logger: logging.OrDiscard(logger), metrics: m}
}

// Seeds returns the seed of every trial.
func (r *Runner) Seeds() []uint64 {
	base := r.cfg.Seed
	if base == 0 {
		base = random.NewSource(0).Seed()
	}
	seeds := make([]uint64, r.cfg.Trials)
	for i := range seeds {
		seeds[i] = base + uint64(i)
	}
	return seeds
}

// Run executes every trial and returns them ordered by index. The first
// failing trial cancels the rest.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if r.cfg.Trials < 1 {
		return nil, errors.InvalidParameter("trials", r.cfg.Trials, ">= 1")
	}
	parallel := r.cfg.Parallel
	if parallel < 1 {
		parallel = 1
	}

	seeds := r.Seeds()
	out := make([]Trial, len(seeds))
	start := time.Now()

	r.logger.Info("trials started", "trials", len(seeds), "parallel", parallel, "base_seed", seeds[0])

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, seed := range seeds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.ContextCanceled("trials", err)
			}
			t, err := r.runOne(gctx, i, seed)
			if err != nil {
				return err
			}
			out[i] = t

			mu.Lock()
			done++
			n := done
			mu.Unlock()

			r.metrics.Counter(interfaces.MetricTrialsCompleted, 1, nil)
			r.metrics.Timer(interfaces.MetricTrialDuration, t.Duration, nil)
			r.logger.Debug("trial finished", "trial", i, "seed", seed, "cycles", t.Result.Cycles,
				"done", n, "final", t.Result.Final.String())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	_ = r.metrics.Flush()

	rep := &Report{Trials: out, Duration: time.Since(start)}
	r.logger.Info("trials finished", "trials", len(out), "duration", rep.Duration.Round(time.Millisecond))
	return rep, nil
}

func (r *Runner) runOne(ctx context.Context, i int, seed uint64) (Trial, error) {
	country, layout, err := topology.Build(r.cfg.Params, r.cfg.Topology, random.NewSource(seed), nil,
		sim.WithWorkers(r.cfg.Workers))
	if err != nil {
		return Trial{}, errors.Wrap(err, errors.CodeInvalidTopology, "build trial").WithContext("trial", i)
	}
	start := time.Now()
	res, err := country.Run(ctx)
	if err != nil {
		return Trial{}, err
	}
	return Trial{
		Index:     i,
		Seed:      seed,
		MaxCycles: r.cfg.Params.MaxCycles,
		Layout:    layout,
		Result:    res,
		Duration:  time.Since(start),
	}, nil
}

// Stats returns min, mean and max across trials of every final count,
// the infection peak and the cycle count.
func (rep *Report) Stats() []tui.StatRow {
	type measure struct {
		name  string
		value func(*sim.Result) float64
	}
	measures := []measure{
		{"cycles", func(r *sim.Result) float64 { return float64(r.Cycles) }},
		{"peak infected", func(r *sim.Result) float64 { return float64(r.PeakInfected) }},
		{"peak cycle", func(r *sim.Result) float64 { return float64(r.PeakCycle) }},
	}
	for _, s := range model.AllHealthStatuses {
		measures = append(measures, measure{"final " + s.String(), func(r *sim.Result) float64 { return float64(r.Final[s]) }})
	}

	rows := make([]tui.StatRow, 0, len(measures))
	for _, m := range measures {
		row := tui.StatRow{Name: m.name, Min: math.Inf(1), Max: math.Inf(-1)}
		var sum float64
		for _, t := range rep.Trials {
			v := m.value(t.Result)
			sum += v
			row.Min = math.Min(row.Min, v)
			row.Max = math.Max(row.Max, v)
		}
		if n := len(rep.Trials); n > 0 {
			row.Mean = sum / float64(n)
		} else {
			row.Min, row.Max = 0, 0
		}
		rows = append(rows, row)
	}
	return rows
}

// Export writes each trial's history as its own run, identified as
// runID-<index>.
func (rep *Report) Export(ctx context.Context, w writer.Writer, runID string, started time.Time) error {
	for _, t := range rep.Trials {
		info := model.RunInfo{
			ID:         fmt.Sprintf("%s-%d", runID, t.Index),
			Seed:       t.Seed,
			Population: t.Result.Population,
			Locations:  t.Layout.Locations(),
			MaxCycles:  t.MaxCycles,
			StartedAt:  started,
		}
		if err := w.WriteRun(ctx, info, model.Records(t.Result.History)); err != nil {
			return errors.Wrap(err, errors.CodeExportFailed, "export trial").WithContext("trial", t.Index)
		}
	}
	return nil
}
