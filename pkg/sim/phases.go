package sim

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/epiflow/epiflow/internal/model"
	"github.com/epiflow/epiflow/pkg/interfaces"
	"github.com/epiflow/epiflow/pkg/random"
)

type phase int

const (
	phaseVisit phase = iota
	phaseExposure
	phaseResolve
	phaseHistory
)

var phaseNames = [...]string{"visit", "exposure", "resolve", "history"}

func (p phase) String() string { return phaseNames[p] }

func (c *Country) effectiveWorkers() int {
	if c.workers > 1 && c.source != nil {
		return c.workers
	}
	return 1
}

// cycle runs one full cycle. Each phase completes for every agent or
// location before the next one starts.
func (c *Country) cycle(ctx context.Context) error {
	cycle := c.clock.Current()
	ctx, span := c.tracer.Start(ctx, "sim.cycle", trace.WithAttributes(
		attribute.Int64("cycle", int64(cycle)),
	))
	defer span.End()
	start := time.Now()

	ids := c.living.ToArray()
	parallel := c.effectiveWorkers() > 1

	c.timed(phaseVisit, func() {
		c.forEach(cycle, phaseVisit, len(ids), func(rng random.Random, lo, hi int) {
			for _, id := range ids[lo:hi] {
				c.agents[id].VisitLocations(c.clock, rng)
			}
		})
	})

	var infections, deaths atomic.Int64
	c.timed(phaseExposure, func() {
		c.forEach(cycle, phaseExposure, len(c.locations), func(rng random.Random, lo, hi int) {
			for _, l := range c.locations[lo:hi] {
				if parallel {
					l.sortVisitors()
				}
				l.UpdateExposure(c.clock, rng, c.params.InfectionProb)
			}
		})
	})

	dead := make([][]uint32, c.chunks(len(ids)))
	c.timed(phaseResolve, func() {
		c.forEachChunk(cycle, phaseResolve, len(ids), func(chunk int, rng random.Random, lo, hi int) {
			for _, id := range ids[lo:hi] {
				a := c.agents[id]
				if a.ApplyPendingInfection(c.clock) {
					infections.Add(1)
					continue
				}
				if a.ResolveHealth(c.clock, rng, c.params) == model.Dead {
					dead[chunk] = append(dead[chunk], id)
					deaths.Add(1)
				}
			}
		})
	})
	for _, chunk := range dead {
		for _, id := range chunk {
			c.living.Remove(id)
		}
	}

	c.clock.advance()

	survivors := c.living.ToArray()
	c.timed(phaseHistory, func() {
		c.forEach(cycle, phaseHistory, len(survivors), func(_ random.Random, lo, hi int) {
			for _, id := range survivors[lo:hi] {
				c.agents[id].AdvanceHistory(c.clock)
			}
		})
		c.forEach(cycle, phaseHistory, len(c.locations), func(_ random.Random, lo, hi int) {
			for _, l := range c.locations[lo:hi] {
				l.ClearVisitors()
			}
		})
	})

	c.agentCycles += uint64(len(ids))
	c.metrics.Counter(interfaces.MetricSimCycles, 1, nil)
	c.metrics.Counter(interfaces.MetricSimNewInfections, infections.Load(), nil)
	c.metrics.Counter(interfaces.MetricSimNewDeaths, deaths.Load(), nil)
	c.metrics.Timer(interfaces.MetricSimCycleDuration, time.Since(start), nil)

	err := c.snapshot(ctx)
	last := c.history[len(c.history)-1]
	span.SetAttributes(
		attribute.Int("infected", last[model.Infected]),
		attribute.Int("dead", last[model.Dead]),
		attribute.Int64("new_infections", infections.Load()),
	)
	return err
}

func (c *Country) timed(p phase, fn func()) {
	start := time.Now()
	fn()
	c.metrics.Timer(interfaces.MetricSimPhaseDuration, time.Since(start), map[string]string{
		interfaces.TagPhase: p.String(),
	})
}

// chunks returns how many contiguous chunks n items are split into.
func (c *Country) chunks(n int) int {
	w := c.effectiveWorkers()
	if w <= 1 || n < w {
		return 1
	}
	return w
}

func (c *Country) forEach(cycle uint32, p phase, n int, fn func(rng random.Random, lo, hi int)) {
	c.forEachChunk(cycle, p, n, func(_ int, rng random.Random, lo, hi int) {
		fn(rng, lo, hi)
	})
}

// forEachChunk splits [0, n) into contiguous chunks and calls fn for each.
// Sequentially it uses the country's own source. In parallel every chunk
// draws from a stream forked for (cycle, phase, chunk), so a run is
// reproducible for a fixed seed and worker count. It returns once every
// chunk is done.
func (c *Country) forEachChunk(cycle uint32, p phase, n int, fn func(chunk int, rng random.Random, lo, hi int)) {
	chunks := c.chunks(n)
	if chunks == 1 {
		fn(0, c.rng, 0, n)
		return
	}

	size := (n + chunks - 1) / chunks
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i := 0; i < chunks; i++ {
		lo := i * size
		if lo >= n {
			break
		}
		hi := min(lo+size, n)
		g.Go(func() error {
			fn(i, c.source.Fork(random.StreamID(cycle, int(p), i)), lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}
