// Package report streams simulation progress to reporting sinks: the
// console, a progress bar, Redis and PostgreSQL.
package report

import (
	"context"
	"time"

	"github.com/epiflow/epiflow/internal/model"
	"github.com/epiflow/epiflow/pkg/errors"
	"github.com/epiflow/epiflow/pkg/sim"
)

// CycleReport is the census after one cycle.
type CycleReport struct {
	RunID   string
	Cycle   uint32
	Counts  model.HealthCounts
	Elapsed time.Duration
}

// Summary is the outcome of a finished or interrupted run.
type Summary struct {
	Run    model.RunInfo
	Result *sim.Result
	Err    error
}

// Sink receives run events. Sinks are driven from the simulation loop and
// need not be safe for concurrent use.
type Sink interface {
	Name() string
	Start(ctx context.Context, run model.RunInfo) error
	Cycle(ctx context.Context, r CycleReport) error
	Finish(ctx context.Context, s Summary) error
	Close() error
}

// Fanout forwards events to several sinks and adapts them to the
// simulation's Observer.
type Fanout struct {
	sinks []Sink
	run   model.RunInfo
	start time.Time
}

// NewFanout creates a fanout over sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Add appends a sink.
func (f *Fanout) Add(s Sink) {
	f.sinks = append(f.sinks, s)
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Start notifies every sink that a run begins.
func (f *Fanout) Start(ctx context.Context, run model.RunInfo) error {
	f.run = run
	f.start = time.Now()
	for _, s := range f.sinks {
		if err := s.Start(ctx, run); err != nil {
			return sinkErr(s, "start", err)
		}
	}
	return nil
}

// OnCycle implements sim.Observer.
func (f *Fanout) OnCycle(ctx context.Context, cycle uint32, counts model.HealthCounts) error {
	r := CycleReport{
		RunID:   f.run.ID,
		Cycle:   cycle,
		Counts:  counts,
		Elapsed: time.Since(f.start),
	}
	for _, s := range f.sinks {
		if err := s.Cycle(ctx, r); err != nil {
			return sinkErr(s, "cycle", err)
		}
	}
	return nil
}

// Finish notifies every sink of the outcome. All sinks are notified even
// if one fails.
func (f *Fanout) Finish(ctx context.Context, res *sim.Result, runErr error) error {
	var errs errors.MultiError
	for _, s := range f.sinks {
		if err := s.Finish(ctx, Summary{Run: f.run, Result: res, Err: runErr}); err != nil {
			errs.Add(sinkErr(s, "finish", err))
		}
	}
	return errs.Combined()
}

// Close closes every sink.
func (f *Fanout) Close() error {
	var errs errors.MultiError
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs.Add(sinkErr(s, "close", err))
		}
	}
	return errs.Combined()
}

func sinkErr(s Sink, op string, err error) error {
	return errors.Wrap(err, errors.CodeSinkFailed, "sink failed").
		WithContext("sink", s.Name()).
		WithContext("op", op)
}

var _ sim.Observer = (*Fanout)(nil)
