package report

import (
	"context"
	"fmt"
	"io"

	"github.com/epiflow/epiflow/internal/model"
	"github.com/epiflow/epiflow/pkg/tui"
)

// ConsoleSink prints a census table every N cycles and the final summary.
type ConsoleSink struct {
	w     io.Writer
	every int
}

// NewConsoleSink prints every n cycles; n <= 0 prints only the summary.
func NewConsoleSink(w io.Writer, every int) *ConsoleSink {
	return &ConsoleSink{w: w, every: every}
}

func (c *ConsoleSink) Name() string { return "console" }

func (c *ConsoleSink) Start(_ context.Context, run model.RunInfo) error {
	tui.PrintSection(c.w, "SIMULATION")
	tui.PrintField(c.w, "Run", run.ID)
	tui.PrintField(c.w, "Population", run.Population)
	tui.PrintField(c.w, "Locations", run.Locations)
	return nil
}

func (c *ConsoleSink) Cycle(_ context.Context, r CycleReport) error {
	if c.every <= 0 || int(r.Cycle)%c.every != 0 {
		return nil
	}
	_, err := fmt.Fprintln(c.w, tui.RenderCensus(r.Cycle, r.Counts))
	return err
}

func (c *ConsoleSink) Finish(_ context.Context, s Summary) error {
	if s.Result == nil {
		return nil
	}
	res := s.Result
	tui.PrintRunSummary(c.w, &tui.RunSummary{
		RunID:                s.Run.ID,
		Seed:                 s.Run.Seed,
		Population:           res.Population,
		Locations:            s.Run.Locations,
		Cycles:               res.Cycles,
		Final:                res.Final,
		PeakInfected:         res.PeakInfected,
		PeakCycle:            res.PeakCycle,
		Duration:             res.Duration,
		CyclesPerSecond:      res.CyclesPerSecond,
		AgentCyclesPerSecond: res.AgentCyclesPerSecond,
		Interrupted:          s.Err != nil,
	})
	return nil
}

func (c *ConsoleSink) Close() error { return nil }
