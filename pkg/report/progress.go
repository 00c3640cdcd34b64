package report

import (
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/epiflow/epiflow/internal/model"
	"github.com/epiflow/epiflow/pkg/tui"
)

// ProgressSink drives a progress bar over the cycle cap. The bar finishes
// early when the epidemic dies out.
type ProgressSink struct {
	w         io.Writer
	maxCycles int
	bar       *progressbar.ProgressBar
}

// NewProgressSink creates a progress sink writing to w.
func NewProgressSink(w io.Writer, maxCycles int) *ProgressSink {
	return &ProgressSink{w: w, maxCycles: maxCycles}
}

func (p *ProgressSink) Name() string { return "progress" }

func (p *ProgressSink) Start(_ context.Context, run model.RunInfo) error {
	p.bar = tui.ShowProgress(p.w, int64(p.maxCycles), "  cycles")
	return nil
}

func (p *ProgressSink) Cycle(_ context.Context, r CycleReport) error {
	if p.bar == nil || r.Cycle == 0 {
		return nil
	}
	p.bar.Describe(fmt.Sprintf("  cycles (infected %d)", r.Counts[model.Infected]))
	return p.bar.Set(int(r.Cycle))
}

func (p *ProgressSink) Finish(context.Context, Summary) error {
	if p.bar == nil {
		return nil
	}
	return p.bar.Finish()
}

func (p *ProgressSink) Close() error {
	if p.bar == nil {
		return nil
	}
	return p.bar.Close()
}
