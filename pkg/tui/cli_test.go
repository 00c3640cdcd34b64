package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/epiflow/epiflow/internal/model"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{125 * time.Second, "2m5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{999, "999"},
		{1500, "1.5K"},
		{2500000, "2.5M"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.n); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatShare(t *testing.T) {
	if got := formatShare(1, 4); got != "25.0%" {
		t.Errorf("formatShare(1, 4) = %q", got)
	}
	if got := formatShare(0, 0); got != "0.0%" {
		t.Errorf("formatShare(0, 0) = %q", got)
	}
}

func TestRenderCensusOrder(t *testing.T) {
	out := RenderCensus(7, model.HealthCounts{10, 5, 3, 2})
	if !strings.HasPrefix(out, " Cycle: 7\n") {
		t.Errorf("missing cycle line: %q", out)
	}

	last := -1
	for _, s := range model.AllHealthStatuses {
		i := strings.Index(out, s.String())
		if i < 0 {
			t.Fatalf("%s missing from table", s)
		}
		if i < last {
			t.Errorf("%s out of display order", s)
		}
		last = i
	}
	if !strings.Contains(out, "50.0%") {
		t.Errorf("missing share column: %s", out)
	}
}

func TestPrintRunSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintRunSummary(&buf, &RunSummary{
		Seed:            42,
		Population:      1000,
		Cycles:          120,
		Final:           model.HealthCounts{600, 0, 380, 20},
		PeakInfected:    210,
		PeakCycle:       33,
		Duration:        2 * time.Second,
		CyclesPerSecond: 60,
	})

	out := buf.String()
	for _, want := range []string{"SIMULATION COMPLETE", "--- Final State ---", "Total time", "RECOVERED", "380", "cycle 33"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStats(t *testing.T) {
	out := RenderStats([]StatRow{{Name: "dead", Min: 1, Mean: 2.5, Max: 4}})
	for _, want := range []string{"dead", "2.50", "4"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats missing %q:\n%s", want, out)
		}
	}
}
