package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func newTestLogger(buf *bytes.Buffer) *log.Logger {
	return log.NewWithOptions(buf, log.Options{Level: log.DebugLevel})
}

func TestLogMetricsImmediate(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMetrics(newTestLogger(&buf))

	m.Counter("epiflow.sim.cycles", 1, nil)
	m.Gauge("epiflow.sim.agents", 42, map[string]string{"health": "INFECTED"})

	out := buf.String()
	if !strings.Contains(out, "epiflow.sim.cycles=1") {
		t.Errorf("counter missing: %q", out)
	}
	if !strings.Contains(out, "health=INFECTED") {
		t.Errorf("tags missing: %q", out)
	}
}

func TestLogMetricsBuffered(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMetrics(newTestLogger(&buf), WithBufferSize(3))

	m.Counter("a", 1, nil)
	m.Counter("b", 2, nil)
	if buf.Len() != 0 {
		t.Fatalf("buffered metrics written early: %q", buf.String())
	}

	if err := m.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !strings.Contains(buf.String(), "b=2") {
		t.Errorf("flush did not write buffered metrics: %q", buf.String())
	}
}

func TestLogMetricsMinLevel(t *testing.T) {
	tests := []struct {
		name       string
		level      LogLevel
		wantGauge  bool
		wantTimer  bool
	}{
		{"all", LogLevelAll, true, true},
		{"timers", LogLevelTimers, false, true},
		{"none", LogLevelNone, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewLogMetrics(newTestLogger(&buf), WithMinLevel(tt.level))
			m.Gauge("g", 1, nil)
			m.Timer("t", time.Millisecond, nil)

			out := buf.String()
			if got := strings.Contains(out, "g=1"); got != tt.wantGauge {
				t.Errorf("gauge logged = %v, want %v", got, tt.wantGauge)
			}
			if got := strings.Contains(out, "t=1ms"); got != tt.wantTimer {
				t.Errorf("timer logged = %v, want %v", got, tt.wantTimer)
			}
		})
	}
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoopMetrics()
	m.Counter("x", 1, nil)
	if err := m.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
