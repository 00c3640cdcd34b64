package report

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/epiflow/epiflow/internal/model"
	"github.com/epiflow/epiflow/pkg/errors"
	"github.com/epiflow/epiflow/pkg/sim"
)

// recordingSink records every call it receives.
type recordingSink struct {
	name     string
	calls    []string
	failOn   string
	finished *Summary
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) fail(op string) error {
	r.calls = append(r.calls, op)
	if op == r.failOn {
		return fmt.Errorf("%s refused", op)
	}
	return nil
}

func (r *recordingSink) Start(context.Context, model.RunInfo) error { return r.fail("start") }
func (r *recordingSink) Cycle(_ context.Context, c CycleReport) error {
	return r.fail(fmt.Sprintf("cycle%d", c.Cycle))
}
func (r *recordingSink) Finish(_ context.Context, s Summary) error {
	r.finished = &s
	return r.fail("finish")
}
func (r *recordingSink) Close() error { return r.fail("close") }

func TestFanoutDrivesSinksFromCountry(t *testing.T) {
	a, b := &recordingSink{name: "a"}, &recordingSink{name: "b"}
	fan := NewFanout(a)
	fan.Add(b)

	c := sim.NewCountry(sim.DefaultParams(), sim.WithSeed(1), sim.WithObserver(fan))
	home := c.AddLocation(sim.Household, 1)
	for i := 0; i < 3; i++ {
		if _, err := c.AddAgent(home); err != nil {
			t.Fatal(err)
		}
	}

	ctx := context.Background()
	if err := fan.Start(ctx, model.RunInfo{ID: "run-1"}); err != nil {
		t.Fatal(err)
	}
	res, err := c.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := fan.Finish(ctx, res, nil); err != nil {
		t.Fatal(err)
	}
	if err := fan.Close(); err != nil {
		t.Fatal(err)
	}

	want := []string{"start", "cycle0", "finish", "close"}
	for _, s := range []*recordingSink{a, b} {
		if strings.Join(s.calls, ",") != strings.Join(want, ",") {
			t.Errorf("sink %s calls = %v, want %v", s.name, s.calls, want)
		}
		if s.finished == nil || s.finished.Run.ID != "run-1" || s.finished.Result != res {
			t.Errorf("sink %s finish summary = %+v", s.name, s.finished)
		}
	}
}

func TestFanoutCycleErrorIsSinkFailed(t *testing.T) {
	fan := NewFanout(&recordingSink{name: "flaky", failOn: "cycle3"})
	err := fan.OnCycle(context.Background(), 3, model.HealthCounts{})
	if !errors.IsCode(err, errors.CodeSinkFailed) {
		t.Fatalf("err = %v, want SinkFailed", err)
	}
	if !strings.Contains(err.Error(), "sink=flaky") {
		t.Errorf("err = %q, missing sink name", err.Error())
	}
}

func TestFanoutFinishNotifiesAll(t *testing.T) {
	a := &recordingSink{name: "a", failOn: "finish"}
	b := &recordingSink{name: "b"}
	fan := NewFanout(a, b)
	if err := fan.Finish(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error from failing sink")
	}
	if b.finished == nil {
		t.Error("second sink not notified after first failed")
	}
}

func TestConsoleSinkEvery(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, 5)
	ctx := context.Background()

	for cycle := uint32(0); cycle <= 10; cycle++ {
		if err := sink.Cycle(ctx, CycleReport{Cycle: cycle, Counts: model.HealthCounts{9, 1, 0, 0}}); err != nil {
			t.Fatal(err)
		}
	}

	out := buf.String()
	if got := strings.Count(out, " Cycle: "); got != 3 {
		t.Errorf("printed %d tables, want 3 (cycles 0, 5, 10)", got)
	}
	if !strings.Contains(out, " Cycle: 5\n") {
		t.Errorf("missing cycle 5:\n%s", out)
	}
}

func TestConsoleSinkSummary(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, 0)
	err := sink.Finish(context.Background(), Summary{
		Run: model.RunInfo{ID: "abc", Seed: 3},
		Result: &sim.Result{
			Cycles:     12,
			Population: 10,
			Final:      model.HealthCounts{5, 0, 4, 1},
			Duration:   time.Second,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "--- Final State ---") {
		t.Errorf("summary not printed:\n%s", buf.String())
	}
}

func TestProgressSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewProgressSink(&buf, 10)
	ctx := context.Background()

	if err := sink.Start(ctx, model.RunInfo{}); err != nil {
		t.Fatal(err)
	}
	for cycle := uint32(0); cycle <= 4; cycle++ {
		if err := sink.Cycle(ctx, CycleReport{Cycle: cycle}); err != nil {
			t.Fatalf("Cycle(%d): %v", cycle, err)
		}
	}
	if err := sink.Finish(ctx, Summary{}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
}

// TestRedisSink runs against a live server named by EPIFLOW_TEST_REDIS.
func TestRedisSink(t *testing.T) {
	addr := os.Getenv("EPIFLOW_TEST_REDIS")
	if addr == "" {
		t.Skip("EPIFLOW_TEST_REDIS not set")
	}

	cfg := DefaultRedisConfig(addr)
	cfg.Prefix = fmt.Sprintf("epiflow-test-%d:", time.Now().UnixNano())
	sink, err := NewRedisSink(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	ctx := context.Background()
	run := model.RunInfo{ID: "r1", Seed: 7, Population: 10, StartedAt: time.Now()}
	if err := sink.Start(ctx, run); err != nil {
		t.Fatal(err)
	}
	for cycle := uint32(0); cycle < 3; cycle++ {
		if err := sink.Cycle(ctx, CycleReport{RunID: "r1", Cycle: cycle, Counts: model.HealthCounts{9, 1, 0, 0}}); err != nil {
			t.Fatal(err)
		}
	}
	res := &sim.Result{Cycles: 2, Final: model.HealthCounts{9, 0, 1, 0}}
	if err := sink.Finish(ctx, Summary{Run: run, Result: res}); err != nil {
		t.Fatal(err)
	}

	n, err := sink.client.XLen(ctx, sink.streamKey()).Result()
	if err != nil || n != 3 {
		t.Errorf("stream length = %d, %v; want 3", n, err)
	}
	status, err := sink.client.HGet(ctx, sink.runKey(), "status").Result()
	if err != nil || status != "complete" {
		t.Errorf("status = %q, %v", status, err)
	}
	sink.client.Del(ctx, sink.runKey(), sink.streamKey(), sink.indexKey())
}

func TestRunRowKeepsFullSeed(t *testing.T) {
	tests := []struct {
		seed uint64
		want string
	}{
		{0, "0"},
		{42, "42"},
		{1 << 63, "9223372036854775808"},
		{math.MaxUint64, "18446744073709551615"},
	}
	for _, tt := range tests {
		row := newRunRow(model.RunInfo{ID: "r", Seed: tt.seed})
		if row.Seed != tt.want {
			t.Errorf("seed %d stored as %q, want %q", tt.seed, row.Seed, tt.want)
		}
	}
}

// TestPostgresSink runs against a live database named by EPIFLOW_TEST_POSTGRES.
func TestPostgresSink(t *testing.T) {
	dsn := os.Getenv("EPIFLOW_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("EPIFLOW_TEST_POSTGRES not set")
	}

	sink, err := NewPostgresSink(dsn, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	ctx := context.Background()
	runID := fmt.Sprintf("epiflow-test-%d", time.Now().UnixNano())
	run := model.RunInfo{ID: runID, Seed: math.MaxUint64, Population: 10, StartedAt: time.Now()}
	if err := sink.Start(ctx, run); err != nil {
		t.Fatal(err)
	}
	for cycle := uint32(0); cycle < 3; cycle++ {
		if err := sink.Cycle(ctx, CycleReport{RunID: runID, Cycle: cycle, Counts: model.HealthCounts{9, 1, 0, 0}}); err != nil {
			t.Fatal(err)
		}
	}
	res := &sim.Result{Cycles: 2, PeakInfected: 1, Final: model.HealthCounts{9, 0, 1, 0}}
	if err := sink.Finish(ctx, Summary{Run: run, Result: res}); err != nil {
		t.Fatal(err)
	}

	var cycles int64
	if err := sink.db.Model(&CycleRow{}).Where("run_id = ?", runID).Count(&cycles).Error; err != nil || cycles != 3 {
		t.Errorf("cycle rows = %d, %v; want 3", cycles, err)
	}
	var row RunRow
	if err := sink.db.First(&row, "id = ?", runID).Error; err != nil {
		t.Fatal(err)
	}
	if row.Status != "complete" || row.Recovered != 1 || row.Cycles != 2 || row.Seed != "18446744073709551615" {
		t.Errorf("run row = %+v", row)
	}
	sink.db.Where("run_id = ?", runID).Delete(&CycleRow{})
	sink.db.Where("id = ?", runID).Delete(&RunRow{})
}
