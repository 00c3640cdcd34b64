package sim

import (
	"math"
	"testing"

	"github.com/epiflow/epiflow/internal/model"
	"github.com/epiflow/epiflow/pkg/random"
)

func poolWith(clk *Clock, statuses ...model.HealthStatus) (*Location, []*Agent) {
	l := NewLocation(0, CommunityCenter, 1)
	agents := make([]*Agent, len(statuses))
	for i, s := range statuses {
		a := newAgent(i, clk.Current(), NewLocation(100+i, Household, 1))
		a.last().Health = s
		l.Visit(a)
		agents[i] = a
	}
	return l, agents
}

func TestUpdateExposureSkips(t *testing.T) {
	tests := []struct {
		name     string
		statuses []model.HealthStatus
	}{
		{"empty", nil},
		{"all healthy", []model.HealthStatus{model.Healthy, model.Healthy, model.Healthy}},
		{"all infected", []model.HealthStatus{model.Infected, model.Infected}},
		{"recovered only", []model.HealthStatus{model.Recovered, model.Healthy}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := NewClock()
			l, agents := poolWith(clk, tt.statuses...)
			rng := &random.Scripted{Coins: []bool{true, true, true, true}}

			if n := l.UpdateExposure(clk, rng, 1); n != 0 {
				t.Errorf("flagged %d agents, want 0", n)
			}
			if coins, _ := rng.Draws(); coins != 0 {
				t.Errorf("consumed %d draws, want 0", coins)
			}
			for _, a := range agents {
				if a.Pending() {
					t.Errorf("agent %d flagged", a.ID())
				}
			}
		})
	}
}

func TestUpdateExposureFlagsOnlyHealthy(t *testing.T) {
	clk := NewClock()
	l, agents := poolWith(clk, model.Infected, model.Healthy, model.Recovered, model.Healthy)
	rng := &random.Scripted{Coins: []bool{true, false}}

	if n := l.UpdateExposure(clk, rng, 0.3); n != 1 {
		t.Errorf("flagged %d, want 1", n)
	}
	if coins, _ := rng.Draws(); coins != 2 {
		t.Errorf("draws = %d, want one per healthy visitor", coins)
	}
	want := []bool{false, true, false, false}
	for i, a := range agents {
		if a.Pending() != want[i] {
			t.Errorf("agent %d pending = %v, want %v", i, a.Pending(), want[i])
		}
	}
}

// One infected and one healthy agent share a household: the healthy one
// is exposed with probability 0.5 x 0.3.
func TestUpdateExposureFrequency(t *testing.T) {
	clk := NewClock()
	l, agents := poolWith(clk, model.Infected, model.Healthy)
	rng := random.NewSource(2024)

	const n = 100000
	const want = 0.15
	hits := 0
	for i := 0; i < n; i++ {
		l.UpdateExposure(clk, rng, 0.3)
		if agents[1].pending.Swap(false) {
			hits++
		}
	}

	got := float64(hits) / n
	stderr := math.Sqrt(want * (1 - want) / n)
	if math.Abs(got-want) > 6*stderr {
		t.Errorf("exposure frequency = %.4f, want %.2f ± %.4f", got, want, 6*stderr)
	}
}

func TestCensusAndClear(t *testing.T) {
	clk := NewClock()
	l, _ := poolWith(clk, model.Infected, model.Healthy, model.Healthy)

	c := l.Census()
	if c[model.Healthy] != 2 || c[model.Infected] != 1 || c.Total() != 3 {
		t.Errorf("Census() = %v", c)
	}

	l.ClearVisitors()
	if l.VisitorCount() != 0 {
		t.Errorf("VisitorCount() = %d after clear", l.VisitorCount())
	}
	if l.Census().Total() != 0 {
		t.Error("census not empty after clear")
	}
}

func TestHouseholdVisitProbForced(t *testing.T) {
	if p := NewLocation(0, Household, 0.1).VisitProb(); p != 1 {
		t.Errorf("household VisitProb() = %v, want 1", p)
	}
	if p := NewLocation(0, WorkPlace, 0.1).VisitProb(); p != 0.1 {
		t.Errorf("workplace VisitProb() = %v, want 0.1", p)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		input string
		want  Kind
		tag   string
	}{
		{"HH", Household, "HH"},
		{"community_center", CommunityCenter, "CC"},
		{"wp", WorkPlace, "WP"},
		{"Public_Transportation", PublicTransportation, "PT"},
	}

	for _, tt := range tests {
		got, err := ParseKind(tt.input)
		if err != nil {
			t.Errorf("ParseKind(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want || got.Tag() != tt.tag {
			t.Errorf("ParseKind(%q) = %v/%s, want %v/%s", tt.input, got, got.Tag(), tt.want, tt.tag)
		}
	}

	if _, err := ParseKind("school"); err == nil {
		t.Error("ParseKind(school) should fail")
	}
	if name := NewLocation(12, Household, 1).Name(); name != "HH-12" {
		t.Errorf("Name() = %q, want HH-12", name)
	}
}
