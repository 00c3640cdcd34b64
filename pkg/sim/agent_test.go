package sim

import (
	"testing"

	"github.com/epiflow/epiflow/internal/model"
	"github.com/epiflow/epiflow/pkg/errors"
	"github.com/epiflow/epiflow/pkg/random"
)

func expectInvariantPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		err, ok := r.(error)
		if !ok || !errors.IsCode(err, errors.CodeInvariantViolation) {
			t.Fatalf("panic value = %v, want InvariantViolation", r)
		}
	}()
	fn()
}

func newTestAgent(health model.HealthStatus) (*Agent, *Clock) {
	clk := NewClock()
	home := NewLocation(0, Household, 0)
	a := newAgent(0, clk.Current(), home)
	a.last().Health = health
	return a, clk
}

func TestResolveHealth(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		name  string
		start model.HealthStatus
		coins []bool
		want  model.HealthStatus
		draws int
	}{
		{"infected recovers", model.Infected, []bool{true}, model.Recovered, 1},
		{"infected dies", model.Infected, []bool{false, true}, model.Dead, 2},
		{"infected stays", model.Infected, []bool{false, false}, model.Infected, 2},
		{"healthy untouched", model.Healthy, []bool{true, true}, model.Healthy, 0},
		{"recovered absorbing", model.Recovered, []bool{true, true}, model.Recovered, 0},
		{"dead absorbing", model.Dead, []bool{true, true}, model.Dead, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, clk := newTestAgent(tt.start)
			rng := &random.Scripted{Coins: tt.coins}
			if got := a.ResolveHealth(clk, rng, p); got != tt.want {
				t.Errorf("ResolveHealth() = %v, want %v", got, tt.want)
			}
			if coins, _ := rng.Draws(); coins != tt.draws {
				t.Errorf("draws = %d, want %d", coins, tt.draws)
			}
		})
	}
}

func TestAbsorbingStatesOverManyCycles(t *testing.T) {
	p, _ := NewParams(1, 1, 1, 100)
	for _, start := range []model.HealthStatus{model.Recovered, model.Dead} {
		a, clk := newTestAgent(start)
		rng := random.NewSource(3)
		for i := 0; i < 50; i++ {
			a.pending.Store(true)
			a.ApplyPendingInfection(clk)
			a.ResolveHealth(clk, rng, p)
			clk.advance()
			a.AdvanceHistory(clk)
			if a.Health() != start {
				t.Fatalf("%v changed to %v", start, a.Health())
			}
		}
	}
}

func TestApplyPendingInfection(t *testing.T) {
	a, clk := newTestAgent(model.Healthy)
	if a.ApplyPendingInfection(clk) {
		t.Fatal("unflagged agent became infected")
	}

	a.flagInfection(clk)
	if !a.Pending() {
		t.Fatal("flag not set")
	}
	if !a.ApplyPendingInfection(clk) {
		t.Fatal("flagged agent did not become infected")
	}
	if a.Health() != model.Infected {
		t.Errorf("Health() = %v, want INFECTED", a.Health())
	}
	if a.Pending() {
		t.Error("flag not cleared")
	}
}

func TestVisitLocations(t *testing.T) {
	clk := NewClock()
	home := NewLocation(0, Household, 0.2)
	never := NewLocation(1, WorkPlace, 0)
	always := NewLocation(2, CommunityCenter, 1)
	a := newAgent(0, 0, home, never, always, home, nil)

	if got := len(a.Locations()); got != 3 {
		t.Fatalf("len(Locations()) = %d, want 3 (duplicates and nil dropped)", got)
	}
	if a.Home() != home {
		t.Error("home is not first")
	}

	rng := random.NewSource(1)
	a.VisitLocations(clk, rng)

	if home.VisitorCount() != 1 {
		t.Error("household not visited")
	}
	if never.VisitorCount() != 0 {
		t.Error("zero-probability location visited")
	}
	if always.VisitorCount() != 1 {
		t.Error("certain location not visited")
	}
	if got := a.History()[0].Location; got != home {
		t.Errorf("snapshot location = %v, want home unchanged by visits", got)
	}
}

func TestDeadAgentDoesNotVisit(t *testing.T) {
	a, clk := newTestAgent(model.Dead)
	a.VisitLocations(clk, random.NewSource(1))
	if a.Home().VisitorCount() != 0 {
		t.Error("dead agent visited home")
	}
}

func TestDeadAgentDoesNotVisitAfterDeathCycle(t *testing.T) {
	a, clk := newTestAgent(model.Infected)
	rng := &random.Scripted{Coins: []bool{false, true}}
	if got := a.ResolveHealth(clk, rng, DefaultParams()); got != model.Dead {
		t.Fatalf("ResolveHealth() = %v, want DEAD", got)
	}

	// The history of a dead agent stays at its death cycle.
	for i := 0; i < 3; i++ {
		clk.advance()
		a.VisitLocations(clk, random.NewSource(1))
	}
	if a.Home().VisitorCount() != 0 {
		t.Error("dead agent visited home")
	}
	if h := a.History(); len(h) != 1 || h[0].Cycle != 0 {
		t.Errorf("history = %+v, want frozen at cycle 0", h)
	}
}

func TestAdvanceHistory(t *testing.T) {
	a, clk := newTestAgent(model.Infected)
	clk.advance()
	a.AdvanceHistory(clk)

	h := a.History()
	if len(h) != 2 {
		t.Fatalf("len(History()) = %d, want 2", len(h))
	}
	if h[0].Location != a.Home() {
		t.Errorf("initial location = %v, want home", h[0].Location)
	}
	if h[1].Cycle != 1 || h[1].Health != model.Infected || h[1].Location != h[0].Location {
		t.Errorf("new snapshot = %+v, want health and location carried forward", h[1])
	}
}

func TestInvariantViolations(t *testing.T) {
	p := DefaultParams()

	t.Run("advance without clock tick", func(t *testing.T) {
		a, clk := newTestAgent(model.Healthy)
		expectInvariantPanic(t, func() { a.AdvanceHistory(clk) })
	})

	t.Run("mutate stale snapshot", func(t *testing.T) {
		ops := map[string]func(a *Agent, clk *Clock){
			"visit":   func(a *Agent, clk *Clock) { a.VisitLocations(clk, random.NewSource(1)) },
			"apply":   func(a *Agent, clk *Clock) { a.ApplyPendingInfection(clk) },
			"resolve": func(a *Agent, clk *Clock) { a.ResolveHealth(clk, random.NewSource(1), p) },
			"flag":    func(a *Agent, clk *Clock) { a.flagInfection(clk) },
		}
		for name, op := range ops {
			t.Run(name, func(t *testing.T) {
				a, clk := newTestAgent(model.Infected)
				clk.advance()
				expectInvariantPanic(t, func() { op(a, clk) })
			})
		}
	})
}
