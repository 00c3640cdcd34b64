package sim

import (
	"sync/atomic"

	"github.com/epiflow/epiflow/internal/model"
	"github.com/epiflow/epiflow/pkg/errors"
	"github.com/epiflow/epiflow/pkg/random"
)

// Snapshot is an agent's state during one cycle. Only the latest snapshot
// is ever mutated; earlier ones are sealed.
type Snapshot struct {
	Cycle    uint32
	Location *Location // location occupied at the start of the cycle
	Health   model.HealthStatus
}

// Agent is one member of the population.
//
// Every mutating method asserts that the latest snapshot belongs to the
// current cycle and panics with an InvariantViolation error otherwise.
type Agent struct {
	id        int
	history   []Snapshot
	pending   atomic.Bool
	locations []*Location
}

// newAgent binds an agent to its home and the distinct non-nil locations
// in others. The home is always first in the location set.
func newAgent(id int, cycle uint32, home *Location, others ...*Location) *Agent {
	locs := make([]*Location, 0, 1+len(others))
	locs = append(locs, home)
	for _, l := range others {
		if l == nil || containsLocation(locs, l) {
			continue
		}
		locs = append(locs, l)
	}
	return &Agent{
		id:        id,
		history:   []Snapshot{{Cycle: cycle, Location: home, Health: model.Healthy}},
		locations: locs,
	}
}

func containsLocation(locs []*Location, l *Location) bool {
	for _, x := range locs {
		if x == l {
			return true
		}
	}
	return false
}

// ID returns the agent's index in its country.
func (a *Agent) ID() int { return a.id }

// Home returns the agent's household.
func (a *Agent) Home() *Location { return a.locations[0] }

// Locations returns the agent's location set, home first.
func (a *Agent) Locations() []*Location {
	out := make([]*Location, len(a.locations))
	copy(out, a.locations)
	return out
}

// Health returns the latest health status.
func (a *Agent) Health() model.HealthStatus {
	return a.history[len(a.history)-1].Health
}

// Pending reports whether the agent was flagged for infection this cycle.
func (a *Agent) Pending() bool {
	return a.pending.Load()
}

// History returns a copy of the agent's snapshots, oldest first.
func (a *Agent) History() []Snapshot {
	out := make([]Snapshot, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Agent) last() *Snapshot {
	return &a.history[len(a.history)-1]
}

func (a *Agent) assertCurrent(clk *Clock, op string) {
	if got, want := a.last().Cycle, clk.Current(); got != want {
		panic(errors.InvariantViolation("agent %d: %s at cycle %d but latest snapshot is cycle %d", a.id, op, want, got))
	}
}

// VisitLocations visits each location with its visit probability.
// Dead agents visit nothing, whatever the cycle.
func (a *Agent) VisitLocations(clk *Clock, rng random.Random) {
	if a.Health() == model.Dead {
		return
	}
	a.assertCurrent(clk, "visit")
	for _, l := range a.locations {
		if rng.Bernoulli(l.visitProb) {
			l.Visit(a)
		}
	}
}

// flagInfection marks the agent to become infected at the next
// ApplyPendingInfection. Called by locations during the exposure phase.
func (a *Agent) flagInfection(clk *Clock) {
	a.assertCurrent(clk, "flag infection")
	a.pending.Store(true)
}

// ApplyPendingInfection turns a flagged healthy agent infected and clears
// the flag. It reports whether the agent became infected.
func (a *Agent) ApplyPendingInfection(clk *Clock) bool {
	a.assertCurrent(clk, "apply infection")
	if !a.pending.Swap(false) {
		return false
	}
	s := a.last()
	if s.Health != model.Healthy {
		return false
	}
	s.Health = model.Infected
	return true
}

// ResolveHealth gives an infected agent its chance to recover and then,
// failing that, its chance to die. Other states are left unchanged.
func (a *Agent) ResolveHealth(clk *Clock, rng random.Random, p Params) model.HealthStatus {
	a.assertCurrent(clk, "resolve health")
	s := a.last()
	if s.Health != model.Infected {
		return s.Health
	}
	if rng.Bernoulli(p.RecoveryProb) {
		s.Health = model.Recovered
	} else if rng.Bernoulli(p.DeathProb) {
		s.Health = model.Dead
	}
	return s.Health
}

// AdvanceHistory seals the latest snapshot and opens one for the clock's
// current cycle, carrying the health and location forward.
func (a *Agent) AdvanceHistory(clk *Clock) {
	s := a.last()
	next := clk.Current()
	if next <= s.Cycle {
		panic(errors.InvariantViolation("agent %d: history advance to cycle %d after cycle %d", a.id, next, s.Cycle))
	}
	a.history = append(a.history, Snapshot{Cycle: next, Location: s.Location, Health: s.Health})
}

// infect sets the initial health before the first cycle.
func (a *Agent) infect() {
	a.last().Health = model.Infected
}
