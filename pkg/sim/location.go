package sim

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/epiflow/epiflow/internal/model"
	"github.com/epiflow/epiflow/pkg/errors"
	"github.com/epiflow/epiflow/pkg/random"
)

// Kind tags a location with its mixing role.
type Kind uint8

const (
	Household Kind = iota
	CommunityCenter
	WorkPlace
	PublicTransportation
)

// AllKinds lists every location kind.
var AllKinds = []Kind{Household, CommunityCenter, WorkPlace, PublicTransportation}

var kindTags = [...]string{"HH", "CC", "WP", "PT"}
var kindNames = [...]string{"household", "community_center", "workplace", "public_transportation"}

// Tag returns the short label used in reports.
func (k Kind) Tag() string {
	if int(k) >= len(kindTags) {
		return "??"
	}
	return kindTags[k]
}

// String returns the long name of the kind.
func (k Kind) String() string {
	if int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// ParseKind accepts either the tag or the long name.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for i := range kindTags {
		if strings.EqualFold(s, kindTags[i]) || strings.EqualFold(s, kindNames[i]) {
			return Kind(i), nil
		}
	}
	return 0, errors.New(errors.CodeInvalidParameter, "unknown location kind").
		WithContext("kind", s)
}

// Location is a mixing pool. Agents that visit it in a cycle may infect
// each other; the visitor list lives only for that cycle.
type Location struct {
	id        int
	kind      Kind
	visitProb float64

	mu       sync.Mutex
	visitors []*Agent
}

// NewLocation creates a location. Households are always visited, so their
// visit probability is forced to 1.
func NewLocation(id int, kind Kind, visitProb float64) *Location {
	if kind == Household {
		visitProb = 1
	}
	return &Location{id: id, kind: kind, visitProb: visitProb}
}

func (l *Location) ID() int            { return l.id }
func (l *Location) Kind() Kind         { return l.kind }
func (l *Location) VisitProb() float64 { return l.visitProb }

// Name returns a label such as "HH-12".
func (l *Location) Name() string {
	return fmt.Sprintf("%s-%d", l.kind.Tag(), l.id)
}

func (l *Location) String() string {
	return fmt.Sprintf("%s(p=%.3f, visitors=%d)", l.Name(), l.visitProb, l.VisitorCount())
}

// Visit records a visitor for the current cycle. Safe for concurrent use.
func (l *Location) Visit(a *Agent) {
	l.mu.Lock()
	l.visitors = append(l.visitors, a)
	l.mu.Unlock()
}

// VisitorCount returns the number of visitors recorded this cycle.
func (l *Location) VisitorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// UpdateExposure flags healthy visitors for infection with probability
// (infected fraction x infectionProb). Pools with no visitors, no infected
// visitors or only infected visitors are left alone. It returns the number
// of agents flagged.
func (l *Location) UpdateExposure(clk *Clock, rng random.Random, infectionProb float64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := len(l.visitors)
	if total == 0 {
		return 0
	}
	infected := 0
	for _, a := range l.visitors {
		if a.Health() == model.Infected {
			infected++
		}
	}
	if infected == 0 || infected == total {
		return 0
	}

	p := float64(infected) / float64(total) * infectionProb
	flagged := 0
	for _, a := range l.visitors {
		if a.Health() != model.Healthy {
			continue
		}
		if rng.Bernoulli(p) {
			a.flagInfection(clk)
			flagged++
		}
	}
	return flagged
}

// ClearVisitors empties the visitor list, keeping its capacity.
func (l *Location) ClearVisitors() {
	l.mu.Lock()
	clear(l.visitors)
	l.visitors = l.visitors[:0]
	l.mu.Unlock()
}

// Census counts the current visitors by health.
func (l *Location) Census() model.HealthCounts {
	l.mu.Lock()
	defer l.mu.Unlock()

	var c model.HealthCounts
	for _, a := range l.visitors {
		c.Add(a.Health())
	}
	return c
}

// sortVisitors orders visitors by agent id, so draws in UpdateExposure do
// not depend on the order concurrent visits arrived in.
func (l *Location) sortVisitors() {
	l.mu.Lock()
	slices.SortFunc(l.visitors, func(a, b *Agent) int { return a.id - b.id })
	l.mu.Unlock()
}
