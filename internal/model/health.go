// Package model defines core data structures for EpiFlow.
package model

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/epiflow/epiflow/pkg/errors"
)

// HealthStatus is the health state of a single agent.
// RECOVERED and DEAD are absorbing.
type HealthStatus uint8

const (
	Healthy HealthStatus = iota
	Infected
	Recovered
	Dead
)

// NumHealthStatuses is the size of the closed enumeration.
const NumHealthStatuses = 4

// AllHealthStatuses lists every status in display order.
var AllHealthStatuses = [NumHealthStatuses]HealthStatus{Healthy, Infected, Recovered, Dead}

var healthNames = [NumHealthStatuses]string{"HEALTHY", "INFECTED", "RECOVERED", "DEAD"}

// Valid reports whether s is a member of the enumeration.
func (s HealthStatus) Valid() bool {
	return s < NumHealthStatuses
}

// String returns the display name. It panics on values outside the
// enumeration instead of printing a placeholder.
func (s HealthStatus) String() string {
	if !s.Valid() {
		panic(errors.UnknownHealthStatus(uint8(s)))
	}
	return healthNames[s]
}

// Absorbing reports whether no transition leaves s.
func (s HealthStatus) Absorbing() bool {
	return s == Recovered || s == Dead
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to HealthStatus) bool {
	switch from {
	case Healthy:
		return to == Healthy || to == Infected
	case Infected:
		return to == Infected || to == Recovered || to == Dead
	case Recovered, Dead:
		return to == from
	default:
		return false
	}
}

// ParseHealthStatus parses a status name, case-insensitively.
func ParseHealthStatus(name string) (HealthStatus, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range healthNames {
		if n == upper {
			return HealthStatus(i), nil
		}
	}
	return 0, errors.UnknownHealthStatus(name)
}

// HealthCounts is a census of agents per health status.
type HealthCounts [NumHealthStatuses]int

// Get returns the count for one status.
func (c HealthCounts) Get(s HealthStatus) int {
	if !s.Valid() {
		panic(errors.UnknownHealthStatus(uint8(s)))
	}
	return c[s]
}

// Add increments the count for one status.
func (c *HealthCounts) Add(s HealthStatus) {
	if !s.Valid() {
		panic(errors.UnknownHealthStatus(uint8(s)))
	}
	c[s]++
}

// Total returns the number of agents counted.
func (c HealthCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Living returns every non-dead agent.
func (c HealthCounts) Living() int {
	return c.Total() - c[Dead]
}

// String renders the census in display order, e.g. "HEALTHY=9 INFECTED=1 ...".
func (c HealthCounts) String() string {
	var sb strings.Builder
	for i, s := range AllHealthStatuses {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s.String())
		sb.WriteByte('=')
		sb.WriteString(strconv.Itoa(c[s]))
	}
	return sb.String()
}

// MarshalJSON encodes the census as an object keyed by status name
// in display order.
func (c HealthCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range AllHealthStatuses {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(s.String()))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(c[s]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
