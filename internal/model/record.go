package model

import "time"

// RunInfo identifies one simulation run.
type RunInfo struct {
	ID         string    `json:"id"`
	Seed       uint64    `json:"seed"`
	Population int       `json:"population"`
	Locations  int       `json:"locations"`
	MaxCycles  int       `json:"max_cycles"`
	StartedAt  time.Time `json:"started_at"`
}

// CycleRecord is the aggregate census taken after one cycle.
// Cycle 0 is the census taken before the first cycle runs.
type CycleRecord struct {
	Cycle  uint32       `json:"cycle"`
	Counts HealthCounts `json:"counts"`
}

// Records pairs an aggregate history with its cycle numbers.
func Records(history []HealthCounts) []CycleRecord {
	out := make([]CycleRecord, len(history))
	for i, c := range history {
		out[i] = CycleRecord{Cycle: uint32(i), Counts: c}
	}
	return out
}
