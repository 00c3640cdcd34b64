package random

// Scripted replays fixed draws. It is meant for tests that need to force
// a specific branch of the health state machine.
type Scripted struct {
	Coins []bool
	Ints  []int

	coin int
	n    int
}

// Bernoulli returns the next scripted coin, ignoring p.
// When the script runs out it answers p >= 1.
func (s *Scripted) Bernoulli(p float64) bool {
	if s.coin >= len(s.Coins) {
		return p >= 1
	}
	v := s.Coins[s.coin]
	s.coin++
	return v
}

// UniformInt returns the next scripted integer clamped to [min, max].
// When the script runs out it answers min.
func (s *Scripted) UniformInt(min, max int) int {
	if s.n >= len(s.Ints) {
		return min
	}
	v := s.Ints[s.n]
	s.n++
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Draws returns how many coins and integers have been consumed.
func (s *Scripted) Draws() (coins, ints int) {
	return s.coin, s.n
}

var _ Random = (*Scripted)(nil)
