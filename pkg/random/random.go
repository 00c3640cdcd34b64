// Package random provides the randomness source used by the simulation.
package random

import (
	"math/rand/v2"
	"time"
)

// Random is the pair of draws the simulation needs.
type Random interface {
	// Bernoulli returns true with probability p.
	Bernoulli(p float64) bool

	// UniformInt returns an integer in [min, max], both inclusive.
	UniformInt(min, max int) int
}

// Source is a seeded PCG generator. It is not safe for concurrent use;
// concurrent phases draw from forked sources instead.
type Source struct {
	seed uint64
	rnd  *rand.Rand
}

// NewSource creates a source. Seed 0 picks a seed from the wall clock.
func NewSource(seed uint64) *Source {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Source{
		seed: seed,
		rnd:  rand.New(rand.NewPCG(seed, streamSalt)),
	}
}

// streamSalt is the second PCG word for the root stream.
const streamSalt = 0x9e3779b97f4a7c15

// Seed returns the effective seed.
func (s *Source) Seed() uint64 {
	return s.seed
}

// Bernoulli returns true with probability p.
// p <= 0 never succeeds and p >= 1 always does.
func (s *Source) Bernoulli(p float64) bool {
	return s.rnd.Float64() < p
}

// UniformInt returns an integer in [min, max]. Reversed bounds are swapped.
func (s *Source) UniformInt(min, max int) int {
	if max < min {
		min, max = max, min
	}
	return min + s.rnd.IntN(max-min+1)
}

// Fork returns an independent source for the given stream id.
// The same seed and stream always produce the same sequence.
func (s *Source) Fork(stream uint64) *Source {
	return &Source{
		seed: s.seed,
		rnd:  rand.New(rand.NewPCG(s.seed, mix(stream))),
	}
}

// StreamID packs a (cycle, phase, chunk) triple into a stream id.
func StreamID(cycle uint32, phase, chunk int) uint64 {
	return uint64(cycle)<<32 | uint64(phase&0xff)<<24 | uint64(chunk&0xffffff)
}

// mix is the splitmix64 finalizer, spreading nearby stream ids apart.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Verify interface compliance.
var _ Random = (*Source)(nil)
