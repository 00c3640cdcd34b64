package sim

import (
	"math"

	"github.com/epiflow/epiflow/pkg/errors"
)

// Default model parameters.
const (
	DefaultInfectionProb   = 0.3
	DefaultDiseaseDuration = 20
	DefaultDeathRate       = 0.05
	DefaultMaxCycles       = 365
)

// Params holds the disease model and the per-cycle probabilities derived
// from it. Build it with NewParams.
type Params struct {
	InfectionProb   float64
	DiseaseDuration int
	DeathRate       float64
	MaxCycles       int

	// RecoveryProb is the per-cycle recovery probability, 1/DiseaseDuration.
	RecoveryProb float64

	// DeathProb is the per-cycle death probability such that an infection
	// lasting DiseaseDuration cycles kills with overall rate DeathRate.
	DeathProb float64
}

// NewParams validates the model inputs and derives the per-cycle
// probabilities.
func NewParams(infectionProb float64, diseaseDuration int, deathRate float64, maxCycles int) (Params, error) {
	var errs errors.MultiError
	if !isProb(infectionProb) {
		errs.Add(errors.InvalidParameter("infection_prob", infectionProb, "in [0, 1]"))
	}
	if diseaseDuration < 1 {
		errs.Add(errors.InvalidParameter("disease_duration", diseaseDuration, ">= 1"))
	}
	if !isProb(deathRate) {
		errs.Add(errors.InvalidParameter("death_rate", deathRate, "in [0, 1]"))
	}
	if maxCycles < 0 {
		errs.Add(errors.InvalidParameter("max_cycles", maxCycles, ">= 0"))
	}
	if err := errs.Combined(); err != nil {
		return Params{}, err
	}

	d := float64(diseaseDuration)
	return Params{
		InfectionProb:   infectionProb,
		DiseaseDuration: diseaseDuration,
		DeathRate:       deathRate,
		MaxCycles:       maxCycles,
		RecoveryProb:    1 / d,
		DeathProb:       1 - math.Pow(1-deathRate, 1/d),
	}, nil
}

// DefaultParams returns the parameters of the reference scenario.
func DefaultParams() Params {
	p, err := NewParams(DefaultInfectionProb, DefaultDiseaseDuration, DefaultDeathRate, DefaultMaxCycles)
	if err != nil {
		panic(err)
	}
	return p
}

func isProb(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}
