// Package topology generates the synthetic population a simulation runs
// on: communities of households sharing community centers, a pool of
// workplaces and optional public transportation lines.
package topology

import (
	"math"

	"github.com/charmbracelet/log"

	"github.com/epiflow/epiflow/pkg/errors"
	"github.com/epiflow/epiflow/pkg/logging"
	"github.com/epiflow/epiflow/pkg/random"
	"github.com/epiflow/epiflow/pkg/sim"
)

// Config shapes the generated population.
type Config struct {
	// Scale multiplies every count range below.
	Scale int

	// Population, when positive, replaces the scaled community layout
	// with a single community of exactly this many agents.
	Population int

	AvgHouseholdSize    float64
	AvgHouseholdCCs     float64
	AvgHouseholdWorkers float64

	WorkplaceVisitProb float64
	CommunityVisitProb float64

	PublicTransportLines     int
	PublicTransportVisitProb float64

	InitialInfected int
}

// DefaultConfig returns the reference layout.
func DefaultConfig() Config {
	return Config{
		Scale:                    10,
		AvgHouseholdSize:         6,
		AvgHouseholdCCs:          2,
		AvgHouseholdWorkers:      1.7,
		WorkplaceVisitProb:       5.0 / 7.0,
		CommunityVisitProb:       1.0 / 10.0,
		PublicTransportVisitProb: 0.5,
		InitialInfected:          10,
	}
}

// Validate checks the layout parameters.
func (c Config) Validate() error {
	var errs errors.MultiError
	if c.Scale < 1 && c.Population <= 0 {
		errs.Add(errors.InvalidParameter("scale", c.Scale, ">= 1"))
	}
	if c.Population < 0 {
		errs.Add(errors.InvalidParameter("population", c.Population, ">= 0"))
	}
	if c.AvgHouseholdSize < 1 {
		errs.Add(errors.InvalidParameter("avg_household_size", c.AvgHouseholdSize, ">= 1"))
	}
	if c.AvgHouseholdCCs < 0 {
		errs.Add(errors.InvalidParameter("avg_household_ccs", c.AvgHouseholdCCs, ">= 0"))
	}
	if c.AvgHouseholdWorkers < 0 {
		errs.Add(errors.InvalidParameter("avg_household_workers", c.AvgHouseholdWorkers, ">= 0"))
	}
	for name, p := range map[string]float64{
		"workplace_visit_prob":        c.WorkplaceVisitProb,
		"community_visit_prob":        c.CommunityVisitProb,
		"public_transport_visit_prob": c.PublicTransportVisitProb,
	} {
		if math.IsNaN(p) || p < 0 || p > 1 {
			errs.Add(errors.InvalidParameter(name, p, "in [0, 1]"))
		}
	}
	if c.PublicTransportLines < 0 {
		errs.Add(errors.InvalidParameter("public_transport_lines", c.PublicTransportLines, ">= 0"))
	}
	if c.InitialInfected < 0 {
		errs.Add(errors.InvalidParameter("initial_infected", c.InitialInfected, ">= 0"))
	}
	return errs.Combined()
}

// Summary counts what Generate created.
type Summary struct {
	Communities      int `json:"communities"`
	Households       int `json:"households"`
	CommunityCenters int `json:"community_centers"`
	Workplaces       int `json:"workplaces"`
	TransportLines   int `json:"transport_lines"`
	Population       int `json:"population"`
	Infected         int `json:"infected"`
}

// Locations returns the total number of locations.
func (s Summary) Locations() int {
	return s.Households + s.CommunityCenters + s.Workplaces + s.TransportLines
}

// Generator populates a country.
type Generator struct {
	cfg    Config
	rng    random.Random
	logger *log.Logger
}

// NewGenerator creates a generator drawing from rng.
func NewGenerator(cfg Config, rng random.Random, logger *log.Logger) *Generator {
	return &Generator{cfg: cfg, rng: rng, logger: logging.OrDiscard(logger)}
}

// Generate adds locations and agents to an empty country and seeds the
// initial infections.
func (g *Generator) Generate(country *sim.Country) (Summary, error) {
	if err := g.cfg.Validate(); err != nil {
		return Summary{}, err
	}
	if country.Population() > 0 {
		return Summary{}, errors.New(errors.CodeInvalidTopology, "country is already populated")
	}

	f := g.cfg.Scale
	var s Summary

	workplaces := make([]*sim.Location, g.rng.UniformInt(2*f, 8*f))
	for i := range workplaces {
		workplaces[i] = country.AddLocation(sim.WorkPlace, g.cfg.WorkplaceVisitProb)
	}
	s.Workplaces = len(workplaces)

	lines := make([]*sim.Location, g.cfg.PublicTransportLines)
	for i := range lines {
		lines[i] = country.AddLocation(sim.PublicTransportation, g.cfg.PublicTransportVisitProb)
	}
	s.TransportLines = len(lines)

	if g.cfg.Population > 0 {
		if err := g.community(country, &s, g.cfg.Population, g.rng.UniformInt(3*f, 7*f), workplaces, lines); err != nil {
			return s, err
		}
	} else {
		communities := g.rng.UniformInt(3*f, 10*f)
		for i := 0; i < communities; i++ {
			size := g.rng.UniformInt(100*f, 300*f)
			ccs := g.rng.UniformInt(3*f, 7*f)
			if err := g.community(country, &s, size, ccs, workplaces, lines); err != nil {
				return s, err
			}
		}
	}

	infected, err := g.seed(country)
	if err != nil {
		return s, err
	}
	s.Infected = infected
	s.Population = country.Population()

	g.logger.Info("topology generated",
		"population", s.Population,
		"communities", s.Communities,
		"households", s.Households,
		"community_centers", s.CommunityCenters,
		"workplaces", s.Workplaces,
		"transport_lines", s.TransportLines,
		"infected", s.Infected,
	)
	return s, nil
}

// community creates numCCs community centers and fills households until
// the community holds size agents.
func (g *Generator) community(country *sim.Country, s *Summary, size, numCCs int, workplaces, lines []*sim.Location) error {
	s.Communities++
	if numCCs < 1 {
		numCCs = 1
	}
	ccs := make([]*sim.Location, numCCs)
	for i := range ccs {
		ccs[i] = country.AddLocation(sim.CommunityCenter, g.cfg.CommunityVisitProb)
	}
	s.CommunityCenters += numCCs

	for placed := 0; placed < size; {
		home := country.AddLocation(sim.Household, 1)
		s.Households++

		shared := make([]*sim.Location, g.rng.UniformInt(halfOf(g.cfg.AvgHouseholdCCs), oneAndHalfOf(g.cfg.AvgHouseholdCCs)))
		for i := range shared {
			shared[i] = ccs[g.rng.UniformInt(0, len(ccs)-1)]
		}

		n := g.rng.UniformInt(halfOf(g.cfg.AvgHouseholdSize), oneAndHalfOf(g.cfg.AvgHouseholdSize))
		n = max(1, min(n, size-placed))

		residents := make([][]*sim.Location, n)
		for i := range residents {
			residents[i] = append([]*sim.Location(nil), shared...)
		}
		if len(workplaces) > 0 {
			workers := g.rng.UniformInt(halfOf(g.cfg.AvgHouseholdWorkers), oneAndHalfOf(g.cfg.AvgHouseholdWorkers))
			for i := 0; i < workers; i++ {
				r := g.rng.UniformInt(0, n-1)
				residents[r] = append(residents[r], workplaces[g.rng.UniformInt(0, len(workplaces)-1)])
			}
		}
		if len(lines) > 0 {
			for i := range residents {
				residents[i] = append(residents[i], lines[g.rng.UniformInt(0, len(lines)-1)])
			}
		}

		for _, locs := range residents {
			if _, err := country.AddAgent(home, locs...); err != nil {
				return err
			}
		}
		placed += n
	}
	return nil
}

// seed infects InitialInfected distinct agents, capped at the population,
// using a partial Fisher-Yates shuffle of the agent list.
func (g *Generator) seed(country *sim.Country) (int, error) {
	agents := append([]*sim.Agent(nil), country.Agents()...)
	count := min(g.cfg.InitialInfected, len(agents))
	for i := 0; i < count; i++ {
		j := g.rng.UniformInt(i, len(agents)-1)
		agents[i], agents[j] = agents[j], agents[i]
		if err := country.Infect(agents[i]); err != nil {
			return i, err
		}
	}
	return count, nil
}

func halfOf(avg float64) int {
	return int(avg / 2)
}

func oneAndHalfOf(avg float64) int {
	return int(avg * 1.5)
}

// Build creates a country that shares src with the generator, so a seed
// fixes both the layout and the epidemic.
func Build(params sim.Params, cfg Config, src *random.Source, logger *log.Logger, opts ...sim.Option) (*sim.Country, Summary, error) {
	base := []sim.Option{sim.WithRandom(src), sim.WithLogger(logger)}
	country := sim.NewCountry(params, append(base, opts...)...)
	s, err := NewGenerator(cfg, src, logger).Generate(country)
	if err != nil {
		return nil, s, err
	}
	return country, s, nil
}
