package main

import (
	"github.com/spf13/cobra"

	"github.com/epiflow/epiflow/pkg/config"
)

// Simulation flags shared by run, trials and params.
var (
	flagSeed            uint64
	flagMaxCycles       int
	flagInfectionProb   float64
	flagDiseaseDuration int
	flagDeathRate       float64
	flagWorkers         int
	flagScale           int
	flagPopulation      int
	flagInitialInfected int
	flagTransitLines    int
)

// Output flags shared by run and trials.
var (
	flagOutput      string
	flagFormat      string
	flagCompression string
	flagUpload      string
)

func addModelFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64Var(&flagInfectionProb, "infection-prob", 0, "Infection probability per exposure")
	f.IntVar(&flagDiseaseDuration, "disease-duration", 0, "Mean disease duration in cycles")
	f.Float64Var(&flagDeathRate, "death-rate", 0, "Probability of dying over the whole disease")
	f.IntVar(&flagMaxCycles, "max-cycles", 0, "Cycle cap")
}

func addSimFlags(cmd *cobra.Command) {
	addModelFlags(cmd)
	f := cmd.Flags()
	f.Uint64Var(&flagSeed, "seed", 0, "Random seed (0 = random)")
	f.IntVar(&flagWorkers, "workers", 0, "Goroutines per phase (1 = sequential)")
	f.IntVar(&flagScale, "scale", 0, "Topology scale factor")
	f.IntVar(&flagPopulation, "population", 0, "Single community of this many people")
	f.IntVar(&flagInitialInfected, "initial-infected", 0, "People infected before the first cycle")
	f.IntVar(&flagTransitLines, "transit-lines", 0, "Public transportation lines")
}

func addOutputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&flagOutput, "output", "o", "", "Export path (.json, .csv, .parquet, .xlsx, .duckdb)")
	f.StringVar(&flagFormat, "format", "", "Export format (default: from extension)")
	f.StringVar(&flagCompression, "compression", "", "Parquet compression (none, snappy, gzip, zstd, lz4)")
	f.StringVar(&flagUpload, "upload", "", "Upload the export to s3://bucket/prefix")
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	set := func(name string, apply func()) {
		if fl := f.Lookup(name); fl != nil && fl.Changed {
			apply()
		}
	}

	set("infection-prob", func() { cfg.Simulation.InfectionProb = flagInfectionProb })
	set("disease-duration", func() { cfg.Simulation.DiseaseDuration = flagDiseaseDuration })
	set("death-rate", func() { cfg.Simulation.DeathRate = flagDeathRate })
	set("max-cycles", func() { cfg.Simulation.MaxCycles = flagMaxCycles })
	set("seed", func() { cfg.Simulation.Seed = flagSeed })
	set("workers", func() { cfg.Simulation.Workers = flagWorkers })
	set("scale", func() { cfg.Topology.Scale = flagScale })
	set("population", func() { cfg.Topology.Population = flagPopulation })
	set("initial-infected", func() { cfg.Topology.InitialInfected = flagInitialInfected })
	set("transit-lines", func() { cfg.Topology.PublicTransportLines = flagTransitLines })

	set("output", func() { cfg.Output.Path = flagOutput })
	set("format", func() { cfg.Output.Format = flagFormat })
	set("compression", func() { cfg.Output.Compression = flagCompression })
	set("upload", func() { cfg.Output.Upload = flagUpload })
}
