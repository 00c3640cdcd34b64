package interfaces

import "time"

// MetricsExporter exports metrics to a monitoring backend.
type MetricsExporter interface {
	// Counter increments a counter metric.
	Counter(name string, value int64, tags map[string]string)

	// Gauge sets a gauge metric to the specified value.
	Gauge(name string, value float64, tags map[string]string)

	// Histogram records a value in a histogram.
	Histogram(name string, value float64, tags map[string]string)

	// Timer records a duration.
	Timer(name string, duration time.Duration, tags map[string]string)

	// Flush sends any buffered metrics to the backend.
	Flush() error

	// Close releases resources.
	Close() error
}

// Common metric names used throughout the system.
const (
	// Simulation metrics
	MetricSimCycles          = "epiflow.sim.cycles"
	MetricSimPhaseDuration   = "epiflow.sim.phase.duration"
	MetricSimCycleDuration   = "epiflow.sim.cycle.duration"
	MetricSimPopulation      = "epiflow.sim.population"
	MetricSimAgentsByHealth  = "epiflow.sim.agents"
	MetricSimNewInfections   = "epiflow.sim.infections.new"
	MetricSimNewDeaths       = "epiflow.sim.deaths.new"
	MetricSimCyclesPerSecond = "epiflow.sim.throughput.cycles"
	MetricSimAgentThroughput = "epiflow.sim.throughput.agent_cycles"

	// Trial metrics
	MetricTrialsCompleted = "epiflow.trials.completed"
	MetricTrialDuration   = "epiflow.trial.duration"

	// Output metrics
	MetricExportDuration = "epiflow.export.duration"
	MetricExportRows     = "epiflow.export.rows"
	MetricUploadBytes    = "epiflow.upload.bytes"
)

// Common tag names.
const (
	TagPhase  = "phase"
	TagHealth = "health"
	TagFormat = "format"
	TagSink   = "sink"
	TagRunID  = "run_id"
)
