// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < scenario file < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/epiflow/epiflow/pkg/errors"
	"github.com/epiflow/epiflow/pkg/logging"
	"github.com/epiflow/epiflow/pkg/sim"
	"github.com/epiflow/epiflow/pkg/topology"
)

// Config holds all EpiFlow configuration.
type Config struct {
	Version int `yaml:"version"`

	Simulation SimulationConfig `yaml:"simulation"`
	Topology   TopologyConfig   `yaml:"topology"`
	Output     OutputConfig     `yaml:"output"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	S3         S3Config         `yaml:"s3"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`
}

// SimulationConfig controls the disease model and the cycle loop.
type SimulationConfig struct {
	InfectionProb   float64 `yaml:"infection_prob"`
	DiseaseDuration int     `yaml:"disease_duration"`
	DeathRate       float64 `yaml:"death_rate"`
	MaxCycles       int     `yaml:"max_cycles"`
	Seed            uint64  `yaml:"seed"`    // 0 = random
	Workers         int     `yaml:"workers"` // <= 1 = sequential
}

// TopologyConfig shapes the generated population.
type TopologyConfig struct {
	Scale                    int     `yaml:"scale"`
	Population               int     `yaml:"population"` // > 0: single community of this size
	AvgHouseholdSize         float64 `yaml:"avg_household_size"`
	AvgHouseholdCCs          float64 `yaml:"avg_household_ccs"`
	AvgHouseholdWorkers      float64 `yaml:"avg_household_workers"`
	WorkplaceVisitProb       float64 `yaml:"workplace_visit_prob"`
	CommunityVisitProb       float64 `yaml:"community_visit_prob"`
	PublicTransportLines     int     `yaml:"public_transport_lines"`
	PublicTransportVisitProb float64 `yaml:"public_transport_visit_prob"`
	InitialInfected          int     `yaml:"initial_infected"`
}

// OutputConfig controls reporting and export.
type OutputConfig struct {
	Format      string `yaml:"format"` // json | csv | parquet | xlsx | duckdb ("" = by extension)
	Path        string `yaml:"path"`
	Compression string `yaml:"compression"` // snappy | zstd | gzip | lz4 | none
	Upload      string `yaml:"upload"`      // s3://bucket/prefix
	LogEvery    int    `yaml:"log_every"`   // console table every N cycles, 0 = off
	Progress    bool   `yaml:"progress"`
}

// RedisConfig for the per-cycle stream sink.
type RedisConfig struct {
	Address  string        `yaml:"address"` // "" = disabled
	Password string        `yaml:"password"`
	Database int           `yaml:"database"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// PostgresConfig for the run history sink.
type PostgresConfig struct {
	DSN       string `yaml:"dsn"` // "" = disabled
	BatchSize int    `yaml:"batch_size"`
}

// S3Config for uploading exports.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Endpoint      string  `yaml:"endpoint"`
	SamplingRatio float64 `yaml:"sampling_ratio"`
}

// LogConfig for the logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	topo := topology.DefaultConfig()
	return &Config{
		Version: 1,
		Simulation: SimulationConfig{
			InfectionProb:   sim.DefaultInfectionProb,
			DiseaseDuration: sim.DefaultDiseaseDuration,
			DeathRate:       sim.DefaultDeathRate,
			MaxCycles:       sim.DefaultMaxCycles,
			Workers:         1,
		},
		Topology: TopologyConfig{
			Scale:                    topo.Scale,
			Population:               topo.Population,
			AvgHouseholdSize:         topo.AvgHouseholdSize,
			AvgHouseholdCCs:          topo.AvgHouseholdCCs,
			AvgHouseholdWorkers:      topo.AvgHouseholdWorkers,
			WorkplaceVisitProb:       topo.WorkplaceVisitProb,
			CommunityVisitProb:       topo.CommunityVisitProb,
			PublicTransportLines:     topo.PublicTransportLines,
			PublicTransportVisitProb: topo.PublicTransportVisitProb,
			InitialInfected:          topo.InitialInfected,
		},
		Output: OutputConfig{
			Compression: "snappy",
			Progress:    true,
		},
		Redis: RedisConfig{
			Prefix: "epiflow:",
			TTL:    24 * time.Hour,
		},
		Postgres: PostgresConfig{
			BatchSize: 100,
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			Endpoint:      "localhost:4317",
			SamplingRatio: 1.0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Params builds validated simulation parameters.
func (c *Config) Params() (sim.Params, error) {
	s := c.Simulation
	return sim.NewParams(s.InfectionProb, s.DiseaseDuration, s.DeathRate, s.MaxCycles)
}

// TopologyConfig converts the topology section for the generator.
func (c *Config) TopologyConfig() topology.Config {
	t := c.Topology
	return topology.Config{
		Scale:                    t.Scale,
		Population:               t.Population,
		AvgHouseholdSize:         t.AvgHouseholdSize,
		AvgHouseholdCCs:          t.AvgHouseholdCCs,
		AvgHouseholdWorkers:      t.AvgHouseholdWorkers,
		WorkplaceVisitProb:       t.WorkplaceVisitProb,
		CommunityVisitProb:       t.CommunityVisitProb,
		PublicTransportLines:     t.PublicTransportLines,
		PublicTransportVisitProb: t.PublicTransportVisitProb,
		InitialInfected:          t.InitialInfected,
	}
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs errors.MultiError
	if _, err := c.Params(); err != nil {
		errs.Add(err)
	}
	if err := c.TopologyConfig().Validate(); err != nil {
		errs.Add(err)
	}
	if c.Simulation.Workers < 0 {
		errs.Add(errors.InvalidParameter("simulation.workers", c.Simulation.Workers, ">= 0"))
	}
	if c.Output.LogEvery < 0 {
		errs.Add(errors.InvalidParameter("output.log_every", c.Output.LogEvery, ">= 0"))
	}
	if c.Output.Upload != "" && !strings.HasPrefix(c.Output.Upload, "s3://") {
		errs.Add(errors.InvalidParameter("output.upload", c.Output.Upload, "s3://bucket/prefix"))
	}
	if c.Output.Upload != "" && c.Output.Path == "" {
		errs.Add(errors.InvalidParameter("output.path", "", "set when output.upload is set"))
	}
	if c.Postgres.BatchSize < 0 {
		errs.Add(errors.InvalidParameter("postgres.batch_size", c.Postgres.BatchSize, ">= 0"))
	}
	if r := c.Telemetry.SamplingRatio; r < 0 || r > 1 {
		errs.Add(errors.InvalidParameter("telemetry.sampling_ratio", r, "in [0, 1]"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs.Add(err)
	}
	if err := errs.Combined(); err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "invalid configuration")
	}
	return nil
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
	lookup func(string) (string, bool)
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
		lookup: os.LookupEnv,
	}
}

// Load loads configuration from all sources in priority order. A non-empty
// scenario path is loaded last among files and must exist.
func (m *Manager) Load(scenario string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with defaults
	m.config = Default()
	m.paths = nil

	// Load from paths in order (later overrides earlier)
	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but fail on broken ones
			if !os.IsNotExist(err) {
				return errors.Wrap(err, errors.CodeInvalidConfig, "load config").
					WithContext("path", path)
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	if scenario != "" {
		if err := m.loadFile(scenario); err != nil {
			return errors.Wrap(err, errors.CodeInvalidConfig, "load scenario").
				WithContext("path", scenario)
		}
		m.paths = append(m.paths, scenario)
	}

	// Override with environment variables
	return m.loadEnv()
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/epiflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".epiflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".epiflow.yaml"))
	}

	return paths
}

// loadFile decodes a config file over the current configuration. Fields
// absent from the file keep their current value.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, m.config)
}

// envBinding maps one EPIFLOW_* variable onto a config field.
type envBinding struct {
	name string
	set  func(c *Config, v string) error
}

var envBindings = []envBinding{
	{"EPIFLOW_INFECTION_PROB", func(c *Config, v string) error { return parseFloat(v, &c.Simulation.InfectionProb) }},
	{"EPIFLOW_DISEASE_DURATION", func(c *Config, v string) error { return parseInt(v, &c.Simulation.DiseaseDuration) }},
	{"EPIFLOW_DEATH_RATE", func(c *Config, v string) error { return parseFloat(v, &c.Simulation.DeathRate) }},
	{"EPIFLOW_MAX_CYCLES", func(c *Config, v string) error { return parseInt(v, &c.Simulation.MaxCycles) }},
	{"EPIFLOW_SEED", func(c *Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		c.Simulation.Seed = n
		return err
	}},
	{"EPIFLOW_WORKERS", func(c *Config, v string) error { return parseInt(v, &c.Simulation.Workers) }},
	{"EPIFLOW_SCALE", func(c *Config, v string) error { return parseInt(v, &c.Topology.Scale) }},
	{"EPIFLOW_POPULATION", func(c *Config, v string) error { return parseInt(v, &c.Topology.Population) }},
	{"EPIFLOW_INITIAL_INFECTED", func(c *Config, v string) error { return parseInt(v, &c.Topology.InitialInfected) }},
	{"EPIFLOW_OUTPUT", func(c *Config, v string) error { c.Output.Path = v; return nil }},
	{"EPIFLOW_FORMAT", func(c *Config, v string) error { c.Output.Format = v; return nil }},
	{"EPIFLOW_UPLOAD", func(c *Config, v string) error { c.Output.Upload = v; return nil }},
	{"EPIFLOW_REDIS_ADDR", func(c *Config, v string) error { c.Redis.Address = v; return nil }},
	{"EPIFLOW_REDIS_PASSWORD", func(c *Config, v string) error { c.Redis.Password = v; return nil }},
	{"EPIFLOW_POSTGRES_DSN", func(c *Config, v string) error { c.Postgres.DSN = v; return nil }},
	{"EPIFLOW_S3_ENDPOINT", func(c *Config, v string) error { c.S3.Endpoint = v; return nil }},
	{"EPIFLOW_S3_REGION", func(c *Config, v string) error { c.S3.Region = v; return nil }},
	{"EPIFLOW_TELEMETRY_ENDPOINT", func(c *Config, v string) error {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
		return nil
	}},
	{"EPIFLOW_LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() error {
	var errs errors.MultiError
	for _, b := range envBindings {
		v, ok := m.lookup(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.set(m.config, v); err != nil {
			errs.Add(errors.Wrap(err, errors.CodeInvalidConfig, "bad environment variable").
				WithContext("name", b.name))
		}
	}
	return errs.Combined()
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseFloat(v string, dst *float64) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Marshal renders the current configuration as YAML.
func (m *Manager) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return yaml.Marshal(m.config)
}

// Save writes the current config to path, or to the user config file when
// path is empty.
func (m *Manager) Save(path string) (string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, ".epiflow", "config.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	data, err := m.Marshal()
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
