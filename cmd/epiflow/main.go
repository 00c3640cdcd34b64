// EpiFlow - agent-based epidemic simulator.
// Simulates a synthetic population mixing in households, community
// centers, workplaces and public transportation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/epiflow/epiflow/pkg/config"
	"github.com/epiflow/epiflow/pkg/defaults/metrics"
	"github.com/epiflow/epiflow/pkg/errors"
	"github.com/epiflow/epiflow/pkg/interfaces"
	"github.com/epiflow/epiflow/pkg/logging"
	"github.com/epiflow/epiflow/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configPath string
	logLevel   string
	verbose    bool
)

// Loaded by the root command before any subcommand runs.
var (
	manager *config.Manager
	logger  *log.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		tui.PrintError(os.Stderr, err)
		if errors.IsCode(err, errors.CodeContextCanceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "epiflow",
	Short: "EpiFlow - agent-based epidemic simulator",
	Long: `EpiFlow simulates an infectious disease spreading through a synthetic
population. Each cycle every living person visits their household and, with
some probability, their community centers, workplace and transit line.
Healthy visitors of a location with infected visitors may be exposed.

Configuration is layered: defaults, /etc/epiflow/config.yaml,
~/.epiflow/config.yaml, ./.epiflow.yaml, the --config scenario file,
EPIFLOW_* environment variables and finally command-line flags.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	tui.Version = version

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Scenario file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (debug logs and metrics)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(trialsCmd)
	rootCmd.AddCommand(paramsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(watchCmd)
}

// setup loads the layered configuration and builds the logger.
func setup(cmd *cobra.Command, _ []string) error {
	manager = config.NewManager()
	if err := manager.Load(configPath); err != nil {
		return err
	}
	cfg := manager.Get()

	switch {
	case logLevel != "":
		cfg.Log.Level = logLevel
	case verbose:
		cfg.Log.Level = "debug"
	}

	l, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level)
	if err != nil {
		return err
	}
	logger = l
	for _, p := range manager.GetPaths() {
		logger.Debug("config loaded", "path", p)
	}
	return nil
}

// newMetrics logs metrics in verbose mode and discards them otherwise.
func newMetrics() interfaces.MetricsExporter {
	if verbose {
		return metrics.NewLogMetrics(logger, metrics.WithMinLevel(metrics.LogLevelTimers))
	}
	return metrics.NewNoopMetrics()
}
