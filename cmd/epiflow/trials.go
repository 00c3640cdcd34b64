package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/epiflow/epiflow/pkg/trials"
	"github.com/epiflow/epiflow/pkg/tui"
	"github.com/epiflow/epiflow/pkg/writer"
)

// Trials flags
var (
	trialCount    int
	trialParallel int
)

var trialsCmd = &cobra.Command{
	Use:   "trials",
	Short: "Run many independent simulations and aggregate the outcomes",
	Long: `Run N simulations of the same scenario with seeds seed, seed+1, ...
and print the min, mean and max of the final counts, the infection peak and
the number of cycles. With --output every trial's history is exported as its
own run.

Examples:
  epiflow trials -n 50
  epiflow trials -n 200 --parallel 8 --seed 1 -o trials.parquet`,
	Args: cobra.NoArgs,
	RunE: runTrials,
}

func init() {
	addSimFlags(trialsCmd)
	addOutputFlags(trialsCmd)
	trialsCmd.Flags().IntVarP(&trialCount, "trials", "n", 10, "Number of trials")
	trialsCmd.Flags().IntVar(&trialParallel, "parallel", runtime.NumCPU(), "Trials run concurrently")
}

func runTrials(cmd *cobra.Command, _ []string) error {
	cfg := manager.Get()
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tui.PrintHeader(out)
	tui.PrintSection(out, "TRIALS")
	tui.PrintField(out, "Trials", trialCount)
	tui.PrintField(out, "Parallel", trialParallel)

	m := newMetrics()
	defer m.Close()

	runner := trials.NewRunner(trials.Config{
		Trials:   trialCount,
		Parallel: trialParallel,
		Seed:     cfg.Simulation.Seed,
		Workers:  cfg.Simulation.Workers,
		Params:   params,
		Topology: cfg.TopologyConfig(),
	}, logger, m)

	started := time.Now()
	rep, err := runner.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, tui.RenderStats(rep.Stats()))
	tui.PrintField(out, "Base seed", rep.Trials[0].Seed)
	tui.PrintField(out, "Total time", rep.Duration.Round(time.Millisecond))

	if cfg.Output.Path == "" {
		return nil
	}
	batch := uuid.NewString()
	if err := export(cfg, m, cfg.Output.Path, func(w writer.Writer) error {
		return rep.Export(cmd.Context(), w, batch, started)
	}); err != nil {
		return err
	}
	tui.PrintPath(out, "Output", cfg.Output.Path)

	if cfg.Output.Upload != "" {
		return upload(cmd.Context(), cfg, m, cfg.Output.Path)
	}
	return nil
}
