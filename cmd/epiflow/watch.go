package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/epiflow/epiflow/pkg/config"
	"github.com/epiflow/epiflow/pkg/errors"
	"github.com/epiflow/epiflow/pkg/tui"
	"github.com/epiflow/epiflow/pkg/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run a scenario whenever its file changes",
	Long: `Run the scenario given with --config, then watch the file and start a
fresh simulation each time it is saved. A save during a run interrupts that
run.

Examples:
  epiflow watch -c scenario.yaml
  epiflow watch -c scenario.yaml --debounce 1s`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "Quiet period before re-running")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if configPath == "" {
		return errors.New(errors.CodeInvalidConfig, "watch needs a scenario file (--config)")
	}
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	rerun := func(ctx context.Context, path string) error {
		m := config.NewManager()
		if err := m.Load(path); err != nil {
			return err
		}
		cfg := m.Get()
		if err := cfg.Validate(); err != nil {
			return err
		}
		tui.PrintSection(out, fmt.Sprintf("RUN %s", time.Now().Format(time.TimeOnly)))
		if err := runScenario(ctx, cfg, out, errOut); err != nil && !errors.IsCode(err, errors.CodeContextCanceled) {
			return err
		}
		return nil
	}

	w, err := watch.NewWatcher(rerun,
		watch.WithDebounce(watchDebounce),
		watch.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Watch(configPath); err != nil {
		return err
	}

	tui.PrintHeader(out)
	if err := rerun(cmd.Context(), configPath); err != nil {
		tui.PrintError(errOut, err)
	}

	if err := w.Run(cmd.Context()); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
