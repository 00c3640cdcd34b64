package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/epiflow/epiflow/pkg/tui"
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Show the disease parameters and derived per-cycle probabilities",
	Long: `Print the configured disease parameters together with the per-cycle
recovery probability (1 / duration) and the per-cycle death probability
(1 - (1 - death rate)^(1 / duration)).

Examples:
  epiflow params
  epiflow params --disease-duration 14 --death-rate 0.02`,
	Args: cobra.NoArgs,
	RunE: runParams,
}

func init() {
	addModelFlags(paramsCmd)
}

func runParams(cmd *cobra.Command, _ []string) error {
	cfg := manager.Get()
	applyFlags(cmd, cfg)
	p, err := cfg.Params()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tui.PrintSection(out, "PARAMETERS")
	fmt.Fprintln(out, tui.RenderKV([]tui.KV{
		{Key: "infection probability", Value: strconv.FormatFloat(p.InfectionProb, 'g', -1, 64)},
		{Key: "disease duration", Value: strconv.Itoa(p.DiseaseDuration)},
		{Key: "death rate", Value: strconv.FormatFloat(p.DeathRate, 'g', -1, 64)},
		{Key: "max cycles", Value: strconv.Itoa(p.MaxCycles)},
		{Key: "recovery probability / cycle", Value: fmt.Sprintf("%.7f", p.RecoveryProb)},
		{Key: "death probability / cycle", Value: fmt.Sprintf("%.7f", p.DeathProb)},
	}))
	return nil
}
