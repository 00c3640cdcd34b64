package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/epiflow/epiflow/pkg/config"
	"github.com/epiflow/epiflow/pkg/tui"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		paths := manager.GetPaths()
		if len(paths) == 0 {
			fmt.Fprintln(out, "# defaults only")
		}
		for _, p := range paths {
			fmt.Fprintf(out, "# loaded %s\n", p)
		}
		data, err := manager.Marshal()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Long: `Write the default configuration to path, or to ~/.epiflow/config.yaml
when no path is given. Existing files are kept unless --force is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) == 1 {
			path = args[0]
		}
		if path != "" && !forceInit {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}

		saved, err := config.NewManager().Save(path)
		if err != nil {
			return err
		}
		tui.PrintPath(cmd.OutOrStdout(), "Config written", saved)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
