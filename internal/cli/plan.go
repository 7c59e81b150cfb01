package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(planCmd)
}

var planCmd = &cobra.Command{
	Use:   "plan <config-file> <repo-dir>",
	Short: "Print the execution plan without running any jobs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		cfg, err := loadAndValidateConfig(args[0])
		if err != nil {
			setExitCode(ExitConfigInvalid)
			return nil
		}
		reg, err := buildRegistry(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			setExitCode(ExitUnhandledError)
			return nil
		}

		p, err := buildPlan(cmd.Context(), cfg, reg, args[1], nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			setExitCode(ExitUnhandledError)
			return nil
		}

		printPlan(os.Stdout, p)
		return nil
	},
}
