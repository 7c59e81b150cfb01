package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate <config-file>",
	Short: "Validate an oac configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		if _, err := loadAndValidateConfig(args[0]); err != nil {
			setExitCode(ExitConfigInvalid)
			return nil
		}
		fmt.Println("Configuration is valid.")
		return nil
	},
}
