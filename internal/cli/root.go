// Package cli implements the cobra command surface: run, plan, validate,
// status, logs. It is a thin shell around the execution engine.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "oac",
	Short: "Run bounded-concurrency, budget-constrained coding-agent jobs",
	Long: `oac discovers candidate work items, aggregates them into a budget-fitting
execution plan, and dispatches each selected item to a coding-agent
subprocess running inside an isolated git worktree, collecting the
resulting commits for PR creation and audit logging.`,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("oac %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	exitCode = 0
	return rootCmd.Execute()
}

// exitCode records the process-level exit code a subcommand wants.
// cobra's own Execute() only distinguishes error/no-error, so commands that
// need a finer-grained code (run) record it here for main to read back via
// ExitCode.
var exitCode int

func setExitCode(code int) { exitCode = code }

// ExitCode returns the exit code the most recently executed command
// requested, defaulting to 0 for commands that never call setExitCode.
func ExitCode() int { return exitCode }
