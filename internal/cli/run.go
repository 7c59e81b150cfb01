package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/open330/oac/internal/auditlog"
	"github.com/open330/oac/internal/bus"
	"github.com/open330/oac/internal/execengine"
)

// Process exit codes.
const (
	ExitSuccess        = 0
	ExitUnhandledError = 1
	ExitConfigInvalid  = 2
	ExitAllJobsFailed  = 3
	ExitPartialSuccess = 4
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <config-file> <repo-dir>",
	Short: "Plan and execute a run against a repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		code, err := runRun(cmd.Context(), args[0], args[1])
		setExitCode(code)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		return nil
	},
}

func runRun(parent context.Context, configPath, repoDir string) (int, error) {
	cfg, err := loadAndValidateConfig(configPath)
	if err != nil {
		return ExitConfigInvalid, err
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return ExitConfigInvalid, err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Probe each configured provider up front, bounded so a wedged CLI can't
	// stall the run. An unavailable provider is reported but not fatal — the
	// engine's circuit breaker handles it if it keeps failing.
	for _, pid := range cfg.ProviderIDs() {
		a, err := reg.Get(pid, cfg.FactoryConfigs()[pid])
		if err != nil {
			return ExitConfigInvalid, err
		}
		probeCtx, cancelProbe := context.WithTimeout(ctx, 5*time.Second)
		if err := a.CheckAvailability(probeCtx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: provider %s availability check failed: %s\n", pid, err)
		}
		cancelProbe()
	}

	b := bus.New()
	runID := uuid.NewString()
	log, err := auditlog.Open(repoDir, runID)
	if err != nil {
		return ExitUnhandledError, err
	}
	log.Attach(b)

	p, err := buildPlan(ctx, cfg, reg, repoDir, b)
	if err != nil {
		return ExitUnhandledError, err
	}
	printPlan(os.Stdout, p)

	eng, err := execengine.New(execengine.Config{
		Concurrency:        cfg.Engine.Concurrency,
		MaxAttempts:        cfg.Engine.MaxAttempts,
		RepoPath:           repoDir,
		BaseBranch:         cfg.Engine.BaseBranch,
		BranchPrefix:       cfg.Engine.BranchPrefix,
		TaskTimeout:        cfg.Engine.Timeout.Duration(),
		DefaultTokenBudget: cfg.Engine.DefaultTokenBudget,
	}, reg, cfg.ProviderIDs(), cfg.FactoryConfigs(), b)
	if err != nil {
		return ExitUnhandledError, err
	}

	jobs := eng.Enqueue(p)
	if len(jobs) == 0 {
		fmt.Println("no items selected; nothing to run")
		_ = log.WriteSummary(time.Now().UTC(), execengine.RunResult{})
		return ExitSuccess, nil
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			fmt.Fprintln(os.Stderr, "received interrupt, aborting run...")
			eng.Abort()
		}
	}()
	defer signal.Stop(sigCh)

	startedAt := time.Now().UTC()
	result := eng.Run(ctx)
	close(sigCh)

	publishResults(ctx, cfg, repoDir, b, result.Completed)

	if err := log.WriteSummary(startedAt, result); err != nil {
		fmt.Fprintf(os.Stderr, "warning: writing audit summary: %s\n", err)
	}
	fmt.Printf("run %s: completed=%d failed=%d aborted=%d (audit log: %s)\n",
		runID, len(result.Completed), len(result.Failed), len(result.Aborted), log.Path())

	switch {
	case len(jobs) > 0 && len(result.Completed) == 0 && len(result.Failed) == len(jobs):
		return ExitAllJobsFailed, nil
	case len(result.Failed) > 0 || len(result.Aborted) > 0:
		return ExitPartialSuccess, nil
	default:
		return ExitSuccess, nil
	}
}
