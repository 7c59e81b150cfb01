package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(logsCmd)
}

var logsCmd = &cobra.Command{
	Use:   "logs <repo-dir> <job-id>",
	Short: "Print one job's agent output from the most recent run's audit log",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		path, err := latestAuditFile(args[0])
		if err != nil {
			return err
		}
		return printJobOutput(path, args[1])
	},
}

// printJobOutput scans an audit file for execution:progress records
// belonging to jobID and prints the stdout/stderr text each carries, in
// the order they were recorded.
func printJobOutput(path, jobID string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec struct {
			Event   string `json:"event"`
			Payload struct {
				ExecutionID string `json:"executionId"`
				Stage       string `json:"stage"`
				Event       struct {
					Text string `json:"Text"`
				} `json:"event"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // best-effort: drop malformed lines
		}
		if rec.Event != "execution:progress" || rec.Payload.ExecutionID != jobID {
			continue
		}
		found = true
		if rec.Payload.Event.Text != "" {
			fmt.Printf("[%s] %s\n", rec.Payload.Stage, rec.Payload.Event.Text)
		} else {
			fmt.Printf("[%s]\n", rec.Payload.Stage)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", path, err)
	}
	if !found {
		return fmt.Errorf("no output recorded for job %s in %s", jobID, path)
	}
	return nil
}
