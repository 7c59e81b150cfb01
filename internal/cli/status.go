package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/open330/oac/internal/auditlog"
	"github.com/open330/oac/internal/fileutil"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <repo-dir>",
	Short: "Print the most recent run's job table from the audit log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		path, err := latestAuditFile(args[0])
		if err != nil {
			return err
		}

		jobs, err := readJobTable(path)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(jobs))
		for id := range jobs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Printf("run log: %s\n", path)
		for _, id := range ids {
			fmt.Printf("  %s  %-10s agent=%s\n", id, jobs[id].status, jobs[id].agentID)
		}

		summary, err := auditlog.ReadSummary(path)
		if err != nil {
			return err
		}
		if summary != nil {
			fmt.Printf("completed=%d failed=%d aborted=%d\n", summary.Completed, summary.Failed, summary.Aborted)
		} else {
			fmt.Println("run still in progress (no summary recorded yet)")
		}
		return nil
	},
}

// latestAuditFile returns the most recently modified *.jsonl audit file
// under <repoDir>/.oac/audit.
func latestAuditFile(repoDir string) (string, error) {
	dir := fileutil.OACSubdir(repoDir, "audit")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading audit dir %s: %w", dir, err)
	}

	var best string
	var bestMod int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().Unix(); best == "" || mod > bestMod {
			best = e.Name()
			bestMod = mod
		}
	}
	if best == "" {
		return "", fmt.Errorf("no audit logs found under %s", dir)
	}
	return filepath.Join(dir, best), nil
}

type jobRow struct {
	status  string
	agentID string
}

// readJobTable reconstructs each job's latest known status from the raw
// event stream: execution:started/progress/completed/failed records all
// carry a jobId.
func readJobTable(path string) (map[string]*jobRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	jobs := make(map[string]*jobRow)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec struct {
			Event   string                 `json:"event"`
			Payload map[string]interface{} `json:"payload"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // best-effort: drop malformed lines
		}
		jobID, _ := rec.Payload["jobId"].(string)
		if jobID == "" {
			continue
		}
		row, ok := jobs[jobID]
		if !ok {
			row = &jobRow{}
			jobs[jobID] = row
		}
		if agentID, ok := rec.Payload["agentId"].(string); ok && agentID != "" {
			row.agentID = agentID
		}
		switch rec.Event {
		case "execution:started":
			row.status = "running"
		case "execution:completed":
			row.status = "completed"
		case "execution:failed":
			row.status = "failed"
		}
	}
	return jobs, scanner.Err()
}
