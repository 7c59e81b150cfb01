package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/open330/oac/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestBuildPlanSelectsWithinBudget(t *testing.T) {
	dir := t.TempDir()
	itemsPath := filepath.Join(dir, "items.yaml")
	writeFile(t, itemsPath, `
items:
  - id: a1
    title: "fix lint in a"
    priority: 90
    complexity: trivial
  - id: a2
    title: "fix lint in b"
    priority: 10
    complexity: trivial
`)

	cfg := &config.RunConfig{
		Providers: []config.Provider{{ID: "claude-code"}},
		Source:    config.Source{Path: itemsPath},
	}
	// simulate applyDefaults via Load/Validate path
	cfgYAML := `
providers:
  - id: claude-code
source:
  path: ` + itemsPath + `
`
	writeFile(t, filepath.Join(dir, "config.yaml"), cfgYAML)
	loaded, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg = loaded

	reg, err := buildRegistry(cfg)
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}

	p, err := buildPlan(context.Background(), cfg, reg, dir, nil)
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	if len(p.Selected)+len(p.Deferred) != 2 {
		t.Fatalf("expected 2 total items, got selected=%d deferred=%d", len(p.Selected), len(p.Deferred))
	}
	if p.Selected[0].Item.Priority < p.Selected[len(p.Selected)-1].Item.Priority {
		t.Error("selected items should be ordered by descending priority")
	}
}

func TestLatestAuditFilePicksNewestMtime(t *testing.T) {
	dir := t.TempDir()
	auditDir := filepath.Join(dir, ".oac", "audit")
	writeFile(t, filepath.Join(auditDir, "old.jsonl"), "{}\n")
	writeFile(t, filepath.Join(auditDir, "new.jsonl"), "{}\n")

	oldTime := osTimeMinusHour(t, auditDir, "old.jsonl")
	_ = oldTime

	got, err := latestAuditFile(dir)
	if err != nil {
		t.Fatalf("latestAuditFile: %v", err)
	}
	if filepath.Base(got) != "new.jsonl" {
		t.Errorf("expected new.jsonl to win, got %s", got)
	}
}

func osTimeMinusHour(t *testing.T, dir, name string) bool {
	t.Helper()
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	older := info.ModTime().Add(-1e9 * 3600)
	if err := os.Chtimes(path, older, older); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return true
}

func TestReadJobTableTracksLatestStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.jsonl")
	lines := []string{
		`{"event":"execution:started","payload":{"jobId":"j1","agentId":"claude-code"}}`,
		`{"event":"execution:completed","payload":{"jobId":"j1"}}`,
		`{"event":"execution:started","payload":{"jobId":"j2","agentId":"codex"}}`,
	}
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	writeFile(t, path, content)

	jobs, err := readJobTable(path)
	if err != nil {
		t.Fatalf("readJobTable: %v", err)
	}
	if jobs["j1"].status != "completed" {
		t.Errorf("j1 status = %q, want completed", jobs["j1"].status)
	}
	if jobs["j2"].status != "running" {
		t.Errorf("j2 status = %q, want running", jobs["j2"].status)
	}
	if jobs["j1"].agentID != "claude-code" {
		t.Errorf("j1 agentID = %q, want claude-code", jobs["j1"].agentID)
	}
}

func TestPrintJobOutputErrorsWhenJobMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.jsonl")
	rec := map[string]interface{}{
		"event": "execution:progress",
		"payload": map[string]interface{}{
			"executionId": "j1",
			"stage":       "stdout",
			"event":       map[string]interface{}{"Text": "hello"},
		},
	}
	data, _ := json.Marshal(rec)
	writeFile(t, path, string(data)+"\n")

	if err := printJobOutput(path, "j1"); err != nil {
		t.Errorf("expected no error for existing job, got %v", err)
	}
	if err := printJobOutput(path, "missing"); err == nil {
		t.Error("expected an error for a job with no recorded output")
	}
}
