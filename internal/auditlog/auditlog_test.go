package auditlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/open330/oac/internal/bus"
	"github.com/open330/oac/internal/execengine"
)

func TestAttachAppendsEveryEmission(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "run-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	b := bus.New()
	log.Attach(b)

	b.Emit(bus.ExecutionStarted, map[string]interface{}{"jobId": "a"})
	b.Emit(bus.ExecutionCompleted, map[string]interface{}{"jobId": "a"})

	if err := log.WriteSummary(time.Now().UTC(), execengine.RunResult{
		Completed: []*execengine.Job{{}},
	}); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, ".oac", "audit", "run-1.jsonl"))
	if err != nil {
		t.Fatalf("opening audit file: %v", err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %d: invalid JSON: %v", lines, err)
		}
		if rec.RunID != "run-1" {
			t.Errorf("line %d: run_id = %q, want run-1", lines, rec.RunID)
		}
	}
	if lines != 3 {
		t.Fatalf("expected 3 JSONL records (2 events + summary), got %d", lines)
	}
}

func TestReadSummaryReturnsLastRunCompleted(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "run-2")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	started := time.Now().UTC()
	if err := log.WriteSummary(started, execengine.RunResult{
		Completed: []*execengine.Job{{}, {}},
		Failed:    []*execengine.Job{{}},
	}); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	summary, err := ReadSummary(log.Path())
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if summary == nil {
		t.Fatal("expected a non-nil summary")
	}
	if summary.Completed != 2 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want Completed=2 Failed=1", summary)
	}
}

func TestReadSummaryNoSummaryYet(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "run-3")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b := bus.New()
	log.Attach(b)
	b.Emit(bus.ExecutionStarted, map[string]interface{}{"jobId": "x"})
	_ = log.f.Sync()

	summary, err := ReadSummary(log.Path())
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if summary != nil {
		t.Errorf("expected nil summary before WriteSummary, got %+v", summary)
	}
}
