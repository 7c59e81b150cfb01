// Package auditlog persists run activity for post-hoc review: an
// append-only JSONL writer that subscribes to every event bus emission for
// a run, plus a per-run summary written once the run completes.
package auditlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/open330/oac/internal/bus"
	"github.com/open330/oac/internal/execengine"
	"github.com/open330/oac/internal/fileutil"
)

// Record is one JSONL line: a timestamped, run-scoped envelope around a bus
// emission.
type Record struct {
	Timestamp time.Time   `json:"timestamp"`
	RunID     string      `json:"run_id"`
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
}

// Summary is the per-run rollup written once at the end of Run, alongside
// the raw event stream, so `oac status` has something cheap to read.
type Summary struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Aborted   int       `json:"aborted"`
}

// Log subscribes to a bus and appends every emission to a JSONL file under
// <repoDir>/.oac/audit/<runID>.jsonl. It is a pure observer: it never
// mutates engine state and a write failure is logged, not propagated —
// losing an audit line must never fail the run it describes.
type Log struct {
	runID string
	path  string

	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// Open creates (or truncates) the run's audit file and returns a Log ready
// to subscribe to a bus via Attach.
func Open(repoDir, runID string) (*Log, error) {
	dir := fileutil.OACSubdir(repoDir, "audit")
	if err := fileutil.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("auditlog: creating audit dir: %w", err)
	}
	path := filepath.Join(dir, runID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("auditlog: opening %s: %w", path, err)
	}
	return &Log{runID: runID, path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the audit file's location on disk.
func (l *Log) Path() string { return l.path }

// Attach registers l as a handler for every closed-set bus event name, so it
// observes the complete lifecycle of a run without the caller needing to
// enumerate event names itself.
func (l *Log) Attach(b *bus.Bus) {
	for _, name := range []bus.Name{
		bus.RepoResolved, bus.TaskDiscovered, bus.TaskSelected, bus.BudgetEstimated,
		bus.ExecutionStarted, bus.ExecutionProgress, bus.ExecutionCompleted, bus.ExecutionFailed,
		bus.PRCreated, bus.PRMerged, bus.RunCompleted,
	} {
		eventName := name
		b.On(eventName, func(payload interface{}) {
			l.append(eventName, payload)
		})
	}
}

func (l *Log) append(name bus.Name, payload interface{}) {
	rec := Record{Timestamp: time.Now().UTC(), RunID: l.runID, Event: string(name), Payload: payload}
	data, err := json.Marshal(rec)
	if err != nil {
		fileutil.LogError("auditlog: marshaling %s event: %v", name, err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(data); err != nil {
		fileutil.LogError("auditlog: writing %s event: %v", name, err)
		return
	}
	_ = l.w.WriteByte('\n')
	_ = l.w.Flush()
}

// WriteSummary appends a closing summary record derived from an engine
// RunResult, then flushes and closes the underlying file. Close is
// idempotent-safe to call once per Log.
func (l *Log) WriteSummary(startedAt time.Time, result execengine.RunResult) error {
	summary := Summary{
		RunID:     l.runID,
		StartedAt: startedAt,
		EndedAt:   time.Now().UTC(),
		Completed: len(result.Completed),
		Failed:    len(result.Failed),
		Aborted:   len(result.Aborted),
	}
	l.append(bus.RunCompleted, summary)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("auditlog: flushing %s: %w", l.path, err)
	}
	return l.f.Close()
}

// ReadSummary scans an audit file for its last run:completed record, for the
// `oac status` command. It returns nil, nil if the file has no summary yet.
func ReadSummary(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("auditlog: opening %s: %w", path, err)
	}
	defer f.Close()

	var last *Summary
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // best-effort: a malformed line is dropped, not fatal
		}
		if rec.Event != string(bus.RunCompleted) {
			continue
		}
		var s Summary
		if err := json.Unmarshal(rec.Payload, &s); err == nil {
			last = &s
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("auditlog: scanning %s: %w", path, err)
	}
	return last, nil
}
