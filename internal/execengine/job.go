package execengine

import (
	"time"

	"github.com/open330/oac/internal/ocerr"
	"github.com/open330/oac/internal/worker"
	"github.com/open330/oac/internal/workitem"
)

// Status is one of the closed set of job lifecycle states.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusRetrying  Status = "retrying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Job is a single scheduled unit of work tracked by the engine for its
// entire lifetime, from enqueue to a terminal status.
type Job struct {
	ID       string
	Item     workitem.Item
	Estimate workitem.Estimate

	Status   Status
	Attempts int
	AgentID  string
	Branch   string

	StartedAt   time.Time
	CompletedAt time.Time

	Result worker.Result
	Err    *ocerr.Error

	aborted bool
}
