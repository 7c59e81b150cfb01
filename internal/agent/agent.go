// Package agent defines the Agent contract shared by every CLI coding-agent
// adapter (claude, codex, generic), the closed AgentEvent stream they emit,
// and the factory registry used to look providers up by ID or alias.
package agent

import (
	"context"
	"time"

	"github.com/open330/oac/internal/workitem"
)

// EventKind is one of the closed set of structured events an Execution emits.
type EventKind string

const (
	EventOutput   EventKind = "output"
	EventTokens   EventKind = "tokens"
	EventFileEdit EventKind = "file_edit"
	EventToolUse  EventKind = "tool_use"
	EventError    EventKind = "error"
)

// Event is a single structured occurrence from a running agent session. Only
// the field matching Kind is populated; the others are zero.
type Event struct {
	Kind EventKind
	Time time.Time

	// EventOutput
	Text   string
	Stream string // "stdout" or "stderr"

	// EventTokens
	PromptTokens     int
	CompletionTokens int

	// EventFileEdit
	FilePath string
	EditKind string // "create", "modify", "delete"

	// EventToolUse
	ToolName string
	ToolArgs map[string]interface{}

	// EventError
	Err error
}

// ExecParams describes a single agent invocation.
type ExecParams struct {
	Prompt     string
	WorkDir    string
	Item       workitem.Item
	Timeout    time.Duration
	ExtraEnv   []string
}

// Result is the terminal outcome of an Execution.
type Result struct {
	Success          bool
	PromptTokens     int
	CompletionTokens int
	ExitErr          error
}

// Execution is a single running (or completed) agent invocation. Events()
// returns the session's event stream; Wait blocks until the process exits
// and returns its terminal Result.
type Execution interface {
	Events() *EventQueue
	Wait(ctx context.Context) (Result, error)
	Abort() error
}

// Agent is implemented by each concrete coding-agent adapter.
type Agent interface {
	// ID is the provider identifier used in config and job assignment (e.g. "claude-code").
	ID() string

	// Execute starts the agent against params and returns immediately with a
	// handle to the running Execution; it does not block for completion.
	Execute(ctx context.Context, params ExecParams) (Execution, error)

	// EstimateTokens predicts the token cost of running this agent against item,
	// without invoking it.
	EstimateTokens(item workitem.Item, prompt string) (workitem.Estimate, error)

	// CheckAvailability verifies the underlying binary/credentials are usable.
	CheckAvailability(ctx context.Context) error
}
