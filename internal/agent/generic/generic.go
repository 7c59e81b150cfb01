// Package generic adapts any CLI agent that accepts "<binary> run --format
// json <prompt>" and emits one JSON object per output line, for providers
// outside the named claude/codex integrations.
package generic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/open330/oac/internal/agent"
	"github.com/open330/oac/internal/agent/process"
	"github.com/open330/oac/internal/workitem"
)

const defaultContextCeiling = 100000

// Adapter implements agent.Agent for a generic "run --format json" CLI.
type Adapter struct {
	ProviderID     string
	Command        string
	ContextCeiling int
}

// New builds a generic Adapter from its provider config. Required key:
// "id" (the provider ID jobs reference) and "command" (the binary to run).
// Optional: "context_ceiling" (int, default 100000).
func New(config map[string]interface{}) (agent.Agent, error) {
	id, _ := config["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("generic adapter: config must set \"id\"")
	}
	command, _ := config["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("generic adapter: config must set \"command\"")
	}
	ceiling := defaultContextCeiling
	if v, ok := config["context_ceiling"]; ok {
		if f, ok := v.(float64); ok {
			ceiling = int(f)
		} else if i, ok := v.(int); ok {
			ceiling = i
		}
	}
	return &Adapter{ProviderID: id, Command: command, ContextCeiling: ceiling}, nil
}

func (a *Adapter) ID() string { return a.ProviderID }

func (a *Adapter) EstimateTokens(item workitem.Item, prompt string) (workitem.Estimate, error) {
	return agent.EstimateTokens(a.ProviderID, item, prompt, a.ContextCeiling), nil
}

func (a *Adapter) CheckAvailability(ctx context.Context) error {
	r := process.NewRunner(a.Command, []string{"--version"}, "", "", nil)
	if err := r.Start(func(string) {}); err != nil {
		return fmt.Errorf("%s binary %q not available: %w", a.ProviderID, a.Command, err)
	}
	return r.Wait(ctx)
}

func (a *Adapter) Execute(ctx context.Context, params agent.ExecParams) (agent.Execution, error) {
	args := []string{"run", "--format", "json", params.Prompt}
	runner := process.NewRunner(a.Command, args, params.WorkDir, "", params.ExtraEnv)
	queue := agent.NewEventQueue()
	ex := &execution{runner: runner, queue: queue}

	if err := runner.Start(func(line string) {
		ex.handleLine(line)
	}); err != nil {
		return nil, fmt.Errorf("starting %s: %w", a.ProviderID, err)
	}
	return ex, nil
}

type execution struct {
	runner *process.Runner
	queue  *agent.EventQueue

	promptTokens     int
	completionTokens int
}

func (e *execution) Events() *agent.EventQueue { return e.queue }
func (e *execution) Abort() error               { return e.runner.Abort() }

func (e *execution) Wait(ctx context.Context) (agent.Result, error) {
	err := e.runner.Wait(ctx)
	e.queue.Close()
	return agent.Result{
		Success:          err == nil,
		PromptTokens:     e.promptTokens,
		CompletionTokens: e.completionTokens,
		ExitErr:          err,
	}, nil
}

// genericEvent is the minimal JSON event shape a generic-provider CLI is
// expected to emit: {"type": "output"|"tool_use"|"file_edit"|"tokens"|"error", ...}.
type genericEvent struct {
	Type             string `json:"type"`
	Text             string `json:"text,omitempty"`
	ToolName         string `json:"tool_name,omitempty"`
	FilePath         string `json:"file_path,omitempty"`
	EditKind         string `json:"edit_kind,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	Message          string `json:"message,omitempty"`
}

func (e *execution) handleLine(line string) {
	if line == "" {
		return
	}

	var ge genericEvent
	if err := json.Unmarshal([]byte(line), &ge); err != nil {
		e.queue.Push(agent.Event{Kind: agent.EventOutput, Time: time.Now(), Text: line, Stream: "stdout"})
		return
	}

	switch ge.Type {
	case "output", "":
		e.queue.Push(agent.Event{Kind: agent.EventOutput, Time: time.Now(), Text: ge.Text, Stream: "stdout"})
	case "tool_use":
		e.queue.Push(agent.Event{Kind: agent.EventToolUse, Time: time.Now(), ToolName: ge.ToolName})
	case "file_edit":
		e.queue.Push(agent.Event{Kind: agent.EventFileEdit, Time: time.Now(), FilePath: ge.FilePath, EditKind: ge.EditKind})
	case "tokens":
		e.promptTokens = ge.PromptTokens
		e.completionTokens = ge.CompletionTokens
		e.queue.Push(agent.Event{Kind: agent.EventTokens, Time: time.Now(), PromptTokens: ge.PromptTokens, CompletionTokens: ge.CompletionTokens})
	case "error":
		e.queue.Push(agent.Event{Kind: agent.EventError, Time: time.Now(), Err: fmt.Errorf("%s", ge.Message)})
	}
}
