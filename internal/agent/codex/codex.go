// Package codex adapts OpenAI's Codex CLI to the agent.Agent contract.
package codex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/open330/oac/internal/agent"
	"github.com/open330/oac/internal/agent/process"
	"github.com/open330/oac/internal/workitem"
)

const (
	providerID     = "codex"
	contextCeiling = 128000
)

// Adapter implements agent.Agent for the Codex CLI.
type Adapter struct {
	Command string
}

// New builds a codex Adapter from its provider config. Recognized keys:
// "command" (default "codex").
func New(config map[string]interface{}) (agent.Agent, error) {
	a := &Adapter{Command: "codex"}
	if cmd, ok := config["command"].(string); ok && cmd != "" {
		a.Command = cmd
	}
	return a, nil
}

func (a *Adapter) ID() string { return providerID }

func (a *Adapter) EstimateTokens(item workitem.Item, prompt string) (workitem.Estimate, error) {
	return agent.EstimateTokens(providerID, item, prompt, contextCeiling), nil
}

func (a *Adapter) CheckAvailability(ctx context.Context) error {
	r := process.NewRunner(a.Command, []string{"--version"}, "", "", nil)
	if err := r.Start(func(string) {}); err != nil {
		return fmt.Errorf("codex binary %q not available: %w", a.Command, err)
	}
	return r.Wait(ctx)
}

func (a *Adapter) Execute(ctx context.Context, params agent.ExecParams) (agent.Execution, error) {
	args := []string{"exec", "--json", "--yolo", "--skip-git-repo-check", "--cd", params.WorkDir, params.Prompt}

	runner := process.NewRunner(a.Command, args, params.WorkDir, "", params.ExtraEnv)
	queue := agent.NewEventQueue()
	ex := &execution{runner: runner, queue: queue}

	if err := runner.Start(func(line string) {
		ex.handleLine(line)
	}); err != nil {
		return nil, fmt.Errorf("starting codex: %w", err)
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

// codexEvent is the JSONL event envelope Codex CLI's --json output emits.
type codexEvent struct {
	Type  string      `json:"type"`
	Item  *eventItem  `json:"item,omitempty"`
	Delta *eventDelta `json:"delta,omitempty"`
	Usage *usage      `json:"usage,omitempty"`
	Error *eventError `json:"error,omitempty"`
}

type eventItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Command  string `json:"command,omitempty"`
	Output   string `json:"output,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	Action   string `json:"action,omitempty"`
}

type eventDelta struct {
	Text string `json:"text,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type eventError struct {
	Message string `json:"message"`
}

func (e *execution) handleLine(line string) {
	if line == "" {
		return
	}

	var ce codexEvent
	if err := json.Unmarshal([]byte(line), &ce); err != nil {
		// Codex's --json mode emits JSONL exclusively; a non-JSON line here
		// is incidental shell output (e.g. a banner), not a structured event.
		e.queue.Push(agent.Event{Kind: agent.EventOutput, Time: time.Now(), Text: line, Stream: "stdout"})
		return
	}

	switch ce.Type {
	case "item.completed":
		e.handleItemCompleted(ce.Item)

	case "item.delta", "response.output_text.delta":
		text := ""
		if ce.Delta != nil {
			text = ce.Delta.Text
		} else if ce.Item != nil {
			text = ce.Item.Text
		}
		if text != "" {
			e.queue.Push(agent.Event{Kind: agent.EventOutput, Time: time.Now(), Text: text, Stream: "stdout"})
		}

	case "error", "turn.failed":
		if ce.Error != nil {
			e.queue.Push(agent.Event{Kind: agent.EventError, Time: time.Now(), Err: fmt.Errorf("%s", ce.Error.Message)})
		}

	case "turn.completed", "response.completed":
		if ce.Usage != nil {
			e.promptTokens = ce.Usage.InputTokens
			e.completionTokens = ce.Usage.OutputTokens
			e.queue.Push(agent.Event{
				Kind:             agent.EventTokens,
				Time:             time.Now(),
				PromptTokens:     ce.Usage.InputTokens,
				CompletionTokens: ce.Usage.OutputTokens,
			})
		}
	}
}

func (e *execution) handleItemCompleted(item *eventItem) {
	if item == nil {
		return
	}
	switch item.Type {
	case "agent_message":
		if item.Text != "" {
			e.queue.Push(agent.Event{Kind: agent.EventOutput, Time: time.Now(), Text: item.Text, Stream: "stdout"})
		}

	case "command_execution":
		e.queue.Push(agent.Event{
			Kind:     agent.EventToolUse,
			Time:     time.Now(),
			ToolName: "shell",
			ToolArgs: map[string]interface{}{"command": item.Command, "output": item.Output},
		})

	case "file_change":
		editKind := item.Action
		if editKind == "" {
			editKind = "modify"
		}
		e.queue.Push(agent.Event{Kind: agent.EventFileEdit, Time: time.Now(), FilePath: item.FilePath, EditKind: editKind})
	}
}
