// Package claude adapts the Claude Code CLI to the agent.Agent contract.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/open330/oac/internal/agent"
	"github.com/open330/oac/internal/agent/process"
	"github.com/open330/oac/internal/workitem"
)

const (
	providerID     = "claude-code"
	contextCeiling = 200000
)

// Adapter implements agent.Agent for the Claude Code CLI.
type Adapter struct {
	Command string
	Args    []string
}

// New builds a claude-code Adapter from its provider config. Recognized
// keys: "command" (default "claude"), "args" ([]string, default
// ["-p", "--output-format", "stream-json", "--verbose"]).
func New(config map[string]interface{}) (agent.Agent, error) {
	a := &Adapter{
		Command: "claude",
		Args:    []string{"-p", "--output-format", "stream-json", "--verbose"},
	}
	if cmd, ok := config["command"].(string); ok && cmd != "" {
		a.Command = cmd
	}
	if rawArgs, ok := config["args"].([]interface{}); ok {
		args := make([]string, 0, len(rawArgs))
		for _, v := range rawArgs {
			if s, ok := v.(string); ok {
				args = append(args, s)
			}
		}
		a.Args = args
	}
	return a, nil
}

func (a *Adapter) ID() string { return providerID }

func (a *Adapter) EstimateTokens(item workitem.Item, prompt string) (workitem.Estimate, error) {
	return agent.EstimateTokens(providerID, item, prompt, contextCeiling), nil
}

func (a *Adapter) CheckAvailability(ctx context.Context) error {
	_, err := os.Stat(a.Command)
	if err == nil {
		return nil
	}
	// Not a literal path — fall back to PATH lookup semantics by trying a
	// trivial invocation and checking it starts at all.
	r := process.NewRunner(a.Command, []string{"--version"}, "", "", nil)
	if startErr := r.Start(func(string) {}); startErr != nil {
		return fmt.Errorf("claude-code binary %q not available: %w", a.Command, startErr)
	}
	return r.Wait(ctx)
}

func (a *Adapter) Execute(ctx context.Context, params agent.ExecParams) (agent.Execution, error) {
	// The prompt rides as the -p argument; stdin stays closed so the CLI
	// never waits on interactive input.
	args := append([]string{}, a.Args...)
	args = append(args, params.Prompt)

	runner := process.NewRunner(a.Command, args, params.WorkDir, "", params.ExtraEnv)
	// A run launched from inside a Claude Code session must not look like a
	// nested session to the child.
	runner.StripEnv = []string{"CLAUDECODE", "CLAUDE_CODE_SESSION"}
	queue := agent.NewEventQueue()
	ex := &execution{runner: runner, queue: queue}

	if err := runner.Start(func(line string) {
		ex.handleLine(line)
	}); err != nil {
		return nil, fmt.Errorf("starting claude-code: %w", err)
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

func (e *execution) Abort() error {
	return e.runner.Abort()
}

func (e *execution) Wait(ctx context.Context) (agent.Result, error) {
	err := e.runner.Wait(ctx)
	e.queue.Close()

	result := agent.Result{
		Success:          err == nil,
		PromptTokens:     e.promptTokens,
		CompletionTokens: e.completionTokens,
		ExitErr:          err,
	}
	return result, nil
}

// toolUseLine matches a tool-call announcement Claude Code sometimes emits
// outside the structured JSON stream (e.g. when stream-json parsing fails
// for a given line); used as a fallback classifier for non-JSON output.
var toolUseLine = regexp.MustCompile(`^(?:\[tool\]|Running tool:)\s*(\S+)`)

func (e *execution) handleLine(line string) {
	if line == "" {
		return
	}

	var raw rawEvent
	if err := json.Unmarshal([]byte(line), &raw); err == nil && raw.Type != "" {
		e.handleStructured(raw)
		return
	}

	if m := toolUseLine.FindStringSubmatch(line); m != nil {
		e.queue.Push(agent.Event{Kind: agent.EventToolUse, Time: time.Now(), ToolName: m[1]})
		return
	}

	e.queue.Push(agent.Event{Kind: agent.EventOutput, Time: time.Now(), Text: line, Stream: "stdout"})
}

type rawEvent struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

type rawMessage struct {
	Content []rawBlock `json:"content"`
}

type rawResult struct {
	Content    []rawBlock  `json:"content"`
	Usage      *tokenUsage `json:"usage,omitempty"`
	StopReason string      `json:"stop_reason,omitempty"`
}

type rawBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type tokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (e *execution) handleStructured(raw rawEvent) {
	switch raw.Type {
	case "assistant", "user":
		var msg rawMessage
		if json.Unmarshal(raw.Message, &msg) != nil {
			return
		}
		e.emitBlocks(msg.Content)

	case "result":
		var res rawResult
		if json.Unmarshal(raw.Result, &res) != nil {
			return
		}
		e.emitBlocks(res.Content)
		if res.Usage != nil {
			e.promptTokens = res.Usage.InputTokens
			e.completionTokens = res.Usage.OutputTokens
			e.queue.Push(agent.Event{
				Kind:             agent.EventTokens,
				Time:             time.Now(),
				PromptTokens:     res.Usage.InputTokens,
				CompletionTokens: res.Usage.OutputTokens,
			})
		}
	}
}

func (e *execution) emitBlocks(blocks []rawBlock) {
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				e.queue.Push(agent.Event{Kind: agent.EventOutput, Time: time.Now(), Text: b.Text, Stream: "stdout"})
			}
		case "tool_use":
			var args map[string]interface{}
			_ = json.Unmarshal(b.Input, &args)
			e.queue.Push(agent.Event{Kind: agent.EventToolUse, Time: time.Now(), ToolName: b.Name, ToolArgs: args})

			if b.Name == "Edit" || b.Name == "Write" || b.Name == "MultiEdit" {
				if fp, ok := args["file_path"].(string); ok {
					editKind := "modify"
					if b.Name == "Write" {
						editKind = "create"
					}
					e.queue.Push(agent.Event{Kind: agent.EventFileEdit, Time: time.Now(), FilePath: fp, EditKind: editKind})
				}
			}
		}
	}
}
