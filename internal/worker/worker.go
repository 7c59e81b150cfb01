// Package worker assembles a task prompt, drives a single agent execution to
// completion, and reconciles the resulting sandbox diff into a commit.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/open330/oac/internal/agent"
	"github.com/open330/oac/internal/bus"
	"github.com/open330/oac/internal/ocerr"
	"github.com/open330/oac/internal/sandbox"
	"github.com/open330/oac/internal/workitem"
)

// DefaultTokenBudget is used when neither an explicit opts value nor
// item.Metadata["tokenBudget"] is present.
const DefaultTokenBudget = 50000

// DefaultTimeout is used when neither an explicit opts value nor
// item.Metadata["timeoutMs"] is present.
const DefaultTimeout = 300 * time.Second

// CommitTag is the bracketed prefix the worker uses for its own fallback
// commit when the agent leaves uncommitted changes behind.
const CommitTag = "OAC"

// Params describes a single worker invocation.
type Params struct {
	ExecutionID  string
	Agent        agent.Agent
	Item         workitem.Item
	Sandbox      *sandbox.Sandbox
	Bus          *bus.Bus
	TokenBudget  int64
	Timeout      time.Duration
	AllowCommits bool

	// OnStart, if set, is invoked with the live Execution as soon as the
	// agent process has started — before its event stream is consumed —
	// so a caller holding the engine's abort path can record it and call
	// Abort() on it later.
	OnStart func(agent.Execution)
}

// Result is the worker's reconciled outcome: the agent's own report merged
// with what the worker itself observed and committed.
type Result struct {
	Success          bool
	TotalTokensUsed  int
	FilesChanged     []string
	PartialSuccess   bool
	Err              error
}

// AssemblePrompt builds the agent-facing prompt for a work item.
func AssemblePrompt(item workitem.Item) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n", item.ID)
	fmt.Fprintf(&sb, "Title: %s\n", item.Title)
	fmt.Fprintf(&sb, "Source: %s\n", item.Source)
	fmt.Fprintf(&sb, "Priority: %d\n", item.Priority)
	fmt.Fprintf(&sb, "Complexity: %s\n", item.Complexity)
	fmt.Fprintf(&sb, "Execution mode: %s\n", item.Mode)

	if item.LinkedIssue != nil {
		fmt.Fprintf(&sb, "Linked issue: #%d (%s)\n", item.LinkedIssue.Number, item.LinkedIssue.URL)
		if len(item.LinkedIssue.Labels) > 0 {
			fmt.Fprintf(&sb, "Issue labels: %s\n", strings.Join(item.LinkedIssue.Labels, ", "))
		}
		sb.WriteString("Resolve this issue completely.\n")
	}

	sb.WriteString("\nDescription:\n")
	sb.WriteString(item.Description)
	sb.WriteString("\n")

	if len(item.TargetFiles) > 0 {
		sb.WriteString("\nTarget files:\n")
		for _, f := range item.TargetFiles {
			sb.WriteString("- " + f + "\n")
		}
	}

	sb.WriteString("\nApply minimal, safe changes; repository must remain buildable.\n")
	return sb.String()
}

func effectiveTokenBudget(item workitem.Item, opts int64) int64 {
	if opts > 0 {
		return opts
	}
	if v, ok := item.Metadata["tokenBudget"]; ok {
		if parsed, err := parseInt64(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return DefaultTokenBudget
}

func effectiveTimeout(item workitem.Item, opts time.Duration) time.Duration {
	if opts > 0 {
		return opts
	}
	if v, ok := item.Metadata["timeoutMs"]; ok {
		if parsed, err := parseInt64(v); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return DefaultTimeout
}

func parseInt64(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}

// stageLabel maps an agent event to its progress-bus stage label.
func stageLabel(e agent.Event) string {
	switch e.Kind {
	case agent.EventOutput:
		if e.Stream == "stderr" {
			return "stderr"
		}
		return "stdout"
	case agent.EventTokens:
		return "tokens"
	case agent.EventFileEdit:
		return "file:" + e.EditKind
	case agent.EventToolUse:
		return "tool:" + e.ToolName
	case agent.EventError:
		return "agent-error"
	default:
		return "agent-warning"
	}
}

// Execute drives params.Agent against params.Item inside params.Sandbox,
// consuming the event stream on the caller's goroutine, then reconciles any
// uncommitted sandbox changes into a final commit.
func Execute(ctx context.Context, params Params) (Result, error) {
	prompt := AssemblePrompt(params.Item)
	tokenBudget := effectiveTokenBudget(params.Item, params.TokenBudget)
	timeout := effectiveTimeout(params.Item, params.Timeout)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execution, err := params.Agent.Execute(execCtx, agent.ExecParams{
		Prompt:  prompt,
		WorkDir: params.Sandbox.Path,
		Item:    params.Item,
		Timeout: timeout,
		ExtraEnv: []string{
			fmt.Sprintf("TOKEN_BUDGET=%d", tokenBudget),
			"ALLOW_COMMITS=" + boolEnv(params.AllowCommits),
		},
	})
	if err != nil {
		normalized := ocerr.Normalize(err, map[string]string{"task_id": params.Item.ID, "execution_id": params.ExecutionID})
		return Result{Err: normalized}, normalized
	}
	if params.OnStart != nil {
		params.OnStart(execution)
	}

	observedTokens := 0
	observedFiles := map[string]bool{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			e, ok := execution.Events().Next()
			if !ok {
				return
			}
			if e.Kind == agent.EventTokens {
				cumulative := e.PromptTokens + e.CompletionTokens
				if cumulative > observedTokens {
					observedTokens = cumulative
				}
			}
			if e.Kind == agent.EventFileEdit {
				observedFiles[e.FilePath] = true
			}
			if params.Bus != nil {
				params.Bus.Emit(bus.ExecutionProgress, map[string]interface{}{
					"executionId": params.ExecutionID,
					"stage":       stageLabel(e),
					"event":       e,
				})
			}
		}
	}()

	agentResult, waitErr := execution.Wait(execCtx)
	<-done

	if waitErr != nil {
		normalized := ocerr.Normalize(waitErr, map[string]string{"task_id": params.Item.ID, "execution_id": params.ExecutionID})
		return Result{Err: normalized}, normalized
	}

	totalTokens := agentResult.PromptTokens + agentResult.CompletionTokens
	if observedTokens > totalTokens {
		totalTokens = observedTokens
	}

	filesChanged, commitErr := reconcile(params.Sandbox, params.Item, observedFiles)
	if commitErr != nil {
		normalized := ocerr.Normalize(commitErr, map[string]string{"task_id": params.Item.ID, "execution_id": params.ExecutionID})
		return Result{Err: normalized}, normalized
	}

	partial := !agentResult.Success && len(filesChanged) > 0

	result := Result{
		Success:         agentResult.Success || partial,
		TotalTokensUsed: totalTokens,
		FilesChanged:    filesChanged,
		PartialSuccess:  partial,
	}

	if !result.Success {
		cause := agentResult.ExitErr
		if cause == nil {
			cause = fmt.Errorf("agent exited without changes for task %s", params.Item.ID)
		}
		normalized := ocerr.Normalize(cause, map[string]string{"task_id": params.Item.ID, "execution_id": params.ExecutionID})
		result.Err = normalized
		return result, normalized
	}

	return result, nil
}

// reconcile stages and commits any changes the agent left uncommitted, then
// returns the full changed-file set against the sandbox's base ref —
// covering both worker-committed and agent-committed changes.
func reconcile(sb *sandbox.Sandbox, item workitem.Item, observed map[string]bool) ([]string, error) {
	repo := sb.Repo()

	hasChanges, err := repo.HasChanges()
	if err != nil {
		return nil, fmt.Errorf("checking sandbox for changes: %w", err)
	}
	if hasChanges {
		if err := repo.StageAll(); err != nil {
			return nil, fmt.Errorf("staging changes: %w", err)
		}
		msg := fmt.Sprintf("[%s] %s", CommitTag, item.Title)
		if err := repo.Commit(msg); err != nil {
			return nil, fmt.Errorf("committing: %w", err)
		}
	}

	changed, err := repo.ChangedFiles(sb.BaseRef)
	if err != nil {
		return nil, fmt.Errorf("computing changed files: %w", err)
	}

	fileSet := map[string]bool{}
	for _, f := range changed {
		if f != "" {
			fileSet[f] = true
		}
	}
	for f := range observed {
		fileSet[f] = true
	}

	result := make([]string, 0, len(fileSet))
	for f := range fileSet {
		result = append(result, f)
	}
	return result, nil
}

func boolEnv(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
