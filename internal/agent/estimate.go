package agent

import (
	"math"
	"os"

	"github.com/open330/oac/internal/workitem"
)

// promptOverheadTokens accounts for the system prompt, tool schemas, and
// instructions every adapter wraps the task prompt in before sending it to
// the underlying CLI.
const promptOverheadTokens = 500

// charsPerToken is the coarse chars-to-tokens ratio used when no tokenizer is
// available.
const charsPerToken = 4

// totalPadding inflates the summed estimate to absorb the inherent slop in
// the chars-per-token heuristic.
const totalPadding = 1.2

// EstimateTokens computes a provider-agnostic Estimate for running prompt
// against item: context tokens from the target files' sizes, prompt tokens
// from the prompt text plus adapter overhead, and expected output scaled by
// the item's complexity multiplier.
//
// contextCeiling is the provider's maximum total token window; feasibility
// is false when Total exceeds it.
func EstimateTokens(providerID string, item workitem.Item, prompt string, contextCeiling int) workitem.Estimate {
	contextTokens := 0
	for _, f := range item.TargetFiles {
		contextTokens += ceilDiv(fileSize(f), charsPerToken)
	}

	promptTokens := ceilDiv(len(prompt), charsPerToken) + promptOverheadTokens
	expectedOutput := int(float64(contextTokens) * item.Complexity.OutputMultiplier())
	total := int(math.Ceil(float64(contextTokens+promptTokens+expectedOutput) * totalPadding))

	return workitem.Estimate{
		ProviderID:     providerID,
		ContextTokens:  contextTokens,
		PromptTokens:   promptTokens,
		ExpectedOutput: expectedOutput,
		Total:          total,
		Confidence:     confidenceFor(item),
		Feasible:       contextCeiling <= 0 || total <= contextCeiling,
	}
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func fileSize(path string) int {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return int(info.Size())
}

// confidenceFor reflects how reliable the context-token count is: an item
// whose target files could not be stat'd falls back to 0 context tokens,
// which is a much weaker basis for the estimate.
func confidenceFor(item workitem.Item) float64 {
	if len(item.TargetFiles) == 0 {
		return 0.5
	}
	missing := 0
	for _, f := range item.TargetFiles {
		if _, err := os.Stat(f); err != nil {
			missing++
		}
	}
	if missing == 0 {
		return 0.9
	}
	if missing == len(item.TargetFiles) {
		return 0.3
	}
	return 0.6
}
