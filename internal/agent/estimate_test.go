package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/open330/oac/internal/workitem"
)

func TestEstimateTokensScalesWithComplexity(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.go")
	if err := os.WriteFile(f, make([]byte, 400), 0644); err != nil {
		t.Fatal(err)
	}

	simple := workitem.Item{TargetFiles: []string{f}, Complexity: workitem.ComplexitySimple}
	complexItem := workitem.Item{TargetFiles: []string{f}, Complexity: workitem.ComplexityComplex}

	simpleEst := EstimateTokens("claude-code", simple, "do the thing", 0)
	complexEst := EstimateTokens("claude-code", complexItem, "do the thing", 0)

	if complexEst.ExpectedOutput <= simpleEst.ExpectedOutput {
		t.Fatalf("expected complex output estimate > simple: %d vs %d", complexEst.ExpectedOutput, simpleEst.ExpectedOutput)
	}
	if simpleEst.ContextTokens != complexEst.ContextTokens {
		t.Fatalf("context tokens should not depend on complexity: %d vs %d", simpleEst.ContextTokens, complexEst.ContextTokens)
	}
}

func TestEstimateTokensFeasibilityCeiling(t *testing.T) {
	item := workitem.Item{Complexity: workitem.ComplexitySimple}

	under := EstimateTokens("claude-code", item, "short prompt", 100000)
	if !under.Feasible {
		t.Fatal("expected feasible with a generous ceiling")
	}

	over := EstimateTokens("claude-code", item, "short prompt", 1)
	if over.Feasible {
		t.Fatal("expected infeasible with a tiny ceiling")
	}

	noCeiling := EstimateTokens("claude-code", item, "short prompt", 0)
	if !noCeiling.Feasible {
		t.Fatal("ceiling <= 0 should mean unbounded/always feasible")
	}
}

func TestEstimateTokensMissingFilesLowersConfidence(t *testing.T) {
	present := workitem.Item{TargetFiles: nil, Complexity: workitem.ComplexitySimple}
	missing := workitem.Item{TargetFiles: []string{"/nonexistent/path/x.go"}, Complexity: workitem.ComplexitySimple}

	presentEst := EstimateTokens("claude-code", present, "p", 0)
	missingEst := EstimateTokens("claude-code", missing, "p", 0)

	if missingEst.Confidence >= presentEst.Confidence {
		t.Fatalf("expected lower confidence for item with unreadable target files: %v vs %v", missingEst.Confidence, presentEst.Confidence)
	}
	if missingEst.ContextTokens != 0 {
		t.Fatalf("expected 0 context tokens for unreadable file, got %d", missingEst.ContextTokens)
	}
}

func TestEstimateTokensPromptOverhead(t *testing.T) {
	item := workitem.Item{Complexity: workitem.ComplexitySimple}
	est := EstimateTokens("claude-code", item, "", 0)
	if est.PromptTokens != promptOverheadTokens {
		t.Fatalf("PromptTokens = %d, want exactly the overhead for an empty prompt (%d)", est.PromptTokens, promptOverheadTokens)
	}
}
