package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/open330/oac/internal/agent"
	"github.com/open330/oac/internal/bus"
	"github.com/open330/oac/internal/config"
	"github.com/open330/oac/internal/githubguard"
	oacplan "github.com/open330/oac/internal/plan"
	"github.com/open330/oac/internal/planner"
	"github.com/open330/oac/internal/worker"
	"github.com/open330/oac/internal/workitem"
)

// githubTokenEnv is the environment variable the duplicate guard reads its
// PAT from; unset disables the GitHub-backed check (it falls back to an
// always-empty claim set, i.e. fail-open).
const githubTokenEnv = "OAC_GITHUB_TOKEN"

// buildPlan discovers work items, applies the pre-plan duplicate guard
// check and the repository's ignore-file filter, estimates
// each surviving item against the primary provider, and runs the budget
// planner over the result. When b is non-nil the discovery and planning
// milestones are published to it.
func buildPlan(ctx context.Context, cfg *config.RunConfig, reg *agent.Registry, repoDir string, b *bus.Bus) (*oacplan.ExecutionPlan, error) {
	if b != nil {
		b.Emit(bus.RepoResolved, map[string]interface{}{"path": repoDir})
	}

	items, err := workitem.NewYAMLSource(cfg.Source.Path).Discover()
	if err != nil {
		return nil, fmt.Errorf("discovering work items: %w", err)
	}
	if b != nil {
		for _, item := range items {
			b.Emit(bus.TaskDiscovered, map[string]interface{}{"taskId": item.ID, "title": item.Title, "source": item.Source})
		}
	}

	gi, err := workitem.LoadIgnoreFile(repoDir)
	if err != nil {
		return nil, fmt.Errorf("loading ignore file: %w", err)
	}
	items = workitem.FilterIgnored(items, gi)

	if cfg.GitHub.Owner != "" && cfg.GitHub.Repo != "" {
		if token := os.Getenv(githubTokenEnv); token != "" {
			client := githubguard.NewClient(ctx, cfg.GitHub.Owner, cfg.GitHub.Repo, token)
			items = githubguard.FilterPlanned(ctx, client, cfg.GitHub.TagLabel, items)
		}
	}

	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	primaryID := cfg.Providers[0].ID
	primary, err := reg.Get(primaryID, cfg.FactoryConfigs()[primaryID])
	if err != nil {
		return nil, fmt.Errorf("building primary provider %q for estimation: %w", primaryID, err)
	}

	candidates := make([]workitem.ItemEstimate, 0, len(items))
	for _, item := range items {
		prompt := worker.AssemblePrompt(item)
		est, err := primary.EstimateTokens(item, prompt)
		if err != nil {
			return nil, fmt.Errorf("estimating tokens for %q: %w", item.ID, err)
		}
		candidates = append(candidates, workitem.ItemEstimate{Item: item, Estimate: est})
	}

	p := planner.Plan(candidates, cfg.Budget.Total)
	if b != nil {
		b.Emit(bus.BudgetEstimated, map[string]interface{}{
			"totalBudget": p.TotalBudget, "reserve": p.Reserve, "remaining": p.Remaining,
		})
		for _, sel := range p.Selected {
			b.Emit(bus.TaskSelected, map[string]interface{}{"taskId": sel.Item.ID, "cumulative": sel.CumulativeUsed})
		}
	}
	return p, nil
}
