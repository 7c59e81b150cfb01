package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/open330/oac/internal/bus"
	"github.com/open330/oac/internal/config"
	"github.com/open330/oac/internal/execengine"
	"github.com/open330/oac/internal/githubguard"
	"github.com/open330/oac/internal/gitrepo"
	"github.com/open330/oac/internal/workitem"
)

// publishResults pushes each completed job's branch and opens a pull request
// for it. The open-PR list is re-checked immediately before each push so
// that when a concurrent peer opened a PR for the same issue mid-run, the
// peer's PR wins and this job's branch is simply not pushed.
//
// Publishing is best-effort throughout: a failed push or PR creation is
// reported and skipped, never failing the run whose work it delivers.
func publishResults(ctx context.Context, cfg *config.RunConfig, repoDir string, b *bus.Bus, completed []*execengine.Job) {
	if cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "" {
		return
	}
	token := os.Getenv(githubTokenEnv)
	if token == "" {
		return
	}
	repo := gitrepo.New(repoDir)
	if !repo.HasRemote("origin") {
		fmt.Fprintln(os.Stderr, "warning: github publishing configured but repository has no origin remote; skipping")
		return
	}

	client := githubguard.NewClient(ctx, cfg.GitHub.Owner, cfg.GitHub.Repo, token)
	tag := cfg.GitHub.TagLabel

	for _, job := range completed {
		if job.Item.Mode != workitem.ModeNewBranchPR {
			continue
		}
		if !githubguard.AllowPush(ctx, client, tag, job.Item) {
			fmt.Fprintf(os.Stderr, "skipping push for %s: an open PR already claims issue #%d\n",
				job.Item.ID, job.Item.LinkedIssue.Number)
			continue
		}
		if err := repo.Push("origin", job.Branch); err != nil {
			fmt.Fprintf(os.Stderr, "warning: pushing %s: %s\n", job.Branch, err)
			continue
		}

		title := strings.TrimSpace(tag + " " + job.Item.Title)
		var body strings.Builder
		body.WriteString(job.Item.Description)
		if job.Item.LinkedIssue != nil {
			fmt.Fprintf(&body, "\n\nFixes #%d\n", job.Item.LinkedIssue.Number)
		}

		number, url, err := client.CreatePR(ctx, job.Branch, cfg.Engine.BaseBranch, title, body.String())
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: creating PR for %s: %s\n", job.Branch, err)
			continue
		}
		b.Emit(bus.PRCreated, map[string]interface{}{
			"jobId":  job.ID,
			"number": number,
			"url":    url,
			"branch": job.Branch,
		})
		fmt.Printf("created PR #%d for %s (%s)\n", number, job.Item.ID, url)
	}
}
