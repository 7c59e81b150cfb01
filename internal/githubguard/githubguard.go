// Package githubguard implements the duplicate guard: two fail-open checks
// against the host's open pull requests that keep concurrent peers (another
// run of this tool, a human, a second scheduler) from duplicating work
// already in flight.
package githubguard

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/open330/oac/internal/workitem"
)

// PRLister is the narrow surface the duplicate guard needs from a forge. It
// is satisfied by *Client and by any test double.
type PRLister interface {
	OpenPRs(ctx context.Context) ([]OpenPR, error)
}

// OpenPR is the subset of a pull request's fields the guard inspects.
type OpenPR struct {
	Number int
	Title  string
	Body   string
}

// Client is a thin go-github wrapper scoped to exactly the calls the
// duplicate guard needs: it is not a general GitHub API client.
type Client struct {
	gh    *github.Client
	Owner string
	Repo  string
}

// NewClient builds a Client authenticated with a personal-access or
// installation token, the simplest auth shape go-github documents for a
// single-repo, read-mostly integration.
func NewClient(ctx context.Context, owner, repo, token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)
	return &Client{gh: github.NewClient(httpClient), Owner: owner, Repo: repo}
}

// OpenPRs fetches up to 100 most-recently-updated open pull requests.
func (c *Client) OpenPRs(ctx context.Context) ([]OpenPR, error) {
	opts := &github.PullRequestListOptions{
		State:     "open",
		Sort:      "updated",
		Direction: "desc",
		ListOptions: github.ListOptions{
			PerPage: 100,
		},
	}
	prs, _, err := c.gh.PullRequests.List(ctx, c.Owner, c.Repo, opts)
	if err != nil {
		return nil, fmt.Errorf("githubguard: listing open PRs: %w", err)
	}

	out := make([]OpenPR, 0, len(prs))
	for _, pr := range prs {
		out = append(out, OpenPR{
			Number: pr.GetNumber(),
			Title:  pr.GetTitle(),
			Body:   pr.GetBody(),
		})
	}
	return out, nil
}

// CreatePR opens a pull request from head into base and returns its number
// and HTML URL.
func (c *Client) CreatePR(ctx context.Context, head, base, title, body string) (int, string, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, c.Owner, c.Repo, &github.NewPullRequest{
		Title: github.String(title),
		Head:  github.String(head),
		Base:  github.String(base),
		Body:  github.String(body),
	})
	if err != nil {
		return 0, "", fmt.Errorf("githubguard: creating PR for %s: %w", head, err)
	}
	return pr.GetNumber(), pr.GetHTMLURL(), nil
}

// closesRE matches "Fixes #123", "Closes #123", "Resolves #123" (case
// insensitive).
var closesRE = regexp.MustCompile(`(?i)\b(?:fixes|closes|resolves)\s*#(\d+)`)

// referencedIssues extracts every issue number a PR body claims to close.
func referencedIssues(body string) map[int]bool {
	out := make(map[int]bool)
	for _, m := range closesRE.FindAllStringSubmatch(body, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			out[n] = true
		}
	}
	return out
}

// taggedPRs filters prs to those whose title begins with tag, the system's
// identifying prefix for PRs it created.
func taggedPRs(prs []OpenPR, tag string) []OpenPR {
	var out []OpenPR
	for _, pr := range prs {
		if strings.HasPrefix(pr.Title, tag) {
			out = append(out, pr)
		}
	}
	return out
}

// ClaimedIssues returns the set of issue numbers already claimed by an open,
// tag-prefixed PR. Fail-open: a lister error yields an empty (non-blocking)
// set rather than propagating the failure to the caller.
func ClaimedIssues(ctx context.Context, lister PRLister, tag string) map[int]bool {
	claimed := make(map[int]bool)
	prs, err := lister.OpenPRs(ctx)
	if err != nil {
		return claimed
	}
	for _, pr := range taggedPRs(prs, tag) {
		for n := range referencedIssues(pr.Body) {
			claimed[n] = true
		}
	}
	return claimed
}

// HasOpenPR reports whether any open, tag-prefixed PR already claims
// issueNumber. Fail-open: a lister error returns false — better to risk a
// spurious duplicate PR than to silently drop work.
func HasOpenPR(ctx context.Context, lister PRLister, tag string, issueNumber int) bool {
	if issueNumber == 0 {
		return false
	}
	return ClaimedIssues(ctx, lister, tag)[issueNumber]
}

// FilterPlanned is the pre-plan check: it drops any work item
// whose linked issue is already claimed by an open, tag-prefixed PR, so the
// planner never spends budget on duplicated work. Items with no linked
// issue always pass through.
func FilterPlanned(ctx context.Context, lister PRLister, tag string, items []workitem.Item) []workitem.Item {
	claimed := ClaimedIssues(ctx, lister, tag)
	if len(claimed) == 0 {
		return items
	}
	out := make([]workitem.Item, 0, len(items))
	for _, item := range items {
		if item.LinkedIssue != nil && claimed[item.LinkedIssue.Number] {
			continue
		}
		out = append(out, item)
	}
	return out
}

// AllowPush is the pre-push check: it re-queries the open-PR
// list immediately before pushing a job's branch and reports whether the
// push should proceed. Items with no linked issue are always allowed.
func AllowPush(ctx context.Context, lister PRLister, tag string, item workitem.Item) bool {
	if item.LinkedIssue == nil {
		return true
	}
	return !HasOpenPR(ctx, lister, tag, item.LinkedIssue.Number)
}
