// Package sandbox manages per-job git worktrees: the isolated working
// directories each execution attempt runs an agent inside.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/open330/oac/internal/fileutil"
	"github.com/open330/oac/internal/gitrepo"
)

// branchNamePattern is the strict allow-list for job branch names: git
// itself accepts far more, but anything outside this set is rejected before
// ever reaching a shell-invoked git command.
var branchNamePattern = regexp.MustCompile(`^[A-Za-z0-9/_.-]+$`)

// ValidateBranchName rejects branch names outside the allow-list, including
// attempts to traverse out of the repository via "..".
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("sandbox: branch name must not be empty")
	}
	if !branchNamePattern.MatchString(name) {
		return fmt.Errorf("sandbox: branch name %q contains disallowed characters", name)
	}
	if containsDotDot(name) {
		return fmt.Errorf("sandbox: branch name %q must not contain '..'", name)
	}
	return nil
}

func containsDotDot(name string) bool {
	for i := 0; i+1 < len(name); i++ {
		if name[i] == '.' && name[i+1] == '.' {
			return true
		}
	}
	return false
}

// worktreeMu serializes every git worktree add/remove/prune across the
// process: concurrent jobs each get their own working directory, but the
// underlying git worktree bookkeeping in .git/worktrees is not safe for
// concurrent mutation.
var worktreeMu sync.Mutex

// Sandbox is a single job's isolated worktree.
type Sandbox struct {
	Path   string
	Branch string
	// BaseRef is the ref the worktree branched from — "origin/<base>" when an
	// origin remote tracks the base branch, the local base branch otherwise.
	// Diffs computing a job's changed files use this same ref.
	BaseRef string
	repo    *gitrepo.Repo
}

// Create allocates a new worktree at a job-specific path, branching off
// baseBranch. repoDir is the primary repository's working directory.
func Create(repoDir, branch, baseBranch string) (*Sandbox, error) {
	if err := ValidateBranchName(branch); err != nil {
		return nil, err
	}

	root := fileutil.WorktreeRoot(repoDir)
	if err := fileutil.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("sandbox: creating worktree root: %w", err)
	}
	path := filepath.Join(root, sanitizePathComponent(branch))

	repo := gitrepo.New(repoDir)

	worktreeMu.Lock()
	defer worktreeMu.Unlock()

	if repo.BranchExists(branch) {
		return nil, fmt.Errorf("sandbox: branch %q already exists", branch)
	}
	baseRef := baseBranch
	if repo.HasRemote("origin") && repo.BranchExists("origin/"+baseBranch) {
		baseRef = "origin/" + baseBranch
	}
	if err := repo.CreateWorktree(path, branch, baseRef); err != nil {
		return nil, fmt.Errorf("sandbox: creating worktree: %w", err)
	}

	wtRepo := gitrepo.New(path)
	wtRepo.EnsureIdentity()

	return &Sandbox{Path: path, Branch: branch, BaseRef: baseRef, repo: wtRepo}, nil
}

// sanitizePathComponent maps a branch name (which may contain "/") to a
// single filesystem path component, so e.g. "oac/job-1" becomes a worktree
// directory named "oac__job-1" rather than a nested directory tree.
func sanitizePathComponent(branch string) string {
	out := make([]byte, len(branch))
	for i := 0; i < len(branch); i++ {
		if branch[i] == '/' {
			out[i] = '_'
		} else {
			out[i] = branch[i]
		}
	}
	return string(out)
}

// Repo returns the gitrepo.Repo rooted at this sandbox's worktree.
func (s *Sandbox) Repo() *gitrepo.Repo { return s.repo }

// Release removes the worktree and prunes stale administrative state. It is
// always called once a job attempt's result (success or failure) has been
// captured — the worktree itself is disposable.
func (s *Sandbox) Release(repoDir string) error {
	worktreeMu.Lock()
	defer worktreeMu.Unlock()

	mainRepo := gitrepo.New(repoDir)
	if err := mainRepo.RemoveWorktree(s.Path); err != nil {
		// Worktree directory may already be gone (e.g. killed job cleanup
		// raced with a manual rm); fall back to best-effort removal so a
		// stuck sandbox never blocks the rest of the run.
		_ = os.RemoveAll(s.Path)
	}
	return mainRepo.PruneWorktrees()
}
