package fileutil

import "path/filepath"

// OACSubdir builds a path to a subdirectory within a repo's .oac run directory
// (status files, worktree roots, audit logs).
func OACSubdir(repoDir, subdir string) string {
	return filepath.Join(repoDir, ".oac", subdir)
}

// WorktreeRoot returns the parent directory under which per-job worktrees
// are created, mirroring the <repoParent>/.oac-worktrees/ convention.
func WorktreeRoot(repoDir string) string {
	return filepath.Join(filepath.Dir(repoDir), ".oac-worktrees")
}
