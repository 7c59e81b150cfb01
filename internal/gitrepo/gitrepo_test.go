package gitrepo

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %s: %v", args, out, err)
		}
	}
	run("init", "-b", "main")
	run("config", "user.name", "test")
	run("config", "user.email", "test@example.com")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}
	run("add", "-A")
	run("commit", "-m", "initial")
	return dir
}

func TestWorktreeLifecycle(t *testing.T) {
	dir := initRepo(t)
	repo := New(dir)

	head, err := repo.RevParse("HEAD")
	if err != nil || head == "" {
		t.Fatalf("RevParse(HEAD) = %q, %v", head, err)
	}

	wtPath := filepath.Join(t.TempDir(), "wt1")
	if err := repo.CreateWorktree(wtPath, "oac/job-1", "main"); err != nil {
		t.Fatalf("CreateWorktree: %v", err)
	}
	if !repo.BranchExists("oac/job-1") {
		t.Fatal("expected branch oac/job-1 to exist")
	}

	wtRepo := New(wtPath)
	if err := os.WriteFile(filepath.Join(wtPath, "new.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	changed, err := wtRepo.HasChanges()
	if err != nil || !changed {
		t.Fatalf("HasChanges = %v, %v", changed, err)
	}
	if err := wtRepo.StageAll(); err != nil {
		t.Fatalf("StageAll: %v", err)
	}
	if err := wtRepo.Commit("add new file"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	files, err := wtRepo.ChangedFiles("main")
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	if len(files) != 1 || files[0] != "new.txt" {
		t.Fatalf("ChangedFiles = %v", files)
	}

	if err := repo.RemoveWorktree(wtPath); err != nil {
		t.Fatalf("RemoveWorktree: %v", err)
	}
}

func TestPushUploadsBranchToRemote(t *testing.T) {
	dir := initRepo(t)
	repo := New(dir)

	bareDir := t.TempDir()
	run := func(d string, args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = d
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %s: %v", args, out, err)
		}
	}
	run(bareDir, "init", "--bare", "-b", "main")
	run(dir, "remote", "add", "origin", bareDir)

	if !repo.HasRemote("origin") {
		t.Fatal("expected origin remote to be detected")
	}
	if err := repo.Push("origin", "main"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	remote := New(bareDir)
	if !remote.BranchExists("main") {
		t.Fatal("expected main to exist on the remote after Push")
	}
}
