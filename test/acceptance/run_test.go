package acceptance_test

import (
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("oac run", func() {
	var tmpDir string
	var repoDir string
	var configPath string
	var agentPath string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "oac-test-*")
		Expect(err).NotTo(HaveOccurred())

		repoDir = filepath.Join(tmpDir, "repo")
		runGit(tmpDir, "init", repoDir)
		runGit(repoDir, "checkout", "-b", "main")
		writeFile(filepath.Join(repoDir, "README.md"), "hello\n")
		runGit(repoDir, "add", "README.md")
		runGit(repoDir, "commit", "-m", "initial commit")

		agentPath = filepath.Join(tmpDir, "fake-agent.sh")
		writeFakeAgent(agentPath)

		itemsPath := filepath.Join(tmpDir, "items.yaml")
		writeFile(itemsPath, `
items:
  - id: fix-readme
    title: "tighten up the readme"
    source: custom
    priority: 100
    complexity: trivial
    target_files:
      - README.md
`)

		configPath = filepath.Join(tmpDir, "oac.yaml")
		writeFile(configPath, `
providers:
  - id: reviewer
    command: "`+agentPath+`"
engine:
  concurrency: 1
  max_attempts: 1
  timeout: 10s
  base_branch: main
  branch_prefix: oac
budget:
  total: unlimited
source:
  path: `+itemsPath+`
`)
	})

	AfterEach(func() {
		exec.Command("git", "-C", repoDir, "worktree", "prune").Run()
		os.RemoveAll(tmpDir)
	})

	It("exits with code 0", func() {
		cmd := exec.Command(binaryPath, "run", configPath, repoDir)
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "output: %s", string(output))
	})

	It("creates the job's output branch", func() {
		cmd := exec.Command(binaryPath, "run", configPath, repoDir)
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "output: %s", string(output))

		out := runGitOutput(repoDir, "branch", "--list", "oac/*")
		Expect(out).To(ContainSubstring("oac/"))
	})

	It("creates a commit tagged with the worker's commit prefix", func() {
		cmd := exec.Command(binaryPath, "run", configPath, repoDir)
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "output: %s", string(output))

		branches := runGitOutput(repoDir, "for-each-ref", "--format=%(refname:short)", "refs/heads/oac/*")
		Expect(branches).NotTo(BeEmpty())

		msg := runGitOutput(repoDir, "log", "-1", "--format=%s", "--all")
		Expect(msg).To(ContainSubstring("[OAC]"))
	})

	It("writes an audit log readable via status", func() {
		cmd := exec.Command(binaryPath, "run", configPath, repoDir)
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "output: %s", string(output))

		statusCmd := exec.Command(binaryPath, "status", repoDir)
		statusOut, err := statusCmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "status output: %s", string(statusOut))
		Expect(string(statusOut)).To(ContainSubstring("completed=1"))
	})
})

var _ = Describe("oac validate", func() {
	It("reports exit code 2 for an invalid config", func() {
		tmpDir, err := os.MkdirTemp("", "oac-validate-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(tmpDir)

		badConfig := filepath.Join(tmpDir, "bad.yaml")
		writeFile(badConfig, "providers: []\n")

		cmd := exec.Command(binaryPath, "validate", badConfig)
		err = cmd.Run()
		Expect(err).To(HaveOccurred())
		exitErr, ok := err.(*exec.ExitError)
		Expect(ok).To(BeTrue())
		Expect(exitErr.ExitCode()).To(Equal(2))
	})
})
