// Package worktree creates and removes the isolated git worktrees that task
// sessions run in. Each task gets its own checkout on its own branch so
// concurrent workers never touch each other's files.
package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/intexuraos/orchestrator/internal/guard"
)

// BranchPrefix is prepended to the task ID to form a task's branch name.
const BranchPrefix = "task/"

// gitRunner executes git with a working directory. Tests substitute a fake.
type gitRunner interface {
	run(dir string, args ...string) (string, error)
}

// execGit is the production runner backed by os/exec.
type execGit struct{}

func (execGit) run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w\n%s", strings.Join(args, " "), err, string(output))
	}
	return strings.TrimSpace(string(output)), nil
}

// FindGitRoot finds the root of the git repository by traversing up from
// startDir. .git can be a directory (normal repo) or a file (worktree).
func FindGitRoot(startDir string) (string, error) {
	dir := startDir
	for {
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			if info.IsDir() || info.Mode().IsRegular() {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a git repository (or any parent up to mount point)")
		}
		dir = parent
	}
}

// Manager handles git worktree operations for one repository, placing task
// worktrees under a common base directory.
type Manager struct {
	git     gitRunner
	repoDir string
	baseDir string
}

// NewManager creates a Manager rooted at the repository containing repoDir.
// Task worktrees are created under baseDir.
func NewManager(repoDir, baseDir string) (*Manager, error) {
	gitRoot, err := FindGitRoot(repoDir)
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %s", repoDir)
	}
	return &Manager{git: execGit{}, repoDir: gitRoot, baseDir: baseDir}, nil
}

// PathFor returns the worktree path a task would get. Pure function of the
// task ID and the base directory.
func (m *Manager) PathFor(taskID string) string {
	return filepath.Join(m.baseDir, taskID)
}

// BranchFor returns the branch name a task's worktree is created on.
func BranchFor(taskID string) string {
	return BranchPrefix + taskID
}

// CreateForTask creates a worktree for the task on a fresh branch from HEAD
// and returns its path.
func (m *Manager) CreateForTask(taskID string) (string, error) {
	path := m.PathFor(taskID)
	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return "", fmt.Errorf("creating worktree base directory: %w", err)
	}
	if _, err := m.git.run(m.repoDir, "worktree", "add", "-b", BranchFor(taskID), path); err != nil {
		return "", fmt.Errorf("failed to create worktree: %w", err)
	}
	return path, nil
}

// Remove deletes a worktree. If git cannot remove it cleanly the directory
// is deleted manually and stale references are pruned.
func (m *Manager) Remove(path string) error {
	if _, err := m.git.run(m.repoDir, "worktree", "remove", "--force", path); err != nil {
		_ = os.RemoveAll(path)
		_, _ = m.git.run(m.repoDir, "worktree", "prune")
		return fmt.Errorf("failed to remove worktree cleanly: %w", err)
	}
	return nil
}

// List returns the paths of all worktrees attached to the repository,
// including the main checkout.
func (m *Manager) List() ([]string, error) {
	output, err := m.git.run(m.repoDir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}

	var worktrees []string
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "worktree ") {
			worktrees = append(worktrees, strings.TrimPrefix(line, "worktree "))
		}
	}
	return worktrees, nil
}

// HasUncommittedChanges reports whether the worktree at path has local
// modifications the worker never committed.
func (m *Manager) HasUncommittedChanges(path string) (bool, error) {
	output, err := m.git.run(path, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("failed to check worktree status: %w", err)
	}
	return output != "", nil
}

// ChangedFiles returns worktree-relative paths with uncommitted changes,
// including untracked files.
func (m *Manager) ChangedFiles(path string) ([]string, error) {
	output, err := m.git.run(path, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to check worktree status: %w", err)
	}

	var files []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		_, file, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		file = strings.TrimSpace(file)
		if _, renamed, ok := strings.Cut(file, " -> "); ok {
			file = renamed
		}
		files = append(files, file)
	}
	return files, nil
}

// RedactedDiff returns the worktree's uncommitted diff with sensitive files
// replaced by a placeholder. Sensitive paths are never read: their diff is
// not requested from git at all.
func (m *Manager) RedactedDiff(path string) (string, error) {
	files, err := m.ChangedFiles(path)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, file := range files {
		if guard.IsSensitive(file) {
			fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n%s\n", file, file, guard.Redact(file, ""))
			continue
		}
		diff, err := m.git.run(path, "diff", "HEAD", "--", file)
		if err != nil {
			return "", fmt.Errorf("failed to diff %s: %w", file, err)
		}
		if diff == "" {
			continue
		}
		b.WriteString(diff)
		b.WriteString("\n")
	}
	return b.String(), nil
}
