package worktree

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeGit records git invocations and returns scripted output keyed by the
// first git argument.
type fakeGit struct {
	calls  [][]string
	dirs   []string
	output map[string]string
	errOn  map[string]error
}

func newFakeGit() *fakeGit {
	return &fakeGit{output: map[string]string{}, errOn: map[string]error{}}
}

func (f *fakeGit) run(dir string, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	f.dirs = append(f.dirs, dir)
	if err, ok := f.errOn[args[0]]; ok {
		return "", err
	}
	return f.output[args[0]], nil
}

func newTestManager(t *testing.T, git *fakeGit) *Manager {
	t.Helper()
	return &Manager{git: git, repoDir: "/repo", baseDir: filepath.Join(t.TempDir(), "trees")}
}

func TestFindGitRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindGitRoot(nested)
	if err != nil {
		t.Fatalf("FindGitRoot() error = %v", err)
	}
	if got != root {
		t.Errorf("FindGitRoot() = %q, want %q", got, root)
	}
}

func TestFindGitRootWorktreeFile(t *testing.T) {
	// In a linked worktree .git is a file, not a directory.
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".git"), []byte("gitdir: /elsewhere\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := FindGitRoot(root)
	if err != nil || got != root {
		t.Errorf("FindGitRoot() = (%q, %v), want (%q, nil)", got, err, root)
	}
}

func TestFindGitRootNotARepo(t *testing.T) {
	if _, err := FindGitRoot(t.TempDir()); err == nil {
		t.Error("FindGitRoot() should fail outside a repository")
	}
}

func TestCreateForTask(t *testing.T) {
	git := newFakeGit()
	m := newTestManager(t, git)

	path, err := m.CreateForTask("t1")
	if err != nil {
		t.Fatalf("CreateForTask() error = %v", err)
	}
	if path != m.PathFor("t1") {
		t.Errorf("path = %q, want %q", path, m.PathFor("t1"))
	}

	if len(git.calls) != 1 {
		t.Fatalf("git called %d times, want 1", len(git.calls))
	}
	call := strings.Join(git.calls[0], " ")
	if call != "worktree add -b task/t1 "+path {
		t.Errorf("git args = %q", call)
	}
	if git.dirs[0] != "/repo" {
		t.Errorf("git ran in %q, want repo root", git.dirs[0])
	}
}

func TestCreateForTaskFailure(t *testing.T) {
	git := newFakeGit()
	git.errOn["worktree"] = errors.New("fatal: branch already exists")
	m := newTestManager(t, git)

	if _, err := m.CreateForTask("t1"); err == nil {
		t.Error("CreateForTask() should propagate git failure")
	}
}

func TestRemoveFallsBackOnFailure(t *testing.T) {
	git := newFakeGit()
	m := newTestManager(t, git)

	stale := filepath.Join(t.TempDir(), "stale")
	if err := os.MkdirAll(stale, 0755); err != nil {
		t.Fatal(err)
	}
	git.errOn["worktree"] = errors.New("fatal: working tree is dirty")

	if err := m.Remove(stale); err == nil {
		t.Error("Remove() should report the unclean removal")
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("directory should be removed manually on git failure")
	}
}

func TestList(t *testing.T) {
	git := newFakeGit()
	git.output["worktree"] = "worktree /repo\nHEAD abc\n\nworktree /trees/t1\nHEAD def\nbranch refs/heads/task/t1"
	m := newTestManager(t, git)

	got, err := m.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 || got[0] != "/repo" || got[1] != "/trees/t1" {
		t.Errorf("List() = %v", got)
	}
}

func TestHasUncommittedChanges(t *testing.T) {
	git := newFakeGit()
	m := newTestManager(t, git)

	git.output["status"] = ""
	if dirty, err := m.HasUncommittedChanges("/trees/t1"); err != nil || dirty {
		t.Errorf("clean tree: (%v, %v)", dirty, err)
	}

	git.output["status"] = " M main.go"
	if dirty, err := m.HasUncommittedChanges("/trees/t1"); err != nil || !dirty {
		t.Errorf("dirty tree: (%v, %v)", dirty, err)
	}
}

func TestChangedFiles(t *testing.T) {
	git := newFakeGit()
	m := newTestManager(t, git)

	git.output["status"] = " M main.go\n?? notes.txt\nR  old.go -> new.go"
	got, err := m.ChangedFiles("/trees/t1")
	if err != nil {
		t.Fatalf("ChangedFiles() error = %v", err)
	}
	want := []string{"main.go", "notes.txt", "new.go"}
	if len(got) != len(want) {
		t.Fatalf("ChangedFiles() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ChangedFiles()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRedactedDiff(t *testing.T) {
	git := newFakeGit()
	m := newTestManager(t, git)

	git.output["status"] = " M main.go\n?? .env"
	git.output["diff"] = "diff --git a/main.go b/main.go\n+changed"

	got, err := m.RedactedDiff("/trees/t1")
	if err != nil {
		t.Fatalf("RedactedDiff() error = %v", err)
	}
	if !strings.Contains(got, "+changed") {
		t.Errorf("diff for plain file missing: %q", got)
	}
	if !strings.Contains(got, "[redacted: sensitive file]") {
		t.Errorf("sensitive file not redacted: %q", got)
	}

	// The sensitive file's content must never be requested from git.
	for _, call := range git.calls {
		if call[0] == "diff" && call[len(call)-1] == ".env" {
			t.Errorf("diff requested for sensitive file: %v", call)
		}
	}
}

func TestBranchFor(t *testing.T) {
	if got := BranchFor("abc"); got != "task/abc" {
		t.Errorf("BranchFor() = %q", got)
	}
}
