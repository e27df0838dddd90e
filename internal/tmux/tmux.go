// Package tmux provides session naming and a thin, mockable command layer
// over the tmux binary.
//
// Worker sessions are independent OS-level processes that outlive any single
// orchestrator invocation, so the orchestrator never holds a live handle to
// them: it addresses each session by a stable name derived from the task ID
// and issues named start/kill/query commands. That naming discipline is what
// lets the design survive orchestrator crashes and restarts.
package tmux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// SessionPrefix is prepended to every task ID to form its session name.
// All sessions carrying this prefix belong to the orchestrator.
const SessionPrefix = "cc-task-"

// DefaultCommandTimeout bounds every individual tmux invocation. tmux
// commands are local and fast; anything slower means the server is wedged.
const DefaultCommandTimeout = 5 * time.Second

// SessionName returns the deterministic session name for a task.
func SessionName(taskID string) string {
	return SessionPrefix + taskID
}

// TaskID extracts the task ID from a session name. The second return is
// false when the name does not carry the orchestrator prefix.
func TaskID(sessionName string) (string, bool) {
	return strings.CutPrefix(sessionName, SessionPrefix)
}

// Runner executes external commands. The production implementation shells
// out; tests substitute a fake to exercise session logic without tmux.
type Runner interface {
	// Run executes the command and returns its error status.
	Run(ctx context.Context, name string, args ...string) error

	// Output executes the command and returns its trimmed stdout.
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct{}

// NewRunner returns the production command runner.
func NewRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command, discarding stdout. Stderr is folded into the
// returned error so callers can classify tmux failures by message.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return commandError(err, stderr.Bytes())
	}
	return nil
}

// Output executes the command and returns its trimmed stdout. Stderr is
// folded into the returned error, as in Run.
func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", commandError(err, stderr.Bytes())
	}
	return strings.TrimSpace(stdout.String()), nil
}

func commandError(err error, stderr []byte) error {
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultCommandTimeout)
}

// IsSessionNotFoundError reports whether the error indicates a tmux session
// or server that does not exist. This is the expected outcome when probing
// or cleaning up sessions that already ended.
func IsSessionNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "session not found") ||
		strings.Contains(msg, "no server running") ||
		strings.Contains(msg, "can't find session")
}
