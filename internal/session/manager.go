// Package session manages the lifecycle of worker sessions: starting an
// agent in a detached tmux session bound to a task's worktree, probing its
// liveness, and tearing it down. Sessions outlive the orchestrator process;
// the manager holds no handles, only the deterministic session name.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/intexuraos/orchestrator/internal/errors"
	"github.com/intexuraos/orchestrator/internal/logging"
	"github.com/intexuraos/orchestrator/internal/prompt"
	"github.com/intexuraos/orchestrator/internal/state"
	"github.com/intexuraos/orchestrator/internal/tmux"
)

// ExitMarkerPrefix is appended to a task's log file when the agent command
// exits, followed by the shell exit code. The log watcher uses it to decide
// whether a finished task completed or failed.
const ExitMarkerPrefix = "task-exit:"

// promptFileName is written into the worktree so the prompt reaches the
// agent without shell-escaping hazards.
const promptFileName = ".agent-prompt"

// DefaultGracefulStopTimeout is how long a cooperative termination is given
// to settle before the session is killed.
const DefaultGracefulStopTimeout = 500 * time.Millisecond

// DefaultHistoryLimit is the tmux scrollback size used when none is
// configured.
const DefaultHistoryLimit = 10000

// Config holds session-manager settings resolved from configuration.
type Config struct {
	// LogDir is the directory holding one append-only log file per task.
	LogDir string

	// AgentBinary is the coding-agent executable to launch.
	AgentBinary string

	// WorkerArgs maps a worker type to the extra CLI arguments selecting it.
	WorkerArgs map[string][]string

	// MachineArgs maps a machine to the extra CLI arguments selecting it.
	MachineArgs map[string][]string

	// HistoryLimit is the tmux scrollback size for worker sessions.
	// Defaults to DefaultHistoryLimit when zero or negative.
	HistoryLimit int

	// GracefulStopTimeout overrides DefaultGracefulStopTimeout when positive.
	GracefulStopTimeout time.Duration
}

// StartOptions describe the session to launch for a task.
type StartOptions struct {
	TaskID        string
	WorktreePath  string
	Prompt        string
	WorkerType    state.WorkerType
	Machine       state.Machine
	LinearIssueID string
}

// Manager starts, stops, and queries worker sessions. Safe for concurrent
// use: it keeps no per-session state, so operations on different tasks never
// interfere.
type Manager struct {
	runner tmux.Runner
	cfg    Config
	log    *logging.Logger
	settle func(time.Duration) // replaced in tests
}

// NewManager creates a session manager. A nil runner uses the production
// exec-backed runner; a nil logger falls back to a no-op.
func NewManager(runner tmux.Runner, cfg Config, log *logging.Logger) *Manager {
	if runner == nil {
		runner = tmux.NewRunner()
	}
	if log == nil {
		log = logging.Nop()
	}
	if cfg.GracefulStopTimeout <= 0 {
		cfg.GracefulStopTimeout = DefaultGracefulStopTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	return &Manager{
		runner: runner,
		cfg:    cfg,
		log:    log.WithComponent("session"),
		settle: time.Sleep,
	}
}

// LogFilePath returns the per-task log file path: LogDir/<taskID>.log.
// Pure function of the task ID and the configured base path.
func (m *Manager) LogFilePath(taskID string) string {
	return filepath.Join(m.cfg.LogDir, taskID+".log")
}

// StartSession launches the agent for a task in a new detached tmux session
// named for the task, with the worktree as working directory and output
// appended to the task's log file. Returns a SessionStartError if the
// session cannot be created; that is fatal for the task.
func (m *Manager) StartSession(ctx context.Context, opts StartOptions) error {
	name := tmux.SessionName(opts.TaskID)
	log := m.log.WithTask(opts.TaskID)

	if m.IsSessionRunning(ctx, opts.TaskID) {
		return errors.NewSessionStartError(opts.TaskID, errors.ErrSessionAlreadyRunning)
	}

	if err := os.MkdirAll(m.cfg.LogDir, 0755); err != nil {
		return errors.NewSessionStartError(opts.TaskID, fmt.Errorf("creating log directory: %w", err))
	}

	systemPrompt := m.BuildSystemPrompt(opts.Prompt, opts.LinearIssueID)

	// Write the prompt to a file in the worktree to avoid shell escaping
	// issues when sending it through tmux.
	promptPath := filepath.Join(opts.WorktreePath, promptFileName)
	if err := os.WriteFile(promptPath, []byte(systemPrompt), 0600); err != nil {
		return errors.NewSessionStartError(opts.TaskID, fmt.Errorf("writing prompt file: %w", err))
	}

	err := m.runner.Run(ctx, "tmux", "new-session", "-d", "-s", name, "-c", opts.WorktreePath)
	if err != nil {
		_ = os.Remove(promptPath)
		return errors.NewSessionStartError(opts.TaskID, fmt.Errorf("creating tmux session: %w", err))
	}

	if err := m.runner.Run(ctx, "tmux", "set-option", "-t", name, "history-limit", strconv.Itoa(m.cfg.HistoryLimit)); err != nil {
		log.Warn("failed to set history-limit", "error", err.Error())
	}

	command := m.agentCommand(opts, promptPath)
	if err := m.runner.Run(ctx, "tmux", "send-keys", "-t", name, command, "Enter"); err != nil {
		_ = m.runner.Run(ctx, "tmux", "kill-session", "-t", name)
		_ = os.Remove(promptPath)
		return errors.NewSessionStartError(opts.TaskID, fmt.Errorf("sending agent command: %w", err))
	}

	log.Info("session started",
		"session", name,
		"worktree", opts.WorktreePath,
		"worker_type", string(opts.WorkerType),
		"machine", string(opts.Machine),
	)
	return nil
}

// agentCommand builds the shell line sent into the session: the agent binary
// with worker-type and machine selectors, reading the prompt from its file,
// output appended to the task log, followed by the exit marker.
func (m *Manager) agentCommand(opts StartOptions, promptPath string) string {
	logPath := m.LogFilePath(opts.TaskID)

	parts := []string{m.cfg.AgentBinary}
	parts = append(parts, m.cfg.WorkerArgs[string(opts.WorkerType)]...)
	parts = append(parts, m.cfg.MachineArgs[string(opts.Machine)]...)

	return fmt.Sprintf("%s \"$(cat %q)\" >> %q 2>&1; echo %q$? >> %q; rm -f %q",
		strings.Join(parts, " "), promptPath, logPath, ExitMarkerPrefix, logPath, promptPath)
}

// BuildSystemPrompt assembles the launch prompt: fixed orchestration
// instructions, the mandatory Linear directive when an issue ID is present,
// and the sanitized, truncated user prompt.
func (m *Manager) BuildSystemPrompt(userPrompt, linearIssueID string) string {
	var b strings.Builder
	b.WriteString(orchestrationInstructions)

	if linearIssueID != "" {
		fmt.Fprintf(&b, "\n\nMANDATORY FIRST STEP: before doing any other work, use the Linear tool to fetch issue %s and read its full description and comments. The task below supplements that issue.", linearIssueID)
	}

	b.WriteString("\n\n## Task\n\n")
	b.WriteString(prompt.Sanitize(userPrompt))
	return b.String()
}

// orchestrationInstructions is the fixed preamble every worker receives.
const orchestrationInstructions = `You are an autonomous coding agent launched by an orchestrator. You are working in an isolated git worktree dedicated to a single task.

Rules:
- Complete the task described below, then exit. Do not wait for further input.
- Commit your work to the current branch as you go. Never push, never open pull requests; the orchestrator handles delivery.
- Stay inside this worktree. Do not modify files outside it.
- Never print the contents of credential files, .env files, or private keys.`

// KillSession terminates a task's session. If graceful, a cooperative
// termination sequence (Ctrl+C) is sent and allowed to settle before the
// session is killed; otherwise the session is killed immediately. Kill is
// always best-effort cleanup: a missing target is success, and failures are
// logged, never returned.
func (m *Manager) KillSession(ctx context.Context, taskID string, graceful bool) {
	name := tmux.SessionName(taskID)
	log := m.log.WithTask(taskID)

	if graceful {
		if err := m.runner.Run(ctx, "tmux", "send-keys", "-t", name, "C-c"); err != nil {
			if !tmux.IsSessionNotFoundError(err) {
				log.Warn("failed to send interrupt", "session", name, "error", err.Error())
			}
		}
		m.settle(m.cfg.GracefulStopTimeout)
	}

	if err := m.runner.Run(ctx, "tmux", "kill-session", "-t", name); err != nil {
		if !tmux.IsSessionNotFoundError(err) {
			log.Warn("failed to kill session", "session", name, "error", err.Error())
		}
	}
}

// IsSessionRunning reports whether the task's session exists. Any failure of
// the underlying probe, including "no such session", maps to false and is
// never propagated as an error.
func (m *Manager) IsSessionRunning(ctx context.Context, taskID string) bool {
	return m.runner.Run(ctx, "tmux", "has-session", "-t", tmux.SessionName(taskID)) == nil
}

// ListSessions returns the task IDs of all live sessions carrying the
// orchestrator's naming prefix. Probe failures (including "no server
// running") yield an empty slice.
func (m *Manager) ListSessions() []string {
	out, err := m.runner.Output(context.Background(), "tmux", "list-sessions", "-F", "#{session_name}")
	if err != nil {
		return []string{}
	}

	ids := []string{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if id, ok := tmux.TaskID(line); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
