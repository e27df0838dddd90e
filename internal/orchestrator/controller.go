// Package orchestrator ties the task lifecycle together: it accepts task
// requests, launches worker sessions, records status transitions in durable
// state, observes completions through the log watcher, and hands outcomes to
// the webhook client. It owns no state of its own; everything it believes is
// either in the state store or observable from the session layer.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/intexuraos/orchestrator/internal/config"
	"github.com/intexuraos/orchestrator/internal/errors"
	"github.com/intexuraos/orchestrator/internal/logging"
	"github.com/intexuraos/orchestrator/internal/metrics"
	"github.com/intexuraos/orchestrator/internal/session"
	"github.com/intexuraos/orchestrator/internal/state"
	"github.com/intexuraos/orchestrator/internal/webhook"
	"github.com/intexuraos/orchestrator/internal/worktree"
)

// TaskRequest describes a task to start. An empty ID gets a generated one.
type TaskRequest struct {
	ID            string
	WorktreePath  string
	Prompt        string
	WorkerType    state.WorkerType
	Machine       state.Machine
	LinearIssueID string
}

// Controller coordinates sessions, state, and notifications per task.
type Controller struct {
	store     *state.Store
	sessions  *session.Manager
	webhooks  *webhook.Client
	worktrees *worktree.Manager // nil when automatic worktree creation is disabled
	cfg       *config.Config
	log       *logging.Logger
	now       func() time.Time // replaced in tests
}

// NewController wires a controller from its collaborators. A nil worktree
// manager disables automatic worktree creation; a nil logger falls back to a
// no-op.
func NewController(store *state.Store, sessions *session.Manager, webhooks *webhook.Client, worktrees *worktree.Manager, cfg *config.Config, log *logging.Logger) *Controller {
	if log == nil {
		log = logging.Nop()
	}
	return &Controller{
		store:     store,
		sessions:  sessions,
		webhooks:  webhooks,
		worktrees: worktrees,
		cfg:       cfg,
		log:       log.WithComponent("orchestrator"),
		now:       time.Now,
	}
}

// StartTask records the task and launches its worker session. The task is
// persisted as pending before launch and moved to running on success, so a
// crash between the two leaves a visible pending task rather than an
// untracked session. A launch failure marks the task failed and propagates.
func (c *Controller) StartTask(ctx context.Context, req TaskRequest) (*state.Task, error) {
	if req.ID == "" {
		req.ID = newTaskID()
	}
	if req.WorkerType == "" {
		req.WorkerType = state.WorkerAuto
	}
	if req.Machine == "" {
		req.Machine = state.MachineMac
	}
	log := c.log.WithTask(req.ID)

	if c.sessions.IsSessionRunning(ctx, req.ID) {
		return nil, errors.NewSessionStartError(req.ID, errors.ErrSessionAlreadyRunning)
	}

	if req.WorktreePath == "" {
		if c.worktrees == nil {
			return nil, errors.NewSessionStartError(req.ID,
				errors.New("no worktree path given and automatic worktree creation is not configured"))
		}
		path, err := c.worktrees.CreateForTask(req.ID)
		if err != nil {
			return nil, errors.NewSessionStartError(req.ID, err)
		}
		req.WorktreePath = path
		log.Info("worktree created", "path", path)
	}

	now := c.now()
	task := &state.Task{
		ID:            req.ID,
		WorktreePath:  req.WorktreePath,
		Prompt:        req.Prompt,
		WorkerType:    req.WorkerType,
		Machine:       req.Machine,
		LinearIssueID: req.LinearIssueID,
		Status:        state.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := c.store.Update(func(s *state.State) error {
		if existing, ok := s.Tasks[task.ID]; ok && existing.Status == state.StatusRunning {
			return errors.NewSessionStartError(task.ID, errors.ErrSessionAlreadyRunning)
		}
		s.Tasks[task.ID] = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = c.sessions.StartSession(ctx, session.StartOptions{
		TaskID:        task.ID,
		WorktreePath:  task.WorktreePath,
		Prompt:        task.Prompt,
		WorkerType:    task.WorkerType,
		Machine:       task.Machine,
		LinearIssueID: task.LinearIssueID,
	})
	if err != nil {
		if uerr := c.setStatus(task.ID, state.StatusFailed); uerr != nil {
			log.Error("failed to record launch failure", "error", uerr.Error())
		}
		return nil, err
	}

	metrics.SessionsStarted.Inc()
	if err := c.setStatus(task.ID, state.StatusRunning); err != nil {
		return nil, err
	}
	task.Status = state.StatusRunning
	log.Info("task started", "worktree", task.WorktreePath, "worker_type", string(task.WorkerType))
	return task, nil
}

// CompleteTask records a task's terminal status from its exit code, reaps the
// session, and delivers the completion webhook. Exit code zero completes the
// task; anything else fails it with the code in the notification. A task
// already in a terminal status is left untouched, which makes replayed
// completion observations (startup scan plus reconcile) idempotent.
func (c *Controller) CompleteTask(ctx context.Context, taskID string, exitCode int) error {
	log := c.log.WithTask(taskID)

	var task *state.Task
	err := c.store.Update(func(s *state.State) error {
		t, ok := s.Tasks[taskID]
		if !ok {
			return errors.Wrapf(errors.ErrTaskNotFound, "completing task %s", taskID)
		}
		if t.Status == state.StatusCompleted || t.Status == state.StatusFailed {
			return nil
		}
		if exitCode == 0 {
			t.Status = state.StatusCompleted
		} else {
			t.Status = state.StatusFailed
		}
		t.UpdatedAt = c.now()
		taskCopy := *t
		task = &taskCopy
		return nil
	})
	if err != nil {
		return err
	}
	if task == nil {
		return nil
	}

	metrics.TasksFinished.WithLabelValues(string(task.Status)).Inc()
	log.Info("task finished", "status", string(task.Status), "exit_code", exitCode)

	// The agent exited but its shell keeps the session alive; reap it.
	c.sessions.KillSession(ctx, taskID, false)
	metrics.SessionsKilled.WithLabelValues("force").Inc()

	c.notify(ctx, task, exitCode)
	return nil
}

// StopTask terminates a running task on request: the session is killed
// (cooperatively when graceful), the task is marked failed, and a
// notification goes out like any other failure.
func (c *Controller) StopTask(ctx context.Context, taskID string, graceful bool) error {
	s, err := c.store.Load()
	if err != nil {
		return err
	}
	if _, ok := s.Tasks[taskID]; !ok {
		return errors.Wrapf(errors.ErrTaskNotFound, "stopping task %s", taskID)
	}

	c.sessions.KillSession(ctx, taskID, graceful)
	mode := "force"
	if graceful {
		mode = "graceful"
	}
	metrics.SessionsKilled.WithLabelValues(mode).Inc()

	return c.CompleteTask(ctx, taskID, -1)
}

// notify builds and sends the completion payload when a webhook destination
// is configured. Delivery failures are typed results the webhook client has
// already queued or logged; nothing propagates from here.
func (c *Controller) notify(ctx context.Context, task *state.Task, exitCode int) {
	if c.cfg.Webhook.URL == "" {
		return
	}

	payload := state.WebhookPayload{
		TaskID:   task.ID,
		Status:   task.Status,
		Duration: task.UpdatedAt.Sub(task.CreatedAt).Milliseconds(),
	}
	if task.Status == state.StatusFailed {
		payload.Error = &state.WebhookError{Message: fmt.Sprintf("task exited with code %d", exitCode)}
	}

	c.webhooks.Send(ctx, webhook.Request{
		URL:     c.cfg.Webhook.URL,
		Secret:  c.cfg.Webhook.Secret,
		Payload: payload,
		TaskID:  task.ID,
	})
}

// Reconcile compares persisted belief against observed sessions after a
// restart: running tasks with no live session are failed (with notification),
// and live sessions with no tracked task are killed. Returns the report for
// operator visibility.
func (c *Controller) Reconcile(ctx context.Context) (*state.OrphanReport, error) {
	report, err := c.store.DetectOrphanWorktrees(c.sessions)
	if err != nil {
		return nil, err
	}

	for _, taskID := range report.TrackedWithoutSession {
		c.log.WithTask(taskID).Warn("running task has no live session, marking failed")
		if err := c.CompleteTask(ctx, taskID, -1); err != nil {
			c.log.WithTask(taskID).Error("failed to reconcile task", "error", err.Error())
		}
	}

	for _, taskID := range report.SessionsWithoutTask {
		c.log.WithTask(taskID).Warn("live session has no tracked task, killing")
		c.sessions.KillSession(ctx, taskID, false)
		metrics.SessionsKilled.WithLabelValues("force").Inc()
	}

	return report, nil
}

// reconcileInterval is how often the running daemon re-checks session
// liveness. Catches workers that die without writing an exit marker, such as
// a killed tmux server.
const reconcileInterval = time.Minute

// Run drives the orchestrator event loop until the context is canceled: the
// watcher streams completions, the startup scan catches tasks that exited
// while no orchestrator was running, periodic reconciliation cleans up
// whatever the markers could not explain, and the sweeper replays queued
// webhooks.
func (c *Controller) Run(ctx context.Context, watcher *LogWatcher) error {
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	go c.RunSweeper(ctx)
	go func() {
		watcher.Scan()
		if _, err := c.Reconcile(ctx); err != nil {
			c.log.Error("reconcile failed", "error", err.Error())
		}
	}()

	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case comp := <-watcher.Completions():
			if err := c.CompleteTask(ctx, comp.TaskID, comp.ExitCode); err != nil {
				c.log.WithTask(comp.TaskID).Error("failed to record completion", "error", err.Error())
			}
		case <-ticker.C:
			if _, err := c.Reconcile(ctx); err != nil {
				c.log.Error("reconcile failed", "error", err.Error())
			}
		}
	}
}

// RunSweeper replays the pending-webhook queue at the configured interval
// until the context is canceled. One sweep runs immediately on entry so a
// restart drains the backlog without waiting a full interval.
func (c *Controller) RunSweeper(ctx context.Context) {
	interval := c.cfg.Webhook.RetrySweepInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := c.webhooks.RetryPending(ctx); err != nil {
			c.log.Error("pending-webhook sweep failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Controller) setStatus(taskID string, status state.TaskStatus) error {
	return c.store.Update(func(s *state.State) error {
		t, ok := s.Tasks[taskID]
		if !ok {
			return errors.Wrapf(errors.ErrTaskNotFound, "updating task %s", taskID)
		}
		t.Status = status
		t.UpdatedAt = c.now()
		return nil
	})
}

// newTaskID returns a random 12-hex-char task ID.
func newTaskID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("task-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
