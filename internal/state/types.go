// Package state owns the orchestrator's durable state: the task table, the
// pending-webhook queue, and the GitHub token. The Store is the single logical
// owner of the persisted JSON document; every caller works on an independent
// deep copy obtained from Load, and mutations go through a serialized
// load-mutate-save cycle so concurrent task operations cannot race on the
// state file.
package state

import "time"

// WorkerType selects the agent model/backend a task runs on.
type WorkerType string

// Supported worker types.
const (
	WorkerOpus WorkerType = "opus"
	WorkerAuto WorkerType = "auto"
	WorkerGLM  WorkerType = "glm"
)

// Machine selects the host class a task's session runs on.
type Machine string

// Supported machines.
const (
	MachineMac Machine = "mac"
	MachineVM  Machine = "vm"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task lifecycle states.
const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Task is a single agent task tracked by the orchestrator. It is created on
// task request, mutated on status transitions, and retained in state until
// explicitly pruned.
type Task struct {
	ID            string     `json:"id"`
	WorktreePath  string     `json:"worktreePath"`
	Prompt        string     `json:"prompt"`
	WorkerType    WorkerType `json:"workerType"`
	Machine       Machine    `json:"machine"`
	LinearIssueID string     `json:"linearIssueId,omitempty"`
	Status        TaskStatus `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// WebhookError carries the failure message in a webhook payload.
type WebhookError struct {
	Message string `json:"message"`
}

// WebhookPayload is the body of a task-completion notification.
type WebhookPayload struct {
	TaskID   string        `json:"taskId"`
	Status   TaskStatus    `json:"status"` // completed or failed
	Duration int64         `json:"duration"`
	Error    *WebhookError `json:"error,omitempty"`
}

// PendingWebhook is a delivery that exhausted its immediate retries and is
// queued for replay. Entries are removed on successful delivery or when
// CreatedAt is more than 24 hours old, regardless of delivery outcome.
type PendingWebhook struct {
	URL       string         `json:"url"`
	Secret    string         `json:"secret"`
	Payload   WebhookPayload `json:"payload"`
	TaskID    string         `json:"taskId"`
	Attempts  int            `json:"attempts"`
	CreatedAt int64          `json:"createdAt"` // epoch milliseconds
}

// State is the full orchestrator state persisted as a single JSON document.
type State struct {
	Tasks           map[string]*Task `json:"tasks"`
	GitHubToken     *string          `json:"githubToken"`
	PendingWebhooks []PendingWebhook `json:"pendingWebhooks"`
}

// Empty returns the canonical empty state, used as both the default when no
// state file exists and as an explicit reset.
func Empty() *State {
	return &State{
		Tasks:           make(map[string]*Task),
		GitHubToken:     nil,
		PendingWebhooks: make([]PendingWebhook, 0),
	}
}

// Clone returns a deep copy of the state. Load returns clones so no caller
// can mutate shared memory without an explicit save cycle.
func (s *State) Clone() *State {
	out := &State{
		Tasks:           make(map[string]*Task, len(s.Tasks)),
		PendingWebhooks: make([]PendingWebhook, len(s.PendingWebhooks)),
	}
	for id, task := range s.Tasks {
		taskCopy := *task
		out.Tasks[id] = &taskCopy
	}
	if s.GitHubToken != nil {
		token := *s.GitHubToken
		out.GitHubToken = &token
	}
	for i, pw := range s.PendingWebhooks {
		pwCopy := pw
		if pw.Payload.Error != nil {
			errCopy := *pw.Payload.Error
			pwCopy.Payload.Error = &errCopy
		}
		out.PendingWebhooks[i] = pwCopy
	}
	return out
}
