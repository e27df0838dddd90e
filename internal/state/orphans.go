package state

import "os"

// SessionLister enumerates the task IDs that currently have a live worker
// session. Implemented by the session manager; injected here so orphan
// detection can compare persisted belief against reality without a
// dependency on the session package.
type SessionLister interface {
	ListSessions() []string
}

// OrphanReport describes the discrepancies between tracked tasks and the
// sessions and worktrees that actually exist. It is produced on startup
// after a crash so the controller can reconcile state.
type OrphanReport struct {
	// TrackedWithoutSession are task IDs marked running in state but with no
	// live session. Their workers died (or the machine rebooted) while the
	// orchestrator was down.
	TrackedWithoutSession []string

	// SessionsWithoutTask are task IDs derived from live sessions that state
	// knows nothing about. These sessions leak resources until killed.
	SessionsWithoutTask []string

	// MissingWorktrees are task IDs whose recorded worktree path no longer
	// exists on disk.
	MissingWorktrees []string
}

// Empty reports whether the reconciliation found nothing to fix.
func (r *OrphanReport) Empty() bool {
	return len(r.TrackedWithoutSession) == 0 &&
		len(r.SessionsWithoutTask) == 0 &&
		len(r.MissingWorktrees) == 0
}

// DetectOrphanWorktrees compares tracked tasks against actually-running
// sessions and on-disk worktrees. Only tasks marked running are expected to
// have a session; completed and failed tasks are not orphans.
func (st *Store) DetectOrphanWorktrees(sessions SessionLister) (*OrphanReport, error) {
	s, err := st.Load()
	if err != nil {
		return nil, err
	}

	live := make(map[string]bool)
	for _, id := range sessions.ListSessions() {
		live[id] = true
	}

	report := &OrphanReport{}

	for id, task := range s.Tasks {
		if task.Status == StatusRunning && !live[id] {
			report.TrackedWithoutSession = append(report.TrackedWithoutSession, id)
		}
		if task.WorktreePath != "" {
			if _, statErr := os.Stat(task.WorktreePath); os.IsNotExist(statErr) {
				report.MissingWorktrees = append(report.MissingWorktrees, id)
			}
		}
	}

	for id := range live {
		if _, tracked := s.Tasks[id]; !tracked {
			report.SessionsWithoutTask = append(report.SessionsWithoutTask, id)
		}
	}

	return report, nil
}
