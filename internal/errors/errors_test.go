package errors

import (
	"fmt"
	"os"
	"testing"
)

func TestSessionStartError(t *testing.T) {
	cause := New("tmux: command not found")
	err := NewSessionStartError("task-42", cause)

	if got := err.Error(); got != "session start failed [task=task-42]: tmux: command not found" {
		t.Errorf("Error() = %q", got)
	}
	if !Is(err, cause) {
		t.Error("Is() should match the wrapped cause")
	}
	var target *SessionStartError
	if !As(err, &target) {
		t.Fatal("As() should match *SessionStartError")
	}
	if target.TaskID != "task-42" {
		t.Errorf("TaskID = %q, want %q", target.TaskID, "task-42")
	}
}

func TestSessionStartErrorNilCause(t *testing.T) {
	err := NewSessionStartError("t1", nil)
	if got := err.Error(); got != "session start failed [task=t1]" {
		t.Errorf("Error() = %q", got)
	}
	if Unwrap(err) != nil {
		t.Error("Unwrap() should return nil for nil cause")
	}
}

func TestStateIOError(t *testing.T) {
	err := NewStateIOError("load", "/tmp/state.json", os.ErrNotExist)

	if !Is(err, os.ErrNotExist) {
		t.Error("Is() should match the wrapped cause")
	}
	var target *StateIOError
	if !As(err, &target) {
		t.Fatal("As() should match *StateIOError")
	}
	if target.Op != "load" || target.Path != "/tmp/state.json" {
		t.Errorf("Op=%q Path=%q", target.Op, target.Path)
	}
}

func TestStateIOErrorThroughWrapping(t *testing.T) {
	base := NewStateIOError("save", "/tmp/state.json", os.ErrPermission)
	wrapped := fmt.Errorf("sweep failed: %w", base)

	var target *StateIOError
	if !As(wrapped, &target) {
		t.Error("As() should find StateIOError through fmt.Errorf wrapping")
	}
	if !Is(wrapped, os.ErrPermission) {
		t.Error("Is() should find the root cause through wrapping")
	}
}

func TestIsFatalForTask(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"session start", NewSessionStartError("t1", New("boom")), true},
		{"state io", NewStateIOError("load", "p", New("boom")), true},
		{"wrapped session start", Wrap(NewSessionStartError("t1", nil), "starting"), true},
		{"plain error", New("transient"), false},
		{"sentinel", ErrTaskNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatalForTask(tt.err); got != tt.want {
				t.Errorf("IsFatalForTask() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	err := Wrap(ErrTaskNotFound, "completing task")
	if !Is(err, ErrTaskNotFound) {
		t.Error("wrapped error should match sentinel")
	}
	if got := err.Error(); got != "completing task: task not found" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(ErrSessionAlreadyRunning, "starting task %s", "t-9")
	if !Is(err, ErrSessionAlreadyRunning) {
		t.Error("wrapped error should match sentinel")
	}
	if got := err.Error(); got != "starting task t-9: session already running for task" {
		t.Errorf("Error() = %q", got)
	}
}
