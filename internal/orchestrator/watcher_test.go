package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeLog(t *testing.T, dir, taskID, content string) string {
	t.Helper()
	path := filepath.Join(dir, taskID+".log")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func awaitCompletion(t *testing.T, w *LogWatcher) Completion {
	t.Helper()
	select {
	case comp := <-w.Completions():
		return comp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
		return Completion{}
	}
}

func TestScanExitMarker(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		content  string
		wantCode int
		wantOK   bool
	}{
		{"no marker", "agent output\nmore output\n", 0, false},
		{"clean exit", "output\ntask-exit:0\n", 0, true},
		{"failure exit", "output\ntask-exit:17\n", 17, true},
		{"marker mid-log then final", "task-exit:1\nretrying\ntask-exit:0\n", 0, true},
		{"malformed code ignored", "task-exit:abc\n", 0, false},
		{"agent echoing similar text", "the marker is task-exit:0 here\n", 0, false},
		{"empty file", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeLog(t, dir, "t-"+tt.name, tt.content)
			code, ok, err := scanExitMarker(path)
			if err != nil {
				t.Fatalf("scanExitMarker() error = %v", err)
			}
			if code != tt.wantCode || ok != tt.wantOK {
				t.Errorf("scanExitMarker() = (%d, %v), want (%d, %v)", code, ok, tt.wantCode, tt.wantOK)
			}
		})
	}
}

func TestScanExitMarkerOversizedLine(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("a", 2<<20) + "\ntask-exit:0\n"
	path := writeLog(t, dir, "t-big", content)

	code, ok, err := scanExitMarker(path)
	if err == nil {
		t.Fatal("scanExitMarker() should report the aborted scan")
	}
	if ok {
		t.Errorf("marker past the oversized line reported: code = %d", code)
	}
}

func TestLogWatcherObservesExit(t *testing.T) {
	dir := t.TempDir()
	w, err := NewLogWatcher(dir, nil)
	if err != nil {
		t.Fatalf("NewLogWatcher() error = %v", err)
	}
	defer w.Stop()
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	writeLog(t, dir, "t1", "working...\ntask-exit:2\n")

	comp := awaitCompletion(t, w)
	if comp.TaskID != "t1" || comp.ExitCode != 2 {
		t.Errorf("completion = %+v, want t1 exit 2", comp)
	}
}

func TestLogWatcherIgnoresLogsWithoutMarker(t *testing.T) {
	dir := t.TempDir()
	w, err := NewLogWatcher(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	writeLog(t, dir, "t1", "still running, no marker\n")

	select {
	case comp := <-w.Completions():
		t.Errorf("unexpected completion %+v", comp)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestLogWatcherScanCatchesPreexisting(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "old", "finished while orchestrator was down\ntask-exit:0\n")

	w, err := NewLogWatcher(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	go w.Scan()

	comp := awaitCompletion(t, w)
	if comp.TaskID != "old" || comp.ExitCode != 0 {
		t.Errorf("completion = %+v, want old exit 0", comp)
	}
}

func TestLogWatcherReportsEachTaskOnce(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "t1", "task-exit:0\n")

	w, err := NewLogWatcher(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	go func() {
		w.Scan()
		w.Scan()
	}()

	comp := awaitCompletion(t, w)
	if comp.TaskID != "t1" {
		t.Errorf("completion = %+v", comp)
	}

	select {
	case comp := <-w.Completions():
		t.Errorf("duplicate completion %+v", comp)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestLogWatcherCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "nested")
	w, err := NewLogWatcher(dir, nil)
	if err != nil {
		t.Fatalf("NewLogWatcher() error = %v", err)
	}
	w.Stop()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("log dir not created: %v", err)
	}
}
