package orchestrator

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/intexuraos/orchestrator/internal/logging"
	"github.com/intexuraos/orchestrator/internal/session"
)

// Completion is an observed task exit: the session's agent command finished
// and stamped its exit code into the task log.
type Completion struct {
	TaskID   string
	ExitCode int
}

// debounceWindow batches the burst of write events a single log append can
// produce before the files are scanned.
const debounceWindow = 50 * time.Millisecond

// LogWatcher observes the task-log directory for exit markers and emits one
// Completion per finished task. Detection is edge-triggered via fsnotify;
// tasks that finished while no watcher was running are caught by Scan.
type LogWatcher struct {
	dir     string
	watcher *fsnotify.Watcher
	out     chan Completion
	log     *logging.Logger

	mu       sync.Mutex
	reported map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLogWatcher creates a watcher over the given log directory. The directory
// is created if missing so the watch can be established before the first task
// starts.
func NewLogWatcher(dir string, log *logging.Logger) (*LogWatcher, error) {
	if log == nil {
		log = logging.Nop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &LogWatcher{
		dir:      dir,
		watcher:  watcher,
		out:      make(chan Completion, 16),
		log:      log.WithComponent("logwatch"),
		reported: make(map[string]bool),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching and emitting completions.
func (w *LogWatcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.watchLoop()
	return nil
}

// Completions is the stream of observed task exits.
func (w *LogWatcher) Completions() <-chan Completion {
	return w.out
}

// Stop ends the watch and releases the underlying watcher.
func (w *LogWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
}

// Scan inspects every log file in the directory once, emitting completions
// for any exit marker not yet reported. Called on startup to catch tasks
// that finished while the orchestrator was down.
func (w *LogWatcher) Scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn("failed to scan log directory", "dir", w.dir, "error", err.Error())
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		w.inspect(filepath.Join(w.dir, entry.Name()))
	}
}

// watchLoop debounces write bursts, then inspects each touched log file.
func (w *LogWatcher) watchLoop() {
	debounce := time.NewTimer(0)
	<-debounce.C

	pending := make(map[string]struct{})

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".log") {
				continue
			}
			pending[event.Name] = struct{}{}
			debounce.Reset(debounceWindow)

		case <-debounce.C:
			for path := range pending {
				w.inspect(path)
			}
			pending = make(map[string]struct{})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("log watch error", "error", err.Error())
		}
	}
}

// inspect scans one log file for an exit marker and emits the completion if
// this task has not been reported yet.
func (w *LogWatcher) inspect(path string) {
	taskID := strings.TrimSuffix(filepath.Base(path), ".log")

	w.mu.Lock()
	done := w.reported[taskID]
	w.mu.Unlock()
	if done {
		return
	}

	code, found, err := scanExitMarker(path)
	if err != nil {
		// The scan aborted partway (e.g. a line over the buffer cap); a
		// marker past that point is missed here, and the periodic
		// reconcile catches the dead session instead.
		w.log.WithTask(taskID).Warn("log scan incomplete", "path", path, "error", err.Error())
	}
	if !found {
		return
	}

	w.mu.Lock()
	if w.reported[taskID] {
		w.mu.Unlock()
		return
	}
	w.reported[taskID] = true
	w.mu.Unlock()

	w.log.WithTask(taskID).Debug("exit marker observed", "exit_code", code)
	select {
	case w.out <- Completion{TaskID: taskID, ExitCode: code}:
	case <-w.stopCh:
	}
}

// scanExitMarker returns the exit code from the last marker line in the log,
// if one exists. Agents may echo marker-like text themselves, so only a line
// that is exactly the marker plus an integer counts. A non-nil error means
// the scan stopped before the end of the file and later markers were missed.
func scanExitMarker(path string) (int, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	code := 0
	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		rest, ok := strings.CutPrefix(line, session.ExitMarkerPrefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		code = n
		found = true
	}
	if err := scanner.Err(); err != nil {
		return code, found, err
	}
	return code, found, nil
}
