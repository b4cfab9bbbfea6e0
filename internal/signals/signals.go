// Package signals lets other processes stop a running workflow by creating
// .qforge/signals/stop.
package signals

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StopFile is the signal file name that requests a stop.
const StopFile = "stop"

// pollInterval backs up the watcher when fsnotify is unavailable or misses an event.
const pollInterval = 500 * time.Millisecond

// Watcher watches the signals directory of a project.
type Watcher struct {
	dir string

	mu       sync.Mutex
	stopped  bool
	stopCh   chan struct{}
	done     chan struct{}
	closeOne sync.Once

	watcher *fsnotify.Watcher
}

// Dir returns the signals directory of a project.
func Dir(repoPath string) string {
	return filepath.Join(repoPath, ".qforge", "signals")
}

// Watch starts watching the project's signals directory, creating it if needed.
// A stop file left over from an earlier run is removed first, so only stops
// sent after Watch returns end this run.
func Watch(repoPath string) (*Watcher, error) {
	dir := Dir(repoPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := Clear(repoPath); err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:    dir,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	if fw, err := fsnotify.NewWatcher(); err == nil {
		if err := fw.Add(dir); err != nil {
			fw.Close()
		} else {
			w.watcher = fw
		}
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	var errs chan error
	if w.watcher != nil {
		events = w.watcher.Events
		errs = w.watcher.Errors
	}

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(event.Name) == StopFile && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.trigger()
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
			// Other errors are ignored; polling still covers the stop file.
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	if _, err := os.Stat(filepath.Join(w.dir, StopFile)); err == nil {
		w.trigger()
	}
}

// trigger records the stop and consumes the signal file so it does not
// outlive the run it stopped.
func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	_ = os.Remove(filepath.Join(w.dir, StopFile))
	close(w.stopCh)
}

// ShouldStop reports whether a stop was requested.
func (w *Watcher) ShouldStop() bool {
	w.poll()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// Stopped is closed when a stop is requested.
func (w *Watcher) Stopped() <-chan struct{} {
	return w.stopCh
}

// WithCancel returns a context canceled when a stop is requested or parent ends.
func (w *Watcher) WithCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// SendStop creates the stop signal file.
func SendStop(repoPath string) error {
	dir := Dir(repoPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, StopFile), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Clear removes the stop signal file. Watchers that already fired stay stopped.
func Clear(repoPath string) error {
	err := os.Remove(filepath.Join(Dir(repoPath), StopFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close stops watching.
func (w *Watcher) Close() {
	w.closeOne.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}
