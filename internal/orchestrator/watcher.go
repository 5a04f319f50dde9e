package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// defaultSettle is how long the landing directory must stay quiet
	// before a change burst fires the callback.
	defaultSettle = 500 * time.Millisecond
	// defaultPollInterval is the rescan cadence in polling mode.
	defaultPollInterval = 30 * time.Second
)

// Watcher watches the landing directory and fires a callback once new
// or rewritten source files settle. Uses fsnotify where the platform
// allows and falls back to mtime polling when it does not (network
// mounts, exhausted inotify descriptors).
type Watcher struct {
	dir      string
	patterns []string
	log      *slog.Logger

	debouncer    *Debouncer
	fsw          *fsnotify.Watcher
	pollingMode  bool
	pollInterval time.Duration

	mu   sync.Mutex
	seen map[string]fileState

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type fileState struct {
	modTime time.Time
	size    int64
}

// NewWatcher builds a watcher over dir. A file is interesting when its
// base name matches any of patterns (all files when empty) and is not
// hidden, which keeps download temps and bookkeeping files quiet.
// settle <= 0 selects the 500 ms default. onSettle runs off the
// caller's goroutine after each quiet period.
func NewWatcher(dir string, patterns []string, settle time.Duration, onSettle func(), log *slog.Logger) *Watcher {
	if settle <= 0 {
		settle = defaultSettle
	}
	if log == nil {
		log = slog.Default()
	}
	w := &Watcher{
		dir:          dir,
		patterns:     patterns,
		log:          log,
		debouncer:    NewDebouncer(settle, onSettle),
		pollInterval: defaultPollInterval,
		seen:         make(map[string]fileState),
	}
	// Prime the snapshot so files already present never count as new.
	w.snapshot()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify unavailable, polling the landing directory",
			"interval", w.pollInterval, "error", err)
		w.pollingMode = true
		return w
	}
	if err := fsw.Add(dir); err != nil {
		log.Warn("cannot watch landing directory, polling instead",
			"dir", dir, "interval", w.pollInterval, "error", err)
		fsw.Close()
		w.pollingMode = true
		return w
	}
	w.fsw = fsw
	return w
}

// Start begins watching until ctx is cancelled or Close is called.
// Call once.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	if w.pollingMode {
		go w.pollLoop(ctx)
		return
	}
	go w.eventLoop(ctx)
}

// Trigger schedules the settle callback as if a change had been seen.
func (w *Watcher) Trigger() { w.debouncer.Trigger() }

// Close stops the watcher and waits for the loop and any in-flight
// callback to return.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
	}
	w.wg.Wait()
	w.debouncer.CancelAndWait()
	return err
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !w.interesting(name) {
				continue
			}
			w.log.Debug("landing directory change", "file", name, "op", ev.Op.String())
			w.debouncer.Trigger()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if w.snapshot() {
				w.debouncer.Trigger()
			}
		case <-ctx.Done():
			return
		}
	}
}

// snapshot rescans the directory and reports whether any interesting
// file is new or differs from the previous scan. Removals alone do not
// count as changes.
func (w *Watcher) snapshot() bool {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn("cannot read landing directory", "dir", w.dir, "error", err)
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	changed := false
	current := make(map[string]fileState, len(entries))
	for _, e := range entries {
		if e.IsDir() || !w.interesting(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		st := fileState{modTime: info.ModTime(), size: info.Size()}
		current[e.Name()] = st
		prev, ok := w.seen[e.Name()]
		if !ok || !prev.modTime.Equal(st.modTime) || prev.size != st.size {
			changed = true
		}
	}
	w.seen = current
	return changed
}

func (w *Watcher) interesting(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	if len(w.patterns) == 0 {
		return true
	}
	for _, p := range w.patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
