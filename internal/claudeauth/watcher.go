package claudeauth

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// defaultDebounceInterval is how long to wait after the last file change
// before firing OnChange, so editors that write in several steps trigger a
// single reload.
const defaultDebounceInterval = 500 * time.Millisecond

// FileWatcher monitors a credential file and invokes OnChange when it is
// modified externally (for example, rotated by another process). It watches
// the parent directory so create/rename events for the file are seen too.
type FileWatcher struct {
	path     string
	onChange func()
	debounce time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// FileWatcherOptions configures a FileWatcher.
type FileWatcherOptions struct {
	Path     string
	OnChange func()
	Debounce time.Duration
	Logger   *zap.Logger
}

// NewFileWatcher creates a watcher for the given credential file.
func NewFileWatcher(opts FileWatcherOptions) *FileWatcher {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounceInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &FileWatcher{
		path:     opts.Path,
		onChange: opts.OnChange,
		debounce: opts.Debounce,
		logger:   opts.Logger,
	}
}

// Start begins watching. It is a no-op when already running.
func (w *FileWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	w.fsWatcher = watcher
	w.stopCh = make(chan struct{})
	w.running = true

	go w.loop(watcher.Events, watcher.Errors, w.stopCh)

	w.logger.Info("watching credential file", zap.String("path", w.path))
	return nil
}

// Stop halts watching and releases the underlying watcher.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.stopCh)
	w.fsWatcher.Close()
	w.fsWatcher = nil
	w.running = false
}

func (w *FileWatcher) loop(events chan fsnotify.Event, errors chan error, stop chan struct{}) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("credential file changed", zap.String("op", event.Op.String()))
			w.scheduleChange()
		case err, ok := <-errors:
			if !ok {
				return
			}
			w.logger.Warn("credential watcher error", zap.Error(err))
		case <-stop:
			return
		}
	}
}

// scheduleChange debounces rapid successive events into one OnChange call.
func (w *FileWatcher) scheduleChange() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, func() {
		if w.onChange != nil {
			w.onChange()
		}
	})
}
