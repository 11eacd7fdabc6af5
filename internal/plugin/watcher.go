package plugin

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"bastproxy/internal/logging"
)

// DefaultDebounce matches the interval the rest of the corpus uses for
// coalescing bursts of filesystem events from editors and deploy scripts.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads plugins in-process when their directory changes on
// disk, debouncing rapid successive writes into a single reload.
type Watcher struct {
	loader    *Loader
	debounce  time.Duration
	fsWatcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopCh  chan struct{}
}

// NewWatcher builds a Watcher over loader. Call Start to begin watching.
func NewWatcher(loader *Loader, debounce time.Duration) *Watcher {
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		loader:   loader,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
	}
}

// Start adds a watch on every known plugin directory and begins
// processing filesystem events until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsWatcher = fw

	for _, info := range w.loader.List() {
		if info.Dir == "" {
			continue
		}
		if err := fw.Add(info.Dir); err != nil {
			logging.Warnf("plugin", "watch %s: %v", info.Dir, err)
		}
	}

	go w.loop(ctx)
	return nil
}

// Stop ends the watch loop and releases the underlying fsnotify handle.
func (w *Watcher) Stop() {
	close(w.stopCh)
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warnf("plugin", "watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, ".go") && !strings.HasSuffix(ev.Name, ManifestFileName) {
		return
	}

	id := w.idForPath(ev.Name)
	if id == "" {
		return
	}

	w.mu.Lock()
	if t, exists := w.pending[id]; exists {
		t.Stop()
	}
	w.pending[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
		if err := w.loader.Reload(ctx, id); err != nil {
			logging.Fault("plugin", id, "hot-reload", err)
		}
	})
	w.mu.Unlock()
}

func (w *Watcher) idForPath(path string) string {
	dir := filepath.Dir(path)
	for _, info := range w.loader.List() {
		if info.Dir == dir {
			return info.ID
		}
	}
	return ""
}
