package postcache

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RefreshFunc is invoked with the repository slug whose refs changed.
type RefreshFunc func(slug string)

// Watcher observes <storage_root>/repositories/*/.git/refs and triggers
// a debounced refresh for a single repository without waiting on the
// next timeline query. It is opt-in: the cache works identically
// without one, and refresh-on-query remains the path tests exercise.
type Watcher struct {
	watcher  *fsnotify.Watcher
	refresh  RefreshFunc
	debounce time.Duration
	logger   *log.Logger

	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	running bool
	pending map[string]*time.Timer
	root    string
}

// DefaultDebounce batches the burst of ref writes a single fetch
// produces into one refresh call.
const DefaultDebounce = 500 * time.Millisecond

// NewWatcher creates a stopped Watcher that will call refresh for each
// repository whose refs change under storageRoot.
func NewWatcher(storageRoot string, refresh RefreshFunc, logger *log.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		watcher:  fw,
		refresh:  refresh,
		debounce: DefaultDebounce,
		logger:   logger,
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
		root:     filepath.Join(storageRoot, "repositories"),
	}, nil
}

// Start registers every existing clone's refs directory and begins the
// event loop. Clones created after Start are picked up lazily when the
// repositories directory itself signals a create.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("watching %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("listing %s: %w", w.root, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addClone(e.Name())
		}
	}

	w.running = true
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop shuts the event loop down and cancels pending refreshes. It
// blocks until the loop goroutine has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	for slug, timer := range w.pending {
		timer.Stop()
		delete(w.pending, slug)
	}
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("closing watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) addClone(slug string) {
	refsDir := filepath.Join(w.root, slug, ".git", "refs")
	if _, err := os.Stat(refsDir); err != nil {
		return
	}
	if err := w.watcher.Add(refsDir); err != nil {
		w.logger.Printf("postcache: cannot watch %s: %v", refsDir, err)
	}
	// Remote-tracking refs land under refs/remotes/<remote>; watch one
	// and two levels down so a fetch's ref updates are seen.
	subdirs, err := os.ReadDir(refsDir)
	if err != nil {
		return
	}
	for _, d := range subdirs {
		if !d.IsDir() {
			continue
		}
		sub := filepath.Join(refsDir, d.Name())
		_ = w.watcher.Add(sub)
		nested, err := os.ReadDir(sub)
		if err != nil {
			continue
		}
		for _, n := range nested {
			if n.IsDir() {
				_ = w.watcher.Add(filepath.Join(sub, n.Name()))
			}
		}
	}
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("postcache: watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.Split(rel, string(filepath.Separator))
	slug := parts[0]

	// A brand-new clone directory appearing directly under the root.
	if len(parts) == 1 && event.Has(fsnotify.Create) {
		w.addClone(slug)
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if timer, ok := w.pending[slug]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[slug] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, slug)
		w.mu.Unlock()
		w.refresh(slug)
	})
}
