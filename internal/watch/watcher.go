// Package watch previews workbooks dropped into a directory.
package watch

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must be quiet before it is handled.
// Spreadsheet apps write in several bursts.
const DefaultDebounce = time.Second

// Handler processes one workbook. Calls are sequential since the preview
// slot holds a single job at a time.
type Handler func(ctx context.Context, path string) error

// Watcher watches a single directory for new or rewritten .xlsx files.
type Watcher struct {
	dir      string
	handle   Handler
	debounce time.Duration

	watcher *fsnotify.Watcher
	queue   chan string
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
	handled map[string]time.Time
	stopped bool
}

// New creates a watcher for dir. A non-positive debounce uses DefaultDebounce.
func New(dir string, debounce time.Duration, handle Handler) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		handle:   handle,
		debounce: debounce,
		queue:    make(chan string, 64),
		pending:  make(map[string]bool),
		handled:  make(map[string]time.Time),
	}
}

// Start begins watching. ctx is passed to every handler call; cancelling it
// aborts the file in progress.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(2)
	go w.processEvents()
	go w.work(ctx)

	log.Printf("[watch] watching %s for workbooks", w.dir)
	return nil
}

// Stop ends watching and waits for the file in progress.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return err
}

// Trigger queues path as though it had just been written. Used to pick up
// files that were already in the directory at startup.
func (w *Watcher) Trigger(path string) {
	w.mark(path)
}

// Existing lists the workbooks currently in the directory.
func (w *Watcher) Existing() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && IsWorkbook(e.Name()) {
			out = append(out, filepath.Join(w.dir, e.Name()))
		}
	}
	return out, nil
}

// IsWorkbook reports whether name looks like a workbook worth previewing.
// Office lock files ("~$name.xlsx") and hidden files are skipped.
func IsWorkbook(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".xlsx")
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[watch] watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	if !IsWorkbook(event.Name) {
		return
	}
	w.mark(event.Name)
}

func (w *Watcher) mark(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.pending[path] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush hands the settled files to the worker in natural name order.
func (w *Watcher) flush() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	slices.SortFunc(paths, naturalCompare)
	for _, p := range paths {
		select {
		case w.queue <- p:
		default:
			log.Printf("[watch] queue full, dropping %s", p)
		}
	}
}

func (w *Watcher) work(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.queue:
			w.process(ctx, path)
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		// Removed or renamed away before it settled.
		return
	}
	w.mu.Lock()
	last, seen := w.handled[path]
	w.mu.Unlock()
	if seen && !info.ModTime().After(last) {
		return
	}

	log.Printf("[watch] processing %s", filepath.Base(path))
	if err := w.handle(ctx, path); err != nil {
		log.Printf("[watch] %s: %v", filepath.Base(path), err)
	}

	w.mu.Lock()
	w.handled[path] = info.ModTime()
	w.mu.Unlock()
}
