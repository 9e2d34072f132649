// Package watch implements the Watcher: it observes an analyzed root for
// filesystem events, debounces bursts into coalesced batches, and hands
// each batch of changed files to a ReindexFunc. Grounded on the teacher's
// internal/watcher/file_watcher.go (fsnotify + debounce timer, directory
// recursion with limits) fused with internal/indexer/watcher.go's
// coalesce-then-reindex pipeline shape.
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is the quiet period before a batch fires, per spec §4.12.
const defaultDebounce = 500 * time.Millisecond

const (
	maxWatchedDirectories = 1000
	maxWatchDepth         = 10
)

var skippedDirs = map[string]bool{
	".git": true, "node_modules": true, ".knowcode": true, "__pycache__": true,
}

// ReindexFunc recomputes chunks, vectors, and lexical postings for a
// coalesced batch of changed file paths (relative to the watched root).
// The watcher never blocks a concurrent query on this call; it runs on a
// single background goroutine so index mutations stay serialized.
type ReindexFunc func(ctx context.Context, changedPaths []string) error

// Watcher observes a root directory tree and drives ReindexFunc on
// debounced, coalesced batches of changed files.
type Watcher struct {
	fsw          *fsnotify.Watcher
	root         string
	extensions   map[string]bool
	debounce     time.Duration
	reindex      ReindexFunc

	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}

	pausedMu sync.RWMutex
	paused   bool

	accMu       sync.Mutex
	accumulated map[string]bool

	timerMu sync.Mutex
	timer   *time.Timer

	countMu  sync.Mutex
	dirCount int

	stopOnce sync.Once
}

// New creates a Watcher rooted at root, monitoring files whose extension
// (including the leading dot) appears in extensions. The watcher does not
// start observing until Start is called.
func New(root string, extensions []string, reindex ReindexFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	extMap := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extMap[ext] = true
	}

	w := &Watcher{
		fsw:         fsw,
		root:        root,
		extensions:  extMap,
		debounce:    defaultDebounce,
		reindex:     reindex,
		accumulated: make(map[string]bool),
		doneCh:      make(chan struct{}),
	}

	if err := w.addRecursively(root, 0); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// SetDebounce overrides the default 500ms coalescing window. Must be
// called before Start.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Start begins the event loop on a background goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	go w.loop()
}

// Stop honors the stop signal: it cancels the event loop, which drains any
// pending debounce batch (firing it) before the goroutine exits, then
// closes the underlying fsnotify watcher. Idempotent.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.doneCh
		} else {
			close(w.doneCh)
		}
		err = w.fsw.Close()
	})
	return err
}

// Pause stops firing reindex batches but keeps accumulating changed paths.
func (w *Watcher) Pause() {
	w.pausedMu.Lock()
	defer w.pausedMu.Unlock()
	w.paused = true
}

// Resume resumes firing. Any paths accumulated while paused are flushed
// immediately as one batch.
func (w *Watcher) Resume() {
	w.pausedMu.Lock()
	w.paused = false
	w.pausedMu.Unlock()
	w.flush()
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	fireCh := make(chan struct{}, 1)
	for {
		select {
		case <-w.ctx.Done():
			w.stopTimer()
			w.flush() // drain the debounce queue before exit, per spec §5
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursively(event.Name, 0); err != nil {
						log.Printf("watch: failed to watch new directory %s: %v", event.Name, err)
					}
				}
			}
			if !w.matches(event) {
				continue
			}
			w.accMu.Lock()
			w.accumulated[event.Name] = true
			w.accMu.Unlock()
			w.resetTimer(fireCh)

		case <-fireCh:
			w.flush()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watch: fsnotify error: %v", err)
		}
	}
}

// flush fires reindex with any accumulated paths, unless paused or empty.
func (w *Watcher) flush() {
	w.pausedMu.RLock()
	paused := w.paused
	w.pausedMu.RUnlock()
	if paused {
		return
	}

	w.accMu.Lock()
	if len(w.accumulated) == 0 {
		w.accMu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.accumulated))
	for p := range w.accumulated {
		paths = append(paths, p)
	}
	w.accumulated = make(map[string]bool)
	w.accMu.Unlock()

	if w.reindex == nil {
		return
	}
	ctx := w.ctx
	if ctx == nil || ctx.Err() != nil {
		// The batch drained on Stop runs after w.ctx is cancelled; give it
		// a live context so the reindex is not aborted before it starts.
		ctx = context.Background()
	}
	if err := w.reindex(ctx, paths); err != nil {
		log.Printf("watch: reindex batch of %d file(s) failed: %v", len(paths), err)
	}
}

func (w *Watcher) resetTimer(fireCh chan struct{}) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		if !w.timer.Stop() {
			select {
			case <-w.timer.C:
			default:
			}
		}
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case fireCh <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) matches(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return w.extensions[filepath.Ext(event.Name)]
}

func (w *Watcher) addRecursively(root string, depth int) error {
	if depth > maxWatchDepth {
		return fmt.Errorf("watch: max depth %d exceeded at %s", maxWatchDepth, root)
	}
	if skippedDirs[filepath.Base(root)] {
		return nil
	}

	w.countMu.Lock()
	if w.dirCount >= maxWatchedDirectories {
		n := w.dirCount
		w.countMu.Unlock()
		return fmt.Errorf("watch: directory limit reached: %d already watched (max %d)", n, maxWatchedDirectories)
	}
	w.countMu.Unlock()

	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	if err := w.fsw.Add(root); err != nil {
		return fmt.Errorf("watch directory %s: %w", root, err)
	}
	w.countMu.Lock()
	w.dirCount++
	w.countMu.Unlock()

	for _, e := range entries {
		if !e.IsDir() || skippedDirs[e.Name()] {
			continue
		}
		if err := w.addRecursively(filepath.Join(root, e.Name()), depth+1); err != nil {
			log.Printf("watch: %v", err)
		}
	}
	return nil
}
