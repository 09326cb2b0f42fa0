package cache

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher proactively invalidates LRU entries when their backing source file
// changes on disk, instead of waiting for the next mtime check on lookup.
// Grounded on the teacher's fsnotify-based directory watcher (start/stop with
// a dedicated goroutine and a done channel).
type Watcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	tier    *LRUTier
	watched map[string]string // dir -> representative key, for logging only
	stopCh  chan struct{}
	doneCh  chan struct{}
	onWarn  func(format string, args ...interface{})
}

// NewWatcher builds a Watcher that invalidates entries in tier. onWarn may
// be nil to discard warnings.
func NewWatcher(tier *LRUTier, onWarn func(format string, args ...interface{})) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if onWarn == nil {
		onWarn = func(string, ...interface{}) {}
	}
	return &Watcher{
		watcher: fw,
		tier:    tier,
		watched: make(map[string]string),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		onWarn:  onWarn,
	}, nil
}

// WatchSource adds sourcePath's containing directory to the watch list, so a
// future write to that file invalidates any LRU entry keyed on it.
func (w *Watcher) WatchSource(key, sourcePath string) {
	dir := filepath.Dir(sourcePath)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, already := w.watched[dir]; already {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		w.onWarn("cache watcher: failed to watch %s: %v", dir, err)
		return
	}
	w.watched[dir] = key
}

// Start begins the watch loop in a background goroutine.
func (w *Watcher) Start() {
	go w.run()
}

// Stop terminates the watch loop and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.invalidate(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.onWarn("cache watcher: %v", err)
		}
	}
}

// invalidate removes any LRU entry whose recorded source path matches path.
// The LRU tier has no reverse index from path to key, so this walks its
// entries directly rather than duplicating bookkeeping in the watcher.
func (w *Watcher) invalidate(path string) {
	w.tier.mu.Lock()
	defer w.tier.mu.Unlock()
	for el := w.tier.order.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*LRUEntry)
		if entry.SourcePath == path {
			w.tier.removeElement(el)
			w.tier.Stats.Invalidations++
		}
		el = next
	}
}
