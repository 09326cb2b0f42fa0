package cache

import (
	"container/list"
	"sync"
)

// PluginHandle is an opaque loaded plugin module. internal/plugin's yaegi
// wrapper implements this; the cache package doesn't care what it is.
type PluginHandle interface {
	Path() string
	Unload()
}

type pluginEntry struct {
	path   string
	handle PluginHandle
}

// PluginTier is an LRU-bounded cache of path → loaded module handle
// (spec.md §3 Cache Entries, "Plugin entry"). Eviction calls Unload on the
// displaced handle so its yaegi interpreter state is released.
type PluginTier struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	index   map[string]*list.Element
	Stats   TierStats
}

// NewPluginTier builds a plugin tier bounded to maxSize loaded modules.
func NewPluginTier(maxSize int) *PluginTier {
	return &PluginTier{
		maxSize: maxSize,
		order:   list.New(),
		index:   make(map[string]*list.Element),
	}
}

// Set registers handle under path, evicting the least-recently-used entry
// if the tier is at capacity.
func (t *PluginTier) Set(path string, handle PluginHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.index[path]; ok {
		el.Value.(*pluginEntry).handle = handle
		t.order.MoveToFront(el)
		return
	}

	el := t.order.PushFront(&pluginEntry{path: path, handle: handle})
	t.index[path] = el

	if t.maxSize > 0 && t.order.Len() > t.maxSize {
		oldest := t.order.Back()
		if oldest != nil {
			t.evict(oldest)
		}
	}
}

// Get returns the loaded handle for path, or (nil, false).
func (t *PluginTier) Get(path string) (PluginHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.index[path]
	if !ok {
		t.Stats.Misses++
		return nil, false
	}
	t.order.MoveToFront(el)
	t.Stats.Hits++
	return el.Value.(*pluginEntry).handle, true
}

// Has reports whether path is loaded.
func (t *PluginTier) Has(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.index[path]
	return ok
}

func (t *PluginTier) evict(el *list.Element) {
	entry := el.Value.(*pluginEntry)
	entry.handle.Unload()
	delete(t.index, entry.path)
	t.order.Remove(el)
	t.Stats.Evictions++
}

// Clear unloads entries matching pattern ("" ⇒ all) and returns the count
// removed.
func (t *PluginTier) Clear(pattern string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var toRemove []*list.Element
	for el := t.order.Front(); el != nil; el = el.Next() {
		if pattern == "" || containsPattern(el.Value.(*pluginEntry).path, pattern) {
			toRemove = append(toRemove, el)
		}
	}
	for _, el := range toRemove {
		entry := el.Value.(*pluginEntry)
		entry.handle.Unload()
		delete(t.index, entry.path)
		t.order.Remove(el)
	}
	return len(toRemove)
}

// Len reports the number of loaded modules.
func (t *PluginTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}
