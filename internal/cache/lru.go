package cache

import (
	"container/list"
	"os"
	"sync"
	"time"
)

// LRUEntry is a single system-tier cache entry (spec.md §3 Cache Entries).
type LRUEntry struct {
	Key            string
	Value          interface{}
	SourcePath     string // empty when the entry carries no file dependency
	SourceMTime    time.Time
	LastAccessTick int64
}

// LRUTier is a bounded, strict-LRU cache with optional mtime invalidation:
// if an entry was stored against a source file and that file's mtime has
// since changed, a lookup treats it as a miss (spec.md §3, §4.1 routing
// table, "system" row).
type LRUTier struct {
	mu       sync.Mutex
	maxSize  int
	order    *list.List
	index    map[string]*list.Element
	tick     int64
	Stats    TierStats
}

// NewLRUTier builds an LRU tier bounded to maxSize entries.
func NewLRUTier(maxSize int) *LRUTier {
	return &LRUTier{
		maxSize: maxSize,
		order:   list.New(),
		index:   make(map[string]*list.Element),
	}
}

// Set stores value under key. sourcePath, when non-empty, is stat'd now and
// its mtime recorded for future invalidation checks.
func (t *LRUTier) Set(key string, value interface{}, sourcePath string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var mtime time.Time
	if sourcePath != "" {
		if fi, err := os.Stat(sourcePath); err == nil {
			mtime = fi.ModTime()
		}
	}

	t.tick++
	if el, ok := t.index[key]; ok {
		entry := el.Value.(*LRUEntry)
		entry.Value = value
		entry.SourcePath = sourcePath
		entry.SourceMTime = mtime
		entry.LastAccessTick = t.tick
		t.order.MoveToFront(el)
		return
	}

	entry := &LRUEntry{Key: key, Value: value, SourcePath: sourcePath, SourceMTime: mtime, LastAccessTick: t.tick}
	el := t.order.PushFront(entry)
	t.index[key] = el

	if t.maxSize > 0 && t.order.Len() > t.maxSize {
		t.evictOldest()
	}
}

// Get returns the cached value for key and true, or (nil, false) on a miss —
// including a miss forced by source-file invalidation.
func (t *LRUTier) Get(key string) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.index[key]
	if !ok {
		t.Stats.Misses++
		return nil, false
	}
	entry := el.Value.(*LRUEntry)

	if entry.SourcePath != "" {
		fi, err := os.Stat(entry.SourcePath)
		if err != nil || !fi.ModTime().Equal(entry.SourceMTime) {
			t.removeElement(el)
			t.Stats.Invalidations++
			t.Stats.Misses++
			return nil, false
		}
	}

	t.tick++
	entry.LastAccessTick = t.tick
	t.order.MoveToFront(el)
	t.Stats.Hits++
	return entry.Value, true
}

// Has reports presence without affecting recency or invalidation bookkeeping
// beyond what Get already does; it delegates to Get per the orchestrator's
// fallback contract for tiers without a dedicated existence check.
func (t *LRUTier) Has(key string) bool {
	_, ok := t.Get(key)
	return ok
}

func (t *LRUTier) evictOldest() {
	oldest := t.order.Back()
	if oldest == nil {
		return
	}
	t.removeElement(oldest)
	t.Stats.Evictions++
}

func (t *LRUTier) removeElement(el *list.Element) {
	entry := el.Value.(*LRUEntry)
	delete(t.index, entry.Key)
	t.order.Remove(el)
}

// Clear removes entries matching pattern (simple substring match, "" ⇒ all).
func (t *LRUTier) Clear(pattern string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pattern == "" {
		n := t.order.Len()
		t.order.Init()
		t.index = make(map[string]*list.Element)
		return n
	}

	var toRemove []*list.Element
	for el := t.order.Front(); el != nil; el = el.Next() {
		if containsPattern(el.Value.(*LRUEntry).Key, pattern) {
			toRemove = append(toRemove, el)
		}
	}
	for _, el := range toRemove {
		t.removeElement(el)
	}
	return len(toRemove)
}

func containsPattern(key, pattern string) bool {
	clean := pattern
	for len(clean) > 0 && clean[len(clean)-1] == '*' {
		clean = clean[:len(clean)-1]
	}
	if clean == "" {
		return true
	}
	return len(key) >= len(clean) && indexOf(key, clean) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// Len reports the number of entries currently held.
func (t *LRUTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}
