// Package block implements the zolo core's ordered-mapping Block type
// (spec.md §3 Data Model) and the key-shape classification rules the Loop
// Engine and Navigation subsystems dispatch on.
package block

import "strings"

// Block is an ordered mapping from string keys to Step values. Order is
// preserved on load and on iteration (spec.md §3 invariant); a Block is
// immutable once built — only an Accumulator built over it grows.
type Block struct {
	keys    []string
	entries map[string]Step
}

// New returns an empty, ready-to-append Block.
func New() *Block {
	return &Block{entries: make(map[string]Step)}
}

// Append adds a key/value pair, preserving insertion order. Re-appending an
// existing key overwrites its value in place without moving its position,
// matching a YAML mapping's "last duplicate key wins" semantics.
func (b *Block) Append(key string, step Step) {
	if _, exists := b.entries[key]; !exists {
		b.keys = append(b.keys, key)
	}
	b.entries[key] = step
}

// Keys returns the ordered key list, including metadata keys.
func (b *Block) Keys() []string {
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}

// Get returns the Step for key and whether it was present.
func (b *Block) Get(key string) (Step, bool) {
	s, ok := b.entries[key]
	return s, ok
}

// Len returns the number of keys, including metadata.
func (b *Block) Len() int { return len(b.keys) }

// IndexOf returns the position of key in iteration order, or -1.
func (b *Block) IndexOf(key string) int {
	for i, k := range b.keys {
		if k == key {
			return i
		}
	}
	return -1
}

// IsMetadata reports whether a key is metadata (never executed): any key
// with a leading underscore, e.g. _data, _transaction, _config.
func IsMetadata(key string) bool {
	return strings.HasPrefix(key, "_")
}

// ExecutableKeys returns keys in order, filtering out metadata keys — the
// Loop Engine iterates exactly this list (spec.md §4.2 step 4).
func (b *Block) ExecutableKeys() []string {
	out := make([]string, 0, len(b.keys))
	for _, k := range b.keys {
		if !IsMetadata(k) {
			out = append(out, k)
		}
	}
	return out
}

// Shape captures the key-shape predicates spec.md §3 dispatches on. A single
// key can carry multiple shapes simultaneously (e.g. "~Admin*" is both
// Anchored and Menu).
type Shape struct {
	RBAC      bool // key itself names RBAC metadata ("zRBAC")
	Anchored  bool // contains '~'
	Menu      bool // contains '*'
	Gate      bool // contains '!'
	Interactive bool // leading '^'
}

// ClassifyKey computes the Shape of a block key per spec.md §3.
func ClassifyKey(key string) Shape {
	return Shape{
		RBAC:        key == "zRBAC",
		Anchored:    strings.Contains(key, "~"),
		Menu:        strings.Contains(key, "*"),
		Gate:        strings.Contains(key, "!"),
		Interactive: strings.HasPrefix(key, "^"),
	}
}

// IsAnchoredMenu reports whether key is both anchored and a menu — the kind
// of key Navigation's POP_TO targets (spec.md §4.2.1 step 6, S2).
func IsAnchoredMenu(key string) bool {
	s := ClassifyKey(key)
	return s.Anchored && s.Menu
}
