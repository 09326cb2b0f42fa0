package cache

import (
	"fmt"
	"sync"
	"time"
)

// ConnHandle is the minimal contract the schema tier needs from a live
// database connection. internal/store's adapters implement this; the cache
// package itself never imports a driver, matching spec.md §6's framing of
// adapters as external collaborators.
type ConnHandle interface {
	Begin() error
	Commit() error
	Rollback() error
	Disconnect() error
	BackendKind() string
}

// SchemaEntry mirrors the metadata the orchestrator is allowed to surface
// (spec.md §3 Cache Entries, "Schema entry") — never the handle itself.
type SchemaEntry struct {
	Alias             string
	BackendKind       string
	ConnectedAt       time.Time
	TransactionActive bool
}

// SchemaTier holds live, non-serialisable connections keyed by alias. Only
// metadata is ever exposed outside the tier (spec.md §4.1 invariant: "schema
// tier's internal live handles are NEVER serialised into the session map").
type SchemaTier struct {
	mu          sync.RWMutex
	connections map[string]ConnHandle
	meta        map[string]*SchemaEntry
	logWarn     func(format string, args ...interface{})
	Stats       TierStats
}

// NewSchemaTier builds an empty schema tier. logWarn receives best-effort
// disconnect failures during Clear; pass nil to discard them.
func NewSchemaTier(logWarn func(format string, args ...interface{})) *SchemaTier {
	if logWarn == nil {
		logWarn = func(string, ...interface{}) {}
	}
	return &SchemaTier{
		connections: make(map[string]ConnHandle),
		meta:        make(map[string]*SchemaEntry),
		logWarn:     logWarn,
	}
}

// Set stores a live connection under alias.
func (t *SchemaTier) Set(alias string, handle ConnHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connections[alias] = handle
	t.meta[alias] = &SchemaEntry{Alias: alias, BackendKind: handle.BackendKind(), ConnectedAt: time.Now()}
}

// Get returns the live connection for alias, or (nil, false).
func (t *SchemaTier) Get(alias string) (ConnHandle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.connections[alias]
	if ok {
		t.Stats.Hits++
	} else {
		t.Stats.Misses++
	}
	return h, ok
}

// Has reports whether a connection exists for alias.
func (t *SchemaTier) Has(alias string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.connections[alias]
	return ok
}

// Begin starts a transaction on alias's connection.
func (t *SchemaTier) Begin(alias string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.connections[alias]
	if !ok {
		return fmt.Errorf("schema cache: no connection for alias %q", alias)
	}
	if err := h.Begin(); err != nil {
		return err
	}
	t.meta[alias].TransactionActive = true
	return nil
}

// Commit commits the transaction on alias's connection.
func (t *SchemaTier) Commit(alias string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.connections[alias]
	if !ok {
		return fmt.Errorf("schema cache: no connection for alias %q", alias)
	}
	if err := h.Commit(); err != nil {
		return err
	}
	t.meta[alias].TransactionActive = false
	return nil
}

// Rollback rolls back the transaction on alias's connection.
func (t *SchemaTier) Rollback(alias string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.connections[alias]
	if !ok {
		return fmt.Errorf("schema cache: no connection for alias %q", alias)
	}
	if err := h.Rollback(); err != nil {
		return err
	}
	t.meta[alias].TransactionActive = false
	return nil
}

// IsTransactionActive reports whether alias currently has an open transaction.
func (t *SchemaTier) IsTransactionActive(alias string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.meta[alias]
	return ok && e.TransactionActive
}

// Disconnect closes and forgets alias's connection.
func (t *SchemaTier) Disconnect(alias string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnectLocked(alias)
}

func (t *SchemaTier) disconnectLocked(alias string) {
	h, ok := t.connections[alias]
	if !ok {
		return
	}
	if err := h.Disconnect(); err != nil {
		t.logWarn("schema cache: error disconnecting %q: %v", alias, err)
	}
	delete(t.connections, alias)
	delete(t.meta, alias)
}

// Clear disconnects every connection, best-effort: individual failures are
// logged, never propagated (spec.md §4.1 routing table, "schema" row).
func (t *SchemaTier) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for alias := range t.connections {
		t.disconnectLocked(alias)
	}
}

// List returns metadata for every live connection.
func (t *SchemaTier) List() []*SchemaEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*SchemaEntry, 0, len(t.meta))
	for _, e := range t.meta {
		cp := *e
		out = append(out, &cp)
	}
	return out
}
