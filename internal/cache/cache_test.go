package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUTier_EvictsLeastRecentlyUsed(t *testing.T) {
	tier := NewLRUTier(2)
	tier.Set("a", 1, "")
	tier.Set("b", 2, "")
	tier.Set("c", 3, "") // evicts "a"

	_, ok := tier.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, tier.Stats.Evictions)

	v, ok := tier.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLRUTier_MTimeInvalidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.yaml")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	tier := NewLRUTier(10)
	tier.Set("block", "parsed-v1", path)

	v, ok := tier.Get("block")
	require.True(t, ok)
	assert.Equal(t, "parsed-v1", v)

	// Touch the file with a later mtime.
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	_, ok = tier.Get("block")
	assert.False(t, ok, "stale entry must miss after source mtime changes")
	assert.Equal(t, 1, tier.Stats.Invalidations)
}

func TestPinnedTier_NeverAutoEvicts(t *testing.T) {
	tier := NewPinnedTier()
	for i := 0; i < 500; i++ {
		tier.Set(string(rune('a'+i%26)), i, "@.models.x")
	}
	assert.Equal(t, 0, tier.Stats.Evictions)
}

func TestPinnedTier_ClearByPattern(t *testing.T) {
	tier := NewPinnedTier()
	tier.Set("users", 1, "@.models.users")
	tier.Set("users_backup", 2, "@.models.users_backup")
	tier.Set("orders", 3, "@.models.orders")

	n := tier.Clear("users*")
	assert.Equal(t, 2, n)
	assert.False(t, tier.Has("users"))
	assert.True(t, tier.Has("orders"))
}

type fakeConn struct {
	backend   string
	began     bool
	committed bool
	rolledBack bool
	disconnectErr error
}

func (f *fakeConn) Begin() error    { f.began = true; return nil }
func (f *fakeConn) Commit() error   { f.committed = true; return nil }
func (f *fakeConn) Rollback() error { f.rolledBack = true; return nil }
func (f *fakeConn) Disconnect() error { return f.disconnectErr }
func (f *fakeConn) BackendKind() string { return f.backend }

func TestSchemaTier_TransactionLifecycle(t *testing.T) {
	tier := NewSchemaTier(nil)
	conn := &fakeConn{backend: "sqlite"}
	tier.Set("main", conn)

	require.NoError(t, tier.Begin("main"))
	assert.True(t, tier.IsTransactionActive("main"))

	require.NoError(t, tier.Commit("main"))
	assert.False(t, tier.IsTransactionActive("main"))
	assert.True(t, conn.began)
	assert.True(t, conn.committed)
}

func TestSchemaTier_ClearDisconnectsAllBestEffort(t *testing.T) {
	tier := NewSchemaTier(func(format string, args ...interface{}) {})
	good := &fakeConn{backend: "sqlite"}
	bad := &fakeConn{backend: "postgres", disconnectErr: errors.New("boom")}
	tier.Set("a", good)
	tier.Set("b", bad)

	tier.Clear()

	assert.False(t, tier.Has("a"))
	assert.False(t, tier.Has("b"))
}

func TestSchemaTier_UnknownAliasReturnsError(t *testing.T) {
	tier := NewSchemaTier(nil)
	assert.Error(t, tier.Begin("missing"))
}

type fakePlugin struct {
	path     string
	unloaded bool
}

func (p *fakePlugin) Path() string { return p.path }
func (p *fakePlugin) Unload()      { p.unloaded = true }

func TestPluginTier_EvictionUnloadsHandle(t *testing.T) {
	tier := NewPluginTier(1)
	a := &fakePlugin{path: "a.go"}
	b := &fakePlugin{path: "b.go"}

	tier.Set("a.go", a)
	tier.Set("b.go", b)

	assert.True(t, a.unloaded)
	assert.False(t, tier.Has("a.go"))
	assert.True(t, tier.Has("b.go"))
}

func TestOrchestrator_RoutesToCorrectTier(t *testing.T) {
	o := New(100, 50, nil)
	o.SetLRU("k", "lru-value", "")
	o.SetPinned("alias", "pinned-value", "@.x")

	v, ok := o.Get(TierLRU, "k")
	require.True(t, ok)
	assert.Equal(t, "lru-value", v)

	v, ok = o.Get(TierPinned, "alias")
	require.True(t, ok)
	assert.Equal(t, "pinned-value", v)

	_, ok = o.Get(Tier("bogus"), "k")
	assert.False(t, ok)
}

func TestOrchestrator_ClearAllVisitsEveryTier(t *testing.T) {
	o := New(100, 50, nil)
	o.SetLRU("k", 1, "")
	o.SetPinned("a", 1, "@.x")
	o.SetSchema("db", &fakeConn{backend: "sqlite"})
	o.SetPlugin("p.go", &fakePlugin{path: "p.go"})

	o.Clear("all", "")

	assert.Equal(t, 0, o.LRU.Len())
	assert.False(t, o.Pinned.Has("a"))
	assert.False(t, o.Schema.Has("db"))
	assert.Equal(t, 0, o.Plugin.Len())
}

func TestOrchestrator_Stats_AllTiers(t *testing.T) {
	o := New(100, 50, nil)
	o.SetLRU("k", 1, "")
	o.Get(TierLRU, "k")
	o.Get(TierLRU, "missing")

	stats := o.Stats("all")
	require.Contains(t, stats, "system")
	require.Contains(t, stats, "pinned")
	require.Contains(t, stats, "schema")
	require.Contains(t, stats, "plugin")
	assert.Equal(t, 1, stats["system"].Hits)
	assert.Equal(t, 1, stats["system"].Misses)
}
