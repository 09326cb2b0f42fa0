// Package cache implements the four-tier Cache Orchestrator (spec.md §4.1):
// an LRU auto-cache with mtime invalidation, user-pinned aliases, a live
// schema/connection pool, and an LRU-bounded plugin-module cache, routed by
// tier name from a single entry point. Grounded on the original framework's
// CacheOrchestrator/PinnedCache/SchemaCache routing split and, for the
// optional file-watch behaviour, on the teacher's fsnotify-based watcher.
package cache

// Tier names the four cache tiers the orchestrator routes between.
type Tier string

const (
	TierLRU    Tier = "system"
	TierPinned Tier = "pinned"
	TierSchema Tier = "schema"
	TierPlugin Tier = "plugin"
)

// TierStats is the per-tier counter set the orchestrator reports (spec.md
// §4.1 "Statistics are per-tier counters: hits, misses, evictions,
// invalidations").
type TierStats struct {
	Hits          int
	Misses        int
	Evictions     int
	Invalidations int
}

// Logger is the minimal logging contract the orchestrator needs; satisfied
// by *logging.Logger.
type Logger interface {
	Warn(format string, args ...interface{})
}

// Orchestrator routes get/set/has/clear/stats requests to one of the four
// cache tiers (spec.md §4.1).
type Orchestrator struct {
	LRU    *LRUTier
	Pinned *PinnedTier
	Schema *SchemaTier
	Plugin *PluginTier

	logger Logger
}

// New builds an orchestrator with all four tiers initialised. lruMax and
// pluginMax bound the LRU and plugin tiers respectively; logger receives
// schema-tier best-effort disconnect warnings and unknown-tier warnings.
func New(lruMax, pluginMax int, logger Logger) *Orchestrator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Orchestrator{
		LRU:    NewLRUTier(lruMax),
		Pinned: NewPinnedTier(),
		Schema: NewSchemaTier(logger.Warn),
		Plugin: NewPluginTier(pluginMax),
		logger: logger,
	}
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...interface{}) {}

// WarnLogger exposes the orchestrator's Warn func for collaborators (such as
// a cache.Watcher) that want to report into the same logging sink.
func (o *Orchestrator) WarnLogger() func(format string, args ...interface{}) {
	return o.logger.Warn
}

// Get routes a lookup to the named tier. For TierLRU, validity is gated by
// the mtime of the source path recorded when the entry was stored.
func (o *Orchestrator) Get(tier Tier, key string) (interface{}, bool) {
	switch tier {
	case TierLRU:
		return o.LRU.Get(key)
	case TierPinned:
		return o.Pinned.Get(key)
	case TierSchema:
		h, ok := o.Schema.Get(key)
		if !ok {
			return nil, false
		}
		return h, true
	case TierPlugin:
		return o.Plugin.Get(key)
	default:
		o.logger.Warn("cache orchestrator: unknown tier %q", tier)
		return nil, false
	}
}

// SetLRU stores value in the LRU tier, stat'ing sourcePath for mtime
// invalidation ("" to store without a file dependency).
func (o *Orchestrator) SetLRU(key string, value interface{}, sourcePath string) {
	o.LRU.Set(key, value, sourcePath)
}

// SetPinned loads alias into the pinned tier, recording its source zpath.
func (o *Orchestrator) SetPinned(alias string, value interface{}, zpath string) {
	o.Pinned.Set(alias, value, zpath)
}

// SetSchema stores a live connection under alias in the schema tier.
func (o *Orchestrator) SetSchema(alias string, handle ConnHandle) {
	o.Schema.Set(alias, handle)
}

// SetPlugin stores a loaded plugin module under path.
func (o *Orchestrator) SetPlugin(path string, handle PluginHandle) {
	o.Plugin.Set(path, handle)
}

// Has routes an existence check to the named tier.
func (o *Orchestrator) Has(tier Tier, key string) bool {
	switch tier {
	case TierLRU:
		return o.LRU.Has(key)
	case TierPinned:
		return o.Pinned.Has(key)
	case TierSchema:
		return o.Schema.Has(key)
	case TierPlugin:
		return o.Plugin.Has(key)
	default:
		o.logger.Warn("cache orchestrator: unknown tier %q", tier)
		return false
	}
}

// Clear clears the named tier, or every tier when tier == "all" (spec.md
// §4.1 invariant: "a clear(\"all\") must visit every tier").
func (o *Orchestrator) Clear(tier Tier, pattern string) {
	if tier == "all" || tier == TierLRU {
		o.LRU.Clear(pattern)
	}
	if tier == "all" || tier == TierPinned {
		o.Pinned.Clear(pattern)
	}
	if tier == "all" || tier == TierSchema {
		o.Schema.Clear()
	}
	if tier == "all" || tier == TierPlugin {
		o.Plugin.Clear(pattern)
	}
}

// Stats reports per-tier statistics for the named tier, or every tier when
// tier == "all".
func (o *Orchestrator) Stats(tier Tier) map[string]TierStats {
	out := make(map[string]TierStats)
	if tier == "all" || tier == TierLRU {
		out[string(TierLRU)] = o.LRU.Stats
	}
	if tier == "all" || tier == TierPinned {
		out[string(TierPinned)] = o.Pinned.Stats
	}
	if tier == "all" || tier == TierSchema {
		out[string(TierSchema)] = o.Schema.Stats
	}
	if tier == "all" || tier == TierPlugin {
		out[string(TierPlugin)] = o.Plugin.Stats
	}
	return out
}

// String satisfies fmt.Stringer for Tier, used in log messages.
func (t Tier) String() string { return string(t) }
