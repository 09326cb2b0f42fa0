// Package session implements the process-wide Session object (spec.md §3
// Session): the current zPath triple, execution mode, breadcrumb trails,
// auth tier, cache metadata, and start-time defaults. Grounded on the
// teacher's mutex-guarded manager structs (e.g. BackgroundObserverManager),
// adapted so concurrent Bifrost-mode steps read a snapshot and write only
// through well-defined mutators (spec.md §3 invariant).
package session

import (
	"sync"
	"time"
)

// Mode is the session's current execution mode (spec.md §3 zMode).
type Mode string

const (
	ModeTerminal Mode = "Terminal"
	ModeWalker   Mode = "Walker"
	ModeBifrost  Mode = "Bifrost"
	ModeEmpty    Mode = "Empty"
)

// AuthTier names the three session auth contexts (spec.md §3 zAuth) plus
// the unauthenticated default used by the bridge's connection lifecycle.
type AuthTier string

const (
	AuthZSession    AuthTier = "zSession"
	AuthApplication AuthTier = "application"
	AuthDual        AuthTier = "dual"
	AuthGuest       AuthTier = "guest"
)

// ZPath is the current location triple: folder, file, and block name.
type ZPath struct {
	Folder string
	File   string
	Block  string
}

// Auth carries the authenticated identity and the tier it was established
// under, plus the roles/permissions RBAC evaluates against. Claims holds
// arbitrary session-level fields (e.g. a department or tenant id) that a
// zLink permission predicate can check by simple equality.
type Auth struct {
	Tier        AuthTier
	UserID      string
	Roles       []string
	Permissions []string
	Claims      map[string]interface{}
}

// Authenticated reports whether this auth snapshot represents a logged-in
// user (spec.md §3 RBAC Requirement semantics: guest ≠ authenticated).
func (a Auth) Authenticated() bool {
	return a.Tier != "" && a.Tier != AuthGuest
}

// CacheMeta is the session-visible (serialisable) mirror of cache-tier
// state — never the live handles themselves (spec.md §4.1 invariant).
type CacheMeta struct {
	DefaultTTL time.Duration
}

// Snapshot is an immutable read of the session at a point in time, safe to
// pass across goroutine boundaries (spec.md §3: "concurrent steps in
// Bifrost mode each read a snapshot").
type Snapshot struct {
	Path    ZPath
	Mode    Mode
	Auth    Auth
	Cache   CacheMeta
	Spark   map[string]interface{}
}

// Session is the process-wide keyed state object. All mutation goes through
// its methods; callers never write to a Snapshot they were handed.
type Session struct {
	mu    sync.RWMutex
	path  ZPath
	mode  Mode
	auth  Auth
	cache CacheMeta
	spark map[string]interface{}

	crumbs *Breadcrumbs
}

// New builds a fresh session in Empty mode with guest auth and the given
// start-time defaults (zSpark).
func New(spark map[string]interface{}) *Session {
	if spark == nil {
		spark = map[string]interface{}{}
	}
	return &Session{
		mode:   ModeEmpty,
		auth:   Auth{Tier: AuthGuest},
		crumbs: NewBreadcrumbs(),
		spark:  spark,
	}
}

// Snapshot returns a consistent read of the session's current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Path: s.path, Mode: s.mode, Auth: s.auth, Cache: s.cache, Spark: s.spark}
}

// SetPath overwrites the current zPath triple.
func (s *Session) SetPath(p ZPath) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = p
}

// Path returns the current zPath triple.
func (s *Session) Path() ZPath {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// SetMode overwrites the current execution mode.
func (s *Session) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// Mode returns the current execution mode.
func (s *Session) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Login establishes an authenticated identity under the given tier.
func (s *Session) Login(tier AuthTier, userID string, roles, permissions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = Auth{Tier: tier, UserID: userID, Roles: roles, Permissions: permissions}
}

// Logout resets auth to guest and clears breadcrumbs (spec.md §3 Breadcrumb
// State lifecycle: "reset on logout").
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = Auth{Tier: AuthGuest}
	s.crumbs = NewBreadcrumbs()
}

// AuthSnapshot returns the current auth state.
func (s *Session) AuthSnapshot() Auth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth
}

// SetAuthClaim records an arbitrary key/value on the session's auth state,
// for zLink permission predicates that check fields beyond role/permission.
func (s *Session) SetAuthClaim(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auth.Claims == nil {
		s.auth.Claims = make(map[string]interface{})
	}
	s.auth.Claims[key] = value
}

// SetCacheTTL updates the session-visible default TTL mirror.
func (s *Session) SetCacheTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.DefaultTTL = ttl
}

// Spark returns the value stored under key in the start-time defaults map.
func (s *Session) Spark(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.spark[key]
	return v, ok
}

// Crumbs returns the session's breadcrumb state. Breadcrumbs has its own
// internal locking, so callers may use it directly without holding the
// session's lock.
func (s *Session) Crumbs() *Breadcrumbs {
	return s.crumbs
}
