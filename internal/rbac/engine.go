// Package rbac implements the four-level RBAC hierarchy spec.md §3/§4.2
// describes (public, guest-only, authenticated, authorized), backed by a
// google/mangle Datalog engine scoped down from the teacher's
// internal/mangle wrapper: two-ary `has_role`/`has_permission` facts and
// plain existence queries, rather than the teacher's general-purpose typed
// fact store.
package rbac

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	_ "github.com/google/mangle/packages"
	"github.com/google/mangle/parse"
	"github.com/google/mangle/unionfind"
)

// schema declares the two predicates RBAC evaluation ever queries.
const schema = `
Decl has_role(user, role)
  descr [mode("+", "+")].

Decl has_permission(user, perm)
  descr [mode("+", "+")].
`

// Engine is a minimal Mangle-backed fact store for user→role and
// user→permission grants.
type Engine struct {
	mu           sync.RWMutex
	store        factstore.ConcurrentFactStore
	programInfo  *analysis.ProgramInfo
	queryContext *mengine.QueryContext
	queryTimeout time.Duration
}

// NewEngine builds an Engine with the RBAC schema pre-loaded.
func NewEngine() (*Engine, error) {
	baseStore := factstore.NewSimpleInMemoryStore()
	e := &Engine{
		store:        factstore.NewConcurrentFactStore(baseStore),
		queryTimeout: 5 * time.Second,
	}
	if err := e.loadSchema(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadSchema() error {
	unit, err := parse.Unit(bytes.NewReader([]byte(schema)))
	if err != nil {
		return fmt.Errorf("rbac: parse schema: %w", err)
	}

	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return fmt.Errorf("rbac: analyze schema: %w", err)
	}

	predToDecl := make(map[ast.PredicateSym]*ast.Decl, len(programInfo.Decls))
	for sym, decl := range programInfo.Decls {
		predToDecl[sym] = decl
	}

	e.programInfo = programInfo
	e.queryContext = &mengine.QueryContext{
		PredToRules: map[ast.PredicateSym][]ast.Clause{},
		PredToDecl:  predToDecl,
		Store:       e.store,
	}
	return nil
}

// GrantRole asserts that user holds role.
func (e *Engine) GrantRole(user, role string) error {
	return e.assertFact("has_role", user, role)
}

// GrantPermission asserts that user holds perm.
func (e *Engine) GrantPermission(user, perm string) error {
	return e.assertFact("has_permission", user, perm)
}

func (e *Engine) assertFact(predicate, a, b string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sym := ast.PredicateSym{Symbol: predicate, Arity: 2}
	atom := ast.Atom{
		Predicate: sym,
		Args:      []ast.BaseTerm{ast.String(a), ast.String(b)},
	}
	e.store.Add(atom)
	return nil
}

// HasRole reports whether user holds role, querying the fact store directly
// (a two-ground-argument atom lookup, no rule evaluation needed for a bare
// grant check).
func (e *Engine) HasRole(ctx context.Context, user, role string) (bool, error) {
	return e.hasFact(ctx, "has_role", user, role)
}

// HasPermission reports whether user holds perm.
func (e *Engine) HasPermission(ctx context.Context, user, perm string) (bool, error) {
	return e.hasFact(ctx, "has_permission", user, perm)
}

func (e *Engine) hasFact(ctx context.Context, predicate, a, b string) (bool, error) {
	e.mu.RLock()
	sym := ast.PredicateSym{Symbol: predicate, Arity: 2}
	atom := ast.Atom{
		Predicate: sym,
		Args:      []ast.BaseTerm{ast.String(a), ast.String(b)},
	}
	decl, ok := e.queryContext.PredToDecl[sym]
	queryContext := e.queryContext
	e.mu.RUnlock()
	if !ok || len(decl.Modes()) == 0 {
		return false, fmt.Errorf("rbac: predicate %s has no declared mode", predicate)
	}
	mode := decl.Modes()[0]

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}

	found := false
	resultCh := make(chan error, 1)
	go func() {
		resultCh <- queryContext.EvalQuery(atom, mode, unionfind.New(), func(ast.Atom) error {
			found = true
			return nil
		})
	}()

	select {
	case err := <-resultCh:
		if err != nil {
			return false, fmt.Errorf("rbac: evaluate %s(%s,%s): %w", predicate, a, b, err)
		}
		return found, nil
	case <-ctx.Done():
		return false, fmt.Errorf("rbac: query %s timed out: %w", predicate, ctx.Err())
	}
}

// HasAnyRole reports whether user holds at least one of roles.
func (e *Engine) HasAnyRole(ctx context.Context, user string, roles []string) (bool, error) {
	for _, role := range roles {
		ok, err := e.HasRole(ctx, user, role)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAnyPermission reports whether user holds at least one of perms.
func (e *Engine) HasAnyPermission(ctx context.Context, user string, perms []string) (bool, error) {
	for _, perm := range perms {
		ok, err := e.HasPermission(ctx, user, perm)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
