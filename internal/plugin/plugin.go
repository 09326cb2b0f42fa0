// Package plugin implements the &fname(args) function registry and the
// Cache Orchestrator's plugin tier handle, both backed by a sandboxed
// yaegi interpreter per module file. Grounded on the teacher's
// internal/autopoiesis/yaegi_executor.go (stdlib allow-list, wrapped-code
// evaluation, context-bounded execution).
package plugin

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/logging"
)

// allowedPackages is the stdlib import allow-list SPEC_FULL.md §3 commits
// to — no network, filesystem, or exec access from plugin code.
var allowedPackages = map[string]bool{
	"strings":         true,
	"strconv":         true,
	"fmt":             true,
	"math":            true,
	"regexp":          true,
	"encoding/json":   true,
	"encoding/base64": true,
	"time":            true,
	"sort":            true,
	"bytes":           true,
}

// defaultTimeout bounds a single &fname(args) call — the plugin tier never
// blocks the Loop Engine indefinitely on a misbehaving module.
const defaultTimeout = 5 * time.Second

// Module is one loaded &fname source file: a yaegi interpreter holding
// every function the file defines, wrapped so the Cache Orchestrator's
// PluginTier can hold it as an opaque handle (cache.PluginHandle).
type Module struct {
	path string
	i    *interp.Interpreter

	mu     sync.Mutex
	funcs  map[string]func([]string) (interface{}, error)
}

// Path satisfies cache.PluginHandle.
func (m *Module) Path() string { return m.path }

// Unload satisfies cache.PluginHandle; yaegi interpreters carry no external
// resources to release, so this only drops the function table.
func (m *Module) Unload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = nil
}

// Load reads a Go source file from path, validates its imports against the
// allow-list, and evaluates it in a fresh yaegi interpreter. Exported
// top-level functions of signature func(...string) (interface{}, error) or
// func(...string) interface{} become callable by name through Call.
func Load(path string) (*Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if err := validateImports(string(src)); err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("plugin: load stdlib: %w", err)
	}
	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("plugin: evaluate %s: %w", path, err)
	}

	return &Module{path: path, i: i, funcs: map[string]func([]string) (interface{}, error){}}, nil
}

func validateImports(src string) error {
	lines := strings.Split(src, "\n")
	inBlock := false
	var forbidden []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && trimmed == ")":
			inBlock = false
		case inBlock:
			pkg := strings.Trim(trimmed, `"`)
			if pkg != "" && !allowedPackages[pkg] {
				forbidden = append(forbidden, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			pkg := strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`)
			if !allowedPackages[pkg] {
				forbidden = append(forbidden, pkg)
			}
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v", forbidden)
	}
	return nil
}

// Call invokes funcName(args...) inside the module's interpreter, bounded
// by defaultTimeout. The evaluated function must have signature
// func(...string) (interface{}, error) or func(...string) interface{}.
func (m *Module) Call(ctx context.Context, funcName string, args []string) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	v, err := m.i.Eval(funcName)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: function %q not found: %w", m.path, funcName, err)
	}

	type result struct {
		val interface{}
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{err: fmt.Errorf("plugin %s: %s panicked: %v", m.path, funcName, r)}
			}
		}()
		switch fn := v.Interface().(type) {
		case func(...string) (interface{}, error):
			val, err := fn(args...)
			resultCh <- result{val: val, err: err}
		case func(...string) interface{}:
			resultCh <- result{val: fn(args...)}
		default:
			resultCh <- result{err: fmt.Errorf("plugin %s: function %q has unsupported signature", m.path, funcName)}
		}
	}()

	select {
	case r := <-resultCh:
		return r.val, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("plugin %s: function %q timed out: %w", m.path, funcName, ctx.Err())
	}
}

// Registry loads and caches Module handles by file path, implementing
// wizard.FuncRegistry for &fname(args) resolution. Loaded modules are kept
// in the registry's own map, which is never evicted; the registry does not
// store them in the Cache Orchestrator's plugin tier.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
	search  []string // directories searched for "<fname>.go", in order
	log     *logging.Logger
}

// NewRegistry builds a registry that resolves a bare function name against
// "<dir>/<name>.go" for each directory in searchPaths, in order.
func NewRegistry(searchPaths []string) *Registry {
	return &Registry{
		modules: map[string]*Module{},
		search:  searchPaths,
		log:     logging.Get(logging.CategoryPlugin),
	}
}

// Call implements wizard.FuncRegistry: resolves name to a module file,
// loading (and caching) it on first use, then invokes it.
func (r *Registry) Call(name string, args []string) (interface{}, error) {
	mod, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	return mod.Call(context.Background(), "main."+exportedName(name), args)
}

func (r *Registry) resolve(name string) (*Module, error) {
	r.mu.RLock()
	if mod, ok := r.modules[name]; ok {
		r.mu.RUnlock()
		return mod, nil
	}
	r.mu.RUnlock()

	for _, dir := range r.search {
		path := dir + "/" + name + ".go"
		if _, err := os.Stat(path); err != nil {
			continue
		}
		mod, err := Load(path)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.modules[name] = mod
		r.mu.Unlock()
		r.log.Debug("loaded plugin %q from %s", name, path)
		return mod, nil
	}
	return nil, fmt.Errorf("plugin: function %q not found in %v", name, r.search)
}

// exportedName upper-cases a function name's first rune, matching yaegi's
// requirement that an evaluated identifier be package-exported to resolve
// via "main.Name" — &lower(args) in YAML maps to func Lower(...) in Go.
func exportedName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
