// Package wizard implements the Loop Engine (spec.md §4.2): the ordered
// key/value step executor with RBAC gating, variable interpolation,
// transaction scoping, navigation-signal handling, and the two execution
// strategies (sequential blocking, chunked generator-based Bifrost
// rendering). Grounded on zWizard.py's execute_loop/handle split.
package wizard

import (
	"context"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/accumulator"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/block"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/cache"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/session"
)

// NavigationSignals is the closed set spec.md §3 defines (plus the
// key-jump and zLink cases, which are not members of this set).
var NavigationSignals = map[string]bool{
	SignalZBack: true,
	SignalExit:  true,
	SignalStop:  true,
	SignalError: true,
	SignalEmpty: true,
}

const (
	SignalZBack = "zBack"
	SignalExit  = "exit"
	SignalStop  = "stop"
	SignalError = "error"
	SignalEmpty = ""
)

// Context is passed to every Dispatcher.Dispatch call. It mirrors the
// original's step_context: wizard_mode flag, shared schema cache, the
// accumulator under construction, resolved block-level _data, and the
// session the RBAC checker and navigation mutators read/write.
type Context struct {
	WizardMode   bool
	Schema       *cache.SchemaTier
	Accumulator  *accumulator.Accumulator
	ResolvedData map[string]interface{}
	Session      *session.Session
	Extra        map[string]interface{}
}

// Dispatcher routes a single step to the subsystem its DispatchKind names.
// The default implementation lives outside this package (display, data,
// func, link, dialog collaborators); tests and callers may substitute any
// Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, key string, step block.Step, dctx *Context) (interface{}, error)
}

// DispatchFunc adapts a plain function to the Dispatcher interface.
type DispatchFunc func(ctx context.Context, key string, step block.Step, dctx *Context) (interface{}, error)

func (f DispatchFunc) Dispatch(ctx context.Context, key string, step block.Step, dctx *Context) (interface{}, error) {
	return f(ctx, key, step, dctx)
}

// DataResolver resolves a block-level _data metadata key into a map of
// named query results, executed once before the block's children iterate
// (spec.md §4.2 step 3, the "Flask-style" _data pattern).
type DataResolver interface {
	ResolveData(ctx context.Context, dataStep block.Step, dctx *Context) (map[string]interface{}, error)
}

// Callbacks are the caller-supplied navigation hooks (spec.md §4.2.1 step
// 5: "dispatch to the caller-supplied callback if present, else return
// it"), grounded on zWizard.py's navigation_callbacks dict.
type Callbacks struct {
	OnBack     func(signal string) interface{}
	OnExit     func(signal string) interface{}
	OnStop     func(signal string) interface{}
	OnError    func(err error, key string) interface{}
	OnContinue func(result interface{}, key string)
}

func (c *Callbacks) call(signal string, key string, err error) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	switch signal {
	case SignalZBack:
		if c.OnBack != nil {
			return c.OnBack(signal), true
		}
	case SignalExit:
		if c.OnExit != nil {
			return c.OnExit(signal), true
		}
	case SignalStop:
		if c.OnStop != nil {
			return c.OnStop(signal), true
		}
	case SignalError, SignalEmpty:
		if c.OnError != nil {
			return c.OnError(err, key), true
		}
	}
	return nil, false
}
