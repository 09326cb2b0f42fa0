package wizard

import (
	"context"
	"fmt"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/block"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/corerr"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/logging"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/rbac"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/session"
)

// Display is the minimal rendering surface the engine needs for RBAC
// denial messages and per-step progress declarations — a narrower cut of
// the display collaborator spec.md §1 treats as external.
type Display interface {
	Declare(message string)
}

// Engine is the Loop Engine (spec.md §4.2), built once per process and
// reused across workflows. It owns the RBAC checker and the logger; the
// session, dispatcher, and accumulator are per-invocation.
type Engine struct {
	Checker  *rbac.Checker
	Display  Display
	Resolver DataResolver
	log      *logging.Logger
}

// New builds an Engine. checker may be nil only if every workflow the
// engine runs is known to carry no zRBAC metadata — absence is fail-safe
// per spec.md §4.2.4, so an unset checker still denies any step that does
// declare a requirement.
func New(checker *rbac.Checker, display Display, resolver DataResolver) *Engine {
	if checker == nil {
		checker = rbac.NewChecker(nil)
	}
	return &Engine{Checker: checker, Display: display, Resolver: resolver, log: logging.Get(logging.CategoryWizard)}
}

// ExecuteLoop is the public contract from spec.md §4.2: execute_loop(block,
// dispatch?, callbacks?, context?, start_key?, ws_callback?, block_name?).
// ws_callback is handled by Resume/the bridge, not this signature — Go
// models the chunked strategy as a separate entry point (StartChunked)
// rather than overloading one function with a mode flag.
func (e *Engine) ExecuteLoop(ctx context.Context, b *block.Block, dispatch Dispatcher, callbacks *Callbacks, dctx *Context, startKey, blockName string) (string, error) {
	if blockName != "" {
		step, ok := b.Get(blockName)
		if !ok || step.Nested == nil {
			e.log.Warn("block %q not found, processing all keys", blockName)
		} else {
			b = step.Nested
		}
	}

	if signal, handled := e.checkBlockRBAC(ctx, b, dctx); handled {
		return signal, nil
	}

	if err := e.resolveBlockData(ctx, b, dctx); err != nil {
		e.log.Warn("error resolving _data: %v", err)
	}

	keys := b.ExecutableKeys()
	idx := indexOf(keys, startKey)

	for idx < len(keys) {
		key := keys[idx]
		step, _ := b.Get(key)

		e.log.Debug("processing key %s", key)
		if e.Display != nil {
			e.Display.Declare(fmt.Sprintf("=> %s", key))
		}

		decision, reason, err := e.Checker.Check(ctx, key, step.RBAC(), dctx.Session.AuthSnapshot())
		if err != nil {
			e.log.Warn("rbac check for %q: %v", key, err)
		}
		if decision == rbac.Denied {
			if e.Display != nil && reason != "" {
				e.Display.Declare("access denied: " + reason)
			}
			idx++
			continue
		}
		if decision == rbac.DeniedZGuest {
			if e.Display != nil && reason != "" {
				e.Display.Declare("access denied: " + reason)
			}
			return SignalZBack, nil
		}

		InterpolateStep(&step, dctx)

		result, dispatchErr := dispatch.Dispatch(ctx, key, step, dctx)
		if dispatchErr != nil {
			cbResult, handled := callbacks.call(SignalError, key, corerr.New(corerr.KindDispatch, key, dispatchErr))
			if handled {
				if s, ok := cbResult.(string); ok {
					return s, nil
				}
				return SignalError, nil
			}
			e.log.Warn("dispatch error on %q: %v", key, dispatchErr)
			idx++
			continue
		}

		signal, keyJump := normalizeResult(result, keys)

		if keyJump != "" {
			e.trackMenuBreadcrumb(dctx, key, keyJump, keys)
			idx = indexOf(keys, keyJump)
			continue
		}

		if signal != "" {
			if cbResult, handled := callbacks.call(signal, key, nil); handled {
				if s, ok := cbResult.(string); ok {
					return s, nil
				}
				return signal, nil
			}
			return signal, nil
		}

		if callbacks != nil && callbacks.OnContinue != nil {
			callbacks.OnContinue(result, key)
		}

		// Menu loopback (spec.md §4.2.1 step 6): scan backward for an
		// anchored+menu key and resume there instead of advancing.
		if menuIdx := findMenuLoopback(keys, idx); menuIdx >= 0 {
			idx = menuIdx
			continue
		}
		idx++
	}

	return "", nil
}

// checkBlockRBAC evaluates the block-level zRBAC metadata key, if present,
// returning (signal, true) when the block denies access outright (spec.md
// §4.2 step 2).
func (e *Engine) checkBlockRBAC(ctx context.Context, b *block.Block, dctx *Context) (string, bool) {
	rbacStep, ok := b.Get("zRBAC")
	if !ok {
		return "", false
	}
	req := rbacStep.RBAC()
	if req == nil {
		return "", false
	}
	decision, reason, err := e.Checker.Check(ctx, "zRBAC", req, dctx.Session.AuthSnapshot())
	if err != nil {
		e.log.Warn("block rbac check: %v", err)
	}
	switch decision {
	case rbac.Denied:
		if e.Display != nil {
			e.Display.Declare("access denied: " + reason)
		}
		return SignalZBack, true
	case rbac.DeniedZGuest:
		if e.Display != nil {
			e.Display.Declare("access denied: " + reason)
		}
		return SignalZBack, true
	default:
		return "", false
	}
}

// resolveBlockData resolves a block's _data metadata key exactly once,
// before any child executes (spec.md §4.2 step 3), populating
// dctx.ResolvedData for %data.X interpolation in children.
func (e *Engine) resolveBlockData(ctx context.Context, b *block.Block, dctx *Context) error {
	dataStep, ok := b.Get("_data")
	if !ok || e.Resolver == nil {
		return nil
	}
	resolved, err := e.Resolver.ResolveData(ctx, dataStep, dctx)
	if err != nil {
		return err
	}
	if dctx.ResolvedData == nil {
		dctx.ResolvedData = map[string]interface{}{}
	}
	for k, v := range resolved {
		dctx.ResolvedData[k] = v
	}
	return nil
}

// trackMenuBreadcrumb updates session breadcrumbs on a key-jump: POP_TO
// when jumping backward to an earlier anchored menu, APPEND otherwise
// (spec.md §4.2.1 step 5, scenario S2).
func (e *Engine) trackMenuBreadcrumb(dctx *Context, fromKey, toKey string, keys []string) {
	if dctx == nil || dctx.Session == nil {
		return
	}
	scope := scopeOf(dctx.Session.Path())
	crumbs := dctx.Session.Crumbs()

	toIdx := indexOf(keys, toKey)
	fromIdx := indexOf(keys, fromKey)
	if block.IsAnchoredMenu(toKey) && toIdx < fromIdx {
		crumbs.PopTo(scope, toKey)
		return
	}
	crumbs.Append(scope, toKey)
}

func scopeOf(p session.ZPath) string {
	return p.Folder + "." + p.File + "." + p.Block
}

// normalizeResult classifies a dispatch result per spec.md §4.2.1 step 4:
// a key-jump (string naming another key in this block, not a signal), a
// navigation signal (string or single-key dict, normalized to its string
// form per testable property 13), or neither (pass-through, no navigation).
func normalizeResult(result interface{}, keys []string) (signal string, keyJump string) {
	switch v := result.(type) {
	case string:
		if NavigationSignals[v] {
			return v, ""
		}
		if contains(keys, v) {
			return "", v
		}
		return "", ""
	case map[string]interface{}:
		if _, ok := v["zLink"]; ok {
			return "", "" // zLink is handled by the caller via navigation.Resolve
		}
		if len(v) == 1 {
			for k := range v {
				if NavigationSignals[k] {
					return k, ""
				}
			}
		}
		return "", ""
	default:
		return "", ""
	}
}

// findMenuLoopback scans backward from idx-1 for an anchored+menu key
// (spec.md §4.2.1 step 6).
func findMenuLoopback(keys []string, idx int) int {
	for i := idx - 1; i >= 0; i-- {
		if block.IsAnchoredMenu(keys[i]) {
			return i
		}
	}
	return -1
}

func indexOf(keys []string, key string) int {
	if key == "" {
		return 0
	}
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return 0
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
