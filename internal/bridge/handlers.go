package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/accumulator"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/cache"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/navigation"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/session"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/wizard"
)

// handleBuiltin dispatches one of the fourteen built-in event names to its
// handler, all awaited inline on the read loop (spec.md §4.4/§6).
func (b *Bridge) handleBuiltin(ctx context.Context, conn *Connection, env envelope) {
	switch env.Event {
	case EventInputResponse:
		b.handleInputResponse(conn, env)
	case EventConnectionInfo:
		_ = conn.writeJSON(b.connectionInfoEvent(conn))
	case EventPageUnload:
		b.handlePageUnload(conn, env)
	case EventGetSchema:
		b.handleGetSchema(conn, env)
	case EventClearCache:
		b.handleClearCache(conn)
	case EventCacheStats:
		b.handleCacheStats(conn)
	case EventSetCacheTTL:
		b.handleSetCacheTTL(conn, env)
	case EventDiscover:
		b.handleDiscover(conn)
	case EventIntrospect:
		b.handleDiscover(conn)
	case EventDispatch:
		b.handleDispatch(conn, env)
	case EventMenuSelection:
		b.handleMenuSelection(ctx, conn, env)
	case EventExecuteWalker:
		b.handleExecuteWalker(ctx, conn, env)
	case EventLoadPage:
		b.handleLoadPage(ctx, conn, env)
	case EventFormSubmit:
		b.handleFormSubmit(conn, env)
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	return json.Unmarshal(raw, v)
}

// handleInputResponse forwards a client reply to the pending-input
// registry (spec.md §6: "forward to the display collaborator's pending-
// input registry, which resolves a promise awaited elsewhere").
func (b *Bridge) handleInputResponse(conn *Connection, env envelope) {
	var p inputResponsePayload
	if err := decode(env.Payload, &p); err != nil || p.RequestID == "" {
		_ = conn.writeJSON(errMsg("input_response requires requestId"))
		return
	}
	if !b.resolveInput(p.RequestID, p.Value) {
		b.log.Debug("input_response for unknown requestId %s", p.RequestID)
	}
}

func (b *Bridge) handlePageUnload(conn *Connection, env envelope) {
	var p pageUnloadPayload
	_ = decode(env.Payload, &p)
	b.log.Info("connection %s: page unload (%s)", conn.ID, p.Reason)
}

func (b *Bridge) handleGetSchema(conn *Connection, env envelope) {
	var p getSchemaPayload
	_ = decode(env.Payload, &p)
	if b.schemas == nil {
		_ = conn.writeJSON(errMsg("no schema provider configured"))
		return
	}
	schema, err := b.schemas.Schema(p.Model)
	if err != nil {
		_ = conn.writeJSON(errorPayload{Event: EventError, Error: "schema lookup failed", Message: err.Error()})
		return
	}
	_ = conn.writeJSON(map[string]interface{}{"event": EventGetSchema, "model": p.Model, "schema": schema})
}

// handleClearCache infers scope from the connection's auth tier (spec.md
// §6): application auth clears only the pinned (app-scoped) tier; zSession
// and dual auth clear every tier with the user's id as the pattern, though
// the schema tier ignores the pattern and is always cleared in full;
// an unauthenticated (guest) connection clears every tier unconditionally,
// preserving the original framework's backward-compatible default.
func (b *Bridge) handleClearCache(conn *Connection) {
	if b.cacheOrch == nil {
		_ = conn.writeJSON(errMsg("no cache orchestrator configured"))
		return
	}
	auth := conn.Session.AuthSnapshot()
	switch auth.Tier {
	case session.AuthApplication:
		b.cacheOrch.Clear(cache.TierPinned, "")
	case session.AuthZSession, session.AuthDual:
		b.cacheOrch.Clear("all", auth.UserID)
	default:
		b.cacheOrch.Clear("all", "")
	}
	_ = conn.writeJSON(map[string]interface{}{"event": EventClearCache, "cleared": true})
}

func (b *Bridge) handleCacheStats(conn *Connection) {
	if b.cacheOrch == nil {
		_ = conn.writeJSON(errMsg("no cache orchestrator configured"))
		return
	}
	_ = conn.writeJSON(map[string]interface{}{"event": EventCacheStats, "stats": b.cacheOrch.Stats("all")})
}

// handleSetCacheTTL validates 1 <= ttl <= 3600 (spec.md §6) before applying
// it to the connection's session-visible default TTL mirror.
func (b *Bridge) handleSetCacheTTL(conn *Connection, env envelope) {
	var p setCacheTTLPayload
	if err := decode(env.Payload, &p); err != nil || p.TTL < 1 || p.TTL > 3600 {
		_ = conn.writeJSON(errMsg("ttl must be between 1 and 3600"))
		return
	}
	conn.Session.SetCacheTTL(time.Duration(p.TTL) * time.Second)
	_ = conn.writeJSON(map[string]interface{}{"event": EventSetCacheTTL, "ttl": p.TTL})
}

func (b *Bridge) handleDiscover(conn *Connection) {
	if b.schemas == nil {
		_ = conn.writeJSON(errMsg("no schema provider configured"))
		return
	}
	_ = conn.writeJSON(map[string]interface{}{"event": EventDiscover, "models": b.schemas.Models()})
}

// handleDispatch invokes a named &fname-style function through the plugin
// registry — the bridge's direct line to the function tier without going
// through a full Loop Engine pass.
func (b *Bridge) handleDispatch(conn *Connection, env envelope) {
	var p dispatchPayload
	if err := decode(env.Payload, &p); err != nil || p.Function == "" {
		_ = conn.writeJSON(errMsg("dispatch requires function"))
		return
	}
	if b.funcs == nil {
		_ = conn.writeJSON(errMsg("no function registry configured"))
		return
	}
	result, err := b.funcs.Call(p.Function, p.Args)
	if err != nil {
		_ = conn.writeJSON(errorPayload{Event: EventError, Error: "dispatch failed", Message: err.Error()})
		return
	}
	_ = conn.writeJSON(map[string]interface{}{"event": EventDispatch, "result": result})
}

// handleMenuSelection resumes execution past a paused "*" menu key (spec.md
// §6), tracking breadcrumbs: APPEND menu_key then APPEND the selection.
//
// A menu pause is not a suspended goroutine the way a "!" gate is — per
// runChunked, reaching a menu whose dispatch returns nil ends that
// generator entirely (its Chunks channel closes and Done fires). Resuming
// therefore means starting a fresh chunked run over the same block, at the
// key the selection names, rather than unblocking a channel send.
func (b *Bridge) handleMenuSelection(ctx context.Context, conn *Connection, env envelope) {
	var p menuSelectionPayload
	if err := decode(env.Payload, &p); err != nil || p.MenuKey == "" {
		_ = conn.writeJSON(errMsg("menu_selection requires menu_key"))
		return
	}
	_, pending := conn.activeGenerator()
	if pending != p.MenuKey {
		_ = conn.writeJSON(menuSelectedEvent{Event: EventMenuSelected, MenuKey: p.MenuKey, Success: false})
		return
	}

	scope := conn.Session.Path().Folder + "." + conn.Session.Path().File + "." + conn.Session.Path().Block
	crumbs := conn.Session.Crumbs()
	crumbs.Append(scope, p.MenuKey)
	startKey := ""
	if s, ok := p.Selected.(string); ok {
		crumbs.Append(scope, s)
		startKey = s
	}

	_ = conn.writeJSON(menuSelectedEvent{Event: EventMenuSelected, MenuKey: p.MenuKey, Selected: p.Selected, Success: true})
	b.resumeChunked(ctx, conn, startKey)
}

// handleFormSubmit resumes the generator paused at a "!" gate with the
// submitted form data. Unlike a menu pause, a gate pause keeps runChunked's
// goroutine alive mid-loop (blocked in a select on its resume channel), so
// this is a genuine channel handoff, not a restart.
func (b *Bridge) handleFormSubmit(conn *Connection, env envelope) {
	var p formSubmitPayload
	if err := decode(env.Payload, &p); err != nil {
		_ = conn.writeJSON(errMsg("form_submit requires block and data"))
		return
	}
	gen, _ := conn.activeGenerator()
	if gen == nil {
		_ = conn.writeJSON(errMsg("no page is awaiting input on this connection"))
		return
	}
	gen.Resume(p.Data)
}

// handleExecuteWalker runs the sequential Loop Engine against the named
// zpath to completion and reports its terminal signal — the Walker-mode
// counterpart to load_page's chunked Bifrost rendering.
func (b *Bridge) handleExecuteWalker(ctx context.Context, conn *Connection, env envelope) {
	var p executeWalkerPayload
	if err := decode(env.Payload, &p); err != nil || p.ZPath == "" {
		_ = conn.writeJSON(errMsg("execute_walker requires zpath"))
		return
	}
	zp := navigation.ResolveZPath(p.ZPath)
	if b.pages == nil || b.engine == nil || b.dispatcher == nil {
		_ = conn.writeJSON(errMsg("walker execution is not configured"))
		return
	}
	blocks, err := b.pages.Load(zp.Folder, zp.File)
	if err != nil {
		_ = conn.writeJSON(errorPayload{Event: EventError, Error: "load failed", Message: err.Error()})
		return
	}
	root, ok := blocks[zp.Block]
	if !ok {
		_ = conn.writeJSON(errMsg(fmt.Sprintf("block %q not found", zp.Block)))
		return
	}
	conn.Session.SetPath(zp)
	conn.Session.SetMode(session.ModeWalker)
	dctx := &wizard.Context{Session: conn.Session, Accumulator: accumulator.New()}
	signal, err := b.engine.ExecuteLoop(ctx, root, b.dispatcher, b.walkerBackCallbacks(ctx, conn, dctx), dctx, "", "")
	if err != nil {
		_ = conn.writeJSON(errorPayload{Event: EventError, Error: "execute_walker failed", Message: err.Error()})
		return
	}
	_ = conn.writeJSON(map[string]interface{}{"event": EventExecuteWalker, "signal": signal})
}

// walkerBackCallbacks wires Callbacks.OnBack for a Walker-mode run: on
// zBack, pop the breadcrumb trail, rewrite the session triple to the
// popped scope, reload that file through the Cache Orchestrator, and
// re-enter ExecuteLoop at the resolved back-target key (spec.md §4.3). An
// empty breadcrumb trail, an unparseable scope, or a reload failure all
// fall through to returning the bare zBack signal to the caller.
func (b *Bridge) walkerBackCallbacks(ctx context.Context, conn *Connection, dctx *wizard.Context) *wizard.Callbacks {
	var callbacks *wizard.Callbacks
	callbacks = &wizard.Callbacks{
		OnBack: func(signal string) interface{} {
			scope, resumeKey, ok := conn.Session.Crumbs().Pop()
			if !ok {
				return signal
			}
			zp, ok := navigation.ScopeToZPath(scope)
			if !ok {
				b.log.Warn("zBack: scope %q has fewer than 3 dotted segments, skipping rewrite", scope)
				return signal
			}
			blocks, err := b.pages.Load(zp.Folder, zp.File)
			if err != nil {
				b.log.Warn("zBack: reload %s.%s failed: %v", zp.Folder, zp.File, err)
				return signal
			}
			root, ok := blocks[zp.Block]
			if !ok {
				b.log.Warn("zBack: block %q not found in %s.%s", zp.Block, zp.Folder, zp.File)
				return signal
			}
			conn.Session.SetPath(zp)
			result, err := b.engine.ExecuteLoop(ctx, root, b.dispatcher, callbacks, dctx, resumeKey, "")
			if err != nil {
				b.log.Warn("zBack: resumed execution failed: %v", err)
				return signal
			}
			return result
		},
	}
	return callbacks
}

// handleLoadPage resolves zpath and kicks off the chunked Bifrost run bound
// to this connection. Dispatch through the built-in table happens inline
// (recognising load_page doesn't require a background goroutine), but the
// chunk pump itself always runs in one: a paused "!" gate blocks the
// running generator on its own resume channel, and that channel can only
// ever be fed by a later message on this same connection, so pumping
// inline here would deadlock the read loop against itself.
func (b *Bridge) handleLoadPage(ctx context.Context, conn *Connection, env envelope) {
	var p loadPagePayload
	if err := decode(env.Payload, &p); err != nil || p.ZPath == "" {
		_ = conn.writeJSON(errMsg("load_page requires zpath"))
		return
	}
	zp := navigation.ResolveZPath(p.ZPath)
	if b.pages == nil || b.engine == nil || b.dispatcher == nil {
		_ = conn.writeJSON(errMsg("page loading is not configured"))
		return
	}
	blocks, err := b.pages.Load(zp.Folder, zp.File)
	if err != nil {
		_ = conn.writeJSON(errorPayload{Event: EventError, Error: "load failed", Message: err.Error()})
		return
	}
	root, ok := blocks[zp.Block]
	if !ok {
		_ = conn.writeJSON(errMsg(fmt.Sprintf("block %q not found", zp.Block)))
		return
	}
	conn.Session.SetPath(zp)
	conn.Session.SetMode(session.ModeBifrost)
	dctx := &wizard.Context{Session: conn.Session, Accumulator: accumulator.New()}
	conn.setPage(root, dctx)

	b.startChunkedPump(ctx, conn, "")
}

// resumeChunked restarts the chunked run on the connection's current page
// at startKey, for a menu selection that names the next key to execute.
func (b *Bridge) resumeChunked(ctx context.Context, conn *Connection, startKey string) {
	root, _ := conn.pageContext()
	if root == nil {
		_ = conn.writeJSON(errMsg("no page loaded on this connection"))
		return
	}
	conn.clearGenerator()
	b.startChunkedPump(ctx, conn, startKey)
}

// startChunkedPump launches the generator and its draining goroutine.
// Tracked on the bridge's WaitGroup so Shutdown can bound how long it waits
// for in-flight pages to settle.
func (b *Bridge) startChunkedPump(ctx context.Context, conn *Connection, startKey string) {
	root, dctx := conn.pageContext()
	gen := b.engine.StartChunked(ctx, root, b.dispatcher, nil, dctx, startKey, "")
	conn.setGenerator(gen, "")

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.pumpChunks(ctx, conn, gen)
	}()
}

// pumpChunks drains gen's Chunks channel, rendering each to the client. A
// "!" gate leaves the generator attached to conn so form_submit can feed
// its resume channel directly; a "*" menu pause detaches the (now finished)
// generator but remembers the paused key so menu_selection can restart a
// fresh run from the chosen key.
//
// A chunked run can't resume in place from inside a callback the way
// ExecuteLoop's OnBack recurses (its Chunks channel is one-shot and the
// generator's goroutine is already exiting by the time Outcome arrives on
// Done), so the zBack pop-and-reload happens here instead, once the
// generator has fully drained and before this pump touches conn's
// generator slot — handleBackNavigation starts the replacement pump itself
// when it succeeds, and this function must not then clobber it.
func (b *Bridge) pumpChunks(ctx context.Context, conn *Connection, gen *wizard.Generator) {
	pausedMenu := ""
	for chunk := range gen.Chunks {
		if paused, ok := chunk.GateValue.(map[string]interface{}); ok && !chunk.IsGate {
			if _, p := paused["_paused"]; p && len(chunk.Keys) > 0 {
				pausedMenu = chunk.Keys[len(chunk.Keys)-1]
			}
		}
		_ = conn.writeJSON(renderChunkEvent{
			Event:  EventRenderChunk,
			Keys:   chunk.Keys,
			IsGate: chunk.IsGate,
			Value:  chunk.GateValue,
		})
	}
	outcome := <-gen.Done

	if outcome.Signal == wizard.SignalZBack && b.handleBackNavigation(ctx, conn) {
		return
	}

	if pausedMenu != "" {
		conn.setGenerator(nil, pausedMenu)
	} else {
		conn.clearGenerator()
	}
	if outcome.Err != nil {
		_ = conn.writeJSON(errorPayload{Event: EventError, Error: "load_page failed", Message: outcome.Err.Error()})
	}
}

// handleBackNavigation implements the Bifrost half of spec.md §4.3's zBack
// handling: pop the breadcrumb trail, rewrite the session triple to the
// popped scope, reload through the Cache Orchestrator, and start a fresh
// chunked pump at the resolved back-target key. Reports false (leaving the
// caller to fall through to its normal finished-generator bookkeeping) when
// there's nothing to pop, the scope can't be parsed, or the reload fails.
func (b *Bridge) handleBackNavigation(ctx context.Context, conn *Connection) bool {
	scope, resumeKey, ok := conn.Session.Crumbs().Pop()
	if !ok {
		return false
	}
	zp, ok := navigation.ScopeToZPath(scope)
	if !ok {
		b.log.Warn("zBack: scope %q has fewer than 3 dotted segments, skipping rewrite", scope)
		return false
	}
	blocks, err := b.pages.Load(zp.Folder, zp.File)
	if err != nil {
		b.log.Warn("zBack: reload %s.%s failed: %v", zp.Folder, zp.File, err)
		return false
	}
	root, ok := blocks[zp.Block]
	if !ok {
		b.log.Warn("zBack: block %q not found in %s.%s", zp.Block, zp.Folder, zp.File)
		return false
	}

	conn.Session.SetPath(zp)
	_, dctx := conn.pageContext()
	if dctx == nil {
		dctx = &wizard.Context{Session: conn.Session, Accumulator: accumulator.New()}
	}
	conn.setPage(root, dctx)
	b.startChunkedPump(ctx, conn, resumeKey)
	return true
}
