// Package bridge implements the WebSocket Bridge (spec.md §4.4): the
// event-driven gateway that exposes the Loop Engine to browser clients. It
// tracks connections under four indices (all clients, authenticated
// clients, user->connections, connection->user), dispatches inbound
// messages through a static built-in event table, and delivers outbound
// events non-blocking via fire-and-forget per-connection sends. Grounded on
// bifrost_bridge.py's BifrostBridge class.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/block"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/cache"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/config"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/logging"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/session"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/wizard"
)

// Authenticator verifies a connection's bearer token, external to the
// bridge per spec.md §1's framing of auth as a collaborator. A nil
// Authenticator means every connection is a guest.
type Authenticator interface {
	Authenticate(token string) (userID string, roles, permissions []string, claims map[string]interface{}, ok bool)
}

// PageLoader resolves a folder/file pair to its top-level blocks, the
// filesystem-facing collaborator load_page and execute_walker dispatch
// through.
type PageLoader interface {
	Load(folder, file string) (map[string]*block.Block, error)
}

// SchemaProvider backs get_schema/discover/introspect.
type SchemaProvider interface {
	Models() []string
	Schema(model string) (interface{}, error)
}

func closeDeadline() time.Time { return time.Now().Add(time.Second) }

// Bridge is the WebSocket gateway. One Bridge serves every connection for
// the process; construct with New and mount ServeHTTP on a route.
type Bridge struct {
	mu                   sync.RWMutex
	clients              map[string]*Connection
	authenticatedClients map[string]*Connection
	userConnections      map[string]map[string]*Connection
	connectionUsers      map[string]string

	cfg        config.WebSocketConfig
	cacheOrch  *cache.Orchestrator
	engine     *wizard.Engine
	dispatcher wizard.Dispatcher
	auth       Authenticator
	pages      PageLoader
	schemas    SchemaProvider
	funcs      wizard.FuncRegistry

	upgrader websocket.Upgrader
	log      *logging.Logger

	shuttingDown atomic.Bool
	wg           sync.WaitGroup

	pendingMu     sync.Mutex
	pendingInputs map[string]chan interface{}
}

// New builds a Bridge. engine and dispatcher drive load_page/execute_walker;
// auth, pages, schemas, funcs are optional collaborators (nil disables the
// events they back, which then answer with an error payload).
func New(cfg config.WebSocketConfig, cacheOrch *cache.Orchestrator, engine *wizard.Engine, dispatcher wizard.Dispatcher, auth Authenticator, pages PageLoader, schemas SchemaProvider, funcs wizard.FuncRegistry) *Bridge {
	b := &Bridge{
		clients:              make(map[string]*Connection),
		authenticatedClients: make(map[string]*Connection),
		userConnections:      make(map[string]map[string]*Connection),
		connectionUsers:      make(map[string]string),
		cfg:                  cfg,
		cacheOrch:            cacheOrch,
		engine:               engine,
		dispatcher:           dispatcher,
		auth:                 auth,
		pages:                pages,
		schemas:              schemas,
		funcs:                funcs,
		log:                  logging.Get(logging.CategoryBridge),
		pendingInputs:        make(map[string]chan interface{}),
	}
	b.upgrader = websocket.Upgrader{
		// CheckOrigin always accepts here; origin is validated after the
		// handshake so a rejection can be reported with a proper close
		// frame (code 1008) instead of an opaque HTTP 403.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return b
}

// newSessionID builds the hierarchical zS_xxxx:zB_xxxx id spec.md §4.4
// assigns each connection.
func newSessionID() string {
	top := strings.ReplaceAll(uuid.NewString(), "-", "")
	sub := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("zS_%s:zB_%s", top[:8], sub[:8])
}

// ServeHTTP upgrades the request to a WebSocket connection and runs its
// lifecycle until the client disconnects or the bridge shuts down.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.shuttingDown.Load() {
		http.Error(w, "bridge is shutting down", http.StatusServiceUnavailable)
		return
	}
	if b.cfg.MaxConnections > 0 && b.connectionCount() >= b.cfg.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("upgrade failed: %v", err)
		return
	}

	if !checkOrigin(r.Header.Get("Origin"), b.cfg.AllowedOrigins) {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(1008, "origin not allowed"), closeDeadline())
		_ = ws.Close()
		return
	}

	conn := &Connection{
		ID:      newSessionID(),
		ws:      ws,
		Session: session.New(nil),
	}

	if token := bearerToken(r); token != "" && b.auth != nil {
		if userID, roles, perms, claims, ok := b.auth.Authenticate(token); ok {
			conn.UserID = userID
			conn.Session.Login(session.AuthZSession, userID, roles, perms)
			for k, v := range claims {
				conn.Session.SetAuthClaim(k, v)
			}
		}
	}
	if b.cfg.RequireAuth && conn.UserID == "" {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(1008, "authentication required"), closeDeadline())
		_ = ws.Close()
		return
	}

	b.register(conn)
	defer b.unregister(conn)

	if err := conn.writeJSON(b.connectionInfoEvent(conn)); err != nil {
		b.log.Warn("connection %s: send connection_info: %v", conn.ID, err)
		return
	}

	b.wg.Add(1)
	defer b.wg.Done()
	b.readLoop(conn)
}

// checkOrigin reports whether origin matches one of allowed, with "*"
// granting unconditional access.
func checkOrigin(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	if v := r.URL.Query().Get("token"); v != "" {
		return v
	}
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ")
}

func (b *Bridge) connectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// register adds conn to all four tracking indices (spec.md §4.4).
func (b *Bridge) register(conn *Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[conn.ID] = conn
	if conn.UserID != "" {
		b.authenticatedClients[conn.ID] = conn
		b.connectionUsers[conn.ID] = conn.UserID
		if b.userConnections[conn.UserID] == nil {
			b.userConnections[conn.UserID] = make(map[string]*Connection)
		}
		b.userConnections[conn.UserID][conn.ID] = conn
	}
}

// unregister removes conn from every index it was added to.
func (b *Bridge) unregister(conn *Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, conn.ID)
	delete(b.authenticatedClients, conn.ID)
	if userID, ok := b.connectionUsers[conn.ID]; ok {
		delete(b.connectionUsers, conn.ID)
		if set := b.userConnections[userID]; set != nil {
			delete(set, conn.ID)
			if len(set) == 0 {
				delete(b.userConnections, userID)
			}
		}
	}
}

func (b *Bridge) connectionInfoEvent(conn *Connection) connectionInfoEvent {
	var stats map[string]interface{}
	if b.cacheOrch != nil {
		raw := b.cacheOrch.Stats("all")
		stats = make(map[string]interface{}, len(raw))
		for k, v := range raw {
			stats[k] = v
		}
	}
	var models []string
	if b.schemas != nil {
		models = b.schemas.Models()
	}
	return connectionInfoEvent{
		Event:           EventConnectionInfo,
		ServerVersion:   ServerVersion,
		Features:        []string{"chunked_rendering", "rbac", "plugin_registry"},
		CacheStats:      stats,
		AvailableModels: models,
		Session:         conn.ID,
	}
}

// readLoop services one connection until it disconnects. Built-in events
// are awaited inline so ordering within a connection is preserved for them;
// anything else runs as a background goroutine so it can await user input
// (e.g. a custom handler) without blocking subsequent reads.
func (b *Bridge) readLoop(conn *Connection) {
	ctx := context.Background()
	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			_ = conn.writeJSON(errMsg("The 'event' field is required"))
			continue
		}
		env.Payload = raw

		if builtinEvents[env.Event] {
			b.handleBuiltin(ctx, conn, env)
			continue
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handleCustom(ctx, conn, env)
		}()
	}
}

// handleCustom is the extension point for application-defined events not
// in the built-in table; the default bridge has none, so it reports the
// event as unrecognised.
func (b *Bridge) handleCustom(_ context.Context, conn *Connection, env envelope) {
	_ = conn.writeJSON(errMsg(fmt.Sprintf("unknown event %q", env.Event)))
}

// broadcast delivers event to every registered client, fire-and-forget: a
// closed or errored connection is logged and otherwise ignored, never
// allowed to block or fail delivery to other clients (spec.md §4.4). Each
// send runs under an errgroup.Group, but the group is reaped off a
// detached goroutine rather than awaited here — broadcast must return
// immediately.
func (b *Bridge) broadcast(payload interface{}) {
	b.mu.RLock()
	targets := make([]*Connection, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	var g errgroup.Group
	for _, c := range targets {
		c := c
		g.Go(func() error {
			if err := c.writeJSON(payload); err != nil {
				b.log.Debug("broadcast to %s: %v", c.ID, err)
			}
			return nil
		})
	}
	go g.Wait()
}

// sendToUser delivers event to every connection belonging to userID,
// O(1) to look up via the userConnections index, fire-and-forget per
// connection like broadcast.
func (b *Bridge) sendToUser(userID string, payload interface{}) {
	b.mu.RLock()
	set := b.userConnections[userID]
	targets := make([]*Connection, 0, len(set))
	for _, c := range set {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	var g errgroup.Group
	for _, c := range targets {
		c := c
		g.Go(func() error {
			if err := c.writeJSON(payload); err != nil {
				b.log.Debug("send to user %s conn %s: %v", userID, c.ID, err)
			}
			return nil
		})
	}
	go g.Wait()
}

// Shutdown notifies every client with server_shutdown, closes each
// connection, then waits up to timeout for in-flight handlers to drain
// before returning. It never blocks past timeout.
func (b *Bridge) Shutdown(timeout time.Duration) {
	b.shuttingDown.Store(true)
	b.broadcast(serverShutdownEvent{Event: EventServerShutdown, Message: "server is shutting down"})

	b.mu.RLock()
	targets := make([]*Connection, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()
	for _, c := range targets {
		go c.close(1001, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		b.log.Warn("shutdown: timed out after %s waiting for handlers to drain", timeout)
	}
}

// AwaitInput registers requestID in the pending-input registry and blocks
// until an input_response event resolves it or ctx is done. This is the
// display collaborator's hook for a custom handler that needs to pause for
// a client reply without blocking the read loop (it runs as a background
// goroutine per the built-in/custom split).
func (b *Bridge) AwaitInput(ctx context.Context, requestID string) (interface{}, error) {
	ch := make(chan interface{}, 1)
	b.pendingMu.Lock()
	b.pendingInputs[requestID] = ch
	b.pendingMu.Unlock()

	defer func() {
		b.pendingMu.Lock()
		delete(b.pendingInputs, requestID)
		b.pendingMu.Unlock()
	}()

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Bridge) resolveInput(requestID string, value interface{}) bool {
	b.pendingMu.Lock()
	ch, ok := b.pendingInputs[requestID]
	b.pendingMu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- value:
	default:
	}
	return true
}

// SyncShutdown is the synchronous variant used when the caller is already
// inside the bridge's own event loop goroutine: it skips client
// notification, clears every index immediately, and does not wait for
// in-flight handlers (spec.md §4.4).
func (b *Bridge) SyncShutdown() {
	b.shuttingDown.Store(true)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.clients {
		go c.close(1001, "server shutdown")
	}
	b.clients = make(map[string]*Connection)
	b.authenticatedClients = make(map[string]*Connection)
	b.userConnections = make(map[string]map[string]*Connection)
	b.connectionUsers = make(map[string]string)
}
