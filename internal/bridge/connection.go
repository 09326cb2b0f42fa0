package bridge

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/block"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/session"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/wizard"
)

// Connection is one accepted WebSocket client, paired with the session and
// (when a page is in flight) the block/context it's executing and the
// paused chunked generator, if any. Grounded on bifrost_bridge.py's
// per-connection state dict.
type Connection struct {
	ID     string
	UserID string // empty until authenticated

	ws      *websocket.Conn
	writeMu sync.Mutex

	Session *session.Session

	mu          sync.Mutex
	root        *block.Block   // the block load_page last started, for menu-pause restarts
	dctx        *wizard.Context
	generator   *wizard.Generator // non-nil while a chunked run is in flight, including a "!" gate pause
	pendingMenu string            // "*" key a generator pause left unresolved, if any
}

// writeJSON serialises v and sends it, guarding the connection against
// concurrent writers — gorilla's Conn forbids concurrent WriteMessage calls.
func (c *Connection) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// close sends a close control frame with code/reason, best-effort, then
// closes the underlying socket.
func (c *Connection) close(code int, reason string) {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), closeDeadline())
	c.writeMu.Unlock()
	_ = c.ws.Close()
}

// setGenerator records the chunked generator this connection is currently
// driving, and the menu key it's paused at (if any) so a later
// menu_selection/form_submit event knows where to resume.
func (c *Connection) setGenerator(g *wizard.Generator, menuKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generator = g
	c.pendingMenu = menuKey
}

func (c *Connection) activeGenerator() (*wizard.Generator, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generator, c.pendingMenu
}

func (c *Connection) clearGenerator() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generator = nil
	c.pendingMenu = ""
}

// setPage records the block and dispatch context a load_page started, so a
// later menu pause can be resumed by restarting the chunked run over the
// same block rather than needing the client to resend it.
func (c *Connection) setPage(root *block.Block, dctx *wizard.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root = root
	c.dctx = dctx
}

func (c *Connection) pageContext() (*block.Block, *wizard.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root, c.dctx
}
