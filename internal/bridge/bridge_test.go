package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/block"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/cache"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/config"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/rbac"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/wizard"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func newTestBridge(t *testing.T, cfg config.WebSocketConfig) *Bridge {
	t.Helper()
	orch := cache.New(10, 10, nil)
	engine := wizard.New(rbac.NewChecker(nil), nil, nil)
	return New(cfg, orch, engine, nil, nil, nil, nil, nil)
}

// fakePages serves a single fixed block for every Load call, regardless of
// folder/file, so tests can exercise load_page without a real filesystem.
type fakePages struct {
	root *block.Block
}

func (f fakePages) Load(folder, file string) (map[string]*block.Block, error) {
	return map[string]*block.Block{"root": f.root}, nil
}

// menuBlock builds a two-key block: "Choice*" is a menu step whose dispatch
// always returns nil (an unresolved pause), and "after" runs once a
// menu_selection names it as the resume key.
func menuBlock() *block.Block {
	b := block.New()
	b.Append("Choice*", block.DispatchStep(&block.DispatchObject{Kind: block.KindDisplay}))
	b.Append("after", block.DispatchStep(&block.DispatchObject{Kind: block.KindDisplay}))
	return b
}

// menuDispatcher returns nil for the menu key (pausing the generator) and a
// sentinel value for anything else, so tests can tell completion from pause.
func menuDispatcher() wizard.DispatchFunc {
	return func(ctx context.Context, key string, step block.Step, dctx *wizard.Context) (interface{}, error) {
		if strings.Contains(key, "*") {
			return nil, nil
		}
		return "done", nil
	}
}

func dialURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestBridge_ConnectionInfoOnConnect(t *testing.T) {
	b := newTestBridge(t, config.WebSocketConfig{AllowedOrigins: []string{"*"}})
	server := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(dialURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg connectionInfoEvent
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventConnectionInfo, msg.Event)
	assert.Equal(t, ServerVersion, msg.ServerVersion)
	assert.NotEmpty(t, msg.Session)

	// give the server goroutine a moment to finish registration bookkeeping
	require.Eventually(t, func() bool { return b.connectionCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestBridge_RejectsDisallowedOrigin(t *testing.T) {
	b := newTestBridge(t, config.WebSocketConfig{AllowedOrigins: []string{"https://allowed.example"}})
	server := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer server.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(dialURL(server), header)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close error, got %T: %v", err, err)
	assert.Equal(t, 1008, closeErr.Code)
}

func TestBridge_MalformedMessageReportsError(t *testing.T) {
	b := newTestBridge(t, config.WebSocketConfig{AllowedOrigins: []string{"*"}})
	server := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(dialURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()

	var info connectionInfoEvent
	require.NoError(t, conn.ReadJSON(&info))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"no_event": true}`)))

	var errResp errorPayload
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Equal(t, "Invalid message format", errResp.Error)
}

func TestBridge_SetCacheTTLValidatesRange(t *testing.T) {
	b := newTestBridge(t, config.WebSocketConfig{AllowedOrigins: []string{"*"}})
	server := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(dialURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()

	var info connectionInfoEvent
	require.NoError(t, conn.ReadJSON(&info))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "set_cache_ttl", "ttl": 9999}))
	var errResp errorPayload
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Contains(t, errResp.Message, "1 and 3600")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "set_cache_ttl", "ttl": 120}))
	var ok map[string]interface{}
	require.NoError(t, conn.ReadJSON(&ok))
	assert.Equal(t, float64(120), ok["ttl"])
}

func TestBridge_BroadcastReachesEveryClient(t *testing.T) {
	b := newTestBridge(t, config.WebSocketConfig{AllowedOrigins: []string{"*"}})
	server := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer server.Close()

	c1, _, err := websocket.DefaultDialer.Dial(dialURL(server), nil)
	require.NoError(t, err)
	defer c1.Close()
	c2, _, err := websocket.DefaultDialer.Dial(dialURL(server), nil)
	require.NoError(t, err)
	defer c2.Close()

	var discard connectionInfoEvent
	require.NoError(t, c1.ReadJSON(&discard))
	require.NoError(t, c2.ReadJSON(&discard))
	require.Eventually(t, func() bool { return b.connectionCount() == 2 }, time.Second, 10*time.Millisecond)

	b.broadcast(serverShutdownEvent{Event: EventServerShutdown, Message: "bye"})

	var m1, m2 serverShutdownEvent
	require.NoError(t, c1.ReadJSON(&m1))
	require.NoError(t, c2.ReadJSON(&m2))
	assert.Equal(t, "bye", m1.Message)
	assert.Equal(t, "bye", m2.Message)
}

func TestBridge_MenuSelectionResumesMatchingGenerator(t *testing.T) {
	orch := cache.New(10, 10, nil)
	engine := wizard.New(rbac.NewChecker(nil), nil, nil)
	b := New(config.WebSocketConfig{AllowedOrigins: []string{"*"}}, orch, engine, menuDispatcher(), nil, fakePages{root: menuBlock()}, nil, nil)
	server := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(dialURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()

	var info connectionInfoEvent
	require.NoError(t, conn.ReadJSON(&info))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "load_page", "zpath": "a.b.root"}))

	var chunk renderChunkEvent
	require.NoError(t, conn.ReadJSON(&chunk))
	require.Len(t, chunk.Keys, 1)
	assert.Equal(t, "Choice*", chunk.Keys[0])

	// A mismatched menu_key is rejected without disturbing the paused state.
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "menu_selection", "menu_key": "wrong", "selected": "after"}))
	var rejected menuSelectedEvent
	require.NoError(t, conn.ReadJSON(&rejected))
	assert.False(t, rejected.Success)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "menu_selection", "menu_key": "Choice*", "selected": "after"}))
	var selected menuSelectedEvent
	require.NoError(t, conn.ReadJSON(&selected))
	assert.True(t, selected.Success)

	var final renderChunkEvent
	require.NoError(t, conn.ReadJSON(&final))
	assert.Equal(t, []string{"after"}, final.Keys)
}

func TestAwaitInput_ResolvesOnInputResponse(t *testing.T) {
	b := newTestBridge(t, config.WebSocketConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resultCh := make(chan interface{}, 1)
	go func() {
		v, err := b.AwaitInput(ctx, "req-1")
		if err == nil {
			resultCh <- v
		}
	}()

	require.Eventually(t, func() bool {
		b.pendingMu.Lock()
		_, ok := b.pendingInputs["req-1"]
		b.pendingMu.Unlock()
		return ok
	}, time.Second, time.Millisecond)

	assert.True(t, b.resolveInput("req-1", "hello"))

	select {
	case v := <-resultCh:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("AwaitInput did not resolve")
	}
}

func TestCheckOrigin(t *testing.T) {
	assert.True(t, checkOrigin("", nil))
	assert.True(t, checkOrigin("https://anything.example", []string{"*"}))
	assert.True(t, checkOrigin("https://a.example", []string{"https://a.example", "https://b.example"}))
	assert.False(t, checkOrigin("https://c.example", []string{"https://a.example"}))
}
