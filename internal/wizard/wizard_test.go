package wizard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/block"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/cache"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/rbac"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/session"
)

// recordingDispatch returns a scripted result per key, recording call order.
type recordingDispatch struct {
	results map[string]interface{}
	errs    map[string]error
	calls   []string
}

func (d *recordingDispatch) Dispatch(_ context.Context, key string, _ block.Step, _ *Context) (interface{}, error) {
	d.calls = append(d.calls, key)
	if err, ok := d.errs[key]; ok {
		return nil, err
	}
	return d.results[key], nil
}

func newCtx() *Context {
	return &Context{Session: session.New(nil)}
}

// recordingDisplay captures every Declare call in order.
type recordingDisplay struct{ messages []string }

func (d *recordingDisplay) Declare(message string) { d.messages = append(d.messages, message) }

// S1 — Menu selection key-jump.
func TestExecuteLoop_MenuKeyJumpAndLoopback(t *testing.T) {
	b := block.New()
	b.Append("A", block.ScalarStep("a"))
	b.Append("M~*", block.ScalarStep("menu"))
	b.Append("B", block.ScalarStep("b"))
	b.Append("C", block.ScalarStep("c"))

	dispatch := &recordingDispatch{results: map[string]interface{}{
		"A":    nil,
		"M~*":  "B",
		"B":    nil,
		"C":    nil,
	}}

	e := New(rbac.NewChecker(nil), nil, nil)
	dctx := newCtx()

	// After visiting B, dispatch.results for "M~*" always returns "B" so
	// the loop would spin; simulate user eventually picking zBack by
	// swapping the script once M~* has been visited twice.
	visits := 0
	dispatch2 := DispatchFunc(func(ctx context.Context, key string, step block.Step, dctx *Context) (interface{}, error) {
		dispatch.calls = append(dispatch.calls, key)
		if key == "M~*" {
			visits++
			if visits >= 2 {
				return SignalZBack, nil
			}
			return "B", nil
		}
		return nil, nil
	})

	signal, err := e.ExecuteLoop(context.Background(), b, dispatch2, nil, dctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, SignalZBack, signal)
	assert.Equal(t, []string{"A", "M~*", "B", "M~*"}, dispatch.calls)
}

// S5 — RBAC zGuest redirect: block-level zRBAC with zGuest denies an
// authenticated user and the engine returns zBack without executing steps.
func TestExecuteLoop_ZGuestBlockDenial(t *testing.T) {
	engine, err := rbac.NewEngine()
	require.NoError(t, err)
	checker := rbac.NewChecker(engine)

	b := block.New()
	b.Append("zRBAC", block.DispatchStep(&block.DispatchObject{Kind: "zRBAC", RBAC: &block.RBACRequirement{ZGuest: true}}))
	b.Append("secret", block.ScalarStep("s"))

	dispatch := &recordingDispatch{}
	display := &recordingDisplay{}
	e := New(checker, display, nil)
	dctx := newCtx()
	dctx.Session.Login(session.AuthZSession, "u1", nil, nil)

	signal, err := e.ExecuteLoop(context.Background(), b, dispatch, nil, dctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, SignalZBack, signal)
	assert.Empty(t, dispatch.calls)
	require.Len(t, display.messages, 1)
	assert.Contains(t, display.messages[0], "this page is for unauthenticated users only")
}

// S3 — Gate opacity: in chunked mode, content after a "!" gate is never
// yielded before the gate's form is submitted.
func TestStartChunked_GateOpacity(t *testing.T) {
	b := block.New()
	b.Append("intro", block.ScalarStep("intro"))
	b.Append("askPassword!", block.DispatchStep(&block.DispatchObject{Kind: block.KindDialog, Fields: map[string]interface{}{"prompt": "password?"}}))
	b.Append("secret", block.ScalarStep("s"))

	dispatch := DispatchFunc(func(ctx context.Context, key string, step block.Step, dctx *Context) (interface{}, error) {
		return nil, nil
	})

	e := New(rbac.NewChecker(nil), nil, nil)
	dctx := newCtx()

	g := e.StartChunked(context.Background(), b, dispatch, nil, dctx, "", "")

	first := <-g.Chunks
	assert.Equal(t, []string{"intro", "askPassword!"}, first.Keys)
	assert.True(t, first.IsGate)

	// "secret" must not appear anywhere before Resume.
	select {
	case c := <-g.Chunks:
		t.Fatalf("unexpected chunk before gate resume: %+v", c)
	default:
	}

	g.Resume(map[string]interface{}{"password": "hunter2"})

	last := <-g.Chunks
	assert.Equal(t, []string{"secret"}, last.Keys)
	assert.False(t, last.IsGate)

	outcome := <-g.Done
	require.NoError(t, outcome.Err)
}

// fakeConn implements cache.ConnHandle for transaction bookkeeping tests.
type fakeConn struct {
	begun, committed, rolledBack bool
}

func (c *fakeConn) Begin() error    { c.begun = true; return nil }
func (c *fakeConn) Commit() error   { c.committed = true; return nil }
func (c *fakeConn) Rollback() error { c.rolledBack = true; return nil }
func (c *fakeConn) Disconnect() error { return nil }
func (c *fakeConn) BackendKind() string { return "fake" }

// S6 — Transaction rollback on dispatch error.
func TestHandle_TransactionRollbackOnError(t *testing.T) {
	b := block.New()
	b.Append("_transaction", block.ScalarStep("true"))
	b.Append("a", block.DispatchStep(&block.DispatchObject{Kind: block.KindData, Fields: map[string]interface{}{"model": "$users", "operation": "insert"}}))
	b.Append("b", block.DispatchStep(&block.DispatchObject{Kind: block.KindFunc, Fields: map[string]interface{}{"name": "raise"}}))

	conn := &fakeConn{}
	schema := cache.NewSchemaTier(nil)
	schema.Set("users", conn)

	dispatch := DispatchFunc(func(ctx context.Context, key string, step block.Step, dctx *Context) (interface{}, error) {
		if key == "b" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	})

	e := New(rbac.NewChecker(nil), nil, nil)
	dctx := newCtx()
	dctx.Schema = schema

	_, err := e.Handle(context.Background(), b, dispatch, dctx)
	require.Error(t, err)
	assert.True(t, conn.begun)
	assert.True(t, conn.rolledBack)
	assert.False(t, conn.committed)
	assert.False(t, schema.Has("users"))
}
