package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/block"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/session"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/wizard"
)

type stubFuncs struct {
	calledName string
	calledArgs []string
	result     interface{}
}

func (s *stubFuncs) Call(name string, args []string) (interface{}, error) {
	s.calledName = name
	s.calledArgs = args
	return s.result, nil
}

func newDctx() *wizard.Context {
	return &wizard.Context{Session: session.New(nil)}
}

func TestDispatcher_Func(t *testing.T) {
	funcs := &stubFuncs{result: "ok"}
	d := &Dispatcher{Funcs: funcs}

	step := block.DispatchStep(&block.DispatchObject{
		Kind:   block.KindFunc,
		Fields: map[string]interface{}{"name": "greet", "args": []interface{}{"world"}},
	})

	result, err := d.Dispatch(context.Background(), "&greet", step, newDctx())
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, "greet", funcs.calledName)
	assert.Equal(t, []string{"world"}, funcs.calledArgs)
}

func TestDispatcher_FuncWithoutRegistryErrors(t *testing.T) {
	d := &Dispatcher{}
	step := block.DispatchStep(&block.DispatchObject{Kind: block.KindFunc, Fields: map[string]interface{}{"name": "x"}})
	_, err := d.Dispatch(context.Background(), "&x", step, newDctx())
	assert.Error(t, err)
}

func TestDispatcher_Display(t *testing.T) {
	var rendered map[string]interface{}
	d := &Dispatcher{Display: displayFunc(func(f map[string]interface{}) { rendered = f })}

	step := block.DispatchStep(&block.DispatchObject{Kind: block.KindDisplay, Fields: map[string]interface{}{"event": "text", "value": "hi"}})
	result, err := d.Dispatch(context.Background(), "zText", step, newDctx())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, "hi", rendered["value"])
}

type displayFunc func(map[string]interface{})

func (f displayFunc) Render(fields map[string]interface{}) { f(fields) }

type stubNav struct {
	got session.ZPath
}

func (n *stubNav) HandleLink(ctx context.Context, zp session.ZPath, dctx *wizard.Context) error {
	n.got = zp
	return nil
}

func TestDispatcher_Link(t *testing.T) {
	nav := &stubNav{}
	d := &Dispatcher{Nav: nav}

	step := block.DispatchStep(&block.DispatchObject{
		Kind:   block.KindLink,
		Fields: map[string]interface{}{"value": `zLink("reports.monthly.summary")`},
	})
	result, err := d.Dispatch(context.Background(), "~View*", step, newDctx())
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, "summary", nav.got.Block)
	assert.Equal(t, "", nav.got.Folder)
	assert.Equal(t, "reports.monthly", nav.got.File)
}

func TestDispatcher_LinkDeniedByPermission(t *testing.T) {
	nav := &stubNav{}
	d := &Dispatcher{Nav: nav}

	step := block.DispatchStep(&block.DispatchObject{
		Kind:   block.KindLink,
		Fields: map[string]interface{}{"value": `zLink("admin.panel.root", {role: "admin"})`},
	})
	_, err := d.Dispatch(context.Background(), "~Admin*", step, newDctx())
	assert.Error(t, err)
}
