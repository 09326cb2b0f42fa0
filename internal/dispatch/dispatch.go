// Package dispatch implements the default wizard.Dispatcher: the routing
// table that sends each of the five tagged step shapes (zDisplay, zData,
// zFunc, zLink, zDialog) to its collaborator. Grounded on zWizard.py's
// dispatch_step/handle_* method family, adapted to Go's interface-satisfying
// collaborators instead of Python's duck-typed dict lookups.
package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/block"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/cache"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/navigation"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/session"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/store"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/wizard"
)

// Funcs resolves &fname(args) calls — satisfied by plugin.Registry.
type Funcs interface {
	Call(name string, args []string) (interface{}, error)
}

// Dispatcher is the default wizard.Dispatcher. Every collaborator field is
// optional; a step whose kind has no backing collaborator reports an error
// instead of panicking, so a partially wired process still runs the steps
// it can.
type Dispatcher struct {
	Display Displayer
	Funcs   Funcs
	Store   func(alias string) (store.Adapter, bool) // resolves a $alias model to its live adapter
	Schema  *cache.SchemaTier
	Dialog  DialogAwaiter
	Nav     ZLinkHandler
}

// Displayer renders a zDisplay step's fields. The default bridge does not
// need this — render_chunk already carries the raw fields to the client —
// but a CLI runner (cmd/zolo run) prints through it.
type Displayer interface {
	Render(fields map[string]interface{})
}

// DialogAwaiter blocks for a client reply to a zDialog prompt, e.g. the
// bridge's AwaitInput pending-input registry.
type DialogAwaiter interface {
	Await(ctx context.Context, requestID string) (interface{}, error)
}

// ZLinkHandler performs the actual page switch once a zLink has been
// resolved and permission-checked; dispatch itself never loads files.
type ZLinkHandler interface {
	HandleLink(ctx context.Context, zp session.ZPath, dctx *wizard.Context) error
}

var _ wizard.Dispatcher = (*Dispatcher)(nil)

// Dispatch routes step by its DispatchKind (spec.md §4.2.1 step 3: "dispatch
// to the step's tagged kind"). Scalar and nested steps carry no dispatch
// behaviour of their own; the Loop Engine only ever calls Dispatch for
// executable keys, and a scalar/nested step reaches here unclassified only
// when the loader emitted a synthetic value wrapper — which this treats as
// a zDisplay-shaped no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, step block.Step, dctx *wizard.Context) (interface{}, error) {
	if step.Dispatch == nil {
		return nil, nil
	}
	switch step.Dispatch.Kind {
	case block.KindDisplay:
		return d.dispatchDisplay(step.Dispatch)
	case block.KindFunc:
		return d.dispatchFunc(step.Dispatch)
	case block.KindData:
		return d.dispatchData(ctx, step.Dispatch, dctx)
	case block.KindLink:
		return d.dispatchLink(ctx, key, step.Dispatch, dctx)
	case block.KindDialog:
		return d.dispatchDialog(ctx, key, step.Dispatch)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("dispatch: unrecognised step kind %q", step.Dispatch.Kind)
	}
}

func (d *Dispatcher) dispatchDisplay(obj *block.DispatchObject) (interface{}, error) {
	if d.Display != nil {
		d.Display.Render(obj.Fields)
	}
	return nil, nil
}

// dispatchFunc calls &fname(args) through the function registry. The
// loader represents a zFunc step as {zFunc: {name: "...", args: [...]}}.
func (d *Dispatcher) dispatchFunc(obj *block.DispatchObject) (interface{}, error) {
	if d.Funcs == nil {
		return nil, fmt.Errorf("dispatch: zFunc step but no function registry configured")
	}
	name, _ := obj.Fields["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("dispatch: zFunc step missing name")
	}
	return d.Funcs.Call(name, toStringArgs(obj.Fields["args"]))
}

func toStringArgs(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		out = append(out, fmt.Sprintf("%v", e))
	}
	return out
}

// dispatchDialog awaits a client reply keyed by the step key itself when no
// explicit request_id is given in the step's fields — the bridge assigns
// one requestId per in-flight dialog, which here doubles as the step key
// since a block never dispatches the same key twice in one pass.
func (d *Dispatcher) dispatchDialog(ctx context.Context, key string, obj *block.DispatchObject) (interface{}, error) {
	if d.Dialog == nil {
		return nil, fmt.Errorf("dispatch: zDialog step but no dialog collaborator configured")
	}
	requestID := key
	if id, ok := obj.Fields["request_id"].(string); ok && id != "" {
		requestID = id
	}
	return d.Dialog.Await(ctx, requestID)
}

// dispatchLink resolves a zLink expression, permission-checks it against the
// session's current auth, and hands the resolved target to the Navigator.
// Per wizard.normalizeResult, a {"zLink": ...} result is deliberately
// ignored by the Loop Engine's own navigation handling ("handled by the
// caller"), so the actual page switch happens here, synchronously, before
// Dispatch returns. The departing scope gets the link key appended to its
// trail and the arriving scope gets its own entry (spec.md §4.2's zLink
// step 5), so a later zBack POP has both sides of the jump to cascade
// through instead of finding the breadcrumb trail empty.
func (d *Dispatcher) dispatchLink(ctx context.Context, key string, obj *block.DispatchObject, dctx *wizard.Context) (interface{}, error) {
	expr, _ := obj.Fields["value"].(string)
	if expr == "" {
		if path, ok := obj.Fields["path"].(string); ok {
			expr = fmt.Sprintf("zLink(%q)", path)
		}
	}
	if !strings.HasPrefix(strings.TrimSpace(expr), "zLink(") {
		return nil, fmt.Errorf("dispatch: zLink step missing a zLink(...) expression")
	}

	auth := dctx.Session.AuthSnapshot()
	zp, err := navigation.Resolve(expr, auth)
	if err != nil {
		return nil, err
	}
	if d.Nav == nil {
		return nil, fmt.Errorf("dispatch: zLink resolved but no navigator configured")
	}

	oldScope := scopeOf(dctx.Session.Path())
	if err := d.Nav.HandleLink(ctx, zp, dctx); err != nil {
		return nil, err
	}
	crumbs := dctx.Session.Crumbs()
	crumbs.Append(oldScope, key)
	crumbs.Append(scopeOf(zp), zp.Block)
	return map[string]interface{}{"zLink": expr}, nil
}

// scopeOf renders a zPath as the dotted scope string breadcrumbs key on,
// matching wizard.scopeOf and the bridge's own inline uses of the same
// format.
func scopeOf(p session.ZPath) string {
	return p.Folder + "." + p.File + "." + p.Block
}

// dispatchData delegates to the store adapter registered for the step's
// model alias, building and running the query/mutation the loader's zData
// fields describe. Grounded on the teacher's internal/store query-builder
// split between read and write statements.
func (d *Dispatcher) dispatchData(ctx context.Context, obj *block.DispatchObject, dctx *wizard.Context) (interface{}, error) {
	model, _ := obj.Fields["model"].(string)
	alias := strings.TrimPrefix(model, "$")
	if alias == "" {
		return nil, fmt.Errorf("dispatch: zData step missing model")
	}
	if d.Store == nil {
		return nil, fmt.Errorf("dispatch: zData step but no store resolver configured")
	}
	adapter, ok := d.Store(alias)
	if !ok {
		return nil, fmt.Errorf("dispatch: no store registered for model %q", alias)
	}

	query, _ := obj.Fields["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("dispatch: zData step missing query")
	}
	args := toInterfaceArgs(obj.Fields["params"])

	if isWriteQuery(query) {
		res, err := adapter.Exec(query, args...)
		if err != nil {
			return nil, err
		}
		n, _ := res.RowsAffected()
		return map[string]interface{}{"rows_affected": n}, nil
	}

	rows, err := adapter.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func toInterfaceArgs(v interface{}) []interface{} {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	return raw
}

// scanRows materialises a *sql.Rows into a slice of column->value maps,
// the generic shape zData results are handed back to the caller as (the
// original framework returns the same dict-per-row shape regardless of
// model, since the schema isn't known until query time).
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func isWriteQuery(query string) bool {
	verb := strings.ToUpper(strings.Fields(strings.TrimSpace(query))[0])
	switch verb {
	case "INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER":
		return true
	default:
		return false
	}
}
