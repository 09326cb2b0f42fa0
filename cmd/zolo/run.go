package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/accumulator"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/cache"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/dispatch"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/navigation"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/pages"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/plugin"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/rbac"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/session"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/wizard"
)

var runZPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "walk a zPath workflow to completion (Walker mode)",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runZPath, "zpath", "", "dotted zPath to the block to run (folder.file.block)")
	runCmd.MarkFlagRequired("zpath")
}

// stdoutDisplay satisfies both wizard.Display (engine progress declarations)
// and dispatch.Displayer (zDisplay step rendering) with plain terminal
// output — the CLI's counterpart to the bridge's render_chunk events.
type stdoutDisplay struct{}

func (stdoutDisplay) Declare(message string) { fmt.Println(message) }

func (stdoutDisplay) Render(fields map[string]interface{}) {
	if v, ok := fields["value"]; ok {
		fmt.Println(v)
		return
	}
	fmt.Printf("%v\n", fields)
}

func runRun(cmd *cobra.Command, args []string) error {
	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}

	orch := cache.New(cfg.Cache.LRUMaxSize, 32, nil)
	loader := pages.New(ws, orch)
	funcs := plugin.NewRegistry([]string{ws})
	disp := stdoutDisplay{}

	d := &dispatch.Dispatcher{Display: disp, Funcs: funcs}
	engine := wizard.New(rbac.NewChecker(nil), disp, nil)
	nav := &cliNavigator{loader: loader, engine: engine, dispatcher: d}
	d.Nav = nav

	sess := session.New(nil)
	zp := navigation.ResolveZPath(runZPath)
	sess.SetPath(zp)
	sess.SetMode(session.ModeWalker)

	blocks, err := loader.Load(zp.Folder, zp.File)
	if err != nil {
		return fmt.Errorf("load %s: %w", runZPath, err)
	}
	root, ok := blocks[zp.Block]
	if !ok {
		return fmt.Errorf("block %q not found in %s.%s", zp.Block, zp.Folder, zp.File)
	}

	dctx := &wizard.Context{Session: sess, Accumulator: accumulator.New()}
	nav.callbacks = backCallbacks(loader, engine, d, dctx)

	signal, err := engine.ExecuteLoop(context.Background(), root, d, nav.callbacks, dctx, "", "")
	if err != nil {
		return err
	}
	if signal != "" {
		fmt.Printf("workflow ended with signal: %s\n", signal)
	}
	return nil
}

// backCallbacks wires Callbacks.OnBack for Walker mode (spec.md §4.3): pop
// the breadcrumb trail, rewrite the session triple to the popped scope,
// reload the file through the Loader, and re-enter ExecuteLoop at the
// resolved back-target key. Falls through to returning the bare zBack
// signal when there's nothing to pop, the scope doesn't parse, or the
// reload fails.
func backCallbacks(loader *pages.Loader, engine *wizard.Engine, d wizard.Dispatcher, dctx *wizard.Context) *wizard.Callbacks {
	var callbacks *wizard.Callbacks
	callbacks = &wizard.Callbacks{
		OnBack: func(signal string) interface{} {
			scope, resumeKey, ok := dctx.Session.Crumbs().Pop()
			if !ok {
				return signal
			}
			zp, ok := navigation.ScopeToZPath(scope)
			if !ok {
				fmt.Fprintf(os.Stderr, "zBack: scope %q has fewer than 3 dotted segments, skipping rewrite\n", scope)
				return signal
			}
			blocks, err := loader.Load(zp.Folder, zp.File)
			if err != nil {
				fmt.Fprintf(os.Stderr, "zBack: reload %s.%s failed: %v\n", zp.Folder, zp.File, err)
				return signal
			}
			root, ok := blocks[zp.Block]
			if !ok {
				fmt.Fprintf(os.Stderr, "zBack: block %q not found in %s.%s\n", zp.Block, zp.Folder, zp.File)
				return signal
			}
			dctx.Session.SetPath(zp)
			result, err := engine.ExecuteLoop(context.Background(), root, d, callbacks, dctx, resumeKey, "")
			if err != nil {
				fmt.Fprintf(os.Stderr, "zBack: resumed execution failed: %v\n", err)
				return signal
			}
			return result
		},
	}
	return callbacks
}

// cliNavigator applies a zLink transition by loading the target file and
// re-entering ExecuteLoop on its block, the Walker-mode equivalent of the
// bridge restarting a chunked run at a new page.
type cliNavigator struct {
	loader     *pages.Loader
	engine     *wizard.Engine
	dispatcher wizard.Dispatcher
	callbacks  *wizard.Callbacks
}

func (n *cliNavigator) HandleLink(ctx context.Context, zp session.ZPath, dctx *wizard.Context) error {
	blocks, err := n.loader.Load(zp.Folder, zp.File)
	if err != nil {
		return err
	}
	root, ok := blocks[zp.Block]
	if !ok {
		return fmt.Errorf("block %q not found in %s.%s", zp.Block, zp.Folder, zp.File)
	}
	dctx.Session.SetPath(zp)
	_, err = n.engine.ExecuteLoop(ctx, root, n.dispatcher, n.callbacks, dctx, "", "")
	return err
}
