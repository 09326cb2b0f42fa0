package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/bridge"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/cache"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/dispatch"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/pages"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/plugin"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/rbac"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/session"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/wizard"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the WebSocket Bridge over HTTP",
	RunE:  runServe,
}

// bridgeNavigator applies a zLink transition to the session dctx belongs
// to: it loads the target file, checks that the target block exists, and
// moves the session path there. It does not start a chunked run on the new
// block.
type bridgeNavigator struct {
	loader *pages.Loader
}

func (n *bridgeNavigator) HandleLink(ctx context.Context, zp session.ZPath, dctx *wizard.Context) error {
	blocks, err := n.loader.Load(zp.Folder, zp.File)
	if err != nil {
		return err
	}
	if _, ok := blocks[zp.Block]; !ok {
		return fmt.Errorf("block %q not found in %s.%s", zp.Block, zp.Folder, zp.File)
	}
	dctx.Session.SetPath(zp)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}

	orch := cache.New(cfg.Cache.LRUMaxSize, 32, nil)
	loader := pages.New(ws, orch)
	funcs := plugin.NewRegistry([]string{ws})

	d := &dispatch.Dispatcher{Funcs: funcs, Nav: &bridgeNavigator{loader: loader}}
	engine := wizard.New(rbac.NewChecker(nil), nil, nil)

	b := bridge.New(cfg.WS, orch, engine, d, nil, loader, nil, funcs)
	d.Dialog = dialogAwaiter{b}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.ServeHTTP)

	addr := fmt.Sprintf("%s:%d", cfg.WS.Host, cfg.WS.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("zolo serving on %s\n", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		fmt.Println("shutting down...")
	}

	b.Shutdown(10 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// dialogAwaiter adapts Bridge.AwaitInput to dispatch.DialogAwaiter.
type dialogAwaiter struct{ b *bridge.Bridge }

func (d dialogAwaiter) Await(ctx context.Context, requestID string) (interface{}, error) {
	return d.b.AwaitInput(ctx, requestID)
}
