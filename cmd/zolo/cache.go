package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var cacheServerURL string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "inspect or clear a running server's cache over its WebSocket bridge",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "print cache_stats from a running zolo serve instance",
	RunE:  func(cmd *cobra.Command, args []string) error { return cacheRoundTrip("cache_stats") },
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "send clear_cache to a running zolo serve instance",
	RunE:  func(cmd *cobra.Command, args []string) error { return cacheRoundTrip("clear_cache") },
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheServerURL, "server", "", "ws(s):// URL of the running bridge (default: derived from --config)")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}

// cacheRoundTrip dials the bridge, sends a single built-in event, and prints
// whatever comes back — a thin CLI wrapper over the same wire protocol a
// browser client speaks (spec.md §6), reusing gorilla/websocket rather than
// inventing a parallel admin API.
func cacheRoundTrip(event string) error {
	target := cacheServerURL
	if target == "" {
		target = (&url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", cfg.WS.Host, cfg.WS.Port), Path: "/ws"}).String()
	}

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	var info map[string]interface{}
	if err := conn.ReadJSON(&info); err != nil {
		return fmt.Errorf("read connection_info: %w", err)
	}

	if err := conn.WriteJSON(map[string]interface{}{"event": event}); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var reply json.RawMessage
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("read %s reply: %w", event, err)
	}
	pretty, _ := json.MarshalIndent(json.RawMessage(reply), "", "  ")
	fmt.Println(string(pretty))
	return nil
}
