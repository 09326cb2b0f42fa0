package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "open a connection to a running bridge and print the session it assigns",
	Long: `sessions dials the configured WebSocket bridge and prints the
connection_info event the server sends on handshake: the hierarchical
session id, server version, and live cache stats. Each WebSocket connection
is its own session (spec.md §4.4) — there is no separate server-side
registry of past sessions to list.`,
	RunE: runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	target := (&url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", cfg.WS.Host, cfg.WS.Port), Path: "/ws"}).String()

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	var info json.RawMessage
	if err := conn.ReadJSON(&info); err != nil {
		return fmt.Errorf("read connection_info: %w", err)
	}
	pretty, _ := json.MarshalIndent(info, "", "  ")
	fmt.Println(string(pretty))
	return nil
}
