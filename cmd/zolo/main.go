// Package main implements the zolo CLI: the process entry point that loads
// configuration, wires the Cache Orchestrator/Loop Engine/WebSocket Bridge
// collaborators, and exposes them as cobra subcommands. Grounded on the
// teacher's cmd/nerd/main.go (rootCmd, PersistentPreRunE zap init, global
// --workspace/--verbose flags, per-file command registration).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/config"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/logging"
)

var (
	verbose    bool
	workspace  string
	configPath string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "zolo",
	Short: "zolo - declarative application framework core",
	Long: `zolo runs zPath-addressed YAML workflows through the Loop Engine,
serving them over a WebSocket bridge or walking them to completion from the
command line.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		level := logging.LevelInfo
		if verbose || cfg.Logging.DebugMode {
			level = logging.LevelDebug
		}
		var cats map[logging.Category]bool
		if len(cfg.Logging.Categories) > 0 {
			cats = make(map[logging.Category]bool, len(cfg.Logging.Categories))
			for k, v := range cfg.Logging.Categories {
				cats[logging.Category(k)] = v
			}
		}
		if err := logging.Initialize(ws, cfg.Logging.DebugMode || verbose, level, cats); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "zolo.yaml", "path to the YAML config file")

	rootCmd.AddCommand(runCmd, serveCmd, sessionsCmd, cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
