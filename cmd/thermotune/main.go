// Package main provides the thermotune CLI entry point.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/config"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "thermotune",
		Short: "thermotune - adaptive PID tuning for heating and cooling zones",
		Long: `thermotune learns PID gains for a thermostat zone from the heating and
cooling cycles it observes.

Features:
  • Cycle tracking with overshoot, settling and rise-time metrics
  • Disturbance detection (sun, wind, outdoor swings, occupancy)
  • Outdoor compensation learning before gain tuning
  • Rate-limited, validated auto-apply with rollback`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default: search standard locations)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory for the badger store")
	rootCmd.PersistentFlags().String("store", "", "State store: badger, redis, memory")
	rootCmd.PersistentFlags().Bool("json", false, "Print JSON instead of YAML")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "thermotune v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	replayCmd := &cobra.Command{
		Use:   "replay [events.yaml]",
		Short: "Replay a recorded event log through a zone and save the learned state",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}
	replayCmd.Flags().String("zone", "", "Zone id (overrides the log and config)")
	replayCmd.Flags().Bool("drain", true, "Advance past the last event so a pending settling timeout fires")
	rootCmd.AddCommand(replayCmd)

	showCmd := &cobra.Command{
		Use:   "show [zone]",
		Short: "Show the saved state of a zone",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runShow,
	}
	rootCmd.AddCommand(showCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "zones",
		Short: "List zones with saved state",
		RunE:  runZones,
	})

	return rootCmd
}

// loadConfig resolves the configuration for cmd: file, environment, then
// persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, nil, err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Persistence.DataDir = dir
	}
	if store, _ := cmd.Flags().GetString("store"); store != "" {
		cfg.Persistence.Store = store
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())
	if path != "" {
		logger.Debug("loaded config", "path", path, "config", cfg.String())
	}
	return cfg, logger, nil
}
