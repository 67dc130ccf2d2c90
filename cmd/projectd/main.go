// Package main implements the projectd CLI for managing project records
// in the configured storage backend.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectd/internal/config"
	"github.com/fyrsmithlabs/projectd/internal/logging"
	"github.com/fyrsmithlabs/projectd/internal/state"
	"github.com/fyrsmithlabs/projectd/internal/storage"
)

var (
	// global command flags
	configPath  string
	tenantScope string
	jsonOutput  bool
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "projectd",
	Short: "CLI for projectd storage operations",
	Long: `projectd is a command-line interface for managing project records.

Records live in whichever storage backend the configuration selects:
sqlite, nats, badger, or the in-process memory fallback. With
provider "auto" the first usable backend in that order wins.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.config/projectd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&tenantScope, "tenant-id", "", "Tenant scope to operate as (empty = unscoped)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
}

// initManager loads configuration, builds the logger, and selects the
// storage backend. Callers own both returned values; close the manager
// and sync the logger when done.
func initManager() (*state.Manager, *zap.Logger, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	mgr, err := state.NewManager(cfg, storage.RuntimeFromConfig(cfg), logger)
	if err != nil {
		_ = logging.Sync(logger)
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return mgr, logger, nil
}

// Helper functions

func closeManager(mgr *state.Manager, logger *zap.Logger) {
	if err := mgr.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close storage backend: %v\n", err)
	}
	_ = logging.Sync(logger)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// formatMillis renders a Unix-millisecond timestamp for table output.
func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
