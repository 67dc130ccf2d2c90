package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/projectd/internal/config"
)

func init() {
	rootCmd.AddCommand(backendCmd)
}

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Show the selected storage backend",
	Long: `Show which storage backend the current configuration selects.

With provider "auto" the backends are probed in order sqlite, nats,
badger, memory and the first usable one wins; a pinned provider must
be usable or startup fails. This command runs the same selection the
other commands run, so it reports what they would actually use.

Examples:
  # Show the selected backend
  projectd backend

  # Machine-readable form
  projectd backend --json`,
	RunE: runBackend,
}

// backendInfo is the JSON form of the backend report.
type backendInfo struct {
	Provider string `json:"provider"`
	Selected string `json:"selected"`
	Cache    bool   `json:"cacheEnabled"`
	Tenancy  string `json:"tenancyMode"`
}

func runBackend(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	mgr, logger, err := initManager()
	if err != nil {
		return err
	}
	defer closeManager(mgr, logger)

	info := backendInfo{
		Provider: cfg.Storage.Provider,
		Selected: mgr.Backend(),
		Cache:    cfg.Cache.Enabled,
		Tenancy:  cfg.Tenancy.Mode,
	}

	if jsonOutput {
		return outputJSON(info)
	}

	fmt.Printf("Provider: %s\n", info.Provider)
	fmt.Printf("Selected: %s\n", info.Selected)
	switch info.Selected {
	case "sqlite":
		fmt.Printf("Path: %s\n", cfg.Storage.SQLite.Path)
	case "nats":
		fmt.Printf("URL: %s\n", cfg.Storage.NATS.URL)
		fmt.Printf("Bucket: %s\n", cfg.Storage.NATS.Bucket)
	case "badger":
		fmt.Printf("Path: %s\n", cfg.Storage.Badger.Path)
	}
	fmt.Printf("Cache: %v\n", info.Cache)
	fmt.Printf("Tenancy: %s\n", info.Tenancy)
	return nil
}
