package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/noteflow/noteflow/internal/config"
	"github.com/noteflow/noteflow/internal/store"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "noteflow",
	Short: "Sync embedded to-do nodes with a local database",
	Long: `noteflow keeps the interactive to-do nodes embedded in rich-text
documents in sync with an embedded SQLite database.

Documents are JSON node trees; every "todo" node maps to one database
record keyed by the node's stable identifier. Repeated syncs are
idempotent: unchanged todos produce no writes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .noteflow.yaml)")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().String("docs", "", "documents directory (overrides config)")
	rootCmd.PersistentFlags().String("owner", "", "owning user identifier (overrides config)")
}

// loadConfig resolves the effective configuration: file/env via the config
// package, then persistent flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if v, _ := rootCmd.PersistentFlags().GetString("db"); v != "" {
		cfg.Database = v
	}
	if v, _ := rootCmd.PersistentFlags().GetString("docs"); v != "" {
		cfg.Documents = v
	}
	if v, _ := rootCmd.PersistentFlags().GetString("owner"); v != "" {
		cfg.Owner = v
	}
	if cfg.Owner == "" {
		cfg.Owner = defaultOwner()
	}
	return cfg, nil
}

// defaultOwner falls back to the OS user when no owner is configured.
func defaultOwner() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

// openStore opens the configured database and ensures the schema exists.
func openStore(cfg *config.Config) (*store.DB, error) {
	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// quietLogger is used by one-shot commands that print their own summary.
func quietLogger() *log.Logger {
	return log.New(os.Stderr, "[sync] ", 0)
}
