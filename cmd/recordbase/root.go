package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/recordbase/bootstrap"
	"github.com/artpar/recordbase/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "recordbase",
	Short: "Schema-driven record store with workflows, history and share links",
	Long: `recordbase stores records for user-defined models.

Models, validation rulesets and workflows are defined at runtime. Every
change to a record is kept in a changelog and can be reverted, and share
links let people without an account view, create or update one record.

Quick start:
  recordbase migrate              # Create or upgrade the database schema
  recordbase schema apply -f schema.yaml
  recordbase serve                # Start the HTTP API

Credentials:
  recordbase hash-key             # Generate a service API key and its hash
  recordbase token --actor alice  # Issue a bearer token`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "recordbase.yaml", "config file path")
}

// loadConfig reads cfgFile, or the environment when the file is absent.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openDatabase opens the configured database and applies pending migrations.
func openDatabase(ctx context.Context) (*bootstrap.Database, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := bootstrap.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
