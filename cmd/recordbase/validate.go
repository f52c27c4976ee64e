package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/recordbase/bootstrap"
	"github.com/artpar/recordbase/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the recordbase configuration file.

Checks:
  - YAML syntax is valid
  - Values are in range
  - Database is reachable (optional)

Examples:
  recordbase validate
  recordbase validate --check-database --config /etc/recordbase/config.yaml`,
	RunE: runValidate,
}

var validateCheckDatabase bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check that the database is reachable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Fprintf(out, "  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	fmt.Fprintf(out, "  %s Listen: %s\n", checkMark, cfg.Server.Addr())
	fmt.Fprintf(out, "  %s Database: %s\n", checkMark, cfg.Database.Driver)
	fmt.Fprintf(out, "  %s Auth: %s\n", markFor(authConfigured(cfg.Auth)), authSummary(cfg.Auth))

	if validateCheckDatabase {
		if err := checkDatabase(cmd.Context(), cfg.Database); err != nil {
			fmt.Fprintf(out, "  %s Database reachable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Database reachable\n", checkMark)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func authConfigured(a config.AuthConfig) bool {
	return a.JWTSecret != "" || a.APIKeyHash != "" || a.TrustActorHeader
}

func authSummary(a config.AuthConfig) string {
	if !authConfigured(a) {
		return "no method configured, API requests will be rejected"
	}
	var s string
	add := func(m string) {
		if s != "" {
			s += ", "
		}
		s += m
	}
	if a.JWTSecret != "" {
		add("bearer tokens")
	}
	if a.APIKeyHash != "" {
		add("service key as " + a.ServiceActor)
	}
	if a.TrustActorHeader {
		add("trusted actor header")
	}
	return s
}

func checkDatabase(ctx context.Context, cfg config.DatabaseConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	db, err := bootstrap.OpenDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Store.Ping(ctx)
}

func markFor(ok bool) string {
	if ok {
		return checkMark
	}
	return crossMark
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
