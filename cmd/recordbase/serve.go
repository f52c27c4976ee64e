package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/recordbase/bootstrap"
	"github.com/artpar/recordbase/config"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the recordbase HTTP server.

The server will:
  - Load configuration from recordbase.yaml (or --config), a .env file
    and RECORDBASE_* environment variables
  - Connect to the database and apply pending migrations
  - Serve the JSON:API under /api and share links under /share
  - Reload logging and sharing settings when the config file changes
    or on SIGHUP

Environment variables (for container deployments):
  RECORDBASE_DATABASE_DRIVER   - sqlite or postgres
  RECORDBASE_DATABASE_DSN      - Database path or URL
  RECORDBASE_SERVER_PORT       - Server port (default: 8080)
  RECORDBASE_AUTH_JWT_SECRET   - Secret for bearer tokens
  RECORDBASE_AUTH_API_KEY_HASH - bcrypt hash from 'recordbase hash-key'
  RECORDBASE_LOG_LEVEL         - debug, info, warn, error

Examples:
  recordbase serve
  recordbase serve --config /etc/recordbase/config.yaml
  recordbase serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload configuration when the file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	holder, err := bootstrap.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if !hotReload && holder.Path() != "" {
		holder = config.Static(holder.Get())
	}
	if holder.Path() == "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "Running with environment variables (no config file)")
	}

	info, _ := buildInfo()
	app, err := bootstrap.New(cmd.Context(), holder, bootstrap.Options{Version: info})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}
	return app.Run()
}
