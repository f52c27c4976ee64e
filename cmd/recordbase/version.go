package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	apihttp "github.com/artpar/recordbase/adapters/http"
	"github.com/artpar/recordbase/adapters/sqlite"
)

// Overridden with -ldflags "-X main.version=... -X main.commit=...".
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

// buildInfo returns the version reported by the CLI and GET /version.
// Values not stamped by ldflags come from the module's VCS build settings.
func buildInfo() (apihttp.VersionInfo, string) {
	info := apihttp.VersionInfo{Version: version, Commit: commit, Service: "recordbase"}
	built := buildDate
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info, built
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if built == "" {
				built = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" && info.Commit != "" {
				info.Commit += "-dirty"
			}
		}
	}
	return info, built
}

// schemaVersion is the newest migration embedded in this binary.
func schemaVersion() string {
	names, err := sqlite.Pending(nil)
	if err != nil || len(names) == 0 {
		return "none"
	}
	last := names[len(names)-1]
	return last[:len(last)-len(".sql")]
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build and schema version",
	Run: func(cmd *cobra.Command, args []string) {
		info, built := buildInfo()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "recordbase %s\n", info.Version)
		if info.Commit != "" {
			fmt.Fprintf(out, "  commit:  %s\n", info.Commit)
		}
		if built != "" {
			fmt.Fprintf(out, "  built:   %s\n", built)
		}
		fmt.Fprintf(out, "  schema:  %s\n", schemaVersion())
		fmt.Fprintf(out, "  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
