// Command botweave runs the bot orchestration daemon and its management CLI.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"botweave/cmd"
)

// Overridden through ldflags on release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(buildVersion())
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildVersion prefers the ldflags values and falls back to the module
// version stamped by the Go toolchain for go-install builds.
func buildVersion() string {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
}
