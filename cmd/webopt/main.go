// Command webopt optimizes folders of images for the web.
package main

import (
	"context"
	"os"

	"github.com/dunamismax/webopt/internal/cli"
)

// Set at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	build := cli.BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
	if err := cli.Execute(context.Background(), build); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
