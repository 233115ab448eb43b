package main

import (
	"context"
	"os"

	"github.com/tphakala/sensorrec/cmd"
	"github.com/tphakala/sensorrec/internal/buildinfo"
	"github.com/tphakala/sensorrec/internal/conf"
	"github.com/tphakala/sensorrec/internal/logger"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = ""
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	build := buildinfo.NewContext(version, buildDate)
	settings := &conf.Settings{}

	rootCmd := cmd.RootCommand(settings, build)
	err := rootCmd.ExecuteContext(context.Background())

	// flush buffered file output before exit
	_ = logger.Global().Flush()

	if err != nil {
		return 1
	}
	return 0
}
