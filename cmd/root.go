// Package cmd assembles the sensorrec command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/sensorrec/cmd/configcmd"
	"github.com/tphakala/sensorrec/cmd/inspect"
	"github.com/tphakala/sensorrec/cmd/record"
	"github.com/tphakala/sensorrec/internal/buildinfo"
	"github.com/tphakala/sensorrec/internal/conf"
	"github.com/tphakala/sensorrec/internal/errors"
	"github.com/tphakala/sensorrec/internal/logger"
)

// RootCommand creates and returns the root command. Settings are loaded into
// settings before any subcommand runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "sensorrec",
		Short:        "Chunked sensor capture recorder",
		Version:      build.GetVersion(),
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Directory for session chunks and archives")

	inspectCmd := inspect.Command()

	rootCmd.AddCommand(
		record.Command(settings, build),
		inspectCmd,
		configcmd.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// inspect reads files only and needs no configuration
		if cmd.Name() == inspectCmd.Name() {
			return nil
		}
		return initialize(cmd, configFile, settings, build)
	}

	return rootCmd
}

// initialize loads settings and sets up logging and telemetry.
func initialize(cmd *cobra.Command, configFile string, settings *conf.Settings, build *buildinfo.Context) error {
	loaded, err := conf.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	*settings = *loaded

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if err := errors.InitSentry(settings.Telemetry.SentryDSN, build.Release()); err != nil {
		logger.Global().Module("main").Warn("error telemetry disabled", logger.Error(err))
	}
	return nil
}
