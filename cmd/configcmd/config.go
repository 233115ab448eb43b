// Package configcmd implements the config command.
package configcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/sensorrec/internal/conf"
)

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	var savePath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, config file, environment and flags are merged.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if savePath != "" {
				if err := conf.SaveYAMLConfig(savePath, settings); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", savePath)
				return nil
			}
			data, err := settings.MarshalYAMLDocument()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&savePath, "save", "", "Write the effective configuration to this file instead of printing it")

	return cmd
}
