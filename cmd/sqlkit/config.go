package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	var (
		source bool
		format string
	)
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the effective configuration after merging defaults, config file, .env
and environment variables. Passwords are redacted.`,
		Example: `  # Show effective configuration
  sqlkit config show

  # Show configuration with source file path
  sqlkit config show --source`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, false); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if source {
				if a.configPath != "" {
					fmt.Fprintf(out, "Config file: %s\n\n", a.configPath)
				} else {
					fmt.Fprintln(out, "Config file: (none, using defaults)")
					fmt.Fprintln(out)
				}
			}
			return writeValue(out, format, a.cfg.View())
		},
	}
	showCmd.Flags().BoolVar(&source, "source", false, "show config file source")
	showCmd.Flags().StringVar(&format, "format", formatYAML, "output format: yaml or json")

	configCmd.AddCommand(showCmd)
	return configCmd
}
