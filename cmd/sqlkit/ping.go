package main

import (
	"fmt"

	"github.com/spf13/cobra"

	sqlkit "github.com/vango-go/vango-sqlkit"
	"github.com/vango-go/vango-sqlkit/internal/cli"
)

func newPingCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check database connectivity",
		Example: `  # Check the database from sqlkit.yaml
  sqlkit ping

  # Machine-readable output
  sqlkit ping --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, true); err != nil {
				return err
			}

			client, closeFn, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			status, err := sqlkit.HealthCheck(cmd.Context(), client)
			if err != nil {
				return cli.DBError("ping", err)
			}
			if format == formatText {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", status.Status, status.Database)
				return err
			}
			return writeValue(cmd.OutOrStdout(), format, status)
		},
	}
	cmd.Flags().StringVar(&format, "format", formatText, "output format: text, json or yaml")
	return cmd
}
