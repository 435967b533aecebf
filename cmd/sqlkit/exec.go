package main

import (
	"fmt"

	"github.com/spf13/cobra"

	sqlkit "github.com/vango-go/vango-sqlkit"
	"github.com/vango-go/vango-sqlkit/internal/cli"
)

func newExecCmd(a *app) *cobra.Command {
	var (
		simple bool
		tx     bool
	)

	cmd := &cobra.Command{
		Use:   "exec SQL...",
		Short: "Run statements and print affected row counts",
		Long: `Run one or more statements in order and print each command tag with
its affected row count. With --tx all statements run in one transaction
that is rolled back if any of them fails.`,
		Example: `  sqlkit exec "UPDATE users SET active = false WHERE last_seen < now() - interval '1 year'"

  # Both or neither
  sqlkit exec --tx "INSERT INTO a VALUES (1)" "INSERT INTO b VALUES (1)"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := cmd.Context()
			run := func(q sqlkit.Querier) error {
				for _, text := range args {
					stmt := sqlkit.SQL(text)
					if simple {
						stmt = stmt.Simple()
					}
					res, err := q.Exec(ctx, stmt)
					if err != nil {
						return cli.DBError("exec", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", res.Command, res.RowsAffected)
				}
				return nil
			}

			if !tx {
				return run(client)
			}
			return client.WithTx(ctx, func(t *sqlkit.Tx) error { return run(t) })
		},
	}
	cmd.Flags().BoolVar(&simple, "simple", false, "send statements without preparing them")
	cmd.Flags().BoolVar(&tx, "tx", false, "run all statements in one transaction")
	return cmd
}
