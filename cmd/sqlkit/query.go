package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	sqlkit "github.com/vango-go/vango-sqlkit"
	"github.com/vango-go/vango-sqlkit/internal/cli"
)

type queryFlags struct {
	format string
	values bool
	raw    bool
	simple bool
	stream bool
	limit  int
}

func newQueryCmd(a *app) *cobra.Command {
	var f queryFlags

	cmd := &cobra.Command{
		Use:   "query SQL",
		Short: "Run a statement and print its rows",
		Long: `Run a statement and print its rows.

Column names pass through the configured result-name transform unless --raw
is given. With --stream rows are printed as they are fetched, one JSON
document per line (or one YAML document each), and --limit cancels the
cursor after that many rows.`,
		Example: `  # Rows as JSON objects
  sqlkit query "SELECT id, name FROM users"

  # Positional arrays as YAML
  sqlkit query --values --format yaml "SELECT id, name FROM users"

  # Read the first 100 rows of a large table and cancel the rest
  sqlkit query --stream --limit 100 "SELECT * FROM events"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(f.format, false); err != nil {
				return err
			}
			if f.limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			stmt := sqlkit.SQL(args[0])
			if f.simple {
				stmt = stmt.Simple()
			}

			client, closeFn, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if f.stream {
				return streamRows(cmd, client, stmt, f)
			}

			var res *sqlkit.Result
			switch {
			case f.values:
				res, err = client.Values(cmd.Context(), stmt)
			case f.raw:
				res, err = client.Raw(cmd.Context(), stmt)
			default:
				res, err = client.Query(cmd.Context(), stmt)
			}
			if err != nil {
				return cli.DBError("query", err)
			}

			if f.values {
				return writeValue(cmd.OutOrStdout(), f.format, valuesOutput{Columns: res.Columns, Values: res.Values})
			}
			rows := res.Rows
			if rows == nil {
				rows = []sqlkit.Row{}
			}
			return writeValue(cmd.OutOrStdout(), f.format, rows)
		},
	}
	cmd.Flags().StringVar(&f.format, "format", formatJSON, "output format: json or yaml")
	cmd.Flags().BoolVar(&f.values, "values", false, "print positional arrays instead of objects")
	cmd.Flags().BoolVar(&f.raw, "raw", false, "skip the result-name transform")
	cmd.Flags().BoolVar(&f.simple, "simple", false, "send the statement without preparing it")
	cmd.Flags().BoolVar(&f.stream, "stream", false, "print rows as they are fetched")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "with --stream, stop after this many rows (0 means all)")
	cmd.MarkFlagsMutuallyExclusive("values", "raw")
	cmd.MarkFlagsMutuallyExclusive("values", "stream")
	return cmd
}

type valuesOutput struct {
	Columns []string `json:"columns"`
	Values  [][]any  `json:"values"`
}

func streamRows(cmd *cobra.Command, client *sqlkit.Client, stmt sqlkit.Statement, f queryFlags) error {
	ctx := cmd.Context()
	s, err := client.Stream(ctx, stmt)
	if err != nil {
		return cli.DBError("query", err)
	}
	defer s.Cancel()

	out := cmd.OutOrStdout()
	n := 0
	for row, err := range s.All(ctx) {
		if err != nil {
			return cli.DBError("stream", err)
		}
		if err := writeStreamRow(out, f.format, row); err != nil {
			return err
		}
		n++
		if f.limit > 0 && n >= f.limit {
			s.Cancel()
			break
		}
	}
	return nil
}

func writeStreamRow(w io.Writer, format string, row sqlkit.Row) error {
	if format == formatYAML {
		if _, err := io.WriteString(w, "---\n"); err != nil {
			return err
		}
		return writeValue(w, format, row)
	}
	return writeJSONLine(w, row)
}
