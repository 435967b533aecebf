// Command sqlkit runs SQL against a configured database through the sqlkit
// pool.
//
// Configuration is read from sqlkit.yaml (discovered by walking up from the
// working directory), SQLKIT_* environment variables and an optional .env
// file. DATABASE_URL is accepted as a fallback for database.url.
//
// Usage:
//
//	sqlkit [flags] <command>
//
// Commands:
//   - ping: check connectivity
//   - query: run a statement and print its rows as JSON or YAML
//   - exec: run a statement and print the affected row count
//   - config show: print the effective configuration with secrets redacted
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vango-go/vango-sqlkit/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Report(os.Stderr, newRootCmd().ExecuteContext(ctx))
	stop()
	os.Exit(code)
}
