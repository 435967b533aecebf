package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/spf13/cobra"

	sqlkit "github.com/vango-go/vango-sqlkit"
	"github.com/vango-go/vango-sqlkit/internal/cli"
	"github.com/vango-go/vango-sqlkit/pgxdriver"
	"github.com/vango-go/vango-sqlkit/sqldriver"
)

const closeTimeout = 10 * time.Second

// app is the state shared by every command of one invocation.
type app struct {
	cfg        *cli.Config
	configPath string
	logger     *slog.Logger

	// Persistent flags
	cfgFile string
	envFile string
	verbose int
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "sqlkit",
		Short: "Run SQL through a sqlkit connection pool",
		Long: `sqlkit - run SQL through a sqlkit connection pool

sqlkit connects to PostgreSQL (pgx or lib/pq), MySQL or SQLite using the
settings in sqlkit.yaml, SQLKIT_* environment variables or DATABASE_URL.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			if err := cli.LoadEnvFile(a.envFile); err != nil {
				return cli.ConfigError("loading env file", err)
			}

			var err error
			a.cfg, a.configPath, err = cli.LoadConfig(a.cfgFile)
			if err != nil {
				return cli.ConfigError("loading configuration", err)
			}
			a.logger = cli.NewLogger(cmd.ErrOrStderr(), a.cfg.Log, a.verbose)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: auto-discover sqlkit.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file to load (default: .env if present)")
	rootCmd.PersistentFlags().CountVarP(&a.verbose, "verbose", "v", "increase log verbosity (can be repeated)")

	rootCmd.AddCommand(
		newPingCmd(a),
		newQueryCmd(a),
		newExecCmd(a),
		newConfigCmd(a),
	)
	return rootCmd
}

// open builds the configured driver and a pinged client. The returned close
// function shuts both down.
func (a *app) open(ctx context.Context) (*sqlkit.Client, func(), error) {
	opts := []sqlkit.Option{
		sqlkit.WithLogger(a.logger),
		sqlkit.WithSlowQueryThreshold(a.cfg.SlowQuery),
		sqlkit.WithStreamBuffer(a.cfg.StreamBuffer),
	}

	var (
		drv      sqlkit.Driver
		closeDrv = func() {}
	)
	switch a.cfg.ResolvedDriver() {
	case cli.DriverSQL:
		d, err := sqldriver.New(a.cfg.Database)
		if err != nil {
			return nil, nil, cli.DBError("configuring database/sql driver", err)
		}
		drv = d
		closeDrv = func() { _ = d.Close() }
	default:
		level := tracelog.LogLevelWarn
		if a.verbose > 1 {
			level = tracelog.LogLevelDebug
		}
		d, err := pgxdriver.New(a.cfg.Database, pgxdriver.WithLogger(a.logger, level))
		if err != nil {
			return nil, nil, cli.DBError("configuring pgx driver", err)
		}
		drv = d
	}

	client, err := sqlkit.Open(ctx, drv, a.cfg.Database, opts...)
	if err != nil {
		closeDrv()
		return nil, nil, cli.DBError("connecting", err)
	}
	return client, func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			a.logger.Warn("closing pool", "error", err)
		}
		closeDrv()
	}, nil
}
