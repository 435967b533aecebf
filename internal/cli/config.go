// Package cli provides configuration and process helpers for the sqlkit CLI.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	sqlkit "github.com/vango-go/vango-sqlkit"
)

const (
	maxWalkDepth = 25

	// DriverAuto picks pgx for postgres URLs and database/sql otherwise.
	DriverAuto = "auto"
	// DriverPgx uses pgxdriver.
	DriverPgx = "pgx"
	// DriverSQL uses sqldriver on top of database/sql.
	DriverSQL = "sql"
)

// Config represents the CLI configuration from sqlkit.yaml.
type Config struct {
	Driver   string        `mapstructure:"driver"`
	Database sqlkit.Config `mapstructure:"database"`
	Log      LogConfig     `mapstructure:"log"`

	// SlowQuery logs statements running at least this long. Zero disables it.
	SlowQuery    time.Duration `mapstructure:"slow_query"`
	StreamBuffer int           `mapstructure:"stream_buffer"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. An empty path means
// ./.env, which may be absent.
func LoadEnvFile(path string) error {
	optional := path == ""
	if optional {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// LoadConfig discovers and loads configuration with proper precedence:
// env > config file > defaults. DATABASE_URL is honored when
// SQLKIT_DATABASE_URL is unset.
//
// Returns the loaded config, the path to the config file (empty if none found),
// and any error encountered.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SQLKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database.url", "SQLKIT_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, "", err
	}

	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, configPath, err
	}

	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("driver", DriverAuto)

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.database", "")
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_connections", 4)
	v.SetDefault("database.connection_ttl", "5m")
	v.SetDefault("database.max_lifetime", "30m")
	v.SetDefault("database.acquire_timeout", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.sweep_period", "30s")
	v.SetDefault("database.transform_query_names", "")
	v.SetDefault("database.transform_result_names", "")

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")

	v.SetDefault("slow_query", "0s")
	v.SetDefault("stream_buffer", 16)
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for sqlkit.yaml or sqlkit.yml,
// stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for range maxWalkDepth {
		for _, name := range []string{"sqlkit.yaml", "sqlkit.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// Validate checks the CLI settings and the database section.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverAuto, DriverPgx, DriverSQL:
	default:
		return fmt.Errorf("driver must be one of %s, %s or %s, got %q", DriverAuto, DriverPgx, DriverSQL, c.Driver)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.SlowQuery < 0 {
		return errors.New("slow_query must not be negative")
	}
	if c.StreamBuffer < 0 {
		return errors.New("stream_buffer must not be negative")
	}
	return c.Database.Validate()
}

// ResolvedDriver returns the concrete driver name, resolving auto from the
// database URL scheme.
func (c *Config) ResolvedDriver() string {
	if c.Driver != DriverAuto && c.Driver != "" {
		return c.Driver
	}
	scheme, _, ok := strings.Cut(c.Database.URL, ":")
	if !ok {
		return DriverPgx
	}
	switch strings.ToLower(scheme) {
	case "mysql", "sqlite", "sqlite3":
		return DriverSQL
	default:
		return DriverPgx
	}
}

// View is the printable form of Config. Passwords are redacted, including
// the one a database URL may carry.
type View struct {
	Driver   string       `json:"driver"`
	Database DatabaseView `json:"database"`
	Log      LogConfig    `json:"log"`

	SlowQuery    string `json:"slow_query"`
	StreamBuffer int    `json:"stream_buffer"`
}

// DatabaseView mirrors sqlkit.Config with durations rendered as strings.
type DatabaseView struct {
	URL      string        `json:"url,omitempty"`
	Host     string        `json:"host,omitempty"`
	Port     int           `json:"port,omitempty"`
	Database string        `json:"database,omitempty"`
	Username string        `json:"username,omitempty"`
	Password sqlkit.Secret `json:"password,omitempty"`

	MaxConnections int    `json:"max_connections"`
	ConnectionTTL  string `json:"connection_ttl"`
	MaxLifetime    string `json:"max_lifetime"`
	AcquireTimeout string `json:"acquire_timeout"`
	ConnectTimeout string `json:"connect_timeout"`
	SweepPeriod    string `json:"sweep_period"`

	TransformQueryNames  string            `json:"transform_query_names,omitempty"`
	TransformResultNames string            `json:"transform_result_names,omitempty"`
	DriverOptions        map[string]string `json:"driver_options,omitempty"`
}

// View returns the printable configuration.
func (c *Config) View() View {
	db := c.Database
	return View{
		Driver: c.Driver,
		Database: DatabaseView{
			URL:                  redactURL(db.URL),
			Host:                 db.Host,
			Port:                 db.Port,
			Database:             db.Database,
			Username:             db.Username,
			Password:             db.Password,
			MaxConnections:       db.MaxConnections,
			ConnectionTTL:        db.ConnectionTTL.String(),
			MaxLifetime:          db.MaxLifetime.String(),
			AcquireTimeout:       db.AcquireTimeout.String(),
			ConnectTimeout:       db.ConnectTimeout.String(),
			SweepPeriod:          db.SweepPeriod.String(),
			TransformQueryNames:  db.TransformQueryNames,
			TransformResultNames: db.TransformResultNames,
			DriverOptions:        db.DriverOptions,
		},
		Log:          c.Log,
		SlowQuery:    c.SlowQuery.String(),
		StreamBuffer: c.StreamBuffer,
	}
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		// SECURITY: an unparsable URL may still hold a password.
		return "[UNPARSABLE URL]"
	}
	return u.Redacted()
}
