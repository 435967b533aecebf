// Package sqldriver provides a sqlkit.Driver on top of database/sql. New
// selects lib/pq for postgres URLs, go-sql-driver/mysql for mysql URLs and
// modernc.org/sqlite for sqlite URLs; OpenDB wraps any *sql.DB.
//
// A *sql.DB opened here is used as a link factory only: its idle connections
// are disabled so that pooling, eviction and lifetimes are owned by
// sqlkit.Pool.
package sqldriver

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	sqlkit "github.com/vango-go/vango-sqlkit"
)

const (
	// SQLiteDriverName is the database/sql name modernc.org/sqlite registers.
	SQLiteDriverName = "sqlite"

	defaultMySQLPort      = 3306
	defaultConnectTimeout = 10 * time.Second
)

// Driver opens database/sql connections.
type Driver struct {
	db      *sql.DB
	dialect sqlkit.Dialect
}

var _ sqlkit.Driver = (*Driver)(nil)

// New builds a driver from cfg. The URL scheme picks the database; without
// a URL the discrete fields describe a postgres server. New never connects.
// Errors are sqlkit config errors and safe to log.
func New(cfg sqlkit.Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ep, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	switch strings.ToLower(ep.Scheme) {
	case "", "postgres", "postgresql":
		if ep.Host == "" {
			return nil, configError("sqldriver: URL or Host is required")
		}
		// SECURITY: pq parse errors may echo the DSN.
		connector, err := pq.NewConnector(postgresDSN(ep, cfg.DriverOptions, timeout))
		if err != nil {
			return nil, configError("sqldriver: invalid postgres connection settings")
		}
		return factory(sql.OpenDB(connector), sqlkit.Postgres), nil

	case "mysql":
		if ep.Host == "" {
			return nil, configError("sqldriver: URL or Host is required")
		}
		mc, err := mysqlConfig(ep, cfg.DriverOptions, timeout)
		if err != nil {
			return nil, configError("sqldriver: invalid mysql connection settings")
		}
		connector, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, configError("sqldriver: invalid mysql connection settings")
		}
		return factory(sql.OpenDB(connector), sqlkit.MySQL), nil

	case "sqlite", "sqlite3":
		dsn := sqliteDSN(cfg.URL, ep, cfg.DriverOptions, timeout)
		if dsn == "" {
			return nil, configError("sqldriver: sqlite database path is required")
		}
		return Open(SQLiteDriverName, dsn, sqlkit.SQLite)

	default:
		return nil, configError(fmt.Sprintf("sqldriver: unsupported URL scheme %q", ep.Scheme))
	}
}

// Open opens a database/sql handle for a registered driver name.
func Open(driverName, dsn string, dialect sqlkit.Dialect) (*Driver, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		// SECURITY: keep the DSN out of the message.
		return nil, configError(fmt.Sprintf("sqldriver: open %q failed", driverName))
	}
	return factory(db, dialect), nil
}

// OpenDB wraps db and leaves its pool settings alone. Links closed by
// sqlkit.Pool go back to db's idle set unless db.SetMaxIdleConns(0) was
// called.
func OpenDB(db *sql.DB, dialect sqlkit.Dialect) *Driver {
	return &Driver{db: db, dialect: dialect}
}

func factory(db *sql.DB, dialect sqlkit.Dialect) *Driver {
	db.SetMaxIdleConns(0)
	return OpenDB(db, dialect)
}

// DB returns the underlying *sql.DB.
func (d *Driver) DB() *sql.DB { return d.db }

func (d *Driver) Dialect() sqlkit.Dialect { return d.dialect }

// Connect dedicates one database/sql connection to a link.
func (d *Driver) Connect(ctx context.Context) (sqlkit.Link, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, sqlkit.NewError(sqlkit.KindConnection, fmt.Sprintf("sqldriver: connect failed (driver=%s)", d.dialect.Name), classify(err))
	}
	return &link{conn: conn}, nil
}

// Close closes the underlying *sql.DB. Close the sqlkit pool first.
func (d *Driver) Close() error { return d.db.Close() }

func configError(msg string) error {
	return sqlkit.NewError(sqlkit.KindConfig, msg, nil)
}

func postgresDSN(ep sqlkit.Endpoint, driverOptions map[string]string, timeout time.Duration) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   ep.Address(),
		Path:   "/" + ep.Database,
	}
	if ep.Username != "" {
		if pw := ep.Password.Reveal(); pw != "" {
			u.User = url.UserPassword(ep.Username, pw)
		} else {
			u.User = url.User(ep.Username)
		}
	}
	params := mergeParams(ep.Params, driverOptions)
	if params.Get("connect_timeout") == "" {
		params.Set("connect_timeout", strconv.Itoa(max(1, int(timeout/time.Second))))
	}
	u.RawQuery = params.Encode()
	return u.String()
}

func mysqlConfig(ep sqlkit.Endpoint, driverOptions map[string]string, timeout time.Duration) (*mysql.Config, error) {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	port := ep.Port
	if port == 0 {
		port = defaultMySQLPort
	}
	mc.Addr = net.JoinHostPort(ep.Host, strconv.Itoa(port))
	mc.User = ep.Username
	mc.Passwd = ep.Password.Reveal()
	mc.DBName = ep.Database
	mc.ParseTime = true
	mc.Timeout = timeout

	params := mergeParams(ep.Params, driverOptions)
	if len(params) == 0 {
		return mc, nil
	}
	mc.Params = make(map[string]string, len(params))
	for k := range params {
		mc.Params[k] = params.Get(k)
	}
	// ParseDSN moves recognized keys (tls, charset, loc, ...) from Params
	// into their Config fields.
	return mysql.ParseDSN(mc.FormatDSN())
}

// sqliteDSN keeps the path as written after the scheme, so both
// sqlite:app.db and sqlite:///var/lib/app.db work.
func sqliteDSN(rawURL string, ep sqlkit.Endpoint, driverOptions map[string]string, timeout time.Duration) string {
	path := ep.Database
	if rawURL != "" {
		_, rest, _ := strings.Cut(rawURL, ":")
		rest = strings.TrimPrefix(rest, "//")
		path, _, _ = strings.Cut(rest, "?")
	}
	if path == "" {
		return ""
	}
	params := mergeParams(ep.Params, driverOptions)
	if !hasPragma(params, "busy_timeout") {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeout.Milliseconds()))
	}
	return path + "?" + params.Encode()
}

func hasPragma(params url.Values, name string) bool {
	for _, p := range params["_pragma"] {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(p)), name) {
			return true
		}
	}
	return false
}

func mergeParams(base url.Values, driverOptions map[string]string) url.Values {
	params := url.Values{}
	for k, v := range base {
		params[k] = append([]string(nil), v...)
	}
	for k, v := range driverOptions {
		params.Set(k, v)
	}
	return params
}
