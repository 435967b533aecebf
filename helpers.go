package sqlkit

import "context"

// Pinger is anything that can verify connectivity: Client, Pool and Conn.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus is the response type for health check endpoints.
type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// HealthCheck pings db and returns a status suitable for health endpoints.
// The returned error is safe to log.
func HealthCheck(ctx context.Context, db Pinger) (*HealthStatus, error) {
	if err := db.Ping(ctx); err != nil {
		return nil, newError(KindConnection, "sqlkit: health check failed", err)
	}
	status := &HealthStatus{Status: "ok"}
	if d, ok := db.(interface{ Dialect() Dialect }); ok {
		status.Database = d.Dialect().Name
	}
	return status, nil
}

// Dialect returns the dialect statements are compiled for.
func (c *Client) Dialect() Dialect { return c.pool.Dialect() }
