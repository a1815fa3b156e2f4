package postgres

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus represents the health of the Postgres connection
type HealthStatus struct {
	Connected     bool      `json:"connected"`
	ServerVersion string    `json:"server_version,omitempty"`
	Database      string    `json:"database"`
	OpenConns     int       `json:"open_connections"`
	InUse         int       `json:"in_use"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// HealthCheck performs a health check on the PostgreSQL connection.
// Failures are reported in the status, not as an error.
func (c *PostgresClient) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{
		Database:  c.config.PostgresDB,
		Timestamp: time.Now(),
	}

	if c.db == nil {
		status.Error = "not connected"
		return status, nil
	}

	stats := c.db.Stats()
	status.OpenConns = stats.OpenConnections
	status.InUse = stats.InUse

	if err := c.db.PingContext(ctx); err != nil {
		status.Error = fmt.Sprintf("ping failed: %v", err)
		return status, nil
	}
	status.Connected = true

	var version string
	if err := c.db.QueryRowContext(ctx, "SHOW server_version").Scan(&version); err != nil {
		status.Error = fmt.Sprintf("failed to get version: %v", err)
		return status, nil
	}
	status.ServerVersion = version

	return status, nil
}
