package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dotcommander/missionctl/internal/models"
)

// UpsertHealthCheckTx records a service heartbeat, replacing the previous
// one for the same service.
func UpsertHealthCheckTx(tx Querier, service, status string, uptimePct *float64) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return errors.New("health check service is required")
	}

	uptime := any(nil)
	if uptimePct != nil {
		uptime = *uptimePct
	}

	_, err := tx.Exec(`
		INSERT INTO health_checks (service, status, uptime_pct, last_check)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (service) DO UPDATE SET
			status = excluded.status,
			uptime_pct = excluded.uptime_pct,
			last_check = CURRENT_TIMESTAMP
	`, service, status, uptime)
	if err != nil {
		return fmt.Errorf("failed to upsert health check: %w", err)
	}
	return nil
}

// UpsertHealthCheck is the standalone-transaction variant.
func UpsertHealthCheck(db *sql.DB, service, status string, uptimePct *float64) error {
	return Transact(db, func(tx *sql.Tx) error {
		return UpsertHealthCheckTx(tx, service, status, uptimePct)
	})
}

// ListHealthChecks returns recent service heartbeats, newest first.
func ListHealthChecks(q Querier, limit int) ([]models.HealthCheck, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := q.Query(`
		SELECT service, status, uptime_pct, last_check
		FROM health_checks
		ORDER BY last_check DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list health checks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.HealthCheck
	for rows.Next() {
		var (
			h      models.HealthCheck
			uptime sql.NullFloat64
		)
		if err := rows.Scan(&h.Service, &h.Status, &uptime, &h.LastCheck); err != nil {
			return nil, err
		}
		if uptime.Valid {
			v := uptime.Float64
			h.UptimePct = &v
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
