package store

import (
	"database/sql"
	"fmt"

	"github.com/dotcommander/missionctl/internal/models"
)

// SyncCronJobs upserts the full batch reported by the external cron
// system in one transaction; a failure anywhere rolls back the batch.
func SyncCronJobs(db *sql.DB, jobs []models.CronJob) error {
	return Transact(db, func(tx *sql.Tx) error {
		for _, j := range jobs {
			if _, err := tx.Exec(`
				INSERT INTO cron_jobs (id, name, schedule, last_run, next_run, status, last_result, consecutive_errors, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT (id) DO UPDATE SET
					name = excluded.name,
					schedule = excluded.schedule,
					last_run = excluded.last_run,
					next_run = excluded.next_run,
					status = excluded.status,
					last_result = excluded.last_result,
					consecutive_errors = excluded.consecutive_errors,
					updated_at = CURRENT_TIMESTAMP
			`, j.ID, j.Name, j.Schedule, j.LastRun, j.NextRun, j.Status,
				nullable(j.LastResult), j.ConsecutiveErrors); err != nil {
				return fmt.Errorf("failed to upsert cron job %s: %w", j.ID, err)
			}
		}
		return nil
	})
}

// ListCronJobs returns cron jobs, erroring jobs first.
func ListCronJobs(q Querier) ([]models.CronJob, error) {
	rows, err := q.Query(`
		SELECT id, name, schedule, last_run, next_run, status, COALESCE(last_result, ''), consecutive_errors, updated_at
		FROM cron_jobs
		ORDER BY
			CASE status
				WHEN 'error' THEN 0
				WHEN 'active' THEN 1
				WHEN 'paused' THEN 2
			END,
			name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cron jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.CronJob
	for rows.Next() {
		var (
			j       models.CronJob
			lastRun sql.NullTime
			nextRun sql.NullTime
		)
		if err := rows.Scan(&j.ID, &j.Name, &j.Schedule, &lastRun, &nextRun,
			&j.Status, &j.LastResult, &j.ConsecutiveErrors, &j.UpdatedAt); err != nil {
			return nil, err
		}
		j.LastRun = scanNullTime(lastRun)
		j.NextRun = scanNullTime(nextRun)
		out = append(out, j)
	}
	return out, rows.Err()
}
