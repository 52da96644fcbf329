package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dotcommander/missionctl/internal/models"
)

// NewIncident holds the fields accepted when opening an incident.
type NewIncident struct {
	DemID       string
	Title       string
	Severity    models.Severity
	Owner       string
	Source      string
	Impact      string
	NextAction  string
	Fingerprint string
	DetailsJSON []byte
}

// InsertIncidentTx opens a new incident in status open.
func InsertIncidentTx(tx Querier, in NewIncident) (string, error) {
	if strings.TrimSpace(in.Title) == "" {
		return "", errors.New("incident title is required")
	}
	if in.Severity == "" {
		in.Severity = models.SeverityMedium
	}
	if !models.ValidSeverity(in.Severity) {
		return "", fmt.Errorf("unknown severity %q", in.Severity)
	}

	id := generatePrefixedID("inc")
	details := any(nil)
	if len(in.DetailsJSON) > 0 {
		details = string(in.DetailsJSON)
	}

	_, err := tx.Exec(`
		INSERT INTO incidents (id, dem_id, title, severity, status, owner, source, impact, next_action, fingerprint, details, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'open', ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, id, nullable(in.DemID), in.Title, string(in.Severity), nullable(in.Owner),
		nullable(in.Source), nullable(in.Impact), nullable(in.NextAction),
		nullable(in.Fingerprint), details)
	if err != nil {
		return "", fmt.Errorf("failed to insert incident: %w", err)
	}
	return id, nil
}

// FindOpenByFingerprintTx returns the single open-or-investigating
// incident matching a fingerprint, or nil when none exists. The
// dedup invariant keeps at most one such row per fingerprint.
func FindOpenByFingerprintTx(tx Querier, fingerprint string) (*models.Incident, error) {
	inc, err := scanIncidentRow(tx.QueryRow(`
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE fingerprint = ? AND status IN ('open', 'investigating')
		LIMIT 1
	`, fingerprint))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find incident by fingerprint: %w", err)
	}
	return inc, nil
}

// UpdateIncidentDetailsTx replaces an incident's details aggregate.
func UpdateIncidentDetailsTx(tx Querier, id string, detailsJSON []byte) error {
	result, err := tx.Exec(`
		UPDATE incidents SET details = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, string(detailsJSON), id)
	if err != nil {
		return fmt.Errorf("failed to update incident details: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrIncidentNotFound
	}
	return nil
}

// UpdateIncidentStatus moves an incident through its lifecycle and
// optionally replaces next_action.
func UpdateIncidentStatus(db *sql.DB, id string, status models.IncidentStatus, nextAction string) (*models.Incident, error) {
	if !models.ValidIncidentStatus(status) {
		return nil, fmt.Errorf("unknown incident status %q", status)
	}

	var inc *models.Incident
	err := Transact(db, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE incidents
			SET status = ?, next_action = COALESCE(?, next_action), updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, string(status), nullable(nextAction), id)
		if err != nil {
			return fmt.Errorf("failed to update incident status: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrIncidentNotFound
		}
		inc, err = getIncidentTx(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// GetIncident fetches one incident by id.
func GetIncident(q Querier, id string) (*models.Incident, error) {
	inc, err := scanIncidentRow(q.QueryRow(
		`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return inc, nil
}

func getIncidentTx(tx *sql.Tx, id string) (*models.Incident, error) {
	return GetIncident(tx, id)
}

// ListIncidents returns incidents ordered by severity (critical first),
// then recency.
func ListIncidents(q Querier) ([]models.Incident, error) {
	rows, err := q.Query(`
		SELECT ` + incidentColumns + `
		FROM incidents
		ORDER BY
			CASE severity
				WHEN 'critical' THEN 0
				WHEN 'high' THEN 1
				WHEN 'medium' THEN 2
				WHEN 'low' THEN 3
			END,
			created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Incident
	for rows.Next() {
		inc, err := scanIncidentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}
