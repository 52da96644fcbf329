package store

import (
	"database/sql"
	"time"

	"github.com/dotcommander/missionctl/internal/models"
)

// scanNullString converts sql.NullString to string (empty if NULL)
func scanNullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// scanNullTime converts sql.NullTime to *time.Time (nil if NULL)
func scanNullTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// taskColumns is the select list every task scan uses, in scan order.
const taskColumns = `id, command_id, dem_id, title, status, stage, board_column, position,
	priority, assigned_to, dispatch_status, assigned_channel,
	ack_deadline, ack_at, done_at, error_code, error_message,
	created_at, updated_at`

// scanTaskRow scans and hydrates a task from a single row.
func scanTaskRow(row rowScanner) (*models.Task, error) {
	var (
		t               models.Task
		commandID       sql.NullString
		demID           sql.NullString
		assignedTo      sql.NullString
		dispatchStatus  sql.NullString
		assignedChannel sql.NullString
		errorCode       sql.NullString
		errorMessage    sql.NullString
		ackDeadline     sql.NullTime
		ackAt           sql.NullTime
		doneAt          sql.NullTime
	)

	err := row.Scan(
		&t.ID,
		&commandID,
		&demID,
		&t.Title,
		&t.Status,
		&t.Stage,
		&t.Column,
		&t.Position,
		&t.Priority,
		&assignedTo,
		&dispatchStatus,
		&assignedChannel,
		&ackDeadline,
		&ackAt,
		&doneAt,
		&errorCode,
		&errorMessage,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.CommandID = scanNullString(commandID)
	t.DemID = scanNullString(demID)
	t.AssignedTo = scanNullString(assignedTo)
	t.DispatchStatus = models.DispatchStatus(scanNullString(dispatchStatus))
	t.AssignedChannel = scanNullString(assignedChannel)
	t.ErrorCode = scanNullString(errorCode)
	t.ErrorMessage = scanNullString(errorMessage)
	t.AckDeadline = scanNullTime(ackDeadline)
	t.AckAt = scanNullTime(ackAt)
	t.DoneAt = scanNullTime(doneAt)
	return &t, nil
}

// incidentColumns is the select list every incident scan uses, in scan order.
const incidentColumns = `id, dem_id, title, severity, status, owner, source, impact,
	next_action, fingerprint, details, created_at, updated_at`

// scanIncidentRow scans and hydrates an incident from a single row.
func scanIncidentRow(row rowScanner) (*models.Incident, error) {
	var (
		inc         models.Incident
		demID       sql.NullString
		owner       sql.NullString
		source      sql.NullString
		impact      sql.NullString
		nextAction  sql.NullString
		fingerprint sql.NullString
		details     sql.NullString
	)

	err := row.Scan(
		&inc.ID,
		&demID,
		&inc.Title,
		&inc.Severity,
		&inc.Status,
		&owner,
		&source,
		&impact,
		&nextAction,
		&fingerprint,
		&details,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inc.DemID = scanNullString(demID)
	inc.Owner = scanNullString(owner)
	inc.Source = scanNullString(source)
	inc.Impact = scanNullString(impact)
	inc.NextAction = scanNullString(nextAction)
	inc.Fingerprint = scanNullString(fingerprint)
	if details.Valid {
		inc.Details = []byte(details.String)
	}
	return &inc, nil
}
