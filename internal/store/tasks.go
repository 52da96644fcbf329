package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dotcommander/missionctl/internal/models"
)

// CreateTask inserts a new queued task with a generated id and command id.
func CreateTask(db *sql.DB, title, assignedTo string, stage models.Stage, priority, payloadJSON string) (*models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("task title is required")
	}
	if stage == "" {
		stage = models.StageTodo
	}
	if !models.ValidStage(stage) {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	if priority == "" {
		priority = "medium"
	}

	taskID := generatePrefixedID("task")
	commandID := generatePrefixedID("cmd")

	var task *models.Task
	err := Transact(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tasks (id, command_id, title, status, stage, priority, assigned_to, payload_json, created_at, updated_at)
			VALUES (?, ?, ?, 'queued', ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		`, taskID, commandID, title, string(stage), priority, nullable(assignedTo), nullable(payloadJSON))
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
		task, err = getTaskTx(tx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask fetches a task by id.
func GetTask(q Querier, id string) (*models.Task, error) {
	task, err := scanTaskRow(q.QueryRow(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &TaskNotFoundError{TaskID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func getTaskTx(tx *sql.Tx, id string) (*models.Task, error) {
	return GetTask(tx, id)
}

// GetTaskByCommandIDTx loads the task correlated with a command inside tx.
// With SQLite's single-writer transactions the read is already serialized
// against concurrent events on the same command_id; a server database
// would take a row lock here instead.
func GetTaskByCommandIDTx(tx *sql.Tx, commandID string) (*models.Task, error) {
	task, err := scanTaskRow(tx.QueryRow(
		`SELECT `+taskColumns+` FROM tasks WHERE command_id = ?`, commandID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &TaskNotFoundError{CommandID: commandID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task by command_id: %w", err)
	}
	return task, nil
}

// ApplyTaskTransitionTx writes an event-driven task transition and returns
// the updated row. Type-specific side fields:
//   - ack: ack_at is set only if currently NULL (first-write-wins)
//   - done: done_at is set unconditionally
//   - failed: error_code/error_message are recorded
func ApplyTaskTransitionTx(tx *sql.Tx, commandID string, status models.TaskStatus, stage models.Stage, evType models.EventType, message string) (*models.Task, error) {
	set := `status = ?, stage = ?, updated_at = CURRENT_TIMESTAMP`
	args := []any{string(status), string(stage)}

	switch evType {
	case models.EventTypeAck:
		set += `, ack_at = COALESCE(ack_at, CURRENT_TIMESTAMP)`
	case models.EventTypeDone:
		set += `, done_at = CURRENT_TIMESTAMP`
	case models.EventTypeFailed:
		if message == "" {
			message = "Failed"
		}
		set += `, error_code = 'AGENT_FAIL', error_message = ?`
		args = append(args, message)
	}

	args = append(args, commandID)
	result, err := tx.Exec(`UPDATE tasks SET `+set+` WHERE command_id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to apply task transition: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to count transitioned tasks: %w", err)
	}
	if affected == 0 {
		return nil, &TaskNotFoundError{CommandID: commandID}
	}

	return GetTaskByCommandIDTx(tx, commandID)
}

// DispatchTask stamps a task for channel delivery: DEM id (generated once,
// never rewritten), target channel, dispatch_status=pending and the ack
// deadline the watchdog will enforce.
func DispatchTask(db *sql.DB, taskID, channel string, ackDeadline time.Duration, now time.Time) (*models.Task, error) {
	var task *models.Task
	err := Transact(db, func(tx *sql.Tx) error {
		current, err := getTaskTx(tx, taskID)
		if err != nil {
			return err
		}

		demID := current.DemID
		if demID == "" {
			demID = GenerateDemID(now)
		}

		deadlineMinutes := int(ackDeadline.Minutes())
		if deadlineMinutes <= 0 {
			deadlineMinutes = 5
		}

		_, err = tx.Exec(`
			UPDATE tasks
			SET dem_id = ?, dispatch_status = 'pending', assigned_channel = ?,
			    ack_deadline = datetime(CURRENT_TIMESTAMP, '+' || ? || ' minutes'),
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, demID, channel, deadlineMinutes, taskID)
		if err != nil {
			return fmt.Errorf("failed to dispatch task: %w", err)
		}

		task, err = getTaskTx(tx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// SetDispatchStatus records the delivery bridge's progress on the
// send/ack handshake (pending -> sent once the channel message is out).
func SetDispatchStatus(db *sql.DB, taskID string, status models.DispatchStatus) error {
	return Transact(db, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE tasks SET dispatch_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, string(status), taskID)
		if err != nil {
			return fmt.Errorf("failed to set dispatch status: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return &TaskNotFoundError{TaskID: taskID}
		}
		return nil
	})
}

// OverdueDispatchTx returns tasks sent to a channel whose ack deadline
// has passed without acknowledgement.
func OverdueDispatchTx(tx *sql.Tx) ([]models.Task, error) {
	rows, err := tx.Query(`
		SELECT `+taskColumns+`
		FROM tasks
		WHERE dispatch_status = 'sent'
		  AND ack_deadline IS NOT NULL
		  AND ack_deadline < CURRENT_TIMESTAMP
		ORDER BY ack_deadline ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue dispatches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// MarkDispatchFailedTx transitions an overdue dispatch: the task becomes
// blocked and the card moves to the blocked column.
func MarkDispatchFailedTx(tx *sql.Tx, taskID string) error {
	_, err := tx.Exec(`
		UPDATE tasks
		SET dispatch_status = 'failed', status = 'blocked', board_column = 'blocked',
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, taskID)
	if err != nil {
		return fmt.Errorf("failed to mark dispatch failed: %w", err)
	}
	return nil
}

// TimedOutTask identifies a task transitioned by a reconciliation rule.
type TimedOutTask struct {
	ID         string
	AssignedTo string
}

// TimeoutQueuedTasksTx times out tasks still queued past the ack window.
func TimeoutQueuedTasksTx(tx *sql.Tx, olderThan time.Duration) ([]TimedOutTask, error) {
	return timeoutTasksTx(tx, `status = 'queued' AND created_at < datetime(CURRENT_TIMESTAMP, '-' || ? || ' minutes')`,
		"ACK_TIMEOUT", "No ACK within ack window", olderThan)
}

// TimeoutRunningTasksTx times out running tasks with no progress updates
// inside the running window.
func TimeoutRunningTasksTx(tx *sql.Tx, olderThan time.Duration) ([]TimedOutTask, error) {
	return timeoutTasksTx(tx, `status = 'running' AND updated_at < datetime(CURRENT_TIMESTAMP, '-' || ? || ' minutes')`,
		"RUNNING_TIMEOUT", "No execution heartbeat within running window", olderThan)
}

func timeoutTasksTx(tx *sql.Tx, predicate, errorCode, errorMessage string, olderThan time.Duration) ([]TimedOutTask, error) {
	minutes := int(olderThan.Minutes())
	if minutes <= 0 {
		minutes = 1
	}

	rows, err := tx.Query(`
		UPDATE tasks
		SET status = 'timeout', stage = 'blocked', error_code = ?, error_message = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE `+predicate+`
		RETURNING id, COALESCE(assigned_to, '')
	`, errorCode, errorMessage, minutes)
	if err != nil {
		return nil, fmt.Errorf("failed to time out tasks (%s): %w", errorCode, err)
	}
	defer func() { _ = rows.Close() }()

	var out []TimedOutTask
	for rows.Next() {
		var t TimedOutTask
		if err := rows.Scan(&t.ID, &t.AssignedTo); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MoveTaskColumn applies a kanban move: column, position, and the coarse
// status the column implies.
func MoveTaskColumn(db *sql.DB, taskID string, column models.KanbanColumn, position int) (*models.Task, error) {
	status, ok := models.ColumnStatus(column)
	if !ok {
		return nil, fmt.Errorf("unknown kanban column %q", column)
	}

	var task *models.Task
	err := Transact(db, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE tasks
			SET board_column = ?, position = ?, status = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, string(column), position, string(status), taskID)
		if err != nil {
			return fmt.Errorf("failed to move task: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return &TaskNotFoundError{TaskID: taskID}
		}
		task, err = getTaskTx(tx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListBoard returns all tasks in board order.
func ListBoard(q Querier) ([]models.Task, error) {
	rows, err := q.Query(`
		SELECT ` + taskColumns + `
		FROM tasks
		ORDER BY board_column ASC, position ASC, created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list board: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CountTasksByStatus returns the number of tasks per status.
func CountTasksByStatus(q Querier) (map[models.TaskStatus]int, error) {
	rows, err := q.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[models.TaskStatus]int)
	for rows.Next() {
		var (
			status models.TaskStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
