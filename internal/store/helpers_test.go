package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/missionctl/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDBWithPath(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// insertEvent wraps InsertEventTx in a transaction.
func insertEvent(t *testing.T, db *sql.DB, ev *models.Event) bool {
	t.Helper()
	var duplicate bool
	err := Transact(db, func(tx *sql.Tx) error {
		var txErr error
		duplicate, txErr = InsertEventTx(tx, ev)
		return txErr
	})
	require.NoError(t, err)
	return duplicate
}

// backdateTask rewrites a task's created_at and updated_at N minutes into
// the past so age-based sweeps see it as stale.
func backdateTask(t *testing.T, db *sql.DB, taskID string, minutes int) {
	t.Helper()
	_, err := db.Exec(`
		UPDATE tasks
		SET created_at = datetime('now', '-' || ? || ' minutes'),
		    updated_at = datetime('now', '-' || ? || ' minutes')
		WHERE id = ?
	`, minutes, minutes, taskID)
	require.NoError(t, err)
}

// backdateAckDeadline moves a task's ack deadline into the past.
func backdateAckDeadline(t *testing.T, db *sql.DB, taskID string, minutes int) {
	t.Helper()
	_, err := db.Exec(`
		UPDATE tasks SET ack_deadline = datetime('now', '-' || ? || ' minutes') WHERE id = ?
	`, minutes, taskID)
	require.NoError(t, err)
}

// backdateHeartbeat ages an agent's last heartbeat.
func backdateHeartbeat(t *testing.T, db *sql.DB, agentID string, minutes int) {
	t.Helper()
	_, err := db.Exec(`
		UPDATE agents_status SET last_heartbeat_at = datetime('now', '-' || ? || ' minutes') WHERE id = ?
	`, minutes, agentID)
	require.NoError(t, err)
}
