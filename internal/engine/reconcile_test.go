package engine

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/missionctl/internal/app"
	"github.com/dotcommander/missionctl/internal/incident"
	"github.com/dotcommander/missionctl/internal/models"
	"github.com/dotcommander/missionctl/internal/store"
)

func testSweepSettings() app.SweepSettings {
	return app.SweepSettings{
		HeartbeatThreshold: 3 * time.Minute,
		AckTimeout:         2 * time.Minute,
		RunningTimeout:     15 * time.Minute,
		AckDeadline:        5 * time.Minute,
	}
}

func heartbeat(t *testing.T, db *sql.DB, agentID string) {
	t.Helper()
	require.NoError(t, store.Transact(db, func(tx *sql.Tx) error {
		return store.UpsertAgentStatusTx(tx, agentID, models.EventTypeHeartbeat, "")
	}))
}

func TestReconcile_SilentAgentGoesDown(t *testing.T) {
	db := setupTestDB(t)

	heartbeat(t, db, "silent")
	heartbeat(t, db, "alive")
	_, err := db.Exec(`UPDATE agents_status SET last_heartbeat_at = datetime('now', '-10 minutes') WHERE id = 'silent'`)
	require.NoError(t, err)

	res, fx, err := RunReconciliation(db, testSweepSettings(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, res.CheckedAgents)
	require.Equal(t, 1, res.OfflineMarked)

	agent, err := store.GetAgentStatus(db, "silent")
	require.NoError(t, err)
	require.Equal(t, models.Health("down"), agent.Status)

	incidents, err := store.ListIncidents(db)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	require.Contains(t, incidents[0].Fingerprint, "reconciliation:silent:HEARTBEAT_LOST:")

	require.Len(t, fx.Notifications, 1)
	require.Equal(t, "offline", fx.Notifications[0].Kind)
	require.Equal(t, "silent", fx.Notifications[0].AgentID)

	// A second sweep the same day finds the agent already down: no new
	// incident, no duplicate notification.
	res, fx, err = RunReconciliation(db, testSweepSettings(), time.Now())
	require.NoError(t, err)
	require.Zero(t, res.OfflineMarked)
	require.Empty(t, fx.Notifications)

	incidents, err = store.ListIncidents(db)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
}

func TestReconcile_RepeatedLossMergesDailyIncident(t *testing.T) {
	db := setupTestDB(t)

	heartbeat(t, db, "flappy")
	_, err := db.Exec(`UPDATE agents_status SET last_heartbeat_at = datetime('now', '-10 minutes') WHERE id = 'flappy'`)
	require.NoError(t, err)

	_, _, err = RunReconciliation(db, testSweepSettings(), time.Now())
	require.NoError(t, err)

	// Agent comes back, then goes silent again the same day.
	heartbeat(t, db, "flappy")
	_, err = db.Exec(`UPDATE agents_status SET last_heartbeat_at = datetime('now', '-10 minutes') WHERE id = 'flappy'`)
	require.NoError(t, err)

	_, _, err = RunReconciliation(db, testSweepSettings(), time.Now())
	require.NoError(t, err)

	incidents, err := store.ListIncidents(db)
	require.NoError(t, err)
	require.Len(t, incidents, 1)

	details, err := incident.Decode(incidents[0].Details)
	require.NoError(t, err)
	require.Equal(t, 2, details.Count)
	require.Equal(t, 2, details.CauseBreakdown["HEARTBEAT_LOST"])
}

func TestReconcile_TimesOutStaleTasks(t *testing.T) {
	db := setupTestDB(t)

	queued, err := store.CreateTask(db, "stale queued", "worker-a", "", "", "")
	require.NoError(t, err)
	running, err := store.CreateTask(db, "stalled running", "worker-b", "", "", "")
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE tasks SET created_at = datetime('now', '-5 minutes'), updated_at = datetime('now', '-5 minutes') WHERE id = ?`, queued.ID)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE tasks SET status = 'running', created_at = datetime('now', '-30 minutes'), updated_at = datetime('now', '-30 minutes') WHERE id = ?`, running.ID)
	require.NoError(t, err)

	res, fx, err := RunReconciliation(db, testSweepSettings(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, res.TimedOutTasks)
	require.Len(t, fx.Notifications, 2)
	for _, n := range fx.Notifications {
		require.Equal(t, "timeout", n.Kind)
	}

	got, err := store.GetTask(db, queued.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusTimeout, got.Status)
	require.Equal(t, "ACK_TIMEOUT", got.ErrorCode)

	got, err = store.GetTask(db, running.ID)
	require.NoError(t, err)
	require.Equal(t, "RUNNING_TIMEOUT", got.ErrorCode)
}

func TestReconcile_WritesHealthCheck(t *testing.T) {
	db := setupTestDB(t)

	_, _, err := RunReconciliation(db, testSweepSettings(), time.Now())
	require.NoError(t, err)

	checks, err := store.ListHealthChecks(db, 10)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	require.Equal(t, "agents_reconciliation", checks[0].Service)
	require.Equal(t, "healthy", checks[0].Status)
}
