package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/missionctl/internal/models"
)

func upsertAgent(t *testing.T, db *sql.DB, agentID string, evType models.EventType, commandID string) {
	t.Helper()
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		return UpsertAgentStatusTx(tx, agentID, evType, commandID)
	}))
}

func TestUpsertAgentStatus_HeartbeatAdvancesOnlyOnHeartbeat(t *testing.T) {
	db := setupTestDB(t)

	upsertAgent(t, db, "planner", models.EventTypeHeartbeat, "")
	first, err := GetAgentStatus(db, "planner")
	require.NoError(t, err)
	require.NotNil(t, first.LastHeartbeatAt)
	require.Equal(t, models.Health("active"), first.Status)

	backdateHeartbeat(t, db, "planner", 10)
	aged, err := GetAgentStatus(db, "planner")
	require.NoError(t, err)

	// A task event proves liveness but is not a heartbeat.
	upsertAgent(t, db, "planner", models.EventTypeRunning, "cmd_7")
	after, err := GetAgentStatus(db, "planner")
	require.NoError(t, err)
	require.True(t, after.LastHeartbeatAt.Equal(*aged.LastHeartbeatAt))
	require.Equal(t, "cmd_7", after.CurrentCommandID)
	require.True(t, after.LastSeenAt.After(*aged.LastHeartbeatAt))

	upsertAgent(t, db, "planner", models.EventTypeHeartbeat, "")
	fresh, err := GetAgentStatus(db, "planner")
	require.NoError(t, err)
	require.True(t, fresh.LastHeartbeatAt.After(*aged.LastHeartbeatAt))
}

func TestUpsertAgentStatus_EventRevivesDownAgent(t *testing.T) {
	db := setupTestDB(t)

	upsertAgent(t, db, "worker", models.EventTypeHeartbeat, "")
	_, err := db.Exec(`UPDATE agents_status SET status = 'down' WHERE id = 'worker'`)
	require.NoError(t, err)

	upsertAgent(t, db, "worker", models.EventTypeFailed, "cmd_1")
	got, err := GetAgentStatus(db, "worker")
	require.NoError(t, err)
	require.Equal(t, models.Health("active"), got.Status)
}

func TestMarkSilentAgentsDown(t *testing.T) {
	db := setupTestDB(t)

	upsertAgent(t, db, "silent", models.EventTypeHeartbeat, "")
	upsertAgent(t, db, "chatty", models.EventTypeHeartbeat, "")
	upsertAgent(t, db, "newborn", models.EventTypeRunning, "cmd_n")
	backdateHeartbeat(t, db, "silent", 4)
	backdateHeartbeat(t, db, "chatty", 2)

	// newborn was inserted via a non-heartbeat event; its heartbeat stamp
	// is its insert time, still fresh.
	var offline []OfflineAgent
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		var txErr error
		offline, txErr = MarkSilentAgentsDownTx(tx, 3*time.Minute)
		return txErr
	}))

	require.Len(t, offline, 1)
	require.Equal(t, "silent", offline[0].ID)
	require.Greater(t, offline[0].SilentFor, 3*time.Minute)

	got, err := GetAgentStatus(db, "silent")
	require.NoError(t, err)
	require.Equal(t, models.Health("down"), got.Status)

	got, err = GetAgentStatus(db, "chatty")
	require.NoError(t, err)
	require.Equal(t, models.Health("active"), got.Status)

	// Already-down agents are not demoted twice.
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		again, txErr := MarkSilentAgentsDownTx(tx, 3*time.Minute)
		require.NoError(t, txErr)
		require.Empty(t, again)
		return nil
	}))
}

func TestListAgents_DownFirst(t *testing.T) {
	db := setupTestDB(t)

	upsertAgent(t, db, "alpha", models.EventTypeHeartbeat, "")
	upsertAgent(t, db, "beta", models.EventTypeHeartbeat, "")
	_, err := db.Exec(`UPDATE agents_status SET status = 'down' WHERE id = 'beta'`)
	require.NoError(t, err)

	agents, err := ListAgents(db)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	require.Equal(t, "beta", agents[0].ID)
	require.Equal(t, "alpha", agents[1].ID)
}
