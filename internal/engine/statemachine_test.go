package engine

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/missionctl/internal/models"
	"github.com/dotcommander/missionctl/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.InitDBWithPath(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestProcessAgentEvent_FullLifecycle(t *testing.T) {
	db := setupTestDB(t)

	task, err := store.CreateTask(db, "summarize logs", "worker", "", "", "")
	require.NoError(t, err)

	steps := []struct {
		eventID string
		evType  models.EventType
		status  models.TaskStatus
	}{
		{"e_ack", models.EventTypeAck, models.TaskStatusAck},
		{"e_run", models.EventTypeRunning, models.TaskStatusRunning},
		{"e_done", models.EventTypeDone, models.TaskStatusDone},
	}

	for _, s := range steps {
		res, err := ProcessAgentEvent(db, &models.Event{
			EventID:   s.eventID,
			AgentID:   "worker",
			CommandID: task.CommandID,
			Type:      s.evType,
			Status:    s.status,
		})
		require.NoError(t, err)
		require.False(t, res.Duplicate)
		require.NotNil(t, res.TaskUpdate)
		require.Equal(t, s.status, res.TaskUpdate.Status)
		require.Len(t, res.Effects.Notifications, 1)
		require.Len(t, res.Effects.Updates, 1)
		require.Equal(t, "task.updated", res.Effects.Updates[0].Topic)
	}

	got, err := store.GetTask(db, task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusDone, got.Status)
	require.NotNil(t, got.AckAt)
	require.NotNil(t, got.DoneAt)

	agent, err := store.GetAgentStatus(db, "worker")
	require.NoError(t, err)
	require.Equal(t, models.Health("active"), agent.Status)
	require.Equal(t, task.CommandID, agent.CurrentCommandID)
}

func TestProcessAgentEvent_DuplicateIsNoOp(t *testing.T) {
	db := setupTestDB(t)

	task, err := store.CreateTask(db, "dup test", "worker", "", "", "")
	require.NoError(t, err)

	ev := &models.Event{
		EventID:   "e_once",
		AgentID:   "worker",
		CommandID: task.CommandID,
		Type:      models.EventTypeDone,
		Status:    models.TaskStatusDone,
	}

	first, err := ProcessAgentEvent(db, ev)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	// Force the task back so any second application would be visible.
	_, err = db.Exec(`UPDATE tasks SET status = 'running', done_at = NULL WHERE id = ?`, task.ID)
	require.NoError(t, err)

	second, err := ProcessAgentEvent(db, ev)
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Nil(t, second.TaskUpdate)
	require.True(t, second.Effects.Empty())

	got, err := store.GetTask(db, task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusRunning, got.Status, "replay must not re-apply the transition")
}

func TestProcessAgentEvent_MissingTaskRollsBackEvent(t *testing.T) {
	db := setupTestDB(t)

	_, err := ProcessAgentEvent(db, &models.Event{
		EventID:   "e_orphan",
		AgentID:   "worker",
		CommandID: "cmd_ghost",
		Type:      models.EventTypeRunning,
	})
	require.ErrorIs(t, err, store.ErrTaskNotFound)

	// Atomicity: the failed transaction must not leave the event behind,
	// so a retry after the task exists succeeds as a first application.
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM agent_events WHERE event_id = 'e_orphan'`).Scan(&n))
	require.Equal(t, 0, n)

	task, err := store.CreateTask(db, "late task", "worker", "", "", "")
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE tasks SET command_id = 'cmd_ghost' WHERE id = ?`, task.ID)
	require.NoError(t, err)

	res, err := ProcessAgentEvent(db, &models.Event{
		EventID:   "e_orphan",
		AgentID:   "worker",
		CommandID: "cmd_ghost",
		Type:      models.EventTypeRunning,
		Status:    models.TaskStatusRunning,
	})
	require.NoError(t, err)
	require.False(t, res.Duplicate)
}

func TestProcessAgentEvent_HeartbeatTouchesAgentOnly(t *testing.T) {
	db := setupTestDB(t)

	res, err := ProcessAgentEvent(db, &models.Event{
		EventID: "hb_1",
		AgentID: "scout",
		Type:    models.EventTypeHeartbeat,
	})
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.Nil(t, res.TaskUpdate)
	require.True(t, res.Effects.Empty())

	agent, err := store.GetAgentStatus(db, "scout")
	require.NoError(t, err)
	require.NotNil(t, agent.LastHeartbeatAt)
}

func TestProcessAgentEvent_PayloadOmissionsKeepCurrent(t *testing.T) {
	db := setupTestDB(t)

	task, err := store.CreateTask(db, "progress test", "worker", "doing", "", "")
	require.NoError(t, err)

	_, err = ProcessAgentEvent(db, &models.Event{
		EventID:   "e_r1",
		AgentID:   "worker",
		CommandID: task.CommandID,
		Type:      models.EventTypeRunning,
		Status:    models.TaskStatusRunning,
	})
	require.NoError(t, err)

	// A bare progress event with no status or stage keeps both.
	res, err := ProcessAgentEvent(db, &models.Event{
		EventID:   "e_p1",
		AgentID:   "worker",
		CommandID: task.CommandID,
		Type:      models.EventTypeProgress,
		Message:   "50% scanned",
	})
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusRunning, res.TaskUpdate.Status)
	require.Equal(t, models.StageDoing, res.TaskUpdate.Stage)
}

func TestProcessAgentEvent_ValidationRejects(t *testing.T) {
	db := setupTestDB(t)

	_, err := ProcessAgentEvent(db, &models.Event{
		EventID: "e_bad",
		AgentID: "worker",
		Type:    models.EventTypeRunning, // non-heartbeat without command_id
	})
	require.Error(t, err)
}
