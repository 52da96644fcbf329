package store

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/missionctl/internal/models"
)

func TestInsertEvent_DuplicateEventID(t *testing.T) {
	db := setupTestDB(t)

	ev := &models.Event{
		EventID:   "evt_1",
		AgentID:   "planner",
		CommandID: "cmd_1",
		Type:      models.EventTypeAck,
		Status:    models.TaskStatusAck,
	}

	require.False(t, insertEvent(t, db, ev))
	require.True(t, insertEvent(t, db, ev), "replay of the same event_id must report duplicate")

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM agent_events WHERE event_id = 'evt_1'`).Scan(&n))
	require.Equal(t, 1, n)
}

func TestInsertEvent_DemIDFallback(t *testing.T) {
	db := setupTestDB(t)

	insertEvent(t, db, &models.Event{
		EventID: "evt_task", AgentID: "a", TaskID: "task_9",
		CommandID: "cmd_t", Type: models.EventTypeRunning,
	})
	insertEvent(t, db, &models.Event{
		EventID: "evt_bare", AgentID: "a",
		CommandID: "cmd_b", Type: models.EventTypeRunning,
	})

	var demID string
	require.NoError(t, db.QueryRow(`SELECT dem_id FROM agent_events WHERE event_id = 'evt_task'`).Scan(&demID))
	require.Equal(t, "dem_task_9", demID)

	require.NoError(t, db.QueryRow(`SELECT dem_id FROM agent_events WHERE event_id = 'evt_bare'`).Scan(&demID))
	require.Equal(t, "dem_evt_bare", demID)
}

func TestValidateEventPayload(t *testing.T) {
	valid := func() *models.Event {
		return &models.Event{
			EventID:   "evt_ok",
			AgentID:   "planner",
			CommandID: "cmd_ok",
			Type:      models.EventTypeDone,
		}
	}

	require.NoError(t, ValidateEventPayload(valid()))

	ev := valid()
	ev.EventID = " "
	require.Error(t, ValidateEventPayload(ev))

	ev = valid()
	ev.AgentID = ""
	require.Error(t, ValidateEventPayload(ev))

	ev = valid()
	ev.Type = "exploded"
	require.Error(t, ValidateEventPayload(ev))

	// Heartbeats have no command; everything else needs one.
	ev = valid()
	ev.CommandID = ""
	require.Error(t, ValidateEventPayload(ev))
	ev.Type = models.EventTypeHeartbeat
	require.NoError(t, ValidateEventPayload(ev))

	ev = valid()
	ev.Stage = "warp"
	require.Error(t, ValidateEventPayload(ev))

	ev = valid()
	ev.Message = strings.Repeat("x", MaxEventMessageLength+1)
	require.Error(t, ValidateEventPayload(ev))

	ev = valid()
	ev.Meta = json.RawMessage(`{not json`)
	require.Error(t, ValidateEventPayload(ev))
}

func TestRecentEvents(t *testing.T) {
	db := setupTestDB(t)

	for _, id := range []string{"e1", "e2", "e3"} {
		insertEvent(t, db, &models.Event{
			EventID: id, AgentID: "worker", CommandID: "cmd_r",
			Type: models.EventTypeProgress, DemID: "DEM-20260901-100",
		})
	}
	insertEvent(t, db, &models.Event{
		EventID: "other", AgentID: "worker", CommandID: "cmd_x",
		Type: models.EventTypeProgress, DemID: "DEM-20260901-200",
	})

	byDem, err := RecentEventsByDemID(db, "DEM-20260901-100", 10)
	require.NoError(t, err)
	require.Len(t, byDem, 3)

	byAgent, err := RecentEventsByAgent(db, "worker", 2)
	require.NoError(t, err)
	require.Len(t, byAgent, 2)
}
