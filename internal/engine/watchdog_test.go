package engine

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/missionctl/internal/incident"
	"github.com/dotcommander/missionctl/internal/models"
	"github.com/dotcommander/missionctl/internal/store"
)

func dispatchOverdue(t *testing.T, db *sql.DB, title, owner string) *models.Task {
	t.Helper()
	task, err := store.CreateTask(db, title, owner, "", "", "")
	require.NoError(t, err)
	dispatched, err := store.DispatchTask(db, task.ID, "#ops", 5*time.Minute, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.SetDispatchStatus(db, task.ID, models.DispatchSent))
	_, err = db.Exec(`UPDATE tasks SET ack_deadline = datetime('now', '-1 minutes') WHERE id = ?`, task.ID)
	require.NoError(t, err)
	return dispatched
}

func TestWatchdog_OverdueOpensIncident(t *testing.T) {
	db := setupTestDB(t)

	task := dispatchOverdue(t, db, "never acked", "worker")

	res, err := RunDispatchWatchdog(db, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, res.Overdue)
	require.Equal(t, 1, res.Updated)

	got, err := store.GetTask(db, task.ID)
	require.NoError(t, err)
	require.Equal(t, models.DispatchFailed, got.DispatchStatus)
	require.Equal(t, models.TaskStatusBlocked, got.Status)
	require.Equal(t, models.ColumnBlocked, got.Column)

	incidents, err := store.ListIncidents(db)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	require.Equal(t, models.SeverityHigh, incidents[0].Severity)
	require.Contains(t, incidents[0].Fingerprint, "dispatch-watchdog:worker:ACK_TIMEOUT:")

	details, err := incident.Decode(incidents[0].Details)
	require.NoError(t, err)
	require.Equal(t, 1, details.Count)
	require.Equal(t, []string{task.DemID}, details.RelatedDemIDs)
}

func TestWatchdog_SameDayTimeoutsMerge(t *testing.T) {
	db := setupTestDB(t)

	first := dispatchOverdue(t, db, "first timeout", "worker")

	res, err := RunDispatchWatchdog(db, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, res.Updated)

	second := dispatchOverdue(t, db, "second timeout", "worker")

	res, err = RunDispatchWatchdog(db, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, res.Updated)

	incidents, err := store.ListIncidents(db)
	require.NoError(t, err)
	require.Len(t, incidents, 1, "same owner, same day: one incident")

	details, err := incident.Decode(incidents[0].Details)
	require.NoError(t, err)
	require.Equal(t, 2, details.Count)
	require.Equal(t, 2, details.CauseBreakdown["ACK_TIMEOUT"])
	require.ElementsMatch(t, []string{first.DemID, second.DemID}, details.RelatedDemIDs)
	require.Len(t, details.LastMessages, 2)
	require.Equal(t, "ACK timeout: second timeout", details.LastMessages[0])
}

func TestWatchdog_ClosedIncidentDoesNotAbsorb(t *testing.T) {
	db := setupTestDB(t)

	dispatchOverdue(t, db, "first", "worker")
	_, err := RunDispatchWatchdog(db, time.Now())
	require.NoError(t, err)

	incidents, err := store.ListIncidents(db)
	require.NoError(t, err)
	_, err = store.UpdateIncidentStatus(db, incidents[0].ID, models.IncidentClosed, "")
	require.NoError(t, err)

	dispatchOverdue(t, db, "second", "worker")
	_, err = RunDispatchWatchdog(db, time.Now())
	require.NoError(t, err)

	incidents, err = store.ListIncidents(db)
	require.NoError(t, err)
	require.Len(t, incidents, 2, "closing the incident releases the fingerprint")
}

func TestWatchdog_NoOverdueIsQuiet(t *testing.T) {
	db := setupTestDB(t)

	task, err := store.CreateTask(db, "on time", "worker", "", "", "")
	require.NoError(t, err)
	_, err = store.DispatchTask(db, task.ID, "#ops", 5*time.Minute, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.SetDispatchStatus(db, task.ID, models.DispatchSent))

	res, err := RunDispatchWatchdog(db, time.Now())
	require.NoError(t, err)
	require.Zero(t, res.Overdue)
	require.Zero(t, res.Updated)

	incidents, err := store.ListIncidents(db)
	require.NoError(t, err)
	require.Empty(t, incidents)
}
