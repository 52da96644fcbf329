package engine

import (
	"database/sql"
	"fmt"

	"github.com/dotcommander/missionctl/internal/models"
	"github.com/dotcommander/missionctl/internal/store"
)

// Result is the outcome of processing one agent event.
type Result struct {
	// Duplicate reports that the event_id was already ingested; the call
	// was a complete no-op beyond the first application.
	Duplicate bool
	// TaskUpdate is the task row after the transition, nil for heartbeats
	// and duplicates.
	TaskUpdate *models.Task
	// Effects holds the post-commit side-effect intents. Empty for
	// heartbeats and duplicates.
	Effects Effects
}

// ProcessAgentEvent applies one incoming agent event atomically:
//
//  1. Append to the event log; a replayed event_id makes the whole call a
//     no-op reported via Result.Duplicate.
//  2. For non-heartbeat events, load the task correlated by command_id.
//     A missing task fails the entire transaction, so the event insert
//     rolls back with it. Explicit status/stage from the payload override
//     the task's current values; absent ones keep them. Type-specific
//     side fields apply (ack_at first-write-wins, done_at, error fields).
//  3. Upsert the agent's status snapshot: any event proves liveness.
//
// On success the returned Effects carry the notification and realtime
// publish intents for the caller to dispatch after commit.
func ProcessAgentEvent(db *sql.DB, ev *models.Event) (Result, error) {
	if err := store.ValidateEventPayload(ev); err != nil {
		return Result{}, err
	}

	var res Result
	err := store.Transact(db, func(tx *sql.Tx) error {
		res = Result{}

		duplicate, err := store.InsertEventTx(tx, ev)
		if err != nil {
			return err
		}
		if duplicate {
			// Nothing was written; committing the empty transaction keeps
			// the idempotency guarantee intact.
			res.Duplicate = true
			return nil
		}

		if ev.Type != models.EventTypeHeartbeat {
			task, err := store.GetTaskByCommandIDTx(tx, ev.CommandID)
			if err != nil {
				return err
			}

			newStatus := task.Status
			if ev.Status != "" {
				newStatus = ev.Status
			}
			newStage := task.Stage
			if ev.Stage != "" {
				newStage = ev.Stage
			}

			updated, err := store.ApplyTaskTransitionTx(tx, ev.CommandID, newStatus, newStage, ev.Type, ev.Message)
			if err != nil {
				return err
			}
			res.TaskUpdate = updated
		}

		return store.UpsertAgentStatusTx(tx, ev.AgentID, ev.Type, ev.CommandID)
	})
	if err != nil {
		return Result{}, fmt.Errorf("process agent event %s: %w", ev.EventID, err)
	}

	if !res.Duplicate && ev.Type != models.EventTypeHeartbeat && res.TaskUpdate != nil {
		res.Effects = Effects{
			Notifications: []Notification{{
				Kind:    string(ev.Type),
				AgentID: ev.AgentID,
				TaskID:  res.TaskUpdate.ID,
				Stage:   string(res.TaskUpdate.Stage),
				Message: ev.Message,
			}},
			Updates: []TaskUpdate{{
				Topic:     "task.updated",
				TaskID:    res.TaskUpdate.ID,
				CommandID: ev.CommandID,
				AgentID:   ev.AgentID,
				Status:    string(res.TaskUpdate.Status),
				Stage:     string(res.TaskUpdate.Stage),
				UpdatedAt: res.TaskUpdate.UpdatedAt,
			}},
		}
	}

	return res, nil
}
