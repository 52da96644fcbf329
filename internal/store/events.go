package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dotcommander/missionctl/internal/models"
)

// Event payload size constraints enforced by ValidateEventPayload.
const (
	MaxEventIDLength      = 128
	MaxEventAgentIDLength = 128
	MaxEventMessageLength = 4096
	MaxEventMetaLength    = 16384
)

// ValidateEventPayload enforces event payload constraints for durability and safety.
func ValidateEventPayload(ev *models.Event) error {
	eventID := strings.TrimSpace(ev.EventID)
	agentID := strings.TrimSpace(ev.AgentID)

	if eventID == "" {
		return errors.New("event_id is required")
	}
	if len(eventID) > MaxEventIDLength {
		return fmt.Errorf("event_id exceeds max length (%d)", MaxEventIDLength)
	}
	if agentID == "" {
		return errors.New("agent_id is required")
	}
	if len(agentID) > MaxEventAgentIDLength {
		return fmt.Errorf("agent_id exceeds max length (%d)", MaxEventAgentIDLength)
	}
	if !models.ValidEventType(ev.Type) {
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.Type != models.EventTypeHeartbeat && strings.TrimSpace(ev.CommandID) == "" {
		return errors.New("command_id is required for non-heartbeat events")
	}
	if ev.Stage != "" && !models.ValidStage(ev.Stage) {
		return fmt.Errorf("unknown stage %q", ev.Stage)
	}
	if len(ev.Message) > MaxEventMessageLength {
		return fmt.Errorf("message exceeds max length (%d)", MaxEventMessageLength)
	}
	if len(ev.Meta) > 0 {
		if len(ev.Meta) > MaxEventMetaLength {
			return fmt.Errorf("meta exceeds max length (%d)", MaxEventMetaLength)
		}
		if !json.Valid(ev.Meta) {
			return errors.New("meta must be valid JSON")
		}
	}

	return nil
}

// InsertEventTx appends an event row inside tx. The unique index on
// event_id is the idempotency key: a replayed event inserts nothing and
// returns duplicate=true, so callers can short-circuit without error.
func InsertEventTx(tx Querier, ev *models.Event) (duplicate bool, err error) {
	meta := any(nil)
	if len(ev.Meta) > 0 {
		meta = string(ev.Meta)
	}

	demID := ev.DemID
	if demID == "" {
		if ev.TaskID != "" {
			demID = "dem_" + ev.TaskID
		} else {
			demID = "dem_" + ev.EventID
		}
	}

	result, err := tx.Exec(`
		INSERT INTO agent_events (event_id, agent_id, task_id, command_id, event_type, status, stage, message, meta_json, dem_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (event_id) DO NOTHING
	`, ev.EventID, ev.AgentID, nullable(ev.TaskID), nullable(ev.CommandID),
		string(ev.Type), nullable(string(ev.Status)), nullable(string(ev.Stage)),
		nullable(ev.Message), meta, demID)
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count inserted events: %w", err)
	}
	return affected == 0, nil
}

// RecentEventsByDemID returns the most recent events carrying a DEM id,
// newest first. Used as contextual evidence on the incident detail view.
func RecentEventsByDemID(q Querier, demID string, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := q.Query(`
		SELECT id, event_id, agent_id, COALESCE(task_id, ''), COALESCE(command_id, ''),
		       event_type, COALESCE(status, ''), COALESCE(stage, ''), COALESCE(message, ''),
		       COALESCE(meta_json, ''), COALESCE(dem_id, ''), occurred_at
		FROM agent_events
		WHERE dem_id = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, demID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by dem_id: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEvents(rows)
}

// RecentEventsByAgent returns the most recent events reported by an
// agent, newest first.
func RecentEventsByAgent(q Querier, agentID string, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := q.Query(`
		SELECT id, event_id, agent_id, COALESCE(task_id, ''), COALESCE(command_id, ''),
		       event_type, COALESCE(status, ''), COALESCE(stage, ''), COALESCE(message, ''),
		       COALESCE(meta_json, ''), COALESCE(dem_id, ''), occurred_at
		FROM agent_events
		WHERE agent_id = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by agent: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEvents(rows)
}

func collectEvents(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]models.Event, error) {
	var out []models.Event
	for rows.Next() {
		var (
			ev   models.Event
			meta string
		)
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.AgentID, &ev.TaskID, &ev.CommandID,
			&ev.Type, &ev.Status, &ev.Stage, &ev.Message, &meta, &ev.DemID, &ev.OccurredAt); err != nil {
			return nil, err
		}
		if meta != "" {
			ev.Meta = json.RawMessage(meta)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// nullable maps "" to NULL so optional text columns stay NULL instead of
// accumulating empty strings.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
