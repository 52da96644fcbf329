package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dotcommander/missionctl/internal/engine"
	"github.com/dotcommander/missionctl/internal/models"
)

type eventRequest struct {
	EventID   string          `json:"event_id"`
	AgentID   string          `json:"agent_id"`
	TaskID    string          `json:"task_id"`
	CommandID string          `json:"command_id"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Stage     string          `json:"stage"`
	Message   string          `json:"message"`
	Meta      json.RawMessage `json:"meta"`
}

func (req *eventRequest) validate() fieldErrors {
	fe := fieldErrors{}
	if strings.TrimSpace(req.EventID) == "" {
		fe.add("event_id", "required")
	}
	if strings.TrimSpace(req.AgentID) == "" {
		fe.add("agent_id", "required")
	}
	if !models.ValidEventType(models.EventType(req.Type)) {
		fe.add("type", "unknown event type")
	}
	if req.Type != string(models.EventTypeHeartbeat) && strings.TrimSpace(req.CommandID) == "" {
		fe.add("command_id", "required for non-heartbeat events")
	}
	if req.Stage != "" && !models.ValidStage(models.Stage(req.Stage)) {
		fe.add("stage", "unknown stage")
	}
	return fe
}

// ingestEventHandler feeds one agent event through the state machine.
// Duplicates are not errors: they answer 202 with duplicated=true.
// A missing task for a non-heartbeat event fails the whole request.
func (s *Server) ingestEventHandler(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fe := req.validate(); !fe.ok() {
		writeFieldErrors(w, fe)
		return
	}

	ev := &models.Event{
		EventID:   req.EventID,
		AgentID:   req.AgentID,
		TaskID:    req.TaskID,
		CommandID: req.CommandID,
		Type:      models.EventType(req.Type),
		Status:    models.TaskStatus(req.Status),
		Stage:     models.Stage(req.Stage),
		Message:   req.Message,
		Meta:      req.Meta,
	}

	result, err := engine.ProcessAgentEvent(s.db, ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.Duplicate {
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "duplicated": true})
		return
	}

	// Side effects run after the commit; their failure never reaches the
	// caller.
	s.dispatchEffects(r.Context(), result.Effects)

	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

type heartbeatRequest struct {
	AgentID string `json:"agent_id"`
}

// heartbeatHandler synthesizes a liveness-only event: generated event_id,
// no task correlation, so it never touches a task row.
func (s *Server) heartbeatHandler(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		writeFieldErrors(w, fieldErrors{"agent_id": "required"})
		return
	}

	ev := &models.Event{
		EventID: "hb_" + uuid.NewString(),
		AgentID: req.AgentID,
		Type:    models.EventTypeHeartbeat,
		Status:  models.TaskStatusQueued,
	}

	if _, err := engine.ProcessAgentEvent(s.db, ev); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}
