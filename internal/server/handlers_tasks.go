package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dotcommander/missionctl/internal/models"
	"github.com/dotcommander/missionctl/internal/store"
)

type createTaskRequest struct {
	Title   string          `json:"title"`
	AgentID string          `json:"agent_id"`
	Stage   string          `json:"stage"`
	Payload json.RawMessage `json:"payload"`
}

// createTaskHandler creates a queued task with a generated command id,
// ready for the agent addressed by agent_id.
func (s *Server) createTaskHandler(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fe := fieldErrors{}
	if strings.TrimSpace(req.Title) == "" {
		fe.add("title", "required")
	}
	if strings.TrimSpace(req.AgentID) == "" {
		fe.add("agent_id", "required")
	}
	if req.Stage != "" && !models.ValidStage(models.Stage(req.Stage)) {
		fe.add("stage", "unknown stage")
	}
	if !fe.ok() {
		writeFieldErrors(w, fe)
		return
	}

	payload := ""
	if len(req.Payload) > 0 {
		payload = string(req.Payload)
	}

	task, err := store.CreateTask(s.db, req.Title, req.AgentID, models.Stage(req.Stage), "", payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":         true,
		"task_id":    task.ID,
		"command_id": task.CommandID,
	})
}

type dispatchTaskRequest struct {
	TaskID string `json:"task_id"`
}

// dispatchTaskHandler stamps a task for channel delivery: DEM id,
// owner's channel, pending dispatch and an ack deadline the watchdog
// will enforce.
func (s *Server) dispatchTaskHandler(w http.ResponseWriter, r *http.Request) {
	var req dispatchTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.TaskID) == "" {
		writeFieldErrors(w, fieldErrors{"task_id": "required"})
		return
	}

	task, err := store.GetTask(s.db, req.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	owner := strings.ToLower(task.AssignedTo)
	channel := s.chat.AgentChannels[owner]
	if channel == "" {
		channel = s.chat.FallbackChannel
	}
	if channel == "" {
		writeError(w, http.StatusBadRequest, "no channel configured for owner: "+owner)
		return
	}

	dispatched, err := store.DispatchTask(s.db, task.ID, channel, s.sweeps.AckDeadline, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"data": map[string]any{
			"task_id":      dispatched.ID,
			"dem_id":       dispatched.DemID,
			"owner":        owner,
			"channel":      channel,
			"ack_deadline": dispatched.AckDeadline,
		},
	})
}

// kanbanHandler lists the board in column/position order.
func (s *Server) kanbanHandler(w http.ResponseWriter, _ *http.Request) {
	tasks, err := store.ListBoard(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": tasks})
}

type kanbanMoveRequest struct {
	ID       string `json:"id"`
	Column   string `json:"column"`
	Position *int   `json:"position"`
}

// kanbanMoveHandler moves a card, applying the status its new column
// implies.
func (s *Server) kanbanMoveHandler(w http.ResponseWriter, r *http.Request) {
	var req kanbanMoveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fe := fieldErrors{}
	if strings.TrimSpace(req.ID) == "" {
		fe.add("id", "required")
	}
	if _, ok := models.ColumnStatus(models.KanbanColumn(req.Column)); !ok {
		fe.add("column", "unknown column")
	}
	if req.Position == nil || *req.Position < 0 {
		fe.add("position", "must be a non-negative integer")
	}
	if !fe.ok() {
		writeFieldErrors(w, fe)
		return
	}

	task, err := store.MoveTaskColumn(s.db, req.ID, models.KanbanColumn(req.Column), *req.Position)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": task})
}
