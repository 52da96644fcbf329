package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dotcommander/missionctl/internal/engine"
	"github.com/dotcommander/missionctl/internal/incident"
	"github.com/dotcommander/missionctl/internal/models"
	"github.com/dotcommander/missionctl/internal/store"
)

// listIncidentsHandler returns all incidents, critical first.
func (s *Server) listIncidentsHandler(w http.ResponseWriter, _ *http.Request) {
	incidents, err := store.ListIncidents(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": incidents})
}

type incidentRequest struct {
	// Status updates carry an id plus the new status.
	ID         string `json:"id"`
	Status     string `json:"status"`
	NextAction string `json:"next_action"`

	// Creates carry everything else. A fingerprint opts in to
	// create-or-merge dedup.
	DemID       string   `json:"dem_id"`
	Title       string   `json:"title"`
	Severity    string   `json:"severity"`
	Owner       string   `json:"owner"`
	Source      string   `json:"source"`
	Impact      string   `json:"impact"`
	Fingerprint string   `json:"fingerprint"`
	AgentID     string   `json:"agent_id"`
	Cause       string   `json:"cause"`
	Message     string   `json:"message"`
	RelatedDems []string `json:"related_dem_ids"`
}

// upsertIncidentHandler either updates an incident's lifecycle status
// (body has id) or reports a new incident (body has title), merging into
// an open incident when a fingerprint matches.
func (s *Server) upsertIncidentHandler(w http.ResponseWriter, r *http.Request) {
	var req incidentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if strings.TrimSpace(req.ID) != "" {
		s.updateIncidentStatus(w, req)
		return
	}
	s.reportIncident(w, req)
}

func (s *Server) updateIncidentStatus(w http.ResponseWriter, req incidentRequest) {
	if !models.ValidIncidentStatus(models.IncidentStatus(req.Status)) {
		writeFieldErrors(w, fieldErrors{"status": "unknown incident status"})
		return
	}

	inc, err := store.UpdateIncidentStatus(s.db, req.ID, models.IncidentStatus(req.Status), req.NextAction)
	if err != nil {
		if errors.Is(err, store.ErrIncidentNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": inc})
}

func (s *Server) reportIncident(w http.ResponseWriter, req incidentRequest) {
	fe := fieldErrors{}
	if strings.TrimSpace(req.Title) == "" {
		fe.add("title", "required")
	}
	if req.Severity != "" && !models.ValidSeverity(models.Severity(req.Severity)) {
		fe.add("severity", "unknown severity")
	}
	if !fe.ok() {
		writeFieldErrors(w, fe)
		return
	}

	now := time.Now()
	cause := req.Cause
	if cause == "" {
		cause = "REPORTED"
	}

	relatedDems := req.RelatedDems
	if req.DemID != "" {
		relatedDems = append([]string{req.DemID}, req.RelatedDems...)
	}

	details := incident.Details{
		AgentID:        req.AgentID,
		DominantCause:  cause,
		CauseBreakdown: map[string]int{cause: 1},
		SampleSize:     1,
		WindowHours:    24,
		Count:          1,
		RelatedDemIDs:  relatedDems,
		FirstSeenAt:    &now,
		LastSeenAt:     &now,
	}
	if req.Message != "" {
		details.LastMessages = []string{req.Message}
	}

	fresh := store.NewIncident{
		DemID:       req.DemID,
		Title:       req.Title,
		Severity:    models.Severity(req.Severity),
		Owner:       req.Owner,
		Source:      req.Source,
		Impact:      req.Impact,
		NextAction:  req.NextAction,
		Fingerprint: req.Fingerprint,
	}

	if err := engine.ReportIncident(s.db, fresh, details, now); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// getIncidentHandler returns one incident with its recent related
// events: by DEM id when the incident carries one, otherwise by the
// agent named in its details.
func (s *Server) getIncidentHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	inc, err := store.GetIncident(s.db, id)
	if err != nil {
		if errors.Is(err, store.ErrIncidentNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var events []models.Event
	switch {
	case inc.DemID != "":
		events, err = store.RecentEventsByDemID(s.db, inc.DemID, 20)
	default:
		details, derr := incident.Decode(inc.Details)
		if derr == nil && details.AgentID != "" {
			events, err = store.RecentEventsByAgent(s.db, details.AgentID, 20)
		}
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"data": map[string]any{
			"incident":      inc,
			"recent_events": events,
		},
	})
}
