package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dotcommander/missionctl/internal/models"
	"github.com/dotcommander/missionctl/internal/store"
)

type cronSyncRequest struct {
	Jobs []cronJobPayload `json:"jobs"`
}

type cronJobPayload struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Schedule          string     `json:"schedule"`
	LastRun           *time.Time `json:"last_run"`
	NextRun           *time.Time `json:"next_run"`
	Status            string     `json:"status"`
	LastResult        string     `json:"last_result"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
}

// cronSyncHandler replaces the cron job snapshot wholesale from an
// external scheduler's report.
func (s *Server) cronSyncHandler(w http.ResponseWriter, r *http.Request) {
	var req cronSyncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Jobs) == 0 {
		writeFieldErrors(w, fieldErrors{"jobs": "at least one job is required"})
		return
	}

	jobs := make([]models.CronJob, 0, len(req.Jobs))
	fe := fieldErrors{}
	for i, j := range req.Jobs {
		if strings.TrimSpace(j.ID) == "" || strings.TrimSpace(j.Name) == "" {
			fe.add("jobs", "job at index "+strconv.Itoa(i)+" is missing id or name")
			continue
		}
		status := j.Status
		if status == "" {
			status = "unknown"
		}
		jobs = append(jobs, models.CronJob{
			ID:                j.ID,
			Name:              j.Name,
			Schedule:          j.Schedule,
			LastRun:           j.LastRun,
			NextRun:           j.NextRun,
			Status:            status,
			LastResult:        j.LastResult,
			ConsecutiveErrors: j.ConsecutiveErrors,
		})
	}
	if !fe.ok() {
		writeFieldErrors(w, fe)
		return
	}

	if err := store.SyncCronJobs(s.db, jobs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "synced": len(jobs)})
}

// listCronsHandler returns the cron snapshot, erroring jobs first.
func (s *Server) listCronsHandler(w http.ResponseWriter, _ *http.Request) {
	jobs, err := store.ListCronJobs(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": jobs})
}

// listAgentsHandler returns the fleet snapshot, down agents first.
func (s *Server) listAgentsHandler(w http.ResponseWriter, _ *http.Request) {
	agents, err := store.ListAgents(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": agents})
}

type healthCheckRequest struct {
	Service   string   `json:"service"`
	Status    string   `json:"status"`
	UptimePct *float64 `json:"uptime_pct"`
}

// healthCheckHandler records a service health row.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	var req healthCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fe := fieldErrors{}
	if strings.TrimSpace(req.Service) == "" {
		fe.add("service", "required")
	}
	if strings.TrimSpace(req.Status) == "" {
		fe.add("status", "required")
	}
	if !fe.ok() {
		writeFieldErrors(w, fe)
		return
	}

	if err := store.UpsertHealthCheck(s.db, req.Service, req.Status, req.UptimePct); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// statsHandler returns dashboard summary counts.
func (s *Server) statsHandler(w http.ResponseWriter, _ *http.Request) {
	byStatus, err := store.CountTasksByStatus(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	agents, err := store.ListAgents(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	incidents, err := store.ListIncidents(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	checks, err := store.ListHealthChecks(s.db, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	activeAgents := 0
	for _, a := range agents {
		if a.Status == models.HealthActive {
			activeAgents++
		}
	}
	openIncidents := 0
	for _, inc := range incidents {
		if inc.Status == models.IncidentOpen || inc.Status == models.IncidentInvestigating {
			openIncidents++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"data": map[string]any{
			"tasks_by_status": byStatus,
			"agents_total":    len(agents),
			"agents_active":   activeAgents,
			"incidents_open":  openIncidents,
			"health_checks":   checks,
		},
	})
}
