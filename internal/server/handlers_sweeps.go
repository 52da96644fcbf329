package server

import (
	"net/http"
	"time"

	"github.com/dotcommander/missionctl/internal/engine"
)

// watchdogHandler triggers one dispatch watchdog sweep. Intended to be
// hit on a fixed interval by an external scheduler; overlapping triggers
// are expected to be prevented at that level.
func (s *Server) watchdogHandler(w http.ResponseWriter, r *http.Request) {
	res, err := engine.RunDispatchWatchdog(s.db, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"overdue": res.Overdue,
		"updated": res.Updated,
	})
}

// reconcileHandler triggers one reconciliation sweep.
func (s *Server) reconcileHandler(w http.ResponseWriter, r *http.Request) {
	res, fx, err := engine.RunReconciliation(s.db, s.sweeps, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.dispatchEffects(r.Context(), fx)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"checked_agents":  res.CheckedAgents,
		"offline_marked":  res.OfflineMarked,
		"timed_out_tasks": res.TimedOutTasks,
		"drift_fixed":     res.DriftFixed,
	})
}
