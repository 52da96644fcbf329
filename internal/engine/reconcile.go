package engine

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dotcommander/missionctl/internal/app"
	"github.com/dotcommander/missionctl/internal/incident"
	"github.com/dotcommander/missionctl/internal/models"
	"github.com/dotcommander/missionctl/internal/store"
)

// ReconcileResult summarizes one reconciliation sweep.
type ReconcileResult struct {
	CheckedAgents int `json:"checked_agents"`
	OfflineMarked int `json:"offline_marked"`
	TimedOutTasks int `json:"timed_out_tasks"`
	DriftFixed    int `json:"drift_fixed"`
}

const reconcileSource = "reconciliation"

// RunReconciliation corrects state that drifted silently:
//
//   - agents still marked active with no heartbeat inside the threshold
//     are demoted to down, with one incident per agent per day
//     (fingerprinted reconciliation:{agent}:HEARTBEAT_LOST:{date});
//   - tasks still queued past the ack window time out with ACK_TIMEOUT;
//   - running tasks with no update inside the running window time out
//     with RUNNING_TIMEOUT.
//
// All three rules plus the sweep's own health-check heartbeat commit in
// one transaction; a failure in any rule rolls back the entire sweep.
// Per-row notifications are returned as effects for post-commit dispatch.
func RunReconciliation(db *sql.DB, cfg app.SweepSettings, now time.Time) (ReconcileResult, Effects, error) {
	var (
		res ReconcileResult
		fx  Effects
	)
	err := store.Transact(db, func(tx *sql.Tx) error {
		res = ReconcileResult{}
		fx = Effects{}

		offline, err := store.MarkSilentAgentsDownTx(tx, cfg.HeartbeatThreshold)
		if err != nil {
			return err
		}
		res.OfflineMarked = len(offline)

		dayBucket := now.UTC().Format("2006-01-02")
		for _, a := range offline {
			fingerprint := fmt.Sprintf("%s:%s:HEARTBEAT_LOST:%s", reconcileSource, a.ID, dayBucket)
			details := incident.Details{
				AgentID:           a.ID,
				DominantCause:     "HEARTBEAT_LOST",
				CauseBreakdown:    map[string]int{"HEARTBEAT_LOST": 1},
				Count:             1,
				LastMessages:      []string{fmt.Sprintf("Heartbeat lost, silent for %s", a.SilentFor.Round(time.Second))},
				RecommendedAction: "Investigate agent",
				FirstSeenAt:       &now,
				LastSeenAt:        &now,
			}
			fresh := store.NewIncident{
				Title:       fmt.Sprintf("Agent %s offline", a.ID),
				Severity:    models.SeverityHigh,
				Owner:       "system",
				Source:      reconcileSource,
				Impact:      "Heartbeat lost.",
				NextAction:  "Investigate agent",
				Fingerprint: fingerprint,
			}
			if err := createOrMergeIncidentTx(tx, fingerprint, fresh, details, now); err != nil {
				return err
			}

			fx.Notifications = append(fx.Notifications, Notification{
				Kind:    "offline",
				AgentID: a.ID,
				TaskID:  "N/A",
			})
		}

		res.CheckedAgents, err = store.CountAgentsTx(tx)
		if err != nil {
			return err
		}

		noAck, err := store.TimeoutQueuedTasksTx(tx, cfg.AckTimeout)
		if err != nil {
			return err
		}
		stalled, err := store.TimeoutRunningTasksTx(tx, cfg.RunningTimeout)
		if err != nil {
			return err
		}
		res.TimedOutTasks = len(noAck) + len(stalled)

		for _, t := range append(noAck, stalled...) {
			fx.Notifications = append(fx.Notifications, Notification{
				Kind:    "timeout",
				AgentID: t.AssignedTo,
				TaskID:  t.ID,
			})
		}

		return store.UpsertHealthCheckTx(tx, "agents_reconciliation", "healthy", float64Ptr(100))
	})
	if err != nil {
		return ReconcileResult{}, Effects{}, fmt.Errorf("reconciliation sweep: %w", err)
	}
	return res, fx, nil
}

func float64Ptr(v float64) *float64 { return &v }
