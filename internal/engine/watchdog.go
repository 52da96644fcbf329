package engine

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dotcommander/missionctl/internal/incident"
	"github.com/dotcommander/missionctl/internal/models"
	"github.com/dotcommander/missionctl/internal/store"
)

// WatchdogResult summarizes one dispatch watchdog sweep.
type WatchdogResult struct {
	Overdue int `json:"overdue"`
	Updated int `json:"updated"`
}

const watchdogSource = "dispatch-watchdog"

// RunDispatchWatchdog sweeps tasks sent to a channel whose ack deadline
// passed without acknowledgement. Each overdue task is blocked, its
// dispatch marked failed, and an incident is created or merged under the
// day-bucket fingerprint dispatch-watchdog:{owner}:ACK_TIMEOUT:{date},
// so all ACK timeouts for one owner on one day collapse into one incident.
//
// The whole sweep runs in one transaction. Re-running before the next
// deadline window finds no newly-overdue tasks, so frequent triggering
// is safe.
func RunDispatchWatchdog(db *sql.DB, now time.Time) (WatchdogResult, error) {
	var res WatchdogResult
	err := store.Transact(db, func(tx *sql.Tx) error {
		res = WatchdogResult{}

		overdue, err := store.OverdueDispatchTx(tx)
		if err != nil {
			return err
		}
		res.Overdue = len(overdue)

		dayBucket := now.UTC().Format("2006-01-02")

		for _, t := range overdue {
			if err := store.MarkDispatchFailedTx(tx, t.ID); err != nil {
				return err
			}

			owner := t.AssignedTo
			if owner == "" {
				owner = "unknown"
			}
			fingerprint := fmt.Sprintf("%s:%s:ACK_TIMEOUT:%s", watchdogSource, owner, dayBucket)

			title := t.Title
			if title == "" {
				title = t.DemID
			}

			details := incident.Details{
				AgentID:           t.AssignedTo,
				DominantCause:     "ACK_TIMEOUT",
				CauseBreakdown:    map[string]int{"ACK_TIMEOUT": 1},
				SampleSize:        1,
				WindowHours:       24,
				Count:             1,
				RelatedDemIDs:     demIDs(t.DemID),
				LastMessages:      []string{"ACK timeout: " + title},
				RecommendedAction: "Reassign owner and resend ASSIGN",
				FirstSeenAt:       &now,
				LastSeenAt:        &now,
			}

			fresh := store.NewIncident{
				DemID:       t.DemID,
				Title:       "ACK timeout: " + title,
				Severity:    models.SeverityHigh,
				Owner:       owner,
				Source:      watchdogSource,
				Impact:      "No ACK within deadline, task at risk of having no active owner",
				NextAction:  "Reassign owner and resend ASSIGN",
				Fingerprint: fingerprint,
			}

			if err := createOrMergeIncidentTx(tx, fingerprint, fresh, details, now); err != nil {
				return err
			}

			res.Updated++
		}
		return nil
	})
	if err != nil {
		return WatchdogResult{}, fmt.Errorf("dispatch watchdog sweep: %w", err)
	}
	return res, nil
}

// createOrMergeIncidentTx enforces the dedup invariant: if an open or
// investigating incident already carries the fingerprint, the incoming
// details merge into it; otherwise a fresh incident opens with the
// incoming details as its initial aggregate. Both sweeps and the incident
// upsert endpoint funnel through this single routine.
func createOrMergeIncidentTx(tx *sql.Tx, fingerprint string, fresh store.NewIncident, incoming incident.Details, now time.Time) error {
	existing, err := store.FindOpenByFingerprintTx(tx, fingerprint)
	if err != nil {
		return err
	}

	if existing == nil {
		raw, err := incoming.Encode()
		if err != nil {
			return err
		}
		fresh.DetailsJSON = raw
		_, err = store.InsertIncidentTx(tx, fresh)
		return err
	}

	prev, err := incident.Decode(existing.Details)
	if err != nil {
		return err
	}
	merged := incident.Merge(prev, incoming, now)
	raw, err := merged.Encode()
	if err != nil {
		return err
	}
	return store.UpdateIncidentDetailsTx(tx, existing.ID, raw)
}

func demIDs(demID string) []string {
	if demID == "" {
		return nil
	}
	return []string{demID}
}
