package engine

import (
	"database/sql"
	"time"

	"github.com/dotcommander/missionctl/internal/incident"
	"github.com/dotcommander/missionctl/internal/store"
)

// ReportIncident opens or merges an incident from an external report.
// With a fingerprint it follows the same create-or-merge rule the sweeps
// use; without one it always opens a fresh incident.
func ReportIncident(db *sql.DB, fresh store.NewIncident, details incident.Details, now time.Time) error {
	return store.Transact(db, func(tx *sql.Tx) error {
		if fresh.Fingerprint == "" {
			raw, err := details.Encode()
			if err != nil {
				return err
			}
			fresh.DetailsJSON = raw
			_, err = store.InsertIncidentTx(tx, fresh)
			return err
		}
		return createOrMergeIncidentTx(tx, fresh.Fingerprint, fresh, details, now)
	})
}
