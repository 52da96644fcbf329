package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dotcommander/missionctl/internal/models"
)

// UpsertAgentStatusTx records that an agent was seen. First sighting
// inserts the agent as active; afterwards any event forces status back to
// active (even a failure proves liveness) and touches last_seen_at.
// last_heartbeat_at only advances for heartbeat events.
func UpsertAgentStatusTx(tx Querier, agentID string, evType models.EventType, commandID string) error {
	currentCmd := any(nil)
	if evType != models.EventTypeHeartbeat && commandID != "" {
		currentCmd = commandID
	}

	_, err := tx.Exec(`
		INSERT INTO agents_status (id, name, level, status, last_seen_at, last_heartbeat_at, current_command_id, updated_at)
		VALUES (?, ?, 'L1', 'active', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			status = 'active',
			last_seen_at = CURRENT_TIMESTAMP,
			last_heartbeat_at = CASE WHEN ? = 'heartbeat' THEN CURRENT_TIMESTAMP ELSE agents_status.last_heartbeat_at END,
			current_command_id = excluded.current_command_id,
			updated_at = CURRENT_TIMESTAMP
	`, agentID, agentID, currentCmd, string(evType))
	if err != nil {
		return fmt.Errorf("failed to upsert agent status: %w", err)
	}
	return nil
}

// OfflineAgent identifies an agent demoted by the reconciliation sweep.
type OfflineAgent struct {
	ID           string
	SilentFor    time.Duration
	silentForMin float64
}

// MarkSilentAgentsDownTx demotes active agents whose last heartbeat is
// older than the threshold and returns the demoted agents.
func MarkSilentAgentsDownTx(tx *sql.Tx, threshold time.Duration) ([]OfflineAgent, error) {
	minutes := int(threshold.Minutes())
	if minutes <= 0 {
		minutes = 1
	}

	rows, err := tx.Query(`
		UPDATE agents_status
		SET status = 'down', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'active'
		  AND (last_heartbeat_at IS NULL
		       OR last_heartbeat_at < datetime(CURRENT_TIMESTAMP, '-' || ? || ' minutes'))
		RETURNING id,
		          COALESCE((julianday(CURRENT_TIMESTAMP) - julianday(last_heartbeat_at)) * 1440, 0)
	`, minutes)
	if err != nil {
		return nil, fmt.Errorf("failed to mark silent agents down: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []OfflineAgent
	for rows.Next() {
		var a OfflineAgent
		if err := rows.Scan(&a.ID, &a.silentForMin); err != nil {
			return nil, err
		}
		a.SilentFor = time.Duration(a.silentForMin * float64(time.Minute))
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountAgentsTx returns the total number of tracked agents.
func CountAgentsTx(tx Querier) (int, error) {
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM agents_status`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count agents: %w", err)
	}
	return n, nil
}

// GetAgentStatus fetches one agent's snapshot.
func GetAgentStatus(q Querier, agentID string) (*models.AgentStatus, error) {
	a, err := scanAgentRow(q.QueryRow(`
		SELECT id, name, level, status, last_seen_at, last_heartbeat_at,
		       COALESCE(current_command_id, ''), messages_24h, errors_24h, updated_at
		FROM agents_status WHERE id = ?
	`, agentID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %s not found", agentID)
	}
	return a, err
}

// ListAgents returns all agent snapshots, worst health first.
func ListAgents(q Querier) ([]models.AgentStatus, error) {
	rows, err := q.Query(`
		SELECT id, name, level, status, last_seen_at, last_heartbeat_at,
		       COALESCE(current_command_id, ''), messages_24h, errors_24h, updated_at
		FROM agents_status
		ORDER BY
			CASE status
				WHEN 'down' THEN 0
				WHEN 'degraded' THEN 1
				WHEN 'active' THEN 2
				WHEN 'idle' THEN 3
			END,
			name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.AgentStatus
	for rows.Next() {
		a, err := scanAgentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAgentRow(row rowScanner) (*models.AgentStatus, error) {
	var (
		a             models.AgentStatus
		lastSeen      sql.NullTime
		lastHeartbeat sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Name, &a.Level, &a.Status, &lastSeen, &lastHeartbeat,
		&a.CurrentCommandID, &a.Messages24h, &a.Errors24h, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.LastSeenAt = scanNullTime(lastSeen)
	a.LastHeartbeatAt = scanNullTime(lastHeartbeat)
	return &a, nil
}
