package models

import "time"

// Health is the liveness classification of an agent.
type Health string

// Agent health states.
const (
	HealthActive   Health = "active"
	HealthIdle     Health = "idle"
	HealthDegraded Health = "degraded"
	HealthDown     Health = "down"
)

// DeriveAgentHealth classifies an agent from its last heartbeat age.
// The same function backs the dashboard read path and the reconciliation
// sweep, so the two can never disagree about what "down" means.
//
// An agent with no heartbeat on record is down. Within the threshold it
// is active; past the threshold but within twice the threshold it is
// degraded (heartbeat late but not yet written off); beyond that, down.
func DeriveAgentHealth(lastHeartbeat *time.Time, now time.Time, threshold time.Duration) Health {
	if lastHeartbeat == nil || lastHeartbeat.IsZero() {
		return HealthDown
	}
	age := now.Sub(*lastHeartbeat)
	switch {
	case age <= threshold:
		return HealthActive
	case age <= 2*threshold:
		return HealthDegraded
	default:
		return HealthDown
	}
}
