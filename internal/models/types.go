package models

import (
	"encoding/json"
	"time"
)

// ID Strategy:
// - Events use int64 row ids internally; the idempotency key is the
//   caller-supplied event_id string (unique index).
// - Tasks and Incidents use string ids generated at creation time
//   (e.g., "task_1756712345_a3f9"), so callers can correlate before commit.
// - DEM ids ("DEM-20260901-412") are stable external correlation ids,
//   generated once at dispatch and never rewritten.

// EventType classifies what an agent is reporting.
type EventType string

// Event types reported by agents.
const (
	EventTypeHeartbeat EventType = "heartbeat"
	EventTypeAck       EventType = "ack"
	EventTypeRunning   EventType = "running"
	EventTypeProgress  EventType = "progress"
	EventTypeDone      EventType = "done"
	EventTypeFailed    EventType = "failed"
)

// ValidEventType reports whether t is one of the known event types.
func ValidEventType(t EventType) bool {
	switch t {
	case EventTypeHeartbeat, EventTypeAck, EventTypeRunning,
		EventTypeProgress, EventTypeDone, EventTypeFailed:
		return true
	}
	return false
}

// TaskStatus represents the current state of a task.
type TaskStatus string

// Task status constants. queued..timeout follow the agent command
// lifecycle; pending/blocked/done also appear via kanban moves.
const (
	TaskStatusQueued  TaskStatus = "queued"
	TaskStatusAck     TaskStatus = "ack"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusFailed  TaskStatus = "failed"
	TaskStatusTimeout TaskStatus = "timeout"
	TaskStatusPending TaskStatus = "pending"
	TaskStatusBlocked TaskStatus = "blocked"
)

// IsTerminal returns true if the task finished, successfully or not.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed || s == TaskStatusTimeout
}

// Stage is the workflow stage a task sits in.
type Stage string

// Stage constants.
const (
	StageBacklog Stage = "backlog"
	StageTodo    Stage = "todo"
	StageDoing   Stage = "doing"
	StageReview  Stage = "review"
	StageDone    Stage = "done"
	StageBlocked Stage = "blocked"
)

// ValidStage reports whether s is a known stage.
func ValidStage(s Stage) bool {
	switch s {
	case StageBacklog, StageTodo, StageDoing, StageReview, StageDone, StageBlocked:
		return true
	}
	return false
}

// KanbanColumn is a board column. Columns map onto coarse task statuses
// when a card is moved (see ColumnStatus).
type KanbanColumn string

// Kanban columns.
const (
	ColumnBacklog    KanbanColumn = "backlog"
	ColumnInProgress KanbanColumn = "in_progress"
	ColumnBlocked    KanbanColumn = "blocked"
	ColumnValidation KanbanColumn = "validation"
	ColumnDone       KanbanColumn = "done"
)

// ColumnStatus maps a kanban column to the task status a move implies.
func ColumnStatus(c KanbanColumn) (TaskStatus, bool) {
	switch c {
	case ColumnBacklog, ColumnInProgress, ColumnValidation:
		return TaskStatusPending, true
	case ColumnBlocked:
		return TaskStatusBlocked, true
	case ColumnDone:
		return TaskStatusDone, true
	}
	return "", false
}

// DispatchStatus tracks where a task sits in the send/ack handshake.
type DispatchStatus string

// Dispatch statuses.
const (
	DispatchPending DispatchStatus = "pending"
	DispatchSent    DispatchStatus = "sent"
	DispatchFailed  DispatchStatus = "failed"
)

// Event is an immutable fact reported by an agent about task progress
// or liveness. Never updated or deleted; EventID is the idempotency key.
type Event struct {
	ID         int64           `json:"id"`
	EventID    string          `json:"event_id"`
	AgentID    string          `json:"agent_id"`
	TaskID     string          `json:"task_id,omitempty"`
	CommandID  string          `json:"command_id,omitempty"`
	Type       EventType       `json:"type"`
	Status     TaskStatus      `json:"status,omitempty"`
	Stage      Stage           `json:"stage,omitempty"`
	Message    string          `json:"message,omitempty"`
	Meta       json.RawMessage `json:"meta,omitempty"`
	DemID      string          `json:"dem_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Task is a unit of work dispatched to an agent, correlated via CommandID.
type Task struct {
	ID              string         `json:"id"`
	CommandID       string         `json:"command_id"`
	DemID           string         `json:"dem_id,omitempty"`
	Title           string         `json:"title"`
	Status          TaskStatus     `json:"status"`
	Stage           Stage          `json:"stage"`
	Column          KanbanColumn   `json:"column"`
	Position        int            `json:"position"`
	Priority        string         `json:"priority"`
	AssignedTo      string         `json:"assigned_to,omitempty"`
	DispatchStatus  DispatchStatus `json:"dispatch_status,omitempty"`
	AssignedChannel string         `json:"assigned_channel,omitempty"`
	AckDeadline     *time.Time     `json:"ack_deadline,omitempty"`
	AckAt           *time.Time     `json:"ack_at,omitempty"`
	DoneAt          *time.Time     `json:"done_at,omitempty"`
	ErrorCode       string         `json:"error_code,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// AgentStatus is the current liveness snapshot for one agent. One row per
// agent id, upserted on every event or heartbeat.
type AgentStatus struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Level            string     `json:"level"`
	Status           Health     `json:"status"`
	LastSeenAt       *time.Time `json:"last_seen_at,omitempty"`
	LastHeartbeatAt  *time.Time `json:"last_heartbeat_at,omitempty"`
	CurrentCommandID string     `json:"current_command_id,omitempty"`
	Messages24h      int        `json:"messages_24h"`
	Errors24h        int        `json:"errors_24h"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

// Incident statuses. Only open and investigating participate in
// fingerprint deduplication.
const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentMitigated     IncidentStatus = "mitigated"
	IncidentClosed        IncidentStatus = "closed"
)

// ValidIncidentStatus reports whether s is a known incident status.
func ValidIncidentStatus(s IncidentStatus) bool {
	switch s {
	case IncidentOpen, IncidentInvestigating, IncidentMitigated, IncidentClosed:
		return true
	}
	return false
}

// Severity ranks incident impact.
type Severity string

// Severities, highest first in dashboard ordering.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Incident is a tracked operational problem. At most one open or
// investigating incident exists per fingerprint; matching reports merge
// into it instead of creating duplicates.
type Incident struct {
	ID          string          `json:"id"`
	DemID       string          `json:"dem_id,omitempty"`
	Title       string          `json:"title"`
	Severity    Severity        `json:"severity"`
	Status      IncidentStatus  `json:"status"`
	Owner       string          `json:"owner,omitempty"`
	Source      string          `json:"source,omitempty"`
	Impact      string          `json:"impact,omitempty"`
	NextAction  string          `json:"next_action,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CronJob is external-system-reported job health, upserted wholesale by
// the cron-sync endpoint and read-only from the core's perspective.
type CronJob struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Schedule          string     `json:"schedule"`
	LastRun           *time.Time `json:"last_run,omitempty"`
	NextRun           *time.Time `json:"next_run,omitempty"`
	Status            string     `json:"status"`
	LastResult        string     `json:"last_result,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HealthCheck is a service heartbeat row written by sweeps and the
// health endpoint.
type HealthCheck struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	UptimePct *float64  `json:"uptime_pct,omitempty"`
	LastCheck time.Time `json:"last_check"`
}
