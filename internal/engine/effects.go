package engine

import (
	"context"
	"log/slog"
	"time"
)

// Notification is a side-effect intent for the chat notifier. Kind reuses
// the agent event type vocabulary plus the sweep-only kinds "timeout" and
// "offline".
type Notification struct {
	Kind    string
	AgentID string
	TaskID  string
	Stage   string
	Message string
}

// TaskUpdate is a side-effect intent for the realtime publisher.
type TaskUpdate struct {
	Topic     string    `json:"topic"`
	TaskID    string    `json:"task_id"`
	CommandID string    `json:"command_id"`
	AgentID   string    `json:"agent_id"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Effects is the outbox of side-effect intents a core transition returns.
// The transition itself stays pure database work; effects run after the
// transaction commits and their failure never unwinds committed state.
type Effects struct {
	Notifications []Notification
	Updates       []TaskUpdate
}

// Empty reports whether there is nothing to dispatch.
func (fx Effects) Empty() bool {
	return len(fx.Notifications) == 0 && len(fx.Updates) == 0
}

// Notifier delivers chat notifications about agent events.
type Notifier interface {
	NotifyAgentEvent(ctx context.Context, n Notification) error
}

// Publisher broadcasts task updates to realtime subscribers.
type Publisher interface {
	PublishTaskUpdated(ctx context.Context, u TaskUpdate) error
}

// DispatchEffects executes post-commit side effects best-effort. Each
// failure is logged and swallowed, isolated from the others; nothing here
// can affect the already-committed transition.
func DispatchEffects(ctx context.Context, fx Effects, notifier Notifier, publisher Publisher) {
	for _, u := range fx.Updates {
		if publisher == nil {
			continue
		}
		if err := publisher.PublishTaskUpdated(ctx, u); err != nil {
			slog.Warn("realtime publish failed", "task_id", u.TaskID, "error", err)
		}
	}
	for _, n := range fx.Notifications {
		if notifier == nil {
			continue
		}
		if err := notifier.NotifyAgentEvent(ctx, n); err != nil {
			slog.Warn("notification failed", "kind", n.Kind, "agent_id", n.AgentID, "error", err)
		}
	}
}
