package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dotcommander/missionctl/internal/engine"
)

// LogPublisher is the default realtime publisher: it logs the task.updated
// payload that a message bus or websocket bridge would broadcast.
// Implements engine.Publisher.
type LogPublisher struct{}

// PublishTaskUpdated logs the update payload.
func (LogPublisher) PublishTaskUpdated(_ context.Context, u engine.TaskUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	slog.Info("realtime publish", "topic", u.Topic, "payload", string(payload))
	return nil
}
