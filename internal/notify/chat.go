// Package notify implements the best-effort outbound collaborators:
// chat notifications about agent events and realtime task.updated
// broadcasts. Failures here are logged and swallowed; they never affect
// the committed state that triggered them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dotcommander/missionctl/internal/app"
	"github.com/dotcommander/missionctl/internal/engine"
)

// Sender posts templated per-event messages to a chat webhook, routed to
// a channel by agent id. Implements engine.Notifier.
type Sender struct {
	cfg    app.ChatSettings
	client *http.Client
}

// NewSender builds a Sender from chat settings.
func NewSender(cfg app.ChatSettings) *Sender {
	return &Sender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// ResolveChannel maps an agent id to its chat channel, falling back to
// the configured fallback channel.
func (s *Sender) ResolveChannel(agentID string) string {
	if ch, ok := s.cfg.AgentChannels[agentID]; ok && ch != "" {
		return ch
	}
	return s.cfg.FallbackChannel
}

// NotifyAgentEvent renders and sends the message for one event. Unknown
// kinds and unconfigured webhooks are silently skipped.
func (s *Sender) NotifyAgentEvent(ctx context.Context, n engine.Notification) error {
	content := FormatMessage(n)
	if content == "" {
		return nil
	}

	channel := s.ResolveChannel(n.AgentID)
	if s.cfg.WebhookURL == "" || channel == "" {
		slog.Debug("chat notifier not configured, skipping", "kind", n.Kind, "agent_id", n.AgentID)
		return nil
	}

	return s.send(ctx, channel, content)
}

// FormatMessage renders the human-readable message for a notification.
// Returns "" for kinds that carry no message.
func FormatMessage(n engine.Notification) string {
	msg := func(fallback string) string {
		if n.Message != "" {
			return n.Message
		}
		return fallback
	}

	switch n.Kind {
	case "ack":
		return fmt.Sprintf("[ACK] Agent %s acknowledged task %s. Stage: %s. Message: %s",
			n.AgentID, n.TaskID, n.Stage, msg("no message"))
	case "running":
		return fmt.Sprintf("[RUNNING] Agent %s started executing task %s.", n.AgentID, n.TaskID)
	case "progress":
		return fmt.Sprintf("[PROGRESS] Update on task %s. Stage: %s. Message: %s",
			n.TaskID, n.Stage, msg("working..."))
	case "done":
		return fmt.Sprintf("[DONE] Agent %s completed task %s. Result: %s",
			n.AgentID, n.TaskID, msg("success"))
	case "failed":
		return fmt.Sprintf("[FAILED] Task %s failed on agent %s. Error: %s",
			n.TaskID, n.AgentID, msg("unknown error"))
	case "timeout":
		return fmt.Sprintf("[TIMEOUT] Task %s exceeded its deadline for agent %s.", n.TaskID, n.AgentID)
	case "offline":
		return fmt.Sprintf("[OFFLINE] Agent %s stopped sending heartbeats.", n.AgentID)
	}
	return ""
}

type chatMessage struct {
	Channel string `json:"channel"`
	Content string `json:"content"`
}

// send posts one message with bounded retry on rate limiting. Other
// failures surface to the caller, which logs and swallows them.
func (s *Sender) send(ctx context.Context, channel, content string) error {
	body, err := json.Marshal(chatMessage{Channel: channel, Content: content})
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusTooManyRequests {
			if retryAfter, parseErr := strconv.Atoi(resp.Header.Get("Retry-After")); parseErr == nil && retryAfter > 0 {
				slog.Warn("chat webhook rate limited", "retry_after_s", retryAfter)
			}
			return fmt.Errorf("chat webhook rate limited")
		}
		if resp.StatusCode >= 400 {
			text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("chat webhook returned %d: %s", resp.StatusCode, text))
		}
		return nil
	}, b)
}
