package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"jobmate/orchestrator/internal/broker"
	"jobmate/orchestrator/internal/domain"
)

// PreferenceLookup resolves a profile's SMS destination number. Implemented
// by internal/store.Store (GetPreferences); kept as an interface here so
// this package never imports internal/store directly (spec §9 "components
// depend only on the narrow interfaces they call").
type PreferenceLookup interface {
	GetPreferences(ctx context.Context, profileID string) (map[string]string, error)
}

// Consumer drains the send_notification queue and delivers each message via
// the SMS gateway — the dispatcher never sends SMS inline (spec §4.3).
type Consumer struct {
	broker  *broker.Broker
	gateway *SMSGateway
	prefs   PreferenceLookup
}

// NewConsumer wires the queue, gateway, and preference lookup together.
func NewConsumer(b *broker.Broker, gateway *SMSGateway, prefs PreferenceLookup) *Consumer {
	return &Consumer{broker: b, gateway: gateway, prefs: prefs}
}

// Run blocks, consuming send_notification tasks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		task, err := c.broker.Consume(ctx, domain.TaskSendNotification, 5*time.Second)
		if err != nil {
			slog.Error("notify: consume failed", "err", err)
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}
		if err := c.handle(ctx, task); err != nil {
			slog.Error("notify: handle failed", "task_id", task.ID, "err", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, task *domain.QueueTask) error {
	var payload domain.SendNotificationPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode send_notification: %w", err)
	}
	if payload.ProfileID == "" || payload.Message == "" {
		return fmt.Errorf("send_notification missing profile_id or message")
	}

	prefs, err := c.prefs.GetPreferences(ctx, payload.ProfileID)
	if err != nil {
		return fmt.Errorf("lookup preferences: %w", err)
	}
	to := prefs["phone"]
	if to == "" {
		return fmt.Errorf("no phone number on file for profile %s", payload.ProfileID)
	}

	return c.gateway.Send(ctx, to, payload.Message)
}
