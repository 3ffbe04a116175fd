package inapp

import (
	"context"
	"fmt"

	corepkg "mizan/internal/notifications/core"
	"mizan/internal/types"
)

// Compile-time assertion that Channel implements ChannelSender.
var _ corepkg.ChannelSender = (*Channel)(nil)

// Channel is the in-app channel sender. It pushes the notification toward
// connected clients through the injected publisher (the local hub, or the
// Redis fan-out in multi-instance deployments). The notification row itself
// is the durable copy; the push is best-effort real-time delivery.
type Channel struct {
	publisher corepkg.InAppPublisher
	clock     types.Clock
}

// NewChannel creates the in-app channel sender.
func NewChannel(publisher corepkg.InAppPublisher, clock types.Clock) *Channel {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Channel{publisher: publisher, clock: clock}
}

// Channel returns the channel identity.
func (c *Channel) Channel() types.Channel { return types.ChannelApp }

// Send publishes the in-app event and records the single delivery attempt.
func (c *Channel) Send(ctx context.Context, recipient *types.Staff, n *types.Notification, rec corepkg.AttemptRecorder) (*corepkg.ChannelOutcome, error) {
	ev := types.InAppEvent{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		CreatedAt: n.CreatedAt,
		Read:      n.ReadAt != nil,
	}

	entry := &types.DeliveryLogEntry{
		NotificationID:   n.ID,
		Channel:          types.ChannelApp,
		RecipientAddress: recipient.ID,
		SentAt:           c.clock.Now(),
	}

	if err := c.publisher.PublishToUser(ctx, recipient.ID, ev); err != nil {
		entry.Status = types.DeliveryFailed
		entry.ErrorMessage = err.Error()
		rec.Record(ctx, entry)
		return nil, fmt.Errorf("Send: publishing in-app event: %w", err)
	}

	entry.Status = types.DeliverySent
	rec.Record(ctx, entry)

	return &corepkg.ChannelOutcome{RecipientAddress: recipient.ID}, nil
}
