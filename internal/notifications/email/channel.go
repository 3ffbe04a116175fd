// Package email implements the email notification channel over SendGrid.
package email

import (
	"context"
	"fmt"
	"html"

	"mizan/internal/external"
	corepkg "mizan/internal/notifications/core"
	"mizan/internal/types"
)

// Sender is the slice of the SendGrid client the channel needs.
type Sender interface {
	Send(ctx context.Context, input external.EmailInput) (string, error)
}

// Compile-time assertion that Channel implements ChannelSender.
var _ corepkg.ChannelSender = (*Channel)(nil)

// Channel is the email channel sender.
type Channel struct {
	sendgrid Sender
	clock    types.Clock
}

// NewChannel creates the email channel sender.
func NewChannel(sendgrid Sender, clock types.Clock) *Channel {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Channel{sendgrid: sendgrid, clock: clock}
}

// Channel returns the channel identity.
func (c *Channel) Channel() types.Channel { return types.ChannelEmail }

// Send delivers the notification by email. The notification title becomes
// the subject; the SendGrid message id is retained for event webhook
// reconciliation.
func (c *Channel) Send(ctx context.Context, recipient *types.Staff, n *types.Notification, rec corepkg.AttemptRecorder) (*corepkg.ChannelOutcome, error) {
	if recipient.Email == "" {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamEmail,
			"recipient has no email address",
			nil,
		)
	}

	msgID, err := c.sendgrid.Send(ctx, external.EmailInput{
		To:          recipient.Email,
		ToName:      recipient.FullName(),
		Subject:     n.Title,
		TextBody:    n.Message,
		HTMLBody:    fmt.Sprintf("<p>%s</p>", html.EscapeString(n.Message)),
		ReferenceID: n.ID,
	})

	entry := &types.DeliveryLogEntry{
		NotificationID:   n.ID,
		Channel:          types.ChannelEmail,
		RecipientAddress: recipient.Email,
		SentAt:           c.clock.Now(),
	}

	if err != nil {
		entry.Status = types.DeliveryFailed
		entry.ErrorMessage = err.Error()
		rec.Record(ctx, entry)
		return nil, fmt.Errorf("Send: email delivery: %w", err)
	}

	entry.Status = types.DeliverySent
	entry.ExternalID = msgID
	rec.Record(ctx, entry)

	return &corepkg.ChannelOutcome{
		ExternalID:       msgID,
		RecipientAddress: recipient.Email,
	}, nil
}
