// Package whatsapp implements the WhatsApp notification channel over the
// Cloud API client, including the payload fallback chain required by the
// 24-hour customer service window.
package whatsapp

import (
	"context"
	"fmt"

	"mizan/internal/config"
	"mizan/internal/external"
	corepkg "mizan/internal/notifications/core"
	"mizan/internal/types"
)

// API is the narrow slice of the Cloud API client the channel needs.
// Satisfied by *external.WhatsAppClient; faked in tests.
type API interface {
	SendTemplate(ctx context.Context, to, templateName string, bodyParams []string) (*external.SendResult, error)
	SendInteractiveButtons(ctx context.Context, to, bodyText string, buttons []external.Button) (*external.SendResult, error)
	SendLocationRequest(ctx context.Context, to, bodyText string) (*external.SendResult, error)
	SendText(ctx context.Context, to, body string) (*external.SendResult, error)
}

// Compile-time assertion that Channel implements ChannelSender.
var _ corepkg.ChannelSender = (*Channel)(nil)

// Channel is the WhatsApp channel sender. It walks a payload fallback chain:
//
//	template -> interactive -> text
//
// Templates are the only payload deliverable outside the 24-hour window, so
// they go first; interactive and plain text only reach users with an open
// window, but they render better and avoid template-quota consumption.
// Every rung attempted leaves its own delivery log row, so the audit trail
// shows exactly which payload finally went through.
type Channel struct {
	api   API
	cfg   config.WhatsAppConfig
	clock types.Clock
}

// NewChannel creates the WhatsApp channel sender.
func NewChannel(api API, cfg config.WhatsAppConfig, clock types.Clock) *Channel {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Channel{api: api, cfg: cfg, clock: clock}
}

// Channel returns the channel identity.
func (c *Channel) Channel() types.Channel { return types.ChannelWhatsApp }

// Send delivers the notification, falling through the payload chain until a
// rung is accepted. Returns the outcome of the accepted rung, or the last
// error when every rung failed.
func (c *Channel) Send(ctx context.Context, recipient *types.Staff, n *types.Notification, rec corepkg.AttemptRecorder) (*corepkg.ChannelOutcome, error) {
	to := types.NormalizePhone(recipient.Phone)
	if to == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationBadPhone,
			"recipient has no usable phone number",
			nil,
		)
	}

	rungs := []struct {
		name string
		send func(context.Context) (*external.SendResult, error)
	}{
		{
			name: "template",
			send: func(ctx context.Context) (*external.SendResult, error) {
				return c.api.SendTemplate(ctx, to, c.cfg.NotificationTemplate, []string{n.Title, n.Message})
			},
		},
		{
			name: "interactive",
			send: func(ctx context.Context) (*external.SendResult, error) {
				body := fmt.Sprintf("*%s*\n%s", n.Title, n.Message)
				return c.api.SendInteractiveButtons(ctx, to, body, []external.Button{
					{ID: "ack_" + n.ID, Title: "OK"},
				})
			},
		},
		{
			name: "text",
			send: func(ctx context.Context) (*external.SendResult, error) {
				return c.api.SendText(ctx, to, fmt.Sprintf("%s\n\n%s", n.Title, n.Message))
			},
		},
	}

	var lastErr error
	for _, rung := range rungs {
		result, err := rung.send(ctx)

		entry := &types.DeliveryLogEntry{
			NotificationID:   n.ID,
			Channel:          types.ChannelWhatsApp,
			RecipientAddress: to,
			SentAt:           c.clock.Now(),
		}

		if err != nil {
			lastErr = err
			entry.Status = types.DeliveryFailed
			entry.ErrorMessage = fmt.Sprintf("%s: %v", rung.name, err)
			rec.Record(ctx, entry)
			continue
		}

		entry.Status = types.DeliverySent
		entry.ExternalID = result.MessageID
		entry.ResponseData = result.Raw
		rec.Record(ctx, entry)

		return &corepkg.ChannelOutcome{
			ExternalID:       result.MessageID,
			RecipientAddress: to,
		}, nil
	}

	return nil, fmt.Errorf("Send: all payload fallbacks failed: %w", lastErr)
}
