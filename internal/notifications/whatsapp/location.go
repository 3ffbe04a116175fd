package whatsapp

import (
	"context"
	"fmt"

	"mizan/internal/config"
	"mizan/internal/external"
	corepkg "mizan/internal/notifications/core"
	"mizan/internal/types"
)

// LocationRequester asks a user to share their device location for clock-in
// verification. Its fallback chain is strictly:
//
//	clock-in template -> native location request interactive
//
// run twice before giving up, and NEVER plain text. A text message cannot
// render the "Send location" button; falling back to text would leave the
// user in awaiting_clock_in_location with no way to answer, soft-locking
// the session.
type LocationRequester struct {
	api   API
	cfg   config.WhatsAppConfig
	clock types.Clock
}

// NewLocationRequester creates a LocationRequester.
func NewLocationRequester(api API, cfg config.WhatsAppConfig, clock types.Clock) *LocationRequester {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &LocationRequester{api: api, cfg: cfg, clock: clock}
}

// Request sends the location request to the phone, trying the pre-approved
// template first and the native interactive payload second, and repeating
// the pair once more if both failed. Each attempt leaves a delivery log row
// under the given notification id.
func (l *LocationRequester) Request(ctx context.Context, to, bodyText, notificationID string, rec corepkg.AttemptRecorder) (*external.SendResult, error) {
	rungs := []struct {
		name string
		send func(context.Context) (*external.SendResult, error)
	}{
		{
			name: "template",
			send: func(ctx context.Context) (*external.SendResult, error) {
				return l.api.SendTemplate(ctx, to, l.cfg.ClockInLocationTemplate, nil)
			},
		},
		{
			name: "location_request",
			send: func(ctx context.Context) (*external.SendResult, error) {
				return l.api.SendLocationRequest(ctx, to, bodyText)
			},
		},
	}

	var lastErr error
	for pass := 0; pass < 2; pass++ {
		for _, rung := range rungs {
			result, err := rung.send(ctx)

			entry := &types.DeliveryLogEntry{
				NotificationID:   notificationID,
				Channel:          types.ChannelWhatsApp,
				RecipientAddress: to,
				SentAt:           l.clock.Now(),
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

			return result, nil
		}
	}

	return nil, fmt.Errorf("Request: location request fallbacks exhausted: %w", lastErr)
}
