// Package push implements the push notification channel over FCM.
package push

import (
	"context"
	"fmt"

	"mizan/internal/external"
	corepkg "mizan/internal/notifications/core"
	"mizan/internal/types"
)

// Multicaster is the slice of the FCM client the channel needs.
type Multicaster interface {
	SendMulticast(ctx context.Context, tokens []string, msg external.PushMessage) (*external.MulticastResult, error)
}

// Compile-time assertion that Channel implements ChannelSender.
var _ corepkg.ChannelSender = (*Channel)(nil)

// Channel is the push channel sender. It resolves the recipient's device
// tokens, multicasts to all of them, and prunes tokens the provider reports
// as unregistered.
type Channel struct {
	fcm   Multicaster
	staff types.StaffDirectory
	clock types.Clock
	log   types.Logger
}

// NewChannel creates the push channel sender.
func NewChannel(fcm Multicaster, staff types.StaffDirectory, clock types.Clock, log types.Logger) *Channel {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Channel{fcm: fcm, staff: staff, clock: clock, log: log}
}

// Channel returns the channel identity.
func (c *Channel) Channel() types.Channel { return types.ChannelPush }

// Send multicasts to the recipient's device tokens. The channel succeeds
// when at least one token accepted the message. A recipient with no
// registered tokens fails the channel without touching the provider.
func (c *Channel) Send(ctx context.Context, recipient *types.Staff, n *types.Notification, rec corepkg.AttemptRecorder) (*corepkg.ChannelOutcome, error) {
	tokens, err := c.staff.DeviceTokens(ctx, recipient.ID)
	if err != nil {
		return nil, fmt.Errorf("Send: loading device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamPush,
			"recipient has no registered device tokens",
			nil,
		)
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	result, err := c.fcm.SendMulticast(ctx, tokenStrings, external.PushMessage{
		Title: n.Title,
		Body:  n.Message,
		Data: map[string]string{
			"notification_id":   n.ID,
			"notification_type": string(n.Type),
		},
	})

	entry := &types.DeliveryLogEntry{
		NotificationID:   n.ID,
		Channel:          types.ChannelPush,
		RecipientAddress: recipient.ID,
		SentAt:           c.clock.Now(),
	}
	if result != nil {
		entry.ResponseData = types.ResponseData{
			"success_count": result.SuccessCount,
			"failure_count": result.FailureCount,
		}
	}

	if err != nil {
		entry.Status = types.DeliveryFailed
		entry.ErrorMessage = err.Error()
		rec.Record(ctx, entry)
		return nil, fmt.Errorf("Send: push multicast: %w", err)
	}

	// Prune tokens FCM rejected as unregistered; best effort.
	for _, stale := range result.FailedTokens {
		if pruneErr := c.staff.UnregisterDeviceToken(ctx, recipient.ID, stale); pruneErr != nil {
			c.log.Warn("failed to prune stale device token",
				"user_id", recipient.ID,
				"error", pruneErr.Error(),
			)
		}
	}

	if result.SuccessCount == 0 {
		entry.Status = types.DeliveryFailed
		entry.ErrorMessage = "no device token accepted the message"
		rec.Record(ctx, entry)
		return nil, types.NewAppError(
			types.ErrCodeUpstreamPush,
			"no device token accepted the message",
			nil,
		)
	}

	entry.Status = types.DeliverySent
	rec.Record(ctx, entry)

	return &corepkg.ChannelOutcome{RecipientAddress: recipient.ID}, nil
}
