package core

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"mizan/internal/types"
)

// Compile-time assertion that DispatcherImpl implements Dispatcher.
var _ Dispatcher = (*DispatcherImpl)(nil)

// DispatcherImpl is the production multi-channel dispatcher. For each
// dispatch it resolves the target notification (creating it only for
// NewNotification targets), applies the recipient's channel preferences,
// fans out to the channel senders concurrently, and persists the aggregate
// outcome exactly once.
type DispatcherImpl struct {
	notifications types.NotificationRepository
	staff         types.StaffDirectory
	senders       map[types.Channel]ChannelSender
	recorder      AttemptRecorder
	metrics       NotificationMetrics
	clock         types.Clock
	logger        types.Logger
}

// NewDispatcher creates a DispatcherImpl. The senders slice defines which
// channels this process can deliver; a requested channel with no sender is
// skipped with a warning rather than failing the dispatch.
func NewDispatcher(
	notifications types.NotificationRepository,
	staff types.StaffDirectory,
	senders []ChannelSender,
	recorder AttemptRecorder,
	metrics NotificationMetrics,
	clock types.Clock,
	logger types.Logger,
) *DispatcherImpl {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if clock == nil {
		clock = types.RealClock{}
	}

	byChannel := make(map[types.Channel]ChannelSender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}

	return &DispatcherImpl{
		notifications: notifications,
		staff:         staff,
		senders:       byChannel,
		recorder:      recorder,
		metrics:       metrics,
		clock:         clock,
		logger:        logger,
	}
}

// Dispatch delivers the target notification on the requested channels.
//
// Invariants:
//   - Exactly one notification row per dispatch. ExistingNotification
//     targets are decorated, never duplicated.
//   - Preference-disabled channels are skipped entirely (no attempt, no
//     audit row) unless override is set. Emergency broadcasts override.
//   - Channels fan out concurrently; one channel failing never aborts the
//     others.
//   - The aggregate outcome (channels_sent, delivery_status) is persisted
//     exactly once, after all channels settle.
//
// The returned result has OK=false when every attempted channel failed;
// that is not an error. Errors are reserved for infrastructure failures
// before fan-out (unknown notification, unknown recipient).
func (d *DispatcherImpl) Dispatch(ctx context.Context, target DispatchTarget, channels []types.Channel, override bool) (*DispatchResult, error) {
	n, err := d.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	recipient, err := d.staff.Get(ctx, n.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("Dispatch: loading recipient: %w", err)
	}

	attempted := d.gateChannels(ctx, recipient.ID, channels, override)

	var (
		mu     sync.Mutex
		sent   types.ChannelList
		status = types.DeliveryStatusMap{}
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range attempted {
		sender, ok := d.senders[ch]
		if !ok {
			d.logger.Warn("no sender registered for channel",
				"channel", string(ch),
				"notification_id", n.ID,
			)
			d.metrics.RecordDelivery(ctx, ch, MetricSkipped)
			continue
		}

		ch := ch
		g.Go(func() error {
			start := d.clock.Now()
			outcome, sendErr := sender.Send(gctx, recipient, n, d.recorder)
			d.metrics.RecordLatency(gctx, ch, d.clock.Now().Sub(start))

			mu.Lock()
			defer mu.Unlock()

			if sendErr != nil {
				status[ch] = types.ChannelDelivery{
					Status:    types.DeliveryFailed,
					Timestamp: d.clock.Now(),
				}
				d.logger.Warn("channel delivery failed",
					"channel", string(ch),
					"notification_id", n.ID,
					"error", sendErr.Error(),
				)
				// Errors stay local to the channel; a failed rung must not
				// cancel sibling sends.
				return nil
			}

			sent = append(sent, ch)
			delivery := types.ChannelDelivery{
				Status:    types.DeliverySent,
				Timestamp: d.clock.Now(),
			}
			if outcome != nil {
				delivery.ExternalID = outcome.ExternalID
			}
			status[ch] = delivery
			return nil
		})
	}

	// Senders never return errors through the group; Wait only synchronizes.
	_ = g.Wait()

	if err := d.notifications.SetDeliveryOutcome(ctx, n.ID, sent, status); err != nil {
		return nil, fmt.Errorf("Dispatch: persisting delivery outcome: %w", err)
	}
	n.ChannelsSent = sent
	n.DeliveryStatus = status

	result := &DispatchResult{
		Notification: n,
		Sent:         sent,
		Status:       status,
		OK:           len(sent) > 0,
	}

	if !result.OK && len(attempted) > 0 {
		d.logger.Error("all channels failed for notification",
			"notification_id", n.ID,
			"channels", fmt.Sprintf("%v", attempted),
		)
	}

	return result, nil
}

// resolveTarget creates or loads the notification row for the dispatch.
func (d *DispatcherImpl) resolveTarget(ctx context.Context, target DispatchTarget) (*types.Notification, error) {
	switch t := target.(type) {
	case NewNotification:
		n := &types.Notification{
			RecipientID: t.RecipientID,
			SenderID:    t.SenderID,
			Title:       t.Title,
			Message:     t.Message,
			Type:        t.Type,
			Priority:    t.Priority,
			CreatedAt:   d.clock.Now(),
		}
		if n.Priority == "" {
			n.Priority = types.PriorityNormal
		}
		if err := d.notifications.Create(ctx, n); err != nil {
			return nil, fmt.Errorf("Dispatch: creating notification: %w", err)
		}
		return n, nil

	case ExistingNotification:
		n, err := d.notifications.Get(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("Dispatch: loading notification: %w", err)
		}
		return n, nil

	default:
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"unknown dispatch target type",
			nil,
		)
	}
}

// gateChannels filters the requested channels through the recipient's
// preferences. The in-app channel is never gated; it is the always-on
// baseline. Override bypasses preferences for emergency traffic.
func (d *DispatcherImpl) gateChannels(ctx context.Context, recipientID string, channels []types.Channel, override bool) []types.Channel {
	channels = dedupeChannels(channels)
	if override {
		return channels
	}

	prefs, err := d.staff.Preferences(ctx, recipientID)
	if err != nil {
		// Preference lookup failing must not drop the notification; fall
		// back to sending on everything requested.
		d.logger.Warn("preference lookup failed, sending on all requested channels",
			"recipient_id", recipientID,
			"error", err.Error(),
		)
		return channels
	}

	out := channels[:0]
	for _, ch := range channels {
		enabled := true
		switch ch {
		case types.ChannelWhatsApp:
			enabled = prefs.WhatsAppEnabled
		case types.ChannelEmail:
			enabled = prefs.EmailEnabled
		case types.ChannelPush:
			enabled = prefs.PushEnabled
		}
		if !enabled {
			d.metrics.RecordDelivery(ctx, ch, MetricSkipped)
			d.logger.Info("channel skipped by user preference",
				"recipient_id", recipientID,
				"channel", string(ch),
			)
			continue
		}
		out = append(out, ch)
	}
	return out
}

// dedupeChannels removes duplicates while preserving order.
func dedupeChannels(channels []types.Channel) []types.Channel {
	seen := make(map[types.Channel]bool, len(channels))
	out := make([]types.Channel, 0, len(channels))
	for _, ch := range channels {
		if seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out
}
