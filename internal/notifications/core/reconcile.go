package core

import (
	"context"
	"fmt"
	"time"

	"mizan/internal/types"
)

// StatusCallback is one provider delivery receipt: WhatsApp statuses array
// entries, SendGrid event webhook rows, and similar.
type StatusCallback struct {
	// ExternalID is the provider message id the receipt refers to (wamid,
	// SendGrid message id).
	ExternalID string

	// CallbackID uniquely identifies this receipt for idempotency. Providers
	// redeliver receipts; the claim guard makes redelivery a no-op. When the
	// provider supplies no receipt id, the caller derives one from the
	// external id and status.
	CallbackID string

	Channel   types.Channel
	Status    types.DeliveryStatus
	Timestamp time.Time
}

// Reconciler applies provider delivery receipts to the audit log and
// propagates READ receipts to the parent notification.
type Reconciler struct {
	log           types.DeliveryLogRepository
	notifications types.NotificationRepository
	processed     types.ProcessedMessageRepository
	clock         types.Clock
	logger        types.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(
	log types.DeliveryLogRepository,
	notifications types.NotificationRepository,
	processed types.ProcessedMessageRepository,
	clock types.Clock,
	logger types.Logger,
) *Reconciler {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Reconciler{
		log:           log,
		notifications: notifications,
		processed:     processed,
		clock:         clock,
		logger:        logger,
	}
}

// Apply processes one provider receipt:
//
//  1. Claim the callback id; an already-claimed receipt is a redelivery and
//     returns immediately.
//  2. Locate the delivery attempt by external id. Unknown ids are a no-op:
//     providers send receipts for messages originated outside this system.
//  3. Apply the status transition. The repository enforces monotonicity, so
//     a stale "sent" arriving after DELIVERED changes nothing.
//  4. On READ, propagate read_at to the parent notification without
//     overwriting an earlier in-app read.
func (r *Reconciler) Apply(ctx context.Context, cb StatusCallback) error {
	callbackID := cb.CallbackID
	if callbackID == "" {
		callbackID = fmt.Sprintf("%s:%s", cb.ExternalID, string(cb.Status))
	}

	won, err := r.processed.Claim(ctx, callbackID, cb.Channel)
	if err != nil {
		return fmt.Errorf("Apply: claiming callback: %w", err)
	}
	if !won {
		return nil
	}

	entry, err := r.log.FindByExternalID(ctx, cb.ExternalID)
	if err != nil {
		return fmt.Errorf("Apply: locating delivery attempt: %w", err)
	}
	if entry == nil {
		r.logger.Info("delivery receipt for unknown external id",
			"external_id", cb.ExternalID,
			"status", string(cb.Status),
		)
		return nil
	}

	at := cb.Timestamp
	if at.IsZero() {
		at = r.clock.Now()
	}

	applied, err := r.log.TransitionStatus(ctx, entry.ID, cb.Status, at)
	if err != nil {
		return fmt.Errorf("Apply: transitioning delivery status: %w", err)
	}
	if !applied {
		r.logger.Info("stale delivery receipt ignored",
			"entry_id", entry.ID,
			"current_status", string(entry.Status),
			"receipt_status", string(cb.Status),
		)
		return nil
	}

	r.logger.Info("delivery status updated",
		"entry_id", entry.ID,
		"notification_id", entry.NotificationID,
		"channel", string(entry.Channel),
		"status", string(cb.Status),
	)

	if cb.Status == types.DeliveryRead {
		if err := r.notifications.SetReadAtIfUnset(ctx, entry.NotificationID, at); err != nil {
			return fmt.Errorf("Apply: propagating read receipt: %w", err)
		}
	}

	return nil
}
