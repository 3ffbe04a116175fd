package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mizan/internal/types"
)

// NotificationRepository provides data access for the notifications table.
// One row exists per logical notification; per-channel attempt detail lives
// in the delivery_log table managed by DeliveryLogRepository.
type NotificationRepository struct {
	db DBTX
}

var _ types.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository creates a new NotificationRepository backed by
// the given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a new notification record. If the ID is empty a UUID is
// generated. channels_sent and delivery_status start empty; the dispatcher
// fills them via SetDeliveryOutcome after fan-out completes.
func (r *NotificationRepository) Create(ctx context.Context, n *types.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.ChannelsSent == nil {
		n.ChannelsSent = types.ChannelList{}
	}
	if n.DeliveryStatus == nil {
		n.DeliveryStatus = types.DeliveryStatusMap{}
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO notifications
		 (id, recipient_id, sender_id, title, message, notification_type,
		  priority, channels_sent, delivery_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))
		 RETURNING created_at`,
		n.ID,
		n.RecipientID,
		n.SenderID,
		n.Title,
		n.Message,
		string(n.Type),
		string(n.Priority),
		n.ChannelsSent,
		n.DeliveryStatus,
		nilIfZeroTime(n.CreatedAt),
	)
	if err := row.Scan(&n.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification", err)
	}
	return nil
}

// Get retrieves a single notification by ID.
func (r *NotificationRepository) Get(ctx context.Context, id string) (*types.Notification, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, recipient_id, sender_id, title, message, notification_type,
		        priority, channels_sent, delivery_status, read_at, created_at
		 FROM notifications
		 WHERE id = $1`,
		id,
	)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load notification", err)
	}
	return n, nil
}

// ListByRecipient retrieves the recipient's notifications newest-first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]types.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, recipient_id, sender_id, title, message, notification_type,
		        priority, channels_sent, delivery_status, read_at, created_at
		 FROM notifications
		 WHERE recipient_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		recipientID,
		limit,
		offset,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notifications", err)
	}
	defer rows.Close()

	var results []types.Notification
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification row", scanErr)
		}
		results = append(results, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notification rows", err)
	}

	return results, nil
}

// SetDeliveryOutcome persists the post-fanout channels_sent and
// delivery_status fields. Called exactly once per dispatch.
func (r *NotificationRepository) SetDeliveryOutcome(ctx context.Context, id string, sent types.ChannelList, status types.DeliveryStatusMap) error {
	if sent == nil {
		sent = types.ChannelList{}
	}
	if status == nil {
		status = types.DeliveryStatusMap{}
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET
			channels_sent = $1,
			delivery_status = $2
		 WHERE id = $3`,
		sent,
		status,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set delivery outcome", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return nil
}

// MarkRead sets read_at for the recipient's notification. The recipient
// filter makes the operation an authorization check as well: marking someone
// else's notification reports not found.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET read_at = $1
		 WHERE id = $2 AND recipient_id = $3 AND read_at IS NULL`,
		at,
		id,
		recipientID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		// Either unknown, not owned, or already read. Distinguish the
		// already-read case, which is a successful no-op.
		row := r.db.QueryRow(ctx,
			`SELECT read_at FROM notifications WHERE id = $1 AND recipient_id = $2`,
			id, recipientID,
		)
		var readAt *time.Time
		if scanErr := row.Scan(&readAt); scanErr != nil {
			return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
		}
		return nil
	}
	return nil
}

// MarkAllRead sets read_at on every unread notification for the recipient.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notifications SET read_at = $1
		 WHERE recipient_id = $2 AND read_at IS NULL`,
		at,
		recipientID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark all notifications read", err)
	}
	return nil
}

// SetReadAtIfUnset propagates a provider READ receipt to the parent
// notification without overwriting an earlier read time.
func (r *NotificationRepository) SetReadAtIfUnset(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notifications SET read_at = $1
		 WHERE id = $2 AND read_at IS NULL`,
		at,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to propagate read receipt", err)
	}
	return nil
}

// scanNotification scans a notification row from either pgx.Row or pgx.Rows.
func scanNotification(row pgx.Row) (*types.Notification, error) {
	var (
		n        types.Notification
		notifTyp string
		priority string
	)

	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.SenderID,
		&n.Title,
		&n.Message,
		&notifTyp,
		&priority,
		&n.ChannelsSent,
		&n.DeliveryStatus,
		&n.ReadAt,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Type = types.NotificationType(notifTyp)
	n.Priority = types.NotificationPriority(priority)
	return &n, nil
}
