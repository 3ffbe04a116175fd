package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mizan/internal/types"
)

// DeliveryLogRepository provides data access for the delivery_log table, the
// append-only per-channel audit log. One row per delivery attempt; retries
// create new rows. After creation the only mutation is the monotonic status
// transition applied when a provider callback arrives.
type DeliveryLogRepository struct {
	db DBTX
}

var _ types.DeliveryLogRepository = (*DeliveryLogRepository)(nil)

// NewDeliveryLogRepository creates a new DeliveryLogRepository backed by the
// given database connection (pool or transaction).
func NewDeliveryLogRepository(db DBTX) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

// Append inserts one attempt row. If the ID is empty a UUID is generated.
func (r *DeliveryLogRepository) Append(ctx context.Context, e *types.DeliveryLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ResponseData == nil {
		e.ResponseData = types.ResponseData{}
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO delivery_log
		 (id, notification_id, channel, recipient_address, status, external_id,
		  response_data, error_message, sent_at, delivered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()), $10)
		 RETURNING sent_at`,
		e.ID,
		e.NotificationID,
		string(e.Channel),
		e.RecipientAddress,
		string(e.Status),
		nilIfEmpty(e.ExternalID),
		e.ResponseData,
		nilIfEmpty(e.ErrorMessage),
		nilIfZeroTime(e.SentAt),
		e.DeliveredAt,
	)
	if err := row.Scan(&e.SentAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append delivery log entry", err)
	}
	return nil
}

// FindByExternalID locates the attempt a provider callback references.
// Returns nil, nil when unknown: callbacks may reference messages sent
// outside this system (or purged attempts), which is not an error.
//
// When retries produced multiple rows with the same external id, the newest
// attempt wins; it is the one the provider's receipt describes.
func (r *DeliveryLogRepository) FindByExternalID(ctx context.Context, externalID string) (*types.DeliveryLogEntry, error) {
	if externalID == "" {
		return nil, nil
	}

	row := r.db.QueryRow(ctx,
		`SELECT id, notification_id, channel, recipient_address, status,
		        external_id, response_data, error_message, sent_at, delivered_at
		 FROM delivery_log
		 WHERE external_id = $1
		 ORDER BY sent_at DESC
		 LIMIT 1`,
		externalID,
	)

	e, err := scanDeliveryLogEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find delivery log entry", err)
	}
	return e, nil
}

// TransitionStatus applies a monotonic status transition to an entry and sets
// delivered_at once on the first DELIVERED/READ. Illegal transitions (stale
// receipts arriving out of order, or anything after a terminal status) return
// false with no mutation.
//
// The legality check runs in Go against the current row, and the UPDATE
// re-asserts the observed status so a concurrent transition cannot be
// overwritten; losing that race also returns false.
func (r *DeliveryLogRepository) TransitionStatus(ctx context.Context, entryID string, next types.DeliveryStatus, at time.Time) (bool, error) {
	row := r.db.QueryRow(ctx,
		`SELECT status FROM delivery_log WHERE id = $1`,
		entryID,
	)
	var current types.DeliveryStatus
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, types.NewAppError(types.ErrCodeNotFoundNotification, "delivery log entry not found", nil)
		}
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to load delivery status", err)
	}

	if !current.CanTransitionTo(next) {
		return false, nil
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE delivery_log SET
			status = $1,
			delivered_at = CASE
				WHEN $1 IN ('DELIVERED', 'READ') AND delivered_at IS NULL THEN $2
				ELSE delivered_at
			END
		 WHERE id = $3 AND status = $4`,
		string(next),
		at,
		entryID,
		string(current),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to transition delivery status", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeTerminalOlderThan removes rows older than the cutoff whose status can
// no longer change (terminal failures and READ), returning them for archival.
// Rows still awaiting provider receipts are kept regardless of age so late
// callbacks continue to resolve.
func (r *DeliveryLogRepository) PurgeTerminalOlderThan(ctx context.Context, cutoff time.Time) ([]types.DeliveryLogEntry, error) {
	rows, err := r.db.Query(ctx,
		`DELETE FROM delivery_log
		 WHERE sent_at < $1
		   AND status IN ('READ', 'FAILED', 'BOUNCED')
		 RETURNING id, notification_id, channel, recipient_address, status,
		           external_id, response_data, error_message, sent_at, delivered_at`,
		cutoff,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to purge delivery log", err)
	}
	defer rows.Close()

	var purged []types.DeliveryLogEntry
	for rows.Next() {
		e, scanErr := scanDeliveryLogEntry(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan purged entry", scanErr)
		}
		purged = append(purged, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating purged entries", err)
	}

	return purged, nil
}

// scanDeliveryLogEntry scans a delivery_log row, handling nullable columns.
func scanDeliveryLogEntry(row pgx.Row) (*types.DeliveryLogEntry, error) {
	var (
		e          types.DeliveryLogEntry
		channel    string
		status     string
		externalID *string
		errMsg     *string
	)

	err := row.Scan(
		&e.ID,
		&e.NotificationID,
		&channel,
		&e.RecipientAddress,
		&status,
		&externalID,
		&e.ResponseData,
		&errMsg,
		&e.SentAt,
		&e.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}

	e.Channel = types.Channel(channel)
	e.Status = types.DeliveryStatus(status)
	if externalID != nil {
		e.ExternalID = *externalID
	}
	if errMsg != nil {
		e.ErrorMessage = *errMsg
	}
	return &e, nil
}
