package db

import (
	"context"
	"time"

	"mizan/internal/types"
)

// ProcessedMessageRepository provides data access for the processed_messages
// table, the inbound idempotency guard. WhatsApp retries webhook deliveries
// until acknowledged, so every inbound message id is claimed here before any
// side effect runs.
type ProcessedMessageRepository struct {
	db DBTX
}

var _ types.ProcessedMessageRepository = (*ProcessedMessageRepository)(nil)

// NewProcessedMessageRepository creates a new ProcessedMessageRepository
// backed by the given database connection (pool or transaction).
func NewProcessedMessageRepository(db DBTX) *ProcessedMessageRepository {
	return &ProcessedMessageRepository{db: db}
}

// Claim records externalMessageID if not previously seen and reports whether
// this caller won the claim. The unique constraint on external_message_id
// makes the claim atomic: concurrent retries race on the insert, and exactly
// one sees RowsAffected == 1. Never read-then-write.
func (r *ProcessedMessageRepository) Claim(ctx context.Context, externalMessageID string, channel types.Channel) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO processed_messages (external_message_id, channel, processed_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (external_message_id) DO NOTHING`,
		externalMessageID,
		string(channel),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to claim message id", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeOlderThan removes claims older than the cutoff, returning the purged
// rows so the retention worker can archive them. WhatsApp does not retry
// deliveries beyond a few days, so claims past the retention window can no
// longer collide with live traffic.
func (r *ProcessedMessageRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) ([]types.ProcessedMessage, error) {
	rows, err := r.db.Query(ctx,
		`DELETE FROM processed_messages
		 WHERE processed_at < $1
		 RETURNING external_message_id, channel, processed_at`,
		cutoff,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to purge processed messages", err)
	}
	defer rows.Close()

	var purged []types.ProcessedMessage
	for rows.Next() {
		var m types.ProcessedMessage
		if err := rows.Scan(&m.ExternalMessageID, &m.Channel, &m.ProcessedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan purged message", err)
		}
		purged = append(purged, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating purged messages", err)
	}

	return purged, nil
}
