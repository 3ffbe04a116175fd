package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"mizan/internal/types"
)

// SessionRepository provides data access for the wa_sessions table, the
// per-phone conversational state store. There is at most one row per
// phone_key (unique constraint).
//
// Writes go through an optimistic compare-and-swap on the version column so
// two workers processing retried deliveries of the same webhook cannot
// silently overwrite each other's state.
type SessionRepository struct {
	db DBTX
}

var _ types.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new SessionRepository backed by the given
// database connection (pool or transaction).
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// GetOrCreate returns the session for phoneKey, creating an idle one if none
// exists. Creation is idempotent under concurrent callers: the insert is an
// ON CONFLICT DO NOTHING followed by a read, so exactly one row survives.
func (r *SessionRepository) GetOrCreate(ctx context.Context, phoneKey string) (*types.Session, error) {
	_, err := r.db.Exec(ctx,
		`INSERT INTO wa_sessions (phone_key, state, context)
		 VALUES ($1, $2, '{}')
		 ON CONFLICT (phone_key) DO NOTHING`,
		phoneKey,
		string(types.StateIdle),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}

	row := r.db.QueryRow(ctx,
		`SELECT id, phone_key, user_id, state, context, version,
		        last_interaction_at, created_at
		 FROM wa_sessions
		 WHERE phone_key = $1`,
		phoneKey,
	)

	var s types.Session
	err = row.Scan(
		&s.ID,
		&s.PhoneKey,
		&s.UserID,
		&s.State,
		&s.Context,
		&s.Version,
		&s.LastInteractionAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load session", err)
	}
	return &s, nil
}

// Save persists state, context, user link and last-interaction time. The
// write is a compare-and-swap on Version: when the stored version no longer
// matches, nothing is mutated and conflict_concurrent_modification is
// returned so the caller can re-read and re-apply.
func (r *SessionRepository) Save(ctx context.Context, s *types.Session) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE wa_sessions SET
			state = $1,
			context = $2,
			user_id = $3,
			last_interaction_at = $4,
			version = version + 1
		 WHERE id = $5 AND version = $6`,
		string(s.State),
		s.Context,
		s.UserID,
		s.LastInteractionAt,
		s.ID,
		s.Version,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save session", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(
			types.ErrCodeConflictConcurrent,
			"session was modified concurrently",
			nil,
		)
	}

	s.Version++
	return nil
}

// Reset soft-resets the session to idle with an empty context. The version
// still advances so in-flight CAS writes against the old state fail.
func (r *SessionRepository) Reset(ctx context.Context, phoneKey string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE wa_sessions SET
			state = $1,
			context = '{}',
			version = version + 1,
			last_interaction_at = NOW()
		 WHERE phone_key = $2`,
		string(types.StateIdle),
		phoneKey,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reset session", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSession, "session not found", nil)
	}
	return nil
}

// Get returns the session for phoneKey without creating one. Returns nil, nil
// when no session exists.
func (r *SessionRepository) Get(ctx context.Context, phoneKey string) (*types.Session, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, phone_key, user_id, state, context, version,
		        last_interaction_at, created_at
		 FROM wa_sessions
		 WHERE phone_key = $1`,
		phoneKey,
	)

	var s types.Session
	err := row.Scan(
		&s.ID,
		&s.PhoneKey,
		&s.UserID,
		&s.State,
		&s.Context,
		&s.Version,
		&s.LastInteractionAt,
		&s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load session", err)
	}
	return &s, nil
}
