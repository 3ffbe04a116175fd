package types

import (
	"context"
	"time"
)

// Logger defines the structured logging interface used throughout the
// platform. Wired to slog at the edges; faked in tests.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// SessionRepository is the session store keyed by normalized phone number.
type SessionRepository interface {
	// GetOrCreate returns the session for phoneKey, creating an idle one if
	// none exists. Creation is idempotent under concurrent callers.
	GetOrCreate(ctx context.Context, phoneKey string) (*Session, error)

	// Save persists state, context, user link and last-interaction time.
	// The write is a compare-and-swap on Session.Version; a stale version
	// fails with conflict_concurrent_modification and no mutation.
	Save(ctx context.Context, s *Session) error

	// Reset soft-resets the session to idle with an empty context.
	Reset(ctx context.Context, phoneKey string) error
}

// ProcessedMessageRepository is the inbound idempotency guard.
type ProcessedMessageRepository interface {
	// Claim records externalMessageID if not previously seen. Returns true
	// when this caller won the claim. Backed by a unique-constraint insert,
	// never read-then-write.
	Claim(ctx context.Context, externalMessageID string, channel Channel) (bool, error)

	// PurgeOlderThan removes claims older than the cutoff, returning the
	// purged rows for archival.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) ([]ProcessedMessage, error)
}

// NotificationRepository provides access to logical notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string) (*Notification, error)
	ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]Notification, error)

	// SetDeliveryOutcome persists the post-fanout ChannelsSent and
	// DeliveryStatus fields. Called exactly once per dispatch.
	SetDeliveryOutcome(ctx context.Context, id string, sent ChannelList, status DeliveryStatusMap) error

	// MarkRead sets ReadAt for the recipient's notification.
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) error
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) error

	// SetReadAtIfUnset propagates a provider READ receipt to the parent
	// notification without overwriting an earlier read time.
	SetReadAtIfUnset(ctx context.Context, id string, at time.Time) error
}

// DeliveryLogRepository is the append-only per-channel audit log.
type DeliveryLogRepository interface {
	// Append inserts one attempt row. Retries append new rows.
	Append(ctx context.Context, e *DeliveryLogEntry) error

	// FindByExternalID locates the attempt a provider callback references.
	// Returns nil, nil when unknown (callbacks may reference messages sent
	// outside this system).
	FindByExternalID(ctx context.Context, externalID string) (*DeliveryLogEntry, error)

	// TransitionStatus applies a monotonic status transition to an entry and
	// sets DeliveredAt once on the first DELIVERED/READ. Illegal (stale or
	// post-terminal) transitions return false with no mutation.
	TransitionStatus(ctx context.Context, entryID string, next DeliveryStatus, at time.Time) (bool, error)

	// PurgeTerminalOlderThan removes terminal-status rows older than the
	// cutoff, returning the purged rows for archival.
	PurgeTerminalOlderThan(ctx context.Context, cutoff time.Time) ([]DeliveryLogEntry, error)
}

// ChecklistProgressRepository persists checklist walkthrough state.
type ChecklistProgressRepository interface {
	Create(ctx context.Context, p *ChecklistProgress) error
	Get(ctx context.Context, id string) (*ChecklistProgress, error)
	// GetActive returns the IN_PROGRESS progress for (shiftID, staffID),
	// or nil, nil when none exists.
	GetActive(ctx context.Context, shiftID, staffID string) (*ChecklistProgress, error)
	Save(ctx context.Context, p *ChecklistProgress) error
}

// StaffDirectory resolves users, preferences and device tokens. Owned by the
// accounts subsystem; consumed read-only here except for token registration.
type StaffDirectory interface {
	// FindByPhone matches a normalized phone to a staff member, tolerating
	// leading-zero and country-code variants. Best effort: a miss returns
	// nil, nil, not an error.
	FindByPhone(ctx context.Context, phoneKey string) (*Staff, error)
	Get(ctx context.Context, id string) (*Staff, error)

	// Preferences returns the user's channel preferences; a missing row
	// defaults to all channels enabled.
	Preferences(ctx context.Context, userID string) (NotificationPreferences, error)

	DeviceTokens(ctx context.Context, userID string) ([]DeviceToken, error)
	RegisterDeviceToken(ctx context.Context, userID, token string) error
	UnregisterDeviceToken(ctx context.Context, userID, token string) error

	Restaurant(ctx context.Context, id string) (*Restaurant, error)
	// Manager returns the manager to notify for a restaurant, or nil, nil
	// when none is configured.
	Manager(ctx context.Context, restaurantID string) (*Staff, error)
}

// ShiftOps is the narrow read/write surface onto the scheduling and
// timeclock subsystems used by the conversation engine.
type ShiftOps interface {
	// CurrentShift returns the staff member's shift covering now (with a
	// grace margin for early clock-ins), or nil, nil when none.
	CurrentShift(ctx context.Context, staffID string, now time.Time) (*Shift, error)
	GetShift(ctx context.Context, shiftID string) (*Shift, error)

	// ChecklistTasks returns the shift's tasks ordered by priority
	// (URGENT > HIGH > MEDIUM > LOW) then creation time.
	ChecklistTasks(ctx context.Context, shiftID string) ([]ShiftTask, error)
	GetTask(ctx context.Context, taskID string) (*ShiftTask, error)
	SetTaskStatus(ctx context.Context, taskID string, status TaskStatus) error
	AppendTaskNote(ctx context.Context, taskID, note string) error
	CreateVerification(ctx context.Context, rec *TaskVerificationRecord) error

	// OpenClockEvent returns the staff member's clock-in with no matching
	// clock-out, or nil, nil when not clocked in.
	OpenClockEvent(ctx context.Context, staffID string) (*ClockEvent, error)
	CreateClockEvent(ctx context.Context, ev *ClockEvent) error

	CreateIncident(ctx context.Context, inc *Incident) error
	CreateShiftReview(ctx context.Context, rev *ShiftReview) error
}

// RepositoryRegistry provides access to all repository instances.
type RepositoryRegistry interface {
	Sessions() SessionRepository
	ProcessedMessages() ProcessedMessageRepository
	Notifications() NotificationRepository
	DeliveryLog() DeliveryLogRepository
	ChecklistProgress() ChecklistProgressRepository
	Staff() StaffDirectory
	Shifts() ShiftOps
}
