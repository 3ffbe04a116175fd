package types

import "time"

// QueuedNotification is the SQS message body for asynchronous dispatch
// (shift reminders, announcements). The notify-worker re-dispatches it
// through the same Dispatcher used for synchronous sends.
//
// Contract: publishers increment RetryCount BEFORE serializing, so the next
// consumer sees an accurate attempt number for backoff decisions.
type QueuedNotification struct {
	// NotificationID references an existing Notification row when the
	// producer already created one; empty means the worker creates it.
	NotificationID string `json:"notification_id,omitempty"`

	RecipientID string               `json:"recipient_id"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	Type        NotificationType     `json:"notification_type"`
	Priority    NotificationPriority `json:"priority"`
	Channels    []Channel            `json:"channels"`
	Override    bool                 `json:"override_preferences,omitempty"`

	RetryCount int       `json:"retry_count"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	TraceID    string    `json:"trace_id,omitempty"`
}

// InAppEvent is the payload pushed over the websocket (and the Redis fanout
// topic) for an in-app notification.
type InAppEvent struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"notification_type"`
	CreatedAt time.Time        `json:"created_at"`
	Read      bool             `json:"is_read"`
}
