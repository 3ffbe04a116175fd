// Package core provides the shared notification dispatch infrastructure used
// by the API and the queue worker. It centralizes preference gating, channel
// fan-out, the delivery audit log, retry policy, and observability, ensuring
// every channel behaves the same regardless of which process triggers it.
package core

import (
	"context"
	"time"

	"mizan/internal/types"
)

// DispatchTarget identifies what the dispatcher should deliver: either a new
// logical notification to create, or an existing row created upstream
// (announcements, scheduled sends) that must not be duplicated. Exactly one
// concrete type satisfies each dispatch.
type DispatchTarget interface {
	isDispatchTarget()
}

// NewNotification asks the dispatcher to create the notification row before
// fan-out.
type NewNotification struct {
	RecipientID string
	SenderID    *string
	Title       string
	Message     string
	Type        types.NotificationType
	Priority    types.NotificationPriority
}

func (NewNotification) isDispatchTarget() {}

// ExistingNotification asks the dispatcher to deliver a row that already
// exists. The dispatcher decorates it with delivery results instead of
// creating a duplicate.
type ExistingNotification struct {
	ID string
}

func (ExistingNotification) isDispatchTarget() {}

// DispatchResult summarizes a completed fan-out.
type DispatchResult struct {
	Notification *types.Notification

	// Sent lists the channels whose send was accepted by the provider.
	Sent types.ChannelList

	// Status maps every attempted channel to its terminal outcome.
	Status types.DeliveryStatusMap

	// OK is true when at least one channel succeeded.
	OK bool
}

// Dispatcher is the multi-channel notification dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, target DispatchTarget, channels []types.Channel, override bool) (*DispatchResult, error)
}

// ChannelOutcome is what a channel sender reports on success.
type ChannelOutcome struct {
	// ExternalID is the provider-side message id (wamid, SendGrid message
	// id). Empty for channels without provider receipts (in-app).
	ExternalID string

	// RecipientAddress is the resolved address the send went to (phone,
	// email, user id for in-app).
	RecipientAddress string
}

// AttemptRecorder receives one entry per outbound delivery attempt. The
// WhatsApp channel records multiple entries per dispatch when it walks its
// fallback chain; every rung leaves an audit row.
type AttemptRecorder interface {
	Record(ctx context.Context, e *types.DeliveryLogEntry)
}

// ChannelSender delivers one notification on one channel. Implementations
// resolve the recipient address themselves from the staff projection and
// record every provider attempt through the recorder.
type ChannelSender interface {
	Channel() types.Channel
	Send(ctx context.Context, recipient *types.Staff, n *types.Notification, rec AttemptRecorder) (*ChannelOutcome, error)
}

// InAppPublisher pushes an in-app event toward connected clients. The
// websocket hub implements it directly; the Redis publisher implements it
// for cross-instance fan-out. Injected so the dispatcher core stays free of
// transport concerns.
type InAppPublisher interface {
	PublishToUser(ctx context.Context, userID string, ev types.InAppEvent) error
}

// MetricResult categorizes a delivery outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
	MetricSkipped MetricResult = "skipped"
)

// NotificationMetrics abstracts CloudWatch/telemetry operations for the
// notification system.
type NotificationMetrics interface {
	RecordDelivery(ctx context.Context, channel types.Channel, result MetricResult)
	RecordLatency(ctx context.Context, channel types.Channel, duration time.Duration)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// NoopMetrics discards all metrics. Used in tests and local development.
type NoopMetrics struct{}

var _ NotificationMetrics = NoopMetrics{}

func (NoopMetrics) RecordDelivery(context.Context, types.Channel, MetricResult) {}
func (NoopMetrics) RecordLatency(context.Context, types.Channel, time.Duration) {}
func (NoopMetrics) RecordQueueLag(context.Context, time.Duration)               {}

// RetryPolicy defines the exponential backoff parameters for queued
// re-dispatch after a failed fan-out.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// QueueRetryPolicy is the standard policy for the notification queue. The
// MaxDelay matches the SQS DelaySeconds ceiling of 15 minutes.
var QueueRetryPolicy = RetryPolicy{
	MaxAttempts:   3,
	BaseDelay:     30 * time.Second,
	MaxDelay:      900 * time.Second,
	BackoffFactor: 2.0,
}

// CalculateNextRetry computes the delay before the next retry attempt using
// exponential backoff: delay = min(BaseDelay * BackoffFactor^attempt, MaxDelay).
func CalculateNextRetry(policy RetryPolicy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(policy.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= policy.BackoffFactor
	}

	d := time.Duration(delay)
	if d > policy.MaxDelay {
		d = policy.MaxDelay
	}
	if d < 0 {
		// Guard against overflow
		d = policy.MaxDelay
	}

	return d
}
