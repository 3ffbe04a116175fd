package core

import (
	"context"

	"mizan/internal/types"
)

// Compile-time assertion that AuditRecorder implements AttemptRecorder.
var _ AttemptRecorder = (*AuditRecorder)(nil)

// AuditRecorder persists delivery attempts into the append-only delivery log
// and emits the matching metrics. Audit failures are logged and swallowed:
// losing one audit row must never fail a delivery that the provider already
// accepted.
type AuditRecorder struct {
	log     types.DeliveryLogRepository
	metrics NotificationMetrics
	logger  types.Logger
}

// NewAuditRecorder creates an AuditRecorder over the delivery log repository.
func NewAuditRecorder(log types.DeliveryLogRepository, metrics NotificationMetrics, logger types.Logger) *AuditRecorder {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &AuditRecorder{
		log:     log,
		metrics: metrics,
		logger:  logger,
	}
}

// Record appends one attempt row and emits a DeliveryAttempt metric.
func (a *AuditRecorder) Record(ctx context.Context, e *types.DeliveryLogEntry) {
	if err := a.log.Append(ctx, e); err != nil {
		a.logger.Error("failed to append delivery log entry",
			"error", err.Error(),
			"notification_id", e.NotificationID,
			"channel", string(e.Channel),
		)
	}

	result := MetricSuccess
	if e.Status == types.DeliveryFailed || e.Status == types.DeliveryBounced {
		result = MetricFailed
	}
	a.metrics.RecordDelivery(ctx, e.Channel, result)
}
