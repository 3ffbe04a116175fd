// Command notify-worker consumes the notification queue and dispatches each
// message through the same multi-channel dispatcher the API uses. Failed
// dispatches are re-queued with exponential backoff until the retry budget
// is exhausted.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"mizan/internal/config"
	"mizan/internal/core"
	"mizan/internal/db"
	"mizan/internal/external"
	corepkg "mizan/internal/notifications/core"
	"mizan/internal/notifications/email"
	"mizan/internal/notifications/push"
	"mizan/internal/notifications/whatsapp"
	"mizan/internal/types"
)

type worker struct {
	dispatcher corepkg.Dispatcher
	publisher  *corepkg.QueuePublisher
	metrics    corepkg.NotificationMetrics
	clock      types.Clock
	logger     types.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("fatal", "error", err.Error())
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).
		With("service", cfg.Service, "component", "notify-worker")
	tlog := core.NewSlogAdapter(logger)

	ctx := context.Background()

	repos, err := db.NewRegistry(ctx, cfg.Database)
	if err != nil {
		logger.Error("fatal", "error", err.Error())
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("fatal", "error", err.Error())
		os.Exit(1)
	}
	endpoint := func(base *string) func(o *sqs.Options) {
		return func(o *sqs.Options) { o.BaseEndpoint = base }
	}
	var sqsClient *sqs.Client
	if cfg.AWS.EndpointURL != "" {
		sqsClient = sqs.NewFromConfig(awsCfg, endpoint(aws.String(cfg.AWS.EndpointURL)))
	} else {
		sqsClient = sqs.NewFromConfig(awsCfg)
	}

	var metrics corepkg.NotificationMetrics = corepkg.NoopMetrics{}
	if cfg.AWS.MetricsNamespace != "" {
		cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		metrics = corepkg.NewCloudWatchMetrics(cw, cfg.AWS.MetricsNamespace, tlog)
	}

	clock := types.RealClock{}
	recorder := corepkg.NewAuditRecorder(repos.DeliveryLog(), metrics, tlog)

	// No websocket hub in the worker: in-app delivery needs a connected
	// client on an API instance, so the worker has no app sender and the
	// dispatcher skips that channel with a warning.
	waClient := external.NewWhatsAppClient(&http.Client{Timeout: cfg.WhatsApp.Timeout}, cfg.WhatsApp, logger)
	senders := []corepkg.ChannelSender{
		whatsapp.NewChannel(waClient, cfg.WhatsApp, clock),
	}
	if cfg.Push.ProjectID != "" {
		fcm := external.NewFCMClient(&http.Client{Timeout: cfg.Push.Timeout}, cfg.Push, logger)
		senders = append(senders, push.NewChannel(fcm, repos.Staff(), clock, tlog))
	}
	if cfg.Email.SendGridAPIKey != "" {
		sendgrid := external.NewSendGridClient(&http.Client{Timeout: cfg.Email.Timeout}, cfg.Email, logger)
		senders = append(senders, email.NewChannel(sendgrid, clock))
	}

	w := &worker{
		dispatcher: corepkg.NewDispatcher(
			repos.Notifications(), repos.Staff(), senders, recorder, metrics, clock, tlog,
		),
		publisher: corepkg.NewQueuePublisher(sqsClient, cfg.AWS.NotificationQueue, tlog),
		metrics:   metrics,
		clock:     clock,
		logger:    tlog,
	}

	lambda.Start(w.Handle)
}

// Handle processes one SQS batch, reporting per-item failures so SQS only
// redelivers the records that actually failed.
func (w *worker) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var failures []events.SQSBatchItemFailure
	for _, record := range event.Records {
		if err := w.processRecord(ctx, record); err != nil {
			w.logger.Error("failed to process queue record",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

func (w *worker) processRecord(ctx context.Context, record events.SQSMessage) error {
	var msg types.QueuedNotification
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		// A body that never parses will never parse; dropping beats an
		// endless redelivery loop.
		w.logger.Error("dropping malformed queue message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	if !msg.EnqueuedAt.IsZero() {
		w.metrics.RecordQueueLag(ctx, w.clock.Now().Sub(msg.EnqueuedAt))
	}

	var target corepkg.DispatchTarget
	if msg.NotificationID != "" {
		target = corepkg.ExistingNotification{ID: msg.NotificationID}
	} else {
		target = corepkg.NewNotification{
			RecipientID: msg.RecipientID,
			Title:       msg.Title,
			Message:     msg.Message,
			Type:        msg.Type,
			Priority:    msg.Priority,
		}
	}

	result, err := w.dispatcher.Dispatch(ctx, target, msg.Channels, msg.Override)
	if err != nil {
		return fmt.Errorf("processRecord: dispatching: %w", err)
	}
	if result.OK {
		return nil
	}

	// Every channel failed. Re-queue with backoff while the budget lasts;
	// the attempt rows in the delivery log already tell the full story.
	if msg.RetryCount >= corepkg.QueueRetryPolicy.MaxAttempts {
		w.logger.Error("notification retries exhausted",
			"notification_id", result.Notification.ID,
			"recipient_id", msg.RecipientID,
			"retry_count", msg.RetryCount,
		)
		return nil
	}

	msg.NotificationID = result.Notification.ID
	delay := corepkg.CalculateNextRetry(corepkg.QueueRetryPolicy, msg.RetryCount)
	if err := w.publisher.Publish(ctx, msg, delay); err != nil {
		return fmt.Errorf("processRecord: re-queueing: %w", err)
	}

	w.logger.Info("notification re-queued for retry",
		"notification_id", result.Notification.ID,
		"retry_count", msg.RetryCount+1,
		"delay", delay.String(),
	)
	return nil
}
