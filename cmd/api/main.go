// Command api runs the Mizan messaging API: the WhatsApp webhook intake, the
// v1 notification endpoints and the websocket stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/redis/go-redis/v9"

	"mizan/internal/agent"
	"mizan/internal/api/handlers"
	"mizan/internal/config"
	"mizan/internal/core"
	"mizan/internal/db"
	"mizan/internal/external"
	corepkg "mizan/internal/notifications/core"
	"mizan/internal/notifications/email"
	"mizan/internal/notifications/inapp"
	"mizan/internal/notifications/push"
	"mizan/internal/notifications/whatsapp"
	"mizan/internal/types"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})).With("service", cfg.Service, "env", cfg.Environment)
	slog.SetDefault(logger)
	tlog := core.NewSlogAdapter(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := db.NewRegistry(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	clock := types.RealClock{}

	metrics := buildMetrics(ctx, cfg, logger, tlog)

	// In-app fan-out: the local hub always runs; with Redis configured, the
	// dispatcher publishes through Redis and a subscriber feeds this
	// instance's hub, so users connected to other instances are reached too.
	hub := inapp.NewHub(tlog)
	go hub.Run(ctx)

	var inAppPub corepkg.InAppPublisher = hub
	var redisPub *inapp.RedisPublisher
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		redisPub = inapp.NewRedisPublisher(redis.NewClient(opts), cfg.Redis.Channel, tlog)
		inAppPub = redisPub
		go func() {
			if err := redisPub.Subscribe(ctx, hub); err != nil && ctx.Err() == nil {
				logger.Error("in-app redis subscription stopped", "error", err.Error())
			}
		}()
	}

	waClient := external.NewWhatsAppClient(&http.Client{Timeout: cfg.WhatsApp.Timeout}, cfg.WhatsApp, logger)

	recorder := corepkg.NewAuditRecorder(repos.DeliveryLog(), metrics, tlog)
	senders := []corepkg.ChannelSender{
		inapp.NewChannel(inAppPub, clock),
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

	dispatcher := corepkg.NewDispatcher(
		repos.Notifications(), repos.Staff(), senders, recorder, metrics, clock, tlog,
	)
	reconciler := corepkg.NewReconciler(
		repos.DeliveryLog(), repos.Notifications(), repos.ProcessedMessages(), clock, tlog,
	)

	var transcriber agent.Transcriber
	if tc := external.NewTranscriptionClient(&http.Client{Timeout: 60 * time.Second}, cfg.Agent, logger); tc != nil {
		transcriber = tc
	}
	engine := agent.NewEngine(repos, waClient, cfg.WhatsApp, dispatcher, transcriber, clock, tlog)

	srv, err := core.NewServer(cfg, repos, logger)
	if err != nil {
		return fmt.Errorf("initializing server: %w", err)
	}

	notifH := handlers.NewNotifications(repos, hub, clock)
	relayH := handlers.NewAgentRelay(cfg.Agent, dispatcher, tlog)
	shiftsH := handlers.NewShifts(repos)
	webhookH := handlers.NewWhatsAppWebhook(cfg.WhatsApp, engine, reconciler, tlog)

	srv.V1Registrars = []core.RouteRegistrar{notifH.Register, relayH.Register, shiftsH.Register}
	srv.WebhookRegistrars = []core.RouteRegistrar{webhookH.Register}

	srv.HealthProbes = []core.HealthProbe{probe{"database", repos.Ping}}
	if redisPub != nil {
		srv.HealthProbes = append(srv.HealthProbes, probe{"redis", redisPub.Ping})
	}

	srv.MountRoutes()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", "error", err.Error())
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server resource shutdown failed", "error", err.Error())
		}
	}()

	logger.Info("api listening", "port", cfg.Server.Port)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// buildMetrics wires CloudWatch metrics, degrading to a no-op when AWS
// credentials are unavailable (local development).
func buildMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger, tlog types.Logger) corepkg.NotificationMetrics {
	if cfg.AWS.MetricsNamespace == "" {
		return corepkg.NoopMetrics{}
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Warn("cloudwatch metrics disabled", "error", err.Error())
		return corepkg.NoopMetrics{}
	}
	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	return corepkg.NewCloudWatchMetrics(client, cfg.AWS.MetricsNamespace, tlog)
}

// probe adapts a check function to the HealthProbe interface.
type probe struct {
	name  string
	check func(ctx context.Context) error
}

func (p probe) Name() string                    { return p.name }
func (p probe) Check(ctx context.Context) error { return p.check(ctx) }

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
