// Package config defines the global configuration structure for the Mizan
// messaging core. Configuration is loaded once at process initialization and
// is immutable thereafter, following 12-Factor principles: values come from
// the OS environment, with a local .env file as a development convenience.
//
// Any missing required value or invalid format fails the process immediately
// on startup (fail fast).
package config

import (
	"time"
)

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"mizan-messaging"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	WhatsApp WhatsAppConfig
	Push     PushConfig
	Email    EmailConfig
	Redis    RedisConfig
	AWS      AWSConfig
	Agent    AgentConfig
	Archive  ArchiveConfig
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`

	// RequestTimeout bounds webhook processing; the provider retries on
	// timeout, so this should stay below the provider's own deadline.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// WhatsAppConfig holds Cloud API credentials and webhook secrets.
type WhatsAppConfig struct {
	AccessToken   string `envconfig:"WHATSAPP_ACCESS_TOKEN" validate:"required"`
	PhoneNumberID string `envconfig:"WHATSAPP_PHONE_NUMBER_ID" validate:"required"`
	APIVersion    string `envconfig:"WHATSAPP_API_VERSION" default:"v22.0"`
	BaseURL       string `envconfig:"WHATSAPP_BASE_URL" default:"https://graph.facebook.com"`

	// VerifyToken answers the GET verification handshake.
	VerifyToken string `envconfig:"WHATSAPP_VERIFY_TOKEN" validate:"required"`

	// AppSecret enables X-Hub-Signature-256 validation on POST when set.
	AppSecret string `envconfig:"WHATSAPP_APP_SECRET"`

	// Approved template names.
	NotificationTemplate    string `envconfig:"WHATSAPP_TEMPLATE_NOTIFICATION" default:"mizan_notification"`
	ClockInLocationTemplate string `envconfig:"WHATSAPP_TEMPLATE_CLOCK_IN_LOCATION" default:"clock_in_location_request"`
	LanguageCode            string `envconfig:"WHATSAPP_TEMPLATE_LANGUAGE" default:"en_US"`

	Timeout time.Duration `envconfig:"WHATSAPP_TIMEOUT" default:"10s"`
}

// PushConfig holds FCM-style push delivery settings.
type PushConfig struct {
	Endpoint    string        `envconfig:"PUSH_ENDPOINT" default:"https://fcm.googleapis.com/v1"`
	ProjectID   string        `envconfig:"PUSH_PROJECT_ID"`
	AccessToken string        `envconfig:"PUSH_ACCESS_TOKEN"`
	Timeout     time.Duration `envconfig:"PUSH_TIMEOUT" default:"10s"`
}

// EmailConfig holds email delivery provider credentials.
type EmailConfig struct {
	SendGridAPIKey string        `envconfig:"SENDGRID_API_KEY"`
	FromAddress    string        `envconfig:"EMAIL_FROM_ADDRESS" default:"team@mizan.app"`
	FromName       string        `envconfig:"EMAIL_FROM_NAME" default:"Mizan"`
	Timeout        time.Duration `envconfig:"EMAIL_TIMEOUT" default:"10s"`
}

// RedisConfig holds the pub/sub connection for cross-instance in-app fanout.
// An empty URL keeps the in-process hub as the only publisher.
type RedisConfig struct {
	URL     string `envconfig:"REDIS_URL"`
	Channel string `envconfig:"REDIS_INAPP_CHANNEL" default:"mizan:inapp"`
}

// AWSConfig holds queue and metrics configuration for the workers.
type AWSConfig struct {
	Region            string `envconfig:"AWS_REGION" default:"us-east-1"`
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS"`
	MetricsNamespace  string `envconfig:"METRICS_NAMESPACE" default:"Mizan/Notifications"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// AgentConfig guards the agent relay endpoint. The key is stored as a bcrypt
// hash; the plaintext never lives in configuration at rest.
type AgentConfig struct {
	APIKeyHash string `envconfig:"AGENT_API_KEY_HASH"`

	// TranscriptionAPIKey enables Whisper transcription of voice incident
	// reports when set.
	TranscriptionAPIKey string        `envconfig:"OPENAI_API_KEY"`
	TranscriptionURL    string        `envconfig:"TRANSCRIPTION_URL" default:"https://api.openai.com/v1/audio/transcriptions"`
	RelayTimeout        time.Duration `envconfig:"AGENT_RELAY_TIMEOUT" default:"25s"`
}

// ArchiveConfig tunes the retention worker.
type ArchiveConfig struct {
	Dir                  string        `envconfig:"ARCHIVE_DIR" default:"/var/lib/mizan/archive"`
	DeliveryLogRetention time.Duration `envconfig:"DELIVERY_LOG_RETENTION" default:"2160h"` // 90 days
	ProcessedIDRetention time.Duration `envconfig:"PROCESSED_ID_RETENTION" default:"720h"`  // 30 days
}
