package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mizan/internal/config"
	"mizan/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL. Overridable in tests
// via SendGridClientConfig.BaseURL.
const sendGridAPIBase = "https://api.sendgrid.com"

// EmailInput is the provider-neutral email payload.
type EmailInput struct {
	To       string
	ToName   string
	Subject  string
	TextBody string
	HTMLBody string

	// ReferenceID correlates the send with the internal notification id via
	// SendGrid custom_args, so event webhooks can be matched back.
	ReferenceID string
}

// SendGridClientConfig holds the configuration for creating a SendGridClient.
type SendGridClientConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	BaseURL     string // Override for testing; defaults to sendGridAPIBase
	Logger      *slog.Logger
}

// SendGridClient implements email delivery by making direct HTTP calls to the
// SendGrid v3 Mail Send API through BaseClient, routing all requests through
// the shared resilience infrastructure (circuit breaker, retries, error
// mapping) and making testing with httptest straightforward.
type SendGridClient struct {
	base        *BaseClient
	apiKey      string
	fromAddress string
	fromName    string
	baseURL     string
	logger      *slog.Logger
}

// NewSendGridClient creates a new SendGridClient from the email config. The
// httpClient timeout should match cfg.Timeout.
func NewSendGridClient(httpClient *http.Client, cfg config.EmailConfig, logger *slog.Logger) *SendGridClient {
	return NewSendGridClientWithConfig(httpClient, SendGridClientConfig{
		APIKey:      cfg.SendGridAPIKey,
		FromAddress: cfg.FromAddress,
		FromName:    cfg.FromName,
		Logger:      logger,
	})
}

// NewSendGridClientWithConfig creates a SendGridClient with explicit
// configuration, including a BaseURL override for tests.
func NewSendGridClientWithConfig(httpClient *http.Client, cfg SendGridClientConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"sendgrid",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Mizan/1.0",
	)

	return &SendGridClient{
		base:        base,
		apiKey:      cfg.APIKey,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		logger:      logger,
	}
}

// Send transmits an email using SendGrid's v3 Mail Send API. It returns the
// provider message ID (from the X-Message-Id response header) on success.
func (s *SendGridClient) Send(ctx context.Context, input EmailInput) (string, error) {
	payload := s.buildMailPayload(input)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal SendGrid mail payload",
			err,
		)
	}

	reqURL := s.baseURL + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create SendGrid mail send request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.base.Do(req)
	if err != nil {
		return "", s.wrapSendGridError("Send", err)
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode == http.StatusAccepted {
		return resp.Header.Get("X-Message-Id"), nil
	}

	return "", s.handleErrorResponse(resp, "Send")
}

// ---------------------------------------------------------------------------
// Payload Construction
// ---------------------------------------------------------------------------

// sendGridMailPayload represents the SendGrid v3 mail/send JSON request body.
type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	// custom_args allows correlation with internal notification IDs
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// buildMailPayload maps an EmailInput to the SendGrid v3 payload. SendGrid
// requires text/plain content before text/html.
func (s *SendGridClient) buildMailPayload(input EmailInput) sendGridMailPayload {
	content := []sendGridContent{
		{Type: "text/plain", Value: input.TextBody},
	}
	if input.HTMLBody != "" {
		content = append(content, sendGridContent{Type: "text/html", Value: input.HTMLBody})
	}

	payload := sendGridMailPayload{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: input.To, Name: input.ToName}}},
		},
		From: sendGridAddress{
			Email: s.fromAddress,
			Name:  s.fromName,
		},
		Subject: input.Subject,
		Content: content,
	}

	if input.ReferenceID != "" {
		payload.CustomArgs = map[string]string{
			"reference_id": input.ReferenceID,
		}
	}

	return payload
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// sendGridErrorResponse represents the JSON error body returned by SendGrid.
type sendGridErrorResponse struct {
	Errors []sendGridErrorDetail `json:"errors"`
}

type sendGridErrorDetail struct {
	Message string `json:"message"`
	Field   string `json:"field"`
	Help    string `json:"help"`
}

// handleErrorResponse reads a SendGrid error response and maps it to a
// types.AppError.
func (s *SendGridClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmail,
			fmt.Sprintf("%s: SendGrid returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var sgErr sendGridErrorResponse
	errMsg := ""
	if jsonErr := json.Unmarshal(body, &sgErr); jsonErr == nil && len(sgErr.Errors) > 0 {
		errMsg = sgErr.Errors[0].Message
	} else {
		errMsg = string(body)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: SendGrid rate limit exceeded", operation),
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: SendGrid server error: %s", operation, errMsg),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamEmail,
			fmt.Sprintf("%s: SendGrid error (%d): %s", operation, resp.StatusCode, errMsg),
			nil,
		)
	}
}

// wrapSendGridError wraps a BaseClient transport error with context.
func (s *SendGridClient) wrapSendGridError(operation string, err error) error {
	// AppErrors from BaseClient (circuit breaker, retries exhausted) already
	// carry the right error code.
	if _, ok := types.AsAppError(err); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamEmail,
		fmt.Sprintf("%s: SendGrid request failed: %v", operation, err),
		err,
	)
}
