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

// PushMessage is the provider-neutral payload sent to device tokens.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// MulticastResult summarizes a fan-out to multiple device tokens.
type MulticastResult struct {
	SuccessCount int
	FailureCount int

	// FailedTokens lists tokens the provider rejected as unregistered, so
	// the caller can prune them from the directory.
	FailedTokens []string
}

// FCMClient implements push delivery against the FCM HTTP v1 API through
// BaseClient. The v1 API sends one message per request, so multicast loops
// over tokens and aggregates the outcome.
type FCMClient struct {
	base   *BaseClient
	cfg    config.PushConfig
	logger *slog.Logger
}

// NewFCMClient creates an FCMClient. The httpClient timeout should match
// cfg.Timeout.
func NewFCMClient(httpClient *http.Client, cfg config.PushConfig, logger *slog.Logger) *FCMClient {
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"fcm",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Mizan/1.0",
	)

	return &FCMClient{base: base, cfg: cfg, logger: logger}
}

// NewFCMClientWithBase creates an FCMClient over a pre-configured BaseClient.
func NewFCMClientWithBase(base *BaseClient, cfg config.PushConfig, logger *slog.Logger) *FCMClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &FCMClient{base: base, cfg: cfg, logger: logger}
}

// SendMulticast delivers the message to every token and aggregates per-token
// outcomes. A partially failed fan-out is not an error: the caller inspects
// SuccessCount to decide whether the push channel succeeded. An error is
// returned only when no token could be attempted at all.
func (c *FCMClient) SendMulticast(ctx context.Context, tokens []string, msg PushMessage) (*MulticastResult, error) {
	if len(tokens) == 0 {
		return &MulticastResult{}, nil
	}

	result := &MulticastResult{}
	var lastErr error

	for _, token := range tokens {
		err := c.sendOne(ctx, token, msg)
		if err == nil {
			result.SuccessCount++
			continue
		}

		result.FailureCount++
		lastErr = err
		if isUnregisteredToken(err) {
			result.FailedTokens = append(result.FailedTokens, token)
		}

		c.logger.Warn("push delivery failed for token",
			slog.String("error", err.Error()),
		)
	}

	if result.SuccessCount == 0 && lastErr != nil {
		return result, types.NewAppError(
			types.ErrCodeUpstreamPush,
			fmt.Sprintf("SendMulticast: all %d tokens failed", len(tokens)),
			lastErr,
		)
	}

	return result, nil
}

// sendOne posts a single FCM v1 message.
func (c *FCMClient) sendOne(ctx context.Context, token string, msg PushMessage) error {
	payload := map[string]any{
		"message": map[string]any{
			"token": token,
			"notification": map[string]any{
				"title": msg.Title,
				"body":  msg.Body,
			},
		},
	}
	if len(msg.Data) > 0 {
		payload["message"].(map[string]any)["data"] = msg.Data
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"sendOne: failed to marshal push payload",
			err,
		)
	}

	reqURL := fmt.Sprintf("%s/projects/%s/messages:send",
		strings.TrimSuffix(c.cfg.Endpoint, "/"),
		c.cfg.ProjectID,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"sendOne: failed to create request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.base.Do(req)
	if err != nil {
		if _, ok := types.AsAppError(err); ok {
			return err
		}
		return types.NewAppError(types.ErrCodeUpstreamPush, "sendOne: push request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	var parsed struct {
		Error struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(respBody, &parsed)

	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamPush,
		fmt.Sprintf("sendOne: FCM error (%d): %s", resp.StatusCode, parsed.Error.Message),
		nil,
		map[string]any{
			"status_code": resp.StatusCode,
			"fcm_status":  parsed.Error.Status,
		},
	)
}

// isUnregisteredToken reports whether the error indicates a stale device
// token (uninstalled app or rotated token).
func isUnregisteredToken(err error) bool {
	appErr, ok := types.AsAppError(err)
	if !ok || appErr.Details == nil {
		return false
	}
	status, _ := appErr.Details["fcm_status"].(string)
	return status == "UNREGISTERED" || status == "NOT_FOUND"
}
