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

// maxInteractiveButtons is the WhatsApp Cloud API limit on reply buttons per
// interactive message.
const maxInteractiveButtons = 3

// maxButtonTitleLen is the Cloud API limit on reply button titles.
const maxButtonTitleLen = 20

// maxMediaDownloadSize bounds media downloads (task verification photos,
// voice notes) to 16 MB, the Cloud API's own media ceiling.
const maxMediaDownloadSize = 16 << 20

// SendResult carries the provider-side identity of an accepted outbound
// message: the wamid used to correlate delivery-status callbacks, plus the
// raw response body retained for the delivery audit log.
type SendResult struct {
	MessageID string
	Raw       types.ResponseData
}

// Button is one reply button on an interactive message.
type Button struct {
	ID    string
	Title string
}

// WhatsAppClient implements outbound messaging against the WhatsApp Cloud
// API (Graph API messages endpoint) through BaseClient. One client instance
// serves one phone number id.
type WhatsAppClient struct {
	base   *BaseClient
	cfg    config.WhatsAppConfig
	logger *slog.Logger
}

// NewWhatsAppClient creates a WhatsAppClient. The httpClient timeout should
// match cfg.Timeout.
func NewWhatsAppClient(httpClient *http.Client, cfg config.WhatsAppConfig, logger *slog.Logger) *WhatsAppClient {
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"whatsapp",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Mizan/1.0",
	)

	return &WhatsAppClient{
		base:   base,
		cfg:    cfg,
		logger: logger,
	}
}

// NewWhatsAppClientWithBase creates a WhatsAppClient over a pre-configured
// BaseClient, for tests that need to control retry behavior.
func NewWhatsAppClientWithBase(base *BaseClient, cfg config.WhatsAppConfig, logger *slog.Logger) *WhatsAppClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsAppClient{base: base, cfg: cfg, logger: logger}
}

// messagesURL is the Graph API messages endpoint for the configured phone
// number id.
func (c *WhatsAppClient) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages",
		strings.TrimSuffix(c.cfg.BaseURL, "/"),
		c.cfg.APIVersion,
		c.cfg.PhoneNumberID,
	)
}

// SendTemplate sends a pre-approved template message with body parameters.
// Templates are the only payload accepted outside the 24-hour customer
// service window, so they are always the first rung of the fallback chain.
func (c *WhatsAppClient) SendTemplate(ctx context.Context, to, templateName string, bodyParams []string) (*SendResult, error) {
	params := make([]map[string]any, 0, len(bodyParams))
	for _, p := range bodyParams {
		params = append(params, map[string]any{"type": "text", "text": p})
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]any{
			"name":     templateName,
			"language": map[string]any{"code": c.cfg.LanguageCode},
		},
	}
	if len(params) > 0 {
		payload["template"].(map[string]any)["components"] = []map[string]any{
			{"type": "body", "parameters": params},
		}
	}

	return c.send(ctx, "SendTemplate", payload)
}

// SendInteractiveButtons sends an interactive message with up to three reply
// buttons. Extra buttons are dropped and titles are truncated to the Cloud
// API's 20-character limit.
func (c *WhatsAppClient) SendInteractiveButtons(ctx context.Context, to, bodyText string, buttons []Button) (*SendResult, error) {
	if len(buttons) > maxInteractiveButtons {
		buttons = buttons[:maxInteractiveButtons]
	}

	actionButtons := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		title := b.Title
		if len(title) > maxButtonTitleLen {
			title = title[:maxButtonTitleLen]
		}
		actionButtons = append(actionButtons, map[string]any{
			"type":  "reply",
			"reply": map[string]any{"id": b.ID, "title": title},
		})
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]any{"text": bodyText},
			"action": map[string]any{"buttons": actionButtons},
		},
	}

	return c.send(ctx, "SendInteractiveButtons", payload)
}

// SendLocationRequest sends a native location request message. The user's
// WhatsApp client renders a "Send location" button that shares device GPS.
func (c *WhatsAppClient) SendLocationRequest(ctx context.Context, to, bodyText string) (*SendResult, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "location_request_message",
			"body":   map[string]any{"text": bodyText},
			"action": map[string]any{"name": "send_location"},
		},
	}

	return c.send(ctx, "SendLocationRequest", payload)
}

// SendFlow sends an interactive Flow message that opens a structured form.
func (c *WhatsAppClient) SendFlow(ctx context.Context, to, bodyText, flowID, flowToken, ctaText string) (*SendResult, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type": "flow",
			"body": map[string]any{"text": bodyText},
			"action": map[string]any{
				"name": "flow",
				"parameters": map[string]any{
					"flow_message_version": "3",
					"flow_id":              flowID,
					"flow_token":           flowToken,
					"flow_cta":             ctaText,
					"flow_action":          "navigate",
				},
			},
		},
	}

	return c.send(ctx, "SendFlow", payload)
}

// SendText sends a plain text message. Only deliverable inside the 24-hour
// customer service window; the dispatcher uses it as the last fallback rung.
func (c *WhatsAppClient) SendText(ctx context.Context, to, body string) (*SendResult, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": body, "preview_url": false},
	}

	return c.send(ctx, "SendText", payload)
}

// send posts a messages payload and extracts the wamid from the response.
func (c *WhatsAppClient) send(ctx context.Context, operation string, payload map[string]any) (*SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			operation+": failed to marshal message payload",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			operation+": failed to create request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapTransportError(operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamWhatsApp,
			operation+": failed to read response body",
			err,
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.mapAPIError(operation, resp.StatusCode, respBody)
	}

	var parsed struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Messages) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamWhatsApp,
			operation+": response did not contain a message id",
			err,
		)
	}

	raw := types.ResponseData{}
	_ = json.Unmarshal(respBody, &raw)

	return &SendResult{
		MessageID: parsed.Messages[0].ID,
		Raw:       raw,
	}, nil
}

// FetchMediaURL resolves a media id (from an inbound image or audio message)
// to its short-lived download URL.
func (c *WhatsAppClient) FetchMediaURL(ctx context.Context, mediaID string) (string, error) {
	reqURL := fmt.Sprintf("%s/%s/%s",
		strings.TrimSuffix(c.cfg.BaseURL, "/"),
		c.cfg.APIVersion,
		mediaID,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"FetchMediaURL: failed to create request",
			err,
		)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.base.Do(req)
	if err != nil {
		return "", c.wrapTransportError("FetchMediaURL", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamWhatsApp,
			"FetchMediaURL: failed to read response body",
			err,
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.mapAPIError("FetchMediaURL", resp.StatusCode, respBody)
	}

	var parsed struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.URL == "" {
		return "", types.NewAppError(
			types.ErrCodeUpstreamWhatsApp,
			"FetchMediaURL: response did not contain a url",
			err,
		)
	}

	return parsed.URL, nil
}

// DownloadMedia retrieves media bytes from a URL previously resolved by
// FetchMediaURL. The download is authenticated with the same access token.
func (c *WhatsAppClient) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"DownloadMedia: failed to create request",
			err,
		)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, "", c.wrapTransportError("DownloadMedia", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", types.NewAppError(
			types.ErrCodeUpstreamWhatsApp,
			fmt.Sprintf("DownloadMedia: media host returned %d", resp.StatusCode),
			nil,
		)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaDownloadSize))
	if err != nil {
		return nil, "", types.NewAppError(
			types.ErrCodeUpstreamWhatsApp,
			"DownloadMedia: failed to read media body",
			err,
		)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// mapAPIError translates a Graph API error body into a types.AppError. The
// raw body is carried in Details for the delivery audit log.
func (c *WhatsAppClient) mapAPIError(operation string, statusCode int, body []byte) error {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	msg := string(body)
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamWhatsApp,
		fmt.Sprintf("%s: WhatsApp API error (%d): %s", operation, statusCode, msg),
		nil,
		map[string]any{
			"status_code":  statusCode,
			"provider_code": parsed.Error.Code,
		},
	)
}

// wrapTransportError wraps a BaseClient transport error with context.
func (c *WhatsAppClient) wrapTransportError(operation string, err error) error {
	if _, ok := types.AsAppError(err); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamWhatsApp,
		fmt.Sprintf("%s: WhatsApp request failed: %v", operation, err),
		err,
	)
}
