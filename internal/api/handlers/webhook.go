// Package handlers implements the HTTP-facing request handlers: the provider
// webhook intake and the v1 notification API.
package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/go-chi/chi/v5"

	"mizan/internal/agent"
	"mizan/internal/config"
	"mizan/internal/core"
	corepkg "mizan/internal/notifications/core"
	"mizan/internal/types"
)

// maxWebhookBody bounds webhook POST bodies. Provider batches stay far below
// this; anything larger is not a legitimate webhook.
const maxWebhookBody = 2 << 20

// WhatsAppWebhook serves the provider webhook: the GET verification
// handshake and the POST event intake feeding the conversation engine and
// the delivery reconciler.
type WhatsAppWebhook struct {
	cfg        config.WhatsAppConfig
	engine     *agent.Engine
	reconciler *corepkg.Reconciler
	logger     types.Logger
}

// NewWhatsAppWebhook creates the webhook handler.
func NewWhatsAppWebhook(cfg config.WhatsAppConfig, engine *agent.Engine, reconciler *corepkg.Reconciler, logger types.Logger) *WhatsAppWebhook {
	return &WhatsAppWebhook{cfg: cfg, engine: engine, reconciler: reconciler, logger: logger}
}

// Register mounts the webhook routes at the router root; the provider
// configuration carries no version prefix.
func (h *WhatsAppWebhook) Register(r chi.Router) {
	r.Get("/webhooks/whatsapp", h.HandleVerify)
	r.Post("/webhooks/whatsapp", h.HandleEvents)
}

// HandleVerify answers the provider's subscription handshake by echoing
// hub.challenge when the verify token matches.
func (h *WhatsAppWebhook) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.cfg.VerifyToken {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthVerifyToken,
			"webhook verification token mismatch",
			nil,
		))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// HandleEvents ingests one webhook POST. Individual event failures are
// logged and absorbed: the provider redelivers the whole batch on a non-2xx,
// and the idempotency guard would drop the already-processed half, so a 200
// with partial success loses less than a retry storm. The same reasoning
// applies to panics, which are answered with 200 here rather than the
// chassis recoverer's 500.
func (h *WhatsAppWebhook) HandleEvents(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rvr := recover(); rvr != nil {
			h.logger.Error("panic while processing webhook batch",
				"panic", fmt.Sprintf("%v", rvr),
				"stack", string(debug.Stack()),
			)
			core.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationBadJSON, "failed to read request body", err))
		return
	}

	if h.cfg.AppSecret != "" {
		if !validSignature(body, r.Header.Get("X-Hub-Signature-256"), h.cfg.AppSecret) {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeAuthBadSignature,
				"webhook signature verification failed",
				nil,
			))
			return
		}
	}

	events, err := agent.ParseWebhook(body)
	if err != nil {
		// The provider expects the success flag mirrored back, not the API
		// error envelope.
		core.JSON(w, r, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   string(types.ErrCodeValidationBadJSON),
		})
		return
	}

	ctx := r.Context()
	for _, msg := range events.Messages {
		if err := h.engine.HandleMessage(ctx, msg); err != nil {
			h.logger.Error("failed to process inbound message",
				"wamid", msg.WAMID,
				"error", err.Error(),
			)
		}
	}
	for _, cb := range events.Statuses {
		if err := h.reconciler.Apply(ctx, cb); err != nil {
			h.logger.Error("failed to apply delivery receipt",
				"external_id", cb.ExternalID,
				"error", err.Error(),
			)
		}
	}

	core.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// validSignature checks the X-Hub-Signature-256 header: "sha256=" followed
// by the hex HMAC-SHA256 of the raw body under the app secret.
func validSignature(body []byte, header, secret string) bool {
	provided, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(provided), []byte(expected))
}
