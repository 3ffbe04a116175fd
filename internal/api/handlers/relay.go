package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"mizan/internal/config"
	"mizan/internal/core"
	corepkg "mizan/internal/notifications/core"
	"mizan/internal/types"
)

// AgentRelay serves the internal relay endpoint other backend services use
// to send a WhatsApp-first notification through the dispatcher. Access is
// guarded by a shared key; only its bcrypt hash lives in configuration.
type AgentRelay struct {
	cfg        config.AgentConfig
	dispatcher corepkg.Dispatcher
	validate   *validator.Validate
	logger     types.Logger
}

// NewAgentRelay creates the relay handler.
func NewAgentRelay(cfg config.AgentConfig, dispatcher corepkg.Dispatcher, logger types.Logger) *AgentRelay {
	return &AgentRelay{
		cfg:        cfg,
		dispatcher: dispatcher,
		validate:   validator.New(),
		logger:     logger,
	}
}

// Register mounts the relay route under /v1.
func (h *AgentRelay) Register(r chi.Router) {
	r.Post("/agent/whatsapp/send", h.HandleSend)
}

type relayInput struct {
	RecipientID string                     `json:"recipient_id" validate:"required"`
	SenderID    string                     `json:"sender_id"`
	Title       string                     `json:"title" validate:"required,max=200"`
	Message     string                     `json:"message" validate:"required,max=4000"`
	Type        types.NotificationType     `json:"notification_type" validate:"omitempty,oneof=SHIFT_ASSIGNED SHIFT_UPDATED SHIFT_CANCELLED ANNOUNCEMENT BREAK_REQUEST EMERGENCY INCIDENT OTHER"`
	Priority    types.NotificationPriority `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
	Channels    []types.Channel            `json:"channels" validate:"omitempty,dive,oneof=app whatsapp push email"`
	Override    bool                       `json:"override_preferences"`
}

// HandleSend authenticates the caller and dispatches the notification
// synchronously, returning the per-channel outcome.
func (h *AgentRelay) HandleSend(w http.ResponseWriter, r *http.Request) {
	if err := h.authenticate(r); err != nil {
		core.Error(w, r, err)
		return
	}

	var input relayInput
	if err := core.DecodeJSON(w, r, &input); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissing, err.Error(), err))
		return
	}

	if input.Type == "" {
		input.Type = types.NotifOther
	}
	if input.Priority == "" {
		input.Priority = types.PriorityNormal
	}
	channels := input.Channels
	if len(channels) == 0 {
		channels = []types.Channel{types.ChannelApp, types.ChannelWhatsApp}
	}

	target := corepkg.NewNotification{
		RecipientID: input.RecipientID,
		Title:       input.Title,
		Message:     input.Message,
		Type:        input.Type,
		Priority:    input.Priority,
	}
	if input.SenderID != "" {
		target.SenderID = &input.SenderID
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RelayTimeout)
	defer cancel()

	result, err := h.dispatcher.Dispatch(ctx, target, channels, input.Override)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// authenticate compares the caller's key against the configured bcrypt hash.
func (h *AgentRelay) authenticate(r *http.Request) error {
	key := r.Header.Get("X-Agent-Key")
	if h.cfg.APIKeyHash == "" || key == "" {
		return types.NewAppError(types.ErrCodeAuthAgentKey, "agent key required", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.cfg.APIKeyHash), []byte(key)); err != nil {
		return types.NewAppError(types.ErrCodeAuthAgentKey, "agent key rejected", err)
	}
	return nil
}
