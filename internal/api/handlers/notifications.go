package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mizan/internal/core"
	"mizan/internal/notifications/inapp"
	"mizan/internal/types"
)

// Notifications serves the v1 notification read API: listing, read state,
// device token registration and the websocket stream.
type Notifications struct {
	repos types.RepositoryRegistry
	hub   *inapp.Hub
	clock types.Clock
}

// NewNotifications creates the notifications handler.
func NewNotifications(repos types.RepositoryRegistry, hub *inapp.Hub, clock types.Clock) *Notifications {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Notifications{repos: repos, hub: hub, clock: clock}
}

// Register mounts the notification routes under /v1.
func (h *Notifications) Register(r chi.Router) {
	r.Get("/notifications", h.HandleList)
	r.Get("/notifications/ws", h.HandleWS)
	r.Post("/notifications/read-all", h.HandleMarkAllRead)
	r.Post("/notifications/{notificationID}/read", h.HandleMarkRead)

	r.Post("/device-tokens", h.HandleRegisterToken)
	r.Delete("/device-tokens", h.HandleUnregisterToken)
}

// userID extracts the authenticated user id injected by the gateway. The
// messaging core trusts the gateway; it performs no token validation itself.
func userID(r *http.Request) (string, error) {
	id := r.Header.Get("X-User-Id")
	if id == "" {
		return "", types.NewAppError(
			types.ErrCodeValidationMissing,
			"X-User-Id header is required",
			nil,
		)
	}
	return id, nil
}

// HandleList returns the user's notifications, newest first.
func (h *Notifications) HandleList(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := h.repos.Notifications().ListByRecipient(r.Context(), uid, limit, offset)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: items})
}

// HandleMarkRead marks one of the user's notifications read. Marking an
// already-read notification succeeds without changing the original read
// time.
func (h *Notifications) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "notificationID")
	if err := h.repos.Notifications().MarkRead(r.Context(), id, uid, h.clock.Now()); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"read": true}})
}

// HandleMarkAllRead marks all of the user's unread notifications read.
func (h *Notifications) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.repos.Notifications().MarkAllRead(r.Context(), uid, h.clock.Now()); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"read": true}})
}

type deviceTokenInput struct {
	Token string `json:"token"`
}

// HandleRegisterToken registers a push device token for the user.
// Registration is idempotent.
func (h *Notifications) HandleRegisterToken(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var input deviceTokenInput
	if err := core.DecodeJSON(w, r, &input); err != nil {
		core.Error(w, r, err)
		return
	}
	if input.Token == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissing, "token is required", nil))
		return
	}

	if err := h.repos.Staff().RegisterDeviceToken(r.Context(), uid, input.Token); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: map[string]bool{"registered": true}})
}

// HandleUnregisterToken removes a push device token for the user.
func (h *Notifications) HandleUnregisterToken(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var input deviceTokenInput
	if err := core.DecodeJSON(w, r, &input); err != nil {
		core.Error(w, r, err)
		return
	}
	if input.Token == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissing, "token is required", nil))
		return
	}

	if err := h.repos.Staff().UnregisterDeviceToken(r.Context(), uid, input.Token); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"unregistered": true}})
}

// HandleWS upgrades the connection to the in-app notification stream.
func (h *Notifications) HandleWS(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.hub.ServeWS(w, r, uid)
}
