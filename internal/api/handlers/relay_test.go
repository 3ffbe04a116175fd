package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"mizan/internal/config"
	corepkg "mizan/internal/notifications/core"
	"mizan/internal/types"
)

type recordingDispatcher struct {
	target   corepkg.DispatchTarget
	channels []types.Channel
	override bool
	calls    int
}

func (d *recordingDispatcher) Dispatch(_ context.Context, target corepkg.DispatchTarget, channels []types.Channel, override bool) (*corepkg.DispatchResult, error) {
	d.calls++
	d.target = target
	d.channels = channels
	d.override = override
	return &corepkg.DispatchResult{
		Notification: &types.Notification{ID: "n-1", RecipientID: "user-1"},
		Sent:         types.ChannelList{types.ChannelApp},
		OK:           true,
	}, nil
}

func newRelayRouter(t *testing.T, dispatcher corepkg.Dispatcher) chi.Router {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("agent-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.AgentConfig{APIKeyHash: string(hash), RelayTimeout: 5 * time.Second}
	h := NewAgentRelay(cfg, dispatcher, discardLogger{})
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func relayRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/agent/whatsapp/send", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Agent-Key", "agent-secret")
	return req
}

func TestRelaySendDispatches(t *testing.T) {
	d := &recordingDispatcher{}
	router := newRelayRouter(t, d)

	req := relayRequest(`{
		"recipient_id": "user-1",
		"sender_id": "svc-scheduler",
		"title": "Shift assigned",
		"message": "You were assigned the Friday evening shift.",
		"notification_type": "SHIFT_ASSIGNED",
		"priority": "HIGH",
		"channels": ["whatsapp", "push"]
	}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, d.calls)

	target, ok := d.target.(corepkg.NewNotification)
	require.True(t, ok)
	assert.Equal(t, "user-1", target.RecipientID)
	require.NotNil(t, target.SenderID)
	assert.Equal(t, "svc-scheduler", *target.SenderID)
	assert.Equal(t, types.NotifShiftAssigned, target.Type)
	assert.Equal(t, types.PriorityHigh, target.Priority)
	assert.Equal(t, []types.Channel{types.ChannelWhatsApp, types.ChannelPush}, d.channels)
	assert.False(t, d.override)
}

func TestRelaySendDefaults(t *testing.T) {
	d := &recordingDispatcher{}
	router := newRelayRouter(t, d)

	req := relayRequest(`{"recipient_id": "user-1", "title": "Hi", "message": "Hello"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	target := d.target.(corepkg.NewNotification)
	assert.Equal(t, types.NotifOther, target.Type)
	assert.Equal(t, types.PriorityNormal, target.Priority)
	assert.Equal(t, []types.Channel{types.ChannelApp, types.ChannelWhatsApp}, d.channels)
	assert.Nil(t, target.SenderID)
}

func TestRelaySendRequiresKey(t *testing.T) {
	d := &recordingDispatcher{}
	router := newRelayRouter(t, d)

	req := relayRequest(`{"recipient_id": "user-1", "title": "Hi", "message": "Hello"}`)
	req.Header.Del("X-Agent-Key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(types.ErrCodeAuthAgentKey))
	assert.Zero(t, d.calls)
}

func TestRelaySendRejectsWrongKey(t *testing.T) {
	d := &recordingDispatcher{}
	router := newRelayRouter(t, d)

	req := relayRequest(`{"recipient_id": "user-1", "title": "Hi", "message": "Hello"}`)
	req.Header.Set("X-Agent-Key", "not-the-secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, d.calls)
}

func TestRelaySendRejectsWhenNoHashConfigured(t *testing.T) {
	// An unset hash must fail closed, not open.
	d := &recordingDispatcher{}
	h := NewAgentRelay(config.AgentConfig{RelayTimeout: time.Second}, d, discardLogger{})
	r := chi.NewRouter()
	h.Register(r)

	req := relayRequest(`{"recipient_id": "user-1", "title": "Hi", "message": "Hello"}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, d.calls)
}

func TestRelaySendValidatesInput(t *testing.T) {
	d := &recordingDispatcher{}
	router := newRelayRouter(t, d)

	tests := []struct {
		name string
		body string
	}{
		{"missing recipient", `{"title": "Hi", "message": "Hello"}`},
		{"missing title", `{"recipient_id": "user-1", "message": "Hello"}`},
		{"bad type", `{"recipient_id": "user-1", "title": "Hi", "message": "Hello", "notification_type": "NOT_A_TYPE"}`},
		{"bad channel", `{"recipient_id": "user-1", "title": "Hi", "message": "Hello", "channels": ["fax"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, relayRequest(tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, d.calls)
		})
	}
}

func TestRelaySendRejectsUnknownFields(t *testing.T) {
	d := &recordingDispatcher{}
	router := newRelayRouter(t, d)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, relayRequest(`{"recipient_id": "user-1", "title": "Hi", "message": "Hello", "surprise": 1}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(types.ErrCodeValidationBadJSON))
}
