package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mizan/internal/config"
	"mizan/internal/types"
)

type discardLogger struct{}

func (discardLogger) Info(string, ...any)        {}
func (discardLogger) Error(string, ...any)       {}
func (discardLogger) Warn(string, ...any)        {}
func (l discardLogger) With(...any) types.Logger { return l }

func newWebhookRouter(cfg config.WhatsAppConfig) chi.Router {
	// Verification and signature checks never reach the engine or the
	// reconciler, and an empty event batch has nothing to route, so the
	// pipeline stays nil here. Event routing is covered by the engine tests.
	h := NewWhatsAppWebhook(cfg, nil, nil, discardLogger{})
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func TestWebhookVerifyEchoesChallenge(t *testing.T) {
	router := newWebhookRouter(config.WhatsAppConfig{VerifyToken: "expected-token"})

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=expected-token&hub.challenge=1158201444", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1158201444", rec.Body.String())
}

func TestWebhookVerifyRejectsBadToken(t *testing.T) {
	router := newWebhookRouter(config.WhatsAppConfig{VerifyToken: "expected-token"})

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1158201444", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), string(types.ErrCodeAuthVerifyToken))
	assert.NotContains(t, rec.Body.String(), "1158201444")
}

func TestWebhookVerifyRejectsMissingMode(t *testing.T) {
	router := newWebhookRouter(config.WhatsAppConfig{VerifyToken: "expected-token"})

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.verify_token=expected-token&hub.challenge=x", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookEventsAcceptsSignedBody(t *testing.T) {
	router := newWebhookRouter(config.WhatsAppConfig{VerifyToken: "t", AppSecret: "app-secret"})

	body := `{"object":"whatsapp_business_account","entry":[]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signBody("app-secret", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
}

func TestWebhookEventsRejectsBadSignature(t *testing.T) {
	router := newWebhookRouter(config.WhatsAppConfig{VerifyToken: "t", AppSecret: "app-secret"})

	body := `{"object":"whatsapp_business_account","entry":[]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signBody("different-secret", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(types.ErrCodeAuthBadSignature))
}

func TestWebhookEventsRejectsMissingSignatureHeader(t *testing.T) {
	router := newWebhookRouter(config.WhatsAppConfig{VerifyToken: "t", AppSecret: "app-secret"})

	body := `{"object":"whatsapp_business_account","entry":[]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookEventsSignatureOptionalWithoutSecret(t *testing.T) {
	router := newWebhookRouter(config.WhatsAppConfig{VerifyToken: "t"})

	body := `{"object":"whatsapp_business_account","entry":[]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookEventsRejectsMalformedBody(t *testing.T) {
	router := newWebhookRouter(config.WhatsAppConfig{VerifyToken: "t"})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"validation_invalid_json"}`, rec.Body.String())
}
