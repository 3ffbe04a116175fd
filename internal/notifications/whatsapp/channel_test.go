package whatsapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"mizan/internal/config"
	"mizan/internal/external"
	corepkg "mizan/internal/notifications/core"
	"mizan/internal/types"
)

type stubClock struct{ t time.Time }

func (c stubClock) Now() time.Time { return c.t }

// rungAPI fails the configured payload kinds and records the order in which
// the channel tries them.
type rungAPI struct {
	failTemplate    bool
	failInteractive bool
	failLocation    bool
	failText        bool

	order []string
}

func (a *rungAPI) SendTemplate(_ context.Context, _, _ string, _ []string) (*external.SendResult, error) {
	a.order = append(a.order, "template")
	if a.failTemplate {
		return nil, errors.New("template rejected")
	}
	return &external.SendResult{MessageID: "wamid.tpl-1"}, nil
}

func (a *rungAPI) SendInteractiveButtons(_ context.Context, _, _ string, _ []external.Button) (*external.SendResult, error) {
	a.order = append(a.order, "interactive")
	if a.failInteractive {
		return nil, errors.New("interactive rejected")
	}
	return &external.SendResult{MessageID: "wamid.int-1"}, nil
}

func (a *rungAPI) SendLocationRequest(_ context.Context, _, _ string) (*external.SendResult, error) {
	a.order = append(a.order, "location_request")
	if a.failLocation {
		return nil, errors.New("location request rejected")
	}
	return &external.SendResult{MessageID: "wamid.loc-1"}, nil
}

func (a *rungAPI) SendText(_ context.Context, _, _ string) (*external.SendResult, error) {
	a.order = append(a.order, "text")
	if a.failText {
		return nil, errors.New("text rejected")
	}
	return &external.SendResult{MessageID: "wamid.txt-1"}, nil
}

type captureRecorder struct {
	entries []*types.DeliveryLogEntry
}

var _ corepkg.AttemptRecorder = (*captureRecorder)(nil)

func (r *captureRecorder) Record(_ context.Context, e *types.DeliveryLogEntry) {
	r.entries = append(r.entries, e)
}

func testChannel(api API) *Channel {
	cfg := config.WhatsAppConfig{
		NotificationTemplate:    "mizan_notification",
		ClockInLocationTemplate: "clock_in_location_request",
	}
	return NewChannel(api, cfg, stubClock{t: time.Date(2025, 8, 25, 9, 0, 0, 0, time.UTC)})
}

func testRecipient() *types.Staff {
	return &types.Staff{ID: "user-1", FirstName: "Amina", Phone: "+212 600-000001"}
}

func testNotification() *types.Notification {
	return &types.Notification{
		ID:      "n-1",
		Title:   "Shift starts soon",
		Message: "Your shift starts in 30 minutes.",
	}
}

func TestSendTemplateFirst(t *testing.T) {
	api := &rungAPI{}
	rec := &captureRecorder{}

	outcome, err := testChannel(api).Send(context.Background(), testRecipient(), testNotification(), rec)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(api.order) != 1 || api.order[0] != "template" {
		t.Errorf("attempt order = %v, want template only", api.order)
	}
	if outcome.ExternalID != "wamid.tpl-1" {
		t.Errorf("external id = %s, want the template wamid", outcome.ExternalID)
	}
	if outcome.RecipientAddress != "212600000001" {
		t.Errorf("recipient address = %s, want normalized digits", outcome.RecipientAddress)
	}
	if len(rec.entries) != 1 || rec.entries[0].Status != types.DeliverySent {
		t.Errorf("audit entries = %+v, want one SENT row", rec.entries)
	}
}

func TestSendFallsThroughChain(t *testing.T) {
	api := &rungAPI{failTemplate: true, failInteractive: true}
	rec := &captureRecorder{}

	outcome, err := testChannel(api).Send(context.Background(), testRecipient(), testNotification(), rec)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	want := []string{"template", "interactive", "text"}
	if len(api.order) != len(want) {
		t.Fatalf("attempt order = %v, want %v", api.order, want)
	}
	for i := range want {
		if api.order[i] != want[i] {
			t.Fatalf("attempt order = %v, want %v", api.order, want)
		}
	}
	if outcome.ExternalID != "wamid.txt-1" {
		t.Errorf("external id = %s, want the text wamid", outcome.ExternalID)
	}

	// Every rung attempted leaves its own audit row: two FAILED, one SENT.
	if len(rec.entries) != 3 {
		t.Fatalf("audit entries = %d, want 3", len(rec.entries))
	}
	if rec.entries[0].Status != types.DeliveryFailed || rec.entries[1].Status != types.DeliveryFailed {
		t.Errorf("failed rungs not audited: %+v", rec.entries[:2])
	}
	if rec.entries[2].Status != types.DeliverySent || rec.entries[2].ExternalID != "wamid.txt-1" {
		t.Errorf("accepted rung entry = %+v", rec.entries[2])
	}
	for _, e := range rec.entries {
		if e.NotificationID != "n-1" || e.Channel != types.ChannelWhatsApp {
			t.Errorf("audit entry misattributed: %+v", e)
		}
	}
}

func TestSendAllRungsFail(t *testing.T) {
	api := &rungAPI{failTemplate: true, failInteractive: true, failText: true}
	rec := &captureRecorder{}

	_, err := testChannel(api).Send(context.Background(), testRecipient(), testNotification(), rec)
	if err == nil {
		t.Fatal("expected error when every payload rung fails")
	}
	if len(rec.entries) != 3 {
		t.Errorf("audit entries = %d, want one FAILED row per rung", len(rec.entries))
	}
}

func TestSendRejectsRecipientWithoutPhone(t *testing.T) {
	api := &rungAPI{}
	recipient := testRecipient()
	recipient.Phone = ""

	_, err := testChannel(api).Send(context.Background(), recipient, testNotification(), &captureRecorder{})
	if err == nil {
		t.Fatal("expected error for recipient with no phone")
	}
	appErr, ok := types.AsAppError(err)
	if !ok || appErr.Code != types.ErrCodeValidationBadPhone {
		t.Errorf("error = %v, want %s", err, types.ErrCodeValidationBadPhone)
	}
	if len(api.order) != 0 {
		t.Errorf("attempts made without a recipient address: %v", api.order)
	}
}

func TestLocationRequestFallback(t *testing.T) {
	api := &rungAPI{failTemplate: true}
	rec := &captureRecorder{}
	lr := NewLocationRequester(api, config.WhatsAppConfig{ClockInLocationTemplate: "clock_in_location_request"}, stubClock{t: time.Now()})

	result, err := lr.Request(context.Background(), "212600000001", "Share your location", "", rec)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	// The chain is template -> native location request. Plain text cannot
	// render the share-location button, so it is never a rung here.
	want := []string{"template", "location_request"}
	for i := range want {
		if i >= len(api.order) || api.order[i] != want[i] {
			t.Fatalf("attempt order = %v, want %v", api.order, want)
		}
	}
	for _, attempt := range api.order {
		if attempt == "text" {
			t.Fatal("location request fell back to plain text")
		}
	}
	if result.MessageID != "wamid.loc-1" {
		t.Errorf("message id = %s, want the location request wamid", result.MessageID)
	}
	if len(rec.entries) != 2 {
		t.Errorf("audit entries = %d, want 2", len(rec.entries))
	}
}

func TestLocationRequestRetriesBothRungsBeforeFailing(t *testing.T) {
	api := &rungAPI{failTemplate: true, failLocation: true}
	rec := &captureRecorder{}
	lr := NewLocationRequester(api, config.WhatsAppConfig{ClockInLocationTemplate: "clock_in_location_request"}, stubClock{t: time.Now()})

	_, err := lr.Request(context.Background(), "212600000001", "Share your location", "", rec)
	if err == nil {
		t.Fatal("expected error after both rungs failed twice")
	}

	// Both rungs get a second chance before the failure is reported, and
	// plain text is never attempted.
	want := []string{"template", "location_request", "template", "location_request"}
	if len(api.order) != len(want) {
		t.Fatalf("attempt order = %v, want %v", api.order, want)
	}
	for i := range want {
		if api.order[i] != want[i] {
			t.Fatalf("attempt order = %v, want %v", api.order, want)
		}
	}
	if len(rec.entries) != 4 {
		t.Errorf("audit entries = %d, want one FAILED row per attempt", len(rec.entries))
	}
	for _, e := range rec.entries {
		if e.Status != types.DeliveryFailed {
			t.Errorf("audit entry status = %s, want FAILED", e.Status)
		}
	}
}
