package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mizan/internal/types"
)

type testLogger struct{}

func (testLogger) Info(string, ...any)        {}
func (testLogger) Error(string, ...any)       {}
func (testLogger) Warn(string, ...any)        {}
func (l testLogger) With(...any) types.Logger { return l }

type testClock struct{ t time.Time }

func (c testClock) Now() time.Time { return c.t }

type memNotifications struct {
	mu      sync.Mutex
	seq     int
	rows    map[string]*types.Notification
	outcome int

	readAt map[string]time.Time
}

func newMemNotifications() *memNotifications {
	return &memNotifications{rows: map[string]*types.Notification{}, readAt: map[string]time.Time{}}
}

func (m *memNotifications) Create(_ context.Context, n *types.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	n.ID = fmt.Sprintf("n-%d", m.seq)
	m.rows[n.ID] = n
	return nil
}

func (m *memNotifications) Get(_ context.Context, id string) (*types.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return n, nil
}

func (m *memNotifications) ListByRecipient(context.Context, string, int, int) ([]types.Notification, error) {
	return nil, nil
}

func (m *memNotifications) SetDeliveryOutcome(_ context.Context, id string, sent types.ChannelList, status types.DeliveryStatusMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcome++
	if n, ok := m.rows[id]; ok {
		n.ChannelsSent = sent
		n.DeliveryStatus = status
	}
	return nil
}

func (m *memNotifications) MarkRead(context.Context, string, string, time.Time) error { return nil }
func (m *memNotifications) MarkAllRead(context.Context, string, time.Time) error      { return nil }

func (m *memNotifications) SetReadAtIfUnset(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.readAt[id]; !ok {
		m.readAt[id] = at
	}
	return nil
}

type stubStaff struct {
	staff *types.Staff
	prefs types.NotificationPreferences
}

func (s *stubStaff) FindByPhone(context.Context, string) (*types.Staff, error) { return nil, nil }

func (s *stubStaff) Get(context.Context, string) (*types.Staff, error) { return s.staff, nil }

func (s *stubStaff) Preferences(context.Context, string) (types.NotificationPreferences, error) {
	return s.prefs, nil
}

func (s *stubStaff) DeviceTokens(context.Context, string) ([]types.DeviceToken, error) {
	return nil, nil
}
func (s *stubStaff) RegisterDeviceToken(context.Context, string, string) error   { return nil }
func (s *stubStaff) UnregisterDeviceToken(context.Context, string, string) error { return nil }
func (s *stubStaff) Restaurant(context.Context, string) (*types.Restaurant, error) {
	return nil, nil
}
func (s *stubStaff) Manager(context.Context, string) (*types.Staff, error) { return nil, nil }

type stubSender struct {
	ch  types.Channel
	err error

	mu    sync.Mutex
	calls int
}

func (s *stubSender) Channel() types.Channel { return s.ch }

func (s *stubSender) Send(_ context.Context, _ *types.Staff, n *types.Notification, _ AttemptRecorder) (*ChannelOutcome, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &ChannelOutcome{ExternalID: string(s.ch) + "-ext-" + n.ID}, nil
}

func (s *stubSender) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memRecorder struct {
	mu      sync.Mutex
	entries []*types.DeliveryLogEntry
}

func (r *memRecorder) Record(_ context.Context, e *types.DeliveryLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func newTestDispatcher(notifs *memNotifications, prefs types.NotificationPreferences, senders ...ChannelSender) *DispatcherImpl {
	staff := &stubStaff{
		staff: &types.Staff{ID: "user-1", FirstName: "Amina", Phone: "+212600000001", Email: "amina@example.com"},
		prefs: prefs,
	}
	clock := testClock{t: time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)}
	return NewDispatcher(notifs, staff, senders, &memRecorder{}, NoopMetrics{}, clock, testLogger{})
}

func allPrefs() types.NotificationPreferences {
	return types.NotificationPreferences{WhatsAppEnabled: true, EmailEnabled: true, PushEnabled: true}
}

func TestDispatchCreatesAndSends(t *testing.T) {
	notifs := newMemNotifications()
	app := &stubSender{ch: types.ChannelApp}
	wa := &stubSender{ch: types.ChannelWhatsApp}
	d := newTestDispatcher(notifs, allPrefs(), app, wa)

	result, err := d.Dispatch(context.Background(), NewNotification{
		RecipientID: "user-1",
		Title:       "Shift starts soon",
		Message:     "Your shift starts in 30 minutes.",
		Type:        types.NotifShiftAssigned,
	}, []types.Channel{types.ChannelApp, types.ChannelWhatsApp}, false)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !result.OK {
		t.Error("result.OK = false, want true")
	}
	if len(result.Sent) != 2 {
		t.Errorf("sent channels = %v, want both", result.Sent)
	}
	if len(notifs.rows) != 1 {
		t.Fatalf("notification rows = %d, want 1", len(notifs.rows))
	}
	if result.Notification.Priority != types.PriorityNormal {
		t.Errorf("default priority = %s, want NORMAL", result.Notification.Priority)
	}
	if notifs.outcome != 1 {
		t.Errorf("SetDeliveryOutcome calls = %d, want exactly 1", notifs.outcome)
	}
	if app.sendCount() != 1 || wa.sendCount() != 1 {
		t.Errorf("sender calls = app %d, whatsapp %d", app.sendCount(), wa.sendCount())
	}
}

func TestDispatchExistingNotificationNotDuplicated(t *testing.T) {
	notifs := newMemNotifications()
	pre := &types.Notification{RecipientID: "user-1", Title: "Announcement", Type: types.NotifAnnouncement}
	if err := notifs.Create(context.Background(), pre); err != nil {
		t.Fatal(err)
	}

	app := &stubSender{ch: types.ChannelApp}
	d := newTestDispatcher(notifs, allPrefs(), app)

	result, err := d.Dispatch(context.Background(), ExistingNotification{ID: pre.ID}, []types.Channel{types.ChannelApp}, false)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(notifs.rows) != 1 {
		t.Errorf("notification rows = %d, want the pre-existing row only", len(notifs.rows))
	}
	if result.Notification.ID != pre.ID {
		t.Errorf("dispatched id = %s, want %s", result.Notification.ID, pre.ID)
	}
}

func TestDispatchUnknownExistingNotification(t *testing.T) {
	d := newTestDispatcher(newMemNotifications(), allPrefs(), &stubSender{ch: types.ChannelApp})

	_, err := d.Dispatch(context.Background(), ExistingNotification{ID: "missing"}, []types.Channel{types.ChannelApp}, false)
	if err == nil {
		t.Fatal("expected error for unknown notification id")
	}
}

func TestDispatchPreferenceGating(t *testing.T) {
	notifs := newMemNotifications()
	app := &stubSender{ch: types.ChannelApp}
	wa := &stubSender{ch: types.ChannelWhatsApp}
	prefs := allPrefs()
	prefs.WhatsAppEnabled = false
	d := newTestDispatcher(notifs, prefs, app, wa)

	result, err := d.Dispatch(context.Background(), NewNotification{
		RecipientID: "user-1",
		Title:       "Reminder",
		Message:     "Check your schedule.",
		Type:        types.NotifOther,
	}, []types.Channel{types.ChannelApp, types.ChannelWhatsApp}, false)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if wa.sendCount() != 0 {
		t.Error("whatsapp sender called despite disabled preference")
	}
	// In-app is the always-on baseline and is never gated.
	if app.sendCount() != 1 {
		t.Error("in-app sender was gated")
	}
	if _, ok := result.Status[types.ChannelWhatsApp]; ok {
		t.Error("gated channel has a status entry; it should be skipped entirely")
	}
}

func TestDispatchOverrideBypassesPreferences(t *testing.T) {
	wa := &stubSender{ch: types.ChannelWhatsApp}
	prefs := allPrefs()
	prefs.WhatsAppEnabled = false
	d := newTestDispatcher(newMemNotifications(), prefs, wa)

	result, err := d.Dispatch(context.Background(), NewNotification{
		RecipientID: "user-1",
		Title:       "Emergency",
		Message:     "Evacuate now.",
		Type:        types.NotifEmergency,
		Priority:    types.PriorityUrgent,
	}, []types.Channel{types.ChannelWhatsApp}, true)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if wa.sendCount() != 1 {
		t.Error("override did not bypass the disabled preference")
	}
	if !result.OK {
		t.Error("result.OK = false, want true")
	}
}

func TestDispatchAllChannelsFailIsNotAnError(t *testing.T) {
	notifs := newMemNotifications()
	wa := &stubSender{ch: types.ChannelWhatsApp, err: errors.New("provider down")}
	email := &stubSender{ch: types.ChannelEmail, err: errors.New("provider down")}
	d := newTestDispatcher(notifs, allPrefs(), wa, email)

	result, err := d.Dispatch(context.Background(), NewNotification{
		RecipientID: "user-1",
		Title:       "Shift cancelled",
		Message:     "Tonight's shift was cancelled.",
		Type:        types.NotifShiftCancelled,
	}, []types.Channel{types.ChannelWhatsApp, types.ChannelEmail}, false)
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want nil: send failures are outcomes, not errors", err)
	}

	if result.OK {
		t.Error("result.OK = true with every channel failed")
	}
	if len(result.Sent) != 0 {
		t.Errorf("sent = %v, want empty", result.Sent)
	}
	for _, ch := range []types.Channel{types.ChannelWhatsApp, types.ChannelEmail} {
		if result.Status[ch].Status != types.DeliveryFailed {
			t.Errorf("status[%s] = %s, want FAILED", ch, result.Status[ch].Status)
		}
	}
	// The aggregate outcome is still persisted exactly once.
	if notifs.outcome != 1 {
		t.Errorf("SetDeliveryOutcome calls = %d, want 1", notifs.outcome)
	}
}

func TestDispatchOneChannelFailingDoesNotAbortOthers(t *testing.T) {
	wa := &stubSender{ch: types.ChannelWhatsApp, err: errors.New("provider down")}
	app := &stubSender{ch: types.ChannelApp}
	d := newTestDispatcher(newMemNotifications(), allPrefs(), wa, app)

	result, err := d.Dispatch(context.Background(), NewNotification{
		RecipientID: "user-1",
		Title:       "Update",
		Message:     "Schedule changed.",
		Type:        types.NotifShiftUpdated,
	}, []types.Channel{types.ChannelWhatsApp, types.ChannelApp}, false)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !result.OK {
		t.Error("result.OK = false; the in-app send succeeded")
	}
	if len(result.Sent) != 1 || result.Sent[0] != types.ChannelApp {
		t.Errorf("sent = %v, want [app]", result.Sent)
	}
	if result.Status[types.ChannelWhatsApp].Status != types.DeliveryFailed {
		t.Errorf("whatsapp status = %s, want FAILED", result.Status[types.ChannelWhatsApp].Status)
	}
}

func TestDispatchSkipsChannelWithoutSender(t *testing.T) {
	app := &stubSender{ch: types.ChannelApp}
	d := newTestDispatcher(newMemNotifications(), allPrefs(), app)

	// The worker process has no in-app hub; a requested channel with no
	// sender must degrade to a skip, not an error.
	result, err := d.Dispatch(context.Background(), NewNotification{
		RecipientID: "user-1",
		Title:       "Hello",
		Message:     "World",
		Type:        types.NotifOther,
	}, []types.Channel{types.ChannelApp, types.ChannelPush}, false)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !result.OK {
		t.Error("result.OK = false, want true")
	}
	if _, ok := result.Status[types.ChannelPush]; ok {
		t.Error("senderless channel has a status entry")
	}
}

func TestDispatchDedupesRequestedChannels(t *testing.T) {
	app := &stubSender{ch: types.ChannelApp}
	d := newTestDispatcher(newMemNotifications(), allPrefs(), app)

	_, err := d.Dispatch(context.Background(), NewNotification{
		RecipientID: "user-1",
		Title:       "Hello",
		Message:     "World",
		Type:        types.NotifOther,
	}, []types.Channel{types.ChannelApp, types.ChannelApp, types.ChannelApp}, false)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if app.sendCount() != 1 {
		t.Errorf("sender calls = %d, want 1 after dedupe", app.sendCount())
	}
}

func TestCalculateNextRetry(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     30 * time.Second,
		MaxDelay:      900 * time.Second,
		BackoffFactor: 2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{10, 900 * time.Second}, // capped at MaxDelay
		{-1, 30 * time.Second},  // negative attempts clamp to zero
	}
	for _, tt := range tests {
		if got := CalculateNextRetry(policy, tt.attempt); got != tt.want {
			t.Errorf("CalculateNextRetry(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
