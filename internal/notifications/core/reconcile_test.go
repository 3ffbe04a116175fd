package core

import (
	"context"
	"testing"
	"time"

	"mizan/internal/types"
)

type memDeliveryLog struct {
	entries     map[string]*types.DeliveryLogEntry // by entry id
	transitions int
}

func newMemDeliveryLog(entries ...*types.DeliveryLogEntry) *memDeliveryLog {
	m := &memDeliveryLog{entries: map[string]*types.DeliveryLogEntry{}}
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return m
}

func (m *memDeliveryLog) Append(_ context.Context, e *types.DeliveryLogEntry) error {
	m.entries[e.ID] = e
	return nil
}

func (m *memDeliveryLog) FindByExternalID(_ context.Context, externalID string) (*types.DeliveryLogEntry, error) {
	for _, e := range m.entries {
		if e.ExternalID == externalID {
			return e, nil
		}
	}
	return nil, nil
}

func (m *memDeliveryLog) TransitionStatus(_ context.Context, entryID string, next types.DeliveryStatus, at time.Time) (bool, error) {
	e, ok := m.entries[entryID]
	if !ok || !e.Status.CanTransitionTo(next) {
		return false, nil
	}
	m.transitions++
	e.Status = next
	if (next == types.DeliveryDelivered || next == types.DeliveryRead) && e.DeliveredAt == nil {
		e.DeliveredAt = &at
	}
	return true, nil
}

func (m *memDeliveryLog) PurgeTerminalOlderThan(context.Context, time.Time) ([]types.DeliveryLogEntry, error) {
	return nil, nil
}

type claimGuard struct{ seen map[string]bool }

func newClaimGuard() *claimGuard { return &claimGuard{seen: map[string]bool{}} }

func (g *claimGuard) Claim(_ context.Context, id string, _ types.Channel) (bool, error) {
	if g.seen[id] {
		return false, nil
	}
	g.seen[id] = true
	return true, nil
}

func (g *claimGuard) PurgeOlderThan(context.Context, time.Time) ([]types.ProcessedMessage, error) {
	return nil, nil
}

func sentEntry() *types.DeliveryLogEntry {
	return &types.DeliveryLogEntry{
		ID:             "dl-1",
		NotificationID: "n-1",
		Channel:        types.ChannelWhatsApp,
		Status:         types.DeliverySent,
		ExternalID:     "wamid.out-1",
	}
}

func newTestReconciler(log *memDeliveryLog, notifs *memNotifications) *Reconciler {
	clock := testClock{t: time.Date(2025, 8, 25, 12, 0, 0, 0, time.UTC)}
	return NewReconciler(log, notifs, newClaimGuard(), clock, testLogger{})
}

func TestApplyAdvancesStatus(t *testing.T) {
	log := newMemDeliveryLog(sentEntry())
	r := newTestReconciler(log, newMemNotifications())

	at := time.Date(2025, 8, 25, 12, 30, 0, 0, time.UTC)
	err := r.Apply(context.Background(), StatusCallback{
		ExternalID: "wamid.out-1",
		CallbackID: "cb-1",
		Channel:    types.ChannelWhatsApp,
		Status:     types.DeliveryDelivered,
		Timestamp:  at,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	e := log.entries["dl-1"]
	if e.Status != types.DeliveryDelivered {
		t.Errorf("status = %s, want DELIVERED", e.Status)
	}
	if e.DeliveredAt == nil || !e.DeliveredAt.Equal(at) {
		t.Errorf("delivered_at = %v, want %v", e.DeliveredAt, at)
	}
}

func TestApplyRedeliveredCallbackIsNoOp(t *testing.T) {
	log := newMemDeliveryLog(sentEntry())
	r := newTestReconciler(log, newMemNotifications())

	cb := StatusCallback{
		ExternalID: "wamid.out-1",
		CallbackID: "cb-1",
		Channel:    types.ChannelWhatsApp,
		Status:     types.DeliveryDelivered,
	}
	if err := r.Apply(context.Background(), cb); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	if err := r.Apply(context.Background(), cb); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}

	if log.transitions != 1 {
		t.Errorf("transitions = %d, want 1: the redelivered receipt must be dropped", log.transitions)
	}
}

func TestApplyUnknownExternalIDIsNoOp(t *testing.T) {
	log := newMemDeliveryLog()
	r := newTestReconciler(log, newMemNotifications())

	// Providers send receipts for messages originated outside this system.
	err := r.Apply(context.Background(), StatusCallback{
		ExternalID: "wamid.someone-elses",
		CallbackID: "cb-x",
		Channel:    types.ChannelWhatsApp,
		Status:     types.DeliveryDelivered,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	if log.transitions != 0 {
		t.Errorf("transitions = %d, want 0", log.transitions)
	}
}

func TestApplyStaleReceiptIgnored(t *testing.T) {
	entry := sentEntry()
	entry.Status = types.DeliveryDelivered
	log := newMemDeliveryLog(entry)
	r := newTestReconciler(log, newMemNotifications())

	// Providers deliver receipts out of order; a late "sent" must not rewind
	// the entry.
	err := r.Apply(context.Background(), StatusCallback{
		ExternalID: "wamid.out-1",
		CallbackID: "cb-late",
		Channel:    types.ChannelWhatsApp,
		Status:     types.DeliverySent,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if log.entries["dl-1"].Status != types.DeliveryDelivered {
		t.Errorf("status = %s, rewound by a stale receipt", log.entries["dl-1"].Status)
	}
}

func TestApplyTerminalEntryFrozen(t *testing.T) {
	entry := sentEntry()
	entry.Status = types.DeliveryFailed
	log := newMemDeliveryLog(entry)
	r := newTestReconciler(log, newMemNotifications())

	err := r.Apply(context.Background(), StatusCallback{
		ExternalID: "wamid.out-1",
		CallbackID: "cb-after-failure",
		Channel:    types.ChannelWhatsApp,
		Status:     types.DeliveryDelivered,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if log.entries["dl-1"].Status != types.DeliveryFailed {
		t.Errorf("status = %s, terminal state was overwritten", log.entries["dl-1"].Status)
	}
}

func TestApplyReadPropagatesToNotification(t *testing.T) {
	log := newMemDeliveryLog(sentEntry())
	notifs := newMemNotifications()
	r := newTestReconciler(log, notifs)

	at := time.Date(2025, 8, 25, 13, 0, 0, 0, time.UTC)
	err := r.Apply(context.Background(), StatusCallback{
		ExternalID: "wamid.out-1",
		CallbackID: "cb-read",
		Channel:    types.ChannelWhatsApp,
		Status:     types.DeliveryRead,
		Timestamp:  at,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if got, ok := notifs.readAt["n-1"]; !ok || !got.Equal(at) {
		t.Errorf("notification read_at = %v (%t), want %v", got, ok, at)
	}
}

func TestApplyDerivesCallbackIDWhenMissing(t *testing.T) {
	log := newMemDeliveryLog(sentEntry())
	r := newTestReconciler(log, newMemNotifications())

	cb := StatusCallback{
		ExternalID: "wamid.out-1",
		Channel:    types.ChannelWhatsApp,
		Status:     types.DeliveryDelivered,
	}
	if err := r.Apply(context.Background(), cb); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	// Same (external id, status) pair again: the derived callback id makes
	// this a redelivery.
	if err := r.Apply(context.Background(), cb); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if log.transitions != 1 {
		t.Errorf("transitions = %d, want 1", log.transitions)
	}

	// A different status is a new receipt, not a redelivery.
	cb.Status = types.DeliveryRead
	if err := r.Apply(context.Background(), cb); err != nil {
		t.Fatalf("read Apply() error = %v", err)
	}
	if log.entries["dl-1"].Status != types.DeliveryRead {
		t.Errorf("status = %s, want READ", log.entries["dl-1"].Status)
	}
}

func TestApplyZeroTimestampUsesClock(t *testing.T) {
	log := newMemDeliveryLog(sentEntry())
	r := newTestReconciler(log, newMemNotifications())

	err := r.Apply(context.Background(), StatusCallback{
		ExternalID: "wamid.out-1",
		CallbackID: "cb-nots",
		Channel:    types.ChannelWhatsApp,
		Status:     types.DeliveryDelivered,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := time.Date(2025, 8, 25, 12, 0, 0, 0, time.UTC)
	if got := log.entries["dl-1"].DeliveredAt; got == nil || !got.Equal(want) {
		t.Errorf("delivered_at = %v, want clock time %v", got, want)
	}
}
