package recovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openwallet-foundation/agent-recovery/internal/bus"
	"github.com/openwallet-foundation/agent-recovery/internal/codec"
	"github.com/openwallet-foundation/agent-recovery/internal/core/domain"
	"github.com/openwallet-foundation/agent-recovery/internal/eventstore"
	"github.com/openwallet-foundation/agent-recovery/internal/infra/storage"
	"github.com/openwallet-foundation/agent-recovery/internal/infra/storage/memory"
	"github.com/openwallet-foundation/agent-recovery/internal/retry"
)

type replayPayload struct {
	RegistryID string        `json:"registry_id"`
	Options    codec.Options `json:"options,omitempty"`
}

func (p replayPayload) PayloadKind() string { return "recovery_test.replay" }

func (p replayPayload) WithOptions(opts codec.Options) codec.Payload {
	p.Options = opts
	return p
}

func init() {
	codec.Register[replayPayload]("recovery_test.replay")
}

type captureBus struct {
	mu     sync.Mutex
	events []bus.Event
}

func (b *captureBus) Notify(ctx context.Context, profileID string, ev bus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *captureBus) all() []bus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bus.Event(nil), b.events...)
}

func newTestManager(t *testing.T) (*Manager, *captureBus, storage.Provider) {
	t.Helper()
	provider := memory.NewProvider()
	b := &captureBus{}
	routes := map[domain.EventType]Route{
		domain.EventTypeRegDefCreate: {Topic: "test.registry_definition.create"},
	}
	return NewManager(provider, retry.Default(), b, routes, nil), b, provider
}

func seedRecord(
	t *testing.T,
	m *Manager,
	profileID string,
	eventType domain.EventType,
	correlationID, expiry string,
) {
	t.Helper()
	es, err := m.OpenStore(context.Background(), profileID)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	_, err = es.StoreRequest(context.Background(), eventstore.Request{
		EventType:     eventType,
		Payload:       replayPayload{RegistryID: "reg-1"},
		CorrelationID: correlationID,
		Options:       map[string]any{"endorser": "did:endorser"},
		Expiry:        expiry,
	})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func pastExpiry() string {
	return time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
}

func futureExpiry() string {
	return time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
}

func TestRecoverInProgress_ReplaysExpiredRecords(t *testing.T) {
	m, b, _ := newTestManager(t)
	ctx := context.Background()
	seedRecord(t, m, "wallet-1", domain.EventTypeRegDefCreate, "corr-1", pastExpiry())

	count, err := m.RecoverInProgress(ctx, "wallet-1")
	if err != nil {
		t.Fatalf("RecoverInProgress failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("recovered %d records, want 1", count)
	}

	events := b.all()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Topic != "test.registry_definition.create" {
		t.Errorf("topic = %q", ev.Topic)
	}
	p, ok := ev.Payload.(replayPayload)
	if !ok {
		t.Fatalf("payload is %T, want replayPayload", ev.Payload)
	}
	if p.RegistryID != "reg-1" {
		t.Errorf("registry id = %q, want reg-1", p.RegistryID)
	}
	if !p.Options.Bool("recovery") {
		t.Error("replayed payload missing recovery flag")
	}
	if p.Options.String("correlation_id") != "corr-1" {
		t.Errorf("correlation_id = %q, want corr-1", p.Options.String("correlation_id"))
	}
	if p.Options.String("endorser") != "did:endorser" {
		t.Error("original options not carried into replay")
	}
}

func TestRecoverInProgress_SkipsUnexpired(t *testing.T) {
	m, b, _ := newTestManager(t)
	seedRecord(t, m, "wallet-1", domain.EventTypeRegDefCreate, "corr-1", futureExpiry())

	count, err := m.RecoverInProgress(context.Background(), "wallet-1")
	if err != nil {
		t.Fatalf("RecoverInProgress failed: %v", err)
	}
	if count != 0 || len(b.all()) != 0 {
		t.Fatalf("unexpired record was replayed (count=%d events=%d)", count, len(b.all()))
	}
}

func TestRecoverInProgress_UnroutedTypeIsolated(t *testing.T) {
	m, b, _ := newTestManager(t)
	ctx := context.Background()
	// One routed record and one record whose type has no route.
	seedRecord(t, m, "wallet-1", domain.EventTypeRegDefCreate, "corr-1", pastExpiry())
	seedRecord(t, m, "wallet-1", domain.EventTypeRegFull, "corr-2", pastExpiry())

	count, err := m.RecoverInProgress(ctx, "wallet-1")
	if err != nil {
		t.Fatalf("RecoverInProgress failed: %v", err)
	}
	if count != 1 {
		t.Errorf("recovered %d records, want 1", count)
	}
	if len(b.all()) != 1 {
		t.Errorf("published %d events, want 1", len(b.all()))
	}
}

func TestPendingCounts(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	seedRecord(t, m, "wallet-1", domain.EventTypeRegDefCreate, "corr-1", pastExpiry())
	seedRecord(t, m, "wallet-1", domain.EventTypeRegDefCreate, "corr-2", futureExpiry())

	pending, recoverable, err := m.PendingCounts(ctx, "wallet-1")
	if err != nil {
		t.Fatalf("PendingCounts failed: %v", err)
	}
	if pending != 2 || recoverable != 1 {
		t.Errorf("pending/recoverable = %d/%d, want 2/1", pending, recoverable)
	}

	// Other profiles are unaffected.
	pending, recoverable, err = m.PendingCounts(ctx, "wallet-2")
	if err != nil {
		t.Fatalf("PendingCounts failed: %v", err)
	}
	if pending != 0 || recoverable != 0 {
		t.Errorf("wallet-2 pending/recoverable = %d/%d, want 0/0", pending, recoverable)
	}
}

func TestStatusAndFailed(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	seedRecord(t, m, "wallet-1", domain.EventTypeRegDefCreate, "corr-1", futureExpiry())
	seedRecord(t, m, "wallet-1", domain.EventTypeListCreate, "corr-2", futureExpiry())

	es, err := m.OpenStore(ctx, "wallet-1")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := es.UpdateResponse(ctx, eventstore.Response{
		EventType:     domain.EventTypeListCreate,
		CorrelationID: "corr-2",
		Success:       false,
		ErrorMsg:      "retries exhausted",
	}); err != nil {
		t.Fatalf("UpdateResponse failed: %v", err)
	}

	st, err := m.Status(ctx, "wallet-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.TotalInProgress != 1 || st.TotalFailed != 1 {
		t.Errorf("totals = %d/%d, want 1/1", st.TotalInProgress, st.TotalFailed)
	}
	if st.InProgress[domain.EventTypeRegDefCreate] != 1 {
		t.Errorf("in-progress breakdown = %#v", st.InProgress)
	}

	failed, err := m.Failed(ctx, "wallet-1")
	if err != nil {
		t.Fatalf("Failed failed: %v", err)
	}
	if len(failed) != 1 || failed[0].CorrelationID != "corr-2" {
		t.Errorf("failed records = %#v", failed)
	}
}

func TestCleanupOldEvents(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	seedRecord(t, m, "wallet-1", domain.EventTypeRegDefCreate, "corr-1", futureExpiry())

	es, err := m.OpenStore(ctx, "wallet-1")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := es.UpdateResponse(ctx, eventstore.Response{
		EventType:     domain.EventTypeRegDefCreate,
		CorrelationID: "corr-1",
		Success:       true,
	}); err != nil {
		t.Fatalf("UpdateResponse failed: %v", err)
	}

	deleted, err := m.CleanupOldEvents(ctx, "wallet-1", 0)
	if err != nil {
		t.Fatalf("CleanupOldEvents failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d records, want 1", deleted)
	}

	pending, _, _ := m.PendingCounts(ctx, "wallet-1")
	if pending != 0 {
		t.Errorf("pending after cleanup = %d, want 0", pending)
	}
}
