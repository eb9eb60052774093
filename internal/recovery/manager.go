// Package recovery replays interrupted registry operations. The Manager
// sweeps expired in-progress event records and re-publishes their original
// requests; the Coordinator triggers the Manager lazily from the request
// path, at most once per tenant per process.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openwallet-foundation/agent-recovery/internal/bus"
	"github.com/openwallet-foundation/agent-recovery/internal/codec"
	"github.com/openwallet-foundation/agent-recovery/internal/core/domain"
	"github.com/openwallet-foundation/agent-recovery/internal/eventstore"
	"github.com/openwallet-foundation/agent-recovery/internal/infra/storage"
	"github.com/openwallet-foundation/agent-recovery/internal/metrics"
	"github.com/openwallet-foundation/agent-recovery/internal/retry"
)

// ErrUnknownEventType marks a record whose type has no registered route.
// The record is left untouched for a later sweep or operator cleanup.
var ErrUnknownEventType = errors.New("unknown event type")

// Route maps an event type to the bus topic its request is replayed on.
// The table is registered at construction so adding an event kind is a
// compile-time-checked addition, not a string-matching fallthrough.
type Route struct {
	Topic string
}

// Manager reconstructs interrupted operations from durable event records
// and re-delivers them on the event bus.
type Manager struct {
	stores storage.Provider
	policy retry.Policy
	bus    bus.Bus
	routes map[domain.EventType]Route
	log    *slog.Logger
}

func NewManager(
	stores storage.Provider,
	policy retry.Policy,
	b bus.Bus,
	routes map[domain.EventType]Route,
	log *slog.Logger,
) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{stores: stores, policy: policy, bus: b, routes: routes, log: log}
}

// OpenStore returns the profile's event store.
func (m *Manager) OpenStore(ctx context.Context, profileID string) (*eventstore.Store, error) {
	engine, err := m.stores.OpenStore(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("open store for profile %s: %w", profileID, err)
	}
	return eventstore.New(engine, m.policy, m.log), nil
}

// RecoverInProgress sweeps all expired in-progress records for the profile
// and replays each one. Per-record failures are logged with their
// correlation id and do not abort the batch. Returns the count of records
// successfully re-published.
func (m *Manager) RecoverInProgress(ctx context.Context, profileID string) (int, error) {
	es, err := m.OpenStore(ctx, profileID)
	if err != nil {
		return 0, err
	}
	records, err := es.GetInProgress(ctx, "", true)
	if err != nil {
		return 0, err
	}

	metrics.RecoveryAttempts.Inc()
	recovered := 0
	for _, rec := range records {
		if err := m.recoverSingle(ctx, profileID, rec); err != nil {
			if errors.Is(err, ErrUnknownEventType) {
				m.log.Warn("cannot recover event of unknown type",
					"event_type", rec.EventType,
					"correlation_id", rec.CorrelationID,
				)
			} else {
				m.log.Error("failed to recover event",
					"event_type", rec.EventType,
					"correlation_id", rec.CorrelationID,
					"error", err,
				)
			}
			continue
		}
		metrics.RecoveredEvents.WithLabelValues(string(rec.EventType)).Inc()
		recovered++
	}
	if recovered > 0 {
		m.log.Info("recovered interrupted events",
			"profile", profileID,
			"count", recovered,
			"expired", len(records),
		)
	}
	return recovered, nil
}

// recoverSingle decodes the stored request, flags it as a recovery, and
// re-publishes it on its original topic. This is a replay, not a retry in
// place: the downstream handler sees the same shaped message it would have
// seen the first time and applies its idempotent rules.
func (m *Manager) recoverSingle(ctx context.Context, profileID string, rec *domain.EventRecord) error {
	route, ok := m.routes[rec.EventType]
	if !ok {
		return ErrUnknownEventType
	}

	payload, err := codec.DecodePayload(rec.EventData)
	if err != nil {
		return fmt.Errorf("decode event data: %w", err)
	}
	recoverable, ok := payload.(codec.Recoverable)
	if !ok {
		return fmt.Errorf("payload kind %q does not support recovery", payload.PayloadKind())
	}

	opts := codec.Options(rec.CopyOptions())
	opts["recovery"] = true
	opts["correlation_id"] = rec.CorrelationID

	return m.bus.Notify(ctx, profileID, bus.Event{
		Topic:   route.Topic,
		Payload: recoverable.WithOptions(opts),
	})
}

// PendingCounts returns how many in-progress records the profile has and
// how many of those are already past expiry, computed from a single scan
// to avoid a second storage round trip.
func (m *Manager) PendingCounts(ctx context.Context, profileID string) (pending, recoverable int, err error) {
	es, err := m.OpenStore(ctx, profileID)
	if err != nil {
		return 0, 0, err
	}
	records, err := es.GetInProgress(ctx, "", false)
	if err != nil {
		return 0, 0, err
	}
	for _, rec := range records {
		pending++
		if retry.IsExpired(rec.ExpiryTimestamp) {
			recoverable++
		}
	}
	return pending, recoverable, nil
}

// Status aggregates event counts for observability. Read-only.
type Status struct {
	InProgress      map[domain.EventType]int `json:"in_progress"`
	Failed          map[domain.EventType]int `json:"failed"`
	TotalInProgress int                      `json:"total_in_progress"`
	TotalFailed     int                      `json:"total_failed"`
}

func (m *Manager) Status(ctx context.Context, profileID string) (*Status, error) {
	es, err := m.OpenStore(ctx, profileID)
	if err != nil {
		return nil, err
	}
	inProgress, err := es.GetInProgress(ctx, "", false)
	if err != nil {
		return nil, err
	}
	failed, err := es.GetFailed(ctx, "")
	if err != nil {
		return nil, err
	}

	st := &Status{
		InProgress: make(map[domain.EventType]int),
		Failed:     make(map[domain.EventType]int),
	}
	for _, rec := range inProgress {
		st.InProgress[rec.EventType]++
		st.TotalInProgress++
	}
	for _, rec := range failed {
		st.Failed[rec.EventType]++
		st.TotalFailed++
	}
	return st, nil
}

// Failed returns the profile's terminally failed records for reporting.
func (m *Manager) Failed(ctx context.Context, profileID string) ([]*domain.EventRecord, error) {
	es, err := m.OpenStore(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return es.GetFailed(ctx, "")
}

// CleanupOldEvents deletes the profile's completed records older than
// maxAge. maxAge <= 0 deletes all completed records.
func (m *Manager) CleanupOldEvents(ctx context.Context, profileID string, maxAge time.Duration) (int, error) {
	es, err := m.OpenStore(ctx, profileID)
	if err != nil {
		return 0, err
	}
	return es.CleanupCompleted(ctx, "", maxAge)
}
