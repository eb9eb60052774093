// Package eventstore persists the durable event records that make
// registry-management operations recoverable across crashes and restarts.
package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openwallet-foundation/agent-recovery/internal/codec"
	"github.com/openwallet-foundation/agent-recovery/internal/core/domain"
	"github.com/openwallet-foundation/agent-recovery/internal/infra/storage"
	"github.com/openwallet-foundation/agent-recovery/internal/metrics"
	"github.com/openwallet-foundation/agent-recovery/internal/retry"
)

const tagState = "state"

// Store provides durable CRUD and query over event records for one
// profile, on top of the key-value storage engine contract.
type Store struct {
	engine storage.Store
	policy retry.Policy
	log    *slog.Logger
}

func New(engine storage.Store, policy retry.Policy, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{engine: engine, policy: policy, log: log}
}

// Request describes a new durable event record.
type Request struct {
	EventType domain.EventType
	Payload   any
	// CorrelationID doubles as the record's storage identity; generated
	// when empty.
	CorrelationID string
	RequestID     string
	Options       map[string]any
	// Expiry overrides the default attempt-0 expiry (RFC3339).
	Expiry string
}

// StoreRequest serializes the payload and writes one record in the
// requested state, keyed by correlation id. Returns the correlation id.
func (s *Store) StoreRequest(ctx context.Context, req Request) (string, error) {
	if req.EventType == "" {
		return "", errors.New("event type is required")
	}
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	expiry := req.Expiry
	if expiry == "" {
		expiry = s.policy.ExpiryTimestamp(0)
	}

	data, err := codec.Encode(req.Payload)
	if err != nil {
		return "", fmt.Errorf("encode event payload: %w", err)
	}

	rec := domain.EventRecord{
		EventType:       req.EventType,
		CorrelationID:   correlationID,
		RequestID:       req.RequestID,
		EventData:       data,
		State:           domain.StateRequested,
		Options:         req.Options,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
		ExpiryTimestamp: expiry,
	}

	if err := s.writeNew(ctx, &rec); err != nil {
		return "", err
	}
	metrics.EventsStored.WithLabelValues(string(req.EventType)).Inc()
	s.log.Debug("stored event request",
		"event_type", req.EventType,
		"correlation_id", correlationID,
		"expiry", expiry,
	)
	return correlationID, nil
}

// Response describes the outcome of an attempt at an operation.
type Response struct {
	EventType     domain.EventType
	CorrelationID string
	Success       bool
	ResponseData  any
	ErrorMsg      string
	RetryMetadata *domain.RetryMetadata
	// NewExpiry schedules another retry: the record stays requested with
	// this expiry instead of going to failure. Ignored on success.
	NewExpiry string
	// NewOptions replaces the stored options when non-nil.
	NewOptions map[string]any
}

// UpdateResponse transitions a record per the state machine: success is
// terminal; failure with NewExpiry re-arms the record as requested;
// failure without NewExpiry is terminal. A missing record is an accepted
// benign outcome (the caller may be racing a concurrent delete) and is
// logged, not raised.
func (s *Store) UpdateResponse(ctx context.Context, resp Response) error {
	rec, raw, err := s.read(ctx, resp.EventType, resp.CorrelationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Debug("event record gone before response update",
				"event_type", resp.EventType,
				"correlation_id", resp.CorrelationID,
			)
			return nil
		}
		return err
	}

	// Success is terminal; failure leaves only through a scheduled retry.
	terminal := rec.State == domain.StateSuccess ||
		(rec.State == domain.StateFailure && (resp.Success || resp.NewExpiry == ""))
	if terminal {
		s.log.Warn("ignoring response update on terminal record",
			"event_type", resp.EventType,
			"correlation_id", resp.CorrelationID,
			"state", rec.State,
		)
		return nil
	}

	success := resp.Success
	rec.ResponseSuccess = &success
	rec.ErrorMsg = resp.ErrorMsg
	if resp.ResponseData != nil {
		data, err := codec.Encode(resp.ResponseData)
		if err != nil {
			return fmt.Errorf("encode response data: %w", err)
		}
		rec.ResponseData = data
	}
	if resp.RetryMetadata != nil {
		rec.RetryMetadata = resp.RetryMetadata
	}
	if resp.NewOptions != nil {
		rec.Options = resp.NewOptions
	}

	switch {
	case resp.Success:
		rec.State = domain.StateSuccess
		rec.ErrorMsg = ""
	case resp.NewExpiry != "":
		rec.State = domain.StateRequested
		rec.ExpiryTimestamp = laterExpiry(rec.ExpiryTimestamp, resp.NewExpiry)
	default:
		rec.State = domain.StateFailure
	}

	if err := s.write(ctx, rec, raw); err != nil {
		return err
	}
	if rec.State != domain.StateRequested {
		metrics.EventsCompleted.WithLabelValues(string(rec.EventType), string(rec.State)).Inc()
	}
	s.log.Debug("updated event response",
		"event_type", rec.EventType,
		"correlation_id", rec.CorrelationID,
		"state", rec.State,
	)
	return nil
}

// UpdateForRetry re-arms a failed attempt: computes the next expiry and
// retry metadata from the policy and records the failure as a scheduled
// retry rather than a terminal state.
func (s *Store) UpdateForRetry(
	ctx context.Context,
	eventType domain.EventType,
	correlationID string,
	errorMsg string,
	retryCount int,
	newOptions map[string]any,
) error {
	meta := &domain.RetryMetadata{
		RetryCount:   retryCount,
		DelaySeconds: int(s.policy.BackoffDelay(retryCount) / time.Second),
		MinSeconds:   int(s.policy.MinRetryDuration / time.Second),
		MaxSeconds:   int(s.policy.MaxRetryDuration / time.Second),
		Multiplier:   s.policy.Multiplier,
	}
	metrics.EventsRetried.WithLabelValues(string(eventType)).Inc()
	return s.UpdateResponse(ctx, Response{
		EventType:     eventType,
		CorrelationID: correlationID,
		Success:       false,
		ErrorMsg:      errorMsg,
		RetryMetadata: meta,
		NewExpiry:     s.policy.ExpiryTimestamp(retryCount),
		NewOptions:    newOptions,
	})
}

// DeleteEvent removes a record. Deleting a record that is already gone is
// a no-op, logged for visibility.
func (s *Store) DeleteEvent(ctx context.Context, eventType domain.EventType, correlationID string) error {
	err := s.engine.DeleteRecord(ctx, string(eventType), correlationID)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug("event record already deleted",
			"event_type", eventType,
			"correlation_id", correlationID,
		)
		return nil
	}
	return err
}

// GetInProgress returns requested-state records, optionally limited to one
// event type and to records whose expiry has passed. A query failure on
// one type is logged and does not abort the scan of the others.
func (s *Store) GetInProgress(
	ctx context.Context,
	eventType domain.EventType,
	onlyExpired bool,
) ([]*domain.EventRecord, error) {
	records := s.scanState(ctx, eventType, domain.StateRequested)
	if !onlyExpired {
		return records, nil
	}
	var expired []*domain.EventRecord
	for _, rec := range records {
		if retry.IsExpired(rec.ExpiryTimestamp) {
			expired = append(expired, rec)
		}
	}
	return expired, nil
}

// GetFailed returns terminally failed records for operator-visible
// reporting. Failed records are never recovered automatically.
func (s *Store) GetFailed(ctx context.Context, eventType domain.EventType) ([]*domain.EventRecord, error) {
	return s.scanState(ctx, eventType, domain.StateFailure), nil
}

// CleanupCompleted deletes success and failure records older than maxAge,
// measured from created_at. maxAge <= 0 deletes all completed records.
// Records with an unparseable created_at count as old.
func (s *Store) CleanupCompleted(
	ctx context.Context,
	eventType domain.EventType,
	maxAge time.Duration,
) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	deleted := 0
	for _, state := range []domain.EventState{domain.StateSuccess, domain.StateFailure} {
		for _, rec := range s.scanState(ctx, eventType, state) {
			if maxAge > 0 {
				created, err := time.Parse(time.RFC3339, rec.CreatedAt)
				if err == nil && created.After(cutoff) {
					continue
				}
			}
			if err := s.DeleteEvent(ctx, rec.EventType, rec.CorrelationID); err != nil {
				s.log.Error("failed to delete completed event",
					"event_type", rec.EventType,
					"correlation_id", rec.CorrelationID,
					"error", err,
				)
				continue
			}
			deleted++
		}
	}
	metrics.EventsCleaned.Add(float64(deleted))
	return deleted, nil
}

func (s *Store) scanState(
	ctx context.Context,
	eventType domain.EventType,
	state domain.EventState,
) []*domain.EventRecord {
	types := domain.AllEventTypes
	if eventType != "" {
		types = []domain.EventType{eventType}
	}

	var out []*domain.EventRecord
	for _, et := range types {
		found, err := s.engine.FindAllRecords(ctx, string(et), map[string]string{tagState: string(state)})
		if err != nil {
			// One bad type must not abort the whole scan.
			s.log.Error("event record query failed",
				"event_type", et,
				"state", state,
				"error", err,
			)
			continue
		}
		for _, raw := range found {
			rec, err := decodeRecord(raw)
			if err != nil {
				s.log.Error("corrupt event record",
					"event_type", et,
					"record_id", raw.ID,
					"error", err,
				)
				continue
			}
			out = append(out, rec)
		}
	}
	return out
}

func (s *Store) read(
	ctx context.Context,
	eventType domain.EventType,
	correlationID string,
) (*domain.EventRecord, *storage.Record, error) {
	raw, err := s.engine.GetRecord(ctx, string(eventType), correlationID)
	if err != nil {
		return nil, nil, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, nil, err
	}
	return rec, raw, nil
}

func (s *Store) writeNew(ctx context.Context, rec *domain.EventRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}
	err = s.engine.AddRecord(ctx, storage.Record{
		Type:  string(rec.EventType),
		ID:    rec.CorrelationID,
		Value: value,
		Tags:  map[string]string{tagState: string(rec.State)},
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return fmt.Errorf("event record %s already exists: %w", rec.CorrelationID, err)
	}
	return err
}

func (s *Store) write(ctx context.Context, rec *domain.EventRecord, prev *storage.Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}
	return s.engine.UpdateRecord(ctx, storage.Record{
		Type:  prev.Type,
		ID:    prev.ID,
		Value: value,
		Tags:  map[string]string{tagState: string(rec.State)},
	})
}

func decodeRecord(raw *storage.Record) (*domain.EventRecord, error) {
	var rec domain.EventRecord
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal event record %s: %w", raw.ID, err)
	}
	return &rec, nil
}

// laterExpiry keeps expiry monotonically non-decreasing across retries of
// the same record.
func laterExpiry(current, proposed string) string {
	ct, errC := time.Parse(time.RFC3339, current)
	pt, errP := time.Parse(time.RFC3339, proposed)
	if errC != nil || errP != nil {
		return proposed
	}
	if pt.Before(ct) {
		return current
	}
	return proposed
}
