// Package revocation drives the revocation-registry lifecycle: register a
// definition on the ledger, store it in the tenant's wallet, register and
// store its revocation list, activate the registry, and rotate a full one.
// Every step persists an event record before it is attempted, so an
// interrupted step can be replayed by the recovery subsystem; handlers
// apply idempotent rules when a replayed message carries the recovery flag.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openwallet-foundation/agent-recovery/internal/bus"
	"github.com/openwallet-foundation/agent-recovery/internal/codec"
	"github.com/openwallet-foundation/agent-recovery/internal/core/domain"
	"github.com/openwallet-foundation/agent-recovery/internal/eventstore"
	"github.com/openwallet-foundation/agent-recovery/internal/infra/storage"
	"github.com/openwallet-foundation/agent-recovery/internal/retry"
)

// Registrar emits and consumes registry operations on the event bus.
type Registrar struct {
	stores storage.Provider
	bus    bus.Bus
	ledger Ledger
	wallet *WalletStore
	policy retry.Policy
	log    *slog.Logger
}

func NewRegistrar(
	stores storage.Provider,
	b bus.Bus,
	ledger Ledger,
	wallet *WalletStore,
	policy retry.Policy,
	log *slog.Logger,
) *Registrar {
	if log == nil {
		log = slog.Default()
	}
	return &Registrar{
		stores: stores,
		bus:    b,
		ledger: ledger,
		wallet: wallet,
		policy: policy,
		log:    log,
	}
}

// Register subscribes the operation handlers.
func (r *Registrar) Register(local *bus.Local) {
	local.Subscribe(TopicRegDefCreate, payloadHandler(r.handleRegDefCreate))
	local.Subscribe(TopicRegDefStore, payloadHandler(r.handleRegDefStore))
	local.Subscribe(TopicListCreate, payloadHandler(r.handleListCreate))
	local.Subscribe(TopicListStore, payloadHandler(r.handleListStore))
	local.Subscribe(TopicRegActivate, payloadHandler(r.handleRegActivate))
	local.Subscribe(TopicRegFull, payloadHandler(r.handleRegFull))
}

// payloadHandler adapts a typed handler onto the bus handler signature.
func payloadHandler[T codec.Payload](h func(ctx context.Context, profileID string, p T) error) bus.Handler {
	return func(ctx context.Context, profileID string, ev bus.Event) error {
		p, ok := ev.Payload.(T)
		if !ok {
			return fmt.Errorf("topic %s: unexpected payload %T", ev.Topic, ev.Payload)
		}
		return h(ctx, profileID, p)
	}
}

func (r *Registrar) openStore(ctx context.Context, profileID string) (*eventstore.Store, error) {
	engine, err := r.stores.OpenStore(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("open store for profile %s: %w", profileID, err)
	}
	return eventstore.New(engine, r.policy, r.log), nil
}

// publish persists the request event and then delivers it on the bus,
// returning the correlation id. The record is written first: if the
// process dies between the write and the delivery, recovery replays it.
func (r *Registrar) publish(
	ctx context.Context,
	profileID string,
	eventType domain.EventType,
	topic string,
	requestID string,
	opts codec.Options,
	build func(opts codec.Options) codec.Payload,
) (string, error) {
	es, err := r.openStore(ctx, profileID)
	if err != nil {
		return "", err
	}

	correlationID := uuid.New().String()
	opts = opts.Copy()
	opts["correlation_id"] = correlationID
	payload := build(opts)

	if _, err := es.StoreRequest(ctx, eventstore.Request{
		EventType:     eventType,
		Payload:       payload,
		CorrelationID: correlationID,
		RequestID:     requestID,
		Options:       map[string]any(opts),
	}); err != nil {
		return "", err
	}
	if err := r.bus.Notify(ctx, profileID, bus.Event{Topic: topic, Payload: payload}); err != nil {
		return "", err
	}
	return correlationID, nil
}

// RequestDefinitionCreate starts the registry setup workflow for a tenant.
func (r *Registrar) RequestDefinitionCreate(
	ctx context.Context,
	profileID string,
	def domain.RegistryDefinition,
	opts codec.Options,
) (string, error) {
	requestID := uuid.New().String()
	return r.publish(ctx, profileID, domain.EventTypeRegDefCreate, TopicRegDefCreate, requestID, opts,
		func(opts codec.Options) codec.Payload {
			return RegDefCreatePayload{RequestID: requestID, Definition: def, Options: opts}
		})
}

// ReportRegistryFull reports an exhausted registry; handling rotates in a
// replacement definition.
func (r *Registrar) ReportRegistryFull(
	ctx context.Context,
	profileID, revRegDefID, credDefID string,
	opts codec.Options,
) (string, error) {
	requestID := uuid.New().String()
	return r.publish(ctx, profileID, domain.EventTypeRegFull, TopicRegFull, requestID, opts,
		func(opts codec.Options) codec.Payload {
			return RegFullPayload{
				RequestID:   requestID,
				RevRegDefID: revRegDefID,
				CredDefID:   credDefID,
				Options:     opts,
			}
		})
}

func (r *Registrar) handleRegDefCreate(ctx context.Context, profileID string, p RegDefCreatePayload) error {
	revRegDefID, err := r.ledger.RegisterDefinition(ctx, profileID, p.Definition)
	if err != nil {
		// A replay racing work that already landed is success, not failure.
		if !(p.Options.Bool("recovery") && errors.Is(err, ErrAlreadyRegistered)) {
			return r.scheduleRetry(ctx, profileID, domain.EventTypeRegDefCreate, p.Options, err)
		}
		revRegDefID = DefinitionID(p.Definition)
	}

	if err := r.completeStep(ctx, profileID, domain.EventTypeRegDefCreate, p.Options,
		map[string]any{"rev_reg_def_id": revRegDefID}); err != nil {
		return err
	}

	_, err = r.publish(ctx, profileID, domain.EventTypeRegDefStore, TopicRegDefStore, p.RequestID,
		forwardOptions(p.Options),
		func(opts codec.Options) codec.Payload {
			return RegDefStorePayload{
				RequestID:   p.RequestID,
				RevRegDefID: revRegDefID,
				Definition:  p.Definition,
				Options:     opts,
			}
		})
	return err
}

func (r *Registrar) handleRegDefStore(ctx context.Context, profileID string, p RegDefStorePayload) error {
	stored := false
	if p.Options.Bool("recovery") {
		if _, err := r.wallet.GetDefinition(ctx, profileID, p.RevRegDefID); err == nil {
			stored = true
		}
	}
	if !stored {
		if err := r.wallet.SaveDefinition(ctx, profileID, p.RevRegDefID, p.Definition); err != nil {
			return r.scheduleRetry(ctx, profileID, domain.EventTypeRegDefStore, p.Options, err)
		}
	}

	if err := r.completeStep(ctx, profileID, domain.EventTypeRegDefStore, p.Options, nil); err != nil {
		return err
	}

	_, err := r.publish(ctx, profileID, domain.EventTypeListCreate, TopicListCreate, p.RequestID,
		forwardOptions(p.Options),
		func(opts codec.Options) codec.Payload {
			return ListCreatePayload{
				RequestID:   p.RequestID,
				RevRegDefID: p.RevRegDefID,
				Definition:  p.Definition,
				Options:     opts,
			}
		})
	return err
}

func (r *Registrar) handleListCreate(ctx context.Context, profileID string, p ListCreatePayload) error {
	list := domain.RevocationList{
		RevRegDefID: p.RevRegDefID,
		IssuerID:    p.Definition.IssuerID,
		Revoked:     []int{},
		Accumulator: "1",
	}

	if err := r.ledger.RegisterList(ctx, profileID, list); err != nil {
		if !(p.Options.Bool("recovery") && errors.Is(err, ErrAlreadyRegistered)) {
			return r.scheduleRetry(ctx, profileID, domain.EventTypeListCreate, p.Options, err)
		}
	}

	if err := r.completeStep(ctx, profileID, domain.EventTypeListCreate, p.Options, nil); err != nil {
		return err
	}

	_, err := r.publish(ctx, profileID, domain.EventTypeListStore, TopicListStore, p.RequestID,
		forwardOptions(p.Options),
		func(opts codec.Options) codec.Payload {
			return ListStorePayload{
				RequestID:   p.RequestID,
				RevRegDefID: p.RevRegDefID,
				List:        list,
				Options:     opts,
			}
		})
	return err
}

func (r *Registrar) handleListStore(ctx context.Context, profileID string, p ListStorePayload) error {
	stored := false
	if p.Options.Bool("recovery") {
		if _, err := r.wallet.GetList(ctx, profileID, p.RevRegDefID); err == nil {
			stored = true
		}
	}
	if !stored {
		if err := r.wallet.SaveList(ctx, profileID, p.RevRegDefID, p.List); err != nil {
			return r.scheduleRetry(ctx, profileID, domain.EventTypeListStore, p.Options, err)
		}
	}

	if err := r.completeStep(ctx, profileID, domain.EventTypeListStore, p.Options, nil); err != nil {
		return err
	}

	_, err := r.publish(ctx, profileID, domain.EventTypeRegActivate, TopicRegActivate, p.RequestID,
		forwardOptions(p.Options),
		func(opts codec.Options) codec.Payload {
			// CredDefID is resolved from the stored definition when the
			// activation runs.
			return RegActivatePayload{
				RequestID:   p.RequestID,
				RevRegDefID: p.RevRegDefID,
				Options:     opts,
			}
		})
	return err
}

func (r *Registrar) handleRegActivate(ctx context.Context, profileID string, p RegActivatePayload) error {
	credDefID := p.CredDefID
	if def, err := r.wallet.GetDefinition(ctx, profileID, p.RevRegDefID); err == nil {
		credDefID = def.CredDefID
	}
	if credDefID == "" {
		return r.scheduleRetry(ctx, profileID, domain.EventTypeRegActivate, p.Options,
			fmt.Errorf("no stored definition for %s", p.RevRegDefID))
	}

	if err := r.wallet.SetActive(ctx, profileID, credDefID, p.RevRegDefID); err != nil {
		return r.scheduleRetry(ctx, profileID, domain.EventTypeRegActivate, p.Options, err)
	}

	r.log.Info("revocation registry active",
		"profile", profileID,
		"rev_reg_def_id", p.RevRegDefID,
		"cred_def_id", credDefID,
	)
	return r.completeStep(ctx, profileID, domain.EventTypeRegActivate, p.Options, nil)
}

// handleRegFull rotates an exhausted registry: a replacement definition
// with a fresh tag enters the normal create workflow and eventually takes
// over as the active registry.
func (r *Registrar) handleRegFull(ctx context.Context, profileID string, p RegFullPayload) error {
	def, err := r.wallet.GetDefinition(ctx, profileID, p.RevRegDefID)
	if err != nil {
		return r.scheduleRetry(ctx, profileID, domain.EventTypeRegFull, p.Options, err)
	}

	if p.Options.Bool("recovery") {
		credDefID := p.CredDefID
		if credDefID == "" {
			credDefID = def.CredDefID
		}
		// If the active registry already moved off the exhausted one, the
		// interrupted rotation ran to completion before the crash.
		if active, err := r.wallet.ActiveRegistry(ctx, profileID, credDefID); err == nil && active != p.RevRegDefID {
			return r.completeStep(ctx, profileID, domain.EventTypeRegFull, p.Options,
				map[string]any{"active_rev_reg_def_id": active})
		}
	}

	replacement := *def
	replacement.Tag = fmt.Sprintf("%s-%s", def.Tag, uuid.New().String()[:8])
	replacement.TailsHash = ""
	replacement.TailsLocation = ""

	if _, err := r.RequestDefinitionCreate(ctx, profileID, replacement, forwardOptions(p.Options)); err != nil {
		return r.scheduleRetry(ctx, profileID, domain.EventTypeRegFull, p.Options, err)
	}
	return r.completeStep(ctx, profileID, domain.EventTypeRegFull, p.Options,
		map[string]any{"replacement_tag": replacement.Tag})
}

// scheduleRetry re-arms the step's event record with the next backoff
// expiry. The step error itself is considered handled here.
func (r *Registrar) scheduleRetry(
	ctx context.Context,
	profileID string,
	eventType domain.EventType,
	opts codec.Options,
	cause error,
) error {
	es, err := r.openStore(ctx, profileID)
	if err != nil {
		return err
	}
	retryCount := opts.Int("retry_count") + 1
	newOpts := opts.Copy()
	newOpts["retry_count"] = retryCount
	delete(newOpts, "recovery")

	r.log.Warn("registry operation failed, retry scheduled",
		"profile", profileID,
		"event_type", eventType,
		"correlation_id", opts.String("correlation_id"),
		"retry_count", retryCount,
		"error", cause,
	)
	return es.UpdateForRetry(ctx, eventType, opts.String("correlation_id"),
		cause.Error(), retryCount, map[string]any(newOpts))
}

func (r *Registrar) completeStep(
	ctx context.Context,
	profileID string,
	eventType domain.EventType,
	opts codec.Options,
	responseData map[string]any,
) error {
	es, err := r.openStore(ctx, profileID)
	if err != nil {
		return err
	}
	return es.UpdateResponse(ctx, eventstore.Response{
		EventType:     eventType,
		CorrelationID: opts.String("correlation_id"),
		Success:       true,
		ResponseData:  responseData,
	})
}

// forwardOptions carries caller options into the next workflow step,
// dropping the per-step bookkeeping keys.
func forwardOptions(opts codec.Options) codec.Options {
	out := opts.Copy()
	delete(out, "correlation_id")
	delete(out, "retry_count")
	delete(out, "recovery")
	return out
}
