package revocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openwallet-foundation/agent-recovery/internal/core/domain"
	"github.com/openwallet-foundation/agent-recovery/internal/infra/storage"
)

// Record types for wallet-side registry state, partitioned per profile by
// the storage engine.
const (
	recTypeRegDef   = "rev_reg_def"
	recTypeRevList  = "rev_list"
	recTypeActive   = "active_registry"
	tagCredDef      = "cred_def_id"
	tagRevRegDefTag = "tag"
)

// WalletStore keeps each tenant's registry definitions, revocation lists
// and active-registry pointers in the shared storage engine.
type WalletStore struct {
	stores storage.Provider
}

func NewWalletStore(stores storage.Provider) *WalletStore {
	return &WalletStore{stores: stores}
}

func (w *WalletStore) open(ctx context.Context, profileID string) (storage.Store, error) {
	return w.stores.OpenStore(ctx, profileID)
}

// SaveDefinition upserts a registry definition.
func (w *WalletStore) SaveDefinition(
	ctx context.Context,
	profileID, revRegDefID string,
	def domain.RegistryDefinition,
) error {
	value, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal registry definition: %w", err)
	}
	rec := storage.Record{
		Type:  recTypeRegDef,
		ID:    revRegDefID,
		Value: value,
		Tags:  map[string]string{tagCredDef: def.CredDefID, tagRevRegDefTag: def.Tag},
	}
	return w.upsert(ctx, profileID, rec)
}

// GetDefinition returns storage.ErrNotFound when absent.
func (w *WalletStore) GetDefinition(
	ctx context.Context,
	profileID, revRegDefID string,
) (*domain.RegistryDefinition, error) {
	s, err := w.open(ctx, profileID)
	if err != nil {
		return nil, err
	}
	rec, err := s.GetRecord(ctx, recTypeRegDef, revRegDefID)
	if err != nil {
		return nil, err
	}
	var def domain.RegistryDefinition
	if err := json.Unmarshal(rec.Value, &def); err != nil {
		return nil, fmt.Errorf("unmarshal registry definition %s: %w", revRegDefID, err)
	}
	return &def, nil
}

// SaveList upserts a registry's revocation list.
func (w *WalletStore) SaveList(
	ctx context.Context,
	profileID, revRegDefID string,
	list domain.RevocationList,
) error {
	value, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal revocation list: %w", err)
	}
	return w.upsert(ctx, profileID, storage.Record{
		Type:  recTypeRevList,
		ID:    revRegDefID,
		Value: value,
		Tags:  map[string]string{},
	})
}

// GetList returns storage.ErrNotFound when absent.
func (w *WalletStore) GetList(
	ctx context.Context,
	profileID, revRegDefID string,
) (*domain.RevocationList, error) {
	s, err := w.open(ctx, profileID)
	if err != nil {
		return nil, err
	}
	rec, err := s.GetRecord(ctx, recTypeRevList, revRegDefID)
	if err != nil {
		return nil, err
	}
	var list domain.RevocationList
	if err := json.Unmarshal(rec.Value, &list); err != nil {
		return nil, fmt.Errorf("unmarshal revocation list %s: %w", revRegDefID, err)
	}
	return &list, nil
}

// SetActive points a credential definition at its active registry.
// Naturally idempotent: setting the same registry twice is a no-op.
func (w *WalletStore) SetActive(ctx context.Context, profileID, credDefID, revRegDefID string) error {
	value, err := json.Marshal(map[string]string{"rev_reg_def_id": revRegDefID})
	if err != nil {
		return err
	}
	return w.upsert(ctx, profileID, storage.Record{
		Type:  recTypeActive,
		ID:    credDefID,
		Value: value,
		Tags:  map[string]string{tagCredDef: credDefID},
	})
}

// ActiveRegistry returns the active registry id for a credential
// definition, storage.ErrNotFound when none has been activated.
func (w *WalletStore) ActiveRegistry(ctx context.Context, profileID, credDefID string) (string, error) {
	s, err := w.open(ctx, profileID)
	if err != nil {
		return "", err
	}
	rec, err := s.GetRecord(ctx, recTypeActive, credDefID)
	if err != nil {
		return "", err
	}
	var v map[string]string
	if err := json.Unmarshal(rec.Value, &v); err != nil {
		return "", fmt.Errorf("unmarshal active registry pointer %s: %w", credDefID, err)
	}
	return v["rev_reg_def_id"], nil
}

func (w *WalletStore) upsert(ctx context.Context, profileID string, rec storage.Record) error {
	s, err := w.open(ctx, profileID)
	if err != nil {
		return err
	}
	err = s.AddRecord(ctx, rec)
	if errors.Is(err, storage.ErrDuplicate) {
		return s.UpdateRecord(ctx, rec)
	}
	return err
}
