package revocation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openwallet-foundation/agent-recovery/internal/core/domain"
)

// ErrAlreadyRegistered is returned when a ledger object already exists.
// During recovery the registrar treats it as success: the interrupted
// operation evidently got through before the crash.
var ErrAlreadyRegistered = errors.New("already registered on ledger")

// Ledger is the distributed-ledger side of registry management.
type Ledger interface {
	// RegisterDefinition anchors a registry definition and returns its id.
	RegisterDefinition(ctx context.Context, profileID string, def domain.RegistryDefinition) (string, error)

	// RegisterList anchors a registry's revocation list state.
	RegisterList(ctx context.Context, profileID string, list domain.RevocationList) error
}

// DefinitionID derives the ledger identifier of a registry definition.
func DefinitionID(def domain.RegistryDefinition) string {
	return fmt.Sprintf("%s:4:%s:CL_ACCUM:%s", def.IssuerID, def.CredDefID, def.Tag)
}

// MemoryLedger simulates a ledger in process. Used when no real ledger is
// configured, and in tests.
type MemoryLedger struct {
	mu    sync.Mutex
	defs  map[string]domain.RegistryDefinition
	lists map[string]domain.RevocationList
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		defs:  make(map[string]domain.RegistryDefinition),
		lists: make(map[string]domain.RevocationList),
	}
}

func (l *MemoryLedger) RegisterDefinition(
	ctx context.Context,
	profileID string,
	def domain.RegistryDefinition,
) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := profileID + "/" + DefinitionID(def)
	if _, exists := l.defs[id]; exists {
		return DefinitionID(def), ErrAlreadyRegistered
	}
	l.defs[id] = def
	return DefinitionID(def), nil
}

func (l *MemoryLedger) RegisterList(
	ctx context.Context,
	profileID string,
	list domain.RevocationList,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := profileID + "/" + list.RevRegDefID
	if _, exists := l.lists[id]; exists {
		return ErrAlreadyRegistered
	}
	l.lists[id] = list
	return nil
}
