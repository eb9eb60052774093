package revocation

import (
	"github.com/openwallet-foundation/agent-recovery/internal/codec"
	"github.com/openwallet-foundation/agent-recovery/internal/core/domain"
	"github.com/openwallet-foundation/agent-recovery/internal/recovery"
)

// Topics carried on the event bus, one per registry operation.
const (
	TopicPrefix = "anoncreds.revocation."

	TopicRegDefCreate = TopicPrefix + "registry_definition.create"
	TopicRegDefStore  = TopicPrefix + "registry_definition.store"
	TopicListCreate   = TopicPrefix + "revocation_list.create"
	TopicListStore    = TopicPrefix + "revocation_list.store"
	TopicRegActivate  = TopicPrefix + "registry.activate"
	TopicRegFull      = TopicPrefix + "registry.full"
)

// Routes is the registered event-type dispatch table handed to the
// recovery manager.
func Routes() map[domain.EventType]recovery.Route {
	return map[domain.EventType]recovery.Route{
		domain.EventTypeRegDefCreate: {Topic: TopicRegDefCreate},
		domain.EventTypeRegDefStore:  {Topic: TopicRegDefStore},
		domain.EventTypeListCreate:   {Topic: TopicListCreate},
		domain.EventTypeListStore:    {Topic: TopicListStore},
		domain.EventTypeRegActivate:  {Topic: TopicRegActivate},
		domain.EventTypeRegFull:      {Topic: TopicRegFull},
	}
}

// RegDefCreatePayload asks for a registry definition to be registered on
// the ledger.
type RegDefCreatePayload struct {
	RequestID  string                    `json:"request_id,omitempty"`
	Definition domain.RegistryDefinition `json:"definition"`
	Options    codec.Options             `json:"options,omitempty"`
}

func (RegDefCreatePayload) PayloadKind() string { return "rev_reg_def_create.request" }
func (p RegDefCreatePayload) WithOptions(opts codec.Options) codec.Payload {
	p.Options = opts
	return p
}

// RegDefStorePayload asks for a ledger-registered definition to be saved
// into the tenant's wallet.
type RegDefStorePayload struct {
	RequestID   string                    `json:"request_id,omitempty"`
	RevRegDefID string                    `json:"rev_reg_def_id"`
	Definition  domain.RegistryDefinition `json:"definition"`
	Options     codec.Options             `json:"options,omitempty"`
}

func (RegDefStorePayload) PayloadKind() string { return "rev_reg_def_store.request" }
func (p RegDefStorePayload) WithOptions(opts codec.Options) codec.Payload {
	p.Options = opts
	return p
}

// ListCreatePayload asks for the registry's initial revocation list to be
// registered on the ledger.
type ListCreatePayload struct {
	RequestID   string                    `json:"request_id,omitempty"`
	RevRegDefID string                    `json:"rev_reg_def_id"`
	Definition  domain.RegistryDefinition `json:"definition"`
	Options     codec.Options             `json:"options,omitempty"`
}

func (ListCreatePayload) PayloadKind() string { return "rev_list_create.request" }
func (p ListCreatePayload) WithOptions(opts codec.Options) codec.Payload {
	p.Options = opts
	return p
}

// ListStorePayload asks for a registered revocation list to be saved into
// the tenant's wallet.
type ListStorePayload struct {
	RequestID   string                `json:"request_id,omitempty"`
	RevRegDefID string                `json:"rev_reg_def_id"`
	List        domain.RevocationList `json:"list"`
	Options     codec.Options         `json:"options,omitempty"`
}

func (ListStorePayload) PayloadKind() string { return "rev_list_store.request" }
func (p ListStorePayload) WithOptions(opts codec.Options) codec.Payload {
	p.Options = opts
	return p
}

// RegActivatePayload asks for the registry to become the active one for
// its credential definition.
type RegActivatePayload struct {
	RequestID   string        `json:"request_id,omitempty"`
	RevRegDefID string        `json:"rev_reg_def_id"`
	CredDefID   string        `json:"cred_def_id"`
	Options     codec.Options `json:"options,omitempty"`
}

func (RegActivatePayload) PayloadKind() string { return "rev_reg_activate.request" }
func (p RegActivatePayload) WithOptions(opts codec.Options) codec.Payload {
	p.Options = opts
	return p
}

// RegFullPayload reports that the active registry ran out of credential
// slots and a replacement is needed.
type RegFullPayload struct {
	RequestID   string        `json:"request_id,omitempty"`
	RevRegDefID string        `json:"rev_reg_def_id"`
	CredDefID   string        `json:"cred_def_id"`
	Options     codec.Options `json:"options,omitempty"`
}

func (RegFullPayload) PayloadKind() string { return "rev_reg_full.request" }
func (p RegFullPayload) WithOptions(opts codec.Options) codec.Payload {
	p.Options = opts
	return p
}

func init() {
	codec.Register[domain.RegistryDefinition]("registry_definition")
	codec.Register[domain.RevocationList]("revocation_list")
	codec.Register[RegDefCreatePayload]("rev_reg_def_create.request")
	codec.Register[RegDefStorePayload]("rev_reg_def_store.request")
	codec.Register[ListCreatePayload]("rev_list_create.request")
	codec.Register[ListStorePayload]("rev_list_store.request")
	codec.Register[RegActivatePayload]("rev_reg_activate.request")
	codec.Register[RegFullPayload]("rev_reg_full.request")
}
