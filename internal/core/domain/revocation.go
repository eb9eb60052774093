package domain

// RegistryDefinition is the issuer-side definition of a revocation registry.
type RegistryDefinition struct {
	IssuerID      string `json:"issuer_id"`
	CredDefID     string `json:"cred_def_id"`
	Tag           string `json:"tag"`
	MaxCredNum    int    `json:"max_cred_num"`
	TailsHash     string `json:"tails_hash,omitempty"`
	TailsLocation string `json:"tails_location,omitempty"`
}

// PayloadKind implements the payload codec discriminator.
func (RegistryDefinition) PayloadKind() string { return "registry_definition" }

// RevocationList is the accumulator state for one registry.
type RevocationList struct {
	RevRegDefID string `json:"rev_reg_def_id"`
	IssuerID    string `json:"issuer_id"`
	Revoked     []int  `json:"revocation_list"`
	Accumulator string `json:"current_accumulator,omitempty"`
}

// PayloadKind implements the payload codec discriminator.
func (RevocationList) PayloadKind() string { return "revocation_list" }
