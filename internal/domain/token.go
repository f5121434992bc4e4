package domain

// Workflow identifies which issuance workflow minted a token.
type Workflow string

const (
	WorkflowPropertyUnit Workflow = "PROPERTY_UNIT"
	WorkflowKYCIdentity  Workflow = "KYC_IDENTITY"
)

// String returns the string representation of Workflow.
func (w Workflow) String() string {
	return string(w)
}

// IsValid checks if the workflow is a valid value.
func (w Workflow) IsValid() bool {
	return w == WorkflowPropertyUnit || w == WorkflowKYCIdentity
}

// TokenMetadata holds the per-token descriptive fields.
// Corresponds to columns on the tokens table in PostgreSQL.
type TokenMetadata struct {
	Title         string  // human-readable token title
	Description   string  // human-readable description
	Media         string  // media URL (passport or unit image)
	MediaHash     string  // base58 SHA-256 over the media URL bytes
	Reference     string  // reference document URL
	ReferenceHash string  // base58 SHA-256 over the reference URL bytes
	Copies        uint64  // always 1 for this registry
	IssuedAt      *int64  // unset at mint time
	ExpiresAt     *int64  // unset at mint time
	Extra         *string // unset at mint time
}

// Token is a minted registry entry assembled from the split indices:
// owner map, metadata map and approval map.
type Token struct {
	TokenID            string               // PRIMARY KEY, globally unique
	OwnerID            AccountID            // current owner
	Metadata           *TokenMetadata       // nullable in the wire model
	ApprovedAccountIDs map[AccountID]uint64 // approval id per approved account, empty at mint
}

// ContractMetadata is the static registry-level descriptor, written once at
// initialization and never mutated.
type ContractMetadata struct {
	Spec      string
	Name      string
	Symbol    string
	Icon      *string
	BaseURI   *string
	Reference *string
}

// Descriptor values fixed by the registry.
const (
	MetadataSpec   = "nft-1.0.0"
	ContractName   = "Hades Identity NFT Contract"
	ContractSymbol = "HADES"
)

// DefaultContractMetadata returns the registry's immutable descriptor.
func DefaultContractMetadata() *ContractMetadata {
	return &ContractMetadata{
		Spec:   MetadataSpec,
		Name:   ContractName,
		Symbol: ContractSymbol,
	}
}
