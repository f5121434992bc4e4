package storage

import (
	"context"

	"hades-registry/internal/domain"
)

// Registry is the persisted token registry: authority, sequence counter,
// token/owner/metadata/approval maps and the owner index.
//
// All mutation happens inside Update. If the callback returns an error the
// transaction commits nothing, including the sequence counter increment.
type Registry interface {
	// Init writes the authority and the contract descriptor into an empty
	// registry. Returns ErrDuplicateKey if the registry is already
	// initialized.
	Init(ctx context.Context, authority domain.AccountID, meta *domain.ContractMetadata) error

	// View runs fn against a read-only snapshot of the latest committed
	// state.
	View(ctx context.Context, fn func(RegistryTx) error) error

	// Update runs fn inside a read-write transaction. The transaction
	// commits only if fn returns nil; otherwise every staged write is
	// discarded and fn's error is returned.
	Update(ctx context.Context, fn func(RegistryTx) error) error

	// Close releases the underlying resources.
	Close() error
}

// RegistryTx is the registry state visible to one transaction.
type RegistryTx interface {
	// Authority returns the account permitted to mint property units and to
	// reassign the authority.
	Authority() (domain.AccountID, error)

	// SetAuthority replaces the authority account.
	SetAuthority(a domain.AccountID) error

	// ContractMetadata returns the immutable registry descriptor.
	ContractMetadata() (*domain.ContractMetadata, error)

	// NextSequence increments the shared mint counter by one and returns the
	// new value. The increment is only visible if the transaction commits.
	NextSequence() (uint64, error)

	// InsertToken writes the token's owner and metadata maps and an empty
	// approval map entry. Returns ErrDuplicateKey if the token id exists.
	InsertToken(t *domain.Token) error

	// GetToken assembles owner, metadata and approvals for a token id.
	// Returns ErrNotFound if the token does not exist.
	GetToken(tokenID string) (*domain.Token, error)

	// AddToOwner appends a token id to the owner's index entry, creating it
	// if absent. Must be called in the same transaction as InsertToken.
	AddToOwner(owner domain.AccountID, tokenID string) error

	// OwnerTokens lists the owner's token ids in insertion order. An owner
	// with no tokens yields an empty slice, never an error.
	OwnerTokens(owner domain.AccountID) ([]string, error)

	// StorageUsage returns the registry's logical storage footprint in
	// bytes, including writes already staged in this transaction.
	StorageUsage() (int64, error)
}

// MintJournal is the append-only issuance audit log. Appends happen after
// commit and are best-effort; a journal failure never undoes a mint.
type MintJournal interface {
	Append(ctx context.Context, e *domain.MintEvent) error

	// EventsForToken retrieves journal entries for a token id, ordered by
	// issuance time ASC.
	EventsForToken(ctx context.Context, tokenID string) ([]*domain.MintEvent, error)
}
