package memory

import (
	"context"
	"sync"

	"hades-registry/internal/domain"
	"hades-registry/internal/storage"
)

// Registry is an in-memory implementation of storage.Registry.
//
// Update stages every write on a deep copy of the committed state and swaps
// the copy in only if the callback succeeds, so a failed call leaves the
// registry exactly as it was, sequence counter included.
type Registry struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	initialized bool
	authority   domain.AccountID
	contract    domain.ContractMetadata
	counter     uint64

	owners     map[string]domain.AccountID            // token_id -> owner
	metadata   map[string]*domain.TokenMetadata       // token_id -> metadata
	approvals  map[string]map[domain.AccountID]uint64 // token_id -> approvals
	ownerIndex map[domain.AccountID][]string          // owner -> token_ids, insertion order

	usage int64 // logical storage footprint in bytes
}

// NewRegistry creates a new empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{state: newState()}
}

func newState() *state {
	return &state{
		owners:     make(map[string]domain.AccountID),
		metadata:   make(map[string]*domain.TokenMetadata),
		approvals:  make(map[string]map[domain.AccountID]uint64),
		ownerIndex: make(map[domain.AccountID][]string),
	}
}

// Init writes the authority and contract descriptor into an empty registry.
func (r *Registry) Init(_ context.Context, authority domain.AccountID, meta *domain.ContractMetadata) error {
	if authority == "" || meta == nil {
		return storage.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.initialized {
		return storage.ErrDuplicateKey
	}
	r.state.initialized = true
	r.state.authority = authority
	r.state.contract = *meta
	return nil
}

// View runs fn against a private copy of the committed state. Writes made
// through the transaction are discarded.
func (r *Registry) View(_ context.Context, fn func(storage.RegistryTx) error) error {
	r.mu.Lock()
	snapshot := r.state.clone()
	r.mu.Unlock()

	return fn(&registryTx{state: snapshot})
}

// Update runs fn on a staged copy and commits it only on success.
func (r *Registry) Update(_ context.Context, fn func(storage.RegistryTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := r.state.clone()
	if err := fn(&registryTx{state: staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

// Close is a no-op for the in-memory registry.
func (r *Registry) Close() error {
	return nil
}

var _ storage.Registry = (*Registry)(nil)

func (s *state) clone() *state {
	c := &state{
		initialized: s.initialized,
		authority:   s.authority,
		contract:    s.contract,
		counter:     s.counter,
		owners:      make(map[string]domain.AccountID, len(s.owners)),
		metadata:    make(map[string]*domain.TokenMetadata, len(s.metadata)),
		approvals:   make(map[string]map[domain.AccountID]uint64, len(s.approvals)),
		ownerIndex:  make(map[domain.AccountID][]string, len(s.ownerIndex)),
		usage:       s.usage,
	}
	for id, owner := range s.owners {
		c.owners[id] = owner
	}
	for id, m := range s.metadata {
		metaCopy := *m
		c.metadata[id] = &metaCopy
	}
	for id, approvals := range s.approvals {
		approvalsCopy := make(map[domain.AccountID]uint64, len(approvals))
		for account, approvalID := range approvals {
			approvalsCopy[account] = approvalID
		}
		c.approvals[id] = approvalsCopy
	}
	for owner, ids := range s.ownerIndex {
		c.ownerIndex[owner] = append([]string(nil), ids...)
	}
	return c
}

// registryTx implements storage.RegistryTx over a staged state copy.
type registryTx struct {
	state *state
}

func (tx *registryTx) Authority() (domain.AccountID, error) {
	if !tx.state.initialized {
		return "", storage.ErrNotFound
	}
	return tx.state.authority, nil
}

func (tx *registryTx) SetAuthority(a domain.AccountID) error {
	if a == "" {
		return storage.ErrInvalidInput
	}
	if !tx.state.initialized {
		return storage.ErrNotFound
	}
	tx.state.authority = a
	return nil
}

func (tx *registryTx) ContractMetadata() (*domain.ContractMetadata, error) {
	if !tx.state.initialized {
		return nil, storage.ErrNotFound
	}
	meta := tx.state.contract
	return &meta, nil
}

func (tx *registryTx) NextSequence() (uint64, error) {
	tx.state.counter++
	return tx.state.counter, nil
}

func (tx *registryTx) InsertToken(t *domain.Token) error {
	if t == nil || t.TokenID == "" || t.OwnerID == "" {
		return storage.ErrInvalidInput
	}
	if _, exists := tx.state.owners[t.TokenID]; exists {
		return storage.ErrDuplicateKey
	}

	tx.state.owners[t.TokenID] = t.OwnerID
	if t.Metadata != nil {
		metaCopy := *t.Metadata
		tx.state.metadata[t.TokenID] = &metaCopy
	}
	tx.state.approvals[t.TokenID] = make(map[domain.AccountID]uint64)
	tx.state.usage += t.StorageBytes()
	return nil
}

func (tx *registryTx) GetToken(tokenID string) (*domain.Token, error) {
	owner, exists := tx.state.owners[tokenID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	token := &domain.Token{
		TokenID: tokenID,
		OwnerID: owner,
	}
	if m, ok := tx.state.metadata[tokenID]; ok {
		metaCopy := *m
		token.Metadata = &metaCopy
	}
	approvals := make(map[domain.AccountID]uint64, len(tx.state.approvals[tokenID]))
	for account, approvalID := range tx.state.approvals[tokenID] {
		approvals[account] = approvalID
	}
	token.ApprovedAccountIDs = approvals
	return token, nil
}

func (tx *registryTx) AddToOwner(owner domain.AccountID, tokenID string) error {
	if owner == "" || tokenID == "" {
		return storage.ErrInvalidInput
	}
	tx.state.ownerIndex[owner] = append(tx.state.ownerIndex[owner], tokenID)
	tx.state.usage += domain.IndexEntryStorageBytes(owner, tokenID)
	return nil
}

func (tx *registryTx) OwnerTokens(owner domain.AccountID) ([]string, error) {
	return append([]string(nil), tx.state.ownerIndex[owner]...), nil
}

func (tx *registryTx) StorageUsage() (int64, error) {
	return tx.state.usage, nil
}

var _ storage.RegistryTx = (*registryTx)(nil)
