package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hades-registry/internal/domain"
	"hades-registry/internal/storage"
)

// Registry implements storage.Registry on PostgreSQL. Every Update is one
// pgx transaction with the singleton state row locked FOR UPDATE, so the
// counter increment, the token insert, the owner-index append and the
// storage accounting commit together or not at all.
type Registry struct {
	pool *Pool
}

// NewRegistry creates a new PostgreSQL-backed registry.
func NewRegistry(pool *Pool) *Registry {
	return &Registry{pool: pool}
}

// Compile-time interface check.
var _ storage.Registry = (*Registry)(nil)

// Init writes the singleton state row. Returns ErrDuplicateKey if the
// registry is already initialized.
func (r *Registry) Init(ctx context.Context, authority domain.AccountID, meta *domain.ContractMetadata) error {
	if authority == "" || meta == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO registry_state (
			id, authority, counter, storage_usage, spec, name, symbol, icon, base_uri, reference
		) VALUES (1, $1, 0, 0, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		string(authority),
		meta.Spec,
		meta.Name,
		meta.Symbol,
		meta.Icon,
		meta.BaseURI,
		meta.Reference,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("init registry state: %w", err)
	}
	return nil
}

// View runs fn inside a read-only transaction.
func (r *Registry) View(ctx context.Context, fn func(storage.RegistryTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rtx, err := newRegistryTx(ctx, tx, false)
	if err != nil {
		return err
	}
	if err := fn(rtx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Update runs fn inside a read-write transaction and commits only if fn
// returns nil.
func (r *Registry) Update(ctx context.Context, fn func(storage.RegistryTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rtx, err := newRegistryTx(ctx, tx, true)
	if err != nil {
		return err
	}
	if err := fn(rtx); err != nil {
		return err
	}
	if err := rtx.flushState(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Close closes the underlying connection pool.
func (r *Registry) Close() error {
	r.pool.Close()
	return nil
}

// stateRow caches the singleton registry_state row for one transaction.
// Mutations stage on the struct and flush in one UPDATE before commit.
type stateRow struct {
	authority domain.AccountID
	counter   uint64
	usage     int64
	meta      domain.ContractMetadata
}

type registryTx struct {
	ctx   context.Context
	tx    pgx.Tx
	state *stateRow // nil when the registry is not initialized
	dirty bool
}

// newRegistryTx loads the state row, locking it when the transaction will
// write. A missing row means the registry is uninitialized; reads of
// token data still work, state accessors return ErrNotFound.
func newRegistryTx(ctx context.Context, tx pgx.Tx, forUpdate bool) (*registryTx, error) {
	query := `
		SELECT authority, counter, storage_usage, spec, name, symbol, icon, base_uri, reference
		FROM registry_state
		WHERE id = 1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var s stateRow
	err := tx.QueryRow(ctx, query).Scan(
		(*string)(&s.authority),
		&s.counter,
		&s.usage,
		&s.meta.Spec,
		&s.meta.Name,
		&s.meta.Symbol,
		&s.meta.Icon,
		&s.meta.BaseURI,
		&s.meta.Reference,
	)
	if isNotFoundError(err) {
		return &registryTx{ctx: ctx, tx: tx}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load registry state: %w", err)
	}
	return &registryTx{ctx: ctx, tx: tx, state: &s}, nil
}

// flushState writes the staged counter, usage and authority back.
func (t *registryTx) flushState() error {
	if !t.dirty {
		return nil
	}
	query := `
		UPDATE registry_state
		SET authority = $1, counter = $2, storage_usage = $3
		WHERE id = 1
	`
	if _, err := t.tx.Exec(t.ctx, query, string(t.state.authority), t.state.counter, t.state.usage); err != nil {
		return fmt.Errorf("flush registry state: %w", err)
	}
	return nil
}

func (t *registryTx) Authority() (domain.AccountID, error) {
	if t.state == nil {
		return "", storage.ErrNotFound
	}
	return t.state.authority, nil
}

func (t *registryTx) SetAuthority(a domain.AccountID) error {
	if a == "" {
		return storage.ErrInvalidInput
	}
	if t.state == nil {
		return storage.ErrNotFound
	}
	t.state.authority = a
	t.dirty = true
	return nil
}

func (t *registryTx) ContractMetadata() (*domain.ContractMetadata, error) {
	if t.state == nil {
		return nil, storage.ErrNotFound
	}
	meta := t.state.meta
	return &meta, nil
}

func (t *registryTx) NextSequence() (uint64, error) {
	if t.state == nil {
		return 0, storage.ErrNotFound
	}
	t.state.counter++
	t.dirty = true
	return t.state.counter, nil
}

func (t *registryTx) InsertToken(token *domain.Token) error {
	if token == nil || token.TokenID == "" || token.OwnerID == "" {
		return storage.ErrInvalidInput
	}
	if t.state == nil {
		return storage.ErrNotFound
	}

	m := token.Metadata
	if m == nil {
		m = &domain.TokenMetadata{}
	}
	query := `
		INSERT INTO tokens (
			token_id, owner_id, title, description, media, media_hash,
			reference, reference_hash, copies, issued_at, expires_at, extra
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := t.tx.Exec(t.ctx, query,
		token.TokenID,
		string(token.OwnerID),
		m.Title,
		m.Description,
		m.Media,
		m.MediaHash,
		m.Reference,
		m.ReferenceHash,
		m.Copies,
		m.IssuedAt,
		m.ExpiresAt,
		m.Extra,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}

	t.state.usage += token.StorageBytes()
	t.dirty = true
	return nil
}

func (t *registryTx) GetToken(tokenID string) (*domain.Token, error) {
	query := `
		SELECT token_id, owner_id, title, description, media, media_hash,
		       reference, reference_hash, copies, issued_at, expires_at, extra
		FROM tokens
		WHERE token_id = $1
	`
	var (
		token domain.Token
		meta  domain.TokenMetadata
	)
	err := t.tx.QueryRow(t.ctx, query, tokenID).Scan(
		&token.TokenID,
		(*string)(&token.OwnerID),
		&meta.Title,
		&meta.Description,
		&meta.Media,
		&meta.MediaHash,
		&meta.Reference,
		&meta.ReferenceHash,
		&meta.Copies,
		&meta.IssuedAt,
		&meta.ExpiresAt,
		&meta.Extra,
	)
	if isNotFoundError(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	token.Metadata = &meta

	approvals, err := t.tokenApprovals(tokenID)
	if err != nil {
		return nil, err
	}
	token.ApprovedAccountIDs = approvals
	return &token, nil
}

func (t *registryTx) tokenApprovals(tokenID string) (map[domain.AccountID]uint64, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT account_id, approval_id FROM token_approvals WHERE token_id = $1
	`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get token approvals: %w", err)
	}
	defer rows.Close()

	approvals := make(map[domain.AccountID]uint64)
	for rows.Next() {
		var (
			account    string
			approvalID uint64
		)
		if err := rows.Scan(&account, &approvalID); err != nil {
			return nil, fmt.Errorf("scan token approval: %w", err)
		}
		approvals[domain.AccountID(account)] = approvalID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token approvals: %w", err)
	}
	return approvals, nil
}

func (t *registryTx) AddToOwner(owner domain.AccountID, tokenID string) error {
	if owner == "" || tokenID == "" {
		return storage.ErrInvalidInput
	}
	if t.state == nil {
		return storage.ErrNotFound
	}

	query := `INSERT INTO owner_tokens (owner_id, token_id) VALUES ($1, $2)`
	if _, err := t.tx.Exec(t.ctx, query, string(owner), tokenID); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("index token for owner: %w", err)
	}

	t.state.usage += domain.IndexEntryStorageBytes(owner, tokenID)
	t.dirty = true
	return nil
}

func (t *registryTx) OwnerTokens(owner domain.AccountID) ([]string, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT token_id FROM owner_tokens WHERE owner_id = $1 ORDER BY seq ASC
	`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("list owner tokens: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owner token: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owner tokens: %w", err)
	}
	return ids, nil
}

func (t *registryTx) StorageUsage() (int64, error) {
	if t.state == nil {
		return 0, storage.ErrNotFound
	}
	return t.state.usage, nil
}

var _ storage.RegistryTx = (*registryTx)(nil)
