package clickhouse

import (
	"context"
	"fmt"

	"hades-registry/internal/domain"
	"hades-registry/internal/storage"
)

// MintJournalStore implements storage.MintJournal using ClickHouse.
type MintJournalStore struct {
	conn *Conn
}

// NewMintJournalStore creates a new MintJournalStore.
func NewMintJournalStore(conn *Conn) *MintJournalStore {
	return &MintJournalStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MintJournal = (*MintJournalStore)(nil)

// Append adds one issuance event to the journal.
func (s *MintJournalStore) Append(ctx context.Context, e *domain.MintEvent) error {
	if e == nil || e.TokenID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO mint_events (
			token_id, workflow, owner_id, caller_id,
			deposit, required_cost, refund, storage_delta, issued_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := s.conn.Exec(ctx, query,
		e.TokenID,
		string(e.Workflow),
		string(e.OwnerID),
		string(e.CallerID),
		e.Deposit,
		e.RequiredCost,
		e.Refund,
		e.StorageDelta,
		e.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("insert mint event: %w", err)
	}
	return nil
}

// EventsForToken retrieves journal entries for a token id, ordered by
// issuance time ASC.
func (s *MintJournalStore) EventsForToken(ctx context.Context, tokenID string) ([]*domain.MintEvent, error) {
	query := `
		SELECT token_id, workflow, owner_id, caller_id,
		       deposit, required_cost, refund, storage_delta, issued_at
		FROM mint_events
		WHERE token_id = ?
		ORDER BY issued_at ASC
	`
	rows, err := s.conn.Query(ctx, query, tokenID)
	if err != nil {
		return nil, fmt.Errorf("query mint events: %w", err)
	}
	defer rows.Close()

	var events []*domain.MintEvent
	for rows.Next() {
		var (
			e        domain.MintEvent
			workflow string
			owner    string
			caller   string
		)
		err := rows.Scan(
			&e.TokenID,
			&workflow,
			&owner,
			&caller,
			&e.Deposit,
			&e.RequiredCost,
			&e.Refund,
			&e.StorageDelta,
			&e.IssuedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan mint event: %w", err)
		}
		e.Workflow = domain.Workflow(workflow)
		e.OwnerID = domain.AccountID(owner)
		e.CallerID = domain.AccountID(caller)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mint events: %w", err)
	}
	return events, nil
}
