package memory

import (
	"context"
	"sort"
	"sync"

	"hades-registry/internal/domain"
	"hades-registry/internal/storage"
)

// Journal is an in-memory implementation of storage.MintJournal.
type Journal struct {
	mu     sync.RWMutex
	events []*domain.MintEvent
}

// NewJournal creates a new in-memory mint journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Append adds one issuance event to the journal.
func (j *Journal) Append(_ context.Context, e *domain.MintEvent) error {
	if e == nil || e.TokenID == "" {
		return storage.ErrInvalidInput
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	eventCopy := *e
	j.events = append(j.events, &eventCopy)
	return nil
}

// EventsForToken retrieves journal entries for a token id, ordered by
// issuance time ASC.
func (j *Journal) EventsForToken(_ context.Context, tokenID string) ([]*domain.MintEvent, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*domain.MintEvent
	for _, e := range j.events {
		if e.TokenID == tokenID {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}
	sort.SliceStable(result, func(i, k int) bool {
		return result[i].IssuedAt < result[k].IssuedAt
	})
	return result, nil
}

var _ storage.MintJournal = (*Journal)(nil)
