package registry

import (
	"context"

	"hades-registry/internal/domain"
)

// Transferer sends funds to an account. Refunds go through this interface as
// deferred post-commit transfers: the mint is final before the transfer is
// attempted, and a transfer failure is logged, not retried.
type Transferer interface {
	Transfer(ctx context.Context, to domain.AccountID, amount uint64) error
}

// NopTransferer discards transfers. Used when no payment backend is wired.
type NopTransferer struct{}

// Transfer implements Transferer.
func (NopTransferer) Transfer(context.Context, domain.AccountID, uint64) error {
	return nil
}

var _ Transferer = NopTransferer{}
