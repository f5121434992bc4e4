// Package registry implements the storage-metered NFT registry: the two
// minting workflows, the authority rules and the query layer over the split
// token/owner/metadata/approval indices.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"hades-registry/internal/domain"
	"hades-registry/internal/observability"
	"hades-registry/internal/storage"
	"hades-registry/internal/tokenid"
)

// minNameComponents is the minimum number of space-separated components in a
// full name accepted by the identity workflow.
const minNameComponents = 3

// EventSink receives mint events after commit, e.g. the WebSocket feed hub.
type EventSink interface {
	Publish(e *domain.MintEvent)
}

// Call carries the authenticated caller identity and the payment attached to
// one registry call. Both are supplied by the transport layer.
type Call struct {
	Caller  domain.AccountID
	Deposit uint64
}

// PropertyUnitInput is the input of the owner-gated property-unit workflow.
type PropertyUnitInput struct {
	TokenOwner         domain.AccountID
	PropertyIdentifier string
	SplitIdentifier    string
	DocURL             string
	ImageURL           string
}

// IdentityInput is the input of the self-service KYC identity workflow.
// AccountID is the mint target; when empty the token goes to the caller.
type IdentityInput struct {
	PassportURL string
	MetadataURL string
	FullName    string
	AccountID   domain.AccountID
}

// Config assembles an Engine.
type Config struct {
	Store        storage.Registry
	Journal      storage.MintJournal    // optional issuance audit log
	Transfer     Transferer             // optional refund backend
	Sink         EventSink              // optional live feed
	Metrics      *observability.Metrics // optional
	Logger       *log.Logger
	PricePerByte uint64
	Now          func() time.Time
}

// Engine orchestrates the two issuance workflows over one underlying
// registry. Mutating calls are processed one at a time.
type Engine struct {
	mu sync.Mutex

	store    storage.Registry
	journal  storage.MintJournal
	transfer Transferer
	sink     EventSink
	metrics  *observability.Metrics
	logger   *log.Logger
	meter    Meter
	now      func() time.Time
}

// New creates an Engine from cfg. Store is required.
func New(cfg Config) *Engine {
	e := &Engine{
		store:    cfg.Store,
		journal:  cfg.Journal,
		transfer: cfg.Transfer,
		sink:     cfg.Sink,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		meter:    Meter{PricePerByte: cfg.PricePerByte},
		now:      cfg.Now,
	}
	if e.transfer == nil {
		e.transfer = NopTransferer{}
	}
	if e.logger == nil {
		e.logger = log.New(os.Stderr, "[registry] ", log.LstdFlags)
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Initialize writes the authority and the contract descriptor into an empty
// registry.
func (e *Engine) Initialize(ctx context.Context, owner domain.AccountID) error {
	if err := owner.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	return e.store.Init(ctx, owner, domain.DefaultContractMetadata())
}

// MintPropertyUnit mints a property-unit token to in.TokenOwner. Only the
// current authority may call it.
func (e *Engine) MintPropertyUnit(ctx context.Context, call Call, in PropertyUnitInput) (*domain.Token, error) {
	if err := in.TokenOwner.Validate(); err != nil {
		e.countFailure("invalid_account")
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		token   *domain.Token
		receipt Receipt
	)
	start := time.Now()
	issuedAt := e.now().Unix()
	err := e.store.Update(ctx, func(tx storage.RegistryTx) error {
		authority, err := tx.Authority()
		if err != nil {
			return fmt.Errorf("read authority: %w", err)
		}
		if call.Caller != authority {
			return ErrUnauthorized
		}

		before, err := tx.StorageUsage()
		if err != nil {
			return fmt.Errorf("read storage usage: %w", err)
		}

		seq, err := tx.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}

		token = &domain.Token{
			TokenID: tokenid.Sequential(seq),
			OwnerID: in.TokenOwner,
			Metadata: &domain.TokenMetadata{
				Title:         fmt.Sprintf("Unit %s of property %s", in.SplitIdentifier, in.PropertyIdentifier),
				Description:   fmt.Sprintf("Token for split %s of property %s", in.SplitIdentifier, in.PropertyIdentifier),
				Media:         in.ImageURL,
				MediaHash:     tokenid.URLHash(in.ImageURL),
				Reference:     in.DocURL,
				ReferenceHash: tokenid.URLHash(in.DocURL),
				Copies:        1,
			},
			ApprovedAccountIDs: map[domain.AccountID]uint64{},
		}

		receipt, err = e.commitToken(tx, token, before, call.Deposit)
		return err
	})
	if err != nil {
		e.countFailure(failureReason(err))
		return nil, err
	}

	e.observeMintDuration(start)
	e.afterCommit(ctx, token, domain.WorkflowPropertyUnit, call, receipt, issuedAt)
	return token, nil
}

// RegisterIdentity mints a KYC identity token. Open to any caller; the full
// name must have at least 3 space-separated components.
func (e *Engine) RegisterIdentity(ctx context.Context, call Call, in IdentityInput) (*domain.Token, error) {
	if len(strings.Split(in.FullName, " ")) < minNameComponents {
		e.countFailure("invalid_name")
		return nil, ErrInvalidName
	}

	target := in.AccountID
	if target == "" {
		target = call.Caller
	}
	if err := target.Validate(); err != nil {
		e.countFailure("invalid_account")
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		token   *domain.Token
		receipt Receipt
	)
	start := time.Now()
	issuedAt := e.now().Unix()
	err := e.store.Update(ctx, func(tx storage.RegistryTx) error {
		before, err := tx.StorageUsage()
		if err != nil {
			return fmt.Errorf("read storage usage: %w", err)
		}

		seq, err := tx.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}

		id := tokenid.Identity(issuedAt, seq)
		token = &domain.Token{
			TokenID: id,
			OwnerID: target,
			Metadata: &domain.TokenMetadata{
				Title:         fmt.Sprintf("KYC for %s with id %s", in.FullName, id),
				Description:   fmt.Sprintf("Hades NFT representing identity for user with name %s and identity number %s", in.FullName, id),
				Media:         in.PassportURL,
				MediaHash:     tokenid.URLHash(in.PassportURL),
				Reference:     in.MetadataURL,
				ReferenceHash: tokenid.URLHash(in.MetadataURL),
				Copies:        1,
			},
			ApprovedAccountIDs: map[domain.AccountID]uint64{},
		}

		receipt, err = e.commitToken(tx, token, before, call.Deposit)
		return err
	})
	if err != nil {
		e.countFailure(failureReason(err))
		return nil, err
	}

	e.observeMintDuration(start)
	e.afterCommit(ctx, token, domain.WorkflowKYCIdentity, call, receipt, issuedAt)
	return token, nil
}

// commitToken writes the token and its owner-index entry and settles the
// storage cost against the attached deposit. Any error rolls the whole call
// back.
func (e *Engine) commitToken(tx storage.RegistryTx, token *domain.Token, before int64, deposit uint64) (Receipt, error) {
	if err := tx.InsertToken(token); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return Receipt{}, fmt.Errorf("%w: %s", ErrDuplicateToken, token.TokenID)
		}
		return Receipt{}, fmt.Errorf("insert token: %w", err)
	}
	if err := tx.AddToOwner(token.OwnerID, token.TokenID); err != nil {
		return Receipt{}, fmt.Errorf("index token for owner: %w", err)
	}

	after, err := tx.StorageUsage()
	if err != nil {
		return Receipt{}, fmt.Errorf("read storage usage: %w", err)
	}
	return e.meter.Settle(before, after, deposit)
}

// afterCommit runs the detached post-commit effects of a successful mint:
// refund transfer, journal append, feed publish and metrics. None of them
// can undo the mint.
func (e *Engine) afterCommit(ctx context.Context, token *domain.Token, workflow domain.Workflow, call Call, receipt Receipt, issuedAt int64) {
	event := &domain.MintEvent{
		TokenID:      token.TokenID,
		Workflow:     workflow,
		OwnerID:      token.OwnerID,
		CallerID:     call.Caller,
		Deposit:      call.Deposit,
		RequiredCost: receipt.Required,
		Refund:       receipt.Refund,
		StorageDelta: receipt.StorageDelta,
		IssuedAt:     issuedAt,
	}

	if e.metrics != nil {
		e.metrics.MintsTotal.WithLabelValues(workflow.String()).Inc()
		e.metrics.StorageBytesCharged.Add(float64(receipt.StorageDelta))
		e.metrics.DepositRequired.Observe(float64(receipt.Required))
	}

	if receipt.Refund > 0 {
		go e.sendRefund(call.Caller, receipt.Refund)
	}

	if e.journal != nil {
		if err := e.journal.Append(ctx, event); err != nil {
			e.logger.Printf("journal append for token %s failed: %v", token.TokenID, err)
			if e.metrics != nil {
				e.metrics.JournalFailuresTotal.Inc()
			}
		} else if e.metrics != nil {
			e.metrics.JournalAppendsTotal.Inc()
		}
	}

	if e.sink != nil {
		e.sink.Publish(event)
	}
}

// sendRefund is the fire-and-forget refund transfer. The mint is already
// final; a failed transfer is logged and counted, never retried here.
func (e *Engine) sendRefund(to domain.AccountID, amount uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.transfer.Transfer(ctx, to, amount); err != nil {
		e.logger.Printf("refund of %d to %s failed: %v", amount, to, err)
		if e.metrics != nil {
			e.metrics.RefundFailuresTotal.Inc()
		}
		return
	}
	if e.metrics != nil {
		e.metrics.RefundsTotal.Inc()
		e.metrics.RefundAmountTotal.Add(float64(amount))
	}
}

// SetOwner reassigns the authority. Only the current holder may call it.
func (e *Engine) SetOwner(ctx context.Context, call Call, newOwner domain.AccountID) error {
	if err := newOwner.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.store.Update(ctx, func(tx storage.RegistryTx) error {
		authority, err := tx.Authority()
		if err != nil {
			return fmt.Errorf("read authority: %w", err)
		}
		if call.Caller != authority {
			return ErrUnauthorized
		}
		return tx.SetAuthority(newOwner)
	})
}

// FindToken returns the token or nil if it does not exist.
func (e *Engine) FindToken(ctx context.Context, tokenID string) (*domain.Token, error) {
	var token *domain.Token
	err := e.store.View(ctx, func(tx storage.RegistryTx) error {
		t, err := tx.GetToken(tokenID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		token = t
		return err
	})
	return token, err
}

// GetToken returns the token or ErrTokenNotFound.
func (e *Engine) GetToken(ctx context.Context, tokenID string) (*domain.Token, error) {
	token, err := e.FindToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}
	return token, nil
}

// TokensOfOwner resolves every token in the owner's index entry. An index
// entry without a matching store entry fails loudly.
func (e *Engine) TokensOfOwner(ctx context.Context, owner domain.AccountID) ([]*domain.Token, error) {
	var tokens []*domain.Token
	err := e.store.View(ctx, func(tx storage.RegistryTx) error {
		ids, err := tx.OwnerTokens(owner)
		if err != nil {
			return fmt.Errorf("list owner tokens: %w", err)
		}
		tokens = make([]*domain.Token, 0, len(ids))
		for _, id := range ids {
			t, err := tx.GetToken(id)
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: token %s, owner %s", ErrIndexInconsistency, id, owner)
			}
			if err != nil {
				return fmt.Errorf("resolve token %s: %w", id, err)
			}
			tokens = append(tokens, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// ContractMetadata returns the immutable registry descriptor.
func (e *Engine) ContractMetadata(ctx context.Context) (*domain.ContractMetadata, error) {
	var meta *domain.ContractMetadata
	err := e.store.View(ctx, func(tx storage.RegistryTx) error {
		m, err := tx.ContractMetadata()
		meta = m
		return err
	})
	return meta, err
}

// Authority returns the current authority account.
func (e *Engine) Authority(ctx context.Context) (domain.AccountID, error) {
	var authority domain.AccountID
	err := e.store.View(ctx, func(tx storage.RegistryTx) error {
		a, err := tx.Authority()
		authority = a
		return err
	})
	return authority, err
}

func (e *Engine) observeMintDuration(start time.Time) {
	if e.metrics != nil {
		e.metrics.MintDuration.Observe(time.Since(start).Seconds())
	}
}

func (e *Engine) countFailure(reason string) {
	if e.metrics != nil {
		e.metrics.MintFailuresTotal.WithLabelValues(reason).Inc()
	}
}

// failureReason maps a mint error to a metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInsufficientDeposit):
		return "insufficient_deposit"
	case errors.Is(err, ErrDuplicateToken):
		return "duplicate_token"
	default:
		return "internal"
	}
}
