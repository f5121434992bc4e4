package memory

import (
	"context"
	"errors"
	"testing"

	"hades-registry/internal/domain"
	"hades-registry/internal/storage"
)

func initRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := r.Init(context.Background(), "authority.hades", domain.DefaultContractMetadata()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return r
}

func TestRegistry_InitTwice(t *testing.T) {
	r := initRegistry(t)

	err := r.Init(context.Background(), "other.hades", domain.DefaultContractMetadata())
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("second Init = %v, want ErrDuplicateKey", err)
	}
}

func TestRegistry_InsertAndGetToken(t *testing.T) {
	r := initRegistry(t)
	ctx := context.Background()

	token := &domain.Token{
		TokenID: "1",
		OwnerID: "alice.hades",
		Metadata: &domain.TokenMetadata{
			Title:  "Unit 1 of property p",
			Copies: 1,
		},
	}

	err := r.Update(ctx, func(tx storage.RegistryTx) error {
		if err := tx.InsertToken(token); err != nil {
			return err
		}
		return tx.AddToOwner(token.OwnerID, token.TokenID)
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	err = r.View(ctx, func(tx storage.RegistryTx) error {
		got, err := tx.GetToken("1")
		if err != nil {
			return err
		}
		if got.OwnerID != "alice.hades" {
			t.Errorf("OwnerID = %q, want alice.hades", got.OwnerID)
		}
		if got.Metadata == nil || got.Metadata.Title != "Unit 1 of property p" {
			t.Errorf("Metadata not assembled: %+v", got.Metadata)
		}
		if got.ApprovedAccountIDs == nil || len(got.ApprovedAccountIDs) != 0 {
			t.Errorf("ApprovedAccountIDs = %v, want empty map", got.ApprovedAccountIDs)
		}

		ids, err := tx.OwnerTokens("alice.hades")
		if err != nil {
			return err
		}
		if len(ids) != 1 || ids[0] != "1" {
			t.Errorf("OwnerTokens = %v, want [1]", ids)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func TestRegistry_InsertDuplicate(t *testing.T) {
	r := initRegistry(t)
	ctx := context.Background()

	token := &domain.Token{TokenID: "1", OwnerID: "alice.hades"}
	if err := r.Update(ctx, func(tx storage.RegistryTx) error {
		return tx.InsertToken(token)
	}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	err := r.Update(ctx, func(tx storage.RegistryTx) error {
		return tx.InsertToken(token)
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("second insert = %v, want ErrDuplicateKey", err)
	}
}

func TestRegistry_FailedUpdateRollsBack(t *testing.T) {
	r := initRegistry(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := r.Update(ctx, func(tx storage.RegistryTx) error {
		if _, err := tx.NextSequence(); err != nil {
			return err
		}
		if err := tx.InsertToken(&domain.Token{TokenID: "1", OwnerID: "alice.hades"}); err != nil {
			return err
		}
		if err := tx.AddToOwner("alice.hades", "1"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update = %v, want boom", err)
	}

	err = r.View(ctx, func(tx storage.RegistryTx) error {
		if _, err := tx.GetToken("1"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetToken after rollback = %v, want ErrNotFound", err)
		}
		ids, err := tx.OwnerTokens("alice.hades")
		if err != nil {
			return err
		}
		if len(ids) != 0 {
			t.Errorf("OwnerTokens after rollback = %v, want empty", ids)
		}
		usage, err := tx.StorageUsage()
		if err != nil {
			return err
		}
		if usage != 0 {
			t.Errorf("StorageUsage after rollback = %d, want 0", usage)
		}
		// The counter increment must not be observable either.
		seq, err := tx.NextSequence()
		if err != nil {
			return err
		}
		if seq != 1 {
			t.Errorf("NextSequence after rollback = %d, want 1", seq)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func TestRegistry_SequenceIsMonotonic(t *testing.T) {
	r := initRegistry(t)
	ctx := context.Background()

	for want := uint64(1); want <= 5; want++ {
		err := r.Update(ctx, func(tx storage.RegistryTx) error {
			seq, err := tx.NextSequence()
			if err != nil {
				return err
			}
			if seq != want {
				t.Errorf("NextSequence = %d, want %d", seq, want)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
}

func TestRegistry_StorageUsageGrowsWithWrites(t *testing.T) {
	r := initRegistry(t)
	ctx := context.Background()

	token := &domain.Token{
		TokenID:  "7",
		OwnerID:  "bob.hades",
		Metadata: &domain.TokenMetadata{Title: "t", Description: "d", Copies: 1},
	}
	wantDelta := token.StorageBytes() + domain.IndexEntryStorageBytes(token.OwnerID, token.TokenID)

	var before, after int64
	err := r.Update(ctx, func(tx storage.RegistryTx) error {
		var err error
		if before, err = tx.StorageUsage(); err != nil {
			return err
		}
		if err = tx.InsertToken(token); err != nil {
			return err
		}
		if err = tx.AddToOwner(token.OwnerID, token.TokenID); err != nil {
			return err
		}
		after, err = tx.StorageUsage()
		return err
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if after-before != wantDelta {
		t.Errorf("storage delta = %d, want %d", after-before, wantDelta)
	}
}

func TestRegistry_SetAuthority(t *testing.T) {
	r := initRegistry(t)
	ctx := context.Background()

	err := r.Update(ctx, func(tx storage.RegistryTx) error {
		return tx.SetAuthority("successor.hades")
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	err = r.View(ctx, func(tx storage.RegistryTx) error {
		a, err := tx.Authority()
		if err != nil {
			return err
		}
		if a != "successor.hades" {
			t.Errorf("Authority = %q, want successor.hades", a)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}
