package database

import (
	"context"
	"testing"
	"time"

	"github.com/earnhub/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, store *MemoryStore, id string, referrer *string) {
	t.Helper()
	tx, err := store.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.InsertAccount(context.Background(), &models.Account{
		ID:               id,
		ReferrerID:       referrer,
		MembershipLevel:  models.LevelIntern,
		BankChangeStatus: models.BankChangeNone,
		CreatedAt:        time.Now(),
	}))
	require.NoError(t, tx.Commit())
}

func TestMemoryStore_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedAccount(t, store, "acct-1", nil)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	account, err := tx.LockAccount(ctx, "acct-1")
	require.NoError(t, err)
	account.PersonalWallet = decimal.NewFromInt(100)
	require.NoError(t, tx.SaveAccount(ctx, account))
	require.NoError(t, tx.Rollback())

	stored, err := store.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, stored.PersonalWallet.IsZero(), "rolled back write must not be visible")
	assert.Equal(t, 1, stored.Version)

	tx, err = store.Begin(ctx)
	require.NoError(t, err)
	account, err = tx.LockAccount(ctx, "acct-1")
	require.NoError(t, err)
	account.PersonalWallet = decimal.NewFromInt(100)
	require.NoError(t, tx.SaveAccount(ctx, account))
	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback(), "rollback after commit is a no-op")

	stored, err = store.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "100", stored.PersonalWallet.String())
	assert.Equal(t, 2, stored.Version)
}

func TestMemoryStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedAccount(t, store, "acct-1", nil)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	account, err := tx.LockAccount(ctx, "acct-1")
	require.NoError(t, err)
	stale := account.Clone()

	require.NoError(t, tx.SaveAccount(ctx, account))
	assert.ErrorIs(t, tx.SaveAccount(ctx, stale), ErrVersionConflict)
}

func TestMemoryStore_EntriesAndCommissions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedAccount(t, store, "acct-1", nil)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	for i, delta := range []int64{50, -20} {
		require.NoError(t, tx.InsertEntry(ctx, &models.LedgerEntry{
			ID:             string(rune('a' + i)),
			AccountID:      "acct-1",
			Wallet:         models.WalletIncome,
			Delta:          decimal.NewFromInt(delta),
			IdempotencyKey: string(rune('a' + i)),
		}))
	}
	assert.ErrorIs(t, tx.InsertEntry(ctx, &models.LedgerEntry{IdempotencyKey: "a"}), ErrAlreadyExists)

	sum, err := tx.SumEntries(ctx, "acct-1", models.WalletIncome)
	require.NoError(t, err)
	assert.Equal(t, "30", sum.String())

	found, err := tx.FindEntryByKey(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "-20", found.Delta.String())

	missing, err := tx.FindEntryByKey(ctx, "zzz")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	c := &models.Commission{ID: "c1", EventID: "ev", FromAccountID: "acct-1", ToAccountID: "acct-0", Level: models.CommissionLevelA}
	require.NoError(t, tx.InsertCommission(ctx, c))
	assert.ErrorIs(t, tx.InsertCommission(ctx, &models.Commission{ID: "c2", EventID: "ev", FromAccountID: "acct-1", Level: models.CommissionLevelA}), ErrAlreadyExists)
	require.NoError(t, tx.Commit())

	entries, err := store.ListEntries(ctx, "acct-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID, "newest first")

	commissions, err := store.ListCommissions(ctx, "acct-0", 0)
	require.NoError(t, err)
	assert.Len(t, commissions, 1)
}

func TestMemoryStore_ReferralNodes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	root := "root"
	seedAccount(t, store, root, nil)
	seedAccount(t, store, "child-b", &root)
	seedAccount(t, store, "child-a", &root)

	nodes, err := store.ListReferralNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)

	direct, err := store.ListDirectReferrals(ctx, root)
	require.NoError(t, err)
	require.Len(t, direct, 2)
	assert.Equal(t, "child-a", direct[0].AccountID)
	assert.Equal(t, root, *direct[1].ReferrerID)
}
