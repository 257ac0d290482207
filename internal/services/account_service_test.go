package services

import (
	"context"
	"testing"

	"github.com/earnhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_CreateAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "sponsor", "", models.LevelRank1)
	service := NewAccountService(env.store, env.ledger, env.hasher, env.audit)

	account, err := service.CreateAccount(ctx, "sponsor", "2468")
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, models.LevelIntern, account.MembershipLevel)
	require.NotNil(t, account.ReferrerID)
	assert.Equal(t, "sponsor", *account.ReferrerID)
	assert.True(t, account.PersonalWallet.IsZero())
	assert.True(t, account.IncomeWallet.IsZero())
	assert.NotEqual(t, "2468", account.TransactionPasswordHash)

	stored := env.account(t, account.ID)
	assert.True(t, env.hasher.Verify("2468", stored.TransactionPasswordHash))
	assert.Equal(t, env.now, stored.CreatedAt)

	t.Run("root account", func(t *testing.T) {
		a, err := service.CreateAccount(ctx, "", "2468")
		require.NoError(t, err)
		assert.Nil(t, a.ReferrerID)
	})

	t.Run("unknown referrer", func(t *testing.T) {
		_, err := service.CreateAccount(ctx, "ghost", "2468")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("short password", func(t *testing.T) {
		_, err := service.CreateAccount(ctx, "sponsor", "12")
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestAccountService_SetTransactionPassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "user-1", "", models.LevelIntern)
	service := NewAccountService(env.store, env.ledger, env.hasher, env.audit)

	// first password needs no current one
	require.NoError(t, service.SetTransactionPassword(ctx, "user-1", "", "2468"))

	err := service.SetTransactionPassword(ctx, "user-1", "0000", "1357")
	assert.ErrorIs(t, err, ErrAuthenticationFailure)
	assert.True(t, env.hasher.Verify("2468", env.account(t, "user-1").TransactionPasswordHash))

	require.NoError(t, service.SetTransactionPassword(ctx, "user-1", "2468", "1357"))
	assert.True(t, env.hasher.Verify("1357", env.account(t, "user-1").TransactionPasswordHash))

	assert.ErrorIs(t, service.SetTransactionPassword(ctx, "ghost", "", "1357"), ErrNotFound)

	got, err := service.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.ID)
}
