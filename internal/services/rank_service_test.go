package services

import (
	"context"
	"testing"

	"github.com/earnhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRankTest(t *testing.T) (*testEnv, *RankService) {
	env := newTestEnv(t)
	return env, NewRankService(env.store, env.ledger, env.commissions(), env.provider, env.audit)
}

func TestRankService_ListRanks(t *testing.T) {
	_, service := newRankTest(t)
	ranks := service.ListRanks()
	require.Len(t, ranks, len(models.Levels))

	assert.Equal(t, models.LevelIntern, ranks[0].Level)
	assert.True(t, ranks[0].Price.IsZero())
	assert.Equal(t, "Rank 1", ranks[1].Name)
	assert.Equal(t, "3000", ranks[1].Price.String())
	assert.True(t, ranks[1].BonusPercent.IsZero(), "first paid rank has no bonus")
	assert.Equal(t, "10", ranks[2].BonusPercent.String())
}

func TestRankService_RequestUpgrade(t *testing.T) {
	ctx := context.Background()
	env, service := newRankTest(t)
	env.seed(t, "sponsor", "", models.LevelRank3)
	env.seed(t, "user-1", "sponsor", models.LevelRank1)
	env.fund(t, "user-1", models.WalletPersonal, "10000")

	result, err := service.RequestUpgrade(ctx, "user-1", models.LevelRank2)
	require.NoError(t, err)
	assert.Equal(t, models.RankUpgradeCompleted, result.Request.Status)
	assert.Equal(t, models.LevelRank1, result.Request.FromLevel)
	assert.Equal(t, "9600", result.Request.Price.String())
	assert.Equal(t, "960", result.Request.BonusAmount.String())
	assert.Empty(t, result.CommissionError)
	require.Len(t, result.Commissions, 1)
	assert.Equal(t, "sponsor", result.Commissions[0].ToAccountID)
	assert.Equal(t, models.SourceRankUpgrade, result.Commissions[0].SourceEvent)

	user := env.account(t, "user-1")
	assert.Equal(t, models.LevelRank2, user.MembershipLevel)
	assert.Equal(t, "400", user.PersonalWallet.String())
	assert.Equal(t, "960", user.IncomeWallet.String())
	assert.Equal(t, "1152", env.account(t, "sponsor").IncomeWallet.String())
	env.assertConsistent(t, "user-1")

	t.Run("same level is not an upgrade", func(t *testing.T) {
		_, err := service.RequestUpgrade(ctx, "user-1", models.LevelRank2)
		assert.ErrorIs(t, err, ErrInvalidRankTarget)
	})

	t.Run("downgrade is refused", func(t *testing.T) {
		_, err := service.RequestUpgrade(ctx, "user-1", models.LevelRank1)
		assert.ErrorIs(t, err, ErrInvalidRankTarget)
	})

	t.Run("insufficient personal balance leaves nothing behind", func(t *testing.T) {
		_, err := service.RequestUpgrade(ctx, "user-1", models.LevelRank3)
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		user := env.account(t, "user-1")
		assert.Equal(t, models.LevelRank2, user.MembershipLevel)
		assert.Equal(t, "400", user.PersonalWallet.String())
		assert.Equal(t, "960", user.IncomeWallet.String(), "no bonus without the debit")
	})

	t.Run("income wallet cannot pay for ranks", func(t *testing.T) {
		env.fund(t, "user-1", models.WalletIncome, "50000")
		_, err := service.RequestUpgrade(ctx, "user-1", models.LevelRank3)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := service.RequestUpgrade(ctx, "user-1", models.MembershipLevel("rank_11"))
		assert.ErrorIs(t, err, ErrInvalidRankTarget)
	})

	t.Run("history keeps failed attempts", func(t *testing.T) {
		history, err := service.History(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, history, 5)
		assert.Equal(t, models.RankUpgradeCompleted, history[0].Status)
		for _, h := range history[1:] {
			assert.Equal(t, models.RankUpgradeFailed, h.Status)
			assert.NotEmpty(t, h.FailureReason)
		}
	})
}

func TestRankService_SkipLevelsAndNoBonus(t *testing.T) {
	ctx := context.Background()
	env, service := newRankTest(t)
	env.seed(t, "user-1", "", models.LevelIntern)
	env.fund(t, "user-1", models.WalletPersonal, "30000")

	result, err := service.RequestUpgrade(ctx, "user-1", models.LevelRank1)
	require.NoError(t, err)
	assert.True(t, result.Request.BonusAmount.IsZero())
	assert.Empty(t, result.Commissions, "no referrer")
	assert.True(t, env.account(t, "user-1").IncomeWallet.IsZero())

	result, err = service.RequestUpgrade(ctx, "user-1", models.LevelRank3)
	require.NoError(t, err)
	assert.Equal(t, models.LevelRank1, result.Request.FromLevel)
	assert.Equal(t, "2400", result.Request.BonusAmount.String())

	user := env.account(t, "user-1")
	assert.Equal(t, models.LevelRank3, user.MembershipLevel)
	assert.Equal(t, "3000", user.PersonalWallet.String())
	assert.Equal(t, "2400", user.IncomeWallet.String())
}

func TestUpgradeBonus(t *testing.T) {
	env := newTestEnv(t)
	pct, amount := UpgradeBonus(env.settings, models.LevelRank1, dec("3000"))
	assert.True(t, pct.IsZero())
	assert.True(t, amount.IsZero())

	pct, amount = UpgradeBonus(env.settings, models.LevelRank4, dec("52000"))
	assert.Equal(t, "10", pct.String())
	assert.Equal(t, "5200", amount.String())
}
