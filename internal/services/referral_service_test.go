package services

import (
	"context"
	"testing"

	"github.com/earnhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferralService_GetDownline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "viewer", "", models.LevelRank2)
	env.seed(t, "a1", "viewer", models.LevelRank1)
	env.seed(t, "a2", "viewer", models.LevelRank3)
	env.seed(t, "b1", "a1", models.LevelIntern)
	env.seed(t, "c1", "b1", models.LevelRank2)
	env.seed(t, "d1", "c1", models.LevelRank1)
	service := NewReferralService(env.store)

	downline, err := service.GetDownline(ctx, "viewer", 0)
	require.NoError(t, err)
	require.Len(t, downline.Members, 5)

	byID := map[string]DownlineMember{}
	for _, m := range downline.Members {
		byID[m.AccountID] = m
	}

	assert.Equal(t, models.CommissionLevelA, byID["a1"].CommissionLevel)
	assert.True(t, byID["a1"].Qualifies)
	assert.False(t, byID["a2"].Qualifies, "a member above the viewer's rank does not pay")
	assert.Equal(t, models.CommissionLevelB, byID["b1"].CommissionLevel)
	assert.False(t, byID["b1"].Qualifies, "interns never pay commission")
	assert.Equal(t, models.CommissionLevelC, byID["c1"].CommissionLevel)
	assert.True(t, byID["c1"].Qualifies)
	assert.Equal(t, "b1", byID["c1"].ReferrerID)

	assert.Equal(t, 4, byID["d1"].Depth)
	assert.Empty(t, byID["d1"].CommissionLevel)
	assert.False(t, byID["d1"].Qualifies)

	assert.Equal(t, map[string]int{"A": 2, "B": 1, "C": 1}, downline.ByLevel)

	t.Run("depth limit", func(t *testing.T) {
		downline, err := service.GetDownline(ctx, "viewer", 1)
		require.NoError(t, err)
		assert.Len(t, downline.Members, 2)
	})

	t.Run("leaf", func(t *testing.T) {
		downline, err := service.GetDownline(ctx, "d1", 0)
		require.NoError(t, err)
		assert.Empty(t, downline.Members)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := service.GetDownline(ctx, "ghost", 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
