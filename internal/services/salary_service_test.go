package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/models"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// salaryTree seeds boss (Rank 3) with eight qualifying directs plus three that do not qualify.
func salaryTree(t *testing.T, env *testEnv) {
	env.seed(t, "boss", "", models.LevelRank3)
	for i := 0; i < 8; i++ {
		env.seed(t, fmt.Sprintf("direct-%d", i), "boss", models.LevelRank2)
	}
	env.seed(t, "intern-1", "boss", models.LevelIntern)
	env.seed(t, "intern-2", "boss", models.LevelIntern)
	env.seed(t, "senior", "boss", models.LevelRank4)
}

func TestSalaryService_Run(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	salaryTree(t, env)
	rdb, mock := redismock.NewClientMock()
	service := NewSalaryService(env.store, env.ledger, env.provider, rdb, env.audit)

	mock.ExpectSetNX("salary:run:2026-09", "running", time.Hour).SetVal(true)
	mock.ExpectDel("salary:run:2026-09").SetVal(1)

	report, err := service.Run(ctx, "2026-09")
	require.NoError(t, err)
	assert.Equal(t, 12, report.Evaluated)
	assert.Equal(t, 1, report.Paid)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, "20000", report.Total.String())
	assert.Equal(t, "20000", env.account(t, "boss").IncomeWallet.String())
	assert.NoError(t, mock.ExpectationsWereMet())

	snapshots, err := env.store.ListSalarySnapshots(ctx, "boss")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "direct-8", snapshots[0].TierMatched)
	assert.Equal(t, 8, snapshots[0].DirectQualified)
	assert.Equal(t, 8, snapshots[0].NetworkQualified)
	assert.Equal(t, models.WalletIncome, snapshots[0].Wallet)

	t.Run("rerun of the same period pays nothing", func(t *testing.T) {
		mock.ExpectSetNX("salary:run:2026-09", "running", time.Hour).SetVal(true)
		mock.ExpectDel("salary:run:2026-09").SetVal(1)

		report, err := service.Run(ctx, "2026-09")
		require.NoError(t, err)
		assert.Equal(t, 0, report.Paid)
		assert.Equal(t, 1, report.Skipped)
		assert.Equal(t, "20000", env.account(t, "boss").IncomeWallet.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("next period pays again", func(t *testing.T) {
		mock.ExpectSetNX("salary:run:2026-10", "running", time.Hour).SetVal(true)
		mock.ExpectDel("salary:run:2026-10").SetVal(1)

		report, err := service.Run(ctx, "2026-10")
		require.NoError(t, err)
		assert.Equal(t, 1, report.Paid)
		assert.Equal(t, "40000", env.account(t, "boss").IncomeWallet.String())
		env.assertConsistent(t, "boss")
	})
}

func TestSalaryService_RunPaysOnlyTheHighestTier(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "boss", "", models.LevelRank3)
	for i := 0; i < 15; i++ {
		direct := fmt.Sprintf("direct-%d", i)
		env.seed(t, direct, "boss", models.LevelRank2)
		if i < 13 {
			env.seed(t, direct+"-a", direct, models.LevelRank1)
			env.seed(t, direct+"-b", direct, models.LevelRank1)
		}
	}
	rdb, mock := redismock.NewClientMock()
	service := NewSalaryService(env.store, env.ledger, env.provider, rdb, env.audit)

	mock.ExpectSetNX("salary:run:2026-09", "running", time.Hour).SetVal(true)
	mock.ExpectDel("salary:run:2026-09").SetVal(1)

	report, err := service.Run(ctx, "2026-09")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 42, report.Evaluated)
	assert.Equal(t, 1, report.Paid)
	assert.Equal(t, "50000", report.Total.String())
	assert.Equal(t, "50000", env.account(t, "boss").IncomeWallet.String())

	snapshots, err := env.store.ListSalarySnapshots(ctx, "boss")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "direct-15", snapshots[0].TierMatched)
	assert.Equal(t, 15, snapshots[0].DirectQualified)
	assert.Equal(t, 41, snapshots[0].NetworkQualified)
	assert.Equal(t, "50000", snapshots[0].AmountPaid.String())
	env.assertConsistent(t, "boss")
}

func TestSalaryService_RunGuards(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rdb, mock := redismock.NewClientMock()
	service := NewSalaryService(env.store, env.ledger, env.provider, rdb, env.audit)

	t.Run("invalid period", func(t *testing.T) {
		_, err := service.Run(ctx, "2026-13")
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("run already in progress", func(t *testing.T) {
		mock.ExpectSetNX("salary:run:2026-09", "running", time.Hour).SetVal(false)
		_, err := service.Run(ctx, "2026-09")
		assert.ErrorIs(t, err, ErrSalaryRunInProgress)
	})

	t.Run("redis unavailable", func(t *testing.T) {
		mock.ExpectSetNX("salary:run:2026-09", "running", time.Hour).SetErr(errors.New("connection refused"))
		_, err := service.Run(ctx, "2026-09")
		assert.ErrorIs(t, err, database.ErrStoreUnavailable)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSalaryService_GetSalaryStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	salaryTree(t, env)
	rdb, _ := redismock.NewClientMock()
	service := NewSalaryService(env.store, env.ledger, env.provider, rdb, env.audit)

	status, err := service.GetSalaryStatus(ctx, "boss")
	require.NoError(t, err)
	assert.Equal(t, 8, status.DirectQualified)
	require.NotNil(t, status.MatchedTier)
	assert.Equal(t, "direct-8", status.MatchedTier.Name)
	assert.Len(t, status.Tiers, 4)
	assert.Empty(t, status.Snapshots)

	status, err = service.GetSalaryStatus(ctx, "direct-0")
	require.NoError(t, err)
	assert.Nil(t, status.MatchedTier)

	_, err = service.GetSalaryStatus(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReferralIndex_Qualified(t *testing.T) {
	ref := func(s string) *string { return &s }
	idx := buildReferralIndex([]models.ReferralNode{
		{AccountID: "root", MembershipLevel: models.LevelRank3},
		{AccountID: "a", ReferrerID: ref("root"), MembershipLevel: models.LevelRank3},
		{AccountID: "b", ReferrerID: ref("root"), MembershipLevel: models.LevelRank5},
		{AccountID: "a1", ReferrerID: ref("a"), MembershipLevel: models.LevelRank1},
		{AccountID: "a2", ReferrerID: ref("a"), MembershipLevel: models.LevelIntern},
		{AccountID: "a11", ReferrerID: ref("a1"), MembershipLevel: models.LevelRank2},
		// cycle below the root must not loop forever
		{AccountID: "c1", ReferrerID: ref("c2"), MembershipLevel: models.LevelRank1},
		{AccountID: "c2", ReferrerID: ref("c1"), MembershipLevel: models.LevelRank1},
	})

	direct, network := idx.qualified("root")
	assert.Equal(t, 1, direct, "only a qualifies directly")
	assert.Equal(t, 3, network, "a, a1 and a11")

	direct, network = idx.qualified("c1")
	assert.Equal(t, 1, direct)
	assert.Equal(t, 1, network)
}

func TestMatchTier(t *testing.T) {
	settings := config.DefaultSettings()

	tests := []struct {
		name    string
		direct  int
		network int
		want    string
	}{
		{"nothing", 3, 10, ""},
		{"network only", 2, 20, "network-20"},
		{"direct beats a lower network tier", 8, 25, "direct-8"},
		{"higher network tier beats direct-8", 9, 40, "network-40"},
		{"top tier", 15, 100, "direct-15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier := MatchTier(settings, tt.direct, tt.network)
			if tt.want == "" {
				assert.Nil(t, tier)
				return
			}
			require.NotNil(t, tier)
			assert.Equal(t, tt.want, tier.Name)
		})
	}
}

func TestSalaryPeriods(t *testing.T) {
	assert.Equal(t, "2026-10", SalaryPeriod(time.Date(2026, 10, 31, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-09", PreviousSalaryPeriod(time.Date(2026, 10, 1, 2, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-12", PreviousSalaryPeriod(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-02", PreviousSalaryPeriod(time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)))
}
