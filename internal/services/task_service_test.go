package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/models"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taskCounter = "tasks:worker:2026-10-14"

func newTaskTest(t *testing.T) (*testEnv, *TaskService, redismock.ClientMock) {
	env := newTestEnv(t)
	env.seed(t, "sponsor", "", models.LevelRank2)
	env.seed(t, "worker", "sponsor", models.LevelRank1)
	rdb, mock := redismock.NewClientMock()
	return env, NewTaskService(env.store, env.ledger, env.commissions(), env.provider, rdb, env.audit), mock
}

func TestTaskService_CompleteTaskReward(t *testing.T) {
	ctx := context.Background()
	env, service, mock := newTaskTest(t)

	t.Run("first task of the day", func(t *testing.T) {
		mock.ExpectIncr(taskCounter).SetVal(1)
		mock.ExpectExpire(taskCounter, 48*time.Hour).SetVal(true)

		result, err := service.CompleteTaskReward(ctx, "worker", "video-1", dec("40"))
		require.NoError(t, err)
		assert.False(t, result.Replayed)
		assert.Equal(t, "40", result.Entry.BalanceAfter.String())
		require.Len(t, result.Commissions, 1)
		assert.Equal(t, "4", result.Commissions[0].AmountEarned.String())
		assert.Equal(t, "4", env.account(t, "sponsor").IncomeWallet.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replayed task does not use a slot", func(t *testing.T) {
		result, err := service.CompleteTaskReward(ctx, "worker", "video-1", dec("40"))
		require.NoError(t, err)
		assert.True(t, result.Replayed)
		assert.Empty(t, result.Commissions)
		assert.Equal(t, "40", env.account(t, "worker").IncomeWallet.String())
		assert.Equal(t, "4", env.account(t, "sponsor").IncomeWallet.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second task fills the allowance", func(t *testing.T) {
		mock.ExpectIncr(taskCounter).SetVal(2)

		_, err := service.CompleteTaskReward(ctx, "worker", "video-2", dec("40"))
		require.NoError(t, err)
		assert.Equal(t, "80", env.account(t, "worker").IncomeWallet.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retry at the daily limit replays the earlier credit", func(t *testing.T) {
		result, err := service.CompleteTaskReward(ctx, "worker", "video-2", dec("40"))
		require.NoError(t, err)
		assert.True(t, result.Replayed)
		assert.Equal(t, "80", result.Entry.BalanceAfter.String())
		assert.Equal(t, "80", env.account(t, "worker").IncomeWallet.String())
		assert.Equal(t, "8", env.account(t, "sponsor").IncomeWallet.String())
		assert.NoError(t, mock.ExpectationsWereMet(), "the counter is not touched")
	})

	t.Run("retry with a different amount", func(t *testing.T) {
		_, err := service.CompleteTaskReward(ctx, "worker", "video-2", dec("20"))
		assert.ErrorIs(t, err, ErrIdempotencyConflict)
	})

	t.Run("over the daily limit", func(t *testing.T) {
		mock.ExpectIncr(taskCounter).SetVal(3)
		mock.ExpectDecr(taskCounter).SetVal(2)

		_, err := service.CompleteTaskReward(ctx, "worker", "video-3", dec("40"))
		assert.ErrorIs(t, err, ErrDailyTaskLimit)
		assert.Equal(t, "80", env.account(t, "worker").IncomeWallet.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	env.assertConsistent(t, "worker")
	env.assertConsistent(t, "sponsor")
}

func TestTaskService_CompleteTaskRewardErrors(t *testing.T) {
	ctx := context.Background()
	_, service, mock := newTaskTest(t)

	t.Run("missing task id", func(t *testing.T) {
		_, err := service.CompleteTaskReward(ctx, "worker", " ", dec("40"))
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("invalid amount", func(t *testing.T) {
		_, err := service.CompleteTaskReward(ctx, "worker", "video-1", dec("-1"))
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := service.CompleteTaskReward(ctx, "ghost", "video-1", dec("40"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("counter unavailable", func(t *testing.T) {
		mock.ExpectIncr(taskCounter).SetErr(errors.New("connection refused"))
		_, err := service.CompleteTaskReward(ctx, "worker", "video-1", dec("40"))
		assert.ErrorIs(t, err, database.ErrStoreUnavailable)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskService_Usage(t *testing.T) {
	ctx := context.Background()
	_, service, mock := newTaskTest(t)

	mock.ExpectGet(taskCounter).SetVal("1")
	usage, err := service.Usage(ctx, "worker")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-14", usage.Date)
	assert.Equal(t, 1, usage.Used)
	assert.Equal(t, 2, usage.Limit)
	assert.Equal(t, "40", usage.PerReward.String())

	mock.ExpectGet(taskCounter).RedisNil()
	usage, err = service.Usage(ctx, "worker")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Used)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "10", service.RewardAmount(models.LevelIntern).String())
}
