package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/earnhub/backend/internal/audit"
	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

const taskCounterTTL = 48 * time.Hour

// TaskRewardResult is the outcome of one credited task
type TaskRewardResult struct {
	Entry           *models.LedgerEntry `json:"entry"`
	Replayed        bool                `json:"replayed"`
	Commissions     []models.Commission `json:"commissions"`
	CommissionError string              `json:"commissionError,omitempty"`
}

// TaskUsage is the per-day task allowance of an account
type TaskUsage struct {
	Date      string          `json:"date"`
	Used      int             `json:"used"`
	Limit     int             `json:"limit"`
	PerReward decimal.Decimal `json:"perReward"`
}

// TaskService credits task rewards and triggers the task commission cascade
type TaskService struct {
	store       database.Store
	ledger      *LedgerService
	commissions *CommissionService
	settings    SettingsSource
	redis       redis.Cmdable
	audit       *audit.Logger
}

func NewTaskService(store database.Store, ledger *LedgerService, commissions *CommissionService,
	settings SettingsSource, rdb redis.Cmdable, auditLogger *audit.Logger) *TaskService {
	return &TaskService{
		store:       store,
		ledger:      ledger,
		commissions: commissions,
		settings:    settings,
		redis:       rdb,
		audit:       auditLogger,
	}
}

func (s *TaskService) counterKey(accountID string) (string, string) {
	day := s.ledger.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("tasks:%s:%s", accountID, day), day
}

// RewardAmount is the configured per-video payment for a level.
func (s *TaskService) RewardAmount(level models.MembershipLevel) decimal.Decimal {
	return s.settings.Current().PaymentPerVideo[level]
}

// Usage reports how many rewards the account has taken today.
func (s *TaskService) Usage(ctx context.Context, accountID string) (*TaskUsage, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	key, day := s.counterKey(accountID)
	used, err := s.redis.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: task counter: %v", database.ErrStoreUnavailable, err)
	}
	settings := s.settings.Current()
	return &TaskUsage{
		Date:      day,
		Used:      used,
		Limit:     settings.VideosPerDay[account.MembershipLevel],
		PerReward: settings.PaymentPerVideo[account.MembershipLevel],
	}, nil
}

// CompleteTaskReward credits amount to the income wallet once per task and pays upstream
// commissions. A retried task replays its earlier credit without touching the daily cap; a new one
// takes a slot of the cap before the credit and releases it if nothing was credited.
func (s *TaskService) CompleteTaskReward(ctx context.Context, accountID, taskID string, amount decimal.Decimal) (*TaskRewardResult, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, fmt.Errorf("%w: task id is required", ErrInvalidRequest)
	}
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	limit := s.settings.Current().VideosPerDay[account.MembershipLevel]

	rewardKey := taskRewardKey(accountID, taskID)

	// A retried task replays before the daily cap is consulted.
	prior, err := s.findReward(ctx, rewardKey)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		if !prior.Delta.Equal(amount) {
			return nil, fmt.Errorf("%w: task %s was credited %s", ErrIdempotencyConflict, taskID, prior.Delta.StringFixed(2))
		}
		return s.cascade(ctx, accountID, taskID, account.MembershipLevel, PostResult{Entry: prior, Replayed: true}), nil
	}

	key, _ := s.counterKey(accountID)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: task counter: %v", database.ErrStoreUnavailable, err)
	}
	if count == 1 {
		s.redis.Expire(ctx, key, taskCounterTTL)
	}
	release := func() { s.redis.Decr(context.WithoutCancel(ctx), key) }
	if count > int64(limit) {
		release()
		return nil, fmt.Errorf("%w: %d per day at %s", ErrDailyTaskLimit, limit, account.MembershipLevel.DisplayName())
	}

	var (
		res         PostResult
		earnerLevel models.MembershipLevel
	)
	err = s.ledger.Execute(ctx, accountID, func(u *Unit) error {
		earnerLevel = u.Account.MembershipLevel
		var err error
		res, err = u.Post(Posting{
			Wallet:               models.WalletIncome,
			Delta:                amount,
			Reason:               models.ReasonTaskReward,
			IdempotencyKey:       rewardKey,
			RelatedTransactionID: taskID,
		})
		return err
	})
	if err != nil {
		release()
		return nil, err
	}
	if res.Replayed {
		release()
	} else {
		log.Printf("[TASK] Account %s earned %s for task %s", accountID, amount.StringFixed(2), taskID)
	}

	return s.cascade(ctx, accountID, taskID, earnerLevel, res), nil
}

// cascade delivers the task commissions of a credited reward. Hops already paid replay as no-ops.
func (s *TaskService) cascade(ctx context.Context, accountID, taskID string, earnerLevel models.MembershipLevel, res PostResult) *TaskRewardResult {
	result := &TaskRewardResult{Entry: res.Entry, Replayed: res.Replayed}
	paid, err := s.commissions.Cascade(ctx, CommissionEvent{
		Source:      models.SourceTaskReward,
		EventID:     "task:" + taskID,
		AccountID:   accountID,
		Base:        res.Entry.Delta,
		EarnerLevel: earnerLevel,
	})
	result.Commissions = paid
	if err != nil {
		result.CommissionError = "commission delivery pending retry"
	}
	return result
}

func (s *TaskService) findReward(ctx context.Context, key string) (*models.LedgerEntry, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", database.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()
	entry, err := tx.FindEntryByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: find task reward: %v", database.ErrStoreUnavailable, err)
	}
	return entry, nil
}

func taskRewardKey(accountID, taskID string) string {
	return fmt.Sprintf("task-reward:%s:%s", accountID, taskID)
}
