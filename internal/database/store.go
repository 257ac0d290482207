package database

import (
	"context"
	"errors"

	"github.com/earnhub/backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrVersionConflict  = errors.New("optimistic lock failed")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Store is the read side of persistence plus the entry point for atomic units of work.
// Reads made through Store are not isolated from concurrent writers.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListReferralNodes(ctx context.Context) ([]models.ReferralNode, error)
	ListDirectReferrals(ctx context.Context, referrerID string) ([]models.ReferralNode, error)

	ListEntries(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error)

	GetDeposit(ctx context.Context, id string) (*models.Deposit, error)
	ListDeposits(ctx context.Context, status string, limit int) ([]models.Deposit, error)
	GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, status string, limit int) ([]models.Withdrawal, error)

	ListCommissions(ctx context.Context, toAccountID string, limit int) ([]models.Commission, error)
	ListRankUpgrades(ctx context.Context, accountID string) ([]models.RankUpgradeRequest, error)
	ListSalarySnapshots(ctx context.Context, accountID string) ([]models.SalarySnapshot, error)

	Close() error
}

// Tx is one atomic unit of work. Either Commit applies every write or nothing is applied.
type Tx interface {
	LockAccount(ctx context.Context, id string) (*models.Account, error)
	InsertAccount(ctx context.Context, a *models.Account) error
	// SaveAccount persists the account if its version still matches and bumps the version.
	SaveAccount(ctx context.Context, a *models.Account) error

	FindEntryByKey(ctx context.Context, idempotencyKey string) (*models.LedgerEntry, error)
	InsertEntry(ctx context.Context, e *models.LedgerEntry) error
	SumEntries(ctx context.Context, accountID string, wallet models.Wallet) (decimal.Decimal, error)

	LockDeposit(ctx context.Context, id string) (*models.Deposit, error)
	InsertDeposit(ctx context.Context, d *models.Deposit) error
	SaveDeposit(ctx context.Context, d *models.Deposit) error

	LockWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	InsertWithdrawal(ctx context.Context, w *models.Withdrawal) error
	SaveWithdrawal(ctx context.Context, w *models.Withdrawal) error

	InsertCommission(ctx context.Context, c *models.Commission) error
	InsertRankUpgrade(ctx context.Context, r *models.RankUpgradeRequest) error
	GetSalarySnapshot(ctx context.Context, accountID, period string) (*models.SalarySnapshot, error)
	InsertSalarySnapshot(ctx context.Context, s *models.SalarySnapshot) error

	Commit() error
	Rollback() error
}
