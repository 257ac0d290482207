package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/earnhub/backend/internal/audit"
	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettingsSource hands out the active settings snapshot
type SettingsSource interface {
	Current() *config.Settings
}

// Posting is one requested balance mutation inside a ledger unit
type Posting struct {
	Wallet               models.Wallet
	Delta                decimal.Decimal
	Reason               models.EntryReason
	IdempotencyKey       string
	RelatedTransactionID string
}

// PostResult carries the entry that now backs a posting. Replayed is set when the idempotency
// key had already been applied and the prior entry was returned unchanged.
type PostResult struct {
	Entry    *models.LedgerEntry
	Replayed bool
}

// Unit is the per-account unit of work handed to LedgerService.Execute. Everything done through
// it commits together or not at all.
type Unit struct {
	ctx      context.Context
	tx       database.Tx
	now      time.Time
	verified map[models.Wallet]bool
	results  []PostResult

	Account  *models.Account
	Settings *config.Settings
}

func (u *Unit) Context() context.Context { return u.ctx }

// Tx exposes the underlying transaction for non-ledger rows owned by the same unit.
func (u *Unit) Tx() database.Tx { return u.tx }

func (u *Unit) Now() time.Time { return u.now }

// Post appends a ledger entry and moves the cached balance in the same unit.
func (u *Unit) Post(p Posting) (PostResult, error) {
	if !p.Wallet.Valid() {
		return PostResult{}, fmt.Errorf("%w: unknown wallet %q", ErrInvalidAmount, p.Wallet)
	}
	if p.IdempotencyKey == "" {
		return PostResult{}, errors.New("posting requires an idempotency key")
	}
	if p.Delta.IsZero() {
		return PostResult{}, fmt.Errorf("%w: delta must be non-zero", ErrInvalidAmount)
	}

	prior, err := u.tx.FindEntryByKey(u.ctx, p.IdempotencyKey)
	if err != nil {
		return PostResult{}, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if prior != nil {
		if prior.AccountID != u.Account.ID || prior.Wallet != p.Wallet {
			return PostResult{}, fmt.Errorf("%w: key %s", ErrIdempotencyConflict, p.IdempotencyKey)
		}
		res := PostResult{Entry: prior, Replayed: true}
		u.results = append(u.results, res)
		return res, nil
	}

	cached := u.Account.Balance(p.Wallet)
	if u.Settings.VerifyOnWrite && !u.verified[p.Wallet] {
		sum, err := u.tx.SumEntries(u.ctx, u.Account.ID, p.Wallet)
		if err != nil {
			return PostResult{}, fmt.Errorf("sum ledger entries: %w", err)
		}
		if !sum.Equal(cached) {
			return PostResult{}, fmt.Errorf("%w: account %s %s wallet cached %s, entries %s",
				ErrLedgerInvariantViolation, u.Account.ID, p.Wallet, cached.StringFixed(2), sum.StringFixed(2))
		}
		u.verified[p.Wallet] = true
	}

	next := cached.Add(p.Delta)
	if next.IsNegative() {
		return PostResult{}, fmt.Errorf("%w: %s wallet holds %s, needs %s",
			ErrInsufficientBalance, p.Wallet, cached.StringFixed(2), p.Delta.Neg().StringFixed(2))
	}

	entry := &models.LedgerEntry{
		ID:                   uuid.New().String(),
		AccountID:            u.Account.ID,
		Wallet:               p.Wallet,
		Delta:                p.Delta,
		BalanceAfter:         next,
		Reason:               p.Reason,
		RelatedTransactionID: p.RelatedTransactionID,
		IdempotencyKey:       p.IdempotencyKey,
		CreatedAt:            u.now,
	}
	if err := u.tx.InsertEntry(u.ctx, entry); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return PostResult{}, fmt.Errorf("%w: key %s", ErrIdempotencyConflict, p.IdempotencyKey)
		}
		return PostResult{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	u.Account.SetBalance(p.Wallet, next)

	res := PostResult{Entry: entry}
	u.results = append(u.results, res)
	return res, nil
}

// LedgerService is the only writer of wallet balances. Writes to one account are serialized by
// an in-process keyed lock plus the store's row lock and version check.
type LedgerService struct {
	store    database.Store
	settings SettingsSource
	audit    *audit.Logger
	locks    *accountLocks
	now      func() time.Time
}

func NewLedgerService(store database.Store, settings SettingsSource, auditLogger *audit.Logger) *LedgerService {
	return &LedgerService{
		store:    store,
		settings: settings,
		audit:    auditLogger,
		locks:    newAccountLocks(),
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

func (s *LedgerService) Now() time.Time { return s.now() }

// Execute runs fn as one atomic unit on accountID. The account row is locked for the whole unit;
// fn must not call back into the store's read methods or start another unit.
func (s *LedgerService) Execute(ctx context.Context, accountID string, fn func(*Unit) error) error {
	settings := s.settings.Current()

	release, err := s.locks.acquire(ctx, accountID, settings.LockTimeout)
	if err != nil {
		return err
	}
	defer release()

	// A unit that has begun runs to completion even if the caller goes away.
	txCtx := context.WithoutCancel(ctx)

	tx, err := s.store.Begin(txCtx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	account, err := tx.LockAccount(txCtx, accountID)
	if err != nil {
		return fmt.Errorf("lock account %s: %w", accountID, err)
	}
	if account.LedgerFrozen {
		return fmt.Errorf("%w: account %s is frozen pending reconciliation", ErrLedgerInvariantViolation, accountID)
	}

	unit := &Unit{
		ctx:      txCtx,
		tx:       tx,
		now:      s.now(),
		verified: make(map[models.Wallet]bool),
		Account:  account,
		Settings: settings,
	}

	if err := fn(unit); err != nil {
		if errors.Is(err, ErrLedgerInvariantViolation) {
			tx.Rollback()
			s.freeze(txCtx, accountID, err)
		}
		return err
	}

	if err := tx.SaveAccount(txCtx, account); err != nil {
		return fmt.Errorf("save account %s: %w", accountID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", database.ErrStoreUnavailable, err)
	}

	for _, res := range unit.results {
		if res.Replayed {
			log.Printf("[LEDGER] Replayed %s for account %s", res.Entry.IdempotencyKey, accountID)
		}
		s.audit.LogPosting(res.Entry, res.Replayed)
	}
	return nil
}

// freeze marks the account so every later write fails until an operator reconciles it.
func (s *LedgerService) freeze(ctx context.Context, accountID string, cause error) {
	log.Printf("[LEDGER] Freezing account %s: %v", accountID, cause)
	s.audit.LogError("", accountID, cause)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		log.Printf("[LEDGER] Failed to freeze account %s: %v", accountID, err)
		return
	}
	defer tx.Rollback()

	account, err := tx.LockAccount(ctx, accountID)
	if err != nil {
		log.Printf("[LEDGER] Failed to freeze account %s: %v", accountID, err)
		return
	}
	account.LedgerFrozen = true
	if err := tx.SaveAccount(ctx, account); err != nil {
		log.Printf("[LEDGER] Failed to freeze account %s: %v", accountID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("[LEDGER] Failed to freeze account %s: %v", accountID, err)
	}
}

// Apply posts a single mutation and returns the resulting balance. Replaying a used key returns
// the balance recorded by the original posting.
func (s *LedgerService) Apply(ctx context.Context, accountID string, wallet models.Wallet, delta decimal.Decimal,
	reason models.EntryReason, idempotencyKey string) (decimal.Decimal, error) {
	var res PostResult
	err := s.Execute(ctx, accountID, func(u *Unit) error {
		var err error
		res, err = u.Post(Posting{
			Wallet:         wallet,
			Delta:          delta,
			Reason:         reason,
			IdempotencyKey: idempotencyKey,
		})
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return res.Entry.BalanceAfter, nil
}

// Verify recomputes both wallets of an account from its entries.
func (s *LedgerService) Verify(ctx context.Context, accountID string) ([]models.WalletReconciliation, error) {
	var out []models.WalletReconciliation
	err := s.withLockedAccount(ctx, accountID, func(tx database.Tx, account *models.Account) (bool, error) {
		var err error
		out, err = reconcileWallets(ctx, tx, account)
		return false, err
	})
	return out, err
}

// Reconcile lifts the freeze on an account whose cached balances match its entries.
func (s *LedgerService) Reconcile(ctx context.Context, accountID, operatorID string) ([]models.WalletReconciliation, error) {
	var out []models.WalletReconciliation
	err := s.withLockedAccount(ctx, accountID, func(tx database.Tx, account *models.Account) (bool, error) {
		var err error
		out, err = reconcileWallets(ctx, tx, account)
		if err != nil {
			return false, err
		}
		for _, w := range out {
			if !w.Consistent {
				return false, fmt.Errorf("%w: account %s %s wallet cached %s, entries %s",
					ErrLedgerInvariantViolation, accountID, w.Wallet, w.Cached.StringFixed(2), w.FromLedger.StringFixed(2))
			}
		}
		if !account.LedgerFrozen {
			return false, nil
		}
		account.LedgerFrozen = false
		return true, nil
	})
	if err == nil {
		log.Printf("[LEDGER] Account %s reconciled by %s", accountID, operatorID)
		s.audit.LogOperation("", accountID, "LEDGER_RECONCILE", "operator="+operatorID)
	}
	return out, err
}

func (s *LedgerService) withLockedAccount(ctx context.Context, accountID string,
	fn func(tx database.Tx, account *models.Account) (bool, error)) error {
	release, err := s.locks.acquire(ctx, accountID, s.settings.Current().LockTimeout)
	if err != nil {
		return err
	}
	defer release()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	account, err := tx.LockAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("lock account %s: %w", accountID, err)
	}

	save, err := fn(tx, account)
	if err != nil || !save {
		return err
	}
	if err := tx.SaveAccount(ctx, account); err != nil {
		return err
	}
	return tx.Commit()
}

func reconcileWallets(ctx context.Context, tx database.Tx, account *models.Account) ([]models.WalletReconciliation, error) {
	out := make([]models.WalletReconciliation, 0, 2)
	for _, wallet := range []models.Wallet{models.WalletIncome, models.WalletPersonal} {
		sum, err := tx.SumEntries(ctx, account.ID, wallet)
		if err != nil {
			return nil, err
		}
		cached := account.Balance(wallet)
		out = append(out, models.WalletReconciliation{
			Wallet:     wallet,
			Cached:     cached,
			FromLedger: sum,
			Consistent: cached.Equal(sum),
		})
	}
	return out, nil
}

// Balances returns the cached balances of an account.
func (s *LedgerService) Balances(ctx context.Context, accountID string) (*models.Account, error) {
	return s.store.GetAccount(ctx, accountID)
}

// Statement returns the most recent ledger entries of an account, newest first.
func (s *LedgerService) Statement(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListEntries(ctx, accountID, limit)
}
