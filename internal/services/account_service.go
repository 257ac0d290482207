package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/earnhub/backend/internal/audit"
	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/models"
	"github.com/google/uuid"
)

type AccountService struct {
	store  database.Store
	ledger *LedgerService
	hasher PasswordHasher
	audit  *audit.Logger
}

func NewAccountService(store database.Store, ledger *LedgerService, hasher PasswordHasher, auditLogger *audit.Logger) *AccountService {
	return &AccountService{store: store, ledger: ledger, hasher: hasher, audit: auditLogger}
}

// CreateAccount registers an Intern account with zero balances under an optional referrer.
func (s *AccountService) CreateAccount(ctx context.Context, referrerID, transactionPassword string) (*models.Account, error) {
	if err := ValidateTransactionPassword(transactionPassword); err != nil {
		return nil, err
	}
	hashed, err := s.hasher.Hash(transactionPassword)
	if err != nil {
		return nil, fmt.Errorf("hash transaction password: %w", err)
	}

	now := s.ledger.Now()
	account := &models.Account{
		ID:                      uuid.New().String(),
		MembershipLevel:         models.LevelIntern,
		BankChangeStatus:        models.BankChangeNone,
		BankChangeConfirmations: models.DateList{},
		TransactionPasswordHash: hashed,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if referrerID != "" {
		if _, err := tx.LockAccount(ctx, referrerID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, fmt.Errorf("referrer %s: %w", referrerID, ErrNotFound)
			}
			return nil, err
		}
		ref := referrerID
		account.ReferrerID = &ref
	}

	if err := tx.InsertAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", database.ErrStoreUnavailable, err)
	}

	log.Printf("[ACCOUNT] Created account %s (referrer=%q)", account.ID, referrerID)
	s.audit.LogOperation("", account.ID, "ACCOUNT_CREATED", "referrer="+referrerID)
	if account.Version == 0 {
		account.Version = 1
	}
	return account, nil
}

// SetTransactionPassword replaces the transaction password. The current password is required once
// one has been set.
func (s *AccountService) SetTransactionPassword(ctx context.Context, accountID, current, next string) error {
	if err := ValidateTransactionPassword(next); err != nil {
		return err
	}
	hashed, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash transaction password: %w", err)
	}

	err = s.ledger.Execute(ctx, accountID, func(u *Unit) error {
		if u.Account.TransactionPasswordHash != "" && !s.hasher.Verify(current, u.Account.TransactionPasswordHash) {
			return ErrAuthenticationFailure
		}
		u.Account.TransactionPasswordHash = hashed
		return nil
	})
	if err != nil {
		return err
	}
	s.audit.LogOperation("", accountID, "TRANSACTION_PASSWORD_CHANGED", "")
	return nil
}

// GetAccount returns the account with its cached balances.
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	return s.store.GetAccount(ctx, accountID)
}
