package services

import (
	"context"
	"fmt"
	"log"

	"github.com/earnhub/backend/internal/audit"
	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/models"
)

// RequiredBankConfirmations is the number of distinct-day confirmations that completes a change
const RequiredBankConfirmations = 3

// BankChangeState is the payout destination view of an account
type BankChangeState struct {
	Current       *models.BankDetails     `json:"current,omitempty"`
	Pending       *models.BankDetails     `json:"pending,omitempty"`
	Status        models.BankChangeStatus `json:"status"`
	Confirmations models.DateList         `json:"confirmations"`
	Remaining     int                     `json:"remaining"`
	Completed     bool                    `json:"completed,omitempty"`
}

func bankState(a *models.Account) *BankChangeState {
	c := a.Clone()
	state := &BankChangeState{
		Current:       c.BankAccount,
		Pending:       c.PendingBankAccount,
		Status:        c.BankChangeStatus,
		Confirmations: c.BankChangeConfirmations,
	}
	if state.Confirmations == nil {
		state.Confirmations = models.DateList{}
	}
	if state.Status == models.BankChangePending {
		state.Remaining = RequiredBankConfirmations - len(state.Confirmations)
	}
	return state
}

func clearBankChange(a *models.Account) {
	a.PendingBankAccount = nil
	a.BankChangeConfirmations = models.DateList{}
	a.BankChangeStatus = models.BankChangeNone
}

// BankChangeService runs the three-day confirmation flow for replacing payout details. It shares
// the account's ledger lock so withdrawals never observe a half-applied change.
type BankChangeService struct {
	store     database.Store
	ledger    *LedgerService
	banks     *BankDirectory
	validator *ValidationHelper
	audit     *audit.Logger
}

func NewBankChangeService(store database.Store, ledger *LedgerService, banks *BankDirectory, auditLogger *audit.Logger) *BankChangeService {
	return &BankChangeService{
		store:     store,
		ledger:    ledger,
		banks:     banks,
		validator: NewValidationHelper(),
		audit:     auditLogger,
	}
}

// Banks lists the supported payout institutions.
func (s *BankChangeService) Banks() []Bank {
	return s.banks.List()
}

// SetBankAccount applies the first destination immediately; later changes start a confirmation cycle.
func (s *BankChangeService) SetBankAccount(ctx context.Context, accountID string, details models.BankDetails) (*BankChangeState, error) {
	if err := s.validator.ValidateStruct(&details); err != nil {
		return nil, err
	}
	bank, ok := s.banks.Find(details.BankName)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported bank %q", ErrInvalidRequest, details.BankName)
	}
	details.BankName = bank.Name
	if details.BranchCode == "" {
		details.BranchCode = bank.Code
	}

	var state *BankChangeState
	err := s.ledger.Execute(ctx, accountID, func(u *Unit) error {
		a := u.Account
		switch {
		case a.BankAccount == nil:
			a.BankAccount = &details
			clearBankChange(a)
		case a.BankChangeStatus == models.BankChangePending:
			return fmt.Errorf("%w: a bank change is already awaiting confirmation", ErrInvalidStateTransition)
		default:
			a.PendingBankAccount = &details
			a.BankChangeConfirmations = models.DateList{}
			a.BankChangeStatus = models.BankChangePending
		}
		state = bankState(a)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if state.Status == models.BankChangePending {
		log.Printf("[BANK_CHANGE] Account %s requested a bank change", accountID)
		s.audit.LogOperation("", accountID, "BANK_CHANGE_REQUESTED", details.BankName)
	} else {
		log.Printf("[BANK_CHANGE] Account %s set its first bank account", accountID)
		s.audit.LogOperation("", accountID, "BANK_ACCOUNT_SET", details.BankName)
	}
	return state, nil
}

// ConfirmBankChange records today's confirmation, or declines the change when confirmed is false.
func (s *BankChangeService) ConfirmBankChange(ctx context.Context, accountID string, confirmed bool) (*BankChangeState, error) {
	var state *BankChangeState
	err := s.ledger.Execute(ctx, accountID, func(u *Unit) error {
		a := u.Account
		if a.BankChangeStatus != models.BankChangePending {
			return fmt.Errorf("%w: no bank change awaiting confirmation", ErrInvalidStateTransition)
		}
		if !confirmed {
			clearBankChange(a)
			state = bankState(a)
			return nil
		}

		today := u.Now().In(u.Settings.BankChangeLocation).Format("2006-01-02")
		last := a.BankChangeConfirmations.Last()
		switch {
		case today == last:
			return ErrDuplicateConfirmation
		case last != "" && today < last:
			return fmt.Errorf("%w: %s is before %s", ErrNonMonotonicConfirmation, today, last)
		}

		a.BankChangeConfirmations = append(a.BankChangeConfirmations, today)
		if len(a.BankChangeConfirmations) >= RequiredBankConfirmations {
			a.BankAccount = a.PendingBankAccount
			clearBankChange(a)
			state = bankState(a)
			state.Completed = true
			return nil
		}
		state = bankState(a)
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case !confirmed:
		log.Printf("[BANK_CHANGE] Account %s declined its bank change", accountID)
		s.audit.LogOperation("", accountID, "BANK_CHANGE_DECLINED", "")
	case state.Completed:
		log.Printf("[BANK_CHANGE] Account %s completed its bank change", accountID)
		s.audit.LogOperation("", accountID, "BANK_CHANGE_COMPLETED", "")
	default:
		log.Printf("[BANK_CHANGE] Account %s confirmed, %d remaining", accountID, state.Remaining)
	}
	return state, nil
}

// CancelBankChange discards a pending change. The current details are untouched.
func (s *BankChangeService) CancelBankChange(ctx context.Context, accountID string) (*BankChangeState, error) {
	var state *BankChangeState
	err := s.ledger.Execute(ctx, accountID, func(u *Unit) error {
		if u.Account.BankChangeStatus != models.BankChangePending {
			return fmt.Errorf("%w: no bank change to cancel", ErrInvalidStateTransition)
		}
		clearBankChange(u.Account)
		state = bankState(u.Account)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[BANK_CHANGE] Account %s cancelled its bank change", accountID)
	s.audit.LogOperation("", accountID, "BANK_CHANGE_CANCELLED", "")
	return state, nil
}

func (s *BankChangeService) GetBankState(ctx context.Context, accountID string) (*BankChangeState, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return bankState(account), nil
}
