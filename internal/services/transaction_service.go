package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/earnhub/backend/internal/audit"
	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionService runs the deposit and withdrawal review workflows
type TransactionService struct {
	store   database.Store
	ledger  *LedgerService
	hasher  PasswordHasher
	payouts PayoutPublisher
	audit   *audit.Logger
}

func NewTransactionService(store database.Store, ledger *LedgerService, hasher PasswordHasher,
	payouts PayoutPublisher, auditLogger *audit.Logger) *TransactionService {
	return &TransactionService{
		store:   store,
		ledger:  ledger,
		hasher:  hasher,
		payouts: payouts,
		audit:   auditLogger,
	}
}

func depositKey(d *models.Deposit, action string) string {
	return fmt.Sprintf("deposit:%s:%s:%d", d.ID, action, d.Revision)
}

func withdrawalKey(w *models.Withdrawal, action string) string {
	return fmt.Sprintf("withdrawal:%s:%s:%d", w.ID, action, w.Revision)
}

func transition(kind, id, from, to string) error {
	return fmt.Errorf("%w: %s %s is %s, cannot move to %s", ErrInvalidStateTransition, kind, id, from, to)
}

// CreateDeposit opens a pending deposit. Nothing is credited until an admin approves it.
func (s *TransactionService) CreateDeposit(ctx context.Context, accountID string, amount decimal.Decimal, paymentMethod string) (*models.Deposit, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	paymentMethod = strings.TrimSpace(paymentMethod)
	if paymentMethod == "" {
		return nil, fmt.Errorf("%w: payment method is required", ErrInvalidRequest)
	}

	var deposit *models.Deposit
	err := s.ledger.Execute(ctx, accountID, func(u *Unit) error {
		deposit = &models.Deposit{
			ID:            uuid.New().String(),
			AccountID:     accountID,
			Amount:        amount,
			PaymentMethod: paymentMethod,
			Status:        models.DepositPending,
			CreatedAt:     u.Now(),
			UpdatedAt:     u.Now(),
		}
		return u.Tx().InsertDeposit(u.Context(), deposit)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[DEPOSIT] Created %s for account %s amount %s via %s", deposit.ID, accountID, amount.StringFixed(2), paymentMethod)
	return deposit, nil
}

// SubmitDepositProof attaches the funds-transfer code the user received from their bank.
func (s *TransactionService) SubmitDepositProof(ctx context.Context, accountID, depositID, ftCode string) (*models.Deposit, error) {
	ftCode = strings.TrimSpace(ftCode)
	if ftCode == "" {
		return nil, fmt.Errorf("%w: transfer code is required", ErrInvalidRequest)
	}

	var deposit *models.Deposit
	err := s.ledger.Execute(ctx, accountID, func(u *Unit) error {
		d, err := u.Tx().LockDeposit(u.Context(), depositID)
		if err != nil {
			return err
		}
		if d.AccountID != accountID {
			return ErrNotFound
		}
		if d.Status != models.DepositPending {
			return transition("deposit", d.ID, d.Status, models.DepositFTSubmitted)
		}
		d.FTCode = ftCode
		d.Status = models.DepositFTSubmitted
		d.UpdatedAt = u.Now()
		deposit = d
		return u.Tx().SaveDeposit(u.Context(), d)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[DEPOSIT] Proof submitted for %s", depositID)
	return deposit, nil
}

// depositUnit runs fn in the ledger unit of the deposit owner with the deposit row locked.
func (s *TransactionService) depositUnit(ctx context.Context, depositID string, fn func(u *Unit, d *models.Deposit) error) (*models.Deposit, error) {
	current, err := s.store.GetDeposit(ctx, depositID)
	if err != nil {
		return nil, err
	}

	var deposit *models.Deposit
	err = s.ledger.Execute(ctx, current.AccountID, func(u *Unit) error {
		d, err := u.Tx().LockDeposit(u.Context(), depositID)
		if err != nil {
			return err
		}
		if err := fn(u, d); err != nil {
			return err
		}
		d.UpdatedAt = u.Now()
		deposit = d
		return u.Tx().SaveDeposit(u.Context(), d)
	})
	return deposit, err
}

// ApproveDeposit credits the personal wallet and records the reviewer.
func (s *TransactionService) ApproveDeposit(ctx context.Context, depositID, adminID, notes string) (*models.Deposit, error) {
	deposit, err := s.depositUnit(ctx, depositID, func(u *Unit, d *models.Deposit) error {
		if d.Status != models.DepositPending && d.Status != models.DepositFTSubmitted {
			return transition("deposit", d.ID, d.Status, models.DepositApproved)
		}
		if _, err := u.Post(Posting{
			Wallet:               models.WalletPersonal,
			Delta:                d.Amount,
			Reason:               models.ReasonDeposit,
			IdempotencyKey:       depositKey(d, "approve"),
			RelatedTransactionID: d.ID,
		}); err != nil {
			return err
		}
		now := u.Now()
		d.Status = models.DepositApproved
		d.ApproverID = adminID
		d.ApprovedAt = &now
		d.AdminNotes = notes
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[DEPOSIT] %s approved by %s", depositID, adminID)
	s.audit.LogOperation(depositID, deposit.AccountID, "DEPOSIT_APPROVED", "admin="+adminID)
	return deposit, nil
}

// RejectDeposit closes a deposit without touching the ledger.
func (s *TransactionService) RejectDeposit(ctx context.Context, depositID, adminID, notes string) (*models.Deposit, error) {
	deposit, err := s.depositUnit(ctx, depositID, func(u *Unit, d *models.Deposit) error {
		if d.Status != models.DepositPending && d.Status != models.DepositFTSubmitted {
			return transition("deposit", d.ID, d.Status, models.DepositRejected)
		}
		now := u.Now()
		d.Status = models.DepositRejected
		d.ApproverID = adminID
		d.ApprovedAt = &now
		d.AdminNotes = notes
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[DEPOSIT] %s rejected by %s", depositID, adminID)
	s.audit.LogOperation(depositID, deposit.AccountID, "DEPOSIT_REJECTED", "admin="+adminID)
	return deposit, nil
}

// UndoDeposit returns a reviewed deposit to the pending queue. An approved deposit is debited back
// first, which fails if the funds have already been spent.
func (s *TransactionService) UndoDeposit(ctx context.Context, depositID, adminID string) (*models.Deposit, error) {
	var from string
	deposit, err := s.depositUnit(ctx, depositID, func(u *Unit, d *models.Deposit) error {
		from = d.Status
		switch d.Status {
		case models.DepositApproved:
			if _, err := u.Post(Posting{
				Wallet:               models.WalletPersonal,
				Delta:                d.Amount.Neg(),
				Reason:               models.ReasonDeposit,
				IdempotencyKey:       depositKey(d, "undo"),
				RelatedTransactionID: d.ID,
			}); err != nil {
				return err
			}
		case models.DepositRejected:
		default:
			return transition("deposit", d.ID, d.Status, models.DepositPending)
		}
		d.Revision++
		d.Status = models.DepositPending
		d.ApproverID = ""
		d.ApprovedAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[DEPOSIT] %s undone from %s by %s", depositID, from, adminID)
	s.audit.LogOperation(depositID, deposit.AccountID, "DEPOSIT_UNDONE", fmt.Sprintf("admin=%s from=%s", adminID, from))
	return deposit, nil
}

func (s *TransactionService) GetDeposit(ctx context.Context, depositID string) (*models.Deposit, error) {
	return s.store.GetDeposit(ctx, depositID)
}

// ListDeposits returns the review queue for a status; an empty status lists everything.
func (s *TransactionService) ListDeposits(ctx context.Context, status string, limit int) ([]models.Deposit, error) {
	return s.store.ListDeposits(ctx, status, clampLimit(limit))
}

// WithdrawalQuote splits a gross amount into tax and net.
func WithdrawalQuote(settings *config.Settings, gross decimal.Decimal) (tax, net decimal.Decimal) {
	tax = config.Percent(gross, settings.WithdrawalTaxPercent)
	return tax, gross.Sub(tax)
}

// CreateWithdrawal verifies the transaction password and reserves the gross amount immediately.
func (s *TransactionService) CreateWithdrawal(ctx context.Context, accountID string, amount decimal.Decimal,
	wallet models.Wallet, transactionPassword string) (*models.Withdrawal, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	if !wallet.Valid() {
		return nil, fmt.Errorf("%w: unknown wallet %q", ErrInvalidRequest, wallet)
	}

	var withdrawal *models.Withdrawal
	err := s.ledger.Execute(ctx, accountID, func(u *Unit) error {
		account := u.Account
		if account.TransactionPasswordHash == "" || !s.hasher.Verify(transactionPassword, account.TransactionPasswordHash) {
			return ErrAuthenticationFailure
		}
		if account.MembershipLevel.Ordinal() < u.Settings.WithdrawalMinRank.Ordinal() {
			return fmt.Errorf("%w: withdrawals require %s or above", ErrRankNotEligible, u.Settings.WithdrawalMinRank.DisplayName())
		}
		if amount.LessThan(u.Settings.WithdrawalMinAmount) {
			return fmt.Errorf("%w: minimum withdrawal is %s", ErrInvalidAmount, u.Settings.WithdrawalMinAmount.StringFixed(2))
		}
		if account.BankAccount == nil {
			return ErrNoPayoutDestination
		}

		tax, net := WithdrawalQuote(u.Settings, amount)
		dest := *account.BankAccount
		withdrawal = &models.Withdrawal{
			ID:          uuid.New().String(),
			AccountID:   accountID,
			Wallet:      wallet,
			Amount:      amount,
			TaxAmount:   tax,
			NetAmount:   net,
			Destination: &dest,
			Status:      models.WithdrawalPending,
			CreatedAt:   u.Now(),
			UpdatedAt:   u.Now(),
		}
		if _, err := u.Post(Posting{
			Wallet:               wallet,
			Delta:                amount.Neg(),
			Reason:               models.ReasonWithdrawal,
			IdempotencyKey:       withdrawalKey(withdrawal, "reserve"),
			RelatedTransactionID: withdrawal.ID,
		}); err != nil {
			return err
		}
		return u.Tx().InsertWithdrawal(u.Context(), withdrawal)
	})
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailure) {
			log.Printf("[WITHDRAWAL] Rejected request for account %s: bad transaction password", accountID)
		}
		return nil, err
	}

	log.Printf("[WITHDRAWAL] Reserved %s from %s wallet of %s (%s)", amount.StringFixed(2), wallet, accountID, withdrawal.ID)
	return withdrawal, nil
}

func (s *TransactionService) withdrawalUnit(ctx context.Context, withdrawalID string, fn func(u *Unit, w *models.Withdrawal) error) (*models.Withdrawal, error) {
	current, err := s.store.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}

	var withdrawal *models.Withdrawal
	err = s.ledger.Execute(ctx, current.AccountID, func(u *Unit) error {
		w, err := u.Tx().LockWithdrawal(u.Context(), withdrawalID)
		if err != nil {
			return err
		}
		if err := fn(u, w); err != nil {
			return err
		}
		w.UpdatedAt = u.Now()
		withdrawal = w
		return u.Tx().SaveWithdrawal(u.Context(), w)
	})
	return withdrawal, err
}

func (s *TransactionService) refund(u *Unit, w *models.Withdrawal) error {
	_, err := u.Post(Posting{
		Wallet:               w.Wallet,
		Delta:                w.Amount,
		Reason:               models.ReasonRefund,
		IdempotencyKey:       withdrawalKey(w, "refund"),
		RelatedTransactionID: w.ID,
	})
	return err
}

// ApproveWithdrawal records the reviewer and queues the payout. The funds left the wallet at
// request time so the ledger is not touched.
func (s *TransactionService) ApproveWithdrawal(ctx context.Context, withdrawalID, adminID, notes string) (*models.Withdrawal, error) {
	withdrawal, err := s.withdrawalUnit(ctx, withdrawalID, func(u *Unit, w *models.Withdrawal) error {
		if w.Status != models.WithdrawalPending {
			return transition("withdrawal", w.ID, w.Status, models.WithdrawalApproved)
		}
		now := u.Now()
		w.Status = models.WithdrawalApproved
		w.ApproverID = adminID
		w.ApprovedAt = &now
		w.AdminNotes = notes
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WITHDRAWAL] %s approved by %s", withdrawalID, adminID)
	s.audit.LogOperation(withdrawalID, withdrawal.AccountID, "WITHDRAWAL_APPROVED", "admin="+adminID)
	if err := s.payouts.PublishPayout(ctx, withdrawal); err != nil {
		log.Printf("[PAYOUT] Failed to queue payout for %s: %v", withdrawalID, err)
		s.audit.LogError(withdrawalID, withdrawal.AccountID, err)
	}
	return withdrawal, nil
}

// RejectWithdrawal credits the reserved gross amount back to its wallet.
func (s *TransactionService) RejectWithdrawal(ctx context.Context, withdrawalID, adminID, notes string) (*models.Withdrawal, error) {
	withdrawal, err := s.withdrawalUnit(ctx, withdrawalID, func(u *Unit, w *models.Withdrawal) error {
		if w.Status != models.WithdrawalPending {
			return transition("withdrawal", w.ID, w.Status, models.WithdrawalRejected)
		}
		if err := s.refund(u, w); err != nil {
			return err
		}
		now := u.Now()
		w.Status = models.WithdrawalRejected
		w.ApproverID = adminID
		w.ApprovedAt = &now
		w.AdminNotes = notes
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WITHDRAWAL] %s rejected by %s, %s refunded", withdrawalID, adminID, withdrawal.Amount.StringFixed(2))
	s.audit.LogOperation(withdrawalID, withdrawal.AccountID, "WITHDRAWAL_REJECTED", "admin="+adminID)
	return withdrawal, nil
}

// UndoWithdrawal reverses the last review. An approved withdrawal is refunded and becomes rejected;
// a rejected one is reserved again and returns to pending.
func (s *TransactionService) UndoWithdrawal(ctx context.Context, withdrawalID, adminID string) (*models.Withdrawal, error) {
	var from string
	withdrawal, err := s.withdrawalUnit(ctx, withdrawalID, func(u *Unit, w *models.Withdrawal) error {
		from = w.Status
		switch w.Status {
		case models.WithdrawalApproved:
			if err := s.refund(u, w); err != nil {
				return err
			}
			now := u.Now()
			w.Status = models.WithdrawalRejected
			w.ApproverID = adminID
			w.ApprovedAt = &now
		case models.WithdrawalRejected:
			w.Revision++
			if _, err := u.Post(Posting{
				Wallet:               w.Wallet,
				Delta:                w.Amount.Neg(),
				Reason:               models.ReasonWithdrawal,
				IdempotencyKey:       withdrawalKey(w, "reserve"),
				RelatedTransactionID: w.ID,
			}); err != nil {
				return err
			}
			w.Status = models.WithdrawalPending
			w.ApproverID = ""
			w.ApprovedAt = nil
		default:
			return transition("withdrawal", w.ID, w.Status, "undone")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WITHDRAWAL] %s undone from %s by %s, now %s", withdrawalID, from, adminID, withdrawal.Status)
	s.audit.LogOperation(withdrawalID, withdrawal.AccountID, "WITHDRAWAL_UNDONE", fmt.Sprintf("admin=%s from=%s", adminID, from))
	if from == models.WithdrawalApproved {
		if err := s.payouts.PublishRecall(ctx, withdrawal); err != nil {
			log.Printf("[PAYOUT] Failed to queue recall for %s: %v", withdrawalID, err)
			s.audit.LogError(withdrawalID, withdrawal.AccountID, err)
		}
	}
	return withdrawal, nil
}

func (s *TransactionService) GetWithdrawal(ctx context.Context, withdrawalID string) (*models.Withdrawal, error) {
	return s.store.GetWithdrawal(ctx, withdrawalID)
}

func (s *TransactionService) ListWithdrawals(ctx context.Context, status string, limit int) ([]models.Withdrawal, error) {
	return s.store.ListWithdrawals(ctx, status, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
