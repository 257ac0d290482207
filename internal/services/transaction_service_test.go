package services

import (
	"context"
	"errors"
	"testing"

	"github.com/earnhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTransactionTest(t *testing.T) (*testEnv, *TransactionService, *MockPayoutPublisher) {
	env := newTestEnv(t)
	payouts := &MockPayoutPublisher{}
	return env, NewTransactionService(env.store, env.ledger, env.hasher, payouts, env.audit), payouts
}

func TestTransactionService_DepositLifecycle(t *testing.T) {
	ctx := context.Background()
	env, service, _ := newTransactionTest(t)
	env.seed(t, "user-1", "", models.LevelIntern)

	deposit, err := service.CreateDeposit(ctx, "user-1", dec("5000"), "bank transfer")
	require.NoError(t, err)
	assert.Equal(t, models.DepositPending, deposit.Status)
	assert.True(t, env.account(t, "user-1").PersonalWallet.IsZero(), "nothing credited before approval")

	t.Run("proof moves to ft_submitted", func(t *testing.T) {
		d, err := service.SubmitDepositProof(ctx, "user-1", deposit.ID, " FT123 ")
		require.NoError(t, err)
		assert.Equal(t, models.DepositFTSubmitted, d.Status)
		assert.Equal(t, "FT123", d.FTCode)
	})

	t.Run("proof twice is rejected", func(t *testing.T) {
		_, err := service.SubmitDepositProof(ctx, "user-1", deposit.ID, "FT124")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("approve credits the personal wallet", func(t *testing.T) {
		d, err := service.ApproveDeposit(ctx, deposit.ID, "admin-1", "checked")
		require.NoError(t, err)
		assert.Equal(t, models.DepositApproved, d.Status)
		assert.Equal(t, "admin-1", d.ApproverID)
		assert.NotNil(t, d.ApprovedAt)
		assert.Equal(t, "5000", env.account(t, "user-1").PersonalWallet.String())
	})

	t.Run("second approval is rejected without a second credit", func(t *testing.T) {
		_, err := service.ApproveDeposit(ctx, deposit.ID, "admin-2", "")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.Equal(t, "5000", env.account(t, "user-1").PersonalWallet.String())
	})

	t.Run("undo debits the credit back", func(t *testing.T) {
		d, err := service.UndoDeposit(ctx, deposit.ID, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, models.DepositPending, d.Status)
		assert.Equal(t, 1, d.Revision)
		assert.Empty(t, d.ApproverID)
		assert.True(t, env.account(t, "user-1").PersonalWallet.IsZero())
	})

	t.Run("re-approval after undo credits again", func(t *testing.T) {
		_, err := service.ApproveDeposit(ctx, deposit.ID, "admin-1", "")
		require.NoError(t, err)
		assert.Equal(t, "5000", env.account(t, "user-1").PersonalWallet.String())
		env.assertConsistent(t, "user-1")

		entries, err := env.store.ListEntries(ctx, "user-1", 0)
		require.NoError(t, err)
		assert.Len(t, entries, 3)
	})
}

func TestTransactionService_DepositEdgeCases(t *testing.T) {
	ctx := context.Background()
	env, service, _ := newTransactionTest(t)
	env.seed(t, "user-1", "", models.LevelIntern)
	env.seed(t, "user-2", "", models.LevelIntern)

	t.Run("invalid amounts", func(t *testing.T) {
		_, err := service.CreateDeposit(ctx, "user-1", dec("0"), "bank")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = service.CreateDeposit(ctx, "user-1", dec("10.005"), "bank")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = service.CreateDeposit(ctx, "user-1", dec("10"), "  ")
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("proof for someone else's deposit", func(t *testing.T) {
		d, err := service.CreateDeposit(ctx, "user-1", dec("100"), "bank")
		require.NoError(t, err)
		_, err = service.SubmitDepositProof(ctx, "user-2", d.ID, "FT1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("reject then undo returns to pending without ledger effect", func(t *testing.T) {
		d, err := service.CreateDeposit(ctx, "user-1", dec("100"), "bank")
		require.NoError(t, err)

		d, err = service.RejectDeposit(ctx, d.ID, "admin-1", "no proof")
		require.NoError(t, err)
		assert.Equal(t, models.DepositRejected, d.Status)
		assert.Equal(t, "no proof", d.AdminNotes)

		_, err = service.ApproveDeposit(ctx, d.ID, "admin-1", "")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)

		d, err = service.UndoDeposit(ctx, d.ID, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, models.DepositPending, d.Status)
		assert.True(t, env.account(t, "user-1").PersonalWallet.IsZero())
	})

	t.Run("undo of a pending deposit", func(t *testing.T) {
		d, err := service.CreateDeposit(ctx, "user-1", dec("100"), "bank")
		require.NoError(t, err)
		_, err = service.UndoDeposit(ctx, d.ID, "admin-1")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("undo fails once the credit is spent", func(t *testing.T) {
		d, err := service.CreateDeposit(ctx, "user-2", dec("300"), "bank")
		require.NoError(t, err)
		_, err = service.ApproveDeposit(ctx, d.ID, "admin-1", "")
		require.NoError(t, err)
		_, err = env.ledger.Apply(ctx, "user-2", models.WalletPersonal, dec("-200"), models.ReasonRankUpgradeDebit, "spend")
		require.NoError(t, err)

		_, err = service.UndoDeposit(ctx, d.ID, "admin-1")
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		stored, err := service.GetDeposit(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DepositApproved, stored.Status)
	})

	t.Run("unknown deposit", func(t *testing.T) {
		_, err := service.ApproveDeposit(ctx, "missing", "admin-1", "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list filters by status", func(t *testing.T) {
		pending, err := service.ListDeposits(ctx, models.DepositPending, 0)
		require.NoError(t, err)
		for _, d := range pending {
			assert.Equal(t, models.DepositPending, d.Status)
		}
		all, err := service.ListDeposits(ctx, "", 0)
		require.NoError(t, err)
		assert.Greater(t, len(all), len(pending))
	})
}

func withdrawalReadyAccount(t *testing.T, env *testEnv, id string) {
	env.seed(t, id, "", models.LevelRank1)
	env.setPassword(t, id, "4321")
	env.mutate(t, id, func(a *models.Account) {
		a.BankAccount = &models.BankDetails{BankName: "Meezan Bank", AccountTitle: "Ali", AccountNumber: "01234567", BranchCode: "MEZN"}
	})
	env.fund(t, id, models.WalletIncome, "5000")
}

func TestTransactionService_WithdrawalLifecycle(t *testing.T) {
	ctx := context.Background()
	env, service, payouts := newTransactionTest(t)
	withdrawalReadyAccount(t, env, "user-1")

	withdrawal, err := service.CreateWithdrawal(ctx, "user-1", dec("1000"), models.WalletIncome, "4321")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, withdrawal.Status)
	assert.Equal(t, "100", withdrawal.TaxAmount.String())
	assert.Equal(t, "900", withdrawal.NetAmount.String())
	assert.Equal(t, "Meezan Bank", withdrawal.Destination.BankName)
	assert.Equal(t, "4000", env.account(t, "user-1").IncomeWallet.String(), "gross reserved at request time")

	t.Run("approve queues the payout without touching the ledger", func(t *testing.T) {
		payouts.On("PublishPayout", mock.Anything, mock.MatchedBy(func(w *models.Withdrawal) bool {
			return w.ID == withdrawal.ID && w.Status == models.WithdrawalApproved
		})).Return(nil).Once()

		w, err := service.ApproveWithdrawal(ctx, withdrawal.ID, "admin-1", "")
		require.NoError(t, err)
		assert.Equal(t, models.WithdrawalApproved, w.Status)
		assert.Equal(t, "4000", env.account(t, "user-1").IncomeWallet.String())
		payouts.AssertExpectations(t)
	})

	t.Run("undo of an approval refunds and recalls", func(t *testing.T) {
		payouts.On("PublishRecall", mock.Anything, mock.Anything).Return(nil).Once()

		w, err := service.UndoWithdrawal(ctx, withdrawal.ID, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, models.WithdrawalRejected, w.Status)
		assert.Equal(t, "5000", env.account(t, "user-1").IncomeWallet.String())
		payouts.AssertExpectations(t)
	})

	t.Run("undo of a rejection reserves again", func(t *testing.T) {
		w, err := service.UndoWithdrawal(ctx, withdrawal.ID, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, models.WithdrawalPending, w.Status)
		assert.Equal(t, 1, w.Revision)
		assert.Equal(t, "4000", env.account(t, "user-1").IncomeWallet.String())
	})

	t.Run("reject refunds the gross amount", func(t *testing.T) {
		w, err := service.RejectWithdrawal(ctx, withdrawal.ID, "admin-1", "bank closed")
		require.NoError(t, err)
		assert.Equal(t, models.WithdrawalRejected, w.Status)
		assert.Equal(t, "5000", env.account(t, "user-1").IncomeWallet.String())

		_, err = service.RejectWithdrawal(ctx, withdrawal.ID, "admin-1", "")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		env.assertConsistent(t, "user-1")
	})
}

func TestTransactionService_WithdrawalRules(t *testing.T) {
	ctx := context.Background()
	env, service, payouts := newTransactionTest(t)
	withdrawalReadyAccount(t, env, "user-1")

	t.Run("wrong transaction password", func(t *testing.T) {
		_, err := service.CreateWithdrawal(ctx, "user-1", dec("1000"), models.WalletIncome, "0000")
		assert.ErrorIs(t, err, ErrAuthenticationFailure)
		assert.Equal(t, "5000", env.account(t, "user-1").IncomeWallet.String())
	})

	t.Run("below minimum amount", func(t *testing.T) {
		_, err := service.CreateWithdrawal(ctx, "user-1", dec("499.99"), models.WalletIncome, "4321")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("more than the wallet holds", func(t *testing.T) {
		_, err := service.CreateWithdrawal(ctx, "user-1", dec("5000.01"), models.WalletIncome, "4321")
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("empty personal wallet", func(t *testing.T) {
		_, err := service.CreateWithdrawal(ctx, "user-1", dec("600"), models.WalletPersonal, "4321")
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		_, err := service.CreateWithdrawal(ctx, "user-1", dec("600"), models.Wallet("bonus"), "4321")
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("intern cannot withdraw", func(t *testing.T) {
		env.seed(t, "intern", "", models.LevelIntern)
		env.setPassword(t, "intern", "4321")
		env.fund(t, "intern", models.WalletIncome, "1000")
		_, err := service.CreateWithdrawal(ctx, "intern", dec("600"), models.WalletIncome, "4321")
		assert.ErrorIs(t, err, ErrRankNotEligible)
	})

	t.Run("no bank account", func(t *testing.T) {
		env.seed(t, "nobank", "", models.LevelRank2)
		env.setPassword(t, "nobank", "4321")
		env.fund(t, "nobank", models.WalletIncome, "1000")
		_, err := service.CreateWithdrawal(ctx, "nobank", dec("600"), models.WalletIncome, "4321")
		assert.ErrorIs(t, err, ErrNoPayoutDestination)
	})

	t.Run("payout queue failure does not undo the approval", func(t *testing.T) {
		w, err := service.CreateWithdrawal(ctx, "user-1", dec("500"), models.WalletIncome, "4321")
		require.NoError(t, err)
		payouts.On("PublishPayout", mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()

		approved, err := service.ApproveWithdrawal(ctx, w.ID, "admin-1", "")
		require.NoError(t, err)
		assert.Equal(t, models.WithdrawalApproved, approved.Status)
		payouts.AssertExpectations(t)
	})
}

func TestWithdrawalQuote(t *testing.T) {
	env := newTestEnv(t)
	tax, net := WithdrawalQuote(env.settings, dec("1234.56"))
	assert.Equal(t, "123.46", tax.StringFixed(2))
	assert.Equal(t, "1111.10", net.StringFixed(2))
	assert.True(t, tax.Add(net).Equal(dec("1234.56")))
}
