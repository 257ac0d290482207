package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryReason classifies a ledger mutation
type EntryReason string

const (
	ReasonDeposit          EntryReason = "deposit"
	ReasonWithdrawal       EntryReason = "withdrawal"
	ReasonTaskReward       EntryReason = "task-reward"
	ReasonCommission       EntryReason = "commission"
	ReasonRankUpgradeDebit EntryReason = "rank-upgrade-debit"
	ReasonRankUpgradeBonus EntryReason = "rank-upgrade-bonus"
	ReasonSalary           EntryReason = "salary"
	ReasonRefund           EntryReason = "refund"
)

// LedgerEntry is an immutable record of one balance mutation
type LedgerEntry struct {
	ID                   string          `json:"id" db:"id"`
	AccountID            string          `json:"accountId" db:"account_id"`
	Wallet               Wallet          `json:"wallet" db:"wallet"`
	Delta                decimal.Decimal `json:"delta" db:"delta"`
	BalanceAfter         decimal.Decimal `json:"balanceAfter" db:"balance_after"`
	Reason               EntryReason     `json:"reason" db:"reason"`
	RelatedTransactionID string          `json:"relatedTransactionId,omitempty" db:"related_transaction_id"`
	IdempotencyKey       string          `json:"idempotencyKey" db:"idempotency_key"`
	CreatedAt            time.Time       `json:"createdAt" db:"created_at"`
}

// WalletReconciliation compares the cached balance of a wallet with the sum of its entries
type WalletReconciliation struct {
	Wallet     Wallet          `json:"wallet"`
	Cached     decimal.Decimal `json:"cached"`
	FromLedger decimal.Decimal `json:"fromLedger"`
	Consistent bool            `json:"consistent"`
}
