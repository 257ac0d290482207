package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionLevel is the hop distance from the earning account
type CommissionLevel string

const (
	CommissionLevelA CommissionLevel = "A"
	CommissionLevelB CommissionLevel = "B"
	CommissionLevelC CommissionLevel = "C"
)

// CommissionLevels lists hop labels in walk order.
var CommissionLevels = []CommissionLevel{CommissionLevelA, CommissionLevelB, CommissionLevelC}

// CommissionSource is the earning event type that triggers a cascade
type CommissionSource string

const (
	SourceTaskReward  CommissionSource = "task-reward"
	SourceRankUpgrade CommissionSource = "rank-upgrade"
)

// Commission is a referral payout credited to an ancestor's income wallet
type Commission struct {
	ID              string           `json:"id" db:"id"`
	Level           CommissionLevel  `json:"level" db:"level"`
	FromAccountID   string           `json:"fromAccountId" db:"from_account_id"`
	ToAccountID     string           `json:"toAccountId" db:"to_account_id"`
	SourceEvent     CommissionSource `json:"sourceEvent" db:"source_event"`
	EventID         string           `json:"eventId" db:"event_id"`
	BaseAmount      decimal.Decimal  `json:"baseAmount" db:"base_amount"`
	Percent         decimal.Decimal  `json:"percent" db:"percent"`
	AmountEarned    decimal.Decimal  `json:"amountEarned" db:"amount_earned"`
	SettingsVersion int              `json:"settingsVersion" db:"settings_version"`
	CreatedAt       time.Time        `json:"createdAt" db:"created_at"`
}

// Rank upgrade statuses
const (
	RankUpgradeCompleted = "completed"
	RankUpgradeFailed    = "failed"
)

// RankUpgradeRequest records one paid rank change attempt
type RankUpgradeRequest struct {
	ID            string          `json:"id" db:"id"`
	AccountID     string          `json:"accountId" db:"account_id"`
	FromLevel     MembershipLevel `json:"fromLevel" db:"from_level"`
	ToLevel       MembershipLevel `json:"toLevel" db:"to_level"`
	Price         decimal.Decimal `json:"price" db:"price"`
	BonusPercent  decimal.Decimal `json:"bonusPercent" db:"bonus_percent"`
	BonusAmount   decimal.Decimal `json:"bonusAmount" db:"bonus_amount"`
	Status        string          `json:"status" db:"status"`
	FailureReason string          `json:"failureReason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
}

// SalarySnapshot is the single monthly salary payout of an account
type SalarySnapshot struct {
	AccountID        string          `json:"accountId" db:"account_id"`
	Period           string          `json:"period" db:"period"` // YYYY-MM
	TierMatched      string          `json:"tierMatched" db:"tier_matched"`
	DirectQualified  int             `json:"directQualified" db:"direct_qualified"`
	NetworkQualified int             `json:"networkQualified" db:"network_qualified"`
	AmountPaid       decimal.Decimal `json:"amountPaid" db:"amount_paid"`
	Wallet           Wallet          `json:"wallet" db:"wallet"`
	SettingsVersion  int             `json:"settingsVersion" db:"settings_version"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
}
