package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MembershipLevel is a rank in the fixed Intern -> Rank 10 sequence
type MembershipLevel string

const (
	LevelIntern MembershipLevel = "intern"
	LevelRank1  MembershipLevel = "rank_1"
	LevelRank2  MembershipLevel = "rank_2"
	LevelRank3  MembershipLevel = "rank_3"
	LevelRank4  MembershipLevel = "rank_4"
	LevelRank5  MembershipLevel = "rank_5"
	LevelRank6  MembershipLevel = "rank_6"
	LevelRank7  MembershipLevel = "rank_7"
	LevelRank8  MembershipLevel = "rank_8"
	LevelRank9  MembershipLevel = "rank_9"
	LevelRank10 MembershipLevel = "rank_10"
)

// Levels lists every membership level in ascending order.
var Levels = []MembershipLevel{
	LevelIntern, LevelRank1, LevelRank2, LevelRank3, LevelRank4, LevelRank5,
	LevelRank6, LevelRank7, LevelRank8, LevelRank9, LevelRank10,
}

// Ordinal returns the position of the level in Levels, or -1 for an unknown level.
func (l MembershipLevel) Ordinal() int {
	for i, lvl := range Levels {
		if lvl == l {
			return i
		}
	}
	return -1
}

func (l MembershipLevel) Valid() bool {
	return l.Ordinal() >= 0
}

// IsHigherThan reports whether l ranks strictly above other.
func (l MembershipLevel) IsHigherThan(other MembershipLevel) bool {
	return l.Valid() && other.Valid() && l.Ordinal() > other.Ordinal()
}

// DisplayName returns "Intern" or "Rank N".
func (l MembershipLevel) DisplayName() string {
	if l == LevelIntern {
		return "Intern"
	}
	if ord := l.Ordinal(); ord > 0 {
		return fmt.Sprintf("Rank %d", ord)
	}
	return string(l)
}

// ParseLevel accepts the canonical form ("rank_3"), the display form ("Rank 3") or a bare ordinal ("3").
func ParseLevel(s string) (MembershipLevel, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "_")
	if norm == "0" {
		return LevelIntern, nil
	}
	for _, lvl := range Levels {
		if norm == string(lvl) || "rank_"+norm == string(lvl) {
			return lvl, nil
		}
	}
	return "", fmt.Errorf("unknown membership level %q", s)
}

// Wallet identifies one of the two balances held per account
type Wallet string

const (
	WalletIncome   Wallet = "income"
	WalletPersonal Wallet = "personal"
)

func (w Wallet) Valid() bool {
	return w == WalletIncome || w == WalletPersonal
}

// BankChangeStatus tracks the bank-change confirmation state machine
type BankChangeStatus string

const (
	BankChangeNone    BankChangeStatus = "none"
	BankChangePending BankChangeStatus = "pending"
)

// BankDetails is a payout destination
type BankDetails struct {
	BankName      string `json:"bankName" validate:"required,max=150"`
	AccountTitle  string `json:"accountTitle" validate:"required,max=150"`
	AccountNumber string `json:"accountNumber" validate:"required,min=6,max=34"`
	BranchCode    string `json:"branchCode,omitempty" validate:"max=20"`
}

// Value implements driver.Valuer for BankDetails
func (b *BankDetails) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return json.Marshal(b)
}

// Scan implements sql.Scanner for BankDetails
func (b *BankDetails) Scan(value any) error {
	if value == nil {
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(data, b)
}

// DateList holds calendar dates formatted as YYYY-MM-DD, stored as a JSONB array.
type DateList []string

// Value implements driver.Valuer for DateList
func (d DateList) Value() (driver.Value, error) {
	if d == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(d))
}

// Scan implements sql.Scanner for DateList
func (d *DateList) Scan(value any) error {
	if value == nil {
		*d = nil
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(data, (*[]string)(d))
}

// Last returns the most recent date, or "" when empty.
func (d DateList) Last() string {
	if len(d) == 0 {
		return ""
	}
	return d[len(d)-1]
}

// Account is the per-user ledger head: two cached balances plus rank and payout state
type Account struct {
	ID                      string           `json:"id" db:"id"`
	ReferrerID              *string          `json:"referrerId,omitempty" db:"referrer_id"`
	MembershipLevel         MembershipLevel  `json:"membershipLevel" db:"membership_level"`
	IncomeWallet            decimal.Decimal  `json:"incomeWallet" db:"income_wallet"`
	PersonalWallet          decimal.Decimal  `json:"personalWallet" db:"personal_wallet"`
	BankAccount             *BankDetails     `json:"bankAccount,omitempty" db:"bank_account"`
	PendingBankAccount      *BankDetails     `json:"pendingBankAccount,omitempty" db:"pending_bank_account"`
	BankChangeStatus        BankChangeStatus `json:"bankChangeStatus" db:"bank_change_status"`
	BankChangeConfirmations DateList         `json:"bankChangeConfirmations" db:"bank_change_confirmations"`
	TransactionPasswordHash string           `json:"-" db:"transaction_password_hash"`
	LedgerFrozen            bool             `json:"ledgerFrozen" db:"ledger_frozen"`
	Version                 int              `json:"-" db:"version"` // for optimistic locking
	CreatedAt               time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt               time.Time        `json:"updatedAt" db:"updated_at"`
}

// Balance returns the cached balance of the given wallet.
func (a *Account) Balance(w Wallet) decimal.Decimal {
	if w == WalletIncome {
		return a.IncomeWallet
	}
	return a.PersonalWallet
}

// SetBalance overwrites the cached balance of the given wallet.
func (a *Account) SetBalance(w Wallet, v decimal.Decimal) {
	if w == WalletIncome {
		a.IncomeWallet = v
		return
	}
	a.PersonalWallet = v
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	if a.ReferrerID != nil {
		ref := *a.ReferrerID
		c.ReferrerID = &ref
	}
	if a.BankAccount != nil {
		b := *a.BankAccount
		c.BankAccount = &b
	}
	if a.PendingBankAccount != nil {
		b := *a.PendingBankAccount
		c.PendingBankAccount = &b
	}
	if a.BankChangeConfirmations != nil {
		c.BankChangeConfirmations = append(DateList(nil), a.BankChangeConfirmations...)
	}
	return &c
}

// ReferralNode is the slim projection of an account used to build the referral index
type ReferralNode struct {
	AccountID       string          `json:"accountId"`
	ReferrerID      *string         `json:"referrerId,omitempty"`
	MembershipLevel MembershipLevel `json:"membershipLevel"`
}
