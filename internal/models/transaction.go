package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deposit statuses
const (
	DepositPending     = "pending"
	DepositFTSubmitted = "ft_submitted"
	DepositApproved    = "approved"
	DepositRejected    = "rejected"
)

// Withdrawal statuses
const (
	WithdrawalPending  = "pending"
	WithdrawalApproved = "approved"
	WithdrawalRejected = "rejected"
)

// Deposit is a user request to fund the personal wallet
type Deposit struct {
	ID            string          `json:"id" db:"id"`
	AccountID     string          `json:"accountId" db:"account_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	PaymentMethod string          `json:"paymentMethod" db:"payment_method"`
	FTCode        string          `json:"ftCode,omitempty" db:"ft_code"`
	Status        string          `json:"status" db:"status"`
	Revision      int             `json:"revision" db:"revision"` // bumped on every undo
	ApproverID    string          `json:"approverId,omitempty" db:"approver_id"`
	ApprovedAt    *time.Time      `json:"approvedAt,omitempty" db:"approved_at"`
	AdminNotes    string          `json:"adminNotes,omitempty" db:"admin_notes"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// Withdrawal is a user request to pay out of one wallet to the current bank destination
type Withdrawal struct {
	ID          string          `json:"id" db:"id"`
	AccountID   string          `json:"accountId" db:"account_id"`
	Wallet      Wallet          `json:"wallet" db:"wallet"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	TaxAmount   decimal.Decimal `json:"taxAmount" db:"tax_amount"`
	NetAmount   decimal.Decimal `json:"netAmount" db:"net_amount"`
	Destination *BankDetails    `json:"destination,omitempty" db:"destination"`
	Status      string          `json:"status" db:"status"`
	Revision    int             `json:"revision" db:"revision"`
	ApproverID  string          `json:"approverId,omitempty" db:"approver_id"`
	ApprovedAt  *time.Time      `json:"approvedAt,omitempty" db:"approved_at"`
	AdminNotes  string          `json:"adminNotes,omitempty" db:"admin_notes"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}
