package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"p2p-credit-backend/internal/pkg/apperror"
)

var ErrInsufficientFunds = apperror.New(apperror.KindInsufficientFunds, "INSUFFICIENT_FUNDS", "insufficient funds")

type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

func (d Direction) Valid() bool { return d == DirectionIn || d == DirectionOut }

type TxType string

const (
	TxDeposit          TxType = "DEPOSIT"
	TxWithdrawal       TxType = "WITHDRAWAL"
	TxTransfer         TxType = "TRANSFER"
	TxLoanDisbursement TxType = "LOAN_DISBURSEMENT"
	TxLoanRepayment    TxType = "LOAN_REPAYMENT"
	TxFee              TxType = "FEE"
	TxRefund           TxType = "REFUND"
)

func (t TxType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxTransfer, TxLoanDisbursement, TxLoanRepayment, TxFee, TxRefund:
		return true
	}
	return false
}

// OverdraftExempt lists tx types allowed to push a balance below zero.
// None are, the hook exists so the balance check stays in one place.
func (t TxType) OverdraftExempt() bool { return false }

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Table: transactions (append-only). Amount is signed: positive for IN,
// negative for OUT.
type Transaction struct {
	ID           string          `gorm:"column:id;primaryKey;size:36" json:"id"`
	AccountID    string          `gorm:"column:account_id;size:36;not null;index:idx_tx_account_created,priority:1" json:"account_id"`
	LoanID       *string         `gorm:"column:loan_id;size:36;index:idx_tx_loan" json:"loan_id,omitempty"`
	TransferID   *string         `gorm:"column:transfer_id;size:36;index" json:"transfer_id,omitempty"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Direction    Direction       `gorm:"column:direction;size:8;not null" json:"direction"`
	TxType       TxType          `gorm:"column:tx_type;size:24;not null" json:"tx_type"`
	Status       Status          `gorm:"column:status;size:16;not null" json:"status"`
	BalanceAfter decimal.Decimal `gorm:"column:balance_after;type:decimal(20,2);not null" json:"balance_after"`
	Reference    string          `gorm:"column:reference;size:128" json:"reference,omitempty"`
	CreatedAt    time.Time       `gorm:"column:created_at;index:idx_tx_account_created,priority:2" json:"created_at"`
}

func (Transaction) TableName() string { return "transactions" }

// Magnitude returns the unsigned amount.
func (t Transaction) Magnitude() decimal.Decimal { return t.Amount.Abs() }

// Filter narrows GetHistory; zero values mean "any".
type Filter struct {
	LoanID    string
	TxType    TxType
	Direction Direction
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}
