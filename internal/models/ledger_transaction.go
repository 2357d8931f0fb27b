package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerTransaction records credits/debits for balance history (deposits,
// autopay debits). Positive amount = credit, negative = debit.
type LedgerTransaction struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"not null;index" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Type      string          `gorm:"size:30;not null;index" json:"type"` // DEPOSIT, AUTOPAY_DEBIT
	Reference string          `gorm:"size:64;uniqueIndex" json:"reference"`
	PaymentID *uint           `gorm:"index" json:"payment_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (LedgerTransaction) TableName() string {
	return "ledger_transactions"
}
