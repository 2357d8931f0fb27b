package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment is a scheduled bill payment. Status starts at SCHEDULED and is
// mutated only by the settlement engine (SCHEDULED -> PENDING -> PAID/FAILED)
// or by an explicit user cancel (CANCELLED while still SCHEDULED or PENDING).
type Payment struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"not null;index" json:"user_id"`
	Payee     string          `gorm:"size:100;not null" json:"payee"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	DueDate   time.Time       `gorm:"type:date;not null;index" json:"due_date"`
	Method    string          `gorm:"size:50" json:"method"`
	Status    string          `gorm:"size:20;not null;index;default:'SCHEDULED'" json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}
