package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type User struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"size:100;not null" json:"name"`
	Email         string          `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Phone         string          `gorm:"size:20" json:"phone"`
	PasswordHash  string          `gorm:"size:255" json:"-"`
	EmailVerified bool            `gorm:"not null;default:false" json:"email_verified"`
	BankName      string          `gorm:"size:100" json:"bank_name"` // linked bank; selects the external ledger collection
	Balance       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`

	Payments []Payment `gorm:"foreignKey:UserID" json:"-"`
}

func (User) TableName() string {
	return "users"
}
