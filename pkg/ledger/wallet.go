package ledger

import (
	"context"
	"errors"

	"autopay/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WalletProvider keeps the balance as a decimal column on the user row.
type WalletProvider struct {
	db *gorm.DB
}

func NewWalletProvider(db *gorm.DB) *WalletProvider {
	return &WalletProvider{db: db}
}

func (p *WalletProvider) Balance(ctx context.Context, email string) (decimal.Decimal, error) {
	var u models.User
	err := p.db.WithContext(ctx).Select("balance").Where("email = ?", email).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, err
	}
	return u.Balance, nil
}

// SetBalanceIf is a single-row compare-and-swap on the balance column.
func (p *WalletProvider) SetBalanceIf(ctx context.Context, email string, old, balance decimal.Decimal) error {
	tx := p.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ? AND balance = ?", email, old).Update("balance", balance)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := p.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}
