package repository

import (
	"autopay/internal/models"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(tx *models.LedgerTransaction) error {
	return r.db.Create(tx).Error
}

func (r *TransactionRepository) ListByUser(userID uint, limit int) ([]models.LedgerTransaction, error) {
	var txs []models.LedgerTransaction
	q := r.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&txs).Error
	return txs, err
}
