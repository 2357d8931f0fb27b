package service

import (
	"context"

	"autopay/internal/domain"
	"autopay/internal/models"
	"autopay/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HistoryService appends ledger history rows. Implements the settlement
// engine's Recorder for autopay debits; deposits go through RecordDeposit.
type HistoryService struct {
	txRepo *repository.TransactionRepository
}

func NewHistoryService(txRepo *repository.TransactionRepository) *HistoryService {
	return &HistoryService{txRepo: txRepo}
}

func (s *HistoryService) RecordDebit(ctx context.Context, p *models.Payment, newBalance decimal.Decimal) error {
	id := p.ID
	return s.txRepo.Create(&models.LedgerTransaction{
		UserID:    p.UserID,
		Amount:    p.Amount.Neg(),
		Type:      domain.TxTypeAutopayDebit,
		Reference: uuid.NewString(),
		PaymentID: &id,
	})
}

func (s *HistoryService) ListByUser(userID uint, limit int) ([]models.LedgerTransaction, error) {
	return s.txRepo.ListByUser(userID, limit)
}

func (s *HistoryService) RecordDeposit(userID uint, amount decimal.Decimal) (*models.LedgerTransaction, error) {
	tx := &models.LedgerTransaction{
		UserID:    userID,
		Amount:    amount,
		Type:      domain.TxTypeDeposit,
		Reference: uuid.NewString(),
	}
	if err := s.txRepo.Create(tx); err != nil {
		return nil, err
	}
	return tx, nil
}
