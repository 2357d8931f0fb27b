package repository

import (
	"context"
	"errors"
	"time"

	"autopay/internal/domain"
	"autopay/internal/models"

	"gorm.io/gorm"
)

// ErrStatusConflict means a conditional status update matched no row: the
// payment was modified concurrently (claimed by another pass, cancelled, or
// already finalized).
var ErrStatusConflict = errors.New("payment status changed concurrently")

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByUser returns the user's payments with FAILED excluded, newest due
// date first (dashboard list).
func (r *PaymentRepository) ListByUser(userID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("user_id = ? AND status <> ?", userID, domain.PaymentFailed).
		Order("due_date DESC").Find(&payments).Error
	return payments, err
}

// ListNeedingAttention returns FAILED and stuck-PENDING payments for the user.
func (r *PaymentRepository) ListNeedingAttention(userID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("user_id = ? AND status IN ?", userID,
		[]string{domain.PaymentFailed, domain.PaymentPending}).
		Order("due_date DESC").Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) ListAllByUser(userID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("user_id = ?", userID).Order("due_date DESC").Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) CountFailedByUser(userID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.Payment{}).
		Where("user_id = ? AND status = ?", userID, domain.PaymentFailed).Count(&n).Error
	return n, err
}

// FindDue selects payments ready for settlement: SCHEDULED with a due date on
// or before now. PENDING rows from a still-in-flight pass are deliberately
// not matched; that is the engine's re-entrancy guard.
func (r *PaymentRepository) FindDue(ctx context.Context, now time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).Preload("User").
		Where("status = ? AND due_date <= ?", domain.PaymentScheduled, dateOnly(now)).
		Find(&payments).Error
	return payments, err
}

// Claim moves a payment SCHEDULED -> PENDING. The WHERE clause on the old
// status makes the claim a single-row compare-and-set; zero rows affected
// means someone else got there first.
func (r *PaymentRepository) Claim(ctx context.Context, paymentID uint) error {
	return r.transition(ctx, paymentID, []string{domain.PaymentScheduled}, domain.PaymentPending)
}

// Finalize moves a PENDING payment to a terminal status (PAID or FAILED).
func (r *PaymentRepository) Finalize(ctx context.Context, paymentID uint, status string) error {
	return r.transition(ctx, paymentID, []string{domain.PaymentPending}, status)
}

// Cancel marks a payment CANCELLED; only valid while SCHEDULED or PENDING.
func (r *PaymentRepository) Cancel(paymentID, userID uint) error {
	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND user_id = ? AND status IN ?", paymentID, userID,
			[]string{domain.PaymentScheduled, domain.PaymentPending}).
		Update("status", domain.PaymentCancelled)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// Reschedule updates due date and amount while the payment is still live.
// Status is never touched here: once a payment leaves SCHEDULED it must not
// re-enter it, or a claimed row could be debited a second time.
func (r *PaymentRepository) Reschedule(paymentID, userID uint, p *models.Payment) error {
	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND user_id = ? AND status IN ?", paymentID, userID,
			[]string{domain.PaymentScheduled, domain.PaymentPending}).
		Updates(map[string]interface{}{
			"due_date": p.DueDate,
			"amount":   p.Amount,
			"payee":    p.Payee,
			"method":   p.Method,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *PaymentRepository) transition(ctx context.Context, paymentID uint, from []string, to string) error {
	tx := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status IN ?", paymentID, from).
		Update("status", to)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
