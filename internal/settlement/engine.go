// Package settlement implements the due-payment settlement engine: it finds
// payments that have become due, walks each through SCHEDULED -> PENDING ->
// PAID/FAILED, debits the ledger exactly once per payment and notifies the
// user. A pass is safe to trigger repeatedly: the claim step is a conditional
// single-row update, so a payment can only be taken once, and PENDING rows
// are never re-selected.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"autopay/internal/domain"
	"autopay/internal/models"
	"autopay/internal/repository"
	"autopay/pkg/ledger"

	"github.com/shopspring/decimal"
)

// PaymentStore is the engine's view of the payment table.
type PaymentStore interface {
	FindDue(ctx context.Context, now time.Time) ([]models.Payment, error)
	Claim(ctx context.Context, paymentID uint) error
	Finalize(ctx context.Context, paymentID uint, status string) error
}

// Notifier delivers settlement outcomes to the user. Implementations must be
// best-effort: the engine never rolls back a financial transition because a
// message failed to send.
type Notifier interface {
	PaymentPaid(p *models.Payment, newBalance decimal.Decimal)
	PaymentFailed(p *models.Payment, balance decimal.Decimal, reason string)
}

// Recorder appends a debit to the transaction history. Optional; errors are
// logged, never surfaced.
type Recorder interface {
	RecordDebit(ctx context.Context, p *models.Payment, newBalance decimal.Decimal) error
}

// Summary reports one pass: Processed payments reached PAID, Failed reached
// FAILED (claim conflicts are skipped and appear in neither count).
type Summary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

type Engine struct {
	payments PaymentStore
	ledger   ledger.Provider
	notifier Notifier
	recorder Recorder
	log      *slog.Logger
}

func NewEngine(payments PaymentStore, provider ledger.Provider, notifier Notifier, recorder Recorder, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{payments: payments, ledger: provider, notifier: notifier, recorder: recorder, log: log}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomePaid
	outcomeFailed
)

// debitRetries bounds re-reads after a conditional-write conflict.
const debitRetries = 3

// Run executes one settlement pass as of now. Only a failure of the selection
// query itself returns an error; everything after that is isolated per
// payment.
func (e *Engine) Run(ctx context.Context, now time.Time) (Summary, error) {
	due, err := e.payments.FindDue(ctx, now)
	if err != nil {
		return Summary{}, fmt.Errorf("select due payments: %w", err)
	}
	var sum Summary
	for i := range due {
		switch e.settle(ctx, &due[i]) {
		case outcomePaid:
			sum.Processed++
		case outcomeFailed:
			sum.Failed++
		}
	}
	if len(due) > 0 || sum.Processed > 0 || sum.Failed > 0 {
		e.log.Info("settlement pass complete",
			"due", len(due), "processed", sum.Processed, "failed", sum.Failed)
	}
	return sum, nil
}

// settle runs the full claim, decide, finalize, notify sequence for one
// payment. Panics from malformed records are contained here so one bad row
// cannot abort the batch.
func (e *Engine) settle(ctx context.Context, p *models.Payment) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic while settling payment",
				"payment_id", p.ID, "user_id", p.UserID, "panic", r)
			out = e.fail(ctx, p, decimal.Zero, domain.FailReasonSystem)
		}
	}()

	if err := e.payments.Claim(ctx, p.ID); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			e.log.Debug("payment already claimed, skipping", "payment_id", p.ID)
		} else {
			// Claim did not commit; the payment stays SCHEDULED and the next
			// pass retries it.
			e.log.Warn("claim failed, deferring payment", "payment_id", p.ID, "err", err)
		}
		return outcomeSkipped
	}

	balance, err := e.ledger.Balance(ctx, p.User.Email)
	if err != nil {
		reason := domain.FailReasonSystem
		if errors.Is(err, ledger.ErrNotFound) {
			reason = domain.FailReasonAccountNotFound
		} else {
			e.log.Warn("ledger lookup failed", "payment_id", p.ID, "user_id", p.UserID, "err", err)
		}
		return e.fail(ctx, p, decimal.Zero, reason)
	}

	var newBalance decimal.Decimal
	for attempt := 0; ; attempt++ {
		if balance.LessThan(p.Amount) {
			return e.fail(ctx, p, balance, domain.FailReasonInsufficient)
		}
		newBalance = balance.Sub(p.Amount)
		werr := e.ledger.SetBalanceIf(ctx, p.User.Email, balance, newBalance)
		if werr == nil {
			break
		}
		if errors.Is(werr, ledger.ErrConflict) && attempt < debitRetries {
			// A deposit (or another writer) landed between the read and the
			// conditional write; re-read and retry.
			fresh, rerr := e.ledger.Balance(ctx, p.User.Email)
			if rerr == nil {
				balance = fresh
				continue
			}
			werr = rerr
		}
		e.log.Warn("debit commit failed", "payment_id", p.ID, "user_id", p.UserID, "err", werr)
		return e.fail(ctx, p, balance, domain.FailReasonSystem)
	}

	if err := e.payments.Finalize(ctx, p.ID, domain.PaymentPaid); err != nil {
		// Money moved but the PAID commit did not land. Force FAILED so the
		// payment is not silently stuck PENDING; the debit/status mismatch
		// needs manual reconciliation either way.
		e.log.Error("debit committed but PAID status did not persist",
			"payment_id", p.ID, "user_id", p.UserID, "amount", p.Amount, "err", err)
		return e.fail(ctx, p, newBalance, domain.FailReasonSystem)
	}

	p.Status = domain.PaymentPaid
	if e.recorder != nil {
		if err := e.recorder.RecordDebit(ctx, p, newBalance); err != nil {
			e.log.Warn("debit history not recorded", "payment_id", p.ID, "err", err)
		}
	}
	e.notifier.PaymentPaid(p, newBalance)
	return outcomePaid
}

// fail finalizes a claimed payment as FAILED and notifies the user. If even
// the FAILED commit does not land the payment stays PENDING; that is logged
// loudly for manual reconciliation, there is no automatic repair.
func (e *Engine) fail(ctx context.Context, p *models.Payment, balance decimal.Decimal, reason string) outcome {
	if err := e.payments.Finalize(ctx, p.ID, domain.PaymentFailed); err != nil {
		e.log.Error("payment stuck PENDING, manual reconciliation required",
			"payment_id", p.ID, "user_id", p.UserID, "reason", reason, "err", err)
		return outcomeFailed
	}
	p.Status = domain.PaymentFailed
	e.notifier.PaymentFailed(p, balance, reason)
	return outcomeFailed
}
