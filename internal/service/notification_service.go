package service

import (
	"fmt"
	"log/slog"

	"autopay/internal/domain"
	"autopay/internal/models"
	"autopay/internal/repository"
	"autopay/internal/ws"
	"autopay/pkg/mailer"

	"github.com/shopspring/decimal"
)

// NotificationService fans a settlement outcome out to three best-effort
// channels: a persisted notification row, an email, and the live dashboard
// feed. It implements the settlement engine's Notifier; nothing here ever
// propagates an error back into the settlement pass.
type NotificationService struct {
	repo     *repository.NotificationRepository
	mail     mailer.Sender
	hub      *ws.Hub
	currency string
}

func NewNotificationService(repo *repository.NotificationRepository, mail mailer.Sender, hub *ws.Hub, currency string) *NotificationService {
	return &NotificationService{repo: repo, mail: mail, hub: hub, currency: currency}
}

func (s *NotificationService) Notify(userID uint, notifType, title, body, email string) {
	if err := s.repo.Create(&models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
	}); err != nil {
		slog.Warn("notification row not saved", "user_id", userID, "type", notifType, "err", err)
	}
	if email != "" {
		go func() {
			if err := s.mail.Send(email, title, body); err != nil {
				slog.Warn("notification email not sent", "to", email, "type", notifType, "err", err)
			}
		}()
	}
}

func (s *NotificationService) PaymentPaid(p *models.Payment, newBalance decimal.Decimal) {
	subject := fmt.Sprintf("AutoPay: payment successful for %s", p.Payee)
	body := fmt.Sprintf(
		"Dear %s,\n\nYour payment of %s%s for %s (due %s) was successful.\n\nYour new balance is %s%s.\n\nThank you for using AutoPay.",
		p.User.Name, s.currency, p.Amount.StringFixed(2), p.Payee, p.DueDate.Format("2006-01-02"),
		s.currency, newBalance.StringFixed(2))
	s.Notify(p.UserID, domain.NotifPaymentPaid, subject, body, p.User.Email)
	if s.hub != nil {
		s.hub.NotifyUser(p.UserID, ws.Event{Type: "payment_paid", Payload: map[string]interface{}{
			"payment_id": p.ID,
			"payee":      p.Payee,
			"amount":     p.Amount.StringFixed(2),
			"balance":    newBalance.StringFixed(2),
		}})
	}
}

func (s *NotificationService) PaymentFailed(p *models.Payment, balance decimal.Decimal, reason string) {
	subject := fmt.Sprintf("AutoPay: payment failed for %s", p.Payee)
	body := fmt.Sprintf(
		"Dear %s,\n\nYour payment of %s%s for %s (due %s) failed: %s.\n\nYour current balance is %s%s.\nPlease top up your account or reschedule the payment.\n\nThank you.",
		p.User.Name, s.currency, p.Amount.StringFixed(2), p.Payee, p.DueDate.Format("2006-01-02"),
		reason, s.currency, balance.StringFixed(2))
	s.Notify(p.UserID, domain.NotifPaymentFailed, subject, body, p.User.Email)
	if s.hub != nil {
		s.hub.NotifyUser(p.UserID, ws.Event{Type: "payment_failed", Payload: map[string]interface{}{
			"payment_id": p.ID,
			"payee":      p.Payee,
			"amount":     p.Amount.StringFixed(2),
			"reason":     reason,
		}})
	}
}

func (s *NotificationService) DepositConfirmed(u *models.User, amount, newBalance decimal.Decimal) {
	subject := "AutoPay: deposit confirmed"
	body := fmt.Sprintf(
		"Dear %s,\n\nYour deposit of %s%s was credited. Your new balance is %s%s.\n\nThank you for using AutoPay.",
		u.Name, s.currency, amount.StringFixed(2), s.currency, newBalance.StringFixed(2))
	s.Notify(u.ID, domain.NotifDeposit, subject, body, u.Email)
	if s.hub != nil {
		s.hub.NotifyUser(u.ID, ws.Event{Type: "balance", Payload: map[string]interface{}{
			"balance": newBalance.StringFixed(2),
		}})
	}
}
