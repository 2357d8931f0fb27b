package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"autopay/internal/middleware"
	"autopay/internal/repository"
	"autopay/pkg/ledger"

	"github.com/gin-gonic/gin"
)

type MeHandler struct {
	userRepo    *repository.UserRepository
	paymentRepo *repository.PaymentRepository
	provider    ledger.Provider
}

func NewMeHandler(userRepo *repository.UserRepository, paymentRepo *repository.PaymentRepository, provider ledger.Provider) *MeHandler {
	return &MeHandler{userRepo: userRepo, paymentRepo: paymentRepo, provider: provider}
}

// Profile returns the user's identity, ledger balance and failed-payment
// count for the dashboard. A missing ledger record reads as zero here; the
// settlement engine reports it per payment.
func (h *MeHandler) Profile(c *gin.Context) {
	userID := middleware.GetUserID(c)
	u, err := h.userRepo.GetByID(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	balance, err := h.provider.Balance(c.Request.Context(), u.Email)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		slog.Warn("balance lookup failed", "user_id", userID, "err", err)
	}
	failedCount, err := h.paymentRepo.CountFailedByUser(userID)
	if err != nil {
		slog.Warn("failed-payment count unavailable", "user_id", userID, "err", err)
	}
	c.JSON(http.StatusOK, gin.H{
		"id":                    u.ID,
		"name":                  u.Name,
		"email":                 u.Email,
		"phone":                 u.Phone,
		"bank_name":             u.BankName,
		"email_verified":        u.EmailVerified,
		"balance":               balance.StringFixed(2),
		"failed_payments_count": failedCount,
	})
}
