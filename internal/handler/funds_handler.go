package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"autopay/internal/middleware"
	"autopay/internal/repository"
	"autopay/internal/service"
	"autopay/pkg/ledger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type FundsHandler struct {
	userRepo *repository.UserRepository
	provider ledger.Provider
	history  *service.HistoryService
	notifSvc *service.NotificationService
}

func NewFundsHandler(userRepo *repository.UserRepository, provider ledger.Provider, history *service.HistoryService, notifSvc *service.NotificationService) *FundsHandler {
	return &FundsHandler{userRepo: userRepo, provider: provider, history: history, notifSvc: notifSvc}
}

type DepositRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// Deposit credits the ledger and records a transaction row.
func (h *FundsHandler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a positive number"})
		return
	}
	userID := middleware.GetUserID(c)
	u, err := h.userRepo.GetByID(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	ctx := c.Request.Context()
	var newBalance decimal.Decimal
	for attempt := 0; ; attempt++ {
		balance, err := h.provider.Balance(ctx, u.Email)
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			slog.Error("deposit: balance lookup failed", "user_id", userID, "err", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "ledger unavailable"})
			return
		}
		newBalance = balance.Add(amount)
		err = h.provider.SetBalanceIf(ctx, u.Email, balance, newBalance)
		if err == nil {
			break
		}
		if errors.Is(err, ledger.ErrConflict) && attempt < 3 {
			continue // lost a race with a settlement debit; re-read
		}
		slog.Error("deposit: credit failed", "user_id", userID, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "deposit failed"})
		return
	}
	tx, err := h.history.RecordDeposit(userID, amount)
	if err != nil {
		slog.Warn("deposit history not recorded", "user_id", userID, "err", err)
	}
	h.notifSvc.DepositConfirmed(u, amount, newBalance)
	resp := gin.H{"message": "deposit credited", "balance": newBalance.StringFixed(2)}
	if tx != nil {
		resp["reference"] = tx.Reference
	}
	c.JSON(http.StatusOK, resp)
}

// Transactions lists the user's recent ledger history.
func (h *FundsHandler) Transactions(c *gin.Context) {
	txs, err := h.history.ListByUser(middleware.GetUserID(c), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load transactions"})
		return
	}
	out := make([]gin.H, 0, len(txs))
	for _, t := range txs {
		out = append(out, gin.H{
			"id":         t.ID,
			"amount":     t.Amount.StringFixed(2),
			"type":       t.Type,
			"reference":  t.Reference,
			"created_at": t.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	c.JSON(http.StatusOK, out)
}
