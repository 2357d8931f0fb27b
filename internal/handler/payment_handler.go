package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"autopay/internal/domain"
	"autopay/internal/middleware"
	"autopay/internal/models"
	"autopay/internal/repository"
	"autopay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type PaymentHandler struct {
	paymentRepo *repository.PaymentRepository
	reports     *service.ReportService
}

func NewPaymentHandler(paymentRepo *repository.PaymentRepository, reports *service.ReportService) *PaymentHandler {
	return &PaymentHandler{paymentRepo: paymentRepo, reports: reports}
}

type SchedulePaymentRequest struct {
	Payee   string `json:"payee" binding:"required,min=1,max=100"`
	Amount  string `json:"amount" binding:"required"`
	DueDate string `json:"due_date" binding:"required"` // YYYY-MM-DD
	Method  string `json:"method"`
}

type ReschedulePaymentRequest struct {
	Payee   string `json:"payee" binding:"required,min=1,max=100"`
	Amount  string `json:"amount" binding:"required"`
	DueDate string `json:"due_date" binding:"required"`
	Method  string `json:"method"`
}

func (h *PaymentHandler) Schedule(c *gin.Context) {
	var req SchedulePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, dueDate, ok := parseAmountAndDate(c, req.Amount, req.DueDate)
	if !ok {
		return
	}
	method := req.Method
	if method == "" {
		method = domain.PaymentMethodOther
	}
	p := &models.Payment{
		UserID:  middleware.GetUserID(c),
		Payee:   req.Payee,
		Amount:  amount,
		DueDate: dueDate,
		Method:  method,
		Status:  domain.PaymentScheduled,
	}
	if err := h.paymentRepo.Create(p); err != nil {
		slog.Error("schedule payment failed", "user_id", p.UserID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not schedule payment"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "payment scheduled", "payment_id": p.ID})
}

// List returns the user's payments with FAILED hidden (the dashboard view).
func (h *PaymentHandler) List(c *gin.Context) {
	payments, err := h.paymentRepo.ListByUser(middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load payments"})
		return
	}
	c.JSON(http.StatusOK, paymentViews(payments))
}

// ListAttention returns FAILED and stuck-PENDING payments.
func (h *PaymentHandler) ListAttention(c *gin.Context) {
	payments, err := h.paymentRepo.ListNeedingAttention(middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load payments"})
		return
	}
	c.JSON(http.StatusOK, paymentViews(payments))
}

func (h *PaymentHandler) Reschedule(c *gin.Context) {
	id, ok := paymentID(c)
	if !ok {
		return
	}
	var req ReschedulePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, dueDate, ok := parseAmountAndDate(c, req.Amount, req.DueDate)
	if !ok {
		return
	}
	method := req.Method
	if method == "" {
		method = domain.PaymentMethodOther
	}
	err := h.paymentRepo.Reschedule(id, middleware.GetUserID(c), &models.Payment{
		Payee:   req.Payee,
		Amount:  amount,
		DueDate: dueDate,
		Method:  method,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "payment can no longer be rescheduled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not reschedule payment"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "payment rescheduled"})
}

func (h *PaymentHandler) Cancel(c *gin.Context) {
	id, ok := paymentID(c)
	if !ok {
		return
	}
	if err := h.paymentRepo.Cancel(id, middleware.GetUserID(c)); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "payment can no longer be cancelled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not cancel payment"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "payment cancelled"})
}

// Import accepts an xlsx upload with one scheduled payment per row.
func (h *PaymentHandler) Import(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload required (field: file)"})
		return
	}
	defer file.Close()
	created, rowErrs, err := h.reports.Import(middleware.GetUserID(c), file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read workbook"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created, "errors": rowErrs})
}

func paymentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return 0, false
	}
	return uint(id), true
}

func parseAmountAndDate(c *gin.Context, amountStr, dateStr string) (decimal.Decimal, time.Time, bool) {
	amount, err := decimal.NewFromString(amountStr)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a positive number"})
		return decimal.Zero, time.Time{}, false
	}
	dueDate, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_date format (use YYYY-MM-DD)"})
		return decimal.Zero, time.Time{}, false
	}
	return amount, dueDate, true
}

func paymentViews(payments []models.Payment) []gin.H {
	out := make([]gin.H, 0, len(payments))
	for _, p := range payments {
		out = append(out, gin.H{
			"id":         p.ID,
			"payee":      p.Payee,
			"amount":     p.Amount.StringFixed(2),
			"due_date":   p.DueDate.Format("2006-01-02"),
			"method":     p.Method,
			"status":     p.Status,
			"created_at": p.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return out
}
