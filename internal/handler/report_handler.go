package handler

import (
	"log/slog"
	"net/http"

	"autopay/internal/middleware"
	"autopay/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	reports *service.ReportService
}

func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// ExportPayments streams the user's payment report as an xlsx download.
func (h *ReportHandler) ExportPayments(c *gin.Context) {
	buf, err := h.reports.Export(middleware.GetUserID(c))
	if err != nil {
		slog.Error("report export failed", "user_id", middleware.GetUserID(c), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not build report"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="payment_report.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
