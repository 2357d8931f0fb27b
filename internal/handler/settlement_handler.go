package handler

import (
	"log/slog"
	"net/http"

	"autopay/internal/scheduler"

	"github.com/gin-gonic/gin"
)

type SettlementHandler struct {
	sched *scheduler.Scheduler
}

func NewSettlementHandler(sched *scheduler.Scheduler) *SettlementHandler {
	return &SettlementHandler{sched: sched}
}

// Run triggers a settlement pass on demand and returns its counts. Shares
// the coalescing guard with the timer: if a pass is already in flight the
// request is rejected rather than queued.
func (h *SettlementHandler) Run(c *gin.Context) {
	sum, ran, err := h.sched.TryRun(c.Request.Context())
	if err != nil {
		slog.Error("on-demand settlement pass failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settlement pass failed"})
		return
	}
	if !ran {
		c.JSON(http.StatusConflict, gin.H{"error": "a settlement pass is already running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "payments processed",
		"processed": sum.Processed,
		"failed":    sum.Failed,
	})
}
