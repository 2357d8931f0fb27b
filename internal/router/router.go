package router

import (
	"time"

	"autopay/config"
	"autopay/internal/handler"
	"autopay/internal/middleware"
	"autopay/internal/repository"
	"autopay/internal/scheduler"
	"autopay/internal/service"
	"autopay/internal/ws"
	"autopay/pkg/ledger"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB, provider ledger.Provider, sched *scheduler.Scheduler, hub *ws.Hub, notifSvc *service.NotificationService, authSvc *service.AuthService) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit(middleware.NewRateLimiter(100, 60*time.Second)))

	userRepo := repository.NewUserRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	historySvc := service.NewHistoryService(txRepo)
	reportSvc := service.NewReportService(paymentRepo)

	authHandler := handler.NewAuthHandler(authSvc)
	meHandler := handler.NewMeHandler(userRepo, paymentRepo, provider)
	paymentHandler := handler.NewPaymentHandler(paymentRepo, reportSvc)
	fundsHandler := handler.NewFundsHandler(userRepo, provider, historySvc, notifSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	notificationHandler := handler.NewNotificationHandler(notificationRepo)
	settlementHandler := handler.NewSettlementHandler(sched)

	authMw := middleware.AuthRequired(&cfg.JWT)
	otpLimiter := middleware.NewRateLimiter(5, 10*time.Minute)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/signup", authHandler.Signup)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/send-otp", middleware.RateLimit(otpLimiter), authHandler.SendOTP)
			authGroup.POST("/verify-otp", authHandler.VerifyOTP)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/forgot-password", middleware.RateLimit(otpLimiter), authHandler.ForgotPassword)
			authGroup.POST("/reset-password", authHandler.ResetPassword)
		}

		bank := api.Group("/bank")
		bank.Use(authMw)
		{
			bank.POST("/send-otp", middleware.RateLimit(otpLimiter), authHandler.SendBankOTP)
			bank.POST("/verify-otp", authHandler.VerifyBankOTP)
		}

		api.GET("/me", authMw, meHandler.Profile)

		payments := api.Group("/payments")
		payments.Use(authMw)
		{
			payments.GET("", paymentHandler.List)
			payments.GET("/attention", paymentHandler.ListAttention)
			payments.POST("", paymentHandler.Schedule)
			payments.POST("/import", paymentHandler.Import)
			payments.PATCH("/:id", paymentHandler.Reschedule)
			payments.DELETE("/:id", paymentHandler.Cancel)
		}

		api.POST("/deposits", authMw, fundsHandler.Deposit)
		api.GET("/transactions", authMw, fundsHandler.Transactions)
		api.GET("/reports/payments.xlsx", authMw, reportHandler.ExportPayments)
		api.GET("/notifications", authMw, notificationHandler.List)
		api.PATCH("/notifications/:id/read", authMw, notificationHandler.MarkRead)

		api.POST("/admin/settlements/run", authMw, settlementHandler.Run)

		api.GET("/ws/events", ws.UpgradeEventsWS(&cfg.JWT, hub))
	}

	return r
}
