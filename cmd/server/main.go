package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autopay/config"
	"autopay/internal/database"
	"autopay/internal/repository"
	"autopay/internal/router"
	"autopay/internal/scheduler"
	"autopay/internal/service"
	"autopay/internal/settlement"
	"autopay/internal/ws"
	"autopay/pkg/ledger"
	"autopay/pkg/logging"
	"autopay/pkg/mailer"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	logging.Setup()
	cfg := config.Load()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		slog.Error("database", "err", err)
		os.Exit(1)
	}
	if err := database.AutoMigrate(db); err != nil {
		slog.Error("migrate", "err", err)
		os.Exit(1)
	}
	if cfg.Server.Env == "development" {
		if err := database.SeedDemo(db); err != nil {
			slog.Warn("demo seed failed", "err", err)
		}
	}

	provider, err := ledger.New(&cfg.Ledger, db)
	if err != nil {
		slog.Error("ledger", "err", err)
		os.Exit(1)
	}
	if fp, ok := provider.(*ledger.FirestoreProvider); ok {
		userRepo := repository.NewUserRepository(db)
		fp.CollectionFor = func(email string) string {
			u, err := userRepo.GetByEmail(email)
			if err != nil || u.BankName == "" {
				return ""
			}
			return u.BankName
		}
		slog.Info("ledger backend: firestore", "default_collection", cfg.Ledger.DefaultCollection)
	} else {
		slog.Info("ledger backend: wallet column")
	}

	var mail mailer.Sender
	if cfg.Mail.Enabled {
		mail = mailer.NewSMTPSender(&cfg.Mail)
	} else {
		mail = mailer.StubSender{}
		slog.Warn("SMTP not configured, mail goes to the log")
	}

	hub := ws.NewHub()
	notificationRepo := repository.NewNotificationRepository(db)
	notifSvc := service.NewNotificationService(notificationRepo, mail, hub, cfg.Settlement.CurrencySymbol)

	paymentRepo := repository.NewPaymentRepository(db)
	historySvc := service.NewHistoryService(repository.NewTransactionRepository(db))
	engine := settlement.NewEngine(paymentRepo, provider, notifSvc, historySvc, slog.Default())
	sched := scheduler.New(engine, cfg.Settlement.Interval, slog.Default())

	otpSvc := service.NewOTPService(cfg.OTP.TTL, cfg.OTP.Digits)
	authSvc := service.NewAuthService(cfg, repository.NewUserRepository(db), otpSvc, mail)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	engineR := router.Setup(cfg, db, provider, sched, hub, notifSvc, authSvc)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engineR,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		slog.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "err", err)
	}
	slog.Info("server stopped")
}
