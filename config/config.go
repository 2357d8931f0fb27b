package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Ledger     LedgerConfig
	Mail       MailConfig
	Settlement SettlementConfig
	OTP        OTPConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	ResetExpiry   time.Duration
	Issuer        string
}

// LedgerConfig selects the balance source of truth: "wallet" keeps it as a
// column on the user row, "firestore" reads an external document store with
// one document per user keyed by email. Which one is authoritative is a
// deployment decision, not engine behavior.
type LedgerConfig struct {
	Backend            string
	ServiceAccountPath string
	ProjectID          string
	DefaultCollection  string // Firestore collection for users with no linked bank
}

type MailConfig struct {
	Host    string
	Port    int
	User    string
	Pass    string
	From    string
	Enabled bool
}

type SettlementConfig struct {
	Interval       time.Duration
	CurrencySymbol string
}

type OTPConfig struct {
	TTL    time.Duration
	Digits int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_DSN", "autopay:autopay@tcp(localhost:3306)/autopay?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
			ResetExpiry:   30 * time.Minute,
			Issuer:        "autopay",
		},
		Ledger: LedgerConfig{
			Backend:            getEnv("LEDGER_BACKEND", "wallet"),
			ServiceAccountPath: os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"),
			ProjectID:          os.Getenv("FIREBASE_PROJECT_ID"),
			DefaultCollection:  getEnv("LEDGER_DEFAULT_COLLECTION", "accounts"),
		},
		Mail: MailConfig{
			Host:    getEnv("SMTP_HOST", "localhost"),
			Port:    getEnvInt("SMTP_PORT", 587),
			User:    os.Getenv("SMTP_USER"),
			Pass:    os.Getenv("SMTP_PASS"),
			From:    getEnv("MAIL_FROM", "autopay@localhost"),
			Enabled: os.Getenv("SMTP_HOST") != "",
		},
		Settlement: SettlementConfig{
			Interval:       time.Duration(getEnvInt("SETTLEMENT_INTERVAL_SECONDS", 60)) * time.Second,
			CurrencySymbol: getEnv("CURRENCY_SYMBOL", "₹"),
		},
		OTP: OTPConfig{
			TTL:    5 * time.Minute,
			Digits: 6,
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
