package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"autopay/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestWalletProviderRoundTrip(t *testing.T) {
	db := testDB(t)
	p := NewWalletProvider(db)
	ctx := context.Background()

	balance, err := decimal.NewFromString("500.00")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&models.User{Name: "Asha", Email: "asha@example.com", Balance: balance}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := p.Balance(ctx, "asha@example.com")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !got.Equal(balance) {
		t.Fatalf("expected 500.00, got %s", got)
	}

	newBalance := balance.Sub(decimal.RequireFromString("123.45"))
	if err := p.SetBalanceIf(ctx, "asha@example.com", balance, newBalance); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	got, err = p.Balance(ctx, "asha@example.com")
	if err != nil {
		t.Fatalf("balance after debit: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("376.55")) {
		t.Fatalf("expected 376.55 exactly, got %s", got)
	}
}

func TestWalletProviderConditionalWrite(t *testing.T) {
	db := testDB(t)
	p := NewWalletProvider(db)
	ctx := context.Background()

	if err := db.Create(&models.User{
		Name: "Asha", Email: "asha@example.com",
		Balance: decimal.RequireFromString("500.00"),
	}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	// A write against a stale old value loses and changes nothing.
	stale := decimal.RequireFromString("300.00")
	err := p.SetBalanceIf(ctx, "asha@example.com", stale, decimal.RequireFromString("100.00"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on stale old value, got %v", err)
	}
	got, err := p.Balance(ctx, "asha@example.com")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("500.00")) {
		t.Fatalf("a lost write must not change the balance, got %s", got)
	}

	// The same write with the current value wins.
	err = p.SetBalanceIf(ctx, "asha@example.com", got, decimal.RequireFromString("100.00"))
	if err != nil {
		t.Fatalf("conditional write with current value: %v", err)
	}
	got, _ = p.Balance(ctx, "asha@example.com")
	if !got.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected 100.00, got %s", got)
	}
}

func TestWalletProviderNotFound(t *testing.T) {
	db := testDB(t)
	p := NewWalletProvider(db)
	ctx := context.Background()

	if _, err := p.Balance(ctx, "ghost@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := p.SetBalanceIf(ctx, "ghost@example.com", decimal.Zero, decimal.Zero); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on write, got %v", err)
	}
}
