// Package ledger abstracts the spendable-balance store. A Provider holds the
// authoritative balance for a user, addressed by email. Two implementations
// exist: the wallet column on the user row, and an external Firestore
// document store. Which one a deployment uses is configuration.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"autopay/config"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrNotFound means the ledger has no record for the given email. The
// settlement engine treats it the same as insufficient balance.
var ErrNotFound = errors.New("ledger: no account for address")

// ErrConflict means a conditional write observed a stored balance different
// from the one the caller read. The caller re-reads and retries.
var ErrConflict = errors.New("ledger: balance changed concurrently")

type Provider interface {
	Balance(ctx context.Context, email string) (decimal.Decimal, error)
	// SetBalanceIf writes balance only while the stored value still equals
	// old, so a concurrent credit or debit cannot be silently overwritten.
	SetBalanceIf(ctx context.Context, email string, old, balance decimal.Decimal) error
}

// New selects the Provider implementation from config.
func New(cfg *config.LedgerConfig, db *gorm.DB) (Provider, error) {
	switch cfg.Backend {
	case "", "wallet":
		return NewWalletProvider(db), nil
	case "firestore":
		return NewFirestoreProvider(context.Background(), cfg)
	default:
		return nil, fmt.Errorf("ledger: unknown backend %q", cfg.Backend)
	}
}
