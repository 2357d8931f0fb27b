package ledger

import (
	"context"
	"fmt"

	"autopay/config"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// FirestoreProvider reads the external bank ledger: one document per user in
// a per-bank collection, located by the email_id field. Balances are written
// as fixed-point strings so nothing on the wire is binary floating-point.
type FirestoreProvider struct {
	client            *firestore.Client
	defaultCollection string
	// CollectionFor maps an email to its bank collection. Left nil, every
	// lookup uses the default collection.
	CollectionFor func(email string) string
}

func NewFirestoreProvider(ctx context.Context, cfg *config.LedgerConfig) (*FirestoreProvider, error) {
	var opts []option.ClientOption
	if cfg.ServiceAccountPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.ServiceAccountPath))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("ledger: init firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: init firestore client: %w", err)
	}
	return &FirestoreProvider{client: client, defaultCollection: cfg.DefaultCollection}, nil
}

func (p *FirestoreProvider) Balance(ctx context.Context, email string) (decimal.Decimal, error) {
	doc, err := p.lookup(ctx, email)
	if err != nil {
		return decimal.Zero, err
	}
	return parseBalance(doc.Data()["balance"])
}

// SetBalanceIf runs the read-compare-write inside a Firestore transaction so
// a concurrent write to the same document loses cleanly instead of silently.
func (p *FirestoreProvider) SetBalanceIf(ctx context.Context, email string, old, balance decimal.Decimal) error {
	col := p.collection(email)
	return p.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		iter := tx.Documents(p.client.Collection(col).Where("email_id", "==", email).Limit(1))
		defer iter.Stop()
		doc, err := iter.Next()
		if err == iterator.Done {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		stored, err := parseBalance(doc.Data()["balance"])
		if err != nil {
			return err
		}
		if !stored.Equal(old) {
			return ErrConflict
		}
		return tx.Update(doc.Ref, []firestore.Update{
			{Path: "balance", Value: balance.StringFixed(2)},
		})
	})
}

func (p *FirestoreProvider) Close() error {
	return p.client.Close()
}

func (p *FirestoreProvider) collection(email string) string {
	if p.CollectionFor != nil {
		if c := p.CollectionFor(email); c != "" {
			return c
		}
	}
	return p.defaultCollection
}

func (p *FirestoreProvider) lookup(ctx context.Context, email string) (*firestore.DocumentSnapshot, error) {
	iter := p.client.Collection(p.collection(email)).Where("email_id", "==", email).Limit(1).Documents(ctx)
	defer iter.Stop()
	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// parseBalance accepts the historic field encodings: fixed-point string
// (current) and raw numbers (legacy documents written by the web client).
func parseBalance(v interface{}) (decimal.Decimal, error) {
	switch b := v.(type) {
	case nil:
		return decimal.Zero, nil
	case string:
		return decimal.NewFromString(b)
	case float64:
		return decimal.NewFromFloat(b), nil
	case int64:
		return decimal.NewFromInt(b), nil
	default:
		return decimal.Zero, fmt.Errorf("ledger: unreadable balance field %T", v)
	}
}
