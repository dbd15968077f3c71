package store

import (
	"context"

	"github.com/shopspring/decimal"

	"marketplace/internal/market"
	"marketplace/internal/money"
)

// LedgerStore records the payment side of every exchange as double entry rows.
// Amounts are stored signed; debits are negative.
type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) InsertEntries(ctx context.Context, tx Execer, entries []LedgerEntryInput) error {
	query := `
		INSERT INTO payment_ledger_entries (id, exchange_id, owner, payment_key, amount, description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query, entry.ID, entry.ExchangeID, string(entry.Owner), entry.Payment.Key(), entry.signed(), entry.Description); err != nil {
			return err
		}
	}
	return nil
}

// SumByOwner is the net amount owner paid or received in one payment method.
func (s *LedgerStore) SumByOwner(ctx context.Context, owner market.Owner, payment market.PaymentMethod) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payment_ledger_entries
		WHERE owner = $1 AND payment_key = $2
	`, string(owner), payment.Key())
	return sum, err
}

type LedgerEntryInput struct {
	ID          string
	ExchangeID  string
	Owner       market.Owner
	Payment     market.PaymentMethod
	Amount      money.Amount
	Debit       bool
	Description string
}

func (e LedgerEntryInput) signed() string {
	if e.Debit && !e.Amount.IsZero() {
		return "-" + e.Amount.String()
	}
	return e.Amount.String()
}
