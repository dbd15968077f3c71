package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"marketplace/internal/market"
	"marketplace/internal/money"
)

func TestLedgerStoreInsertEntries(t *testing.T) {
	ctx := context.Background()
	var amounts []any
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO payment_ledger_entries") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[3] != "native" {
				t.Fatalf("unexpected payment key: %#v", args[3])
			}
			amounts = append(amounts, args[4])
			return stubResult{rows: 1}, nil
		},
	}
	store := NewLedgerStore(stubDB{})
	entries := []LedgerEntryInput{
		{ID: "1", ExchangeID: "ex", Owner: "bob", Payment: market.NativePayment(), Amount: money.NewAmount(102), Debit: true},
		{ID: "2", ExchangeID: "ex", Owner: "alice", Payment: market.NativePayment(), Amount: money.NewAmount(100)},
		{ID: "3", ExchangeID: "ex", Owner: "fees", Payment: market.NativePayment(), Amount: money.NewAmount(2)},
	}
	if err := store.InsertEntries(ctx, execer, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(amounts) != 3 || amounts[0] != "-102" || amounts[1] != "100" || amounts[2] != "2" {
		t.Fatalf("unexpected amounts: %#v", amounts)
	}
}

func TestLedgerStoreZeroDebitIsUnsigned(t *testing.T) {
	entry := LedgerEntryInput{Amount: money.Zero(), Debit: true}
	if entry.signed() != "0" {
		t.Fatalf("unexpected signed amount: %s", entry.signed())
	}
}

func TestLedgerStoreSumByOwner(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM payment_ledger_entries") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || args[0] != "bob" || args[1] != "cis2:<9,0>:aa" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*decimal.Decimal) = decimal.NewFromInt(-102)
			return nil
		},
	})
	sum, err := store.SumByOwner(ctx, "bob", market.Cis2Payment("<9,0>", "aa"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sum.Equal(decimal.NewFromInt(-102)) {
		t.Fatalf("unexpected sum: %s", sum)
	}
}
