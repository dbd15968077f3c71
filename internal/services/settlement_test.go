package services

import (
	"errors"
	"testing"

	"marketplace/internal/market"
	"marketplace/internal/money"
	"marketplace/internal/store"
	"marketplace/internal/transfer"
)

func TestEnsureBalancedByPayment(t *testing.T) {
	usd := market.Cis2Payment("<9,0>", "aa")
	entries := []store.LedgerEntryInput{
		{Payment: market.NativePayment(), Amount: money.NewAmount(82), Debit: true},
		{Payment: market.NativePayment(), Amount: money.NewAmount(80)},
		{Payment: market.NativePayment(), Amount: money.NewAmount(2)},
		{Payment: usd, Amount: money.NewAmount(5), Debit: true},
		{Payment: usd, Amount: money.NewAmount(5)},
	}
	if err := ensureBalancedByPayment(entries); err != nil {
		t.Fatalf("expected balanced entries, got error: %v", err)
	}
	entries = append(entries, store.LedgerEntryInput{Payment: usd, Amount: money.NewAmount(1)})
	if err := ensureBalancedByPayment(entries); !errors.Is(err, ErrUnbalancedLedger) {
		t.Fatalf("expected imbalance error, got %v", err)
	}
}

func TestSettlementError(t *testing.T) {
	cases := []struct {
		kind market.PaymentKind
		err  error
		want error
	}{
		{market.PaymentNative, &transfer.LegError{Index: 0}, market.ErrCCDPayment},
		{market.PaymentNative, &transfer.LegError{Index: 1}, market.ErrCCDCommissionPayment},
		{market.PaymentNative, errors.New("timeout"), market.ErrCCDPayment},
		{market.PaymentCis2, &transfer.LegError{Index: 0}, market.ErrCis2Payment},
		{market.PaymentCis2, &transfer.LegError{Index: 1}, market.ErrCis2CommissionPayment},
		{market.PaymentCis2, &transfer.LegError{Index: 7}, market.ErrCis2Settlement},
		{market.PaymentCis2, &transfer.RejectedError{Message: "paused"}, market.ErrCis2Settlement},
	}
	for _, tc := range cases {
		if got := settlementError(tc.kind, tc.err); got != tc.want {
			t.Fatalf("settlementError(%s, %v) = %v, want %v", tc.kind, tc.err, got, tc.want)
		}
	}
}

func TestOrderedOwners(t *testing.T) {
	left, right := orderedOwners("bob", "alice")
	if left != "alice" || right != "bob" {
		t.Fatalf("unexpected order: %s %s", left, right)
	}
}
