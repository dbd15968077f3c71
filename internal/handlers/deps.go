package handlers

import (
	"context"

	"marketplace/internal/market"
	"marketplace/internal/services"
	"marketplace/internal/store"

	"github.com/shopspring/decimal"
)

type MarketService interface {
	Deposit(ctx context.Context, req services.DepositRequest) (services.DepositResult, error)
	Withdraw(ctx context.Context, req services.WithdrawRequest) (services.BalanceView, error)
	List(ctx context.Context, req services.ListRequest) (market.Listing, error)
	DeList(ctx context.Context, owner market.Owner, asset market.AssetID) error
	Exchange(ctx context.Context, req services.ExchangeRequest) (services.ExchangeResult, error)
	CalculateAmounts(ctx context.Context, req market.AmountsRequest) (market.Amounts, error)
	GetListed(ctx context.Context, owner market.Owner, asset market.AssetID) (market.Listing, error)
	BalanceOf(ctx context.Context, owner market.Owner, asset market.AssetID) (services.BalanceView, error)
	Balances(ctx context.Context, owner market.Owner) ([]store.OwnerBalance, error)
	PaymentBalance(ctx context.Context, owner market.Owner, payment market.PaymentMethod) (decimal.Decimal, error)
	AllowedToList(ctx context.Context) ([]market.ContractRef, error)
	PaymentTokens(ctx context.Context) ([]market.AssetID, error)
	AddPaymentToken(ctx context.Context, actor market.Owner, token market.AssetID) error
	AddSellTokenContract(ctx context.Context, actor market.Owner, contract market.ContractRef) error
	AuditLog(ctx context.Context, actor market.Owner, limit, offset int) ([]store.AuditEntry, error)
	Events(ctx context.Context, owner market.Owner, afterSeq int64, limit int) ([]market.Event, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, account market.Owner) (bool, error)
}
