package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"marketplace/internal/db"
	"marketplace/internal/logger"
	"marketplace/internal/market"
	"marketplace/internal/money"
	"marketplace/internal/store"
	"marketplace/internal/transfer"
)

const (
	defaultEventPage = 100
	maxEventPage     = 500
)

var (
	ErrUnbalancedLedger = errors.New("payment ledger entries are not balanced")
	// ErrUnrecordedSettlement means the payment transfer went out but the transaction that
	// records it did not commit. The exchange needs manual reconciliation.
	ErrUnrecordedSettlement = errors.New("exchange settled but not recorded")
)

type MarketService struct {
	txRunner  db.TxRunner
	balances  BalanceStore
	listings  ListingStore
	registry  RegistryStore
	ledger    LedgerStore
	events    EventStore
	admins    AdminStore
	audit     AuditStore
	transfers Transferer
	hub       EventHub
	settings  MarketSettings
	log       *logger.Logger
}

// MarketSettings are fixed for the life of the process.
type MarketSettings struct {
	// Escrow is the marketplace contract; withdrawals are sent from it.
	Escrow            market.ContractRef
	Commission        market.Rate
	CommissionAccount market.Owner
}

type BalanceStore interface {
	Get(ctx context.Context, q store.Getter, owner market.Owner, asset market.AssetID) (market.Balance, error)
	GetForUpdate(ctx context.Context, tx store.Getter, owner market.Owner, asset market.AssetID) (market.Balance, error)
	Ensure(ctx context.Context, tx store.Execer, owner market.Owner, asset market.AssetID) error
	Update(ctx context.Context, tx store.Execer, owner market.Owner, asset market.AssetID, balance market.Balance) error
	ListByOwner(ctx context.Context, owner market.Owner) ([]store.OwnerBalance, error)
}

type ListingStore interface {
	Get(ctx context.Context, q store.Queryer, owner market.Owner, asset market.AssetID) (market.Listing, error)
	GetForUpdate(ctx context.Context, tx store.Queryer, owner market.Owner, asset market.AssetID) (market.Listing, error)
	Put(ctx context.Context, tx store.Execer, listing market.Listing) error
	UpdateSupply(ctx context.Context, tx store.Execer, owner market.Owner, asset market.AssetID, supply money.Amount) error
	Delete(ctx context.Context, tx store.Execer, owner market.Owner, asset market.AssetID) (bool, error)
}

type RegistryStore interface {
	AddSellContract(ctx context.Context, tx store.Execer, contract market.ContractRef, createdBy market.Owner) error
	IsSellContract(ctx context.Context, q store.Getter, contract market.ContractRef) (bool, error)
	SellContracts(ctx context.Context) ([]market.ContractRef, error)
	AddPaymentToken(ctx context.Context, tx store.Execer, token market.AssetID, createdBy market.Owner) error
	PaymentTokens(ctx context.Context) ([]market.AssetID, error)
}

type LedgerStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error
	SumByOwner(ctx context.Context, owner market.Owner, payment market.PaymentMethod) (decimal.Decimal, error)
}

type EventStore interface {
	Append(ctx context.Context, tx store.Getter, event *market.Event) error
	List(ctx context.Context, owner market.Owner, afterSeq int64, limit int) ([]market.Event, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, account market.Owner) (bool, error)
	Grant(ctx context.Context, tx store.Execer, account market.Owner) error
	HasAnyAdmin(ctx context.Context) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, id string, actor market.Owner, action, subject string) error
	List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

type Transferer interface {
	TransferNative(ctx context.Context, reference string, legs []transfer.Leg) error
	TransferCis2(ctx context.Context, reference string, contract market.ContractRef, legs []transfer.Leg) error
}

type EventHub interface {
	BroadcastEvent(owner market.Owner, event market.Event)
}

func NewMarketService(txRunner db.TxRunner, balances BalanceStore, listings ListingStore, registry RegistryStore, ledger LedgerStore, events EventStore, admins AdminStore, audit AuditStore, transfers Transferer, hub EventHub, settings MarketSettings, log *logger.Logger) *MarketService {
	return &MarketService{
		txRunner:  txRunner,
		balances:  balances,
		listings:  listings,
		registry:  registry,
		ledger:    ledger,
		events:    events,
		admins:    admins,
		audit:     audit,
		transfers: transfers,
		hub:       hub,
		settings:  settings,
		log:       log,
	}
}

// Bootstrap grants the configured admins and seeds the sell-token allow-list.
func (s *MarketService) Bootstrap(ctx context.Context, admins []market.Owner, contracts []market.ContractRef) error {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, admin := range admins {
			if err := s.admins.Grant(ctx, tx, admin); err != nil {
				return err
			}
		}
		for _, contract := range contracts {
			if err := s.registry.AddSellContract(ctx, tx, contract, "config"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	hasAdmin, err := s.admins.HasAnyAdmin(ctx)
	if err != nil {
		return err
	}
	if !hasAdmin {
		s.log.Warnf("no marketplace admins configured; payment tokens and sell contracts cannot be changed")
	}
	return nil
}

type DepositRequest struct {
	Contract market.ContractRef
	TokenID  string
	Amount   money.Amount
	From     market.Owner
	Data     json.RawMessage
}

type DepositResult struct {
	Balance BalanceView     `json:"balance"`
	Listing *market.Listing `json:"listing,omitempty"`
}

type depositData struct {
	List *struct {
		Supply *money.Amount              `json:"supply"`
		Rates  []market.ExchangeRateEntry `json:"rates"`
	} `json:"list"`
}

func parseDepositData(raw json.RawMessage) (depositData, error) {
	var data depositData
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return data, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&data); err != nil {
		return depositData{}, market.ErrInvalidDepositData
	}
	if decoder.More() {
		return depositData{}, market.ErrInvalidDepositData
	}
	return data, nil
}

// Deposit credits tokens the escrow has just received from a token contract. Data may
// carry a list request, which is applied in the same transaction.
func (s *MarketService) Deposit(ctx context.Context, req DepositRequest) (DepositResult, error) {
	if req.Amount.IsZero() {
		return DepositResult{}, market.ErrPaymentNotRequired
	}
	data, err := parseDepositData(req.Data)
	if err != nil {
		return DepositResult{}, err
	}
	if data.List != nil && !req.From.IsAccount() {
		return DepositResult{}, market.ErrOnlyAccount
	}
	asset := market.AssetID{Contract: req.Contract, TokenID: req.TokenID}

	var result DepositResult
	var emitted []market.Event
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		emitted = emitted[:0]
		allowed, err := s.registry.IsSellContract(ctx, tx, req.Contract)
		if err != nil {
			return err
		}
		if !allowed {
			return market.ErrInvalidListToken
		}
		if err := s.balances.Ensure(ctx, tx, req.From, asset); err != nil {
			return err
		}
		balance, err := s.balances.GetForUpdate(ctx, tx, req.From, asset)
		if err != nil {
			return err
		}
		balance.Deposited, err = balance.Deposited.Add(req.Amount)
		if err != nil {
			return err
		}
		if err := s.balances.Update(ctx, tx, req.From, asset, balance); err != nil {
			return err
		}
		event, err := s.appendEvent(ctx, tx, market.EventDeposited, req.From, market.Deposited{Asset: asset, Owner: req.From, Amount: req.Amount})
		if err != nil {
			return err
		}
		emitted = append(emitted, event)

		result = DepositResult{}
		if data.List != nil {
			supply := balance.Deposited
			if data.List.Supply != nil {
				supply = *data.List.Supply
			}
			listing, updated, event, err := s.applyList(ctx, tx, req.From, asset, balance, supply, data.List.Rates)
			if err != nil {
				return err
			}
			balance = updated
			result.Listing = &listing
			emitted = append(emitted, event)
		}
		result.Balance, err = viewOf(balance)
		return err
	})
	if err != nil {
		return DepositResult{}, err
	}
	s.publish(emitted)
	s.log.WithFields(map[string]any{"owner": req.From, "asset": asset.String(), "amount": req.Amount.String()}).Infof("deposit credited")
	return result, nil
}

type WithdrawRequest struct {
	Owner  market.Owner
	Asset  market.AssetID
	Amount money.Amount
}

// Withdraw returns unlisted tokens from escrow to their owner.
func (s *MarketService) Withdraw(ctx context.Context, req WithdrawRequest) (BalanceView, error) {
	if !req.Owner.IsAccount() {
		return BalanceView{}, market.ErrOnlyAccount
	}
	if req.Amount.IsZero() {
		return BalanceView{}, market.ErrInvalidSupply
	}
	reference := uuid.NewString()

	var view BalanceView
	var emitted []market.Event
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		emitted = emitted[:0]
		balance, err := s.balances.GetForUpdate(ctx, tx, req.Owner, req.Asset)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return market.ErrNotDeposited
			}
			return err
		}
		unlisted, err := balance.Unlisted()
		if err != nil {
			return err
		}
		if req.Amount.GreaterThan(unlisted) {
			return market.ErrInsufficientDeposits
		}
		balance.Deposited, err = balance.Deposited.Sub(req.Amount)
		if err != nil {
			return err
		}
		if err := s.balances.Update(ctx, tx, req.Owner, req.Asset, balance); err != nil {
			return err
		}
		event, err := s.appendEvent(ctx, tx, market.EventWithdraw, req.Owner, market.Withdrawn{Asset: req.Asset, Owner: req.Owner, Amount: req.Amount})
		if err != nil {
			return err
		}
		emitted = append(emitted, event)

		leg := transfer.Leg{
			From:    market.ContractOwner(s.settings.Escrow),
			To:      req.Owner,
			Amount:  req.Amount,
			TokenID: req.Asset.TokenID,
		}
		if err := s.transfers.TransferCis2(ctx, reference, req.Asset.Contract, []transfer.Leg{leg}); err != nil {
			s.log.WithFields(map[string]any{"owner": req.Owner, "asset": req.Asset.String(), "reference": reference}).Errorf("withdraw transfer failed: %v", err)
			return market.ErrCis2Withdraw
		}
		view, err = viewOf(balance)
		return err
	})
	if err != nil {
		return BalanceView{}, err
	}
	s.publish(emitted)
	s.log.WithFields(map[string]any{"owner": req.Owner, "asset": req.Asset.String(), "amount": req.Amount.String()}).Infof("withdrawal sent")
	return view, nil
}

type ListRequest struct {
	Owner  market.Owner
	Asset  market.AssetID
	Supply money.Amount
	Rates  []market.ExchangeRateEntry
}

// List offers supply units of a deposited asset for sale, replacing any earlier listing.
func (s *MarketService) List(ctx context.Context, req ListRequest) (market.Listing, error) {
	if !req.Owner.IsAccount() {
		return market.Listing{}, market.ErrOnlyAccount
	}
	var listing market.Listing
	var emitted []market.Event
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		emitted = emitted[:0]
		allowed, err := s.registry.IsSellContract(ctx, tx, req.Asset.Contract)
		if err != nil {
			return err
		}
		if !allowed {
			return market.ErrInvalidListToken
		}
		rates, err := market.NormalizeRates(req.Asset, req.Rates)
		if err != nil {
			return err
		}
		if req.Supply.IsZero() {
			return market.ErrInvalidSupply
		}
		balance, err := s.balances.GetForUpdate(ctx, tx, req.Owner, req.Asset)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return market.ErrNotDeposited
			}
			return err
		}
		var event market.Event
		listing, _, event, err = s.applyList(ctx, tx, req.Owner, req.Asset, balance, req.Supply, rates)
		if err != nil {
			return err
		}
		emitted = append(emitted, event)
		return nil
	})
	if err != nil {
		return market.Listing{}, err
	}
	s.publish(emitted)
	s.log.WithFields(map[string]any{"owner": req.Owner, "asset": req.Asset.String(), "supply": listing.Supply.String()}).Infof("asset listed")
	return listing, nil
}

// applyList writes a listing against a balance row the caller already holds locked.
func (s *MarketService) applyList(ctx context.Context, tx store.Tx, owner market.Owner, asset market.AssetID, balance market.Balance, supply money.Amount, entries []market.ExchangeRateEntry) (market.Listing, market.Balance, market.Event, error) {
	rates, err := market.NormalizeRates(asset, entries)
	if err != nil {
		return market.Listing{}, market.Balance{}, market.Event{}, err
	}
	if supply.IsZero() || supply.GreaterThan(balance.Deposited) {
		return market.Listing{}, market.Balance{}, market.Event{}, market.ErrInvalidSupply
	}
	listing := market.Listing{Owner: owner, Asset: asset, Supply: supply, Rates: rates}
	balance.Listed = supply
	if err := s.balances.Update(ctx, tx, owner, asset, balance); err != nil {
		return market.Listing{}, market.Balance{}, market.Event{}, err
	}
	if err := s.listings.Put(ctx, tx, listing); err != nil {
		return market.Listing{}, market.Balance{}, market.Event{}, err
	}
	event, err := s.appendEvent(ctx, tx, market.EventListed, owner, market.Listed{Asset: asset, Owner: owner, Supply: supply, Rates: rates})
	if err != nil {
		return market.Listing{}, market.Balance{}, market.Event{}, err
	}
	return listing, balance, event, nil
}

// DeList withdraws a listing from sale. The tokens stay deposited.
func (s *MarketService) DeList(ctx context.Context, owner market.Owner, asset market.AssetID) error {
	if !owner.IsAccount() {
		return market.ErrOnlyAccount
	}
	var emitted []market.Event
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		emitted = emitted[:0]
		balance, err := s.balances.GetForUpdate(ctx, tx, owner, asset)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return market.ErrNotListed
			}
			return err
		}
		if _, err := s.listings.GetForUpdate(ctx, tx, owner, asset); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return market.ErrNotListed
			}
			return err
		}
		balance.Listed = money.Zero()
		if err := s.balances.Update(ctx, tx, owner, asset, balance); err != nil {
			return err
		}
		if _, err := s.listings.Delete(ctx, tx, owner, asset); err != nil {
			return err
		}
		event, err := s.appendEvent(ctx, tx, market.EventDeListed, owner, market.DeListed{Asset: asset, Owner: owner})
		if err != nil {
			return err
		}
		emitted = append(emitted, event)
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(emitted)
	s.log.WithFields(map[string]any{"owner": owner, "asset": asset.String()}).Infof("asset delisted")
	return nil
}

type ExchangeRequest struct {
	market.AmountsRequest
	// Attached is the native amount the payer authorised with the request. It must be zero
	// when paying with a CIS-2 token.
	Attached money.Amount
}

type ExchangeResult struct {
	ExchangeID string `json:"exchange_id"`
	market.Amounts
}

// Exchange buys from a listing. Asset movement, payment transfers, ledger entries and the
// event commit together or not at all.
func (s *MarketService) Exchange(ctx context.Context, req ExchangeRequest) (ExchangeResult, error) {
	if !req.Payer.IsAccount() {
		return ExchangeResult{}, market.ErrOnlyAccount
	}
	if req.Payer == req.Owner {
		return ExchangeResult{}, market.ErrInvalidExchange
	}
	exchangeID := uuid.NewString()
	seller, buyer, asset := req.Owner, req.Payer, req.Asset

	var amounts market.Amounts
	var emitted []market.Event
	settled := false
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		emitted = emitted[:0]
		if settled {
			// A retry after the transfer went out must not price or pay the exchange again.
			return ErrUnrecordedSettlement
		}
		if err := s.balances.Ensure(ctx, tx, buyer, asset); err != nil {
			return err
		}
		sellerBalance, buyerBalance, err := lockTwoBalances(ctx, tx, s.balances, asset, seller, buyer)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return market.ErrNotListed
			}
			return err
		}
		var listing *market.Listing
		current, err := s.listings.GetForUpdate(ctx, tx, seller, asset)
		switch {
		case err == nil:
			listing = &current
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		amounts, err = market.CalculateAmounts(listing, req.AmountsRequest, s.settings.Commission)
		if err != nil {
			return err
		}
		total, err := amounts.Total()
		if err != nil {
			return err
		}
		switch amounts.PayToken.Kind {
		case market.PaymentNative:
			if req.Attached != total {
				return market.ErrInsufficientPayment
			}
		default:
			if !req.Attached.IsZero() {
				return market.ErrPaymentNotRequired
			}
		}

		if sellerBalance.Deposited, err = sellerBalance.Deposited.Sub(amounts.Buy); err != nil {
			return err
		}
		if sellerBalance.Listed, err = sellerBalance.Listed.Sub(amounts.Buy); err != nil {
			return err
		}
		if buyerBalance.Deposited, err = buyerBalance.Deposited.Add(amounts.Buy); err != nil {
			return err
		}
		if err := s.balances.Update(ctx, tx, seller, asset, sellerBalance); err != nil {
			return err
		}
		if err := s.balances.Update(ctx, tx, buyer, asset, buyerBalance); err != nil {
			return err
		}
		supply, err := listing.Supply.Sub(amounts.Buy)
		if err != nil {
			return err
		}
		if supply.IsZero() {
			if _, err := s.listings.Delete(ctx, tx, seller, asset); err != nil {
				return err
			}
		} else if err := s.listings.UpdateSupply(ctx, tx, seller, asset, supply); err != nil {
			return err
		}

		entries := s.paymentEntries(exchangeID, buyer, seller, amounts, total)
		if err := ensureBalancedByPayment(entries); err != nil {
			return err
		}
		if err := s.ledger.InsertEntries(ctx, tx, entries); err != nil {
			return err
		}
		event, err := s.appendPartyEvent(ctx, tx, market.EventExchanged, seller, buyer, market.Exchanged{
			ExchangeID: exchangeID,
			Asset:      asset,
			Seller:     seller,
			Buyer:      buyer,
			Amounts:    amounts,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, event)
		if err := s.settle(ctx, exchangeID, buyer, seller, amounts); err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		if settled {
			s.log.WithFields(map[string]any{
				"exchange_id": exchangeID,
				"seller":      seller,
				"buyer":       buyer,
				"payment":     amounts.PayToken.Key(),
				"pay":         amounts.Pay.String(),
				"commission":  amounts.Commission.String(),
			}).Errorf("exchange settled but not recorded, reconcile manually: %v", err)
			if !errors.Is(err, ErrUnrecordedSettlement) {
				err = fmt.Errorf("%w: %w", ErrUnrecordedSettlement, err)
			}
		}
		return ExchangeResult{}, err
	}
	s.publish(emitted)
	s.log.WithFields(map[string]any{
		"exchange_id": exchangeID,
		"asset":       asset.String(),
		"seller":      seller,
		"buyer":       buyer,
		"buy":         amounts.Buy.String(),
		"pay":         amounts.Pay.String(),
		"commission":  amounts.Commission.String(),
		"payment":     amounts.PayToken.Key(),
	}).Infof("exchange settled")
	return ExchangeResult{ExchangeID: exchangeID, Amounts: amounts}, nil
}

func (s *MarketService) paymentEntries(exchangeID string, buyer, seller market.Owner, amounts market.Amounts, total money.Amount) []store.LedgerEntryInput {
	entries := []store.LedgerEntryInput{
		{
			ID:          uuid.NewString(),
			ExchangeID:  exchangeID,
			Owner:       buyer,
			Payment:     amounts.PayToken,
			Amount:      total,
			Debit:       true,
			Description: "Exchange payment",
		},
		{
			ID:          uuid.NewString(),
			ExchangeID:  exchangeID,
			Owner:       seller,
			Payment:     amounts.PayToken,
			Amount:      amounts.Pay,
			Description: "Exchange proceeds",
		},
	}
	if !amounts.Commission.IsZero() {
		entries = append(entries, store.LedgerEntryInput{
			ID:          uuid.NewString(),
			ExchangeID:  exchangeID,
			Owner:       s.settings.CommissionAccount,
			Payment:     amounts.PayToken,
			Amount:      amounts.Commission,
			Description: "Exchange commission",
		})
	}
	return entries
}

// settle dispatches the payment legs: payer to seller, then payer to the commission account.
func (s *MarketService) settle(ctx context.Context, exchangeID string, buyer, seller market.Owner, amounts market.Amounts) error {
	legs := []transfer.Leg{{From: buyer, To: seller, Amount: amounts.Pay}}
	if !amounts.Commission.IsZero() {
		legs = append(legs, transfer.Leg{From: buyer, To: s.settings.CommissionAccount, Amount: amounts.Commission})
	}
	var err error
	if token, ok := amounts.PayToken.Asset(); ok {
		for i := range legs {
			legs[i].TokenID = token.TokenID
		}
		err = s.transfers.TransferCis2(ctx, exchangeID, token.Contract, legs)
	} else {
		err = s.transfers.TransferNative(ctx, exchangeID, legs)
	}
	if err == nil {
		return nil
	}
	s.log.WithFields(map[string]any{"exchange_id": exchangeID, "payment": amounts.PayToken.Key()}).Errorf("payment transfer failed: %v", err)
	return settlementError(amounts.PayToken.Kind, err)
}

func settlementError(kind market.PaymentKind, err error) error {
	native := kind == market.PaymentNative
	leg, ok := transfer.FailedLeg(err)
	switch {
	case ok && leg == 0 && native:
		return market.ErrCCDPayment
	case ok && leg == 0:
		return market.ErrCis2Payment
	case ok && leg == 1 && native:
		return market.ErrCCDCommissionPayment
	case ok && leg == 1:
		return market.ErrCis2CommissionPayment
	case native:
		return market.ErrCCDPayment
	default:
		return market.ErrCis2Settlement
	}
}

// CalculateAmounts quotes a purchase against a consistent snapshot without changing anything.
func (s *MarketService) CalculateAmounts(ctx context.Context, req market.AmountsRequest) (market.Amounts, error) {
	var amounts market.Amounts
	err := s.txRunner.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		var listing *market.Listing
		current, err := s.listings.Get(ctx, tx, req.Owner, req.Asset)
		switch {
		case err == nil:
			listing = &current
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		amounts, err = market.CalculateAmounts(listing, req, s.settings.Commission)
		return err
	})
	if err != nil {
		return market.Amounts{}, err
	}
	return amounts, nil
}

func (s *MarketService) GetListed(ctx context.Context, owner market.Owner, asset market.AssetID) (market.Listing, error) {
	var listing market.Listing
	err := s.txRunner.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		listing, err = s.listings.Get(ctx, tx, owner, asset)
		if errors.Is(err, sql.ErrNoRows) {
			return market.ErrNotListed
		}
		return err
	})
	if err != nil {
		return market.Listing{}, err
	}
	return listing, nil
}

type BalanceView struct {
	Deposited money.Amount `json:"deposited"`
	Listed    money.Amount `json:"listed"`
	Unlisted  money.Amount `json:"unlisted"`
}

func viewOf(balance market.Balance) (BalanceView, error) {
	unlisted, err := balance.Unlisted()
	if err != nil {
		return BalanceView{}, err
	}
	return BalanceView{Deposited: balance.Deposited, Listed: balance.Listed, Unlisted: unlisted}, nil
}

// BalanceOf reads an escrow position. An owner that never deposited reads as zero.
func (s *MarketService) BalanceOf(ctx context.Context, owner market.Owner, asset market.AssetID) (BalanceView, error) {
	var view BalanceView
	err := s.txRunner.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		balance, err := s.balances.Get(ctx, tx, owner, asset)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		view, err = viewOf(balance)
		return err
	})
	if err != nil {
		return BalanceView{}, err
	}
	return view, nil
}

func (s *MarketService) Balances(ctx context.Context, owner market.Owner) ([]store.OwnerBalance, error) {
	return s.balances.ListByOwner(ctx, owner)
}

// PaymentBalance is the net amount owner has paid (negative) or received in one payment method.
func (s *MarketService) PaymentBalance(ctx context.Context, owner market.Owner, payment market.PaymentMethod) (decimal.Decimal, error) {
	if err := payment.Validate(); err != nil {
		return decimal.Zero, err
	}
	return s.ledger.SumByOwner(ctx, owner, payment)
}

func (s *MarketService) AllowedToList(ctx context.Context) ([]market.ContractRef, error) {
	return s.registry.SellContracts(ctx)
}

func (s *MarketService) PaymentTokens(ctx context.Context) ([]market.AssetID, error) {
	return s.registry.PaymentTokens(ctx)
}

func (s *MarketService) AddPaymentToken(ctx context.Context, actor market.Owner, token market.AssetID) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	if _, err := market.ParseContractRef(string(token.Contract)); err != nil {
		return err
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.registry.AddPaymentToken(ctx, tx, token, actor); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, uuid.NewString(), actor, "add_payment_token", token.String())
	})
	if err != nil {
		return err
	}
	s.log.WithFields(map[string]any{"actor": actor, "token": token.String()}).Infof("payment token added")
	return nil
}

func (s *MarketService) AddSellTokenContract(ctx context.Context, actor market.Owner, contract market.ContractRef) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	if _, err := market.ParseContractRef(string(contract)); err != nil {
		return err
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.registry.AddSellContract(ctx, tx, contract, actor); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, uuid.NewString(), actor, "add_sell_token_contract", contract.String())
	})
	if err != nil {
		return err
	}
	s.log.WithFields(map[string]any{"actor": actor, "contract": contract}).Infof("sell token contract allowed")
	return nil
}

// AuditLog lists admin actions, newest first. Only admins may read it.
func (s *MarketService) AuditLog(ctx context.Context, actor market.Owner, limit, offset int) ([]store.AuditEntry, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxEventPage {
		limit = defaultEventPage
	}
	if offset < 0 {
		offset = 0
	}
	return s.audit.List(ctx, limit, offset)
}

// Events pages through the event log in sequence order.
func (s *MarketService) Events(ctx context.Context, owner market.Owner, afterSeq int64, limit int) ([]market.Event, error) {
	if limit <= 0 {
		limit = defaultEventPage
	}
	if limit > maxEventPage {
		limit = maxEventPage
	}
	if afterSeq < 0 {
		afterSeq = 0
	}
	return s.events.List(ctx, owner, afterSeq, limit)
}

func (s *MarketService) requireAdmin(ctx context.Context, actor market.Owner) error {
	if !actor.IsAccount() {
		return market.ErrUnauthorized
	}
	ok, err := s.admins.IsAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if !ok {
		return market.ErrUnauthorized
	}
	return nil
}

func (s *MarketService) appendEvent(ctx context.Context, tx store.Getter, kind market.EventKind, owner market.Owner, payload any) (market.Event, error) {
	return s.appendPartyEvent(ctx, tx, kind, owner, "", payload)
}

// appendPartyEvent records an event that concerns counterparty as well as owner.
func (s *MarketService) appendPartyEvent(ctx context.Context, tx store.Getter, kind market.EventKind, owner, counterparty market.Owner, payload any) (market.Event, error) {
	event, err := market.NewEvent(uuid.NewString(), kind, owner, payload)
	if err != nil {
		return market.Event{}, err
	}
	event.Counterparty = counterparty
	if err := s.events.Append(ctx, tx, &event); err != nil {
		s.log.WithField("kind", kind).Errorf("event append failed: %v", err)
		return market.Event{}, market.ErrLog
	}
	return event, nil
}

func (s *MarketService) publish(events []market.Event) {
	for _, event := range events {
		s.hub.BroadcastEvent(event.Owner, event)
		if event.Counterparty != "" && event.Counterparty != event.Owner {
			s.hub.BroadcastEvent(event.Counterparty, event)
		}
	}
}

func ensureBalancedByPayment(entries []store.LedgerEntryInput) error {
	type sums struct{ credit, debit money.Amount }
	totals := map[string]*sums{}
	for _, entry := range entries {
		key := entry.Payment.Key()
		if totals[key] == nil {
			totals[key] = &sums{credit: money.Zero(), debit: money.Zero()}
		}
		var err error
		if entry.Debit {
			totals[key].debit, err = totals[key].debit.Add(entry.Amount)
		} else {
			totals[key].credit, err = totals[key].credit.Add(entry.Amount)
		}
		if err != nil {
			return fmt.Errorf("sum ledger entries: %w", err)
		}
	}
	for _, sum := range totals {
		if sum.credit != sum.debit {
			return ErrUnbalancedLedger
		}
	}
	return nil
}

// lockTwoBalances locks both rows in owner order so concurrent exchanges cannot deadlock.
func lockTwoBalances(ctx context.Context, tx store.Getter, balances BalanceStore, asset market.AssetID, first, second market.Owner) (market.Balance, market.Balance, error) {
	left, right := orderedOwners(first, second)
	leftBalance, err := balances.GetForUpdate(ctx, tx, left, asset)
	if err != nil {
		return market.Balance{}, market.Balance{}, err
	}
	rightBalance, err := balances.GetForUpdate(ctx, tx, right, asset)
	if err != nil {
		return market.Balance{}, market.Balance{}, err
	}
	if first == left {
		return leftBalance, rightBalance, nil
	}
	return rightBalance, leftBalance, nil
}

func orderedOwners(first, second market.Owner) (market.Owner, market.Owner) {
	if first <= second {
		return first, second
	}
	return second, first
}
