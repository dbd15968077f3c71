package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"marketplace/internal/market"
	"marketplace/internal/money"
	"marketplace/internal/store"
	"marketplace/internal/transfer"
)

type positionKey struct {
	owner market.Owner
	asset market.AssetID
}

// memState is the whole marketplace database held in memory.
type memState struct {
	balances      map[positionKey]market.Balance
	listings      map[positionKey]market.Listing
	sellContracts []market.ContractRef
	paymentTokens []market.AssetID
	ledger        []store.LedgerEntryInput
	events        []market.Event
	admins        map[market.Owner]bool
	audit         []store.AuditEntry
	seq           int64
}

func newMemState() *memState {
	return &memState{
		balances: map[positionKey]market.Balance{},
		listings: map[positionKey]market.Listing{},
		admins:   map[market.Owner]bool{},
	}
}

func (m *memState) clone() *memState {
	out := &memState{
		balances:      make(map[positionKey]market.Balance, len(m.balances)),
		listings:      make(map[positionKey]market.Listing, len(m.listings)),
		sellContracts: append([]market.ContractRef(nil), m.sellContracts...),
		paymentTokens: append([]market.AssetID(nil), m.paymentTokens...),
		ledger:        append([]store.LedgerEntryInput(nil), m.ledger...),
		events:        append([]market.Event(nil), m.events...),
		admins:        make(map[market.Owner]bool, len(m.admins)),
		audit:         append([]store.AuditEntry(nil), m.audit...),
		seq:           m.seq,
	}
	for k, v := range m.balances {
		out.balances[k] = v
	}
	for k, v := range m.listings {
		v.Rates = append([]market.ExchangeRateEntry(nil), v.Rates...)
		out.listings[k] = v
	}
	for k, v := range m.admins {
		out.admins[k] = v
	}
	return out
}

// fakeTxRunner serialises transactions and restores the state snapshot when fn fails.
type fakeTxRunner struct {
	mu    *sync.Mutex
	state *memState
	err   error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := f.state.clone()
	if err := fn(nil); err != nil {
		*f.state = *snapshot
		return err
	}
	return nil
}

func (f fakeTxRunner) WithReadTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(nil)
}

// replayingTxRunner runs fn a second time after it succeeds, the way a serialization
// failure at commit sends a real transaction round again.
type replayingTxRunner struct {
	fakeTxRunner
}

func (r replayingTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	for attempt := 0; attempt < 2; attempt++ {
		*r.state = *snapshot.clone()
		if err := fn(nil); err != nil {
			*r.state = *snapshot
			return err
		}
	}
	return nil
}

// commitFailingTxRunner runs fn and then fails the commit with commitErr.
type commitFailingTxRunner struct {
	fakeTxRunner
	commitErr error
}

func (r commitFailingTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	err := fn(nil)
	*r.state = *snapshot
	if err != nil {
		return err
	}
	return r.commitErr
}

type memBalances struct {
	state *memState
}

func (m memBalances) Get(_ context.Context, _ store.Getter, owner market.Owner, asset market.AssetID) (market.Balance, error) {
	balance, ok := m.state.balances[positionKey{owner, asset}]
	if !ok {
		return market.Balance{}, sql.ErrNoRows
	}
	return balance, nil
}

func (m memBalances) GetForUpdate(ctx context.Context, tx store.Getter, owner market.Owner, asset market.AssetID) (market.Balance, error) {
	return m.Get(ctx, tx, owner, asset)
}

func (m memBalances) Ensure(_ context.Context, _ store.Execer, owner market.Owner, asset market.AssetID) error {
	key := positionKey{owner, asset}
	if _, ok := m.state.balances[key]; !ok {
		m.state.balances[key] = market.Balance{}
	}
	return nil
}

func (m memBalances) Update(_ context.Context, _ store.Execer, owner market.Owner, asset market.AssetID, balance market.Balance) error {
	key := positionKey{owner, asset}
	if _, ok := m.state.balances[key]; !ok {
		return errors.New("update of missing balance row")
	}
	if balance.Listed.GreaterThan(balance.Deposited) {
		return errors.New("check constraint: listed <= deposited")
	}
	m.state.balances[key] = balance
	return nil
}

func (m memBalances) ListByOwner(_ context.Context, owner market.Owner) ([]store.OwnerBalance, error) {
	var rows []store.OwnerBalance
	for key, balance := range m.state.balances {
		if key.owner != owner || balance.Deposited.IsZero() {
			continue
		}
		rows = append(rows, store.OwnerBalance{
			Contract:  string(key.asset.Contract),
			TokenID:   key.asset.TokenID,
			Deposited: balance.Deposited,
			Listed:    balance.Listed,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Contract+rows[i].TokenID < rows[j].Contract+rows[j].TokenID })
	return rows, nil
}

type memListings struct {
	state *memState
}

func (m memListings) Get(_ context.Context, _ store.Queryer, owner market.Owner, asset market.AssetID) (market.Listing, error) {
	listing, ok := m.state.listings[positionKey{owner, asset}]
	if !ok {
		return market.Listing{}, sql.ErrNoRows
	}
	listing.Rates = append([]market.ExchangeRateEntry(nil), listing.Rates...)
	return listing, nil
}

func (m memListings) GetForUpdate(ctx context.Context, tx store.Queryer, owner market.Owner, asset market.AssetID) (market.Listing, error) {
	return m.Get(ctx, tx, owner, asset)
}

func (m memListings) Put(_ context.Context, _ store.Execer, listing market.Listing) error {
	listing.Rates = append([]market.ExchangeRateEntry(nil), listing.Rates...)
	m.state.listings[positionKey{listing.Owner, listing.Asset}] = listing
	return nil
}

func (m memListings) UpdateSupply(_ context.Context, _ store.Execer, owner market.Owner, asset market.AssetID, supply money.Amount) error {
	key := positionKey{owner, asset}
	listing, ok := m.state.listings[key]
	if !ok {
		return errors.New("update of missing listing")
	}
	listing.Supply = supply
	m.state.listings[key] = listing
	return nil
}

func (m memListings) Delete(_ context.Context, _ store.Execer, owner market.Owner, asset market.AssetID) (bool, error) {
	key := positionKey{owner, asset}
	_, ok := m.state.listings[key]
	delete(m.state.listings, key)
	return ok, nil
}

type memRegistry struct {
	state *memState
}

func (m memRegistry) AddSellContract(_ context.Context, _ store.Execer, contract market.ContractRef, _ market.Owner) error {
	for _, existing := range m.state.sellContracts {
		if existing == contract {
			return nil
		}
	}
	m.state.sellContracts = append(m.state.sellContracts, contract)
	return nil
}

func (m memRegistry) IsSellContract(_ context.Context, _ store.Getter, contract market.ContractRef) (bool, error) {
	for _, existing := range m.state.sellContracts {
		if existing == contract {
			return true, nil
		}
	}
	return false, nil
}

func (m memRegistry) SellContracts(context.Context) ([]market.ContractRef, error) {
	return append([]market.ContractRef(nil), m.state.sellContracts...), nil
}

func (m memRegistry) AddPaymentToken(_ context.Context, _ store.Execer, token market.AssetID, _ market.Owner) error {
	for _, existing := range m.state.paymentTokens {
		if existing == token {
			return nil
		}
	}
	m.state.paymentTokens = append(m.state.paymentTokens, token)
	return nil
}

func (m memRegistry) PaymentTokens(context.Context) ([]market.AssetID, error) {
	return append([]market.AssetID(nil), m.state.paymentTokens...), nil
}

type memLedger struct {
	state *memState
}

func (m memLedger) InsertEntries(_ context.Context, _ store.Execer, entries []store.LedgerEntryInput) error {
	m.state.ledger = append(m.state.ledger, entries...)
	return nil
}

func (m memLedger) SumByOwner(_ context.Context, owner market.Owner, payment market.PaymentMethod) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, entry := range m.state.ledger {
		if entry.Owner != owner || entry.Payment.Key() != payment.Key() {
			continue
		}
		amount := decimal.RequireFromString(entry.Amount.String())
		if entry.Debit {
			amount = amount.Neg()
		}
		sum = sum.Add(amount)
	}
	return sum, nil
}

type memEvents struct {
	state *memState
	err   error
}

func (m memEvents) Append(_ context.Context, _ store.Getter, event *market.Event) error {
	if m.err != nil {
		return m.err
	}
	m.state.seq++
	event.Seq = m.state.seq
	event.CreatedAt = time.Unix(m.state.seq, 0).UTC()
	m.state.events = append(m.state.events, *event)
	return nil
}

func (m memEvents) List(_ context.Context, owner market.Owner, afterSeq int64, limit int) ([]market.Event, error) {
	var out []market.Event
	for _, event := range m.state.events {
		if event.Seq <= afterSeq || (owner != "" && !event.Concerns(owner)) {
			continue
		}
		out = append(out, event)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memAdmins struct {
	state *memState
}

func (m memAdmins) IsAdmin(_ context.Context, account market.Owner) (bool, error) {
	return m.state.admins[account], nil
}

func (m memAdmins) Grant(_ context.Context, _ store.Execer, account market.Owner) error {
	m.state.admins[account] = true
	return nil
}

func (m memAdmins) HasAnyAdmin(context.Context) (bool, error) {
	return len(m.state.admins) > 0, nil
}

type memAudit struct {
	state *memState
}

func (m memAudit) Log(_ context.Context, _ store.Execer, id string, actor market.Owner, action, subject string) error {
	m.state.audit = append(m.state.audit, store.AuditEntry{ID: id, Actor: string(actor), Action: action, Subject: subject})
	return nil
}

func (m memAudit) List(_ context.Context, limit, offset int) ([]store.AuditEntry, error) {
	var out []store.AuditEntry
	for i := len(m.state.audit) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.state.audit[i])
	}
	return out, nil
}

type transferCall struct {
	reference string
	contract  market.ContractRef
	native    bool
	legs      []transfer.Leg
}

type fakeTransfers struct {
	mu    sync.Mutex
	calls []transferCall
	err   error
}

func (f *fakeTransfers) TransferNative(_ context.Context, reference string, legs []transfer.Leg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, transferCall{reference: reference, native: true, legs: legs})
	return nil
}

func (f *fakeTransfers) TransferCis2(_ context.Context, reference string, contract market.ContractRef, legs []transfer.Leg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, transferCall{reference: reference, contract: contract, legs: legs})
	return nil
}

type recordingHub struct {
	mu     sync.Mutex
	events map[market.Owner][]market.Event
}

func (h *recordingHub) BroadcastEvent(owner market.Owner, event market.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.events == nil {
		h.events = map[market.Owner][]market.Event{}
	}
	h.events[owner] = append(h.events[owner], event)
}

func (h *recordingHub) kinds(owner market.Owner) []market.EventKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	var kinds []market.EventKind
	for _, event := range h.events[owner] {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}
