package market

import (
	"encoding/json"
	"time"

	"marketplace/internal/money"
)

type EventKind string

const (
	EventDeposited EventKind = "Deposited"
	EventWithdraw  EventKind = "Withdraw"
	EventListed    EventKind = "Listed"
	EventDeListed  EventKind = "DeListed"
	EventExchanged EventKind = "Exchanged"
)

// Event is one entry of the append-only effect log. Seq is assigned by the store.
// Counterparty is the second party an event concerns, the buyer of an Exchanged event;
// listing by owner matches either party.
type Event struct {
	Seq          int64           `json:"seq"`
	ID           string          `json:"id"`
	Kind         EventKind       `json:"kind"`
	Owner        Owner           `json:"owner"`
	Counterparty Owner           `json:"counterparty,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Concerns reports whether owner is either party of the event.
func (e Event) Concerns(owner Owner) bool {
	return e.Owner == owner || (e.Counterparty != "" && e.Counterparty == owner)
}

type Deposited struct {
	Asset  AssetID      `json:"asset"`
	Owner  Owner        `json:"owner"`
	Amount money.Amount `json:"amount"`
}

type Withdrawn struct {
	Asset  AssetID      `json:"asset"`
	Owner  Owner        `json:"owner"`
	Amount money.Amount `json:"amount"`
}

type Listed struct {
	Asset  AssetID             `json:"asset"`
	Owner  Owner               `json:"owner"`
	Supply money.Amount        `json:"supply"`
	Rates  []ExchangeRateEntry `json:"rates"`
}

type DeListed struct {
	Asset AssetID `json:"asset"`
	Owner Owner   `json:"owner"`
}

type Exchanged struct {
	ExchangeID string  `json:"exchange_id"`
	Asset      AssetID `json:"asset"`
	Seller     Owner   `json:"seller"`
	Buyer      Owner   `json:"buyer"`
	Amounts
}

// NewEvent encodes payload for kind. Encoding failures are LogError.
func NewEvent(id string, kind EventKind, owner Owner, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, ErrLog
	}
	return Event{ID: id, Kind: kind, Owner: owner, Payload: data}, nil
}
