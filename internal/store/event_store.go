package store

import (
	"context"
	"encoding/json"
	"time"

	"marketplace/internal/market"
)

// EventStore is the append-only effect log.
type EventStore struct {
	db DB
}

type eventRow struct {
	Seq          int64     `db:"seq"`
	ID           string    `db:"id"`
	Kind         string    `db:"kind"`
	Owner        string    `db:"owner"`
	Counterparty string    `db:"counterparty"`
	Payload      []byte    `db:"payload"`
	CreatedAt    time.Time `db:"created_at"`
}

type appendedRow struct {
	Seq       int64     `db:"seq"`
	CreatedAt time.Time `db:"created_at"`
}

func NewEventStore(db DB) *EventStore {
	return &EventStore{db: db}
}

// Append writes event inside tx and fills in the assigned sequence and timestamp.
func (s *EventStore) Append(ctx context.Context, tx Getter, event *market.Event) error {
	var row appendedRow
	err := tx.GetContext(ctx, &row, `
		INSERT INTO events (id, kind, owner, counterparty, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq, created_at
	`, event.ID, string(event.Kind), string(event.Owner), string(event.Counterparty), string(event.Payload))
	if err != nil {
		return err
	}
	event.Seq = row.Seq
	event.CreatedAt = row.CreatedAt
	return nil
}

// List returns events after afterSeq in log order, those where owner is either party. An
// empty owner lists every owner.
func (s *EventStore) List(ctx context.Context, owner market.Owner, afterSeq int64, limit int) ([]market.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT seq, id, kind, owner, counterparty, payload, created_at
		FROM events
		WHERE seq > $1 AND ($2 = '' OR owner = $2 OR counterparty = $2)
		ORDER BY seq
		LIMIT $3
	`, afterSeq, string(owner), limit)
	if err != nil {
		return nil, err
	}
	events := make([]market.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, market.Event{
			Seq:          row.Seq,
			ID:           row.ID,
			Kind:         market.EventKind(row.Kind),
			Owner:        market.Owner(row.Owner),
			Counterparty: market.Owner(row.Counterparty),
			Payload:      json.RawMessage(row.Payload),
			CreatedAt:    row.CreatedAt,
		})
	}
	return events, nil
}
