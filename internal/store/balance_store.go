package store

import (
	"context"

	"marketplace/internal/market"
	"marketplace/internal/money"
)

type BalanceStore struct {
	db DB
}

type balanceRow struct {
	Deposited money.Amount `db:"deposited"`
	Listed    money.Amount `db:"listed"`
}

// OwnerBalance is one escrow row as returned by ListByOwner.
type OwnerBalance struct {
	Contract  string       `db:"contract" json:"contract"`
	TokenID   string       `db:"token_id" json:"token_id"`
	Deposited money.Amount `db:"deposited" json:"deposited"`
	Listed    money.Amount `db:"listed" json:"listed"`
}

func NewBalanceStore(db DB) *BalanceStore {
	return &BalanceStore{db: db}
}

// Get returns sql.ErrNoRows when the owner never deposited the asset.
func (s *BalanceStore) Get(ctx context.Context, q Getter, owner market.Owner, asset market.AssetID) (market.Balance, error) {
	var row balanceRow
	err := q.GetContext(ctx, &row, `
		SELECT deposited, listed
		FROM balances
		WHERE owner = $1 AND contract = $2 AND token_id = $3
	`, string(owner), string(asset.Contract), asset.TokenID)
	if err != nil {
		return market.Balance{}, err
	}
	return market.Balance{Deposited: row.Deposited, Listed: row.Listed}, nil
}

func (s *BalanceStore) GetForUpdate(ctx context.Context, tx Getter, owner market.Owner, asset market.AssetID) (market.Balance, error) {
	var row balanceRow
	err := tx.GetContext(ctx, &row, `
		SELECT deposited, listed
		FROM balances
		WHERE owner = $1 AND contract = $2 AND token_id = $3
		FOR UPDATE
	`, string(owner), string(asset.Contract), asset.TokenID)
	if err != nil {
		return market.Balance{}, err
	}
	return market.Balance{Deposited: row.Deposited, Listed: row.Listed}, nil
}

// Ensure creates an empty row so a later FOR UPDATE has something to lock.
func (s *BalanceStore) Ensure(ctx context.Context, tx Execer, owner market.Owner, asset market.AssetID) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balances (owner, contract, token_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner, contract, token_id) DO NOTHING
	`, string(owner), string(asset.Contract), asset.TokenID)
	return err
}

func (s *BalanceStore) Update(ctx context.Context, tx Execer, owner market.Owner, asset market.AssetID, balance market.Balance) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE balances
		SET deposited = $4, listed = $5, updated_at = NOW()
		WHERE owner = $1 AND contract = $2 AND token_id = $3
	`, string(owner), string(asset.Contract), asset.TokenID, balance.Deposited.String(), balance.Listed.String())
	return err
}

func (s *BalanceStore) ListByOwner(ctx context.Context, owner market.Owner) ([]OwnerBalance, error) {
	var rows []OwnerBalance
	err := s.db.SelectContext(ctx, &rows, `
		SELECT contract, token_id, deposited, listed
		FROM balances
		WHERE owner = $1 AND deposited > 0
		ORDER BY contract, token_id
	`, string(owner))
	if err != nil {
		return nil, err
	}
	return rows, nil
}
