package store

import (
	"context"

	"marketplace/internal/market"
)

// RegistryStore holds the two admin-managed allow-lists: token contracts that may be
// deposited and listed, and CIS-2 tokens accepted as payment.
type RegistryStore struct {
	db DB
}

type paymentTokenRow struct {
	Contract string `db:"contract"`
	TokenID  string `db:"token_id"`
}

func NewRegistryStore(db DB) *RegistryStore {
	return &RegistryStore{db: db}
}

func (s *RegistryStore) AddSellContract(ctx context.Context, tx Execer, contract market.ContractRef, createdBy market.Owner) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sell_token_contracts (contract, created_by)
		VALUES ($1, $2)
		ON CONFLICT (contract) DO NOTHING
	`, string(contract), string(createdBy))
	return err
}

func (s *RegistryStore) IsSellContract(ctx context.Context, q Getter, contract market.ContractRef) (bool, error) {
	var exists bool
	err := q.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM sell_token_contracts WHERE contract = $1)
	`, string(contract))
	return exists, err
}

func (s *RegistryStore) SellContracts(ctx context.Context) ([]market.ContractRef, error) {
	var rows []string
	err := s.db.SelectContext(ctx, &rows, `
		SELECT contract
		FROM sell_token_contracts
		ORDER BY created_at, contract
	`)
	if err != nil {
		return nil, err
	}
	contracts := make([]market.ContractRef, 0, len(rows))
	for _, row := range rows {
		contracts = append(contracts, market.ContractRef(row))
	}
	return contracts, nil
}

func (s *RegistryStore) AddPaymentToken(ctx context.Context, tx Execer, token market.AssetID, createdBy market.Owner) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payment_tokens (contract, token_id, created_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (contract, token_id) DO NOTHING
	`, string(token.Contract), token.TokenID, string(createdBy))
	return err
}

func (s *RegistryStore) PaymentTokens(ctx context.Context) ([]market.AssetID, error) {
	var rows []paymentTokenRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT contract, token_id
		FROM payment_tokens
		ORDER BY created_at, contract, token_id
	`)
	if err != nil {
		return nil, err
	}
	tokens := make([]market.AssetID, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, market.AssetID{Contract: market.ContractRef(row.Contract), TokenID: row.TokenID})
	}
	return tokens, nil
}
