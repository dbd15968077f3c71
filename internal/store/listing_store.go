package store

import (
	"context"
	"strconv"

	"marketplace/internal/market"
	"marketplace/internal/money"
)

type ListingStore struct {
	db DB
}

type listingRow struct {
	Owner    string       `db:"owner"`
	Contract string       `db:"contract"`
	TokenID  string       `db:"token_id"`
	Supply   money.Amount `db:"supply"`
}

type rateRow struct {
	Position        int    `db:"position"`
	PaymentKind     string `db:"payment_kind"`
	PaymentContract string `db:"payment_contract"`
	PaymentTokenID  string `db:"payment_token_id"`
	Numerator       uint64 `db:"numerator"`
	Denominator     uint64 `db:"denominator"`
}

func NewListingStore(db DB) *ListingStore {
	return &ListingStore{db: db}
}

// Get returns sql.ErrNoRows when the asset is not listed by owner.
func (s *ListingStore) Get(ctx context.Context, q Queryer, owner market.Owner, asset market.AssetID) (market.Listing, error) {
	return s.get(ctx, q, owner, asset, "")
}

func (s *ListingStore) GetForUpdate(ctx context.Context, tx Queryer, owner market.Owner, asset market.AssetID) (market.Listing, error) {
	return s.get(ctx, tx, owner, asset, "FOR UPDATE")
}

func (s *ListingStore) get(ctx context.Context, q Queryer, owner market.Owner, asset market.AssetID, lock string) (market.Listing, error) {
	var row listingRow
	err := q.GetContext(ctx, &row, `
		SELECT owner, contract, token_id, supply
		FROM listings
		WHERE owner = $1 AND contract = $2 AND token_id = $3
		`+lock, string(owner), string(asset.Contract), asset.TokenID)
	if err != nil {
		return market.Listing{}, err
	}
	var rates []rateRow
	err = q.SelectContext(ctx, &rates, `
		SELECT position, payment_kind, payment_contract, payment_token_id, numerator, denominator
		FROM listing_rates
		WHERE owner = $1 AND contract = $2 AND token_id = $3
		ORDER BY position
	`, string(owner), string(asset.Contract), asset.TokenID)
	if err != nil {
		return market.Listing{}, err
	}
	listing := market.Listing{
		Owner:  market.Owner(row.Owner),
		Asset:  market.AssetID{Contract: market.ContractRef(row.Contract), TokenID: row.TokenID},
		Supply: row.Supply,
		Rates:  make([]market.ExchangeRateEntry, 0, len(rates)),
	}
	for _, r := range rates {
		listing.Rates = append(listing.Rates, market.ExchangeRateEntry{
			Payment: market.PaymentMethod{
				Kind:     market.PaymentKind(r.PaymentKind),
				Contract: market.ContractRef(r.PaymentContract),
				TokenID:  r.PaymentTokenID,
			},
			Rate: market.Rate{Numerator: r.Numerator, Denominator: r.Denominator},
		})
	}
	return listing, nil
}

// Put creates the listing or replaces its supply and rates.
func (s *ListingStore) Put(ctx context.Context, tx Execer, listing market.Listing) error {
	owner, contract, tokenID := string(listing.Owner), string(listing.Asset.Contract), listing.Asset.TokenID
	_, err := tx.ExecContext(ctx, `
		INSERT INTO listings (owner, contract, token_id, supply)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, contract, token_id)
		DO UPDATE SET supply = EXCLUDED.supply, updated_at = NOW()
	`, owner, contract, tokenID, listing.Supply.String())
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM listing_rates
		WHERE owner = $1 AND contract = $2 AND token_id = $3
	`, owner, contract, tokenID); err != nil {
		return err
	}
	query := `
		INSERT INTO listing_rates (owner, contract, token_id, position, payment_kind, payment_contract, payment_token_id, numerator, denominator)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for i, entry := range listing.Rates {
		// uint64 args with the high bit set are rejected by database/sql, so rates travel as text.
		if _, err := tx.ExecContext(ctx, query, owner, contract, tokenID, i,
			string(entry.Payment.Kind), string(entry.Payment.Contract), entry.Payment.TokenID,
			strconv.FormatUint(entry.Rate.Numerator, 10), strconv.FormatUint(entry.Rate.Denominator, 10)); err != nil {
			return err
		}
	}
	return nil
}

func (s *ListingStore) UpdateSupply(ctx context.Context, tx Execer, owner market.Owner, asset market.AssetID, supply money.Amount) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE listings
		SET supply = $4, updated_at = NOW()
		WHERE owner = $1 AND contract = $2 AND token_id = $3
	`, string(owner), string(asset.Contract), asset.TokenID, supply.String())
	return err
}

// Delete removes the listing. Its rates go with it through the cascade.
func (s *ListingStore) Delete(ctx context.Context, tx Execer, owner market.Owner, asset market.AssetID) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		DELETE FROM listings
		WHERE owner = $1 AND contract = $2 AND token_id = $3
	`, string(owner), string(asset.Contract), asset.TokenID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
