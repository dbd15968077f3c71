package market

import (
	"errors"

	"marketplace/internal/money"
)

type AmountsRequest struct {
	Asset  AssetID           `json:"asset"`
	Owner  Owner             `json:"owner"`
	Payer  Owner             `json:"payer"`
	Amount money.Amount      `json:"amount"`
	Rate   ExchangeRateEntry `json:"rate"`
}

// Amounts is the settlement of one exchange. Pay and Commission are denominated in PayToken.
type Amounts struct {
	Buy        money.Amount  `json:"buy"`
	Pay        money.Amount  `json:"pay"`
	PayToken   PaymentMethod `json:"pay_token"`
	Commission money.Amount  `json:"commission"`
	Rate       Rate          `json:"rate"`
}

// Total is what the payer hands over: pay plus commission.
func (a Amounts) Total() (money.Amount, error) {
	return a.Pay.Add(a.Commission)
}

// CalculateAmounts settles a purchase against listing without mutating anything. A nil
// listing means the seller has nothing listed for the asset.
//
// Oversized requests are partially filled up to the listed supply. The payment rounds up
// so the buyer never pays less than the exact fraction; the commission, taken on top of the
// payment, rounds down.
func CalculateAmounts(listing *Listing, req AmountsRequest, commission Rate) (Amounts, error) {
	if listing == nil {
		return Amounts{}, ErrNotListed
	}
	if req.Payer == req.Owner {
		return Amounts{}, ErrInvalidExchange
	}
	published, ok := listing.Rate(req.Rate.Payment)
	if !ok || !published.SameValue(req.Rate.Rate) || published.Validate() != nil {
		return Amounts{}, ErrInvalidRate
	}
	if req.Amount.IsZero() {
		return Amounts{}, ErrInsufficientSupply
	}
	buy := money.Min(req.Amount, listing.Supply)
	if buy.IsZero() {
		return Amounts{}, ErrInvalidExchange
	}
	pay, err := buy.MulDivCeil(published.Denominator, published.Numerator)
	if err != nil {
		return Amounts{}, err
	}
	fee, err := pay.MulDivFloor(commission.Numerator, commission.Denominator)
	if err != nil {
		if errors.Is(err, money.ErrDivideByZero) {
			return Amounts{}, ErrInvalidCommission
		}
		return Amounts{}, err
	}
	return Amounts{
		Buy:        buy,
		Pay:        pay,
		PayToken:   req.Rate.Payment,
		Commission: fee,
		Rate:       published,
	}, nil
}
