package market

import (
	"fmt"
	"math/big"
	"math/bits"
	"regexp"
	"strconv"
	"strings"

	"marketplace/internal/money"
	"marketplace/internal/validator"

	"github.com/shopspring/decimal"
)

var contractRefPattern = regexp.MustCompile(`^<\s*(\d+)\s*,\s*(\d+)\s*>$`)

// ContractRef identifies an on-chain contract instance. The canonical text form is
// "<index,subindex>"; compare refs only after parsing.
type ContractRef string

func NewContractRef(index, subindex uint64) ContractRef {
	return ContractRef(fmt.Sprintf("<%d,%d>", index, subindex))
}

func ParseContractRef(raw string) (ContractRef, error) {
	match := contractRefPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return "", ErrParse
	}
	index, err := strconv.ParseUint(match[1], 10, 64)
	if err != nil {
		return "", ErrParse
	}
	subindex, err := strconv.ParseUint(match[2], 10, 64)
	if err != nil {
		return "", ErrParse
	}
	return NewContractRef(index, subindex), nil
}

func (c ContractRef) String() string {
	return string(c)
}

// AssetID names one token class on one token contract.
type AssetID struct {
	Contract ContractRef `json:"contract"`
	TokenID  string      `json:"token_id"`
}

// ParseAssetID accepts a contract ref in any spacing and a hex token id in either case,
// and returns the stored form.
func ParseAssetID(contract, tokenID string) (AssetID, error) {
	ref, err := ParseContractRef(contract)
	if err != nil {
		return AssetID{}, err
	}
	tokenID = strings.ToLower(strings.TrimSpace(tokenID))
	if err := validator.ValidateTokenID(tokenID); err != nil {
		return AssetID{}, ErrParse
	}
	return AssetID{Contract: ref, TokenID: tokenID}, nil
}

func (a AssetID) String() string {
	return a.Contract.String() + "/" + a.TokenID
}

// Owner is an account address or, for deposits received from another contract, the
// contract's ref in text form.
type Owner string

func ContractOwner(ref ContractRef) Owner {
	return Owner(ref)
}

func (o Owner) IsAccount() bool {
	return o != "" && !strings.HasPrefix(string(o), "<")
}

func (o Owner) String() string {
	return string(o)
}

// Rate means "Denominator payment units buy Numerator asset units".
type Rate struct {
	Numerator   uint64 `json:"numerator"`
	Denominator uint64 `json:"denominator"`
}

func (r Rate) Validate() error {
	if r.Numerator == 0 || r.Denominator == 0 {
		return ErrInvalidRate
	}
	return nil
}

// SameValue compares the two fractions exactly; 1/2 and 2/4 are the same rate.
func (r Rate) SameValue(other Rate) bool {
	leftHi, leftLo := bits.Mul64(r.Numerator, other.Denominator)
	rightHi, rightLo := bits.Mul64(other.Numerator, r.Denominator)
	return leftHi == rightHi && leftLo == rightLo
}

// Price is the display price in payment units per asset unit.
func (r Rate) Price() decimal.Decimal {
	if r.Numerator == 0 {
		return decimal.Zero
	}
	return uint64Decimal(r.Denominator).DivRound(uint64Decimal(r.Numerator), 18)
}

// ValidateCommission checks a commission fraction: 0 <= n/d <= 1.
func ValidateCommission(r Rate) error {
	if r.Denominator == 0 || r.Numerator > r.Denominator {
		return ErrInvalidCommission
	}
	return nil
}

// RateFromDecimal converts an exact decimal fraction such as 0.025 into 1/40.
func RateFromDecimal(value decimal.Decimal) (Rate, error) {
	if value.IsNegative() {
		return Rate{}, ErrInvalidCommission
	}
	numerator := new(big.Int).Set(value.Coefficient())
	denominator := big.NewInt(1)
	exponent := value.Exponent()
	ten := big.NewInt(10)
	if exponent >= 0 {
		numerator.Mul(numerator, new(big.Int).Exp(ten, big.NewInt(int64(exponent)), nil))
	} else {
		denominator.Exp(ten, big.NewInt(int64(-exponent)), nil)
	}
	if numerator.Sign() != 0 {
		gcd := new(big.Int).GCD(nil, nil, numerator, denominator)
		numerator.Quo(numerator, gcd)
		denominator.Quo(denominator, gcd)
	} else {
		denominator.SetInt64(1)
	}
	if !numerator.IsUint64() || !denominator.IsUint64() {
		return Rate{}, ErrInvalidCommission
	}
	return Rate{Numerator: numerator.Uint64(), Denominator: denominator.Uint64()}, nil
}

func uint64Decimal(value uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(value), 0)
}

type PaymentKind string

const (
	PaymentNative PaymentKind = "Native"
	PaymentCis2   PaymentKind = "Cis2"
)

// PaymentMethod is either the native coin or one CIS-2 token. Contract and TokenID are
// empty for Native.
type PaymentMethod struct {
	Kind     PaymentKind `json:"kind"`
	Contract ContractRef `json:"contract,omitempty"`
	TokenID  string      `json:"token_id,omitempty"`
}

func NativePayment() PaymentMethod {
	return PaymentMethod{Kind: PaymentNative}
}

func Cis2Payment(contract ContractRef, tokenID string) PaymentMethod {
	return PaymentMethod{Kind: PaymentCis2, Contract: contract, TokenID: tokenID}
}

func (p PaymentMethod) Validate() error {
	switch p.Kind {
	case PaymentNative:
		if p.Contract != "" || p.TokenID != "" {
			return ErrParse
		}
		return nil
	case PaymentCis2:
		if _, err := ParseContractRef(string(p.Contract)); err != nil {
			return ErrParse
		}
		return nil
	default:
		return ErrParse
	}
}

// Canonical returns p with its contract ref and token id in stored form. Equal is only
// meaningful between canonical methods.
func (p PaymentMethod) Canonical() (PaymentMethod, error) {
	if p.Kind != PaymentCis2 {
		return p, p.Validate()
	}
	asset, err := ParseAssetID(string(p.Contract), p.TokenID)
	if err != nil {
		return PaymentMethod{}, err
	}
	return Cis2Payment(asset.Contract, asset.TokenID), nil
}

func (p PaymentMethod) Equal(other PaymentMethod) bool {
	if p.Kind != other.Kind {
		return false
	}
	if p.Kind == PaymentNative {
		return true
	}
	return p.Contract == other.Contract && p.TokenID == other.TokenID
}

// Asset returns the token paid with, if the method is a CIS-2 token.
func (p PaymentMethod) Asset() (AssetID, bool) {
	if p.Kind != PaymentCis2 {
		return AssetID{}, false
	}
	return AssetID{Contract: p.Contract, TokenID: p.TokenID}, true
}

// Key is a stable text form used as a storage key.
func (p PaymentMethod) Key() string {
	if p.Kind == PaymentNative {
		return "native"
	}
	return "cis2:" + string(p.Contract) + ":" + p.TokenID
}

type ExchangeRateEntry struct {
	Payment PaymentMethod `json:"payment"`
	Rate    Rate          `json:"rate"`
}

// NormalizeRates validates a listing's published rates for asset and puts every payment
// method in canonical form before comparing it. A later entry for an already seen
// payment method replaces the earlier one in its original position.
func NormalizeRates(asset AssetID, entries []ExchangeRateEntry) ([]ExchangeRateEntry, error) {
	if len(entries) == 0 {
		return nil, ErrInvalidExchangeRates
	}
	asset, err := ParseAssetID(string(asset.Contract), asset.TokenID)
	if err != nil {
		return nil, err
	}
	normalized := make([]ExchangeRateEntry, 0, len(entries))
	for _, entry := range entries {
		payment, err := entry.Payment.Canonical()
		if err != nil {
			return nil, err
		}
		if err := entry.Rate.Validate(); err != nil {
			return nil, err
		}
		entry.Payment = payment
		if token, ok := payment.Asset(); ok && token == asset {
			return nil, ErrInvalidPaymentToken
		}
		replaced := false
		for i := range normalized {
			if normalized[i].Payment.Equal(entry.Payment) {
				normalized[i].Rate = entry.Rate
				replaced = true
				break
			}
		}
		if !replaced {
			normalized = append(normalized, entry)
		}
	}
	return normalized, nil
}

// Balance is the escrow position of one owner in one asset. Unlisted is derived.
type Balance struct {
	Deposited money.Amount `json:"deposited"`
	Listed    money.Amount `json:"listed"`
}

func (b Balance) Unlisted() (money.Amount, error) {
	return b.Deposited.Sub(b.Listed)
}

type Listing struct {
	Owner  Owner               `json:"owner"`
	Asset  AssetID             `json:"asset"`
	Supply money.Amount        `json:"supply"`
	Rates  []ExchangeRateEntry `json:"rates"`
}

// Rate returns the published rate for method.
func (l Listing) Rate(method PaymentMethod) (Rate, bool) {
	for _, entry := range l.Rates {
		if entry.Payment.Equal(method) {
			return entry.Rate, true
		}
	}
	return Rate{}, false
}
