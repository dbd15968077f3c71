package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrOverflow      = errors.New("amount overflow")
	ErrUnderflow     = errors.New("amount underflow")
	ErrDivideByZero  = errors.New("division by zero")
)

// MaxBits is the width of every on-ledger quantity. Token amounts are u128.
const MaxBits = 128

// 2^128-1 has 39 decimal digits.
const maxDigits = 39

// Amount is an unsigned token quantity in [0, 2^128-1]. The zero value is 0.
// Arithmetic never wraps: results outside the range are reported as errors.
type Amount struct {
	v uint256.Int
}

func Zero() Amount {
	return Amount{}
}

func NewAmount(value uint64) Amount {
	var a Amount
	a.v.SetUint64(value)
	return a
}

// MaxAmount returns 2^128-1.
func MaxAmount() Amount {
	var a Amount
	a.v.Lsh(uint256.NewInt(1), MaxBits)
	a.v.SubUint64(&a.v, 1)
	return a
}

func ParseAmount(input string) (Amount, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || !isDigits(trimmed) {
		return Amount{}, ErrInvalidAmount
	}
	digits := strings.TrimLeft(trimmed, "0")
	if digits == "" {
		return Amount{}, nil
	}
	if len(digits) > maxDigits {
		return Amount{}, ErrOverflow
	}
	parsed, err := uint256.FromDecimal(digits)
	if err != nil {
		return Amount{}, ErrInvalidAmount
	}
	if parsed.BitLen() > MaxBits {
		return Amount{}, ErrOverflow
	}
	return Amount{v: *parsed}, nil
}

func (a Amount) String() string {
	return a.v.Dec()
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) LessThan(b Amount) bool {
	return a.v.Lt(&b.v)
}

func (a Amount) GreaterThan(b Amount) bool {
	return a.v.Gt(&b.v)
}

func (a Amount) Uint64() (uint64, bool) {
	return a.v.Uint64(), a.v.IsUint64()
}

func Min(a, b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Add(b Amount) (Amount, error) {
	var sum Amount
	if _, overflow := sum.v.AddOverflow(&a.v, &b.v); overflow || sum.v.BitLen() > MaxBits {
		return Amount{}, ErrOverflow
	}
	return sum, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	if a.v.Lt(&b.v) {
		return Amount{}, ErrUnderflow
	}
	var diff Amount
	diff.v.Sub(&a.v, &b.v)
	return diff, nil
}

// MulDivCeil returns ceil(a * num / den).
func (a Amount) MulDivCeil(num, den uint64) (Amount, error) {
	quotient, remainder, err := a.mulDiv(num, den)
	if err != nil {
		return Amount{}, err
	}
	if !remainder.IsZero() {
		quotient.AddUint64(quotient, 1)
	}
	return bounded(quotient)
}

// MulDivFloor returns floor(a * num / den).
func (a Amount) MulDivFloor(num, den uint64) (Amount, error) {
	quotient, _, err := a.mulDiv(num, den)
	if err != nil {
		return Amount{}, err
	}
	return bounded(quotient)
}

// a < 2^128 and num < 2^64, so the product always fits in 256 bits.
func (a Amount) mulDiv(num, den uint64) (*uint256.Int, *uint256.Int, error) {
	if den == 0 {
		return nil, nil, ErrDivideByZero
	}
	product := new(uint256.Int).Mul(&a.v, uint256.NewInt(num))
	quotient, remainder := new(uint256.Int).DivMod(product, uint256.NewInt(den), new(uint256.Int))
	return quotient, remainder, nil
}

func bounded(value *uint256.Int) (Amount, error) {
	if value.BitLen() > MaxBits {
		return Amount{}, ErrOverflow
	}
	return Amount{v: *value}, nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both "123" and 123.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case []byte:
		return a.scanString(string(v))
	case string:
		return a.scanString(v)
	case int64:
		if v < 0 {
			return ErrUnderflow
		}
		*a = NewAmount(uint64(v))
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T into Amount", src)
	}
}

func (a *Amount) scanString(raw string) error {
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
