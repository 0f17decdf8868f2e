// Package types defines the numeric types the ledger runs on: Money for
// costs and values, Quantity for stock amounts.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an arbitrary-precision monetary amount. Arithmetic never loses
// precision; rounding happens only at reporting boundaries.
type Money = decimal.Decimal

// NewMoney converts a float. Prefer NewMoneyFromString when the value
// originates as text.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// NewMoneyFromString parses a decimal string.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney is NewMoneyFromString for fixtures. Panics on bad input.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ZeroMoney is the zero amount.
func ZeroMoney() Money {
	return decimal.Zero
}

// RoundMoney rounds to 2 places. Applied when a value is persisted to a
// summary row or leaves through the API, never mid-calculation.
func RoundMoney(m Money) Money {
	return m.Round(2)
}

// Quantity is a stock amount as a scaled integer, 4 fractional digits.
// It maps onto BIGINT columns and NUMERIC(15,4) semantics, and its JSON
// form is a plain number.
type Quantity int64

// QuantityScale is the fixed-point denominator.
const QuantityScale int64 = 10_000

// NewQuantityFromInt builds a whole-unit quantity.
func NewQuantityFromInt(v int64) Quantity { return Quantity(v * QuantityScale) }

// NewQuantityFromInt64Scaled wraps an already-scaled value, as read from
// the database.
func NewQuantityFromInt64Scaled(v int64) Quantity { return Quantity(v) }

// NewQuantityFromFloat64 rounds v to the nearest representable quantity.
func NewQuantityFromFloat64(v float64) Quantity {
	return Quantity(math.Round(v * float64(QuantityScale)))
}

// Int64Scaled is the raw scaled value for persistence.
func (q Quantity) Int64Scaled() int64 { return int64(q) }

// Float64 is lossy; use Decimal for arithmetic.
func (q Quantity) Float64() float64 { return float64(q) / float64(QuantityScale) }

// Decimal lifts the quantity into decimal space for cost math.
func (q Quantity) Decimal() decimal.Decimal {
	return decimal.New(int64(q), -4)
}

func (q Quantity) IsZero() bool     { return q == 0 }
func (q Quantity) IsPositive() bool { return q > 0 }
func (q Quantity) IsNegative() bool { return q < 0 }
func (q Quantity) Neg() Quantity    { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// Min returns the smaller of q and other.
func (q Quantity) Min(other Quantity) Quantity {
	if q < other {
		return q
	}
	return other
}

// String formats with exactly 4 fractional digits.
func (q Quantity) String() string {
	v := q
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%04d", sign, int64(v)/QuantityScale, int64(v)%QuantityScale)
}

// MarshalJSON emits a JSON number, not a string.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts a number or a quoted decimal string. null leaves
// the quantity at zero. Fractional digits past the fourth are truncated.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	token := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &token); err != nil {
			return err
		}
	}

	parsed, err := parseQuantity(token)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

func parseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}

	// Exponent form falls back to float parsing.
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parse quantity: %w", err)
		}
		return NewQuantityFromFloat64(f), nil
	}

	sign := int64(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign = -1
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity integer part: %w", err)
	}

	if len(frac) > 4 {
		frac = frac[:4]
	}
	frac += strings.Repeat("0", 4-len(frac))
	sub, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity fractional part: %w", err)
	}

	return Quantity(sign * (units*QuantityScale + sub)), nil
}
