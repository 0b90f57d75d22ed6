// Package decimal implements the deterministic fixed-point arithmetic used by
// the ledger. A Decimal is an unsigned value with 18 fractional digits backed
// by a big integer numerator over an implicit 10^18 denominator. All
// operations are checked: subtraction fails instead of going negative and
// division by zero is rejected, so accounting bugs surface as errors rather
// than silently wrapped values.
package decimal

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

// FractionalDigits is the number of decimal places carried by every Decimal.
const FractionalDigits = 18

var (
	// ErrNegativeResult is returned when a checked subtraction would produce
	// a value below zero.
	ErrNegativeResult = errors.New("decimal: result would be negative")
	// ErrDivisionByZero is returned when dividing by a zero decimal.
	ErrDivisionByZero = errors.New("decimal: division by zero")
	// ErrInvalidInput is returned when parsing malformed or negative input.
	ErrInvalidInput = errors.New("decimal: invalid input")
)

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(FractionalDigits), nil)

// Decimal is an immutable unsigned fixed-point number. The zero value is 0.
type Decimal struct {
	n *big.Int
}

func (d Decimal) num() *big.Int {
	if d.n == nil {
		return new(big.Int)
	}
	return d.n
}

// Zero returns the decimal 0.
func Zero() Decimal { return Decimal{} }

// One returns the decimal 1.
func One() Decimal { return Decimal{n: new(big.Int).Set(unit)} }

// FromInt converts a non-negative integer amount into a decimal.
func FromInt(v uint64) Decimal {
	return Decimal{n: new(big.Int).Mul(new(big.Int).SetUint64(v), unit)}
}

// FromBigInt converts a non-negative big integer into a decimal. It returns
// an error for negative inputs.
func FromBigInt(v *big.Int) (Decimal, error) {
	if v == nil {
		return Zero(), nil
	}
	if v.Sign() < 0 {
		return Decimal{}, ErrInvalidInput
	}
	return Decimal{n: new(big.Int).Mul(v, unit)}, nil
}

// FromRatio returns num/den as a decimal, truncating beyond 18 places.
func FromRatio(num, den uint64) (Decimal, error) {
	if den == 0 {
		return Decimal{}, ErrDivisionByZero
	}
	n := new(big.Int).Mul(new(big.Int).SetUint64(num), unit)
	n.Quo(n, new(big.Int).SetUint64(den))
	return Decimal{n: n}, nil
}

// FromBigRatio returns num/den as a decimal, truncating beyond 18 places.
// Negative inputs are rejected.
func FromBigRatio(num, den *big.Int) (Decimal, error) {
	if den == nil || den.Sign() == 0 {
		return Decimal{}, ErrDivisionByZero
	}
	if num == nil {
		return Zero(), nil
	}
	if num.Sign() < 0 || den.Sign() < 0 {
		return Decimal{}, ErrInvalidInput
	}
	n := new(big.Int).Mul(num, unit)
	n.Quo(n, den)
	return Decimal{n: n}, nil
}

// MustRatio is FromRatio for compile-time-known constants.
func MustRatio(num, den uint64) Decimal {
	d, err := FromRatio(num, den)
	if err != nil {
		panic(err)
	}
	return d
}

// FromNumerator wraps a raw 10^-18 numerator. Negative inputs are rejected.
func FromNumerator(n *big.Int) (Decimal, error) {
	if n == nil {
		return Zero(), nil
	}
	if n.Sign() < 0 {
		return Decimal{}, ErrInvalidInput
	}
	return Decimal{n: new(big.Int).Set(n)}, nil
}

// Numerator returns a copy of the raw 10^-18 numerator.
func (d Decimal) Numerator() *big.Int { return new(big.Int).Set(d.num()) }

// Float64 returns the nearest float64. Only for telemetry; never feed the
// result back into ledger arithmetic.
func (d Decimal) Float64() float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(d.num()),
		new(big.Float).SetInt(unit),
	).Float64()
	return f
}

// IsZero reports whether the decimal equals 0.
func (d Decimal) IsZero() bool { return d.num().Sign() == 0 }

// Cmp compares d against other, returning -1, 0 or 1.
func (d Decimal) Cmp(other Decimal) int { return d.num().Cmp(other.num()) }

// LT reports d < other.
func (d Decimal) LT(other Decimal) bool { return d.Cmp(other) < 0 }

// GT reports d > other.
func (d Decimal) GT(other Decimal) bool { return d.Cmp(other) > 0 }

// LTE reports d <= other.
func (d Decimal) LTE(other Decimal) bool { return d.Cmp(other) <= 0 }

// GTE reports d >= other.
func (d Decimal) GTE(other Decimal) bool { return d.Cmp(other) >= 0 }

// Add returns d + other.
func (d Decimal) Add(other Decimal) Decimal {
	return Decimal{n: new(big.Int).Add(d.num(), other.num())}
}

// Sub returns d - other, failing when the result would be negative.
func (d Decimal) Sub(other Decimal) (Decimal, error) {
	n := new(big.Int).Sub(d.num(), other.num())
	if n.Sign() < 0 {
		return Decimal{}, ErrNegativeResult
	}
	return Decimal{n: n}, nil
}

// Mul returns d * other truncated to 18 fractional digits.
func (d Decimal) Mul(other Decimal) Decimal {
	n := new(big.Int).Mul(d.num(), other.num())
	n.Quo(n, unit)
	return Decimal{n: n}
}

// Div returns d / other truncated to 18 fractional digits.
func (d Decimal) Div(other Decimal) (Decimal, error) {
	if other.IsZero() {
		return Decimal{}, ErrDivisionByZero
	}
	n := new(big.Int).Mul(d.num(), unit)
	n.Quo(n, other.num())
	return Decimal{n: n}, nil
}

// MulInt multiplies an integer amount by the decimal, truncating the result.
// This is the rounding the protocol applies to amounts it owes.
func (d Decimal) MulInt(amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() == 0 || d.IsZero() {
		return new(big.Int)
	}
	n := new(big.Int).Mul(amount, d.num())
	return n.Quo(n, unit)
}

// DivIntTrunc divides an integer amount by the decimal, truncating the result.
func (d Decimal) DivIntTrunc(amount *big.Int) (*big.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	if amount == nil || amount.Sign() == 0 {
		return new(big.Int), nil
	}
	n := new(big.Int).Mul(amount, unit)
	return n.Quo(n, d.num()), nil
}

// DivIntCeil divides an integer amount by the decimal, rounding up. This is
// the rounding the protocol applies to amounts it is owed.
func (d Decimal) DivIntCeil(amount *big.Int) (*big.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	if amount == nil || amount.Sign() == 0 {
		return new(big.Int), nil
	}
	n := new(big.Int).Mul(amount, unit)
	q, r := new(big.Int).QuoRem(n, d.num(), new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q, nil
}

// DivIntByIntCeil divides two integers rounding up, failing on a zero divisor.
func DivIntByIntCeil(amount, divisor *big.Int) (*big.Int, error) {
	if divisor == nil || divisor.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if amount == nil || amount.Sign() == 0 {
		return new(big.Int), nil
	}
	q, r := new(big.Int).QuoRem(amount, divisor, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q, nil
}

// Parse reads a non-negative decimal string such as "1.25" or "0.004".
func Parse(s string) (Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "+") {
		return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidInput, s)
	}
	whole := trimmed
	frac := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole = trimmed[:idx]
		frac = trimmed[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > FractionalDigits {
		return Decimal{}, fmt.Errorf("%w: %q exceeds %d fractional digits", ErrInvalidInput, s, FractionalDigits)
	}
	wholeInt, ok := new(big.Int).SetString(whole, 10)
	if !ok || wholeInt.Sign() < 0 {
		return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidInput, s)
	}
	n := new(big.Int).Mul(wholeInt, unit)
	if frac != "" {
		fracInt, ok := new(big.Int).SetString(frac, 10)
		if !ok || fracInt.Sign() < 0 {
			return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidInput, s)
		}
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(FractionalDigits-len(frac))), nil)
		n.Add(n, fracInt.Mul(fracInt, scale))
	}
	return Decimal{n: n}, nil
}

// MustParse is Parse for compile-time-known constants.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders the decimal with trailing fractional zeros trimmed.
func (d Decimal) String() string {
	q, r := new(big.Int).QuoRem(d.num(), unit, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := fmt.Sprintf("%0*s", FractionalDigits, r.String())
	frac = strings.TrimRight(frac, "0")
	return q.String() + "." + frac
}

// MarshalJSON encodes the decimal as a JSON string.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a JSON string produced by MarshalJSON.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalText lets TOML and YAML decoders read decimals from strings.
func (d *Decimal) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalText renders the decimal for TOML and YAML encoders.
func (d Decimal) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// EncodeRLP stores the decimal as its raw numerator.
func (d Decimal) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, d.num())
}

// DecodeRLP restores a decimal stored by EncodeRLP.
func (d *Decimal) DecodeRLP(s *rlp.Stream) error {
	n := new(big.Int)
	if err := s.Decode(n); err != nil {
		return err
	}
	d.n = n
	return nil
}
