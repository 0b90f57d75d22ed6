package redbank

import (
	"math/big"

	"redbank/decimal"
)

const (
	// ScalingFactor multiplies underlying amounts before dividing by the
	// interest index, preserving precision for small positions.
	ScalingFactor = 1_000_000
	// SecondsPerYear converts per-annum rates into per-second accrual.
	SecondsPerYear = 31_536_000
)

// ScalingOperation selects the rounding direction when converting between
// scaled and underlying amounts. Amounts the protocol owes truncate; amounts
// owed to the protocol round up, so rounding dust always favours the pool.
type ScalingOperation uint8

const (
	// Truncate rounds towards zero.
	Truncate ScalingOperation = iota
	// Ceil rounds away from zero.
	Ceil
)

var scalingFactorInt = big.NewInt(ScalingFactor)

// underlyingUnit is the combined divisor for descaling: the decimal
// denominator times the scaling factor.
var underlyingUnit = new(big.Int).Mul(
	new(big.Int).Exp(big.NewInt(10), big.NewInt(decimal.FractionalDigits), nil),
	scalingFactorInt,
)

// computeScaledAmount converts an underlying amount into its scaled form:
// amount * ScalingFactor / index, rounded per op.
func computeScaledAmount(amount *big.Int, index decimal.Decimal, op ScalingOperation) (*big.Int, error) {
	if index.IsZero() {
		return nil, ErrInvalidLiquidityIndex
	}
	if amount == nil || amount.Sign() == 0 {
		return new(big.Int), nil
	}
	boosted := new(big.Int).Mul(amount, scalingFactorInt)
	if op == Ceil {
		return index.DivIntCeil(boosted)
	}
	return index.DivIntTrunc(boosted)
}

// computeUnderlyingAmount converts a scaled amount back into underlying form:
// scaled * index / ScalingFactor, rounded per op in a single division so no
// intermediate rounding compounds.
func computeUnderlyingAmount(scaled *big.Int, index decimal.Decimal, op ScalingOperation) (*big.Int, error) {
	if index.IsZero() {
		return nil, ErrInvalidLiquidityIndex
	}
	if scaled == nil || scaled.Sign() == 0 {
		return new(big.Int), nil
	}
	n := new(big.Int).Mul(scaled, index.Numerator())
	q, r := new(big.Int).QuoRem(n, underlyingUnit, new(big.Int))
	if op == Ceil && r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q, nil
}

// Liquidity conversions truncate: minted shares and withdrawn underlying are
// amounts the protocol owes.
func scaleLiquidity(amount *big.Int, index decimal.Decimal) (*big.Int, error) {
	return computeScaledAmount(amount, index, Truncate)
}

func descaleLiquidity(scaled *big.Int, index decimal.Decimal) (*big.Int, error) {
	return computeUnderlyingAmount(scaled, index, Truncate)
}

// Debt conversions round up: debt is an amount owed to the protocol.
func scaleDebt(amount *big.Int, index decimal.Decimal) (*big.Int, error) {
	return computeScaledAmount(amount, index, Ceil)
}

func descaleDebt(scaled *big.Int, index decimal.Decimal) (*big.Int, error) {
	return computeUnderlyingAmount(scaled, index, Ceil)
}

// applyLinearInterest advances an index by simple interest over the elapsed
// seconds: index * (1 + rate * elapsed / SecondsPerYear).
func applyLinearInterest(index, rate decimal.Decimal, elapsed uint64) decimal.Decimal {
	if elapsed == 0 || rate.IsZero() {
		return index
	}
	fraction := decimal.MustRatio(elapsed, SecondsPerYear)
	return index.Mul(decimal.One().Add(rate.Mul(fraction)))
}

// updatedLiquidityIndex projects the liquidity index to ts without mutating
// the market. Timestamps before the last accrual are rejected.
func updatedLiquidityIndex(market *Market, ts uint64) (decimal.Decimal, error) {
	if ts < market.IndexesLastUpdated {
		return decimal.Decimal{}, ErrStaleTimestamp
	}
	return applyLinearInterest(market.LiquidityIndex, market.LiquidityRate, ts-market.IndexesLastUpdated), nil
}

// updatedBorrowIndex projects the borrow index to ts without mutating the
// market.
func updatedBorrowIndex(market *Market, ts uint64) (decimal.Decimal, error) {
	if ts < market.IndexesLastUpdated {
		return decimal.Decimal{}, ErrStaleTimestamp
	}
	return applyLinearInterest(market.BorrowIndex, market.BorrowRate, ts-market.IndexesLastUpdated), nil
}
