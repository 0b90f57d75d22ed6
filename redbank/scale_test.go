package redbank

import (
	"math/big"
	"testing"

	"redbank/decimal"
)

func TestScaledAmountRounding(t *testing.T) {
	amount := new(big.Int)
	amount.SetString("100000000000", 10)
	index := decimal.MustParse("3")

	liquidity, err := scaleLiquidity(amount, index)
	if err != nil {
		t.Fatalf("scale liquidity: %v", err)
	}
	wantLiquidity, _ := new(big.Int).SetString("33333333333333333", 10)
	if liquidity.Cmp(wantLiquidity) != 0 {
		t.Fatalf("scaled liquidity: got %s want %s", liquidity, wantLiquidity)
	}

	debt, err := scaleDebt(amount, index)
	if err != nil {
		t.Fatalf("scale debt: %v", err)
	}
	wantDebt, _ := new(big.Int).SetString("33333333333333334", 10)
	if debt.Cmp(wantDebt) != 0 {
		t.Fatalf("scaled debt: got %s want %s", debt, wantDebt)
	}
}

func TestUnderlyingAmountRounding(t *testing.T) {
	index := decimal.MustParse("3")

	scaledLiquidity, _ := new(big.Int).SetString("33333333333333333", 10)
	liquidity, err := descaleLiquidity(scaledLiquidity, index)
	if err != nil {
		t.Fatalf("descale liquidity: %v", err)
	}
	wantLiquidity, _ := new(big.Int).SetString("99999999999", 10)
	if liquidity.Cmp(wantLiquidity) != 0 {
		t.Fatalf("underlying liquidity: got %s want %s", liquidity, wantLiquidity)
	}

	scaledDebt, _ := new(big.Int).SetString("33333333333333334", 10)
	debt, err := descaleDebt(scaledDebt, index)
	if err != nil {
		t.Fatalf("descale debt: %v", err)
	}
	wantDebt, _ := new(big.Int).SetString("100000000001", 10)
	if debt.Cmp(wantDebt) != 0 {
		t.Fatalf("underlying debt: got %s want %s", debt, wantDebt)
	}
}

func TestScaleRejectsZeroIndex(t *testing.T) {
	if _, err := scaleLiquidity(big.NewInt(1), decimal.Zero()); err != ErrInvalidLiquidityIndex {
		t.Fatalf("expected ErrInvalidLiquidityIndex, got %v", err)
	}
	if _, err := descaleDebt(big.NewInt(1), decimal.Zero()); err != ErrInvalidLiquidityIndex {
		t.Fatalf("expected ErrInvalidLiquidityIndex, got %v", err)
	}
}

func TestApplyLinearInterestHalfYear(t *testing.T) {
	index := decimal.One()
	rate := decimal.MustParse("0.2")
	got := applyLinearInterest(index, rate, SecondsPerYear/2)
	if got.String() != "1.1" {
		t.Fatalf("half year at 20%%: got %s", got)
	}
}

func TestApplyLinearInterestNoElapsed(t *testing.T) {
	index := decimal.MustParse("1.5")
	if got := applyLinearInterest(index, decimal.MustParse("0.2"), 0); got.Cmp(index) != 0 {
		t.Fatalf("zero elapsed should not move index: %s", got)
	}
}

func TestUpdatedIndexRejectsStaleTimestamp(t *testing.T) {
	market := &Market{
		LiquidityIndex:     decimal.One(),
		BorrowIndex:        decimal.One(),
		IndexesLastUpdated: 100,
	}
	if _, err := updatedLiquidityIndex(market, 99); err != ErrStaleTimestamp {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}
	if _, err := updatedBorrowIndex(market, 99); err != ErrStaleTimestamp {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}
}

// Round-tripping underlying -> scaled -> underlying must never pay out more
// than deposited for liquidity, and never collect less than owed for debt.
func TestRoundingFavoursPool(t *testing.T) {
	index := decimal.MustParse("1.234567891234567891")
	for _, amount := range []int64{1, 7, 999, 123456789} {
		in := big.NewInt(amount)

		scaled, err := scaleLiquidity(in, index)
		if err != nil {
			t.Fatalf("scale: %v", err)
		}
		out, err := descaleLiquidity(scaled, index)
		if err != nil {
			t.Fatalf("descale: %v", err)
		}
		if out.Cmp(in) > 0 {
			t.Fatalf("liquidity round trip inflated %d -> %s", amount, out)
		}

		scaledDebt, err := scaleDebt(in, index)
		if err != nil {
			t.Fatalf("scale debt: %v", err)
		}
		owed, err := descaleDebt(scaledDebt, index)
		if err != nil {
			t.Fatalf("descale debt: %v", err)
		}
		if owed.Cmp(in) < 0 {
			t.Fatalf("debt round trip deflated %d -> %s", amount, owed)
		}
	}
}
