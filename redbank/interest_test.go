package redbank

import (
	"testing"

	"redbank/decimal"
)

func linearStrategy() *InterestRateStrategy {
	return &InterestRateStrategy{
		Linear: &LinearInterestRate{
			OptimalUtilization: decimal.MustParse("0.8"),
			Base:               decimal.MustParse("0.02"),
			Slope1:             decimal.MustParse("0.08"),
			Slope2:             decimal.MustParse("0.5"),
		},
	}
}

func TestLinearBorrowRateBelowKink(t *testing.T) {
	s := linearStrategy()
	// At half of optimal utilization: base + slope1 * 0.5 = 0.06.
	borrow, _, err := s.Rates(decimal.MustParse("0.4"), decimal.Zero(), decimal.Zero())
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if borrow.String() != "0.06" {
		t.Fatalf("borrow rate: got %s", borrow)
	}
}

func TestLinearBorrowRateAtKink(t *testing.T) {
	s := linearStrategy()
	borrow, _, err := s.Rates(decimal.MustParse("0.8"), decimal.Zero(), decimal.Zero())
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if borrow.String() != "0.1" {
		t.Fatalf("borrow rate at kink: got %s", borrow)
	}
}

func TestLinearBorrowRateAboveKink(t *testing.T) {
	s := linearStrategy()
	// At 0.9: base + slope1 + slope2 * (0.9-0.8)/(1-0.8) = 0.1 + 0.25 = 0.35.
	borrow, _, err := s.Rates(decimal.MustParse("0.9"), decimal.Zero(), decimal.Zero())
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if borrow.String() != "0.35" {
		t.Fatalf("borrow rate above kink: got %s", borrow)
	}
}

func TestLiquidityRateNetsReserveFactor(t *testing.T) {
	s := linearStrategy()
	// borrow 0.06 * utilization 0.4 * (1 - 0.25) = 0.018.
	_, liquidity, err := s.Rates(decimal.MustParse("0.4"), decimal.Zero(), decimal.MustParse("0.25"))
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if liquidity.String() != "0.018" {
		t.Fatalf("liquidity rate: got %s", liquidity)
	}
}

func dynamicStrategy() *InterestRateStrategy {
	return &InterestRateStrategy{
		Dynamic: &DynamicInterestRate{
			MinBorrowRate:           decimal.MustParse("0.05"),
			MaxBorrowRate:           decimal.MustParse("0.9"),
			OptimalUtilization:      decimal.MustParse("0.6"),
			Kp1:                     decimal.MustParse("0.2"),
			Kp2:                     decimal.MustParse("0.4"),
			KpAugmentationThreshold: decimal.MustParse("0.25"),
		},
	}
}

func TestDynamicRateRaisesOnHighUtilization(t *testing.T) {
	s := dynamicStrategy()
	current := decimal.MustParse("0.1")
	// error = 0.7 - 0.6 = 0.1 within threshold: rate += 0.2 * 0.1 = 0.02.
	borrow, _, err := s.Rates(decimal.MustParse("0.7"), current, decimal.Zero())
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if borrow.String() != "0.12" {
		t.Fatalf("dynamic borrow rate: got %s", borrow)
	}
}

func TestDynamicRateLowersOnIdleLiquidity(t *testing.T) {
	s := dynamicStrategy()
	current := decimal.MustParse("0.2")
	// error = 0.6 - 0.3 = 0.3 beyond threshold: rate -= 0.4 * 0.3 = 0.12.
	borrow, _, err := s.Rates(decimal.MustParse("0.3"), current, decimal.Zero())
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if borrow.String() != "0.08" {
		t.Fatalf("dynamic borrow rate: got %s", borrow)
	}
}

func TestDynamicRateClampsToBounds(t *testing.T) {
	s := dynamicStrategy()
	// A huge downward correction clamps at the floor.
	borrow, _, err := s.Rates(decimal.Zero(), decimal.MustParse("0.06"), decimal.Zero())
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if borrow.Cmp(decimal.MustParse("0.05")) != 0 {
		t.Fatalf("expected clamp to min, got %s", borrow)
	}
	// A huge upward correction clamps at the ceiling.
	s.Dynamic.Kp2 = decimal.MustParse("10")
	borrow, _, err = s.Rates(decimal.One(), decimal.MustParse("0.8"), decimal.Zero())
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if borrow.Cmp(decimal.MustParse("0.9")) != 0 {
		t.Fatalf("expected clamp to max, got %s", borrow)
	}
}

func TestStrategyValidateRequiresExactlyOneVariant(t *testing.T) {
	none := &InterestRateStrategy{}
	if err := none.Validate(); err != ErrStrategyVariant {
		t.Fatalf("expected ErrStrategyVariant for empty, got %v", err)
	}
	both := &InterestRateStrategy{
		Linear:  &LinearInterestRate{OptimalUtilization: decimal.One()},
		Dynamic: dynamicStrategy().Dynamic,
	}
	if err := both.Validate(); err != ErrStrategyVariant {
		t.Fatalf("expected ErrStrategyVariant for both, got %v", err)
	}
}

func TestDynamicValidateRejectsInvertedBounds(t *testing.T) {
	s := &InterestRateStrategy{
		Dynamic: &DynamicInterestRate{
			MinBorrowRate:      decimal.MustParse("0.9"),
			MaxBorrowRate:      decimal.MustParse("0.1"),
			OptimalUtilization: decimal.MustParse("0.5"),
		},
	}
	if err := s.Validate(); err != ErrRateOrder {
		t.Fatalf("expected ErrRateOrder, got %v", err)
	}
}
