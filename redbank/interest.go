package redbank

import "redbank/decimal"

// LinearInterestRate is the kinked borrow rate model: base rate plus a first
// slope up to the optimal utilization, with a steeper second slope above it.
type LinearInterestRate struct {
	OptimalUtilization decimal.Decimal
	Base               decimal.Decimal
	Slope1             decimal.Decimal
	Slope2             decimal.Decimal
}

// Validate checks the model's parameter invariants.
func (m *LinearInterestRate) Validate() error {
	if m.OptimalUtilization.GT(decimal.One()) {
		return ErrParamRange
	}
	return nil
}

func (m *LinearInterestRate) borrowRate(utilization decimal.Decimal) decimal.Decimal {
	if utilization.LTE(m.OptimalUtilization) {
		if m.OptimalUtilization.IsZero() {
			return m.Base.Add(m.Slope1)
		}
		ratio, err := utilization.Div(m.OptimalUtilization)
		if err != nil {
			return m.Base
		}
		return m.Base.Add(m.Slope1.Mul(ratio))
	}
	excess, err := utilization.Sub(m.OptimalUtilization)
	if err != nil {
		return m.Base.Add(m.Slope1)
	}
	denom, err := decimal.One().Sub(m.OptimalUtilization)
	if err != nil || denom.IsZero() {
		return m.Base.Add(m.Slope1).Add(m.Slope2)
	}
	ratio, err := excess.Div(denom)
	if err != nil {
		return m.Base.Add(m.Slope1)
	}
	return m.Base.Add(m.Slope1).Add(m.Slope2.Mul(ratio))
}

// Clone returns a copy of the model. Decimals are immutable so a shallow copy
// suffices.
func (m *LinearInterestRate) Clone() *LinearInterestRate {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// DynamicInterestRate is a proportional controller nudging the borrow rate
// towards a target utilization. The error term is the distance between the
// optimal and current utilization; rates move opposite to the sign so that
// excess utilization raises rates and idle liquidity lowers them.
type DynamicInterestRate struct {
	MinBorrowRate      decimal.Decimal
	MaxBorrowRate      decimal.Decimal
	OptimalUtilization decimal.Decimal
	// Kp1 applies while the error stays within KpAugmentationThreshold; Kp2
	// takes over beyond it for a sharper correction.
	Kp1                     decimal.Decimal
	Kp2                     decimal.Decimal
	KpAugmentationThreshold decimal.Decimal
}

// Validate checks the model's parameter invariants.
func (m *DynamicInterestRate) Validate() error {
	if m.OptimalUtilization.GT(decimal.One()) {
		return ErrParamRange
	}
	if m.MinBorrowRate.GTE(m.MaxBorrowRate) {
		return ErrRateOrder
	}
	return nil
}

func (m *DynamicInterestRate) borrowRate(utilization, current decimal.Decimal) decimal.Decimal {
	err := decimal.Zero()
	negative := false
	if m.OptimalUtilization.GTE(utilization) {
		err, _ = m.OptimalUtilization.Sub(utilization)
	} else {
		err, _ = utilization.Sub(m.OptimalUtilization)
		negative = true
	}

	kp := m.Kp1
	if err.GT(m.KpAugmentationThreshold) {
		kp = m.Kp2
	}
	adjustment := kp.Mul(err)

	next := decimal.Zero()
	if negative {
		next = current.Add(adjustment)
	} else {
		var subErr error
		next, subErr = current.Sub(adjustment)
		if subErr != nil {
			next = decimal.Zero()
		}
	}

	if next.LT(m.MinBorrowRate) {
		return m.MinBorrowRate
	}
	if next.GT(m.MaxBorrowRate) {
		return m.MaxBorrowRate
	}
	return next
}

// Clone returns a copy of the model.
func (m *DynamicInterestRate) Clone() *DynamicInterestRate {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// InterestRateStrategy selects exactly one rate model for a market.
type InterestRateStrategy struct {
	Linear  *LinearInterestRate  `rlp:"nil"`
	Dynamic *DynamicInterestRate `rlp:"nil"`
}

// Validate ensures exactly one variant is configured and that it is sound.
func (s *InterestRateStrategy) Validate() error {
	switch {
	case s.Linear != nil && s.Dynamic != nil:
		return ErrStrategyVariant
	case s.Linear != nil:
		return s.Linear.Validate()
	case s.Dynamic != nil:
		return s.Dynamic.Validate()
	default:
		return ErrStrategyVariant
	}
}

// Rates derives the new borrow and liquidity rates for the given utilization.
// The liquidity rate is the borrow rate earned on the utilized share of the
// pool, net of the reserve factor.
func (s *InterestRateStrategy) Rates(utilization, currentBorrowRate, reserveFactor decimal.Decimal) (borrow, liquidity decimal.Decimal, err error) {
	switch {
	case s.Linear != nil:
		borrow = s.Linear.borrowRate(utilization)
	case s.Dynamic != nil:
		borrow = s.Dynamic.borrowRate(utilization, currentBorrowRate)
	default:
		return decimal.Decimal{}, decimal.Decimal{}, ErrStrategyVariant
	}
	share, subErr := decimal.One().Sub(reserveFactor)
	if subErr != nil {
		return decimal.Decimal{}, decimal.Decimal{}, subErr
	}
	liquidity = borrow.Mul(utilization).Mul(share)
	return borrow, liquidity, nil
}

// Clone returns a deep copy of the strategy.
func (s InterestRateStrategy) Clone() InterestRateStrategy {
	return InterestRateStrategy{
		Linear:  s.Linear.Clone(),
		Dynamic: s.Dynamic.Clone(),
	}
}
