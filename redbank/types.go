package redbank

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"redbank/decimal"
)

// Market captures the accounting state for a single listed asset. Scaled
// amounts are denominated against the interest indexes so that a constant
// stored amount represents a growing underlying amount over time.
type Market struct {
	// Index is the stable ordinal used for bitmask addressing, assigned at
	// creation and immutable afterwards.
	Index uint32
	// Asset is the underlying asset this market tracks.
	Asset Asset
	// ShareToken is the ownership token contract representing pool shares.
	// Zero until the deployment callback registers it.
	ShareToken common.Address
	// LiquidityIndex and BorrowIndex are the monotonically non-decreasing
	// interest accumulators, both starting at 1.
	LiquidityIndex decimal.Decimal
	BorrowIndex    decimal.Decimal
	// BorrowRate and LiquidityRate are the per-annum rates currently in force.
	BorrowRate    decimal.Decimal
	LiquidityRate decimal.Decimal
	// MaxLoanToValue bounds new borrows against collateral value.
	MaxLoanToValue decimal.Decimal
	// MaintenanceMargin weights collateral in health factor computations.
	// Always greater than MaxLoanToValue.
	MaintenanceMargin decimal.Decimal
	// LiquidationBonus is the collateral discount granted to liquidators.
	LiquidationBonus decimal.Decimal
	// ReserveFactor is the protocol's share of accrued borrow interest.
	ReserveFactor decimal.Decimal
	// DebtTotalScaled sums every user's scaled debt in this market.
	DebtTotalScaled *big.Int
	// IndexesLastUpdated is the timestamp of the most recent accrual.
	IndexesLastUpdated uint64
	// Active false blocks every operation regardless of the finer gates.
	Active         bool
	DepositEnabled bool
	BorrowEnabled  bool
	// InterestRateStrategy selects how rates react to utilization.
	InterestRateStrategy InterestRateStrategy
}

// AllowDeposit reports whether deposits are currently accepted.
func (m *Market) AllowDeposit() bool { return m.Active && m.DepositEnabled }

// AllowBorrow reports whether new borrows are currently accepted.
func (m *Market) AllowBorrow() bool { return m.Active && m.BorrowEnabled }

// AllowWithdraw reports whether withdrawals are currently accepted.
func (m *Market) AllowWithdraw() bool { return m.Active }

// AllowRepay reports whether repayments are currently accepted.
func (m *Market) AllowRepay() bool { return m.Active }

// AllowLiquidate reports whether the market may participate in liquidations.
func (m *Market) AllowLiquidate() bool { return m.Active }

func (m *Market) ensureDefaults() {
	if m.DebtTotalScaled == nil {
		m.DebtTotalScaled = new(big.Int)
	}
}

// Clone returns a deep copy so callers can mutate freely before persisting.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := *m
	if m.DebtTotalScaled != nil {
		clone.DebtTotalScaled = new(big.Int).Set(m.DebtTotalScaled)
	}
	clone.InterestRateStrategy = m.InterestRateStrategy.Clone()
	return &clone
}

// User tracks which markets an account participates in. Bit i of each mask is
// set iff the account has a nonzero collateral or debt position in the market
// with ordinal i. A missing record reads as all-zero masks.
type User struct {
	CollateralAssets uint256.Int
	BorrowedAssets   uint256.Int
}

// IsBorrowingAny reports whether the account has any open debt position.
func (u *User) IsBorrowingAny() bool { return !u.BorrowedAssets.IsZero() }

// IsEmpty reports whether both masks are clear, meaning the record can be
// dropped from state.
func (u *User) IsEmpty() bool {
	return u.CollateralAssets.IsZero() && u.BorrowedAssets.IsZero()
}

// Clone returns a copy of the user record.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// Debt records one account's scaled debt in one asset. The record means "no
// debt" only once AmountScaled reaches exactly zero; the uncollateralized flag
// may outlive a repaid balance.
type Debt struct {
	AmountScaled     *big.Int
	Uncollateralized bool
}

func (d *Debt) ensureDefaults() {
	if d.AmountScaled == nil {
		d.AmountScaled = new(big.Int)
	}
}

// Clone returns a deep copy of the debt record.
func (d *Debt) Clone() *Debt {
	if d == nil {
		return nil
	}
	clone := *d
	if d.AmountScaled != nil {
		clone.AmountScaled = new(big.Int).Set(d.AmountScaled)
	}
	return &clone
}

// GlobalState holds the ledger-wide market counter.
type GlobalState struct {
	MarketCount uint32
}

// Config holds the owner-controlled ledger configuration.
type Config struct {
	Owner common.Address
	// CloseFactor caps the fraction of a position's debt a single liquidation
	// call may repay.
	CloseFactor decimal.Decimal
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.CloseFactor.GT(decimal.One()) {
		return ErrParamRange
	}
	return nil
}

// bitmaskWidth bounds market ordinals to the width of the position masks.
const bitmaskWidth = 256

func getBit(mask *uint256.Int, index uint32) (bool, error) {
	if index >= bitmaskWidth {
		return false, ErrMarketIndexOutOfRange
	}
	probe := new(uint256.Int).Lsh(uint256.NewInt(1), uint(index))
	return !probe.And(probe, mask).IsZero(), nil
}

func setBit(mask *uint256.Int, index uint32) error {
	if index >= bitmaskWidth {
		return ErrMarketIndexOutOfRange
	}
	bit := new(uint256.Int).Lsh(uint256.NewInt(1), uint(index))
	mask.Or(mask, bit)
	return nil
}

func clearBit(mask *uint256.Int, index uint32) error {
	if index >= bitmaskWidth {
		return ErrMarketIndexOutOfRange
	}
	bit := new(uint256.Int).Lsh(uint256.NewInt(1), uint(index))
	mask.And(mask, bit.Not(bit))
	return nil
}
