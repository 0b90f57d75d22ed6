package redbank

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"redbank/decimal"
)

// Event types emitted by the ledger.
const (
	TypeInterestsUpdated          = "redbank.interests.updated"
	TypeCollateralPositionChanged = "redbank.collateral.changed"
	TypeDebtPositionChanged       = "redbank.debt.changed"
	TypeMarketCreated             = "redbank.market.created"
	TypeMarketUpdated             = "redbank.market.updated"
)

// Event is a structured record of a state change, consumed by indexers.
type Event interface {
	EventType() string
	Attributes() map[string]string
}

// InterestsUpdated is emitted every time a market's indexes and rates are
// refreshed.
type InterestsUpdated struct {
	Asset          Asset
	LiquidityIndex decimal.Decimal
	BorrowIndex    decimal.Decimal
	LiquidityRate  decimal.Decimal
	BorrowRate     decimal.Decimal
}

func (InterestsUpdated) EventType() string { return TypeInterestsUpdated }

func (e InterestsUpdated) Attributes() map[string]string {
	return map[string]string{
		"asset":           e.Asset.Label(),
		"liquidity_index": e.LiquidityIndex.String(),
		"borrow_index":    e.BorrowIndex.String(),
		"liquidity_rate":  e.LiquidityRate.String(),
		"borrow_rate":     e.BorrowRate.String(),
	}
}

// CollateralPositionChanged is emitted when an account's collateral flag for a
// market flips on or off.
type CollateralPositionChanged struct {
	Asset   Asset
	Account common.Address
	Enabled bool
}

func (CollateralPositionChanged) EventType() string { return TypeCollateralPositionChanged }

func (e CollateralPositionChanged) Attributes() map[string]string {
	enabled := "false"
	if e.Enabled {
		enabled = "true"
	}
	return map[string]string{
		"asset":   e.Asset.Label(),
		"account": e.Account.Hex(),
		"enabled": enabled,
	}
}

// DebtPositionChanged is emitted when an account's scaled debt in a market
// changes.
type DebtPositionChanged struct {
	Asset        Asset
	Account      common.Address
	AmountScaled *big.Int
}

func (DebtPositionChanged) EventType() string { return TypeDebtPositionChanged }

func (e DebtPositionChanged) Attributes() map[string]string {
	amount := "0"
	if e.AmountScaled != nil {
		amount = e.AmountScaled.String()
	}
	return map[string]string{
		"asset":         e.Asset.Label(),
		"account":       e.Account.Hex(),
		"amount_scaled": amount,
	}
}

// MarketCreated is emitted once a market's share token deployment completes.
type MarketCreated struct {
	Asset      Asset
	Index      uint32
	ShareToken common.Address
}

func (MarketCreated) EventType() string { return TypeMarketCreated }

func (e MarketCreated) Attributes() map[string]string {
	return map[string]string{
		"asset":       e.Asset.Label(),
		"share_token": e.ShareToken.Hex(),
	}
}

// MarketUpdated is emitted when market parameters or flags change.
type MarketUpdated struct {
	Asset Asset
}

func (MarketUpdated) EventType() string { return TypeMarketUpdated }

func (e MarketUpdated) Attributes() map[string]string {
	return map[string]string{"asset": e.Asset.Label()}
}
