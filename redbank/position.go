package redbank

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"redbank/decimal"
)

// HealthStatus summarises a position's solvency. HealthFactor is meaningful
// only when Borrowing is true.
type HealthStatus struct {
	Borrowing    bool
	HealthFactor decimal.Decimal
}

// Healthy reports whether the position is above the liquidation threshold.
// Positions with no collateralized debt are always healthy.
func (h HealthStatus) Healthy() bool {
	return !h.Borrowing || h.HealthFactor.GTE(decimal.One())
}

// UserPosition aggregates an account's collateral and debt across all markets
// at a single timestamp, valued at current oracle prices.
type UserPosition struct {
	// TotalCollateralValue sums enabled collateral at oracle prices.
	TotalCollateralValue *big.Int
	// TotalDebtValue sums all debt including uncollateralized loans.
	TotalDebtValue *big.Int
	// TotalCollateralizedDebtValue excludes debt covered by an
	// uncollateralized credit line.
	TotalCollateralizedDebtValue *big.Int
	// MaxBorrowableValue weights collateral by each market's max
	// loan-to-value.
	MaxBorrowableValue *big.Int
	// WeightedMaintenanceMarginValue weights collateral by each market's
	// maintenance margin.
	WeightedMaintenanceMarginValue *big.Int

	prices map[string]*big.Int
}

// AssetPrice returns the oracle price sampled while building the position.
func (p *UserPosition) AssetPrice(asset Asset) (*big.Int, bool) {
	price, ok := p.prices[string(asset.Reference())]
	return price, ok
}

// HealthStatus derives the position's health factor: the maintenance-weighted
// collateral value over the collateralized debt value.
func (p *UserPosition) HealthStatus() (HealthStatus, error) {
	if p.TotalCollateralizedDebtValue.Sign() == 0 {
		return HealthStatus{Borrowing: false}, nil
	}
	hf, err := decimal.FromBigRatio(p.WeightedMaintenanceMarginValue, p.TotalCollateralizedDebtValue)
	if err != nil {
		return HealthStatus{}, err
	}
	return HealthStatus{Borrowing: true, HealthFactor: hf}, nil
}

// userPosition walks the user's position bitmasks and values every collateral
// and debt balance at ts. Markets without a set bit are never touched, so the
// cost scales with the user's footprint rather than the market count.
func (e *Engine) userPosition(st State, user *User, addr common.Address, ts uint64) (*UserPosition, error) {
	position := &UserPosition{
		TotalCollateralValue:           new(big.Int),
		TotalDebtValue:                 new(big.Int),
		TotalCollateralizedDebtValue:   new(big.Int),
		MaxBorrowableValue:             new(big.Int),
		WeightedMaintenanceMarginValue: new(big.Int),
		prices:                         make(map[string]*big.Int),
	}
	gs, err := st.GlobalState()
	if err != nil {
		return nil, err
	}
	if gs == nil {
		return position, nil
	}

	for index := uint32(0); index < gs.MarketCount; index++ {
		hasCollateral, err := getBit(&user.CollateralAssets, index)
		if err != nil {
			return nil, err
		}
		hasDebt, err := getBit(&user.BorrowedAssets, index)
		if err != nil {
			return nil, err
		}
		if !hasCollateral && !hasDebt {
			continue
		}

		ref, err := st.MarketRefByIndex(index)
		if err != nil {
			return nil, err
		}
		market, err := st.Market(ref)
		if err != nil {
			return nil, err
		}
		if market == nil {
			return nil, ErrMarketNotFound
		}

		price, err := e.oracle.PriceOf(market.Asset)
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", market.Asset.Label(), err)
		}
		position.prices[string(ref)] = price

		if hasCollateral {
			scaled, err := e.tokens.BalanceOf(market.ShareToken, addr)
			if err != nil {
				return nil, fmt.Errorf("share balance for %s: %w", market.Asset.Label(), err)
			}
			liquidityIndex, err := updatedLiquidityIndex(market, ts)
			if err != nil {
				return nil, err
			}
			underlying, err := descaleLiquidity(scaled, liquidityIndex)
			if err != nil {
				return nil, err
			}
			value := new(big.Int).Mul(underlying, price)
			position.TotalCollateralValue.Add(position.TotalCollateralValue, value)
			position.MaxBorrowableValue.Add(position.MaxBorrowableValue, market.MaxLoanToValue.MulInt(value))
			position.WeightedMaintenanceMarginValue.Add(position.WeightedMaintenanceMarginValue, market.MaintenanceMargin.MulInt(value))
		}

		if hasDebt {
			debt, err := st.Debt(ref, addr)
			if err != nil {
				return nil, err
			}
			if debt == nil {
				debt = &Debt{AmountScaled: new(big.Int)}
			}
			borrowIndex, err := updatedBorrowIndex(market, ts)
			if err != nil {
				return nil, err
			}
			underlying, err := descaleDebt(debt.AmountScaled, borrowIndex)
			if err != nil {
				return nil, err
			}
			value := new(big.Int).Mul(underlying, price)
			position.TotalDebtValue.Add(position.TotalDebtValue, value)
			if !debt.Uncollateralized {
				position.TotalCollateralizedDebtValue.Add(position.TotalCollateralizedDebtValue, value)
			}
		}
	}
	return position, nil
}
