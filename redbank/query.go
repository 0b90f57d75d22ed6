package redbank

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"redbank/decimal"
)

// Read-only views. Queries never mutate state; index-dependent answers are
// projected to the supplied timestamp so callers see accrued values without
// forcing an accrual write.

// ConfigView returns the current ledger configuration.
func (e *Engine) ConfigView() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.state.Config()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errNilState
	}
	return cfg, nil
}

// MarketView returns a copy of the market for asset.
func (e *Engine) MarketView(asset Asset) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	market, err := requireMarket(e.state, asset)
	if err != nil {
		return nil, err
	}
	return market.Clone(), nil
}

// MarketsView returns copies of all listed markets in creation order.
func (e *Engine) MarketsView() ([]*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	gs, err := e.state.GlobalState()
	if err != nil {
		return nil, err
	}
	if gs == nil {
		return nil, nil
	}
	markets := make([]*Market, 0, gs.MarketCount)
	for index := uint32(0); index < gs.MarketCount; index++ {
		ref, err := e.state.MarketRefByIndex(index)
		if err != nil {
			return nil, err
		}
		market, err := e.state.Market(ref)
		if err != nil {
			return nil, err
		}
		if market == nil {
			return nil, ErrMarketNotFound
		}
		markets = append(markets, market.Clone())
	}
	return markets, nil
}

// MarketSnapshotView pairs a market with the total scaled liquidity held by
// its share token.
type MarketSnapshotView struct {
	Market                *Market
	CollateralTotalScaled *big.Int
}

// MarketSnapshot returns the market for asset together with its share-token
// supply.
func (e *Engine) MarketSnapshot(asset Asset) (*MarketSnapshotView, error) {
	market, err := e.MarketView(asset)
	if err != nil {
		return nil, err
	}
	supply, err := e.tokens.TotalSupply(market.ShareToken)
	if err != nil {
		return nil, err
	}
	return &MarketSnapshotView{Market: market, CollateralTotalScaled: supply}, nil
}

// MarketSnapshots returns snapshots of all listed markets in creation order.
func (e *Engine) MarketSnapshots() ([]*MarketSnapshotView, error) {
	markets, err := e.MarketsView()
	if err != nil {
		return nil, err
	}
	snapshots := make([]*MarketSnapshotView, 0, len(markets))
	for _, market := range markets {
		supply, err := e.tokens.TotalSupply(market.ShareToken)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, &MarketSnapshotView{Market: market, CollateralTotalScaled: supply})
	}
	return snapshots, nil
}

// UserDebtView reports one account's debt in one asset at ts.
type UserDebtView struct {
	Asset            Asset
	AmountScaled     *big.Int
	Amount           *big.Int
	Uncollateralized bool
}

// UserDebt returns the account's outstanding debt in asset projected to ts.
func (e *Engine) UserDebt(account common.Address, asset Asset, ts uint64) (*UserDebtView, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	market, err := requireMarket(e.state, asset)
	if err != nil {
		return nil, err
	}
	debt, err := e.state.Debt(asset.Reference(), account)
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
	amount, err := descaleDebt(debt.AmountScaled, borrowIndex)
	if err != nil {
		return nil, err
	}
	return &UserDebtView{
		Asset:            asset,
		AmountScaled:     new(big.Int).Set(debt.AmountScaled),
		Amount:           amount,
		Uncollateralized: debt.Uncollateralized,
	}, nil
}

// UserDebts lists the account's outstanding debts across all borrowed markets
// projected to ts, in market creation order.
func (e *Engine) UserDebts(account common.Address, ts uint64) ([]*UserDebtView, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	user, err := userOrNew(e.state, account)
	if err != nil {
		return nil, err
	}
	gs, err := e.state.GlobalState()
	if err != nil {
		return nil, err
	}
	if gs == nil {
		return nil, nil
	}
	var debts []*UserDebtView
	for index := uint32(0); index < gs.MarketCount; index++ {
		borrowing, err := getBit(&user.BorrowedAssets, index)
		if err != nil {
			return nil, err
		}
		if !borrowing {
			continue
		}
		ref, err := e.state.MarketRefByIndex(index)
		if err != nil {
			return nil, err
		}
		market, err := e.state.Market(ref)
		if err != nil {
			return nil, err
		}
		if market == nil {
			return nil, ErrMarketNotFound
		}
		view, err := e.UserDebt(account, market.Asset, ts)
		if err != nil {
			return nil, err
		}
		debts = append(debts, view)
	}
	return debts, nil
}

// UserCollateralView reports one market's collateral standing for an account.
type UserCollateralView struct {
	Asset        Asset
	Enabled      bool
	AmountScaled *big.Int
	Amount       *big.Int
}

// UserCollaterals reports the account's share balance and collateral flag in
// every listed market, projected to ts.
func (e *Engine) UserCollaterals(account common.Address, ts uint64) ([]*UserCollateralView, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	user, err := userOrNew(e.state, account)
	if err != nil {
		return nil, err
	}
	gs, err := e.state.GlobalState()
	if err != nil {
		return nil, err
	}
	if gs == nil {
		return nil, nil
	}
	collaterals := make([]*UserCollateralView, 0, gs.MarketCount)
	for index := uint32(0); index < gs.MarketCount; index++ {
		ref, err := e.state.MarketRefByIndex(index)
		if err != nil {
			return nil, err
		}
		market, err := e.state.Market(ref)
		if err != nil {
			return nil, err
		}
		if market == nil {
			return nil, ErrMarketNotFound
		}
		enabled, err := getBit(&user.CollateralAssets, index)
		if err != nil {
			return nil, err
		}
		scaled, err := e.tokens.BalanceOf(market.ShareToken, account)
		if err != nil {
			return nil, err
		}
		liquidityIndex, err := updatedLiquidityIndex(market, ts)
		if err != nil {
			return nil, err
		}
		amount, err := descaleLiquidity(scaled, liquidityIndex)
		if err != nil {
			return nil, err
		}
		collaterals = append(collaterals, &UserCollateralView{
			Asset:        market.Asset,
			Enabled:      enabled,
			AmountScaled: scaled,
			Amount:       amount,
		})
	}
	return collaterals, nil
}

// UncollateralizedLimitOf returns the account's credit line in asset, zero
// when none is configured.
func (e *Engine) UncollateralizedLimitOf(account common.Address, asset Asset) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	limit, err := e.state.UncollateralizedLimit(asset.Reference(), account)
	if err != nil {
		return nil, err
	}
	if limit == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(limit), nil
}

// UserPositionView aggregates an account's whole position with its health.
type UserPositionView struct {
	Position *UserPosition
	Health   HealthStatus
}

// UserPositionAt values the account's full position at ts.
func (e *Engine) UserPositionAt(account common.Address, ts uint64) (*UserPositionView, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	user, err := userOrNew(e.state, account)
	if err != nil {
		return nil, err
	}
	position, err := e.userPosition(e.state, user, account, ts)
	if err != nil {
		return nil, err
	}
	health, err := position.HealthStatus()
	if err != nil {
		return nil, err
	}
	return &UserPositionView{Position: position, Health: health}, nil
}

// ScaledLiquidityAmount converts an underlying amount into pool shares at the
// liquidity index projected to ts.
func (e *Engine) ScaledLiquidityAmount(asset Asset, amount *big.Int, ts uint64) (*big.Int, error) {
	index, err := e.projectedIndex(asset, ts, updatedLiquidityIndex)
	if err != nil {
		return nil, err
	}
	return scaleLiquidity(amount, index)
}

// UnderlyingLiquidityAmount converts pool shares into underlying at the
// liquidity index projected to ts.
func (e *Engine) UnderlyingLiquidityAmount(asset Asset, scaled *big.Int, ts uint64) (*big.Int, error) {
	index, err := e.projectedIndex(asset, ts, updatedLiquidityIndex)
	if err != nil {
		return nil, err
	}
	return descaleLiquidity(scaled, index)
}

// ScaledDebtAmount converts an underlying debt amount into scaled form at the
// borrow index projected to ts.
func (e *Engine) ScaledDebtAmount(asset Asset, amount *big.Int, ts uint64) (*big.Int, error) {
	index, err := e.projectedIndex(asset, ts, updatedBorrowIndex)
	if err != nil {
		return nil, err
	}
	return scaleDebt(amount, index)
}

// UnderlyingDebtAmount converts scaled debt into underlying at the borrow
// index projected to ts.
func (e *Engine) UnderlyingDebtAmount(asset Asset, scaled *big.Int, ts uint64) (*big.Int, error) {
	index, err := e.projectedIndex(asset, ts, updatedBorrowIndex)
	if err != nil {
		return nil, err
	}
	return descaleDebt(scaled, index)
}

func (e *Engine) projectedIndex(asset Asset, ts uint64, project func(*Market, uint64) (decimal.Decimal, error)) (decimal.Decimal, error) {
	if e == nil || e.state == nil {
		return decimal.Decimal{}, errNilState
	}
	market, err := requireMarket(e.state, asset)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return project(market, ts)
}
