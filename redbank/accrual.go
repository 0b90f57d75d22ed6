package redbank

import (
	"fmt"
	"math/big"

	"redbank/decimal"
)

// applyAccumulatedInterests advances the market's indexes to ts and mints the
// protocol's reserve-factor share of the borrow interest accrued since the
// last update. The reward is minted as pool shares to the rewards collector
// so it compounds like any other deposit.
func (e *Engine) applyAccumulatedInterests(res *Response, market *Market, ts uint64) error {
	previousBorrowIndex := market.BorrowIndex

	if market.IndexesLastUpdated < ts {
		borrowIndex, err := updatedBorrowIndex(market, ts)
		if err != nil {
			return err
		}
		liquidityIndex, err := updatedLiquidityIndex(market, ts)
		if err != nil {
			return err
		}
		market.BorrowIndex = borrowIndex
		market.LiquidityIndex = liquidityIndex
		market.IndexesLastUpdated = ts
	} else if market.IndexesLastUpdated > ts {
		return ErrStaleTimestamp
	}

	if market.ReserveFactor.IsZero() || market.DebtTotalScaled.Sign() == 0 {
		return nil
	}

	debtBefore, err := descaleDebt(market.DebtTotalScaled, previousBorrowIndex)
	if err != nil {
		return err
	}
	debtAfter, err := descaleDebt(market.DebtTotalScaled, market.BorrowIndex)
	if err != nil {
		return err
	}
	interestAccrued := new(big.Int).Sub(debtAfter, debtBefore)
	if interestAccrued.Sign() <= 0 {
		return nil
	}

	reward := market.ReserveFactor.MulInt(interestAccrued)
	if reward.Sign() == 0 {
		return nil
	}
	rewardScaled, err := scaleLiquidity(reward, market.LiquidityIndex)
	if err != nil {
		return err
	}
	if rewardScaled.Sign() == 0 {
		return nil
	}

	collector, err := e.registry.Resolve(RoleRewardsCollector)
	if err != nil {
		return fmt.Errorf("resolve rewards collector: %w", err)
	}
	res.addInstruction(MintShares{
		Token:     market.ShareToken,
		Recipient: collector,
		Amount:    rewardScaled,
	})
	return nil
}

// updateInterestRates recomputes the market's borrow and liquidity rates from
// current utilization. liquidityTaken is the underlying amount leaving the
// pool with the operation in flight; the pool's on-hand balance still
// includes it when this runs.
func (e *Engine) updateInterestRates(res *Response, market *Market, liquidityTaken *big.Int, ts uint64) error {
	balance, err := e.bank.AssetBalance(market.Asset, e.pool)
	if err != nil {
		return fmt.Errorf("pool balance for %s: %w", market.Asset.Label(), err)
	}
	if liquidityTaken == nil {
		liquidityTaken = new(big.Int)
	}
	if balance.Cmp(liquidityTaken) < 0 {
		return ErrInsufficientLiquidity
	}
	available := new(big.Int).Sub(balance, liquidityTaken)

	debtTotal, err := descaleDebt(market.DebtTotalScaled, market.BorrowIndex)
	if err != nil {
		return err
	}

	utilization := decimal.Zero()
	if debtTotal.Sign() > 0 {
		total := new(big.Int).Add(available, debtTotal)
		utilization, err = decimal.FromBigRatio(debtTotal, total)
		if err != nil {
			return err
		}
	}

	borrowRate, liquidityRate, err := market.InterestRateStrategy.Rates(utilization, market.BorrowRate, market.ReserveFactor)
	if err != nil {
		return err
	}
	market.BorrowRate = borrowRate
	market.LiquidityRate = liquidityRate

	res.addEvent(InterestsUpdated{
		Asset:          market.Asset,
		LiquidityIndex: market.LiquidityIndex,
		BorrowIndex:    market.BorrowIndex,
		LiquidityRate:  market.LiquidityRate,
		BorrowRate:     market.BorrowRate,
	})
	if sink, ok := e.metrics.(MarketMetricsSink); ok {
		sink.ObserveMarket(market.Asset.Label(),
			market.BorrowRate.Float64(), market.LiquidityRate.Float64(),
			market.BorrowIndex.Float64(), market.LiquidityIndex.Float64())
	}
	return nil
}
