package redbank

import (
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"redbank/decimal"
)

// Liquidate repays part of an unhealthy account's debt in debtAsset and
// seizes a bonus-weighted amount of its collateralAsset for the liquidator.
// With receiveShares the seized collateral stays in the pool and its shares
// move to the liquidator; otherwise the shares are burned and the underlying
// is paid out. The repay amount is capped by the close factor and by the
// account's available collateral; any unused portion of the sent funds is
// refunded.
func (e *Engine) Liquidate(liquidator common.Address, collateralAsset, debtAsset Asset, account common.Address, amount *big.Int, receiveShares bool, ts uint64) (res *Response, err error) {
	defer e.observe("liquidate", time.Now(), &err)
	if err = guard(e.pauses, PauseLiquidate); err != nil {
		return nil, err
	}
	st, err := e.begin()
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	cfg, err := requireConfig(st)
	if err != nil {
		return nil, err
	}
	collateralMarket, err := requireMarket(st, collateralAsset)
	if err != nil {
		return nil, err
	}
	debtMarket, err := requireMarket(st, debtAsset)
	if err != nil {
		return nil, err
	}
	if !collateralMarket.AllowLiquidate() || !debtMarket.AllowLiquidate() {
		return nil, ErrMarketInactive
	}
	debtRef := debtAsset.Reference()
	sameMarket := string(collateralAsset.Reference()) == string(debtRef)
	if sameMarket {
		collateralMarket = debtMarket
	}

	user, err := userOrNew(st, account)
	if err != nil {
		return nil, err
	}
	usedAsCollateral, err := getBit(&user.CollateralAssets, collateralMarket.Index)
	if err != nil {
		return nil, err
	}
	if !usedAsCollateral {
		return nil, ErrNoCollateralBalance
	}

	limit, err := st.UncollateralizedLimit(debtRef, account)
	if err != nil {
		return nil, err
	}
	if limit != nil && limit.Sign() > 0 {
		return nil, ErrUncollateralizedNotLiquidatable
	}

	debt, err := st.Debt(debtRef, account)
	if err != nil {
		return nil, err
	}
	if debt == nil || debt.AmountScaled.Sign() == 0 {
		return nil, ErrNoDebt
	}

	position, err := e.userPosition(st, user, account, ts)
	if err != nil {
		return nil, err
	}
	health, err := position.HealthStatus()
	if err != nil {
		return nil, err
	}
	if health.Healthy() {
		return nil, ErrHealthyPosition
	}

	collateralShares, err := e.tokens.BalanceOf(collateralMarket.ShareToken, account)
	if err != nil {
		return nil, err
	}
	if collateralShares.Sign() == 0 {
		return nil, ErrNoCollateralBalance
	}
	collateralLiquidityIndex, err := updatedLiquidityIndex(collateralMarket, ts)
	if err != nil {
		return nil, err
	}
	availableCollateral, err := descaleLiquidity(collateralShares, collateralLiquidityIndex)
	if err != nil {
		return nil, err
	}

	collateralPrice, ok := position.AssetPrice(collateralAsset)
	if !ok {
		collateralPrice, err = e.oracle.PriceOf(collateralAsset)
		if err != nil {
			return nil, err
		}
	}
	debtPrice, ok := position.AssetPrice(debtAsset)
	if !ok {
		debtPrice, err = e.oracle.PriceOf(debtAsset)
		if err != nil {
			return nil, err
		}
	}

	res = &Response{}
	if err = e.applyAccumulatedInterests(res, debtMarket, ts); err != nil {
		return nil, err
	}
	if !receiveShares && !sameMarket {
		if err = e.applyAccumulatedInterests(res, collateralMarket, ts); err != nil {
			return nil, err
		}
	}

	outstanding, err := descaleDebt(debt.AmountScaled, debtMarket.BorrowIndex)
	if err != nil {
		return nil, err
	}
	maxRepayable := cfg.CloseFactor.MulInt(outstanding)
	debtToRepay := new(big.Int).Set(amount)
	if debtToRepay.Cmp(maxRepayable) > 0 {
		debtToRepay = maxRepayable
	}

	bonusFactor := decimal.One().Add(collateralMarket.LiquidationBonus)

	// Collateral seized covers the repaid debt value plus the bonus. When
	// that exceeds what the account holds, the whole collateral balance is
	// seized and the repay amount shrinks to match.
	debtValue := new(big.Int).Mul(debtToRepay, debtPrice)
	seize := new(big.Int).Quo(bonusFactor.MulInt(debtValue), collateralPrice)
	seizeAll := false
	if seize.Cmp(availableCollateral) > 0 {
		seize = availableCollateral
		seizeAll = true
		collateralValue := new(big.Int).Mul(availableCollateral, collateralPrice)
		debtPriceDec, derr := decimal.FromBigInt(debtPrice)
		if derr != nil {
			return nil, derr
		}
		debtToRepay, derr = debtPriceDec.Mul(bonusFactor).DivIntTrunc(collateralValue)
		if derr != nil {
			return nil, derr
		}
	}
	refund := new(big.Int).Sub(amount, debtToRepay)

	seizeScaled := collateralShares
	if !seizeAll {
		seizeScaled, err = computeScaledAmount(seize, collateralLiquidityIndex, Ceil)
		if err != nil {
			return nil, err
		}
		if seizeScaled.Cmp(collateralShares) > 0 {
			seizeScaled = collateralShares
		}
	}

	repayScaled, err := scaleDebt(debtToRepay, debtMarket.BorrowIndex)
	if err != nil {
		return nil, err
	}
	if repayScaled.Cmp(debt.AmountScaled) > 0 {
		repayScaled = debt.AmountScaled
	}
	debt.AmountScaled = new(big.Int).Sub(debt.AmountScaled, repayScaled)
	if err = st.PutDebt(debtRef, account, debt); err != nil {
		return nil, err
	}
	if debtMarket.DebtTotalScaled.Cmp(repayScaled) < 0 {
		return nil, ErrDebtTotalInconsistent
	}
	debtMarket.DebtTotalScaled = new(big.Int).Sub(debtMarket.DebtTotalScaled, repayScaled)

	if debt.AmountScaled.Sign() == 0 {
		if err = clearBit(&user.BorrowedAssets, debtMarket.Index); err != nil {
			return nil, err
		}
	}
	if seizeAll {
		if err = clearBit(&user.CollateralAssets, collateralMarket.Index); err != nil {
			return nil, err
		}
		res.addEvent(CollateralPositionChanged{Asset: collateralAsset, Account: account, Enabled: false})
	}
	if err = st.PutUser(account, user); err != nil {
		return nil, err
	}
	res.addEvent(DebtPositionChanged{Asset: debtAsset, Account: account, AmountScaled: debt.AmountScaled})

	if receiveShares {
		// The liquidator now holds collateral shares, so their collateral
		// bit for that market switches on.
		liqUser, lerr := userOrNew(st, liquidator)
		if lerr != nil {
			return nil, lerr
		}
		liqHasCollateral, lerr := getBit(&liqUser.CollateralAssets, collateralMarket.Index)
		if lerr != nil {
			return nil, lerr
		}
		if !liqHasCollateral {
			if err = setBit(&liqUser.CollateralAssets, collateralMarket.Index); err != nil {
				return nil, err
			}
			if err = st.PutUser(liquidator, liqUser); err != nil {
				return nil, err
			}
			res.addEvent(CollateralPositionChanged{Asset: collateralAsset, Account: liquidator, Enabled: true})
		}
	}

	debtTaken := new(big.Int).Set(refund)
	if !receiveShares && sameMarket {
		debtTaken.Add(debtTaken, seize)
	}
	if err = e.updateInterestRates(res, debtMarket, debtTaken, ts); err != nil {
		return nil, err
	}
	if err = st.PutMarket(debtMarket); err != nil {
		return nil, err
	}
	if !receiveShares && !sameMarket {
		if err = e.updateInterestRates(res, collateralMarket, seize, ts); err != nil {
			return nil, err
		}
		if err = st.PutMarket(collateralMarket); err != nil {
			return nil, err
		}
	}
	if err = st.flush(); err != nil {
		return nil, err
	}

	if receiveShares {
		res.addInstruction(TransferSharesOnLiquidation{
			Token:  collateralMarket.ShareToken,
			From:   account,
			To:     liquidator,
			Amount: seizeScaled,
		})
	} else {
		res.addInstruction(BurnShares{
			Token:  collateralMarket.ShareToken,
			Holder: account,
			Amount: seizeScaled,
		})
		res.addInstruction(SendAsset{Asset: collateralAsset, Recipient: liquidator, Amount: seize})
	}
	if refund.Sign() > 0 {
		res.addInstruction(SendAsset{Asset: debtAsset, Recipient: liquidator, Amount: refund})
	}
	res.addAttribute("action", "liquidate")
	res.addAttribute("receive_shares", strconv.FormatBool(receiveShares))
	res.addAttribute("collateral_asset", collateralAsset.Label())
	res.addAttribute("debt_asset", debtAsset.Label())
	res.addAttribute("user", account.Hex())
	res.addAttribute("liquidator", liquidator.Hex())
	res.addAttribute("debt_repaid", debtToRepay.String())
	res.addAttribute("collateral_seized", seize.String())
	if refund.Sign() > 0 {
		res.addAttribute("refund", refund.String())
	}
	e.log.Info("liquidate",
		"collateral", collateralAsset.Label(),
		"debt", debtAsset.Label(),
		"user", account.Hex(),
		"repaid", debtToRepay.String(),
		"seized", seize.String(),
	)
	return res, nil
}
