package redbank

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Withdraw burns the withdrawer's scaled shares and releases the underlying
// asset. A nil amount withdraws the full balance. The withdrawal is refused
// when it would leave the withdrawer's borrow positions undercollateralized.
func (e *Engine) Withdraw(withdrawer common.Address, asset Asset, amount *big.Int, recipient *common.Address, ts uint64) (res *Response, err error) {
	defer e.observe("withdraw", time.Now(), &err)
	if err = guard(e.pauses, PauseWithdraw); err != nil {
		return nil, err
	}
	st, err := e.begin()
	if err != nil {
		return nil, err
	}

	market, err := requireMarket(st, asset)
	if err != nil {
		return nil, err
	}
	if !market.AllowWithdraw() {
		return nil, ErrMarketInactive
	}

	scaledBalance, err := e.tokens.BalanceOf(market.ShareToken, withdrawer)
	if err != nil {
		return nil, err
	}
	if scaledBalance.Sign() == 0 {
		return nil, ErrUserNoBalance
	}

	liquidityIndex, err := updatedLiquidityIndex(market, ts)
	if err != nil {
		return nil, err
	}
	underlyingBalance, err := descaleLiquidity(scaledBalance, liquidityIndex)
	if err != nil {
		return nil, err
	}

	withdrawAmount := underlyingBalance
	withdrawAll := amount == nil
	if !withdrawAll {
		if amount.Sign() <= 0 || amount.Cmp(underlyingBalance) > 0 {
			return nil, ErrInvalidWithdrawAmount
		}
		withdrawAmount = new(big.Int).Set(amount)
		withdrawAll = amount.Cmp(underlyingBalance) == 0
	}

	user, err := userOrNew(st, withdrawer)
	if err != nil {
		return nil, err
	}
	usedAsCollateral, err := getBit(&user.CollateralAssets, market.Index)
	if err != nil {
		return nil, err
	}

	// Only a position that backs outstanding debt needs a solvency check.
	// Holders outside the ledger, such as the rewards collector, never have
	// the collateral bit set and withdraw freely.
	if usedAsCollateral && user.IsBorrowingAny() {
		position, perr := e.userPosition(st, user, withdrawer, ts)
		if perr != nil {
			return nil, perr
		}
		if position.TotalCollateralizedDebtValue.Sign() > 0 {
			price, ok := position.AssetPrice(asset)
			if !ok {
				price, perr = e.oracle.PriceOf(asset)
				if perr != nil {
					return nil, perr
				}
			}
			withdrawValue := new(big.Int).Mul(withdrawAmount, price)
			remaining := new(big.Int).Sub(
				position.WeightedMaintenanceMarginValue,
				market.MaintenanceMargin.MulInt(withdrawValue),
			)
			if remaining.Cmp(position.TotalCollateralizedDebtValue) < 0 {
				return nil, ErrHealthCheckFailed
			}
		}
	}

	res = &Response{}
	if err = e.applyAccumulatedInterests(res, market, ts); err != nil {
		return nil, err
	}

	// Shares burned round up: a partial withdrawal must never release more
	// underlying than the shares destroyed represent.
	burnAmount := scaledBalance
	if !withdrawAll {
		burnAmount, err = computeScaledAmount(withdrawAmount, market.LiquidityIndex, Ceil)
		if err != nil {
			return nil, err
		}
		if burnAmount.Cmp(scaledBalance) > 0 {
			burnAmount = scaledBalance
		}
	}

	if withdrawAll && usedAsCollateral {
		if err = clearBit(&user.CollateralAssets, market.Index); err != nil {
			return nil, err
		}
		if err = st.PutUser(withdrawer, user); err != nil {
			return nil, err
		}
		res.addEvent(CollateralPositionChanged{Asset: asset, Account: withdrawer, Enabled: false})
	}

	if err = e.updateInterestRates(res, market, withdrawAmount, ts); err != nil {
		return nil, err
	}
	if err = st.PutMarket(market); err != nil {
		return nil, err
	}
	if err = st.flush(); err != nil {
		return nil, err
	}

	target := withdrawer
	if recipient != nil {
		target = *recipient
	}
	res.addInstruction(BurnShares{Token: market.ShareToken, Holder: withdrawer, Amount: burnAmount})
	res.addInstruction(SendAsset{Asset: asset, Recipient: target, Amount: withdrawAmount})
	res.addAttribute("action", "withdraw")
	res.addAttribute("asset", asset.Label())
	res.addAttribute("user", withdrawer.Hex())
	res.addAttribute("recipient", target.Hex())
	res.addAttribute("amount", withdrawAmount.String())
	res.addAttribute("amount_scaled", burnAmount.String())
	e.log.Info("withdraw", "asset", asset.Label(), "user", withdrawer.Hex(), "amount", withdrawAmount.String())
	return res, nil
}
