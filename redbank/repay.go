package redbank

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Repay applies the sent amount against the beneficiary's outstanding debt in
// the asset. Any surplus beyond the full debt is refunded to the payer.
// Repaying on behalf of an uncollateralized credit line is rejected so a
// third party cannot clear a line holder's flag semantics.
func (e *Engine) Repay(payer common.Address, asset Asset, amount *big.Int, onBehalfOf *common.Address, ts uint64) (res *Response, err error) {
	defer e.observe("repay", time.Now(), &err)
	if err = guard(e.pauses, PauseRepay); err != nil {
		return nil, err
	}
	st, err := e.begin()
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	market, err := requireMarket(st, asset)
	if err != nil {
		return nil, err
	}
	if !market.AllowRepay() {
		return nil, ErrMarketInactive
	}
	ref := asset.Reference()

	beneficiary := payer
	if onBehalfOf != nil {
		beneficiary = *onBehalfOf
	}

	debt, err := st.Debt(ref, beneficiary)
	if err != nil {
		return nil, err
	}
	if debt == nil || debt.AmountScaled.Sign() == 0 {
		return nil, ErrNoDebt
	}
	if beneficiary != payer && debt.Uncollateralized {
		return nil, ErrUnauthorized
	}

	res = &Response{}
	if err = e.applyAccumulatedInterests(res, market, ts); err != nil {
		return nil, err
	}

	repayScaled, err := scaleDebt(amount, market.BorrowIndex)
	if err != nil {
		return nil, err
	}

	refund := new(big.Int)
	debtScaledDelta := repayScaled
	if repayScaled.Cmp(debt.AmountScaled) > 0 {
		// The refund leaves the pool, so it truncates like any other amount
		// the protocol pays out.
		surplus := new(big.Int).Sub(repayScaled, debt.AmountScaled)
		refund, err = computeUnderlyingAmount(surplus, market.BorrowIndex, Truncate)
		if err != nil {
			return nil, err
		}
		debtScaledDelta = debt.AmountScaled
	}

	debt.AmountScaled = new(big.Int).Sub(debt.AmountScaled, debtScaledDelta)
	if err = st.PutDebt(ref, beneficiary, debt); err != nil {
		return nil, err
	}

	if market.DebtTotalScaled.Cmp(debtScaledDelta) < 0 {
		return nil, ErrDebtTotalInconsistent
	}
	market.DebtTotalScaled = new(big.Int).Sub(market.DebtTotalScaled, debtScaledDelta)

	if debt.AmountScaled.Sign() == 0 {
		user, uerr := userOrNew(st, beneficiary)
		if uerr != nil {
			return nil, uerr
		}
		if uerr = clearBit(&user.BorrowedAssets, market.Index); uerr != nil {
			return nil, uerr
		}
		if uerr = st.PutUser(beneficiary, user); uerr != nil {
			return nil, uerr
		}
	}
	res.addEvent(DebtPositionChanged{Asset: asset, Account: beneficiary, AmountScaled: debt.AmountScaled})

	// The repaid funds are already on the pool balance; only the refund, if
	// any, leaves again.
	if err = e.updateInterestRates(res, market, refund, ts); err != nil {
		return nil, err
	}
	if err = st.PutMarket(market); err != nil {
		return nil, err
	}
	if err = st.flush(); err != nil {
		return nil, err
	}

	if refund.Sign() > 0 {
		res.addInstruction(SendAsset{Asset: asset, Recipient: payer, Amount: refund})
	}
	res.addAttribute("action", "repay")
	res.addAttribute("asset", asset.Label())
	res.addAttribute("user", beneficiary.Hex())
	res.addAttribute("amount", new(big.Int).Sub(amount, refund).String())
	res.addAttribute("amount_scaled", debtScaledDelta.String())
	if refund.Sign() > 0 {
		res.addAttribute("refund", refund.String())
	}
	e.log.Info("repay", "asset", asset.Label(), "user", beneficiary.Hex(), "amount", amount.String())
	return res, nil
}
