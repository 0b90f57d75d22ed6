package redbank

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FinalizeTransfer is called by a share token contract after it has moved
// scaled shares between two accounts. It rejects transfers that would leave
// the sender undercollateralized and keeps both accounts' collateral bits
// aligned with their new balances. Only the market's own share token may
// call it.
func (e *Engine) FinalizeTransfer(caller, from, to common.Address, fromPreviousBalance, toPreviousBalance, amountScaled *big.Int, ts uint64) (res *Response, err error) {
	defer e.observe("finalize_transfer", time.Now(), &err)
	st, err := e.begin()
	if err != nil {
		return nil, err
	}
	if amountScaled == nil || amountScaled.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	ref, err := st.MarketRefByShareToken(caller)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, ErrUnauthorized
	}
	market, err := st.Market(ref)
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, ErrMarketNotFound
	}
	if !market.Active {
		return nil, ErrMarketInactive
	}
	asset := market.Asset

	res = &Response{}

	fromUser, err := userOrNew(st, from)
	if err != nil {
		return nil, err
	}
	fromUsesCollateral, err := getBit(&fromUser.CollateralAssets, market.Index)
	if err != nil {
		return nil, err
	}

	// The token contract already moved the balances, so a position built now
	// reflects the sender's reduced collateral.
	if fromUsesCollateral && fromUser.IsBorrowingAny() {
		position, perr := e.userPosition(st, fromUser, from, ts)
		if perr != nil {
			return nil, perr
		}
		health, herr := position.HealthStatus()
		if herr != nil {
			return nil, herr
		}
		if !health.Healthy() {
			return nil, ErrHealthCheckFailed
		}
	}

	if fromUsesCollateral && fromPreviousBalance.Cmp(amountScaled) == 0 {
		if err = clearBit(&fromUser.CollateralAssets, market.Index); err != nil {
			return nil, err
		}
		if err = st.PutUser(from, fromUser); err != nil {
			return nil, err
		}
		res.addEvent(CollateralPositionChanged{Asset: asset, Account: from, Enabled: false})
	}

	if toPreviousBalance.Sign() == 0 {
		toUser, uerr := userOrNew(st, to)
		if uerr != nil {
			return nil, uerr
		}
		if uerr = setBit(&toUser.CollateralAssets, market.Index); uerr != nil {
			return nil, uerr
		}
		if uerr = st.PutUser(to, toUser); uerr != nil {
			return nil, uerr
		}
		res.addEvent(CollateralPositionChanged{Asset: asset, Account: to, Enabled: true})
	}

	if err = st.flush(); err != nil {
		return nil, err
	}

	res.addAttribute("action", "finalize_transfer")
	res.addAttribute("asset", asset.Label())
	res.addAttribute("from", from.Hex())
	res.addAttribute("to", to.Hex())
	res.addAttribute("amount_scaled", amountScaled.String())
	return res, nil
}
