package redbank

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SetAssetCollateral flips whether the caller's deposit in asset counts as
// collateral. Enabling requires a nonzero share balance; disabling is refused
// when it would push the caller's positions below the maintenance threshold.
func (e *Engine) SetAssetCollateral(caller common.Address, asset Asset, enable bool, ts uint64) (res *Response, err error) {
	defer e.observe("set_collateral", time.Now(), &err)
	st, err := e.begin()
	if err != nil {
		return nil, err
	}

	market, err := requireMarket(st, asset)
	if err != nil {
		return nil, err
	}
	user, err := userOrNew(st, caller)
	if err != nil {
		return nil, err
	}
	current, err := getBit(&user.CollateralAssets, market.Index)
	if err != nil {
		return nil, err
	}

	res = &Response{}
	if current == enable {
		res.addAttribute("action", "set_collateral")
		res.addAttribute("asset", asset.Label())
		res.addAttribute("unchanged", "true")
		return res, nil
	}

	if enable {
		balance, berr := e.tokens.BalanceOf(market.ShareToken, caller)
		if berr != nil {
			return nil, berr
		}
		if balance.Sign() == 0 {
			return nil, ErrUserNoBalance
		}
		if err = setBit(&user.CollateralAssets, market.Index); err != nil {
			return nil, err
		}
	} else {
		if err = clearBit(&user.CollateralAssets, market.Index); err != nil {
			return nil, err
		}
		if user.IsBorrowingAny() {
			position, perr := e.userPosition(st, user, caller, ts)
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
	}

	if err = st.PutUser(caller, user); err != nil {
		return nil, err
	}
	if err = st.flush(); err != nil {
		return nil, err
	}

	res.addEvent(CollateralPositionChanged{Asset: asset, Account: caller, Enabled: enable})
	res.addAttribute("action", "set_collateral")
	res.addAttribute("asset", asset.Label())
	res.addAttribute("user", caller.Hex())
	e.log.Info("collateral toggled", "asset", asset.Label(), "user", caller.Hex(), "enabled", enable)
	return res, nil
}
