package redbank

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Deposit credits amount of asset to the pool and mints scaled shares to the
// recipient. The underlying funds must already sit on the pool balance when
// the handler runs. onBehalfOf, when set, receives the shares instead of the
// depositor.
func (e *Engine) Deposit(depositor common.Address, asset Asset, amount *big.Int, onBehalfOf *common.Address, ts uint64) (res *Response, err error) {
	defer e.observe("deposit", time.Now(), &err)
	if err = guard(e.pauses, PauseDeposit); err != nil {
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
	if !market.AllowDeposit() {
		if !market.Active {
			return nil, ErrMarketInactive
		}
		return nil, ErrDepositDisabled
	}

	res = &Response{}
	if err = e.applyAccumulatedInterests(res, market, ts); err != nil {
		return nil, err
	}
	// The deposited funds are already on the pool balance, nothing leaves.
	if err = e.updateInterestRates(res, market, nil, ts); err != nil {
		return nil, err
	}

	recipient := depositor
	if onBehalfOf != nil {
		recipient = *onBehalfOf
	}

	user, err := userOrNew(st, recipient)
	if err != nil {
		return nil, err
	}
	hasCollateral, err := getBit(&user.CollateralAssets, market.Index)
	if err != nil {
		return nil, err
	}
	if !hasCollateral {
		if err = setBit(&user.CollateralAssets, market.Index); err != nil {
			return nil, err
		}
		if err = st.PutUser(recipient, user); err != nil {
			return nil, err
		}
		res.addEvent(CollateralPositionChanged{Asset: asset, Account: recipient, Enabled: true})
	}

	mintAmount, err := scaleLiquidity(amount, market.LiquidityIndex)
	if err != nil {
		return nil, err
	}
	// A deposit too small to mint a single share would be silently absorbed
	// by the pool, so reject it.
	if mintAmount.Sign() == 0 {
		return nil, ErrInvalidAmount
	}

	if err = st.PutMarket(market); err != nil {
		return nil, err
	}
	if err = st.flush(); err != nil {
		return nil, err
	}

	res.addInstruction(MintShares{Token: market.ShareToken, Recipient: recipient, Amount: mintAmount})
	res.addAttribute("action", "deposit")
	res.addAttribute("asset", asset.Label())
	res.addAttribute("user", recipient.Hex())
	res.addAttribute("amount", amount.String())
	res.addAttribute("amount_scaled", mintAmount.String())
	e.log.Info("deposit", "asset", asset.Label(), "user", recipient.Hex(), "amount", amount.String())
	return res, nil
}
