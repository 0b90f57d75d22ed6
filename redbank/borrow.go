package redbank

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Borrow draws amount of asset from the pool against the borrower's enabled
// collateral, or against an uncollateralized credit line when one is
// configured. The drawn funds are released through a SendAsset instruction.
func (e *Engine) Borrow(borrower common.Address, asset Asset, amount *big.Int, recipient *common.Address, ts uint64) (res *Response, err error) {
	defer e.observe("borrow", time.Now(), &err)
	if err = guard(e.pauses, PauseBorrow); err != nil {
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
	if !market.AllowBorrow() {
		if !market.Active {
			return nil, ErrMarketInactive
		}
		return nil, ErrBorrowDisabled
	}
	ref := asset.Reference()

	limit, err := st.UncollateralizedLimit(ref, borrower)
	if err != nil {
		return nil, err
	}
	uncollateralized := limit != nil && limit.Sign() > 0

	user, err := userOrNew(st, borrower)
	if err != nil {
		return nil, err
	}

	if uncollateralized {
		debt, derr := st.Debt(ref, borrower)
		if derr != nil {
			return nil, derr
		}
		if debt == nil {
			debt = &Debt{AmountScaled: new(big.Int)}
		}
		borrowIndex, derr := updatedBorrowIndex(market, ts)
		if derr != nil {
			return nil, derr
		}
		outstanding, derr := descaleDebt(debt.AmountScaled, borrowIndex)
		if derr != nil {
			return nil, derr
		}
		if new(big.Int).Add(outstanding, amount).Cmp(limit) > 0 {
			return nil, ErrBorrowExceedsUncollateralizedLimit
		}
	} else {
		if user.CollateralAssets.IsZero() {
			return nil, ErrPositionRequired
		}
		position, perr := e.userPosition(st, user, borrower, ts)
		if perr != nil {
			return nil, perr
		}
		price, ok := position.AssetPrice(asset)
		if !ok {
			price, perr = e.oracle.PriceOf(asset)
			if perr != nil {
				return nil, perr
			}
		}
		borrowValue := new(big.Int).Mul(amount, price)
		totalAfter := new(big.Int).Add(position.TotalDebtValue, borrowValue)
		if totalAfter.Cmp(position.MaxBorrowableValue) > 0 {
			return nil, ErrBorrowExceedsCollateral
		}
	}

	res = &Response{}
	if err = e.applyAccumulatedInterests(res, market, ts); err != nil {
		return nil, err
	}

	hasDebtBit, err := getBit(&user.BorrowedAssets, market.Index)
	if err != nil {
		return nil, err
	}
	if !hasDebtBit {
		if err = setBit(&user.BorrowedAssets, market.Index); err != nil {
			return nil, err
		}
		if err = st.PutUser(borrower, user); err != nil {
			return nil, err
		}
	}

	debt, err := st.Debt(ref, borrower)
	if err != nil {
		return nil, err
	}
	if debt == nil {
		debt = &Debt{AmountScaled: new(big.Int)}
	}
	borrowScaled, err := scaleDebt(amount, market.BorrowIndex)
	if err != nil {
		return nil, err
	}
	debt.AmountScaled = new(big.Int).Add(debt.AmountScaled, borrowScaled)
	debt.Uncollateralized = uncollateralized
	if err = st.PutDebt(ref, borrower, debt); err != nil {
		return nil, err
	}
	market.DebtTotalScaled = new(big.Int).Add(market.DebtTotalScaled, borrowScaled)
	res.addEvent(DebtPositionChanged{Asset: asset, Account: borrower, AmountScaled: debt.AmountScaled})

	if err = e.updateInterestRates(res, market, amount, ts); err != nil {
		return nil, err
	}
	if err = st.PutMarket(market); err != nil {
		return nil, err
	}
	if err = st.flush(); err != nil {
		return nil, err
	}

	target := borrower
	if recipient != nil {
		target = *recipient
	}
	res.addInstruction(SendAsset{Asset: asset, Recipient: target, Amount: amount})
	res.addAttribute("action", "borrow")
	res.addAttribute("asset", asset.Label())
	res.addAttribute("user", borrower.Hex())
	res.addAttribute("recipient", target.Hex())
	res.addAttribute("amount", amount.String())
	res.addAttribute("amount_scaled", borrowScaled.String())
	e.log.Info("borrow", "asset", asset.Label(), "user", borrower.Hex(), "amount", amount.String())
	return res, nil
}
