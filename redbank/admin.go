package redbank

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"redbank/decimal"
)

// MarketParams carries the risk and rate parameters of a market. Every field
// is required when creating a market; updates apply only the non-nil fields.
type MarketParams struct {
	MaxLoanToValue       *decimal.Decimal
	MaintenanceMargin    *decimal.Decimal
	LiquidationBonus     *decimal.Decimal
	ReserveFactor        *decimal.Decimal
	Active               *bool
	DepositEnabled       *bool
	BorrowEnabled        *bool
	InterestRateStrategy *InterestRateStrategy
}

func validateFraction(d decimal.Decimal) error {
	if d.GT(decimal.One()) {
		return ErrParamRange
	}
	return nil
}

// CreateMarket lists a new asset and asks the caller to deploy its share
// token. The market stays without a share token, and therefore unusable for
// deposits, until RegisterShareToken completes the two-step creation.
func (e *Engine) CreateMarket(caller common.Address, asset Asset, params MarketParams, ts uint64) (res *Response, err error) {
	defer e.observe("create_market", time.Now(), &err)
	st, err := e.begin()
	if err != nil {
		return nil, err
	}
	cfg, err := requireConfig(st)
	if err != nil {
		return nil, err
	}
	if !isOwner(cfg, caller) {
		return nil, ErrUnauthorized
	}

	existing, err := st.Market(asset.Reference())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrMarketExists
	}

	if params.MaxLoanToValue == nil || params.MaintenanceMargin == nil ||
		params.LiquidationBonus == nil || params.ReserveFactor == nil ||
		params.Active == nil || params.DepositEnabled == nil ||
		params.BorrowEnabled == nil || params.InterestRateStrategy == nil {
		return nil, ErrMissingParams
	}
	for _, d := range []decimal.Decimal{*params.MaxLoanToValue, *params.MaintenanceMargin, *params.LiquidationBonus, *params.ReserveFactor} {
		if err = validateFraction(d); err != nil {
			return nil, err
		}
	}
	if params.MaintenanceMargin.LTE(*params.MaxLoanToValue) {
		return nil, ErrMarginBelowLTV
	}
	if err = params.InterestRateStrategy.Validate(); err != nil {
		return nil, err
	}

	gs, err := st.GlobalState()
	if err != nil {
		return nil, err
	}
	if gs == nil {
		gs = &GlobalState{}
	}
	if gs.MarketCount >= bitmaskWidth {
		return nil, ErrMarketIndexOutOfRange
	}

	market := &Market{
		Index:                gs.MarketCount,
		Asset:                asset,
		LiquidityIndex:       decimal.One(),
		BorrowIndex:          decimal.One(),
		MaxLoanToValue:       *params.MaxLoanToValue,
		MaintenanceMargin:    *params.MaintenanceMargin,
		LiquidationBonus:     *params.LiquidationBonus,
		ReserveFactor:        *params.ReserveFactor,
		DebtTotalScaled:      new(big.Int),
		IndexesLastUpdated:   ts,
		Active:               *params.Active,
		DepositEnabled:       *params.DepositEnabled,
		BorrowEnabled:        *params.BorrowEnabled,
		InterestRateStrategy: params.InterestRateStrategy.Clone(),
	}
	if err = st.PutMarket(market); err != nil {
		return nil, err
	}
	if err = st.PutMarketRefByIndex(market.Index, asset.Reference()); err != nil {
		return nil, err
	}
	gs.MarketCount++
	if err = st.PutGlobalState(gs); err != nil {
		return nil, err
	}
	if err = st.flush(); err != nil {
		return nil, err
	}

	res = &Response{}
	res.addInstruction(DeployShareToken{
		Asset:  asset,
		Name:   "Red Bank " + asset.Label(),
		Symbol: "rb" + asset.Label(),
	})
	res.addAttribute("action", "create_market")
	res.addAttribute("asset", asset.Label())
	e.log.Info("market created", "asset", asset.Label(), "index", market.Index)
	return res, nil
}

// RegisterShareToken completes market creation once the share token contract
// exists. A market can only be bound once; repeated callbacks are rejected so
// a stray deployment cannot rebind an active market.
func (e *Engine) RegisterShareToken(asset Asset, token common.Address, ts uint64) (res *Response, err error) {
	defer e.observe("register_share_token", time.Now(), &err)
	st, err := e.begin()
	if err != nil {
		return nil, err
	}
	market, err := requireMarket(st, asset)
	if err != nil {
		return nil, err
	}
	if market.ShareToken != (common.Address{}) {
		return nil, ErrUnauthorized
	}
	market.ShareToken = token
	if err = st.PutMarket(market); err != nil {
		return nil, err
	}
	if err = st.PutMarketRefByShareToken(token, asset.Reference()); err != nil {
		return nil, err
	}
	if err = st.flush(); err != nil {
		return nil, err
	}

	res = &Response{}
	res.addEvent(MarketCreated{Asset: asset, Index: market.Index, ShareToken: token})
	res.addAttribute("action", "register_share_token")
	res.addAttribute("asset", asset.Label())
	res.addAttribute("share_token", token.Hex())
	e.log.Info("share token registered", "asset", asset.Label(), "token", token.Hex())
	return res, nil
}

// UpdateMarket applies the non-nil params to an existing market. Changing the
// reserve factor or the rate strategy accrues outstanding interest first so
// past accrual settles under the old parameters.
func (e *Engine) UpdateMarket(caller common.Address, asset Asset, params MarketParams, ts uint64) (res *Response, err error) {
	defer e.observe("update_market", time.Now(), &err)
	st, err := e.begin()
	if err != nil {
		return nil, err
	}
	cfg, err := requireConfig(st)
	if err != nil {
		return nil, err
	}
	if !e.isAdmin(cfg, caller) {
		return nil, ErrUnauthorized
	}
	market, err := requireMarket(st, asset)
	if err != nil {
		return nil, err
	}

	res = &Response{}
	ratesAffected := params.ReserveFactor != nil || params.InterestRateStrategy != nil
	if ratesAffected {
		if err = e.applyAccumulatedInterests(res, market, ts); err != nil {
			return nil, err
		}
	}

	maxLTV := market.MaxLoanToValue
	margin := market.MaintenanceMargin
	if params.MaxLoanToValue != nil {
		if err = validateFraction(*params.MaxLoanToValue); err != nil {
			return nil, err
		}
		maxLTV = *params.MaxLoanToValue
	}
	if params.MaintenanceMargin != nil {
		if err = validateFraction(*params.MaintenanceMargin); err != nil {
			return nil, err
		}
		margin = *params.MaintenanceMargin
	}
	if margin.LTE(maxLTV) {
		return nil, ErrMarginBelowLTV
	}
	market.MaxLoanToValue = maxLTV
	market.MaintenanceMargin = margin

	if params.LiquidationBonus != nil {
		if err = validateFraction(*params.LiquidationBonus); err != nil {
			return nil, err
		}
		market.LiquidationBonus = *params.LiquidationBonus
	}
	if params.ReserveFactor != nil {
		if err = validateFraction(*params.ReserveFactor); err != nil {
			return nil, err
		}
		market.ReserveFactor = *params.ReserveFactor
	}
	if params.Active != nil {
		market.Active = *params.Active
	}
	if params.DepositEnabled != nil {
		market.DepositEnabled = *params.DepositEnabled
	}
	if params.BorrowEnabled != nil {
		market.BorrowEnabled = *params.BorrowEnabled
	}
	if params.InterestRateStrategy != nil {
		if err = params.InterestRateStrategy.Validate(); err != nil {
			return nil, err
		}
		market.InterestRateStrategy = params.InterestRateStrategy.Clone()
	}

	if ratesAffected {
		if err = e.updateInterestRates(res, market, nil, ts); err != nil {
			return nil, err
		}
	}
	if err = st.PutMarket(market); err != nil {
		return nil, err
	}
	if err = st.flush(); err != nil {
		return nil, err
	}

	res.addEvent(MarketUpdated{Asset: asset})
	res.addAttribute("action", "update_market")
	res.addAttribute("asset", asset.Label())
	e.log.Info("market updated", "asset", asset.Label())
	return res, nil
}

// UpdateUncollateralizedLimit grants or revokes an uncollateralized credit
// line for an account in one asset. Granting a fresh line to an account with
// existing collateralized debt is rejected so the two debt regimes never mix
// in one record.
func (e *Engine) UpdateUncollateralizedLimit(caller common.Address, asset Asset, account common.Address, limit *big.Int, ts uint64) (res *Response, err error) {
	defer e.observe("update_uncollateralized_limit", time.Now(), &err)
	st, err := e.begin()
	if err != nil {
		return nil, err
	}
	cfg, err := requireConfig(st)
	if err != nil {
		return nil, err
	}
	if !isOwner(cfg, caller) {
		return nil, ErrUnauthorized
	}
	if _, err = requireMarket(st, asset); err != nil {
		return nil, err
	}
	if limit == nil {
		limit = new(big.Int)
	}
	if limit.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	ref := asset.Reference()

	current, err := st.UncollateralizedLimit(ref, account)
	if err != nil {
		return nil, err
	}
	debt, err := st.Debt(ref, account)
	if err != nil {
		return nil, err
	}
	granting := (current == nil || current.Sign() == 0) && limit.Sign() > 0
	if granting && debt != nil && debt.AmountScaled.Sign() > 0 {
		return nil, ErrPositionRequired
	}

	if err = st.PutUncollateralizedLimit(ref, account, limit); err != nil {
		return nil, err
	}
	if debt != nil {
		debt.Uncollateralized = limit.Sign() > 0
		if err = st.PutDebt(ref, account, debt); err != nil {
			return nil, err
		}
	}
	if err = st.flush(); err != nil {
		return nil, err
	}

	res = &Response{}
	res.addAttribute("action", "update_uncollateralized_limit")
	res.addAttribute("asset", asset.Label())
	res.addAttribute("user", account.Hex())
	res.addAttribute("limit", limit.String())
	e.log.Info("uncollateralized limit updated",
		"asset", asset.Label(), "user", account.Hex(), "limit", limit.String())
	return res, nil
}

// UpdateConfig replaces the owner-controlled ledger configuration.
func (e *Engine) UpdateConfig(caller common.Address, next *Config) (res *Response, err error) {
	defer e.observe("update_config", time.Now(), &err)
	st, err := e.begin()
	if err != nil {
		return nil, err
	}
	cfg, err := requireConfig(st)
	if err != nil {
		return nil, err
	}
	if !isOwner(cfg, caller) {
		return nil, ErrUnauthorized
	}
	if next == nil {
		return nil, ErrMissingParams
	}
	if err = next.Validate(); err != nil {
		return nil, err
	}
	if err = st.PutConfig(next); err != nil {
		return nil, err
	}
	if err = st.flush(); err != nil {
		return nil, err
	}

	res = &Response{}
	res.addAttribute("action", "update_config")
	e.log.Info("config updated", "owner", next.Owner.Hex())
	return res, nil
}
