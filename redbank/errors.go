package redbank

import "errors"

// Errors are grouped by the failure class surfaced to callers: authorization,
// validation, missing state, solvency, liquidity and arithmetic consistency.
// Every error aborts the triggering operation with no partial state change.
var (
	errNilState = errors.New("redbank: state not configured")

	// Authorization.
	ErrUnauthorized = errors.New("redbank: unauthorized")

	// Validation.
	ErrInvalidAmount         = errors.New("redbank: amount must be positive")
	ErrInvalidWithdrawAmount = errors.New("redbank: withdraw amount must be positive and within balance")
	ErrMissingParams         = errors.New("redbank: all market parameters required at initialisation")
	ErrParamRange            = errors.New("redbank: parameter outside [0, 1]")
	ErrRateOrder             = errors.New("redbank: min borrow rate must be below max borrow rate")
	ErrMarginBelowLTV        = errors.New("redbank: maintenance margin must exceed max loan-to-value")
	ErrStrategyVariant       = errors.New("redbank: exactly one interest rate strategy must be set")
	ErrInvalidLiquidityIndex = errors.New("redbank: liquidity index cannot be zero")
	ErrAlreadyInitialized    = errors.New("redbank: ledger already initialised")

	// State presence.
	ErrMarketNotFound        = errors.New("redbank: market not initialised")
	ErrMarketExists          = errors.New("redbank: market already initialised")
	ErrMarketIndexOutOfRange = errors.New("redbank: market index exceeds bitmask width")
	ErrPositionRequired      = errors.New("redbank: existing user position required")
	ErrUserNoBalance         = errors.New("redbank: user has no deposited balance")
	ErrNoDebt                = errors.New("redbank: no outstanding debt to repay")

	// Market gating.
	ErrMarketInactive  = errors.New("redbank: market not active")
	ErrDepositDisabled = errors.New("redbank: deposits disabled for market")
	ErrBorrowDisabled  = errors.New("redbank: borrowing disabled for market")

	// Solvency.
	ErrHealthCheckFailed                  = errors.New("redbank: health factor would fall below 1")
	ErrBorrowExceedsCollateral            = errors.New("redbank: borrow exceeds collateral capacity")
	ErrBorrowExceedsUncollateralizedLimit = errors.New("redbank: borrow exceeds uncollateralized loan limit")
	ErrHealthyPosition                    = errors.New("redbank: position not eligible for liquidation")
	ErrUncollateralizedNotLiquidatable    = errors.New("redbank: positive uncollateralized limit cannot be liquidated")
	ErrNoCollateralBalance                = errors.New("redbank: no balance in collateral asset to liquidate")

	// Liquidity.
	ErrInsufficientLiquidity = errors.New("redbank: operation exceeds available liquidity")

	// Arithmetic / consistency.
	ErrDebtTotalInconsistent = errors.New("redbank: market debt total would underflow")
	ErrStaleTimestamp        = errors.New("redbank: timestamp precedes last index update")
)
