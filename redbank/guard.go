package redbank

import "errors"

// PauseView exposes the module pause switches maintained by governance.
type PauseView interface {
	IsPaused(action string) bool
}

// ErrPaused is returned when the requested action is administratively paused.
var ErrPaused = errors.New("redbank: action paused")

// Pause switch names checked before each state-changing operation.
const (
	PauseDeposit   = "redbank.deposit"
	PauseWithdraw  = "redbank.withdraw"
	PauseBorrow    = "redbank.borrow"
	PauseRepay     = "redbank.repay"
	PauseLiquidate = "redbank.liquidate"
)

func guard(p PauseView, action string) error {
	if p != nil && p.IsPaused(action) {
		return ErrPaused
	}
	return nil
}
