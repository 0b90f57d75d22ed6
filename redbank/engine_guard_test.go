package redbank

import (
	"math/big"
	"testing"
)

func TestPauseGuards(t *testing.T) {
	env := newTestEnv(t)
	asset := NativeAsset("uusd")
	env.listMarket(t, asset, nil)
	env.oracle.prices[asset.Label()] = big.NewInt(1)

	alice := addr(0x01)
	env.fund(asset, big.NewInt(1000))
	res, err := env.engine.Deposit(alice, asset, big.NewInt(1000), nil, 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	env.execute(t, res)

	cases := []struct {
		action string
		call   func() error
	}{
		{PauseDeposit, func() error {
			_, err := env.engine.Deposit(alice, asset, big.NewInt(1), nil, 0)
			return err
		}},
		{PauseWithdraw, func() error {
			_, err := env.engine.Withdraw(alice, asset, big.NewInt(1), nil, 0)
			return err
		}},
		{PauseBorrow, func() error {
			_, err := env.engine.Borrow(alice, asset, big.NewInt(1), nil, 0)
			return err
		}},
		{PauseRepay, func() error {
			_, err := env.engine.Repay(alice, asset, big.NewInt(1), nil, 0)
			return err
		}},
		{PauseLiquidate, func() error {
			_, err := env.engine.Liquidate(addr(0x0c), asset, asset, alice, big.NewInt(1), true, 0)
			return err
		}},
	}
	for _, tc := range cases {
		env.pauses.paused[tc.action] = true
		if err := tc.call(); err != ErrPaused {
			t.Fatalf("%s: expected ErrPaused, got %v", tc.action, err)
		}
		env.pauses.paused[tc.action] = false
	}
}

func TestOperationsRequireListedMarket(t *testing.T) {
	env := newTestEnv(t)
	unknown := NativeAsset("ughost")

	if _, err := env.engine.Deposit(addr(0x01), unknown, big.NewInt(1), nil, 0); err != ErrMarketNotFound {
		t.Fatalf("deposit: expected ErrMarketNotFound, got %v", err)
	}
	if _, err := env.engine.Borrow(addr(0x01), unknown, big.NewInt(1), nil, 0); err != ErrMarketNotFound {
		t.Fatalf("borrow: expected ErrMarketNotFound, got %v", err)
	}
	if _, err := env.engine.Repay(addr(0x01), unknown, big.NewInt(1), nil, 0); err != ErrMarketNotFound {
		t.Fatalf("repay: expected ErrMarketNotFound, got %v", err)
	}
	if _, err := env.engine.Withdraw(addr(0x01), unknown, nil, nil, 0); err != ErrMarketNotFound {
		t.Fatalf("withdraw: expected ErrMarketNotFound, got %v", err)
	}
}

func TestBorrowGating(t *testing.T) {
	env := newTestEnv(t)
	asset := NativeAsset("uusd")
	env.listMarket(t, asset, func(p *MarketParams) {
		off := false
		p.BorrowEnabled = &off
	})
	env.oracle.prices[asset.Label()] = big.NewInt(1)

	alice := addr(0x01)
	env.fund(asset, big.NewInt(100))
	res, err := env.engine.Deposit(alice, asset, big.NewInt(100), nil, 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	env.execute(t, res)

	if _, err = env.engine.Borrow(alice, asset, big.NewInt(10), nil, 0); err != ErrBorrowDisabled {
		t.Fatalf("expected ErrBorrowDisabled, got %v", err)
	}
}

func TestInactiveMarketBlocksEverything(t *testing.T) {
	env := newTestEnv(t)
	asset := NativeAsset("uusd")
	env.listMarket(t, asset, nil)
	env.oracle.prices[asset.Label()] = big.NewInt(1)

	alice := addr(0x01)
	env.fund(asset, big.NewInt(100))
	res, err := env.engine.Deposit(alice, asset, big.NewInt(100), nil, 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	env.execute(t, res)

	off := false
	if _, err = env.engine.UpdateMarket(env.owner, asset, MarketParams{Active: &off}, 0); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err = env.engine.Withdraw(alice, asset, big.NewInt(1), nil, 0); err != ErrMarketInactive {
		t.Fatalf("withdraw: expected ErrMarketInactive, got %v", err)
	}
	env.fund(asset, big.NewInt(1))
	if _, err = env.engine.Repay(alice, asset, big.NewInt(1), nil, 0); err != ErrMarketInactive {
		t.Fatalf("repay: expected ErrMarketInactive, got %v", err)
	}
	if _, err = env.engine.Deposit(alice, asset, big.NewInt(1), nil, 0); err != ErrMarketInactive {
		t.Fatalf("deposit: expected ErrMarketInactive, got %v", err)
	}
}

func TestUpdateMarketAllowsProtocolAdmin(t *testing.T) {
	env := newTestEnv(t)
	asset := NativeAsset("uusd")
	env.listMarket(t, asset, nil)

	admin := addr(0x0d)
	env.registry.roles[RoleProtocolAdmin] = admin

	off := false
	if _, err := env.engine.UpdateMarket(admin, asset, MarketParams{DepositEnabled: &off}, 0); err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if env.market(asset).DepositEnabled {
		t.Fatalf("deposit flag not updated")
	}

	if _, err := env.engine.UpdateMarket(addr(0x0e), asset, MarketParams{DepositEnabled: &off}, 0); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for stranger, got %v", err)
	}
}
