package redbank

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"redbank/decimal"
)

// mockState keeps everything in maps so tests never need a database.
type mockState struct {
	config  *Config
	global  *GlobalState
	markets map[string]*Market
	byIndex map[uint32][]byte
	byToken map[common.Address][]byte
	users   map[common.Address]*User
	debts   map[string]*Debt
	limits  map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		markets: make(map[string]*Market),
		byIndex: make(map[uint32][]byte),
		byToken: make(map[common.Address][]byte),
		users:   make(map[common.Address]*User),
		debts:   make(map[string]*Debt),
		limits:  make(map[string]*big.Int),
	}
}

func (m *mockState) Config() (*Config, error)        { return m.config, nil }
func (m *mockState) PutConfig(cfg *Config) error     { m.config = cfg; return nil }
func (m *mockState) GlobalState() (*GlobalState, error) { return m.global, nil }
func (m *mockState) PutGlobalState(gs *GlobalState) error {
	m.global = gs
	return nil
}

func (m *mockState) Market(ref []byte) (*Market, error) {
	return m.markets[string(ref)], nil
}

func (m *mockState) PutMarket(market *Market) error {
	m.markets[string(market.Asset.Reference())] = market
	return nil
}

func (m *mockState) MarketRefByIndex(index uint32) ([]byte, error) {
	return m.byIndex[index], nil
}

func (m *mockState) PutMarketRefByIndex(index uint32, ref []byte) error {
	m.byIndex[index] = ref
	return nil
}

func (m *mockState) MarketRefByShareToken(token common.Address) ([]byte, error) {
	return m.byToken[token], nil
}

func (m *mockState) PutMarketRefByShareToken(token common.Address, ref []byte) error {
	m.byToken[token] = ref
	return nil
}

func (m *mockState) User(addr common.Address) (*User, error) { return m.users[addr], nil }
func (m *mockState) PutUser(addr common.Address, user *User) error {
	m.users[addr] = user
	return nil
}

func (m *mockState) Debt(ref []byte, addr common.Address) (*Debt, error) {
	return m.debts[positionKey(ref, addr)], nil
}

func (m *mockState) PutDebt(ref []byte, addr common.Address, debt *Debt) error {
	m.debts[positionKey(ref, addr)] = debt
	return nil
}

func (m *mockState) UncollateralizedLimit(ref []byte, addr common.Address) (*big.Int, error) {
	return m.limits[positionKey(ref, addr)], nil
}

func (m *mockState) PutUncollateralizedLimit(ref []byte, addr common.Address, limit *big.Int) error {
	m.limits[positionKey(ref, addr)] = limit
	return nil
}

// mockOracle prices assets by label.
type mockOracle struct {
	prices map[string]*big.Int
}

func (o *mockOracle) PriceOf(asset Asset) (*big.Int, error) {
	price, ok := o.prices[asset.Label()]
	if !ok {
		return nil, fmt.Errorf("no price for %s", asset.Label())
	}
	return new(big.Int).Set(price), nil
}

// mockTokens tracks share balances per token contract.
type mockTokens struct {
	balances map[common.Address]map[common.Address]*big.Int
}

func newMockTokens() *mockTokens {
	return &mockTokens{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

func (t *mockTokens) BalanceOf(token, account common.Address) (*big.Int, error) {
	if holders, ok := t.balances[token]; ok {
		if bal, ok := holders[account]; ok {
			return new(big.Int).Set(bal), nil
		}
	}
	return new(big.Int), nil
}

func (t *mockTokens) TotalSupply(token common.Address) (*big.Int, error) {
	total := new(big.Int)
	for _, bal := range t.balances[token] {
		total.Add(total, bal)
	}
	return total, nil
}

func (t *mockTokens) adjust(token, account common.Address, delta *big.Int) {
	if t.balances[token] == nil {
		t.balances[token] = make(map[common.Address]*big.Int)
	}
	if t.balances[token][account] == nil {
		t.balances[token][account] = new(big.Int)
	}
	t.balances[token][account].Add(t.balances[token][account], delta)
}

// mockBank tracks underlying asset balances per holder.
type mockBank struct {
	balances map[string]map[common.Address]*big.Int
}

func newMockBank() *mockBank {
	return &mockBank{balances: make(map[string]map[common.Address]*big.Int)}
}

func (b *mockBank) AssetBalance(asset Asset, holder common.Address) (*big.Int, error) {
	if holders, ok := b.balances[asset.Label()]; ok {
		if bal, ok := holders[holder]; ok {
			return new(big.Int).Set(bal), nil
		}
	}
	return new(big.Int), nil
}

func (b *mockBank) adjust(asset Asset, holder common.Address, delta *big.Int) {
	if b.balances[asset.Label()] == nil {
		b.balances[asset.Label()] = make(map[common.Address]*big.Int)
	}
	if b.balances[asset.Label()][holder] == nil {
		b.balances[asset.Label()][holder] = new(big.Int)
	}
	b.balances[asset.Label()][holder].Add(b.balances[asset.Label()][holder], delta)
}

// mockRegistry resolves roles from a fixed map.
type mockRegistry struct {
	roles map[string]common.Address
}

func (r *mockRegistry) Resolve(role string) (common.Address, error) {
	addr, ok := r.roles[role]
	if !ok {
		return common.Address{}, fmt.Errorf("unknown role %s", role)
	}
	return addr, nil
}

// mockPauses pauses the actions in its set.
type mockPauses struct {
	paused map[string]bool
}

func (p *mockPauses) IsPaused(action string) bool { return p.paused[action] }

// testEnv bundles an engine with its mock collaborators and simulates the
// instruction executor so multi-operation sequences stay consistent.
type testEnv struct {
	engine   *Engine
	state    *mockState
	oracle   *mockOracle
	tokens   *mockTokens
	bank     *mockBank
	registry *mockRegistry
	pauses   *mockPauses
	pool     common.Address
	owner    common.Address
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:    newMockState(),
		oracle:   &mockOracle{prices: make(map[string]*big.Int)},
		tokens:   newMockTokens(),
		bank:     newMockBank(),
		registry: &mockRegistry{roles: make(map[string]common.Address)},
		pauses:   &mockPauses{paused: make(map[string]bool)},
		pool:     common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		owner:    common.HexToAddress("0x00000000000000000000000000000000000000ee"),
	}
	env.registry.roles[RoleRewardsCollector] = common.HexToAddress("0x00000000000000000000000000000000000000cc")

	env.engine = NewEngine(env.pool)
	env.engine.SetState(env.state)
	env.engine.SetOracle(env.oracle)
	env.engine.SetTokenSource(env.tokens)
	env.engine.SetBankSource(env.bank)
	env.engine.SetRegistry(env.registry)
	env.engine.SetPauses(env.pauses)

	if err := env.engine.Bootstrap(&Config{Owner: env.owner, CloseFactor: decimal.MustParse("0.5")}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return env
}

// listMarket creates a market with sane defaults and binds a share token.
func (env *testEnv) listMarket(t *testing.T, asset Asset, overrides func(*MarketParams)) *Market {
	t.Helper()
	maxLTV := decimal.MustParse("0.5")
	margin := decimal.MustParse("0.6")
	bonus := decimal.MustParse("0.1")
	reserve := decimal.MustParse("0.2")
	active, deposit, borrow := true, true, true
	params := MarketParams{
		MaxLoanToValue:    &maxLTV,
		MaintenanceMargin: &margin,
		LiquidationBonus:  &bonus,
		ReserveFactor:     &reserve,
		Active:            &active,
		DepositEnabled:    &deposit,
		BorrowEnabled:     &borrow,
		InterestRateStrategy: &InterestRateStrategy{
			Linear: &LinearInterestRate{
				OptimalUtilization: decimal.MustParse("0.8"),
				Base:               decimal.Zero(),
				Slope1:             decimal.MustParse("0.07"),
				Slope2:             decimal.MustParse("0.45"),
			},
		},
	}
	if overrides != nil {
		overrides(&params)
	}
	if _, err := env.engine.CreateMarket(env.owner, asset, params, 0); err != nil {
		t.Fatalf("create market %s: %v", asset.Label(), err)
	}
	token := common.BytesToAddress(append([]byte{0xf0}, asset.Reference()...))
	if _, err := env.engine.RegisterShareToken(asset, token, 0); err != nil {
		t.Fatalf("register share token: %v", err)
	}
	return env.state.markets[string(asset.Reference())]
}

// market re-reads the current persisted market record.
func (env *testEnv) market(asset Asset) *Market {
	return env.state.markets[string(asset.Reference())]
}

// execute mirrors what the instruction executor does after a commit: move
// funds and shares in the mock collaborators.
func (env *testEnv) execute(t *testing.T, res *Response) {
	t.Helper()
	for _, in := range res.Instructions {
		switch instr := in.(type) {
		case MintShares:
			env.tokens.adjust(instr.Token, instr.Recipient, instr.Amount)
		case BurnShares:
			env.tokens.adjust(instr.Token, instr.Holder, new(big.Int).Neg(instr.Amount))
		case TransferSharesOnLiquidation:
			env.tokens.adjust(instr.Token, instr.From, new(big.Int).Neg(instr.Amount))
			env.tokens.adjust(instr.Token, instr.To, instr.Amount)
		case SendAsset:
			env.bank.adjust(instr.Asset, env.pool, new(big.Int).Neg(instr.Amount))
			env.bank.adjust(instr.Asset, instr.Recipient, instr.Amount)
		case DeployShareToken:
			// Deployment is exercised through listMarket directly.
		default:
			t.Fatalf("unexpected instruction %T", in)
		}
	}
}

// fund simulates a transfer into the pool ahead of a deposit or repay.
func (env *testEnv) fund(asset Asset, amount *big.Int) {
	env.bank.adjust(asset, env.pool, amount)
}

func addr(suffix byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = suffix
	return a
}

func TestBootstrapRejectsSecondInit(t *testing.T) {
	env := newTestEnv(t)
	err := env.engine.Bootstrap(&Config{Owner: env.owner, CloseFactor: decimal.MustParse("0.5")})
	if err != ErrAlreadyInitialized {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestCreateMarketRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	maxLTV := decimal.MustParse("0.5")
	_, err := env.engine.CreateMarket(addr(0x01), NativeAsset("uusd"), MarketParams{MaxLoanToValue: &maxLTV}, 0)
	if err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreateMarketRequiresAllParams(t *testing.T) {
	env := newTestEnv(t)
	maxLTV := decimal.MustParse("0.5")
	_, err := env.engine.CreateMarket(env.owner, NativeAsset("uusd"), MarketParams{MaxLoanToValue: &maxLTV}, 0)
	if err != ErrMissingParams {
		t.Fatalf("expected ErrMissingParams, got %v", err)
	}
}

func TestCreateMarketRejectsMarginBelowLTV(t *testing.T) {
	env := newTestEnv(t)
	maxLTV := decimal.MustParse("0.7")
	margin := decimal.MustParse("0.6")
	bonus := decimal.MustParse("0.1")
	reserve := decimal.MustParse("0.2")
	yes := true
	params := MarketParams{
		MaxLoanToValue:    &maxLTV,
		MaintenanceMargin: &margin,
		LiquidationBonus:  &bonus,
		ReserveFactor:     &reserve,
		Active:            &yes,
		DepositEnabled:    &yes,
		BorrowEnabled:     &yes,
		InterestRateStrategy: &InterestRateStrategy{
			Linear: &LinearInterestRate{OptimalUtilization: decimal.One()},
		},
	}
	if _, err := env.engine.CreateMarket(env.owner, NativeAsset("uusd"), params, 0); err != ErrMarginBelowLTV {
		t.Fatalf("expected ErrMarginBelowLTV, got %v", err)
	}
}

func TestRegisterShareTokenOnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	asset := NativeAsset("uusd")
	env.listMarket(t, asset, nil)
	_, err := env.engine.RegisterShareToken(asset, addr(0x99), 0)
	if err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized on rebind, got %v", err)
	}
}

func TestMarketIndexesAssignedSequentially(t *testing.T) {
	env := newTestEnv(t)
	first := env.listMarket(t, NativeAsset("uusd"), nil)
	second := env.listMarket(t, NativeAsset("uatom"), nil)
	if first.Index != 0 || second.Index != 1 {
		t.Fatalf("unexpected indexes: %d, %d", first.Index, second.Index)
	}
	if env.state.global.MarketCount != 2 {
		t.Fatalf("market count: %d", env.state.global.MarketCount)
	}
}

func TestBitmaskBounds(t *testing.T) {
	var mask uint256.Int
	if err := setBit(&mask, bitmaskWidth); err != ErrMarketIndexOutOfRange {
		t.Fatalf("expected out of range, got %v", err)
	}
	if err := setBit(&mask, bitmaskWidth-1); err != nil {
		t.Fatalf("set high bit: %v", err)
	}
	on, err := getBit(&mask, bitmaskWidth-1)
	if err != nil || !on {
		t.Fatalf("high bit not set: %v %v", on, err)
	}
	if err := clearBit(&mask, bitmaskWidth-1); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !mask.IsZero() {
		t.Fatalf("mask should be empty")
	}
}
