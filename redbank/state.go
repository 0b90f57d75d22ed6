package redbank

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State is the narrow persistence surface the ledger depends on. Lookups for
// absent records return (nil, nil); only backend failures produce errors.
type State interface {
	Config() (*Config, error)
	PutConfig(cfg *Config) error
	GlobalState() (*GlobalState, error)
	PutGlobalState(gs *GlobalState) error
	Market(ref []byte) (*Market, error)
	PutMarket(market *Market) error
	MarketRefByIndex(index uint32) ([]byte, error)
	PutMarketRefByIndex(index uint32, ref []byte) error
	MarketRefByShareToken(token common.Address) ([]byte, error)
	PutMarketRefByShareToken(token common.Address, ref []byte) error
	User(addr common.Address) (*User, error)
	PutUser(addr common.Address, user *User) error
	Debt(ref []byte, addr common.Address) (*Debt, error)
	PutDebt(ref []byte, addr common.Address, debt *Debt) error
	UncollateralizedLimit(ref []byte, addr common.Address) (*big.Int, error)
	PutUncollateralizedLimit(ref []byte, addr common.Address, limit *big.Int) error
}

// stateOverlay buffers every write issued during one operation and only
// applies them to the backing state when the operation succeeds. Reads see the
// buffered writes, so handlers observe their own updates mid-operation while
// a failure discards everything at once. Records read through from the base
// are cloned so in-place mutation by a handler never reaches the base before
// flush.
type stateOverlay struct {
	base State

	config      *Config
	global      *GlobalState
	markets     map[string]*Market
	refsByIndex map[uint32][]byte
	refsByToken map[common.Address][]byte
	users       map[common.Address]*User
	debts       map[string]*Debt
	limits      map[string]*big.Int
}

func newStateOverlay(base State) *stateOverlay {
	return &stateOverlay{
		base:        base,
		markets:     make(map[string]*Market),
		refsByIndex: make(map[uint32][]byte),
		refsByToken: make(map[common.Address][]byte),
		users:       make(map[common.Address]*User),
		debts:       make(map[string]*Debt),
		limits:      make(map[string]*big.Int),
	}
}

func positionKey(ref []byte, addr common.Address) string {
	return string(ref) + "|" + string(addr.Bytes())
}

func (o *stateOverlay) Config() (*Config, error) {
	if o.config != nil {
		return o.config, nil
	}
	cfg, err := o.base.Config()
	if err != nil || cfg == nil {
		return nil, err
	}
	clone := *cfg
	return &clone, nil
}

func (o *stateOverlay) PutConfig(cfg *Config) error {
	o.config = cfg
	return nil
}

func (o *stateOverlay) GlobalState() (*GlobalState, error) {
	if o.global != nil {
		return o.global, nil
	}
	gs, err := o.base.GlobalState()
	if err != nil || gs == nil {
		return nil, err
	}
	clone := *gs
	return &clone, nil
}

func (o *stateOverlay) PutGlobalState(gs *GlobalState) error {
	o.global = gs
	return nil
}

func (o *stateOverlay) Market(ref []byte) (*Market, error) {
	if m, ok := o.markets[string(ref)]; ok {
		return m, nil
	}
	m, err := o.base.Market(ref)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

func (o *stateOverlay) PutMarket(market *Market) error {
	o.markets[string(market.Asset.Reference())] = market
	return nil
}

func (o *stateOverlay) MarketRefByIndex(index uint32) ([]byte, error) {
	if ref, ok := o.refsByIndex[index]; ok {
		return ref, nil
	}
	return o.base.MarketRefByIndex(index)
}

func (o *stateOverlay) PutMarketRefByIndex(index uint32, ref []byte) error {
	o.refsByIndex[index] = ref
	return nil
}

func (o *stateOverlay) MarketRefByShareToken(token common.Address) ([]byte, error) {
	if ref, ok := o.refsByToken[token]; ok {
		return ref, nil
	}
	return o.base.MarketRefByShareToken(token)
}

func (o *stateOverlay) PutMarketRefByShareToken(token common.Address, ref []byte) error {
	o.refsByToken[token] = ref
	return nil
}

func (o *stateOverlay) User(addr common.Address) (*User, error) {
	if u, ok := o.users[addr]; ok {
		return u, nil
	}
	u, err := o.base.User(addr)
	if err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

func (o *stateOverlay) PutUser(addr common.Address, user *User) error {
	o.users[addr] = user
	return nil
}

func (o *stateOverlay) Debt(ref []byte, addr common.Address) (*Debt, error) {
	if d, ok := o.debts[positionKey(ref, addr)]; ok {
		return d, nil
	}
	d, err := o.base.Debt(ref, addr)
	if err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

func (o *stateOverlay) PutDebt(ref []byte, addr common.Address, debt *Debt) error {
	o.debts[positionKey(ref, addr)] = debt
	return nil
}

func (o *stateOverlay) UncollateralizedLimit(ref []byte, addr common.Address) (*big.Int, error) {
	if l, ok := o.limits[positionKey(ref, addr)]; ok {
		return l, nil
	}
	l, err := o.base.UncollateralizedLimit(ref, addr)
	if err != nil || l == nil {
		return nil, err
	}
	return new(big.Int).Set(l), nil
}

func (o *stateOverlay) PutUncollateralizedLimit(ref []byte, addr common.Address, limit *big.Int) error {
	o.limits[positionKey(ref, addr)] = limit
	return nil
}

// flush writes the buffered updates through to the backing state.
func (o *stateOverlay) flush() error {
	if o.config != nil {
		if err := o.base.PutConfig(o.config); err != nil {
			return err
		}
	}
	if o.global != nil {
		if err := o.base.PutGlobalState(o.global); err != nil {
			return err
		}
	}
	for _, market := range o.markets {
		if err := o.base.PutMarket(market); err != nil {
			return err
		}
	}
	for index, ref := range o.refsByIndex {
		if err := o.base.PutMarketRefByIndex(index, ref); err != nil {
			return err
		}
	}
	for token, ref := range o.refsByToken {
		if err := o.base.PutMarketRefByShareToken(token, ref); err != nil {
			return err
		}
	}
	for addr, user := range o.users {
		if err := o.base.PutUser(addr, user); err != nil {
			return err
		}
	}
	for key, debt := range o.debts {
		ref, addr := splitPositionKey(key)
		if err := o.base.PutDebt(ref, addr, debt); err != nil {
			return err
		}
	}
	for key, limit := range o.limits {
		ref, addr := splitPositionKey(key)
		if err := o.base.PutUncollateralizedLimit(ref, addr, limit); err != nil {
			return err
		}
	}
	return nil
}

func splitPositionKey(key string) ([]byte, common.Address) {
	// The address occupies the last 20 bytes; the separator sits before it.
	addr := common.BytesToAddress([]byte(key[len(key)-common.AddressLength:]))
	ref := []byte(key[:len(key)-common.AddressLength-1])
	return ref, addr
}
