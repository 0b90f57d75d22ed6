package redbank

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"redbank/storage"
)

// Store persists ledger records in a key-value database using RLP encoding.
// It implements State; absent records decode to nil rather than errors.
type Store struct {
	db storage.Database
}

// NewStore binds a store to the provided database backend.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) put(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

func (s *Store) Config() (*Config, error) {
	cfg := new(Config)
	ok, err := s.get(configKey, cfg)
	if err != nil || !ok {
		return nil, err
	}
	return cfg, nil
}

func (s *Store) PutConfig(cfg *Config) error {
	return s.put(configKey, cfg)
}

func (s *Store) GlobalState() (*GlobalState, error) {
	gs := new(GlobalState)
	ok, err := s.get(globalStateKey, gs)
	if err != nil || !ok {
		return nil, err
	}
	return gs, nil
}

func (s *Store) PutGlobalState(gs *GlobalState) error {
	return s.put(globalStateKey, gs)
}

func (s *Store) Market(ref []byte) (*Market, error) {
	market := new(Market)
	ok, err := s.get(marketKey(ref), market)
	if err != nil || !ok {
		return nil, err
	}
	market.ensureDefaults()
	return market, nil
}

func (s *Store) PutMarket(market *Market) error {
	market.ensureDefaults()
	return s.put(marketKey(market.Asset.Reference()), market)
}

func (s *Store) MarketRefByIndex(index uint32) ([]byte, error) {
	var ref []byte
	ok, err := s.get(marketIndexKey(index), &ref)
	if err != nil || !ok {
		return nil, err
	}
	return ref, nil
}

func (s *Store) PutMarketRefByIndex(index uint32, ref []byte) error {
	return s.put(marketIndexKey(index), ref)
}

func (s *Store) MarketRefByShareToken(token common.Address) ([]byte, error) {
	var ref []byte
	ok, err := s.get(marketTokenKey(token), &ref)
	if err != nil || !ok {
		return nil, err
	}
	return ref, nil
}

func (s *Store) PutMarketRefByShareToken(token common.Address, ref []byte) error {
	return s.put(marketTokenKey(token), ref)
}

func (s *Store) User(addr common.Address) (*User, error) {
	user := new(User)
	ok, err := s.get(userKey(addr), user)
	if err != nil || !ok {
		return nil, err
	}
	return user, nil
}

func (s *Store) PutUser(addr common.Address, user *User) error {
	return s.put(userKey(addr), user)
}

func (s *Store) Debt(ref []byte, addr common.Address) (*Debt, error) {
	debt := new(Debt)
	ok, err := s.get(debtKey(ref, addr), debt)
	if err != nil || !ok {
		return nil, err
	}
	debt.ensureDefaults()
	return debt, nil
}

func (s *Store) PutDebt(ref []byte, addr common.Address, debt *Debt) error {
	debt.ensureDefaults()
	return s.put(debtKey(ref, addr), debt)
}

func (s *Store) UncollateralizedLimit(ref []byte, addr common.Address) (*big.Int, error) {
	limit := new(big.Int)
	ok, err := s.get(limitKey(ref, addr), limit)
	if err != nil || !ok {
		return nil, err
	}
	return limit, nil
}

func (s *Store) PutUncollateralizedLimit(ref []byte, addr common.Address, limit *big.Int) error {
	if limit == nil {
		limit = new(big.Int)
	}
	return s.put(limitKey(ref, addr), limit)
}
