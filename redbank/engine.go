package redbank

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MetricsSink receives one observation per handler invocation.
type MetricsSink interface {
	ObserveOperation(op string, duration time.Duration, err error)
}

// MarketMetricsSink is implemented by sinks that additionally track per-market
// rate and index gauges. The engine feeds it after every rate recomputation.
type MarketMetricsSink interface {
	ObserveMarket(asset string, borrowRate, liquidityRate, borrowIndex, liquidityIndex float64)
}

// Engine orchestrates every state transition of the ledger. It owns no
// goroutines and expects single-threaded use: callers serialise operations
// and execute the returned instructions after each successful commit.
type Engine struct {
	state    State
	oracle   Oracle
	tokens   TokenSource
	bank     BankSource
	registry Registry
	pauses   PauseView
	metrics  MetricsSink
	log      *slog.Logger
	// pool is the address holding the ledger's underlying asset balances.
	pool common.Address
}

// NewEngine constructs an engine bound to the pool address that holds the
// ledger's asset balances. Collaborators are wired through the setters.
func NewEngine(pool common.Address) *Engine {
	return &Engine{pool: pool, log: slog.Default()}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state State) {
	if e == nil {
		return
	}
	e.state = state
}

// SetOracle wires the price oracle used for health checks.
func (e *Engine) SetOracle(oracle Oracle) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

// SetTokenSource wires the share token balance reader.
func (e *Engine) SetTokenSource(tokens TokenSource) {
	if e == nil {
		return
	}
	e.tokens = tokens
}

// SetBankSource wires the underlying asset balance reader.
func (e *Engine) SetBankSource(bank BankSource) {
	if e == nil {
		return
	}
	e.bank = bank
}

// SetRegistry wires the role address registry.
func (e *Engine) SetRegistry(registry Registry) {
	if e == nil {
		return
	}
	e.registry = registry
}

// SetPauses wires the governance pause switches.
func (e *Engine) SetPauses(p PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetMetrics wires the operation metrics sink.
func (e *Engine) SetMetrics(m MetricsSink) {
	if e == nil {
		return
	}
	e.metrics = m
}

// SetLogger overrides the default structured logger.
func (e *Engine) SetLogger(log *slog.Logger) {
	if e == nil || log == nil {
		return
	}
	e.log = log
}

// begin opens a buffered view of state for one operation. Nothing reaches the
// backing store until the overlay is flushed.
func (e *Engine) begin() (*stateOverlay, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return newStateOverlay(e.state), nil
}

// observe records one handler invocation. Called via defer with a named error
// so the final outcome is captured.
func (e *Engine) observe(op string, start time.Time, err *error) {
	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.ObserveOperation(op, elapsed, *err)
	}
	if *err != nil {
		e.log.Debug("redbank operation failed", "op", op, "err", *err, "elapsed", elapsed)
	}
}

// Bootstrap writes the initial configuration. It fails when the ledger has
// already been initialised.
func (e *Engine) Bootstrap(cfg *Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if cfg == nil {
		return ErrMissingParams
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	existing, err := e.state.Config()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyInitialized
	}
	if err := e.state.PutConfig(cfg); err != nil {
		return err
	}
	return e.state.PutGlobalState(&GlobalState{})
}

// requireConfig loads the ledger configuration, failing when uninitialised.
func requireConfig(st State) (*Config, error) {
	cfg, err := st.Config()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errNilState
	}
	return cfg, nil
}

// requireMarket loads a market by asset, failing when the asset is unlisted.
func requireMarket(st State, asset Asset) (*Market, error) {
	market, err := st.Market(asset.Reference())
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, ErrMarketNotFound
	}
	return market, nil
}

// userOrNew loads a user record, returning a fresh zero record when absent.
func userOrNew(st State, addr common.Address) (*User, error) {
	user, err := st.User(addr)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &User{}
	}
	return user, nil
}

// isOwner reports whether caller is the configured owner.
func isOwner(cfg *Config, caller common.Address) bool {
	return cfg.Owner == caller
}

// isAdmin reports whether caller is the owner or the registered protocol
// admin.
func (e *Engine) isAdmin(cfg *Config, caller common.Address) bool {
	if isOwner(cfg, caller) {
		return true
	}
	if e.registry == nil {
		return false
	}
	admin, err := e.registry.Resolve(RoleProtocolAdmin)
	if err != nil {
		return false
	}
	return admin == caller
}
