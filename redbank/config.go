package redbank

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"redbank/decimal"
)

// GenesisConfig is the TOML bootstrap description of the ledger: the owner,
// the close factor and the initial market listings.
type GenesisConfig struct {
	Owner       string          `toml:"Owner"`
	CloseFactor decimal.Decimal `toml:"CloseFactor"`
	Markets     []MarketConfig  `toml:"markets"`
}

// MarketConfig describes one market listing in the genesis file.
type MarketConfig struct {
	Asset             string          `toml:"Asset"`
	MaxLoanToValue    decimal.Decimal `toml:"MaxLoanToValue"`
	MaintenanceMargin decimal.Decimal `toml:"MaintenanceMargin"`
	LiquidationBonus  decimal.Decimal `toml:"LiquidationBonus"`
	ReserveFactor     decimal.Decimal `toml:"ReserveFactor"`
	Active            bool            `toml:"Active"`
	DepositEnabled    bool            `toml:"DepositEnabled"`
	BorrowEnabled     bool            `toml:"BorrowEnabled"`

	Linear  *LinearRateConfig  `toml:"linear"`
	Dynamic *DynamicRateConfig `toml:"dynamic"`
}

// LinearRateConfig configures the kinked linear rate model.
type LinearRateConfig struct {
	OptimalUtilization decimal.Decimal `toml:"OptimalUtilization"`
	Base               decimal.Decimal `toml:"Base"`
	Slope1             decimal.Decimal `toml:"Slope1"`
	Slope2             decimal.Decimal `toml:"Slope2"`
}

// DynamicRateConfig configures the proportional controller rate model.
type DynamicRateConfig struct {
	MinBorrowRate           decimal.Decimal `toml:"MinBorrowRate"`
	MaxBorrowRate           decimal.Decimal `toml:"MaxBorrowRate"`
	OptimalUtilization      decimal.Decimal `toml:"OptimalUtilization"`
	Kp1                     decimal.Decimal `toml:"Kp1"`
	Kp2                     decimal.Decimal `toml:"Kp2"`
	KpAugmentationThreshold decimal.Decimal `toml:"KpAugmentationThreshold"`
}

// LoadGenesis reads and validates a genesis file.
func LoadGenesis(path string) (*GenesisConfig, error) {
	cfg := new(GenesisConfig)
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode genesis %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the genesis invariants before any state is written.
func (g *GenesisConfig) Validate() error {
	if !common.IsHexAddress(strings.TrimSpace(g.Owner)) {
		return fmt.Errorf("redbank: genesis owner %q is not a valid address", g.Owner)
	}
	if g.CloseFactor.GT(decimal.One()) {
		return ErrParamRange
	}
	for i := range g.Markets {
		if err := g.Markets[i].validate(); err != nil {
			return fmt.Errorf("market %q: %w", g.Markets[i].Asset, err)
		}
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if strings.TrimSpace(m.Asset) == "" {
		return ErrMissingParams
	}
	if _, err := m.Strategy(); err != nil {
		return err
	}
	for _, d := range []decimal.Decimal{m.MaxLoanToValue, m.MaintenanceMargin, m.LiquidationBonus, m.ReserveFactor} {
		if d.GT(decimal.One()) {
			return ErrParamRange
		}
	}
	if m.MaintenanceMargin.LTE(m.MaxLoanToValue) {
		return ErrMarginBelowLTV
	}
	return nil
}

// Config converts the genesis into the persisted ledger configuration.
func (g *GenesisConfig) Config() *Config {
	return &Config{
		Owner:       common.HexToAddress(strings.TrimSpace(g.Owner)),
		CloseFactor: g.CloseFactor,
	}
}

// Strategy builds the interest rate strategy declared for the market.
func (m *MarketConfig) Strategy() (*InterestRateStrategy, error) {
	strategy := &InterestRateStrategy{}
	if m.Linear != nil {
		strategy.Linear = &LinearInterestRate{
			OptimalUtilization: m.Linear.OptimalUtilization,
			Base:               m.Linear.Base,
			Slope1:             m.Linear.Slope1,
			Slope2:             m.Linear.Slope2,
		}
	}
	if m.Dynamic != nil {
		strategy.Dynamic = &DynamicInterestRate{
			MinBorrowRate:           m.Dynamic.MinBorrowRate,
			MaxBorrowRate:           m.Dynamic.MaxBorrowRate,
			OptimalUtilization:      m.Dynamic.OptimalUtilization,
			Kp1:                     m.Dynamic.Kp1,
			Kp2:                     m.Dynamic.Kp2,
			KpAugmentationThreshold: m.Dynamic.KpAugmentationThreshold,
		}
	}
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	return strategy, nil
}

// Params converts the listing into creation parameters.
func (m *MarketConfig) Params() (MarketParams, error) {
	strategy, err := m.Strategy()
	if err != nil {
		return MarketParams{}, err
	}
	maxLTV := m.MaxLoanToValue
	margin := m.MaintenanceMargin
	bonus := m.LiquidationBonus
	reserve := m.ReserveFactor
	active := m.Active
	deposit := m.DepositEnabled
	borrow := m.BorrowEnabled
	return MarketParams{
		MaxLoanToValue:       &maxLTV,
		MaintenanceMargin:    &margin,
		LiquidationBonus:     &bonus,
		ReserveFactor:        &reserve,
		Active:               &active,
		DepositEnabled:       &deposit,
		BorrowEnabled:        &borrow,
		InterestRateStrategy: strategy,
	}, nil
}
