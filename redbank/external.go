package redbank

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Roles resolved through the address registry.
const (
	// RoleRewardsCollector receives the protocol's reserve-factor share of
	// accrued interest as minted pool shares.
	RoleRewardsCollector = "rewards_collector"
	// RoleProtocolAdmin may adjust market flags without being the owner.
	RoleProtocolAdmin = "protocol_admin"
)

// Oracle prices assets in the common quote unit used for health checks.
type Oracle interface {
	PriceOf(asset Asset) (*big.Int, error)
}

// TokenSource reads balances and supply from deployed share token contracts.
type TokenSource interface {
	BalanceOf(token common.Address, account common.Address) (*big.Int, error)
	TotalSupply(token common.Address) (*big.Int, error)
}

// BankSource reads the ledger's own on-hand asset balances. The returned
// balance already includes funds delivered alongside the current operation.
type BankSource interface {
	AssetBalance(asset Asset, holder common.Address) (*big.Int, error)
}

// Registry resolves well-known role names to addresses.
type Registry interface {
	Resolve(role string) (common.Address, error)
}

// Instruction is an external side effect the caller must execute after the
// handler commits. Handlers never move funds or touch token contracts
// directly; they emit instructions so a failed operation leaves no external
// trace.
type Instruction interface {
	instruction()
}

// MintShares credits newly minted pool shares to a recipient.
type MintShares struct {
	Token     common.Address
	Recipient common.Address
	Amount    *big.Int
}

// BurnShares destroys pool shares held by an account.
type BurnShares struct {
	Token  common.Address
	Holder common.Address
	Amount *big.Int
}

// TransferSharesOnLiquidation moves collateral shares from the liquidated
// account to the liquidator without a health check on the sender.
type TransferSharesOnLiquidation struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// DeployShareToken asks the caller to instantiate the ownership token for a
// freshly created market and call back with its address.
type DeployShareToken struct {
	Asset  Asset
	Name   string
	Symbol string
}

// SendAsset transfers underlying asset out of the pool to a recipient.
type SendAsset struct {
	Asset     Asset
	Recipient common.Address
	Amount    *big.Int
}

func (MintShares) instruction()                  {}
func (BurnShares) instruction()                  {}
func (TransferSharesOnLiquidation) instruction() {}
func (DeployShareToken) instruction()            {}
func (SendAsset) instruction()                   {}

// Attribute is a key/value pair attached to a handler response.
type Attribute struct {
	Key   string
	Value string
}

// Response carries the external side effects and telemetry of a successful
// operation. State changes have already been committed when a handler returns
// a response.
type Response struct {
	Instructions []Instruction
	Events       []Event
	Attributes   []Attribute
}

func (r *Response) addInstruction(in Instruction) {
	r.Instructions = append(r.Instructions, in)
}

func (r *Response) addEvent(ev Event) {
	r.Events = append(r.Events, ev)
}

func (r *Response) addAttribute(key, value string) {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
}
