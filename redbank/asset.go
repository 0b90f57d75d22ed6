package redbank

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AssetKind distinguishes native coins, identified by denom, from
// token-contract assets identified by their contract address.
type AssetKind uint8

const (
	// AssetNative is a chain-native coin such as a staking or fee denom.
	AssetNative AssetKind = iota
	// AssetToken is an asset held by an external token contract.
	AssetToken
)

// Asset references an underlying asset listed on the ledger. The reference
// bytes key every market, debt and limit record for the asset.
type Asset struct {
	Kind  AssetKind
	Denom string
	Token common.Address
}

// NativeAsset builds a reference to a native coin.
func NativeAsset(denom string) Asset {
	return Asset{Kind: AssetNative, Denom: strings.TrimSpace(denom)}
}

// TokenAsset builds a reference to a token-contract asset.
func TokenAsset(token common.Address) Asset {
	return Asset{Kind: AssetToken, Token: token}
}

// Reference returns the opaque bytes that key this asset in state.
func (a Asset) Reference() []byte {
	if a.Kind == AssetToken {
		return a.Token.Bytes()
	}
	return []byte(a.Denom)
}

// Label renders a human-readable identifier used in events and errors.
func (a Asset) Label() string {
	if a.Kind == AssetToken {
		return a.Token.Hex()
	}
	return a.Denom
}

// ParseAsset reads an asset reference from its textual form: a hex contract
// address for token assets, anything else is treated as a native denom.
func ParseAsset(s string) Asset {
	trimmed := strings.TrimSpace(s)
	if common.IsHexAddress(trimmed) {
		return TokenAsset(common.HexToAddress(trimmed))
	}
	return NativeAsset(trimmed)
}
