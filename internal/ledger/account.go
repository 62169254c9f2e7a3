package ledger

import (
	"fmt"
	"strings"

	"CfdLedger/internal/address"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeVault
	AccountScopeIssuance
)

func (s AccountScope) String() string {
	switch s {
	case AccountScopeUser:
		return "user"
	case AccountScopeVault:
		return "vault"
	case AccountScopeIssuance:
		return "issuance"
	default:
		return "unknown"
	}
}

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

const (
	AssetUSDC        AssetID = 1 // collateral and stablecoin leg
	AssetLong        AssetID = 2 // long position token
	AssetShort       AssetID = 3 // short position token
	AssetLP          AssetID = 4 // AMM LP token
	AssetCaden       AssetID = 5 // governance token
	AssetStakedCaden AssetID = 6 // staking receipt
	AssetSlot        AssetID = 7 // settlement-slot pool token
)

var (
	assetToID = map[string]AssetID{
		"USDC":      AssetUSDC,
		"LONG":      AssetLong,
		"SHORT":     AssetShort,
		"LP":        AssetLP,
		"CADEN":     AssetCaden,
		"STK_CADEN": AssetStakedCaden,
		"SLOT":      AssetSlot,
	}
	idToAsset = map[AssetID]string{
		AssetUSDC:        "USDC",
		AssetLong:        "LONG",
		AssetShort:       "SHORT",
		AssetLP:          "LP",
		AssetCaden:       "CADEN",
		AssetStakedCaden: "STK_CADEN",
		AssetSlot:        "SLOT",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

func (a AssetID) String() string {
	if name, ok := idToAsset[a]; ok {
		return name
	}
	return fmt.Sprintf("ASSET(%d)", uint16(a))
}

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope   AccountScope
	Owner   address.Address // user key or vault key; zero for issuance
	AssetID AssetID
}

// UserAccount is the wallet of owner for one asset.
func UserAccount(owner address.Address, asset AssetID) AccountKey {
	return AccountKey{Scope: AccountScopeUser, Owner: owner, AssetID: asset}
}

// VaultAccount is a program-controlled account at a derived vault key.
func VaultAccount(vault address.Address, asset AssetID) AccountKey {
	return AccountKey{Scope: AccountScopeVault, Owner: vault, AssetID: asset}
}

// IssuanceAccount is the contra account of an asset's mint. Its balance is
// minus the circulating supply.
func IssuanceAccount(asset AssetID) AccountKey {
	return AccountKey{Scope: AccountScopeIssuance, AssetID: asset}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	if k.Scope == AccountScopeIssuance {
		return fmt.Sprintf("issuance:%s", k.AssetID)
	}
	return fmt.Sprintf("%s:%s:%s", k.Scope, k.Owner, k.AssetID)
}

func (k AccountKey) String() string { return k.AccountPath() }

// ParseAccountPath is the inverse of AccountPath.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	switch {
	case len(parts) == 2 && parts[0] == "issuance":
		asset, ok := GetAssetID(parts[1])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown asset", path)
		}
		return IssuanceAccount(asset), nil
	case len(parts) == 3:
		asset, ok := GetAssetID(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown asset", path)
		}
		owner, err := address.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		switch parts[0] {
		case "user":
			return UserAccount(owner, asset), nil
		case "vault":
			return VaultAccount(owner, asset), nil
		}
	}
	return AccountKey{}, fmt.Errorf("account path %q: malformed", path)
}
