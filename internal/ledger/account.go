package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeWallet AccountSubType = iota

	// System sub-types
	SubTypeCollateralVault
	SubTypeStabilityVault
	SubTypeGainReserve
	SubTypeSystemFees

	// External sub-types
	SubTypeSupply
)

// StablecoinAsset is the protocol stablecoin denomination.
const StablecoinAsset = "USDF"

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

// AssetRegistry assigns stable numeric IDs to asset strings. Collateral
// denominations arrive at runtime via parameter updates, so the registry is
// mutable; only the single-threaded core writes it.
type AssetRegistry struct {
	toID   map[string]AssetID
	toName map[AssetID]string
	next   AssetID
}

func NewAssetRegistry() *AssetRegistry {
	r := &AssetRegistry{
		toID:   make(map[string]AssetID),
		toName: make(map[AssetID]string),
		next:   1,
	}
	r.Register(StablecoinAsset)
	return r
}

// Register returns the asset's ID, assigning the next free one on first use.
func (r *AssetRegistry) Register(asset string) AssetID {
	if id, ok := r.toID[asset]; ok {
		return id
	}
	id := r.next
	r.next++
	r.toID[asset] = id
	r.toName[id] = asset
	return id
}

func (r *AssetRegistry) ID(asset string) (AssetID, bool) {
	id, ok := r.toID[asset]
	return id, ok
}

func (r *AssetRegistry) Name(id AssetID) (string, bool) {
	name, ok := r.toName[id]
	return name, ok
}

// Names returns the registered asset strings in ID order (snapshot support).
func (r *AssetRegistry) Names() []string {
	out := make([]string, 0, len(r.toName))
	for id := AssetID(1); id < r.next; id++ {
		out = append(out, r.toName[id])
	}
	return out
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, zero for system/external accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for user wallet accounts
func NewUserAccountKey(userID uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  SubTypeWallet,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for system vault accounts
func NewSystemAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: subType,
		AssetID: assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging. The
// asset name is resolved through the registry at call sites that have one;
// here only the numeric ID is rendered to keep the key self-contained.
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%d", uid.String(), k.subTypeName(), k.AssetID)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%d", k.subTypeName(), k.AssetID)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%d", k.subTypeName(), k.AssetID)
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath, used when restoring
// balances from a snapshot. Malformed paths return the zero key and false.
func ParseAccountPath(path string) (AccountKey, bool) {
	parts := strings.Split(path, ":")

	switch parts[0] {
	case "user":
		if len(parts) != 4 {
			return AccountKey{}, false
		}
		uid, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, false
		}
		subType, ok := subTypeFromName(parts[2])
		if !ok {
			return AccountKey{}, false
		}
		assetID, err := strconv.ParseUint(parts[3], 10, 16)
		if err != nil {
			return AccountKey{}, false
		}
		return AccountKey{
			Scope:    AccountScopeUser,
			EntityID: uid,
			SubType:  subType,
			AssetID:  AssetID(assetID),
		}, true

	case "system", "external":
		if len(parts) != 3 {
			return AccountKey{}, false
		}
		subType, ok := subTypeFromName(parts[1])
		if !ok {
			return AccountKey{}, false
		}
		assetID, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return AccountKey{}, false
		}
		scope := AccountScopeSystem
		if parts[0] == "external" {
			scope = AccountScopeExternal
		}
		return AccountKey{
			Scope:   scope,
			SubType: subType,
			AssetID: AssetID(assetID),
		}, true
	}

	return AccountKey{}, false
}

func subTypeFromName(name string) (AccountSubType, bool) {
	switch name {
	case "wallet":
		return SubTypeWallet, true
	case "collateral_vault":
		return SubTypeCollateralVault, true
	case "stability_vault":
		return SubTypeStabilityVault, true
	case "gain_reserve":
		return SubTypeGainReserve, true
	case "fees":
		return SubTypeSystemFees, true
	case "supply":
		return SubTypeSupply, true
	}
	return 0, false
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeWallet:
		return "wallet"
	case SubTypeCollateralVault:
		return "collateral_vault"
	case SubTypeStabilityVault:
		return "stability_vault"
	case SubTypeGainReserve:
		return "gain_reserve"
	case SubTypeSystemFees:
		return "fees"
	case SubTypeSupply:
		return "supply"
	default:
		return "unknown"
	}
}
