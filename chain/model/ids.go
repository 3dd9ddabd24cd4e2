// Package model defines the entity types shared by every layer of the
// chain engine: block and fork records, accounts, assets, balances,
// transactions, and market orders. Nothing in this package touches disk
// or owns a mutex; it is the common vocabulary the other packages share.
package model

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// BlockID is the hash of a block header, hex encoded with a 0x prefix.
type BlockID string

// ZeroBlockID is the previous-id of the genesis block.
const ZeroBlockID BlockID = "0x0000000000000000000000000000000000000000000000000000000000000000"

// AccountID is a compact integer identifier for an account.
type AccountID uint64

// AssetID is a compact integer identifier for an asset.
type AssetID uint64

// CoreAssetID is the base asset every chain denominates relay fees and
// delegate pay in, always the first asset genesis creates.
const CoreAssetID AssetID = 0

// MarketIssuedIssuer is the sentinel issuer used for assets that are not
// issued by any account but are created and destroyed by the market engine
// (collateralized debt).
const MarketIssuedIssuer AccountID = 0

// BalanceID identifies a balance record; derived from the claim condition
// it protects so that two balances with the same owner/asset but different
// claim conditions (e.g. vesting vs signature) never collide.
type BalanceID string

// NewBalanceID derives a balance id from its owner, asset and claim kind.
func NewBalanceID(owner AccountID, asset AssetID, claim ClaimKind, slateID uint64) BalanceID {
	return BalanceID(fmt.Sprintf("%d:%d:%d:%d", owner, asset, claim, slateID))
}

// ClaimKind enumerates how a balance can be spent.
type ClaimKind int

const (
	ClaimSignature ClaimKind = iota
	ClaimVesting
	ClaimMultisig
	ClaimCover
)

// String renders the id in decimal for logging.
func (a AccountID) String() string { return strconv.FormatUint(uint64(a), 10) }

// String renders the id in decimal for logging.
func (a AssetID) String() string { return strconv.FormatUint(uint64(a), 10) }

// IsZero reports whether the block id is the all-zero genesis-parent
// sentinel.
func (b BlockID) IsZero() bool { return b == ZeroBlockID || b == "" }

// hexDecodeOrEmpty is a small helper used by packers that need the raw
// bytes of a block id without the 0x prefix.
func hexDecodeOrEmpty(s string) []byte {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
