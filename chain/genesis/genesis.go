// Package genesis loads the genesis description and bootstraps a fresh
// chain state from it (spec.md §6, "Genesis bootstrapper"): god account,
// delegates, the core asset, initial balances, vesting, and any
// additional market-issued assets.
package genesis

import (
	"encoding/json"
	"os"

	"github.com/deltachain/core/chain/model"
	"github.com/deltachain/core/chain/overlay"
)

// DelegateSeed is one genesis delegate.
type DelegateSeed struct {
	Name     string `json:"name"`
	OwnerKey string `json:"owner_key"`
}

// BalanceSeed credits a raw address with an initial balance of the core
// asset.
type BalanceSeed struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// VestingSeed schedules a vested balance for an owner address.
type VestingSeed struct {
	Owner        string `json:"owner"`
	StartTime    int64  `json:"start_time"`
	DurationDays int    `json:"duration_days"`
	Amount       uint64 `json:"amount"`
}

// MarketAssetSeed describes an asset to create at genesis. The first
// entry is the core asset the rest of the description denominates
// balances and fees in.
type MarketAssetSeed struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Precision   uint8  `json:"precision"`
	MaxSupply   uint64 `json:"max_supply"`
}

// Description is the structured genesis record (spec.md §6).
type Description struct {
	Timestamp       int64             `json:"timestamp"`
	Delegates       []DelegateSeed    `json:"delegates"`
	InitialBalances []BalanceSeed     `json:"initial_balances"`
	Vesting         []VestingSeed     `json:"vesting"`
	MarketAssets    []MarketAssetSeed `json:"market_assets"`
}

// Load reads and parses a genesis description from disk.
func Load(path string) (Description, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Description{}, err
	}
	var d Description
	if err := json.Unmarshal(content, &d); err != nil {
		return Description{}, err
	}
	return d, nil
}

// Pack returns the canonical byte form of d used to derive the chain id.
// A true length-prefixed binary packing is one legal wire form; this
// engine uses d's JSON encoding, the same choice chain/model makes for
// block headers.
func Pack(d Description) []byte {
	b, _ := json.Marshal(d)
	return b
}

// wellKnownChainID is substituted whenever a description packs to the
// pre-agreed canonical hash, so operators can stand up the reference
// chain without hand-copying a generated id.
const (
	wellKnownGenesisHash = "0x0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000"
	wellKnownChainID     = uint16(0)
)

// ChainID derives the chain id from the packed description, substituting
// the well-known id when the packed form hashes to the reserved value
// (spec.md §6: "a fixed substitution of one well-known hash to allow
// pre-agreed chain id").
func ChainID(d Description) uint16 {
	h := model.HashBytes(Pack(d))
	if h == wellKnownGenesisHash {
		return wellKnownChainID
	}
	var id uint16
	for i := 2; i < len(h) && i < 6; i++ {
		id = id<<4 | uint16(hexNibble(h[i]))
	}
	if id == 0 {
		id = 1
	}
	return id
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

// CommitteeAccountID is the god account every genesis description
// implicitly registers first, owning unissued supply and acting as the
// default issuer of the core asset.
const CommitteeAccountID model.AccountID = 0

// Result summarises the ids genesis bootstrap assigned, so the caller
// (chain/engine) can record them without re-deriving assumptions about
// allocation order.
type Result struct {
	ChainID      uint16
	CoreAssetID  model.AssetID
	DelegateIDs  []model.AccountID
	AssetIDs     map[string]model.AssetID
	AccountIDs   map[string]model.AccountID
}

// Bootstrap populates w with the accounts, assets, and balances described
// by d. w is expected to be empty. Writes go straight to w; chain/engine's
// Bootstrap passes its chainstate.View itself, so a bootstrap that fails
// part way keeps the writes made before the failure.
func Bootstrap(d Description, w overlay.Writer) (Result, error) {
	res := Result{
		AssetIDs:   make(map[string]model.AssetID),
		AccountIDs: make(map[string]model.AccountID),
	}
	res.ChainID = ChainID(d)

	if err := w.StoreAccount(model.Account{
		ID:            CommitteeAccountID,
		Name:          "committee-account",
		RegisteredAt:  d.Timestamp,
		LastUpdatedAt: d.Timestamp,
	}); err != nil {
		return res, err
	}
	res.AccountIDs["committee-account"] = CommitteeAccountID

	nextAccount := CommitteeAccountID + 1
	nextAsset := model.AssetID(0)

	for i, seed := range d.MarketAssets {
		asset := model.Asset{
			ID:            nextAsset,
			Symbol:        seed.Symbol,
			Name:          seed.Name,
			Description:   seed.Description,
			Issuer:        CommitteeAccountID,
			Precision:     seed.Precision,
			MaximumSupply: seed.MaxSupply,
		}
		if i > 0 {
			asset.Flags |= model.AssetFlagMarketIssued
		}
		if err := w.StoreAsset(asset); err != nil {
			return res, err
		}
		res.AssetIDs[seed.Symbol] = nextAsset
		if i == 0 {
			res.CoreAssetID = nextAsset
		}
		nextAsset++
	}

	for _, seed := range d.Delegates {
		acc := model.Account{
			ID:            nextAccount,
			Name:          seed.Name,
			OwnerKey:      seed.OwnerKey,
			Address:       seed.OwnerKey,
			RegisteredAt:  d.Timestamp,
			LastUpdatedAt: d.Timestamp,
			Delegate: &model.DelegateInfo{
				PayRatePercent: 100,
			},
		}
		if err := w.StoreAccount(acc); err != nil {
			return res, err
		}
		res.DelegateIDs = append(res.DelegateIDs, acc.ID)
		res.AccountIDs[seed.Name] = acc.ID
		nextAccount++
	}

	addressToAccount := func(address string) (model.AccountID, error) {
		id := nextAccount
		acc := model.Account{
			ID:            id,
			Name:          address,
			Address:       address,
			RegisteredAt:  d.Timestamp,
			LastUpdatedAt: d.Timestamp,
		}
		if err := w.StoreAccount(acc); err != nil {
			return 0, err
		}
		res.AccountIDs[address] = id
		nextAccount++
		return id, nil
	}

	for _, seed := range d.InitialBalances {
		ownerID, ok := res.AccountIDs[seed.Address]
		if !ok {
			var err error
			ownerID, err = addressToAccount(seed.Address)
			if err != nil {
				return res, err
			}
		}
		balID := model.NewBalanceID(ownerID, res.CoreAssetID, model.ClaimSignature, 0)
		if err := w.StoreBalance(model.Balance{
			ID:            balID,
			Owner:         ownerID,
			AssetID:       res.CoreAssetID,
			Amount:        seed.Amount,
			Claim:         model.ClaimSignature,
			LastUpdatedAt: d.Timestamp,
		}); err != nil {
			return res, err
		}
	}

	for i, seed := range d.Vesting {
		ownerID, ok := res.AccountIDs[seed.Owner]
		if !ok {
			var err error
			ownerID, err = addressToAccount(seed.Owner)
			if err != nil {
				return res, err
			}
		}
		balID := model.NewBalanceID(ownerID, res.CoreAssetID, model.ClaimVesting, uint64(i)+1)
		if err := w.StoreBalance(model.Balance{
			ID:      balID,
			Owner:   ownerID,
			AssetID: res.CoreAssetID,
			Amount:  seed.Amount,
			Claim:   model.ClaimVesting,
			Snapshot: &model.SnapshotInfo{
				SnapshotAmount: seed.Amount,
				SnapshotAt:     seed.StartTime,
			},
			LastUpdatedAt: d.Timestamp,
			SlateID:       uint64(seed.DurationDays),
		}); err != nil {
			return res, err
		}
	}

	return res, nil
}
