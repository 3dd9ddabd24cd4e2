package model

// AssetFlags bit-packs the small set of permission/behaviour toggles an
// asset can carry (market issued, white-listed transfers, ...).
type AssetFlags uint32

const (
	AssetFlagMarketIssued AssetFlags = 1 << iota
	AssetFlagWhitelist
	AssetFlagHaltedTransfer
)

// Asset is the chain-state record for one registered asset type.
type Asset struct {
	ID             AssetID    `json:"id"`
	Symbol         string     `json:"symbol"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Issuer         AccountID  `json:"issuer"`
	Precision      uint8      `json:"precision"`
	CurrentSupply  uint64     `json:"current_supply"`
	MaximumSupply  uint64     `json:"maximum_supply"`
	CollectedFees  uint64     `json:"collected_fees"`
	Flags          AssetFlags `json:"flags"`
	Permissions    AssetFlags `json:"permissions"`
}

// IsMarketIssued reports whether this asset is debt minted and destroyed
// by the market engine rather than issued by an account.
func (a Asset) IsMarketIssued() bool { return a.Flags&AssetFlagMarketIssued != 0 }

// CanIssue reports whether current + amount would stay within the cap.
func (a Asset) CanIssue(amount uint64) bool {
	return amount <= a.MaximumSupply-a.CurrentSupply
}
