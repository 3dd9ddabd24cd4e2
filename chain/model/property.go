package model

// PropertyKey names one entry of the singleton property store.
type PropertyKey string

const (
	PropertyChainID                  PropertyKey = "chain_id"
	PropertyDatabaseVersion          PropertyKey = "database_version"
	PropertyActiveDelegateList       PropertyKey = "active_delegate_list"
	PropertyLastRandomSeed           PropertyKey = "last_random_seed"
	PropertyLastAssetID              PropertyKey = "last_asset_id"
	PropertyLastAccountID            PropertyKey = "last_account_id"
	PropertyRequiredConfirmationCount PropertyKey = "required_confirmation_count"
	PropertyLastObjectID             PropertyKey = "last_object_id"
)

// Slot is one (slot-start-time, delegate) scheduling entry. BlockID is
// filled in once the delegate's block for the slot has been applied.
type Slot struct {
	SlotStartTime int64      `json:"slot_start_time"`
	DelegateID    AccountID  `json:"delegate_id"`
	BlockID       *BlockID   `json:"block_id,omitempty"`
}

// Feed is one delegate's price submission for a quote asset.
type Feed struct {
	QuoteAsset AssetID   `json:"quote_asset"`
	DelegateID AccountID `json:"delegate_id"`
	Price      Price     `json:"price"`
	LastUpdate int64     `json:"last_update"`
}

// FeedMaxAgeSeconds is how old a feed can be and still count toward the
// median price (spec.md §3: "younger than 24h").
const FeedMaxAgeSeconds = 24 * 60 * 60
