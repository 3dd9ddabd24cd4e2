package model

import "fmt"

// OrderKey is the composite sort key shared by every order index:
// ascending/descending by price depending on the index, then by
// (owner, expiration) to break ties deterministically.
type OrderKey struct {
	Price      Price
	Owner      AccountID
	Expiration int64
}

// OrderKind distinguishes the six order indexes spec.md §3 calls out.
type OrderKind int

const (
	OrderAbsoluteBid OrderKind = iota
	OrderAbsoluteAsk
	OrderRelativeBid
	OrderRelativeAsk
	OrderShort
	OrderCollateral
)

// Order is one resting order in the book for a (quote, base) market pair.
type Order struct {
	Kind       OrderKind `json:"kind"`
	Owner      AccountID `json:"owner"`
	QuoteAsset AssetID   `json:"quote_asset"`
	BaseAsset  AssetID   `json:"base_asset"`
	Price      Price     `json:"price"`
	Quantity   uint64    `json:"quantity"`
	Expiration int64     `json:"expiration"`

	RelativeOffsetPercent int32 `json:"relative_offset_percent,omitempty"`

	// Collateral-only fields.
	CollateralID    BalanceID `json:"collateral_id,omitempty"`
	CollateralAmount uint64   `json:"collateral_amount,omitempty"`
	PayoffBalance   uint64    `json:"payoff_balance,omitempty"`
	InterestRateBps uint32    `json:"interest_rate_bps,omitempty"`
	MaximumShortPeriod int64  `json:"maximum_short_period,omitempty"`
}

// ID is a deterministic identifier for the order usable as a map key.
func (o Order) ID() string {
	return fmt.Sprintf("%d:%d:%s:%s:%d", o.Kind, o.Owner, o.QuoteAsset, o.BaseAsset, o.Expiration)
}

// String renders a price ratio for logging and ID derivation.
func (p Price) String() string {
	return fmt.Sprintf("%d/%d", p.Quote, p.Base)
}

// MarketTrade records one match produced by the market engine.
type MarketTrade struct {
	BlockNum   uint64    `json:"block_num"`
	QuoteAsset AssetID   `json:"quote_asset"`
	BaseAsset  AssetID   `json:"base_asset"`
	BidOwner   AccountID `json:"bid_owner"`
	AskOwner   AccountID `json:"ask_owner"`
	BidPrice   Price     `json:"bid_price"`
	AskPrice   Price     `json:"ask_price"`
	QuotePaid  uint64    `json:"quote_paid"`
	BaseReceived uint64  `json:"base_received"`
	Fees       uint64    `json:"fees"`
}

// MarketStatus tracks the per-pair bookkeeping the market engine keeps
// between blocks: the current and last-valid feed price, and the last
// error encountered trying to compute one.
type MarketStatus struct {
	QuoteAsset     AssetID `json:"quote_asset"`
	BaseAsset      AssetID `json:"base_asset"`
	CurrentFeedPrice Price `json:"current_feed_price"`
	LastValidFeedPrice Price `json:"last_valid_feed_price"`
	LastError      string  `json:"last_error"`
}

// HistoryGranularity enumerates the four bucket sizes market history is
// recorded at.
type HistoryGranularity int

const (
	HistorySecond HistoryGranularity = iota
	HistoryMinute
	HistoryHour
	HistoryDay
)

// MarketHistoryRecord is one OHLC-style bucket of trading activity for a
// pair at one granularity.
type MarketHistoryRecord struct {
	QuoteAsset AssetID            `json:"quote_asset"`
	BaseAsset  AssetID            `json:"base_asset"`
	Granularity HistoryGranularity `json:"granularity"`
	BucketStart int64             `json:"bucket_start"`
	OpenPrice  Price              `json:"open_price"`
	ClosePrice Price              `json:"close_price"`
	HighPrice  Price              `json:"high_price"`
	LowPrice   Price              `json:"low_price"`
	QuoteVolume uint64            `json:"quote_volume"`
	BaseVolume  uint64            `json:"base_volume"`
}
