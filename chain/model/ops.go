package model

// OperationKind names one of the evaluator's dispatchable operations.
// Internal accounting for each kind is owned by chain/txeval; this package
// only carries the wire-level payload.
type OperationKind string

const (
	OpTransfer         OperationKind = "transfer"
	OpRegisterAccount  OperationKind = "register_account"
	OpUpdateAccount    OperationKind = "update_account"
	OpCreateAsset      OperationKind = "create_asset"
	OpIssueAsset       OperationKind = "issue_asset"
	OpUpdateAsset      OperationKind = "update_asset"
	OpCreateDelegate   OperationKind = "create_delegate"
	OpUpdateDelegate   OperationKind = "update_delegate"
	OpVoteDelegate     OperationKind = "vote_delegate"
	OpSubmitBid        OperationKind = "submit_bid"
	OpSubmitAsk        OperationKind = "submit_ask"
	OpSubmitShort      OperationKind = "submit_short"
	OpSubmitCover      OperationKind = "submit_cover"
	OpCancelOrder      OperationKind = "cancel_order"
	OpUpdateFeed       OperationKind = "update_feed"
)

// Operation is a single dispatchable instruction inside a transaction.
// Exactly one of the typed payload fields is populated, matching Kind.
type Operation struct {
	Kind OperationKind `json:"kind"`

	Transfer        *TransferOp        `json:"transfer,omitempty"`
	RegisterAccount *RegisterAccountOp `json:"register_account,omitempty"`
	UpdateAccount   *UpdateAccountOp   `json:"update_account,omitempty"`
	CreateAsset     *CreateAssetOp     `json:"create_asset,omitempty"`
	IssueAsset      *IssueAssetOp      `json:"issue_asset,omitempty"`
	UpdateAsset     *UpdateAssetOp     `json:"update_asset,omitempty"`
	CreateDelegate  *CreateDelegateOp  `json:"create_delegate,omitempty"`
	UpdateDelegate  *UpdateDelegateOp  `json:"update_delegate,omitempty"`
	VoteDelegate    *VoteDelegateOp    `json:"vote_delegate,omitempty"`
	SubmitBid       *SubmitOrderOp     `json:"submit_bid,omitempty"`
	SubmitAsk       *SubmitOrderOp     `json:"submit_ask,omitempty"`
	SubmitShort     *SubmitShortOp     `json:"submit_short,omitempty"`
	SubmitCover     *SubmitCoverOp     `json:"submit_cover,omitempty"`
	CancelOrder     *CancelOrderOp     `json:"cancel_order,omitempty"`
	UpdateFeed      *UpdateFeedOp      `json:"update_feed,omitempty"`
}

type TransferOp struct {
	From    AccountID `json:"from"`
	To      AccountID `json:"to"`
	AssetID AssetID   `json:"asset_id"`
	Amount  uint64    `json:"amount"`
	Memo    string    `json:"memo"`
}

type RegisterAccountOp struct {
	Name     string    `json:"name"`
	OwnerKey string    `json:"owner_key"`
	Address  string    `json:"address"`
	Referrer AccountID `json:"referrer"`
}

type UpdateAccountOp struct {
	AccountID AccountID `json:"account_id"`
	NewKey    string    `json:"new_key,omitempty"`
	NewName   string    `json:"new_name,omitempty"`
}

type CreateAssetOp struct {
	Issuer        AccountID `json:"issuer"`
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Precision     uint8     `json:"precision"`
	MaximumSupply uint64    `json:"maximum_supply"`
}

type IssueAssetOp struct {
	Issuer  AccountID `json:"issuer"`
	AssetID AssetID   `json:"asset_id"`
	To      AccountID `json:"to"`
	Amount  uint64    `json:"amount"`
}

type UpdateAssetOp struct {
	Issuer        AccountID `json:"issuer"`
	AssetID       AssetID   `json:"asset_id"`
	MaximumSupply uint64    `json:"maximum_supply"`
	Description   string    `json:"description"`
}

type CreateDelegateOp struct {
	AccountID      AccountID `json:"account_id"`
	PayRatePercent uint8     `json:"pay_rate_percent"`
}

type UpdateDelegateOp struct {
	AccountID      AccountID `json:"account_id"`
	PayRatePercent uint8     `json:"pay_rate_percent"`
	NextSecretHash string    `json:"next_secret_hash"`
}

type VoteDelegateOp struct {
	Voter     AccountID `json:"voter"`
	SlateID   uint64    `json:"slate_id"`
	Delegates []AccountID `json:"delegates"`
}

// SubmitOrderOp is shared by absolute bids/asks. A non-zero RelativeTo
// marks it as relative-to-feed rather than an absolute price.
type SubmitOrderOp struct {
	Owner       AccountID `json:"owner"`
	QuoteAsset  AssetID   `json:"quote_asset"`
	BaseAsset   AssetID   `json:"base_asset"`
	Price       Price     `json:"price"`
	Quantity    uint64    `json:"quantity"` // in BaseAsset units
	Expiration  int64     `json:"expiration"`
	Relative    bool      `json:"relative"`
	RelativeOffsetPercent int32 `json:"relative_offset_percent,omitempty"`
}

type SubmitShortOp struct {
	Owner          AccountID `json:"owner"`
	QuoteAsset     AssetID   `json:"quote_asset"` // debt asset being shorted
	CollateralAsset AssetID  `json:"collateral_asset"`
	MaxShortPrice  Price     `json:"max_short_price"`
	Collateral     uint64    `json:"collateral"`
	Expiration     int64     `json:"expiration"`
	InterestRateBps uint32   `json:"interest_rate_bps"`
}

type SubmitCoverOp struct {
	Owner          AccountID `json:"owner"`
	CollateralID   BalanceID `json:"collateral_id"`
	CoverAmount    uint64    `json:"cover_amount"`
}

type CancelOrderOp struct {
	Owner   AccountID `json:"owner"`
	OrderID string    `json:"order_id"`
}

type UpdateFeedOp struct {
	Delegate   AccountID `json:"delegate"`
	QuoteAsset AssetID   `json:"quote_asset"`
	Price      Price     `json:"price"`
}

// Price is a quote/base ratio expressed as integers to stay deterministic
// across nodes: Quote units of quote-asset per Base units of base-asset.
type Price struct {
	Quote uint64 `json:"quote"`
	Base  uint64 `json:"base"`
}

// LessEqual reports whether p <= other as a ratio, without floating point.
func (p Price) LessEqual(other Price) bool {
	// p.Quote/p.Base <= other.Quote/other.Base  <=>  p.Quote*other.Base <= other.Quote*p.Base
	return p.Quote*other.Base <= other.Quote*p.Base
}

// GreaterEqual reports whether p >= other as a ratio.
func (p Price) GreaterEqual(other Price) bool {
	return other.LessEqual(p)
}

// QuoteAmount converts baseQty units of the base asset into this price's
// quote-asset equivalent: quote = baseQty * Quote / Base. Used both to
// size a bid's quote-asset escrow and to settle a fill's quote leg, so
// Quantity on an order always stays in BaseAsset units end to end.
func (p Price) QuoteAmount(baseQty uint64) uint64 {
	if p.Base == 0 {
		return 0
	}
	return baseQty * p.Quote / p.Base
}
