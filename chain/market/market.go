// Package market is the double-auction matching engine (spec.md §4.4),
// run once per block against every quote/base pair an order touched.
package market

import (
	"sort"

	"github.com/deltachain/core/chain/chainstate"
	"github.com/deltachain/core/chain/model"
	"github.com/deltachain/core/chain/overlay"
)

const secondsPerYear = int64(365 * 24 * 60 * 60)

// Engine executes dirty pairs against a view (for resting orders) and a
// block overlay (for in-flight orders and the matches it records).
type Engine struct {
	view *chainstate.View
	pend *overlay.State
	now  int64
}

// New constructs a market Engine.
func New(view *chainstate.View, pend *overlay.State, now int64) *Engine {
	return &Engine{view: view, pend: pend, now: now}
}

// Execute runs every dirty pair, sorted descending by quote asset id for
// reproducibility, and returns the trades it produced across all pairs.
// Dirty pairs always include every pair with a resting order, not just
// pairs this block's own transactions touched: a block's overlay starts
// with an empty dirty set every time (spec.md §4.4's "touched since the
// last market execution" otherwise has nothing to read from past blocks),
// so Execute seeds it from the committed view before reading it back.
func (e *Engine) Execute(blockNum uint64) ([]model.MarketTrade, error) {
	restingPairs, err := e.view.AllOrderPairs()
	if err != nil {
		return nil, err
	}
	for _, pair := range restingPairs {
		e.pend.MarkPairDirty(pair[0], pair[1])
	}

	pairs := e.pend.DirtyPairs()
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] > pairs[j][0] })

	var all []model.MarketTrade
	for _, pair := range pairs {
		trades, err := e.executePair(blockNum, pair[0], pair[1])
		if err != nil {
			return all, err
		}
		all = append(all, trades...)
	}
	return all, nil
}

// restingOrders merges the pair's committed orders with whatever this
// block's overlay has already written or removed for it, so matching
// sees orders submitted earlier in the same block.
func (e *Engine) restingOrders(quote, base model.AssetID) ([]model.Order, error) {
	var resting []model.Order
	if err := e.view.OrdersForPair(quote, base, func(o model.Order) bool {
		resting = append(resting, o)
		return true
	}); err != nil {
		return nil, err
	}
	written, removed := e.pend.LocalOrdersForPair(quote, base)
	supersededOrGone := make(map[string]bool, len(written)+len(removed))
	for _, o := range written {
		supersededOrGone[o.ID()] = true
	}
	for id := range removed {
		supersededOrGone[id] = true
	}

	out := make([]model.Order, 0, len(resting)+len(written))
	for _, o := range resting {
		if !supersededOrGone[o.ID()] {
			out = append(out, o)
		}
	}
	return append(out, written...), nil
}

func (e *Engine) feedPrice(quote, base model.AssetID) (model.Price, bool) {
	var prices []model.Price
	_ = e.view.FeedsForAsset(quote, func(f model.Feed) bool {
		if e.now-f.LastUpdate <= model.FeedMaxAgeSeconds {
			prices = append(prices, f.Price)
		}
		return true
	})
	if len(prices) == 0 {
		return model.Price{}, false
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessEqual(prices[j]) && !prices[j].LessEqual(prices[i]) })
	return prices[len(prices)/2], true
}

func repriceRelative(o model.Order, feed model.Price) model.Price {
	offset := int64(feed.Base) * int64(o.RelativeOffsetPercent) / 100
	base := int64(feed.Base) + offset
	if base < 1 {
		base = 1
	}
	return model.Price{Quote: feed.Quote, Base: uint64(base)}
}

func (e *Engine) executePair(blockNum uint64, quote, base model.AssetID) ([]model.MarketTrade, error) {
	orders, err := e.restingOrders(quote, base)
	if err != nil {
		return nil, err
	}

	feed, hasFeed := e.feedPrice(quote, base)

	var bids, asks []model.Order
	for _, o := range orders {
		switch o.Kind {
		case model.OrderAbsoluteBid:
			bids = append(bids, o)
		case model.OrderAbsoluteAsk:
			asks = append(asks, o)
		case model.OrderRelativeBid:
			if hasFeed {
				o.Price = repriceRelative(o, feed)
				bids = append(bids, o)
			}
		case model.OrderRelativeAsk:
			if hasFeed {
				o.Price = repriceRelative(o, feed)
				asks = append(asks, o)
			}
		case model.OrderShort:
			if hasFeed {
				o.Price = feed
				bids = append(bids, o)
			}
		}
	}

	sort.Slice(bids, func(i, j int) bool {
		if bids[i].Price.LessEqual(bids[j].Price) && bids[j].Price.LessEqual(bids[i].Price) {
			return orderLess(bids[i], bids[j])
		}
		return orderLess(bids[j], bids[i])
	}) // descending price, ties by ascending (owner, expiration)
	sort.Slice(asks, func(i, j int) bool { return orderLess(asks[i], asks[j]) }) // ascending price

	var trades []model.MarketTrade
	bi, ai := 0, 0
	for bi < len(bids) && ai < len(asks) {
		bid, ask := bids[bi], asks[ai]
		if !bid.Price.GreaterEqual(ask.Price) {
			break
		}
		qty := min64(bid.Quantity, ask.Quantity)
		if qty == 0 {
			if bid.Quantity == 0 {
				bi++
			}
			if ask.Quantity == 0 {
				ai++
			}
			continue
		}
		// qty is base-asset units (Quantity's documented unit). The
		// bidder pays at their own (higher or equal) limit price, the
		// asker is paid at their own limit price, and the crossing
		// spread between the two is collected as the trade's fee.
		quotePaid := bid.Price.QuoteAmount(qty)
		quoteToAsker := ask.Price.QuoteAmount(qty)
		fee := quotePaid - quoteToAsker
		baseReceived := qty

		trades = append(trades, model.MarketTrade{
			BlockNum:     blockNum,
			QuoteAsset:   quote,
			BaseAsset:    base,
			BidOwner:     bid.Owner,
			AskOwner:     ask.Owner,
			BidPrice:     bid.Price,
			AskPrice:     ask.Price,
			QuotePaid:    quotePaid,
			BaseReceived: baseReceived,
			Fees:         fee,
		})

		bid.Quantity -= qty
		ask.Quantity -= qty
		bids[bi] = bid
		asks[ai] = ask

		if bid.Kind == model.OrderShort {
			if err := e.openCollateral(bid, ask, quoteToAsker, baseReceived, fee); err != nil {
				return trades, err
			}
		} else if err := settle(e.pend, bid, ask, quoteToAsker, baseReceived, fee); err != nil {
			return trades, err
		}

		if bid.Quantity == 0 {
			if err := e.pend.RemoveOrder(bids[bi]); err != nil {
				return trades, err
			}
			bi++
		} else {
			if err := e.pend.StoreOrder(bid); err != nil {
				return trades, err
			}
		}
		if ask.Quantity == 0 {
			if err := e.pend.RemoveOrder(asks[ai]); err != nil {
				return trades, err
			}
			ai++
		} else {
			if err := e.pend.StoreOrder(ask); err != nil {
				return trades, err
			}
		}
	}

	if err := e.accrueInterest(quote, base); err != nil {
		return trades, err
	}

	status := model.MarketStatus{QuoteAsset: quote, BaseAsset: base}
	if hasFeed {
		status.CurrentFeedPrice = feed
		status.LastValidFeedPrice = feed
	}
	if err := e.pend.StoreMarketStatus(status); err != nil {
		return trades, err
	}
	for _, t := range trades {
		if err := e.recordHistory(t); err != nil {
			return trades, err
		}
	}
	return trades, nil
}

// settle credits the bidder with baseReceived units of the base asset
// (what they bought) and the asker with quoteToAsker units of the quote
// asset (what they sold it for), then routes the bid/ask price spread,
// fee, into the quote asset's collected-fees pool.
func settle(pend *overlay.State, bid, ask model.Order, quoteToAsker, baseReceived, fee uint64) error {
	creditBalance := func(owner model.AccountID, asset model.AssetID, amount uint64) error {
		id := model.NewBalanceID(owner, asset, model.ClaimSignature, 0)
		b, found, err := pend.BalanceByID(id)
		if err != nil {
			return err
		}
		if !found {
			b = model.Balance{ID: id, Owner: owner, AssetID: asset, Claim: model.ClaimSignature}
		}
		b.Amount += amount
		return pend.StoreBalance(b)
	}
	if err := creditBalance(bid.Owner, bid.BaseAsset, baseReceived); err != nil {
		return err
	}
	if err := creditBalance(ask.Owner, bid.QuoteAsset, quoteToAsker); err != nil {
		return err
	}
	if fee == 0 {
		return nil
	}
	asset, found, err := pend.AssetByID(bid.QuoteAsset)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	asset.CollectedFees += fee
	return pend.StoreAsset(asset)
}

// openCollateral records a collateral balance for a freshly matched
// short, the payoff balance the cover operation later closes out.
func (e *Engine) openCollateral(short, ask model.Order, quoteToAsker, baseReceived, fee uint64) error {
	id := model.NewBalanceID(short.Owner, short.BaseAsset, model.ClaimCover, uint64(short.Expiration))
	b, found, err := e.pend.BalanceByID(id)
	if err != nil {
		return err
	}
	if !found {
		b = model.Balance{ID: id, Owner: short.Owner, AssetID: short.BaseAsset, Claim: model.ClaimCover, SlateID: uint64(short.Expiration)}
	}
	b.Amount += short.CollateralAmount
	b.LastUpdatedAt = e.now
	if err := e.pend.StoreBalance(b); err != nil {
		return err
	}
	return settle(e.pend, short, ask, quoteToAsker, baseReceived, fee)
}

// accrueInterest ages the short orders for the pair that this block's
// overlay has written, adding owed interest to each one's payoff
// (spec.md §4.4 step 4). Shorts resting unchanged from earlier blocks are
// not aged.
func (e *Engine) accrueInterest(quote, base model.AssetID) error {
	written, _ := e.pend.LocalOrdersForPair(quote, base)
	for _, o := range written {
		if o.Kind != model.OrderShort || o.CollateralAmount == 0 {
			continue
		}
		age := e.now - (o.Expiration - o.MaximumShortPeriod)
		if age <= 0 {
			continue
		}
		owed := o.CollateralAmount * uint64(o.InterestRateBps) * uint64(age) / (10000 * uint64(secondsPerYear))
		if owed == 0 {
			continue
		}
		o.PayoffBalance += owed
		if err := e.pend.StoreOrder(o); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) recordHistory(t model.MarketTrade) error {
	for _, g := range []model.HistoryGranularity{model.HistorySecond, model.HistoryMinute, model.HistoryHour, model.HistoryDay} {
		bucket := bucketStart(e.now, g)
		rec, found, err := e.pend.MarketHistory(model.MarketHistoryRecord{
			QuoteAsset: t.QuoteAsset, BaseAsset: t.BaseAsset, Granularity: g, BucketStart: bucket,
		})
		if err != nil {
			return err
		}
		if !found {
			rec = model.MarketHistoryRecord{
				QuoteAsset: t.QuoteAsset, BaseAsset: t.BaseAsset, Granularity: g, BucketStart: bucket,
				OpenPrice: t.BidPrice, HighPrice: t.BidPrice, LowPrice: t.BidPrice,
			}
		}
		rec.ClosePrice = t.BidPrice
		if t.BidPrice.GreaterEqual(rec.HighPrice) {
			rec.HighPrice = t.BidPrice
		}
		if rec.LowPrice.GreaterEqual(t.BidPrice) {
			rec.LowPrice = t.BidPrice
		}
		rec.QuoteVolume += t.QuotePaid
		rec.BaseVolume += t.BaseReceived
		if err := e.pend.StoreMarketHistory(rec); err != nil {
			return err
		}
	}
	return nil
}

func bucketStart(now int64, g model.HistoryGranularity) int64 {
	switch g {
	case model.HistoryMinute:
		return now - now%60
	case model.HistoryHour:
		return now - now%3600
	case model.HistoryDay:
		return now - now%86400
	default:
		return now
	}
}

// orderLess breaks ties in price by ascending (owner, expiration), the
// determinism rule spec.md §4.4 requires across a single pair.
func orderLess(a, b model.Order) bool {
	if !a.Price.LessEqual(b.Price) {
		return false
	}
	if !b.Price.LessEqual(a.Price) {
		return true
	}
	if a.Owner != b.Owner {
		return a.Owner < b.Owner
	}
	return a.Expiration < b.Expiration
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
