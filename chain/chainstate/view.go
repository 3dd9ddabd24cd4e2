// Package chainstate is the chain state view (spec.md §4.2): typed
// lookups and typed stores over the persistent index layer, keeping every
// secondary index (name->id, address->id, symbol->id, owner->balances)
// consistent with its primary store on every write.
package chainstate

import (
	"encoding/json"

	"github.com/deltachain/core/chain/kv"
	"github.com/deltachain/core/chain/model"
)

// Store names, namespacing the shared goleveldb database the way the
// teacher's storage layer namespaces its on-disk files.
const (
	nsAccounts      = "accounts"
	nsAccountByName = "accounts_by_name"
	nsAccountByAddr = "accounts_by_address"
	nsAssets        = "assets"
	nsAssetBySymbol = "assets_by_symbol"
	nsBalances      = "balances"
	nsBalancesEmpty = "balances_empty"
	nsBalanceByOwner = "balances_by_owner"
	nsTransactions  = "transactions"
	nsFeeds         = "feeds"
	nsSlots         = "slots"
	nsOrders        = "orders"
	nsOrdersByPair  = "orders_by_pair"
	nsMarketStatus  = "market_status"
	nsMarketHistory = "market_history"
	nsProperty      = "property"
)

// View is the read/write accessor over every persistent index the engine
// maintains. It holds no business logic beyond keeping secondary indexes
// consistent — transaction evaluation and block processing live above it.
type View struct {
	stores map[string]kv.Store
}

// NewView wraps a factory function that knows how to construct a
// namespaced Store (the engine supplies one backed by a shared
// goleveldb.DB via kv.NewLevelStore).
func NewView(open func(namespace string) kv.Store) *View {
	names := []string{
		nsAccounts, nsAccountByName, nsAccountByAddr,
		nsAssets, nsAssetBySymbol,
		nsBalances, nsBalancesEmpty, nsBalanceByOwner,
		nsTransactions, nsFeeds, nsSlots,
		nsOrders, nsOrdersByPair,
		nsMarketStatus, nsMarketHistory,
		nsProperty,
	}
	v := &View{stores: make(map[string]kv.Store, len(names))}
	for _, n := range names {
		v.stores[n] = open(n)
	}
	return v
}

// Store returns the underlying namespaced store, used by the reindex
// path to toggle write-through on a named subset (spec.md §6).
func (v *View) Store(namespace string) kv.Store { return v.stores[namespace] }

// WriteThroughNamespaces lists the stores the reindex path defers flushing
// on; everything else (the property store, in particular) stays
// write-through throughout so progress can always be inspected.
func WriteThroughNamespaces() []string {
	return []string{
		nsAccounts, nsAccountByName, nsAccountByAddr,
		nsAssets, nsAssetBySymbol,
		nsBalances, nsBalancesEmpty, nsBalanceByOwner,
		nsTransactions, nsFeeds, nsSlots,
		nsOrders, nsOrdersByPair,
		nsMarketStatus, nsMarketHistory,
	}
}

func get[T any](s kv.Store, key []byte) (T, bool, error) {
	var out T
	raw, err := s.Get(key)
	if err != nil {
		if err == kv.ErrNotFound {
			return out, false, nil
		}
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

func put(s kv.Store, key []byte, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Put(key, raw)
}

// =============================================================================
// Accounts

func accountKey(id model.AccountID) []byte { return u64Key(uint64(id)) }

// AccountByID looks up an account by its primary key.
func (v *View) AccountByID(id model.AccountID) (model.Account, bool, error) {
	return get[model.Account](v.stores[nsAccounts], accountKey(id))
}

// AccountByName looks up an account via the name secondary index.
func (v *View) AccountByName(name string) (model.Account, bool, error) {
	raw, err := v.stores[nsAccountByName].Get([]byte(name))
	if err != nil {
		if err == kv.ErrNotFound {
			return model.Account{}, false, nil
		}
		return model.Account{}, false, err
	}
	return v.AccountByID(model.AccountID(decodeU64Key(raw)))
}

// AccountByAddress looks up an account via the address secondary index.
func (v *View) AccountByAddress(address string) (model.Account, bool, error) {
	raw, err := v.stores[nsAccountByAddr].Get([]byte(address))
	if err != nil {
		if err == kv.ErrNotFound {
			return model.Account{}, false, nil
		}
		return model.Account{}, false, err
	}
	return v.AccountByID(model.AccountID(decodeU64Key(raw)))
}

// StoreAccount writes the account and atomically keeps the name and
// address secondary indexes consistent, removing any stale entry for the
// account's previous name/address.
func (v *View) StoreAccount(a model.Account) error {
	if old, found, err := v.AccountByID(a.ID); err != nil {
		return err
	} else if found {
		if old.Name != a.Name {
			if err := v.stores[nsAccountByName].Delete([]byte(old.Name)); err != nil {
				return err
			}
		}
		if old.Address != a.Address {
			if err := v.stores[nsAccountByAddr].Delete([]byte(old.Address)); err != nil {
				return err
			}
		}
	}
	if err := put(v.stores[nsAccounts], accountKey(a.ID), a); err != nil {
		return err
	}
	if a.Name != "" {
		if err := v.stores[nsAccountByName].Put([]byte(a.Name), accountKey(a.ID)); err != nil {
			return err
		}
	}
	if a.Address != "" {
		if err := v.stores[nsAccountByAddr].Put([]byte(a.Address), accountKey(a.ID)); err != nil {
			return err
		}
	}
	return nil
}

// AllAccounts iterates every account in ascending id order.
func (v *View) AllAccounts(fn func(model.Account) bool) error {
	it := v.stores[nsAccounts].Iterator(nil)
	defer it.Release()
	for it.Next() {
		var a model.Account
		if err := json.Unmarshal(it.Value(), &a); err != nil {
			return err
		}
		if !fn(a) {
			break
		}
	}
	return nil
}

// =============================================================================
// Assets

func assetKey(id model.AssetID) []byte { return u64Key(uint64(id)) }

func (v *View) AssetByID(id model.AssetID) (model.Asset, bool, error) {
	return get[model.Asset](v.stores[nsAssets], assetKey(id))
}

func (v *View) AssetBySymbol(symbol string) (model.Asset, bool, error) {
	raw, err := v.stores[nsAssetBySymbol].Get([]byte(symbol))
	if err != nil {
		if err == kv.ErrNotFound {
			return model.Asset{}, false, nil
		}
		return model.Asset{}, false, err
	}
	return v.AssetByID(model.AssetID(decodeU64Key(raw)))
}

func (v *View) StoreAsset(a model.Asset) error {
	if old, found, err := v.AssetByID(a.ID); err != nil {
		return err
	} else if found && old.Symbol != a.Symbol {
		if err := v.stores[nsAssetBySymbol].Delete([]byte(old.Symbol)); err != nil {
			return err
		}
	}
	if err := put(v.stores[nsAssets], assetKey(a.ID), a); err != nil {
		return err
	}
	return v.stores[nsAssetBySymbol].Put([]byte(a.Symbol), assetKey(a.ID))
}

func (v *View) AllAssets(fn func(model.Asset) bool) error {
	it := v.stores[nsAssets].Iterator(nil)
	defer it.Release()
	for it.Next() {
		var a model.Asset
		if err := json.Unmarshal(it.Value(), &a); err != nil {
			return err
		}
		if !fn(a) {
			break
		}
	}
	return nil
}

// =============================================================================
// Balances

func (v *View) BalanceByID(id model.BalanceID) (model.Balance, bool, error) {
	if b, found, err := get[model.Balance](v.stores[nsBalances], []byte(id)); found || err != nil {
		return b, found, err
	}
	return get[model.Balance](v.stores[nsBalancesEmpty], []byte(id))
}

// StoreBalance keeps the balance in the dense index while non-zero and
// moves it to the empty-balance index once its amount reaches zero (and
// back, if it is credited again), per spec.md §3.
func (v *View) StoreBalance(b model.Balance) error {
	if b.IsEmpty() {
		if err := v.stores[nsBalances].Delete([]byte(b.ID)); err != nil {
			return err
		}
		if err := put(v.stores[nsBalancesEmpty], []byte(b.ID), b); err != nil {
			return err
		}
	} else {
		if err := v.stores[nsBalancesEmpty].Delete([]byte(b.ID)); err != nil {
			return err
		}
		if err := put(v.stores[nsBalances], []byte(b.ID), b); err != nil {
			return err
		}
	}
	return v.stores[nsBalanceByOwner].Put(ownerBalanceKey(b.Owner, b.ID), []byte(b.ID))
}

func ownerBalanceKey(owner model.AccountID, id model.BalanceID) []byte {
	return append(u64Key(uint64(owner)), []byte(":"+string(id))...)
}

// BalancesByOwner iterates every balance owned by owner in balance-id
// order, emptied balances included.
func (v *View) BalancesByOwner(owner model.AccountID, fn func(model.Balance) bool) error {
	it := v.stores[nsBalanceByOwner].Iterator(u64Key(uint64(owner)))
	defer it.Release()
	for it.Next() {
		b, found, err := v.BalanceByID(model.BalanceID(it.Value()))
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if !fn(b) {
			break
		}
	}
	return nil
}

// =============================================================================
// Transactions

func (v *View) TransactionByID(id string) (model.TxRecord, bool, error) {
	return get[model.TxRecord](v.stores[nsTransactions], []byte(id))
}

func (v *View) StoreTransaction(id string, rec model.TxRecord) error {
	return put(v.stores[nsTransactions], []byte(id), rec)
}

// RemoveTransaction drops a transaction's record, used once it has
// expired or its containing block has been popped.
func (v *View) RemoveTransaction(id string) error {
	return v.stores[nsTransactions].Delete([]byte(id))
}

// AllTransactions iterates every persisted transaction record.
func (v *View) AllTransactions(fn func(id string, rec model.TxRecord) bool) error {
	it := v.stores[nsTransactions].Iterator(nil)
	defer it.Release()
	for it.Next() {
		var rec model.TxRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return err
		}
		if !fn(string(it.Key()), rec) {
			break
		}
	}
	return nil
}

// =============================================================================
// Feeds

func feedKey(quote model.AssetID, delegate model.AccountID) []byte {
	return append(u64Key(uint64(quote)), u64Key(uint64(delegate))...)
}

func (v *View) FeedByIndex(quote model.AssetID, delegate model.AccountID) (model.Feed, bool, error) {
	return get[model.Feed](v.stores[nsFeeds], feedKey(quote, delegate))
}

func (v *View) StoreFeed(f model.Feed) error {
	return put(v.stores[nsFeeds], feedKey(f.QuoteAsset, f.DelegateID), f)
}

// FeedsForAsset iterates every delegate's feed for a quote asset.
func (v *View) FeedsForAsset(quote model.AssetID, fn func(model.Feed) bool) error {
	it := v.stores[nsFeeds].Iterator(u64Key(uint64(quote)))
	defer it.Release()
	for it.Next() {
		var f model.Feed
		if err := json.Unmarshal(it.Value(), &f); err != nil {
			return err
		}
		if !fn(f) {
			break
		}
	}
	return nil
}

// =============================================================================
// Slots

func (v *View) SlotByTime(t int64) (model.Slot, bool, error) {
	return get[model.Slot](v.stores[nsSlots], u64Key(uint64(t)))
}

func (v *View) StoreSlot(s model.Slot) error {
	return put(v.stores[nsSlots], u64Key(uint64(s.SlotStartTime)), s)
}

// =============================================================================
// Orders

func pairPrefix(quote, base model.AssetID) []byte {
	return append(u64Key(uint64(quote)), u64Key(uint64(base))...)
}

func orderPairKey(o model.Order) []byte {
	return append(pairPrefix(o.QuoteAsset, o.BaseAsset), []byte(o.ID())...)
}

func (v *View) OrderByID(id string) (model.Order, bool, error) {
	return get[model.Order](v.stores[nsOrders], []byte(id))
}

func (v *View) StoreOrder(o model.Order) error {
	if err := put(v.stores[nsOrders], []byte(o.ID()), o); err != nil {
		return err
	}
	return v.stores[nsOrdersByPair].Put(orderPairKey(o), []byte(o.ID()))
}

func (v *View) RemoveOrder(o model.Order) error {
	if err := v.stores[nsOrders].Delete([]byte(o.ID())); err != nil {
		return err
	}
	return v.stores[nsOrdersByPair].Delete(orderPairKey(o))
}

// OrdersForPair iterates every resting order for a (quote, base) pair,
// regardless of kind; the market engine separates them by Kind.
func (v *View) OrdersForPair(quote, base model.AssetID, fn func(model.Order) bool) error {
	it := v.stores[nsOrdersByPair].Iterator(pairPrefix(quote, base))
	defer it.Release()
	for it.Next() {
		o, found, err := get[model.Order](v.stores[nsOrders], it.Value())
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if !fn(o) {
			break
		}
	}
	return nil
}

// AllOrderPairs returns the distinct (quote, base) pairs with at least one
// resting order. chain/market's Engine calls this at the start of every
// Execute to seed that block's dirty-pair set, and CalculateDebt uses it
// to enumerate every pair worth scanning for outstanding collateral.
func (v *View) AllOrderPairs() ([][2]model.AssetID, error) {
	seen := make(map[[2]model.AssetID]bool)
	it := v.stores[nsOrdersByPair].Iterator(nil)
	defer it.Release()
	for it.Next() {
		k := it.Key()
		if len(k) < 16 {
			continue
		}
		pair := [2]model.AssetID{model.AssetID(decodeU64Key(k[:8])), model.AssetID(decodeU64Key(k[8:16]))}
		seen[pair] = true
	}
	out := make([][2]model.AssetID, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	return out, nil
}

// =============================================================================
// Market status / history

func (v *View) MarketStatus(quote, base model.AssetID) (model.MarketStatus, bool, error) {
	return get[model.MarketStatus](v.stores[nsMarketStatus], pairPrefix(quote, base))
}

func (v *View) StoreMarketStatus(s model.MarketStatus) error {
	return put(v.stores[nsMarketStatus], pairPrefix(s.QuoteAsset, s.BaseAsset), s)
}

func historyKey(r model.MarketHistoryRecord) []byte {
	k := pairPrefix(r.QuoteAsset, r.BaseAsset)
	k = append(k, byte(r.Granularity))
	return append(k, u64Key(uint64(r.BucketStart))...)
}

func (v *View) StoreMarketHistory(r model.MarketHistoryRecord) error {
	return put(v.stores[nsMarketHistory], historyKey(r), r)
}

func (v *View) MarketHistory(r model.MarketHistoryRecord) (model.MarketHistoryRecord, bool, error) {
	return get[model.MarketHistoryRecord](v.stores[nsMarketHistory], historyKey(r))
}

// =============================================================================
// Property store

func (v *View) Property(key model.PropertyKey) ([]byte, bool, error) {
	raw, err := v.stores[nsProperty].Get([]byte(key))
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return raw, true, nil
}

func (v *View) StoreProperty(key model.PropertyKey, value []byte) error {
	return v.stores[nsProperty].Put([]byte(key), value)
}

func (v *View) PropertyJSON(key model.PropertyKey, out any) (bool, error) {
	raw, found, err := v.Property(key)
	if err != nil || !found {
		return found, err
	}
	return true, json.Unmarshal(raw, out)
}

func (v *View) StorePropertyJSON(key model.PropertyKey, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return v.StoreProperty(key, raw)
}
