// Package overlay implements the pending chain state (spec.md §4.2): a
// copy-on-write node that records writes against a parent — either the
// root chainstate.View or another overlay — and can produce an undo
// delta sufficient to revert its own effect on that parent.
package overlay

import "github.com/deltachain/core/chain/model"

// Reader is every typed lookup both chainstate.View and State satisfy, so
// an overlay can be built on top of either.
type Reader interface {
	AccountByID(id model.AccountID) (model.Account, bool, error)
	AccountByName(name string) (model.Account, bool, error)
	AccountByAddress(address string) (model.Account, bool, error)
	AssetByID(id model.AssetID) (model.Asset, bool, error)
	AssetBySymbol(symbol string) (model.Asset, bool, error)
	BalanceByID(id model.BalanceID) (model.Balance, bool, error)
	TransactionByID(id string) (model.TxRecord, bool, error)
	FeedByIndex(quote model.AssetID, delegate model.AccountID) (model.Feed, bool, error)
	SlotByTime(t int64) (model.Slot, bool, error)
	OrderByID(id string) (model.Order, bool, error)
	MarketStatus(quote, base model.AssetID) (model.MarketStatus, bool, error)
	MarketHistory(r model.MarketHistoryRecord) (model.MarketHistoryRecord, bool, error)
	Property(key model.PropertyKey) ([]byte, bool, error)
}

// Writer is every typed store both chainstate.View and State satisfy.
type Writer interface {
	StoreAccount(a model.Account) error
	StoreAsset(a model.Asset) error
	StoreBalance(b model.Balance) error
	StoreTransaction(id string, rec model.TxRecord) error
	StoreFeed(f model.Feed) error
	StoreSlot(s model.Slot) error
	StoreOrder(o model.Order) error
	RemoveOrder(o model.Order) error
	StoreMarketStatus(s model.MarketStatus) error
	StoreMarketHistory(r model.MarketHistoryRecord) error
	StoreProperty(key model.PropertyKey, value []byte) error
}

// Accessor is the union a parent must satisfy.
type Accessor interface {
	Reader
	Writer
}

type feedKeyT struct {
	quote    model.AssetID
	delegate model.AccountID
}

type historyKeyT struct {
	quote, base model.AssetID
	granularity model.HistoryGranularity
	bucketStart int64
}

func historyKeyOf(r model.MarketHistoryRecord) historyKeyT {
	return historyKeyT{r.QuoteAsset, r.BaseAsset, r.Granularity, r.BucketStart}
}

// State is one node of the pending-overlay chain. Reads check this
// overlay's own write maps first and fall back to the parent on a miss;
// writes only ever touch this overlay until ApplyChanges merges them up.
type State struct {
	parent Accessor

	accounts      map[model.AccountID]model.Account
	accountByName map[string]*model.AccountID // nil marks the name explicitly vacated in this overlay
	accountByAddr map[string]*model.AccountID

	assets        map[model.AssetID]model.Asset
	assetBySymbol map[string]*model.AssetID

	balances map[model.BalanceID]model.Balance

	transactions map[string]model.TxRecord

	feeds map[feedKeyT]model.Feed
	slots map[int64]model.Slot

	orders  map[string]model.Order
	removed map[string]model.Order // order value at time of removal, for index cleanup on apply/undo
	dirty   map[[2]model.AssetID]bool

	marketStatus  map[[2]model.AssetID]model.MarketStatus
	marketHistory map[historyKeyT]model.MarketHistoryRecord

	property map[model.PropertyKey][]byte
}

// New constructs a child overlay of parent.
func New(parent Accessor) *State {
	return &State{
		parent:        parent,
		accounts:      make(map[model.AccountID]model.Account),
		accountByName: make(map[string]*model.AccountID),
		accountByAddr: make(map[string]*model.AccountID),
		assets:        make(map[model.AssetID]model.Asset),
		assetBySymbol: make(map[string]*model.AssetID),
		balances:      make(map[model.BalanceID]model.Balance),
		transactions:  make(map[string]model.TxRecord),
		feeds:         make(map[feedKeyT]model.Feed),
		slots:         make(map[int64]model.Slot),
		orders:        make(map[string]model.Order),
		removed:       make(map[string]model.Order),
		dirty:         make(map[[2]model.AssetID]bool),
		marketStatus:  make(map[[2]model.AssetID]model.MarketStatus),
		marketHistory: make(map[historyKeyT]model.MarketHistoryRecord),
		property:      make(map[model.PropertyKey][]byte),
	}
}

// MarkPairDirty flags (quote, base) as needing market execution this
// block without requiring an order write against it. The market engine
// uses this to seed the dirty set from every pair with a resting order
// at block start, since this overlay's own write-tracked dirty set would
// otherwise start empty every block and miss orders resting from a
// previous one.
func (s *State) MarkPairDirty(quote, base model.AssetID) {
	s.dirty[[2]model.AssetID{quote, base}] = true
}

// DirtyPairs returns every (quote, base) pair touched by an order write
// or removal on this overlay, the input the market engine needs to know
// which pairs to execute (spec.md §4.4).
func (s *State) DirtyPairs() [][2]model.AssetID {
	out := make([][2]model.AssetID, 0, len(s.dirty))
	for p := range s.dirty {
		out = append(out, p)
	}
	return out
}

// LocalOrdersForPair returns every order this overlay itself wrote for
// the given pair, and the set of order ids it removed, so a caller that
// already has the resting order set from the underlying view can merge
// in this overlay's in-flight changes without a further range scan.
func (s *State) LocalOrdersForPair(quote, base model.AssetID) (written []model.Order, removed map[string]bool) {
	removed = make(map[string]bool)
	for _, o := range s.orders {
		if o.QuoteAsset == quote && o.BaseAsset == base {
			written = append(written, o)
		}
	}
	for id, o := range s.removed {
		if o.QuoteAsset == quote && o.BaseAsset == base {
			removed[id] = true
		}
	}
	return written, removed
}

// =============================================================================
// Accounts

func (s *State) AccountByID(id model.AccountID) (model.Account, bool, error) {
	if a, ok := s.accounts[id]; ok {
		return a, true, nil
	}
	return s.parent.AccountByID(id)
}

func (s *State) AccountByName(name string) (model.Account, bool, error) {
	if ptr, ok := s.accountByName[name]; ok {
		if ptr == nil {
			return model.Account{}, false, nil
		}
		return s.AccountByID(*ptr)
	}
	a, found, err := s.parent.AccountByName(name)
	if err != nil || !found {
		return a, found, err
	}
	if local, ok := s.accounts[a.ID]; ok {
		return local, true, nil
	}
	return a, true, nil
}

func (s *State) AccountByAddress(address string) (model.Account, bool, error) {
	if ptr, ok := s.accountByAddr[address]; ok {
		if ptr == nil {
			return model.Account{}, false, nil
		}
		return s.AccountByID(*ptr)
	}
	a, found, err := s.parent.AccountByAddress(address)
	if err != nil || !found {
		return a, found, err
	}
	if local, ok := s.accounts[a.ID]; ok {
		return local, true, nil
	}
	return a, true, nil
}

func (s *State) StoreAccount(a model.Account) error {
	old, found, err := s.AccountByID(a.ID)
	if err != nil {
		return err
	}
	if found {
		if old.Name != a.Name {
			s.accountByName[old.Name] = nil
		}
		if old.Address != a.Address {
			s.accountByAddr[old.Address] = nil
		}
	}
	s.accounts[a.ID] = a
	if a.Name != "" {
		id := a.ID
		s.accountByName[a.Name] = &id
	}
	if a.Address != "" {
		id := a.ID
		s.accountByAddr[a.Address] = &id
	}
	return nil
}

// =============================================================================
// Assets

func (s *State) AssetByID(id model.AssetID) (model.Asset, bool, error) {
	if a, ok := s.assets[id]; ok {
		return a, true, nil
	}
	return s.parent.AssetByID(id)
}

func (s *State) AssetBySymbol(symbol string) (model.Asset, bool, error) {
	if ptr, ok := s.assetBySymbol[symbol]; ok {
		if ptr == nil {
			return model.Asset{}, false, nil
		}
		return s.AssetByID(*ptr)
	}
	a, found, err := s.parent.AssetBySymbol(symbol)
	if err != nil || !found {
		return a, found, err
	}
	if local, ok := s.assets[a.ID]; ok {
		return local, true, nil
	}
	return a, true, nil
}

func (s *State) StoreAsset(a model.Asset) error {
	old, found, err := s.AssetByID(a.ID)
	if err != nil {
		return err
	}
	if found && old.Symbol != a.Symbol {
		s.assetBySymbol[old.Symbol] = nil
	}
	s.assets[a.ID] = a
	id := a.ID
	s.assetBySymbol[a.Symbol] = &id
	return nil
}

// =============================================================================
// Balances

func (s *State) BalanceByID(id model.BalanceID) (model.Balance, bool, error) {
	if b, ok := s.balances[id]; ok {
		return b, true, nil
	}
	return s.parent.BalanceByID(id)
}

func (s *State) StoreBalance(b model.Balance) error {
	s.balances[b.ID] = b
	return nil
}

// =============================================================================
// Transactions

func (s *State) TransactionByID(id string) (model.TxRecord, bool, error) {
	if rec, ok := s.transactions[id]; ok {
		return rec, true, nil
	}
	return s.parent.TransactionByID(id)
}

func (s *State) StoreTransaction(id string, rec model.TxRecord) error {
	s.transactions[id] = rec
	return nil
}

// =============================================================================
// Feeds / slots

func (s *State) FeedByIndex(quote model.AssetID, delegate model.AccountID) (model.Feed, bool, error) {
	if f, ok := s.feeds[feedKeyT{quote, delegate}]; ok {
		return f, true, nil
	}
	return s.parent.FeedByIndex(quote, delegate)
}

func (s *State) StoreFeed(f model.Feed) error {
	s.feeds[feedKeyT{f.QuoteAsset, f.DelegateID}] = f
	return nil
}

func (s *State) SlotByTime(t int64) (model.Slot, bool, error) {
	if sl, ok := s.slots[t]; ok {
		return sl, true, nil
	}
	return s.parent.SlotByTime(t)
}

func (s *State) StoreSlot(sl model.Slot) error {
	s.slots[sl.SlotStartTime] = sl
	return nil
}

// =============================================================================
// Orders

func (s *State) OrderByID(id string) (model.Order, bool, error) {
	if _, gone := s.removed[id]; gone {
		return model.Order{}, false, nil
	}
	if o, ok := s.orders[id]; ok {
		return o, true, nil
	}
	return s.parent.OrderByID(id)
}

func (s *State) StoreOrder(o model.Order) error {
	delete(s.removed, o.ID())
	s.orders[o.ID()] = o
	s.dirty[[2]model.AssetID{o.QuoteAsset, o.BaseAsset}] = true
	return nil
}

func (s *State) RemoveOrder(o model.Order) error {
	delete(s.orders, o.ID())
	s.removed[o.ID()] = o
	s.dirty[[2]model.AssetID{o.QuoteAsset, o.BaseAsset}] = true
	return nil
}

// =============================================================================
// Market status / history

func (s *State) MarketStatus(quote, base model.AssetID) (model.MarketStatus, bool, error) {
	if st, ok := s.marketStatus[[2]model.AssetID{quote, base}]; ok {
		return st, true, nil
	}
	return s.parent.MarketStatus(quote, base)
}

func (s *State) StoreMarketStatus(st model.MarketStatus) error {
	s.marketStatus[[2]model.AssetID{st.QuoteAsset, st.BaseAsset}] = st
	return nil
}

func (s *State) MarketHistory(r model.MarketHistoryRecord) (model.MarketHistoryRecord, bool, error) {
	if rec, ok := s.marketHistory[historyKeyOf(r)]; ok {
		return rec, true, nil
	}
	return s.parent.MarketHistory(r)
}

func (s *State) StoreMarketHistory(r model.MarketHistoryRecord) error {
	s.marketHistory[historyKeyOf(r)] = r
	return nil
}

// =============================================================================
// Property

func (s *State) Property(key model.PropertyKey) ([]byte, bool, error) {
	if v, ok := s.property[key]; ok {
		return v, true, nil
	}
	return s.parent.Property(key)
}

func (s *State) StoreProperty(key model.PropertyKey, value []byte) error {
	s.property[key] = value
	return nil
}

// =============================================================================
// Apply / undo

// ApplyChanges merges every write recorded on this overlay into its
// parent, in typed-store order. The parent is responsible for its own
// secondary-index bookkeeping, exactly as if the caller had written
// straight through it.
func (s *State) ApplyChanges() error {
	for _, a := range s.accounts {
		if err := s.parent.StoreAccount(a); err != nil {
			return err
		}
	}
	for _, a := range s.assets {
		if err := s.parent.StoreAsset(a); err != nil {
			return err
		}
	}
	for _, b := range s.balances {
		if err := s.parent.StoreBalance(b); err != nil {
			return err
		}
	}
	for id, rec := range s.transactions {
		if err := s.parent.StoreTransaction(id, rec); err != nil {
			return err
		}
	}
	for _, f := range s.feeds {
		if err := s.parent.StoreFeed(f); err != nil {
			return err
		}
	}
	for _, sl := range s.slots {
		if err := s.parent.StoreSlot(sl); err != nil {
			return err
		}
	}
	for _, o := range s.orders {
		if err := s.parent.StoreOrder(o); err != nil {
			return err
		}
	}
	for _, o := range s.removed {
		if err := s.parent.RemoveOrder(o); err != nil {
			return err
		}
	}
	for _, st := range s.marketStatus {
		if err := s.parent.StoreMarketStatus(st); err != nil {
			return err
		}
	}
	for _, r := range s.marketHistory {
		if err := s.parent.StoreMarketHistory(r); err != nil {
			return err
		}
	}
	for key, v := range s.property {
		if err := s.parent.StoreProperty(key, v); err != nil {
			return err
		}
	}
	return nil
}

// GetUndoState fills out with the parent's pre-image of every key this
// overlay touched, before ApplyChanges has run. Later calling
// out.ApplyChanges() against the same parent reverts this overlay's
// effect (spec.md §3, "undo state").
//
// Accounts and assets are treated as append-only by id, matching how the
// engine allocates them: undo restores the prior field values of an
// existing account or asset but does not retract one newly registered in
// this overlay, since nothing above this layer ever needs to make an id
// disappear. Orders support full creation/removal undo because resting
// orders routinely come and go within a single block.
func (s *State) GetUndoState(out *State) error {
	for id := range s.accounts {
		old, found, err := s.parent.AccountByID(id)
		if err != nil {
			return err
		}
		if found {
			out.accounts[id] = old
		}
	}
	for id := range s.assets {
		old, found, err := s.parent.AssetByID(id)
		if err != nil {
			return err
		}
		if found {
			out.assets[id] = old
		}
	}
	for id, b := range s.balances {
		old, found, err := s.parent.BalanceByID(id)
		if err != nil {
			return err
		}
		if found {
			out.balances[id] = old
		} else {
			zero := b
			zero.Amount = 0
			out.balances[id] = zero
		}
	}
	for key := range s.feeds {
		old, found, err := s.parent.FeedByIndex(key.quote, key.delegate)
		if err != nil {
			return err
		}
		if found {
			out.feeds[key] = old
		}
	}
	for t := range s.slots {
		old, found, err := s.parent.SlotByTime(t)
		if err != nil {
			return err
		}
		if found {
			out.slots[t] = old
		}
	}
	for id, o := range s.orders {
		old, found, err := s.parent.OrderByID(id)
		if err != nil {
			return err
		}
		if found {
			out.orders[id] = old
		} else {
			out.removed[id] = o
		}
	}
	for id := range s.removed {
		old, found, err := s.parent.OrderByID(id)
		if err != nil {
			return err
		}
		if found {
			out.orders[id] = old
		}
	}
	for key := range s.marketStatus {
		old, found, err := s.parent.MarketStatus(key[0], key[1])
		if err != nil {
			return err
		}
		if found {
			out.marketStatus[key] = old
		}
	}
	for key := range s.marketHistory {
		old, found, err := s.parent.MarketHistory(model.MarketHistoryRecord{
			QuoteAsset: key.quote, BaseAsset: key.base, Granularity: key.granularity, BucketStart: key.bucketStart,
		})
		if err != nil {
			return err
		}
		if found {
			out.marketHistory[key] = old
		}
	}
	for key := range s.property {
		old, found, err := s.parent.Property(key)
		if err != nil {
			return err
		}
		if found {
			out.property[key] = old
		}
	}
	// Transaction records are not captured by undo: chain/engine's
	// popBlock removes a popped block's records itself, and the
	// evaluator's duplicate check tests bare presence of a record.
	return nil
}
