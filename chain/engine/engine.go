// Package engine ties the chain state view, fork tree, overlay, market,
// evaluator, mempool, and producer into the top-level operations
// spec.md §4.6-§4.7 describe: push_block, extend_chain, switch_to_fork,
// and the read-only query surface above them.
package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/deltachain/core/chain/chainstate"
	"github.com/deltachain/core/chain/clock"
	"github.com/deltachain/core/chain/forkdb"
	"github.com/deltachain/core/chain/mempool"
	"github.com/deltachain/core/chain/model"
	"github.com/deltachain/core/chain/overlay"
	"github.com/deltachain/core/chain/signature"
	"github.com/deltachain/core/chain/taskqueue"
	"github.com/deltachain/core/chain/txeval"
)

// MaxUndoHistory bounds how many recent blocks' undo states the engine
// keeps (spec.md §8 invariant 4, "BTS_BLOCKCHAIN_MAX_UNDO_HISTORY").
const MaxUndoHistory = 1024

// MaxDelegatePayPerBlock is the shares a delegate may be minted for
// producing a single block, before its pay rate is applied.
const MaxDelegatePayPerBlock = 1000

// BlocksPerDay assumes SlotIntervalSeconds-second slots with no missed
// production.
const BlocksPerDay = 24 * 60 * 60 / model.SlotIntervalSeconds

// Observer receives notifications from outside the critical path
// (spec.md §6, "Observer interface"), dispatched via the task queue.
type Observer interface {
	BlockApplied(summary BlockSummary)
	StateChanged(undo *overlay.State)
}

// BlockSummary is what block_applied delivers.
type BlockSummary struct {
	ID        model.BlockID
	BlockNum  uint64
	TxCount   int
	TradeCount int
}

// EventHandler is the engine's logging seam, decoupled from any concrete
// logger the same way the teacher's state.EventHandler is.
type EventHandler func(v string, args ...any)

// Engine is the top-level chain-state machine.
type Engine struct {
	mu sync.Mutex

	view  *chainstate.View
	forks *forkdb.DB
	clock *clock.Clock
	pool  *mempool.Pool
	tasks *taskqueue.Queue

	head model.BlockID

	undo map[model.BlockID]*overlay.State
	undoOrder []model.BlockID

	revalidateLater map[model.BlockID]bool
	forkBlockNums   map[string]uint64
	checkpoints     map[uint64]model.BlockID
	hardForks       map[uint64]HardForkFunc

	observers []Observer
	evHandler EventHandler
}

// Config wires an Engine's dependencies.
type Config struct {
	View      *chainstate.View
	Forks     *forkdb.DB
	Clock     *clock.Clock
	Tasks     *taskqueue.Queue
	EvHandler EventHandler
}

// New constructs an Engine whose head is genesisID: genesis right after
// bootstrap, or the included tip when reopening an existing chain (the
// caller is expected to have already populated the view). The pending
// pool evaluates expirations against that head block's timestamp.
func New(cfg Config, genesisID model.BlockID) *Engine {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}
	e := &Engine{
		view:            cfg.View,
		forks:           cfg.Forks,
		clock:           cfg.Clock,
		tasks:           cfg.Tasks,
		head:            genesisID,
		undo:            make(map[model.BlockID]*overlay.State),
		revalidateLater: make(map[model.BlockID]bool),
		forkBlockNums:   DefaultForkBlockNums(),
		checkpoints:     make(map[uint64]model.BlockID),
		hardForks:       make(map[uint64]HardForkFunc),
		evHandler:       ev,
	}
	now := cfg.Clock.NowUnix()
	if blk, found, err := cfg.Forks.Block(genesisID); err == nil && found {
		now = blk.Header.Timestamp
	}
	e.pool = mempool.New(e.view, now)
	return e
}

// Subscribe registers an Observer.
func (e *Engine) Subscribe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Head returns the current head block id.
func (e *Engine) Head() model.BlockID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.head
}

// PushBlock implements spec.md §4.7's push_block: index the block, find
// the longest linkable tip, and try to extend the chain to it, falling
// back across sibling forks on invalidation.
func (e *Engine) PushBlock(b model.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	head, found, err := e.forks.Node(e.head)
	if err != nil {
		return err
	}
	if found && b.Header.BlockNum+MaxUndoHistory <= head.BlockNum {
		return model.ErrBlockOlderThanUndoHistory
	}

	tip, err := e.forks.StoreAndIndex(b)
	if err == model.ErrBlockAlreadyKnown {
		tip = b.ID()
	} else if err != nil {
		return err
	}

	tipNode, found, err := e.forks.Node(tip)
	if err != nil {
		return err
	}
	if !found || head.BlockNum >= tipNode.BlockNum {
		return nil
	}

	return e.climbTo(tip)
}

// climbTo walks candidate heights downward from the tip's height while
// they stay above the current head's height, trying each linkable
// sibling at that height via switchToFork until one succeeds, per
// spec.md §4.7 step 4. If none succeeds it returns the last error that
// invalidated a candidate.
func (e *Engine) climbTo(tip model.BlockID) error {
	tipNode, _, err := e.forks.Node(tip)
	if err != nil {
		return err
	}
	headNode, _, err := e.forks.Node(e.head)
	if err != nil {
		return err
	}
	var lastErr error
	for num := tipNode.BlockNum; num > headNode.BlockNum; num-- {
		ids, err := e.forks.BlocksAtNum(num)
		if err != nil {
			return err
		}
		for _, id := range ids {
			node, found, err := e.forks.Node(id)
			if err != nil {
				return err
			}
			if !found || !node.IsLinked || node.IsValid == model.ValidFalse {
				continue
			}
			if err := e.switchToFork(id); err != nil {
				if err == errTimeInFuture {
					e.revalidateLater[id] = true
					continue
				}
				_ = e.forks.MarkInvalid(id, err.Error())
				lastErr = err
				continue
			}
			return nil
		}
	}
	return lastErr
}

var errTimeInFuture = model.ErrTimeInFuture

// switchToFork implements spec.md §4.7: pop back to the common ancestor,
// then extend forward along target's branch.
func (e *Engine) switchToFork(target model.BlockID) error {
	if target == e.head {
		return nil
	}

	ancestors, common, err := e.forkHistoryTo(target)
	if err != nil {
		return err
	}

	for e.head != common {
		if err := e.popBlock(); err != nil {
			return err
		}
	}

	for i := len(ancestors) - 1; i >= 0; i-- {
		blk, found, err := e.forks.Block(ancestors[i])
		if err != nil {
			return err
		}
		if !found {
			return model.ErrUnknownBlock
		}
		if err := e.extendChain(blk); err != nil {
			return err
		}
	}
	return nil
}

// forkHistoryTo walks parent pointers from target until it reaches a
// block currently included on the main chain (the common ancestor),
// returning the walked chain (excluding the ancestor) in target-first
// order.
func (e *Engine) forkHistoryTo(target model.BlockID) ([]model.BlockID, model.BlockID, error) {
	var chain []model.BlockID
	cur := target
	for {
		node, found, err := e.forks.Node(cur)
		if err != nil {
			return nil, "", err
		}
		if !found {
			return nil, "", model.ErrUnknownBlock
		}
		if node.IsIncluded {
			return chain, cur, nil
		}
		chain = append(chain, cur)
		if node.PreviousID == "" || node.PreviousID == model.ZeroBlockID {
			return chain, node.PreviousID, nil
		}
		cur = node.PreviousID
	}
}

// popBlock applies the stored undo delta for the current head, moves
// head to its parent, and marks the popped block unincluded.
func (e *Engine) popBlock() error {
	old := e.head
	node, found, err := e.forks.Node(old)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrUnknownBlock
	}

	u, ok := e.undo[old]
	if !ok {
		return fmt.Errorf("engine: no undo state for %s", old)
	}
	if err := u.ApplyChanges(); err != nil {
		return err
	}
	delete(e.undo, old)

	// GetUndoState never captured the transaction records this block
	// wrote (they're append-only to the evaluator), so undo them by
	// hand: a popped transaction must be resubmittable immediately, not
	// once its original expiration ages out of a forward purge.
	if poppedBlock, found, err := e.forks.Block(old); err == nil && found {
		for _, id := range poppedBlock.TransactionIDs {
			_ = e.view.RemoveTransaction(id)
		}
	}
	for i, id := range e.undoOrder {
		if id == old {
			e.undoOrder = append(e.undoOrder[:i], e.undoOrder[i+1:]...)
			break
		}
	}

	if err := e.forks.SetIncluded(old, false); err != nil {
		return err
	}
	e.head = node.PreviousID

	headTime := e.clock.NowUnix()
	if blk, found, err := e.forks.Block(e.head); err == nil && found {
		headTime = blk.Header.Timestamp
	}
	e.purgeExpiredUnique(headTime)
	return nil
}

// extendChain implements spec.md §4.6: validate header, open a pending
// overlay, evaluate production bookkeeping, apply transactions and
// markets in the fork-dependent order, commit, and advance head.
func (e *Engine) extendChain(b model.Block) error {
	headNode, found, err := e.forks.Node(e.head)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrUnknownBlock
	}
	if err := b.ValidateSequence(headNode.BlockNum); err != nil {
		return err
	}
	if b.Header.PreviousID != e.head {
		return model.ErrInvalidPreviousBlockID
	}
	if err := b.ValidateSlotAlignment(); err != nil {
		return err
	}

	headBlock, found, err := e.forks.Block(e.head)
	if err != nil {
		return err
	}
	if found {
		if b.Header.Timestamp <= headBlock.Header.Timestamp {
			return model.ErrTimeInPast
		}
	}
	if b.Header.Timestamp > e.clock.NowUnix()+2*model.SlotIntervalSeconds {
		return model.ErrTimeInFuture
	}
	if checkpoint, ok := e.checkpoints[b.Header.BlockNum]; ok && checkpoint != b.ID() {
		return model.ErrFailedCheckpointVerify
	}

	pend := overlay.New(e.view)

	signee, err := e.resolveSignee(b)
	if err != nil {
		return err
	}
	if err := e.updateDelegateProduction(pend, b, headBlock, signee); err != nil {
		return err
	}
	if err := e.payDelegate(pend, signee, b.Header.BlockNum); err != nil {
		return err
	}

	var trades []model.MarketTrade
	if e.usesV2(b.Header.BlockNum, "market_v2") {
		trades, err = executeMarketsV2(e, pend, b)
	} else {
		trades, err = executeMarketsV1(e, pend, b)
	}
	if err != nil {
		return err
	}

	if b.Header.BlockNum%model.NDelegates == 0 {
		if err := e.rotateActiveDelegates(pend); err != nil {
			return err
		}
	}
	if err := e.rotateRandomSeed(pend, headBlock); err != nil {
		return err
	}
	if err := e.runHardFork(pend, b.Header.BlockNum); err != nil {
		return err
	}

	undo := overlay.New(e.view)
	if err := pend.GetUndoState(undo); err != nil {
		return err
	}
	if err := pend.ApplyChanges(); err != nil {
		return err
	}

	if err := e.forks.MarkValid(b.ID(), true); err != nil {
		return err
	}
	e.head = b.ID()
	e.undo[b.ID()] = undo
	e.undoOrder = append(e.undoOrder, b.ID())
	e.pruneUndoHorizon()

	for _, id := range b.TransactionIDs {
		e.pool.Remove(id)
	}

	e.notify(BlockSummary{ID: b.ID(), BlockNum: b.Header.BlockNum, TxCount: len(b.Transactions), TradeCount: len(trades)}, undo)
	e.purgeExpiredUnique(b.Header.Timestamp)
	return nil
}

func (e *Engine) pruneUndoHorizon() {
	for len(e.undoOrder) > MaxUndoHistory {
		id := e.undoOrder[0]
		e.undoOrder = e.undoOrder[1:]
		delete(e.undo, id)
	}
}

func (e *Engine) applyTransactions(pend *overlay.State, b model.Block) error {
	ev := txeval.New(pend, b.Header.Timestamp)
	for i, tx := range b.Transactions {
		if _, err := ev.Apply(tx, b.Header.BlockNum, i); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) resolveSignee(b model.Block) (model.AccountID, error) {
	unsigned := b.Header
	unsigned.SigneeSignature = ""
	addr, err := signature.Verify(unsigned, b.Header.SigneeSignature)
	if err != nil {
		return 0, model.ErrInvalidDelegateSignee
	}
	acc, found, err := e.view.AccountByAddress(addr)
	if err != nil {
		return 0, err
	}
	if !found || !acc.IsDelegate() {
		return 0, model.ErrInvalidDelegateSignee
	}
	return acc.ID, nil
}

func (e *Engine) updateDelegateProduction(pend *overlay.State, b, parent model.Block, signee model.AccountID) error {
	acc, found, err := pend.AccountByID(signee)
	if err != nil {
		return err
	}
	if !found || acc.Delegate == nil {
		return model.ErrInvalidDelegateSignee
	}
	if parent.Header.NextSecretHash != "" {
		if signature.Ripemd160Hex([]byte(b.Header.PreviousSecret)) != parent.Header.NextSecretHash {
			return model.ErrInvalidDelegateSignee
		}
	}
	acc.Delegate.BlocksProduced++
	acc.Delegate.LastBlockNumProduced = b.Header.BlockNum
	return pend.StoreAccount(acc)
}

func (e *Engine) payDelegate(pend *overlay.State, signee model.AccountID, blockNum uint64) error {
	acc, found, err := pend.AccountByID(signee)
	if err != nil {
		return err
	}
	if !found || acc.Delegate == nil {
		return model.ErrInvalidDelegateSignee
	}

	var pay uint64
	if e.usesV2(blockNum, "pay_v2") {
		pay, err = payDelegateV2(pend, acc)
	} else {
		pay, err = payDelegateV1(pend, acc)
	}
	if err != nil {
		return err
	}

	acc.Delegate.PayBalance += pay
	acc.Delegate.TotalPaid += pay
	acc.Delegate.VotesFor += int64(pay)
	return pend.StoreAccount(acc)
}

func (e *Engine) rotateActiveDelegates(pend *overlay.State) error {
	var accounts []model.Account
	if err := e.view.AllAccounts(func(a model.Account) bool {
		if a.IsDelegate() {
			accounts = append(accounts, a)
		}
		return true
	}); err != nil {
		return err
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Delegate.VotesFor > accounts[j].Delegate.VotesFor })
	n := model.NDelegates
	if len(accounts) < n {
		n = len(accounts)
	}
	top := accounts[:n]

	seedRaw, _, _ := pend.Property(model.PropertyLastRandomSeed)
	seed := string(seedRaw)
	for iter := 0; iter < 4; iter++ {
		seed = signature.Ripemd160Hex([]byte(seed))
		shuffle(top, seed)
	}

	ids := make([]model.AccountID, len(top))
	for i, a := range top {
		ids[i] = a.ID
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return pend.StoreProperty(model.PropertyActiveDelegateList, raw)
}

func (e *Engine) rotateRandomSeed(pend *overlay.State, parent model.Block) error {
	seed := signature.DeriveNextSeed(parent.Header.PreviousSecret, parent.RandomSeed)
	return pend.StoreProperty(model.PropertyLastRandomSeed, []byte(seed))
}

func (e *Engine) usesV2(blockNum uint64, key string) bool {
	fork, ok := e.forkBlockNums[key]
	return ok && blockNum >= fork
}

// purgeExpiredUnique drops transaction records whose expiration has
// passed from the persistent store (spec.md §4.6 final line): once a
// transaction can no longer be resubmitted, there is no duplicate to
// guard against and its record only wastes space.
func (e *Engine) purgeExpiredUnique(headTime int64) {
	var expired []string
	_ = e.view.AllTransactions(func(id string, rec model.TxRecord) bool {
		if rec.Tx.Expiration <= headTime {
			expired = append(expired, id)
		}
		return true
	})
	for _, id := range expired {
		_ = e.view.RemoveTransaction(id)
	}
}

func (e *Engine) notify(summary BlockSummary, undo *overlay.State) {
	for _, o := range e.observers {
		obs := o
		e.tasks.Post(func() { obs.BlockApplied(summary) })
		e.tasks.Post(func() { obs.StateChanged(undo) })
	}
}

func shuffle(accounts []model.Account, seed string) {
	h := []byte(seed)
	for i := len(accounts) - 1; i > 0; i-- {
		j := int(h[i%len(h)]) % (i + 1)
		accounts[i], accounts[j] = accounts[j], accounts[i]
	}
}
