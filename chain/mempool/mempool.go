// Package mempool is the pending transaction pool (spec.md §4.8): a
// persistent id→transaction map plus an in-memory fee-ordered index, and
// a cumulative overlay so later submissions see earlier ones' effects.
package mempool

import (
	"sort"
	"sync"

	"github.com/deltachain/core/chain/model"
	"github.com/deltachain/core/chain/overlay"
	"github.com/deltachain/core/chain/txeval"
)

// MaxPending is the pool size past which a submission must pay an
// overage-squared multiple of the relay fee unless it overrides limits.
const MaxPending = 2000

type entry struct {
	tx  model.SignedTransaction
	fee uint64
}

// Pool holds pending transactions and the cumulative overlay each new
// submission is evaluated against.
type Pool struct {
	mu       sync.Mutex
	head     overlay.Accessor
	now      int64
	entries  map[string]entry
	cumulative *overlay.State
}

// New constructs an empty pool against head, the current committed
// state. Call Rebase whenever head moves.
func New(head overlay.Accessor, now int64) *Pool {
	return &Pool{
		head:       head,
		now:        now,
		entries:    make(map[string]entry),
		cumulative: overlay.New(head),
	}
}

// Rebase drops the cumulative overlay and points the pool at a new head,
// the first step of RevalidatePending.
func (p *Pool) Rebase(head overlay.Accessor, now int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.head = head
	p.now = now
	p.cumulative = overlay.New(head)
}

// Store evaluates tx against the pool's cumulative overlay and, on
// success, commits it so subsequent submissions see its effects
// (spec.md §4.8). Storing an already-pending id is a no-op.
func (p *Pool) Store(tx model.SignedTransaction, overrideLimits bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := tx.ID()
	if _, exists := p.entries[id]; exists {
		return nil
	}

	minFee := uint64(txeval.MinRelayFee)
	if !overrideLimits && len(p.entries) > MaxPending {
		overage := uint64(len(p.entries) - MaxPending)
		minFee = txeval.MinRelayFee * overage * overage
	}
	if tx.RelayFee < minFee {
		return model.ErrInsufficientRelayFee
	}

	child := overlay.New(p.cumulative)
	ev := txeval.New(child, p.now)
	// blockNum/position are placeholders here: this overlay is local to
	// the pool and never merged into chain state, so the record it
	// writes is only ever used to satisfy the in-pool duplicate check.
	fee, err := ev.Apply(tx, 0, len(p.entries))
	if err != nil {
		return err
	}
	if err := child.ApplyChanges(); err != nil {
		return err
	}

	p.entries[id] = entry{tx: tx, fee: fee}
	return nil
}

// Remove drops an id from the pool without re-evaluating anything,
// used when a block including it commits.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
}

// ByFeeDescending returns every pending transaction, highest fee first,
// ties broken by id for determinism (spec.md §4.9 producer iteration
// order).
func (p *Pool) ByFeeDescending() []model.SignedTransaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].fee != out[j].fee {
			return out[i].fee > out[j].fee
		}
		return out[i].tx.ID() < out[j].tx.ID()
	})
	txs := make([]model.SignedTransaction, len(out))
	for i, e := range out {
		txs[i] = e.tx
	}
	return txs
}

// Size reports how many transactions are pending.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// RevalidatePending rebuilds the pool against a new head: drops the
// cumulative overlay, re-evaluates every previously pending transaction
// against fresh state, and discards the ones that no longer apply.
func (p *Pool) RevalidatePending(head overlay.Accessor, now int64) {
	p.mu.Lock()
	prior := make([]model.SignedTransaction, 0, len(p.entries))
	for _, e := range p.entries {
		prior = append(prior, e.tx)
	}
	p.head = head
	p.now = now
	p.entries = make(map[string]entry)
	p.cumulative = overlay.New(head)
	p.mu.Unlock()

	for _, tx := range prior {
		_ = p.Store(tx, false)
	}
}
