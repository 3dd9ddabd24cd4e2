package engine

import "github.com/deltachain/core/chain/model"

// Pool exposes the pending transaction pool for submission and producer
// use.
func (e *Engine) Pool() interface {
	Store(tx model.SignedTransaction, overrideLimits bool) error
} {
	return e.pool
}

// SubmitTransaction stores tx in the pending pool.
func (e *Engine) SubmitTransaction(tx model.SignedTransaction, overrideLimits bool) error {
	return e.pool.Store(tx, overrideLimits)
}

// RevalidatePending rebuilds the pending pool against the current head.
// The engine does not schedule it itself, after a block or otherwise; it
// runs only when a caller invokes it.
func (e *Engine) RevalidatePending() {
	e.mu.Lock()
	view := e.view
	now := e.clock.NowUnix()
	e.mu.Unlock()
	e.pool.RevalidatePending(view, now)
}

// RevalidateFutureBlocks retries push for every block id recorded in the
// "revalidate later" set, the Open-Question decision that only the
// triggering block id is retried and PushBlock re-derives the longest
// linkable tip from there.
func (e *Engine) RevalidateFutureBlocks() {
	e.mu.Lock()
	ids := make([]model.BlockID, 0, len(e.revalidateLater))
	for id := range e.revalidateLater {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.mu.Lock()
		blk, found, err := e.forks.Block(id)
		e.mu.Unlock()
		if err != nil || !found {
			continue
		}
		if err := e.PushBlock(blk); err == nil {
			e.mu.Lock()
			delete(e.revalidateLater, id)
			e.mu.Unlock()
		}
	}
}
