package engine

import (
	"github.com/deltachain/core/chain/chainstate"
	"github.com/deltachain/core/chain/clock"
	"github.com/deltachain/core/chain/forkdb"
)

// ReindexProgress reports replay progress to an optional callback.
type ReindexProgress func(blockNum uint64, total int)

// Reindex replays every block forkdb knows, in block-number order, with
// write-through disabled on the bulk stores and flushed every 1000
// blocks (spec.md §6). It replays over view as given and does not run the
// genesis bootstrap: block 0 is only marked valid, so view must already
// hold the genesis accounts and assets.
func Reindex(view *chainstate.View, forks *forkdb.DB, maxBlockNum uint64, rest Config, progress ReindexProgress) (*Engine, error) {
	for _, ns := range chainstate.WriteThroughNamespaces() {
		view.Store(ns).SetWriteThrough(false)
	}
	defer func() {
		for _, ns := range chainstate.WriteThroughNamespaces() {
			view.Store(ns).SetWriteThrough(true)
		}
	}()

	cfg := rest
	cfg.View = view
	cfg.Forks = forks
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	var e *Engine

	for num := uint64(0); num <= maxBlockNum; num++ {
		ids, err := forks.BlocksAtNum(num)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			continue
		}
		id := ids[0]
		blk, found, err := forks.Block(id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		if num == 0 {
			if err := forks.MarkValid(id, true); err != nil {
				return nil, err
			}
			e = New(cfg, id)
		} else {
			if err := e.extendChain(blk); err != nil {
				return nil, err
			}
		}

		if progress != nil {
			progress(num, int(maxBlockNum)+1)
		}
		if num%1000 == 0 {
			for _, ns := range chainstate.WriteThroughNamespaces() {
				if err := view.Store(ns).Flush(); err != nil {
					return nil, err
				}
			}
		}
	}
	return e, nil
}
