// Package producer assembles a candidate block from pending transactions
// (spec.md §4.9): pre-execute markets, then greedily include pending
// transactions in fee order under size, count, and time limits.
package producer

import (
	"encoding/json"
	"time"

	"github.com/deltachain/core/chain/chainstate"
	"github.com/deltachain/core/chain/market"
	"github.com/deltachain/core/chain/mempool"
	"github.com/deltachain/core/chain/model"
	"github.com/deltachain/core/chain/overlay"
	"github.com/deltachain/core/chain/txeval"
)

// Limits bounds a single production attempt.
type Limits struct {
	MaxBlockSize        int
	MaxTransactionCount  int
	MaxProductionTime    time.Duration
	MinFee               uint64
	TransactionBlacklist map[string]bool
	OperationBlacklist   map[model.OperationKind]bool
}

// Produce builds a block body over head's committed state (no header
// fields besides the ones derivable here — the caller fills previous_id,
// signs, and computes the random seed via chain/signature).
func Produce(view *chainstate.View, pool *mempool.Pool, blockNum uint64, now int64, limits Limits) (model.Block, error) {
	pend := overlay.New(view)

	mkt := market.New(view, pend, now)
	if _, err := mkt.Execute(blockNum); err != nil {
		return model.Block{}, err
	}

	deadline := time.Now().Add(limits.MaxProductionTime)
	if limits.MaxProductionTime <= 0 {
		deadline = time.Time{}
	}

	block := model.Block{Header: model.BlockHeader{BlockNum: blockNum, Timestamp: now}}
	size := 0

	for _, tx := range pool.ByFeeDescending() {
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
		if limits.MaxTransactionCount > 0 && len(block.Transactions) >= limits.MaxTransactionCount {
			break
		}
		if limits.TransactionBlacklist[tx.ID()] {
			continue
		}
		if tx.RelayFee < limits.MinFee {
			continue
		}
		if blacklistedOp(tx, limits.OperationBlacklist) {
			continue
		}

		approxSize := transactionSize(tx)
		if limits.MaxBlockSize > 0 && size+approxSize > limits.MaxBlockSize {
			continue
		}

		child := overlay.New(pend)
		ev := txeval.New(child, now)
		if _, err := ev.Apply(tx, blockNum, len(block.Transactions)); err != nil {
			// excluded, never aborts the block (spec.md §7)
			continue
		}
		if err := child.ApplyChanges(); err != nil {
			continue
		}

		block.Transactions = append(block.Transactions, tx)
		block.TransactionIDs = append(block.TransactionIDs, tx.ID())
		size += approxSize
	}

	block.BlockSize = size
	block.Header.TransactionDigest = model.HashBytes(model.Pack(block.Header))
	return block, nil
}

func blacklistedOp(tx model.SignedTransaction, blacklist map[model.OperationKind]bool) bool {
	if len(blacklist) == 0 {
		return false
	}
	for _, op := range tx.Operations {
		if blacklist[op.Kind] {
			return true
		}
	}
	return false
}

func transactionSize(tx model.SignedTransaction) int {
	b, err := json.Marshal(tx)
	if err != nil {
		return 0
	}
	return len(b)
}
