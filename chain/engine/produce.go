package engine

import (
	"fmt"

	"github.com/deltachain/core/chain/model"
	"github.com/deltachain/core/chain/producer"
)

// ProduceCandidate assembles a block body over the current head using the
// pending pool, leaving previous_id, the secret-chain fields, and the
// signee signature for the caller to fill in (those require the
// producing delegate's key material, which the engine never holds).
func (e *Engine) ProduceCandidate(now int64, limits producer.Limits) (model.Block, error) {
	e.mu.Lock()
	view := e.view
	pool := e.pool
	head := e.head
	e.mu.Unlock()

	headBlock, found, err := e.forks.Block(head)
	if err != nil {
		return model.Block{}, err
	}
	if !found {
		return model.Block{}, fmt.Errorf("engine: head block %s not found", head)
	}

	return producer.Produce(view, pool, headBlock.Header.BlockNum+1, now, limits)
}
