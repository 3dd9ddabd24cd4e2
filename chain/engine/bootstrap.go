package engine

import (
	"github.com/deltachain/core/chain/chainstate"
	"github.com/deltachain/core/chain/forkdb"
	"github.com/deltachain/core/chain/genesis"
	"github.com/deltachain/core/chain/model"
)

// Bootstrap builds the genesis block from d, writes its accounts/assets/
// balances straight into view, indexes the genesis block itself as the
// first fork node (known, linked, valid, included), and returns a ready
// Engine whose head is genesis.
func Bootstrap(d genesis.Description, view *chainstate.View, forks *forkdb.DB, rest Config) (*Engine, genesis.Result, error) {
	res, err := genesis.Bootstrap(d, view)
	if err != nil {
		return nil, res, err
	}

	header := model.BlockHeader{
		PreviousID: model.ZeroBlockID,
		BlockNum:   0,
		Timestamp:  d.Timestamp,
	}
	block := model.Block{Header: header}
	id := block.ID()

	if err := view.StorePropertyJSON(model.PropertyChainID, res.ChainID); err != nil {
		return nil, res, err
	}

	if _, err := forks.StoreAndIndex(block); err != nil {
		return nil, res, err
	}
	if err := forks.MarkValid(id, true); err != nil {
		return nil, res, err
	}

	rest.View = view
	rest.Forks = forks
	e := New(rest, id)
	return e, res, nil
}
