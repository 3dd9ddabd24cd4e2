package engine

import (
	"github.com/deltachain/core/chain/market"
	"github.com/deltachain/core/chain/model"
	"github.com/deltachain/core/chain/overlay"
)

// DefaultForkBlockNums returns the fork activation heights an Engine uses
// unless Config overrides them: both upgrades are active from genesis,
// so a freshly bootstrapped chain always runs the current rules. A chain
// that needs to replay history predating one of these upgrades should
// call SetForkBlockNum to push the activation height out.
func DefaultForkBlockNums() map[string]uint64 {
	return map[string]uint64{
		"pay_v2":    0,
		"market_v2": 0,
	}
}

// SetForkBlockNum overrides when the named fork activates.
func (e *Engine) SetForkBlockNum(key string, blockNum uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forkBlockNums[key] = blockNum
}

// SetCheckpoint pins id as the required block at blockNum; extendChain
// rejects any competing block at that height.
func (e *Engine) SetCheckpoint(blockNum uint64, id model.BlockID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkpoints[blockNum] = id
}

// HardForkFunc rewrites the pending overlay at the exact block number it
// is registered for: recomputing supplies, resetting pay rates, and
// similar one-shot corrections that don't belong in the ordinary
// per-block rules.
type HardForkFunc func(pend *overlay.State) error

// RegisterHardFork schedules fn to run once extendChain reaches
// blockNum, after the block's ordinary production and market rules have
// written to the pending overlay but before it commits, so the rewrite
// is captured by that block's undo state like everything else in it.
func (e *Engine) RegisterHardFork(blockNum uint64, fn HardForkFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hardForks[blockNum] = fn
}

func (e *Engine) runHardFork(pend *overlay.State, blockNum uint64) error {
	fn, ok := e.hardForks[blockNum]
	if !ok {
		return nil
	}
	return fn(pend)
}

// payDelegateV1 is the rule active before the "pay_v2" fork: mint new
// base-asset shares only, never touching the collected-fees pool.
func payDelegateV1(pend *overlay.State, acc model.Account) (uint64, error) {
	rate := uint64(acc.Delegate.PayRatePercent)
	return MaxDelegatePayPerBlock * rate / 100, nil
}

// payDelegateV2 is the rule active from the "pay_v2" fork onward: mint
// up to the per-block cap, release a pay-rate fraction of the fees the
// core asset has accumulated since the last release, and destroy
// whatever of that periodic release the rate didn't pay out.
func payDelegateV2(pend *overlay.State, acc model.Account) (uint64, error) {
	rate := uint64(acc.Delegate.PayRatePercent)
	minted := MaxDelegatePayPerBlock * rate / 100

	asset, found, err := pend.AssetByID(model.CoreAssetID)
	if err != nil {
		return 0, err
	}
	if !found {
		return minted, nil
	}

	periodicRelease := asset.CollectedFees / (14 * BlocksPerDay)
	released := periodicRelease * rate / 100
	asset.CollectedFees -= periodicRelease
	if err := pend.StoreAsset(asset); err != nil {
		return 0, err
	}

	return minted + released, nil
}

// executeMarketsV1 runs the order active before the "market_v2" fork:
// apply transactions, then execute markets against the resulting state.
func executeMarketsV1(e *Engine, pend *overlay.State, b model.Block) ([]model.MarketTrade, error) {
	if err := e.applyTransactions(pend, b); err != nil {
		return nil, err
	}
	mkt := market.New(e.view, pend, b.Header.Timestamp)
	return mkt.Execute(b.Header.BlockNum)
}

// executeMarketsV2 runs the order active from the "market_v2" fork
// onward: execute markets first, then apply transactions, so a
// transaction in the same block as a fill observes the fill's effects.
func executeMarketsV2(e *Engine, pend *overlay.State, b model.Block) ([]model.MarketTrade, error) {
	mkt := market.New(e.view, pend, b.Header.Timestamp)
	trades, err := mkt.Execute(b.Header.BlockNum)
	if err != nil {
		return nil, err
	}
	if err := e.applyTransactions(pend, b); err != nil {
		return nil, err
	}
	return trades, nil
}
