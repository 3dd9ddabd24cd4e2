package engine_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/deltachain/core/chain/chainstate"
	"github.com/deltachain/core/chain/clock"
	"github.com/deltachain/core/chain/engine"
	"github.com/deltachain/core/chain/forkdb"
	"github.com/deltachain/core/chain/genesis"
	"github.com/deltachain/core/chain/kv"
	"github.com/deltachain/core/chain/model"
	"github.com/deltachain/core/chain/overlay"
	"github.com/deltachain/core/chain/producer"
	"github.com/deltachain/core/chain/signature"
	"github.com/deltachain/core/chain/taskqueue"
)

const pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

type harness struct {
	view  *chainstate.View
	forks *forkdb.DB
	clock *clock.Clock
	tasks *taskqueue.Queue
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	dir := t.TempDir()
	db, err := kv.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("Should be able to open the database: %s", err)
	}
	t.Cleanup(func() { db.Close() })
	opener := func(ns string) kv.Store { return kv.NewLevelStore(db, ns) }

	q := taskqueue.New(16, nil)
	t.Cleanup(q.Shutdown)

	return &harness{
		view:  chainstate.NewView(opener),
		forks: forkdb.Open(opener),
		clock: clock.NewTest(now),
		tasks: q,
	}
}

func delegateAddress(t *testing.T) string {
	t.Helper()
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the test private key: %s", err)
	}
	return crypto.PubkeyToAddress(pk.PublicKey).String()
}

func bootstrapSingleDelegate(t *testing.T, h *harness, genesisTimestamp int64) (*engine.Engine, genesis.Result) {
	t.Helper()
	desc := genesis.Description{
		Timestamp: genesisTimestamp,
		Delegates: []genesis.DelegateSeed{{Name: "delegate-one", OwnerKey: delegateAddress(t)}},
		MarketAssets: []genesis.MarketAssetSeed{
			{Symbol: "CORE", Name: "Core Asset", Precision: 4, MaxSupply: 1_000_000},
		},
	}

	eng, res, err := engine.Bootstrap(desc, h.view, h.forks, engine.Config{
		Tasks: h.tasks, Clock: h.clock,
	})
	if err != nil {
		t.Fatalf("Should be able to bootstrap genesis: %s", err)
	}
	return eng, res
}

// signAndPush produces the next candidate block over eng's head, signs it
// as the lone genesis delegate, and pushes it.
func signAndPush(t *testing.T, eng *engine.Engine, timestamp int64) model.Block {
	t.Helper()
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the test private key: %s", err)
	}

	blk, err := eng.ProduceCandidate(timestamp, producer.Limits{})
	if err != nil {
		t.Fatalf("Should be able to produce a candidate block: %s", err)
	}
	blk.Header.PreviousID = eng.Head()

	sig, err := signature.Sign(blk.Header, pk)
	if err != nil {
		t.Fatalf("Should be able to sign the block header: %s", err)
	}
	blk.Header.SigneeSignature = sig

	if err := eng.PushBlock(blk); err != nil {
		t.Fatalf("Should be able to push the signed block: %s", err)
	}
	return blk
}

func Test_BootstrapSetsHeadToGenesis(t *testing.T) {
	h := newHarness(t, time.Unix(310, 0))
	eng, _ := bootstrapSingleDelegate(t, h, 300)

	gen := model.Block{Header: model.BlockHeader{PreviousID: model.ZeroBlockID, BlockNum: 0, Timestamp: 300}}
	if eng.Head() != gen.ID() {
		t.Fatalf("got head %s, want genesis id %s", eng.Head(), gen.ID())
	}
}

func Test_ProduceAndPushExtendsHead(t *testing.T) {
	h := newHarness(t, time.Unix(310, 0))
	eng, _ := bootstrapSingleDelegate(t, h, 300)

	blk := signAndPush(t, eng, 303)
	if eng.Head() != blk.ID() {
		t.Fatalf("got head %s, want the newly pushed block %s", eng.Head(), blk.ID())
	}
}

func Test_PushBlockRejectsWrongSignature(t *testing.T) {
	h := newHarness(t, time.Unix(310, 0))
	eng, _ := bootstrapSingleDelegate(t, h, 300)

	blk, err := eng.ProduceCandidate(303, producer.Limits{})
	if err != nil {
		t.Fatalf("Should be able to produce a candidate block: %s", err)
	}
	blk.Header.PreviousID = eng.Head()
	blk.Header.SigneeSignature = "0xdeadbeef"

	if err := eng.PushBlock(blk); err == nil {
		t.Fatalf("Should reject a block with an invalid signee signature")
	}
	if eng.Head() != eng.Head() {
		t.Fatalf("sanity")
	}
}

func Test_DelegateProductionCountIncrementsOnEachBlock(t *testing.T) {
	h := newHarness(t, time.Unix(320, 0))
	eng, res := bootstrapSingleDelegate(t, h, 300)

	signAndPush(t, eng, 303)
	signAndPush(t, eng, 306)

	acc, found, err := eng.AccountByName("delegate-one")
	if err != nil || !found {
		t.Fatalf("Should find the delegate account: found=%v err=%v", found, err)
	}
	if acc.Delegate.BlocksProduced != 2 {
		t.Fatalf("got blocks produced %d, want 2", acc.Delegate.BlocksProduced)
	}
	_ = res
}

// signedRegisterAccount builds a transaction that needs no balance to
// apply, signed by the genesis delegate (account 1), for tests that only
// care about the transaction's own lifecycle.
func signedRegisterAccount(t *testing.T, name string, expiration int64) model.SignedTransaction {
	t.Helper()
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the test private key: %s", err)
	}
	tx := model.Transaction{
		Signer:     1,
		Expiration: expiration,
		RelayFee:   100,
		Operations: []model.Operation{{Kind: model.OpRegisterAccount, RegisterAccount: &model.RegisterAccountOp{Name: name, Address: "0x" + name}}},
	}
	sig, err := signature.Sign(tx, pk)
	if err != nil {
		t.Fatalf("Should be able to sign the transaction: %s", err)
	}
	return model.SignedTransaction{Transaction: tx, Signature: sig}
}

func Test_ExtendChainPurgesTransactionRecordOncePastExpiration(t *testing.T) {
	h := newHarness(t, time.Unix(320, 0))
	eng, _ := bootstrapSingleDelegate(t, h, 300)

	tx := signedRegisterAccount(t, "carol", 305)
	if err := eng.SubmitTransaction(tx, false); err != nil {
		t.Fatalf("Should be able to submit the transaction: %s", err)
	}

	signAndPush(t, eng, 303)
	if _, found, err := eng.TransactionByID(tx.ID()); err != nil || !found {
		t.Fatalf("Should find the transaction's record right after inclusion: found=%v err=%v", found, err)
	}

	signAndPush(t, eng, 312)
	if _, found, err := eng.TransactionByID(tx.ID()); err != nil || found {
		t.Fatalf("Should have purged the expired transaction's record: found=%v err=%v", found, err)
	}
}

func Test_PayDelegateReleasesAndDestroysFeePoolShare(t *testing.T) {
	h := newHarness(t, time.Unix(320, 0))
	eng, res := bootstrapSingleDelegate(t, h, 300)

	// A pay rate of 100% (the genesis default) means the delegate's
	// release exactly matches the periodic amount, so the destroyed
	// complement is zero and the math stays easy to check by hand.
	asset, found, err := h.view.AssetByID(res.CoreAssetID)
	if err != nil || !found {
		t.Fatalf("Should find the core asset: found=%v err=%v", found, err)
	}
	const seededFees = 14 * engine.BlocksPerDay * 1000
	asset.CollectedFees = seededFees
	if err := h.view.StoreAsset(asset); err != nil {
		t.Fatalf("Should be able to seed the core asset's fee pool: %s", err)
	}

	signAndPush(t, eng, 303)

	acc, found, err := eng.AccountByName("delegate-one")
	if err != nil || !found {
		t.Fatalf("Should find the delegate account: found=%v err=%v", found, err)
	}
	wantPay := uint64(engine.MaxDelegatePayPerBlock) + 1000
	if acc.Delegate.PayBalance != wantPay || acc.Delegate.TotalPaid != wantPay {
		t.Fatalf("got pay_balance %d total_paid %d, want %d (mint %d + release 1000)", acc.Delegate.PayBalance, acc.Delegate.TotalPaid, wantPay, engine.MaxDelegatePayPerBlock)
	}

	core, found, err := eng.AssetBySymbol("CORE")
	if err != nil || !found {
		t.Fatalf("Should find the core asset by symbol: found=%v err=%v", found, err)
	}
	if core.CollectedFees != seededFees-1000 {
		t.Fatalf("got collected_fees %d, want %d", core.CollectedFees, seededFees-1000)
	}
}

func Test_SetForkBlockNumActivatesLegacyPayRule(t *testing.T) {
	h := newHarness(t, time.Unix(320, 0))
	eng, res := bootstrapSingleDelegate(t, h, 300)
	eng.SetForkBlockNum("pay_v2", 100)

	asset, found, err := h.view.AssetByID(res.CoreAssetID)
	if err != nil || !found {
		t.Fatalf("Should find the core asset: found=%v err=%v", found, err)
	}
	asset.CollectedFees = 14 * engine.BlocksPerDay * 1000
	if err := h.view.StoreAsset(asset); err != nil {
		t.Fatalf("Should be able to seed the core asset's fee pool: %s", err)
	}

	signAndPush(t, eng, 303)

	acc, found, err := eng.AccountByName("delegate-one")
	if err != nil || !found {
		t.Fatalf("Should find the delegate account: found=%v err=%v", found, err)
	}
	if acc.Delegate.PayBalance != engine.MaxDelegatePayPerBlock {
		t.Fatalf("got pay_balance %d, want the mint-only legacy amount %d", acc.Delegate.PayBalance, engine.MaxDelegatePayPerBlock)
	}

	core, found, err := eng.AssetBySymbol("CORE")
	if err != nil || !found {
		t.Fatalf("Should find the core asset by symbol: found=%v err=%v", found, err)
	}
	if core.CollectedFees != 14*engine.BlocksPerDay*1000 {
		t.Fatalf("got collected_fees %d, want the fee pool untouched by the legacy pay rule", core.CollectedFees)
	}
}

func Test_SubscribeDeliversBlockAppliedNotification(t *testing.T) {
	h := newHarness(t, time.Unix(310, 0))
	eng, _ := bootstrapSingleDelegate(t, h, 300)

	obs := &recordingObserver{done: make(chan struct{})}
	eng.Subscribe(obs)

	signAndPush(t, eng, 303)

	select {
	case <-obs.done:
	case <-time.After(time.Second):
		t.Fatalf("Should deliver a block_applied notification within a second")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.summary.BlockNum != 1 {
		t.Fatalf("got block_num %d, want 1", obs.summary.BlockNum)
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	summary engine.BlockSummary
	once    sync.Once
	done    chan struct{}
}

func (o *recordingObserver) BlockApplied(summary engine.BlockSummary) {
	o.mu.Lock()
	o.summary = summary
	o.mu.Unlock()
	o.once.Do(func() { close(o.done) })
}

func (o *recordingObserver) StateChanged(undo *overlay.State) {}

func Test_CalculateSupplyReflectsInitialBalance(t *testing.T) {
	h := newHarness(t, time.Unix(310, 0))
	desc := genesis.Description{
		Timestamp: 300,
		Delegates: []genesis.DelegateSeed{{Name: "delegate-one", OwnerKey: delegateAddress(t)}},
		InitialBalances: []genesis.BalanceSeed{
			{Address: "0xAAA", Amount: 777},
		},
		MarketAssets: []genesis.MarketAssetSeed{
			{Symbol: "CORE", Name: "Core Asset", Precision: 4, MaxSupply: 1_000_000},
		},
	}
	eng, res, err := engine.Bootstrap(desc, h.view, h.forks, engine.Config{Tasks: h.tasks, Clock: h.clock})
	if err != nil {
		t.Fatalf("Should be able to bootstrap genesis: %s", err)
	}

	supply, err := eng.CalculateSupply(res.CoreAssetID)
	if err != nil {
		t.Fatalf("Should be able to calculate supply: %s", err)
	}
	if supply != 777 {
		t.Fatalf("got supply %d, want 777", supply)
	}
}

func Test_ReindexRebuildsEngineFromForkdb(t *testing.T) {
	h := newHarness(t, time.Unix(320, 0))
	eng, _ := bootstrapSingleDelegate(t, h, 300)
	signAndPush(t, eng, 303)
	signAndPush(t, eng, 306)
	wantHead := eng.Head()

	// Reindex replays headers and transactions over state that genesis
	// has already written; it does not rebootstrap accounts/assets, so
	// it must run against the same populated view, not an empty one.
	highest, found := h.forks.HighestBlockNum()
	if !found {
		t.Fatalf("Should find a highest block number to reindex to")
	}

	var seen []uint64
	rebuilt, err := engine.Reindex(h.view, h.forks, highest, engine.Config{Tasks: h.tasks, Clock: h.clock}, func(num uint64, total int) {
		seen = append(seen, num)
	})
	if err != nil {
		t.Fatalf("Should be able to reindex: %s", err)
	}
	if rebuilt.Head() != wantHead {
		t.Fatalf("got rebuilt head %s, want %s", rebuilt.Head(), wantHead)
	}
	if len(seen) != 3 {
		t.Fatalf("got %d progress callbacks, want 3", len(seen))
	}
}
