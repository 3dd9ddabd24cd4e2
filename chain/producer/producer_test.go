package producer_test

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/deltachain/core/chain/chainstate"
	"github.com/deltachain/core/chain/kv"
	"github.com/deltachain/core/chain/mempool"
	"github.com/deltachain/core/chain/model"
	"github.com/deltachain/core/chain/producer"
	"github.com/deltachain/core/chain/signature"
)

const pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

func newTestView(t *testing.T) *chainstate.View {
	t.Helper()
	dir := t.TempDir()
	db, err := kv.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("Should be able to open the database: %s", err)
	}
	t.Cleanup(func() { db.Close() })
	return chainstate.NewView(func(ns string) kv.Store { return kv.NewLevelStore(db, ns) })
}

func testAddress(t *testing.T) string {
	t.Helper()
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the test private key: %s", err)
	}
	return crypto.PubkeyToAddress(pk.PublicKey).String()
}

func signedTransfer(t *testing.T, nonce uint64, fee uint64, now int64) model.SignedTransaction {
	t.Helper()
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the test private key: %s", err)
	}
	tx := model.Transaction{
		Signer:     1,
		Nonce:      nonce,
		Expiration: now + 1000,
		RelayFee:   fee,
		Operations: []model.Operation{{Kind: model.OpTransfer, Transfer: &model.TransferOp{From: 1, To: 2, AssetID: 1, Amount: 1}}},
	}
	sig, err := signature.Sign(tx, pk)
	if err != nil {
		t.Fatalf("Should be able to sign the transaction: %s", err)
	}
	return model.SignedTransaction{Transaction: tx, Signature: sig}
}

func seedSigner(t *testing.T, v *chainstate.View) {
	t.Helper()
	if err := v.StoreAccount(model.Account{ID: 1, Name: "signer", Address: testAddress(t)}); err != nil {
		t.Fatalf("Should be able to seed the signer account: %s", err)
	}
	if err := v.StoreAccount(model.Account{ID: 2, Name: "receiver"}); err != nil {
		t.Fatalf("Should be able to seed the receiver account: %s", err)
	}
	if err := v.StoreBalance(model.Balance{
		ID: model.NewBalanceID(1, 1, model.ClaimSignature, 0), Owner: 1, AssetID: 1, Amount: 1000,
	}); err != nil {
		t.Fatalf("Should be able to seed the signer balance: %s", err)
	}
}

func Test_ProduceIncludesPendingTransaction(t *testing.T) {
	v := newTestView(t)
	seedSigner(t, v)

	pool := mempool.New(v, 1000)
	tx := signedTransfer(t, 1, 100, 1000)
	if err := pool.Store(tx, false); err != nil {
		t.Fatalf("Should be able to queue the transaction: %s", err)
	}

	block, err := producer.Produce(v, pool, 1, 1002, producer.Limits{})
	if err != nil {
		t.Fatalf("Should be able to produce a block: %s", err)
	}
	if len(block.Transactions) != 1 || block.TransactionIDs[0] != tx.ID() {
		t.Fatalf("got %d transactions, want the queued transfer included", len(block.Transactions))
	}
	if block.Header.BlockNum != 1 || block.Header.Timestamp != 1002 {
		t.Fatalf("got header %+v, want block_num 1 and timestamp 1002", block.Header)
	}
	if block.Header.TransactionDigest == "" {
		t.Fatalf("Should compute a non-empty transaction digest")
	}
}

func Test_ProduceSkipsBlacklistedTransactionWithoutAborting(t *testing.T) {
	v := newTestView(t)
	seedSigner(t, v)

	pool := mempool.New(v, 1000)
	good := signedTransfer(t, 1, 100, 1000)
	if err := pool.Store(good, false); err != nil {
		t.Fatalf("Should be able to queue the good transaction: %s", err)
	}

	// RelayFee below MinRelayFee would be rejected on Store; instead
	// exercise the blacklist path to force a mid-production skip without
	// aborting the block.
	limits := producer.Limits{TransactionBlacklist: map[string]bool{good.ID(): true}}
	block, err := producer.Produce(v, pool, 1, 1002, limits)
	if err != nil {
		t.Fatalf("Should be able to produce a block even with a blacklisted transaction: %s", err)
	}
	if len(block.Transactions) != 0 {
		t.Fatalf("got %d transactions, want the blacklisted transaction excluded", len(block.Transactions))
	}
}

func Test_ProduceRespectsMaxTransactionCount(t *testing.T) {
	v := newTestView(t)
	seedSigner(t, v)

	pool := mempool.New(v, 1000)
	for i := uint64(1); i <= 3; i++ {
		tx := signedTransfer(t, i, 100+i, 1000)
		if err := pool.Store(tx, false); err != nil {
			t.Fatalf("Should be able to queue transaction %d: %s", i, err)
		}
	}

	block, err := producer.Produce(v, pool, 1, 1002, producer.Limits{MaxTransactionCount: 1})
	if err != nil {
		t.Fatalf("Should be able to produce a block: %s", err)
	}
	if len(block.Transactions) != 1 {
		t.Fatalf("got %d transactions, want exactly 1 under the count limit", len(block.Transactions))
	}
}

func Test_ProduceOrdersIncludedTransactionsByFee(t *testing.T) {
	v := newTestView(t)
	seedSigner(t, v)

	pool := mempool.New(v, 1000)
	low := signedTransfer(t, 1, 100, 1000)
	high := signedTransfer(t, 2, 300, 1000)
	if err := pool.Store(low, false); err != nil {
		t.Fatalf("Should be able to queue the low-fee transaction: %s", err)
	}
	if err := pool.Store(high, false); err != nil {
		t.Fatalf("Should be able to queue the high-fee transaction: %s", err)
	}

	block, err := producer.Produce(v, pool, 1, 1002, producer.Limits{})
	if err != nil {
		t.Fatalf("Should be able to produce a block: %s", err)
	}
	if len(block.TransactionIDs) != 2 || block.TransactionIDs[0] != high.ID() {
		t.Fatalf("got %v, want the high-fee transaction first", block.TransactionIDs)
	}
}
