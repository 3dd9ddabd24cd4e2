package chainstate_test

import (
	"path/filepath"
	"testing"

	"github.com/deltachain/core/chain/chainstate"
	"github.com/deltachain/core/chain/kv"
	"github.com/deltachain/core/chain/model"
)

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

func Test_AccountSecondaryIndexes(t *testing.T) {
	v := newTestView(t)

	acc := model.Account{ID: 1, Name: "alice", Address: "0xAAA"}
	if err := v.StoreAccount(acc); err != nil {
		t.Fatalf("Should be able to store an account: %s", err)
	}

	byName, found, err := v.AccountByName("alice")
	if err != nil || !found || byName.ID != 1 {
		t.Fatalf("Should find the account by name: found=%v err=%v", found, err)
	}
	byAddr, found, err := v.AccountByAddress("0xAAA")
	if err != nil || !found || byAddr.ID != 1 {
		t.Fatalf("Should find the account by address: found=%v err=%v", found, err)
	}
}

func Test_StoreAccountCleansUpStaleSecondaryIndex(t *testing.T) {
	v := newTestView(t)

	if err := v.StoreAccount(model.Account{ID: 1, Name: "alice", Address: "0xAAA"}); err != nil {
		t.Fatalf("Should be able to store an account: %s", err)
	}
	if err := v.StoreAccount(model.Account{ID: 1, Name: "alicia", Address: "0xBBB"}); err != nil {
		t.Fatalf("Should be able to rename an account: %s", err)
	}

	if _, found, _ := v.AccountByName("alice"); found {
		t.Fatalf("Should not find the account under its stale name")
	}
	if _, found, _ := v.AccountByAddress("0xAAA"); found {
		t.Fatalf("Should not find the account under its stale address")
	}
	byName, found, err := v.AccountByName("alicia")
	if err != nil || !found || byName.ID != 1 {
		t.Fatalf("Should find the account under its new name: found=%v err=%v", found, err)
	}
}

func Test_BalanceMovesBetweenDenseAndEmptyIndex(t *testing.T) {
	v := newTestView(t)

	id := model.NewBalanceID(1, 2, model.ClaimSignature, 0)
	bal := model.Balance{ID: id, Owner: 1, AssetID: 2, Amount: 100}
	if err := v.StoreBalance(bal); err != nil {
		t.Fatalf("Should be able to store a balance: %s", err)
	}

	got, found, err := v.BalanceByID(id)
	if err != nil || !found || got.Amount != 100 {
		t.Fatalf("Should find the stored balance: found=%v err=%v amount=%d", found, err, got.Amount)
	}

	bal.Amount = 0
	if err := v.StoreBalance(bal); err != nil {
		t.Fatalf("Should be able to zero out a balance: %s", err)
	}

	got, found, err = v.BalanceByID(id)
	if err != nil || !found || got.Amount != 0 {
		t.Fatalf("Should still find the zeroed balance: found=%v err=%v", found, err)
	}
}

func Test_BalancesByOwner(t *testing.T) {
	v := newTestView(t)

	for _, assetID := range []model.AssetID{1, 2, 3} {
		id := model.NewBalanceID(1, assetID, model.ClaimSignature, 0)
		if err := v.StoreBalance(model.Balance{ID: id, Owner: 1, AssetID: assetID, Amount: 10}); err != nil {
			t.Fatalf("Should be able to store a balance: %s", err)
		}
	}
	if err := v.StoreBalance(model.Balance{
		ID: model.NewBalanceID(2, 1, model.ClaimSignature, 0), Owner: 2, AssetID: 1, Amount: 10,
	}); err != nil {
		t.Fatalf("Should be able to store a balance for a different owner: %s", err)
	}

	var count int
	if err := v.BalancesByOwner(1, func(model.Balance) bool { count++; return true }); err != nil {
		t.Fatalf("Should be able to iterate balances by owner: %s", err)
	}
	if count != 3 {
		t.Fatalf("got %d balances, want 3", count)
	}
}

func Test_OrdersForPairAndRemove(t *testing.T) {
	v := newTestView(t)

	o := model.Order{Owner: 1, QuoteAsset: 1, BaseAsset: 2, Kind: model.OrderAbsoluteBid, Price: model.Price{Quote: 1, Base: 1}}
	if err := v.StoreOrder(o); err != nil {
		t.Fatalf("Should be able to store an order: %s", err)
	}

	var count int
	if err := v.OrdersForPair(1, 2, func(model.Order) bool { count++; return true }); err != nil {
		t.Fatalf("Should be able to iterate orders for a pair: %s", err)
	}
	if count != 1 {
		t.Fatalf("got %d orders, want 1", count)
	}

	if err := v.RemoveOrder(o); err != nil {
		t.Fatalf("Should be able to remove an order: %s", err)
	}
	count = 0
	if err := v.OrdersForPair(1, 2, func(model.Order) bool { count++; return true }); err != nil {
		t.Fatalf("Should be able to iterate orders after removal: %s", err)
	}
	if count != 0 {
		t.Fatalf("got %d orders after removal, want 0", count)
	}
}

func Test_PropertyJSONRoundTrip(t *testing.T) {
	v := newTestView(t)

	type payload struct{ N int }
	if err := v.StorePropertyJSON(model.PropertyKey("k"), payload{N: 7}); err != nil {
		t.Fatalf("Should be able to store property JSON: %s", err)
	}

	var out payload
	found, err := v.PropertyJSON(model.PropertyKey("k"), &out)
	if err != nil || !found || out.N != 7 {
		t.Fatalf("Should round-trip property JSON: found=%v err=%v out=%+v", found, err, out)
	}
}
