package overlay_test

import (
	"path/filepath"
	"testing"

	"github.com/deltachain/core/chain/chainstate"
	"github.com/deltachain/core/chain/kv"
	"github.com/deltachain/core/chain/model"
	"github.com/deltachain/core/chain/overlay"
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

func Test_ReadFallsThroughToParent(t *testing.T) {
	v := newTestView(t)
	if err := v.StoreAccount(model.Account{ID: 1, Name: "alice"}); err != nil {
		t.Fatalf("Should be able to seed the parent: %s", err)
	}

	o := overlay.New(v)
	acc, found, err := o.AccountByID(1)
	if err != nil || !found || acc.Name != "alice" {
		t.Fatalf("Should read through to the parent: found=%v err=%v acc=%+v", found, err, acc)
	}
}

func Test_LocalWriteShadowsParent(t *testing.T) {
	v := newTestView(t)
	if err := v.StoreAccount(model.Account{ID: 1, Name: "alice"}); err != nil {
		t.Fatalf("Should be able to seed the parent: %s", err)
	}

	o := overlay.New(v)
	if err := o.StoreAccount(model.Account{ID: 1, Name: "alicia"}); err != nil {
		t.Fatalf("Should be able to store on the overlay: %s", err)
	}

	acc, found, err := o.AccountByID(1)
	if err != nil || !found || acc.Name != "alicia" {
		t.Fatalf("Should see the overlay's own write: found=%v err=%v acc=%+v", found, err, acc)
	}

	parentAcc, _, _ := v.AccountByID(1)
	if parentAcc.Name != "alice" {
		t.Fatalf("Should not mutate the parent until ApplyChanges: got %q", parentAcc.Name)
	}
}

func Test_ApplyChangesMergesIntoParent(t *testing.T) {
	v := newTestView(t)
	o := overlay.New(v)
	if err := o.StoreAccount(model.Account{ID: 1, Name: "alice"}); err != nil {
		t.Fatalf("Should be able to store on the overlay: %s", err)
	}
	if err := o.ApplyChanges(); err != nil {
		t.Fatalf("Should be able to apply changes: %s", err)
	}

	acc, found, err := v.AccountByID(1)
	if err != nil || !found || acc.Name != "alice" {
		t.Fatalf("Should see the write on the parent after ApplyChanges: found=%v err=%v", found, err)
	}
}

func Test_NestedOverlaySeesParentOverlayWrite(t *testing.T) {
	v := newTestView(t)
	parent := overlay.New(v)
	if err := parent.StoreAccount(model.Account{ID: 1, Name: "alice"}); err != nil {
		t.Fatalf("Should be able to store on the parent overlay: %s", err)
	}

	child := overlay.New(parent)
	acc, found, err := child.AccountByID(1)
	if err != nil || !found || acc.Name != "alice" {
		t.Fatalf("Should read through a chain of overlays: found=%v err=%v", found, err)
	}
}

func Test_DirtyPairsTracksOrderWritesAndRemovals(t *testing.T) {
	v := newTestView(t)
	o := overlay.New(v)

	bid := model.Order{Kind: model.OrderAbsoluteBid, Owner: 1, QuoteAsset: 1, BaseAsset: 2}
	if err := o.StoreOrder(bid); err != nil {
		t.Fatalf("Should be able to store an order: %s", err)
	}

	pairs := o.DirtyPairs()
	if len(pairs) != 1 || pairs[0] != [2]model.AssetID{1, 2} {
		t.Fatalf("got %v, want exactly [[1 2]]", pairs)
	}
}

func Test_RemoveOrderHidesItFromReads(t *testing.T) {
	v := newTestView(t)
	ask := model.Order{Kind: model.OrderAbsoluteAsk, Owner: 1, QuoteAsset: 1, BaseAsset: 2}
	if err := v.StoreOrder(ask); err != nil {
		t.Fatalf("Should be able to seed the parent with an order: %s", err)
	}

	o := overlay.New(v)
	if err := o.RemoveOrder(ask); err != nil {
		t.Fatalf("Should be able to remove an order on the overlay: %s", err)
	}

	if _, found, _ := o.OrderByID(ask.ID()); found {
		t.Fatalf("Should not find a removed order through the overlay")
	}
	if _, found, _ := v.OrderByID(ask.ID()); !found {
		t.Fatalf("Removal should not affect the parent until ApplyChanges")
	}
}

func Test_LocalOrdersForPairReportsWrittenAndRemoved(t *testing.T) {
	v := newTestView(t)
	o := overlay.New(v)

	written := model.Order{Kind: model.OrderAbsoluteBid, Owner: 1, QuoteAsset: 1, BaseAsset: 2}
	removed := model.Order{Kind: model.OrderAbsoluteAsk, Owner: 2, QuoteAsset: 1, BaseAsset: 2}

	if err := o.StoreOrder(written); err != nil {
		t.Fatalf("Should be able to store an order: %s", err)
	}
	if err := o.RemoveOrder(removed); err != nil {
		t.Fatalf("Should be able to remove an order: %s", err)
	}

	gotWritten, gotRemoved := o.LocalOrdersForPair(1, 2)
	if len(gotWritten) != 1 || gotWritten[0].ID() != written.ID() {
		t.Fatalf("got written %v, want exactly [%s]", gotWritten, written.ID())
	}
	if !gotRemoved[removed.ID()] {
		t.Fatalf("Should report the removed order id")
	}
}

func Test_GetUndoStateRestoresPriorBalance(t *testing.T) {
	v := newTestView(t)
	id := model.NewBalanceID(1, 2, model.ClaimSignature, 0)
	if err := v.StoreBalance(model.Balance{ID: id, Owner: 1, AssetID: 2, Amount: 50}); err != nil {
		t.Fatalf("Should be able to seed a balance: %s", err)
	}

	o := overlay.New(v)
	if err := o.StoreBalance(model.Balance{ID: id, Owner: 1, AssetID: 2, Amount: 80}); err != nil {
		t.Fatalf("Should be able to credit a balance on the overlay: %s", err)
	}

	undo := overlay.New(v)
	if err := o.GetUndoState(undo); err != nil {
		t.Fatalf("Should be able to compute the undo state: %s", err)
	}
	if err := o.ApplyChanges(); err != nil {
		t.Fatalf("Should be able to apply the overlay: %s", err)
	}

	applied, _, _ := v.BalanceByID(id)
	if applied.Amount != 80 {
		t.Fatalf("got %d after apply, want 80", applied.Amount)
	}

	if err := undo.ApplyChanges(); err != nil {
		t.Fatalf("Should be able to apply the undo state: %s", err)
	}
	reverted, _, _ := v.BalanceByID(id)
	if reverted.Amount != 50 {
		t.Fatalf("got %d after undo, want 50", reverted.Amount)
	}
}

func Test_GetUndoStateRestoresRemovedOrder(t *testing.T) {
	v := newTestView(t)
	ask := model.Order{Kind: model.OrderAbsoluteAsk, Owner: 1, QuoteAsset: 1, BaseAsset: 2}
	if err := v.StoreOrder(ask); err != nil {
		t.Fatalf("Should be able to seed an order: %s", err)
	}

	o := overlay.New(v)
	if err := o.RemoveOrder(ask); err != nil {
		t.Fatalf("Should be able to remove the order on the overlay: %s", err)
	}

	undo := overlay.New(v)
	if err := o.GetUndoState(undo); err != nil {
		t.Fatalf("Should be able to compute the undo state: %s", err)
	}
	if err := o.ApplyChanges(); err != nil {
		t.Fatalf("Should be able to apply the removal: %s", err)
	}
	if _, found, _ := v.OrderByID(ask.ID()); found {
		t.Fatalf("Should not find the order after applying its removal")
	}

	if err := undo.ApplyChanges(); err != nil {
		t.Fatalf("Should be able to apply the undo state: %s", err)
	}
	if _, found, _ := v.OrderByID(ask.ID()); !found {
		t.Fatalf("Should find the order again after undo")
	}
}

func Test_GetUndoStateMarksNewOrderForRemoval(t *testing.T) {
	v := newTestView(t)
	o := overlay.New(v)
	fresh := model.Order{Kind: model.OrderAbsoluteBid, Owner: 1, QuoteAsset: 1, BaseAsset: 2}
	if err := o.StoreOrder(fresh); err != nil {
		t.Fatalf("Should be able to store a new order: %s", err)
	}

	undo := overlay.New(v)
	if err := o.GetUndoState(undo); err != nil {
		t.Fatalf("Should be able to compute the undo state: %s", err)
	}
	if err := o.ApplyChanges(); err != nil {
		t.Fatalf("Should be able to apply the new order: %s", err)
	}
	if err := undo.ApplyChanges(); err != nil {
		t.Fatalf("Should be able to apply the undo state: %s", err)
	}

	if _, found, _ := v.OrderByID(fresh.ID()); found {
		t.Fatalf("Undo of a freshly created order should remove it again")
	}
}
