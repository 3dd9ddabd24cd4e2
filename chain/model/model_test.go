package model_test

import (
	"testing"

	"github.com/deltachain/core/chain/model"
)

func Test_HashHeaderExcludesSignature(t *testing.T) {
	h := model.BlockHeader{
		PreviousID: model.ZeroBlockID,
		BlockNum:   1,
		Timestamp:  3,
	}

	id1 := model.HashHeader(h)
	h.SigneeSignature = "0xdeadbeef"
	id2 := model.HashHeader(h)

	if id1 != id2 {
		t.Fatalf("signature must not affect the block id: got %s and %s", id1, id2)
	}
}

func Test_HashHeaderChangesWithContent(t *testing.T) {
	h1 := model.BlockHeader{PreviousID: model.ZeroBlockID, BlockNum: 1, Timestamp: 3}
	h2 := model.BlockHeader{PreviousID: model.ZeroBlockID, BlockNum: 2, Timestamp: 3}

	if model.HashHeader(h1) == model.HashHeader(h2) {
		t.Fatalf("different headers should not collide")
	}
}

func Test_BlockIDIsZero(t *testing.T) {
	if !model.ZeroBlockID.IsZero() {
		t.Fatalf("ZeroBlockID should report IsZero")
	}
	if model.BlockID("0xabc").IsZero() {
		t.Fatalf("a non-zero id should not report IsZero")
	}
}

func Test_BlockValidateSequence(t *testing.T) {
	genesis := model.Block{Header: model.BlockHeader{PreviousID: model.ZeroBlockID, BlockNum: 0}}
	if err := genesis.ValidateSequence(0); err != nil {
		t.Fatalf("genesis should always validate: %s", err)
	}

	next := model.Block{Header: model.BlockHeader{BlockNum: 5}}
	if err := next.ValidateSequence(4); err != nil {
		t.Fatalf("sequential block should validate: %s", err)
	}
	if err := next.ValidateSequence(10); err == nil {
		t.Fatalf("non-sequential block should fail validation")
	}
}

func Test_BlockValidateSlotAlignment(t *testing.T) {
	aligned := model.Block{Header: model.BlockHeader{Timestamp: model.SlotIntervalSeconds * 4}}
	if err := aligned.ValidateSlotAlignment(); err != nil {
		t.Fatalf("aligned timestamp should validate: %s", err)
	}

	unaligned := model.Block{Header: model.BlockHeader{Timestamp: model.SlotIntervalSeconds*4 + 1}}
	if err := unaligned.ValidateSlotAlignment(); err == nil {
		t.Fatalf("unaligned timestamp should fail validation")
	}
}

func Test_SignedTransactionIDStable(t *testing.T) {
	tx := model.SignedTransaction{
		Transaction: model.Transaction{ChainID: 1, Signer: 7, Nonce: 1, Expiration: 100},
		Signature:   "0xsig",
	}

	id1 := tx.ID()
	id2 := tx.ID()
	if id1 != id2 {
		t.Fatalf("ID should be stable across calls: got %s and %s", id1, id2)
	}

	tx.Nonce = 2
	if tx.ID() == id1 {
		t.Fatalf("changing the transaction body should change its id")
	}
}

func Test_ForkNodeCloneIsIndependent(t *testing.T) {
	n := model.ForkNode{
		BlockID:    "0x1",
		NextBlocks: map[model.BlockID]bool{"0x2": true},
	}
	clone := n.Clone()
	clone.NextBlocks["0x3"] = true

	if len(n.NextBlocks) != 1 {
		t.Fatalf("mutating the clone's NextBlocks must not affect the original")
	}
}
