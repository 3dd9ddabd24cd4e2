// Package forkdb is the fork tree (spec.md §4.5): placeholder-aware
// block-id-keyed nodes, store_and_index, and cascading validity
// propagation down next_blocks.
package forkdb

import (
	"github.com/deltachain/core/chain/kv"
	"github.com/deltachain/core/chain/model"
)

const nsForkNodes = "fork_nodes"
const nsBlocksAtNum = "blocks_at_num"
const nsBlockBodies = "block_bodies"

// DB is the fork tree plus the raw block-body store it indexes.
type DB struct {
	nodes  kv.Store
	byNum  kv.Store
	bodies kv.Store
}

// Open wraps three namespaced stores the caller already constructed
// (usually via the same factory chainstate.NewView uses).
func Open(open func(namespace string) kv.Store) *DB {
	return &DB{
		nodes:  open(nsForkNodes),
		byNum:  open(nsBlocksAtNum),
		bodies: open(nsBlockBodies),
	}
}

func get(s kv.Store, key []byte, out any) (bool, error) {
	raw, err := s.Get(key)
	if err != nil {
		if err == kv.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, unmarshal(raw, out)
}

// Node returns the fork node for id, if known (even as a placeholder).
func (db *DB) Node(id model.BlockID) (model.ForkNode, bool, error) {
	var n model.ForkNode
	found, err := get(db.nodes, []byte(id), &n)
	return n, found, err
}

func (db *DB) putNode(n model.ForkNode) error {
	return marshalPut(db.nodes, []byte(n.BlockID), n)
}

// Block returns a previously stored block body.
func (db *DB) Block(id model.BlockID) (model.Block, bool, error) {
	var b model.Block
	found, err := get(db.bodies, []byte(id), &b)
	return b, found, err
}

// BlocksAtNum returns every block id known at a given height (used when
// numbering is ambiguous across competing forks).
func (db *DB) BlocksAtNum(n uint64) ([]model.BlockID, error) {
	var ids []model.BlockID
	if _, err := get(db.byNum, numKey(n), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (db *DB) addBlockAtNum(n uint64, id model.BlockID) error {
	ids, err := db.BlocksAtNum(n)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	return marshalPut(db.byNum, numKey(n), ids)
}

// StoreAndIndex implements spec.md §4.5: persists B, links it to its
// parent's fork node, upgrades any placeholder, and propagates
// linkedness and invalidity down the tree. It returns the id of the
// longest linkable tip reachable from B, or B.id itself if B did not
// become linked.
func (db *DB) StoreAndIndex(b model.Block) (model.BlockID, error) {
	id := b.ID()
	if existing, found, err := db.Node(id); err != nil {
		return "", err
	} else if found && existing.IsKnown {
		return "", model.ErrBlockAlreadyKnown
	}

	if err := marshalPut(db.bodies, []byte(id), b); err != nil {
		return "", err
	}
	if err := db.addBlockAtNum(b.Header.BlockNum, id); err != nil {
		return "", err
	}

	parent, found, err := db.Node(b.Header.PreviousID)
	if err != nil {
		return "", err
	}
	if !found {
		parent = model.ForkNode{
			BlockID:    b.Header.PreviousID,
			BlockNum:   b.Header.BlockNum - 1,
			IsKnown:    false,
			IsLinked:   b.IsGenesis(),
			NextBlocks: map[model.BlockID]bool{},
		}
	}
	parent.NextBlocks[id] = true
	if err := db.putNode(parent); err != nil {
		return "", err
	}

	node, found, err := db.Node(id)
	if err != nil {
		return "", err
	}
	if !found {
		node = model.ForkNode{BlockID: id, NextBlocks: map[model.BlockID]bool{}}
	}
	node.IsKnown = true
	node.PreviousID = b.Header.PreviousID
	node.BlockNum = b.Header.BlockNum
	node.IsLinked = b.IsGenesis() || parent.IsLinked
	if err := db.putNode(node); err != nil {
		return "", err
	}

	if parent.IsValid == model.ValidFalse {
		if err := db.markInvalidCascade(id, parent.InvalidReason); err != nil {
			return "", err
		}
		return id, nil
	}

	if !node.IsLinked {
		return id, nil
	}
	return db.propagateLinked(id)
}

// propagateLinked marks every transitively reachable, previously-unlinked
// descendant of id as linked, BFS over next_blocks, and returns the
// deepest block number's id it reached.
func (db *DB) propagateLinked(id model.BlockID) (model.BlockID, error) {
	deepest := id
	var deepestNum uint64
	queue := []model.BlockID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node, found, err := db.Node(cur)
		if err != nil {
			return "", err
		}
		if !found {
			continue
		}
		node.IsLinked = true
		if err := db.putNode(node); err != nil {
			return "", err
		}
		if node.BlockNum >= deepestNum {
			deepest = cur
			deepestNum = node.BlockNum
		}
		for child := range node.NextBlocks {
			childNode, found, err := db.Node(child)
			if err != nil {
				return "", err
			}
			if found && childNode.IsKnown && !childNode.IsLinked {
				queue = append(queue, child)
			}
		}
	}
	return deepest, nil
}

// MarkInvalid records reason on id's fork node and cascades invalidity to
// every descendant, unless id is already marked invalid (first reason
// wins) or was previously marked valid (a programming error the caller
// must not attempt).
func (db *DB) MarkInvalid(id model.BlockID, reason string) error {
	node, found, err := db.Node(id)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrUnknownBlock
	}
	if node.IsValid == model.ValidFalse {
		return nil
	}
	if node.IsValid == model.ValidTrue {
		return model.ErrUnknownBlock
	}
	return db.markInvalidCascade(id, reason)
}

func (db *DB) markInvalidCascade(id model.BlockID, reason string) error {
	queue := []model.BlockID{id}
	first := true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node, found, err := db.Node(cur)
		if err != nil {
			return err
		}
		if !found || node.IsValid == model.ValidFalse {
			continue
		}
		node.IsValid = model.ValidFalse
		if first {
			node.InvalidReason = reason
			first = false
		} else if node.InvalidReason == "" {
			node.InvalidReason = "ancestor invalid: " + reason
		}
		node.IsIncluded = false
		if err := db.putNode(node); err != nil {
			return err
		}
		for child := range node.NextBlocks {
			queue = append(queue, child)
		}
	}
	return nil
}

// MarkValid records id as valid and included on the main chain.
func (db *DB) MarkValid(id model.BlockID, included bool) error {
	node, found, err := db.Node(id)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrUnknownBlock
	}
	node.IsValid = model.ValidTrue
	node.IsIncluded = included
	return db.putNode(node)
}

// SetIncluded flips whether id is on the main chain, used by the
// reorganiser when popping or extending.
func (db *DB) SetIncluded(id model.BlockID, included bool) error {
	node, found, err := db.Node(id)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrUnknownBlock
	}
	node.IsIncluded = included
	return db.putNode(node)
}

// HighestBlockNum returns the largest block number forkdb has any block
// indexed under, used on restart to decide how far Reindex has to replay.
func (db *DB) HighestBlockNum() (uint64, bool) {
	it := db.byNum.Iterator(nil)
	defer it.Release()
	var highest uint64
	found := false
	for it.Next() {
		key := it.Key()
		if len(key) != 8 {
			continue
		}
		n := uint64(0)
		for _, b := range key {
			n = n<<8 | uint64(b)
		}
		highest = n
		found = true
	}
	return highest, found
}

// IncludedTip scans down from the highest known block number for the
// node currently flagged as on the main chain, letting a restarted
// process resume engine.New at the right head instead of genesis.
func (db *DB) IncludedTip() (model.BlockID, bool, error) {
	highest, found := db.HighestBlockNum()
	if !found {
		return "", false, nil
	}
	for n := highest; ; n-- {
		ids, err := db.BlocksAtNum(n)
		if err != nil {
			return "", false, err
		}
		for _, id := range ids {
			node, found, err := db.Node(id)
			if err != nil {
				return "", false, err
			}
			if found && node.IsIncluded {
				return id, true, nil
			}
		}
		if n == 0 {
			break
		}
	}
	return "", false, nil
}

func numKey(n uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return b
}
