package kv

import "sort"

// bufferedWrites accumulates puts/deletes in memory while write-through is
// disabled. Used only during reindex (spec.md §6), never in steady state.
type bufferedWrites struct {
	values  map[string][]byte
	deleted map[string]bool
}

func newBufferedWrites() *bufferedWrites {
	return &bufferedWrites{
		values:  make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

func (b *bufferedWrites) put(key, value []byte) {
	k := string(key)
	delete(b.deleted, k)
	cp := append([]byte{}, value...)
	b.values[k] = cp
}

func (b *bufferedWrites) del(key []byte) {
	k := string(key)
	delete(b.values, k)
	b.deleted[k] = true
}

func (b *bufferedWrites) get(key []byte) (value []byte, deleted bool, found bool) {
	k := string(key)
	if b.deleted[k] {
		return nil, true, true
	}
	if v, ok := b.values[k]; ok {
		return v, false, true
	}
	return nil, false, false
}

// drain invokes fn for every buffered mutation in key order, then clears
// the buffer.
func (b *bufferedWrites) drain(fn func(key, value []byte, deleted bool)) {
	keys := make([]string, 0, len(b.values)+len(b.deleted))
	seen := make(map[string]bool)
	for k := range b.values {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range b.deleted {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if b.deleted[k] {
			fn([]byte(k), nil, true)
			continue
		}
		fn([]byte(k), b.values[k], false)
	}
	b.values = make(map[string][]byte)
	b.deleted = make(map[string]bool)
}

// bufferedIterator merges a base on-disk iterator with the in-memory
// buffer for the same prefix, preserving ascending key order.
type bufferedIterator struct {
	base   *levelIterator
	buf    *bufferedWrites
	prefix []byte

	merged [][2][]byte
	pos    int
	started bool
}

func (i *bufferedIterator) ensureMerged() {
	if i.started {
		return
	}
	i.started = true

	seen := make(map[string][]byte)
	order := []string{}
	for i.base.Next() {
		k := string(i.base.Key())
		if _, ok := seen[k]; !ok {
			order = append(order, k)
		}
		seen[k] = append([]byte{}, i.base.Value()...)
	}
	i.base.Release()

	for k, v := range i.buf.values {
		if len(k) < len(i.prefix) || k[:len(i.prefix)] != string(i.prefix) {
			continue
		}
		if _, ok := seen[k]; !ok {
			order = append(order, k)
		}
		seen[k] = v
	}
	for k := range i.buf.deleted {
		delete(seen, k)
	}

	sort.Strings(order)
	for _, k := range order {
		if v, ok := seen[k]; ok {
			i.merged = append(i.merged, [2][]byte{[]byte(k), v})
		}
	}
}

func (i *bufferedIterator) Next() bool {
	i.ensureMerged()
	if i.pos >= len(i.merged) {
		return false
	}
	i.pos++
	return true
}

func (i *bufferedIterator) Key() []byte   { return i.merged[i.pos-1][0] }
func (i *bufferedIterator) Value() []byte { return i.merged[i.pos-1][1] }
func (i *bufferedIterator) Release()      {}
