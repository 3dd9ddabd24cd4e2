package kv_test

import (
	"path/filepath"
	"testing"

	"github.com/deltachain/core/chain/kv"
)

func openTestDB(t *testing.T) *kv.LevelStore {
	t.Helper()
	dir := t.TempDir()
	db, err := kv.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("Should be able to open the database: %s", err)
	}
	t.Cleanup(func() { db.Close() })
	return kv.NewLevelStore(db, "accounts")
}

func Test_PutGetDelete(t *testing.T) {
	s := openTestDB(t)

	if err := s.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Should be able to put a key: %s", err)
	}

	v, err := s.Get([]byte("a"))
	if err != nil {
		t.Fatalf("Should be able to get a key: %s", err)
	}
	if string(v) != "1" {
		t.Fatalf("got %q, want %q", v, "1")
	}

	if err := s.Delete([]byte("a")); err != nil {
		t.Fatalf("Should be able to delete a key: %s", err)
	}
	if _, err := s.Get([]byte("a")); err != kv.ErrNotFound {
		t.Fatalf("Should return ErrNotFound after delete: got %v", err)
	}
}

func Test_NamespacesDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	db, err := kv.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("Should be able to open the database: %s", err)
	}
	t.Cleanup(func() { db.Close() })

	a := kv.NewLevelStore(db, "accounts")
	b := kv.NewLevelStore(db, "assets")

	if err := a.Put([]byte("x"), []byte("from-a")); err != nil {
		t.Fatalf("Should be able to put: %s", err)
	}
	if _, err := b.Get([]byte("x")); err != kv.ErrNotFound {
		t.Fatalf("a different namespace should not see another namespace's key")
	}
}

func Test_IteratorReturnsPrefixInAscendingOrder(t *testing.T) {
	s := openTestDB(t)

	for _, k := range []string{"b", "a", "c"} {
		if err := s.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Should be able to put %q: %s", k, err)
		}
	}

	it := s.Iterator(nil)
	defer it.Release()

	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func Test_WriteThroughBufferingAndFlush(t *testing.T) {
	s := openTestDB(t)

	s.SetWriteThrough(false)
	if err := s.Put([]byte("buffered"), []byte("1")); err != nil {
		t.Fatalf("Should be able to put while buffering: %s", err)
	}

	// The value is visible through this store immediately even though it
	// has not hit disk yet.
	v, err := s.Get([]byte("buffered"))
	if err != nil || string(v) != "1" {
		t.Fatalf("Should see a buffered write through the same store: got %q, %v", v, err)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("Should be able to flush: %s", err)
	}

	s.SetWriteThrough(true)
	v, err = s.Get([]byte("buffered"))
	if err != nil || string(v) != "1" {
		t.Fatalf("Should still see the value after re-enabling write-through: got %q, %v", v, err)
	}
}
