package btreetable

import (
	"encoding/binary"

	"github.com/cuemby/dirstore/internal/recman"
	"github.com/google/btree"
	bolt "go.etcd.io/bbolt"
)

// idItem adapts a uint64 id to google/btree's ordered-item contract; it is
// the in-memory working set a duplicate-key cell is rebuilt through while
// crossing the inline/nested-bucket threshold (spec §4.1).
type idItem uint64

func (a idItem) Less(than btree.Item) bool { return a < than.(idItem) }

const defaultDuplicateLimit = 512

// MultiTable is an ordered multimap K -> {uint64}, the duplicate-aware half
// of the B+tree table layer that backs each half of an Index (spec §4.1,
// §4.3). Below DuplicateLimit, a key's id set is stored as a sorted inline
// byte array; above it, the cell is promoted to a nested bucket so fan-out
// is unbounded. The switch happens inside a single bbolt write transaction,
// so it is atomic with respect to the containing leaf write.
type MultiTable[K any] struct {
	bucket         *recman.Bucket
	keys           KeyCodec[K]
	duplicateLimit int
}

// NewMulti wraps the named bucket as a MultiTable. duplicateLimit <= 0
// uses the default of 512.
func NewMulti[K any](m *recman.Manager, bucketName string, keys KeyCodec[K], duplicateLimit int) (*MultiTable[K], error) {
	b, err := m.Bucket([]byte(bucketName))
	if err != nil {
		return nil, err
	}
	if duplicateLimit <= 0 {
		duplicateLimit = defaultDuplicateLimit
	}
	return &MultiTable[K]{bucket: b, keys: keys, duplicateLimit: duplicateLimit}, nil
}

func idBytes(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func idFromBytes(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func decodeInline(raw []byte) *btree.BTree {
	t := btree.New(32)
	for i := 0; i+8 <= len(raw); i += 8 {
		t.ReplaceOrInsert(idItem(idFromBytes(raw[i : i+8])))
	}
	return t
}

func encodeInline(t *btree.BTree) []byte {
	out := make([]byte, 0, t.Len()*8)
	t.Ascend(func(item btree.Item) bool {
		out = append(out, idBytes(uint64(item.(idItem)))...)
		return true
	})
	return out
}

// Add inserts (key, id), creating the key's id set if absent. Idempotent
// for an already-present pair.
func (t *MultiTable[K]) Add(key K, id uint64) error {
	kb := t.keys.Encode(key)
	return t.bucket.Update(func(bkt *bolt.Bucket) error {
		if nested := bkt.Bucket(kb); nested != nil {
			return nested.Put(idBytes(id), nil)
		}
		working := decodeInline(bkt.Get(kb))
		working.ReplaceOrInsert(idItem(id))
		if working.Len() <= t.duplicateLimit {
			return bkt.Put(kb, encodeInline(working))
		}
		// promote: inline array -> nested bucket
		if err := bkt.Delete(kb); err != nil {
			return err
		}
		nested, err := bkt.CreateBucket(kb)
		if err != nil {
			return err
		}
		var putErr error
		working.Ascend(func(item btree.Item) bool {
			if putErr = nested.Put(idBytes(uint64(item.(idItem))), nil); putErr != nil {
				return false
			}
			return true
		})
		return putErr
	})
}

// Drop removes the single (key, id) pair, demoting a nested bucket back to
// an inline array if its cardinality falls to or below the threshold.
func (t *MultiTable[K]) Drop(key K, id uint64) error {
	kb := t.keys.Encode(key)
	return t.bucket.Update(func(bkt *bolt.Bucket) error {
		if nested := bkt.Bucket(kb); nested != nil {
			if err := nested.Delete(idBytes(id)); err != nil {
				return err
			}
			working := btree.New(32)
			c := nested.Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				working.ReplaceOrInsert(idItem(idFromBytes(k)))
			}
			if working.Len() == 0 {
				return bkt.DeleteBucket(kb)
			}
			if working.Len() <= t.duplicateLimit {
				if err := bkt.DeleteBucket(kb); err != nil {
					return err
				}
				return bkt.Put(kb, encodeInline(working))
			}
			return nil
		}
		working := decodeInline(bkt.Get(kb))
		working.Delete(idItem(id))
		if working.Len() == 0 {
			return bkt.Delete(kb)
		}
		return bkt.Put(kb, encodeInline(working))
	})
}

// DropKey removes every id under key.
func (t *MultiTable[K]) DropKey(key K) error {
	kb := t.keys.Encode(key)
	return t.bucket.Update(func(bkt *bolt.Bucket) error {
		if nested := bkt.Bucket(kb); nested != nil {
			return bkt.DeleteBucket(kb)
		}
		return bkt.Delete(kb)
	})
}

// Least returns the smallest id under key (spec §4.3's "forwardLookup
// returns one; for multimap, the least").
func (t *MultiTable[K]) Least(key K) (uint64, bool, error) {
	kb := t.keys.Encode(key)
	var id uint64
	found := false
	err := t.bucket.View(func(bkt *bolt.Bucket) error {
		if nested := bkt.Bucket(kb); nested != nil {
			c := nested.Cursor()
			k, _ := c.First()
			if k != nil {
				id = idFromBytes(k)
				found = true
			}
			return nil
		}
		raw := bkt.Get(kb)
		if len(raw) >= 8 {
			id = idFromBytes(raw[:8])
			found = true
		}
		return nil
	})
	return id, found, err
}

// List returns every id under key, ascending.
func (t *MultiTable[K]) List(key K) ([]uint64, error) {
	kb := t.keys.Encode(key)
	var out []uint64
	err := t.bucket.View(func(bkt *bolt.Bucket) error {
		if nested := bkt.Bucket(kb); nested != nil {
			c := nested.Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				out = append(out, idFromBytes(k))
			}
			return nil
		}
		raw := bkt.Get(kb)
		for i := 0; i+8 <= len(raw); i += 8 {
			out = append(out, idFromBytes(raw[i:i+8]))
		}
		return nil
	})
	return out, err
}

// Contains reports whether (key, id) is present.
func (t *MultiTable[K]) Contains(key K, id uint64) (bool, error) {
	kb := t.keys.Encode(key)
	found := false
	err := t.bucket.View(func(bkt *bolt.Bucket) error {
		if nested := bkt.Bucket(kb); nested != nil {
			found = nested.Get(idBytes(id)) != nil
			return nil
		}
		raw := bkt.Get(kb)
		for i := 0; i+8 <= len(raw); i += 8 {
			if idFromBytes(raw[i:i+8]) == id {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

// CountKey returns the number of ids stored under key.
func (t *MultiTable[K]) CountKey(key K) (int, error) {
	kb := t.keys.Encode(key)
	n := 0
	err := t.bucket.View(func(bkt *bolt.Bucket) error {
		if nested := bkt.Bucket(kb); nested != nil {
			return nested.ForEach(func(_, _ []byte) error {
				n++
				return nil
			})
		}
		raw := bkt.Get(kb)
		n = len(raw) / 8
		return nil
	})
	return n, err
}

// Count returns the number of distinct keys in the table.
func (t *MultiTable[K]) Count() (int, error) {
	return t.bucket.Count()
}

// Iter yields every (key, id) pair in ascending key order, stopping early
// if yield returns false. Built on Keys+List rather than a single cursor
// pass so promoted (nested-bucket) cells are walked the same way List
// already does.
func (t *MultiTable[K]) Iter(yield func(K, uint64) bool) {
	_ = t.Keys(func(k K) (bool, error) {
		ids, err := t.List(k)
		if err != nil {
			return false, err
		}
		for _, id := range ids {
			if !yield(k, id) {
				return false, nil
			}
		}
		return true, nil
	})
}

// Keys walks every distinct key in ascending order. fn returning false
// stops iteration early.
func (t *MultiTable[K]) Keys(fn func(K) (cont bool, err error)) error {
	return t.bucket.View(func(bkt *bolt.Bucket) error {
		c := bkt.Cursor()
		for kb, _ := c.First(); kb != nil; kb, _ = c.Next() {
			k, err := t.keys.Decode(kb)
			if err != nil {
				return err
			}
			cont, err := fn(k)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
}
