package btreetable

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/cuemby/dirstore/internal/recman"
	bolt "go.etcd.io/bbolt"
)

// ReverseTable is MultiTable's mirror: an ordered multimap uint64 -> {K},
// used for the reverse half of an index (spec §4.3's reverseLookup). Forward
// duplicate sets (one key, many ids) can grow unbounded, which is why
// MultiTable promotes through google/btree into a nested bucket; reverse
// sets are bounded by the number of indexed values a single entry carries
// (an entry's attribute count, or 1 for the 1:1 naming indices), so a plain
// sorted inline array with the same nested-bucket escape hatch is enough —
// no in-memory ordered scratch structure is needed to keep it sorted.
type ReverseTable[K any] struct {
	bucket         *recman.Bucket
	values         KeyCodec[K]
	duplicateLimit int
}

// NewReverse wraps the named bucket as a ReverseTable. duplicateLimit <= 0
// uses the same default as MultiTable.
func NewReverse[K any](m *recman.Manager, bucketName string, values KeyCodec[K], duplicateLimit int) (*ReverseTable[K], error) {
	b, err := m.Bucket([]byte(bucketName))
	if err != nil {
		return nil, err
	}
	if duplicateLimit <= 0 {
		duplicateLimit = defaultDuplicateLimit
	}
	return &ReverseTable[K]{bucket: b, values: values, duplicateLimit: duplicateLimit}, nil
}

func idKeyBytes(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func decodeInlineSet(raw []byte) [][]byte {
	var out [][]byte
	for i := 0; i+4 <= len(raw); {
		n := int(binary.BigEndian.Uint32(raw[i : i+4]))
		i += 4
		if i+n > len(raw) {
			break
		}
		out = append(out, raw[i:i+n])
		i += n
	}
	return out
}

func encodeInlineSet(items [][]byte) []byte {
	sort.Slice(items, func(i, j int) bool { return bytes.Compare(items[i], items[j]) < 0 })
	var out []byte
	for _, it := range items {
		var lb [4]byte
		binary.BigEndian.PutUint32(lb[:], uint32(len(it)))
		out = append(out, lb[:]...)
		out = append(out, it...)
	}
	return out
}

func containsBytes(items [][]byte, target []byte) bool {
	for _, it := range items {
		if bytes.Equal(it, target) {
			return true
		}
	}
	return false
}

func removeBytes(items [][]byte, target []byte) [][]byte {
	out := items[:0]
	for _, it := range items {
		if !bytes.Equal(it, target) {
			out = append(out, it)
		}
	}
	return out
}

// Add inserts (id, v), creating id's value set if absent. Idempotent.
func (t *ReverseTable[K]) Add(id uint64, v K) error {
	kb := idKeyBytes(id)
	vb := t.values.Encode(v)
	return t.bucket.Update(func(bkt *bolt.Bucket) error {
		if nested := bkt.Bucket(kb); nested != nil {
			return nested.Put(vb, nil)
		}
		items := decodeInlineSet(bkt.Get(kb))
		if containsBytes(items, vb) {
			return nil
		}
		items = append(items, vb)
		if len(items) <= t.duplicateLimit {
			return bkt.Put(kb, encodeInlineSet(items))
		}
		if err := bkt.Delete(kb); err != nil {
			return err
		}
		nested, err := bkt.CreateBucket(kb)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := nested.Put(it, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// Drop removes the single (id, v) pair, demoting a nested bucket back to an
// inline array if its cardinality falls to or below the threshold.
func (t *ReverseTable[K]) Drop(id uint64, v K) error {
	kb := idKeyBytes(id)
	vb := t.values.Encode(v)
	return t.bucket.Update(func(bkt *bolt.Bucket) error {
		if nested := bkt.Bucket(kb); nested != nil {
			if err := nested.Delete(vb); err != nil {
				return err
			}
			var items [][]byte
			c := nested.Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				items = append(items, append([]byte(nil), k...))
			}
			if len(items) == 0 {
				return bkt.DeleteBucket(kb)
			}
			if len(items) <= t.duplicateLimit {
				if err := bkt.DeleteBucket(kb); err != nil {
					return err
				}
				return bkt.Put(kb, encodeInlineSet(items))
			}
			return nil
		}
		items := removeBytes(decodeInlineSet(bkt.Get(kb)), vb)
		if len(items) == 0 {
			return bkt.Delete(kb)
		}
		return bkt.Put(kb, encodeInlineSet(items))
	})
}

// DropID removes every value recorded under id.
func (t *ReverseTable[K]) DropID(id uint64) error {
	kb := idKeyBytes(id)
	return t.bucket.Update(func(bkt *bolt.Bucket) error {
		if nested := bkt.Bucket(kb); nested != nil {
			return bkt.DeleteBucket(kb)
		}
		return bkt.Delete(kb)
	})
}

// List returns every value recorded under id, in sorted byte order.
func (t *ReverseTable[K]) List(id uint64) ([]K, error) {
	kb := idKeyBytes(id)
	var out []K
	err := t.bucket.View(func(bkt *bolt.Bucket) error {
		var raw [][]byte
		if nested := bkt.Bucket(kb); nested != nil {
			c := nested.Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				raw = append(raw, append([]byte(nil), k...))
			}
		} else {
			raw = decodeInlineSet(bkt.Get(kb))
		}
		for _, r := range raw {
			v, err := t.values.Decode(r)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// Contains reports whether (id, v) is present.
func (t *ReverseTable[K]) Contains(id uint64, v K) (bool, error) {
	kb := idKeyBytes(id)
	vb := t.values.Encode(v)
	found := false
	err := t.bucket.View(func(bkt *bolt.Bucket) error {
		if nested := bkt.Bucket(kb); nested != nil {
			found = nested.Get(vb) != nil
			return nil
		}
		found = containsBytes(decodeInlineSet(bkt.Get(kb)), vb)
		return nil
	})
	return found, err
}

// CountID returns the number of values recorded under id.
func (t *ReverseTable[K]) CountID(id uint64) (int, error) {
	kb := idKeyBytes(id)
	n := 0
	err := t.bucket.View(func(bkt *bolt.Bucket) error {
		if nested := bkt.Bucket(kb); nested != nil {
			return nested.ForEach(func(_, _ []byte) error {
				n++
				return nil
			})
		}
		n = len(decodeInlineSet(bkt.Get(kb)))
		return nil
	})
	return n, err
}

// Count returns the number of distinct ids with at least one recorded value.
func (t *ReverseTable[K]) Count() (int, error) {
	return t.bucket.Count()
}

// Ids walks every distinct id in ascending order. fn returning false stops
// iteration early.
func (t *ReverseTable[K]) Ids(fn func(uint64) (cont bool, err error)) error {
	return t.bucket.View(func(bkt *bolt.Bucket) error {
		c := bkt.Cursor()
		for kb, _ := c.First(); kb != nil; kb, _ = c.Next() {
			cont, err := fn(idFromBytes(kb))
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

// Iter yields every (id, value) pair in ascending id order, stopping early
// if yield returns false.
func (t *ReverseTable[K]) Iter(yield func(uint64, K) bool) {
	_ = t.Ids(func(id uint64) (bool, error) {
		values, err := t.List(id)
		if err != nil {
			return false, err
		}
		for _, v := range values {
			if !yield(id, v) {
				return false, nil
			}
		}
		return true, nil
	})
}
