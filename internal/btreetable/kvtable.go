package btreetable

import (
	"github.com/cuemby/dirstore/internal/recman"
	bolt "go.etcd.io/bbolt"
)

// KVTable is a single-valued ordered map K -> V over a record-manager
// bucket: the "B+tree table" of spec §4.1, specialized for 1:1 tables that
// need no duplicate-key handling (the master table's id->entry map). The
// ndn/updn indices are index.Index values, not KVTables.
type KVTable[K any, V any] struct {
	bucket *recman.Bucket
	keys   KeyCodec[K]
	values ValueCodec[V]
}

// New wraps the named bucket as a KVTable.
func New[K any, V any](m *recman.Manager, bucketName string, keys KeyCodec[K], values ValueCodec[V]) (*KVTable[K, V], error) {
	b, err := m.Bucket([]byte(bucketName))
	if err != nil {
		return nil, err
	}
	return &KVTable[K, V]{bucket: b, keys: keys, values: values}, nil
}

// Put is an upsert.
func (t *KVTable[K, V]) Put(k K, v V) error {
	return t.bucket.Put(t.keys.Encode(k), t.values.Encode(v))
}

// Get returns the value and whether k was present.
func (t *KVTable[K, V]) Get(k K) (V, bool, error) {
	var zero V
	raw, err := t.bucket.Get(t.keys.Encode(k))
	if err != nil {
		return zero, false, err
	}
	if raw == nil {
		return zero, false, nil
	}
	v, err := t.values.Decode(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Delete removes k, if present. Idempotent.
func (t *KVTable[K, V]) Delete(k K) error {
	return t.bucket.Delete(t.keys.Encode(k))
}

// Count returns the number of keys in the table.
func (t *KVTable[K, V]) Count() (int, error) {
	return t.bucket.Count()
}

// NextID allocates the next value from this table's persisted counter
// sidecar (spec §4.2's "persisted next id counter in the table's property
// sidecar"), via bbolt's own per-bucket sequence.
func (t *KVTable[K, V]) NextID() (uint64, error) {
	return t.bucket.NextSequence()
}

// PeekNextID reports the counter's current value without advancing it.
func (t *KVTable[K, V]) PeekNextID() (uint64, error) {
	return t.bucket.Sequence()
}

// ForEach walks all (key, value) pairs in ascending key order. fn returning
// false stops iteration early.
func (t *KVTable[K, V]) ForEach(fn func(K, V) (cont bool, err error)) error {
	return t.bucket.View(func(bkt *bolt.Bucket) error {
		c := bkt.Cursor()
		for kb, vb := c.First(); kb != nil; kb, vb = c.Next() {
			k, err := t.keys.Decode(kb)
			if err != nil {
				return err
			}
			v, err := t.values.Decode(vb)
			if err != nil {
				return err
			}
			cont, err := fn(k, v)
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
