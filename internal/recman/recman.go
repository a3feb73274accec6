// Package recman implements the record manager: a page-level, persistent
// key-to-byte-blob store with an LRU read cache and an explicit commit,
// built on bbolt. It is the substrate internal/btreetable builds its
// ordered, duplicate-aware tables on top of (spec §4.1).
//
// Transactions are not exposed to callers above this layer: each Get/Put/
// Delete is its own bbolt transaction, and durability is obtained either by
// committing after every mutation (sync-on-write) or by an explicit Sync.
package recman

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	bolt "go.etcd.io/bbolt"
)

// Manager owns one bbolt database file and the read cache in front of it.
type Manager struct {
	db         *bolt.DB
	cache      *lru.Cache
	syncOnWrite bool
}

// Open creates or opens the database file at path. cacheSize bounds the
// number of recently-used blobs kept resident (spec §4.1's "cache in front
// of it keeps the most-recently-used pages resident up to a configured
// count"); syncOnWrite, when true, fsyncs after every mutating call.
func Open(path string, cacheSize int, syncOnWrite bool) (*Manager, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("recman: open %s: %w", path, err)
	}
	if cacheSize <= 0 {
		cacheSize = 10000
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("recman: init cache: %w", err)
	}
	return &Manager{db: db, cache: cache, syncOnWrite: syncOnWrite}, nil
}

// Close flushes and closes the underlying database.
func (m *Manager) Close() error {
	return m.db.Close()
}

// Sync forces a durable commit of everything written so far. bbolt commits
// each Update transaction already; Sync additionally fsyncs the file,
// matching spec §4.1's "durability is obtained by explicit commit".
func (m *Manager) Sync() error {
	return m.db.Sync()
}

func cacheKey(bucket, key []byte) string {
	return string(bucket) + "\x00" + string(key)
}

// Bucket returns a handle scoped to a named bucket, creating it if it does
// not already exist.
func (m *Manager) Bucket(name []byte) (*Bucket, error) {
	err := m.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recman: create bucket %s: %w", name, err)
	}
	return &Bucket{m: m, name: name}, nil
}

// Bucket is a handle to one top-level bbolt bucket, caching reads and
// invalidating on write.
type Bucket struct {
	m    *Manager
	name []byte
}

// Get fetches the blob stored at key, or nil if absent. Served from the
// LRU cache when possible.
func (b *Bucket) Get(key []byte) ([]byte, error) {
	ck := cacheKey(b.name, key)
	if v, ok := b.m.cache.Get(ck); ok {
		if v == nil {
			return nil, nil
		}
		return v.([]byte), nil
	}
	var out []byte
	err := b.m.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(b.name)
		if bkt == nil {
			return nil
		}
		v := bkt.Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recman: get: %w", err)
	}
	b.m.cache.Add(ck, out)
	return out, nil
}

// Put inserts or overwrites the blob at key.
func (b *Bucket) Put(key, value []byte) error {
	err := b.m.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(b.name)
		if err != nil {
			return err
		}
		return bkt.Put(key, value)
	})
	if err != nil {
		return fmt.Errorf("recman: put: %w", err)
	}
	b.m.cache.Add(cacheKey(b.name, key), append([]byte(nil), value...))
	if b.m.syncOnWrite {
		return b.m.Sync()
	}
	return nil
}

// Delete removes key, if present. Idempotent.
func (b *Bucket) Delete(key []byte) error {
	err := b.m.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(b.name)
		if err != nil {
			return err
		}
		return bkt.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("recman: delete: %w", err)
	}
	b.m.cache.Remove(cacheKey(b.name, key))
	if b.m.syncOnWrite {
		return b.m.Sync()
	}
	return nil
}

// NextSequence returns bbolt's per-bucket monotonically increasing counter,
// used by internal/master to allocate entry ids (spec §4.2).
func (b *Bucket) NextSequence() (uint64, error) {
	var seq uint64
	err := b.m.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(b.name)
		if err != nil {
			return err
		}
		seq, err = bkt.NextSequence()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("recman: next sequence: %w", err)
	}
	return seq, nil
}

// Sequence returns the bucket's current sequence value without advancing
// it, used to report the live "next id" for diagnostics.
func (b *Bucket) Sequence() (uint64, error) {
	var seq uint64
	err := b.m.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(b.name)
		if bkt != nil {
			seq = bkt.Sequence()
		}
		return nil
	})
	return seq, err
}

// View runs fn against a read-only *bolt.Bucket, invalidating nothing
// since no write occurs. Used by internal/btreetable for cursor iteration
// and nested-bucket duplicate representations that need raw bbolt access.
func (b *Bucket) View(fn func(*bolt.Bucket) error) error {
	return b.m.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(b.name)
		if bkt == nil {
			return nil
		}
		return fn(bkt)
	})
}

// Update runs fn against a writable *bolt.Bucket and invalidates the whole
// cache for this bucket on return, since fn may have touched keys this
// Bucket handle doesn't know about individually (e.g. nested buckets).
func (b *Bucket) Update(fn func(*bolt.Bucket) error) error {
	err := b.m.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(b.name)
		if err != nil {
			return err
		}
		return fn(bkt)
	})
	if err != nil {
		return err
	}
	b.invalidateAll()
	if b.m.syncOnWrite {
		return b.m.Sync()
	}
	return nil
}

func (b *Bucket) invalidateAll() {
	prefix := string(b.name) + "\x00"
	for _, k := range b.m.cache.Keys() {
		if ks, ok := k.(string); ok && len(ks) >= len(prefix) && ks[:len(prefix)] == prefix {
			b.m.cache.Remove(k)
		}
	}
}

// CacheLen returns the number of blobs currently resident in the read
// cache, used to report dirstore_record_cache_size.
func (m *Manager) CacheLen() int {
	return m.cache.Len()
}

// Count returns the number of top-level keys in the bucket (bucket-valued
// keys, i.e. promoted duplicate cells, count as one).
func (b *Bucket) Count() (int, error) {
	n := 0
	err := b.View(func(bkt *bolt.Bucket) error {
		c := bkt.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		return nil
	})
	return n, err
}
