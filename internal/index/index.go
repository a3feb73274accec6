// Package index implements the generic two-table index (spec §4.3): a
// forward table (key -> {id}) and a reverse table (id -> {key}) that the
// coordinator keeps in lockstep. The same type backs every index in the
// engine - ndn, updn, hierarchy, presence, every user index, and the three
// alias indices - parameterized only by the key's wire encoding.
package index

import (
	"fmt"

	"github.com/cuemby/dirstore/internal/btreetable"
	"github.com/cuemby/dirstore/internal/recman"
	"github.com/cuemby/dirstore/pkg/metrics"
	lru "github.com/hashicorp/golang-lru"
)

// Index is a bidirectional key<->id multimap kept consistent as a unit:
// every Add/Drop touches both the forward and reverse table before
// returning, and a partial failure is reported to the caller as an
// inconsistency rather than silently left half-applied (spec §4.3's
// invariant).
type Index[K any] struct {
	name     string
	forward  *btreetable.MultiTable[K]
	reverse  *btreetable.ReverseTable[K]
	lookups  *lru.Cache // forwardLookup(key) -> least id, caches the common point-lookup path
}

// Open wraps two buckets (name+"_fwd", name+"_rev") as one Index. cacheSize
// <= 0 disables the forward-lookup cache.
func Open[K any](m *recman.Manager, name string, codec btreetable.KeyCodec[K], duplicateLimit, cacheSize int) (*Index[K], error) {
	fwd, err := btreetable.NewMulti[K](m, name+"_fwd", codec, duplicateLimit)
	if err != nil {
		return nil, fmt.Errorf("index %s: open forward table: %w", name, err)
	}
	rev, err := btreetable.NewReverse[K](m, name+"_rev", codec, duplicateLimit)
	if err != nil {
		return nil, fmt.Errorf("index %s: open reverse table: %w", name, err)
	}
	var cache *lru.Cache
	if cacheSize > 0 {
		cache, err = lru.New(cacheSize)
		if err != nil {
			return nil, fmt.Errorf("index %s: init lookup cache: %w", name, err)
		}
	}
	return &Index[K]{name: name, forward: fwd, reverse: rev, lookups: cache}, nil
}

// Add inserts (key, id) into both tables. Idempotent for an already-present
// pair. If the reverse half fails after the forward half succeeded, the
// error is returned wrapped so the caller can latch the store inconsistent.
func (idx *Index[K]) Add(key K, id uint64) error {
	if err := idx.forward.Add(key, id); err != nil {
		return fmt.Errorf("index %s: add forward: %w", idx.name, err)
	}
	if err := idx.reverse.Add(id, key); err != nil {
		return fmt.Errorf("index %s: add reverse (forward already written, index now inconsistent): %w", idx.name, err)
	}
	idx.invalidate(key)
	return nil
}

// Drop removes the single (key, id) pair from both tables.
func (idx *Index[K]) Drop(key K, id uint64) error {
	if err := idx.forward.Drop(key, id); err != nil {
		return fmt.Errorf("index %s: drop forward: %w", idx.name, err)
	}
	if err := idx.reverse.Drop(id, key); err != nil {
		return fmt.Errorf("index %s: drop reverse (forward already dropped, index now inconsistent): %w", idx.name, err)
	}
	idx.invalidate(key)
	return nil
}

// DropID removes every pair involving id, walking the reverse table to
// discover which forward keys must also be cleared.
func (idx *Index[K]) DropID(id uint64) error {
	keys, err := idx.reverse.List(id)
	if err != nil {
		return fmt.Errorf("index %s: drop id %d: enumerate reverse: %w", idx.name, id, err)
	}
	for _, k := range keys {
		if err := idx.forward.Drop(k, id); err != nil {
			return fmt.Errorf("index %s: drop id %d: drop forward %v: %w", idx.name, id, k, err)
		}
		idx.invalidate(k)
	}
	if err := idx.reverse.DropID(id); err != nil {
		return fmt.Errorf("index %s: drop id %d: drop reverse (forward already dropped, index now inconsistent): %w", idx.name, id, err)
	}
	return nil
}

// ForwardLookup returns the least id recorded under key.
func (idx *Index[K]) ForwardLookup(key K) (uint64, bool, error) {
	if idx.lookups != nil {
		if v, ok := idx.lookups.Get(fmt.Sprint(key)); ok {
			metrics.CacheHitsTotal.WithLabelValues(idx.name).Inc()
			cached := v.(cachedLookup)
			return cached.id, cached.ok, nil
		}
		metrics.CacheMissesTotal.WithLabelValues(idx.name).Inc()
	}
	id, ok, err := idx.forward.Least(key)
	if err != nil {
		return 0, false, fmt.Errorf("index %s: forward lookup: %w", idx.name, err)
	}
	if idx.lookups != nil {
		idx.lookups.Add(fmt.Sprint(key), cachedLookup{id: id, ok: ok})
	}
	return id, ok, nil
}

// ReverseLookup returns the least key recorded under id, i.e. "what key is
// id filed under in this index" (used both for alias chain detection and
// for the 1:1 naming indices, where it is the only key there is).
func (idx *Index[K]) ReverseLookup(id uint64) (K, bool, error) {
	var zero K
	keys, err := idx.reverse.List(id)
	if err != nil {
		return zero, false, fmt.Errorf("index %s: reverse lookup: %w", idx.name, err)
	}
	if len(keys) == 0 {
		return zero, false, nil
	}
	return keys[0], true, nil
}

// HasValue reports whether (key, id) is present.
func (idx *Index[K]) HasValue(key K, id uint64) (bool, error) {
	ok, err := idx.forward.Contains(key, id)
	if err != nil {
		return false, fmt.Errorf("index %s: has value: %w", idx.name, err)
	}
	return ok, nil
}

// Count returns the number of distinct keys in the forward table.
func (idx *Index[K]) Count() (int, error) {
	n, err := idx.forward.Count()
	if err != nil {
		return 0, fmt.Errorf("index %s: count: %w", idx.name, err)
	}
	return n, nil
}

// CountKey returns the number of ids recorded under key.
func (idx *Index[K]) CountKey(key K) (int, error) {
	n, err := idx.forward.CountKey(key)
	if err != nil {
		return 0, fmt.Errorf("index %s: count key: %w", idx.name, err)
	}
	return n, nil
}

// ListIndices returns every id recorded under key, ascending.
func (idx *Index[K]) ListIndices(key K) ([]uint64, error) {
	ids, err := idx.forward.List(key)
	if err != nil {
		return nil, fmt.Errorf("index %s: list indices: %w", idx.name, err)
	}
	return ids, nil
}

// ListReverseIndices returns every key recorded under id.
func (idx *Index[K]) ListReverseIndices(id uint64) ([]K, error) {
	keys, err := idx.reverse.List(id)
	if err != nil {
		return nil, fmt.Errorf("index %s: list reverse indices: %w", idx.name, err)
	}
	return keys, nil
}

// Iter yields every (key, id) pair in the forward table in key order,
// stopping early if yield returns false. Preferred over ListIndices for
// large scans the caller may want to cancel mid-walk.
func (idx *Index[K]) Iter(yield func(K, uint64) bool) {
	idx.forward.Iter(yield)
}

// IterReverse yields every (id, key) pair in the reverse table in id order,
// stopping early if yield returns false.
func (idx *Index[K]) IterReverse(yield func(uint64, K) bool) {
	idx.reverse.Iter(yield)
}

func (idx *Index[K]) invalidate(key K) {
	if idx.lookups != nil {
		idx.lookups.Remove(fmt.Sprint(key))
	}
}

type cachedLookup struct {
	id uint64
	ok bool
}
