// Package master implements the master table (spec §4.2): id -> serialized
// entry, with a persisted, monotonically increasing id counter. Entry 0 is
// reserved as the synthetic root parent marker and is never allocated by
// NextID.
package master

import (
	"fmt"

	"github.com/cuemby/dirstore/internal/btreetable"
	"github.com/cuemby/dirstore/internal/recman"
	"github.com/cuemby/dirstore/pkg/entry"
)

const bucketName = "master"

// Table wraps a single B+tree table id -> entry-blob.
type Table struct {
	kv    *btreetable.KVTable[uint64, []byte]
	codec entry.Codec
}

// Open opens (creating if absent) the master table backed by m.
func Open(m *recman.Manager, codec entry.Codec) (*Table, error) {
	kv, err := btreetable.New[uint64, []byte](m, bucketName, btreetable.Uint64Codec{}, btreetable.BytesCodec{})
	if err != nil {
		return nil, fmt.Errorf("master: open: %w", err)
	}
	return &Table{kv: kv, codec: codec}, nil
}

// NextID atomically allocates and returns the next entry id. Ids start at 1;
// 0 is reserved for the suffix's synthetic parent marker.
func (t *Table) NextID() (uint64, error) {
	id, err := t.kv.NextID()
	if err != nil {
		return 0, fmt.Errorf("master: allocate id: %w", err)
	}
	return id, nil
}

// Put upserts the entry under id.
func (t *Table) Put(id uint64, e *entry.Entry) error {
	blob, err := t.codec.Encode(e)
	if err != nil {
		return fmt.Errorf("master: encode entry %d: %w", id, err)
	}
	if err := t.kv.Put(id, blob); err != nil {
		return fmt.Errorf("master: put %d: %w", id, err)
	}
	return nil
}

// Get returns the entry for id, or ok=false if it does not exist.
func (t *Table) Get(id uint64) (*entry.Entry, bool, error) {
	blob, ok, err := t.kv.Get(id)
	if err != nil {
		return nil, false, fmt.Errorf("master: get %d: %w", id, err)
	}
	if !ok {
		return nil, false, nil
	}
	e, err := t.codec.Decode(blob)
	if err != nil {
		return nil, false, fmt.Errorf("master: decode entry %d: %w", id, err)
	}
	return e, true, nil
}

// Delete removes id. Idempotent.
func (t *Table) Delete(id uint64) error {
	if err := t.kv.Delete(id); err != nil {
		return fmt.Errorf("master: delete %d: %w", id, err)
	}
	return nil
}

// Count returns the number of live entries.
func (t *Table) Count() (int, error) {
	n, err := t.kv.Count()
	if err != nil {
		return 0, fmt.Errorf("master: count: %w", err)
	}
	return n, nil
}
