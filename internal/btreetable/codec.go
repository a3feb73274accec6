package btreetable

import (
	"encoding/binary"
	"fmt"
)

// KeyCodec encodes/decodes a table key to/from bytes whose lexicographic
// byte order matches the key's natural total order, so that a bbolt cursor
// walk (which is always byte-order) doubles as the B+tree table's ordered
// iteration (spec §4.1's "caller-supplied total-order comparator").
type KeyCodec[K any] interface {
	Encode(K) []byte
	Decode([]byte) (K, error)
}

// ValueCodec encodes/decodes an opaque table value.
type ValueCodec[V any] interface {
	Encode(V) []byte
	Decode([]byte) (V, error)
}

// Uint64Codec encodes keys as big-endian uint64, preserving numeric order
// under byte comparison. Used for internal entry ids (master table,
// hierarchy, alias scope indices).
type Uint64Codec struct{}

func (Uint64Codec) Encode(k uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, k)
	return b
}

func (Uint64Codec) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("btreetable: malformed uint64 key (%d bytes)", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// StringCodec encodes keys as raw UTF-8 bytes, preserving lexicographic
// order under byte comparison. Used for normalized/user DN strings,
// attribute OIDs, and indexed attribute values.
type StringCodec struct{}

func (StringCodec) Encode(k string) []byte  { return []byte(k) }
func (StringCodec) Decode(b []byte) (string, error) { return string(b), nil }

// BytesCodec is an identity ValueCodec for already-encoded blobs (e.g. an
// entry.Codec-encoded entry, stored verbatim by the master table).
type BytesCodec struct{}

func (BytesCodec) Encode(v []byte) []byte          { return v }
func (BytesCodec) Decode(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }
