package entry

import "encoding/json"

// Codec is the entry serializer collaborator contract (spec §6): a
// bidirectional byte encoding of the entry map for the master table.
// Swapping it requires no change to internal/partition or internal/master,
// which only ever see the Codec interface.
type Codec interface {
	Encode(e *Entry) ([]byte, error)
	Decode(b []byte) (*Entry, error)
}

// wireEntry is the JSON-friendly projection of Entry: attribute order is
// preserved as a slice rather than relying on map iteration order.
type wireEntry struct {
	Attributes []wireAttribute `json:"attributes"`
}

type wireAttribute struct {
	ID     string   `json:"id"`
	Values []string `json:"values"`
}

// JSONCodec is the default Codec: it JSON-serializes entries into the
// master bucket.
type JSONCodec struct{}

func (JSONCodec) Encode(e *Entry) ([]byte, error) {
	w := wireEntry{Attributes: make([]wireAttribute, 0, len(e.order))}
	for _, id := range e.order {
		a := e.attrs[id]
		w.Attributes = append(w.Attributes, wireAttribute{ID: a.ID, Values: a.Values})
	}
	return json.Marshal(w)
}

func (JSONCodec) Decode(b []byte) (*Entry, error) {
	var w wireEntry
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	e := New()
	for _, a := range w.Attributes {
		e.Add(a.ID, a.Values...)
	}
	return e, nil
}
