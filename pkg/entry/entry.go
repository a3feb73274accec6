// Package entry implements the directory entry: an ordered mapping from
// attribute id to a non-empty multiset of values (spec §3). Attribute ids
// are stored as supplied by the caller; the coordinator resolves them to
// canonical OIDs via pkg/schema wherever an index key is derived from one.
package entry

import (
	"fmt"
	"sort"
	"strings"
)

// Attribute is one named, multi-valued attribute on an entry. Values
// preserve insertion order; order is not semantically significant (spec
// §8 property 6 compares attribute-value sets unordered) but is kept
// stable for deterministic serialization.
type Attribute struct {
	ID     string
	Values []string
}

// Entry is an ordered multiset of attributes. The zero value is an entry
// with no attributes; use New to start one.
type Entry struct {
	order []string // attribute ids in first-seen order
	attrs map[string]*Attribute
}

// New returns an empty entry.
func New() *Entry {
	return &Entry{attrs: make(map[string]*Attribute)}
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	c := New()
	for _, id := range e.order {
		a := e.attrs[id]
		vals := make([]string, len(a.Values))
		copy(vals, a.Values)
		c.order = append(c.order, id)
		c.attrs[id] = &Attribute{ID: a.ID, Values: vals}
	}
	return c
}

// Attributes returns attributes in insertion order.
func (e *Entry) Attributes() []*Attribute {
	out := make([]*Attribute, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.attrs[id])
	}
	return out
}

// Get returns the attribute by id (case-insensitive match on id string),
// or nil if the entry does not carry it.
func (e *Entry) Get(id string) *Attribute {
	return e.attrs[key(id)]
}

// Has reports whether the entry carries the attribute at all.
func (e *Entry) Has(id string) bool {
	_, ok := e.attrs[key(id)]
	return ok
}

// HasValue reports whether the entry carries id with exactly value.
func (e *Entry) HasValue(id, value string) bool {
	a := e.Get(id)
	if a == nil {
		return false
	}
	for _, v := range a.Values {
		if v == value {
			return true
		}
	}
	return false
}

// Add appends values to the attribute, creating it if absent.
func (e *Entry) Add(id string, values ...string) {
	k := key(id)
	a, ok := e.attrs[k]
	if !ok {
		a = &Attribute{ID: id}
		e.attrs[k] = a
		e.order = append(e.order, k)
	}
	a.Values = append(a.Values, values...)
}

// Remove deletes listed values from the attribute; if it becomes empty the
// attribute itself is removed. Removing with no values removes the whole
// attribute. Removing a value from a non-existent attribute is a no-op,
// matching the silent-proceed behavior spec §9 preserves for modify REMOVE.
func (e *Entry) Remove(id string, values ...string) {
	k := key(id)
	a, ok := e.attrs[k]
	if !ok {
		return
	}
	if len(values) == 0 {
		delete(e.attrs, k)
		e.removeOrder(k)
		return
	}
	remove := make(map[string]bool, len(values))
	for _, v := range values {
		remove[v] = true
	}
	kept := a.Values[:0]
	for _, v := range a.Values {
		if !remove[v] {
			kept = append(kept, v)
		}
	}
	a.Values = kept
	if len(a.Values) == 0 {
		delete(e.attrs, k)
		e.removeOrder(k)
	}
}

// RemoveAttribute deletes the whole attribute regardless of its values.
func (e *Entry) RemoveAttribute(id string) {
	e.Remove(id)
}

func (e *Entry) removeOrder(k string) {
	for i, id := range e.order {
		if id == k {
			e.order = append(e.order[:i], e.order[i+1:]...)
			return
		}
	}
}

func key(id string) string {
	return strings.ToLower(id)
}

const objectClassAttr = "objectclass"
const aliasObjectClass = "alias"
const aliasedObjectNameAttr = "aliasedobjectname"

// HasObjectClass reports whether the entry's objectClass attribute
// contains class, case-insensitively.
func (e *Entry) HasObjectClass(class string) bool {
	a := e.Get(objectClassAttr)
	if a == nil {
		return false
	}
	class = strings.ToLower(class)
	for _, v := range a.Values {
		if strings.ToLower(v) == class {
			return true
		}
	}
	return false
}

// IsAlias reports whether the entry's objectClass includes "alias".
func (e *Entry) IsAlias() bool {
	return e.HasObjectClass(aliasObjectClass)
}

// AliasedObjectName returns the entry's aliasedObjectName value and
// whether it carries one.
func (e *Entry) AliasedObjectName() (string, bool) {
	a := e.Get(aliasedObjectNameAttr)
	if a == nil || len(a.Values) == 0 {
		return "", false
	}
	return a.Values[0], true
}

// Validate checks the one structural invariant spec §3 requires of every
// entry: it must carry objectClass with at least one value.
func (e *Entry) Validate() error {
	a := e.Get(objectClassAttr)
	if a == nil || len(a.Values) == 0 {
		return fmt.Errorf("entry: missing required objectClass attribute")
	}
	return nil
}

// Equal compares two entries ignoring attribute and value order, as
// required by spec §8 property 6 (round-trip add/get).
func Equal(a, b *Entry) bool {
	if len(a.order) != len(b.order) {
		return false
	}
	for k, av := range a.attrs {
		bv, ok := b.attrs[k]
		if !ok {
			return false
		}
		if !sameValueSet(av.Values, bv.Values) {
			return false
		}
	}
	return true
}

func sameValueSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
