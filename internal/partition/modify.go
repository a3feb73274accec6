package partition

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/dirstore/pkg/dn"
	"github.com/cuemby/dirstore/pkg/entry"
	"github.com/cuemby/dirstore/pkg/metrics"
)

// ModOp is a modify operation kind (spec §4.4 Modify).
type ModOp int

const (
	ModAdd ModOp = iota
	ModRemove
	ModReplace
)

// ModItem is one (op, attribute, values) modification.
type ModItem struct {
	Op     ModOp
	Attr   string
	Values []string
}

// Modify applies op uniformly to every (attr, values) pair in mods (spec
// §4.4's single-op overload).
func (s *Store) Modify(dnStr string, op ModOp, mods map[string][]string) error {
	items := make([]ModItem, 0, len(mods))
	for attr, values := range mods {
		items = append(items, ModItem{Op: op, Attr: attr, Values: values})
	}
	return s.ModifyItems(dnStr, items)
}

// ModifyItems applies a mixed-op sequence of modifications (spec §4.4's
// modItems[] overload), one sub-mod at a time in order, writing the entry
// back once after the whole sequence succeeds.
func (s *Store) ModifyItems(dnStr string, items []ModItem) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveMutation("modify", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.checkUsable(); err != nil {
		return err
	}

	d, err := dn.Parse(dnStr)
	if err != nil {
		return fmt.Errorf("partition: parse dn %q: %w", dnStr, err)
	}
	norm, err := dn.Normalize(d, s.schema)
	if err != nil {
		return fmt.Errorf("partition: normalize dn %q: %w", dnStr, err)
	}
	id, ok, err := s.ndn.ForwardLookup(norm.String())
	if err != nil {
		return fmt.Errorf("partition: modify: lookup %q: %w", dnStr, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchObject, dnStr)
	}
	e, ok, err := s.master.Get(id)
	if err != nil {
		return fmt.Errorf("partition: modify: load %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNoSuchObject, id)
	}

	for _, item := range items {
		if err := s.applyModItem(id, e, item); err != nil {
			return err
		}
	}

	if err := s.master.Put(id, e); err != nil {
		return s.poison(fmt.Errorf("%w: master put: %v", ErrIOFailure, err))
	}
	return s.syncIfConfigured()
}

func (s *Store) applyModItem(id uint64, e *entry.Entry, item ModItem) error {
	switch item.Op {
	case ModAdd:
		return s.modAdd(id, e, item.Attr, item.Values)
	case ModRemove:
		return s.modRemove(id, e, item.Attr, item.Values)
	case ModReplace:
		return s.modReplace(id, e, item.Attr, item.Values)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownModification, item.Op)
	}
}

// modAdd implements spec §4.4 Modify's ADD case.
func (s *Store) modAdd(id uint64, e *entry.Entry, attr string, values []string) error {
	oid, err := s.schema.ResolveOID(attr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	idx, hasIdx := s.userIndices[oid]
	for _, v := range values {
		if hasIdx {
			nv, err := s.schema.NormalizeValue(attr, v)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
			}
			if err := idx.Add(nv, id); err != nil {
				return s.poison(fmt.Errorf("%w: user index %s add: %v", ErrIndexInconsistent, attr, err))
			}
		}
	}
	if len(values) > 0 {
		if has, err := s.presence.HasValue(oid, id); err != nil {
			return fmt.Errorf("partition: modify add: check presence: %w", err)
		} else if !has {
			if err := s.presence.Add(oid, id); err != nil {
				return s.poison(fmt.Errorf("%w: presence add: %v", ErrIndexInconsistent, err))
			}
		}
	}
	e.Add(attr, values...)

	if isAliasedObjectNameAttr(attr) && len(values) > 0 {
		norm, err := s.entryNorm(id)
		if err != nil {
			return err
		}
		if err := s.aliasAdd(id, norm, values[len(values)-1]); err != nil {
			return err
		}
	}
	return nil
}

// modRemove implements spec §4.4 Modify's REMOVE case. Removing values
// from an attribute the entry does not carry is a silent no-op (spec §9's
// preserved behavior), matching entry.Entry.Remove.
func (s *Store) modRemove(id uint64, e *entry.Entry, attr string, values []string) error {
	oid, err := s.schema.ResolveOID(attr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	existing := e.Get(attr)
	removed := values
	if len(values) == 0 && existing != nil {
		removed = append([]string(nil), existing.Values...)
	}

	idx, hasIdx := s.userIndices[oid]
	if hasIdx {
		for _, v := range removed {
			nv, err := s.schema.NormalizeValue(attr, v)
			if err != nil {
				continue
			}
			if err := idx.Drop(nv, id); err != nil {
				return s.poison(fmt.Errorf("%w: user index %s drop: %v", ErrIndexInconsistent, attr, err))
			}
		}
	}

	e.Remove(attr, values...)

	if e.Get(attr) == nil {
		if err := s.presence.Drop(oid, id); err != nil {
			return s.poison(fmt.Errorf("%w: presence drop: %v", ErrIndexInconsistent, err))
		}
	}

	if isAliasedObjectNameAttr(attr) {
		if err := s.aliasDrop(id); err != nil {
			return err
		}
	}
	return nil
}

// modReplace implements spec §4.4 Modify's REPLACE case.
func (s *Store) modReplace(id uint64, e *entry.Entry, attr string, values []string) error {
	oid, err := s.schema.ResolveOID(attr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	if isAliasedObjectNameAttr(attr) {
		if err := s.aliasDrop(id); err != nil {
			return err
		}
	}

	if idx, hasIdx := s.userIndices[oid]; hasIdx {
		if err := idx.DropID(id); err != nil {
			return s.poison(fmt.Errorf("%w: user index %s drop id: %v", ErrIndexInconsistent, attr, err))
		}
		for _, v := range values {
			nv, err := s.schema.NormalizeValue(attr, v)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
			}
			if err := idx.Add(nv, id); err != nil {
				return s.poison(fmt.Errorf("%w: user index %s add: %v", ErrIndexInconsistent, attr, err))
			}
		}
	}

	if len(values) == 0 {
		e.RemoveAttribute(attr)
		if err := s.presence.Drop(oid, id); err != nil {
			return s.poison(fmt.Errorf("%w: presence drop: %v", ErrIndexInconsistent, err))
		}
	} else {
		e.RemoveAttribute(attr)
		e.Add(attr, values...)
		if has, err := s.presence.HasValue(oid, id); err != nil {
			return fmt.Errorf("partition: modify replace: check presence: %w", err)
		} else if !has {
			if err := s.presence.Add(oid, id); err != nil {
				return s.poison(fmt.Errorf("%w: presence add: %v", ErrIndexInconsistent, err))
			}
		}
		if isAliasedObjectNameAttr(attr) {
			norm, err := s.entryNorm(id)
			if err != nil {
				return err
			}
			if err := s.aliasAdd(id, norm, values[len(values)-1]); err != nil {
				return err
			}
		}
	}
	return nil
}

func isAliasedObjectNameAttr(attr string) bool {
	return strings.EqualFold(attr, attrAliasedObjectName)
}

// entryNorm returns id's normalized dn, used when (re-)running alias-add
// from inside a modify that touches aliasedObjectName.
func (s *Store) entryNorm(id uint64) (dn.DN, error) {
	normStr, ok, err := s.ndn.ReverseLookup(id)
	if err != nil {
		return dn.DN{}, fmt.Errorf("partition: resolve normalized dn for %d: %w", id, err)
	}
	if !ok {
		return dn.DN{}, fmt.Errorf("%w: id %d", ErrNoSuchObject, id)
	}
	return dn.Parse(normStr)
}
