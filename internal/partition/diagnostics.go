package partition

import (
	"fmt"

	"github.com/google/uuid"
)

// IndexSnapshot is the debugging view spec §6's getIndices(id) returns: one
// entry per index that records anything about id. Naming follows spec §9's
// open question: "_nDn"/"_upDn"/"_parent"/"_child" for the system naming
// and hierarchy indices, "_existance[<oid>]" for presence, "_alias"/
// "_oneAlias"/"_subAlias" for the alias indices, and the bare attribute OID
// for each configured user index.
type IndexSnapshot struct {
	DiagID  string
	ID      uint64
	Entries map[string]interface{}
}

// GetIndices returns a debugging snapshot of every index entry touching
// id, tagged with a fresh correlation id so separate calls are
// distinguishable in logs.
func (s *Store) GetIndices(id uint64) (IndexSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUsable(); err != nil {
		return IndexSnapshot{}, err
	}

	snap := IndexSnapshot{DiagID: uuid.NewString(), ID: id, Entries: make(map[string]interface{})}
	s.log.Debug().Str("diag_id", snap.DiagID).Uint64("id", id).Msg("index snapshot taken")

	if v, ok, err := s.ndn.ReverseLookup(id); err != nil {
		return snap, fmt.Errorf("partition: diagnostics: ndn: %w", err)
	} else if ok {
		snap.Entries["_nDn"] = v
	}
	if v, ok, err := s.updn.ReverseLookup(id); err != nil {
		return snap, fmt.Errorf("partition: diagnostics: updn: %w", err)
	} else if ok {
		snap.Entries["_upDn"] = v
	}
	if v, ok, err := s.hierarchy.ReverseLookup(id); err != nil {
		return snap, fmt.Errorf("partition: diagnostics: hierarchy: %w", err)
	} else if ok {
		snap.Entries["_parent"] = v
	}
	if children, err := s.hierarchy.ListIndices(id); err != nil {
		return snap, fmt.Errorf("partition: diagnostics: children: %w", err)
	} else if len(children) > 0 {
		snap.Entries["_child"] = children
	}
	if attrs, err := s.presence.ListReverseIndices(id); err != nil {
		return snap, fmt.Errorf("partition: diagnostics: presence: %w", err)
	} else {
		for _, oid := range attrs {
			snap.Entries[fmt.Sprintf("_existance[%s]", oid)] = true
		}
	}
	if v, ok, err := s.alias.ReverseLookup(id); err != nil {
		return snap, fmt.Errorf("partition: diagnostics: alias: %w", err)
	} else if ok {
		snap.Entries["_alias"] = v
	}
	if keys, err := s.oneAlias.ListReverseIndices(id); err != nil {
		return snap, fmt.Errorf("partition: diagnostics: oneAlias: %w", err)
	} else if len(keys) > 0 {
		snap.Entries["_oneAlias"] = keys
	}
	if keys, err := s.subAlias.ListReverseIndices(id); err != nil {
		return snap, fmt.Errorf("partition: diagnostics: subAlias: %w", err)
	} else if len(keys) > 0 {
		snap.Entries["_subAlias"] = keys
	}
	for oid, idx := range s.userIndices {
		if values, err := idx.ListReverseIndices(id); err != nil {
			return snap, fmt.Errorf("partition: diagnostics: user index %s: %w", oid, err)
		} else if len(values) > 0 {
			snap.Entries[oid] = values
		}
	}

	return snap, nil
}
