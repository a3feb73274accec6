package partition

import (
	"fmt"

	"github.com/cuemby/dirstore/pkg/dn"
)

// aliasAdd implements spec §4.5 alias-add. aliasDn must already be
// normalized; target is the raw aliasedObjectName value. Called with the
// store's write lock held. From Add it runs before the alias's own
// ndn/updn/hierarchy entries are written; from Modify and Move it runs on
// an entry whose own entries already exist.
func (s *Store) aliasAdd(aliasID uint64, aliasDn dn.DN, target string) error {
	targetDn, err := dn.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: aliasedObjectName %q: %v", ErrSchemaViolation, target, err)
	}
	normTarget, err := dn.Normalize(targetDn, s.schema)
	if err != nil {
		return fmt.Errorf("%w: normalize aliasedObjectName %q: %v", ErrSchemaViolation, target, err)
	}

	if dn.Equal(aliasDn, normTarget) {
		return fmt.Errorf("%w: %s", ErrAliasToSelf, aliasDn.String())
	}
	if dn.StartsWith(aliasDn, normTarget) {
		return fmt.Errorf("%w: %s is a descendant of its own target", ErrAliasCycle, aliasDn.String())
	}
	if !dn.StartsWith(normTarget, s.suffixNorm) {
		return fmt.Errorf("%w: %s", ErrAliasExternal, normTarget.String())
	}

	targetID, ok, err := s.ndn.ForwardLookup(normTarget.String())
	if err != nil {
		return fmt.Errorf("partition: alias-add: lookup target: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAliasTargetMissing, normTarget.String())
	}

	if _, isAlias, err := s.alias.ReverseLookup(targetID); err != nil {
		return fmt.Errorf("partition: alias-add: check target chain: %w", err)
	} else if isAlias {
		return fmt.Errorf("%w: target %s is itself an alias", ErrAliasChain, normTarget.String())
	}

	if err := s.alias.Add(normTarget.String(), aliasID); err != nil {
		return s.poison(fmt.Errorf("%w: alias add: %v", ErrIndexInconsistent, err))
	}

	ancestor := aliasDn.Parent()
	ancestorID, ok, err := s.ndn.ForwardLookup(ancestor.String())
	if err != nil {
		return fmt.Errorf("partition: alias-add: lookup ancestor: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: alias parent %s", ErrNoSuchParent, ancestor.String())
	}

	if !dn.IsSibling(normTarget, aliasDn) {
		if err := s.oneAlias.Add(ancestorID, targetID); err != nil {
			return s.poison(fmt.Errorf("%w: oneAlias add: %v", ErrIndexInconsistent, err))
		}
	}

	for {
		if !dn.IsDescendant(ancestor, normTarget) {
			if err := s.subAlias.Add(ancestorID, targetID); err != nil {
				return s.poison(fmt.Errorf("%w: subAlias add: %v", ErrIndexInconsistent, err))
			}
		}
		if dn.Equal(ancestor, s.suffixNorm) {
			break
		}
		ancestor = ancestor.Parent()
		if ancestor.IsEmpty() {
			break
		}
		nextID, ok, err := s.ndn.ForwardLookup(ancestor.String())
		if err != nil {
			return fmt.Errorf("partition: alias-add: walk ancestors: %w", err)
		}
		if !ok {
			break
		}
		ancestorID = nextID
	}

	return nil
}

// aliasDrop implements spec §4.5 alias-drop. Called with the write lock
// held, before the alias's own ndn/updn/hierarchy entries are removed.
func (s *Store) aliasDrop(aliasID uint64) error {
	targetDnStr, ok, err := s.alias.ReverseLookup(aliasID)
	if err != nil {
		return fmt.Errorf("partition: alias-drop: reverse lookup: %w", err)
	}
	if !ok {
		return nil // not carrying an alias-index entry; nothing to drop
	}
	targetID, ok, err := s.ndn.ForwardLookup(targetDnStr)
	if err != nil {
		return fmt.Errorf("partition: alias-drop: lookup target: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAliasTargetMissing, targetDnStr)
	}

	aliasDnStr, ok, err := s.ndn.ReverseLookup(aliasID)
	if err != nil {
		return fmt.Errorf("partition: alias-drop: reverse lookup alias dn: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: alias id %d", ErrNoSuchObject, aliasID)
	}
	aliasDn, err := dn.Parse(aliasDnStr)
	if err != nil {
		return fmt.Errorf("partition: alias-drop: parse alias dn: %w", err)
	}

	ancestor := aliasDn.Parent()
	first := true
	for !ancestor.IsEmpty() {
		ancestorID, ok, err := s.ndn.ForwardLookup(ancestor.String())
		if err != nil {
			return fmt.Errorf("partition: alias-drop: lookup ancestor: %w", err)
		}
		if !ok {
			break
		}
		if ok, err := s.subAlias.HasValue(ancestorID, targetID); err != nil {
			return fmt.Errorf("partition: alias-drop: check subAlias: %w", err)
		} else if ok {
			if err := s.subAlias.Drop(ancestorID, targetID); err != nil {
				return s.poison(fmt.Errorf("%w: subAlias drop: %v", ErrIndexInconsistent, err))
			}
		}
		if first {
			if ok, err := s.oneAlias.HasValue(ancestorID, targetID); err != nil {
				return fmt.Errorf("partition: alias-drop: check oneAlias: %w", err)
			} else if ok {
				if err := s.oneAlias.Drop(ancestorID, targetID); err != nil {
					return s.poison(fmt.Errorf("%w: oneAlias drop: %v", ErrIndexInconsistent, err))
				}
			}
			first = false
		}
		if dn.Equal(ancestor, s.suffixNorm) {
			break
		}
		ancestor = ancestor.Parent()
	}

	if err := s.alias.Drop(targetDnStr, aliasID); err != nil {
		return s.poison(fmt.Errorf("%w: alias drop: %v", ErrIndexInconsistent, err))
	}
	return nil
}
