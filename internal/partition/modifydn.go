package partition

import (
	"fmt"
	"time"

	"github.com/cuemby/dirstore/pkg/dn"
	"github.com/cuemby/dirstore/pkg/metrics"
)

// Rename implements spec §4.4 Rename.
func (s *Store) Rename(dnStr, newRdnStr string, deleteOldRdn bool) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveMutation("rename", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.checkUsable(); err != nil {
		return err
	}
	err = s.renameLocked(dnStr, newRdnStr, deleteOldRdn)
	return err
}

// renameLocked implements spec §4.4 Rename under the caller's held write
// lock; split out so Move can run it as its first step without releasing
// the lock in between.
func (s *Store) renameLocked(dnStr, newRdnStr string, deleteOldRdn bool) error {
	d, err := dn.Parse(dnStr)
	if err != nil {
		return fmt.Errorf("partition: parse dn %q: %w", dnStr, err)
	}
	newRdnDn, err := dn.Parse(newRdnStr)
	if err != nil {
		return fmt.Errorf("partition: parse new rdn %q: %w", newRdnStr, err)
	}
	newRdn := newRdnDn.Rdn()

	norm, err := dn.Normalize(d, s.schema)
	if err != nil {
		return fmt.Errorf("partition: normalize dn %q: %w", dnStr, err)
	}
	id, ok, err := s.ndn.ForwardLookup(norm.String())
	if err != nil {
		return fmt.Errorf("partition: rename: lookup %q: %w", dnStr, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchObject, dnStr)
	}
	e, ok, err := s.master.Get(id)
	if err != nil {
		return fmt.Errorf("partition: rename: load %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNoSuchObject, id)
	}
	currentUpdn, ok, err := s.updn.ReverseLookup(id)
	if err != nil {
		return fmt.Errorf("partition: rename: current updn: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNoSuchObject, id)
	}
	currentUpdnDn, err := dn.Parse(currentUpdn)
	if err != nil {
		return fmt.Errorf("partition: rename: parse current updn: %w", err)
	}
	oldRdn := currentUpdnDn.Rdn()

	for _, av := range newRdn.AttrValues {
		if !e.HasValue(av.Attr, av.Value) {
			if err := s.modAdd(id, e, av.Attr, []string{av.Value}); err != nil {
				return err
			}
		}
	}

	if deleteOldRdn {
		for _, av := range oldRdn.AttrValues {
			alsoInNewRdn := false
			for _, nav := range newRdn.AttrValues {
				if nav.Attr == av.Attr && nav.Value == av.Value {
					alsoInNewRdn = true
					break
				}
			}
			if alsoInNewRdn {
				continue
			}
			if err := s.modRemove(id, e, av.Attr, []string{av.Value}); err != nil {
				return err
			}
		}
	}

	if err := s.master.Put(id, e); err != nil {
		return s.poison(fmt.Errorf("%w: master put: %v", ErrIOFailure, err))
	}

	newUpdn := currentUpdnDn.Parent().Append(newRdn)
	if err := s.modifyDn(id, newUpdn, false); err != nil {
		return err
	}
	return s.syncIfConfigured()
}

// Move implements spec §4.4 Move. newRdnStr may be empty, meaning the
// child keeps its current RDN.
func (s *Store) Move(oldDnStr, newParentDnStr, newRdnStr string, deleteOldRdn bool) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveMutation("move", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.checkUsable(); err != nil {
		return err
	}

	oldD, err := dn.Parse(oldDnStr)
	if err != nil {
		return fmt.Errorf("partition: parse dn %q: %w", oldDnStr, err)
	}
	oldNorm, err := dn.Normalize(oldD, s.schema)
	if err != nil {
		return fmt.Errorf("partition: normalize dn %q: %w", oldDnStr, err)
	}
	childID, ok, err := s.ndn.ForwardLookup(oldNorm.String())
	if err != nil {
		return fmt.Errorf("partition: move: lookup child: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchObject, oldDnStr)
	}

	if newRdnStr != "" {
		if err := s.renameLocked(oldDnStr, newRdnStr, deleteOldRdn); err != nil {
			return err
		}
	}

	newParentD, err := dn.Parse(newParentDnStr)
	if err != nil {
		return fmt.Errorf("partition: parse new parent dn %q: %w", newParentDnStr, err)
	}
	newParentNorm, err := dn.Normalize(newParentD, s.schema)
	if err != nil {
		return fmt.Errorf("partition: normalize new parent dn %q: %w", newParentDnStr, err)
	}
	newParentID, ok, err := s.ndn.ForwardLookup(newParentNorm.String())
	if err != nil {
		return fmt.Errorf("partition: move: lookup new parent: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: new parent %s", ErrNoSuchParent, newParentDnStr)
	}

	oldParentID, hasOldParent, err := s.hierarchy.ReverseLookup(childID)
	if err != nil {
		return fmt.Errorf("partition: move: old parent: %w", err)
	}

	externalRefs, err := s.dropMovedAliasIndices(oldNorm, childID)
	if err != nil {
		return err
	}

	if hasOldParent {
		if err := s.hierarchy.Drop(oldParentID, childID); err != nil {
			return s.poison(fmt.Errorf("%w: hierarchy drop: %v", ErrIndexInconsistent, err))
		}
	}
	if err := s.hierarchy.Add(newParentID, childID); err != nil {
		return s.poison(fmt.Errorf("%w: hierarchy add: %v", ErrIndexInconsistent, err))
	}

	newParentUpdnStr, ok, err := s.updn.ReverseLookup(newParentID)
	if err != nil {
		return fmt.Errorf("partition: move: new parent updn: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: new parent id %d", ErrNoSuchObject, newParentID)
	}
	newParentUpdn, err := dn.Parse(newParentUpdnStr)
	if err != nil {
		return fmt.Errorf("partition: move: parse new parent updn: %w", err)
	}
	childUpdnStr, ok, err := s.updn.ReverseLookup(childID)
	if err != nil {
		return fmt.Errorf("partition: move: child updn: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNoSuchObject, childID)
	}
	childUpdn, err := dn.Parse(childUpdnStr)
	if err != nil {
		return fmt.Errorf("partition: move: parse child updn: %w", err)
	}
	newUpdn := newParentUpdn.Append(childUpdn.Rdn())

	if err := s.modifyDn(childID, newUpdn, true); err != nil {
		return err
	}

	if err := s.readdExternalAliasRefs(externalRefs); err != nil {
		return err
	}

	return s.syncIfConfigured()
}

// modifyDn implements spec §4.4's recursive name rewrite. Children are
// captured into a slice before any recursive mutation, since their ndn/updn
// entries are about to be rewritten mid-walk (spec §9's
// cursor-during-mutation note).
func (s *Store) modifyDn(id uint64, newUpdn dn.DN, isMove bool) error {
	newNorm, err := dn.Normalize(newUpdn, s.schema)
	if err != nil {
		return fmt.Errorf("partition: modifyDn: normalize: %w", err)
	}

	if err := s.ndn.DropID(id); err != nil {
		return s.poison(fmt.Errorf("%w: ndn drop: %v", ErrIndexInconsistent, err))
	}
	if err := s.ndn.Add(newNorm.String(), id); err != nil {
		return s.poison(fmt.Errorf("%w: ndn add: %v", ErrIndexInconsistent, err))
	}
	if err := s.updn.DropID(id); err != nil {
		return s.poison(fmt.Errorf("%w: updn drop: %v", ErrIndexInconsistent, err))
	}
	if err := s.updn.Add(newUpdn.String(), id); err != nil {
		return s.poison(fmt.Errorf("%w: updn add: %v", ErrIndexInconsistent, err))
	}

	if isMove {
		e, ok, err := s.master.Get(id)
		if err != nil {
			return fmt.Errorf("partition: modifyDn: load %d: %w", id, err)
		}
		if ok && e.IsAlias() {
			if target, ok := e.AliasedObjectName(); ok {
				if err := s.aliasAdd(id, newNorm, target); err != nil {
					return err
				}
			}
		}
	}

	children, err := s.hierarchy.ListIndices(id)
	if err != nil {
		return fmt.Errorf("partition: modifyDn: list children of %d: %w", id, err)
	}

	for _, childID := range children {
		childUpdnStr, ok, err := s.updn.ReverseLookup(childID)
		if err != nil {
			return fmt.Errorf("partition: modifyDn: child updn %d: %w", childID, err)
		}
		if !ok {
			continue
		}
		childUpdn, err := dn.Parse(childUpdnStr)
		if err != nil {
			return fmt.Errorf("partition: modifyDn: parse child updn: %w", err)
		}
		childNewUpdn := newUpdn.Append(childUpdn.Rdn())
		if err := s.modifyDn(childID, childNewUpdn, isMove); err != nil {
			return err
		}
	}
	return nil
}

// externalAliasRef records an alias whose target (not the alias entry
// itself) lies inside a subtree being moved: its own position and ancestor
// chain are untouched by the move, but its target's identity relative to
// that chain (sibling-of-alias, descendant-of-ancestor) can change, so its
// alias/oneAlias/subAlias entries must be fully dropped against the old
// target position and re-added against the new one.
type externalAliasRef struct {
	aliasID  uint64
	targetID uint64
}

// dropMovedAliasIndices implements Move step 3 (spec §4.4): before the
// subtree rooted at childID is relinked, clear the subAlias/oneAlias scope
// tuples that were computed against its old ancestor chain, for any alias
// embedded in that subtree. modifyDn's per-node alias-add rerun (triggered
// by isMove) re-establishes them against the new chain once the node is
// relinked.
//
// It also scans the alias index for aliases located elsewhere in the tree
// whose target lies inside the moved subtree (spec §4.4 Move step 3: "scan
// alias for forward keys with prefix oldDn"), and fully drops their index
// entries now, against the still-valid old target position. The returned
// refs let the caller re-add them once the subtree's new names are
// committed.
func (s *Store) dropMovedAliasIndices(oldNorm dn.DN, childID uint64) ([]externalAliasRef, error) {
	embeddedIDs, err := s.collectSubtreeAliasIDs(childID)
	if err != nil {
		return nil, fmt.Errorf("partition: move: collect aliases under subtree: %w", err)
	}
	embedded := make(map[uint64]bool, len(embeddedIDs))
	for _, id := range embeddedIDs {
		embedded[id] = true
	}

	for _, aliasID := range embeddedIDs {
		targetDnStr, ok, err := s.alias.ReverseLookup(aliasID)
		if err != nil {
			return nil, fmt.Errorf("partition: move: alias target: %w", err)
		}
		if !ok {
			continue
		}
		targetID, ok, err := s.ndn.ForwardLookup(targetDnStr)
		if err != nil {
			return nil, fmt.Errorf("partition: move: lookup target: %w", err)
		}
		if !ok {
			continue
		}

		ancestor := oldNorm.Parent()
		first := true
		for !ancestor.IsEmpty() {
			ancestorID, ok, err := s.ndn.ForwardLookup(ancestor.String())
			if err != nil {
				return nil, fmt.Errorf("partition: move: lookup ancestor: %w", err)
			}
			if !ok {
				break
			}
			if has, err := s.subAlias.HasValue(ancestorID, targetID); err != nil {
				return nil, fmt.Errorf("partition: move: check subAlias: %w", err)
			} else if has {
				if err := s.subAlias.Drop(ancestorID, targetID); err != nil {
					return nil, s.poison(fmt.Errorf("%w: subAlias drop: %v", ErrIndexInconsistent, err))
				}
			}
			if first && aliasID == childID {
				if has, err := s.oneAlias.HasValue(ancestorID, targetID); err != nil {
					return nil, fmt.Errorf("partition: move: check oneAlias: %w", err)
				} else if has {
					if err := s.oneAlias.Drop(ancestorID, targetID); err != nil {
						return nil, s.poison(fmt.Errorf("%w: oneAlias drop: %v", ErrIndexInconsistent, err))
					}
				}
			}
			first = false
			if dn.Equal(ancestor, s.suffixNorm) {
				break
			}
			ancestor = ancestor.Parent()
		}
	}

	var externalRefs []externalAliasRef
	var iterErr error
	s.alias.Iter(func(key string, aliasID uint64) bool {
		if embedded[aliasID] {
			return true
		}
		targetDn, err := dn.Parse(key)
		if err != nil {
			iterErr = fmt.Errorf("partition: move: parse alias target %q: %w", key, err)
			return false
		}
		if !dn.StartsWith(targetDn, oldNorm) {
			return true
		}
		targetID, ok, err := s.ndn.ForwardLookup(key)
		if err != nil {
			iterErr = fmt.Errorf("partition: move: lookup alias target: %w", err)
			return false
		}
		if !ok {
			return true
		}
		externalRefs = append(externalRefs, externalAliasRef{aliasID: aliasID, targetID: targetID})
		return true
	})
	if iterErr != nil {
		return nil, iterErr
	}

	for _, ref := range externalRefs {
		if err := s.aliasDrop(ref.aliasID); err != nil {
			return nil, fmt.Errorf("partition: move: drop external alias ref: %w", err)
		}
	}

	return externalRefs, nil
}

// readdExternalAliasRefs re-establishes the alias/oneAlias/subAlias entries
// for aliases collected by dropMovedAliasIndices whose target (not the
// alias itself) was just relocated, once the moved subtree's new names are
// committed.
func (s *Store) readdExternalAliasRefs(refs []externalAliasRef) error {
	for _, ref := range refs {
		aliasDnStr, ok, err := s.ndn.ReverseLookup(ref.aliasID)
		if err != nil {
			return fmt.Errorf("partition: move: alias dn for rekey: %w", err)
		}
		if !ok {
			continue
		}
		aliasDn, err := dn.Parse(aliasDnStr)
		if err != nil {
			return fmt.Errorf("partition: move: parse alias dn for rekey: %w", err)
		}
		newTargetDnStr, ok, err := s.ndn.ReverseLookup(ref.targetID)
		if err != nil {
			return fmt.Errorf("partition: move: new target dn for rekey: %w", err)
		}
		if !ok {
			continue
		}
		if err := s.aliasAdd(ref.aliasID, aliasDn, newTargetDnStr); err != nil {
			return fmt.Errorf("partition: move: re-add external alias ref: %w", err)
		}
	}
	return nil
}

// collectSubtreeAliasIDs walks the subtree rooted at id (id included) and
// returns the ids of every alias entry within it.
func (s *Store) collectSubtreeAliasIDs(id uint64) ([]uint64, error) {
	var out []uint64
	var walk func(uint64) error
	walk = func(cur uint64) error {
		e, ok, err := s.master.Get(cur)
		if err != nil {
			return err
		}
		if ok && e.IsAlias() {
			out = append(out, cur)
		}
		children, err := s.hierarchy.ListIndices(cur)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(id); err != nil {
		return nil, err
	}
	return out, nil
}
