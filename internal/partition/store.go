// Package partition implements the store coordinator (spec §4.4): the
// single entry point that keeps the master table and every index in
// lockstep across Add/Delete/Modify/Rename/Move, and that owns alias-cycle
// and alias-chain detection (spec §4.5).
package partition

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/dirstore/internal/btreetable"
	"github.com/cuemby/dirstore/internal/index"
	"github.com/cuemby/dirstore/internal/master"
	"github.com/cuemby/dirstore/internal/recman"
	"github.com/cuemby/dirstore/pkg/dn"
	"github.com/cuemby/dirstore/pkg/entry"
	"github.com/cuemby/dirstore/pkg/log"
	"github.com/cuemby/dirstore/pkg/metrics"
	"github.com/cuemby/dirstore/pkg/schema"
	"github.com/rs/zerolog"
)

const (
	masterDBFile = "master.db"

	attrObjectClass       = "objectClass"
	attrAliasedObjectName = "aliasedObjectName"
	objectClassAlias      = "alias"
)

// Store is the coordinator: one opened partition, its record manager, the
// master table, and every system/user/alias index, held consistent as a
// unit under a single store-wide lock (spec §5).
type Store struct {
	cfg    Config
	mgr    *recman.Manager
	master *master.Table
	schema schema.Resolver
	codec  entry.Codec

	ndn       *index.Index[string] // normalized dn -> id
	updn      *index.Index[string] // user dn -> id
	hierarchy *index.Index[uint64] // parentId -> {childId}
	presence  *index.Index[string] // attribute oid -> {id}
	alias     *index.Index[string] // normalized target dn -> {aliasId}
	oneAlias  *index.Index[uint64] // ancestorId -> {targetId}
	subAlias  *index.Index[uint64] // ancestorId -> {targetId}

	userIndices map[string]*index.Index[string] // attribute oid -> value index

	suffix     dn.DN
	suffixNorm dn.DN

	mu          sync.RWMutex
	initialized bool
	poisoned    error

	log zerolog.Logger
}

// Open initializes a partition under cfg.WorkingDirectory, creating
// master.db and every index sidecar if they do not already exist. If the
// suffix entry is not already present and cfg.ContextEntry is set, it is
// added as entry 0's child under the synthetic root (spec §9's "sentinel 0
// for the suffix's parent id").
func Open(cfg Config, res schema.Resolver, codec entry.Codec) (*Store, error) {
	suffix, err := dn.Parse(cfg.SuffixDN)
	if err != nil {
		return nil, fmt.Errorf("partition: parse suffix dn: %w", err)
	}
	suffixNorm, err := dn.Normalize(suffix, res)
	if err != nil {
		return nil, fmt.Errorf("partition: normalize suffix dn: %w", err)
	}

	mgr, err := recman.Open(filepath.Join(cfg.WorkingDirectory, masterDBFile), cfg.cacheSize(), cfg.SyncOnWrite)
	if err != nil {
		return nil, fmt.Errorf("partition: open record manager: %w", err)
	}

	s := &Store{
		cfg:         cfg,
		mgr:         mgr,
		schema:      res,
		codec:       codec,
		userIndices: make(map[string]*index.Index[string]),
		suffix:      suffix,
		suffixNorm:  suffixNorm,
		log:         log.WithPartition(cfg.Name),
	}

	if s.master, err = master.Open(mgr, codec); err != nil {
		return s.failOpen(err)
	}
	if s.ndn, err = index.Open[string](mgr, "ndn", btreetable.StringCodec{}, 0, cfg.cacheSize()); err != nil {
		return s.failOpen(err)
	}
	if s.updn, err = index.Open[string](mgr, "updn", btreetable.StringCodec{}, 0, cfg.cacheSize()); err != nil {
		return s.failOpen(err)
	}
	if s.hierarchy, err = index.Open[uint64](mgr, "hierarchy", btreetable.Uint64Codec{}, 0, 0); err != nil {
		return s.failOpen(err)
	}
	if s.presence, err = index.Open[string](mgr, "presence", btreetable.StringCodec{}, 0, 0); err != nil {
		return s.failOpen(err)
	}
	if s.alias, err = index.Open[string](mgr, "alias", btreetable.StringCodec{}, 0, 0); err != nil {
		return s.failOpen(err)
	}
	if s.oneAlias, err = index.Open[uint64](mgr, "oneAlias", btreetable.Uint64Codec{}, 0, 0); err != nil {
		return s.failOpen(err)
	}
	if s.subAlias, err = index.Open[uint64](mgr, "subAlias", btreetable.Uint64Codec{}, 0, 0); err != nil {
		return s.failOpen(err)
	}

	for _, ia := range cfg.IndexedAttributes {
		oid, err := res.ResolveOID(ia.AttrID)
		if err != nil {
			return s.failOpen(fmt.Errorf("%w: indexed attribute %q: %v", ErrSchemaViolation, ia.AttrID, err))
		}
		idx, err := index.Open[string](mgr, "userindex_"+oid, btreetable.StringCodec{}, ia.DuplicateLimit, ia.CacheSize)
		if err != nil {
			return s.failOpen(err)
		}
		s.userIndices[oid] = idx
	}

	s.initialized = true

	if _, ok, err := s.ndn.ForwardLookup(suffixNorm.String()); err == nil && !ok && cfg.ContextEntry != nil {
		if err := s.addLocked(suffix, cfg.ContextEntry); err != nil {
			return s.failOpen(fmt.Errorf("partition: seed suffix entry: %w", err))
		}
	}

	s.log.Info().Str("suffix", cfg.SuffixDN).Msg("partition opened")
	return s, nil
}

func (s *Store) failOpen(err error) (*Store, error) {
	if s.mgr != nil {
		_ = s.mgr.Close()
	}
	return nil, err
}

// IsInitialized reports whether Open succeeded and Close has not been
// called since.
func (s *Store) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Close releases the underlying record manager. After Close every public
// method that checks the store's state (lookups, mutations, Sync, counts,
// GetIndices, and Close itself) fails with ErrNotInitialized; plain
// accessors such as GetSuffix and HasUserIndexOn do not check it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	s.initialized = false
	return s.mgr.Close()
}

// Sync forces a durable commit of everything written so far.
func (s *Store) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUsable(); err != nil {
		return err
	}
	return s.mgr.Sync()
}

func (s *Store) checkUsable() error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if s.poisoned != nil {
		return fmt.Errorf("%w: %v", ErrIndexInconsistent, s.poisoned)
	}
	return nil
}

// poison latches the store into its fatal state: every subsequent mutation
// fails until the process restarts (spec §7).
func (s *Store) poison(err error) error {
	s.poisoned = err
	s.log.Error().Err(err).Msg("store marked inconsistent")
	return err
}

func (s *Store) syncIfConfigured() error {
	if s.cfg.SyncOnWrite {
		return s.mgr.Sync()
	}
	return nil
}

// GetSuffix returns the partition's suffix in its user-provided form.
func (s *Store) GetSuffix() dn.DN { return s.suffix }

// GetUpSuffix is an alias for GetSuffix, matching spec §6's naming
// (getUpSuffix returns the user-provided suffix, distinct from its
// normalized form).
func (s *Store) GetUpSuffix() dn.DN { return s.suffix }

// GetEntryId resolves a user-provided DN string to its internal id.
func (s *Store) GetEntryId(dnStr string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUsable(); err != nil {
		return 0, err
	}
	d, err := dn.Parse(dnStr)
	if err != nil {
		return 0, fmt.Errorf("partition: parse dn %q: %w", dnStr, err)
	}
	norm, err := dn.Normalize(d, s.schema)
	if err != nil {
		return 0, fmt.Errorf("partition: normalize dn %q: %w", dnStr, err)
	}
	id, ok, err := s.ndn.ForwardLookup(norm.String())
	if err != nil {
		return 0, fmt.Errorf("partition: lookup dn %q: %w", dnStr, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoSuchObject, dnStr)
	}
	return id, nil
}

// GetEntryDn returns id's normalized DN.
func (s *Store) GetEntryDn(id uint64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUsable(); err != nil {
		return "", err
	}
	nd, ok, err := s.ndn.ReverseLookup(id)
	if err != nil {
		return "", fmt.Errorf("partition: get entry dn %d: %w", id, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: id %d", ErrNoSuchObject, id)
	}
	return nd, nil
}

// GetEntryUpdn returns id's user-provided DN.
func (s *Store) GetEntryUpdn(id uint64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUsable(); err != nil {
		return "", err
	}
	ud, ok, err := s.updn.ReverseLookup(id)
	if err != nil {
		return "", fmt.Errorf("partition: get entry updn %d: %w", id, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: id %d", ErrNoSuchObject, id)
	}
	return ud, nil
}

// GetParentId returns id's parent id (0 for the suffix).
func (s *Store) GetParentId(id uint64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUsable(); err != nil {
		return 0, err
	}
	parent, ok, err := s.hierarchy.ReverseLookup(id)
	if err != nil {
		return 0, fmt.Errorf("partition: get parent %d: %w", id, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: id %d", ErrNoSuchObject, id)
	}
	return parent, nil
}

// Lookup returns the entry stored under id.
func (s *Store) Lookup(id uint64) (*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUsable(); err != nil {
		return nil, err
	}
	e, ok, err := s.master.Get(id)
	if err != nil {
		return nil, fmt.Errorf("partition: lookup %d: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNoSuchObject, id)
	}
	return e, nil
}

// List returns the ids of id's immediate children.
func (s *Store) List(id uint64) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUsable(); err != nil {
		return nil, err
	}
	children, err := s.hierarchy.ListIndices(id)
	if err != nil {
		return nil, fmt.Errorf("partition: list children of %d: %w", id, err)
	}
	return children, nil
}

// GetChildCount returns the number of id's immediate children.
func (s *Store) GetChildCount(id uint64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUsable(); err != nil {
		return 0, err
	}
	n, err := s.hierarchy.CountKey(id)
	if err != nil {
		return 0, fmt.Errorf("partition: child count of %d: %w", id, err)
	}
	return n, nil
}

// HasUserIndexOn reports whether attrID has a configured user index.
func (s *Store) HasUserIndexOn(attrID string) bool {
	oid, err := s.schema.ResolveOID(attrID)
	if err != nil {
		return false
	}
	_, ok := s.userIndices[oid]
	return ok
}

// HasSystemIndexOn reports whether name is one of the engine's fixed
// system indices (ndn, updn, hierarchy, presence, alias, oneAlias,
// subAlias).
func (s *Store) HasSystemIndexOn(name string) bool {
	switch name {
	case "ndn", "updn", "hierarchy", "presence", "alias", "oneAlias", "subAlias":
		return true
	default:
		return false
	}
}

// GetUserIndex returns the configured user index for attrID.
func (s *Store) GetUserIndex(attrID string) (*index.Index[string], error) {
	oid, err := s.schema.ResolveOID(attrID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexNotFound, err)
	}
	idx, ok := s.userIndices[oid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, attrID)
	}
	return idx, nil
}

// GetUserIndices returns every configured user index keyed by attribute oid.
func (s *Store) GetUserIndices() map[string]*index.Index[string] {
	return s.userIndices
}

// Count returns the total number of entries in the master table.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUsable(); err != nil {
		return 0, err
	}
	return s.master.Count()
}

// IsPoisoned reports whether the store has been latched inconsistent by a
// failed index write (spec §7).
func (s *Store) IsPoisoned() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.poisoned != nil
}

// CacheLen returns the number of blobs currently resident in the record
// manager's read cache.
func (s *Store) CacheLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mgr.CacheLen()
}

// UserIndexCounts returns the distinct-key count of every configured user
// index, keyed by the attribute oid it indexes, for metrics collection.
func (s *Store) UserIndexCounts() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUsable(); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(s.userIndices))
	for oid, idx := range s.userIndices {
		n, err := idx.Count()
		if err != nil {
			return nil, fmt.Errorf("partition: user index counts: %s: %w", oid, err)
		}
		out[oid] = n
	}
	return out, nil
}

// SystemIndexCounts returns the distinct-key count of every fixed system
// index, keyed by its name, for diagnostics and metrics collection.
func (s *Store) SystemIndexCounts() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUsable(); err != nil {
		return nil, err
	}
	out := make(map[string]int, 7)
	named := map[string]interface {
		Count() (int, error)
	}{
		"ndn":       s.ndn,
		"updn":      s.updn,
		"hierarchy": s.hierarchy,
		"presence":  s.presence,
		"alias":     s.alias,
		"oneAlias":  s.oneAlias,
		"subAlias":  s.subAlias,
	}
	for name, idx := range named {
		n, err := idx.Count()
		if err != nil {
			return nil, fmt.Errorf("partition: system index counts: %s: %w", name, err)
		}
		out[name] = n
	}
	return out, nil
}

// Add inserts a new entry at dn (spec §4.4 Add).
func (s *Store) Add(dnStr string, e *entry.Entry) (id uint64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveMutation("add", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.checkUsable(); err != nil {
		return 0, err
	}
	d, perr := dn.Parse(dnStr)
	if perr != nil {
		err = fmt.Errorf("partition: parse dn %q: %w", dnStr, perr)
		return 0, err
	}
	if err = s.addLocked(d, e); err != nil {
		return 0, err
	}
	id, _, lerr := s.ndn.ForwardLookup(mustNormalize(d, s.schema).String())
	if lerr != nil {
		err = s.poison(fmt.Errorf("%w: re-lookup after add: %v", ErrIndexInconsistent, lerr))
		return 0, err
	}
	return id, nil
}

func mustNormalize(d dn.DN, res schema.Resolver) dn.DN {
	n, err := dn.Normalize(d, res)
	if err != nil {
		return d
	}
	return n
}

// addLocked implements spec §4.4 Add under the caller's held write lock.
func (s *Store) addLocked(d dn.DN, e *entry.Entry) error {
	norm, err := dn.Normalize(d, s.schema)
	if err != nil {
		return fmt.Errorf("partition: normalize dn: %w", err)
	}

	var parentID uint64
	if !dn.Equal(norm, s.suffixNorm) {
		pid, ok, err := s.ndn.ForwardLookup(norm.Parent().String())
		if err != nil {
			return fmt.Errorf("partition: resolve parent: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoSuchParent, d.String())
		}
		parentID = pid
	}

	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	id, err := s.master.NextID()
	if err != nil {
		return s.poison(fmt.Errorf("%w: allocate id: %v", ErrIOFailure, err))
	}

	if e.IsAlias() {
		target, ok := e.AliasedObjectName()
		if !ok {
			return fmt.Errorf("%w: alias entry missing aliasedObjectName", ErrSchemaViolation)
		}
		if err := s.aliasAdd(id, norm, target); err != nil {
			return err
		}
	}

	if err := s.ndn.Add(norm.String(), id); err != nil {
		return s.poison(fmt.Errorf("%w: ndn add: %v", ErrIndexInconsistent, err))
	}
	if err := s.updn.Add(d.String(), id); err != nil {
		return s.poison(fmt.Errorf("%w: updn add: %v", ErrIndexInconsistent, err))
	}
	if err := s.hierarchy.Add(parentID, id); err != nil {
		return s.poison(fmt.Errorf("%w: hierarchy add: %v", ErrIndexInconsistent, err))
	}

	for _, a := range e.Attributes() {
		oid, err := s.schema.ResolveOID(a.ID)
		if err != nil {
			continue // attribute carries no indexable identity; not itself a violation
		}
		if idx, ok := s.userIndices[oid]; ok {
			for _, v := range a.Values {
				nv, err := s.schema.NormalizeValue(a.ID, v)
				if err != nil {
					return fmt.Errorf("%w: normalize %s: %v", ErrSchemaViolation, a.ID, err)
				}
				if err := idx.Add(nv, id); err != nil {
					return s.poison(fmt.Errorf("%w: user index %s add: %v", ErrIndexInconsistent, a.ID, err))
				}
			}
		}
		if err := s.presence.Add(oid, id); err != nil {
			return s.poison(fmt.Errorf("%w: presence add: %v", ErrIndexInconsistent, err))
		}
	}

	if err := s.master.Put(id, e); err != nil {
		return s.poison(fmt.Errorf("%w: master put: %v", ErrIOFailure, err))
	}

	s.log.Debug().Uint64("id", id).Str("dn", d.String()).Msg("entry added")
	return s.syncIfConfigured()
}

// Delete removes entry id (spec §4.4 Delete). The caller is responsible for
// checking GetChildCount first; the coordinator refuses to cascade.
func (s *Store) Delete(id uint64) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveMutation("delete", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.checkUsable(); err != nil {
		return err
	}

	e, ok, err := s.master.Get(id)
	if err != nil {
		return fmt.Errorf("partition: delete: load %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNoSuchObject, id)
	}

	if n, err := s.hierarchy.CountKey(id); err != nil {
		return fmt.Errorf("partition: delete: child count %d: %w", id, err)
	} else if n > 0 {
		return fmt.Errorf("partition: delete %d: entry has %d children", id, n)
	}

	parentID, hasParent, err := s.hierarchy.ReverseLookup(id)
	if err != nil {
		return fmt.Errorf("partition: delete: parent lookup %d: %w", id, err)
	}

	if e.IsAlias() {
		if err := s.aliasDrop(id); err != nil {
			return err
		}
	}

	if err := s.ndn.DropID(id); err != nil {
		return s.poison(fmt.Errorf("%w: ndn drop: %v", ErrIndexInconsistent, err))
	}
	if err := s.updn.DropID(id); err != nil {
		return s.poison(fmt.Errorf("%w: updn drop: %v", ErrIndexInconsistent, err))
	}
	if err := s.hierarchy.DropID(id); err != nil {
		return s.poison(fmt.Errorf("%w: hierarchy drop (children): %v", ErrIndexInconsistent, err))
	}
	if hasParent {
		if err := s.hierarchy.Drop(parentID, id); err != nil {
			return s.poison(fmt.Errorf("%w: hierarchy drop (parent edge): %v", ErrIndexInconsistent, err))
		}
	}

	for _, a := range e.Attributes() {
		oid, err := s.schema.ResolveOID(a.ID)
		if err != nil {
			continue
		}
		if idx, ok := s.userIndices[oid]; ok {
			for _, v := range a.Values {
				nv, err := s.schema.NormalizeValue(a.ID, v)
				if err != nil {
					continue
				}
				if err := idx.Drop(nv, id); err != nil {
					return s.poison(fmt.Errorf("%w: user index %s drop: %v", ErrIndexInconsistent, a.ID, err))
				}
			}
		}
		if err := s.presence.Drop(oid, id); err != nil {
			return s.poison(fmt.Errorf("%w: presence drop: %v", ErrIndexInconsistent, err))
		}
	}

	if err := s.master.Delete(id); err != nil {
		return s.poison(fmt.Errorf("%w: master delete: %v", ErrIOFailure, err))
	}

	s.log.Debug().Uint64("id", id).Msg("entry deleted")
	return s.syncIfConfigured()
}
