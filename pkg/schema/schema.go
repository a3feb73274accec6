// Package schema supplies the schema-resolver collaborator contract that
// the storage engine consumes (spec §6): OID resolution for attribute ids,
// attribute-type lookup, and the value normalization used by pkg/dn and
// internal/partition to canonicalize values for index keys. The real schema/OID
// registry lives outside this module's scope; DefaultSchema is a small,
// in-memory stand-in that knows the handful of attributes the engine
// itself must reason about, plus room for a caller to register more.
package schema

import (
	"fmt"
	"strings"
	"sync"
)

// AttributeType describes one attribute as the engine needs to know it:
// its canonical OID, whether it is single-valued, and the normalizer used
// for its equality matching rule (the only matching rule the engine's
// index keys depend on; ordering/substring rules belong to the query
// planner, which is out of scope here).
type AttributeType struct {
	OID            string
	Name           string
	SingleValued   bool
	EqualityNormalize func(string) string
}

// Resolver is the schema collaborator contract (spec §6): resolveOid,
// lookupAttributeType, and a value-normalizer mapping. It also implements
// dn.Normalizer so a Resolver can be passed directly to dn.Normalize.
type Resolver interface {
	ResolveOID(attrID string) (string, error)
	LookupAttributeType(oid string) (AttributeType, error)
	NormalizeAttr(attrID string) (string, error)
	NormalizeValue(attrID, value string) (string, error)
}

// CaseIgnoreNormalize implements the caseIgnoreMatch equality rule used by
// most directory string attributes: lowercase plus collapsed whitespace.
func CaseIgnoreNormalize(v string) string {
	v = strings.Join(strings.Fields(v), " ")
	return strings.ToLower(v)
}

// DefaultSchema is a minimal, in-memory Resolver. Attribute ids (names or
// OIDs, case-insensitively) are registered up front; Register lets a
// caller extend it with the attributes their deployment indexes.
type DefaultSchema struct {
	mu        sync.RWMutex
	byNameOID map[string]string        // lowercased name/oid -> canonical OID
	byOID     map[string]AttributeType // canonical OID -> type
}

// NewDefaultSchema returns a resolver pre-seeded with the attributes the
// storage engine's own invariants reference: objectClass and
// aliasedObjectName, plus the common naming attributes used in this
// module's tests and CLI (cn, ou, dc, uid, sn).
func NewDefaultSchema() *DefaultSchema {
	s := &DefaultSchema{
		byNameOID: make(map[string]string),
		byOID:     make(map[string]AttributeType),
	}
	for _, at := range []AttributeType{
		{OID: "2.5.4.0", Name: "objectClass", SingleValued: false, EqualityNormalize: CaseIgnoreNormalize},
		{OID: "2.5.4.3", Name: "cn", SingleValued: false, EqualityNormalize: CaseIgnoreNormalize},
		{OID: "2.5.4.11", Name: "ou", SingleValued: false, EqualityNormalize: CaseIgnoreNormalize},
		{OID: "0.9.2342.19200300.100.1.25", Name: "dc", SingleValued: false, EqualityNormalize: CaseIgnoreNormalize},
		{OID: "0.9.2342.19200300.100.1.1", Name: "uid", SingleValued: false, EqualityNormalize: CaseIgnoreNormalize},
		{OID: "2.5.4.4", Name: "sn", SingleValued: false, EqualityNormalize: CaseIgnoreNormalize},
		{OID: "2.5.4.1", Name: "aliasedObjectName", SingleValued: true, EqualityNormalize: CaseIgnoreNormalize},
	} {
		s.Register(at)
	}
	return s
}

// Register adds or replaces an attribute type, indexed by both its OID and
// name (case-insensitively).
func (s *DefaultSchema) Register(at AttributeType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byOID[at.OID] = at
	s.byNameOID[strings.ToLower(at.Name)] = at.OID
	s.byNameOID[strings.ToLower(at.OID)] = at.OID
}

func (s *DefaultSchema) ResolveOID(attrID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	oid, ok := s.byNameOID[strings.ToLower(attrID)]
	if !ok {
		return "", fmt.Errorf("schema: unresolvable attribute %q", attrID)
	}
	return oid, nil
}

func (s *DefaultSchema) LookupAttributeType(oid string) (AttributeType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.byOID[oid]
	if !ok {
		return AttributeType{}, fmt.Errorf("schema: unknown attribute OID %q", oid)
	}
	return at, nil
}

// NormalizeAttr implements dn.Normalizer.
func (s *DefaultSchema) NormalizeAttr(attrID string) (string, error) {
	return s.ResolveOID(attrID)
}

// NormalizeValue implements dn.Normalizer.
func (s *DefaultSchema) NormalizeValue(attrID, value string) (string, error) {
	oid, err := s.ResolveOID(attrID)
	if err != nil {
		return "", err
	}
	at, err := s.LookupAttributeType(oid)
	if err != nil {
		return "", err
	}
	if at.EqualityNormalize == nil {
		return value, nil
	}
	return at.EqualityNormalize(value), nil
}

// NormalizerMapping returns a snapshot of oid -> equality normalizer,
// matching the "normalizerMapping()" collaborator operation in spec §6.
func (s *DefaultSchema) NormalizerMapping() map[string]func(string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]func(string) string, len(s.byOID))
	for oid, at := range s.byOID {
		out[oid] = at.EqualityNormalize
	}
	return out
}
