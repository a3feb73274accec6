package partition

import (
	"testing"

	"github.com/cuemby/dirstore/pkg/entry"
	"github.com/cuemby/dirstore/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	res := schema.NewDefaultSchema()
	suffixEntry := entry.New()
	suffixEntry.Add("objectClass", "top", "organizationalUnit")
	suffixEntry.Add("ou", "system")

	cfg := Config{
		WorkingDirectory: t.TempDir(),
		Name:             "test",
		SuffixDN:         "ou=system",
		ContextEntry:     suffixEntry,
		IndexedAttributes: []IndexedAttribute{
			{AttrID: "cn"},
			{AttrID: "ou"},
			{AttrID: "sn"},
		},
	}
	s, err := Open(cfg, res, entry.JSONCodec{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func personEntry(cn, sn string) *entry.Entry {
	e := entry.New()
	e.Add("objectClass", "top", "person")
	e.Add("cn", cn)
	e.Add("sn", sn)
	return e
}

func aliasEntry(target string) *entry.Entry {
	e := entry.New()
	e.Add("objectClass", "top", "alias")
	e.Add("aliasedObjectName", target)
	return e
}

// S1: Add-and-lookup.
func TestAddAndLookup(t *testing.T) {
	s := newTestStore(t)

	in := personEntry("a", "A")
	id, err := s.Add("cn=a,ou=system", in)
	require.NoError(t, err)
	assert.NotZero(t, id)

	gotID, err := s.GetEntryId("cn=a,ou=system")
	require.NoError(t, err)
	assert.Equal(t, id, gotID)

	got, err := s.Lookup(id)
	require.NoError(t, err)
	assert.True(t, entry.Equal(in, got))
}

// S2: Hierarchy.
func TestHierarchyListAndChildCount(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Add("cn=a,ou=system", personEntry("a", "A"))
	require.NoError(t, err)

	rootID, err := s.GetEntryId("ou=system")
	require.NoError(t, err)

	children, err := s.List(rootID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{id}, children)

	n, err := s.GetChildCount(rootID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// S3: Alias cycle rejected (alias to self).
func TestAliasToSelfRejected(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Add("cn=x,ou=system", aliasEntry("cn=x,ou=system"))
	require.ErrorIs(t, err, ErrAliasToSelf)

	_, err = s.GetEntryId("cn=x,ou=system")
	require.ErrorIs(t, err, ErrNoSuchObject, "rejected add must leave master/indices unchanged")
}

// S4: Alias chain rejected.
func TestAliasChainRejected(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Add("cn=a,ou=system", personEntry("a", "A"))
	require.NoError(t, err)

	_, err = s.Add("cn=b,ou=system", aliasEntry("cn=a,ou=system"))
	require.NoError(t, err)

	_, err = s.Add("cn=c,ou=system", aliasEntry("cn=b,ou=system"))
	require.ErrorIs(t, err, ErrAliasChain)
}

// S5: Alias scope indices.
func TestAliasScopeIndices(t *testing.T) {
	s := newTestStore(t)

	tOU := entry.New()
	tOU.Add("objectClass", "top", "organizationalUnit")
	tOU.Add("ou", "t")
	_, err := s.Add("ou=t,ou=system", tOU)
	require.NoError(t, err)

	targetID, err := s.Add("cn=u,ou=t,ou=system", personEntry("u", "U"))
	require.NoError(t, err)

	_, err = s.Add("cn=al,ou=system", aliasEntry("cn=u,ou=t,ou=system"))
	require.NoError(t, err)

	rootID, err := s.GetEntryId("ou=system")
	require.NoError(t, err)

	oneOK, err := s.oneAlias.HasValue(rootID, targetID)
	require.NoError(t, err)
	assert.True(t, oneOK, "target is not a sibling of the alias, must be in oneAlias")

	subOK, err := s.subAlias.HasValue(rootID, targetID)
	require.NoError(t, err)
	assert.True(t, subOK)
}

// S6: Move preserves alias scope.
func TestMovePreservesAliasScope(t *testing.T) {
	s := newTestStore(t)

	tOU := entry.New()
	tOU.Add("objectClass", "top", "organizationalUnit")
	tOU.Add("ou", "t")
	_, err := s.Add("ou=t,ou=system", tOU)
	require.NoError(t, err)

	targetID, err := s.Add("cn=u,ou=t,ou=system", personEntry("u", "U"))
	require.NoError(t, err)

	aliasID, err := s.Add("cn=al,ou=system", aliasEntry("cn=u,ou=t,ou=system"))
	require.NoError(t, err)

	require.NoError(t, s.Move("cn=u,ou=t,ou=system", "ou=system", "", false))

	newTargetDn, ok, err := s.alias.ReverseLookup(aliasID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2.5.4.3=u,2.5.4.11=system", newTargetDn)

	newTargetID, err := s.GetEntryId("cn=u,ou=system")
	require.NoError(t, err)
	assert.Equal(t, targetID, newTargetID, "move must preserve the entry's id")

	rootID, err := s.GetEntryId("ou=system")
	require.NoError(t, err)
	oneOK, err := s.oneAlias.HasValue(rootID, newTargetID)
	require.NoError(t, err)
	assert.False(t, oneOK, "target is now a sibling of the alias, must not remain in oneAlias")
}

// S7: Rename recurses.
func TestRenameRecursesToChildren(t *testing.T) {
	s := newTestStore(t)

	aOU := entry.New()
	aOU.Add("objectClass", "top", "organizationalUnit")
	aOU.Add("ou", "a")
	_, err := s.Add("ou=a,ou=system", aOU)
	require.NoError(t, err)

	childID, err := s.Add("cn=x,ou=a,ou=system", personEntry("x", "X"))
	require.NoError(t, err)

	require.NoError(t, s.Rename("ou=a,ou=system", "ou=b", true))

	childDn, err := s.GetEntryUpdn(childID)
	require.NoError(t, err)
	assert.Equal(t, "cn=x,ou=b,ou=system", childDn)

	_, err = s.GetEntryId("cn=x,ou=a,ou=system")
	assert.ErrorIs(t, err, ErrNoSuchObject)
}

func TestDeleteRejectsEntryWithChildren(t *testing.T) {
	s := newTestStore(t)

	aOU := entry.New()
	aOU.Add("objectClass", "top", "organizationalUnit")
	aOU.Add("ou", "a")
	parentID, err := s.Add("ou=a,ou=system", aOU)
	require.NoError(t, err)

	_, err = s.Add("cn=x,ou=a,ou=system", personEntry("x", "X"))
	require.NoError(t, err)

	err = s.Delete(parentID)
	assert.Error(t, err)
}

func TestModifyAddRemoveReplace(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Add("cn=a,ou=system", personEntry("a", "A"))
	require.NoError(t, err)

	require.NoError(t, s.Modify("cn=a,ou=system", ModAdd, map[string][]string{"sn": {"Z"}}))
	e, err := s.Lookup(id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "Z"}, e.Get("sn").Values)

	require.NoError(t, s.Modify("cn=a,ou=system", ModRemove, map[string][]string{"sn": {"A"}}))
	e, err = s.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Z"}, e.Get("sn").Values)

	require.NoError(t, s.Modify("cn=a,ou=system", ModReplace, map[string][]string{"sn": {"Q", "R"}}))
	e, err = s.Lookup(id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Q", "R"}, e.Get("sn").Values)
}

func TestPresenceCompleteness(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Add("cn=a,ou=system", personEntry("a", "A"))
	require.NoError(t, err)

	oid, err := s.schema.ResolveOID("sn")
	require.NoError(t, err)
	has, err := s.presence.HasValue(oid, id)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.Modify("cn=a,ou=system", ModRemove, map[string][]string{"sn": nil}))

	has, err = s.presence.HasValue(oid, id)
	require.NoError(t, err)
	assert.False(t, has)
}
