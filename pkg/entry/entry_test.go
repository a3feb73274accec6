package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddGetHasValue(t *testing.T) {
	e := New()
	e.Add("cn", "alice")
	e.Add("objectClass", "top", "person")

	require.True(t, e.Has("cn"))
	require.True(t, e.HasValue("objectClass", "person"))
	assert.False(t, e.HasValue("cn", "bob"))
	assert.Len(t, e.Attributes(), 2)
}

func TestRemoveValueVsWholeAttribute(t *testing.T) {
	e := New()
	e.Add("mail", "a@x.com", "b@x.com")

	e.Remove("mail", "a@x.com")
	require.True(t, e.Has("mail"))
	assert.Equal(t, []string{"b@x.com"}, e.Get("mail").Values)

	e.Remove("mail")
	assert.False(t, e.Has("mail"))
}

func TestRemoveLastValueDropsAttribute(t *testing.T) {
	e := New()
	e.Add("mail", "a@x.com")
	e.Remove("mail", "a@x.com")
	assert.False(t, e.Has("mail"))
}

func TestRemoveOnMissingAttributeIsNoop(t *testing.T) {
	e := New()
	assert.NotPanics(t, func() { e.Remove("mail", "a@x.com") })
	assert.False(t, e.Has("mail"))
}

func TestValidateRequiresObjectClass(t *testing.T) {
	e := New()
	assert.Error(t, e.Validate())
	e.Add("objectClass", "top")
	assert.NoError(t, e.Validate())
}

func TestIsAliasAndAliasedObjectName(t *testing.T) {
	e := New()
	e.Add("objectClass", "top", "alias")
	e.Add("aliasedObjectName", "cn=target,ou=system")

	assert.True(t, e.IsAlias())
	target, ok := e.AliasedObjectName()
	require.True(t, ok)
	assert.Equal(t, "cn=target,ou=system", target)
}

func TestEqualIgnoresOrder(t *testing.T) {
	a := New()
	a.Add("objectClass", "top", "person")
	a.Add("cn", "alice")

	b := New()
	b.Add("cn", "alice")
	b.Add("objectClass", "person", "top")

	assert.True(t, Equal(a, b))
}

func TestCloneIsIndependent(t *testing.T) {
	a := New()
	a.Add("cn", "alice")
	b := a.Clone()
	b.Add("cn", "bob")

	assert.Equal(t, []string{"alice"}, a.Get("cn").Values)
	assert.Equal(t, []string{"alice", "bob"}, b.Get("cn").Values)
}

func TestJSONCodecRoundTrip(t *testing.T) {
	e := New()
	e.Add("objectClass", "top", "person")
	e.Add("cn", "alice")
	e.Add("sn", "A")

	codec := JSONCodec{}
	blob, err := codec.Encode(e)
	require.NoError(t, err)

	decoded, err := codec.Decode(blob)
	require.NoError(t, err)
	assert.True(t, Equal(e, decoded))
}
