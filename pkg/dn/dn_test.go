package dn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	d, err := Parse("cn=alice,ou=people,dc=example")
	require.NoError(t, err)
	assert.Equal(t, 3, d.Size())
	assert.Equal(t, "cn=alice,ou=people,dc=example", d.String())
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)
	_, err = Parse("cn=alice,,dc=example")
	assert.Error(t, err)
}

func TestParseMultiValuedRDN(t *testing.T) {
	d, err := Parse("cn=alice+sn=smith,dc=example")
	require.NoError(t, err)
	require.Len(t, d.Rdn().AttrValues, 2)
	assert.Equal(t, "sn", d.Rdn().AttrValues[1].Attr)
}

func TestParseEscapedComma(t *testing.T) {
	d, err := Parse(`cn=Smith\, Alice,dc=example`)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Size())
	assert.Equal(t, "Smith, Alice", d.Rdn().AttrValues[0].Value)
}

func TestParentAndAppend(t *testing.T) {
	d := MustParse("cn=x,ou=a,ou=system")
	p := d.Parent()
	assert.Equal(t, "ou=a,ou=system", p.String())

	rebuilt := p.Append(d.Rdn())
	assert.True(t, Equal(rebuilt, d))
}

func TestGetPrefix(t *testing.T) {
	d := MustParse("cn=x,ou=a,ou=system")
	assert.Equal(t, "ou=system", d.GetPrefix(1).String())
	assert.Equal(t, "ou=a,ou=system", d.GetPrefix(2).String())
	assert.Equal(t, d.String(), d.GetPrefix(10).String())
}

func TestStartsWithAndDescendant(t *testing.T) {
	suffix := MustParse("ou=system")
	child := MustParse("cn=x,ou=system")
	assert.True(t, StartsWith(child, suffix))
	assert.True(t, IsDescendant(child, suffix))
	assert.False(t, IsDescendant(suffix, suffix))
	assert.True(t, StartsWith(suffix, suffix))
}

func TestIsSibling(t *testing.T) {
	a := MustParse("cn=a,ou=system")
	b := MustParse("cn=b,ou=system")
	c := MustParse("cn=c,ou=other,ou=system")
	assert.True(t, IsSibling(a, b))
	assert.False(t, IsSibling(a, c))
	assert.False(t, IsSibling(a, a))
}

func TestAppendDN(t *testing.T) {
	newParent := MustParse("ou=system")
	child := MustParse("cn=u")
	got := newParent.AppendDN(child)
	assert.Equal(t, "cn=u,ou=system", got.String())
}

type fakeNormalizer struct{}

func (fakeNormalizer) NormalizeAttr(attrID string) (string, error) {
	switch attrID {
	case "cn":
		return "2.5.4.3", nil
	case "ou":
		return "2.5.4.11", nil
	}
	return "", assertUnresolved(attrID)
}

func (fakeNormalizer) NormalizeValue(attrID, value string) (string, error) {
	return lower(value), nil
}

func assertUnresolved(attr string) error {
	return &unresolvedErr{attr}
}

type unresolvedErr struct{ attr string }

func (e *unresolvedErr) Error() string { return "unresolved attribute: " + e.attr }

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func TestNormalize(t *testing.T) {
	d := MustParse("CN=Alice,OU=People")
	norm, err := Normalize(d, fakeNormalizer{})
	require.NoError(t, err)
	assert.Equal(t, "2.5.4.3=alice,2.5.4.11=people", norm.String())
}

func TestNormalizeUnresolvedAttribute(t *testing.T) {
	d := MustParse("x-unknown=val")
	_, err := Normalize(d, fakeNormalizer{})
	assert.Error(t, err)
}
