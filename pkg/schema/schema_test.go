package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchemaResolvesKnownAttributes(t *testing.T) {
	s := NewDefaultSchema()

	oid, err := s.ResolveOID("CN")
	require.NoError(t, err)
	assert.Equal(t, "2.5.4.3", oid)

	at, err := s.LookupAttributeType(oid)
	require.NoError(t, err)
	assert.Equal(t, "cn", at.Name)
}

func TestDefaultSchemaUnresolvedAttribute(t *testing.T) {
	s := NewDefaultSchema()
	_, err := s.ResolveOID("x-made-up")
	assert.Error(t, err)
}

func TestRegisterCustomAttribute(t *testing.T) {
	s := NewDefaultSchema()
	s.Register(AttributeType{OID: "1.2.3.4", Name: "employeeNumber", SingleValued: true, EqualityNormalize: CaseIgnoreNormalize})

	oid, err := s.ResolveOID("employeeNumber")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", oid)

	val, err := s.NormalizeValue("employeeNumber", "  ABC   123 ")
	require.NoError(t, err)
	assert.Equal(t, "abc 123", val)
}

func TestCaseIgnoreNormalize(t *testing.T) {
	assert.Equal(t, "alice smith", CaseIgnoreNormalize("  Alice   Smith "))
}
