package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/crmstore/pkg/types"
)

func TestNormalizeIdentityValue(t *testing.T) {
	tests := []struct {
		name  string
		kind  types.IdentityKind
		value string
		want  string
	}{
		{"email is lowercased and trimmed", types.IdentityEmail, "  Jane.Doe@Example.COM ", "jane.doe@example.com"},
		{"phone keeps digits only", types.IdentityPhone, "+1 (555) 010-0000", "15550100000"},
		{"phone drops non-ascii digits", types.IdentityPhone, "٣555", "555"},
		{"handle is lowercased", types.IdentityHandle, " @JaneDoe ", "@janedoe"},
		{"provider id is only trimmed", types.IdentityProviderID, "  AbC-123 ", "AbC-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, types.NormalizeIdentityValue(tt.kind, tt.value))
		})
	}
}

func TestNormalizePhone_FormatsMatchOnlyWithSameDigits(t *testing.T) {
	assert.Equal(t, types.NormalizePhone("+1 (555) 010-0000"), types.NormalizePhone("15550100000"))
	assert.NotEqual(t, types.NormalizePhone("555-0100"), types.NormalizePhone("+1 555-0100"))
	assert.Equal(t, "", types.NormalizePhone("ext."))
}

func TestIdentityKinds(t *testing.T) {
	for _, k := range []types.IdentityKind{types.IdentityEmail, types.IdentityPhone, types.IdentityHandle, types.IdentityProviderID} {
		assert.True(t, types.IsValidIdentityKind(k), k)
	}
	assert.False(t, types.IsValidIdentityKind("fax"))
	assert.False(t, types.IsValidIdentityKind(""))

	assert.True(t, types.KindTakesProvider(types.IdentityHandle))
	assert.True(t, types.KindTakesProvider(types.IdentityProviderID))
	assert.False(t, types.KindTakesProvider(types.IdentityEmail))
	assert.False(t, types.KindTakesProvider(types.IdentityPhone))
}

func TestNormalizeProvider(t *testing.T) {
	assert.Equal(t, "linkedin", types.NormalizeProvider(" LinkedIn "))
}
