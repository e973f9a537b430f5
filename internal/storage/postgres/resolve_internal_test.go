package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

func TestResolveCandidates_FixedOrderAndNormalization(t *testing.T) {
	got := resolveCandidates(types.ResolveQuery{
		ProviderID:       " 12345 ",
		ProviderIDSource: "LinkedIn",
		Handle:           "@Jane",
		Phone:            "+1 (555) 010-0000",
		Email:            " JANE@example.com",
	})

	require.Len(t, got, 4)
	assert.Equal(t, identityCandidate{types.IdentityEmail, "jane@example.com", ""}, got[0])
	assert.Equal(t, identityCandidate{types.IdentityPhone, "15550100000", ""}, got[1])
	assert.Equal(t, identityCandidate{types.IdentityHandle, "@jane", ""}, got[2])
	assert.Equal(t, identityCandidate{types.IdentityProviderID, "12345", "linkedin"}, got[3])
}

func TestResolveCandidates_SkipsEmpty(t *testing.T) {
	got := resolveCandidates(types.ResolveQuery{Phone: "call me", Handle: "jdoe", HandleProvider: " GitHub"})

	require.Len(t, got, 1, "a phone without digits is no identifier")
	assert.Equal(t, identityCandidate{types.IdentityHandle, "jdoe", "github"}, got[0])

	assert.Empty(t, resolveCandidates(types.ResolveQuery{}))
}

func TestConsentGaps(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	contacts := []types.Contact{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	consents := []types.ClientConsent{
		{ContactID: "a", ConsentType: types.ConsentHIPAA, Granted: true, GrantedAt: t0},
		{ContactID: "a", ConsentType: types.ConsentDataProcessing, Granted: true, GrantedAt: t0},
		{ContactID: "b", ConsentType: types.ConsentHIPAA, Granted: true, GrantedAt: t0},
		{ContactID: "b", ConsentType: types.ConsentHIPAA, Granted: false, GrantedAt: t0.Add(time.Hour)},
		{ContactID: "b", ConsentType: types.ConsentDataProcessing, Granted: true, GrantedAt: t0},
	}
	required := []types.ConsentType{types.ConsentHIPAA, types.ConsentDataProcessing}

	gaps := consentGaps(contacts, consents, required)

	require.Len(t, gaps, 2)
	assert.Equal(t, "b", gaps[0].Contact.ID)
	assert.Equal(t, []types.ConsentType{types.ConsentHIPAA}, gaps[0].Missing, "a later revocation cancels the grant")
	assert.Equal(t, "c", gaps[1].Contact.ID)
	assert.Equal(t, required, gaps[1].Missing)

	assert.NotNil(t, consentGaps(nil, nil, required))
}

func TestHipaaCompliance(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	res := hipaaCompliance("c1", []types.ClientConsent{
		{ID: "1", ConsentType: types.ConsentHIPAA, Granted: false, GrantedAt: t0},
		{ID: "2", ConsentType: types.ConsentHIPAA, Granted: true, GrantedAt: t0.Add(time.Minute)},
		{ID: "3", ConsentType: types.ConsentDataProcessing, Granted: true, GrantedAt: t0},
	})
	assert.True(t, res.Compliant)
	assert.Empty(t, res.Missing)
	assert.Equal(t, "2", res.Latest[types.ConsentHIPAA].ID)

	res = hipaaCompliance("c2", nil)
	assert.False(t, res.Compliant)
	assert.Equal(t, "c2", res.ContactID)
	assert.ElementsMatch(t, types.HIPAARequiredConsents, res.Missing)
}

func TestNewAuthUserRepository_TableName(t *testing.T) {
	for _, name := range []string{"", "users", "auth.users", "_idp.Accounts_2"} {
		_, err := NewAuthUserRepository(nil, name)
		assert.NoError(t, err, "%q", name)
	}
	for _, name := range []string{"users;drop", "auth.users.extra", "1users", "auth.", `"users"`} {
		_, err := NewAuthUserRepository(nil, name)
		assert.ErrorIs(t, err, storage.ErrInvalidInput, "%q", name)
	}

	r, err := NewAuthUserRepository(nil, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultAuthUsersTable, r.table)
}

func TestValidateAuthUser(t *testing.T) {
	assert.NoError(t, validateAuthUser(types.AuthUser{ID: "u1", Email: "a@b.c"}))
	assert.ErrorIs(t, validateAuthUser(types.AuthUser{ID: "u1"}), errMalformedAuthUser)
	assert.ErrorIs(t, validateAuthUser(types.AuthUser{Email: "a@b.c"}), errMalformedAuthUser)
}
