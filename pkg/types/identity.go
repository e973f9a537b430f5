package types

import (
	"strings"
	"time"
	"unicode"
)

// IdentityKind is the kind of external identifier bound to a contact.
type IdentityKind string

// Identity kinds
const (
	IdentityEmail      IdentityKind = "email"
	IdentityPhone      IdentityKind = "phone"
	IdentityHandle     IdentityKind = "handle"
	IdentityProviderID IdentityKind = "provider_id"
)

// IsValidIdentityKind reports whether k is one of the four identity kinds.
func IsValidIdentityKind(k IdentityKind) bool {
	switch k {
	case IdentityEmail, IdentityPhone, IdentityHandle, IdentityProviderID:
		return true
	}
	return false
}

// KindTakesProvider reports whether identities of kind k are qualified by a
// provider. Email and phone identities never store one.
func KindTakesProvider(k IdentityKind) bool {
	return k == IdentityHandle || k == IdentityProviderID
}

// ContactIdentity is an alternate identifier bound to exactly one contact at a
// time. (UserID, Kind, Value, Provider) is unique.
type ContactIdentity struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	ContactID string       `json:"contact_id"`
	Kind      IdentityKind `json:"kind"`
	Value     string       `json:"value"`
	Provider  string       `json:"provider,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ResolveQuery holds the identifiers a caller knows about a person. Fields are
// tried in the order email, phone, handle, provider id.
type ResolveQuery struct {
	Email            string
	Phone            string
	Handle           string
	HandleProvider   string
	ProviderID       string
	ProviderIDSource string
}

// DuplicateIdentity is one identity value bound to more than one contact.
type DuplicateIdentity struct {
	Kind       IdentityKind `json:"kind"`
	Value      string       `json:"value"`
	Provider   string       `json:"provider,omitempty"`
	ContactIDs []string     `json:"contact_ids"`
}

// MergeResult reports what MergeIdentities did.
type MergeResult struct {
	Moved   int64 `json:"moved"`
	Dropped int64 `json:"dropped"`
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps only the digits of a phone number.
// This is not E.164 normalization: "+1 (555) 010-0000" and "15550100000" match,
// "555-0100" and "+1 555-0100" do not.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeHandle lowercases and trims a social handle.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// NormalizeProvider lowercases and trims a provider name.
func NormalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// NormalizeIdentityValue applies the normalization rule for kind.
// Provider ids are opaque and only trimmed.
func NormalizeIdentityValue(kind IdentityKind, value string) string {
	switch kind {
	case IdentityEmail:
		return NormalizeEmail(value)
	case IdentityPhone:
		return NormalizePhone(value)
	case IdentityHandle:
		return NormalizeHandle(value)
	default:
		return strings.TrimSpace(value)
	}
}
