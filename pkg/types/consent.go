package types

import "time"

// ConsentType is a category of consent a contact can grant or revoke.
type ConsentType string

// Consent types
const (
	ConsentDataProcessing ConsentType = "data_processing"
	ConsentMarketing      ConsentType = "marketing"
	ConsentHIPAA          ConsentType = "hipaa"
	ConsentPhotography    ConsentType = "photography"
)

// HIPAARequiredConsents is the fixed consent policy CheckHipaaCompliance
// enforces. It is not configurable.
var HIPAARequiredConsents = []ConsentType{ConsentHIPAA, ConsentDataProcessing}

// IsValidConsentType reports whether t is a known consent type.
func IsValidConsentType(t ConsentType) bool {
	switch t {
	case ConsentDataProcessing, ConsentMarketing, ConsentHIPAA, ConsentPhotography:
		return true
	}
	return false
}

// ClientConsent is one grant or revocation of a consent type. Several rows may
// exist per (contact, type); the most recent one is authoritative.
type ClientConsent struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	ContactID   string      `json:"contact_id"`
	ConsentType ConsentType `json:"consent_type"`
	Granted     bool        `json:"granted"`
	GrantedAt   time.Time   `json:"granted_at"`
	Version     string      `json:"version,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ContactConsentGap is a contact lacking one or more required consents.
type ContactConsentGap struct {
	Contact Contact       `json:"contact"`
	Missing []ConsentType `json:"missing"`
}

// HIPAACompliance is the outcome of a HIPAA consent check for one contact.
type HIPAACompliance struct {
	ContactID string                        `json:"contact_id"`
	Compliant bool                          `json:"compliant"`
	Missing   []ConsentType                 `json:"missing,omitempty"`
	Latest    map[ConsentType]ClientConsent `json:"latest,omitempty"`
}

// LatestConsents collapses consent rows to the most recent row per type.
// Recency is GrantedAt, then CreatedAt, then input order (later wins).
func LatestConsents(rows []ClientConsent) map[ConsentType]ClientConsent {
	latest := make(map[ConsentType]ClientConsent, len(rows))
	for _, c := range rows {
		cur, ok := latest[c.ConsentType]
		if !ok || !consentBefore(c, cur) {
			latest[c.ConsentType] = c
		}
	}
	return latest
}

// consentBefore reports whether a is strictly older than b.
func consentBefore(a, b ClientConsent) bool {
	if !a.GrantedAt.Equal(b.GrantedAt) {
		return a.GrantedAt.Before(b.GrantedAt)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// MissingConsents returns the required types whose latest consent is absent or
// not granted, in the order given by required.
func MissingConsents(latest map[ConsentType]ClientConsent, required []ConsentType) []ConsentType {
	var missing []ConsentType
	for _, t := range required {
		c, ok := latest[t]
		if !ok || !c.Granted {
			missing = append(missing, t)
		}
	}
	return missing
}
