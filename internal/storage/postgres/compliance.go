package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const consentColumns = `id, user_id, contact_id, consent_type, granted, granted_at, version, created_at`

// consentNewestFirst orders consent rows the way every read returns them.
const consentNewestFirst = " ORDER BY granted_at DESC, created_at DESC, id DESC"

// consentOldestFirst feeds types.LatestConsents, where later rows win ties.
const consentOldestFirst = " ORDER BY granted_at ASC, created_at ASC, id ASC"

// ComplianceRepository implements storage.ComplianceRepository using
// PostgreSQL. Consent rows are append-only; for each (contact, type) the most
// recent row is authoritative.
type ComplianceRepository struct {
	h        Handle
	consents *table[types.ClientConsent]
	contacts *table[types.Contact]
}

// NewComplianceRepository creates a compliance repository on h.
func NewComplianceRepository(h Handle) *ComplianceRepository {
	return &ComplianceRepository{
		h:        h,
		consents: &table[types.ClientConsent]{name: "client_consents", columns: consentColumns, scan: scanConsent},
		contacts: &table[types.Contact]{name: "contacts", columns: contactColumns, scan: scanContact},
	}
}

// RecordConsent appends a grant or revocation for one of the user's contacts.
func (r *ComplianceRepository) RecordConsent(ctx context.Context, consent *types.ClientConsent) (*types.ClientConsent, error) {
	const op = "postgres: record consent"
	if consent == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := requireUser(op, consent.UserID); err != nil {
		return nil, err
	}
	if consent.ContactID == "" {
		return nil, fmt.Errorf("%s: %w: contact ID is required", op, storage.ErrInvalidInput)
	}
	if !types.IsValidConsentType(consent.ConsentType) {
		return nil, fmt.Errorf("%s: %w: unknown consent type %q", op, storage.ErrInvalidInput, consent.ConsentType)
	}

	c := *consent
	stamp(&c.CreatedAt, &c.GrantedAt)

	query := `
		INSERT INTO client_consents (id, user_id, contact_id, consent_type, granted, granted_at, version, created_at)
		SELECT $1::text, $2::text, $3::text, $4::text, $5::boolean, $6::timestamptz, $7::text, $8::timestamptz
		WHERE EXISTS (SELECT 1 FROM contacts WHERE id = $3 AND user_id = $2)
		RETURNING ` + consentColumns

	created, err := r.consents.insertQuery(ctx, r.h, op, query,
		newID(c.ID), c.UserID, c.ContactID, string(c.ConsentType), c.Granted, c.GrantedAt,
		nullableString(c.Version), c.CreatedAt)
	if errors.Is(err, storage.ErrNoRowsReturned) {
		return nil, fmt.Errorf("%s: %w: contact %s not found", op, storage.ErrInvalidInput, c.ContactID)
	}
	return created, err
}

// GetConsentStatus returns the current consent row of each type recorded for
// the contact, newest first.
func (r *ComplianceRepository) GetConsentStatus(ctx context.Context, userID, contactID string) ([]types.ClientConsent, error) {
	const op = "postgres: get consent status"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + consentColumns + ` FROM (
			SELECT DISTINCT ON (consent_type) ` + consentColumns + `
			FROM client_consents
			WHERE user_id = $1 AND contact_id = $2
			ORDER BY consent_type, granted_at DESC, created_at DESC, id DESC
		) latest` + consentNewestFirst

	return r.consents.query(ctx, r.h, op, query, userID, contactID)
}

// GetConsentHistory returns every consent row of the contact, newest first.
func (r *ComplianceRepository) GetConsentHistory(ctx context.Context, userID, contactID string) ([]types.ClientConsent, error) {
	const op = "postgres: get consent history"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	query := "SELECT " + consentColumns + " FROM client_consents WHERE user_id = $1 AND contact_id = $2" + consentNewestFirst
	return r.consents.query(ctx, r.h, op, query, userID, contactID)
}

// GetContactsMissingConsents returns the user's contacts whose current consents
// do not grant every type in required, each with the types it lacks. A later
// revocation cancels an earlier grant.
func (r *ComplianceRepository) GetContactsMissingConsents(ctx context.Context, userID string, required []types.ConsentType) ([]types.ContactConsentGap, error) {
	const op = "postgres: get contacts missing consents"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	for _, t := range required {
		if !types.IsValidConsentType(t) {
			return nil, fmt.Errorf("%s: %w: unknown consent type %q", op, storage.ErrInvalidInput, t)
		}
	}
	if len(required) == 0 {
		return []types.ContactConsentGap{}, nil
	}

	contacts, err := r.contacts.query(ctx, r.h, op,
		"SELECT "+contactColumns+" FROM contacts WHERE user_id = $1 ORDER BY created_at ASC, id ASC", userID)
	if err != nil {
		return nil, err
	}
	consents, err := r.consents.query(ctx, r.h, op,
		"SELECT "+consentColumns+" FROM client_consents WHERE user_id = $1 AND consent_type = ANY($2)"+consentOldestFirst,
		userID, textArray(consentTypeStrings(required)))
	if err != nil {
		return nil, err
	}

	return consentGaps(contacts, consents, required), nil
}

// CheckHipaaCompliance evaluates the fixed HIPAA policy (hipaa and
// data_processing both currently granted) for one contact.
func (r *ComplianceRepository) CheckHipaaCompliance(ctx context.Context, userID, contactID string) (*types.HIPAACompliance, error) {
	const op = "postgres: check hipaa compliance"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}

	query := "SELECT " + consentColumns + " FROM client_consents WHERE user_id = $1 AND contact_id = $2 AND consent_type = ANY($3)" +
		consentOldestFirst
	rows, err := r.consents.query(ctx, r.h, op, query, userID, contactID,
		textArray(consentTypeStrings(types.HIPAARequiredConsents)))
	if err != nil {
		return nil, err
	}
	return hipaaCompliance(contactID, rows), nil
}

// consentGaps collapses consents latest-wins per contact and reports contacts
// missing any required type, in the order of contacts.
func consentGaps(contacts []types.Contact, consents []types.ClientConsent, required []types.ConsentType) []types.ContactConsentGap {
	byContact := make(map[string][]types.ClientConsent)
	for _, c := range consents {
		byContact[c.ContactID] = append(byContact[c.ContactID], c)
	}

	gaps := make([]types.ContactConsentGap, 0)
	for _, contact := range contacts {
		missing := types.MissingConsents(types.LatestConsents(byContact[contact.ID]), required)
		if len(missing) > 0 {
			gaps = append(gaps, types.ContactConsentGap{Contact: contact, Missing: missing})
		}
	}
	return gaps
}

func hipaaCompliance(contactID string, rows []types.ClientConsent) *types.HIPAACompliance {
	latest := types.LatestConsents(rows)
	missing := types.MissingConsents(latest, types.HIPAARequiredConsents)
	return &types.HIPAACompliance{
		ContactID: contactID,
		Compliant: len(missing) == 0,
		Missing:   missing,
		Latest:    latest,
	}
}

func consentTypeStrings(ts []types.ConsentType) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

func scanConsent(s scanner) (types.ClientConsent, error) {
	var (
		c           types.ClientConsent
		consentType string
		version     sql.NullString
	)
	err := s.Scan(&c.ID, &c.UserID, &c.ContactID, &consentType, &c.Granted, &c.GrantedAt, &version, &c.CreatedAt)
	if err != nil {
		return c, err
	}
	c.ConsentType = types.ConsentType(consentType)
	c.Version = version.String
	return c, nil
}
