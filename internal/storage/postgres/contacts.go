package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const contactColumns = `id, user_id, display_name, primary_email, primary_phone, company,
	lifecycle_stage, tags, confidence_score, notes, created_at, updated_at`

// ContactRepository implements storage.ContactRepository using PostgreSQL.
type ContactRepository struct {
	h Handle
	t *table[types.Contact]
}

// NewContactRepository creates a contact repository on h.
func NewContactRepository(h Handle) *ContactRepository {
	return &ContactRepository{
		h: h,
		t: &table[types.Contact]{
			name:    "contacts",
			columns: contactColumns,
			scan:    scanContact,
			sortable: map[string]bool{
				"created_at":       true,
				"updated_at":       true,
				"display_name":     true,
				"lifecycle_stage":  true,
				"confidence_score": true,
			},
			defaultSort: "created_at",
			touch:       true,
		},
	}
}

// List returns one page of the user's contacts matching filter.
func (r *ContactRepository) List(ctx context.Context, userID string, filter types.ContactFilter, opts storage.ListOptions) (*storage.PaginatedResult[types.Contact], error) {
	const op = "postgres: list contacts"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}

	w := (&where{}).eq("user_id", userID).
		eqIf("lifecycle_stage", string(filter.LifecycleStage)).
		anyOf("id", filter.IDs).
		overlaps("tags", filter.Tags).
		ilikeAny(filter.Search, "display_name", "primary_email", "primary_phone", "company")

	return r.t.list(ctx, r.h, op, w, opts)
}

// Get retrieves a contact by ID. Returns nil when it does not exist.
func (r *ContactRepository) Get(ctx context.Context, userID, id string) (*types.Contact, error) {
	return r.t.get(ctx, r.h, "postgres: get contact", (&where{}).eq("user_id", userID).eq("id", id))
}

// GetMany retrieves the contacts with the given IDs. Unknown IDs are skipped.
func (r *ContactRepository) GetMany(ctx context.Context, userID string, ids []string) ([]types.Contact, error) {
	if len(ids) == 0 {
		return []types.Contact{}, nil
	}
	query := "SELECT " + contactColumns + " FROM contacts WHERE user_id = $1 AND id = ANY($2) ORDER BY created_at DESC"
	return r.t.query(ctx, r.h, "postgres: get contacts", query, userID, pq.Array(ids))
}

// Create inserts a contact and returns the stored row.
func (r *ContactRepository) Create(ctx context.Context, contact *types.Contact) (*types.Contact, error) {
	const op = "postgres: create contact"
	if contact == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := requireUser(op, contact.UserID); err != nil {
		return nil, err
	}
	if contact.DisplayName == "" {
		return nil, fmt.Errorf("%s: %w: display name is required", op, storage.ErrInvalidInput)
	}
	if !types.IsValidLifecycleStage(contact.LifecycleStage) {
		return nil, fmt.Errorf("%s: %w: unknown lifecycle stage %q", op, storage.ErrInvalidInput, contact.LifecycleStage)
	}

	c := *contact
	stamp(&c.CreatedAt, &c.UpdatedAt)

	return r.t.insert(ctx, r.h, op,
		[]string{"id", "user_id", "display_name", "primary_email", "primary_phone", "company",
			"lifecycle_stage", "tags", "confidence_score", "notes", "created_at", "updated_at"},
		newID(c.ID), c.UserID, c.DisplayName,
		nullableString(c.PrimaryEmail), nullableString(c.PrimaryPhone), nullableString(c.Company),
		nullableString(string(c.LifecycleStage)), textArray(c.Tags), c.ConfidenceScore,
		nullableString(c.Notes), c.CreatedAt, c.UpdatedAt,
	)
}

// Update applies p to a contact. Returns nil when the contact does not exist.
func (r *ContactRepository) Update(ctx context.Context, userID, id string, p types.ContactPatch) (*types.Contact, error) {
	const op = "postgres: update contact"
	if p.LifecycleStage != nil && !types.IsValidLifecycleStage(*p.LifecycleStage) {
		return nil, fmt.Errorf("%s: %w: unknown lifecycle stage %q", op, storage.ErrInvalidInput, *p.LifecycleStage)
	}

	var set patch
	if p.DisplayName != nil {
		set.set("display_name", *p.DisplayName)
	}
	if p.PrimaryEmail != nil {
		set.set("primary_email", nullableString(*p.PrimaryEmail))
	}
	if p.PrimaryPhone != nil {
		set.set("primary_phone", nullableString(*p.PrimaryPhone))
	}
	if p.Company != nil {
		set.set("company", nullableString(*p.Company))
	}
	if p.LifecycleStage != nil {
		set.set("lifecycle_stage", nullableString(string(*p.LifecycleStage)))
	}
	if p.Tags != nil {
		set.set("tags", textArray(*p.Tags))
	}
	if p.ConfidenceScore != nil {
		set.set("confidence_score", *p.ConfidenceScore)
	}
	if p.Notes != nil {
		set.set("notes", nullableString(*p.Notes))
	}

	return r.t.update(ctx, r.h, op, &set, (&where{}).eq("user_id", userID).eq("id", id))
}

// Delete removes a contact. Its identities and consents cascade.
func (r *ContactRepository) Delete(ctx context.Context, userID, id string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: delete contact", (&where{}).eq("user_id", userID).eq("id", id))
}

// DeleteAllForUser removes every contact the user owns.
func (r *ContactRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	const op = "postgres: delete contacts for user"
	if err := requireUser(op, userID); err != nil {
		return 0, err
	}
	return r.t.delete(ctx, r.h, op, (&where{}).eq("user_id", userID))
}

func scanContact(s scanner) (types.Contact, error) {
	var (
		c       types.Contact
		email   sql.NullString
		phone   sql.NullString
		company sql.NullString
		stage   sql.NullString
		notes   sql.NullString
	)
	err := s.Scan(
		&c.ID, &c.UserID, &c.DisplayName, &email, &phone, &company,
		&stage, pq.Array(&c.Tags), &c.ConfidenceScore, &notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	c.PrimaryEmail = email.String
	c.PrimaryPhone = phone.String
	c.Company = company.String
	c.LifecycleStage = types.LifecycleStage(stage.String)
	c.Notes = notes.String
	return c, nil
}
