package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const interactionColumns = `id, user_id, contact_id, kind, direction, subject, body, occurred_at, metadata, created_at, updated_at`

// InteractionRepository implements storage.InteractionRepository using PostgreSQL.
type InteractionRepository struct {
	h Handle
	t *table[types.Interaction]
}

// NewInteractionRepository creates an interaction repository on h.
func NewInteractionRepository(h Handle) *InteractionRepository {
	return &InteractionRepository{
		h: h,
		t: &table[types.Interaction]{
			name:        "interactions",
			columns:     interactionColumns,
			scan:        scanInteraction,
			sortable:    map[string]bool{"occurred_at": true, "created_at": true, "updated_at": true, "kind": true},
			defaultSort: "occurred_at",
			touch:       true,
		},
	}
}

// List returns one page of the user's interactions matching filter.
func (r *InteractionRepository) List(ctx context.Context, userID string, filter types.InteractionFilter, opts storage.ListOptions) (*storage.PaginatedResult[types.Interaction], error) {
	const op = "postgres: list interactions"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	w := (&where{}).eq("user_id", userID).
		eqIf("contact_id", filter.ContactID).
		anyOf("kind", filter.Kinds).
		after("occurred_at", filter.OccurredAfter).
		before("occurred_at", filter.OccurredBefore)
	return r.t.list(ctx, r.h, op, w, opts)
}

// Get retrieves an interaction by ID. Returns nil when it does not exist.
func (r *InteractionRepository) Get(ctx context.Context, userID, id string) (*types.Interaction, error) {
	return r.t.get(ctx, r.h, "postgres: get interaction", (&where{}).eq("user_id", userID).eq("id", id))
}

// Create inserts an interaction and returns the stored row.
func (r *InteractionRepository) Create(ctx context.Context, in *types.Interaction) (*types.Interaction, error) {
	const op = "postgres: create interaction"
	if in == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := requireUser(op, in.UserID); err != nil {
		return nil, err
	}
	if in.Kind == "" {
		return nil, fmt.Errorf("%s: %w: kind is required", op, storage.ErrInvalidInput)
	}

	it := *in
	stamp(&it.CreatedAt, &it.UpdatedAt)
	if it.OccurredAt.IsZero() {
		it.OccurredAt = it.CreatedAt
	}
	metadata, err := jsonValue(it.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return r.t.insert(ctx, r.h, op,
		[]string{"id", "user_id", "contact_id", "kind", "direction", "subject", "body", "occurred_at", "metadata", "created_at", "updated_at"},
		newID(it.ID), it.UserID, nullableString(it.ContactID), it.Kind, nullableString(it.Direction),
		nullableString(it.Subject), nullableString(it.Body), it.OccurredAt, metadata, it.CreatedAt, it.UpdatedAt,
	)
}

// Update applies p to an interaction. Returns nil when it does not exist.
func (r *InteractionRepository) Update(ctx context.Context, userID, id string, p types.InteractionPatch) (*types.Interaction, error) {
	const op = "postgres: update interaction"

	var set patch
	if p.ContactID != nil {
		set.set("contact_id", nullableString(*p.ContactID))
	}
	if p.Kind != nil {
		set.set("kind", *p.Kind)
	}
	if p.Direction != nil {
		set.set("direction", nullableString(*p.Direction))
	}
	if p.Subject != nil {
		set.set("subject", nullableString(*p.Subject))
	}
	if p.Body != nil {
		set.set("body", nullableString(*p.Body))
	}
	if p.OccurredAt != nil {
		set.set("occurred_at", *p.OccurredAt)
	}
	if p.Metadata != nil {
		metadata, err := jsonValue(*p.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		set.set("metadata", metadata)
	}
	return r.t.update(ctx, r.h, op, &set, (&where{}).eq("user_id", userID).eq("id", id))
}

// Delete removes an interaction.
func (r *InteractionRepository) Delete(ctx context.Context, userID, id string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: delete interaction", (&where{}).eq("user_id", userID).eq("id", id))
}

// DeleteAllForUser removes every interaction the user owns.
func (r *InteractionRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	const op = "postgres: delete interactions for user"
	if err := requireUser(op, userID); err != nil {
		return 0, err
	}
	return r.t.delete(ctx, r.h, op, (&where{}).eq("user_id", userID))
}

func scanInteraction(s scanner) (types.Interaction, error) {
	var (
		it        types.Interaction
		contactID sql.NullString
		direction sql.NullString
		subject   sql.NullString
		body      sql.NullString
		metadata  sql.NullString
	)
	err := s.Scan(&it.ID, &it.UserID, &contactID, &it.Kind, &direction, &subject, &body,
		&it.OccurredAt, &metadata, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return it, err
	}
	it.ContactID = contactID.String
	it.Direction = direction.String
	it.Subject = subject.String
	it.Body = body.String
	if it.Metadata, err = decodeJSONMap(metadata); err != nil {
		return it, err
	}
	return it, nil
}
