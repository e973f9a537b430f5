package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const tagColumns = `id, name, category, color, created_at, updated_at`

// TagRepository implements storage.TagRepository using PostgreSQL.
// Tag definitions are global; contacts and notes carry tag names in TEXT[].
type TagRepository struct {
	h Handle
	t *table[types.Tag]
}

// NewTagRepository creates a tag repository on h.
func NewTagRepository(h Handle) *TagRepository {
	return &TagRepository{
		h: h,
		t: &table[types.Tag]{
			name:        "tags",
			columns:     tagColumns,
			scan:        scanTag,
			sortable:    map[string]bool{"name": true, "category": true, "created_at": true},
			defaultSort: "name",
			touch:       true,
		},
	}
}

// List returns one page of tags, optionally in one category.
func (r *TagRepository) List(ctx context.Context, category string, opts storage.ListOptions) (*storage.PaginatedResult[types.Tag], error) {
	if opts.SortOrder == "" {
		opts.SortOrder = "asc"
	}
	return r.t.list(ctx, r.h, "postgres: list tags", (&where{}).eqIf("category", category), opts)
}

// Get retrieves a tag by ID. Returns nil when it does not exist.
func (r *TagRepository) Get(ctx context.Context, id string) (*types.Tag, error) {
	return r.t.get(ctx, r.h, "postgres: get tag", (&where{}).eq("id", id))
}

// GetByName retrieves a tag by its unique name, or nil.
func (r *TagRepository) GetByName(ctx context.Context, name string) (*types.Tag, error) {
	return r.t.get(ctx, r.h, "postgres: get tag by name", (&where{}).eq("name", name))
}

// Create inserts a tag. Duplicate names return storage.ErrConflict.
func (r *TagRepository) Create(ctx context.Context, tag *types.Tag) (*types.Tag, error) {
	const op = "postgres: create tag"
	if tag == nil {
		return nil, storage.ErrInvalidInput
	}
	if tag.Name == "" {
		return nil, fmt.Errorf("%s: %w: name is required", op, storage.ErrInvalidInput)
	}

	t := *tag
	stamp(&t.CreatedAt, &t.UpdatedAt)

	return r.t.insert(ctx, r.h, op,
		[]string{"id", "name", "category", "color", "created_at", "updated_at"},
		newID(t.ID), t.Name, nullableString(t.Category), nullableString(t.Color), t.CreatedAt, t.UpdatedAt,
	)
}

// Update applies p to a tag. Returns nil when it does not exist.
func (r *TagRepository) Update(ctx context.Context, id string, p types.TagPatch) (*types.Tag, error) {
	var set patch
	if p.Name != nil {
		set.set("name", *p.Name)
	}
	if p.Category != nil {
		set.set("category", nullableString(*p.Category))
	}
	if p.Color != nil {
		set.set("color", nullableString(*p.Color))
	}
	return r.t.update(ctx, r.h, "postgres: update tag", &set, (&where{}).eq("id", id))
}

// Delete removes a tag definition. Tag names already on records are kept.
func (r *TagRepository) Delete(ctx context.Context, id string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: delete tag", (&where{}).eq("id", id))
}

func scanTag(s scanner) (types.Tag, error) {
	var (
		t        types.Tag
		category sql.NullString
		color    sql.NullString
	)
	if err := s.Scan(&t.ID, &t.Name, &category, &color, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, err
	}
	t.Category = category.String
	t.Color = color.String
	return t, nil
}
