package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const zoneColumns = `id, name, description, color, icon, sort_order, created_at, updated_at`

// ZoneRepository implements storage.ZoneRepository using PostgreSQL.
// Zones are global administrative records and are not user scoped.
type ZoneRepository struct {
	h Handle
	t *table[types.Zone]
}

// NewZoneRepository creates a zone repository on h.
func NewZoneRepository(h Handle) *ZoneRepository {
	return &ZoneRepository{
		h: h,
		t: &table[types.Zone]{
			name:        "zones",
			columns:     zoneColumns,
			scan:        scanZone,
			sortable:    map[string]bool{"sort_order": true, "name": true, "created_at": true},
			defaultSort: "sort_order",
			touch:       true,
		},
	}
}

// List returns one page of zones. Sorted by sort_order ascending unless opts
// says otherwise.
func (r *ZoneRepository) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Zone], error) {
	if opts.SortOrder == "" {
		opts.SortOrder = "asc"
	}
	return r.t.list(ctx, r.h, "postgres: list zones", &where{}, opts)
}

// Get retrieves a zone by ID. Returns nil when it does not exist.
func (r *ZoneRepository) Get(ctx context.Context, id string) (*types.Zone, error) {
	return r.t.get(ctx, r.h, "postgres: get zone", (&where{}).eq("id", id))
}

// GetByName retrieves a zone by its unique name, or nil.
func (r *ZoneRepository) GetByName(ctx context.Context, name string) (*types.Zone, error) {
	return r.t.get(ctx, r.h, "postgres: get zone by name", (&where{}).eq("name", name))
}

// Create inserts a zone. Duplicate names return storage.ErrConflict.
func (r *ZoneRepository) Create(ctx context.Context, zone *types.Zone) (*types.Zone, error) {
	const op = "postgres: create zone"
	if zone == nil {
		return nil, storage.ErrInvalidInput
	}
	if zone.Name == "" {
		return nil, fmt.Errorf("%s: %w: name is required", op, storage.ErrInvalidInput)
	}

	z := *zone
	stamp(&z.CreatedAt, &z.UpdatedAt)

	return r.t.insert(ctx, r.h, op,
		[]string{"id", "name", "description", "color", "icon", "sort_order", "created_at", "updated_at"},
		newID(z.ID), z.Name, nullableString(z.Description), nullableString(z.Color), nullableString(z.Icon),
		z.SortOrder, z.CreatedAt, z.UpdatedAt,
	)
}

// Update applies p to a zone. Returns nil when it does not exist.
func (r *ZoneRepository) Update(ctx context.Context, id string, p types.ZonePatch) (*types.Zone, error) {
	var set patch
	if p.Name != nil {
		set.set("name", *p.Name)
	}
	if p.Description != nil {
		set.set("description", nullableString(*p.Description))
	}
	if p.Color != nil {
		set.set("color", nullableString(*p.Color))
	}
	if p.Icon != nil {
		set.set("icon", nullableString(*p.Icon))
	}
	if p.SortOrder != nil {
		set.set("sort_order", *p.SortOrder)
	}
	return r.t.update(ctx, r.h, "postgres: update zone", &set, (&where{}).eq("id", id))
}

// Delete removes a zone.
func (r *ZoneRepository) Delete(ctx context.Context, id string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: delete zone", (&where{}).eq("id", id))
}

func scanZone(s scanner) (types.Zone, error) {
	var (
		z           types.Zone
		description sql.NullString
		color       sql.NullString
		icon        sql.NullString
	)
	err := s.Scan(&z.ID, &z.Name, &description, &color, &icon, &z.SortOrder, &z.CreatedAt, &z.UpdatedAt)
	if err != nil {
		return z, err
	}
	z.Description = description.String
	z.Color = color.String
	z.Icon = icon.String
	return z, nil
}
