package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const integrationColumns = `id, user_id, provider, status, config, last_sync_at, created_at, updated_at`

// IntegrationRepository implements storage.IntegrationRepository using
// PostgreSQL. A user has at most one integration per provider.
type IntegrationRepository struct {
	h Handle
	t *table[types.UserIntegration]
}

// NewIntegrationRepository creates a user integration repository on h.
func NewIntegrationRepository(h Handle) *IntegrationRepository {
	return &IntegrationRepository{
		h: h,
		t: &table[types.UserIntegration]{
			name:        "user_integrations",
			columns:     integrationColumns,
			scan:        scanIntegration,
			sortable:    map[string]bool{"created_at": true, "updated_at": true, "provider": true, "last_sync_at": true},
			defaultSort: "created_at",
			touch:       true,
		},
	}
}

// List returns one page of the user's integrations, optionally in one status.
func (r *IntegrationRepository) List(ctx context.Context, userID, status string, opts storage.ListOptions) (*storage.PaginatedResult[types.UserIntegration], error) {
	const op = "postgres: list integrations"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	return r.t.list(ctx, r.h, op, (&where{}).eq("user_id", userID).eqIf("status", status), opts)
}

// Get retrieves an integration by ID. Returns nil when it does not exist.
func (r *IntegrationRepository) Get(ctx context.Context, userID, id string) (*types.UserIntegration, error) {
	return r.t.get(ctx, r.h, "postgres: get integration", (&where{}).eq("user_id", userID).eq("id", id))
}

// GetByProvider retrieves the user's integration with provider, or nil.
func (r *IntegrationRepository) GetByProvider(ctx context.Context, userID, provider string) (*types.UserIntegration, error) {
	w := (&where{}).eq("user_id", userID).eq("provider", types.NormalizeProvider(provider))
	return r.t.get(ctx, r.h, "postgres: get integration by provider", w)
}

// Create inserts an integration. A second integration for the same provider
// is rejected with storage.ErrConflict.
func (r *IntegrationRepository) Create(ctx context.Context, in *types.UserIntegration) (*types.UserIntegration, error) {
	const op = "postgres: create integration"
	it, config, err := prepareIntegration(op, in)
	if err != nil {
		return nil, err
	}
	return r.t.insert(ctx, r.h, op,
		[]string{"id", "user_id", "provider", "status", "config", "last_sync_at", "created_at", "updated_at"},
		newID(it.ID), it.UserID, it.Provider, it.Status, config, nullableTimePtr(it.LastSyncAt), it.CreatedAt, it.UpdatedAt,
	)
}

// Upsert stores the integration for (user, provider), replacing status and
// config of an existing one.
func (r *IntegrationRepository) Upsert(ctx context.Context, in *types.UserIntegration) (*types.UserIntegration, error) {
	const op = "postgres: upsert integration"
	it, config, err := prepareIntegration(op, in)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO user_integrations (id, user_id, provider, status, config, last_sync_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			status = EXCLUDED.status,
			config = EXCLUDED.config,
			updated_at = NOW()
		RETURNING ` + integrationColumns

	return r.t.insertQuery(ctx, r.h, op, query,
		newID(it.ID), it.UserID, it.Provider, it.Status, config, nullableTimePtr(it.LastSyncAt), it.CreatedAt, it.UpdatedAt,
	)
}

// MarkSynced records a completed sync at the given time. Returns nil when the
// integration does not exist.
func (r *IntegrationRepository) MarkSynced(ctx context.Context, userID, id string, at time.Time) (*types.UserIntegration, error) {
	var set patch
	set.set("last_sync_at", nullableTime(at))
	return r.t.update(ctx, r.h, "postgres: mark integration synced", &set, (&where{}).eq("user_id", userID).eq("id", id))
}

// Update applies p to an integration. Returns nil when it does not exist.
func (r *IntegrationRepository) Update(ctx context.Context, userID, id string, p types.UserIntegrationPatch) (*types.UserIntegration, error) {
	const op = "postgres: update integration"

	var set patch
	if p.Status != nil {
		set.set("status", *p.Status)
	}
	if p.Config != nil {
		config, err := jsonValue(*p.Config)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		set.set("config", config)
	}
	return r.t.update(ctx, r.h, op, &set, (&where{}).eq("user_id", userID).eq("id", id))
}

// Delete removes an integration.
func (r *IntegrationRepository) Delete(ctx context.Context, userID, id string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: delete integration", (&where{}).eq("user_id", userID).eq("id", id))
}

// DeleteAllForUser removes every integration the user owns.
func (r *IntegrationRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	const op = "postgres: delete integrations for user"
	if err := requireUser(op, userID); err != nil {
		return 0, err
	}
	return r.t.delete(ctx, r.h, op, (&where{}).eq("user_id", userID))
}

func prepareIntegration(op string, in *types.UserIntegration) (types.UserIntegration, sql.NullString, error) {
	if in == nil {
		return types.UserIntegration{}, sql.NullString{}, storage.ErrInvalidInput
	}
	if err := requireUser(op, in.UserID); err != nil {
		return types.UserIntegration{}, sql.NullString{}, err
	}
	it := *in
	it.Provider = types.NormalizeProvider(it.Provider)
	if it.Provider == "" {
		return types.UserIntegration{}, sql.NullString{}, fmt.Errorf("%s: %w: provider is required", op, storage.ErrInvalidInput)
	}
	if it.Status == "" {
		it.Status = "connected"
	}
	stamp(&it.CreatedAt, &it.UpdatedAt)

	config, err := jsonValue(it.Config)
	if err != nil {
		return types.UserIntegration{}, sql.NullString{}, fmt.Errorf("%s: %w", op, err)
	}
	return it, config, nil
}

func scanIntegration(s scanner) (types.UserIntegration, error) {
	var (
		it       types.UserIntegration
		config   sql.NullString
		lastSync sql.NullTime
	)
	err := s.Scan(&it.ID, &it.UserID, &it.Provider, &it.Status, &config, &lastSync, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return it, err
	}
	it.LastSyncAt = timePtr(lastSync)
	if it.Config, err = decodeJSONMap(config); err != nil {
		return it, err
	}
	return it, nil
}
