package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const embeddingColumns = `id, user_id, owner_type, owner_id, embedding, model, created_at, updated_at`

// EmbeddingRepository implements storage.EmbeddingRepository using PostgreSQL.
// Vectors are stored as pgvector text ("[0.1,0.2]") in a TEXT column, so the
// extension itself is not required.
type EmbeddingRepository struct {
	h Handle
	t *table[types.Embedding]
}

// NewEmbeddingRepository creates an embedding repository on h.
func NewEmbeddingRepository(h Handle) *EmbeddingRepository {
	return &EmbeddingRepository{
		h: h,
		t: &table[types.Embedding]{
			name:        "embeddings",
			columns:     embeddingColumns,
			scan:        scanEmbedding,
			sortable:    map[string]bool{"created_at": true, "updated_at": true, "owner_type": true},
			defaultSort: "updated_at",
			touch:       true,
		},
	}
}

// List returns one page of the user's embeddings matching filter.
func (r *EmbeddingRepository) List(ctx context.Context, userID string, filter types.EmbeddingFilter, opts storage.ListOptions) (*storage.PaginatedResult[types.Embedding], error) {
	const op = "postgres: list embeddings"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	w := (&where{}).eq("user_id", userID).
		eqIf("owner_type", string(filter.OwnerType)).
		eqIf("model", filter.Model)
	return r.t.list(ctx, r.h, op, w, opts)
}

// ListRecent returns up to limit of the user's most recently updated
// embeddings. Rows whose vector cannot be parsed are logged and skipped.
func (r *EmbeddingRepository) ListRecent(ctx context.Context, userID string, limit int) ([]types.Embedding, error) {
	const op = "postgres: list recent embeddings"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []types.Embedding{}, nil
	}

	query := "SELECT " + embeddingColumns + ` FROM embeddings
		WHERE user_id = $1
		ORDER BY updated_at DESC, id DESC
		LIMIT $2`
	rows, err := r.h.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]types.Embedding, 0, limit)
	for rows.Next() {
		e, raw, err := scanEmbeddingRow(rows)
		if err != nil {
			return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
		}
		vec, err := parseVector(raw)
		if err != nil {
			log.Printf("postgres: skipping embedding %s with malformed vector: %v", e.ID, err)
			continue
		}
		e.Vector = vec
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
	}
	return result, nil
}

// Get retrieves an embedding by ID. Returns nil when it does not exist.
func (r *EmbeddingRepository) Get(ctx context.Context, userID, id string) (*types.Embedding, error) {
	return r.t.get(ctx, r.h, "postgres: get embedding", (&where{}).eq("user_id", userID).eq("id", id))
}

// GetByOwner retrieves the embedding of one owner entity, or nil.
func (r *EmbeddingRepository) GetByOwner(ctx context.Context, userID string, ownerType types.EntityType, ownerID string) (*types.Embedding, error) {
	w := (&where{}).eq("user_id", userID).eq("owner_type", string(ownerType)).eq("owner_id", ownerID)
	return r.t.get(ctx, r.h, "postgres: get embedding by owner", w)
}

// Create inserts an embedding. An existing embedding for the same owner is a
// conflict; use Upsert to replace it.
func (r *EmbeddingRepository) Create(ctx context.Context, emb *types.Embedding) (*types.Embedding, error) {
	const op = "postgres: create embedding"
	e, err := prepareEmbedding(op, emb)
	if err != nil {
		return nil, err
	}
	return r.t.insert(ctx, r.h, op,
		[]string{"id", "user_id", "owner_type", "owner_id", "embedding", "model", "created_at", "updated_at"},
		newID(e.ID), e.UserID, string(e.OwnerType), e.OwnerID, pgvector.NewVector(e.Vector),
		nullableString(e.Model), e.CreatedAt, e.UpdatedAt,
	)
}

// Upsert stores the embedding for its owner, replacing the vector and model of
// any existing one. The row keeps its original ID.
func (r *EmbeddingRepository) Upsert(ctx context.Context, emb *types.Embedding) (*types.Embedding, error) {
	const op = "postgres: upsert embedding"
	e, err := prepareEmbedding(op, emb)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO embeddings (id, user_id, owner_type, owner_id, embedding, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, owner_type, owner_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			updated_at = NOW()
		RETURNING ` + embeddingColumns

	return r.t.insertQuery(ctx, r.h, op, query,
		newID(e.ID), e.UserID, string(e.OwnerType), e.OwnerID, pgvector.NewVector(e.Vector),
		nullableString(e.Model), e.CreatedAt, e.UpdatedAt,
	)
}

// Update applies p to an embedding. Returns nil when it does not exist.
func (r *EmbeddingRepository) Update(ctx context.Context, userID, id string, p types.EmbeddingPatch) (*types.Embedding, error) {
	const op = "postgres: update embedding"

	var set patch
	if p.Vector != nil {
		if len(*p.Vector) == 0 {
			return nil, fmt.Errorf("%s: %w: vector is empty", op, storage.ErrInvalidInput)
		}
		set.set("embedding", pgvector.NewVector(*p.Vector))
	}
	if p.Model != nil {
		set.set("model", nullableString(*p.Model))
	}
	return r.t.update(ctx, r.h, op, &set, (&where{}).eq("user_id", userID).eq("id", id))
}

// Delete removes an embedding.
func (r *EmbeddingRepository) Delete(ctx context.Context, userID, id string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: delete embedding", (&where{}).eq("user_id", userID).eq("id", id))
}

// DeleteByOwner removes the embedding of one owner entity.
func (r *EmbeddingRepository) DeleteByOwner(ctx context.Context, userID string, ownerType types.EntityType, ownerID string) (int64, error) {
	w := (&where{}).eq("user_id", userID).eq("owner_type", string(ownerType)).eq("owner_id", ownerID)
	return r.t.delete(ctx, r.h, "postgres: delete embedding by owner", w)
}

// DeleteAllForUser removes every embedding the user owns.
func (r *EmbeddingRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	const op = "postgres: delete embeddings for user"
	if err := requireUser(op, userID); err != nil {
		return 0, err
	}
	return r.t.delete(ctx, r.h, op, (&where{}).eq("user_id", userID))
}

func prepareEmbedding(op string, emb *types.Embedding) (types.Embedding, error) {
	if emb == nil {
		return types.Embedding{}, storage.ErrInvalidInput
	}
	if err := requireUser(op, emb.UserID); err != nil {
		return types.Embedding{}, err
	}
	if !types.IsValidEntityType(emb.OwnerType) || emb.OwnerID == "" {
		return types.Embedding{}, fmt.Errorf("%s: %w: owner type and id are required", op, storage.ErrInvalidInput)
	}
	if len(emb.Vector) == 0 {
		return types.Embedding{}, fmt.Errorf("%s: %w: vector is empty", op, storage.ErrInvalidInput)
	}
	e := *emb
	stamp(&e.CreatedAt, &e.UpdatedAt)
	return e, nil
}

// scanEmbeddingRow scans an embedding leaving the vector unparsed.
func scanEmbeddingRow(s scanner) (types.Embedding, string, error) {
	var (
		e         types.Embedding
		ownerType string
		raw       string
		model     sql.NullString
	)
	err := s.Scan(&e.ID, &e.UserID, &ownerType, &e.OwnerID, &raw, &model, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, "", err
	}
	e.OwnerType = types.EntityType(ownerType)
	e.Model = model.String
	return e, raw, nil
}

func scanEmbedding(s scanner) (types.Embedding, error) {
	e, raw, err := scanEmbeddingRow(s)
	if err != nil {
		return e, err
	}
	if e.Vector, err = parseVector(raw); err != nil {
		return e, fmt.Errorf("postgres: embedding %s: %w", e.ID, err)
	}
	return e, nil
}

// parseVector decodes a stored vector. The pgvector text form is expected;
// a JSON array of numbers is accepted as well.
func parseVector(raw string) ([]float32, error) {
	s := strings.TrimSpace(raw)
	if len(s) < 3 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector %q", truncate(s, 32))
	}

	var f []float32
	var v pgvector.Vector
	if err := v.Parse(s); err == nil {
		f = v.Slice()
	} else if err := json.Unmarshal([]byte(s), &f); err != nil {
		return nil, fmt.Errorf("malformed vector %q: %w", truncate(s, 32), err)
	}
	if len(f) == 0 {
		return nil, fmt.Errorf("empty vector")
	}
	for i, x := range f {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil, fmt.Errorf("malformed vector %q: component %d is not finite", truncate(s, 32), i)
		}
	}
	return f, nil
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
