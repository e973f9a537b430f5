package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const aiInsightColumns = `id, user_id, subject_type, subject_id, kind, title, content, confidence, status, evidence, created_at, updated_at`

// AIInsightRepository implements storage.AIInsightRepository using PostgreSQL.
type AIInsightRepository struct {
	h Handle
	t *table[types.AIInsight]
}

// NewAIInsightRepository creates an insight repository on h.
func NewAIInsightRepository(h Handle) *AIInsightRepository {
	return &AIInsightRepository{
		h: h,
		t: &table[types.AIInsight]{
			name:        "ai_insights",
			columns:     aiInsightColumns,
			scan:        scanAIInsight,
			sortable:    map[string]bool{"created_at": true, "updated_at": true, "confidence": true},
			defaultSort: "created_at",
			touch:       true,
		},
	}
}

// List returns one page of the user's insights matching filter.
func (r *AIInsightRepository) List(ctx context.Context, userID string, filter types.AIInsightFilter, opts storage.ListOptions) (*storage.PaginatedResult[types.AIInsight], error) {
	const op = "postgres: list ai insights"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	w := (&where{}).eq("user_id", userID).
		eqIf("subject_type", string(filter.SubjectType)).
		eqIf("subject_id", filter.SubjectID).
		eqIf("kind", filter.Kind).
		eqIf("status", filter.Status)
	return r.t.list(ctx, r.h, op, w, opts)
}

// Get retrieves an insight by ID. Returns nil when it does not exist.
func (r *AIInsightRepository) Get(ctx context.Context, userID, id string) (*types.AIInsight, error) {
	return r.t.get(ctx, r.h, "postgres: get ai insight", (&where{}).eq("user_id", userID).eq("id", id))
}

// Create inserts an insight and returns the stored row.
func (r *AIInsightRepository) Create(ctx context.Context, insight *types.AIInsight) (*types.AIInsight, error) {
	const op = "postgres: create ai insight"
	if insight == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := requireUser(op, insight.UserID); err != nil {
		return nil, err
	}
	if insight.SubjectID == "" || insight.Kind == "" {
		return nil, fmt.Errorf("%s: %w: subject and kind are required", op, storage.ErrInvalidInput)
	}
	if len(insight.Evidence) > 0 && !json.Valid(insight.Evidence) {
		return nil, fmt.Errorf("%s: %w: evidence is not valid JSON", op, storage.ErrInvalidInput)
	}

	in := *insight
	stamp(&in.CreatedAt, &in.UpdatedAt)
	if in.Status == "" {
		in.Status = "new"
	}

	return r.t.insert(ctx, r.h, op,
		[]string{"id", "user_id", "subject_type", "subject_id", "kind", "title", "content", "confidence", "status", "evidence", "created_at", "updated_at"},
		newID(in.ID), in.UserID, string(in.SubjectType), in.SubjectID, in.Kind, in.Title, in.Content,
		in.Confidence, in.Status, nullableBytes(in.Evidence), in.CreatedAt, in.UpdatedAt,
	)
}

// Update applies p to an insight. Returns nil when it does not exist.
func (r *AIInsightRepository) Update(ctx context.Context, userID, id string, p types.AIInsightPatch) (*types.AIInsight, error) {
	const op = "postgres: update ai insight"

	var set patch
	if p.Title != nil {
		set.set("title", *p.Title)
	}
	if p.Content != nil {
		set.set("content", *p.Content)
	}
	if p.Confidence != nil {
		set.set("confidence", *p.Confidence)
	}
	if p.Status != nil {
		set.set("status", *p.Status)
	}
	if p.Evidence != nil {
		if len(*p.Evidence) > 0 && !json.Valid(*p.Evidence) {
			return nil, fmt.Errorf("%s: %w: evidence is not valid JSON", op, storage.ErrInvalidInput)
		}
		set.set("evidence", nullableBytes(*p.Evidence))
	}
	return r.t.update(ctx, r.h, op, &set, (&where{}).eq("user_id", userID).eq("id", id))
}

// Delete removes an insight.
func (r *AIInsightRepository) Delete(ctx context.Context, userID, id string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: delete ai insight", (&where{}).eq("user_id", userID).eq("id", id))
}

// DeleteAllForUser removes every insight the user owns.
func (r *AIInsightRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	const op = "postgres: delete ai insights for user"
	if err := requireUser(op, userID); err != nil {
		return 0, err
	}
	return r.t.delete(ctx, r.h, op, (&where{}).eq("user_id", userID))
}

func scanAIInsight(s scanner) (types.AIInsight, error) {
	var (
		in          types.AIInsight
		subjectType string
		evidence    sql.NullString
	)
	err := s.Scan(&in.ID, &in.UserID, &subjectType, &in.SubjectID, &in.Kind, &in.Title, &in.Content,
		&in.Confidence, &in.Status, &evidence, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return in, err
	}
	in.SubjectType = types.EntityType(subjectType)
	in.Evidence = rawJSON(evidence)
	return in, nil
}
