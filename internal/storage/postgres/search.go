package postgres

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const (
	// DefaultSearchLimit is used when a search request leaves Limit at zero.
	DefaultSearchLimit = 20

	// MaxSearchLimit caps the number of results of one search.
	MaxSearchLimit = 100

	// DefaultSimilarityThreshold is the minimum cosine similarity a semantic
	// hit needs when the request does not set one.
	DefaultSimilarityThreshold = 0.7

	// semanticCandidateFactor sizes the embedding scan relative to the limit.
	// Aggressive threshold or type filtering can leave fewer than limit hits.
	semanticCandidateFactor = 2
)

// SearchConfig overrides the search defaults. A zero DefaultLimit or a nil
// SimilarityThreshold keeps the package default.
type SearchConfig struct {
	DefaultLimit        int
	SimilarityThreshold *float64
}

// SearchRepository implements storage.SearchRepository using PostgreSQL.
// Keyword search fans out one query per entity type; semantic search is a
// brute-force cosine scan over the user's most recent embeddings.
type SearchRepository struct {
	h            Handle
	contacts     *table[types.Contact]
	notes        *table[types.Note]
	interactions *table[types.Interaction]
	tasks        *table[types.Task]
	embeddings   *EmbeddingRepository

	defaultLimit int
	threshold    float64
}

// NewSearchRepository creates a search repository on h.
func NewSearchRepository(h Handle, cfg SearchConfig) *SearchRepository {
	r := &SearchRepository{
		h:            h,
		contacts:     NewContactRepository(h).t,
		notes:        NewNoteRepository(h).t,
		interactions: NewInteractionRepository(h).t,
		tasks:        NewTaskRepository(h).t,
		embeddings:   NewEmbeddingRepository(h),
		defaultLimit: DefaultSearchLimit,
		threshold:    DefaultSimilarityThreshold,
	}
	if cfg.DefaultLimit > 0 {
		r.defaultLimit = clampLimit(cfg.DefaultLimit, DefaultSearchLimit)
	}
	if cfg.SimilarityThreshold != nil {
		r.threshold = *cfg.SimilarityThreshold
	}
	return r
}

// SearchTraditional matches the query as a case-insensitive substring against
// each requested type's text fields. Each type contributes at most
// ceil(limit/len(types)) hits; the merged hits are ordered newest first and cut
// to limit. Every hit scores 1.
func (r *SearchRepository) SearchTraditional(ctx context.Context, req types.TraditionalSearch) ([]types.SearchResult, error) {
	const op = "postgres: traditional search"
	if err := requireUser(op, req.UserID); err != nil {
		return nil, err
	}
	searchTypes, err := normalizeSearchTypes(op, req.Types)
	if err != nil {
		return nil, err
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return []types.SearchResult{}, nil
	}

	limit := clampLimit(req.Limit, r.defaultLimit)
	perType := limitPerType(limit, len(searchTypes))

	perTypeResults := make([][]types.SearchResult, len(searchTypes))
	g, gCtx := errgroup.WithContext(ctx)
	if _, inTx := r.h.(txHandle); inTx {
		// A transaction is one connection; its queries cannot overlap.
		g.SetLimit(1)
	}
	for i, t := range searchTypes {
		i, t := i, t
		g.Go(func() error {
			res, err := r.searchType(gCtx, op, t, req.UserID, query, perType)
			if err != nil {
				return err
			}
			perTypeResults[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeTraditional(perTypeResults, limit), nil
}

// searchType runs the keyword query for one entity type.
func (r *SearchRepository) searchType(ctx context.Context, op string, t types.EntityType, userID, query string, limit int) ([]types.SearchResult, error) {
	w := (&where{}).eq("user_id", userID)
	switch t {
	case types.EntityContact:
		w.ilikeAny(query, "display_name", "primary_email", "primary_phone")
		return searchTable(ctx, r.h, r.contacts, op, w, limit, contactResult)
	case types.EntityNote:
		w.ilikeAny(query, "content_plain")
		return searchTable(ctx, r.h, r.notes, op, w, limit, noteResult)
	case types.EntityInteraction:
		w.ilikeAny(query, "subject", "body")
		return searchTable(ctx, r.h, r.interactions, op, w, limit, interactionResult)
	case types.EntityTask:
		w.ilikeAny(query, "name")
		return searchTable(ctx, r.h, r.tasks, op, w, limit, taskResult)
	default:
		// Calendar events carry no searchable text column yet.
		return []types.SearchResult{}, nil
	}
}

// searchTable selects the newest rows of t matching w and maps them to results.
func searchTable[T any](ctx context.Context, q DBTX, t *table[T], op string, w *where, limit int, toResult func(T) types.SearchResult) ([]types.SearchResult, error) {
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at DESC, id DESC LIMIT $%d",
		t.columns, t.name, w.render(0), len(w.args)+1)
	rows, err := t.query(ctx, q, op, query, append(w.args, limit)...)
	if err != nil {
		return nil, err
	}
	results := make([]types.SearchResult, len(rows))
	for i, row := range rows {
		results[i] = toResult(row)
		results[i].Score = 1
	}
	return results, nil
}

// SearchSemantic ranks the user's stored embeddings by cosine similarity to
// req.Embedding. Only the 2*limit most recently updated embeddings are
// scanned. Hits at or above the threshold are resolved to their entities;
// embeddings whose entity no longer exists are dropped.
func (r *SearchRepository) SearchSemantic(ctx context.Context, req types.SemanticSearch) ([]types.SearchResult, error) {
	const op = "postgres: semantic search"
	if err := requireUser(op, req.UserID); err != nil {
		return nil, err
	}
	if len(req.Embedding) == 0 {
		return nil, fmt.Errorf("%s: %w: embedding is required", op, storage.ErrInvalidInput)
	}
	searchTypes, err := normalizeSearchTypes(op, req.Types)
	if err != nil {
		return nil, err
	}

	limit := clampLimit(req.Limit, r.defaultLimit)
	threshold := r.threshold
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}

	candidates, err := r.embeddings.ListRecent(ctx, req.UserID, semanticCandidateFactor*limit)
	if err != nil {
		return nil, err
	}
	scored := scoreCandidates(req.Embedding, candidates, threshold, searchTypes)
	if len(scored) == 0 {
		return []types.SearchResult{}, nil
	}

	entities, err := r.resolveOwners(ctx, op, req.UserID, scored)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, limit)
	for _, s := range scored {
		res, ok := entities[ownerKey(s.OwnerType, s.OwnerID)]
		if !ok {
			continue
		}
		res.Similarity = s.Similarity
		res.Score = s.Similarity
		results = append(results, res)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// resolveOwners loads the entities behind the scored embeddings with one query
// per type, keyed by ownerKey.
func (r *SearchRepository) resolveOwners(ctx context.Context, op, userID string, scored []scoredEmbedding) (map[string]types.SearchResult, error) {
	idsByType := make(map[types.EntityType][]string)
	for _, s := range scored {
		idsByType[s.OwnerType] = append(idsByType[s.OwnerType], s.OwnerID)
	}

	out := make(map[string]types.SearchResult, len(scored))
	for t, ids := range idsByType {
		var (
			res []types.SearchResult
			err error
		)
		switch t {
		case types.EntityContact:
			res, err = fetchByIDs(ctx, r.h, r.contacts, op, userID, ids, contactResult)
		case types.EntityNote:
			res, err = fetchByIDs(ctx, r.h, r.notes, op, userID, ids, noteResult)
		case types.EntityInteraction:
			res, err = fetchByIDs(ctx, r.h, r.interactions, op, userID, ids, interactionResult)
		case types.EntityTask:
			res, err = fetchByIDs(ctx, r.h, r.tasks, op, userID, ids, taskResult)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, sr := range res {
			out[ownerKey(sr.Type, sr.ID)] = sr
		}
	}
	return out, nil
}

func fetchByIDs[T any](ctx context.Context, q DBTX, t *table[T], op, userID string, ids []string, toResult func(T) types.SearchResult) ([]types.SearchResult, error) {
	query := "SELECT " + t.columns + " FROM " + t.name + " WHERE user_id = $1 AND id = ANY($2)"
	rows, err := t.query(ctx, q, op, query, userID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	results := make([]types.SearchResult, len(rows))
	for i, row := range rows {
		results[i] = toResult(row)
	}
	return results, nil
}

func ownerKey(t types.EntityType, id string) string {
	return string(t) + ":" + id
}

// scoredEmbedding is a candidate embedding that passed the threshold.
type scoredEmbedding struct {
	OwnerType  types.EntityType
	OwnerID    string
	Similarity float64
}

// scoreCandidates keeps the candidates of an allowed type whose similarity to
// query is at least threshold, most similar first. Equal similarities keep
// candidate order.
func scoreCandidates(query []float32, candidates []types.Embedding, threshold float64, allowed []types.EntityType) []scoredEmbedding {
	allow := make(map[types.EntityType]bool, len(allowed))
	for _, t := range allowed {
		allow[t] = true
	}

	scored := make([]scoredEmbedding, 0, len(candidates))
	for _, c := range candidates {
		if !allow[c.OwnerType] {
			continue
		}
		sim := CosineSimilarity(query, c.Vector)
		// NaN compares false, so it never passes.
		if !(sim >= threshold) {
			continue
		}
		scored = append(scored, scoredEmbedding{OwnerType: c.OwnerType, OwnerID: c.OwnerID, Similarity: sim})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	return scored
}

// CosineSimilarity returns the cosine of the angle between a and b. It is 0
// when the lengths differ, either vector is empty, or either norm is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// limitPerType splits limit across n types, rounding up.
func limitPerType(limit, n int) int {
	if n <= 0 {
		return 0
	}
	return (limit + n - 1) / n
}

// mergeTraditional concatenates per-type hits in type order, sorts them by
// creation time descending and cuts to limit. Hits with equal timestamps keep
// type order.
func mergeTraditional(perType [][]types.SearchResult, limit int) []types.SearchResult {
	merged := make([]types.SearchResult, 0)
	for _, res := range perType {
		merged = append(merged, res...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// clampLimit applies the default for a non-positive limit and caps it at
// MaxSearchLimit.
func clampLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// normalizeSearchTypes defaults, validates and de-duplicates requested types,
// keeping their order.
func normalizeSearchTypes(op string, requested []types.EntityType) ([]types.EntityType, error) {
	if len(requested) == 0 {
		return types.DefaultSearchTypes, nil
	}
	seen := make(map[types.EntityType]bool, len(requested))
	out := make([]types.EntityType, 0, len(requested))
	for _, t := range requested {
		if !types.IsSearchableType(t) {
			return nil, fmt.Errorf("%s: %w: type %q is not searchable", op, storage.ErrInvalidInput, t)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

func contactResult(c types.Contact) types.SearchResult {
	return types.SearchResult{
		ID:      c.ID,
		Type:    types.EntityContact,
		Title:   c.DisplayName,
		Content: c.PrimaryEmail,
		Metadata: map[string]interface{}{
			"primary_email":   c.PrimaryEmail,
			"primary_phone":   c.PrimaryPhone,
			"company":         c.Company,
			"lifecycle_stage": string(c.LifecycleStage),
		},
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func noteResult(n types.Note) types.SearchResult {
	title := n.Title
	if title == "" {
		title = truncate(n.ContentPlain, 80)
	}
	return types.SearchResult{
		ID:        n.ID,
		Type:      types.EntityNote,
		Title:     title,
		Content:   n.ContentPlain,
		Metadata:  map[string]interface{}{"contact_id": n.ContactID, "tags": n.Tags},
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func interactionResult(it types.Interaction) types.SearchResult {
	title := it.Subject
	if title == "" {
		title = it.Kind
	}
	return types.SearchResult{
		ID:      it.ID,
		Type:    types.EntityInteraction,
		Title:   title,
		Content: it.Body,
		Metadata: map[string]interface{}{
			"kind":        it.Kind,
			"direction":   it.Direction,
			"contact_id":  it.ContactID,
			"occurred_at": it.OccurredAt,
		},
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
}

func taskResult(t types.Task) types.SearchResult {
	meta := map[string]interface{}{
		"status":     t.Status,
		"priority":   t.Priority,
		"contact_id": t.ContactID,
	}
	if t.DueDate != nil {
		meta["due_date"] = *t.DueDate
	}
	return types.SearchResult{
		ID:        t.ID,
		Type:      types.EntityTask,
		Title:     t.Name,
		Content:   t.Description,
		Metadata:  meta,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
