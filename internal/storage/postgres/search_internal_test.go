package postgres

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{3, 4}, []float32{3, 4}), 1e-9)
	assert.InDelta(t, 0.96, CosineSimilarity([]float32{4, 3}, []float32{3, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 1}, []float32{-1, -1}), 1e-9)

	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}), "length mismatch")
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil), "empty")
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}), "zero norm")
}

func TestLimitPerType(t *testing.T) {
	assert.Equal(t, 4, limitPerType(10, 3))
	assert.Equal(t, 5, limitPerType(20, 4))
	assert.Equal(t, 1, limitPerType(1, 4))
	assert.Equal(t, 0, limitPerType(10, 0))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0, 20))
	assert.Equal(t, 20, clampLimit(-5, 20))
	assert.Equal(t, 7, clampLimit(7, 20))
	assert.Equal(t, MaxSearchLimit, clampLimit(1000, 20))
	assert.Equal(t, 1, clampLimit(0, 0))
}

func TestNormalizeSearchTypes(t *testing.T) {
	got, err := normalizeSearchTypes("op", nil)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultSearchTypes, got)

	got, err = normalizeSearchTypes("op", []types.EntityType{types.EntityTask, types.EntityNote, types.EntityTask})
	require.NoError(t, err)
	assert.Equal(t, []types.EntityType{types.EntityTask, types.EntityNote}, got)

	_, err = normalizeSearchTypes("op", []types.EntityType{types.EntityDocument})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestMergeTraditional(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	hit := func(id string, age time.Duration) types.SearchResult {
		return types.SearchResult{ID: id, CreatedAt: base.Add(-age)}
	}

	perType := [][]types.SearchResult{
		{hit("contact-old", 3*time.Hour), hit("contact-tie", time.Hour)},
		{hit("note-new", 0), hit("note-tie", time.Hour)},
		nil,
	}

	merged := mergeTraditional(perType, 3)

	ids := make([]string, len(merged))
	for i, r := range merged {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"note-new", "contact-tie", "note-tie"}, ids, "newest first, ties keep type order")

	assert.NotNil(t, mergeTraditional(nil, 5))
	assert.Empty(t, mergeTraditional(nil, 5))
}

func TestScoreCandidates(t *testing.T) {
	query := []float32{3, 4}
	candidates := []types.Embedding{
		{OwnerType: types.EntityNote, OwnerID: "near", Vector: []float32{4, 3}},       // 0.96
		{OwnerType: types.EntityContact, OwnerID: "exact", Vector: []float32{3, 4}},   // 1.0
		{OwnerType: types.EntityTask, OwnerID: "far", Vector: []float32{1, 0}},        // 0.6
		{OwnerType: types.EntityDocument, OwnerID: "doc", Vector: []float32{3, 4}},    // type not requested
		{OwnerType: types.EntityNote, OwnerID: "mismatch", Vector: []float32{3, 4, 0}}, // length differs
	}

	scored := scoreCandidates(query, candidates, 0.7, types.DefaultSearchTypes)
	require.Len(t, scored, 2)
	assert.Equal(t, "exact", scored[0].OwnerID)
	assert.InDelta(t, 1.0, scored[0].Similarity, 1e-9)
	assert.Equal(t, "near", scored[1].OwnerID)
	assert.InDelta(t, 0.96, scored[1].Similarity, 1e-6)

	scored = scoreCandidates(query, candidates, 0.96, types.DefaultSearchTypes)
	assert.Len(t, scored, 2, "the threshold is inclusive")

	scored = scoreCandidates(query, candidates, 0.7, []types.EntityType{types.EntityNote})
	require.Len(t, scored, 1)
	assert.Equal(t, "near", scored[0].OwnerID)

	nan := []types.Embedding{
		{OwnerType: types.EntityNote, OwnerID: "nan", Vector: []float32{float32(math.NaN()), 1}},
		{OwnerType: types.EntityNote, OwnerID: "inf", Vector: []float32{float32(math.Inf(1)), 1}},
		{OwnerType: types.EntityNote, OwnerID: "near", Vector: []float32{4, 3}},
	}
	scored = scoreCandidates(query, nan, 0.7, types.DefaultSearchTypes)
	require.Len(t, scored, 1, "non-finite similarities never pass the threshold")
	assert.Equal(t, "near", scored[0].OwnerID)

	scored = scoreCandidates(query, nan, -1, types.DefaultSearchTypes)
	assert.Len(t, scored, 1)
}

func TestNewSearchRepository_Threshold(t *testing.T) {
	r := NewSearchRepository(nil, SearchConfig{})
	assert.Equal(t, DefaultSimilarityThreshold, r.threshold)
	assert.Equal(t, DefaultSearchLimit, r.defaultLimit)

	for _, want := range []float64{0, -0.5, 0.9} {
		want := want
		r = NewSearchRepository(nil, SearchConfig{SimilarityThreshold: &want})
		assert.Equal(t, want, r.threshold)
	}
}

func TestResultMappers(t *testing.T) {
	long := strings.Repeat("word ", 40)
	n := noteResult(types.Note{ID: "n1", ContentPlain: long})
	assert.Equal(t, types.EntityNote, n.Type)
	assert.Equal(t, truncate(long, 80), n.Title, "untitled notes use their content")

	n = noteResult(types.Note{ID: "n2", Title: "Kickoff", ContentPlain: "agenda"})
	assert.Equal(t, "Kickoff", n.Title)

	c := contactResult(types.Contact{ID: "c1", DisplayName: "Jane", PrimaryEmail: "jane@example.com"})
	assert.Equal(t, "Jane", c.Title)
	assert.Equal(t, "jane@example.com", c.Metadata["primary_email"])

	i := interactionResult(types.Interaction{ID: "i1", Kind: "call"})
	assert.Equal(t, "call", i.Title)

	due := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	tr := taskResult(types.Task{ID: "t1", Name: "Follow up", DueDate: &due})
	assert.Equal(t, "Follow up", tr.Title)
	assert.Equal(t, due, tr.Metadata["due_date"])
}
