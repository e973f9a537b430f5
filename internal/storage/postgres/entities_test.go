package postgres_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

// ---- Contacts ----

func TestContacts_CreateGetUpdateDelete(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	stage := types.StageProspect
	created, err := repos.Contacts.Create(ctx, &types.Contact{
		UserID:         "u1",
		DisplayName:    "Jane Doe",
		PrimaryEmail:   "jane@example.com",
		LifecycleStage: types.StageLead,
		Tags:           []string{"vip", "board"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, []string{"vip", "board"}, created.Tags)

	got, err := repos.Contacts.Get(ctx, "u1", created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "jane@example.com", got.PrimaryEmail)

	updated, err := repos.Contacts.Update(ctx, "u1", created.ID, types.ContactPatch{
		LifecycleStage: &stage,
		Company:        types.String("Acme"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, types.StageProspect, updated.LifecycleStage)
	assert.Equal(t, "Acme", updated.Company)
	assert.Equal(t, "Jane Doe", updated.DisplayName, "unset fields are untouched")
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	n, err := repos.Contacts.Delete(ctx, "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = repos.Contacts.Get(ctx, "u1", created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err = repos.Contacts.Delete(ctx, "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestContacts_Validation(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Contacts.Create(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = repos.Contacts.Create(ctx, &types.Contact{DisplayName: "No owner"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = repos.Contacts.Create(ctx, &types.Contact{UserID: "u1"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = repos.Contacts.Create(ctx, &types.Contact{UserID: "u1", DisplayName: "X", LifecycleStage: "customer"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestContacts_DuplicateIDIsConflict(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Contacts.Create(ctx, &types.Contact{ID: "c-fixed", UserID: "u1", DisplayName: "A"})
	require.NoError(t, err)
	_, err = repos.Contacts.Create(ctx, &types.Contact{ID: "c-fixed", UserID: "u1", DisplayName: "B"})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestContacts_TenantIsolation(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()
	c := createContact(t, repos, "u1", "Jane")

	got, err := repos.Contacts.Get(ctx, "u2", c.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	updated, err := repos.Contacts.Update(ctx, "u2", c.ID, types.ContactPatch{DisplayName: types.String("Hijacked")})
	require.NoError(t, err)
	assert.Nil(t, updated)

	n, err := repos.Contacts.Delete(ctx, "u2", c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	page, err := repos.Contacts.List(ctx, "u2", types.ContactFilter{}, storage.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestContacts_ListFiltersAndPagination(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := repos.Contacts.Create(ctx, &types.Contact{
			UserID:         "u1",
			DisplayName:    fmt.Sprintf("Contact %d", i),
			LifecycleStage: types.StageLead,
			Tags:           []string{fmt.Sprintf("t%d", i%2)},
			CreatedAt:      base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	_, err := repos.Contacts.Create(ctx, &types.Contact{
		UserID: "u1", DisplayName: "100% Client", LifecycleStage: types.StageClient, CreatedAt: base.Add(-time.Hour),
	})
	require.NoError(t, err)

	page, err := repos.Contacts.List(ctx, "u1", types.ContactFilter{}, storage.ListOptions{PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "Contact 4", page.Items[0].DisplayName, "newest first by default")

	page, err = repos.Contacts.List(ctx, "u1", types.ContactFilter{}, storage.ListOptions{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.False(t, page.HasMore)

	page, err = repos.Contacts.List(ctx, "u1", types.ContactFilter{LifecycleStage: types.StageLead}, storage.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)

	page, err = repos.Contacts.List(ctx, "u1", types.ContactFilter{Tags: []string{"t1"}}, storage.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = repos.Contacts.List(ctx, "u1", types.ContactFilter{Search: "100%"}, storage.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total, "% in the search term matches literally")
	assert.Equal(t, "100% Client", page.Items[0].DisplayName)

	page, err = repos.Contacts.List(ctx, "u1", types.ContactFilter{}, storage.ListOptions{SortBy: "display_name", SortOrder: "asc", PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, "100% Client", page.Items[0].DisplayName)
}

func TestContacts_PageSizeIsClamped(t *testing.T) {
	_, repos := newTestRepos(t)

	page, err := repos.Contacts.List(context.Background(), "u1", types.ContactFilter{}, storage.ListOptions{Page: -1, PageSize: 10000})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, storage.MaxPageSize, page.PageSize)
}

func TestContacts_GetMany(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()
	a := createContact(t, repos, "u1", "A")
	b := createContact(t, repos, "u1", "B")
	other := createContact(t, repos, "u2", "Other")

	got, err := repos.Contacts.GetMany(ctx, "u1", []string{a.ID, b.ID, other.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repos.Contacts.GetMany(ctx, "u1", nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// ---- Empty results and update guard, every repository ----

func TestRepositories_EmptyListsHaveZeroTotal(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()
	opts := storage.ListOptions{}

	check := func(name string, items int, total int, err error) {
		t.Helper()
		require.NoError(t, err, name)
		assert.Equal(t, 0, items, name)
		assert.Equal(t, 0, total, name)
	}

	notes, err := repos.Notes.List(ctx, "u1", types.NoteFilter{}, opts)
	require.NoError(t, err)
	assert.NotNil(t, notes.Items)
	check("notes", len(notes.Items), notes.Total, err)

	ints, err := repos.Interactions.List(ctx, "u1", types.InteractionFilter{}, opts)
	check("interactions", len(ints.Items), ints.Total, err)
	docs, err := repos.Documents.List(ctx, "u1", types.DocumentFilter{}, opts)
	check("documents", len(docs.Items), docs.Total, err)
	tasks, err := repos.Tasks.List(ctx, "u1", types.TaskFilter{}, opts)
	check("tasks", len(tasks.Items), tasks.Total, err)
	events, err := repos.Calendar.List(ctx, "u1", types.CalendarEventFilter{}, opts)
	check("calendar", len(events.Items), events.Total, err)
	insights, err := repos.AIInsights.List(ctx, "u1", types.AIInsightFilter{}, opts)
	check("insights", len(insights.Items), insights.Total, err)
	jobs, err := repos.Jobs.List(ctx, "u1", types.JobFilter{}, opts)
	check("jobs", len(jobs.Items), jobs.Total, err)
	embs, err := repos.Embeddings.List(ctx, "u1", types.EmbeddingFilter{}, opts)
	check("embeddings", len(embs.Items), embs.Total, err)
	integrations, err := repos.Integrations.List(ctx, "u1", "", opts)
	check("integrations", len(integrations.Items), integrations.Total, err)
	zones, err := repos.Zones.List(ctx, opts)
	check("zones", len(zones.Items), zones.Total, err)
	tags, err := repos.Tags.List(ctx, "", opts)
	check("tags", len(tags.Items), tags.Total, err)
	threads, err := repos.Chat.ListThreads(ctx, "u1", opts)
	check("threads", len(threads.Items), threads.Total, err)
}

func TestRepositories_EmptyPatchIsRejected(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	errs := map[string]error{}
	_, errs["contacts"] = repos.Contacts.Update(ctx, "u1", "x", types.ContactPatch{})
	_, errs["notes"] = repos.Notes.Update(ctx, "u1", "x", types.NotePatch{})
	_, errs["interactions"] = repos.Interactions.Update(ctx, "u1", "x", types.InteractionPatch{})
	_, errs["documents"] = repos.Documents.Update(ctx, "u1", "x", types.DocumentPatch{})
	_, errs["tasks"] = repos.Tasks.Update(ctx, "u1", "x", types.TaskPatch{})
	_, errs["calendar"] = repos.Calendar.Update(ctx, "u1", "x", types.CalendarEventPatch{})
	_, errs["insights"] = repos.AIInsights.Update(ctx, "u1", "x", types.AIInsightPatch{})
	_, errs["jobs"] = repos.Jobs.Update(ctx, "u1", "x", types.JobPatch{})
	_, errs["embeddings"] = repos.Embeddings.Update(ctx, "u1", "x", types.EmbeddingPatch{})
	_, errs["integrations"] = repos.Integrations.Update(ctx, "u1", "x", types.UserIntegrationPatch{})
	_, errs["zones"] = repos.Zones.Update(ctx, "x", types.ZonePatch{})
	_, errs["tags"] = repos.Tags.Update(ctx, "x", types.TagPatch{})
	_, errs["threads"] = repos.Chat.UpdateThread(ctx, "u1", "x", types.ThreadPatch{})
	_, errs["tool invocations"] = repos.Chat.UpdateToolInvocation(ctx, "u1", "x", types.ToolInvocationPatch{})

	for name, err := range errs {
		assert.ErrorIs(t, err, storage.ErrNoFieldsProvided, name)
	}
}

func TestRepositories_DeleteAllForUser(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()
	c := createContact(t, repos, "u1", "A")
	createContact(t, repos, "u1", "B")
	keep := createContact(t, repos, "u2", "Kept")

	_, err := repos.Notes.Create(ctx, &types.Note{UserID: "u1", ContactID: c.ID, ContentPlain: "hello"})
	require.NoError(t, err)

	n, err := repos.Notes.DeleteAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repos.Contacts.DeleteAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := repos.Contacts.Get(ctx, "u2", keep.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = repos.Contacts.DeleteAllForUser(ctx, "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

// ---- Records ----

func TestNotes_RoundTripAndFilter(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()
	c := createContact(t, repos, "u1", "Jane")

	n, err := repos.Notes.Create(ctx, &types.Note{UserID: "u1", ContactID: c.ID, Title: "Kickoff", ContentPlain: "Discussed renewal", Tags: []string{"sales"}})
	require.NoError(t, err)
	_, err = repos.Notes.Create(ctx, &types.Note{UserID: "u1", ContentPlain: "Unrelated"})
	require.NoError(t, err)

	page, err := repos.Notes.List(ctx, "u1", types.NoteFilter{ContactID: c.ID}, storage.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, n.ID, page.Items[0].ID)
	assert.Equal(t, []string{"sales"}, page.Items[0].Tags)

	updated, err := repos.Notes.Update(ctx, "u1", n.ID, types.NotePatch{ContentPlain: types.String("Renewal signed")})
	require.NoError(t, err)
	assert.Equal(t, "Renewal signed", updated.ContentPlain)
	assert.Equal(t, "Kickoff", updated.Title)
}

func TestInteractions_MetadataAndTimeWindow(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()
	at := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	created, err := repos.Interactions.Create(ctx, &types.Interaction{
		UserID: "u1", Kind: types.InteractionCall, Subject: "Intro", OccurredAt: at,
		Metadata: map[string]interface{}{"duration_min": 15},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(15), created.Metadata["duration_min"])

	_, err = repos.Interactions.Create(ctx, &types.Interaction{UserID: "u1"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput, "kind is required")

	page, err := repos.Interactions.List(ctx, "u1", types.InteractionFilter{
		OccurredAfter: at.Add(-time.Minute), OccurredBefore: at.Add(time.Minute),
	}, storage.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = repos.Interactions.List(ctx, "u1", types.InteractionFilter{OccurredAfter: at}, storage.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total, "bounds are exclusive")
}

func TestTasks_DefaultsAndStatusFilter(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	task, err := repos.Tasks.Create(ctx, &types.Task{UserID: "u1", Name: "Send proposal"})
	require.NoError(t, err)
	assert.Equal(t, types.TaskOpen, task.Status)
	assert.Nil(t, task.DueDate)

	_, err = repos.Tasks.Update(ctx, "u1", task.ID, types.TaskPatch{Status: types.String(types.TaskDone)})
	require.NoError(t, err)

	page, err := repos.Tasks.List(ctx, "u1", types.TaskFilter{Statuses: []string{types.TaskOpen, types.TaskInProgress}}, storage.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestDocuments_Defaults(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	doc, err := repos.Documents.Create(ctx, &types.Document{UserID: "u1", FileName: "contract.pdf", SizeBytes: 2048})
	require.NoError(t, err)
	assert.Equal(t, "uploaded", doc.Status)
	assert.NotEmpty(t, doc.Title)

	_, err = repos.Documents.Create(ctx, &types.Document{UserID: "u1"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestCalendar_ListUpcoming(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{-time.Hour, 2 * time.Hour, time.Hour} {
		_, err := repos.Calendar.Create(ctx, &types.CalendarEvent{
			UserID:    "u1",
			Title:     fmt.Sprintf("event %d", i),
			StartTime: now.Add(offset),
			EndTime:   now.Add(offset + 30*time.Minute),
		})
		require.NoError(t, err)
	}

	upcoming, err := repos.Calendar.ListUpcoming(ctx, "u1", now, 10)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "event 2", upcoming[0].Title, "soonest first")
	assert.Equal(t, "event 1", upcoming[1].Title)

	_, err = repos.Calendar.Create(ctx, &types.CalendarEvent{UserID: "u1", Title: "no times"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestAIInsights_EvidenceRoundTrip(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()
	c := createContact(t, repos, "u1", "Jane")

	in, err := repos.AIInsights.Create(ctx, &types.AIInsight{
		UserID: "u1", SubjectType: types.EntityContact, SubjectID: c.ID, Kind: "churn_risk",
		Title: "Quiet for 90 days", Confidence: 0.8, Evidence: json.RawMessage(`{"last_contact":"2024-01-01"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "new", in.Status)
	assert.JSONEq(t, `{"last_contact":"2024-01-01"}`, string(in.Evidence))

	page, err := repos.AIInsights.List(ctx, "u1", types.AIInsightFilter{SubjectID: c.ID}, storage.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestIntegrations_UpsertAndMarkSynced(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	first, err := repos.Integrations.Upsert(ctx, &types.UserIntegration{
		UserID: "u1", Provider: " Gmail ", Config: map[string]interface{}{"label": "crm"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gmail", first.Provider)
	assert.Equal(t, "connected", first.Status)

	second, err := repos.Integrations.Upsert(ctx, &types.UserIntegration{UserID: "u1", Provider: "gmail", Status: "paused"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "one integration per provider")
	assert.Equal(t, "paused", second.Status)

	at := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	synced, err := repos.Integrations.MarkSynced(ctx, "u1", first.ID, at)
	require.NoError(t, err)
	require.NotNil(t, synced.LastSyncAt)
	assert.True(t, at.Equal(*synced.LastSyncAt))

	got, err := repos.Integrations.GetByProvider(ctx, "u1", "GMAIL")
	require.NoError(t, err)
	require.NotNil(t, got)

	page, err := repos.Integrations.List(ctx, "u1", "connected", storage.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestZonesAndTags_AreGlobal(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	z, err := repos.Zones.Create(ctx, &types.Zone{Name: "North", SortOrder: 2})
	require.NoError(t, err)
	_, err = repos.Zones.Create(ctx, &types.Zone{Name: "North"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	got, err := repos.Zones.GetByName(ctx, "North")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, z.ID, got.ID)

	updated, err := repos.Zones.Update(ctx, z.ID, types.ZonePatch{SortOrder: types.Int(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.SortOrder)

	_, err = repos.Tags.Create(ctx, &types.Tag{Name: "vip", Category: "priority"})
	require.NoError(t, err)
	_, err = repos.Tags.Create(ctx, &types.Tag{Name: "lead-magnet", Category: "source"})
	require.NoError(t, err)

	page, err := repos.Tags.List(ctx, "priority", storage.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "vip", page.Items[0].Name)

	n, err := repos.Zones.Delete(ctx, z.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
