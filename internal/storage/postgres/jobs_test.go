package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

func TestJobs_CreateForcesQueued(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	job, err := repos.Jobs.Create(ctx, &types.Job{
		UserID: "u1", Kind: "import_contacts", Status: types.JobCompleted, Attempts: 7,
		Payload: json.RawMessage(`{"file": "contacts.csv"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, job.Status)
	assert.Equal(t, 0, job.Attempts)
	assert.Nil(t, job.StartedAt)
	assert.JSONEq(t, `{"file":"contacts.csv"}`, string(job.Payload))

	_, err = repos.Jobs.Create(ctx, &types.Job{UserID: "u1", Kind: "x", Payload: json.RawMessage(`{`)})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = repos.Jobs.Create(ctx, &types.Job{UserID: "u1"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestJobs_StatusLifecycle(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	job, err := repos.Jobs.Create(ctx, &types.Job{UserID: "u1", Kind: "embed_notes"})
	require.NoError(t, err)

	job, err = repos.Jobs.UpdateJobStatus(ctx, "u1", job.ID, types.JobProcessing, "")
	require.NoError(t, err)
	assert.Equal(t, types.JobProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)

	job, err = repos.Jobs.UpdateJobStatus(ctx, "u1", job.ID, types.JobRetrying, "boom")
	require.NoError(t, err)
	assert.Equal(t, "boom", job.LastError)
	assert.Equal(t, 1, job.Attempts)

	job, err = repos.Jobs.UpdateJobStatus(ctx, "u1", job.ID, types.JobProcessing, "")
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempts)

	job, err = repos.Jobs.UpdateJobStatus(ctx, "u1", job.ID, types.JobCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.Status)
	assert.Equal(t, "boom", job.LastError, "an empty error keeps the last one")
	require.NotNil(t, job.CompletedAt)

	_, err = repos.Jobs.UpdateJobStatus(ctx, "u1", job.ID, "paused", "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	missing, err := repos.Jobs.UpdateJobStatus(ctx, "u1", "missing", types.JobFailed, "")
	require.NoError(t, err)
	assert.Nil(t, missing)

	other, err := repos.Jobs.UpdateJobStatus(ctx, "u2", job.ID, types.JobFailed, "")
	require.NoError(t, err)
	assert.Nil(t, other, "jobs of another user are invisible")
}

func TestJobs_FindStuckJobs(t *testing.T) {
	gw, repos := newTestRepos(t)
	ctx := context.Background()

	stuck, err := repos.Jobs.Create(ctx, &types.Job{UserID: "u1", Kind: "sync"})
	require.NoError(t, err)
	fresh, err := repos.Jobs.Create(ctx, &types.Job{UserID: "u1", Kind: "sync"})
	require.NoError(t, err)
	queued, err := repos.Jobs.Create(ctx, &types.Job{UserID: "u1", Kind: "sync"})
	require.NoError(t, err)

	for _, id := range []string{stuck.ID, fresh.ID} {
		_, err := repos.Jobs.UpdateJobStatus(ctx, "u1", id, types.JobProcessing, "")
		require.NoError(t, err)
	}
	_, err = gw.ExecContext(ctx, "UPDATE jobs SET started_at = NOW() - INTERVAL '2 hours' WHERE id = $1", stuck.ID)
	require.NoError(t, err)
	_, err = gw.ExecContext(ctx, "UPDATE jobs SET updated_at = NOW() - INTERVAL '2 hours' WHERE id = $1", queued.ID)
	require.NoError(t, err)

	found, err := repos.Jobs.FindStuckJobs(ctx, "u1", time.Hour)
	require.NoError(t, err)
	require.Len(t, found, 1, "only processing jobs can be stuck")
	assert.Equal(t, stuck.ID, found[0].ID)

	found, err = repos.Jobs.FindStuckJobs(ctx, "u1", 3*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = repos.Jobs.FindStuckJobs(ctx, "u2", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestJobs_CountsAndBatches(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	var batch []string
	for i := 0; i < 3; i++ {
		j, err := repos.Jobs.Create(ctx, &types.Job{UserID: "u1", Kind: "embed", BatchID: "b1"})
		require.NoError(t, err)
		batch = append(batch, j.ID)
	}
	_, err := repos.Jobs.Create(ctx, &types.Job{UserID: "u1", Kind: "embed", BatchID: "b2"})
	require.NoError(t, err)

	_, err = repos.Jobs.UpdateJobStatus(ctx, "u1", batch[0], types.JobFailed, "timeout")
	require.NoError(t, err)

	counts, err := repos.Jobs.CountByStatus(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCounts{types.JobQueued: 2, types.JobFailed: 1}, counts)

	counts, err = repos.Jobs.CountByStatus(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 3, counts[types.JobQueued])

	page, err := repos.Jobs.List(ctx, "u1", types.JobFilter{Statuses: []types.JobStatus{types.JobFailed}}, storage.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, batch[0], page.Items[0].ID)

	n, err := repos.Jobs.DeleteBatch(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = repos.Jobs.DeleteBatch(ctx, "u1", "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	counts, err = repos.Jobs.CountByStatus(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCounts{types.JobQueued: 1}, counts)
}
