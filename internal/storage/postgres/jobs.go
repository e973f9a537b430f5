package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const jobColumns = `id, user_id, kind, payload, status, attempts, last_error, batch_id, started_at, completed_at, created_at, updated_at`

// JobRepository implements storage.JobRepository using PostgreSQL.
// It stores job records only; workers outside this package drive status.
type JobRepository struct {
	h Handle
	t *table[types.Job]
}

// NewJobRepository creates a job repository on h.
func NewJobRepository(h Handle) *JobRepository {
	return &JobRepository{
		h: h,
		t: &table[types.Job]{
			name:    "jobs",
			columns: jobColumns,
			scan:    scanJob,
			sortable: map[string]bool{
				"created_at": true,
				"updated_at": true,
				"status":     true,
				"attempts":   true,
			},
			defaultSort: "created_at",
			touch:       true,
		},
	}
}

// List returns one page of the user's jobs matching filter.
func (r *JobRepository) List(ctx context.Context, userID string, filter types.JobFilter, opts storage.ListOptions) (*storage.PaginatedResult[types.Job], error) {
	const op = "postgres: list jobs"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	statuses := make([]string, len(filter.Statuses))
	for i, s := range filter.Statuses {
		statuses[i] = string(s)
	}
	w := (&where{}).eq("user_id", userID).
		anyOf("status", statuses).
		eqIf("kind", filter.Kind).
		eqIf("batch_id", filter.BatchID)
	return r.t.list(ctx, r.h, op, w, opts)
}

// Get retrieves a job by ID. Returns nil when it does not exist.
func (r *JobRepository) Get(ctx context.Context, userID, id string) (*types.Job, error) {
	return r.t.get(ctx, r.h, "postgres: get job", (&where{}).eq("user_id", userID).eq("id", id))
}

// Create inserts a job. New jobs always start queued with zero attempts,
// whatever the caller set.
func (r *JobRepository) Create(ctx context.Context, job *types.Job) (*types.Job, error) {
	const op = "postgres: create job"
	if job == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := requireUser(op, job.UserID); err != nil {
		return nil, err
	}
	if job.Kind == "" {
		return nil, fmt.Errorf("%s: %w: kind is required", op, storage.ErrInvalidInput)
	}
	if len(job.Payload) > 0 && !json.Valid(job.Payload) {
		return nil, fmt.Errorf("%s: %w: payload is not valid JSON", op, storage.ErrInvalidInput)
	}

	j := *job
	stamp(&j.CreatedAt, &j.UpdatedAt)

	return r.t.insert(ctx, r.h, op,
		[]string{"id", "user_id", "kind", "payload", "status", "attempts", "batch_id", "created_at", "updated_at"},
		newID(j.ID), j.UserID, j.Kind, nullableBytes(j.Payload), string(types.JobQueued), 0,
		nullableString(j.BatchID), j.CreatedAt, j.UpdatedAt,
	)
}

// Update applies p to a job. Status moves only through UpdateJobStatus.
func (r *JobRepository) Update(ctx context.Context, userID, id string, p types.JobPatch) (*types.Job, error) {
	const op = "postgres: update job"

	var set patch
	if p.Kind != nil {
		set.set("kind", *p.Kind)
	}
	if p.Payload != nil {
		if len(*p.Payload) > 0 && !json.Valid(*p.Payload) {
			return nil, fmt.Errorf("%s: %w: payload is not valid JSON", op, storage.ErrInvalidInput)
		}
		set.set("payload", nullableBytes(*p.Payload))
	}
	if p.BatchID != nil {
		set.set("batch_id", nullableString(*p.BatchID))
	}
	return r.t.update(ctx, r.h, op, &set, (&where{}).eq("user_id", userID).eq("id", id))
}

// UpdateJobStatus moves a job to status. Entering processing increments
// attempts and stamps started_at; entering completed or failed stamps
// completed_at. A non-empty lastError replaces the stored one.
// Returns nil when the job does not exist. Transitions are not validated.
func (r *JobRepository) UpdateJobStatus(ctx context.Context, userID, id string, status types.JobStatus, lastError string) (*types.Job, error) {
	const op = "postgres: update job status"
	if !types.IsValidJobStatus(status) {
		return nil, fmt.Errorf("%s: %w: unknown job status %q", op, storage.ErrInvalidInput, status)
	}

	query := `
		UPDATE jobs SET
			status = $1::text,
			attempts = attempts + CASE WHEN $1::text = 'processing' THEN 1 ELSE 0 END,
			started_at = CASE WHEN $1::text = 'processing' THEN NOW() ELSE started_at END,
			completed_at = CASE WHEN $1::text IN ('completed', 'failed') THEN NOW() ELSE completed_at END,
			last_error = COALESCE(NULLIF($2::text, ''), last_error),
			updated_at = NOW()
		WHERE user_id = $3 AND id = $4
		RETURNING ` + jobColumns

	job, err := scanJob(r.h.QueryRowContext(ctx, query, string(status), lastError, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Wrap(op, storage.CodeUpdateFailed, err)
	}
	return &job, nil
}

// FindStuckJobs returns the user's jobs that have been processing for longer
// than threshold, oldest first. They are reported, not recovered.
func (r *JobRepository) FindStuckJobs(ctx context.Context, userID string, threshold time.Duration) ([]types.Job, error) {
	const op = "postgres: find stuck jobs"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	query := "SELECT " + jobColumns + ` FROM jobs
		WHERE user_id = $1
		  AND status = 'processing'
		  AND COALESCE(started_at, updated_at) < NOW() - ($2::double precision * INTERVAL '1 second')
		ORDER BY COALESCE(started_at, updated_at) ASC, id ASC`
	return r.t.query(ctx, r.h, op, query, userID, threshold.Seconds())
}

// CountByStatus counts the user's jobs per status, optionally within one
// batch. Statuses with no jobs are absent from the result.
func (r *JobRepository) CountByStatus(ctx context.Context, userID, batchID string) (types.JobStatusCounts, error) {
	const op = "postgres: count jobs by status"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}

	w := (&where{}).eq("user_id", userID).eqIf("batch_id", batchID)
	rows, err := r.h.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs"+w.render(0)+" GROUP BY status", w.args...)
	if err != nil {
		return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(types.JobStatusCounts)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
		}
		counts[types.JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
	}
	return counts, nil
}

// DeleteBatch removes every job in a batch.
func (r *JobRepository) DeleteBatch(ctx context.Context, userID, batchID string) (int64, error) {
	const op = "postgres: delete job batch"
	if batchID == "" {
		return 0, fmt.Errorf("%s: %w: batch ID is required", op, storage.ErrInvalidInput)
	}
	return r.t.delete(ctx, r.h, op, (&where{}).eq("user_id", userID).eq("batch_id", batchID))
}

// Delete removes a job.
func (r *JobRepository) Delete(ctx context.Context, userID, id string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: delete job", (&where{}).eq("user_id", userID).eq("id", id))
}

// DeleteAllForUser removes every job the user owns.
func (r *JobRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	const op = "postgres: delete jobs for user"
	if err := requireUser(op, userID); err != nil {
		return 0, err
	}
	return r.t.delete(ctx, r.h, op, (&where{}).eq("user_id", userID))
}

func scanJob(s scanner) (types.Job, error) {
	var (
		j           types.Job
		payload     sql.NullString
		status      string
		lastError   sql.NullString
		batchID     sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := s.Scan(&j.ID, &j.UserID, &j.Kind, &payload, &status, &j.Attempts, &lastError, &batchID,
		&startedAt, &completedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return j, err
	}
	j.Payload = rawJSON(payload)
	j.Status = types.JobStatus(status)
	j.LastError = lastError.String
	j.BatchID = batchID.String
	j.StartedAt = timePtr(startedAt)
	j.CompletedAt = timePtr(completedAt)
	return j, nil
}
