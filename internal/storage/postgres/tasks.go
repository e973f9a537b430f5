package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const taskColumns = `id, user_id, contact_id, name, description, status, priority, due_date, completed_at, created_at, updated_at`

// TaskRepository implements storage.TaskRepository using PostgreSQL.
type TaskRepository struct {
	h Handle
	t *table[types.Task]
}

// NewTaskRepository creates a task repository on h.
func NewTaskRepository(h Handle) *TaskRepository {
	return &TaskRepository{
		h: h,
		t: &table[types.Task]{
			name:    "tasks",
			columns: taskColumns,
			scan:    scanTask,
			sortable: map[string]bool{
				"created_at": true,
				"updated_at": true,
				"due_date":   true,
				"priority":   true,
				"name":       true,
			},
			defaultSort: "created_at",
			touch:       true,
		},
	}
}

// List returns one page of the user's tasks matching filter.
func (r *TaskRepository) List(ctx context.Context, userID string, filter types.TaskFilter, opts storage.ListOptions) (*storage.PaginatedResult[types.Task], error) {
	const op = "postgres: list tasks"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	w := (&where{}).eq("user_id", userID).
		eqIf("contact_id", filter.ContactID).
		anyOf("status", filter.Statuses).
		eqIf("priority", filter.Priority).
		before("due_date", filter.DueBefore).
		ilikeAny(filter.Search, "name", "description")
	return r.t.list(ctx, r.h, op, w, opts)
}

// Get retrieves a task by ID. Returns nil when it does not exist.
func (r *TaskRepository) Get(ctx context.Context, userID, id string) (*types.Task, error) {
	return r.t.get(ctx, r.h, "postgres: get task", (&where{}).eq("user_id", userID).eq("id", id))
}

// Create inserts a task and returns the stored row.
func (r *TaskRepository) Create(ctx context.Context, task *types.Task) (*types.Task, error) {
	const op = "postgres: create task"
	if task == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := requireUser(op, task.UserID); err != nil {
		return nil, err
	}
	if task.Name == "" {
		return nil, fmt.Errorf("%s: %w: name is required", op, storage.ErrInvalidInput)
	}

	t := *task
	stamp(&t.CreatedAt, &t.UpdatedAt)
	if t.Status == "" {
		t.Status = types.TaskOpen
	}

	return r.t.insert(ctx, r.h, op,
		[]string{"id", "user_id", "contact_id", "name", "description", "status", "priority", "due_date", "completed_at", "created_at", "updated_at"},
		newID(t.ID), t.UserID, nullableString(t.ContactID), t.Name, nullableString(t.Description), t.Status,
		nullableString(t.Priority), nullableTimePtr(t.DueDate), nullableTimePtr(t.CompletedAt), t.CreatedAt, t.UpdatedAt,
	)
}

// Update applies p to a task. Returns nil when it does not exist.
func (r *TaskRepository) Update(ctx context.Context, userID, id string, p types.TaskPatch) (*types.Task, error) {
	var set patch
	if p.ContactID != nil {
		set.set("contact_id", nullableString(*p.ContactID))
	}
	if p.Name != nil {
		set.set("name", *p.Name)
	}
	if p.Description != nil {
		set.set("description", nullableString(*p.Description))
	}
	if p.Status != nil {
		set.set("status", *p.Status)
	}
	if p.Priority != nil {
		set.set("priority", nullableString(*p.Priority))
	}
	if p.DueDate != nil {
		set.set("due_date", nullableTimePtr(p.DueDate))
	}
	if p.CompletedAt != nil {
		set.set("completed_at", nullableTimePtr(p.CompletedAt))
	}
	return r.t.update(ctx, r.h, "postgres: update task", &set, (&where{}).eq("user_id", userID).eq("id", id))
}

// Delete removes a task.
func (r *TaskRepository) Delete(ctx context.Context, userID, id string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: delete task", (&where{}).eq("user_id", userID).eq("id", id))
}

// DeleteAllForUser removes every task the user owns.
func (r *TaskRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	const op = "postgres: delete tasks for user"
	if err := requireUser(op, userID); err != nil {
		return 0, err
	}
	return r.t.delete(ctx, r.h, op, (&where{}).eq("user_id", userID))
}

func scanTask(s scanner) (types.Task, error) {
	var (
		t           types.Task
		contactID   sql.NullString
		description sql.NullString
		priority    sql.NullString
		dueDate     sql.NullTime
		completedAt sql.NullTime
	)
	err := s.Scan(&t.ID, &t.UserID, &contactID, &t.Name, &description, &t.Status, &priority,
		&dueDate, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.ContactID = contactID.String
	t.Description = description.String
	t.Priority = priority.String
	t.DueDate = timePtr(dueDate)
	t.CompletedAt = timePtr(completedAt)
	return t, nil
}
