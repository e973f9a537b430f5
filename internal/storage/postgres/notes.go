package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const noteColumns = `id, user_id, contact_id, title, content_plain, content_rich, tags, created_at, updated_at`

// NoteRepository implements storage.NoteRepository using PostgreSQL.
type NoteRepository struct {
	h Handle
	t *table[types.Note]
}

// NewNoteRepository creates a note repository on h.
func NewNoteRepository(h Handle) *NoteRepository {
	return &NoteRepository{
		h: h,
		t: &table[types.Note]{
			name:        "notes",
			columns:     noteColumns,
			scan:        scanNote,
			sortable:    map[string]bool{"created_at": true, "updated_at": true, "title": true},
			defaultSort: "created_at",
			touch:       true,
		},
	}
}

// List returns one page of the user's notes matching filter.
func (r *NoteRepository) List(ctx context.Context, userID string, filter types.NoteFilter, opts storage.ListOptions) (*storage.PaginatedResult[types.Note], error) {
	const op = "postgres: list notes"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	w := (&where{}).eq("user_id", userID).
		eqIf("contact_id", filter.ContactID).
		overlaps("tags", filter.Tags).
		ilikeAny(filter.Search, "title", "content_plain")
	return r.t.list(ctx, r.h, op, w, opts)
}

// Get retrieves a note by ID. Returns nil when it does not exist.
func (r *NoteRepository) Get(ctx context.Context, userID, id string) (*types.Note, error) {
	return r.t.get(ctx, r.h, "postgres: get note", (&where{}).eq("user_id", userID).eq("id", id))
}

// Create inserts a note and returns the stored row.
func (r *NoteRepository) Create(ctx context.Context, note *types.Note) (*types.Note, error) {
	const op = "postgres: create note"
	if note == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := requireUser(op, note.UserID); err != nil {
		return nil, err
	}

	n := *note
	stamp(&n.CreatedAt, &n.UpdatedAt)

	return r.t.insert(ctx, r.h, op,
		[]string{"id", "user_id", "contact_id", "title", "content_plain", "content_rich", "tags", "created_at", "updated_at"},
		newID(n.ID), n.UserID, nullableString(n.ContactID), nullableString(n.Title),
		n.ContentPlain, nullableString(n.ContentRich), textArray(n.Tags), n.CreatedAt, n.UpdatedAt,
	)
}

// Update applies p to a note. Returns nil when the note does not exist.
func (r *NoteRepository) Update(ctx context.Context, userID, id string, p types.NotePatch) (*types.Note, error) {
	var set patch
	if p.ContactID != nil {
		set.set("contact_id", nullableString(*p.ContactID))
	}
	if p.Title != nil {
		set.set("title", nullableString(*p.Title))
	}
	if p.ContentPlain != nil {
		set.set("content_plain", *p.ContentPlain)
	}
	if p.ContentRich != nil {
		set.set("content_rich", nullableString(*p.ContentRich))
	}
	if p.Tags != nil {
		set.set("tags", textArray(*p.Tags))
	}
	return r.t.update(ctx, r.h, "postgres: update note", &set, (&where{}).eq("user_id", userID).eq("id", id))
}

// Delete removes a note.
func (r *NoteRepository) Delete(ctx context.Context, userID, id string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: delete note", (&where{}).eq("user_id", userID).eq("id", id))
}

// DeleteAllForUser removes every note the user owns.
func (r *NoteRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	const op = "postgres: delete notes for user"
	if err := requireUser(op, userID); err != nil {
		return 0, err
	}
	return r.t.delete(ctx, r.h, op, (&where{}).eq("user_id", userID))
}

func scanNote(s scanner) (types.Note, error) {
	var (
		n         types.Note
		contactID sql.NullString
		title     sql.NullString
		rich      sql.NullString
	)
	err := s.Scan(&n.ID, &n.UserID, &contactID, &title, &n.ContentPlain, &rich,
		pq.Array(&n.Tags), &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return n, err
	}
	n.ContactID = contactID.String
	n.Title = title.String
	n.ContentRich = rich.String
	return n, nil
}
