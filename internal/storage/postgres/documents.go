package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const documentColumns = `id, user_id, contact_id, title, file_name, mime_type, size_bytes, storage_path, status, created_at, updated_at`

// DocumentRepository implements storage.DocumentRepository using PostgreSQL.
// Only metadata is stored; file bytes live in object storage at StoragePath.
type DocumentRepository struct {
	h Handle
	t *table[types.Document]
}

// NewDocumentRepository creates a document repository on h.
func NewDocumentRepository(h Handle) *DocumentRepository {
	return &DocumentRepository{
		h: h,
		t: &table[types.Document]{
			name:    "documents",
			columns: documentColumns,
			scan:    scanDocument,
			sortable: map[string]bool{
				"created_at": true,
				"updated_at": true,
				"title":      true,
				"size_bytes": true,
			},
			defaultSort: "created_at",
			touch:       true,
		},
	}
}

// List returns one page of the user's documents matching filter.
func (r *DocumentRepository) List(ctx context.Context, userID string, filter types.DocumentFilter, opts storage.ListOptions) (*storage.PaginatedResult[types.Document], error) {
	const op = "postgres: list documents"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	w := (&where{}).eq("user_id", userID).
		eqIf("contact_id", filter.ContactID).
		eqIf("status", filter.Status).
		anyOf("mime_type", filter.MimeTypes).
		ilikeAny(filter.Search, "title", "file_name")
	return r.t.list(ctx, r.h, op, w, opts)
}

// Get retrieves a document by ID. Returns nil when it does not exist.
func (r *DocumentRepository) Get(ctx context.Context, userID, id string) (*types.Document, error) {
	return r.t.get(ctx, r.h, "postgres: get document", (&where{}).eq("user_id", userID).eq("id", id))
}

// Create inserts a document and returns the stored row.
func (r *DocumentRepository) Create(ctx context.Context, doc *types.Document) (*types.Document, error) {
	const op = "postgres: create document"
	if doc == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := requireUser(op, doc.UserID); err != nil {
		return nil, err
	}
	if doc.FileName == "" {
		return nil, fmt.Errorf("%s: %w: file name is required", op, storage.ErrInvalidInput)
	}

	d := *doc
	stamp(&d.CreatedAt, &d.UpdatedAt)
	if d.Title == "" {
		d.Title = d.FileName
	}
	if d.Status == "" {
		d.Status = "uploaded"
	}

	return r.t.insert(ctx, r.h, op,
		[]string{"id", "user_id", "contact_id", "title", "file_name", "mime_type", "size_bytes", "storage_path", "status", "created_at", "updated_at"},
		newID(d.ID), d.UserID, nullableString(d.ContactID), d.Title, d.FileName, nullableString(d.MimeType),
		d.SizeBytes, nullableString(d.StoragePath), d.Status, d.CreatedAt, d.UpdatedAt,
	)
}

// Update applies p to a document. Returns nil when it does not exist.
func (r *DocumentRepository) Update(ctx context.Context, userID, id string, p types.DocumentPatch) (*types.Document, error) {
	var set patch
	if p.ContactID != nil {
		set.set("contact_id", nullableString(*p.ContactID))
	}
	if p.Title != nil {
		set.set("title", *p.Title)
	}
	if p.MimeType != nil {
		set.set("mime_type", nullableString(*p.MimeType))
	}
	if p.StoragePath != nil {
		set.set("storage_path", nullableString(*p.StoragePath))
	}
	if p.Status != nil {
		set.set("status", *p.Status)
	}
	return r.t.update(ctx, r.h, "postgres: update document", &set, (&where{}).eq("user_id", userID).eq("id", id))
}

// Delete removes a document record.
func (r *DocumentRepository) Delete(ctx context.Context, userID, id string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: delete document", (&where{}).eq("user_id", userID).eq("id", id))
}

// DeleteAllForUser removes every document record the user owns.
func (r *DocumentRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	const op = "postgres: delete documents for user"
	if err := requireUser(op, userID); err != nil {
		return 0, err
	}
	return r.t.delete(ctx, r.h, op, (&where{}).eq("user_id", userID))
}

func scanDocument(s scanner) (types.Document, error) {
	var (
		d         types.Document
		contactID sql.NullString
		mimeType  sql.NullString
		path      sql.NullString
	)
	err := s.Scan(&d.ID, &d.UserID, &contactID, &d.Title, &d.FileName, &mimeType,
		&d.SizeBytes, &path, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	d.ContactID = contactID.String
	d.MimeType = mimeType.String
	d.StoragePath = path.String
	return d, nil
}
