package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const identityColumns = `id, user_id, contact_id, kind, value, provider, created_at, updated_at`

// IdentityRepository implements storage.IdentityRepository using PostgreSQL.
//
// An identity (kind, normalized value, provider) is bound to exactly one of
// the user's contacts at a time. Adding an identity that already exists moves
// it to the new contact without any record of the previous binding; callers
// that must not reassign should check FindContactsByIdentity first.
type IdentityRepository struct {
	h Handle
	t *table[types.ContactIdentity]
}

// NewIdentityRepository creates an identity repository on h.
func NewIdentityRepository(h Handle) *IdentityRepository {
	return &IdentityRepository{
		h: h,
		t: &table[types.ContactIdentity]{
			name:    "contact_identities",
			columns: identityColumns,
			scan:    scanIdentity,
		},
	}
}

// AddEmail binds a lowercased email address to contactID.
func (r *IdentityRepository) AddEmail(ctx context.Context, userID, contactID, email string) (*types.ContactIdentity, error) {
	return r.add(ctx, userID, contactID, types.IdentityEmail, email, "")
}

// AddPhone binds the digits of a phone number to contactID.
func (r *IdentityRepository) AddPhone(ctx context.Context, userID, contactID, phone string) (*types.ContactIdentity, error) {
	return r.add(ctx, userID, contactID, types.IdentityPhone, phone, "")
}

// AddHandle binds a lowercased social handle to contactID. provider may be
// empty.
func (r *IdentityRepository) AddHandle(ctx context.Context, userID, contactID, handle, provider string) (*types.ContactIdentity, error) {
	return r.add(ctx, userID, contactID, types.IdentityHandle, handle, provider)
}

// AddProviderID binds a provider-specific identifier to contactID. provider is
// required.
func (r *IdentityRepository) AddProviderID(ctx context.Context, userID, contactID, providerID, provider string) (*types.ContactIdentity, error) {
	if types.NormalizeProvider(provider) == "" {
		return nil, fmt.Errorf("postgres: add identity: %w: provider is required for provider ids", storage.ErrInvalidInput)
	}
	return r.add(ctx, userID, contactID, types.IdentityProviderID, providerID, provider)
}

// add normalizes and upserts one identity. The statement inserts nothing when
// contactID is not one of the user's contacts.
func (r *IdentityRepository) add(ctx context.Context, userID, contactID string, kind types.IdentityKind, value, provider string) (*types.ContactIdentity, error) {
	const op = "postgres: add identity"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	if contactID == "" {
		return nil, fmt.Errorf("%s: %w: contact ID is required", op, storage.ErrInvalidInput)
	}

	value = types.NormalizeIdentityValue(kind, value)
	if value == "" {
		return nil, fmt.Errorf("%s: %w: empty %s", op, storage.ErrInvalidInput, kind)
	}
	if !types.KindTakesProvider(kind) {
		provider = ""
	}
	provider = types.NormalizeProvider(provider)

	now := time.Now().UTC()
	query := `
		INSERT INTO contact_identities (id, user_id, contact_id, kind, value, provider, created_at, updated_at)
		SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::text, $7::timestamptz, $7::timestamptz
		WHERE EXISTS (SELECT 1 FROM contacts WHERE id = $3 AND user_id = $2)
		ON CONFLICT (user_id, kind, value, (COALESCE(provider, ''))) DO UPDATE SET
			contact_id = EXCLUDED.contact_id,
			updated_at = NOW()
		RETURNING ` + identityColumns

	identity, err := r.t.insertQuery(ctx, r.h, op, query,
		newID(""), userID, contactID, string(kind), value, nullableString(provider), now)
	if errors.Is(err, storage.ErrNoRowsReturned) {
		return nil, fmt.Errorf("%s: %w: contact %s not found", op, storage.ErrInvalidInput, contactID)
	}
	return identity, err
}

// Resolve returns the contact bound to the first identifier in q that
// matches, trying email, phone, handle and provider id in that order. An empty
// provider in q matches any provider. ok is false when nothing matches.
func (r *IdentityRepository) Resolve(ctx context.Context, userID string, q types.ResolveQuery) (contactID string, ok bool, err error) {
	const op = "postgres: resolve identity"
	if err := requireUser(op, userID); err != nil {
		return "", false, err
	}

	for _, c := range resolveCandidates(q) {
		id, err := r.lookup(ctx, op, userID, c.kind, c.value, c.provider)
		if err != nil {
			return "", false, err
		}
		if id != "" {
			return id, true, nil
		}
	}
	return "", false, nil
}

type identityCandidate struct {
	kind     types.IdentityKind
	value    string
	provider string
}

// resolveCandidates lists the populated, normalized identifiers of q in
// resolution order.
func resolveCandidates(q types.ResolveQuery) []identityCandidate {
	all := []identityCandidate{
		{types.IdentityEmail, types.NormalizeEmail(q.Email), ""},
		{types.IdentityPhone, types.NormalizePhone(q.Phone), ""},
		{types.IdentityHandle, types.NormalizeHandle(q.Handle), types.NormalizeProvider(q.HandleProvider)},
		{types.IdentityProviderID, types.NormalizeIdentityValue(types.IdentityProviderID, q.ProviderID), types.NormalizeProvider(q.ProviderIDSource)},
	}
	out := all[:0]
	for _, c := range all {
		if c.value != "" {
			out = append(out, c)
		}
	}
	return out
}

// lookup returns the contact bound to one normalized identity, or "".
func (r *IdentityRepository) lookup(ctx context.Context, op, userID string, kind types.IdentityKind, value, provider string) (string, error) {
	w := (&where{}).eq("user_id", userID).eq("kind", string(kind)).eq("value", value)
	if provider != "" {
		w.add("COALESCE(provider, '') = ?", provider)
	}
	query := "SELECT contact_id FROM contact_identities" + w.render(0) + " ORDER BY updated_at DESC, id LIMIT 1"

	var contactID string
	err := r.h.QueryRowContext(ctx, query, w.args...).Scan(&contactID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storage.Wrap(op, storage.CodeQueryFailed, err)
	}
	return contactID, nil
}

// FindContactsByIdentity returns every distinct contact sharing the identity.
// The value is normalized for kind; an empty provider matches any provider.
func (r *IdentityRepository) FindContactsByIdentity(ctx context.Context, userID string, kind types.IdentityKind, value, provider string) ([]string, error) {
	const op = "postgres: find contacts by identity"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	if !types.IsValidIdentityKind(kind) {
		return nil, fmt.Errorf("%s: %w: unknown identity kind %q", op, storage.ErrInvalidInput, kind)
	}

	w := (&where{}).eq("user_id", userID).eq("kind", string(kind)).eq("value", types.NormalizeIdentityValue(kind, value))
	if p := types.NormalizeProvider(provider); p != "" && types.KindTakesProvider(kind) {
		w.add("COALESCE(provider, '') = ?", p)
	}

	rows, err := r.h.QueryContext(ctx, "SELECT DISTINCT contact_id FROM contact_identities"+w.render(0)+" ORDER BY contact_id", w.args...)
	if err != nil {
		return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
	}
	return ids, nil
}

// FindDuplicateIdentities returns each (kind, value, provider) group bound to
// more than one distinct contact. The unique index normally prevents this;
// groups appear when rows were written around it.
func (r *IdentityRepository) FindDuplicateIdentities(ctx context.Context, userID string) ([]types.DuplicateIdentity, error) {
	const op = "postgres: find duplicate identities"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}

	query := `
		SELECT kind, value, COALESCE(provider, '') AS provider,
			array_agg(DISTINCT contact_id ORDER BY contact_id)
		FROM contact_identities
		WHERE user_id = $1
		GROUP BY kind, value, COALESCE(provider, '')
		HAVING COUNT(DISTINCT contact_id) > 1
		ORDER BY kind, value, provider`

	rows, err := r.h.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
	}
	defer func() { _ = rows.Close() }()

	groups := make([]types.DuplicateIdentity, 0)
	for rows.Next() {
		var (
			d    types.DuplicateIdentity
			kind string
		)
		if err := rows.Scan(&kind, &d.Value, &d.Provider, pq.Array(&d.ContactIDs)); err != nil {
			return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
		}
		d.Kind = types.IdentityKind(kind)
		groups = append(groups, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
	}
	return groups, nil
}

// MergeIdentities moves every identity of fromContact to toContact, then
// deletes what is left on fromContact (identities toContact already owns).
// Both steps run in one transaction. Contact records are not merged here.
func (r *IdentityRepository) MergeIdentities(ctx context.Context, userID, fromContact, toContact string) (*types.MergeResult, error) {
	const op = "postgres: merge identities"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	if fromContact == "" || toContact == "" {
		return nil, fmt.Errorf("%s: %w: both contacts are required", op, storage.ErrInvalidInput)
	}
	if fromContact == toContact {
		return &types.MergeResult{}, nil
	}

	result := &types.MergeResult{}
	err := r.h.InTx(ctx, func(tx DBTX) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM contacts WHERE user_id = $1 AND id = $2)", userID, toContact).Scan(&exists)
		if err != nil {
			return storage.Wrap(op, storage.CodeQueryFailed, err)
		}
		if !exists {
			return fmt.Errorf("%s: %w: contact %s not found", op, storage.ErrInvalidInput, toContact)
		}

		moved, err := execCount(ctx, tx, op, storage.CodeUpdateFailed, `
			UPDATE contact_identities f
			SET contact_id = $3, updated_at = NOW()
			WHERE f.user_id = $1 AND f.contact_id = $2
			  AND NOT EXISTS (
				SELECT 1 FROM contact_identities t
				WHERE t.user_id = f.user_id
				  AND t.contact_id = $3
				  AND t.kind = f.kind
				  AND t.value = f.value
				  AND COALESCE(t.provider, '') = COALESCE(f.provider, '')
			  )`, userID, fromContact, toContact)
		if err != nil {
			return err
		}

		dropped, err := execCount(ctx, tx, op, storage.CodeDeleteFailed,
			"DELETE FROM contact_identities WHERE user_id = $1 AND contact_id = $2", userID, fromContact)
		if err != nil {
			return err
		}

		result.Moved = moved
		result.Dropped = dropped
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetContactIdentities returns every identity bound to contactID.
func (r *IdentityRepository) GetContactIdentities(ctx context.Context, userID, contactID string) ([]types.ContactIdentity, error) {
	query := "SELECT " + identityColumns + ` FROM contact_identities
		WHERE user_id = $1 AND contact_id = $2
		ORDER BY kind, value, id`
	return r.t.query(ctx, r.h, "postgres: get contact identities", query, userID, contactID)
}

// RemoveIdentity deletes one identity by ID.
func (r *IdentityRepository) RemoveIdentity(ctx context.Context, userID, id string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: remove identity", (&where{}).eq("user_id", userID).eq("id", id))
}

// RemoveAllForContact deletes every identity bound to contactID.
func (r *IdentityRepository) RemoveAllForContact(ctx context.Context, userID, contactID string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: remove contact identities", (&where{}).eq("user_id", userID).eq("contact_id", contactID))
}

func scanIdentity(s scanner) (types.ContactIdentity, error) {
	var (
		ci       types.ContactIdentity
		kind     string
		provider sql.NullString
	)
	err := s.Scan(&ci.ID, &ci.UserID, &ci.ContactID, &kind, &ci.Value, &provider, &ci.CreatedAt, &ci.UpdatedAt)
	if err != nil {
		return ci, err
	}
	ci.Kind = types.IdentityKind(kind)
	ci.Provider = provider.String
	return ci, nil
}
