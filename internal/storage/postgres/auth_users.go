package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

// DefaultAuthUsersTable is the identity provider table read when none is
// configured. It matches the local users mirror created by Schema.
const DefaultAuthUsersTable = "users"

// tableNamePattern accepts "table" or "schema.table" with plain identifiers.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// errMalformedAuthUser is returned when the provider row lacks an id or email.
var errMalformedAuthUser = errors.New("auth user row is missing id or email")

// AuthUserRepository reads users from the external identity provider's table.
// It never writes.
type AuthUserRepository struct {
	h     Handle
	table string
}

// NewAuthUserRepository creates a read-only view of the provider table. The
// table name is validated because it is interpolated into SQL.
func NewAuthUserRepository(h Handle, table string) (*AuthUserRepository, error) {
	if table == "" {
		table = DefaultAuthUsersTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("postgres: %w: invalid auth users table %q", storage.ErrInvalidInput, table)
	}
	return &AuthUserRepository{h: h, table: table}, nil
}

// GetUser returns the user with id, or nil when the provider has no such user.
func (r *AuthUserRepository) GetUser(ctx context.Context, id string) (*types.AuthUser, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("postgres: get auth user: %w: id is required", storage.ErrInvalidInput)
	}
	return r.getOne(ctx, "postgres: get auth user", "id::text = $1", id)
}

// GetUserByEmail returns the user with email (case-insensitive), or nil.
func (r *AuthUserRepository) GetUserByEmail(ctx context.Context, email string) (*types.AuthUser, error) {
	email = types.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("postgres: get auth user by email: %w: email is required", storage.ErrInvalidInput)
	}
	return r.getOne(ctx, "postgres: get auth user by email", "lower(email) = $1", email)
}

func (r *AuthUserRepository) getOne(ctx context.Context, op, cond string, arg string) (*types.AuthUser, error) {
	query := fmt.Sprintf(`
		SELECT id::text, email,
			COALESCE(raw_user_meta_data->>'full_name', raw_user_meta_data->>'name', ''),
			COALESCE(raw_user_meta_data->>'avatar_url', '')
		FROM %s
		WHERE %s
		LIMIT 1`, r.table, cond)

	var (
		u     types.AuthUser
		email sql.NullString
	)
	err := r.h.QueryRowContext(ctx, query, arg).Scan(&u.ID, &email, &u.DisplayName, &u.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Wrap(op, storage.CodeDatabaseError, err)
	}

	u.Email = email.String
	if err := validateAuthUser(u); err != nil {
		return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
	}
	return &u, nil
}

func validateAuthUser(u types.AuthUser) error {
	if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Email) == "" {
		return errMalformedAuthUser
	}
	return nil
}
