package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/scrypster/crmstore/internal/storage"
)

// uniqueViolation is the SQLSTATE PostgreSQL reports for a unique index hit.
const uniqueViolation = "23505"

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// where accumulates AND-ed conditions. Conditions use '?' placeholders which
// are rebound to $N when rendered, so a where clause can follow SET arguments.
type where struct {
	conds []string
	args  []interface{}
}

// add appends a raw condition. expr must contain one '?' per arg.
func (w *where) add(expr string, args ...interface{}) *where {
	w.conds = append(w.conds, expr)
	w.args = append(w.args, args...)
	return w
}

// eq adds col = v.
func (w *where) eq(col string, v interface{}) *where {
	return w.add(col+" = ?", v)
}

// eqIf adds col = v when v is non-empty.
func (w *where) eqIf(col, v string) *where {
	if v == "" {
		return w
	}
	return w.eq(col, v)
}

// anyOf adds col = ANY(vals) when vals is non-empty.
func (w *where) anyOf(col string, vals []string) *where {
	if len(vals) == 0 {
		return w
	}
	return w.add(col+" = ANY(?)", pq.Array(vals))
}

// overlaps adds col && vals for TEXT[] columns when vals is non-empty.
func (w *where) overlaps(col string, vals []string) *where {
	if len(vals) == 0 {
		return w
	}
	return w.add(col+" && ?::text[]", pq.Array(vals))
}

// ilikeAny adds a case-insensitive substring match of term against any of
// cols. LIKE metacharacters in term match literally.
func (w *where) ilikeAny(term string, cols ...string) *where {
	if strings.TrimSpace(term) == "" || len(cols) == 0 {
		return w
	}
	pattern := "%" + escapeLike(term) + "%"
	parts := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		parts[i] = c + " ILIKE ?"
		args[i] = pattern
	}
	return w.add("("+strings.Join(parts, " OR ")+")", args...)
}

// after adds col > t when t is set.
func (w *where) after(col string, t time.Time) *where {
	if t.IsZero() {
		return w
	}
	return w.add(col+" > ?", t)
}

// before adds col < t when t is set.
func (w *where) before(col string, t time.Time) *where {
	if t.IsZero() {
		return w
	}
	return w.add(col+" < ?", t)
}

// render returns " WHERE ..." with placeholders numbered from offset+1, or ""
// when there are no conditions.
func (w *where) render(offset int) string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + rebind(strings.Join(w.conds, " AND "), offset)
}

// rebind replaces each '?' in s with $offset+1, $offset+2, ...
func rebind(s string, offset int) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	n := offset
	for i := 0; i < len(s); i++ {
		if s[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// escapeLike escapes the LIKE metacharacters %, _ and the escape char itself.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// patch accumulates SET assignments for an UPDATE.
type patch struct {
	cols []string
	args []interface{}
}

func (p *patch) set(col string, v interface{}) {
	p.cols = append(p.cols, col)
	p.args = append(p.args, v)
}

func (p *patch) empty() bool {
	return len(p.cols) == 0
}

// render returns "a = $1, b = $2".
func (p *patch) render() string {
	parts := make([]string, len(p.cols))
	for i, c := range p.cols {
		parts[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	return strings.Join(parts, ", ")
}

// table describes the columns a repository reads and how to scan them.
type table[T any] struct {
	name        string
	columns     string
	scan        func(scanner) (T, error)
	sortable    map[string]bool
	defaultSort string
	// touch adds updated_at = NOW() to every UPDATE.
	touch bool
}

// list runs a paginated SELECT and a COUNT(*) under the same predicate.
func (t *table[T]) list(ctx context.Context, q DBTX, op string, w *where, opts storage.ListOptions) (*storage.PaginatedResult[T], error) {
	opts.Normalize(t.sortable, t.defaultSort)

	whereClause := w.render(0)
	args := w.args
	n := len(args)

	// Safe from SQL injection: SortBy and SortOrder were whitelisted by Normalize.
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d",
		t.columns, t.name, whereClause, opts.SortBy, opts.SortOrder, opts.SortOrder, n+1, n+2)
	pageArgs := append(append([]interface{}{}, args...), opts.PageSize, opts.Offset())

	items, err := t.query(ctx, q, op, query, pageArgs...)
	if err != nil {
		return nil, err
	}

	countQuery := "SELECT COUNT(*) FROM " + t.name + whereClause
	var total int
	if err := q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
	}

	return &storage.PaginatedResult[T]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.PageSize,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// query runs a SELECT returning zero or more rows. The result is never nil.
func (t *table[T]) query(ctx context.Context, q DBTX, op, query string, args ...interface{}) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]T, 0)
	for rows.Next() {
		item, err := t.scan(rows)
		if err != nil {
			return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
	}
	return items, nil
}

// get returns the single row matching w, or nil when none does.
func (t *table[T]) get(ctx context.Context, q DBTX, op string, w *where) (*T, error) {
	query := "SELECT " + t.columns + " FROM " + t.name + w.render(0) + " LIMIT 1"
	item, err := t.scan(q.QueryRowContext(ctx, query, w.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Wrap(op, storage.CodeQueryFailed, err)
	}
	return &item, nil
}

// insert runs INSERT ... RETURNING and scans the created row.
func (t *table[T]) insert(ctx context.Context, q DBTX, op string, cols []string, args ...interface{}) (*T, error) {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		t.name, strings.Join(cols, ", "), strings.Join(placeholders, ", "), t.columns)
	return t.insertQuery(ctx, q, op, query, args...)
}

// insertQuery runs a caller-built INSERT ... RETURNING statement.
func (t *table[T]) insertQuery(ctx context.Context, q DBTX, op, query string, args ...interface{}) (*T, error) {
	item, err := t.scan(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNoRowsReturned)
	}
	if err != nil {
		return nil, insertError(op, err)
	}
	return &item, nil
}

// update applies p to the row matching w and returns it, or nil when no row
// matches. An empty patch is rejected with storage.ErrNoFieldsProvided.
func (t *table[T]) update(ctx context.Context, q DBTX, op string, p *patch, w *where) (*T, error) {
	if p.empty() {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNoFieldsProvided)
	}

	set := p.render()
	if t.touch {
		set += ", updated_at = NOW()"
	}
	query := "UPDATE " + t.name + " SET " + set + w.render(len(p.args)) + " RETURNING " + t.columns
	args := append(append([]interface{}{}, p.args...), w.args...)

	item, err := t.scan(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrConflict)
		}
		return nil, storage.Wrap(op, storage.CodeUpdateFailed, err)
	}
	return &item, nil
}

// delete removes the rows matching w and reports how many went.
func (t *table[T]) delete(ctx context.Context, q DBTX, op string, w *where) (int64, error) {
	return execCount(ctx, q, op, storage.CodeDeleteFailed, "DELETE FROM "+t.name+w.render(0), w.args...)
}

// execCount runs a statement and returns the affected row count.
func execCount(ctx context.Context, q DBTX, op string, code storage.Code, query string, args ...interface{}) (int64, error) {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storage.Wrap(op, code, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storage.Wrap(op, code, err)
	}
	return n, nil
}

// insertError maps a failed insert: unique violations become ErrConflict,
// anything else a DB_INSERT_FAILED *storage.Error.
func insertError(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrConflict)
	}
	return storage.Wrap(op, storage.CodeInsertFailed, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// requireUser rejects an empty owning user id.
func requireUser(op, userID string) error {
	if userID == "" {
		return fmt.Errorf("%s: %w: user ID is required", op, storage.ErrInvalidInput)
	}
	return nil
}

// newID returns id, or a fresh UUID when id is empty.
func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

// stamp fills zero created/updated timestamps with the current time.
func stamp(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = *created
	}
}

// nullableString converts a string to sql.NullString (NULL when empty).
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableTime converts a time.Time to sql.NullTime (NULL when zero).
func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// nullableTimePtr converts a *time.Time pointer to sql.NullTime (NULL when nil).
func nullableTimePtr(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullableBytes converts a byte slice to sql.NullString (NULL when nil or empty).
// lib/pq would send a []byte as bytea, which JSONB columns reject.
func nullableBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// jsonValue marshals v for a JSONB column. Nil maps become NULL.
func jsonValue(v map[string]interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	return nullableBytes(b), nil
}

// textArray returns a TEXT[] parameter, never NULL.
func textArray(vals []string) interface{} {
	if vals == nil {
		vals = []string{}
	}
	return pq.Array(vals)
}

// timePtr maps a scanned sql.NullTime to *time.Time.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// decodeJSONMap unmarshals a JSONB column into a map; NULL yields nil.
func decodeJSONMap(raw sql.NullString) (map[string]interface{}, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal json column: %w", err)
	}
	return m, nil
}

// rawJSON maps a JSONB column to json.RawMessage; NULL yields nil.
func rawJSON(raw sql.NullString) json.RawMessage {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.RawMessage(raw.String)
}
