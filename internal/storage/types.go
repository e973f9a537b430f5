package storage

import (
	"errors"
)

var (
	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoFieldsProvided is returned by every Update when the patch sets no
	// field. It guards against accidental full-row touches.
	ErrNoFieldsProvided = errors.New("no fields provided for update")

	// ErrNoRowsReturned indicates an INSERT ... RETURNING produced nothing.
	// This is an infrastructure fault, not a recoverable condition.
	ErrNoRowsReturned = errors.New("insert returned no data")

	// ErrConflict indicates a uniqueness constraint rejected a write.
	ErrConflict = errors.New("conflicting record exists")
)

const (
	// DefaultPageSize is used when ListOptions.PageSize is zero.
	DefaultPageSize = 50

	// MaxPageSize caps ListOptions.PageSize.
	MaxPageSize = 200
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page. Never nil.
	Items []T

	// Total is the number of rows matching the filter across all pages.
	// It comes from a separate COUNT query, not len(Items).
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and ordering for list operations.
// Filtering is entity specific and passed separately.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// PageSize is the number of items per page (default: 50, range: 1..200).
	PageSize int

	// SortBy specifies the column to sort by. Each repository whitelists its
	// own columns; anything else falls back to the repository default.
	SortBy string

	// SortOrder specifies the sort direction ("asc" or "desc", default: "desc").
	SortOrder string
}

// Normalize applies defaults and clamps the options. allowedSort is the
// repository's whitelist of sortable columns and defaultSort its fallback.
func (o *ListOptions) Normalize(allowedSort map[string]bool, defaultSort string) {
	// Whitelist validation for SortBy to prevent SQL injection
	if !allowedSort[o.SortBy] {
		o.SortBy = defaultSort
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Page < 1 {
		o.Page = 1
	}

	switch {
	case o.PageSize == 0:
		o.PageSize = DefaultPageSize
	case o.PageSize < 1:
		o.PageSize = 1
	case o.PageSize > MaxPageSize:
		o.PageSize = MaxPageSize
	}
}

// Offset calculates the offset for SQL queries based on page and page size.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}
