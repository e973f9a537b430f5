package storage_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/crmstore/internal/storage"
)

var sortable = map[string]bool{"created_at": true, "display_name": true}

func TestListOptions_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   storage.ListOptions
		want storage.ListOptions
	}{
		{
			name: "zero value gets defaults",
			in:   storage.ListOptions{},
			want: storage.ListOptions{Page: 1, PageSize: storage.DefaultPageSize, SortBy: "created_at", SortOrder: "desc"},
		},
		{
			name: "page size above max is clamped",
			in:   storage.ListOptions{Page: 3, PageSize: 5000, SortBy: "display_name", SortOrder: "asc"},
			want: storage.ListOptions{Page: 3, PageSize: storage.MaxPageSize, SortBy: "display_name", SortOrder: "asc"},
		},
		{
			name: "negative values are raised",
			in:   storage.ListOptions{Page: -2, PageSize: -1},
			want: storage.ListOptions{Page: 1, PageSize: 1, SortBy: "created_at", SortOrder: "desc"},
		},
		{
			name: "unknown sort column and order fall back",
			in:   storage.ListOptions{SortBy: "id; DROP TABLE contacts", SortOrder: "sideways"},
			want: storage.ListOptions{Page: 1, PageSize: storage.DefaultPageSize, SortBy: "created_at", SortOrder: "desc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			got.Normalize(sortable, "created_at")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListOptions_Offset(t *testing.T) {
	opts := storage.ListOptions{Page: 3, PageSize: 25}
	assert.Equal(t, 50, opts.Offset())

	opts = storage.ListOptions{}
	opts.Normalize(sortable, "created_at")
	assert.Equal(t, 0, opts.Offset())
}

func TestWrap(t *testing.T) {
	assert.NoError(t, storage.Wrap("postgres: list contacts", storage.CodeQueryFailed, nil))

	driverErr := errors.New(`pq: column "secret_column" does not exist`)
	err := storage.Wrap("postgres: list contacts", storage.CodeQueryFailed, driverErr)
	require.Error(t, err)

	assert.Equal(t, "postgres: list contacts: DB_QUERY_FAILED", err.Error())
	assert.NotContains(t, err.Error(), "secret_column", "driver detail must not leak into the message")
	assert.ErrorIs(t, err, driverErr)
	assert.Equal(t, storage.CodeQueryFailed, storage.CodeOf(err))
}

func TestWrap_KeepsInnermostError(t *testing.T) {
	inner := storage.Wrap("postgres: begin", storage.CodeDatabaseError, errors.New("conn refused"))
	outer := storage.Wrap("postgres: merge identities", storage.CodeUpdateFailed, fmt.Errorf("step: %w", inner))

	assert.Equal(t, storage.CodeDatabaseError, storage.CodeOf(outer))
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, storage.Code(""), storage.CodeOf(storage.ErrInvalidInput))
	assert.Equal(t, storage.Code(""), storage.CodeOf(nil))
}
