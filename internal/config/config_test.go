package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/crmstore/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CRMSTORE_DATABASE_URL",
		"CRMSTORE_AUTH_USERS_TABLE",
		"CRMSTORE_APPLY_SCHEMA",
		"CRMSTORE_SEARCH_DEFAULT_LIMIT",
		"CRMSTORE_SEARCH_SIMILARITY_THRESHOLD",
		"CRMSTORE_JOBS_STUCK_AFTER",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crmstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Database.URL)
	assert.Equal(t, "users", cfg.Database.AuthUsersTable)
	assert.False(t, cfg.Database.ApplySchema)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.InDelta(t, 0.7, cfg.Search.SimilarityThreshold, 1e-9)
	assert.Equal(t, 15*time.Minute, cfg.Jobs.StuckAfter)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
database:
  url: postgres://crm@localhost/crm?sslmode=disable
  auth_users_table: auth.users
  apply_schema: true
search:
  default_limit: 50
  similarity_threshold: 0.8
jobs:
  stuck_after: 30m
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://crm@localhost/crm?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, "auth.users", cfg.Database.AuthUsersTable)
	assert.True(t, cfg.Database.ApplySchema)
	assert.Equal(t, 50, cfg.Search.DefaultLimit)
	assert.InDelta(t, 0.8, cfg.Search.SimilarityThreshold, 1e-9)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.StuckAfter)
}

func TestLoad_PartialYAMLKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "database:\n  url: postgres://localhost/crm\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "users", cfg.Database.AuthUsersTable)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 15*time.Minute, cfg.Jobs.StuckAfter)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "database:\n  url: postgres://file/crm\nsearch:\n  default_limit: 50\n")

	t.Setenv("CRMSTORE_DATABASE_URL", "postgres://env/crm")
	t.Setenv("CRMSTORE_APPLY_SCHEMA", "YES")
	t.Setenv("CRMSTORE_SEARCH_DEFAULT_LIMIT", "10")
	t.Setenv("CRMSTORE_SEARCH_SIMILARITY_THRESHOLD", "0.5")
	t.Setenv("CRMSTORE_JOBS_STUCK_AFTER", "2h")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/crm", cfg.Database.URL)
	assert.True(t, cfg.Database.ApplySchema)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.InDelta(t, 0.5, cfg.Search.SimilarityThreshold, 1e-9)
	assert.Equal(t, 2*time.Hour, cfg.Jobs.StuckAfter)
}

func TestLoad_UnparsableEnvFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("CRMSTORE_SEARCH_DEFAULT_LIMIT", "lots")
	t.Setenv("CRMSTORE_APPLY_SCHEMA", "maybe")
	t.Setenv("CRMSTORE_JOBS_STUCK_AFTER", "soon")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.False(t, cfg.Database.ApplySchema)
	assert.Equal(t, 15*time.Minute, cfg.Jobs.StuckAfter)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "database: [not, a, map"))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "jobs:\n  stuck_after: fortnight\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	assert.Error(t, cfg.Validate(), "empty DSN must be rejected")

	cfg.Database.URL = "postgres://localhost/crm"
	assert.NoError(t, cfg.Validate())

	cfg.Search.DefaultLimit = 0
	assert.Error(t, cfg.Validate())
	cfg.Search.DefaultLimit = 20

	cfg.Search.SimilarityThreshold = 1.5
	assert.Error(t, cfg.Validate())
	cfg.Search.SimilarityThreshold = 0.7

	cfg.Jobs.StuckAfter = 0
	assert.Error(t, cfg.Validate())
}
