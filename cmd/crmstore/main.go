// Command crmstore is the administrative CLI of the crmstore data layer. It
// bootstraps the schema and runs the cross-entity queries (identity
// resolution, search, stuck jobs, consent gaps) against a live database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scrypster/crmstore/internal/config"
	"github.com/scrypster/crmstore/internal/storage/postgres"
)

var version = "dev"

var (
	configPath string
	userID     string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:           "crmstore",
	Short:         "Administer the crmstore PostgreSQL data layer",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file (env vars override it)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "owning user ID for user-scoped commands")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored status output")

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(identitiesCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(complianceCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError("%v", err)
		stop()
		os.Exit(1)
	}
}

// session is an open database plus the repositories built on it.
type session struct {
	cfg   *config.Config
	gw    *postgres.Gateway
	repos *postgres.Repositories
}

func (s *session) Close() {
	if err := s.gw.Close(); err != nil {
		printWarning("closing database: %v", err)
	}
}

// openSession loads configuration, connects and, when configured, applies the
// schema. Callers must Close the session.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gw, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Database.ApplySchema {
		if err := gw.ApplySchema(ctx); err != nil {
			_ = gw.Close()
			return nil, err
		}
	}

	threshold := cfg.Search.SimilarityThreshold
	repos, err := postgres.NewRepositories(gw, postgres.Options{
		AuthUsersTable: cfg.Database.AuthUsersTable,
		Search: postgres.SearchConfig{
			DefaultLimit:        cfg.Search.DefaultLimit,
			SimilarityThreshold: &threshold,
		},
	})
	if err != nil {
		_ = gw.Close()
		return nil, fmt.Errorf("building repositories: %w", err)
	}
	return &session{cfg: cfg, gw: gw, repos: repos}, nil
}

func requireUser() error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}
