package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/crmstore/pkg/types"
)

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the database schema",
}

var schemaApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create missing tables and indexes (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.gw.ApplySchema(cmd.Context()); err != nil {
			return err
		}
		printSuccess("Schema applied")
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaApplyCmd)
}

// --- health ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.gw.Healthy(cmd.Context()); err != nil {
			return err
		}
		printSuccess("Database reachable")
		return nil
	},
}

// --- identities ---

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Resolve, deduplicate and merge contact identities",
}

var identitiesResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Find the contact matching the given identifiers",
	Long: `Find the contact matching the given identifiers. Identifiers are tried in
the order email, phone, handle, provider id; the first match wins.

Examples:
  crmstore identities resolve --user u1 --email Jane@Example.com
  crmstore identities resolve --user u1 --phone "+1 555 010 0000" --handle @jane --handle-provider twitter`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		var q types.ResolveQuery
		q.Email, _ = cmd.Flags().GetString("email")
		q.Phone, _ = cmd.Flags().GetString("phone")
		q.Handle, _ = cmd.Flags().GetString("handle")
		q.HandleProvider, _ = cmd.Flags().GetString("handle-provider")
		q.ProviderID, _ = cmd.Flags().GetString("provider-id")
		q.ProviderIDSource, _ = cmd.Flags().GetString("provider")
		if q.Email == "" && q.Phone == "" && q.Handle == "" && q.ProviderID == "" {
			return fmt.Errorf("one of --email, --phone, --handle or --provider-id is required")
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		contactID, ok, err := s.repos.Identities.Resolve(cmd.Context(), userID, q)
		if err != nil {
			return err
		}
		if !ok {
			printWarning("No matching contact")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), contactID)
		return nil
	},
}

var identitiesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Bind an identifier to a contact",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		contactID, _ := cmd.Flags().GetString("contact")
		kind, _ := cmd.Flags().GetString("kind")
		value, _ := cmd.Flags().GetString("value")
		provider, _ := cmd.Flags().GetString("provider")
		if contactID == "" || value == "" {
			return fmt.Errorf("--contact and --value are required")
		}
		k := types.IdentityKind(kind)
		if !types.IsValidIdentityKind(k) {
			return fmt.Errorf("unknown identity kind %q", kind)
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		ids := s.repos.Identities
		ctx := cmd.Context()
		var identity *types.ContactIdentity
		switch k {
		case types.IdentityEmail:
			identity, err = ids.AddEmail(ctx, userID, contactID, value)
		case types.IdentityPhone:
			identity, err = ids.AddPhone(ctx, userID, contactID, value)
		case types.IdentityHandle:
			identity, err = ids.AddHandle(ctx, userID, contactID, value, provider)
		case types.IdentityProviderID:
			identity, err = ids.AddProviderID(ctx, userID, contactID, value, provider)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), identity)
	},
}

var identitiesDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List identities bound to more than one contact",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		dups, err := s.repos.Identities.FindDuplicateIdentities(cmd.Context(), userID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), dups)
	},
}

var identitiesMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Move every identity of one contact to another",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		if from == "" || to == "" {
			return fmt.Errorf("--from and --to are required")
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		res, err := s.repos.Identities.MergeIdentities(cmd.Context(), userID, from, to)
		if err != nil {
			return err
		}
		printSuccess("Moved %d identities, dropped %d already on %s", res.Moved, res.Dropped, to)
		return nil
	},
}

func init() {
	identitiesResolveCmd.Flags().String("email", "", "email address")
	identitiesResolveCmd.Flags().String("phone", "", "phone number")
	identitiesResolveCmd.Flags().String("handle", "", "social handle")
	identitiesResolveCmd.Flags().String("handle-provider", "", "provider of --handle (any when empty)")
	identitiesResolveCmd.Flags().String("provider-id", "", "external provider ID")
	identitiesResolveCmd.Flags().String("provider", "", "provider of --provider-id (any when empty)")

	identitiesAddCmd.Flags().String("contact", "", "contact ID")
	identitiesAddCmd.Flags().String("kind", string(types.IdentityEmail), "email, phone, handle or provider_id")
	identitiesAddCmd.Flags().String("value", "", "identifier value")
	identitiesAddCmd.Flags().String("provider", "", "provider (handle and provider_id only)")

	identitiesMergeCmd.Flags().String("from", "", "contact to take identities from")
	identitiesMergeCmd.Flags().String("to", "", "contact to move identities to")

	identitiesCmd.AddCommand(identitiesResolveCmd)
	identitiesCmd.AddCommand(identitiesAddCmd)
	identitiesCmd.AddCommand(identitiesDuplicatesCmd)
	identitiesCmd.AddCommand(identitiesMergeCmd)
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search contacts, notes, interactions and tasks",
	Long: `Search contacts, notes, interactions and tasks.

With --query the search is a case-insensitive keyword match. With --embedding
(a JSON array of numbers) it is a cosine similarity search over stored
embeddings.

Examples:
  crmstore search --user u1 --query acme --types contact,note
  crmstore search --user u1 --embedding '[0.1,0.2,0.3]' --threshold 0.8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		query, _ := cmd.Flags().GetString("query")
		embedding, _ := cmd.Flags().GetString("embedding")
		limit, _ := cmd.Flags().GetInt("limit")
		typesStr, _ := cmd.Flags().GetString("types")
		if (query == "") == (embedding == "") {
			return fmt.Errorf("exactly one of --query or --embedding is required")
		}
		entityTypes, err := parseEntityTypes(typesStr)
		if err != nil {
			return err
		}
		var vec []float32
		if embedding != "" {
			if vec, err = parseEmbedding(embedding); err != nil {
				return err
			}
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		var results []types.SearchResult
		if vec == nil {
			results, err = s.repos.Search.SearchTraditional(cmd.Context(), types.TraditionalSearch{
				UserID: userID,
				Query:  query,
				Limit:  limit,
				Types:  entityTypes,
			})
		} else {
			req := types.SemanticSearch{
				UserID:    userID,
				Embedding: vec,
				Limit:     limit,
				Types:     entityTypes,
			}
			if cmd.Flags().Changed("threshold") {
				threshold, _ := cmd.Flags().GetFloat64("threshold")
				req.SimilarityThreshold = &threshold
			}
			results, err = s.repos.Search.SearchSemantic(cmd.Context(), req)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), results)
	},
}

func init() {
	searchCmd.Flags().String("query", "", "keyword to match")
	searchCmd.Flags().String("embedding", "", "query embedding as a JSON array")
	searchCmd.Flags().Int("limit", 0, "maximum results (default from config)")
	searchCmd.Flags().String("types", "", "comma-separated entity types (default: contact,note,interaction,task)")
	searchCmd.Flags().Float64("threshold", 0, "minimum cosine similarity (default from config)")
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect background job records",
}

var jobsStuckCmd = &cobra.Command{
	Use:   "stuck",
	Short: "List jobs processing for longer than the stuck threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		after := s.cfg.Jobs.StuckAfter
		if cmd.Flags().Changed("after") {
			after, _ = cmd.Flags().GetDuration("after")
		}
		jobs, err := s.repos.Jobs.FindStuckJobs(cmd.Context(), userID, after)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), jobs)
	},
}

var jobsCountsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Count jobs per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		batch, _ := cmd.Flags().GetString("batch")

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		counts, err := s.repos.Jobs.CountByStatus(cmd.Context(), userID, batch)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), counts)
	},
}

func init() {
	jobsStuckCmd.Flags().Duration("after", 0, "stuck threshold (default from config)")
	jobsCountsCmd.Flags().String("batch", "", "restrict to one batch ID")

	jobsCmd.AddCommand(jobsStuckCmd)
	jobsCmd.AddCommand(jobsCountsCmd)
}

// --- compliance ---

var complianceCmd = &cobra.Command{
	Use:   "compliance",
	Short: "Report consent compliance",
}

var complianceMissingCmd = &cobra.Command{
	Use:   "missing",
	Short: "List contacts lacking required consents",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		requiredStr, _ := cmd.Flags().GetString("require")
		required, err := parseConsentTypes(requiredStr)
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		gaps, err := s.repos.Compliance.GetContactsMissingConsents(cmd.Context(), userID, required)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), gaps)
	},
}

var complianceHipaaCmd = &cobra.Command{
	Use:   "hipaa",
	Short: "Check one contact against the HIPAA consent policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		contactID, _ := cmd.Flags().GetString("contact")
		if contactID == "" {
			return fmt.Errorf("--contact is required")
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		res, err := s.repos.Compliance.CheckHipaaCompliance(cmd.Context(), userID, contactID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	complianceMissingCmd.Flags().String("require", "hipaa,data_processing", "comma-separated required consent types")
	complianceHipaaCmd.Flags().String("contact", "", "contact ID")

	complianceCmd.AddCommand(complianceMissingCmd)
	complianceCmd.AddCommand(complianceHipaaCmd)
}

// --- flag parsing ---

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseEntityTypes parses a comma-separated type list. Empty means the
// repository defaults.
func parseEntityTypes(s string) ([]types.EntityType, error) {
	var out []types.EntityType
	for _, p := range splitList(s) {
		t := types.EntityType(strings.ToLower(p))
		if !types.IsSearchableType(t) {
			return nil, fmt.Errorf("unknown search type %q", p)
		}
		out = append(out, t)
	}
	return out, nil
}

func parseConsentTypes(s string) ([]types.ConsentType, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, fmt.Errorf("--require needs at least one consent type")
	}
	out := make([]types.ConsentType, 0, len(parts))
	for _, p := range parts {
		t := types.ConsentType(strings.ToLower(p))
		if !types.IsValidConsentType(t) {
			return nil, fmt.Errorf("unknown consent type %q", p)
		}
		out = append(out, t)
	}
	return out, nil
}

func parseEmbedding(s string) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal([]byte(s), &vec); err != nil {
		return nil, fmt.Errorf("--embedding must be a JSON array of numbers: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("--embedding is empty")
	}
	return vec, nil
}
