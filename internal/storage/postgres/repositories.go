package postgres

import (
	"github.com/scrypster/crmstore/internal/storage"
)

// Compile-time interface checks.
var (
	_ storage.ContactRepository     = (*ContactRepository)(nil)
	_ storage.NoteRepository        = (*NoteRepository)(nil)
	_ storage.InteractionRepository = (*InteractionRepository)(nil)
	_ storage.DocumentRepository    = (*DocumentRepository)(nil)
	_ storage.TaskRepository        = (*TaskRepository)(nil)
	_ storage.AIInsightRepository   = (*AIInsightRepository)(nil)
	_ storage.CalendarRepository    = (*CalendarRepository)(nil)
	_ storage.JobRepository         = (*JobRepository)(nil)
	_ storage.EmbeddingRepository   = (*EmbeddingRepository)(nil)
	_ storage.IntegrationRepository = (*IntegrationRepository)(nil)
	_ storage.ZoneRepository        = (*ZoneRepository)(nil)
	_ storage.TagRepository         = (*TagRepository)(nil)
	_ storage.IdentityRepository    = (*IdentityRepository)(nil)
	_ storage.ComplianceRepository  = (*ComplianceRepository)(nil)
	_ storage.SearchRepository      = (*SearchRepository)(nil)
	_ storage.ChatRepository        = (*ChatRepository)(nil)
	_ storage.AuthUserRepository    = (*AuthUserRepository)(nil)
)

// Options configures NewRepositories.
type Options struct {
	// AuthUsersTable is the identity provider's user table, optionally schema
	// qualified. Empty means DefaultAuthUsersTable.
	AuthUsersTable string

	Search SearchConfig
}

// Repositories bundles every repository built on one Handle.
type Repositories struct {
	Contacts     *ContactRepository
	Notes        *NoteRepository
	Interactions *InteractionRepository
	Documents    *DocumentRepository
	Tasks        *TaskRepository
	AIInsights   *AIInsightRepository
	Calendar     *CalendarRepository
	Jobs         *JobRepository
	Embeddings   *EmbeddingRepository
	Integrations *IntegrationRepository
	Zones        *ZoneRepository
	Tags         *TagRepository
	Identities   *IdentityRepository
	Compliance   *ComplianceRepository
	Search       *SearchRepository
	Chat         *ChatRepository
	AuthUsers    *AuthUserRepository
}

// NewRepositories builds every repository on h.
func NewRepositories(h Handle, opts Options) (*Repositories, error) {
	authUsers, err := NewAuthUserRepository(h, opts.AuthUsersTable)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		Contacts:     NewContactRepository(h),
		Notes:        NewNoteRepository(h),
		Interactions: NewInteractionRepository(h),
		Documents:    NewDocumentRepository(h),
		Tasks:        NewTaskRepository(h),
		AIInsights:   NewAIInsightRepository(h),
		Calendar:     NewCalendarRepository(h),
		Jobs:         NewJobRepository(h),
		Embeddings:   NewEmbeddingRepository(h),
		Integrations: NewIntegrationRepository(h),
		Zones:        NewZoneRepository(h),
		Tags:         NewTagRepository(h),
		Identities:   NewIdentityRepository(h),
		Compliance:   NewComplianceRepository(h),
		Search:       NewSearchRepository(h, opts.Search),
		Chat:         NewChatRepository(h),
		AuthUsers:    authUsers,
	}, nil
}
