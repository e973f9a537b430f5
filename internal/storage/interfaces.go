// Package storage defines the backend-neutral contracts of the crmstore data
// layer: repository interfaces, pagination, sentinel errors and the typed
// *Error every database failure is reported as.
//
// Not found is never an error. Get-style methods return (nil, nil), list and
// search methods return an empty slice, deletes return a zero count.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/crmstore/pkg/types"
)

// EntityRepository is the uniform CRUD contract of a user-scoped table.
// T is the record, F its list filter and P its partial update.
type EntityRepository[T, F, P any] interface {
	// List returns one page of the user's records matching filter. Total
	// counts every match, not just this page.
	List(ctx context.Context, userID string, filter F, opts ListOptions) (*PaginatedResult[T], error)

	// Get returns the record, or nil when the user owns no record with id.
	Get(ctx context.Context, userID, id string) (*T, error)

	// Create inserts the record and returns it as stored. An empty ID is
	// generated.
	Create(ctx context.Context, record *T) (*T, error)

	// Update applies the set fields of patch. It returns ErrNoFieldsProvided
	// for an empty patch and nil when the record does not exist.
	Update(ctx context.Context, userID, id string, patch P) (*T, error)

	// Delete removes one record and reports how many rows went (0 or 1).
	Delete(ctx context.Context, userID, id string) (int64, error)

	// DeleteAllForUser removes every record the user owns.
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}

// ContactRepository stores contacts.
type ContactRepository interface {
	EntityRepository[types.Contact, types.ContactFilter, types.ContactPatch]

	// GetMany returns the contacts with the given IDs, skipping unknown ones.
	GetMany(ctx context.Context, userID string, ids []string) ([]types.Contact, error)
}

// NoteRepository stores notes.
type NoteRepository = EntityRepository[types.Note, types.NoteFilter, types.NotePatch]

// InteractionRepository stores interactions.
type InteractionRepository = EntityRepository[types.Interaction, types.InteractionFilter, types.InteractionPatch]

// DocumentRepository stores document metadata.
type DocumentRepository = EntityRepository[types.Document, types.DocumentFilter, types.DocumentPatch]

// TaskRepository stores tasks.
type TaskRepository = EntityRepository[types.Task, types.TaskFilter, types.TaskPatch]

// AIInsightRepository stores model-generated insights.
type AIInsightRepository = EntityRepository[types.AIInsight, types.AIInsightFilter, types.AIInsightPatch]

// CalendarRepository stores calendar events.
type CalendarRepository interface {
	EntityRepository[types.CalendarEvent, types.CalendarEventFilter, types.CalendarEventPatch]

	// ListUpcoming returns up to limit events starting at or after from,
	// soonest first.
	ListUpcoming(ctx context.Context, userID string, from time.Time, limit int) ([]types.CalendarEvent, error)
}

// JobRepository stores job records. Execution happens elsewhere; workers report
// progress through UpdateJobStatus.
type JobRepository interface {
	EntityRepository[types.Job, types.JobFilter, types.JobPatch]

	// UpdateJobStatus moves a job to status, recording lastError when set.
	UpdateJobStatus(ctx context.Context, userID, id string, status types.JobStatus, lastError string) (*types.Job, error)

	// FindStuckJobs returns jobs processing for longer than threshold.
	FindStuckJobs(ctx context.Context, userID string, threshold time.Duration) ([]types.Job, error)

	// CountByStatus counts jobs per status, within batchID when set.
	CountByStatus(ctx context.Context, userID, batchID string) (types.JobStatusCounts, error)

	// DeleteBatch removes every job of a batch.
	DeleteBatch(ctx context.Context, userID, batchID string) (int64, error)
}

// EmbeddingRepository stores one vector per owner entity.
type EmbeddingRepository interface {
	EntityRepository[types.Embedding, types.EmbeddingFilter, types.EmbeddingPatch]

	// Upsert stores the embedding of its owner, replacing an existing one.
	Upsert(ctx context.Context, embedding *types.Embedding) (*types.Embedding, error)

	// GetByOwner returns the embedding of one entity, or nil.
	GetByOwner(ctx context.Context, userID string, ownerType types.EntityType, ownerID string) (*types.Embedding, error)

	// ListRecent returns up to limit embeddings, most recently updated first.
	ListRecent(ctx context.Context, userID string, limit int) ([]types.Embedding, error)

	// DeleteByOwner removes the embedding of one entity.
	DeleteByOwner(ctx context.Context, userID string, ownerType types.EntityType, ownerID string) (int64, error)
}

// IntegrationRepository stores a user's connections to external providers.
// The list filter is a status ("" for all).
type IntegrationRepository interface {
	EntityRepository[types.UserIntegration, string, types.UserIntegrationPatch]

	Upsert(ctx context.Context, integration *types.UserIntegration) (*types.UserIntegration, error)
	GetByProvider(ctx context.Context, userID, provider string) (*types.UserIntegration, error)
	MarkSynced(ctx context.Context, userID, id string, at time.Time) (*types.UserIntegration, error)
}

// ZoneRepository stores the global zone definitions.
type ZoneRepository interface {
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Zone], error)
	Get(ctx context.Context, id string) (*types.Zone, error)
	GetByName(ctx context.Context, name string) (*types.Zone, error)
	Create(ctx context.Context, zone *types.Zone) (*types.Zone, error)
	Update(ctx context.Context, id string, patch types.ZonePatch) (*types.Zone, error)
	Delete(ctx context.Context, id string) (int64, error)
}

// TagRepository stores the global tag definitions.
type TagRepository interface {
	List(ctx context.Context, category string, opts ListOptions) (*PaginatedResult[types.Tag], error)
	Get(ctx context.Context, id string) (*types.Tag, error)
	GetByName(ctx context.Context, name string) (*types.Tag, error)
	Create(ctx context.Context, tag *types.Tag) (*types.Tag, error)
	Update(ctx context.Context, id string, patch types.TagPatch) (*types.Tag, error)
	Delete(ctx context.Context, id string) (int64, error)
}

// IdentityRepository binds external identifiers to contacts and detects and
// merges duplicates.
type IdentityRepository interface {
	// AddEmail, AddPhone, AddHandle and AddProviderID normalize the value and
	// bind it to contactID, moving it there if another contact held it.
	AddEmail(ctx context.Context, userID, contactID, email string) (*types.ContactIdentity, error)
	AddPhone(ctx context.Context, userID, contactID, phone string) (*types.ContactIdentity, error)
	AddHandle(ctx context.Context, userID, contactID, handle, provider string) (*types.ContactIdentity, error)
	AddProviderID(ctx context.Context, userID, contactID, providerID, provider string) (*types.ContactIdentity, error)

	// Resolve returns the contact of the first matching identifier, trying
	// email, phone, handle and provider id in that fixed order.
	Resolve(ctx context.Context, userID string, q types.ResolveQuery) (contactID string, ok bool, err error)

	// FindContactsByIdentity returns every distinct contact sharing an identity.
	FindContactsByIdentity(ctx context.Context, userID string, kind types.IdentityKind, value, provider string) ([]string, error)

	// FindDuplicateIdentities returns identities bound to several contacts.
	FindDuplicateIdentities(ctx context.Context, userID string) ([]types.DuplicateIdentity, error)

	// MergeIdentities moves fromContact's identities to toContact atomically.
	MergeIdentities(ctx context.Context, userID, fromContact, toContact string) (*types.MergeResult, error)

	GetContactIdentities(ctx context.Context, userID, contactID string) ([]types.ContactIdentity, error)
	RemoveIdentity(ctx context.Context, userID, id string) (int64, error)
	RemoveAllForContact(ctx context.Context, userID, contactID string) (int64, error)
}

// ComplianceRepository records consents and derives compliance from them.
type ComplianceRepository interface {
	RecordConsent(ctx context.Context, consent *types.ClientConsent) (*types.ClientConsent, error)

	// GetConsentStatus returns the latest row per consent type, newest first.
	GetConsentStatus(ctx context.Context, userID, contactID string) ([]types.ClientConsent, error)

	// GetConsentHistory returns every row, newest first.
	GetConsentHistory(ctx context.Context, userID, contactID string) ([]types.ClientConsent, error)

	// GetContactsMissingConsents returns contacts whose current consents do
	// not grant every required type.
	GetContactsMissingConsents(ctx context.Context, userID string, required []types.ConsentType) ([]types.ContactConsentGap, error)

	// CheckHipaaCompliance applies the fixed HIPAA consent policy.
	CheckHipaaCompliance(ctx context.Context, userID, contactID string) (*types.HIPAACompliance, error)
}

// SearchRepository searches across contacts, notes, interactions and tasks.
type SearchRepository interface {
	SearchTraditional(ctx context.Context, req types.TraditionalSearch) ([]types.SearchResult, error)
	SearchSemantic(ctx context.Context, req types.SemanticSearch) ([]types.SearchResult, error)
}

// ChatRepository stores threads, messages and tool invocations, and returns
// them nested.
type ChatRepository interface {
	CreateThread(ctx context.Context, thread *types.Thread) (*types.Thread, error)
	GetThread(ctx context.Context, userID, id string) (*types.Thread, error)
	ListThreads(ctx context.Context, userID string, opts ListOptions) (*PaginatedResult[types.Thread], error)
	UpdateThread(ctx context.Context, userID, id string, patch types.ThreadPatch) (*types.Thread, error)
	DeleteThread(ctx context.Context, userID, id string) (int64, error)
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)

	CreateMessage(ctx context.Context, msg *types.Message) (*types.Message, error)
	GetMessage(ctx context.Context, userID, id string) (*types.Message, error)
	ListMessages(ctx context.Context, userID, threadID string, opts ListOptions) (*PaginatedResult[types.Message], error)

	CreateToolInvocation(ctx context.Context, inv *types.ToolInvocation) (*types.ToolInvocation, error)
	UpdateToolInvocation(ctx context.Context, userID, id string, patch types.ToolInvocationPatch) (*types.ToolInvocation, error)
	ListToolInvocations(ctx context.Context, userID, messageID string) ([]types.ToolInvocation, error)

	// GetThreadWithMessages returns the thread, its messages oldest first and
	// each message's tool invocations, or nil when the thread does not exist.
	GetThreadWithMessages(ctx context.Context, userID, threadID string) (*types.ThreadWithMessages, error)

	// GetMessageWithToolCalls returns a message and its tool invocations.
	GetMessageWithToolCalls(ctx context.Context, userID, messageID string) (*types.MessageWithToolCalls, error)
}

// AuthUserRepository reads users from the external identity provider. It
// never writes. A missing user is a nil result.
type AuthUserRepository interface {
	GetUser(ctx context.Context, id string) (*types.AuthUser, error)
	GetUserByEmail(ctx context.Context, email string) (*types.AuthUser, error)
}
