// Package types defines the entity records exchanged with the crmstore
// repositories. Every user-owned record carries the owning UserID; zones and
// tags are the only global records.
package types

// LifecycleStage is the sales/relationship stage of a contact.
type LifecycleStage string

// Contact lifecycle stage constants
const (
	StageLead     LifecycleStage = "lead"
	StageProspect LifecycleStage = "prospect"
	StageClient   LifecycleStage = "client"
	StageInactive LifecycleStage = "inactive"
	StageArchived LifecycleStage = "archived"
)

// ValidLifecycleStages lists every accepted contact stage.
var ValidLifecycleStages = []LifecycleStage{
	StageLead,
	StageProspect,
	StageClient,
	StageInactive,
	StageArchived,
}

// IsValidLifecycleStage reports whether stage is a known stage.
// Empty string is considered valid (stage not set).
func IsValidLifecycleStage(stage LifecycleStage) bool {
	if stage == "" {
		return true
	}
	for _, s := range ValidLifecycleStages {
		if s == stage {
			return true
		}
	}
	return false
}

// EntityType names the kinds of records search and embeddings refer to.
type EntityType string

// Searchable entity types
const (
	EntityContact       EntityType = "contact"
	EntityNote          EntityType = "note"
	EntityInteraction   EntityType = "interaction"
	EntityTask          EntityType = "task"
	EntityCalendarEvent EntityType = "calendar_event"
	EntityDocument      EntityType = "document"
)

// ValidEntityTypes is every owner type an embedding may point at.
var ValidEntityTypes = []EntityType{
	EntityContact,
	EntityNote,
	EntityInteraction,
	EntityTask,
	EntityCalendarEvent,
	EntityDocument,
}

// IsValidEntityType reports whether t is a known entity type.
func IsValidEntityType(t EntityType) bool {
	for _, v := range ValidEntityTypes {
		if v == t {
			return true
		}
	}
	return false
}

// String returns a pointer to s. Handy for building patches.
func String(s string) *string { return &s }

// Int returns a pointer to i.
func Int(i int) *int { return &i }

// Float64 returns a pointer to f.
func Float64(f float64) *float64 { return &f }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }
