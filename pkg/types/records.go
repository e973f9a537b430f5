package types

import (
	"encoding/json"
	"time"
)

// Note is free-form text a user keeps, optionally about a contact.
type Note struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ContactID    string    `json:"contact_id,omitempty"`
	Title        string    `json:"title,omitempty"`
	ContentPlain string    `json:"content_plain"`
	ContentRich  string    `json:"content_rich,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NotePatch changes note fields.
type NotePatch struct {
	ContactID    *string
	Title        *string
	ContentPlain *string
	ContentRich  *string
	Tags         *[]string
}

// NoteFilter narrows a note listing.
type NoteFilter struct {
	ContactID string
	Search    string
	Tags      []string
}

// Interaction kinds
const (
	InteractionEmail   = "email"
	InteractionCall    = "call"
	InteractionMeeting = "meeting"
	InteractionMessage = "message"
)

// Interaction is a recorded touchpoint with a contact.
type Interaction struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	ContactID  string                 `json:"contact_id,omitempty"`
	Kind       string                 `json:"kind"`
	Direction  string                 `json:"direction,omitempty"`
	Subject    string                 `json:"subject,omitempty"`
	Body       string                 `json:"body,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// InteractionPatch changes interaction fields.
type InteractionPatch struct {
	ContactID  *string
	Kind       *string
	Direction  *string
	Subject    *string
	Body       *string
	OccurredAt *time.Time
	Metadata   *map[string]interface{}
}

// InteractionFilter narrows an interaction listing.
type InteractionFilter struct {
	ContactID      string
	Kinds          []string
	OccurredAfter  time.Time
	OccurredBefore time.Time
}

// Document is metadata for an uploaded file. The bytes live elsewhere.
type Document struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ContactID   string    `json:"contact_id,omitempty"`
	Title       string    `json:"title"`
	FileName    string    `json:"file_name"`
	MimeType    string    `json:"mime_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	StoragePath string    `json:"storage_path,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DocumentPatch changes document fields.
type DocumentPatch struct {
	ContactID   *string
	Title       *string
	MimeType    *string
	StoragePath *string
	Status      *string
}

// DocumentFilter narrows a document listing.
type DocumentFilter struct {
	ContactID string
	Status    string
	MimeTypes []string
	Search    string
}

// Task status constants
const (
	TaskOpen       = "open"
	TaskInProgress = "in_progress"
	TaskDone       = "done"
	TaskCancelled  = "cancelled"
)

// Task is a to-do item, optionally tied to a contact.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ContactID   string     `json:"contact_id,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskPatch changes task fields.
type TaskPatch struct {
	ContactID   *string
	Name        *string
	Description *string
	Status      *string
	Priority    *string
	DueDate     *time.Time
	CompletedAt *time.Time
}

// TaskFilter narrows a task listing.
type TaskFilter struct {
	ContactID string
	Statuses  []string
	Priority  string
	DueBefore time.Time
	Search    string
}

// CalendarEvent is a scheduled event on the user's calendar.
type CalendarEvent struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ContactID   string    `json:"contact_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	EventType   string    `json:"event_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CalendarEventPatch changes calendar event fields.
type CalendarEventPatch struct {
	ContactID   *string
	Title       *string
	Description *string
	Location    *string
	StartTime   *time.Time
	EndTime     *time.Time
	EventType   *string
}

// CalendarEventFilter narrows a calendar listing. StartsAfter/StartsBefore bound
// the event start time.
type CalendarEventFilter struct {
	ContactID    string
	EventType    string
	StartsAfter  time.Time
	StartsBefore time.Time
}

// AIInsight is a model-generated observation about some subject record.
type AIInsight struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	SubjectType EntityType      `json:"subject_type"`
	SubjectID   string          `json:"subject_id"`
	Kind        string          `json:"kind"`
	Title       string          `json:"title"`
	Content     string          `json:"content"`
	Confidence  float64         `json:"confidence"`
	Status      string          `json:"status"`
	Evidence    json.RawMessage `json:"evidence,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AIInsightPatch changes insight fields.
type AIInsightPatch struct {
	Title      *string
	Content    *string
	Confidence *float64
	Status     *string
	Evidence   *json.RawMessage
}

// AIInsightFilter narrows an insight listing.
type AIInsightFilter struct {
	SubjectType EntityType
	SubjectID   string
	Kind        string
	Status      string
}
