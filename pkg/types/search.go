package types

import "time"

// SearchResult is the common shape every search hit is mapped into.
type SearchResult struct {
	ID         string                 `json:"id"`
	Type       EntityType             `json:"type"`
	Title      string                 `json:"title"`
	Content    string                 `json:"content,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Score      float64                `json:"score"`
	Similarity float64                `json:"similarity,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// DefaultSearchTypes are searched when a caller does not pick types.
var DefaultSearchTypes = []EntityType{
	EntityContact,
	EntityNote,
	EntityInteraction,
	EntityTask,
}

// IsSearchableType reports whether t can be searched. Calendar events are
// accepted but currently yield no results.
func IsSearchableType(t EntityType) bool {
	switch t {
	case EntityContact, EntityNote, EntityInteraction, EntityTask, EntityCalendarEvent:
		return true
	}
	return false
}

// TraditionalSearch is a keyword search request. Types defaults to
// DefaultSearchTypes.
type TraditionalSearch struct {
	UserID string
	Query  string
	Limit  int
	Types  []EntityType
}

// SemanticSearch is an embedding similarity search request. A nil
// SimilarityThreshold means the repository default (0.7).
type SemanticSearch struct {
	UserID              string
	Embedding           []float32
	Limit               int
	SimilarityThreshold *float64
	Types               []EntityType
}
