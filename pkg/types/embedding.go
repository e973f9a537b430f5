package types

import "time"

// Embedding is a vector attached to an owner entity. A change to the owner does
// not invalidate it.
type Embedding struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	OwnerType EntityType `json:"owner_type"`
	OwnerID   string     `json:"owner_id"`
	Vector    []float32  `json:"vector"`
	Model     string     `json:"model,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// EmbeddingFilter narrows an embedding listing.
type EmbeddingFilter struct {
	OwnerType EntityType
	Model     string
}

// EmbeddingPatch changes the stored vector or its model name.
type EmbeddingPatch struct {
	Vector *[]float32
	Model  *string
}
