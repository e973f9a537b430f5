package types

import "time"

// Zone is a global grouping shared by all users.
type Zone struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ZonePatch changes zone fields.
type ZonePatch struct {
	Name        *string
	Description *string
	Color       *string
	Icon        *string
	SortOrder   *int
}

// Tag is a global label definition.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TagPatch changes tag fields.
type TagPatch struct {
	Name     *string
	Category *string
	Color    *string
}

// UserIntegration records a user's connection to an external provider.
type UserIntegration struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	Provider   string                 `json:"provider"`
	Status     string                 `json:"status"`
	Config     map[string]interface{} `json:"config,omitempty"`
	LastSyncAt *time.Time             `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// UserIntegrationPatch changes integration fields.
type UserIntegrationPatch struct {
	Status *string
	Config *map[string]interface{}
}

// AuthUser is the narrow view of a user held by the external identity
// provider.
type AuthUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}
