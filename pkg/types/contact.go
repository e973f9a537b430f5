package types

import "time"

// Contact is a person or client record owned by a single user.
type Contact struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	DisplayName     string         `json:"display_name"`
	PrimaryEmail    string         `json:"primary_email,omitempty"`
	PrimaryPhone    string         `json:"primary_phone,omitempty"`
	Company         string         `json:"company,omitempty"`
	LifecycleStage  LifecycleStage `json:"lifecycle_stage,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	ConfidenceScore float64        `json:"confidence_score"`
	Notes           string         `json:"notes,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ContactPatch carries the fields to change on a contact. Nil fields are left
// untouched.
type ContactPatch struct {
	DisplayName     *string
	PrimaryEmail    *string
	PrimaryPhone    *string
	Company         *string
	LifecycleStage  *LifecycleStage
	Tags            *[]string
	ConfidenceScore *float64
	Notes           *string
}

// ContactFilter narrows a contact listing. All set fields are ANDed.
type ContactFilter struct {
	LifecycleStage LifecycleStage
	// Search is a case-insensitive substring matched against name, email and phone.
	Search string
	// Tags matches contacts carrying at least one of the given tags.
	Tags []string
	IDs  []string
}
