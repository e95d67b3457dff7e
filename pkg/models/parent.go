package models

import (
	"time"
)

// ContactType identifies how a parent can be reached
type ContactType string

const (
	ContactTypeEmail ContactType = "email"
	ContactTypePhone ContactType = "phone"
)

// Parent represents a registered parent account. Parents are never deleted,
// only deactivated. The surrogate id is for joins only; every external
// reference uses the UUID.
type Parent struct {
	ID          int64     `json:"-" db:"id"`
	UUID        string    `json:"uuid" db:"uuid"`
	DisplayName string    `json:"display_name" db:"display_name"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ContactMethod is one way of reaching a parent. At least one exists per
// parent; the stored method is normalized (lower-cased email, digits-only
// phone) so skeleton lookups are exact matches.
type ContactMethod struct {
	ID        int64       `json:"-" db:"id"`
	ParentID  int64       `json:"-" db:"parent_id"`
	Method    string      `json:"method" db:"method"`
	Type      ContactType `json:"type" db:"contact_type"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// RegisterParentRequest is the payload delivered by the registration
// collaborator immediately after an account is created.
type RegisterParentRequest struct {
	DisplayName string                 `json:"display_name" validate:"required"`
	Email       *string                `json:"email,omitempty" validate:"omitempty,email"`
	Phone       *string                `json:"phone,omitempty"`
	Children    []RegisterChildRequest `json:"children,omitempty" validate:"dive"`
}

// RegisterChildRequest describes a child created alongside the parent.
type RegisterChildRequest struct {
	Name      string `json:"name" validate:"required"`
	BirthYear *int   `json:"birth_year,omitempty" validate:"omitempty,gte=1900,lte=2100"`
}

// RegistrationResult reports what registration produced, including the
// outcome of the skeleton merge hook.
type RegistrationResult struct {
	Parent   *Parent      `json:"parent"`
	Children []Child      `json:"children"`
	Merge    *MergeResult `json:"merge"`
}
