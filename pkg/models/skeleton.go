package models

import "time"

// SkeletonAccount is a placeholder for a parent who has not registered yet,
// keyed by normalized (contact_method, contact_type). Multiple requesters
// may fan in on the same skeleton. Once merged the row is an immutable
// historical record.
type SkeletonAccount struct {
	ID                 int64       `json:"-" db:"id"`
	UUID               string      `json:"uuid" db:"uuid"`
	ContactMethod      string      `json:"contact_method" db:"contact_method"`
	ContactType        ContactType `json:"contact_type" db:"contact_type"`
	IsMerged           bool        `json:"is_merged" db:"is_merged"`
	MergedWithParentID *int64      `json:"-" db:"merged_with_parent_id"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`
}

// SkeletonChild is a placeholder child under a skeleton account.
type SkeletonChild struct {
	ID                int64     `json:"-" db:"id"`
	UUID              string    `json:"uuid" db:"uuid"`
	SkeletonAccountID int64     `json:"-" db:"skeleton_account_id"`
	Name              string    `json:"name" db:"name"`
	BirthYear         *int      `json:"birth_year,omitempty" db:"birth_year"`
	IsMerged          bool      `json:"is_merged" db:"is_merged"`
	MergedWithChildID *int64    `json:"-" db:"merged_with_child_id"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// SkeletonConnectionRequest is a connection request whose target child does
// not exist yet. Conversion happens exactly once, at merge time.
type SkeletonConnectionRequest struct {
	ID                   int64     `json:"-" db:"id"`
	UUID                 string    `json:"uuid" db:"uuid"`
	SkeletonChildID      int64     `json:"-" db:"skeleton_child_id"`
	RequesterChildID     int64     `json:"-" db:"requester_child_id"`
	Message              string    `json:"message" db:"message"`
	IsConverted          bool      `json:"is_converted" db:"is_converted"`
	ConvertedToRequestID *int64    `json:"-" db:"converted_to_request_id"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// MergeResult reports what a registration merge produced.
type MergeResult struct {
	ChildrenCreated   int `json:"children_created"`
	RequestsConverted int `json:"requests_converted"`
}

// CreateSkeletonRequest is the engine-level input for registering a
// skeleton target plus the request against it in one step.
type CreateSkeletonRequest struct {
	ContactMethod      string      `json:"contact_method" validate:"required"`
	ContactType        ContactType `json:"contact_type" validate:"required,oneof=email phone"`
	RequesterChildUUID string      `json:"requester_child_uuid" validate:"required,uuid4"`
	TargetChildName    string      `json:"target_child_name" validate:"required"`
	TargetChildBirthYear *int      `json:"target_child_birth_year,omitempty" validate:"omitempty,gte=1900,lte=2100"`
	Message            string      `json:"message"`
}
