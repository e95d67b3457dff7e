package models

import "time"

// Child is owned by exactly one parent. ParentUUID is populated by queries
// that join parents; it is not a column on the children table.
type Child struct {
	ID         int64      `json:"-" db:"id"`
	UUID       string     `json:"uuid" db:"uuid"`
	ParentID   int64      `json:"-" db:"parent_id"`
	ParentUUID string     `json:"parent_uuid,omitempty" db:"parent_uuid"`
	Name       string     `json:"name" db:"name"`
	BirthYear  *int       `json:"birth_year,omitempty" db:"birth_year"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
