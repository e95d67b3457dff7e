package models

import "time"

// ConnectionRequestStatus is the lifecycle state of a directed request
type ConnectionRequestStatus string

const (
	ConnectionRequestStatusPending  ConnectionRequestStatus = "pending"
	ConnectionRequestStatusAccepted ConnectionRequestStatus = "accepted"
	ConnectionRequestStatusRejected ConnectionRequestStatus = "rejected"
)

// ConnectionRequest is a directed edge from a requester child to a target
// child. At most one pending request may exist per ordered pair; the
// partial unique index on (requester_child_id, target_child_id) enforces it.
type ConnectionRequest struct {
	ID               int64                   `json:"-" db:"id"`
	UUID             string                  `json:"uuid" db:"uuid"`
	RequesterChildID int64                   `json:"-" db:"requester_child_id"`
	TargetChildID    int64                   `json:"-" db:"target_child_id"`
	Message          string                  `json:"message" db:"message"`
	Status           ConnectionRequestStatus `json:"status" db:"status"`
	CreatedAt        time.Time               `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at" db:"updated_at"`

	// Join fields for listings; not columns on connection_requests
	RequesterChildUUID string `json:"requester_child_uuid,omitempty" db:"requester_child_uuid"`
	RequesterChildName string `json:"requester_child_name,omitempty" db:"requester_child_name"`
	TargetChildUUID    string `json:"target_child_uuid,omitempty" db:"target_child_uuid"`
	TargetChildName    string `json:"target_child_name,omitempty" db:"target_child_name"`
}

// ConnectionStatus has a single live value; connections are soft-deleted
// rather than transitioned out.
type ConnectionStatus string

const ConnectionStatusActive ConnectionStatus = "active"

// Connection is the undirected edge produced by an accepted request.
// child_a_id < child_b_id always holds (canonical order), which is what
// makes the pair unique index and the pair lock work.
type Connection struct {
	ID        int64            `json:"-" db:"id"`
	UUID      string           `json:"uuid" db:"uuid"`
	ChildAID  int64            `json:"-" db:"child_a_id"`
	ChildBID  int64            `json:"-" db:"child_b_id"`
	Status    ConnectionStatus `json:"status" db:"status"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	DeletedAt *time.Time       `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsActive reports whether the connection is live. Participant status must
// never be derived from anything weaker than this check.
func (c *Connection) IsActive() bool {
	return c != nil && c.Status == ConnectionStatusActive && c.DeletedAt == nil
}

// RespondAction is the caller's decision on a pending request
type RespondAction string

const (
	RespondActionAccept RespondAction = "accept"
	RespondActionReject RespondAction = "reject"
)

// SubmitConnectionRequest is the engine-level input for creating a request.
// Exactly one of TargetChildUUID or TargetContact must be set; contact-only
// targets are routed to the skeleton registry by identity resolution.
type SubmitConnectionRequest struct {
	RequesterChildUUID string       `json:"requester_child_uuid" validate:"required,uuid4"`
	TargetChildUUID    *string      `json:"target_child_uuid,omitempty" validate:"omitempty,uuid4"`
	TargetContact      *ContactRef  `json:"target_contact,omitempty"`
	Message            string       `json:"message"`
}

// ContactRef identifies a parent by contact method
type ContactRef struct {
	Method string      `json:"method" validate:"required"`
	Type   ContactType `json:"type" validate:"required,oneof=email phone"`
}
