package models

import "time"

// ActivityInvitationStatus is the invitee's answer
type ActivityInvitationStatus string

const (
	ActivityInvitationStatusPending   ActivityInvitationStatus = "pending"
	ActivityInvitationStatusAccepted  ActivityInvitationStatus = "accepted"
	ActivityInvitationStatusRejected  ActivityInvitationStatus = "rejected"
	ActivityInvitationStatusWithdrawn ActivityInvitationStatus = "withdrawn"
)

// ActivityInvitation is a real, delivered invitation. At most one
// non-withdrawn row exists per (activity, invited child); the partial
// unique index enforces it.
type ActivityInvitation struct {
	ID              int64                    `json:"-" db:"id"`
	UUID            string                   `json:"uuid" db:"uuid"`
	ActivityID      int64                    `json:"-" db:"activity_id"`
	InviterParentID int64                    `json:"-" db:"inviter_parent_id"`
	InvitedParentID int64                    `json:"-" db:"invited_parent_id"`
	InvitedChildID  int64                    `json:"-" db:"invited_child_id"`
	Message         string                   `json:"message" db:"message"`
	Status          ActivityInvitationStatus `json:"status" db:"status"`
	CreatedAt       time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at" db:"updated_at"`

	// Join fields for participant resolution
	InvitedChildUUID string `json:"invited_child_uuid,omitempty" db:"invited_child_uuid"`
	InvitedChildName string `json:"invited_child_name,omitempty" db:"invited_child_name"`
}

// PendingActivityInvitation is a ledger row: an invitation that cannot be
// delivered yet because the target is only a prospective contact. It is
// write-once and delete-once; deletion happens in the same transaction as
// the conversion into an ActivityInvitation.
type PendingActivityInvitation struct {
	ID         int64             `json:"-" db:"id"`
	UUID       string            `json:"uuid" db:"uuid"`
	ActivityID int64             `json:"-" db:"activity_id"`
	TargetKind PendingTargetKind `json:"target_kind" db:"target_kind"`
	TargetUUID string            `json:"target_uuid" db:"target_uuid"`
	Message    string            `json:"message" db:"message"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`

	// Join field for participant resolution
	ActivityUUID string `json:"activity_uuid,omitempty" db:"activity_uuid"`
}

// Target returns the ledger row's target as a PendingTarget union value.
func (p *PendingActivityInvitation) Target() PendingTarget {
	return PendingTarget{Kind: p.TargetKind, UUID: p.TargetUUID}
}

// InvitationType distinguishes how a participant entry came to exist
type InvitationType string

const (
	InvitationTypeInvitation        InvitationType = "invitation"
	InvitationTypePendingInvitation InvitationType = "pending_invitation"
)

// ParticipantStatus is the externally visible state of an invitee
type ParticipantStatus string

const (
	ParticipantStatusInvited           ParticipantStatus = "invited"
	ParticipantStatusAccepted          ParticipantStatus = "accepted"
	ParticipantStatusDeclined          ParticipantStatus = "declined"
	ParticipantStatusPendingConnection ParticipantStatus = "pending_connection"
	ParticipantStatusConnected         ParticipantStatus = "connected"
)

// Participant is one resolved entry in an activity's participant list.
// The list never contains two entries for the same child UUID.
type Participant struct {
	ChildUUID      string            `json:"child_uuid"`
	ChildName      string            `json:"child_name"`
	Status         ParticipantStatus `json:"status"`
	InvitationType InvitationType    `json:"invitation_type"`
}

// InviteRequest is the engine-level input for a direct (manual) invitation.
// Exactly one of InvitedChildUUID or InvitedParentUUID must be set; a
// parent-level invite targets the parent's only child and fails if the
// parent has several.
type InviteRequest struct {
	InvitedChildUUID  *string `json:"invited_child_uuid,omitempty" validate:"omitempty,uuid4"`
	InvitedParentUUID *string `json:"invited_parent_uuid,omitempty" validate:"omitempty,uuid4"`
	Message           string  `json:"message"`
}

// AddPendingInvitationsRequest registers ledger entries for an activity.
type AddPendingInvitationsRequest struct {
	PendingKeys []string `json:"pending_keys" validate:"required,min=1"`
	Message     string   `json:"message"`
}
