package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PendingTargetKind tags which identity a ledger row waits on
type PendingTargetKind string

const (
	PendingTargetParent PendingTargetKind = "parent"
	PendingTargetChild  PendingTargetKind = "child"
)

// PendingTarget identifies the prospective invitee of a pending invitation.
// The wire format is the legacy string key (`pending-{parentUUID}` or
// `pending-child-{childUUID}`); it is parsed once at ledger-write time and
// stored as (kind, uuid), so the same logical target can never be keyed
// under both shapes.
type PendingTarget struct {
	Kind PendingTargetKind `json:"kind"`
	UUID string            `json:"uuid"`
}

const (
	pendingChildPrefix  = "pending-child-"
	pendingParentPrefix = "pending-"
)

// ParsePendingKey parses a wire-format pending key. The child form is
// checked first; its prefix contains the parent form's.
func ParsePendingKey(key string) (PendingTarget, error) {
	switch {
	case strings.HasPrefix(key, pendingChildPrefix):
		raw := strings.TrimPrefix(key, pendingChildPrefix)
		id, err := uuid.Parse(raw)
		if err != nil {
			return PendingTarget{}, fmt.Errorf("pending key %q: invalid child uuid", key)
		}
		return PendingTarget{Kind: PendingTargetChild, UUID: id.String()}, nil
	case strings.HasPrefix(key, pendingParentPrefix):
		raw := strings.TrimPrefix(key, pendingParentPrefix)
		id, err := uuid.Parse(raw)
		if err != nil {
			return PendingTarget{}, fmt.Errorf("pending key %q: invalid parent uuid", key)
		}
		return PendingTarget{Kind: PendingTargetParent, UUID: id.String()}, nil
	default:
		return PendingTarget{}, fmt.Errorf("pending key %q: unrecognized format", key)
	}
}

// Key renders the wire-format string for this target.
func (t PendingTarget) Key() string {
	if t.Kind == PendingTargetChild {
		return pendingChildPrefix + t.UUID
	}
	return pendingParentPrefix + t.UUID
}

// Valid reports whether the target carries a known kind and a parseable UUID.
func (t PendingTarget) Valid() bool {
	if t.Kind != PendingTargetParent && t.Kind != PendingTargetChild {
		return false
	}
	_, err := uuid.Parse(t.UUID)
	return err == nil
}
