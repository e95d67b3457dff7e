// Package invitations implements direct (manual) activity invitations, as
// opposed to the deferred ones the ledger owns.
package invitations

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/activity"
	"github.com/Ramsey-B/clover/internal/repositories/child"
	"github.com/Ramsey-B/clover/internal/repositories/invitation"
	"github.com/Ramsey-B/clover/internal/repositories/parent"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Service creates and answers direct invitations
type Service struct {
	logger      ectologger.Logger
	activities  *activity.Repository
	invitations *invitation.Repository
	children    *child.Repository
	parents     *parent.Repository
	emitter     *events.Emitter
}

// NewService creates an invitation service
func NewService(
	logger ectologger.Logger,
	activities *activity.Repository,
	invitations *invitation.Repository,
	children *child.Repository,
	parents *parent.Repository,
	emitter *events.Emitter,
) *Service {
	return &Service{
		logger:      logger,
		activities:  activities,
		invitations: invitations,
		children:    children,
		parents:     parents,
		emitter:     emitter,
	}
}

// Invite creates a pending invitation for a registered child. A parent-level
// invite resolves to the parent's only child. A second non-withdrawn
// invitation for the same child is a conflict, not an upsert; direct invites
// are deliberate and a duplicate means the caller's view is stale.
func (s *Service) Invite(ctx context.Context, activityUUID string, req models.InviteRequest) (*models.ActivityInvitation, error) {
	ctx, span := tracing.StartSpan(ctx, "invitations.Service.Invite")
	defer span.End()

	if (req.InvitedChildUUID == nil) == (req.InvitedParentUUID == nil) {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "exactly one of invited_child_uuid or invited_parent_uuid must be provided")
	}

	act, err := s.activities.GetByUUID(ctx, activityUUID)
	if err != nil {
		return nil, err
	}

	var invitee *models.Child
	if req.InvitedChildUUID != nil {
		invitee, err = s.children.GetByUUID(ctx, *req.InvitedChildUUID)
		if err != nil {
			return nil, err
		}
	} else {
		p, err := s.parents.GetByUUID(ctx, *req.InvitedParentUUID)
		if err != nil {
			return nil, err
		}
		kids, err := s.children.ListByParent(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		switch len(kids) {
		case 0:
			return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "invited parent has no children")
		case 1:
			invitee = &kids[0]
		default:
			return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "invited parent has multiple children; specify invited_child_uuid")
		}
	}

	if invitee.ID == act.HostChildID {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "cannot invite the hosting child")
	}

	inv, created, err := s.invitations.CreateIfAbsent(ctx, act.ID, act.HostParentID, invitee.ParentID, invitee.ID, req.Message)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "child %s is already invited to this activity", invitee.UUID)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"activity_uuid":   act.UUID,
		"invitation_uuid": inv.UUID,
		"child_uuid":      invitee.UUID,
	}).Info("Created invitation")

	s.emitter.EmitInvitationsCreated(ctx, []models.ActivityInvitation{*inv})
	return inv, nil
}

// Respond records the invitee's answer to a pending invitation
func (s *Service) Respond(ctx context.Context, invitationUUID string, accept bool) (*models.ActivityInvitation, error) {
	ctx, span := tracing.StartSpan(ctx, "invitations.Service.Respond")
	defer span.End()

	status := models.ActivityInvitationStatusRejected
	if accept {
		status = models.ActivityInvitationStatusAccepted
	}

	if err := s.invitations.UpdateStatus(ctx, invitationUUID, status); err != nil {
		return nil, err
	}
	return s.invitations.GetByUUID(ctx, invitationUUID)
}

// Withdraw retires an invitation without deleting it
func (s *Service) Withdraw(ctx context.Context, invitationUUID string) error {
	ctx, span := tracing.StartSpan(ctx, "invitations.Service.Withdraw")
	defer span.End()
	return s.invitations.UpdateStatus(ctx, invitationUUID, models.ActivityInvitationStatusWithdrawn)
}
