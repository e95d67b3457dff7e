// Package participants computes the externally visible participant list of
// an activity from invitations, ledger rows, and connection state.
package participants

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/activity"
	"github.com/Ramsey-B/clover/internal/repositories/child"
	"github.com/Ramsey-B/clover/internal/repositories/connection"
	"github.com/Ramsey-B/clover/internal/repositories/invitation"
	"github.com/Ramsey-B/clover/internal/repositories/parent"
	"github.com/Ramsey-B/clover/internal/repositories/pendinginvitation"
	"github.com/Ramsey-B/clover/internal/repositories/skeleton"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Resolver builds participant lists
type Resolver struct {
	logger      ectologger.Logger
	activities  *activity.Repository
	invitations *invitation.Repository
	pending     *pendinginvitation.Repository
	children    *child.Repository
	parents     *parent.Repository
	connections *connection.Repository
	skeletons   *skeleton.Repository
}

// NewResolver creates a participant resolver
func NewResolver(
	logger ectologger.Logger,
	activities *activity.Repository,
	invitations *invitation.Repository,
	pending *pendinginvitation.Repository,
	children *child.Repository,
	parents *parent.Repository,
	connections *connection.Repository,
	skeletons *skeleton.Repository,
) *Resolver {
	return &Resolver{
		logger:      logger,
		activities:  activities,
		invitations: invitations,
		pending:     pending,
		children:    children,
		parents:     parents,
		connections: connections,
		skeletons:   skeletons,
	}
}

// Resolve returns the activity's participants: one entry per child UUID.
// Real invitations are listed first and win over ledger rows for the same
// child; "connected" is only ever derived from an active connection with the
// hosting child.
func (r *Resolver) Resolve(ctx context.Context, activityUUID string) ([]models.Participant, error) {
	ctx, span := tracing.StartSpan(ctx, "participants.Resolver.Resolve")
	defer span.End()

	act, err := r.activities.GetByUUID(ctx, activityUUID)
	if err != nil {
		return nil, err
	}

	invs, err := r.invitations.ListByActivity(ctx, act.ID)
	if err != nil {
		return nil, err
	}

	out := make([]models.Participant, 0, len(invs))
	seen := make(map[string]bool)

	for i := range invs {
		inv := &invs[i]
		if inv.Status == models.ActivityInvitationStatusWithdrawn {
			continue
		}
		if seen[inv.InvitedChildUUID] {
			continue
		}
		connected, err := r.connections.ActiveExists(ctx, act.HostChildID, inv.InvitedChildID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Participant{
			ChildUUID:      inv.InvitedChildUUID,
			ChildName:      inv.InvitedChildName,
			Status:         StatusForInvitation(inv.Status, connected),
			InvitationType: models.InvitationTypeInvitation,
		})
		seen[inv.InvitedChildUUID] = true
	}

	rows, err := r.pending.ListByActivity(ctx, act.ID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		candidates, err := r.resolvePendingCandidates(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			if seen[c.uuid] {
				continue
			}
			status := models.ParticipantStatusPendingConnection
			if c.child != nil {
				connected, err := r.connections.ActiveExists(ctx, act.HostChildID, c.child.ID)
				if err != nil {
					return nil, err
				}
				if connected {
					status = models.ParticipantStatusConnected
				}
			}
			out = append(out, models.Participant{
				ChildUUID:      c.uuid,
				ChildName:      c.name,
				Status:         status,
				InvitationType: models.InvitationTypePendingInvitation,
			})
			seen[c.uuid] = true
		}
	}

	return out, nil
}

// candidate is a prospective participant a ledger row resolves to. child is
// nil for skeleton identities, which can never be connected.
type candidate struct {
	uuid  string
	name  string
	child *models.Child
}

// resolvePendingCandidates maps a ledger row's target onto children: a child
// target onto that child (real or skeleton), a parent target onto all of the
// parent's children.
func (r *Resolver) resolvePendingCandidates(ctx context.Context, row *models.PendingActivityInvitation) ([]candidate, error) {
	switch row.TargetKind {
	case models.PendingTargetChild:
		ch, err := r.children.FindByUUID(ctx, row.TargetUUID)
		if err != nil {
			return nil, err
		}
		if ch != nil {
			return []candidate{{uuid: ch.UUID, name: ch.Name, child: ch}}, nil
		}
		kid, err := r.skeletons.FindChildByUUID(ctx, row.TargetUUID)
		if err != nil {
			return nil, err
		}
		if kid != nil {
			return []candidate{{uuid: kid.UUID, name: kid.Name}}, nil
		}
	case models.PendingTargetParent:
		p, err := r.findParent(ctx, row.TargetUUID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			kids, err := r.children.ListByParent(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			candidates := make([]candidate, 0, len(kids))
			for i := range kids {
				candidates = append(candidates, candidate{uuid: kids[i].UUID, name: kids[i].Name, child: &kids[i]})
			}
			return candidates, nil
		}
		acct, err := r.skeletons.FindAccountByUUID(ctx, row.TargetUUID)
		if err != nil {
			return nil, err
		}
		if acct != nil {
			kids, err := r.skeletons.ListChildren(ctx, acct.ID)
			if err != nil {
				return nil, err
			}
			candidates := make([]candidate, 0, len(kids))
			for i := range kids {
				candidates = append(candidates, candidate{uuid: kids[i].UUID, name: kids[i].Name})
			}
			return candidates, nil
		}
	}

	// A dangling target should have been caught at ledger-write time;
	// surface it in the logs but keep the list rendering.
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"target_kind": row.TargetKind,
		"target_uuid": row.TargetUUID,
	}).Warn("Pending invitation target resolves to nothing")
	return nil, nil
}

func (r *Resolver) findParent(ctx context.Context, parentUUID string) (*models.Parent, error) {
	p, err := r.parents.GetByUUID(ctx, parentUUID)
	if err != nil {
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// StatusForInvitation maps an invitation's state onto the participant
// status. The invitee's explicit answer always wins; an unanswered
// invitation shows connected or invited depending on connection state.
func StatusForInvitation(status models.ActivityInvitationStatus, connected bool) models.ParticipantStatus {
	switch status {
	case models.ActivityInvitationStatusAccepted:
		return models.ParticipantStatusAccepted
	case models.ActivityInvitationStatusRejected:
		return models.ParticipantStatusDeclined
	default:
		if connected {
			return models.ParticipantStatusConnected
		}
		return models.ParticipantStatusInvited
	}
}
