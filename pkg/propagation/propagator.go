// Package propagation converts ledger rows into real invitations when the
// identity they wait on resolves: a connection goes active, or a skeleton
// merges into a registered account.
package propagation

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/activity"
	"github.com/Ramsey-B/clover/internal/repositories/child"
	"github.com/Ramsey-B/clover/internal/repositories/invitation"
	"github.com/Ramsey-B/clover/pkg/ledger"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Result reports the invitations a propagation pass delivered, so the caller
// can emit events after its transaction commits
type Result struct {
	Invitations []models.ActivityInvitation
	Candidates  []ConnectionCandidate
}

// ConnectionCandidate is an unsolicited notification target: an activity
// whose host opted into auto-notify, and a newly connected child who holds
// no invitation to it. Candidates only ever become events; nothing is
// written for them.
type ConnectionCandidate struct {
	Activity *models.Activity
	Child    *models.Child
}

// MergedChild pairs a placeholder with the real child it became
type MergedChild struct {
	Skeleton models.SkeletonChild
	Real     *models.Child
}

// Propagator runs inside the caller's transaction; every repository call it
// makes joins via the context
type Propagator struct {
	logger      ectologger.Logger
	ledger      *ledger.Ledger
	invitations *invitation.Repository
	activities  *activity.Repository
	children    *child.Repository
}

// NewPropagator creates a notification propagator
func NewPropagator(
	logger ectologger.Logger,
	l *ledger.Ledger,
	invitations *invitation.Repository,
	activities *activity.Repository,
	children *child.Repository,
) *Propagator {
	return &Propagator{
		logger:      logger,
		ledger:      l,
		invitations: invitations,
		activities:  activities,
		children:    children,
	}
}

// OnConnectionActivated finds every ledger row waiting on either side of a
// newly active connection and converts it. A row only fires when the
// activity's host sits on the other side of this connection; a row waiting
// on child C must not fire because C connected with someone unrelated to
// the activity.
func (p *Propagator) OnConnectionActivated(ctx context.Context, conn *models.Connection) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "propagation.Propagator.OnConnectionActivated")
	defer span.End()

	childA, err := p.children.GetByID(ctx, conn.ChildAID)
	if err != nil {
		return nil, err
	}
	childB, err := p.children.GetByID(ctx, conn.ChildBID)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	sides := []struct{ invitee, host *models.Child }{
		{invitee: childA, host: childB},
		{invitee: childB, host: childA},
	}
	for _, side := range sides {
		targets := []models.PendingTarget{
			{Kind: models.PendingTargetChild, UUID: side.invitee.UUID},
			{Kind: models.PendingTargetParent, UUID: side.invitee.ParentUUID},
		}
		matches, err := p.ledger.FindMatching(ctx, targets)
		if err != nil {
			return nil, err
		}
		for i := range matches {
			row := &matches[i]
			act, err := p.activities.GetByID(ctx, row.ActivityID)
			if err != nil {
				return nil, err
			}
			if act.HostParentID != side.host.ParentID {
				continue
			}
			if err := p.convert(ctx, act, row, side.invitee, result); err != nil {
				return nil, err
			}
		}

		if err := p.collectAutoNotify(ctx, side.host, side.invitee, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// collectAutoNotify gathers activities of the host's parent that opted into
// new-connection notifications and do not already hold an invitation for the
// new peer. Conversion of explicitly registered pending invitations happens
// above regardless of the flag; the flag only gates these unsolicited ones.
func (p *Propagator) collectAutoNotify(ctx context.Context, host, peer *models.Child, result *Result) error {
	activities, err := p.activities.ListByHostParent(ctx, host.ParentID)
	if err != nil {
		return err
	}
	for i := range activities {
		act := &activities[i]
		if !act.AutoNotifyNewConnections || act.HostChildID != host.ID {
			continue
		}
		existing, err := p.invitations.FindByActivityAndChild(ctx, act.ID, peer.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		result.Candidates = append(result.Candidates, ConnectionCandidate{Activity: act, Child: peer})
	}
	return nil
}

// OnSkeletonAccountMerged converts ledger rows keyed against the skeleton
// identities that a registration merge just resolved. Child-keyed rows
// convert to the corresponding real child. Account-keyed rows convert when
// the account merged a single child; with several the intended invitee is
// ambiguous, so the row is rekeyed to the new parent and left to a later
// connection activation, which knows which child sits on the connection.
func (p *Propagator) OnSkeletonAccountMerged(ctx context.Context, acct *models.SkeletonAccount, newParent *models.Parent, merged []MergedChild) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "propagation.Propagator.OnSkeletonAccountMerged")
	defer span.End()

	result := &Result{}
	for _, mc := range merged {
		matches, err := p.ledger.FindMatching(ctx, []models.PendingTarget{
			{Kind: models.PendingTargetChild, UUID: mc.Skeleton.UUID},
		})
		if err != nil {
			return nil, err
		}
		for i := range matches {
			row := &matches[i]
			act, err := p.activities.GetByID(ctx, row.ActivityID)
			if err != nil {
				return nil, err
			}
			if err := p.convert(ctx, act, row, mc.Real, result); err != nil {
				return nil, err
			}
		}
	}

	accountRows, err := p.ledger.FindMatching(ctx, []models.PendingTarget{
		{Kind: models.PendingTargetParent, UUID: acct.UUID},
	})
	if err != nil {
		return nil, err
	}
	for i := range accountRows {
		row := &accountRows[i]
		if len(merged) == 1 {
			act, err := p.activities.GetByID(ctx, row.ActivityID)
			if err != nil {
				return nil, err
			}
			if err := p.convert(ctx, act, row, merged[0].Real, result); err != nil {
				return nil, err
			}
			continue
		}
		if err := p.ledger.Rekey(ctx, row, models.PendingTarget{
			Kind: models.PendingTargetParent,
			UUID: newParent.UUID,
		}); err != nil {
			return nil, err
		}
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"activity_id": row.ActivityID,
			"parent_uuid": newParent.UUID,
		}).Info("Rekeyed account-level pending invitation to registered parent")
	}
	return result, nil
}

// convert creates the real invitation (unless the child already holds one)
// and consumes the ledger row, both in the caller's transaction
func (p *Propagator) convert(ctx context.Context, act *models.Activity, row *models.PendingActivityInvitation, invitee *models.Child, result *Result) error {
	inv, created, err := p.invitations.CreateIfAbsent(ctx, act.ID, act.HostParentID, invitee.ParentID, invitee.ID, row.Message)
	if err != nil {
		return err
	}
	if err := p.ledger.Consume(ctx, row); err != nil {
		return err
	}

	if created {
		result.Invitations = append(result.Invitations, *inv)
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"activity_uuid":   act.UUID,
			"invitation_uuid": inv.UUID,
			"child_uuid":      invitee.UUID,
		}).Info("Converted pending invitation")
	} else {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"activity_uuid": act.UUID,
			"child_uuid":    invitee.UUID,
		}).Info("Pending invitation consumed against existing invitation")
	}
	return nil
}
