// Package ledger owns deferred invitations: rows written for prospective
// invitees and consumed exactly once when the target identity resolves.
package ledger

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/activity"
	"github.com/Ramsey-B/clover/internal/repositories/child"
	"github.com/Ramsey-B/clover/internal/repositories/parent"
	"github.com/Ramsey-B/clover/internal/repositories/pendinginvitation"
	"github.com/Ramsey-B/clover/internal/repositories/skeleton"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Ledger validates, records, and consumes pending invitations
type Ledger struct {
	db         database.DB
	logger     ectologger.Logger
	pending    *pendinginvitation.Repository
	activities *activity.Repository
	children   *child.Repository
	parents    *parent.Repository
	skeletons  *skeleton.Repository
}

// NewLedger creates a pending invitation ledger
func NewLedger(
	db database.DB,
	logger ectologger.Logger,
	pending *pendinginvitation.Repository,
	activities *activity.Repository,
	children *child.Repository,
	parents *parent.Repository,
	skeletons *skeleton.Repository,
) *Ledger {
	return &Ledger{
		db:         db,
		logger:     logger,
		pending:    pending,
		activities: activities,
		children:   children,
		parents:    parents,
		skeletons:  skeletons,
	}
}

// AddPending parses wire-format pending keys, verifies every target resolves
// to a known identity (real or skeleton), and records one ledger row per
// target. Re-adding an existing target is a no-op, not an error.
func (l *Ledger) AddPending(ctx context.Context, activityUUID string, req models.AddPendingInvitationsRequest) ([]models.PendingActivityInvitation, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.AddPending")
	defer span.End()

	act, err := l.activities.GetByUUID(ctx, activityUUID)
	if err != nil {
		return nil, err
	}

	targets := make([]models.PendingTarget, 0, len(req.PendingKeys))
	for _, key := range req.PendingKeys {
		target, err := models.ParsePendingKey(key)
		if err != nil {
			return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "invalid pending key %q", key)
		}
		if err := l.verifyTarget(ctx, target); err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}

	ctxTx, tx, err := l.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows := make([]models.PendingActivityInvitation, 0, len(targets))
	for _, target := range targets {
		row, created, err := l.pending.CreateIfAbsent(ctxTx, act.ID, target, req.Message)
		if err != nil {
			return nil, err
		}
		if created {
			l.logger.WithContext(ctx).WithFields(map[string]any{
				"activity_uuid": activityUUID,
				"target_kind":   target.Kind,
				"target_uuid":   target.UUID,
			}).Info("Recorded pending invitation")
		}
		rows = append(rows, *row)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

// verifyTarget rejects keys that resolve to nothing. A pending invitation
// for an identity nobody has ever seen is a typo, not a deferral.
func (l *Ledger) verifyTarget(ctx context.Context, target models.PendingTarget) error {
	switch target.Kind {
	case models.PendingTargetChild:
		ch, err := l.children.FindByUUID(ctx, target.UUID)
		if err != nil {
			return err
		}
		if ch != nil {
			return nil
		}
		kid, err := l.skeletons.FindChildByUUID(ctx, target.UUID)
		if err != nil {
			return err
		}
		if kid != nil {
			return nil
		}
	case models.PendingTargetParent:
		p, err := l.parents.GetByUUID(ctx, target.UUID)
		if err != nil && !(httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound) {
			return err
		}
		if p != nil {
			return nil
		}
		acct, err := l.skeletons.FindAccountByUUID(ctx, target.UUID)
		if err != nil {
			return err
		}
		if acct != nil {
			return nil
		}
	}
	return httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "pending target %s does not resolve to any known identity", target.Key())
}

// ListByActivity returns an activity's outstanding ledger rows
func (l *Ledger) ListByActivity(ctx context.Context, activityUUID string) ([]models.PendingActivityInvitation, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.ListByActivity")
	defer span.End()

	act, err := l.activities.GetByUUID(ctx, activityUUID)
	if err != nil {
		return nil, err
	}
	return l.pending.ListByActivity(ctx, act.ID)
}

// FindMatching returns every ledger row waiting on any of the given targets,
// across all activities. Callers pass the identities a resolution event just
// made concrete.
func (l *Ledger) FindMatching(ctx context.Context, targets []models.PendingTarget) ([]models.PendingActivityInvitation, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.FindMatching")
	defer span.End()
	return l.pending.FindByTargets(ctx, targets)
}

// Consume deletes a converted ledger row. Must run in the same transaction
// as the ActivityInvitation insert it corresponds to.
func (l *Ledger) Consume(ctx context.Context, row *models.PendingActivityInvitation) error {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.Consume")
	defer span.End()
	return l.pending.Delete(ctx, row.ID)
}

// Rekey repoints a ledger row at a new target in place
func (l *Ledger) Rekey(ctx context.Context, row *models.PendingActivityInvitation, target models.PendingTarget) error {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.Rekey")
	defer span.End()
	return l.pending.RekeyTarget(ctx, row.ID, target)
}
