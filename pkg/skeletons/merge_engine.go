package skeletons

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/child"
	"github.com/Ramsey-B/clover/internal/repositories/connectionrequest"
	"github.com/Ramsey-B/clover/internal/repositories/parent"
	"github.com/Ramsey-B/clover/internal/repositories/skeleton"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/propagation"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MergeOutcome reports everything a registration merge produced, including
// invitations delivered by propagation, for post-commit event emission
type MergeOutcome struct {
	Result      models.MergeResult
	Accounts    []models.SkeletonAccount
	Invitations []models.ActivityInvitation
}

// MergeEngine carries skeleton state over to a freshly registered parent
type MergeEngine struct {
	db         database.DB
	logger     ectologger.Logger
	skeletons  *skeleton.Repository
	parents    *parent.Repository
	children   *child.Repository
	requests   *connectionrequest.Repository
	propagator *propagation.Propagator
}

// NewMergeEngine creates a skeleton merge engine
func NewMergeEngine(
	db database.DB,
	logger ectologger.Logger,
	skeletons *skeleton.Repository,
	parents *parent.Repository,
	children *child.Repository,
	requests *connectionrequest.Repository,
	propagator *propagation.Propagator,
) *MergeEngine {
	return &MergeEngine{
		db:         db,
		logger:     logger,
		skeletons:  skeletons,
		parents:    parents,
		children:   children,
		requests:   requests,
		propagator: propagator,
	}
}

// MergeOnRegistration finds every unmerged skeleton account matching the new
// parent's contact methods and merges each in its own transaction: real
// children for placeholder children, real pending requests for queued ones,
// then the account is retired. The account row lock plus the is_merged guard
// make a concurrent double-merge impossible; re-running is a no-op.
func (e *MergeEngine) MergeOnRegistration(ctx context.Context, newParent *models.Parent) (*MergeOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "skeletons.MergeEngine.MergeOnRegistration")
	defer span.End()

	contacts, err := e.parents.ListContactMethods(ctx, newParent.ID)
	if err != nil {
		return nil, err
	}

	accounts, err := e.skeletons.FindUnmergedByContacts(ctx, contacts)
	if err != nil {
		return nil, err
	}

	outcome := &MergeOutcome{}
	for i := range accounts {
		if err := e.mergeAccount(ctx, accounts[i].ID, newParent, outcome); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

func (e *MergeEngine) mergeAccount(ctx context.Context, accountID int64, newParent *models.Parent, outcome *MergeOutcome) error {
	ctxTx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	acct, err := e.skeletons.GetAccountForUpdate(ctxTx, accountID)
	if err != nil {
		return err
	}
	if acct.IsMerged {
		return nil
	}

	kids, err := e.skeletons.ListChildren(ctxTx, acct.ID)
	if err != nil {
		return err
	}

	merged := make([]propagation.MergedChild, 0, len(kids))
	realBySkeletonID := make(map[int64]*models.Child, len(kids))
	for i := range kids {
		kid := kids[i]
		if kid.IsMerged {
			continue
		}
		real, err := e.children.Create(ctxTx, newParent.ID, kid.Name, kid.BirthYear)
		if err != nil {
			return err
		}
		if err := e.skeletons.MarkChildMerged(ctxTx, kid.ID, real.ID); err != nil {
			return err
		}
		merged = append(merged, propagation.MergedChild{Skeleton: kid, Real: real})
		realBySkeletonID[kid.ID] = real
		outcome.Result.ChildrenCreated++
	}

	queued, err := e.skeletons.ListConnectionRequestsForAccount(ctxTx, acct.ID)
	if err != nil {
		return err
	}
	for i := range queued {
		sr := queued[i]
		if sr.IsConverted {
			continue
		}
		real, ok := realBySkeletonID[sr.SkeletonChildID]
		if !ok {
			// An unconverted request must point at a child merged in this
			// same pass; anything else means a previous merge was torn.
			e.logger.WithContext(ctx).WithFields(map[string]any{
				"skeleton_account_id": acct.ID,
				"skeleton_request_id": sr.ID,
				"skeleton_child_id":   sr.SkeletonChildID,
			}).Error("Skeleton request has no unmerged skeleton child")
			return httperror.NewHTTPError(http.StatusInternalServerError, "skeleton merge found an unconverted request with no unmerged child")
		}
		converted, err := e.requests.Create(ctxTx, sr.RequesterChildID, real.ID, sr.Message)
		if err != nil {
			return err
		}
		if err := e.skeletons.MarkRequestConverted(ctxTx, sr.ID, converted.ID); err != nil {
			return err
		}
		outcome.Result.RequestsConverted++
	}

	propagated, err := e.propagator.OnSkeletonAccountMerged(ctxTx, acct, newParent, merged)
	if err != nil {
		return err
	}

	if err := e.skeletons.MarkAccountMerged(ctxTx, acct.ID, newParent.ID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	outcome.Accounts = append(outcome.Accounts, *acct)
	outcome.Invitations = append(outcome.Invitations, propagated.Invitations...)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"skeleton_account_uuid": acct.UUID,
		"parent_uuid":           newParent.UUID,
		"children_created":      len(merged),
	}).Info("Merged skeleton account")
	return nil
}
