// Package skeletons manages placeholder accounts for unregistered contacts
// and merges them into real accounts exactly once at registration.
package skeletons

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/child"
	"github.com/Ramsey-B/clover/internal/repositories/parent"
	"github.com/Ramsey-B/clover/internal/repositories/skeleton"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SkeletonRequestResult is what registering a request against an
// unregistered contact produces
type SkeletonRequestResult struct {
	Account *models.SkeletonAccount          `json:"account"`
	Child   *models.SkeletonChild            `json:"child"`
	Request *models.SkeletonConnectionRequest `json:"request"`
}

// Registry creates skeleton accounts and queues connection requests against
// their placeholder children
type Registry struct {
	db        database.DB
	logger    ectologger.Logger
	skeletons *skeleton.Repository
	parents   *parent.Repository
	children  *child.Repository
}

// NewRegistry creates a skeleton registry
func NewRegistry(
	db database.DB,
	logger ectologger.Logger,
	skeletons *skeleton.Repository,
	parents *parent.Repository,
	children *child.Repository,
) *Registry {
	return &Registry{
		db:        db,
		logger:    logger,
		skeletons: skeletons,
		parents:   parents,
		children:  children,
	}
}

// RegisterRequest records a connection request toward an unregistered
// contact: find-or-create the skeleton account, reuse or create the named
// placeholder child, and queue the request. Multiple requesters fan in on
// the same skeleton.
func (r *Registry) RegisterRequest(ctx context.Context, req models.CreateSkeletonRequest) (*SkeletonRequestResult, error) {
	ctx, span := tracing.StartSpan(ctx, "skeletons.Registry.RegisterRequest")
	defer span.End()

	requester, err := r.children.GetByUUID(ctx, req.RequesterChildUUID)
	if err != nil {
		return nil, err
	}

	contact := normalizers.NormalizeContact(req.ContactMethod, req.ContactType)
	registered, err := r.parents.FindByContact(ctx, contact, req.ContactType)
	if err != nil {
		return nil, err
	}
	if registered != nil {
		return nil, httperror.NewHTTPError(http.StatusConflict, "contact belongs to a registered parent; submit a direct connection request instead")
	}

	ctxTx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	acct, err := r.skeletons.FindOrCreateAccount(ctxTx, contact, req.ContactType)
	if err != nil {
		return nil, err
	}
	if acct.IsMerged {
		// The contact was merged between the lookup above and here. The
		// real parent exists now; the direct path applies.
		return nil, httperror.NewHTTPError(http.StatusConflict, "contact belongs to a registered parent; submit a direct connection request instead")
	}

	kid, err := r.skeletons.FindChildByName(ctxTx, acct.ID, req.TargetChildName)
	if err != nil {
		return nil, err
	}
	if kid == nil {
		kid, err = r.skeletons.CreateChild(ctxTx, acct.ID, req.TargetChildName, req.TargetChildBirthYear)
		if err != nil {
			return nil, err
		}
	}

	queued, err := r.skeletons.CreateConnectionRequest(ctxTx, kid.ID, requester.ID, req.Message)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"skeleton_account_uuid": acct.UUID,
		"skeleton_child_uuid":   kid.UUID,
		"requester_child_uuid":  requester.UUID,
	}).Info("Queued connection request against skeleton")

	return &SkeletonRequestResult{Account: acct, Child: kid, Request: queued}, nil
}
