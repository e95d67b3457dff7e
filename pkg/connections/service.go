// Package connections implements the directed request lifecycle: submit,
// respond, and the activation side effects that follow an accept.
package connections

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/child"
	"github.com/Ramsey-B/clover/internal/repositories/connection"
	"github.com/Ramsey-B/clover/internal/repositories/connectionrequest"
	"github.com/Ramsey-B/clover/internal/repositories/parent"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/propagation"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// RespondResult is what responding to a request produces. Connection is nil
// on a reject.
type RespondResult struct {
	Request    *models.ConnectionRequest `json:"request"`
	Connection *models.Connection        `json:"connection,omitempty"`
}

// Service runs the connection request lifecycle
type Service struct {
	db          database.DB
	logger      ectologger.Logger
	parents     *parent.Repository
	children    *child.Repository
	requests    *connectionrequest.Repository
	connections *connection.Repository
	propagator  *propagation.Propagator
	emitter     *events.Emitter
	network     *graph.NetworkService
}

// NewService creates a connection service. network may be nil when the graph
// projection is disabled.
func NewService(
	db database.DB,
	logger ectologger.Logger,
	parents *parent.Repository,
	children *child.Repository,
	requests *connectionrequest.Repository,
	connections *connection.Repository,
	propagator *propagation.Propagator,
	emitter *events.Emitter,
	network *graph.NetworkService,
) *Service {
	return &Service{
		db:          db,
		logger:      logger,
		parents:     parents,
		children:    children,
		requests:    requests,
		connections: connections,
		propagator:  propagator,
		emitter:     emitter,
		network:     network,
	}
}

// SubmitRequest creates a pending request toward a registered child. The
// target is either a child UUID or a contact method that resolves to a
// registered parent; an unresolvable contact belongs to the skeleton flow.
func (s *Service) SubmitRequest(ctx context.Context, req models.SubmitConnectionRequest) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Service.SubmitRequest")
	defer span.End()

	if (req.TargetChildUUID == nil) == (req.TargetContact == nil) {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "exactly one of target_child_uuid or target_contact must be provided")
	}

	requester, err := s.children.GetByUUID(ctx, req.RequesterChildUUID)
	if err != nil {
		return nil, err
	}

	var target *models.Child
	if req.TargetChildUUID != nil {
		target, err = s.children.GetByUUID(ctx, *req.TargetChildUUID)
		if err != nil {
			return nil, err
		}
	} else {
		target, err = s.resolveContactTarget(ctx, req.TargetContact)
		if err != nil {
			return nil, err
		}
	}

	if target.ID == requester.ID || target.ParentID == requester.ParentID {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "cannot request a connection within the same family")
	}

	active, err := s.connections.FindActiveByPair(ctx, requester.ID, target.ID)
	if err != nil {
		return nil, err
	}
	if active.IsActive() {
		return nil, httperror.NewHTTPError(http.StatusConflict, "children are already connected")
	}

	// The partial unique index still backstops a racing insert; this check
	// exists for the clean conflict message.
	existing, err := s.requests.FindPendingByPair(ctx, requester.ID, target.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, httperror.NewHTTPError(http.StatusConflict, "a pending connection request already exists for this pair")
	}

	created, err := s.requests.Create(ctx, requester.ID, target.ID, req.Message)
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"request_uuid":         created.UUID,
		"requester_child_uuid": requester.UUID,
		"target_child_uuid":    target.UUID,
	}).Info("Submitted connection request")
	return created, nil
}

func (s *Service) resolveContactTarget(ctx context.Context, ref *models.ContactRef) (*models.Child, error) {
	contact := normalizers.NormalizeContact(ref.Method, ref.Type)
	p, err := s.parents.FindByContact(ctx, contact, ref.Type)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "contact does not resolve to a registered parent; register a skeleton request instead")
	}

	kids, err := s.children.ListByParent(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	switch len(kids) {
	case 0:
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "target parent has no children")
	case 1:
		return &kids[0], nil
	default:
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "target parent has multiple children; specify target_child_uuid")
	}
}

// Respond accepts or rejects a pending request. Accepting creates (or
// reuses) the symmetric connection, runs pending invitation propagation in
// the same transaction, and emits events once everything is committed.
// Repeating a response with the same action is idempotent; the opposite
// action on a settled request is a conflict.
func (s *Service) Respond(ctx context.Context, requestUUID string, action models.RespondAction) (*RespondResult, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Service.Respond")
	defer span.End()

	if action != models.RespondActionAccept && action != models.RespondActionReject {
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "unknown action %q", action)
	}

	ctxTx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	req, err := s.requests.GetByUUIDForUpdate(ctxTx, requestUUID)
	if err != nil {
		return nil, err
	}

	if req.Status != models.ConnectionRequestStatusPending {
		return s.respondSettled(ctxTx, req, action)
	}

	if action == models.RespondActionReject {
		if err := s.requests.UpdateStatus(ctxTx, req.ID, models.ConnectionRequestStatusRejected); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		req.Status = models.ConnectionRequestStatusRejected
		s.logger.WithContext(ctx).WithFields(map[string]any{"request_uuid": req.UUID}).Info("Rejected connection request")
		return &RespondResult{Request: req}, nil
	}

	// Serialize concurrent accepts touching either child before the
	// existence check, so two reciprocal requests cannot double-create.
	if err := s.connections.LockPair(ctxTx, req.RequesterChildID, req.TargetChildID); err != nil {
		return nil, err
	}

	if err := s.requests.UpdateStatus(ctxTx, req.ID, models.ConnectionRequestStatusAccepted); err != nil {
		return nil, err
	}
	req.Status = models.ConnectionRequestStatusAccepted

	conn, err := s.connections.FindActiveByPair(ctxTx, req.RequesterChildID, req.TargetChildID)
	if err != nil {
		return nil, err
	}

	var propagated *propagation.Result
	if conn == nil {
		conn, err = s.connections.Create(ctxTx, req.RequesterChildID, req.TargetChildID)
		if err != nil {
			return nil, err
		}
		propagated, err = s.propagator.OnConnectionActivated(ctxTx, conn)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"request_uuid":    req.UUID,
		"connection_uuid": conn.UUID,
	}).Info("Accepted connection request")

	if propagated != nil {
		s.afterActivation(ctx, conn, propagated)
	}
	return &RespondResult{Request: req, Connection: conn}, nil
}

// respondSettled handles the non-pending paths: same action again is a
// no-op, the opposite action is a conflict
func (s *Service) respondSettled(ctx context.Context, req *models.ConnectionRequest, action models.RespondAction) (*RespondResult, error) {
	settledBy := map[models.RespondAction]models.ConnectionRequestStatus{
		models.RespondActionAccept: models.ConnectionRequestStatusAccepted,
		models.RespondActionReject: models.ConnectionRequestStatusRejected,
	}
	if req.Status != settledBy[action] {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "request already %s", req.Status)
	}

	result := &RespondResult{Request: req}
	if req.Status == models.ConnectionRequestStatusAccepted {
		conn, err := s.connections.FindActiveByPair(ctx, req.RequesterChildID, req.TargetChildID)
		if err != nil {
			return nil, err
		}
		result.Connection = conn
	}
	return result, nil
}

// afterActivation runs the post-commit side effects of a new connection:
// event emission and the graph projection. Both are best effort.
func (s *Service) afterActivation(ctx context.Context, conn *models.Connection, propagated *propagation.Result) {
	childA, errA := s.children.GetByID(ctx, conn.ChildAID)
	childB, errB := s.children.GetByID(ctx, conn.ChildBID)
	if errA != nil || errB != nil {
		s.logger.WithContext(ctx).WithFields(map[string]any{"connection_uuid": conn.UUID}).Error("Failed to load children for activation side effects")
		return
	}

	s.emitter.EmitConnectionActivated(ctx, conn, childA.UUID, childB.UUID)
	s.emitter.EmitInvitationsCreated(ctx, propagated.Invitations)
	s.emitter.EmitConnectionCandidates(ctx, propagated.Candidates)

	if s.network != nil {
		if err := s.network.ProjectConnection(ctx, conn, childA, childB); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"connection_uuid": conn.UUID}).Warn("Graph projection failed; relational store remains authoritative")
		}
	}
}

// ListRequestsForChild returns a child's requests in both directions
func (s *Service) ListRequestsForChild(ctx context.Context, childUUID string, status *models.ConnectionRequestStatus) ([]models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Service.ListRequestsForChild")
	defer span.End()

	ch, err := s.children.GetByUUID(ctx, childUUID)
	if err != nil {
		return nil, err
	}
	return s.requests.ListForChild(ctx, ch.ID, status)
}

// ListConnectionsForChild returns a child's active connections
func (s *Service) ListConnectionsForChild(ctx context.Context, childUUID string) ([]models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Service.ListConnectionsForChild")
	defer span.End()

	ch, err := s.children.GetByUUID(ctx, childUUID)
	if err != nil {
		return nil, err
	}
	return s.connections.ListActiveForChild(ctx, ch.ID)
}

// Disconnect soft-deletes an active connection and removes the projection
func (s *Service) Disconnect(ctx context.Context, connectionUUID string) error {
	ctx, span := tracing.StartSpan(ctx, "connections.Service.Disconnect")
	defer span.End()

	if err := s.connections.SoftDelete(ctx, connectionUUID); err != nil {
		return err
	}
	if s.network != nil {
		if err := s.network.RemoveConnection(ctx, connectionUUID); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"connection_uuid": connectionUUID}).Warn("Graph removal failed; relational store remains authoritative")
		}
	}
	return nil
}
