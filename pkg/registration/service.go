// Package registration handles new parent sign-up and the skeleton merge
// that follows it.
package registration

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/child"
	"github.com/Ramsey-B/clover/internal/repositories/parent"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/skeletons"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Service registers parents and triggers skeleton merges
type Service struct {
	db       database.DB
	logger   ectologger.Logger
	parents  *parent.Repository
	children *child.Repository
	merger   *skeletons.MergeEngine
	emitter  *events.Emitter
}

// NewService creates a registration service
func NewService(
	db database.DB,
	logger ectologger.Logger,
	parents *parent.Repository,
	children *child.Repository,
	merger *skeletons.MergeEngine,
	emitter *events.Emitter,
) *Service {
	return &Service{
		db:       db,
		logger:   logger,
		parents:  parents,
		children: children,
		merger:   merger,
		emitter:  emitter,
	}
}

// Register creates the parent, their contact methods, and their children in
// one transaction, then runs the skeleton merge. The merge runs after the
// registration commit so a merge failure never loses the account; re-running
// it later picks up where it left off.
func (s *Service) Register(ctx context.Context, req models.RegisterParentRequest) (*models.RegistrationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "registration.Service.Register")
	defer span.End()

	contacts, err := s.normalizedContacts(ctx, req)
	if err != nil {
		return nil, err
	}

	ctxTx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := s.parents.Create(ctxTx, req.DisplayName)
	if err != nil {
		return nil, err
	}
	for _, cm := range contacts {
		if _, err := s.parents.AddContactMethod(ctxTx, p.ID, cm.Method, cm.Type); err != nil {
			return nil, err
		}
	}

	kids := make([]models.Child, 0, len(req.Children))
	for _, rc := range req.Children {
		ch, err := s.children.Create(ctxTx, p.ID, rc.Name, rc.BirthYear)
		if err != nil {
			return nil, err
		}
		kids = append(kids, *ch)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	outcome, err := s.merger.MergeOnRegistration(ctx, p)
	if err != nil {
		// The account is committed; the merge re-runs idempotently on the
		// next registration-shaped trigger. Surface the failure anyway.
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"parent_uuid": p.UUID}).Error("Skeleton merge failed after registration")
		return nil, err
	}

	mergedKids, err := s.children.ListByParent(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	s.emitter.EmitSkeletonMerged(ctx, outcome.Accounts, p.UUID, outcome.Result)
	s.emitter.EmitInvitationsCreated(ctx, outcome.Invitations)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"parent_uuid":        p.UUID,
		"children":           len(mergedKids),
		"children_created":   outcome.Result.ChildrenCreated,
		"requests_converted": outcome.Result.RequestsConverted,
	}).Info("Registered parent")

	return &models.RegistrationResult{
		Parent:   p,
		Children: mergedKids,
		Merge:    &outcome.Result,
	}, nil
}

// normalizedContacts validates and canonicalizes the sign-up contacts,
// rejecting ones already owned by another parent
func (s *Service) normalizedContacts(ctx context.Context, req models.RegisterParentRequest) ([]models.ContactMethod, error) {
	var contacts []models.ContactMethod
	if req.Email != nil {
		contacts = append(contacts, models.ContactMethod{
			Method: normalizers.NormalizeEmail(*req.Email),
			Type:   models.ContactTypeEmail,
		})
	}
	if req.Phone != nil {
		contacts = append(contacts, models.ContactMethod{
			Method: normalizers.NormalizePhone(*req.Phone),
			Type:   models.ContactTypePhone,
		})
	}
	if len(contacts) == 0 {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "at least one of email or phone is required")
	}

	for _, cm := range contacts {
		if cm.Method == "" {
			return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "%s contact is empty after normalization", cm.Type)
		}
		existing, err := s.parents.FindByContact(ctx, cm.Method, cm.Type)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, httperror.NewHTTPErrorf(http.StatusConflict, "%s contact already registered", cm.Type)
		}
	}
	return contacts, nil
}
