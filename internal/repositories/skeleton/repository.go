package skeleton

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const accountColumns = `id, uuid, contact_method, contact_type, is_merged, merged_with_parent_id,
	created_at, updated_at`

const childColumns = `id, uuid, skeleton_account_id, name, birth_year, is_merged,
	merged_with_child_id, created_at, updated_at`

const requestColumns = `scr.id, scr.uuid, scr.skeleton_child_id, scr.requester_child_id, scr.message,
	scr.is_converted, scr.converted_to_request_id, scr.created_at, scr.updated_at`

// Repository handles skeleton account, child, and queued request persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new skeleton repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindOrCreateAccount upserts on the normalized contact. The no-op DO UPDATE
// lets RETURNING yield the row on both the insert and the conflict path.
func (r *Repository) FindOrCreateAccount(ctx context.Context, contactMethod string, contactType models.ContactType) (*models.SkeletonAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "skeleton.Repository.FindOrCreateAccount")
	defer span.End()

	query := `
		INSERT INTO skeleton_accounts (contact_method, contact_type, is_merged, created_at, updated_at)
		VALUES ($1, $2, FALSE, $3, $3)
		ON CONFLICT (contact_method, contact_type)
		DO UPDATE SET updated_at = skeleton_accounts.updated_at
		RETURNING ` + accountColumns

	var acct models.SkeletonAccount
	if err := r.db.GetContext(ctx, &acct, query, contactMethod, contactType, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_type": contactType}).Error("Failed to find or create skeleton account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find or create skeleton account")
	}
	return &acct, nil
}

// GetAccountForUpdate locks the account row so a concurrent registration of
// the same contact cannot double-merge it
func (r *Repository) GetAccountForUpdate(ctx context.Context, id int64) (*models.SkeletonAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "skeleton.Repository.GetAccountForUpdate")
	defer span.End()

	query := "SELECT " + accountColumns + " FROM skeleton_accounts WHERE id = $1 FOR UPDATE"
	var acct models.SkeletonAccount
	if err := r.db.GetContext(ctx, &acct, query, id); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "skeleton account %d not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to lock skeleton account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock skeleton account")
	}
	return &acct, nil
}

// FindUnmergedByContacts returns unmerged accounts matching any of the given
// normalized contact methods
func (r *Repository) FindUnmergedByContacts(ctx context.Context, contacts []models.ContactMethod) ([]models.SkeletonAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "skeleton.Repository.FindUnmergedByContacts")
	defer span.End()

	if len(contacts) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(accountColumns)
	sb.From("skeleton_accounts")
	matchers := make([]string, 0, len(contacts))
	for _, cm := range contacts {
		matchers = append(matchers, sb.And(
			sb.Equal("contact_method", cm.Method),
			sb.Equal("contact_type", cm.Type),
		))
	}
	sb.Where(sb.Or(matchers...), sb.Equal("is_merged", false))
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var accounts []models.SkeletonAccount
	if err := r.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find skeleton accounts by contacts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find skeleton accounts")
	}
	return accounts, nil
}

// CreateChild adds a placeholder child under a skeleton account
func (r *Repository) CreateChild(ctx context.Context, accountID int64, name string, birthYear *int) (*models.SkeletonChild, error) {
	ctx, span := tracing.StartSpan(ctx, "skeleton.Repository.CreateChild")
	defer span.End()

	query := `
		INSERT INTO skeleton_children (skeleton_account_id, name, birth_year, is_merged, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $4)
		RETURNING ` + childColumns

	var kid models.SkeletonChild
	if err := r.db.GetContext(ctx, &kid, query, accountID, name, birthYear, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"skeleton_account_id": accountID}).Error("Failed to create skeleton child")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create skeleton child")
	}
	return &kid, nil
}

// FindChildByName returns the account's placeholder child with the given
// name, or nil. Repeated requests toward the same unregistered child reuse
// the placeholder instead of stacking duplicates.
func (r *Repository) FindChildByName(ctx context.Context, accountID int64, name string) (*models.SkeletonChild, error) {
	ctx, span := tracing.StartSpan(ctx, "skeleton.Repository.FindChildByName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(childColumns)
	sb.From("skeleton_children")
	sb.Where(sb.Equal("skeleton_account_id", accountID), sb.Equal("name", name), sb.Equal("is_merged", false))
	sb.Limit(1)

	query, args := sb.Build()
	var kid models.SkeletonChild
	if err := r.db.GetContext(ctx, &kid, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"skeleton_account_id": accountID}).Error("Failed to find skeleton child")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find skeleton child")
	}
	return &kid, nil
}

// ListChildren returns all placeholder children under an account
func (r *Repository) ListChildren(ctx context.Context, accountID int64) ([]models.SkeletonChild, error) {
	ctx, span := tracing.StartSpan(ctx, "skeleton.Repository.ListChildren")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(childColumns)
	sb.From("skeleton_children")
	sb.Where(sb.Equal("skeleton_account_id", accountID))
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var kids []models.SkeletonChild
	if err := r.db.SelectContext(ctx, &kids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"skeleton_account_id": accountID}).Error("Failed to list skeleton children")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list skeleton children")
	}
	return kids, nil
}

// CreateConnectionRequest queues a request against a placeholder child
func (r *Repository) CreateConnectionRequest(ctx context.Context, skeletonChildID, requesterChildID int64, message string) (*models.SkeletonConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "skeleton.Repository.CreateConnectionRequest")
	defer span.End()

	query := `
		INSERT INTO skeleton_connection_requests (skeleton_child_id, requester_child_id, message, is_converted, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $4)
		RETURNING id, uuid, skeleton_child_id, requester_child_id, message, is_converted, converted_to_request_id, created_at, updated_at`

	var req models.SkeletonConnectionRequest
	if err := r.db.GetContext(ctx, &req, query, skeletonChildID, requesterChildID, message, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"skeleton_child_id":  skeletonChildID,
			"requester_child_id": requesterChildID,
		}).Error("Failed to create skeleton connection request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create skeleton connection request")
	}
	return &req, nil
}

// ListConnectionRequestsForAccount returns every queued request against any
// of the account's placeholder children
func (r *Repository) ListConnectionRequestsForAccount(ctx context.Context, accountID int64) ([]models.SkeletonConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "skeleton.Repository.ListConnectionRequestsForAccount")
	defer span.End()

	query := "SELECT " + requestColumns + `
		FROM skeleton_connection_requests scr
		JOIN skeleton_children sc ON sc.id = scr.skeleton_child_id
		WHERE sc.skeleton_account_id = $1
		ORDER BY scr.created_at`

	var requests []models.SkeletonConnectionRequest
	if err := r.db.SelectContext(ctx, &requests, query, accountID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"skeleton_account_id": accountID}).Error("Failed to list skeleton connection requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list skeleton connection requests")
	}
	return requests, nil
}

// MarkChildMerged records the placeholder child's real counterpart
func (r *Repository) MarkChildMerged(ctx context.Context, id, realChildID int64) error {
	ctx, span := tracing.StartSpan(ctx, "skeleton.Repository.MarkChildMerged")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("skeleton_children")
	sb.Set(
		sb.Assign("is_merged", true),
		sb.Assign("merged_with_child_id", realChildID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id), sb.Equal("is_merged", false))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to mark skeleton child merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark skeleton child merged")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "skeleton child %d already merged", id)
	}
	return nil
}

// MarkRequestConverted records the queued request's real counterpart
func (r *Repository) MarkRequestConverted(ctx context.Context, id, realRequestID int64) error {
	ctx, span := tracing.StartSpan(ctx, "skeleton.Repository.MarkRequestConverted")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("skeleton_connection_requests")
	sb.Set(
		sb.Assign("is_converted", true),
		sb.Assign("converted_to_request_id", realRequestID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id), sb.Equal("is_converted", false))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to mark skeleton request converted")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark skeleton request converted")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "skeleton connection request %d already converted", id)
	}
	return nil
}

// MarkAccountMerged retires the account after all of its children and queued
// requests have been carried over
func (r *Repository) MarkAccountMerged(ctx context.Context, id, parentID int64) error {
	ctx, span := tracing.StartSpan(ctx, "skeleton.Repository.MarkAccountMerged")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("skeleton_accounts")
	sb.Set(
		sb.Assign("is_merged", true),
		sb.Assign("merged_with_parent_id", parentID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id), sb.Equal("is_merged", false))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to mark skeleton account merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark skeleton account merged")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "skeleton account %d already merged", id)
	}
	return nil
}

// FindAccountByUUID returns an account by external UUID, or nil
func (r *Repository) FindAccountByUUID(ctx context.Context, accountUUID string) (*models.SkeletonAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "skeleton.Repository.FindAccountByUUID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(accountColumns)
	sb.From("skeleton_accounts")
	sb.Where(sb.Equal("uuid", accountUUID))

	query, args := sb.Build()
	var acct models.SkeletonAccount
	if err := r.db.GetContext(ctx, &acct, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"uuid": accountUUID}).Error("Failed to find skeleton account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find skeleton account")
	}
	return &acct, nil
}

// FindChildByUUID returns a placeholder child by external UUID, or nil
func (r *Repository) FindChildByUUID(ctx context.Context, childUUID string) (*models.SkeletonChild, error) {
	ctx, span := tracing.StartSpan(ctx, "skeleton.Repository.FindChildByUUID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(childColumns)
	sb.From("skeleton_children")
	sb.Where(sb.Equal("uuid", childUUID))

	query, args := sb.Build()
	var kid models.SkeletonChild
	if err := r.db.GetContext(ctx, &kid, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"uuid": childUUID}).Error("Failed to find skeleton child")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find skeleton child")
	}
	return &kid, nil
}
