package connectionrequest

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const uniqueViolation = "23505"

const requestColumns = `cr.id, cr.uuid, cr.requester_child_id, cr.target_child_id, cr.status,
	cr.message, cr.created_at, cr.updated_at,
	rc.uuid AS requester_child_uuid, rc.name AS requester_child_name,
	tc.uuid AS target_child_uuid, tc.name AS target_child_name`

const requestJoins = `
	FROM connection_requests cr
	JOIN children rc ON rc.id = cr.requester_child_id
	JOIN children tc ON tc.id = cr.target_child_id`

// Repository handles connection request persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new connection request repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a pending request. A partial unique index allows at most one
// pending request per (requester, target) pair; a violation maps to 409.
func (r *Repository) Create(ctx context.Context, requesterChildID, targetChildID int64, message string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connectionrequest.Repository.Create")
	defer span.End()

	query := `
		INSERT INTO connection_requests (requester_child_id, target_child_id, status, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id`

	var id int64
	err := r.db.GetContext(ctx, &id, query, requesterChildID, targetChildID, models.ConnectionRequestStatusPending, message, time.Now().UTC())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return nil, httperror.NewHTTPError(http.StatusConflict, "a pending connection request already exists for this pair")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"requester_child_id": requesterChildID,
			"target_child_id":    targetChildID,
		}).Error("Failed to create connection request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create connection request")
	}

	return r.GetByID(ctx, id)
}

// GetByID retrieves a request by surrogate id
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connectionrequest.Repository.GetByID")
	defer span.End()

	query := "SELECT " + requestColumns + requestJoins + " WHERE cr.id = $1"

	var req models.ConnectionRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "connection request %d not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get connection request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get connection request")
	}
	return &req, nil
}

// GetByUUID retrieves a request by external UUID
func (r *Repository) GetByUUID(ctx context.Context, requestUUID string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connectionrequest.Repository.GetByUUID")
	defer span.End()

	query := "SELECT " + requestColumns + requestJoins + " WHERE cr.uuid = $1"

	var req models.ConnectionRequest
	if err := r.db.GetContext(ctx, &req, query, requestUUID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "connection request %s not found", requestUUID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"uuid": requestUUID}).Error("Failed to get connection request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get connection request")
	}
	return &req, nil
}

// GetByUUIDForUpdate locks the request row for the duration of the caller's
// transaction so concurrent responses serialize on it
func (r *Repository) GetByUUIDForUpdate(ctx context.Context, requestUUID string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connectionrequest.Repository.GetByUUIDForUpdate")
	defer span.End()

	// Lock the base row first; FOR UPDATE cannot target the joined query.
	var id int64
	if err := r.db.GetContext(ctx, &id, "SELECT id FROM connection_requests WHERE uuid = $1 FOR UPDATE", requestUUID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "connection request %s not found", requestUUID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"uuid": requestUUID}).Error("Failed to lock connection request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock connection request")
	}

	return r.GetByID(ctx, id)
}

// FindPendingByPair returns the pending request from requester to target, or
// nil when none exists. Direction matters; the reciprocal request is a
// separate row.
func (r *Repository) FindPendingByPair(ctx context.Context, requesterChildID, targetChildID int64) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connectionrequest.Repository.FindPendingByPair")
	defer span.End()

	query := "SELECT " + requestColumns + requestJoins + `
		WHERE cr.requester_child_id = $1 AND cr.target_child_id = $2 AND cr.status = $3`

	var req models.ConnectionRequest
	if err := r.db.GetContext(ctx, &req, query, requesterChildID, targetChildID, models.ConnectionRequestStatusPending); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"requester_child_id": requesterChildID,
			"target_child_id":    targetChildID,
		}).Error("Failed to find pending request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find pending request")
	}
	return &req, nil
}

// UpdateStatus transitions a request out of pending
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status models.ConnectionRequestStatus) error {
	ctx, span := tracing.StartSpan(ctx, "connectionrequest.Repository.UpdateStatus")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("connection_requests")
	sb.Set(sb.Assign("status", status), sb.Assign("updated_at", time.Now().UTC()))
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": status}).Error("Failed to update request status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update request status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "connection request %d not found", id)
	}
	return nil
}

// ListForChild returns requests where the child is requester or target,
// optionally filtered by status
func (r *Repository) ListForChild(ctx context.Context, childID int64, status *models.ConnectionRequestStatus) ([]models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connectionrequest.Repository.ListForChild")
	defer span.End()

	query := "SELECT " + requestColumns + requestJoins + `
		WHERE (cr.requester_child_id = $1 OR cr.target_child_id = $1)`
	args := []any{childID}
	if status != nil {
		query += " AND cr.status = $2"
		args = append(args, *status)
	}
	query += " ORDER BY cr.created_at DESC"

	var requests []models.ConnectionRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"child_id": childID}).Error("Failed to list connection requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list connection requests")
	}
	return requests, nil
}
