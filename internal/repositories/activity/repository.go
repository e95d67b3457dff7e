package activity

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

const activityColumns = `id, uuid, name, host_parent_id, host_child_id, auto_notify_new_connections, created_at`

// Repository reads activities owned by the scheduling side of the system.
// Invitation flows only ever consult them; full activity CRUD lives
// elsewhere, so this surface stays intentionally thin.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new activity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an activity shell
func (r *Repository) Create(ctx context.Context, name string, hostParentID, hostChildID int64, autoNotify bool) (*models.Activity, error) {
	ctx, span := tracing.StartSpan(ctx, "activity.Repository.Create")
	defer span.End()

	query := `
		INSERT INTO activities (name, host_parent_id, host_child_id, auto_notify_new_connections, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + activityColumns

	var a models.Activity
	if err := r.db.GetContext(ctx, &a, query, name, hostParentID, hostChildID, autoNotify, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"host_parent_id": hostParentID}).Error("Failed to create activity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create activity")
	}
	return &a, nil
}

// GetByUUID retrieves an activity by external UUID
func (r *Repository) GetByUUID(ctx context.Context, activityUUID string) (*models.Activity, error) {
	ctx, span := tracing.StartSpan(ctx, "activity.Repository.GetByUUID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(activityColumns)
	sb.From("activities")
	sb.Where(sb.Equal("uuid", activityUUID))

	query, args := sb.Build()
	var a models.Activity
	if err := r.db.GetContext(ctx, &a, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "activity %s not found", activityUUID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"uuid": activityUUID}).Error("Failed to get activity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get activity")
	}
	return &a, nil
}

// GetByID retrieves an activity by surrogate id
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Activity, error) {
	ctx, span := tracing.StartSpan(ctx, "activity.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(activityColumns)
	sb.From("activities")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var a models.Activity
	if err := r.db.GetContext(ctx, &a, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "activity %d not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get activity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get activity")
	}
	return &a, nil
}

// ListByHostParent returns activities hosted by a parent
func (r *Repository) ListByHostParent(ctx context.Context, hostParentID int64) ([]models.Activity, error) {
	ctx, span := tracing.StartSpan(ctx, "activity.Repository.ListByHostParent")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(activityColumns)
	sb.From("activities")
	sb.Where(sb.Equal("host_parent_id", hostParentID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"host_parent_id": hostParentID}).Error("Failed to list activities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list activities")
	}
	return activities, nil
}
