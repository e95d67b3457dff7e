package child

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

const childColumns = `c.id, c.uuid, c.parent_id, p.uuid AS parent_uuid, c.name, c.birth_year,
	c.created_at, c.updated_at, c.deleted_at`

// Repository handles child profile persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new child repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a child under a parent
func (r *Repository) Create(ctx context.Context, parentID int64, name string, birthYear *int) (*models.Child, error) {
	ctx, span := tracing.StartSpan(ctx, "child.Repository.Create")
	defer span.End()

	query := `
		WITH inserted AS (
			INSERT INTO children (parent_id, name, birth_year, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			RETURNING id, uuid, parent_id, name, birth_year, created_at, updated_at, deleted_at
		)
		SELECT c.id, c.uuid, c.parent_id, p.uuid AS parent_uuid, c.name, c.birth_year,
			c.created_at, c.updated_at, c.deleted_at
		FROM inserted c
		JOIN parents p ON p.id = c.parent_id`

	var ch models.Child
	if err := r.db.GetContext(ctx, &ch, query, parentID, name, birthYear, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"parent_id": parentID}).Error("Failed to create child")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create child")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"uuid": ch.UUID, "parent_id": parentID}).Info("Created child")
	return &ch, nil
}

// GetByUUID retrieves a live child by external UUID
func (r *Repository) GetByUUID(ctx context.Context, childUUID string) (*models.Child, error) {
	ctx, span := tracing.StartSpan(ctx, "child.Repository.GetByUUID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(childColumns)
	sb.From("children c")
	sb.Join("parents p", "p.id = c.parent_id")
	sb.Where(sb.Equal("c.uuid", childUUID), sb.IsNull("c.deleted_at"))

	query, args := sb.Build()
	var ch models.Child
	if err := r.db.GetContext(ctx, &ch, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "child %s not found", childUUID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"uuid": childUUID}).Error("Failed to get child")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get child")
	}
	return &ch, nil
}

// FindByUUID is GetByUUID without the 404; returns nil when the child does
// not exist or is soft deleted
func (r *Repository) FindByUUID(ctx context.Context, childUUID string) (*models.Child, error) {
	ch, err := r.GetByUUID(ctx, childUUID)
	if err != nil {
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return ch, nil
}

// GetByID retrieves a child by surrogate id, including soft-deleted rows
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Child, error) {
	ctx, span := tracing.StartSpan(ctx, "child.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(childColumns)
	sb.From("children c")
	sb.Join("parents p", "p.id = c.parent_id")
	sb.Where(sb.Equal("c.id", id))

	query, args := sb.Build()
	var ch models.Child
	if err := r.db.GetContext(ctx, &ch, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "child %d not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get child")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get child")
	}
	return &ch, nil
}

// ListByParent returns all live children of a parent
func (r *Repository) ListByParent(ctx context.Context, parentID int64) ([]models.Child, error) {
	ctx, span := tracing.StartSpan(ctx, "child.Repository.ListByParent")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(childColumns)
	sb.From("children c")
	sb.Join("parents p", "p.id = c.parent_id")
	sb.Where(sb.Equal("c.parent_id", parentID), sb.IsNull("c.deleted_at"))
	sb.OrderBy("c.created_at")

	query, args := sb.Build()
	var children []models.Child
	if err := r.db.SelectContext(ctx, &children, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"parent_id": parentID}).Error("Failed to list children")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list children")
	}
	return children, nil
}

// SoftDelete marks a child removed without breaking historical references
func (r *Repository) SoftDelete(ctx context.Context, childUUID string) error {
	ctx, span := tracing.StartSpan(ctx, "child.Repository.SoftDelete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("children")
	sb.Set(sb.Assign("deleted_at", now), sb.Assign("updated_at", now))
	sb.Where(sb.Equal("uuid", childUUID), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"uuid": childUUID}).Error("Failed to soft delete child")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete child")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "child %s not found", childUUID)
	}
	return nil
}
