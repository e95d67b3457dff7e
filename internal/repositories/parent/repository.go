package parent

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

const parentColumns = "id, uuid, display_name, is_active, created_at, updated_at"

// Repository handles parent account persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new parent repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a parent account
func (r *Repository) Create(ctx context.Context, displayName string) (*models.Parent, error) {
	ctx, span := tracing.StartSpan(ctx, "parent.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	query := `
		INSERT INTO parents (display_name, is_active, created_at, updated_at)
		VALUES ($1, TRUE, $2, $2)
		RETURNING ` + parentColumns

	var p models.Parent
	if err := r.db.GetContext(ctx, &p, query, displayName, now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"display_name": displayName}).Error("Failed to create parent")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create parent")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"uuid": p.UUID}).Info("Created parent")
	return &p, nil
}

// AddContactMethod attaches a normalized contact method to a parent
func (r *Repository) AddContactMethod(ctx context.Context, parentID int64, method string, contactType models.ContactType) (*models.ContactMethod, error) {
	ctx, span := tracing.StartSpan(ctx, "parent.Repository.AddContactMethod")
	defer span.End()

	query := `
		INSERT INTO parent_contact_methods (parent_id, method, contact_type, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, parent_id, method, contact_type, created_at`

	var cm models.ContactMethod
	if err := r.db.GetContext(ctx, &cm, query, parentID, method, contactType, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"parent_id": parentID, "contact_type": contactType}).Error("Failed to add contact method")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to add contact method")
	}
	return &cm, nil
}

// GetByUUID retrieves a parent by external UUID
func (r *Repository) GetByUUID(ctx context.Context, parentUUID string) (*models.Parent, error) {
	ctx, span := tracing.StartSpan(ctx, "parent.Repository.GetByUUID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(parentColumns)
	sb.From("parents")
	sb.Where(sb.Equal("uuid", parentUUID))

	query, args := sb.Build()
	var p models.Parent
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "parent %s not found", parentUUID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"uuid": parentUUID}).Error("Failed to get parent")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get parent")
	}
	return &p, nil
}

// GetByID retrieves a parent by surrogate id
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Parent, error) {
	ctx, span := tracing.StartSpan(ctx, "parent.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(parentColumns)
	sb.From("parents")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var p models.Parent
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "parent %d not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get parent")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get parent")
	}
	return &p, nil
}

// FindByContact returns the parent owning a contact method, or nil when the
// contact is unregistered. The method must already be normalized.
func (r *Repository) FindByContact(ctx context.Context, method string, contactType models.ContactType) (*models.Parent, error) {
	ctx, span := tracing.StartSpan(ctx, "parent.Repository.FindByContact")
	defer span.End()

	query := `
		SELECT p.id, p.uuid, p.display_name, p.is_active, p.created_at, p.updated_at
		FROM parents p
		JOIN parent_contact_methods cm ON cm.parent_id = p.id
		WHERE cm.method = $1 AND cm.contact_type = $2
		LIMIT 1`

	var p models.Parent
	if err := r.db.GetContext(ctx, &p, query, method, contactType); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_type": contactType}).Error("Failed to find parent by contact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find parent by contact")
	}
	return &p, nil
}

// ListContactMethods returns all contact methods for a parent
func (r *Repository) ListContactMethods(ctx context.Context, parentID int64) ([]models.ContactMethod, error) {
	ctx, span := tracing.StartSpan(ctx, "parent.Repository.ListContactMethods")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "parent_id", "method", "contact_type", "created_at")
	sb.From("parent_contact_methods")
	sb.Where(sb.Equal("parent_id", parentID))
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var methods []models.ContactMethod
	if err := r.db.SelectContext(ctx, &methods, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"parent_id": parentID}).Error("Failed to list contact methods")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list contact methods")
	}
	return methods, nil
}

// Deactivate marks a parent inactive; parents are never deleted
func (r *Repository) Deactivate(ctx context.Context, parentUUID string) error {
	ctx, span := tracing.StartSpan(ctx, "parent.Repository.Deactivate")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("parents")
	sb.Set(sb.Assign("is_active", false), sb.Assign("updated_at", time.Now().UTC()))
	sb.Where(sb.Equal("uuid", parentUUID))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"uuid": parentUUID}).Error("Failed to deactivate parent")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to deactivate parent")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "parent %s not found", parentUUID)
	}
	return nil
}
