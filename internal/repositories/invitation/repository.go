package invitation

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

const invitationColumns = `ai.id, ai.uuid, ai.activity_id, ai.inviter_parent_id, ai.invited_parent_id,
	ai.invited_child_id, ai.status, ai.message, ai.created_at, ai.updated_at,
	ic.uuid AS invited_child_uuid, ic.name AS invited_child_name`

const invitationJoins = `
	FROM activity_invitations ai
	JOIN children ic ON ic.id = ai.invited_child_id`

// Repository handles real activity invitation persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new invitation repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateIfAbsent inserts a pending invitation unless the child already holds
// a non-withdrawn one for the activity. Returns created=false and the
// existing row on the duplicate path, so conversion passes stay idempotent.
func (r *Repository) CreateIfAbsent(ctx context.Context, activityID, inviterParentID, invitedParentID, invitedChildID int64, message string) (*models.ActivityInvitation, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "invitation.Repository.CreateIfAbsent")
	defer span.End()

	insert := `
		INSERT INTO activity_invitations (activity_id, inviter_parent_id, invited_parent_id, invited_child_id, status, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (activity_id, invited_child_id) WHERE status <> 'withdrawn' DO NOTHING
		RETURNING id`

	var id int64
	err := r.db.GetContext(ctx, &id, insert, activityID, inviterParentID, invitedParentID, invitedChildID, models.ActivityInvitationStatusPending, message, time.Now().UTC())
	created := true
	if err != nil {
		if err.Error() != "sql: no rows in result set" {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"activity_id":      activityID,
				"invited_child_id": invitedChildID,
			}).Error("Failed to create invitation")
			return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create invitation")
		}
		created = false
	}

	existing, err := r.FindByActivityAndChild(ctx, activityID, invitedChildID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"activity_id":      activityID,
			"invited_child_id": invitedChildID,
		}).Error("Invitation missing after insert")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "invitation missing after insert")
	}
	return existing, created, nil
}

// FindByActivityAndChild returns the child's non-withdrawn invitation for the
// activity, or nil
func (r *Repository) FindByActivityAndChild(ctx context.Context, activityID, childID int64) (*models.ActivityInvitation, error) {
	ctx, span := tracing.StartSpan(ctx, "invitation.Repository.FindByActivityAndChild")
	defer span.End()

	query := "SELECT " + invitationColumns + invitationJoins + `
		WHERE ai.activity_id = $1 AND ai.invited_child_id = $2 AND ai.status <> $3`

	var inv models.ActivityInvitation
	if err := r.db.GetContext(ctx, &inv, query, activityID, childID, models.ActivityInvitationStatusWithdrawn); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"activity_id":      activityID,
			"invited_child_id": childID,
		}).Error("Failed to find invitation")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find invitation")
	}
	return &inv, nil
}

// GetByUUID retrieves an invitation by external UUID
func (r *Repository) GetByUUID(ctx context.Context, invitationUUID string) (*models.ActivityInvitation, error) {
	ctx, span := tracing.StartSpan(ctx, "invitation.Repository.GetByUUID")
	defer span.End()

	query := "SELECT " + invitationColumns + invitationJoins + " WHERE ai.uuid = $1"

	var inv models.ActivityInvitation
	if err := r.db.GetContext(ctx, &inv, query, invitationUUID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "invitation %s not found", invitationUUID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"uuid": invitationUUID}).Error("Failed to get invitation")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get invitation")
	}
	return &inv, nil
}

// ListByActivity returns every invitation on an activity, withdrawn included;
// callers filter
func (r *Repository) ListByActivity(ctx context.Context, activityID int64) ([]models.ActivityInvitation, error) {
	ctx, span := tracing.StartSpan(ctx, "invitation.Repository.ListByActivity")
	defer span.End()

	query := "SELECT " + invitationColumns + invitationJoins + " WHERE ai.activity_id = $1 ORDER BY ai.created_at"

	var invitations []models.ActivityInvitation
	if err := r.db.SelectContext(ctx, &invitations, query, activityID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"activity_id": activityID}).Error("Failed to list invitations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list invitations")
	}
	return invitations, nil
}

// UpdateStatus transitions an invitation. Only pending invitations can move
// to accepted or rejected; anything else is a conflict.
func (r *Repository) UpdateStatus(ctx context.Context, invitationUUID string, status models.ActivityInvitationStatus) error {
	ctx, span := tracing.StartSpan(ctx, "invitation.Repository.UpdateStatus")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("activity_invitations")
	sb.Set(sb.Assign("status", status), sb.Assign("updated_at", time.Now().UTC()))
	sb.Where(sb.Equal("uuid", invitationUUID), sb.Equal("status", models.ActivityInvitationStatusPending))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"uuid": invitationUUID, "status": status}).Error("Failed to update invitation status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update invitation status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Zero rows is either an unknown UUID or a settled invitation;
		// the read-back tells them apart.
		inv, err := r.GetByUUID(ctx, invitationUUID)
		if err != nil {
			return err
		}
		return httperror.NewHTTPErrorf(http.StatusConflict, "invitation %s is already %s", invitationUUID, inv.Status)
	}
	return nil
}
