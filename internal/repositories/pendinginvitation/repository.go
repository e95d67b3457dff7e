package pendinginvitation

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

const pendingColumns = `pi.id, pi.uuid, pi.activity_id, a.uuid AS activity_uuid, pi.target_kind,
	pi.target_uuid, pi.message, pi.created_at`

const pendingJoins = `
	FROM pending_activity_invitations pi
	JOIN activities a ON a.id = pi.activity_id`

// Repository handles ledger row persistence for deferred invitations
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new pending invitation repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateIfAbsent inserts a ledger row unless the (activity, target) pair
// already has one. Returns created=false on the duplicate path.
func (r *Repository) CreateIfAbsent(ctx context.Context, activityID int64, target models.PendingTarget, message string) (*models.PendingActivityInvitation, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "pendinginvitation.Repository.CreateIfAbsent")
	defer span.End()

	insert := `
		INSERT INTO pending_activity_invitations (activity_id, target_kind, target_uuid, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (activity_id, target_kind, target_uuid) DO NOTHING
		RETURNING id`

	var id int64
	err := r.db.GetContext(ctx, &id, insert, activityID, target.Kind, target.UUID, message, time.Now().UTC())
	created := true
	if err != nil {
		if err.Error() != "sql: no rows in result set" {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"activity_id": activityID,
				"target_kind": target.Kind,
				"target_uuid": target.UUID,
			}).Error("Failed to create pending invitation")
			return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create pending invitation")
		}
		created = false
	}

	query := "SELECT " + pendingColumns + pendingJoins + `
		WHERE pi.activity_id = $1 AND pi.target_kind = $2 AND pi.target_uuid = $3`
	var row models.PendingActivityInvitation
	if err := r.db.GetContext(ctx, &row, query, activityID, target.Kind, target.UUID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"activity_id": activityID}).Error("Failed to read back pending invitation")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read pending invitation")
	}
	return &row, created, nil
}

// FindByTargets returns every ledger row whose target matches any of the
// given identities, across all activities
func (r *Repository) FindByTargets(ctx context.Context, targets []models.PendingTarget) ([]models.PendingActivityInvitation, error) {
	ctx, span := tracing.StartSpan(ctx, "pendinginvitation.Repository.FindByTargets")
	defer span.End()

	if len(targets) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(pendingColumns)
	sb.From("pending_activity_invitations pi")
	sb.Join("activities a", "a.id = pi.activity_id")
	matchers := make([]string, 0, len(targets))
	for _, t := range targets {
		matchers = append(matchers, sb.And(
			sb.Equal("pi.target_kind", t.Kind),
			sb.Equal("pi.target_uuid", t.UUID),
		))
	}
	sb.Where(sb.Or(matchers...))
	sb.OrderBy("pi.created_at")

	query, args := sb.Build()
	var rows []models.PendingActivityInvitation
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find pending invitations by target")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find pending invitations")
	}
	return rows, nil
}

// ListByActivity returns an activity's outstanding ledger rows
func (r *Repository) ListByActivity(ctx context.Context, activityID int64) ([]models.PendingActivityInvitation, error) {
	ctx, span := tracing.StartSpan(ctx, "pendinginvitation.Repository.ListByActivity")
	defer span.End()

	query := "SELECT " + pendingColumns + pendingJoins + " WHERE pi.activity_id = $1 ORDER BY pi.created_at"

	var rows []models.PendingActivityInvitation
	if err := r.db.SelectContext(ctx, &rows, query, activityID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"activity_id": activityID}).Error("Failed to list pending invitations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending invitations")
	}
	return rows, nil
}

// Delete removes a consumed ledger row. A miss means the row was consumed
// twice, which the transaction discipline is supposed to make impossible, so
// it surfaces as an error rather than a silent no-op.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "pendinginvitation.Repository.Delete")
	defer span.End()

	result, err := r.db.ExecContext(ctx, "DELETE FROM pending_activity_invitations WHERE id = $1", id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to delete pending invitation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete pending invitation")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Error("Pending invitation already consumed")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "pending invitation %d already consumed", id)
	}
	return nil
}

// RekeyTarget repoints a ledger row at a different identity. Used when a
// skeleton account merges with multiple children and the row must wait on
// the real parent instead.
func (r *Repository) RekeyTarget(ctx context.Context, id int64, target models.PendingTarget) error {
	ctx, span := tracing.StartSpan(ctx, "pendinginvitation.Repository.RekeyTarget")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("pending_activity_invitations")
	sb.Set(sb.Assign("target_kind", target.Kind), sb.Assign("target_uuid", target.UUID))
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to rekey pending invitation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to rekey pending invitation")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "pending invitation %d not found", id)
	}
	return nil
}
