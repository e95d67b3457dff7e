package connection

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

const connectionColumns = `cn.id, cn.uuid, cn.child_a_id, cn.child_b_id, cn.status,
	cn.created_at, cn.updated_at, cn.deleted_at`

// Repository handles symmetric connection persistence. Rows are stored in
// canonical order (child_a_id < child_b_id) so a pair maps to one row no
// matter which side initiated.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new connection repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func orderPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// LockPair takes row locks on both child rows in ascending id order.
// Concurrent accepts touching the same pair serialize here, and the fixed
// lock order prevents deadlocks between overlapping pairs.
func (r *Repository) LockPair(ctx context.Context, childAID, childBID int64) error {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.LockPair")
	defer span.End()

	a, b := orderPair(childAID, childBID)
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, "SELECT id FROM children WHERE id IN ($1, $2) ORDER BY id FOR UPDATE", a, b); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"child_a_id": a, "child_b_id": b}).Error("Failed to lock child pair")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock child pair")
	}
	if len(ids) != 2 {
		return httperror.NewHTTPError(http.StatusNotFound, "one or both children not found")
	}
	return nil
}

// Create inserts an active connection for the pair
func (r *Repository) Create(ctx context.Context, childAID, childBID int64) (*models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.Create")
	defer span.End()

	a, b := orderPair(childAID, childBID)
	query := `
		INSERT INTO connections (child_a_id, child_b_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, uuid, child_a_id, child_b_id, status, created_at, updated_at, deleted_at`

	var conn models.Connection
	if err := r.db.GetContext(ctx, &conn, query, a, b, models.ConnectionStatusActive, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"child_a_id": a, "child_b_id": b}).Error("Failed to create connection")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create connection")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"uuid": conn.UUID}).Info("Created connection")
	return &conn, nil
}

// FindActiveByPair returns the active connection between two children, or nil
func (r *Repository) FindActiveByPair(ctx context.Context, childAID, childBID int64) (*models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.FindActiveByPair")
	defer span.End()

	a, b := orderPair(childAID, childBID)
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(connectionColumns)
	sb.From("connections cn")
	sb.Where(
		sb.Equal("cn.child_a_id", a),
		sb.Equal("cn.child_b_id", b),
		sb.Equal("cn.status", models.ConnectionStatusActive),
		sb.IsNull("cn.deleted_at"),
	)

	query, args := sb.Build()
	var conn models.Connection
	if err := r.db.GetContext(ctx, &conn, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"child_a_id": a, "child_b_id": b}).Error("Failed to find connection")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find connection")
	}
	return &conn, nil
}

// ActiveExists reports whether an active connection joins the two children
func (r *Repository) ActiveExists(ctx context.Context, childAID, childBID int64) (bool, error) {
	conn, err := r.FindActiveByPair(ctx, childAID, childBID)
	if err != nil {
		return false, err
	}
	return conn.IsActive(), nil
}

// ListActiveForChild returns all active connections touching a child
func (r *Repository) ListActiveForChild(ctx context.Context, childID int64) ([]models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.ListActiveForChild")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(connectionColumns)
	sb.From("connections cn")
	sb.Where(
		sb.Or(sb.Equal("cn.child_a_id", childID), sb.Equal("cn.child_b_id", childID)),
		sb.Equal("cn.status", models.ConnectionStatusActive),
		sb.IsNull("cn.deleted_at"),
	)
	sb.OrderBy("cn.created_at")

	query, args := sb.Build()
	var connections []models.Connection
	if err := r.db.SelectContext(ctx, &connections, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"child_id": childID}).Error("Failed to list connections")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list connections")
	}
	return connections, nil
}

// SoftDelete removes a connection without erasing history. Past invitations
// that rode on the connection stay intact.
func (r *Repository) SoftDelete(ctx context.Context, connectionUUID string) error {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.SoftDelete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("connections")
	sb.Set(sb.Assign("deleted_at", now), sb.Assign("updated_at", now))
	sb.Where(sb.Equal("uuid", connectionUUID), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"uuid": connectionUUID}).Error("Failed to soft delete connection")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete connection")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "connection %s not found", connectionUUID)
	}
	return nil
}
