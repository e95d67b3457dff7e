package activities

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/invitations"
	"github.com/Ramsey-B/clover/pkg/ledger"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/participants"
)

var validate = validator.New()

// Register registers activity invitation routes
func Register(g *echo.Group) {
	g.POST("/:activityUUID/pending-invitations", AddPendingInvitations)
	g.GET("/:activityUUID/pending-invitations", ListPendingInvitations)
	g.POST("/:activityUUID/invite", Invite)
	g.GET("/:activityUUID/participants", ListParticipants)
	g.POST("/invitations/:invitationUUID/respond", RespondInvitation)
	g.DELETE("/invitations/:invitationUUID", WithdrawInvitation)
}

// AddPendingInvitations records deferred invitations for prospective invitees
func AddPendingInvitations(c echo.Context) error {
	ctx := c.Request().Context()
	activityUUID := c.Param("activityUUID")

	var req models.AddPendingInvitationsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, l, err := ectoinject.GetContext[*ledger.Ledger](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rows, err := l.AddPending(ctx, activityUUID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rows)
}

// ListPendingInvitations lists an activity's outstanding ledger rows
func ListPendingInvitations(c echo.Context) error {
	ctx := c.Request().Context()
	activityUUID := c.Param("activityUUID")

	ctx, l, err := ectoinject.GetContext[*ledger.Ledger](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rows, err := l.ListByActivity(ctx, activityUUID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

// Invite creates a direct invitation for a registered child
func Invite(c echo.Context) error {
	ctx := c.Request().Context()
	activityUUID := c.Param("activityUUID")

	var req models.InviteRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*invitations.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	inv, err := svc.Invite(ctx, activityUUID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inv)
}

// ListParticipants resolves the activity's participant list
func ListParticipants(c echo.Context) error {
	ctx := c.Request().Context()
	activityUUID := c.Param("activityUUID")

	ctx, resolver, err := ectoinject.GetContext[*participants.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	list, err := resolver.Resolve(ctx, activityUUID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

type respondInvitationRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

// RespondInvitation records the invitee's answer
func RespondInvitation(c echo.Context) error {
	ctx := c.Request().Context()
	invitationUUID := c.Param("invitationUUID")

	var req respondInvitationRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*invitations.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	inv, err := svc.Respond(ctx, invitationUUID, *req.Accept)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

// WithdrawInvitation retires an invitation
func WithdrawInvitation(c echo.Context) error {
	ctx := c.Request().Context()
	invitationUUID := c.Param("invitationUUID")

	ctx, svc, err := ectoinject.GetContext[*invitations.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := svc.Withdraw(ctx, invitationUUID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
