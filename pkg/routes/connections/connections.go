package connections

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/connections"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/skeletons"
)

var validate = validator.New()

// Register registers connection routes
func Register(g *echo.Group) {
	g.POST("/request", SubmitRequest)
	g.POST("/respond/:requestUUID", Respond)
	g.POST("/skeleton", CreateSkeletonRequest)
	g.GET("/requests", ListRequests)
	g.GET("", ListConnections)
	g.DELETE("/:connectionUUID", Disconnect)
}

// SubmitRequest creates a pending connection request toward a registered child
func SubmitRequest(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.SubmitConnectionRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*connections.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := svc.SubmitRequest(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

type respondRequest struct {
	Action models.RespondAction `json:"action" validate:"required,oneof=accept reject"`
}

// Respond accepts or rejects a pending connection request
func Respond(c echo.Context) error {
	ctx := c.Request().Context()
	requestUUID := c.Param("requestUUID")

	var req respondRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*connections.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := svc.Respond(ctx, requestUUID, req.Action)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// CreateSkeletonRequest queues a connection request toward an unregistered contact
func CreateSkeletonRequest(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.CreateSkeletonRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, registry, err := ectoinject.GetContext[*skeletons.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := registry.RegisterRequest(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// ListRequests lists a child's connection requests in both directions
func ListRequests(c echo.Context) error {
	ctx := c.Request().Context()

	childUUID := c.QueryParam("child_uuid")
	if childUUID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "child_uuid query parameter is required")
	}

	var status *models.ConnectionRequestStatus
	if s := c.QueryParam("status"); s != "" {
		v := models.ConnectionRequestStatus(s)
		status = &v
	}

	ctx, svc, err := ectoinject.GetContext[*connections.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	requests, err := svc.ListRequestsForChild(ctx, childUUID, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, requests)
}

// ListConnections lists a child's active connections
func ListConnections(c echo.Context) error {
	ctx := c.Request().Context()

	childUUID := c.QueryParam("child_uuid")
	if childUUID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "child_uuid query parameter is required")
	}

	ctx, svc, err := ectoinject.GetContext[*connections.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	conns, err := svc.ListConnectionsForChild(ctx, childUUID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conns)
}

// Disconnect soft-deletes an active connection
func Disconnect(c echo.Context) error {
	ctx := c.Request().Context()
	connectionUUID := c.Param("connectionUUID")

	ctx, svc, err := ectoinject.GetContext[*connections.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := svc.Disconnect(ctx, connectionUUID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
