package bulk

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/export"
	"github.com/rcm/rcm/internal/platform/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/bulk", auth.RequireRole("admin", "billing"))
	g.POST("/status", h.UpdateStatus)
	g.POST("/assign", h.Assign)
	g.POST("/archive", h.Archive)
	g.POST("/export", h.Export)
	g.POST("/delete", h.Delete, auth.RequireRole("admin"))
}

type targetRequest struct {
	Target Target   `json:"target" validate:"required,oneof=task claim authorization"`
	IDs    []string `json:"ids" validate:"required,min=1,dive,required"`
}

type statusRequest struct {
	targetRequest
	Status string `json:"status" validate:"required"`
}

type assignRequest struct {
	targetRequest
	AssigneeID string `json:"assignee_id" validate:"required"`
}

type exportRequest struct {
	targetRequest
	Format export.Format `json:"format" validate:"required"`
}

func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnknownTarget), errors.Is(err, ErrUnsupportedFormat):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Partial failures are reported in the body with 200; only invalid requests
// produce an error status.
func respond(c echo.Context, r *Result, err error) error {
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	r, err := h.svc.UpdateStatus(c.Request().Context(), req.Target, req.IDs, req.Status)
	return respond(c, r, err)
}

func (h *Handler) Assign(c echo.Context) error {
	var req assignRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	r, err := h.svc.Assign(c.Request().Context(), req.Target, req.IDs, req.AssigneeID)
	return respond(c, r, err)
}

func (h *Handler) Archive(c echo.Context) error {
	var req targetRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	r, err := h.svc.Archive(c.Request().Context(), req.Target, req.IDs)
	return respond(c, r, err)
}

func (h *Handler) Delete(c echo.Context) error {
	var req targetRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	r, err := h.svc.Delete(c.Request().Context(), req.Target, req.IDs)
	return respond(c, r, err)
}

func (h *Handler) Export(c echo.Context) error {
	var req exportRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	f, err := h.svc.Export(c.Request().Context(), req.Target, req.IDs, req.Format)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+f.Filename+`"`)
	return c.Blob(http.StatusOK, f.ContentType, f.Data)
}
